package peer

import (
	"context"
	"sync"
	"time"

	"vroom/internal/client/media"
	"vroom/internal/core/domain"

	"go.uber.org/zap"
)

// State is the negotiation state of a link.
type State int

const (
	StateIdle State = iota
	StateHaveLocalOffer
	StateHaveRemoteOffer
	StateStable
	StateClosed
)

func (s State) String() string {
	switch s {
	case StateIdle:
		return "idle"
	case StateHaveLocalOffer:
		return "have_local_offer"
	case StateHaveRemoteOffer:
		return "have_remote_offer"
	case StateStable:
		return "stable"
	case StateClosed:
		return "closed"
	default:
		return "unknown"
	}
}

// Signaler sends this link's negotiation messages through the relay.
type Signaler interface {
	SendOffer(to domain.ParticipantID, ns domain.Namespace, sdp string) error
	SendAnswer(to domain.ParticipantID, ns domain.Namespace, sdp string) error
	SendCandidate(to domain.ParticipantID, ns domain.Namespace, candidate string) error
}

// Observer is notified of link lifecycle events worth surfacing to the
// session (and its renderer).
type Observer interface {
	LinkStateChanged(peer domain.ParticipantID, ns domain.Namespace, state ConnState)
	LinkTrackStarted(peer domain.ParticipantID, ns domain.Namespace, info TrackInfo)
}

// Link negotiates and supervises one peer connection to one participant on
// one namespace. Remote candidates arriving before the remote description are
// buffered and flushed once it lands. Simultaneous offers are resolved
// deterministically: the lexicographically lower participant id's offer wins
// and the other side rolls back and answers.
type Link struct {
	selfID domain.ParticipantID
	peerID domain.ParticipantID
	ns     domain.Namespace

	factory  TransportFactory
	signaler Signaler
	observer Observer
	timeout  time.Duration
	logger   *zap.SugaredLogger

	mu             sync.Mutex
	state          State
	transport      Transport
	pending        []string
	haveRemoteDesc bool
	initiator      bool
	retried        bool
	sources        []media.Source
	deadline       *time.Timer
}

func NewLink(selfID, peerID domain.ParticipantID, ns domain.Namespace, factory TransportFactory, signaler Signaler, observer Observer, timeout time.Duration, logger *zap.SugaredLogger) (*Link, error) {
	l := &Link{
		selfID:   selfID,
		peerID:   peerID,
		ns:       ns,
		factory:  factory,
		signaler: signaler,
		observer: observer,
		timeout:  timeout,
		logger:   logger,
	}

	t, err := factory(ns, l)
	if err != nil {
		return nil, err
	}
	l.transport = t
	return l, nil
}

// State returns the link's current negotiation state.
func (l *Link) State() State {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.state
}

// Offer starts negotiation from this side. It is a no-op while an exchange is
// already in flight.
func (l *Link) Offer(ctx context.Context) error {
	l.mu.Lock()
	defer l.mu.Unlock()

	if l.state != StateIdle && l.state != StateStable {
		return nil
	}

	sdp, err := l.transport.CreateOffer(ctx)
	if err != nil {
		l.failLocked()
		return err
	}
	if err := l.signaler.SendOffer(l.peerID, l.ns, sdp); err != nil {
		return err
	}

	l.initiator = true
	l.state = StateHaveLocalOffer
	l.armDeadlineLocked()

	l.logger.Debugw("offer sent", "peer", l.peerID, "namespace", l.ns)
	return nil
}

// HandleOffer processes a remote offer. A remote offer while stable starts
// renegotiation on the existing transport.
func (l *Link) HandleOffer(ctx context.Context, sdp string) error {
	l.mu.Lock()
	defer l.mu.Unlock()

	switch l.state {
	case StateClosed:
		return nil

	case StateHaveLocalOffer:
		// Offer glare. The lower id keeps its offer and waits for the
		// peer's answer; the higher id yields.
		if l.selfID < l.peerID {
			l.logger.Debugw("offer glare, keeping local offer",
				"peer", l.peerID, "namespace", l.ns)
			return nil
		}
		l.logger.Debugw("offer glare, yielding to remote offer",
			"peer", l.peerID, "namespace", l.ns)
		if err := l.transport.Rollback(); err != nil {
			l.failLocked()
			return err
		}
		l.initiator = false
	}

	l.state = StateHaveRemoteOffer

	answer, err := l.transport.CreateAnswer(ctx, sdp)
	if err != nil {
		l.failLocked()
		return err
	}
	l.haveRemoteDesc = true
	l.flushPendingLocked()

	if err := l.signaler.SendAnswer(l.peerID, l.ns, answer); err != nil {
		return err
	}

	l.state = StateStable
	l.stopDeadlineLocked()
	l.logger.Debugw("answer sent", "peer", l.peerID, "namespace", l.ns)
	return nil
}

// HandleAnswer completes a locally initiated exchange. Answers arriving in
// any other state are duplicates or stragglers and are ignored.
func (l *Link) HandleAnswer(ctx context.Context, sdp string) error {
	l.mu.Lock()
	defer l.mu.Unlock()

	if l.state != StateHaveLocalOffer {
		l.logger.Debugw("ignoring unexpected answer",
			"peer", l.peerID, "namespace", l.ns, "state", l.state)
		return nil
	}

	if err := l.transport.AcceptAnswer(ctx, sdp); err != nil {
		l.failLocked()
		return err
	}
	l.haveRemoteDesc = true
	l.flushPendingLocked()

	l.state = StateStable
	l.stopDeadlineLocked()
	l.logger.Debugw("answer accepted", "peer", l.peerID, "namespace", l.ns)
	return nil
}

// HandleCandidate applies a remote ICE candidate, buffering it when the
// remote description has not landed yet.
func (l *Link) HandleCandidate(candidate string) error {
	l.mu.Lock()
	defer l.mu.Unlock()

	if l.state == StateClosed {
		return nil
	}
	if !l.haveRemoteDesc {
		l.pending = append(l.pending, candidate)
		return nil
	}
	return l.transport.AddRemoteCandidate(candidate)
}

// AddSource attaches a local media source. The transport raises negotiation
// needed, which triggers a (re)offer.
func (l *Link) AddSource(src media.Source) error {
	l.mu.Lock()
	defer l.mu.Unlock()

	if l.state == StateClosed {
		return nil
	}
	if err := l.transport.AddSource(src); err != nil {
		return err
	}
	l.sources = append(l.sources, src)
	return nil
}

// Close tears the link down permanently.
func (l *Link) Close() error {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.closeLocked()
}

func (l *Link) closeLocked() error {
	if l.state == StateClosed {
		return nil
	}
	l.state = StateClosed
	l.stopDeadlineLocked()
	return l.transport.Close()
}

func (l *Link) flushPendingLocked() {
	for _, c := range l.pending {
		if err := l.transport.AddRemoteCandidate(c); err != nil {
			l.logger.Warnw("failed to apply buffered candidate",
				"peer", l.peerID, "namespace", l.ns, "error", err)
		}
	}
	l.pending = nil
}

func (l *Link) armDeadlineLocked() {
	l.stopDeadlineLocked()
	l.deadline = time.AfterFunc(l.timeout, l.onDeadline)
}

func (l *Link) stopDeadlineLocked() {
	if l.deadline != nil {
		l.deadline.Stop()
		l.deadline = nil
	}
}

func (l *Link) onDeadline() {
	l.mu.Lock()
	defer l.mu.Unlock()

	if l.state == StateStable || l.state == StateClosed {
		return
	}
	l.logger.Warnw("negotiation deadline expired",
		"peer", l.peerID, "namespace", l.ns, "state", l.state)
	l.failLocked()
}

// failLocked force-closes the current transport and restarts negotiation
// once. A second failure closes the link for good.
func (l *Link) failLocked() {
	l.transport.Close()

	if l.retried {
		l.logger.Warnw("link failed after retry, closing",
			"peer", l.peerID, "namespace", l.ns)
		l.state = StateClosed
		l.stopDeadlineLocked()
		return
	}
	l.retried = true

	t, err := l.factory(l.ns, l)
	if err != nil {
		l.logger.Errorw("failed to rebuild transport",
			"peer", l.peerID, "namespace", l.ns, "error", err)
		l.state = StateClosed
		l.stopDeadlineLocked()
		return
	}
	l.transport = t
	l.state = StateIdle
	l.haveRemoteDesc = false
	l.pending = nil
	l.stopDeadlineLocked()

	for _, src := range l.sources {
		if err := t.AddSource(src); err != nil {
			l.logger.Warnw("failed to reattach source",
				"peer", l.peerID, "namespace", l.ns, "error", err)
		}
	}

	if l.initiator {
		go func() {
			if err := l.Offer(context.Background()); err != nil {
				l.logger.Warnw("retry offer failed",
					"peer", l.peerID, "namespace", l.ns, "error", err)
			}
		}()
	}
	l.logger.Infow("link restarted", "peer", l.peerID, "namespace", l.ns)
}

// OnLocalCandidate implements Events.
func (l *Link) OnLocalCandidate(ns domain.Namespace, candidate string) {
	if err := l.signaler.SendCandidate(l.peerID, ns, candidate); err != nil {
		l.logger.Debugw("failed to send candidate", "peer", l.peerID, "error", err)
	}
}

// OnStateChange implements Events. A failed transport takes the same
// restart-once path as a negotiation timeout.
func (l *Link) OnStateChange(ns domain.Namespace, state ConnState) {
	l.observer.LinkStateChanged(l.peerID, ns, state)

	if state != ConnStateFailed {
		return
	}
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.state == StateClosed {
		return
	}
	l.failLocked()
}

// OnRemoteTrack implements Events.
func (l *Link) OnRemoteTrack(ns domain.Namespace, info TrackInfo) {
	l.observer.LinkTrackStarted(l.peerID, ns, info)
}

// OnNegotiationNeeded implements Events. Runs the offer off the callback
// goroutine; the transport may raise this mid AddSource while the link lock
// is held.
func (l *Link) OnNegotiationNeeded(ns domain.Namespace) {
	go func() {
		if err := l.Offer(context.Background()); err != nil {
			l.logger.Debugw("negotiation-needed offer failed",
				"peer", l.peerID, "namespace", l.ns, "error", err)
		}
	}()
}
