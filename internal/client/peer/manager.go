package peer

import (
	"context"
	"sync"
	"time"

	"vroom/internal/core/domain"

	"go.uber.org/zap"
)

type linkKey struct {
	peer domain.ParticipantID
	ns   domain.Namespace
}

// Manager owns every link of one session, keyed by peer and namespace. The
// primary and screen-share lanes to the same peer are independent links that
// never share negotiation state.
type Manager struct {
	selfID   domain.ParticipantID
	factory  TransportFactory
	signaler Signaler
	observer Observer
	timeout  time.Duration
	logger   *zap.SugaredLogger

	mu    sync.Mutex
	links map[linkKey]*Link
}

func NewManager(selfID domain.ParticipantID, factory TransportFactory, signaler Signaler, observer Observer, timeout time.Duration, logger *zap.SugaredLogger) *Manager {
	return &Manager{
		selfID:   selfID,
		factory:  factory,
		signaler: signaler,
		observer: observer,
		timeout:  timeout,
		logger:   logger,
	}
}

// Ensure returns the live link for (peer, ns), creating one when none exists
// or the previous one is closed.
func (m *Manager) Ensure(peer domain.ParticipantID, ns domain.Namespace) (*Link, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	key := linkKey{peer: peer, ns: ns}
	if l, ok := m.links[key]; ok && l.State() != StateClosed {
		return l, nil
	}

	l, err := NewLink(m.selfID, peer, ns, m.factory, m.signaler, m.observer, m.timeout, m.logger)
	if err != nil {
		return nil, err
	}
	if m.links == nil {
		m.links = make(map[linkKey]*Link)
	}
	m.links[key] = l
	return l, nil
}

// Get returns the link for (peer, ns) if one exists.
func (m *Manager) Get(peer domain.ParticipantID, ns domain.Namespace) (*Link, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	l, ok := m.links[linkKey{peer: peer, ns: ns}]
	return l, ok
}

// HandleOffer routes a remote offer, creating the link if the peer initiated
// first contact.
func (m *Manager) HandleOffer(ctx context.Context, from domain.ParticipantID, ns domain.Namespace, sdp string) error {
	l, err := m.Ensure(from, ns)
	if err != nil {
		return err
	}
	return l.HandleOffer(ctx, sdp)
}

// HandleAnswer routes a remote answer. Answers for unknown links are late
// arrivals after teardown and are dropped.
func (m *Manager) HandleAnswer(ctx context.Context, from domain.ParticipantID, ns domain.Namespace, sdp string) error {
	l, ok := m.Get(from, ns)
	if !ok {
		m.logger.Debugw("dropping answer for unknown link", "peer", from, "namespace", ns)
		return nil
	}
	return l.HandleAnswer(ctx, sdp)
}

// HandleCandidate routes a remote ICE candidate, creating the link when the
// candidate raced ahead of the peer's offer.
func (m *Manager) HandleCandidate(from domain.ParticipantID, ns domain.Namespace, candidate string) error {
	l, err := m.Ensure(from, ns)
	if err != nil {
		return err
	}
	return l.HandleCandidate(candidate)
}

// ClosePeer tears down every lane to the peer. Called on peer_left; the
// departed id can never be routed to again, so nothing survives.
func (m *Manager) ClosePeer(peer domain.ParticipantID) {
	m.mu.Lock()
	defer m.mu.Unlock()

	for key, l := range m.links {
		if key.peer != peer {
			continue
		}
		if err := l.Close(); err != nil {
			m.logger.Debugw("error closing link", "peer", peer, "namespace", key.ns, "error", err)
		}
		delete(m.links, key)
	}
}

// CloseNamespace tears down one lane to the peer, leaving the other intact.
func (m *Manager) CloseNamespace(peer domain.ParticipantID, ns domain.Namespace) {
	m.mu.Lock()
	defer m.mu.Unlock()

	key := linkKey{peer: peer, ns: ns}
	if l, ok := m.links[key]; ok {
		l.Close()
		delete(m.links, key)
	}
}

// CloseAll tears down every link. Used at session shutdown.
func (m *Manager) CloseAll() {
	m.mu.Lock()
	defer m.mu.Unlock()

	for key, l := range m.links {
		l.Close()
		delete(m.links, key)
	}
}

// LinkCount reports how many live links the manager holds.
func (m *Manager) LinkCount() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.links)
}
