// Package client implements a room participant: one signaling connection,
// one link per peer per namespace, presence filtering and media attachment,
// all driven by a single event loop.
package client

import (
	"context"
	"fmt"
	"time"

	"vroom/internal/client/media"
	"vroom/internal/client/peer"
	"vroom/internal/client/presence"
	"vroom/internal/client/render"
	"vroom/internal/client/signaling"
	"vroom/internal/core/domain"
	"vroom/internal/wire"

	"go.uber.org/zap"
)

// MediaFactory returns fresh outbound sources for one primary link.
type MediaFactory func() []media.Source

// ShareFactory returns a fresh screen capture source for one screen-share
// link.
type ShareFactory func() media.Source

// Options configures a session.
type Options struct {
	ServerURL string
	Room      string
	Name      string

	Factory  peer.TransportFactory
	Renderer render.Renderer
	Logger   *zap.SugaredLogger

	NegotiationTimeout time.Duration
	PositionThreshold  float64
	RotationThreshold  float64
	MaxUpdateRate      float64
	SampleInterval     time.Duration

	// Media is optional; a session without it negotiates data-only links.
	Media MediaFactory
	Share ShareFactory
}

// Session is one participant's end of the room. All room state is owned by
// the Run loop; external calls hand work to the loop instead of touching
// state directly.
type Session struct {
	opts Options

	sig     *signaling.Client
	manager *peer.Manager
	tracker *presence.Tracker

	selfID domain.ParticipantID

	commands chan func()
	stopped  chan struct{}

	// Loop-owned state.
	local        domain.Transform
	hasLocal     bool
	sharePending bool
	shareActive  bool
	remoteShares map[domain.ParticipantID]bool
}

func NewSession(opts Options) (*Session, error) {
	if opts.ServerURL == "" {
		return nil, fmt.Errorf("server url is required")
	}
	if opts.Factory == nil {
		return nil, fmt.Errorf("transport factory is required")
	}
	if opts.Renderer == nil {
		opts.Renderer = render.Nop{}
	}
	if opts.Logger == nil {
		opts.Logger = zap.NewNop().Sugar()
	}
	if opts.NegotiationTimeout <= 0 {
		opts.NegotiationTimeout = 10 * time.Second
	}
	if opts.SampleInterval <= 0 {
		opts.SampleInterval = 33 * time.Millisecond
	}

	return &Session{
		opts:         opts,
		commands:     make(chan func(), 64),
		stopped:      make(chan struct{}),
		remoteShares: make(map[domain.ParticipantID]bool),
	}, nil
}

// SelfID returns the relay-assigned id. Valid after Run has connected.
func (s *Session) SelfID() domain.ParticipantID { return s.selfID }

// Run connects, joins the room and processes events until ctx is cancelled
// or the connection drops.
func (s *Session) Run(ctx context.Context) error {
	defer close(s.stopped)

	sig, initial, err := signaling.Dial(ctx, s.opts.ServerURL, s.opts.Room, s.opts.Name, s.opts.Logger)
	if err != nil {
		return err
	}
	defer sig.Close()

	s.sig = sig
	s.selfID = initial.SelfID
	s.tracker = presence.NewTracker(s.opts.PositionThreshold, s.opts.RotationThreshold, s.opts.MaxUpdateRate)
	s.manager = peer.NewManager(s.selfID, s.opts.Factory, sig, s.observer(), s.opts.NegotiationTimeout, s.opts.Logger)
	defer s.manager.CloseAll()

	s.opts.Logger.Infow("joined room",
		"self_id", s.selfID, "room", initial.Room, "peers", len(initial.Participants))

	// The newcomer initiates; everyone already present just answers.
	for _, m := range initial.Participants {
		s.tracker.AddPeer(m.ID, m.Transform)
		s.opts.Renderer.ParticipantEntered(m.ID, m.Name, m.Transform)
		if err := s.dialPeer(ctx, m.ID); err != nil {
			s.opts.Logger.Warnw("failed to dial peer", "peer", m.ID, "error", err)
		}
	}

	sampler := time.NewTicker(s.opts.SampleInterval)
	defer sampler.Stop()

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()

		case env, ok := <-sig.Messages():
			if !ok {
				return fmt.Errorf("signaling connection lost: %w", sig.Err())
			}
			s.handleEnvelope(ctx, env)

		case cmd := <-s.commands:
			cmd()

		case <-sampler.C:
			s.sampleTransform()
		}
	}
}

// dialPeer opens the primary link to a peer and attaches local media.
func (s *Session) dialPeer(ctx context.Context, id domain.ParticipantID) error {
	l, err := s.manager.Ensure(id, domain.NamespacePrimary)
	if err != nil {
		return err
	}
	if s.opts.Media != nil {
		for _, src := range s.opts.Media() {
			if err := l.AddSource(src); err != nil {
				s.opts.Logger.Warnw("failed to attach source", "peer", id, "error", err)
			}
		}
		// AddSource raises negotiation-needed, which sends the offer.
		return nil
	}
	return l.Offer(ctx)
}

func (s *Session) handleEnvelope(ctx context.Context, env wire.Envelope) {
	switch env.Type {
	case wire.TypeOffer, wire.TypeAnswer, wire.TypeICECandidate:
		s.handleNegotiation(ctx, env)

	case wire.TypePeerJoined:
		var joined wire.PeerJoined
		if err := env.Decode(&joined); err != nil {
			s.opts.Logger.Warnw("bad peer_joined payload", "error", err)
			return
		}
		s.tracker.AddPeer(joined.ID, domain.IdentityTransform())
		s.opts.Renderer.ParticipantEntered(joined.ID, joined.Name, domain.IdentityTransform())
		// The joiner dials us; if we are sharing, our screen lane dials them.
		if s.shareActive && s.opts.Share != nil {
			s.attachShare(joined.ID)
		}

	case wire.TypePeerLeft:
		var left wire.PeerLeft
		if err := env.Decode(&left); err != nil {
			s.opts.Logger.Warnw("bad peer_left payload", "error", err)
			return
		}
		s.manager.ClosePeer(left.ID)
		s.tracker.RemovePeer(left.ID)
		delete(s.remoteShares, left.ID)
		s.opts.Renderer.ParticipantLeft(left.ID)

	case wire.TypeTransformUpdate:
		var update wire.TransformUpdate
		if err := env.Decode(&update); err != nil {
			s.opts.Logger.Warnw("bad transform_update payload", "error", err)
			return
		}
		transform := domain.Transform{Position: update.Position, Rotation: update.Rotation}
		if s.tracker.ApplyRemote(update.ID, transform) {
			s.opts.Renderer.ParticipantMoved(update.ID, transform)
		}

	case wire.TypeScreenShareGrant:
		var grant wire.ScreenShareGrant
		if err := env.Decode(&grant); err != nil {
			return
		}
		s.handleShareGrant(grant.Granted)

	case wire.TypeScreenShareReleased:
		var released wire.ScreenShareReleased
		if err := env.Decode(&released); err != nil {
			return
		}
		delete(s.remoteShares, released.ID)
		if !s.shareActive {
			s.manager.CloseNamespace(released.ID, domain.NamespaceScreenShare)
		}

	case wire.TypeChatMessage:
		var chat wire.ChatBroadcast
		if err := env.Decode(&chat); err != nil {
			return
		}
		s.opts.Renderer.ChatReceived(chat.ID, chat.Name, chat.Text)

	case wire.TypeError:
		var werr wire.Error
		env.Decode(&werr)
		s.opts.Logger.Warnw("relay error", "message", werr.Message)

	default:
		s.opts.Logger.Debugw("ignoring unknown message", "type", env.Type)
	}
}

func (s *Session) handleNegotiation(ctx context.Context, env wire.Envelope) {
	if !env.Namespace.Valid() || env.From == "" {
		s.opts.Logger.Debugw("dropping malformed negotiation message", "type", env.Type)
		return
	}

	var err error
	switch env.Type {
	case wire.TypeOffer:
		var sdp wire.SDP
		if err = env.Decode(&sdp); err == nil {
			err = s.manager.HandleOffer(ctx, env.From, env.Namespace, sdp.SDP)
		}
	case wire.TypeAnswer:
		var sdp wire.SDP
		if err = env.Decode(&sdp); err == nil {
			err = s.manager.HandleAnswer(ctx, env.From, env.Namespace, sdp.SDP)
		}
	case wire.TypeICECandidate:
		var cand wire.ICECandidate
		if err = env.Decode(&cand); err == nil {
			err = s.manager.HandleCandidate(env.From, env.Namespace, cand.Candidate)
		}
	}
	if err != nil {
		s.opts.Logger.Warnw("negotiation failed",
			"type", env.Type, "peer", env.From, "namespace", env.Namespace, "error", err)
	}
}

func (s *Session) handleShareGrant(granted bool) {
	if !s.sharePending {
		return
	}
	s.sharePending = false

	if !granted {
		s.opts.Logger.Infow("screen share denied, room at capacity")
		return
	}
	// Capture starts only after the grant, never before.
	s.shareActive = true
	for id := range s.tracker.Peers() {
		s.attachShare(id)
	}
	s.opts.Logger.Infow("screen share granted")
}

func (s *Session) attachShare(id domain.ParticipantID) {
	l, err := s.manager.Ensure(id, domain.NamespaceScreenShare)
	if err != nil {
		s.opts.Logger.Warnw("failed to open screen-share lane", "peer", id, "error", err)
		return
	}
	if err := l.AddSource(s.opts.Share()); err != nil {
		s.opts.Logger.Warnw("failed to attach screen source", "peer", id, "error", err)
	}
}

// sampleTransform runs each sampler tick in the loop goroutine.
func (s *Session) sampleTransform() {
	if !s.hasLocal {
		return
	}
	if !s.tracker.Observe(s.local) {
		return
	}
	if err := s.sig.SendTransform(s.local.Position, s.local.Rotation); err != nil {
		s.opts.Logger.Debugw("failed to send transform", "error", err)
	}
}

// enqueue hands work to the loop; it is dropped when the session stopped.
func (s *Session) enqueue(cmd func()) {
	select {
	case s.commands <- cmd:
	case <-s.stopped:
	}
}

// SetTransform feeds the avatar's current transform. Threshold filtering and
// rate capping decide whether it reaches the wire.
func (s *Session) SetTransform(t domain.Transform) {
	s.enqueue(func() {
		s.local = t
		s.hasLocal = true
	})
}

// StartScreenShare asks the relay for a slot. Capture begins only if the
// grant comes back positive.
func (s *Session) StartScreenShare() {
	s.enqueue(func() {
		if s.shareActive || s.sharePending {
			return
		}
		if s.opts.Share == nil {
			s.opts.Logger.Warnw("no screen source configured")
			return
		}
		s.sharePending = true
		if err := s.sig.RequestScreenShare(); err != nil {
			s.sharePending = false
			s.opts.Logger.Warnw("failed to request screen share", "error", err)
		}
	})
}

// StopScreenShare releases the slot and closes outbound-only screen lanes.
func (s *Session) StopScreenShare() {
	s.enqueue(func() {
		if !s.shareActive {
			return
		}
		s.shareActive = false
		if err := s.sig.ReleaseScreenShare(); err != nil {
			s.opts.Logger.Warnw("failed to release screen share", "error", err)
		}
		for id := range s.tracker.Peers() {
			if !s.remoteShares[id] {
				s.manager.CloseNamespace(id, domain.NamespaceScreenShare)
			}
		}
	})
}

// SendChat broadcasts a chat line.
func (s *Session) SendChat(text string) {
	s.enqueue(func() {
		if err := s.sig.SendChat(text); err != nil {
			s.opts.Logger.Warnw("failed to send chat", "error", err)
		}
	})
}

// observer adapts link callbacks onto the loop goroutine so renderer calls
// stay serialized.
func (s *Session) observer() peer.Observer {
	return &sessionObserver{s: s}
}

type sessionObserver struct {
	s *Session
}

func (o *sessionObserver) LinkStateChanged(id domain.ParticipantID, ns domain.Namespace, state peer.ConnState) {
	o.s.enqueue(func() {
		o.s.opts.Renderer.LinkStateChanged(id, ns, state)
	})
}

func (o *sessionObserver) LinkTrackStarted(id domain.ParticipantID, ns domain.Namespace, info peer.TrackInfo) {
	o.s.enqueue(func() {
		if ns == domain.NamespaceScreenShare {
			o.s.remoteShares[id] = true
		}
		o.s.opts.Renderer.TrackStarted(id, ns, info)
	})
}
