package signal

import (
	"context"
	"errors"
	"net/http"
	"sync"
	"time"

	"vroom/internal/core/domain"
	"vroom/internal/core/ports"
	"vroom/internal/infrastructure/monitoring"
	"vroom/internal/wire"
	"vroom/pkg/tracing"

	"github.com/gorilla/websocket"
	"go.uber.org/zap"
	"golang.org/x/time/rate"
)

var upgrader = websocket.Upgrader{
	CheckOrigin: func(r *http.Request) bool {
		return true // Should be configured properly for production
	},
	ReadBufferSize:  1024,
	WriteBufferSize: 1024,
}

// Options carries the relay's connection tuning, taken from config.
type Options struct {
	PingInterval time.Duration
	PongTimeout  time.Duration
	ReadTimeout  time.Duration
	WriteTimeout time.Duration

	RateLimitEnabled  bool
	MessagesPerSecond float64
	Burst             int
}

// Server is the signaling relay. It admits connections into rooms, routes
// targeted negotiation envelopes, fans out room broadcasts, and drives the
// disconnect cascade. All compound operations on one room are serialized
// behind that room's mutex; traffic for different rooms proceeds in parallel.
type Server struct {
	rooms  ports.RoomService
	shares ports.ShareAllocator

	connections map[domain.ParticipantID]*client
	mu          sync.RWMutex

	// roomLocks entries live for the process lifetime; rooms are few and the
	// mutexes are small.
	roomLocks map[domain.RoomID]*sync.Mutex
	lockMu    sync.Mutex

	opts    Options
	metrics *monitoring.Collector
	logger  *zap.SugaredLogger
}

// client is one live connection. writes are guarded so broadcasts and
// targeted sends from different goroutines never interleave a frame.
type client struct {
	conn    *websocket.Conn
	id      domain.ParticipantID
	roomID  domain.RoomID
	name    string
	writeMu sync.Mutex
	limiter *rate.Limiter
}

func NewServer(rooms ports.RoomService, shares ports.ShareAllocator, metrics *monitoring.Collector, opts Options, logger *zap.SugaredLogger) *Server {
	if opts.PingInterval <= 0 {
		opts.PingInterval = 30 * time.Second
	}
	if opts.PongTimeout <= 0 {
		opts.PongTimeout = 60 * time.Second
	}
	if opts.ReadTimeout <= 0 {
		opts.ReadTimeout = 60 * time.Second
	}
	if opts.WriteTimeout <= 0 {
		opts.WriteTimeout = 10 * time.Second
	}

	return &Server{
		rooms:       rooms,
		shares:      shares,
		connections: make(map[domain.ParticipantID]*client),
		roomLocks:   make(map[domain.RoomID]*sync.Mutex),
		opts:        opts,
		metrics:     metrics,
		logger:      logger,
	}
}

func (s *Server) roomLock(roomID domain.RoomID) *sync.Mutex {
	s.lockMu.Lock()
	defer s.lockMu.Unlock()

	l, ok := s.roomLocks[roomID]
	if !ok {
		l = &sync.Mutex{}
		s.roomLocks[roomID] = l
	}
	return l
}

// HandleWebSocket upgrades the connection and runs its read loop until the
// peer disconnects. The first envelope must be a join; the room id may also
// be supplied as a query parameter at connect time.
func (s *Server) HandleWebSocket(w http.ResponseWriter, r *http.Request) {
	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		s.logger.Errorw("websocket upgrade failed", "error", err)
		return
	}
	defer conn.Close()

	c, err := s.admit(conn, r)
	if err != nil {
		s.logger.Infow("connection rejected", "remote_addr", r.RemoteAddr, "error", err)
		s.writeError(conn, err.Error())
		return
	}

	s.metrics.ParticipantConnected()
	s.logger.Infow("participant connected",
		"participant_id", c.id,
		"room_id", c.roomID,
		"remote_addr", r.RemoteAddr,
	)

	conn.SetReadDeadline(time.Now().Add(s.opts.ReadTimeout))
	conn.SetPongHandler(func(string) error {
		conn.SetReadDeadline(time.Now().Add(s.opts.ReadTimeout))
		return nil
	})

	pingTicker := time.NewTicker(s.opts.PingInterval)
	defer pingTicker.Stop()

	messageChan := make(chan wire.Envelope, 16)
	errorChan := make(chan error, 1)

	go func() {
		for {
			var env wire.Envelope
			if err := conn.ReadJSON(&env); err != nil {
				errorChan <- err
				return
			}
			conn.SetReadDeadline(time.Now().Add(s.opts.ReadTimeout))
			messageChan <- env
		}
	}()

	for {
		select {
		case env := <-messageChan:
			if c.limiter != nil && !c.limiter.Allow() {
				s.logger.Warnw("message rate limit exceeded, dropping",
					"participant_id", c.id, "type", env.Type)
				continue
			}
			if err := s.handleMessage(context.Background(), c, env); err != nil {
				s.logger.Infow("error handling message",
					"participant_id", c.id, "type", env.Type, "error", err)
				s.writeError(conn, err.Error())
			}

		case <-pingTicker.C:
			conn.SetWriteDeadline(time.Now().Add(s.opts.WriteTimeout))
			if err := conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				s.logger.Infow("error sending ping", "participant_id", c.id, "error", err)
				goto cleanup
			}

		case err := <-errorChan:
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure) {
				s.logger.Infow("read error", "participant_id", c.id, "error", err)
			}
			goto cleanup
		}
	}

cleanup:
	s.disconnect(context.Background(), c)
}

// admit performs the join handshake: the joiner's snapshot is written before
// anyone else can observe the join broadcast.
func (s *Server) admit(conn *websocket.Conn, r *http.Request) (*client, error) {
	conn.SetReadDeadline(time.Now().Add(s.opts.ReadTimeout))

	var env wire.Envelope
	if err := conn.ReadJSON(&env); err != nil {
		return nil, errors.New("expected join message")
	}
	if env.Type != wire.TypeJoin {
		return nil, errors.New("first message must be join")
	}

	var join wire.Join
	if err := env.Decode(&join); err != nil {
		return nil, err
	}
	if room := r.URL.Query().Get("room"); room != "" {
		join.Room = room
	}

	roomID := domain.RoomID(join.Room)
	lock := s.roomLock(roomID)
	lock.Lock()
	defer lock.Unlock()

	p, snapshot, err := s.rooms.Join(context.Background(), roomID, join.Name)
	if err != nil {
		return nil, err
	}

	c := &client{
		conn:   conn,
		id:     p.ID,
		roomID: p.RoomID,
		name:   p.Name,
	}
	if s.opts.RateLimitEnabled {
		c.limiter = rate.NewLimiter(rate.Limit(s.opts.MessagesPerSecond), s.opts.Burst)
	}

	s.mu.Lock()
	s.connections[p.ID] = c
	s.mu.Unlock()

	members := make([]wire.Member, 0, len(snapshot))
	for _, m := range snapshot {
		members = append(members, wire.Member{
			ID:           m.ID,
			Name:         m.Name,
			Transform:    m.Transform,
			Capabilities: m.Capabilities,
		})
	}

	initial, err := wire.NewEnvelope(wire.TypeInitialState, wire.InitialState{
		SelfID:       p.ID,
		Room:         string(p.RoomID),
		Participants: members,
	})
	if err != nil {
		return nil, err
	}
	if err := s.writeTo(c, initial); err != nil {
		s.unregister(c)
		s.rooms.Leave(context.Background(), p.ID)
		return nil, errors.New("failed to deliver initial state")
	}

	joined, _ := wire.NewEnvelope(wire.TypePeerJoined, wire.PeerJoined{ID: p.ID, Name: p.Name})
	s.broadcast(context.Background(), c.roomID, c.id, joined)

	s.updateRoomGauge(context.Background())
	return c, nil
}

// disconnect is the single teardown path: the screen-share slot (if held) is
// released and peer_left is broadcast in the same serialized room step, so no
// other participant can observe a stale holder or route to the departed id.
func (s *Server) disconnect(ctx context.Context, c *client) {
	lock := s.roomLock(c.roomID)
	lock.Lock()
	defer lock.Unlock()

	s.unregister(c)

	released, err := s.shares.Release(ctx, c.roomID, c.id)
	if err != nil {
		s.logger.Warnw("failed to release screen share on disconnect",
			"participant_id", c.id, "error", err)
	}
	if released {
		s.metrics.ShareReleased()
		env, _ := wire.NewEnvelope(wire.TypeScreenShareReleased, wire.ScreenShareReleased{ID: c.id})
		s.broadcast(ctx, c.roomID, c.id, env)
	}

	if _, err := s.rooms.Leave(ctx, c.id); err != nil && !errors.Is(err, domain.ErrParticipantNotFound) {
		s.logger.Warnw("failed to remove participant", "participant_id", c.id, "error", err)
	}

	left, _ := wire.NewEnvelope(wire.TypePeerLeft, wire.PeerLeft{ID: c.id})
	s.broadcast(ctx, c.roomID, c.id, left)

	s.metrics.ParticipantDisconnected()
	s.updateRoomGauge(ctx)
	s.logger.Infow("participant disconnected", "participant_id", c.id, "room_id", c.roomID)
}

func (s *Server) unregister(c *client) {
	s.mu.Lock()
	delete(s.connections, c.id)
	s.mu.Unlock()
}

func (s *Server) handleMessage(ctx context.Context, c *client, env wire.Envelope) error {
	if env.Type == "" {
		return errors.New("message type is required")
	}

	ctx, span := tracing.TraceSignalMessage(ctx, string(env.Type), string(c.id))
	defer span.End()

	s.metrics.MessageRouted(string(env.Type))

	switch env.Type {
	case wire.TypeOffer, wire.TypeAnswer, wire.TypeICECandidate:
		return s.handleNegotiation(ctx, c, env)
	case wire.TypeTransformUpdate:
		return s.handleTransformUpdate(ctx, c, env)
	case wire.TypeScreenShareRequest:
		return s.handleShareRequest(ctx, c)
	case wire.TypeScreenShareRelease:
		return s.handleShareRelease(ctx, c)
	case wire.TypeChatMessage:
		return s.handleChat(ctx, c, env)
	case wire.TypeJoin:
		return errors.New("already joined")
	default:
		return errors.New("unknown message type: " + string(env.Type))
	}
}

// handleNegotiation relays offer/answer/ice_candidate envelopes verbatim to
// their target. A missing recipient is not an error: the peer raced a
// disconnect and the message is dropped silently.
func (s *Server) handleNegotiation(ctx context.Context, c *client, env wire.Envelope) error {
	if env.To == "" {
		return errors.New("negotiation message requires a target")
	}
	if !env.Namespace.Valid() {
		return domain.ErrInvalidNamespace
	}

	env.From = c.id
	if !s.sendTo(env.To, env) {
		s.metrics.MessageDropped()
		s.logger.Debugw("negotiation target gone, dropping",
			"from", c.id, "to", env.To, "type", env.Type, "namespace", env.Namespace)
	}
	return nil
}

func (s *Server) handleTransformUpdate(ctx context.Context, c *client, env wire.Envelope) error {
	var update wire.TransformUpdate
	if err := env.Decode(&update); err != nil {
		return err
	}

	transform := domain.Transform{Position: update.Position, Rotation: update.Rotation}

	lock := s.roomLock(c.roomID)
	lock.Lock()
	defer lock.Unlock()

	if err := s.rooms.UpdateTransform(ctx, c.id, transform); err != nil {
		if errors.Is(err, domain.ErrParticipantNotFound) {
			return nil // stale update after teardown; drop
		}
		return err
	}

	update.ID = c.id
	out, err := wire.NewEnvelope(wire.TypeTransformUpdate, update)
	if err != nil {
		return err
	}
	s.broadcast(ctx, c.roomID, c.id, out)
	return nil
}

// handleShareRequest runs admission control. The check happens before the
// requester captures a display stream, so a denial never triggers a capture
// prompt client-side.
func (s *Server) handleShareRequest(ctx context.Context, c *client) error {
	lock := s.roomLock(c.roomID)
	lock.Lock()
	defer lock.Unlock()

	granted, err := s.shares.Request(ctx, c.roomID, c.id)
	if err != nil {
		return err
	}
	if granted {
		s.metrics.ShareGranted()
		if p, err := s.rooms.Get(ctx, c.id); err == nil {
			caps := p.Capabilities
			caps.ScreenShare = true
			s.rooms.SetCapabilities(ctx, c.id, caps)
		}
	}

	reply, err := wire.NewEnvelope(wire.TypeScreenShareGrant, wire.ScreenShareGrant{Granted: granted})
	if err != nil {
		return err
	}
	reply.To = c.id
	return s.writeTo(c, reply)
}

func (s *Server) handleShareRelease(ctx context.Context, c *client) error {
	lock := s.roomLock(c.roomID)
	lock.Lock()
	defer lock.Unlock()

	released, err := s.shares.Release(ctx, c.roomID, c.id)
	if err != nil {
		return err
	}
	if !released {
		return nil // double release is a no-op
	}

	s.metrics.ShareReleased()
	if p, err := s.rooms.Get(ctx, c.id); err == nil {
		caps := p.Capabilities
		caps.ScreenShare = false
		s.rooms.SetCapabilities(ctx, c.id, caps)
	}

	env, err := wire.NewEnvelope(wire.TypeScreenShareReleased, wire.ScreenShareReleased{ID: c.id})
	if err != nil {
		return err
	}
	s.broadcast(ctx, c.roomID, c.id, env)
	return nil
}

func (s *Server) handleChat(ctx context.Context, c *client, env wire.Envelope) error {
	var chat wire.Chat
	if err := env.Decode(&chat); err != nil {
		return err
	}

	out, err := wire.NewEnvelope(wire.TypeChatMessage, wire.ChatBroadcast{
		ID:   c.id,
		Name: c.name,
		Text: chat.Text,
	})
	if err != nil {
		return err
	}

	lock := s.roomLock(c.roomID)
	lock.Lock()
	defer lock.Unlock()

	s.broadcast(ctx, c.roomID, c.id, out)
	return nil
}

// broadcast delivers env to every current member of the room except exclude.
// Members without a live connection on this relay are skipped.
func (s *Server) broadcast(ctx context.Context, roomID domain.RoomID, exclude domain.ParticipantID, env wire.Envelope) {
	members, err := s.rooms.Members(ctx, roomID)
	if err != nil {
		return
	}

	s.metrics.Broadcast()
	for _, m := range members {
		if m.ID == exclude {
			continue
		}
		s.sendTo(m.ID, env)
	}
}

// sendTo writes env to the participant's connection. Returns false when the
// participant is no longer connected.
func (s *Server) sendTo(id domain.ParticipantID, env wire.Envelope) bool {
	s.mu.RLock()
	c, ok := s.connections[id]
	s.mu.RUnlock()
	if !ok {
		return false
	}

	if err := s.writeTo(c, env); err != nil {
		s.logger.Debugw("write failed", "participant_id", id, "error", err)
		return false
	}
	return true
}

func (s *Server) writeTo(c *client, env wire.Envelope) error {
	c.writeMu.Lock()
	defer c.writeMu.Unlock()
	c.conn.SetWriteDeadline(time.Now().Add(s.opts.WriteTimeout))
	return c.conn.WriteJSON(env)
}

func (s *Server) writeError(conn *websocket.Conn, message string) {
	env, err := wire.NewEnvelope(wire.TypeError, wire.Error{Message: message})
	if err != nil {
		return
	}
	conn.SetWriteDeadline(time.Now().Add(s.opts.WriteTimeout))
	conn.WriteJSON(env)
}

func (s *Server) updateRoomGauge(ctx context.Context) {
	if n, err := s.rooms.RoomCount(ctx); err == nil {
		s.metrics.SetRoomsActive(n)
	}
}

// ConnectionCount reports how many participants are connected to this relay.
func (s *Server) ConnectionCount() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.connections)
}

// IsConnected reports whether the participant has a live connection.
func (s *Server) IsConnected(id domain.ParticipantID) bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	_, ok := s.connections[id]
	return ok
}
