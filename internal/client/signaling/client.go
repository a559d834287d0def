// Package signaling is the client side of the relay protocol: one websocket
// connection carrying JSON envelopes.
package signaling

import (
	"context"
	"fmt"
	"sync"
	"time"

	"vroom/internal/core/domain"
	"vroom/internal/wire"

	"github.com/gorilla/websocket"
	"go.uber.org/zap"
)

const writeTimeout = 10 * time.Second

// Client is a connected signaling session. Reads are delivered on Messages;
// sends are safe from any goroutine.
type Client struct {
	conn   *websocket.Conn
	selfID domain.ParticipantID
	room   string
	logger *zap.SugaredLogger

	writeMu sync.Mutex

	messages chan wire.Envelope
	done     chan struct{}
	closeOne sync.Once
	readErr  error
}

// Dial connects to the relay, joins the room and waits for the initial state.
// The returned snapshot lists the members present before this client joined.
func Dial(ctx context.Context, url, room, name string, logger *zap.SugaredLogger) (*Client, *wire.InitialState, error) {
	conn, _, err := websocket.DefaultDialer.DialContext(ctx, url, nil)
	if err != nil {
		return nil, nil, fmt.Errorf("failed to dial relay: %w", err)
	}

	c := &Client{
		conn:     conn,
		room:     room,
		logger:   logger,
		messages: make(chan wire.Envelope, 64),
		done:     make(chan struct{}),
	}

	join, err := wire.NewEnvelope(wire.TypeJoin, wire.Join{Room: room, Name: name})
	if err != nil {
		conn.Close()
		return nil, nil, err
	}
	if err := c.Send(join); err != nil {
		conn.Close()
		return nil, nil, err
	}

	var env wire.Envelope
	if err := conn.ReadJSON(&env); err != nil {
		conn.Close()
		return nil, nil, fmt.Errorf("failed to read initial state: %w", err)
	}
	switch env.Type {
	case wire.TypeInitialState:
	case wire.TypeError:
		var werr wire.Error
		env.Decode(&werr)
		conn.Close()
		return nil, nil, fmt.Errorf("relay rejected join: %s", werr.Message)
	default:
		conn.Close()
		return nil, nil, fmt.Errorf("expected initial_state, got %s", env.Type)
	}

	var initial wire.InitialState
	if err := env.Decode(&initial); err != nil {
		conn.Close()
		return nil, nil, err
	}
	c.selfID = initial.SelfID
	c.room = initial.Room

	go c.readLoop()
	return c, &initial, nil
}

// SelfID returns the relay-assigned participant id.
func (c *Client) SelfID() domain.ParticipantID { return c.selfID }

// Room returns the joined room id.
func (c *Client) Room() string { return c.room }

// Messages returns the inbound envelope stream. The channel closes when the
// connection drops; Err reports why.
func (c *Client) Messages() <-chan wire.Envelope { return c.messages }

// Err returns the read error that ended the connection, if any.
func (c *Client) Err() error {
	select {
	case <-c.done:
		return c.readErr
	default:
		return nil
	}
}

func (c *Client) readLoop() {
	defer close(c.messages)
	for {
		var env wire.Envelope
		if err := c.conn.ReadJSON(&env); err != nil {
			c.closeOne.Do(func() {
				c.readErr = err
				close(c.done)
			})
			return
		}
		select {
		case c.messages <- env:
		case <-c.done:
			return
		}
	}
}

// Send writes one envelope to the relay.
func (c *Client) Send(env wire.Envelope) error {
	c.writeMu.Lock()
	defer c.writeMu.Unlock()
	c.conn.SetWriteDeadline(time.Now().Add(writeTimeout))
	return c.conn.WriteJSON(env)
}

func (c *Client) sendPayload(t wire.Type, to domain.ParticipantID, ns domain.Namespace, payload interface{}) error {
	env, err := wire.NewEnvelope(t, payload)
	if err != nil {
		return err
	}
	env.To = to
	env.Namespace = ns
	return c.Send(env)
}

// SendOffer implements the link signaler.
func (c *Client) SendOffer(to domain.ParticipantID, ns domain.Namespace, sdp string) error {
	return c.sendPayload(wire.TypeOffer, to, ns, wire.SDP{SDP: sdp})
}

// SendAnswer implements the link signaler.
func (c *Client) SendAnswer(to domain.ParticipantID, ns domain.Namespace, sdp string) error {
	return c.sendPayload(wire.TypeAnswer, to, ns, wire.SDP{SDP: sdp})
}

// SendCandidate implements the link signaler.
func (c *Client) SendCandidate(to domain.ParticipantID, ns domain.Namespace, candidate string) error {
	return c.sendPayload(wire.TypeICECandidate, to, ns, wire.ICECandidate{Candidate: candidate})
}

// SendTransform publishes a presence sample.
func (c *Client) SendTransform(position domain.Vector3, rotation domain.Quaternion) error {
	env, err := wire.NewEnvelope(wire.TypeTransformUpdate, wire.TransformUpdate{
		Position: position,
		Rotation: rotation,
	})
	if err != nil {
		return err
	}
	return c.Send(env)
}

// RequestScreenShare asks the relay for a screen-share slot. The grant or
// denial arrives as a screen_share_grant envelope.
func (c *Client) RequestScreenShare() error {
	env, err := wire.NewEnvelope(wire.TypeScreenShareRequest, struct{}{})
	if err != nil {
		return err
	}
	return c.Send(env)
}

// ReleaseScreenShare gives the slot back.
func (c *Client) ReleaseScreenShare() error {
	env, err := wire.NewEnvelope(wire.TypeScreenShareRelease, struct{}{})
	if err != nil {
		return err
	}
	return c.Send(env)
}

// SendChat broadcasts a chat line to the room.
func (c *Client) SendChat(text string) error {
	env, err := wire.NewEnvelope(wire.TypeChatMessage, wire.Chat{Text: text})
	if err != nil {
		return err
	}
	return c.Send(env)
}

// Close shuts the connection down with a normal closure frame.
func (c *Client) Close() error {
	c.writeMu.Lock()
	c.conn.SetWriteDeadline(time.Now().Add(writeTimeout))
	c.conn.WriteMessage(websocket.CloseMessage,
		websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""))
	c.writeMu.Unlock()
	return c.conn.Close()
}
