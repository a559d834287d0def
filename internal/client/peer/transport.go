package peer

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"time"

	"vroom/internal/client/media"
	"vroom/internal/core/domain"

	"github.com/pion/rtcp"
	"github.com/pion/webrtc/v3"
	"go.uber.org/zap"
)

// ConnState is the link-level view of the underlying transport's health.
type ConnState int

const (
	ConnStateNew ConnState = iota
	ConnStateConnecting
	ConnStateConnected
	ConnStateDisconnected
	ConnStateFailed
	ConnStateClosed
)

func (s ConnState) String() string {
	switch s {
	case ConnStateNew:
		return "new"
	case ConnStateConnecting:
		return "connecting"
	case ConnStateConnected:
		return "connected"
	case ConnStateDisconnected:
		return "disconnected"
	case ConnStateFailed:
		return "failed"
	case ConnStateClosed:
		return "closed"
	default:
		return "unknown"
	}
}

// TrackInfo describes a remote media track that started arriving on a link.
type TrackInfo struct {
	ID       string
	StreamID string
	Kind     string // "audio" or "video"
}

// Events receives transport callbacks. All methods may be called from
// transport-internal goroutines.
type Events interface {
	// OnLocalCandidate fires for each ICE candidate discovered locally. The
	// candidate is a JSON-encoded init blob ready for the wire.
	OnLocalCandidate(ns domain.Namespace, candidate string)

	// OnStateChange fires when the transport's connection state moves.
	OnStateChange(ns domain.Namespace, state ConnState)

	// OnRemoteTrack fires once per inbound media track.
	OnRemoteTrack(ns domain.Namespace, info TrackInfo)

	// OnNegotiationNeeded fires when local changes require a fresh offer.
	OnNegotiationNeeded(ns domain.Namespace)
}

// Transport is one peer connection. Link drives it through the offer/answer
// dance; the concrete binding hides the WebRTC engine so Link logic can be
// tested against a fake.
type Transport interface {
	CreateOffer(ctx context.Context) (string, error)
	CreateAnswer(ctx context.Context, remoteOffer string) (string, error)
	AcceptAnswer(ctx context.Context, remoteAnswer string) error

	// Rollback discards a pending local offer so a remote one can be
	// accepted instead. Used to resolve offer glare.
	Rollback() error

	AddRemoteCandidate(candidate string) error
	AddSource(src media.Source) error
	Close() error
}

// TransportFactory builds a fresh transport for a link, including after a
// forced restart.
type TransportFactory func(ns domain.Namespace, events Events) (Transport, error)

// webrtcTransport binds Transport to a pion PeerConnection.
type webrtcTransport struct {
	pc     *webrtc.PeerConnection
	ns     domain.Namespace
	events Events
	logger *zap.SugaredLogger
}

// NewWebRTCFactory returns a TransportFactory backed by pion using the given
// ICE servers.
func NewWebRTCFactory(iceServers []webrtc.ICEServer, logger *zap.SugaredLogger) TransportFactory {
	return func(ns domain.Namespace, events Events) (Transport, error) {
		pc, err := webrtc.NewPeerConnection(webrtc.Configuration{ICEServers: iceServers})
		if err != nil {
			return nil, fmt.Errorf("failed to create peer connection: %w", err)
		}

		t := &webrtcTransport{pc: pc, ns: ns, events: events, logger: logger}

		pc.OnICECandidate(func(c *webrtc.ICECandidate) {
			if c == nil {
				return
			}
			blob, err := json.Marshal(c.ToJSON())
			if err != nil {
				logger.Warnw("failed to marshal ICE candidate", "error", err)
				return
			}
			events.OnLocalCandidate(ns, string(blob))
		})

		pc.OnConnectionStateChange(func(s webrtc.PeerConnectionState) {
			events.OnStateChange(ns, mapConnState(s))
		})

		pc.OnTrack(func(tr *webrtc.TrackRemote, _ *webrtc.RTPReceiver) {
			info := TrackInfo{
				ID:       tr.ID(),
				StreamID: tr.StreamID(),
				Kind:     tr.Kind().String(),
			}
			events.OnRemoteTrack(ns, info)

			if tr.Kind() == webrtc.RTPCodecTypeVideo {
				go t.sendPLILoop(tr.SSRC())
			}
			go t.drainTrack(tr)
		})

		pc.OnNegotiationNeeded(func() {
			events.OnNegotiationNeeded(ns)
		})

		return t, nil
	}
}

func mapConnState(s webrtc.PeerConnectionState) ConnState {
	switch s {
	case webrtc.PeerConnectionStateNew:
		return ConnStateNew
	case webrtc.PeerConnectionStateConnecting:
		return ConnStateConnecting
	case webrtc.PeerConnectionStateConnected:
		return ConnStateConnected
	case webrtc.PeerConnectionStateDisconnected:
		return ConnStateDisconnected
	case webrtc.PeerConnectionStateFailed:
		return ConnStateFailed
	default:
		return ConnStateClosed
	}
}

func (t *webrtcTransport) CreateOffer(ctx context.Context) (string, error) {
	offer, err := t.pc.CreateOffer(nil)
	if err != nil {
		return "", fmt.Errorf("failed to create offer: %w", err)
	}
	if err := t.pc.SetLocalDescription(offer); err != nil {
		return "", fmt.Errorf("failed to set local offer: %w", err)
	}
	return offer.SDP, nil
}

func (t *webrtcTransport) CreateAnswer(ctx context.Context, remoteOffer string) (string, error) {
	desc := webrtc.SessionDescription{Type: webrtc.SDPTypeOffer, SDP: remoteOffer}
	if err := t.pc.SetRemoteDescription(desc); err != nil {
		return "", fmt.Errorf("failed to set remote offer: %w", err)
	}

	answer, err := t.pc.CreateAnswer(nil)
	if err != nil {
		return "", fmt.Errorf("failed to create answer: %w", err)
	}
	if err := t.pc.SetLocalDescription(answer); err != nil {
		return "", fmt.Errorf("failed to set local answer: %w", err)
	}
	return answer.SDP, nil
}

func (t *webrtcTransport) AcceptAnswer(ctx context.Context, remoteAnswer string) error {
	desc := webrtc.SessionDescription{Type: webrtc.SDPTypeAnswer, SDP: remoteAnswer}
	if err := t.pc.SetRemoteDescription(desc); err != nil {
		return fmt.Errorf("failed to set remote answer: %w", err)
	}
	return nil
}

func (t *webrtcTransport) Rollback() error {
	return t.pc.SetLocalDescription(webrtc.SessionDescription{Type: webrtc.SDPTypeRollback})
}

func (t *webrtcTransport) AddRemoteCandidate(candidate string) error {
	var init webrtc.ICECandidateInit
	if err := json.Unmarshal([]byte(candidate), &init); err != nil {
		return fmt.Errorf("invalid ICE candidate: %w", err)
	}
	return t.pc.AddICECandidate(init)
}

// AddSource attaches a local media source as an outbound track and starts
// pumping its packets.
func (t *webrtcTransport) AddSource(src media.Source) error {
	track, err := webrtc.NewTrackLocalStaticRTP(src.Codec(), src.ID(), src.StreamID())
	if err != nil {
		return fmt.Errorf("failed to create local track: %w", err)
	}

	sender, err := t.pc.AddTrack(track)
	if err != nil {
		return fmt.Errorf("failed to add track: %w", err)
	}

	go t.drainRTCP(sender, src)

	go func() {
		for {
			pkt, err := src.ReadPacket()
			if err != nil {
				if !errors.Is(err, io.EOF) {
					t.logger.Debugw("media source stopped", "track_id", src.ID(), "error", err)
				}
				return
			}
			if err := track.WriteRTP(pkt); err != nil {
				if errors.Is(err, io.ErrClosedPipe) {
					return
				}
				t.logger.Debugw("failed to write RTP", "track_id", src.ID(), "error", err)
			}
		}
	}()

	return nil
}

// drainRTCP reads sender reports so interceptors run, and forwards keyframe
// requests to the source.
func (t *webrtcTransport) drainRTCP(sender *webrtc.RTPSender, src media.Source) {
	buf := make([]byte, 1500)
	for {
		n, _, err := sender.Read(buf)
		if err != nil {
			return
		}
		packets, err := rtcp.Unmarshal(buf[:n])
		if err != nil {
			continue
		}
		for _, pkt := range packets {
			if _, ok := pkt.(*rtcp.PictureLossIndication); ok {
				src.RequestKeyframe()
			}
		}
	}
}

// drainTrack consumes inbound RTP so the receive path never stalls. Decoded
// playback is the renderer's concern, not the transport's.
func (t *webrtcTransport) drainTrack(tr *webrtc.TrackRemote) {
	buf := make([]byte, 1500)
	for {
		if _, _, err := tr.Read(buf); err != nil {
			return
		}
	}
}

// sendPLILoop periodically asks the sender for a keyframe so late joiners see
// video without waiting for the next natural keyframe.
func (t *webrtcTransport) sendPLILoop(ssrc webrtc.SSRC) {
	ticker := time.NewTicker(3 * time.Second)
	defer ticker.Stop()
	for range ticker.C {
		err := t.pc.WriteRTCP([]rtcp.Packet{&rtcp.PictureLossIndication{MediaSSRC: uint32(ssrc)}})
		if err != nil {
			return
		}
	}
}

func (t *webrtcTransport) Close() error {
	return t.pc.Close()
}
