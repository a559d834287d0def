// Package media provides local capture sources for a session's outbound
// tracks. Real capture devices live behind the Source interface; the
// synthetic implementations here produce valid RTP timing without hardware,
// which is what the headless agent and tests feed into their links.
package media

import (
	"io"
	"math/rand"
	"sync"
	"time"

	"github.com/pion/rtp"
	"github.com/pion/webrtc/v3"
)

// Source is one outbound media stream. ReadPacket blocks until the next
// packet is due and returns io.EOF once the source is closed.
type Source interface {
	ID() string
	StreamID() string
	Codec() webrtc.RTPCodecCapability

	ReadPacket() (*rtp.Packet, error)

	// RequestKeyframe asks the encoder to emit a keyframe soon. Sources
	// without an encoder treat it as a no-op.
	RequestKeyframe()

	Close() error
}

const (
	videoClockRate = 90000
	audioClockRate = 48000

	// Synthetic video pacing. Matches a modest capture profile so the pacing
	// math mirrors a real device.
	videoFrameRate  = 10
	videoFrameBytes = 1200

	audioFrameDuration = 20 * time.Millisecond
	audioFrameBytes    = 160
)

// syntheticSource emits dummy payloads with correct RTP sequencing and
// timestamps.
type syntheticSource struct {
	id       string
	streamID string
	codec    webrtc.RTPCodecCapability

	interval  time.Duration
	tsStep    uint32
	frameSize int
	payload   uint8

	mu       sync.Mutex
	seq      uint16
	ts       uint32
	ssrc     uint32
	closed   chan struct{}
	closeOne sync.Once
}

// NewSyntheticVideo returns a VP8-profiled source pacing at the synthetic
// frame rate.
func NewSyntheticVideo(id, streamID string) Source {
	return &syntheticSource{
		id:        id,
		streamID:  streamID,
		codec:     webrtc.RTPCodecCapability{MimeType: webrtc.MimeTypeVP8, ClockRate: videoClockRate},
		interval:  time.Second / videoFrameRate,
		tsStep:    videoClockRate / videoFrameRate,
		frameSize: videoFrameBytes,
		payload:   96,
		seq:       uint16(rand.Intn(1 << 16)),
		ts:        rand.Uint32(),
		ssrc:      rand.Uint32(),
		closed:    make(chan struct{}),
	}
}

// NewSyntheticAudio returns an Opus-profiled source pacing at 20ms frames.
func NewSyntheticAudio(id, streamID string) Source {
	return &syntheticSource{
		id:        id,
		streamID:  streamID,
		codec:     webrtc.RTPCodecCapability{MimeType: webrtc.MimeTypeOpus, ClockRate: audioClockRate, Channels: 2},
		interval:  audioFrameDuration,
		tsStep:    uint32(audioClockRate / int(time.Second/audioFrameDuration)),
		frameSize: audioFrameBytes,
		payload:   111,
		seq:       uint16(rand.Intn(1 << 16)),
		ts:        rand.Uint32(),
		ssrc:      rand.Uint32(),
		closed:    make(chan struct{}),
	}
}

// NewSyntheticScreen returns a VP8-profiled source for the screen-share lane.
func NewSyntheticScreen(id, streamID string) Source {
	s := NewSyntheticVideo(id, streamID).(*syntheticSource)
	return s
}

func (s *syntheticSource) ID() string                       { return s.id }
func (s *syntheticSource) StreamID() string                 { return s.streamID }
func (s *syntheticSource) Codec() webrtc.RTPCodecCapability { return s.codec }

func (s *syntheticSource) ReadPacket() (*rtp.Packet, error) {
	select {
	case <-s.closed:
		return nil, io.EOF
	case <-time.After(s.interval):
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	select {
	case <-s.closed:
		return nil, io.EOF
	default:
	}

	pkt := &rtp.Packet{
		Header: rtp.Header{
			Version:        2,
			PayloadType:    s.payload,
			SequenceNumber: s.seq,
			Timestamp:      s.ts,
			SSRC:           s.ssrc,
			Marker:         true,
		},
		Payload: make([]byte, s.frameSize),
	}
	s.seq++
	s.ts += s.tsStep
	return pkt, nil
}

func (s *syntheticSource) RequestKeyframe() {}

func (s *syntheticSource) Close() error {
	s.closeOne.Do(func() { close(s.closed) })
	return nil
}
