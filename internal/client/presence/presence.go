// Package presence decides when local avatar movement is worth sending and
// tracks the last known transform of every remote peer.
package presence

import (
	"sync"

	"vroom/internal/core/domain"

	"golang.org/x/time/rate"
)

// Tracker filters outbound transform samples through movement thresholds and
// a rate cap, and holds remote transforms for peers the session knows about.
// Updates for unknown ids are discarded so a straggler after peer_left can
// never resurrect an avatar.
type Tracker struct {
	positionThreshold float64 // scene units
	rotationThreshold float64 // degrees
	limiter           *rate.Limiter

	mu       sync.Mutex
	lastSent domain.Transform
	hasSent  bool
	remotes  map[domain.ParticipantID]domain.Transform
}

func NewTracker(positionThreshold, rotationThreshold, maxUpdateRate float64) *Tracker {
	return &Tracker{
		positionThreshold: positionThreshold,
		rotationThreshold: rotationThreshold,
		limiter:           rate.NewLimiter(rate.Limit(maxUpdateRate), 1),
		remotes:           make(map[domain.ParticipantID]domain.Transform),
	}
}

// Observe feeds one local transform sample. It returns true when the sample
// should go on the wire: the avatar moved past a threshold since the last
// sent sample and the rate cap has room. The first sample always sends.
func (t *Tracker) Observe(sample domain.Transform) bool {
	t.mu.Lock()
	defer t.mu.Unlock()

	if t.hasSent {
		moved := sample.Position.DistanceTo(t.lastSent.Position) > t.positionThreshold
		turned := sample.Rotation.AngleTo(t.lastSent.Rotation) > t.rotationThreshold
		if !moved && !turned {
			return false
		}
	}

	if !t.limiter.Allow() {
		return false
	}

	t.lastSent = sample
	t.hasSent = true
	return true
}

// AddPeer starts tracking a remote participant at the given transform.
func (t *Tracker) AddPeer(id domain.ParticipantID, initial domain.Transform) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.remotes[id] = initial
}

// RemovePeer drops a remote participant. Later updates for the id are
// ignored until it is added again.
func (t *Tracker) RemovePeer(id domain.ParticipantID) {
	t.mu.Lock()
	defer t.mu.Unlock()
	delete(t.remotes, id)
}

// ApplyRemote records a remote transform update. It returns false when the
// id is unknown and the update was discarded.
func (t *Tracker) ApplyRemote(id domain.ParticipantID, transform domain.Transform) bool {
	t.mu.Lock()
	defer t.mu.Unlock()

	if _, ok := t.remotes[id]; !ok {
		return false
	}
	t.remotes[id] = transform
	return true
}

// Remote returns the last known transform of a peer.
func (t *Tracker) Remote(id domain.ParticipantID) (domain.Transform, bool) {
	t.mu.Lock()
	defer t.mu.Unlock()
	transform, ok := t.remotes[id]
	return transform, ok
}

// Peers returns the transforms of every tracked peer.
func (t *Tracker) Peers() map[domain.ParticipantID]domain.Transform {
	t.mu.Lock()
	defer t.mu.Unlock()
	out := make(map[domain.ParticipantID]domain.Transform, len(t.remotes))
	for id, transform := range t.remotes {
		out[id] = transform
	}
	return out
}

// PeerCount reports how many remote peers are tracked.
func (t *Tracker) PeerCount() int {
	t.mu.Lock()
	defer t.mu.Unlock()
	return len(t.remotes)
}
