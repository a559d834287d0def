package presence

import (
	"math"
	"testing"

	"vroom/internal/core/domain"

	"github.com/stretchr/testify/assert"
)

func transformAt(x float64) domain.Transform {
	return domain.Transform{
		Position: domain.Vector3{x, 0, 0},
		Rotation: domain.Quaternion{0, 0, 0, 1},
	}
}

func transformTurned(degrees float64) domain.Transform {
	half := degrees * math.Pi / 360
	return domain.Transform{
		Position: domain.Vector3{0, 0, 0},
		Rotation: domain.Quaternion{0, math.Sin(half), 0, math.Cos(half)},
	}
}

func newTestTracker() *Tracker {
	// High rate cap so threshold behaviour is what the tests exercise.
	return NewTracker(1.0, 2.0, 1000)
}

func TestTracker_FirstSampleAlwaysSends(t *testing.T) {
	tr := newTestTracker()
	assert.True(t, tr.Observe(transformAt(0)))
}

func TestTracker_SmallMovementSuppressed(t *testing.T) {
	tr := newTestTracker()
	tr.Observe(transformAt(0))

	assert.False(t, tr.Observe(transformAt(0.5)), "below threshold")
	assert.False(t, tr.Observe(transformAt(1.0)), "exactly at threshold is not past it")
	assert.True(t, tr.Observe(transformAt(1.001)), "past threshold")
}

func TestTracker_ThresholdIsAgainstLastSent(t *testing.T) {
	tr := newTestTracker()
	tr.Observe(transformAt(0))

	// Creeping in small steps never accumulates into a send until the total
	// drift from the last sent sample crosses the threshold.
	assert.False(t, tr.Observe(transformAt(0.6)))
	assert.False(t, tr.Observe(transformAt(0.9)))
	assert.True(t, tr.Observe(transformAt(1.2)))

	// The baseline moved to 1.2.
	assert.False(t, tr.Observe(transformAt(1.8)))
	assert.True(t, tr.Observe(transformAt(2.4)))
}

func TestTracker_RotationThreshold(t *testing.T) {
	tr := newTestTracker()
	tr.Observe(transformTurned(0))

	assert.False(t, tr.Observe(transformTurned(1.5)))
	assert.True(t, tr.Observe(transformTurned(2.5)))
}

func TestTracker_RateCap(t *testing.T) {
	tr := NewTracker(1.0, 2.0, 1) // one update per second, burst 1
	assert.True(t, tr.Observe(transformAt(0)))

	// Far past the movement threshold but inside the rate window.
	assert.False(t, tr.Observe(transformAt(100)))
}

func TestTracker_RemoteGating(t *testing.T) {
	tr := newTestTracker()

	assert.False(t, tr.ApplyRemote("p-ghost", transformAt(1)), "unknown ids are discarded")

	tr.AddPeer("p-1", transformAt(0))
	assert.True(t, tr.ApplyRemote("p-1", transformAt(5)))

	got, ok := tr.Remote("p-1")
	assert.True(t, ok)
	assert.Equal(t, transformAt(5), got)

	tr.RemovePeer("p-1")
	assert.False(t, tr.ApplyRemote("p-1", transformAt(9)), "updates after removal never resurrect a peer")
	_, ok = tr.Remote("p-1")
	assert.False(t, ok)
}

func TestTracker_PeersSnapshot(t *testing.T) {
	tr := newTestTracker()
	tr.AddPeer("p-1", transformAt(1))
	tr.AddPeer("p-2", transformAt(2))

	peers := tr.Peers()
	assert.Len(t, peers, 2)
	assert.Equal(t, 2, tr.PeerCount())

	delete(peers, "p-1")
	assert.Equal(t, 2, tr.PeerCount(), "returned map is a copy")
}
