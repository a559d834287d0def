package peer

import (
	"context"
	"sync"
	"testing"
	"time"

	"vroom/internal/client/media"
	"vroom/internal/core/domain"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

type fakeTransport struct {
	mu         sync.Mutex
	offers     int
	answered   []string
	accepted   []string
	candidates []string
	rolledBack bool
	closed     bool

	answerErr error
}

func (f *fakeTransport) CreateOffer(ctx context.Context) (string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.offers++
	return "offer-sdp", nil
}

func (f *fakeTransport) CreateAnswer(ctx context.Context, remoteOffer string) (string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.answerErr != nil {
		return "", f.answerErr
	}
	f.answered = append(f.answered, remoteOffer)
	return "answer-sdp", nil
}

func (f *fakeTransport) AcceptAnswer(ctx context.Context, remoteAnswer string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.accepted = append(f.accepted, remoteAnswer)
	return nil
}

func (f *fakeTransport) Rollback() error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.rolledBack = true
	return nil
}

func (f *fakeTransport) AddRemoteCandidate(candidate string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.candidates = append(f.candidates, candidate)
	return nil
}

func (f *fakeTransport) AddSource(src media.Source) error { return nil }

func (f *fakeTransport) Close() error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.closed = true
	return nil
}

func (f *fakeTransport) candidateCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.candidates)
}

type fakeSignaler struct {
	mu         sync.Mutex
	offers     int
	answers    int
	candidates int
}

func (s *fakeSignaler) SendOffer(to domain.ParticipantID, ns domain.Namespace, sdp string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.offers++
	return nil
}

func (s *fakeSignaler) SendAnswer(to domain.ParticipantID, ns domain.Namespace, sdp string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.answers++
	return nil
}

func (s *fakeSignaler) SendCandidate(to domain.ParticipantID, ns domain.Namespace, candidate string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.candidates++
	return nil
}

func (s *fakeSignaler) sentOffers() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.offers
}

type nopObserver struct{}

func (nopObserver) LinkStateChanged(domain.ParticipantID, domain.Namespace, ConnState) {}
func (nopObserver) LinkTrackStarted(domain.ParticipantID, domain.Namespace, TrackInfo) {}

type linkFixture struct {
	link       *Link
	signaler   *fakeSignaler
	transports []*fakeTransport
	mu         sync.Mutex
}

func (fx *linkFixture) transport(i int) *fakeTransport {
	fx.mu.Lock()
	defer fx.mu.Unlock()
	return fx.transports[i]
}

func (fx *linkFixture) transportCount() int {
	fx.mu.Lock()
	defer fx.mu.Unlock()
	return len(fx.transports)
}

func newLinkFixture(t *testing.T, selfID, peerID domain.ParticipantID, timeout time.Duration) *linkFixture {
	t.Helper()

	fx := &linkFixture{signaler: &fakeSignaler{}}
	factory := func(ns domain.Namespace, events Events) (Transport, error) {
		ft := &fakeTransport{}
		fx.mu.Lock()
		fx.transports = append(fx.transports, ft)
		fx.mu.Unlock()
		return ft, nil
	}

	l, err := NewLink(selfID, peerID, domain.NamespacePrimary, factory, fx.signaler, nopObserver{}, timeout, zap.NewNop().Sugar())
	require.NoError(t, err)
	fx.link = l
	return fx
}

func TestLink_OfferAnswerReachesStable(t *testing.T) {
	fx := newLinkFixture(t, "p-a", "p-b", time.Minute)
	ctx := context.Background()

	require.NoError(t, fx.link.Offer(ctx))
	assert.Equal(t, StateHaveLocalOffer, fx.link.State())
	assert.Equal(t, 1, fx.signaler.sentOffers())

	require.NoError(t, fx.link.HandleAnswer(ctx, "answer-sdp"))
	assert.Equal(t, StateStable, fx.link.State())
	assert.Equal(t, []string{"answer-sdp"}, fx.transport(0).accepted)
}

func TestLink_DuplicateOfferIsNoOp(t *testing.T) {
	fx := newLinkFixture(t, "p-a", "p-b", time.Minute)
	ctx := context.Background()

	require.NoError(t, fx.link.Offer(ctx))
	require.NoError(t, fx.link.Offer(ctx))
	assert.Equal(t, 1, fx.transport(0).offers, "an in-flight exchange suppresses further offers")
}

func TestLink_LateAnswerIgnored(t *testing.T) {
	fx := newLinkFixture(t, "p-a", "p-b", time.Minute)
	ctx := context.Background()

	require.NoError(t, fx.link.Offer(ctx))
	require.NoError(t, fx.link.HandleAnswer(ctx, "answer-1"))
	require.NoError(t, fx.link.HandleAnswer(ctx, "answer-dup"))

	assert.Equal(t, []string{"answer-1"}, fx.transport(0).accepted, "duplicate answers never reach the transport")
	assert.Equal(t, StateStable, fx.link.State())
}

func TestLink_AnswersRemoteOffer(t *testing.T) {
	fx := newLinkFixture(t, "p-a", "p-b", time.Minute)
	ctx := context.Background()

	require.NoError(t, fx.link.HandleOffer(ctx, "their-offer"))
	assert.Equal(t, StateStable, fx.link.State())
	assert.Equal(t, []string{"their-offer"}, fx.transport(0).answered)
	assert.Equal(t, 1, fx.signaler.answers)
}

func TestLink_RenegotiationWhileStable(t *testing.T) {
	fx := newLinkFixture(t, "p-a", "p-b", time.Minute)
	ctx := context.Background()

	require.NoError(t, fx.link.HandleOffer(ctx, "offer-1"))
	require.NoError(t, fx.link.HandleOffer(ctx, "offer-2"))

	assert.Equal(t, []string{"offer-1", "offer-2"}, fx.transport(0).answered)
	assert.Equal(t, StateStable, fx.link.State())
}

func TestLink_GlareLowerIDKeepsOffer(t *testing.T) {
	// "p-a" < "p-b": our offer wins, the remote offer is dropped.
	fx := newLinkFixture(t, "p-a", "p-b", time.Minute)
	ctx := context.Background()

	require.NoError(t, fx.link.Offer(ctx))
	require.NoError(t, fx.link.HandleOffer(ctx, "their-offer"))

	assert.Equal(t, StateHaveLocalOffer, fx.link.State())
	assert.False(t, fx.transport(0).rolledBack)
	assert.Empty(t, fx.transport(0).answered)

	// The peer yields and answers our offer.
	require.NoError(t, fx.link.HandleAnswer(ctx, "their-answer"))
	assert.Equal(t, StateStable, fx.link.State())
}

func TestLink_GlareHigherIDYields(t *testing.T) {
	// "p-z" > "p-b": we roll back our offer and answer theirs.
	fx := newLinkFixture(t, "p-z", "p-b", time.Minute)
	ctx := context.Background()

	require.NoError(t, fx.link.Offer(ctx))
	require.NoError(t, fx.link.HandleOffer(ctx, "their-offer"))

	assert.Equal(t, StateStable, fx.link.State())
	assert.True(t, fx.transport(0).rolledBack)
	assert.Equal(t, []string{"their-offer"}, fx.transport(0).answered)

	// Our original answer is now a straggler on their side; theirs to us
	// must be ignored too.
	require.NoError(t, fx.link.HandleAnswer(ctx, "stale-answer"))
	assert.Empty(t, fx.transport(0).accepted)
}

func TestLink_CandidatesBufferedUntilRemoteDescription(t *testing.T) {
	fx := newLinkFixture(t, "p-a", "p-b", time.Minute)
	ctx := context.Background()

	require.NoError(t, fx.link.Offer(ctx))
	require.NoError(t, fx.link.HandleCandidate("cand-1"))
	require.NoError(t, fx.link.HandleCandidate("cand-2"))
	assert.Zero(t, fx.transport(0).candidateCount(), "no remote description yet")

	require.NoError(t, fx.link.HandleAnswer(ctx, "answer-sdp"))
	assert.Equal(t, []string{"cand-1", "cand-2"}, fx.transport(0).candidates)

	// Once the description is set, candidates apply directly.
	require.NoError(t, fx.link.HandleCandidate("cand-3"))
	assert.Equal(t, 3, fx.transport(0).candidateCount())
}

func TestLink_DeadlineRestartsOnceThenCloses(t *testing.T) {
	fx := newLinkFixture(t, "p-a", "p-b", 30*time.Millisecond)
	ctx := context.Background()

	require.NoError(t, fx.link.Offer(ctx))

	// First expiry: transport replaced, offer retried.
	assert.Eventually(t, func() bool {
		return fx.transportCount() == 2 && fx.signaler.sentOffers() == 2
	}, time.Second, 5*time.Millisecond)
	assert.True(t, fx.transport(0).closed)

	// Second expiry: no more retries, the link closes for good.
	assert.Eventually(t, func() bool {
		return fx.link.State() == StateClosed
	}, time.Second, 5*time.Millisecond)
	assert.True(t, fx.transport(1).closed)
}

func TestLink_TransportFailureTakesRestartPath(t *testing.T) {
	fx := newLinkFixture(t, "p-a", "p-b", time.Minute)
	ctx := context.Background()

	require.NoError(t, fx.link.Offer(ctx))
	fx.link.OnStateChange(domain.NamespacePrimary, ConnStateFailed)

	assert.Eventually(t, func() bool {
		return fx.transportCount() == 2
	}, time.Second, 5*time.Millisecond)
	assert.True(t, fx.transport(0).closed)
	assert.NotEqual(t, StateClosed, fx.link.State())
}

func TestLink_NegotiationErrorForcesRestart(t *testing.T) {
	fx := newLinkFixture(t, "p-a", "p-b", time.Minute)
	ctx := context.Background()

	fx.transport(0).answerErr = context.DeadlineExceeded
	require.Error(t, fx.link.HandleOffer(ctx, "their-offer"))

	// The broken transport is replaced; the next remote offer succeeds.
	assert.Eventually(t, func() bool { return fx.transportCount() == 2 },
		time.Second, 5*time.Millisecond)
	assert.True(t, fx.transport(0).closed)

	require.NoError(t, fx.link.HandleOffer(ctx, "their-offer"))
	assert.Equal(t, StateStable, fx.link.State())
}

func TestLink_ClosedLinkIgnoresEverything(t *testing.T) {
	fx := newLinkFixture(t, "p-a", "p-b", time.Minute)
	ctx := context.Background()

	require.NoError(t, fx.link.Close())
	assert.Equal(t, StateClosed, fx.link.State())
	assert.True(t, fx.transport(0).closed)

	require.NoError(t, fx.link.HandleOffer(ctx, "offer"))
	require.NoError(t, fx.link.HandleCandidate("cand"))
	assert.Empty(t, fx.transport(0).answered)
	assert.Zero(t, fx.transport(0).candidateCount())
}
