package wire

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestEnvelopeRoundTrip(t *testing.T) {
	env, err := NewEnvelope(TypeChatMessage, Chat{Text: "hi"})
	require.NoError(t, err)

	var chat Chat
	require.NoError(t, env.Decode(&chat))
	assert.Equal(t, "hi", chat.Text)
}

func TestEnvelopeDecodeErrors(t *testing.T) {
	empty := Envelope{Type: TypeOffer}
	var sdp SDP
	assert.Error(t, empty.Decode(&sdp), "missing payload")

	bad := Envelope{Type: TypeOffer, Payload: []byte(`{"sdp": 42`)}
	assert.Error(t, bad.Decode(&sdp), "truncated payload")
}

func TestIsNegotiation(t *testing.T) {
	assert.True(t, TypeOffer.IsNegotiation())
	assert.True(t, TypeAnswer.IsNegotiation())
	assert.True(t, TypeICECandidate.IsNegotiation())
	assert.False(t, TypeChatMessage.IsNegotiation())
	assert.False(t, TypeTransformUpdate.IsNegotiation())
}
