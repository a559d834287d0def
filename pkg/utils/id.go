package utils

import (
	"github.com/google/uuid"
)

// NewParticipantID returns a connection-scoped participant id. Ids are random
// UUIDs so they are unique for the lifetime of the process and never reused
// across reconnects.
func NewParticipantID() string {
	return "p-" + uuid.NewString()
}

// NewRoomID returns a generated room id for clients that connect without one.
func NewRoomID() string {
	return "room-" + uuid.NewString()[:8]
}
