// Package render is the seam between a session and whatever draws the room.
// The session calls these hooks from its event loop; implementations decide
// what a participant, a movement or a media track looks like on screen.
package render

import (
	"vroom/internal/client/peer"
	"vroom/internal/core/domain"

	"go.uber.org/zap"
)

// Renderer receives room changes in the order the session observed them.
type Renderer interface {
	ParticipantEntered(id domain.ParticipantID, name string, transform domain.Transform)
	ParticipantMoved(id domain.ParticipantID, transform domain.Transform)
	ParticipantLeft(id domain.ParticipantID)

	TrackStarted(id domain.ParticipantID, ns domain.Namespace, info peer.TrackInfo)
	LinkStateChanged(id domain.ParticipantID, ns domain.Namespace, state peer.ConnState)

	ChatReceived(id domain.ParticipantID, name, text string)
}

// Nop discards everything. Useful for tests and link-only sessions.
type Nop struct{}

func (Nop) ParticipantEntered(domain.ParticipantID, string, domain.Transform)       {}
func (Nop) ParticipantMoved(domain.ParticipantID, domain.Transform)                 {}
func (Nop) ParticipantLeft(domain.ParticipantID)                                    {}
func (Nop) TrackStarted(domain.ParticipantID, domain.Namespace, peer.TrackInfo)     {}
func (Nop) LinkStateChanged(domain.ParticipantID, domain.Namespace, peer.ConnState) {}
func (Nop) ChatReceived(domain.ParticipantID, string, string)                       {}

// Log writes every room change to the logger. The headless agent uses it as
// its only view of the world.
type Log struct {
	Logger *zap.SugaredLogger
}

func (l Log) ParticipantEntered(id domain.ParticipantID, name string, transform domain.Transform) {
	l.Logger.Infow("participant entered", "id", id, "name", name, "position", transform.Position)
}

func (l Log) ParticipantMoved(id domain.ParticipantID, transform domain.Transform) {
	l.Logger.Debugw("participant moved", "id", id, "position", transform.Position)
}

func (l Log) ParticipantLeft(id domain.ParticipantID) {
	l.Logger.Infow("participant left", "id", id)
}

func (l Log) TrackStarted(id domain.ParticipantID, ns domain.Namespace, info peer.TrackInfo) {
	l.Logger.Infow("remote track started", "id", id, "namespace", ns, "kind", info.Kind)
}

func (l Log) LinkStateChanged(id domain.ParticipantID, ns domain.Namespace, state peer.ConnState) {
	l.Logger.Infow("link state changed", "id", id, "namespace", ns, "state", state)
}

func (l Log) ChatReceived(id domain.ParticipantID, name, text string) {
	l.Logger.Infow("chat", "id", id, "name", name, "text", text)
}
