package core

import "github.com/dkeye/ProximityVoice/internal/domain"

// Event is anything the controller loop consumes. The feed, the media
// session and the control API all push onto one ordered channel, so
// graph reconciliation never interleaves with itself.
type Event interface {
	isEvent()
}

// SnapshotEvent carries one full telemetry update.
type SnapshotEvent struct {
	Snapshot domain.ProximitySnapshot
}

// TrackUpEvent announces a live inbound media track for a peer.
type TrackUpEvent struct {
	Peer  domain.PlayerID
	Track RemoteTrack
}

// TrackDownEvent announces that a peer's inbound track ended.
type TrackDownEvent struct {
	Peer domain.PlayerID
}

// SessionClosedEvent announces that the media session dropped. Zone is
// the room the session belonged to.
type SessionClosedEvent struct {
	Zone domain.ZoneID
}

// SetMutedEvent and SetDeafenedEvent carry user voice intent from the
// control API into the loop.
type SetMutedEvent struct {
	Muted bool
}

type SetDeafenedEvent struct {
	Deafened bool
}

// SwitchMicEvent requests a microphone device change.
type SwitchMicEvent struct {
	DeviceID string
}

func (SnapshotEvent) isEvent()      {}
func (TrackUpEvent) isEvent()       {}
func (TrackDownEvent) isEvent()     {}
func (SessionClosedEvent) isEvent() {}
func (SetMutedEvent) isEvent()      {}
func (SetDeafenedEvent) isEvent()   {}
func (SwitchMicEvent) isEvent()     {}
