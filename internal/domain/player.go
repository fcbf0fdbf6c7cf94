// Package domain contains entity without logic, just meta-data
package domain

type (
	// PlayerID is an opaque stable identifier supplied by the game.
	PlayerID string
	// ZoneID identifies both the positional partition and the media room.
	ZoneID string
)

// PositionSample is one player's position at one telemetry instant.
// Immutable once constructed.
type PositionSample struct {
	ID   PlayerID
	Zone ZoneID
	X    float64
	Y    float64
	Z    float64
}

// ProximitySnapshot is the full set of known positions at one instant,
// keyed by player. A new snapshot replaces the previous one wholesale.
type ProximitySnapshot map[PlayerID]PositionSample

// Self returns the local player's sample, if present. Absence is the
// "self offline" state and is meaningful to callers.
func (s ProximitySnapshot) Self(id PlayerID) (PositionSample, bool) {
	sample, ok := s[id]
	return sample, ok
}

// NearbyEntry is derived per snapshot and never mutated in place.
type NearbyEntry struct {
	ID       PlayerID
	Distance float64
}
