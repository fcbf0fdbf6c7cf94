package core

import (
	"context"

	"github.com/dkeye/ProximityVoice/internal/domain"
)

// ConnectOptions mirrors the provider's join surface.
type ConnectOptions struct {
	Room          domain.ZoneID
	Name          string
	AutoSubscribe bool
}

// SessionProvider opens media sessions against the external
// conferencing backend. The controller depends only on this surface,
// not on the provider's transport.
type SessionProvider interface {
	Connect(ctx context.Context, token string, opts ConnectOptions) (MediaSession, error)
}

// MediaSession is one live conference for one zone.
// Owned exclusively by the session coordinator.
type MediaSession interface {
	Room() domain.ZoneID
	// PublishTrack attaches the local microphone track.
	PublishTrack(ctx context.Context, track LocalTrack) error
	// UnpublishTrack detaches and stops the current local track.
	UnpublishTrack() error
	// SetMicEnabled gates outgoing frames at the source; no renegotiation.
	SetMicEnabled(enabled bool)
	// Disconnect is best-effort; errors are for logging only.
	Disconnect() error
}

// LocalTrack is an outgoing microphone capture: raw 48 kHz mono PCM,
// no acoustic processing. The session owns encoding and transport.
type LocalTrack interface {
	DeviceID() string
	ReadPCM(buf []int16) (int, error)
	Close() error
}

// RemoteTrack is one peer's inbound audio, decoded to 48 kHz mono PCM.
// Read blocks until a frame is available or the track ends.
type RemoteTrack interface {
	Peer() domain.PlayerID
	ReadPCM(buf []int16) (int, error)
	Close() error
}

// MicrophoneSource captures raw microphone frames. Acoustic
// processing (echo cancellation, noise suppression, auto gain) must be
// off so that distance attenuation is the only volume signal.
type MicrophoneSource interface {
	// Capture opens the device and returns a publishable track.
	Capture(deviceID string) (LocalTrack, error)
}

// TokenSource fetches session credentials from the token service.
type TokenSource interface {
	Fetch(ctx context.Context, self domain.PlayerID, zone domain.ZoneID) (string, error)
}
