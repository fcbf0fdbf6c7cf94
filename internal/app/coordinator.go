package app

import (
	"context"
	"fmt"
	"sync"

	"github.com/rs/zerolog/log"

	"github.com/dkeye/ProximityVoice/internal/core"
	"github.com/dkeye/ProximityVoice/internal/domain"
)

// Coordinator owns the media-session lifecycle: it joins, switches and
// leaves the room matching the player's zone, publishes the local
// microphone and tracks connection state. Join attempts run in
// goroutines; an epoch counter makes superseded attempts discard their
// result instead of committing it, so there are never two live
// sessions.
type Coordinator struct {
	selfID domain.PlayerID
	name   string

	tokens   core.TokenSource
	provider core.SessionProvider
	mic      core.MicrophoneSource

	mu        sync.Mutex
	state     core.SessionState
	session   core.MediaSession
	zone      domain.ZoneID
	target    domain.ZoneID
	epoch     uint64
	inflight  bool
	micDevice string
	// Intent applied to whatever session is live, now or later.
	micEnabled bool
}

func NewCoordinator(selfID domain.PlayerID, name, micDevice string, tokens core.TokenSource, provider core.SessionProvider, mic core.MicrophoneSource) *Coordinator {
	return &Coordinator{
		selfID:     selfID,
		name:       name,
		micDevice:  micDevice,
		tokens:     tokens,
		provider:   provider,
		mic:        mic,
		state:      core.StateDisconnected,
		micEnabled: true,
	}
}

func (c *Coordinator) State() core.SessionState {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.state
}

func (c *Coordinator) Zone() domain.ZoneID {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.zone
}

// EnsureZone is a no-op when already connected to zone, collapses into
// an in-flight attempt for the same zone, and supersedes an in-flight
// attempt for a different one.
func (c *Coordinator) EnsureZone(ctx context.Context, zone domain.ZoneID) {
	c.mu.Lock()
	if c.session != nil && c.zone == zone {
		c.mu.Unlock()
		return
	}
	if c.inflight && c.target == zone {
		c.mu.Unlock()
		return
	}

	c.epoch++
	attempt := c.epoch
	c.target = zone
	c.inflight = true
	c.state = core.StateConnecting
	old := c.session
	c.session = nil
	c.zone = ""
	c.mu.Unlock()

	go c.join(ctx, old, zone, attempt)
}

func (c *Coordinator) join(ctx context.Context, old core.MediaSession, zone domain.ZoneID, attempt uint64) {
	// Never two live sessions: the previous one goes first, best-effort.
	if old != nil {
		if err := old.Disconnect(); err != nil {
			log.Warn().Err(err).Str("module", "app.coordinator").Msg("disconnect previous session")
		}
	}

	tok, err := c.tokens.Fetch(ctx, c.selfID, zone)
	if err != nil {
		log.Error().Err(err).Str("module", "app.coordinator").Str("zone", string(zone)).Msg("token fetch")
		c.fail(attempt)
		return
	}

	sess, err := c.provider.Connect(ctx, tok, core.ConnectOptions{
		Room:          zone,
		Name:          c.name,
		AutoSubscribe: true,
	})
	if err != nil {
		log.Error().Err(err).Str("module", "app.coordinator").Str("zone", string(zone)).Msg("session connect")
		c.fail(attempt)
		return
	}

	if err := c.publishMic(ctx, sess); err != nil {
		log.Error().Err(err).Str("module", "app.coordinator").Msg("publish microphone")
		_ = sess.Disconnect()
		c.fail(attempt)
		return
	}

	c.mu.Lock()
	if c.epoch != attempt {
		// A different zone superseded this attempt while it was in
		// flight; drop the result.
		c.mu.Unlock()
		log.Info().Str("module", "app.coordinator").Str("zone", string(zone)).Msg("join superseded, discarding")
		_ = sess.Disconnect()
		return
	}
	c.session = sess
	c.zone = zone
	c.inflight = false
	c.state = core.StateConnected
	sess.SetMicEnabled(c.micEnabled)
	c.mu.Unlock()
	log.Info().Str("module", "app.coordinator").Str("zone", string(zone)).Msg("zone joined")
}

func (c *Coordinator) publishMic(ctx context.Context, sess core.MediaSession) error {
	c.mu.Lock()
	device := c.micDevice
	c.mu.Unlock()

	track, err := c.mic.Capture(device)
	if err != nil {
		return fmt.Errorf("%w: %v", core.ErrDeviceCapture, err)
	}
	if err := sess.PublishTrack(ctx, track); err != nil {
		_ = track.Close()
		return err
	}
	return nil
}

func (c *Coordinator) fail(attempt uint64) {
	c.mu.Lock()
	defer c.mu.Unlock()
	// Retries are driven by the next snapshot, not by a timer here.
	if c.epoch == attempt {
		c.inflight = false
		c.state = core.StateDisconnected
	}
}

// Leave disconnects the live session and invalidates any in-flight
// join attempt.
func (c *Coordinator) Leave() {
	c.mu.Lock()
	c.epoch++
	c.inflight = false
	c.state = core.StateDisconnected
	old := c.session
	c.session = nil
	c.zone = ""
	c.mu.Unlock()

	if old != nil {
		if err := old.Disconnect(); err != nil {
			log.Warn().Err(err).Str("module", "app.coordinator").Msg("leave disconnect")
		}
	}
}

// SessionClosed reverts to disconnected when the live session for this
// zone dropped underneath us; the next snapshot reconnects.
func (c *Coordinator) SessionClosed(zone domain.ZoneID) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.session == nil || c.zone != zone {
		return
	}
	c.session = nil
	c.zone = ""
	c.state = core.StateDisconnected
	log.Warn().Str("module", "app.coordinator").Str("zone", string(zone)).Msg("session dropped")
}

// SetMicEnabled records intent and applies it to the live session.
func (c *Coordinator) SetMicEnabled(enabled bool) {
	c.mu.Lock()
	c.micEnabled = enabled
	sess := c.session
	c.mu.Unlock()
	if sess != nil {
		sess.SetMicEnabled(enabled)
	}
}

// SwitchMicrophone captures the new device first; on failure the
// previous track keeps publishing.
func (c *Coordinator) SwitchMicrophone(ctx context.Context, deviceID string) error {
	track, err := c.mic.Capture(deviceID)
	if err != nil {
		return fmt.Errorf("%w: %v", core.ErrDeviceCapture, err)
	}

	c.mu.Lock()
	c.micDevice = deviceID
	sess := c.session
	enabled := c.micEnabled
	c.mu.Unlock()

	if sess == nil {
		// No live session; the device takes effect on the next join.
		_ = track.Close()
		return nil
	}

	if err := sess.UnpublishTrack(); err != nil {
		log.Warn().Err(err).Str("module", "app.coordinator").Msg("unpublish previous track")
	}
	if err := sess.PublishTrack(ctx, track); err != nil {
		_ = track.Close()
		return err
	}
	sess.SetMicEnabled(enabled)
	log.Info().Str("module", "app.coordinator").Str("device", deviceID).Msg("microphone switched")
	return nil
}
