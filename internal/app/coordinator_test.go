package app

import (
	"context"
	"testing"
	"time"

	"github.com/dkeye/ProximityVoice/internal/core"
)

func waitFor(t *testing.T, what string, cond func() bool) {
	t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		if cond() {
			return
		}
		time.Sleep(5 * time.Millisecond)
	}
	t.Fatalf("timed out waiting for %s", what)
}

func newTestCoordinator(tokens *fakeTokens, provider *fakeProvider, mic *fakeMic) *Coordinator {
	return NewCoordinator("self", "guest", "", tokens, provider, mic)
}

func TestEnsureZoneConnects(t *testing.T) {
	provider := &fakeProvider{}
	c := newTestCoordinator(&fakeTokens{}, provider, &fakeMic{})

	c.EnsureZone(context.Background(), "A")
	waitFor(t, "connected", func() bool { return c.State() == core.StateConnected })

	if c.Zone() != "A" {
		t.Fatalf("zone = %q, want A", c.Zone())
	}
	sessions := provider.connected()
	if len(sessions) != 1 {
		t.Fatalf("sessions = %d, want 1", len(sessions))
	}
	if sessions[0].published == nil {
		t.Fatalf("mic track should be published before Connected")
	}
}

func TestEnsureZoneSameZoneNoOp(t *testing.T) {
	provider := &fakeProvider{}
	tokens := &fakeTokens{}
	c := newTestCoordinator(tokens, provider, &fakeMic{})

	c.EnsureZone(context.Background(), "A")
	waitFor(t, "connected", func() bool { return c.State() == core.StateConnected })

	// Already in zone A: snapshots keep arriving, nothing new happens.
	c.EnsureZone(context.Background(), "A")
	c.EnsureZone(context.Background(), "A")
	time.Sleep(20 * time.Millisecond)
	if got := len(provider.connected()); got != 1 {
		t.Fatalf("sessions = %d, want 1", got)
	}
	if tokens.calls != 1 {
		t.Fatalf("token fetches = %d, want 1", tokens.calls)
	}
}

func TestConcurrentEnsureZoneCollapses(t *testing.T) {
	provider := &fakeProvider{release: make(chan struct{})}
	tokens := &fakeTokens{}
	c := newTestCoordinator(tokens, provider, &fakeMic{})

	c.EnsureZone(context.Background(), "A")
	waitFor(t, "first fetch", func() bool {
		tokens.mu.Lock()
		defer tokens.mu.Unlock()
		return tokens.calls == 1
	})
	// Second call for the same target while the first is in flight.
	c.EnsureZone(context.Background(), "A")
	close(provider.release)
	waitFor(t, "connected", func() bool { return c.State() == core.StateConnected })

	if tokens.calls != 1 {
		t.Fatalf("token fetches = %d, want 1 (collapsed)", tokens.calls)
	}
	if got := len(provider.connected()); got != 1 {
		t.Fatalf("sessions = %d, want 1", got)
	}
}

func TestDifferentZoneSupersedesInFlight(t *testing.T) {
	release := make(chan struct{})
	provider := &fakeProvider{release: release}
	c := newTestCoordinator(&fakeTokens{}, provider, &fakeMic{})

	c.EnsureZone(context.Background(), "A")
	c.EnsureZone(context.Background(), "B")

	// Let both attempts finish.
	close(release)
	waitFor(t, "connected to B", func() bool {
		return c.State() == core.StateConnected && c.Zone() == "B"
	})

	// The superseded attempt's session must be discarded, not applied.
	waitFor(t, "stale session discarded", func() bool {
		for _, s := range provider.connected() {
			if s.Room() == "A" && s.disconnects() == 0 {
				return false
			}
		}
		return true
	})
	if c.Zone() != "B" {
		t.Fatalf("zone = %q, want B", c.Zone())
	}
}

func TestTokenFetchFailureStaysDisconnected(t *testing.T) {
	provider := &fakeProvider{}
	tokens := &fakeTokens{err: errBoom}
	c := newTestCoordinator(tokens, provider, &fakeMic{})

	c.EnsureZone(context.Background(), "A")
	waitFor(t, "disconnected", func() bool { return c.State() == core.StateDisconnected })

	if got := len(provider.connected()); got != 0 {
		t.Fatalf("no session must be created on token failure, got %d", got)
	}

	// Retry is driven by the next snapshot's EnsureZone.
	tokens.mu.Lock()
	tokens.err = nil
	tokens.mu.Unlock()
	c.EnsureZone(context.Background(), "A")
	waitFor(t, "connected after retry", func() bool { return c.State() == core.StateConnected })
}

func TestSessionConnectFailureStaysDisconnected(t *testing.T) {
	provider := &fakeProvider{err: errBoom}
	c := newTestCoordinator(&fakeTokens{}, provider, &fakeMic{})

	c.EnsureZone(context.Background(), "A")
	waitFor(t, "disconnected", func() bool { return c.State() == core.StateDisconnected })
	if c.Zone() != "" {
		t.Fatalf("zone = %q, want empty", c.Zone())
	}
}

func TestZoneSwitchDisconnectsPrevious(t *testing.T) {
	provider := &fakeProvider{}
	c := newTestCoordinator(&fakeTokens{}, provider, &fakeMic{})

	c.EnsureZone(context.Background(), "A")
	waitFor(t, "connected to A", func() bool { return c.State() == core.StateConnected })

	c.EnsureZone(context.Background(), "B")
	waitFor(t, "connected to B", func() bool {
		return c.State() == core.StateConnected && c.Zone() == "B"
	})

	sessions := provider.connected()
	if len(sessions) != 2 {
		t.Fatalf("sessions = %d, want 2", len(sessions))
	}
	if sessions[0].disconnects() == 0 {
		t.Fatalf("previous zone's session must be disconnected")
	}
}

func TestSessionClosedRevertsState(t *testing.T) {
	provider := &fakeProvider{}
	c := newTestCoordinator(&fakeTokens{}, provider, &fakeMic{})

	c.EnsureZone(context.Background(), "A")
	waitFor(t, "connected", func() bool { return c.State() == core.StateConnected })

	c.SessionClosed("A")
	if c.State() != core.StateDisconnected {
		t.Fatalf("state = %v, want disconnected", c.State())
	}

	// A stale close for some other zone is ignored.
	c.EnsureZone(context.Background(), "B")
	waitFor(t, "connected to B", func() bool { return c.State() == core.StateConnected })
	c.SessionClosed("A")
	if c.State() != core.StateConnected {
		t.Fatalf("close for a stale zone must not affect the live session")
	}
}

func TestSwitchMicrophoneFailurePreservesTrack(t *testing.T) {
	provider := &fakeProvider{}
	mic := &fakeMic{}
	c := newTestCoordinator(&fakeTokens{}, provider, mic)

	c.EnsureZone(context.Background(), "A")
	waitFor(t, "connected", func() bool { return c.State() == core.StateConnected })
	sess := provider.connected()[0]
	before := sess.published

	mic.mu.Lock()
	mic.err = errBoom
	mic.mu.Unlock()
	if err := c.SwitchMicrophone(context.Background(), "usb-mic"); err == nil {
		t.Fatalf("switch must fail when capture fails")
	}
	if sess.published != before {
		t.Fatalf("previous track must be preserved on capture failure")
	}

	mic.mu.Lock()
	mic.err = nil
	mic.mu.Unlock()
	if err := c.SwitchMicrophone(context.Background(), "usb-mic"); err != nil {
		t.Fatalf("switch failed: %v", err)
	}
	if sess.published == nil || sess.published.DeviceID() != "usb-mic" {
		t.Fatalf("new device not published")
	}
}

func TestMicIntentSurvivesReconnect(t *testing.T) {
	provider := &fakeProvider{}
	c := newTestCoordinator(&fakeTokens{}, provider, &fakeMic{})

	c.SetMicEnabled(false)
	c.EnsureZone(context.Background(), "A")
	waitFor(t, "connected", func() bool { return c.State() == core.StateConnected })

	sess := provider.connected()[0]
	sess.mu.Lock()
	enabled := sess.micEnabled
	sess.mu.Unlock()
	if enabled {
		t.Fatalf("mute intent must be applied to a session joined later")
	}
}
