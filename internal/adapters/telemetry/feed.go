// Package telemetry owns the proximity socket: it dials the position
// endpoint, announces the local guid, parses inbound snapshots and
// pushes them onto the controller's event channel. Disconnects lead to
// a fixed-delay reconnect, indefinitely, until Stop.
package telemetry

import (
	"context"
	"encoding/json"
	"time"

	"github.com/gorilla/websocket"
	"github.com/rs/zerolog/log"

	"github.com/dkeye/ProximityVoice/internal/core"
	"github.com/dkeye/ProximityVoice/internal/domain"
)

type Feed struct {
	url    string
	selfID domain.PlayerID
	delay  time.Duration
	events chan<- core.Event

	cancel context.CancelFunc
	done   chan struct{}
}

func NewFeed(url string, selfID domain.PlayerID, delay time.Duration, events chan<- core.Event) *Feed {
	return &Feed{
		url:    url,
		selfID: selfID,
		delay:  delay,
		events: events,
	}
}

// Start launches the feed loop. At most one socket is live at a time;
// calling Start twice without Stop is a no-op.
func (f *Feed) Start(ctx context.Context) {
	if f.done != nil {
		return
	}
	ctx, f.cancel = context.WithCancel(ctx)
	f.done = make(chan struct{})
	go f.run(ctx)
}

// Stop cancels any pending reconnect and closes the live socket.
func (f *Feed) Stop() {
	if f.cancel == nil {
		return
	}
	f.cancel()
	<-f.done
	f.cancel = nil
	f.done = nil
}

func (f *Feed) run(ctx context.Context) {
	defer close(f.done)
	for {
		if err := f.connectAndRead(ctx); err != nil {
			log.Warn().Err(err).Str("module", "telemetry").Msg("feed disconnected")
		}
		select {
		case <-ctx.Done():
			log.Info().Str("module", "telemetry").Msg("feed stopped")
			return
		case <-time.After(f.delay):
		}
	}
}

func (f *Feed) connectAndRead(ctx context.Context) error {
	conn, _, err := websocket.DefaultDialer.DialContext(ctx, f.url, nil)
	if err != nil {
		return err
	}
	defer conn.Close()

	// Socket teardown on ctx cancel unblocks the blocking read below.
	stop := context.AfterFunc(ctx, func() { _ = conn.Close() })
	defer stop()

	hello := struct {
		GUID domain.PlayerID `json:"guid"`
	}{GUID: f.selfID}
	if err := conn.WriteJSON(hello); err != nil {
		return err
	}
	log.Info().Str("module", "telemetry").Str("guid", string(f.selfID)).Msg("feed connected")

	for {
		_, data, err := conn.ReadMessage()
		if err != nil {
			return err
		}
		snap, err := parseSnapshot(data)
		if err != nil {
			// Malformed payloads are discarded; the feed keeps running.
			log.Error().Err(err).Str("module", "telemetry").Msg("bad payload")
			continue
		}
		select {
		case f.events <- core.SnapshotEvent{Snapshot: snap}:
		case <-ctx.Done():
			return ctx.Err()
		}
	}
}

type positionRecord struct {
	GUID domain.PlayerID `json:"guid"`
	Map  domain.ZoneID   `json:"map"`
	X    float64         `json:"x"`
	Y    float64         `json:"y"`
	Z    float64         `json:"z"`
}

// parseSnapshot flattens a server frame into one snapshot. The server
// groups records arbitrarily (typically by zone): each top-level value
// is either one record or an array of them.
func parseSnapshot(data []byte) (domain.ProximitySnapshot, error) {
	var groups map[string]json.RawMessage
	if err := json.Unmarshal(data, &groups); err != nil {
		return nil, core.ErrFeedParse
	}
	snap := make(domain.ProximitySnapshot)
	for _, raw := range groups {
		var many []positionRecord
		if err := json.Unmarshal(raw, &many); err == nil {
			for _, rec := range many {
				addRecord(snap, rec)
			}
			continue
		}
		var one positionRecord
		if err := json.Unmarshal(raw, &one); err != nil {
			return nil, core.ErrFeedParse
		}
		addRecord(snap, one)
	}
	return snap, nil
}

func addRecord(snap domain.ProximitySnapshot, rec positionRecord) {
	if rec.GUID == "" {
		return
	}
	snap[rec.GUID] = domain.PositionSample{
		ID:   rec.GUID,
		Zone: rec.Map,
		X:    rec.X,
		Y:    rec.Y,
		Z:    rec.Z,
	}
}
