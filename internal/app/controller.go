package app

import (
	"context"
	"sync"

	"github.com/rs/zerolog/log"

	"github.com/dkeye/ProximityVoice/internal/core"
	"github.com/dkeye/ProximityVoice/internal/domain"
	"github.com/dkeye/ProximityVoice/internal/geometry"
)

// PositionFeed is the telemetry source the controller drives.
type PositionFeed interface {
	Start(ctx context.Context)
	Stop()
}

// NearbyPolicy is the in-range rule applied to every snapshot.
type NearbyPolicy struct {
	Far          float64
	FarInclusive bool
}

// Status is the read-only view served by the control API.
type Status struct {
	State    string        `json:"state"`
	Zone     domain.ZoneID `json:"zone"`
	Nearby   int           `json:"nearby"`
	Muted    bool          `json:"muted"`
	Deafened bool          `json:"deafened"`
}

// Controller fuses the telemetry feed, the session lifecycle and the
// peer audio graph. All events land on one ordered channel and are
// handled by a single loop, so graph mutation never interleaves.
type Controller struct {
	selfID domain.PlayerID
	policy NearbyPolicy

	events chan core.Event
	feed   PositionFeed
	coord  *Coordinator
	graph  *PeerAudioGraph
	voice  *VoiceState
	out    core.AudioOutputContext

	ctx context.Context

	// Loop-owned reconciliation inputs, refreshed every snapshot.
	lastSnap   domain.ProximitySnapshot
	lastSelf   domain.PositionSample
	lastNearby []domain.NearbyEntry
	haveSelf   bool

	statusMu    sync.RWMutex
	selfOffline bool
	nearbyCount int
}

// NewController takes the shared event channel: the feed and the
// session provider are constructed around the same channel so all
// sources stay on one ordered stream.
func NewController(selfID domain.PlayerID, policy NearbyPolicy, events chan core.Event, feed PositionFeed, coord *Coordinator, graph *PeerAudioGraph, voice *VoiceState, out core.AudioOutputContext) *Controller {
	return &Controller{
		selfID: selfID,
		policy: policy,
		events: events,
		feed:   feed,
		coord:  coord,
		graph:  graph,
		voice:  voice,
		out:    out,
	}
}

// Events is where the feed, the media session and the control API
// push. The controller loop is the only consumer.
func (c *Controller) Events() chan<- core.Event {
	return c.events
}

// Run consumes events until ctx is done, then disposes everything.
func (c *Controller) Run(ctx context.Context) {
	c.ctx = ctx
	c.feed.Start(ctx)
	for {
		select {
		case <-ctx.Done():
			c.dispose()
			return
		case ev := <-c.events:
			c.handle(ev)
		}
	}
}

func (c *Controller) handle(ev core.Event) {
	switch e := ev.(type) {
	case core.SnapshotEvent:
		c.onSnapshot(e.Snapshot)
	case core.TrackUpEvent:
		c.graph.AttachTrack(e.Peer, e.Track)
		if c.haveSelf {
			c.graph.Reconcile(c.lastNearby, c.lastSelf, c.lastSnap)
		}
	case core.TrackDownEvent:
		c.graph.DetachTrack(e.Peer)
	case core.SessionClosedEvent:
		c.coord.SessionClosed(e.Zone)
		// Tracks from the dead session cannot come back.
		c.graph.Clear()
	case core.SetMutedEvent:
		c.voice.SetMuted(e.Muted)
	case core.SetDeafenedEvent:
		c.voice.SetDeafened(e.Deafened)
	case core.SwitchMicEvent:
		if err := c.coord.SwitchMicrophone(c.ctx, e.DeviceID); err != nil {
			log.Error().Err(err).Str("module", "app.controller").Str("device", e.DeviceID).Msg("microphone switch")
			return
		}
		c.voice.Reapply()
	}
}

func (c *Controller) onSnapshot(snap domain.ProximitySnapshot) {
	self, ok := snap.Self(c.selfID)
	if !ok {
		// Transient self-absence must not thrash the session; only the
		// nearby set is dropped.
		c.haveSelf = false
		c.lastNearby = nil
		c.setStatus(true, 0)
		return
	}

	// Zone change invalidates every current entry; the old session's
	// tracks die with it.
	if c.haveSelf && self.Zone != c.lastSelf.Zone {
		c.graph.Clear()
	}

	nearby := c.computeNearby(snap, self)

	c.coord.EnsureZone(c.ctx, self.Zone)
	c.graph.Reconcile(nearby, self, snap)

	c.lastSnap = snap
	c.lastSelf = self
	c.lastNearby = nearby
	c.haveSelf = true
	c.setStatus(false, len(nearby))
}

// computeNearby filters the snapshot to in-zone, in-range peers,
// excluding self. Order carries no meaning.
func (c *Controller) computeNearby(snap domain.ProximitySnapshot, self domain.PositionSample) []domain.NearbyEntry {
	out := make([]domain.NearbyEntry, 0, len(snap))
	for id, sample := range snap {
		if id == self.ID || sample.Zone != self.Zone {
			continue
		}
		d := geometry.Distance(self, sample)
		if !c.inRange(d) {
			continue
		}
		out = append(out, domain.NearbyEntry{ID: id, Distance: d})
	}
	return out
}

// inRange applies the configured far-boundary operator. NaN distances
// from malformed samples fail both comparisons.
func (c *Controller) inRange(d float64) bool {
	if c.policy.FarInclusive {
		return d <= c.policy.Far
	}
	return d < c.policy.Far
}

// Status is safe to call from any goroutine.
func (c *Controller) Status() Status {
	c.statusMu.RLock()
	offline := c.selfOffline
	nearby := c.nearbyCount
	c.statusMu.RUnlock()

	st := c.coord.State()
	if offline {
		st = core.StateSelfOffline
	}
	intent := c.voice.Intent()
	return Status{
		State:    st.String(),
		Zone:     c.coord.Zone(),
		Nearby:   nearby,
		Muted:    intent.Muted,
		Deafened: intent.Deafened,
	}
}

func (c *Controller) setStatus(offline bool, nearby int) {
	c.statusMu.Lock()
	c.selfOffline = offline
	c.nearbyCount = nearby
	c.statusMu.Unlock()
}

// dispose shuts everything down in order: feed, session, graph,
// output. Each step is best-effort; nothing re-throws.
func (c *Controller) dispose() {
	log.Info().Str("module", "app.controller").Msg("disposing")
	c.feed.Stop()
	c.coord.Leave()
	c.graph.Clear()
	if err := c.out.Close(); err != nil {
		log.Error().Err(err).Str("module", "app.controller").Msg("close audio output")
	}
}
