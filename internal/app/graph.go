package app

import (
	"github.com/rs/zerolog/log"

	"github.com/dkeye/ProximityVoice/internal/core"
	"github.com/dkeye/ProximityVoice/internal/domain"
	"github.com/dkeye/ProximityVoice/internal/geometry"
)

// GraphPolicy are the distance curves applied to every entry.
type GraphPolicy struct {
	Near     float64
	Far      float64
	PanRange float64
}

type graphEntry struct {
	peer  domain.PlayerID
	track core.RemoteTrack
	sink  core.AudioSink
}

// PeerAudioGraph owns one rendering entry per audible peer. It is
// mutated only from the controller loop, and Reconcile performs all
// creation and teardown synchronously, so no lock is needed and two
// reconciliations can never interleave for the same peer.
type PeerAudioGraph struct {
	out    core.AudioOutputContext
	policy GraphPolicy

	entries map[domain.PlayerID]*graphEntry
	// Live inbound tracks, present whether or not the peer is in range.
	tracks map[domain.PlayerID]core.RemoteTrack

	deafened bool
}

func NewPeerAudioGraph(out core.AudioOutputContext, policy GraphPolicy) *PeerAudioGraph {
	return &PeerAudioGraph{
		out:     out,
		policy:  policy,
		entries: make(map[domain.PlayerID]*graphEntry),
		tracks:  make(map[domain.PlayerID]core.RemoteTrack),
	}
}

// AttachTrack registers a live inbound track for a peer. An existing
// entry built on an older track is torn down; the next reconcile
// rebuilds it on the new one.
func (g *PeerAudioGraph) AttachTrack(peer domain.PlayerID, track core.RemoteTrack) {
	if old, ok := g.tracks[peer]; ok && old != track {
		g.teardown(peer)
		_ = old.Close()
	}
	g.tracks[peer] = track
}

// DetachTrack drops a peer's track and tears down its entry.
func (g *PeerAudioGraph) DetachTrack(peer domain.PlayerID) {
	g.teardown(peer)
	if track, ok := g.tracks[peer]; ok {
		_ = track.Close()
		delete(g.tracks, peer)
	}
}

// Reconcile drives the graph to match the nearby set: one entry per
// in-range peer with a live track, volume/pan refreshed in place,
// everything else torn down. Idempotent: a second call with the same
// set creates nothing new.
func (g *PeerAudioGraph) Reconcile(nearby []domain.NearbyEntry, self domain.PositionSample, snap domain.ProximitySnapshot) {
	keep := make(map[domain.PlayerID]struct{}, len(nearby))
	for _, ne := range nearby {
		keep[ne.ID] = struct{}{}

		track, ok := g.tracks[ne.ID]
		if !ok {
			continue
		}
		sample, ok := snap[ne.ID]
		if !ok {
			continue
		}

		ent, ok := g.entries[ne.ID]
		if !ok {
			sink, err := g.out.CreateSink(track)
			if err != nil {
				log.Error().Err(err).Str("module", "app.graph").Str("peer", string(ne.ID)).Msg("create sink")
				continue
			}
			ent = &graphEntry{peer: ne.ID, track: track, sink: sink}
			g.entries[ne.ID] = ent
			// A peer that joins while the user is deafened starts silent.
			sink.SetMuted(g.deafened)
			log.Info().Str("module", "app.graph").Str("peer", string(ne.ID)).Msg("entry created")
		}

		ent.sink.SetVolume(geometry.Volume(ne.Distance, g.policy.Near, g.policy.Far))
		ent.sink.SetPan(geometry.Pan(sample.X-self.X, g.policy.PanRange))
	}

	for peer := range g.entries {
		if _, ok := keep[peer]; !ok {
			g.teardown(peer)
		}
	}
}

// SetDeafened mutes or unmutes every sink and every future entry.
func (g *PeerAudioGraph) SetDeafened(deafened bool) {
	g.deafened = deafened
	for _, ent := range g.entries {
		ent.sink.SetMuted(deafened)
	}
}

// Clear tears down every entry and closes every track. Used on zone
// switch and on disposal; entries never outlive their session.
func (g *PeerAudioGraph) Clear() {
	for peer := range g.entries {
		g.teardown(peer)
	}
	for peer, track := range g.tracks {
		_ = track.Close()
		delete(g.tracks, peer)
	}
}

// EntryCount reports live entries.
func (g *PeerAudioGraph) EntryCount() int {
	return len(g.entries)
}

func (g *PeerAudioGraph) teardown(peer domain.PlayerID) {
	ent, ok := g.entries[peer]
	if !ok {
		return
	}
	if err := ent.sink.Close(); err != nil {
		log.Error().Err(err).Str("module", "app.graph").Str("peer", string(peer)).Msg("sink close")
	}
	delete(g.entries, peer)
	log.Info().Str("module", "app.graph").Str("peer", string(peer)).Msg("entry removed")
}
