package app

import (
	"sync"

	"github.com/rs/zerolog/log"

	"github.com/dkeye/ProximityVoice/internal/domain"
)

// MicGate is the outgoing side of voice intent.
type MicGate interface {
	SetMicEnabled(enabled bool)
}

// PlaybackGate is the incoming side: deafen silences every peer sink.
type PlaybackGate interface {
	SetDeafened(deafened bool)
}

// VoiceState owns mute/deafen intent and enforces it onto the local
// track and the peer graph. Deafened implies muted; the combination
// {muted:false, deafened:true} is unreachable.
type VoiceState struct {
	mu     sync.Mutex
	intent domain.VoiceIntent
	// Mute intent as it was before deafen, restored on undeafen.
	mutedBeforeDeafen bool

	mic      MicGate
	playback PlaybackGate
}

func NewVoiceState(mic MicGate, playback PlaybackGate) *VoiceState {
	return &VoiceState{mic: mic, playback: playback}
}

func (v *VoiceState) SetMuted(muted bool) {
	v.mu.Lock()
	if muted {
		v.intent.Muted = true
		v.mutedBeforeDeafen = true
	} else {
		// Unmuting implies undeafening.
		v.intent.Muted = false
		v.intent.Deafened = false
		v.mutedBeforeDeafen = false
	}
	v.applyLocked()
	v.mu.Unlock()
}

func (v *VoiceState) SetDeafened(deafened bool) {
	v.mu.Lock()
	if deafened {
		if !v.intent.Deafened {
			v.mutedBeforeDeafen = v.intent.Muted
		}
		v.intent.Deafened = true
		v.intent.Muted = true
	} else {
		v.intent.Deafened = false
		v.intent.Muted = v.mutedBeforeDeafen
	}
	v.applyLocked()
	v.mu.Unlock()
}

// Reapply pushes the current intent again, e.g. after a microphone
// switch replaced the published track.
func (v *VoiceState) Reapply() {
	v.mu.Lock()
	v.applyLocked()
	v.mu.Unlock()
}

func (v *VoiceState) Intent() domain.VoiceIntent {
	v.mu.Lock()
	defer v.mu.Unlock()
	return v.intent
}

func (v *VoiceState) applyLocked() {
	v.intent = v.intent.Normalize()
	v.mic.SetMicEnabled(!v.intent.Muted)
	v.playback.SetDeafened(v.intent.Deafened)
	log.Info().
		Str("module", "app.voice").
		Bool("muted", v.intent.Muted).
		Bool("deafened", v.intent.Deafened).
		Msg("voice intent")
}
