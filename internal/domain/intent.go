package domain

// VoiceIntent is the single source of truth for the local mic
// publish-state and peer playback mute. Deafened implies Muted;
// Normalize enforces that on write so readers never see the
// unreachable combination.
type VoiceIntent struct {
	Muted    bool
	Deafened bool
}

func (v VoiceIntent) Normalize() VoiceIntent {
	if v.Deafened {
		v.Muted = true
	}
	return v
}
