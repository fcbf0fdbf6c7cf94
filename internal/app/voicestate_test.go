package app

import "testing"

func newTestVoiceState() (*VoiceState, *recordingMicGate, *recordingPlaybackGate) {
	mic := &recordingMicGate{}
	playback := &recordingPlaybackGate{}
	return NewVoiceState(mic, playback), mic, playback
}

func TestDeafenForcesMute(t *testing.T) {
	v, mic, playback := newTestVoiceState()

	v.SetDeafened(true)
	got := v.Intent()
	if !got.Muted || !got.Deafened {
		t.Fatalf("after deafen: %+v, want muted+deafened", got)
	}
	if last := mic.enabled[len(mic.enabled)-1]; last {
		t.Fatalf("mic should be disabled while deafened")
	}
	if last := playback.deafened[len(playback.deafened)-1]; !last {
		t.Fatalf("playback should be deafened")
	}
}

func TestUndeafenRestoresPriorMute(t *testing.T) {
	v, _, _ := newTestVoiceState()

	// Was unmuted before deafen; undeafen restores that, not muted=true.
	v.SetDeafened(true)
	v.SetDeafened(false)
	got := v.Intent()
	if got.Muted || got.Deafened {
		t.Fatalf("after undeafen: %+v, want neither", got)
	}

	// Was muted before deafen; undeafen keeps the mute.
	v.SetMuted(true)
	v.SetDeafened(true)
	v.SetDeafened(false)
	got = v.Intent()
	if !got.Muted || got.Deafened {
		t.Fatalf("after undeafen from muted: %+v, want muted only", got)
	}
}

func TestUnmuteClearsDeafen(t *testing.T) {
	v, mic, playback := newTestVoiceState()

	v.SetDeafened(true)
	v.SetMuted(false)
	got := v.Intent()
	if got.Muted || got.Deafened {
		t.Fatalf("unmute should clear deafen: %+v", got)
	}
	if last := mic.enabled[len(mic.enabled)-1]; !last {
		t.Fatalf("mic should be enabled after unmute")
	}
	if last := playback.deafened[len(playback.deafened)-1]; last {
		t.Fatalf("playback should be undeafened after unmute")
	}
}

func TestMuteKeepsDeafen(t *testing.T) {
	v, _, _ := newTestVoiceState()

	v.SetDeafened(true)
	v.SetMuted(true)
	got := v.Intent()
	if !got.Muted || !got.Deafened {
		t.Fatalf("mute while deafened: %+v, want both", got)
	}
	// An explicit mute while deafened sticks after undeafen.
	v.SetDeafened(false)
	got = v.Intent()
	if !got.Muted || got.Deafened {
		t.Fatalf("after undeafen: %+v, want muted only", got)
	}
}

func TestInvariantUnderAllSequences(t *testing.T) {
	type step struct {
		deafen bool
		value  bool
	}
	steps := []step{
		{false, true}, {true, true}, {false, false}, {true, false},
		{true, true}, {true, false}, {false, true}, {true, true},
		{false, false},
	}
	v, _, _ := newTestVoiceState()
	for i, s := range steps {
		if s.deafen {
			v.SetDeafened(s.value)
		} else {
			v.SetMuted(s.value)
		}
		got := v.Intent()
		if got.Deafened && !got.Muted {
			t.Fatalf("step %d: invariant violated: %+v", i, got)
		}
	}
}
