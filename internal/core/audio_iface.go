package core

// AudioOutputContext renders peer tracks. Constructed once by the
// top-level controller and passed by reference into the audio graph;
// never an ambient global.
type AudioOutputContext interface {
	// CreateSink attaches a track to the output and returns its per-peer
	// volume/pan controls. One sink per track.
	CreateSink(track RemoteTrack) (AudioSink, error)
	// Close stops playback. Sinks created from this context become inert.
	Close() error
}

// AudioSink is one peer's rendering tail. All setters are
// non-blocking; reconciliation relies on that.
type AudioSink interface {
	SetVolume(v float64) // 0..1
	SetPan(p float64)    // -1..1, positive pans right
	SetMuted(muted bool)
	// Close detaches the sink and closes its track reader. Idempotent.
	Close() error
}
