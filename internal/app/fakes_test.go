package app

import (
	"context"
	"errors"
	"io"
	"sync"

	"github.com/dkeye/ProximityVoice/internal/core"
	"github.com/dkeye/ProximityVoice/internal/domain"
)

type fakeSink struct {
	mu     sync.Mutex
	volume float64
	pan    float64
	muted  bool
	closed int
}

func (s *fakeSink) SetVolume(v float64) { s.mu.Lock(); s.volume = v; s.mu.Unlock() }
func (s *fakeSink) SetPan(p float64)    { s.mu.Lock(); s.pan = p; s.mu.Unlock() }
func (s *fakeSink) SetMuted(m bool)     { s.mu.Lock(); s.muted = m; s.mu.Unlock() }
func (s *fakeSink) Close() error        { s.mu.Lock(); s.closed++; s.mu.Unlock(); return nil }

type fakeOut struct {
	mu      sync.Mutex
	sinks   map[domain.PlayerID]*fakeSink
	created int
	closed  bool
}

func newFakeOut() *fakeOut {
	return &fakeOut{sinks: make(map[domain.PlayerID]*fakeSink)}
}

func (o *fakeOut) CreateSink(track core.RemoteTrack) (core.AudioSink, error) {
	o.mu.Lock()
	defer o.mu.Unlock()
	s := &fakeSink{volume: 1}
	o.sinks[track.Peer()] = s
	o.created++
	return s, nil
}

func (o *fakeOut) Close() error {
	o.mu.Lock()
	o.closed = true
	o.mu.Unlock()
	return nil
}

type fakeTrack struct {
	peer   domain.PlayerID
	closed bool
}

func (t *fakeTrack) Peer() domain.PlayerID          { return t.peer }
func (t *fakeTrack) ReadPCM(_ []int16) (int, error) { return 0, io.EOF }
func (t *fakeTrack) Close() error                   { t.closed = true; return nil }

type fakeLocalTrack struct {
	device string
	closed bool
}

func (t *fakeLocalTrack) DeviceID() string               { return t.device }
func (t *fakeLocalTrack) ReadPCM(_ []int16) (int, error) { return 0, io.EOF }
func (t *fakeLocalTrack) Close() error                   { t.closed = true; return nil }

type fakeSession struct {
	mu           sync.Mutex
	room         domain.ZoneID
	published    core.LocalTrack
	micEnabled   bool
	disconnected int
}

func (s *fakeSession) Room() domain.ZoneID { return s.room }

func (s *fakeSession) PublishTrack(_ context.Context, track core.LocalTrack) error {
	s.mu.Lock()
	s.published = track
	s.mu.Unlock()
	return nil
}

func (s *fakeSession) UnpublishTrack() error {
	s.mu.Lock()
	if s.published != nil {
		_ = s.published.Close()
		s.published = nil
	}
	s.mu.Unlock()
	return nil
}

func (s *fakeSession) SetMicEnabled(enabled bool) {
	s.mu.Lock()
	s.micEnabled = enabled
	s.mu.Unlock()
}

func (s *fakeSession) Disconnect() error {
	s.mu.Lock()
	s.disconnected++
	s.mu.Unlock()
	return nil
}

func (s *fakeSession) disconnects() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.disconnected
}

type fakeProvider struct {
	mu       sync.Mutex
	err      error
	sessions []*fakeSession
	// release, when set, blocks Connect until signalled.
	release chan struct{}
}

func (p *fakeProvider) Connect(_ context.Context, _ string, opts core.ConnectOptions) (core.MediaSession, error) {
	if p.release != nil {
		<-p.release
	}
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.err != nil {
		return nil, p.err
	}
	s := &fakeSession{room: opts.Room, micEnabled: true}
	p.sessions = append(p.sessions, s)
	return s, nil
}

func (p *fakeProvider) connected() []*fakeSession {
	p.mu.Lock()
	defer p.mu.Unlock()
	out := make([]*fakeSession, len(p.sessions))
	copy(out, p.sessions)
	return out
}

type fakeTokens struct {
	mu    sync.Mutex
	err   error
	calls int
}

func (t *fakeTokens) Fetch(_ context.Context, _ domain.PlayerID, _ domain.ZoneID) (string, error) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.calls++
	if t.err != nil {
		return "", t.err
	}
	return "tok", nil
}

type fakeMic struct {
	mu   sync.Mutex
	err  error
	open int
}

func (m *fakeMic) Capture(deviceID string) (core.LocalTrack, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.err != nil {
		return nil, m.err
	}
	m.open++
	return &fakeLocalTrack{device: deviceID}, nil
}

type fakeFeed struct {
	started bool
	stopped bool
}

func (f *fakeFeed) Start(_ context.Context) { f.started = true }
func (f *fakeFeed) Stop()                   { f.stopped = true }

type recordingMicGate struct {
	mu      sync.Mutex
	enabled []bool
}

func (g *recordingMicGate) SetMicEnabled(e bool) {
	g.mu.Lock()
	g.enabled = append(g.enabled, e)
	g.mu.Unlock()
}

type recordingPlaybackGate struct {
	mu       sync.Mutex
	deafened []bool
}

func (g *recordingPlaybackGate) SetDeafened(d bool) {
	g.mu.Lock()
	g.deafened = append(g.deafened, d)
	g.mu.Unlock()
}

var errBoom = errors.New("boom")
