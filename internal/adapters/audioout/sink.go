package audioout

import (
	"errors"
	"math"
	"sync"
	"sync/atomic"

	"github.com/dkeye/ProximityVoice/internal/core"
)

var errContextClosed = errors.New("audio context closed")

// Sink is one peer's rendering tail. The pump goroutine fills a frame
// queue from the track; the device callback drains it. Setters are
// plain atomic writes so reconciliation never blocks on audio.
type Sink struct {
	ctx   *Context
	track core.RemoteTrack

	volume atomic.Uint64 // math.Float64bits
	pan    atomic.Uint64
	muted  atomic.Bool

	mu       sync.Mutex
	queue    [][]int16
	leftover []int16

	closeOnce sync.Once
}

const maxQueuedFrames = 16

func newSink(ctx *Context, track core.RemoteTrack) *Sink {
	s := &Sink{ctx: ctx, track: track}
	s.volume.Store(math.Float64bits(1))
	s.pan.Store(math.Float64bits(0))
	return s
}

func (s *Sink) SetVolume(v float64) { s.volume.Store(math.Float64bits(v)) }
func (s *Sink) SetPan(p float64)    { s.pan.Store(math.Float64bits(p)) }
func (s *Sink) SetMuted(m bool)     { s.muted.Store(m) }

func (s *Sink) pump() {
	buf := make([]int16, 960*3)
	for {
		n, err := s.track.ReadPCM(buf)
		if err != nil {
			return
		}
		frame := make([]int16, n)
		copy(frame, buf[:n])
		s.mu.Lock()
		if len(s.queue) >= maxQueuedFrames {
			// Behind the device clock; drop the oldest frame.
			s.queue = s.queue[1:]
		}
		s.queue = append(s.queue, frame)
		s.mu.Unlock()
	}
}

// renderInto mixes up to frames mono samples into the stereo bus.
func (s *Sink) renderInto(bus []int32, frames int) {
	if s.muted.Load() {
		return
	}
	vol := math.Float64frombits(s.volume.Load())
	pan := math.Float64frombits(s.pan.Load())
	if vol <= 0 {
		return
	}

	mono := s.take(frames)
	if len(mono) == 0 {
		return
	}
	mixInto(bus, mono, vol, pan)
}

// take pops up to n mono samples without blocking.
func (s *Sink) take(n int) []int16 {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]int16, 0, n)
	for len(out) < n {
		if len(s.leftover) > 0 {
			take := min(n-len(out), len(s.leftover))
			out = append(out, s.leftover[:take]...)
			s.leftover = s.leftover[take:]
			continue
		}
		if len(s.queue) == 0 {
			break
		}
		s.leftover = s.queue[0]
		s.queue = s.queue[1:]
	}
	return out
}

// Close detaches the sink and closes its track reader. Idempotent.
func (s *Sink) Close() error {
	s.closeOnce.Do(func() {
		s.ctx.detach(s)
		_ = s.track.Close()
	})
	return nil
}
