// Package audioout renders peer tracks through one playback device.
// Each peer gets a sink with volume/pan/mute controls; the device
// callback mixes all live sinks into a stereo bus.
package audioout

import (
	"encoding/binary"
	"sync"

	"github.com/gen2brain/malgo"
	"github.com/rs/zerolog/log"

	"github.com/dkeye/ProximityVoice/internal/core"
)

const (
	sampleRate = 48000
	// Playback is stereo so pan has somewhere to go.
	outChannels = 2
)

type Context struct {
	mctx   *malgo.AllocatedContext
	device *malgo.Device

	mu     sync.Mutex
	sinks  map[*Sink]struct{}
	closed bool

	bus []int32
	pcm []int16
}

func NewContext() (*Context, error) {
	mctx, err := malgo.InitContext(nil, malgo.ContextConfig{}, nil)
	if err != nil {
		return nil, err
	}

	c := &Context{
		mctx:  mctx,
		sinks: make(map[*Sink]struct{}),
	}

	cfg := malgo.DefaultDeviceConfig(malgo.Playback)
	cfg.Playback.Format = malgo.FormatS16
	cfg.Playback.Channels = outChannels
	cfg.SampleRate = sampleRate

	device, err := malgo.InitDevice(mctx.Context, cfg, malgo.DeviceCallbacks{
		Data: c.render,
	})
	if err != nil {
		_ = mctx.Uninit()
		mctx.Free()
		return nil, err
	}
	if err := device.Start(); err != nil {
		device.Uninit()
		_ = mctx.Uninit()
		mctx.Free()
		return nil, err
	}

	c.device = device
	log.Info().Str("module", "audioout").Int("sample_rate", sampleRate).Msg("playback started")
	return c, nil
}

// CreateSink attaches a track to the mix and starts its pump.
func (c *Context) CreateSink(track core.RemoteTrack) (core.AudioSink, error) {
	s := newSink(c, track)
	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		_ = track.Close()
		return nil, errContextClosed
	}
	c.sinks[s] = struct{}{}
	c.mu.Unlock()
	go s.pump()
	log.Info().Str("module", "audioout").Str("peer", string(track.Peer())).Msg("sink attached")
	return s, nil
}

func (c *Context) detach(s *Sink) {
	c.mu.Lock()
	delete(c.sinks, s)
	c.mu.Unlock()
}

// render is the device callback. It must not block: sinks expose only
// non-blocking frame pops and scalar reads.
func (c *Context) render(out, _ []byte, frames uint32) {
	samples := int(frames) * outChannels
	if cap(c.bus) < samples {
		c.bus = make([]int32, samples)
		c.pcm = make([]int16, samples)
	}
	bus := c.bus[:samples]
	pcm := c.pcm[:samples]
	for i := range bus {
		bus[i] = 0
	}

	c.mu.Lock()
	for s := range c.sinks {
		s.renderInto(bus, int(frames))
	}
	c.mu.Unlock()

	clampToS16(bus, pcm)
	for i, v := range pcm {
		binary.LittleEndian.PutUint16(out[2*i:], uint16(v))
	}
}

// Close stops playback and detaches every sink.
func (c *Context) Close() error {
	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return nil
	}
	c.closed = true
	sinks := make([]*Sink, 0, len(c.sinks))
	for s := range c.sinks {
		sinks = append(sinks, s)
	}
	c.mu.Unlock()

	for _, s := range sinks {
		_ = s.Close()
	}
	if c.device != nil {
		c.device.Uninit()
	}
	if c.mctx != nil {
		_ = c.mctx.Uninit()
		c.mctx.Free()
	}
	log.Info().Str("module", "audioout").Msg("playback stopped")
	return nil
}
