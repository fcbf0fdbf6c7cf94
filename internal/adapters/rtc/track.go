package rtc

import (
	"errors"
	"io"
	"sync"
	"sync/atomic"
	"time"

	"github.com/pion/rtp"
	"github.com/pion/webrtc/v4"
	"github.com/pion/webrtc/v4/pkg/media"
	"github.com/rs/zerolog/log"
	"gopkg.in/hraban/opus.v2"

	"github.com/dkeye/ProximityVoice/internal/core"
	"github.com/dkeye/ProximityVoice/internal/domain"
)

const (
	sampleRate = 48000
	channels   = 1
	// 20 ms at 48 kHz mono.
	frameSamples  = 960
	frameDuration = 20 * time.Millisecond
	maxPacket     = 1400
)

// publishedTrack pumps capture PCM through an opus encoder into the
// outgoing pion track. Muted mic drops frames at this point.
type publishedTrack struct {
	src core.LocalTrack
	out *webrtc.TrackLocalStaticSample
	enc *opus.Encoder

	micEnabled *atomic.Bool
}

func newPublishedTrack(src core.LocalTrack, micEnabled *atomic.Bool) (*publishedTrack, error) {
	enc, err := opus.NewEncoder(sampleRate, channels, opus.AppVoIP)
	if err != nil {
		return nil, err
	}
	out, err := webrtc.NewTrackLocalStaticSample(webrtc.RTPCodecCapability{
		MimeType:  webrtc.MimeTypeOpus,
		ClockRate: sampleRate,
		Channels:  channels,
	}, "audio", "microphone")
	if err != nil {
		return nil, err
	}
	return &publishedTrack{src: src, out: out, enc: enc, micEnabled: micEnabled}, nil
}

func (p *publishedTrack) pump() {
	frame := make([]int16, frameSamples)
	packet := make([]byte, maxPacket)
	for {
		n, err := p.src.ReadPCM(frame)
		if err != nil {
			if !errors.Is(err, io.EOF) {
				log.Warn().Err(err).Str("module", "rtc").Msg("capture read ended")
			}
			return
		}
		if n != frameSamples {
			continue
		}
		if !p.micEnabled.Load() {
			continue
		}
		size, err := p.enc.Encode(frame, packet)
		if err != nil {
			log.Error().Err(err).Str("module", "rtc").Msg("opus encode")
			continue
		}
		if err := p.out.WriteSample(media.Sample{Data: packet[:size], Duration: frameDuration}); err != nil {
			log.Warn().Err(err).Str("module", "rtc").Msg("write sample")
			return
		}
	}
}

// stop closes the capture, which unblocks the pump.
func (p *publishedTrack) stop() {
	_ = p.src.Close()
}

// remoteTrack decodes one peer's inbound opus to PCM on demand.
type remoteTrack struct {
	peer domain.PlayerID
	src  *webrtc.TrackRemote
	dec  *opus.Decoder

	frame   []int16
	pending []int16

	closed  atomic.Bool
	endOnce sync.Once
	onEnd   func()
}

func newRemoteTrack(peer domain.PlayerID, src *webrtc.TrackRemote, onEnd func()) (*remoteTrack, error) {
	dec, err := opus.NewDecoder(sampleRate, channels)
	if err != nil {
		return nil, err
	}
	return &remoteTrack{
		peer:  peer,
		src:   src,
		dec:   dec,
		frame: make([]int16, frameSamples*3),
		onEnd: onEnd,
	}, nil
}

func (t *remoteTrack) Peer() domain.PlayerID { return t.peer }

func (t *remoteTrack) ReadPCM(buf []int16) (int, error) {
	for len(t.pending) == 0 {
		if t.closed.Load() {
			return 0, io.EOF
		}
		pkt, _, err := t.src.ReadRTP()
		if err != nil {
			t.end()
			return 0, io.EOF
		}
		t.decode(pkt)
	}
	n := copy(buf, t.pending)
	t.pending = t.pending[n:]
	return n, nil
}

func (t *remoteTrack) decode(pkt *rtp.Packet) {
	if len(pkt.Payload) == 0 {
		return
	}
	n, err := t.dec.Decode(pkt.Payload, t.frame)
	if err != nil {
		log.Warn().Err(err).Str("module", "rtc").Str("peer", string(t.peer)).Msg("opus decode")
		return
	}
	t.pending = t.frame[:n*channels]
}

// Close is called by the audio sink; it does not announce TrackDown,
// teardown initiated by the graph already removed the entry.
func (t *remoteTrack) Close() error {
	t.closed.Store(true)
	return nil
}

func (t *remoteTrack) end() {
	if t.closed.Load() {
		return
	}
	t.endOnce.Do(func() {
		if t.onEnd != nil {
			t.onEnd()
		}
	})
}
