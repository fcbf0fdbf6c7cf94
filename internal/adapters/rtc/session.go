package rtc

import (
	"context"
	"sync"
	"sync/atomic"

	"github.com/gorilla/websocket"
	"github.com/pion/webrtc/v4"
	"github.com/rs/zerolog/log"

	"github.com/dkeye/ProximityVoice/internal/core"
	"github.com/dkeye/ProximityVoice/internal/domain"
)

// session is one live conference. It owns the signaling socket, the
// peer connection and the published mic track; remote tracks are
// handed off to the controller as events and owned by their sinks.
type session struct {
	room   domain.ZoneID
	conn   *websocket.Conn
	pc     *webrtc.PeerConnection
	events chan<- core.Event

	connMu sync.Mutex
	closed bool

	micEnabled atomic.Bool

	pubMu  sync.Mutex
	pub    *publishedTrack
	sender *webrtc.RTPSender

	connected     chan struct{}
	connectedOnce sync.Once
	done          chan struct{}
	doneOnce      sync.Once

	// established flips once negotiation finished; drops before that
	// surface as a connect error, not a closed event.
	established atomic.Bool
	quiet       atomic.Bool

	once sync.Once
}

func newSession(room domain.ZoneID, conn *websocket.Conn, pc *webrtc.PeerConnection, events chan<- core.Event) *session {
	s := &session{
		room:      room,
		conn:      conn,
		pc:        pc,
		events:    events,
		connected: make(chan struct{}),
		done:      make(chan struct{}),
	}
	s.micEnabled.Store(true)
	return s
}

func (s *session) Room() domain.ZoneID { return s.room }

// signalLoop keeps consuming candidates and renegotiation offers after
// the initial connect completes.
func (s *session) signalLoop() {
	for {
		_, data, err := s.conn.ReadMessage()
		if err != nil {
			log.Warn().Err(err).Str("module", "rtc").Str("room", string(s.room)).Msg("signal socket closed")
			s.closeOnce()
			return
		}
		s.handleSignal(data)
	}
}

func (s *session) onTrack(track *webrtc.TrackRemote) {
	peer := domain.PlayerID(track.StreamID())
	log.Info().
		Str("module", "rtc").
		Str("room", string(s.room)).
		Str("peer", string(peer)).
		Str("kind", track.Kind().String()).
		Msg("remote track")
	if track.Kind() != webrtc.RTPCodecTypeAudio || peer == "" {
		return
	}

	rt, err := newRemoteTrack(peer, track, func() {
		s.events <- core.TrackDownEvent{Peer: peer}
	})
	if err != nil {
		log.Error().Err(err).Str("module", "rtc").Str("peer", string(peer)).Msg("decoder init")
		return
	}
	s.events <- core.TrackUpEvent{Peer: peer, Track: rt}
}

// PublishTrack encodes the capture's PCM to opus and attaches it.
func (s *session) PublishTrack(ctx context.Context, track core.LocalTrack) error {
	s.pubMu.Lock()
	defer s.pubMu.Unlock()
	if s.pub != nil {
		return nil
	}

	pub, err := newPublishedTrack(track, &s.micEnabled)
	if err != nil {
		return err
	}
	sender, err := s.pc.AddTrack(pub.out)
	if err != nil {
		pub.stop()
		return err
	}
	s.pub = pub
	s.sender = sender
	go pub.pump()
	go drainRTCP(sender)
	log.Info().Str("module", "rtc").Str("room", string(s.room)).Str("device", track.DeviceID()).Msg("mic published")
	return nil
}

// UnpublishTrack detaches and stops the current mic track.
func (s *session) UnpublishTrack() error {
	s.pubMu.Lock()
	defer s.pubMu.Unlock()
	if s.pub == nil {
		return nil
	}
	err := s.pc.RemoveTrack(s.sender)
	s.pub.stop()
	s.pub = nil
	s.sender = nil
	return err
}

// SetMicEnabled gates frames at the source; no renegotiation.
func (s *session) SetMicEnabled(enabled bool) {
	s.micEnabled.Store(enabled)
}

// Disconnect is deliberate teardown and is safe to call more than once.
// It never emits SessionClosedEvent.
func (s *session) Disconnect() error {
	s.quiet.Store(true)
	s.closeOnce()
	return nil
}

// closeOnce emits SessionClosedEvent for an unexpected drop of an
// established session.
func (s *session) closeOnce() {
	s.once.Do(func() {
		s.teardown()
		if s.established.Load() && !s.quiet.Load() {
			s.events <- core.SessionClosedEvent{Zone: s.room}
		}
	})
}

func (s *session) teardown() {
	s.pubMu.Lock()
	if s.pub != nil {
		s.pub.stop()
		s.pub = nil
		s.sender = nil
	}
	s.pubMu.Unlock()

	s.connMu.Lock()
	if !s.closed {
		s.closed = true
		_ = s.conn.Close()
	}
	s.connMu.Unlock()

	if err := s.pc.Close(); err != nil {
		log.Error().Err(err).Str("module", "rtc").Str("room", string(s.room)).Msg("close error")
	}

	s.doneOnce.Do(func() { close(s.done) })
}

// drainRTCP keeps the sender's interceptor pipeline fed.
func drainRTCP(sender *webrtc.RTPSender) {
	buf := make([]byte, 1500)
	for {
		if _, _, err := sender.Read(buf); err != nil {
			return
		}
	}
}
