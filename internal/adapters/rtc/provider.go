// Package rtc implements the SessionProvider capability over a
// websocket signaling channel and a pion PeerConnection.
package rtc

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/url"
	"time"

	"github.com/gorilla/websocket"
	"github.com/pion/webrtc/v4"
	"github.com/rs/zerolog/log"

	"github.com/dkeye/ProximityVoice/internal/core"
)

const connectTimeout = 15 * time.Second

type Provider struct {
	url    string
	events chan<- core.Event
}

func NewProvider(sessionURL string, events chan<- core.Event) *Provider {
	return &Provider{url: sessionURL, events: events}
}

func DefaultWebRTCConfig() webrtc.Configuration {
	return webrtc.Configuration{
		ICEServers: []webrtc.ICEServer{
			{
				URLs: []string{"stun:stun.l.google.com:19302"},
			},
		},
	}
}

// Connect dials the provider, joins the room named by opts.Room and
// negotiates the peer connection. It returns once media is flowing or
// fails within the connect timeout.
func (p *Provider) Connect(ctx context.Context, token string, opts core.ConnectOptions) (core.MediaSession, error) {
	u, err := url.Parse(p.url)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", core.ErrSessionConnect, err)
	}
	q := u.Query()
	q.Set("token", token)
	u.RawQuery = q.Encode()

	dialCtx, cancel := context.WithTimeout(ctx, connectTimeout)
	defer cancel()

	conn, _, err := websocket.DefaultDialer.DialContext(dialCtx, u.String(), nil)
	if err != nil {
		return nil, fmt.Errorf("%w: dial: %v", core.ErrSessionConnect, err)
	}

	join := struct {
		Type          string `json:"type"`
		Room          string `json:"room"`
		Name          string `json:"name"`
		Token         string `json:"token"`
		AutoSubscribe bool   `json:"auto_subscribe"`
	}{
		Type:          "join",
		Room:          string(opts.Room),
		Name:          opts.Name,
		Token:         token,
		AutoSubscribe: opts.AutoSubscribe,
	}
	if err := conn.WriteJSON(join); err != nil {
		_ = conn.Close()
		return nil, fmt.Errorf("%w: join: %v", core.ErrSessionConnect, err)
	}

	pc, err := webrtc.NewPeerConnection(DefaultWebRTCConfig())
	if err != nil {
		_ = conn.Close()
		return nil, fmt.Errorf("%w: %v", core.ErrSessionConnect, err)
	}

	// Receive-only until a mic track is published.
	if _, err := pc.AddTransceiverFromKind(webrtc.RTPCodecTypeAudio, webrtc.RTPTransceiverInit{
		Direction: webrtc.RTPTransceiverDirectionRecvonly,
	}); err != nil {
		_ = pc.Close()
		_ = conn.Close()
		return nil, fmt.Errorf("%w: %v", core.ErrSessionConnect, err)
	}

	sess := newSession(opts.Room, conn, pc, p.events)
	sess.bindHandlers()

	// The signal loop is the only socket reader, during negotiation and
	// after it.
	go sess.signalLoop()

	if err := sess.negotiate(dialCtx); err != nil {
		sess.teardown()
		return nil, fmt.Errorf("%w: %v", core.ErrSessionConnect, err)
	}
	sess.established.Store(true)

	log.Info().Str("module", "rtc").Str("room", string(opts.Room)).Msg("session connected")
	return sess, nil
}

func (s *session) bindHandlers() {
	s.pc.OnConnectionStateChange(func(st webrtc.PeerConnectionState) {
		log.Info().Str("module", "rtc").Str("room", string(s.room)).Str("peer_connection_state", st.String()).Msg("peer state")
		switch st {
		case webrtc.PeerConnectionStateConnected:
			s.connectedOnce.Do(func() { close(s.connected) })
		case webrtc.PeerConnectionStateFailed, webrtc.PeerConnectionStateClosed:
			s.closeOnce()
		}
	})

	s.pc.OnICECandidate(func(cand *webrtc.ICECandidate) {
		if cand == nil {
			return
		}
		s.sendCandidate(cand.ToJSON())
	})

	s.pc.OnTrack(func(track *webrtc.TrackRemote, _ *webrtc.RTPReceiver) {
		s.onTrack(track)
	})
}

// negotiate sends the offer and waits until the peer connection
// reports connected; answers and candidates arrive on the signal loop.
func (s *session) negotiate(ctx context.Context) error {
	offer, err := s.pc.CreateOffer(nil)
	if err != nil {
		return err
	}
	if err := s.pc.SetLocalDescription(offer); err != nil {
		return err
	}
	s.sendSDP("offer", offer.SDP)

	select {
	case <-s.connected:
		return nil
	case <-s.done:
		return errors.New("session closed during connect")
	case <-ctx.Done():
		return errors.New("connect timeout")
	}
}

func (s *session) handleSignal(data []byte) {
	var env struct {
		Type string `json:"type"`
	}
	if err := json.Unmarshal(data, &env); err != nil {
		log.Error().Err(err).Str("module", "rtc").Msg("bad signal json")
		return
	}

	switch env.Type {
	case "answer":
		var p struct {
			SDP string `json:"sdp"`
		}
		if err := json.Unmarshal(data, &p); err != nil {
			log.Error().Err(err).Str("module", "rtc").Msg("bad answer payload")
			return
		}
		if err := s.pc.SetRemoteDescription(webrtc.SessionDescription{
			Type: webrtc.SDPTypeAnswer,
			SDP:  p.SDP,
		}); err != nil {
			log.Error().Err(err).Str("module", "rtc").Msg("apply answer")
		}
	case "offer":
		// Server-initiated renegotiation (new subscriber tracks).
		var p struct {
			SDP string `json:"sdp"`
		}
		if err := json.Unmarshal(data, &p); err != nil {
			log.Error().Err(err).Str("module", "rtc").Msg("bad offer payload")
			return
		}
		s.answer(p.SDP)
	case "candidate":
		var p struct {
			Candidate     string  `json:"candidate"`
			SDPMid        *string `json:"sdpMid,omitempty"`
			SDPMLineIndex *uint16 `json:"sdpMLineIndex,omitempty"`
		}
		if err := json.Unmarshal(data, &p); err != nil {
			log.Error().Err(err).Str("module", "rtc").Msg("bad candidate payload")
			return
		}
		ci := webrtc.ICECandidateInit{
			Candidate:     p.Candidate,
			SDPMid:        p.SDPMid,
			SDPMLineIndex: p.SDPMLineIndex,
		}
		if err := s.pc.AddICECandidate(ci); err != nil {
			log.Error().Err(err).Str("module", "rtc").Msg("add candidate")
		}
	default:
		log.Warn().Str("module", "rtc").Str("type", env.Type).Msg("unknown signal")
	}
}

func (s *session) answer(offerSDP string) {
	if err := s.pc.SetRemoteDescription(webrtc.SessionDescription{
		Type: webrtc.SDPTypeOffer,
		SDP:  offerSDP,
	}); err != nil {
		log.Error().Err(err).Str("module", "rtc").Msg("apply renegotiation offer")
		return
	}
	answer, err := s.pc.CreateAnswer(nil)
	if err != nil {
		log.Error().Err(err).Str("module", "rtc").Msg("create answer")
		return
	}
	if err := s.pc.SetLocalDescription(answer); err != nil {
		log.Error().Err(err).Str("module", "rtc").Msg("set answer")
		return
	}
	s.sendSDP("answer", answer.SDP)
}

func (s *session) sendSDP(typ, sdp string) {
	s.sendJSON(struct {
		Type string `json:"type"`
		SDP  string `json:"sdp"`
	}{Type: typ, SDP: sdp})
}

func (s *session) sendCandidate(ci webrtc.ICECandidateInit) {
	msg := struct {
		Type          string `json:"type"`
		Candidate     string `json:"candidate"`
		SDPMid        string `json:"sdpMid,omitempty"`
		SDPMLineIndex uint16 `json:"sdpMLineIndex,omitempty"`
	}{
		Type:      "candidate",
		Candidate: ci.Candidate,
	}
	if ci.SDPMid != nil {
		msg.SDPMid = *ci.SDPMid
	}
	if ci.SDPMLineIndex != nil {
		msg.SDPMLineIndex = *ci.SDPMLineIndex
	}
	s.sendJSON(msg)
}

func (s *session) sendJSON(v any) {
	b, err := json.Marshal(v)
	if err != nil {
		log.Error().Err(err).Str("module", "rtc").Msg("sendJSON marshal")
		return
	}
	s.connMu.Lock()
	defer s.connMu.Unlock()
	if s.closed {
		return
	}
	_ = s.conn.SetWriteDeadline(time.Now().Add(5 * time.Second))
	if err := s.conn.WriteMessage(websocket.TextMessage, b); err != nil {
		log.Error().Err(err).Str("module", "rtc").Msg("signal write error")
	}
}
