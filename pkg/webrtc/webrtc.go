// Package webrtc is the pion-backed negotiation engine: it owns the
// peer connection and answers remote offers. Media capture and
// encoding live outside this module; the engine only negotiates the
// transport a stream would run over.
package webrtc

import (
	"errors"
	"sync"

	"github.com/pion/webrtc/v3"
	"github.com/screenport/agent/pkg/api"
	"github.com/screenport/agent/pkg/config"
	"github.com/screenport/agent/pkg/logger"
)

var (
	ErrNoConnection = errors.New("webrtc: no active peer connection")
)

type Engine struct {
	conf config.Webrtc
	log  *logger.Logger

	mu    sync.Mutex
	pc    *webrtc.PeerConnection
	onIce func(c api.IceCandidate)
}

func NewEngine(conf config.Webrtc, log *logger.Logger) *Engine {
	return &Engine{conf: conf, log: log.Extend(log.With().Str("d", "w"))}
}

func (e *Engine) OnIceCandidate(fn func(c api.IceCandidate)) {
	e.mu.Lock()
	e.onIce = fn
	e.mu.Unlock()
}

// StartCapture drops any previous peer connection and creates a fresh
// one for the given peer. The connection sends a single video stream;
// the track itself is attached by the capture pipeline outside this
// module.
func (e *Engine) StartCapture(peerID string) error {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.closeLocked()

	pc, err := webrtc.NewPeerConnection(webrtc.Configuration{ICEServers: e.iceServers()})
	if err != nil {
		return err
	}
	if _, err = pc.AddTransceiverFromKind(webrtc.RTPCodecTypeVideo,
		webrtc.RTPTransceiverInit{Direction: webrtc.RTPTransceiverDirectionSendonly}); err != nil {
		_ = pc.Close()
		return err
	}
	pc.OnICECandidate(func(c *webrtc.ICECandidate) {
		e.mu.Lock()
		fn := e.onIce
		e.mu.Unlock()
		if fn == nil {
			return
		}
		if c == nil {
			fn(api.IceCandidate{})
			return
		}
		j := c.ToJSON()
		out := api.IceCandidate{Candidate: j.Candidate}
		if j.SDPMid != nil {
			out.SdpMid = *j.SDPMid
		}
		if j.SDPMLineIndex != nil {
			out.SdpMLineIndex = *j.SDPMLineIndex
		}
		fn(out)
	})
	pc.OnICEConnectionStateChange(func(state webrtc.ICEConnectionState) {
		e.log.Info().Msgf("ice state %s (peer %s)", state, peerID)
	})
	pc.OnConnectionStateChange(func(state webrtc.PeerConnectionState) {
		e.log.Info().Msgf("peer state %s (peer %s)", state, peerID)
	})
	e.pc = pc
	return nil
}

func (e *Engine) StopCapture() {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.closeLocked()
}

func (e *Engine) closeLocked() {
	if e.pc != nil {
		if err := e.pc.Close(); err != nil {
			e.log.Error().Err(err).Msg("peer connection close failed")
		}
		e.pc = nil
	}
}

func (e *Engine) SetRemoteDescription(kind, sdp string) error {
	e.mu.Lock()
	pc := e.pc
	e.mu.Unlock()
	if pc == nil {
		return ErrNoConnection
	}
	return pc.SetRemoteDescription(webrtc.SessionDescription{Type: webrtc.NewSDPType(kind), SDP: sdp})
}

func (e *Engine) CreateAnswer() (string, error) {
	e.mu.Lock()
	pc := e.pc
	e.mu.Unlock()
	if pc == nil {
		return "", ErrNoConnection
	}
	answer, err := pc.CreateAnswer(nil)
	if err != nil {
		return "", err
	}
	if err = pc.SetLocalDescription(answer); err != nil {
		return "", err
	}
	return answer.SDP, nil
}

func (e *Engine) AddCandidate(c api.IceCandidate) error {
	e.mu.Lock()
	pc := e.pc
	e.mu.Unlock()
	if pc == nil {
		return ErrNoConnection
	}
	mid, line := c.SdpMid, c.SdpMLineIndex
	return pc.AddICECandidate(webrtc.ICECandidateInit{Candidate: c.Candidate, SDPMid: &mid, SDPMLineIndex: &line})
}

func (e *Engine) HasRemoteDescription() bool {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.pc != nil && e.pc.RemoteDescription() != nil
}

func (e *Engine) iceServers() []webrtc.ICEServer {
	servers := make([]webrtc.ICEServer, 0, len(e.conf.IceServers))
	for _, s := range e.conf.IceServers {
		ice := webrtc.ICEServer{URLs: []string{s.Urls}}
		if s.Username != "" {
			ice.Username = s.Username
			ice.Credential = s.Credential
		}
		servers = append(servers, ice)
	}
	return servers
}
