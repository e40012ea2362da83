// Package rtc coordinates WebRTC negotiation over the signaling
// connection: SDP offer/answer exchange and ICE candidate relay.
//
// The coordinator holds no media machinery itself; it drives an Engine
// and guards the two ordering invariants of the protocol: an ICE
// candidate is never applied before a remote description is set, and
// an offer arriving before the engine is ready is buffered (single
// slot, most-recent wins) and replayed exactly once.
package rtc

import (
	"context"
	"time"

	"github.com/screenport/agent/pkg/api"
	"github.com/screenport/agent/pkg/config"
	"github.com/screenport/agent/pkg/logger"
)

// Engine is the capture/negotiation machinery behind the coordinator.
type Engine interface {
	// StartCapture tears down any previous peer connection and
	// prepares a fresh one for the given peer.
	StartCapture(peerID string) error
	StopCapture()
	SetRemoteDescription(kind, sdp string) error
	// CreateAnswer produces an answer for the current remote offer
	// and installs it as the local description.
	CreateAnswer() (string, error)
	AddCandidate(c api.IceCandidate) error
	HasRemoteDescription() bool
	// OnIceCandidate installs the callback for locally gathered
	// candidates; an empty Candidate marks end of gathering.
	OnIceCandidate(fn func(c api.IceCandidate))
}

type Sender interface {
	Send(v any) error
}

type pendingOffer struct {
	peerID string
	sdp    string
}

type Coordinator struct {
	deviceID string
	engine   Engine
	out      Sender
	conf     config.Webrtc
	log      *logger.Logger

	inbox chan api.Envelope
	cmds  chan func()
	errs  chan error

	// actor-owned, mutated only inside Run
	peerID      string
	initialized bool
	pending     *pendingOffer
	candidates  []api.IceCandidate
	dropped     int
}

func New(deviceID string, engine Engine, out Sender, conf config.Webrtc, log *logger.Logger) *Coordinator {
	c := &Coordinator{
		deviceID: deviceID,
		engine:   engine,
		out:      out,
		conf:     conf,
		log:      log.Extend(log.With().Str("d", "rtc")),
		inbox:    make(chan api.Envelope, 64),
		cmds:     make(chan func(), 16),
		errs:     make(chan error, 4),
	}
	engine.OnIceCandidate(c.onLocalCandidate)
	return c
}

// Handle enqueues a routed negotiation frame; never blocks the router.
func (c *Coordinator) Handle(env api.Envelope) {
	select {
	case c.inbox <- env:
	default:
		c.log.Warn().Msgf("negotiation inbox full, dropped %q", env.Type)
	}
}

// Errs surfaces negotiation failures. The session coordinator owns
// teardown decisions; nothing here closes the session.
func (c *Coordinator) Errs() <-chan error { return c.errs }

func (c *Coordinator) Run(ctx context.Context) {
	for {
		select {
		case <-ctx.Done():
			return
		case env := <-c.inbox:
			c.handleFrame(env)
		case fn := <-c.cmds:
			fn()
		}
	}
}

// StartCapture resets the negotiation context, boots the engine for
// the peer and replays a buffered offer if one arrived early.
func (c *Coordinator) StartCapture(peerID string) {
	c.post(func() {
		c.initialized = false
		c.engine.StopCapture()
		if err := c.engine.StartCapture(peerID); err != nil {
			c.surface(err)
			return
		}
		c.peerID = peerID
		c.initialized = true
		if c.pending != nil {
			o := *c.pending
			c.pending = nil
			c.log.Info().Msgf("processing pending offer from %s", o.peerID)
			c.applyOffer(o.peerID, o.sdp)
		}
	})
}

// StopCapture releases the negotiation context.
func (c *Coordinator) StopCapture() {
	c.post(func() {
		c.initialized = false
		c.pending = nil
		c.candidates = nil
		c.engine.StopCapture()
	})
}

func (c *Coordinator) post(fn func()) {
	select {
	case c.cmds <- fn:
	default:
		c.log.Warn().Msg("negotiation command queue full")
	}
}

func (c *Coordinator) handleFrame(env api.Envelope) {
	switch env.Type {
	case api.MsgOffer:
		p := api.Unwrap[api.SDP](env.Payload)
		if p == nil || p.Sdp == "" {
			c.log.Warn().Msg("offer without sdp dropped")
			return
		}
		if !c.initialized {
			if c.pending != nil {
				c.log.Warn().Msgf("pending offer from %s superseded", c.pending.peerID)
			}
			c.pending = &pendingOffer{peerID: env.FromID, sdp: p.Sdp}
			return
		}
		c.applyOffer(env.FromID, p.Sdp)
	case api.MsgAnswer:
		p := api.Unwrap[api.SDP](env.Payload)
		if p == nil || p.Sdp == "" {
			c.log.Warn().Msg("answer without sdp dropped")
			return
		}
		c.peerID = env.FromID
		if err := c.withRetry(func() error { return c.engine.SetRemoteDescription("answer", p.Sdp) }); err != nil {
			c.surface(err)
			return
		}
		c.drainCandidates()
	case api.MsgIceCandidate:
		p := api.Unwrap[api.IceCandidate](env.Payload)
		if p == nil || p.Candidate == "" {
			c.log.Debug().Msg("end of remote candidates")
			return
		}
		if !c.engine.HasRemoteDescription() {
			c.candidates = append(c.candidates, *p)
			return
		}
		if err := c.engine.AddCandidate(*p); err != nil {
			c.dropped++
			c.log.Error().Err(err).Msg("candidate not applied")
		}
	}
}

// applyOffer sets the remote offer, drains buffered candidates in
// arrival order, then answers.
func (c *Coordinator) applyOffer(peerID, sdp string) {
	c.peerID = peerID
	if err := c.withRetry(func() error { return c.engine.SetRemoteDescription("offer", sdp) }); err != nil {
		c.surface(err)
		return
	}
	c.drainCandidates()
	answer, err := c.createAnswer()
	if err != nil {
		c.surface(err)
		return
	}
	c.send(api.NewSdpMessage(api.MsgAnswer, c.deviceID, peerID, answer))
}

func (c *Coordinator) createAnswer() (string, error) {
	answer, err := c.engine.CreateAnswer()
	if err == nil {
		return answer, nil
	}
	c.log.Error().Err(err).Msgf("create answer failed, retrying in %v", c.conf.RetryDelay)
	time.Sleep(c.conf.RetryDelay)
	return c.engine.CreateAnswer()
}

// drainCandidates applies every buffered candidate in original
// arrival order. Individual failures are counted, never abort the
// drain and never drop the remaining queue.
func (c *Coordinator) drainCandidates() {
	if len(c.candidates) == 0 {
		return
	}
	applied := 0
	for _, cand := range c.candidates {
		if err := c.engine.AddCandidate(cand); err != nil {
			c.dropped++
			c.log.Error().Err(err).Msg("buffered candidate not applied")
			continue
		}
		applied++
	}
	c.log.Info().Msgf("applied %d/%d buffered candidates", applied, len(c.candidates))
	c.candidates = nil
}

func (c *Coordinator) onLocalCandidate(cand api.IceCandidate) {
	c.post(func() {
		if cand.Candidate == "" {
			c.log.Debug().Msg("local candidate gathering complete")
			return
		}
		if c.peerID == "" {
			c.log.Warn().Msg("local candidate without a peer, dropped")
			return
		}
		c.send(api.NewIceMessage(c.deviceID, c.peerID, cand))
	})
}

// send pushes an outbound frame with the single bounded retry the
// negotiation protocol allows.
func (c *Coordinator) send(v any) {
	if err := c.withRetry(func() error { return c.out.Send(v) }); err != nil {
		c.surface(err)
	}
}

// withRetry runs fn and retries exactly once after a fixed pause.
func (c *Coordinator) withRetry(fn func() error) error {
	err := fn()
	if err == nil {
		return nil
	}
	c.log.Warn().Err(err).Msgf("negotiation step failed, retrying in %v", c.conf.RetryDelay)
	time.Sleep(c.conf.RetryDelay)
	return fn()
}

func (c *Coordinator) surface(err error) {
	c.log.Error().Err(err).Msg("negotiation error")
	select {
	case c.errs <- err:
	default:
	}
}
