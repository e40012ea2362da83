// Package session drives the remote-control session state machine.
//
// The coordinator is a single-goroutine actor: inbound frames, user
// commands and the request timeout are all processed strictly in
// arrival order on one loop, so no state is ever touched from two
// goroutines.
package session

import (
	"context"
	"time"

	"github.com/screenport/agent/pkg/api"
	"github.com/screenport/agent/pkg/config"
	"github.com/screenport/agent/pkg/logger"
	"github.com/screenport/agent/pkg/monitoring"
)

type State int

const (
	Idle State = iota
	Requesting
	Waiting
	Accepted
	Rejected
	Timeout
	Connected
	Streaming
	Failed
)

func (s State) String() string {
	switch s {
	case Requesting:
		return "requesting"
	case Waiting:
		return "waiting"
	case Accepted:
		return "accepted"
	case Rejected:
		return "rejected"
	case Timeout:
		return "timeout"
	case Connected:
		return "connected"
	case Streaming:
		return "streaming"
	case Failed:
		return "error"
	}
	return "idle"
}

// Update is pushed to the UI layer on every transition.
type Update struct {
	State   State
	Message string
}

// Sender is the outbound side of the shared signaling connection.
type Sender interface {
	Send(v any) error
}

// TokenSource yields the auth token obtained at registration time.
type TokenSource interface {
	Token() (string, bool)
}

type Coordinator struct {
	deviceID string
	tokens   TokenSource
	out      Sender
	conf     config.Session
	log      *logger.Logger

	// teardown stops streaming machinery on session end; best-effort.
	teardown func()

	inbox   chan api.Envelope
	cmds    chan func()
	updates chan Update

	// actor-owned state, touched only inside run
	state    State
	errMsg   string
	deadline *time.Timer
	timeoutC <-chan time.Time
}

func New(deviceID string, tokens TokenSource, out Sender, conf config.Session, teardown func(), log *logger.Logger) *Coordinator {
	if teardown == nil {
		teardown = func() {}
	}
	return &Coordinator{
		deviceID: deviceID,
		tokens:   tokens,
		out:      out,
		conf:     conf,
		log:      log.Extend(log.With().Str("d", "ss")),
		teardown: teardown,
		inbox:    make(chan api.Envelope, 64),
		cmds:     make(chan func(), 16),
		updates:  make(chan Update, 32),
		state:    Idle,
	}
}

// Handle enqueues a routed frame; it never blocks the router.
func (c *Coordinator) Handle(env api.Envelope) {
	select {
	case c.inbox <- env:
	default:
		c.log.Warn().Msgf("session inbox full, dropped %q", env.Type)
	}
}

// Updates exposes state transitions for the UI layer.
func (c *Coordinator) Updates() <-chan Update { return c.updates }

// Run processes the actor loop until ctx is cancelled.
func (c *Coordinator) Run(ctx context.Context) {
	for {
		select {
		case <-ctx.Done():
			c.stopTimer()
			return
		case env := <-c.inbox:
			c.handleFrame(env)
		case fn := <-c.cmds:
			fn()
		case <-c.timeoutC:
			c.handleTimeout()
		}
	}
}

// Request starts a new session request. Requires a token; without one
// the state machine fails immediately and nothing hits the network.
func (c *Coordinator) Request() { c.post(c.request) }

// Confirm answers the final confirmation prompt.
func (c *Coordinator) Confirm(accepted bool) { c.post(func() { c.confirm(accepted) }) }

// Disconnect tears the session down. The terminate frame is
// best-effort; local state resets regardless.
func (c *Coordinator) Disconnect() { c.post(c.disconnect) }

// Acknowledge clears an error state back to idle.
func (c *Coordinator) Acknowledge() {
	c.post(func() {
		if c.state == Failed || c.state == Timeout || c.state == Rejected {
			c.transition(Idle, "")
		}
	})
}

// StreamStarted marks the media stream as live.
func (c *Coordinator) StreamStarted() {
	c.post(func() {
		if c.state == Connected || c.state == Accepted {
			c.transition(Streaming, "")
		}
	})
}

// Fail surfaces an out-of-band fatal error (e.g. transport gave up).
func (c *Coordinator) Fail(msg string) {
	c.post(func() {
		c.stopTimer()
		c.transition(Failed, msg)
	})
}

func (c *Coordinator) post(fn func()) {
	select {
	case c.cmds <- fn:
	default:
		c.log.Warn().Msg("session command queue full")
	}
}

func (c *Coordinator) request() {
	switch c.state {
	case Requesting, Waiting, Accepted:
		c.log.Warn().Msgf("session request ignored in state %v", c.state)
		return
	}
	token, ok := c.tokens.Token()
	if !ok {
		c.transition(Failed, "token not found")
		return
	}
	c.transition(Requesting, "")
	c.startTimer()
	if err := c.out.Send(api.NewSessionRequest(c.deviceID, token)); err != nil {
		c.stopTimer()
		c.transition(Failed, err.Error())
	}
}

func (c *Coordinator) confirm(accepted bool) {
	token, ok := c.tokens.Token()
	if !ok {
		c.transition(Failed, "token not found")
		return
	}
	if err := c.out.Send(api.NewSessionConfirmation(c.deviceID, token, accepted)); err != nil {
		c.transition(Failed, err.Error())
		return
	}
	if accepted {
		c.transition(Connected, "")
	} else {
		c.transition(Idle, "")
	}
}

func (c *Coordinator) disconnect() {
	if token, ok := c.tokens.Token(); ok {
		if err := c.out.Send(api.NewTerminateSession(c.deviceID, token)); err != nil {
			c.log.Warn().Err(err).Msg("terminate_session not delivered")
		}
	}
	c.endSession("")
}

func (c *Coordinator) handleFrame(env api.Envelope) {
	switch env.Type {
	case api.MsgInfo:
		if c.state != Streaming {
			c.transition(Waiting, "")
		}
	case api.MsgApproved:
		c.stopTimer()
		c.transition(Accepted, "")
	case api.MsgRejected:
		c.stopTimer()
		c.transition(Rejected, env.Message)
	case api.MsgError:
		c.stopTimer()
		msg := env.Message
		if msg == "" {
			msg = "unknown error"
		}
		c.transition(Failed, msg)
	case api.MsgSessionConfirmed:
		c.log.Info().Msg("server confirmed session start")
	case api.MsgSessionEnded, api.MsgInactiveDisconnect, api.MsgSessionExpired:
		c.log.Info().Msgf("session closed by server (%s)", env.Type)
		c.disconnect()
	default:
		c.log.Debug().Msgf("unhandled session frame %q", env.Type)
	}
}

func (c *Coordinator) handleTimeout() {
	c.timeoutC = nil
	if c.state == Requesting || c.state == Waiting {
		c.transition(Timeout, "no answer from server")
	}
}

func (c *Coordinator) endSession(msg string) {
	c.stopTimer()
	c.teardown()
	c.transition(Idle, msg)
}

func (c *Coordinator) transition(s State, msg string) {
	if c.state == s && c.errMsg == msg {
		return
	}
	c.state = s
	c.errMsg = msg
	monitoring.SessionTransitions.WithLabelValues(s.String()).Inc()
	c.log.Info().Msgf("session -> %v", s)
	select {
	case c.updates <- Update{State: s, Message: msg}:
	default:
		c.log.Warn().Msg("session updates channel full")
	}
}

func (c *Coordinator) startTimer() {
	c.stopTimer()
	c.deadline = time.NewTimer(c.conf.RequestTimeout)
	c.timeoutC = c.deadline.C
}

func (c *Coordinator) stopTimer() {
	if c.deadline != nil {
		c.deadline.Stop()
		c.deadline = nil
	}
	c.timeoutC = nil
}
