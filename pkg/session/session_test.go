package session

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/screenport/agent/pkg/api"
	"github.com/screenport/agent/pkg/config"
	"github.com/screenport/agent/pkg/logger"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeSender struct {
	mu   sync.Mutex
	sent []any
}

func (s *fakeSender) Send(v any) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.sent = append(s.sent, v)
	return nil
}

func (s *fakeSender) count() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.sent)
}

func (s *fakeSender) last() any {
	s.mu.Lock()
	defer s.mu.Unlock()
	if len(s.sent) == 0 {
		return nil
	}
	return s.sent[len(s.sent)-1]
}

type tokens struct{ token string }

func (t tokens) Token() (string, bool) { return t.token, t.token != "" }

func start(t *testing.T, token string, timeout time.Duration, teardown func()) (*Coordinator, *fakeSender) {
	t.Helper()
	out := &fakeSender{}
	if timeout == 0 {
		timeout = time.Minute
	}
	c := New("dev-1", tokens{token}, out, config.Session{RequestTimeout: timeout}, teardown, logger.Default())
	ctx, cancel := context.WithCancel(context.Background())
	t.Cleanup(cancel)
	go c.Run(ctx)
	return c, out
}

func waitState(t *testing.T, c *Coordinator, want State) Update {
	t.Helper()
	deadline := time.After(2 * time.Second)
	for {
		select {
		case u := <-c.Updates():
			if u.State == want {
				return u
			}
		case <-deadline:
			t.Fatalf("never reached state %v", want)
		}
	}
}

func TestRequestWithoutTokenFailsLocally(t *testing.T) {
	c, out := start(t, "", 0, nil)
	c.Request()
	u := waitState(t, c, Failed)
	assert.Equal(t, "token not found", u.Message)
	assert.Zero(t, out.count(), "nothing may hit the wire without a token")
}

func TestRequestSendsFrameAndWaits(t *testing.T) {
	c, out := start(t, "tok-1", 0, nil)
	c.Request()
	waitState(t, c, Requesting)
	require.Eventually(t, func() bool { return out.count() == 1 }, time.Second, 5*time.Millisecond)
	req, ok := out.last().(api.SessionRequest)
	require.True(t, ok)
	assert.Equal(t, api.MsgSessionRequest, req.Type)
	assert.Equal(t, "tok-1", req.Token)
}

func TestDuplicateRequestIgnored(t *testing.T) {
	c, out := start(t, "tok-1", 0, nil)
	c.Request()
	waitState(t, c, Requesting)
	c.Request()
	time.Sleep(20 * time.Millisecond)
	assert.Equal(t, 1, out.count(), "second request while pending must not send")
}

func TestRequestTimesOut(t *testing.T) {
	c, _ := start(t, "tok-1", 20*time.Millisecond, nil)
	c.Request()
	waitState(t, c, Requesting)
	waitState(t, c, Timeout)
}

func TestApprovalStopsTimeout(t *testing.T) {
	c, _ := start(t, "tok-1", 150*time.Millisecond, nil)
	c.Request()
	waitState(t, c, Requesting)
	c.Handle(api.Envelope{Type: api.MsgInfo})
	waitState(t, c, Waiting)
	c.Handle(api.Envelope{Type: api.MsgApproved})
	waitState(t, c, Accepted)

	time.Sleep(200 * time.Millisecond)
	select {
	case u := <-c.Updates():
		assert.NotEqual(t, Timeout, u.State, "timer must be dead after approval")
	default:
	}
}

func TestRejectionCarriesMessage(t *testing.T) {
	c, _ := start(t, "tok-1", 0, nil)
	c.Request()
	waitState(t, c, Requesting)
	c.Handle(api.Envelope{Type: api.MsgRejected, Message: "busy"})
	u := waitState(t, c, Rejected)
	assert.Equal(t, "busy", u.Message)

	c.Acknowledge()
	waitState(t, c, Idle)
}

func TestConfirmAccepted(t *testing.T) {
	c, out := start(t, "tok-1", 0, nil)
	c.Confirm(true)
	waitState(t, c, Connected)
	conf, ok := out.last().(api.SessionConfirmation)
	require.True(t, ok)
	assert.Equal(t, api.DecisionAccepted, conf.Decision)
}

func TestDisconnectSendsTerminateAndTearsDown(t *testing.T) {
	torn := make(chan struct{}, 1)
	c, out := start(t, "tok-1", 0, func() { torn <- struct{}{} })
	c.Confirm(true)
	waitState(t, c, Connected)

	c.Disconnect()
	waitState(t, c, Idle)
	select {
	case <-torn:
	case <-time.After(time.Second):
		t.Fatal("teardown not invoked")
	}
	term, ok := out.last().(api.TerminateSession)
	require.True(t, ok)
	assert.Equal(t, api.MsgTerminateSession, term.Type)
}

func TestServerEndedSessionResets(t *testing.T) {
	torn := make(chan struct{}, 1)
	c, _ := start(t, "tok-1", 0, func() { torn <- struct{}{} })
	c.Confirm(true)
	waitState(t, c, Connected)
	c.StreamStarted()
	waitState(t, c, Streaming)

	c.Handle(api.Envelope{Type: api.MsgSessionExpired})
	waitState(t, c, Idle)
	select {
	case <-torn:
	case <-time.After(time.Second):
		t.Fatal("teardown not invoked on server-side end")
	}
}
