package rtc

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/screenport/agent/pkg/api"
	"github.com/screenport/agent/pkg/config"
	"github.com/screenport/agent/pkg/logger"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeEngine struct {
	mu sync.Mutex

	started    []string
	stops      int
	remote     []string
	candidates []api.IceCandidate
	answers    int
	onIce      func(api.IceCandidate)

	failRemote  int
	failAnswer  int
	rejectCands bool
}

func (e *fakeEngine) StartCapture(peerID string) error {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.started = append(e.started, peerID)
	return nil
}

func (e *fakeEngine) StopCapture() {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.stops++
}

func (e *fakeEngine) SetRemoteDescription(kind, sdp string) error {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.failRemote > 0 {
		e.failRemote--
		return errors.New("remote description refused")
	}
	e.remote = append(e.remote, kind+":"+sdp)
	return nil
}

func (e *fakeEngine) CreateAnswer() (string, error) {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.failAnswer > 0 {
		e.failAnswer--
		return "", errors.New("no answer")
	}
	e.answers++
	return "v=0 answer", nil
}

func (e *fakeEngine) AddCandidate(c api.IceCandidate) error {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.rejectCands {
		return errors.New("bad candidate")
	}
	e.candidates = append(e.candidates, c)
	return nil
}

func (e *fakeEngine) HasRemoteDescription() bool {
	e.mu.Lock()
	defer e.mu.Unlock()
	return len(e.remote) > 0
}

func (e *fakeEngine) OnIceCandidate(fn func(c api.IceCandidate)) { e.onIce = fn }

func (e *fakeEngine) applied() []string {
	e.mu.Lock()
	defer e.mu.Unlock()
	return append([]string(nil), e.remote...)
}

func (e *fakeEngine) cands() []api.IceCandidate {
	e.mu.Lock()
	defer e.mu.Unlock()
	return append([]api.IceCandidate(nil), e.candidates...)
}

type captureSender struct {
	mu   sync.Mutex
	sent []any
}

func (s *captureSender) Send(v any) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.sent = append(s.sent, v)
	return nil
}

func (s *captureSender) all() []any {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]any(nil), s.sent...)
}

func startCoordinator(t *testing.T, engine Engine) (*Coordinator, *captureSender) {
	t.Helper()
	out := &captureSender{}
	c := New("dev-1", engine, out, config.Webrtc{RetryDelay: time.Millisecond}, logger.Default())
	ctx, cancel := context.WithCancel(context.Background())
	t.Cleanup(cancel)
	go c.Run(ctx)
	return c, out
}

func offer(from, sdp string) api.Envelope {
	p, _ := api.Marshal(api.SDP{Type: "offer", Sdp: sdp})
	return api.Envelope{Type: api.MsgOffer, FromID: from, Payload: p}
}

func candidate(val string) api.Envelope {
	p, _ := api.Marshal(api.IceCandidate{Candidate: val, SdpMid: "0"})
	return api.Envelope{Type: api.MsgIceCandidate, Payload: p}
}

func TestOfferAnsweredWhenReady(t *testing.T) {
	engine := &fakeEngine{}
	c, out := startCoordinator(t, engine)
	c.StartCapture("web-1")
	c.Handle(offer("web-1", "v=0 offer"))

	require.Eventually(t, func() bool { return len(out.all()) == 1 }, time.Second, 5*time.Millisecond)
	msg, ok := out.all()[0].(api.SdpMessage)
	require.True(t, ok)
	assert.Equal(t, api.MsgAnswer, msg.Type)
	assert.Equal(t, "web-1", msg.ToID)
	assert.Equal(t, "v=0 answer", msg.Payload.Sdp)
	assert.Equal(t, []string{"offer:v=0 offer"}, engine.applied())
}

func TestEarlyOfferBufferedMostRecentWins(t *testing.T) {
	engine := &fakeEngine{}
	c, out := startCoordinator(t, engine)

	c.Handle(offer("web-1", "v=0 first"))
	c.Handle(offer("web-2", "v=0 second"))
	time.Sleep(20 * time.Millisecond)
	assert.Empty(t, engine.applied(), "offers must wait for the engine")

	c.StartCapture("web-2")
	require.Eventually(t, func() bool { return len(out.all()) == 1 }, time.Second, 5*time.Millisecond)
	assert.Equal(t, []string{"offer:v=0 second"}, engine.applied(), "only the most recent offer replays")

	// a second StartCapture must not replay the consumed offer again
	c.StartCapture("web-2")
	time.Sleep(20 * time.Millisecond)
	assert.Len(t, out.all(), 1)
}

func TestCandidatesQueuedUntilRemoteDescription(t *testing.T) {
	engine := &fakeEngine{}
	c, _ := startCoordinator(t, engine)
	c.StartCapture("web-1")

	c.Handle(candidate("cand-1"))
	c.Handle(candidate("cand-2"))
	c.Handle(candidate("cand-3"))
	time.Sleep(20 * time.Millisecond)
	assert.Empty(t, engine.cands(), "candidates must wait for the remote description")

	c.Handle(offer("web-1", "v=0 offer"))
	require.Eventually(t, func() bool { return len(engine.cands()) == 3 }, time.Second, 5*time.Millisecond)

	got := engine.cands()
	assert.Equal(t, "cand-1", got[0].Candidate)
	assert.Equal(t, "cand-2", got[1].Candidate)
	assert.Equal(t, "cand-3", got[2].Candidate)
}

func TestCandidateAppliedDirectlyAfterRemoteDescription(t *testing.T) {
	engine := &fakeEngine{}
	c, _ := startCoordinator(t, engine)
	c.StartCapture("web-1")
	c.Handle(offer("web-1", "v=0 offer"))
	require.Eventually(t, func() bool { return len(engine.applied()) == 1 }, time.Second, 5*time.Millisecond)

	c.Handle(candidate("late"))
	require.Eventually(t, func() bool { return len(engine.cands()) == 1 }, time.Second, 5*time.Millisecond)
}

func TestRemoteDescriptionRetriesOnce(t *testing.T) {
	engine := &fakeEngine{failRemote: 1}
	c, out := startCoordinator(t, engine)
	c.StartCapture("web-1")
	c.Handle(offer("web-1", "v=0 offer"))

	require.Eventually(t, func() bool { return len(out.all()) == 1 }, time.Second, 5*time.Millisecond)
	assert.Equal(t, []string{"offer:v=0 offer"}, engine.applied())
}

func TestNegotiationFailureSurfacedAfterRetry(t *testing.T) {
	engine := &fakeEngine{failRemote: 2}
	c, out := startCoordinator(t, engine)
	c.StartCapture("web-1")
	c.Handle(offer("web-1", "v=0 offer"))

	select {
	case err := <-c.Errs():
		require.Error(t, err)
	case <-time.After(time.Second):
		t.Fatal("failure never surfaced")
	}
	assert.Empty(t, out.all(), "no answer may go out after a failed negotiation")
}

func TestLocalCandidateRelayedToPeer(t *testing.T) {
	engine := &fakeEngine{}
	c, out := startCoordinator(t, engine)
	c.StartCapture("web-1")
	c.Handle(offer("web-1", "v=0 offer"))
	require.Eventually(t, func() bool { return len(out.all()) == 1 }, time.Second, 5*time.Millisecond)

	engine.onIce(api.IceCandidate{Candidate: "local-1", SdpMid: "0"})
	require.Eventually(t, func() bool { return len(out.all()) == 2 }, time.Second, 5*time.Millisecond)

	ice, ok := out.all()[1].(api.IceMessage)
	require.True(t, ok)
	assert.Equal(t, "web-1", ice.ToID)
	assert.Equal(t, "local-1", ice.Payload.Candidate)

	// end-of-gathering marker stays local
	engine.onIce(api.IceCandidate{})
	time.Sleep(20 * time.Millisecond)
	assert.Len(t, out.all(), 2)
}

func TestStopCaptureClearsBufferedState(t *testing.T) {
	engine := &fakeEngine{}
	c, out := startCoordinator(t, engine)

	c.Handle(offer("web-1", "v=0 early"))
	c.Handle(candidate("early"))
	time.Sleep(20 * time.Millisecond)
	c.StopCapture()

	c.StartCapture("web-1")
	time.Sleep(20 * time.Millisecond)
	assert.Empty(t, out.all(), "cleared offer must not replay")
	assert.Empty(t, engine.applied())
}
