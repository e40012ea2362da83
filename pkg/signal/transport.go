// Package signal owns the persistent signaling connection to the
// control server: connect/reconnect, serialized sends, the heartbeat,
// and frame routing to the coordinators.
package signal

import (
	"context"
	"errors"
	"fmt"
	"net/url"
	"sync"
	"time"

	"github.com/screenport/agent/pkg/api"
	"github.com/screenport/agent/pkg/config"
	"github.com/screenport/agent/pkg/logger"
	"github.com/screenport/agent/pkg/monitoring"
	"github.com/screenport/agent/pkg/network/websocket"
)

type State int

const (
	Disconnected State = iota
	Connecting
	Connected
)

func (s State) String() string {
	switch s {
	case Connecting:
		return "connecting"
	case Connected:
		return "connected"
	}
	return "disconnected"
}

var ErrRetriesExhausted = errors.New("signal: reconnect attempts exhausted")

// Conn is the surface of a live connection the transport drives.
type Conn interface {
	Listen()
	Write(data []byte) error
	Close()
	Wait() <-chan struct{}
	SetOnMessage(fn websocket.MessageHandler)
}

type Dialer func(address url.URL, log *logger.Logger) (Conn, error)

func defaultDialer(address url.URL, log *logger.Logger) (Conn, error) {
	return websocket.NewClient(address, log)
}

// Transport keeps the single signaling connection alive.
// All outbound frames from every coordinator funnel through Send,
// which serializes the physical writes.
type Transport struct {
	address url.URL
	conf    config.Transport
	log     *logger.Logger
	dial    Dialer

	mu         sync.Mutex
	conn       Conn
	state      State
	retries    int
	registered bool
	device     api.Register
	hbCancel   context.CancelFunc

	inbound chan []byte
	errs    chan error
}

func NewTransport(address url.URL, conf config.Transport, log *logger.Logger) *Transport {
	return &Transport{
		address: address,
		conf:    conf,
		log:     log.Extend(log.With().Str("d", "tr")),
		dial:    defaultDialer,
		inbound: make(chan []byte, 64),
		errs:    make(chan error, 1),
	}
}

// Connect is idempotent: a call while connected is a no-op.
// An explicit call always resets the retry counter.
func (t *Transport) Connect() error {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.retries = 0
	if t.state == Connected {
		t.log.Debug().Msg("already connected")
		return nil
	}
	return t.connectLocked()
}

func (t *Transport) connectLocked() error {
	t.state = Connecting
	conn, err := t.dial(t.address, t.log)
	if err != nil {
		t.state = Disconnected
		t.scheduleRetryLocked()
		return fmt.Errorf("signal: connect %s: %w", t.address.Host, err)
	}
	conn.SetOnMessage(t.handleMessage)
	conn.Listen()
	t.conn = conn
	t.state = Connected
	t.retries = 0
	if t.registered && t.hbCancel == nil {
		t.startHeartbeatLocked()
	}
	go t.watch(conn)
	t.log.Info().Msgf("connected to %s", t.address.String())
	return nil
}

// Send marshals v and writes it to the wire. Sending while
// disconnected triggers one implicit reconnect attempt; the frame
// itself is not retried on failure.
func (t *Transport) Send(v any) error {
	data, err := api.Marshal(v)
	if err != nil {
		return err
	}
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.state != Connected {
		if err := t.connectLocked(); err != nil {
			return err
		}
	}
	return t.conn.Write(data)
}

// Register announces the device to the server and starts the heartbeat.
func (t *Transport) Register(device api.Register) error {
	if err := t.Send(device); err != nil {
		return err
	}
	t.mu.Lock()
	defer t.mu.Unlock()
	t.registered = true
	t.device = device
	if t.hbCancel == nil {
		t.startHeartbeatLocked()
	}
	return nil
}

// Deregister is best-effort: the heartbeat stops even when the frame
// cannot be delivered.
func (t *Transport) Deregister(key string) error {
	t.mu.Lock()
	t.registered = false
	t.stopHeartbeatLocked()
	deviceID := t.device.DeviceID
	t.mu.Unlock()
	return t.Send(api.NewDeregister(deviceID, key))
}

func (t *Transport) Disconnect() {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.stopHeartbeatLocked()
	if t.conn != nil {
		t.conn.Close()
		t.conn = nil
	}
	t.state = Disconnected
	t.retries = 0
}

// Inbound exposes raw frames in arrival order.
func (t *Transport) Inbound() <-chan []byte { return t.inbound }

// Errs surfaces fatal transport failures (retries exhausted).
func (t *Transport) Errs() <-chan error { return t.errs }

func (t *Transport) State() State {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.state
}

func (t *Transport) handleMessage(message []byte, err error) {
	if err != nil || message == nil {
		return
	}
	select {
	case t.inbound <- message:
	default:
		monitoring.FramesDropped.WithLabelValues("backpressure").Inc()
		t.log.Warn().Msg("inbound queue full, frame dropped")
	}
}

// watch waits for the connection to die and schedules the reconnect.
func (t *Transport) watch(conn Conn) {
	<-conn.Wait()
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.conn != conn {
		// already replaced or explicitly closed
		return
	}
	t.conn = nil
	t.state = Disconnected
	t.scheduleRetryLocked()
}

func (t *Transport) scheduleRetryLocked() {
	if t.retries >= t.conf.MaxRetries {
		t.log.Error().Msgf("connection lost, giving up after %d attempts", t.conf.MaxRetries)
		select {
		case t.errs <- ErrRetriesExhausted:
		default:
		}
		return
	}
	t.retries++
	n := t.retries
	monitoring.Reconnects.Inc()
	t.log.Info().Msgf("reconnect #%d in %v", n, t.conf.RetryDelay)
	time.AfterFunc(t.conf.RetryDelay, func() {
		t.mu.Lock()
		defer t.mu.Unlock()
		if t.state != Disconnected {
			return
		}
		_ = t.connectLocked()
	})
}

func (t *Transport) startHeartbeatLocked() {
	ctx, cancel := context.WithCancel(context.Background())
	t.hbCancel = cancel
	deviceID := t.device.DeviceID
	go t.heartbeat(ctx, deviceID)
}

func (t *Transport) stopHeartbeatLocked() {
	if t.hbCancel != nil {
		t.hbCancel()
		t.hbCancel = nil
	}
}

// heartbeat emits the periodic liveness frame. The first beat is
// delayed so registration settles before the server sees a status.
// The ctx makes cancellation race-free: a cancelled heartbeat never
// fires again, even when a tick is already due.
func (t *Transport) heartbeat(ctx context.Context, deviceID string) {
	first := time.NewTimer(t.conf.Heartbeat.InitialDelay)
	defer first.Stop()
	select {
	case <-ctx.Done():
		return
	case <-first.C:
	}
	t.beat(deviceID)

	tick := time.NewTicker(t.conf.Heartbeat.Interval)
	defer tick.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-tick.C:
			t.beat(deviceID)
		}
	}
}

func (t *Transport) beat(deviceID string) {
	if t.State() != Connected {
		return
	}
	if err := t.Send(api.NewStatus(deviceID)); err != nil {
		t.log.Warn().Err(err).Msg("heartbeat failed")
	}
}
