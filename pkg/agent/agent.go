// Package agent wires the signaling transport, the coordinators and
// the monitoring server into one runnable unit.
package agent

import (
	"context"
	"net/url"
	"time"

	"github.com/gofrs/uuid"
	"github.com/screenport/agent/pkg/api"
	"github.com/screenport/agent/pkg/compression/zip"
	"github.com/screenport/agent/pkg/config"
	conf "github.com/screenport/agent/pkg/config/agent"
	"github.com/screenport/agent/pkg/downloader"
	"github.com/screenport/agent/pkg/fileshare"
	"github.com/screenport/agent/pkg/input"
	"github.com/screenport/agent/pkg/keystore"
	"github.com/screenport/agent/pkg/logger"
	"github.com/screenport/agent/pkg/monitoring"
	"github.com/screenport/agent/pkg/rtc"
	"github.com/screenport/agent/pkg/session"
	"github.com/screenport/agent/pkg/signal"
	"github.com/screenport/agent/pkg/storage"
	"github.com/screenport/agent/pkg/webrtc"
)

type Agent struct {
	conf *conf.Config
	log  *logger.Logger

	store     *keystore.Store
	transport *signal.Transport
	router    *signal.Router
	session   *session.Coordinator
	rtc       *rtc.Coordinator
	files     *fileshare.Coordinator
	input     *input.Forwarder
	monitor   *monitoring.Monitoring

	cancel context.CancelFunc
}

// New builds the full dependency graph. Collaborators with a platform
// side (gesture injection, storage permission) come in from the
// caller; nil picks the no-op fallbacks.
func New(c *conf.Config, sink input.EventSink, granted storage.Granter, log *logger.Logger) (*Agent, error) {
	if sink == nil {
		sink = input.Nop{}
	}
	store, err := keystore.Open(c.Agent.StateDir)
	if err != nil {
		return nil, err
	}
	if c.Agent.DeviceID == "" {
		if c.Agent.DeviceID = store.DeviceID(); c.Agent.DeviceID == "" {
			id, err := uuid.NewV4()
			if err != nil {
				return nil, err
			}
			c.Agent.DeviceID = id.String()
			if err = store.SetDeviceID(c.Agent.DeviceID); err != nil {
				return nil, err
			}
		}
	}

	address := serverURL(c.Server)
	endpoint, err := fileshare.UploadEndpoint(address.String())
	if err != nil {
		return nil, err
	}
	if err = store.SetServerURL(address.String()); err != nil {
		return nil, err
	}

	transport := signal.NewTransport(address, c.Transport, log)
	router := signal.NewRouter(log)
	deviceID := c.Agent.DeviceID

	engine := webrtc.NewEngine(c.Webrtc, log)
	negotiator := rtc.New(deviceID, engine, transport, c.Webrtc, log)

	files := fileshare.New(deviceID, endpoint, transport,
		storage.NewDir(c.FileShare.Root, granted),
		downloader.New(log), zip.New(log), fileshare.NewHTTPUploader(nil),
		c.FileShare, log)

	sess := session.New(deviceID, store, transport, c.Session, func() {
		negotiator.StopCapture()
		files.Terminate()
	}, log)

	a := &Agent{
		conf:      c,
		log:       log,
		store:     store,
		transport: transport,
		router:    router,
		session:   sess,
		rtc:       negotiator,
		files:     files,
		input:     input.NewForwarder(sink, log),
		monitor:   monitoring.New(c.Monitoring, log),
	}
	if err := a.subscribe(); err != nil {
		return nil, err
	}
	return a, nil
}

func (a *Agent) subscribe() error {
	if err := a.router.Subscribe(a.onRegistered, api.MsgSuccess); err != nil {
		return err
	}
	if err := a.router.Subscribe(a.session.Handle,
		api.MsgApproved, api.MsgRejected, api.MsgInfo, api.MsgError,
		api.MsgSessionConfirmed, api.MsgSessionEnded,
		api.MsgInactiveDisconnect, api.MsgSessionExpired); err != nil {
		return err
	}
	if err := a.router.Subscribe(a.rtc.Handle,
		api.MsgOffer, api.MsgAnswer, api.MsgIceCandidate); err != nil {
		return err
	}
	if err := a.router.Subscribe(a.files.Handle,
		api.MsgBrowseRequest, api.MsgUploadFiles, api.MsgDownloadRequest,
		api.MsgDecisionFileshare); err != nil {
		return err
	}
	return a.router.Subscribe(a.input.Handle,
		api.MsgClick, api.MsgSwipe, api.MsgKeyboard)
}

// Start connects, registers and spins the coordinator loops.
func (a *Agent) Start() error {
	ctx, cancel := context.WithCancel(context.Background())
	a.cancel = cancel

	if a.conf.Monitoring.IsEnabled() {
		a.monitor.Run()
	}
	go a.router.Run(a.transport.Inbound())
	go a.session.Run(ctx)
	go a.rtc.Run(ctx)
	go a.files.Run(ctx)
	go a.supervise(ctx)

	if err := a.transport.Connect(); err != nil {
		// the transport keeps retrying on its own
		a.log.Warn().Err(err).Msg("initial connect failed")
	}
	return a.transport.Register(api.NewRegister(
		a.conf.Agent.DeviceID, a.conf.Agent.RegistrationKey,
		a.conf.Agent.Model, a.conf.Agent.OSVersion))
}

// onRegistered persists the auth token from the registration ack;
// session requests cannot be made until one arrived.
func (a *Agent) onRegistered(env api.Envelope) {
	ack := api.Unwrap[api.RegistrationAck](env.Raw)
	if ack == nil || ack.Token == "" {
		a.log.Warn().Msg("registration ack without token")
		return
	}
	if err := a.store.SetToken(ack.Token); err != nil {
		a.log.Error().Err(err).Msg("auth token not persisted")
		return
	}
	a.log.Info().Msg("device registered")
}

// supervise bridges the coordinators: session acceptance boots the
// stream, fatal transport errors fail the session.
func (a *Agent) supervise(ctx context.Context) {
	for {
		select {
		case <-ctx.Done():
			return
		case u := <-a.session.Updates():
			a.onSession(u)
		case err := <-a.transport.Errs():
			a.session.Fail(err.Error())
		case err := <-a.rtc.Errs():
			a.log.Error().Err(err).Msg("negotiation error")
		case ev := <-a.files.Events():
			a.onShareEvent(ev)
		}
	}
}

func (a *Agent) onSession(u session.Update) {
	a.log.Info().Msgf("session %s", u.State)
	switch u.State {
	case session.Connected:
		a.rtc.StartCapture("")
		a.session.StreamStarted()
	case session.Failed, session.Timeout, session.Rejected:
		if u.Message != "" {
			a.log.Warn().Msgf("session problem: %s", u.Message)
		}
	}
}

func (a *Agent) onShareEvent(ev fileshare.Event) {
	switch ev.Kind {
	case fileshare.EventPermissionNeeded:
		a.log.Warn().Msg("file access permission required")
	case fileshare.EventTransferFailed:
		a.log.Warn().Msgf("transfer failed: %s", ev.Message)
	case fileshare.EventTransferDone:
		a.log.Info().Msgf("transfer done: %s", ev.Message)
	case fileshare.EventDecision:
		a.log.Info().Msgf("file share decision: accepted=%v", ev.Accepted)
	}
}

// RequestSession exposes the session trigger to the host UI.
func (a *Agent) RequestSession() { a.session.Request() }

// Confirm answers the final confirmation prompt.
func (a *Agent) Confirm(accepted bool) { a.session.Confirm(accepted) }

func (a *Agent) Shutdown(ctx context.Context) error {
	a.session.Disconnect()
	// give the terminate frame a moment on the wire
	time.Sleep(100 * time.Millisecond)
	if err := a.transport.Deregister(a.conf.Agent.RegistrationKey); err != nil {
		a.log.Warn().Err(err).Msg("deregister failed")
	} else if err = a.store.Clear(); err != nil {
		a.log.Warn().Err(err).Msg("keystore not cleared")
	}
	a.transport.Disconnect()
	if a.cancel != nil {
		a.cancel()
	}
	if a.conf.Monitoring.IsEnabled() {
		return a.monitor.Shutdown(ctx)
	}
	return nil
}

func serverURL(s config.Server) url.URL {
	scheme := "ws"
	if s.Secure {
		scheme = "wss"
	}
	return url.URL{Scheme: scheme, Host: s.Address, Path: s.Endpoint}
}
