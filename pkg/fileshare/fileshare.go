// Package fileshare implements the browse/upload/download exchange
// that runs next to an active remote-control session.
//
// Three operations arrive over the signaling connection: a directory
// listing (browse_request), a push of an archive onto this device
// (upload_files) and a pull of local files to the controller
// (download_request). Transfers run off the coordinator goroutine;
// every state change comes back through the command channel.
package fileshare

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/rs/xid"
	"github.com/screenport/agent/pkg/api"
	zipfmt "github.com/screenport/agent/pkg/compression/zip"
	"github.com/screenport/agent/pkg/config"
	"github.com/screenport/agent/pkg/logger"
	"github.com/screenport/agent/pkg/storage"
)

type State int

const (
	Idle State = iota
	Requested
	Active
	Transferring
	Errored
	Terminated
)

func (s State) String() string {
	switch s {
	case Idle:
		return "idle"
	case Requested:
		return "requested"
	case Active:
		return "active"
	case Transferring:
		return "transferring"
	case Errored:
		return "error"
	case Terminated:
		return "terminated"
	}
	return "unknown"
}

// EventKind tags the UI-facing notifications of the exchange.
type EventKind int

const (
	// EventPermissionNeeded asks the host to grant filesystem access.
	EventPermissionNeeded EventKind = iota
	EventTransferDone
	EventTransferFailed
	EventDecision
)

type Event struct {
	Kind    EventKind
	Message string
	// Accepted carries the peer's verdict for EventDecision.
	Accepted bool
}

type Sender interface {
	Send(v any) error
}

// Fetcher pulls a remote archive into a local directory.
type Fetcher interface {
	Fetch(ctx context.Context, url string, dest string) (string, error)
}

// Archiver packs and unpacks transfer archives.
type Archiver interface {
	Extract(src string, dest string) ([]string, error)
	Create(dst string, paths []string) error
}

// Uploader posts a local file to the share endpoint.
type Uploader interface {
	Upload(ctx context.Context, endpoint string, fields map[string]string, path string, name string) error
}

type Coordinator struct {
	deviceID string
	endpoint string
	out      Sender
	store    storage.Accessor
	fetch    Fetcher
	archive  Archiver
	upload   Uploader
	conf     config.FileShare
	log      *logger.Logger

	inbox  chan api.Envelope
	cmds   chan func()
	events chan Event

	// actor-owned, mutated only inside Run
	state          State
	sessionID      string
	lastBrowsePath string
}

func New(deviceID, endpoint string, out Sender, store storage.Accessor, fetch Fetcher,
	archive Archiver, upload Uploader, conf config.FileShare, log *logger.Logger) *Coordinator {
	return &Coordinator{
		deviceID: deviceID,
		endpoint: endpoint,
		out:      out,
		store:    store,
		fetch:    fetch,
		archive:  archive,
		upload:   upload,
		conf:     conf,
		log:      log.Extend(log.With().Str("d", "fs")),
		inbox:    make(chan api.Envelope, 64),
		cmds:     make(chan func(), 16),
		events:   make(chan Event, 8),
	}
}

// Handle enqueues a routed file share frame; never blocks the router.
func (c *Coordinator) Handle(env api.Envelope) {
	select {
	case c.inbox <- env:
	default:
		c.log.Warn().Msgf("file share inbox full, dropped %q", env.Type)
	}
}

// Events surfaces host-facing notifications (permission prompts,
// transfer outcomes).
func (c *Coordinator) Events() <-chan Event { return c.events }

func (c *Coordinator) Run(ctx context.Context) {
	for {
		select {
		case <-ctx.Done():
			return
		case env := <-c.inbox:
			c.handleFrame(ctx, env)
		case fn := <-c.cmds:
			fn()
		}
	}
}

// RequestSession asks the controller to open a file share exchange
// inside the given session.
func (c *Coordinator) RequestSession(sessionID string) {
	c.post(func() {
		if err := c.out.Send(api.NewRequestSessionFileshare(c.deviceID, sessionID)); err != nil {
			c.log.Error().Err(err).Msg("file share request failed")
			return
		}
		c.sessionID = sessionID
		c.setState(Requested)
	})
}

// Terminate ends the exchange when the surrounding session closes.
func (c *Coordinator) Terminate() {
	c.post(func() {
		c.sessionID = ""
		c.lastBrowsePath = ""
		c.setState(Terminated)
	})
}

func (c *Coordinator) post(fn func()) {
	select {
	case c.cmds <- fn:
	default:
		c.log.Error().Msg("file share command queue full")
	}
}

func (c *Coordinator) handleFrame(ctx context.Context, env api.Envelope) {
	switch env.Type {
	case api.MsgDecisionFileshare:
		c.handleDecision(env)
	case api.MsgBrowseRequest:
		c.handleBrowse(env)
	case api.MsgUploadFiles:
		c.handleUpload(ctx, env)
	case api.MsgDownloadRequest:
		c.handleDownload(ctx, env)
	default:
		c.log.Debug().Msgf("ignored frame %q", env.Type)
	}
}

func (c *Coordinator) handleDecision(env api.Envelope) {
	d := api.Unwrap[api.DecisionFileshare](env.Raw)
	if d == nil {
		c.log.Warn().Msg("malformed decision frame")
		return
	}
	if d.Decision {
		c.setState(Active)
	} else {
		c.sessionID = ""
		c.setState(Idle)
	}
	c.emit(Event{Kind: EventDecision, Accepted: d.Decision})
}

// handleBrowse always answers, even when the listing fails: the
// controller's browser would hang on silence.
func (c *Coordinator) handleBrowse(env api.Envelope) {
	req := api.Unwrap[api.BrowseRequest](env.Raw)
	if req == nil {
		c.log.Warn().Msg("malformed browse frame")
		return
	}
	entries, err := c.store.List(req.Path)
	if err != nil {
		if err == storage.ErrPermission {
			c.log.Warn().Msg("file access not granted")
			c.emit(Event{Kind: EventPermissionNeeded})
		} else {
			c.log.Error().Err(err).Msgf("browse %q failed", req.Path)
		}
		c.send(api.NewBrowseResponse(c.deviceID, req.SessionID, req.Path, nil))
		return
	}
	c.lastBrowsePath = req.Path
	c.send(api.NewBrowseResponse(c.deviceID, req.SessionID, req.Path, entries))
	c.log.Debug().Msgf("browse %q: %d entries", req.Path, len(entries))
}

// handleUpload pulls the controller's archive and unpacks it under the
// last browsed directory. Exactly one upload_status goes out per
// request, success or not.
func (c *Coordinator) handleUpload(ctx context.Context, env api.Envelope) {
	req := api.Unwrap[api.UploadFiles](env.Raw)
	if req == nil || req.DownloadURL == "" {
		c.log.Warn().Msg("malformed upload frame")
		return
	}
	sessionID := req.SessionID
	if sessionID == "" {
		sessionID = c.sessionID
	}
	name := lastSegment(req.DownloadURL)
	if _, err := c.store.List(c.lastBrowsePath); err == storage.ErrPermission {
		c.log.Warn().Msg("file access not granted")
		c.emit(Event{Kind: EventPermissionNeeded})
		c.send(api.NewUploadStatus(c.deviceID, sessionID, api.UploadFailed,
			"no permission to save files", req.RemotePath, name))
		c.setState(Errored)
		return
	}
	target := c.store.Resolve(c.lastBrowsePath)
	browsed := c.lastBrowsePath
	c.setState(Transferring)

	go func() {
		status := c.receiveArchive(ctx, sessionID, req.DownloadURL, target, browsed, req.RemotePath, name)
		c.post(func() {
			c.send(status)
			if status.Status == api.UploadOk {
				c.setState(Active)
				c.emit(Event{Kind: EventTransferDone, Message: status.Path})
			} else {
				c.setState(Errored)
				c.emit(Event{Kind: EventTransferFailed, Message: status.Message})
			}
		})
	}()
}

// receiveArchive runs off the coordinator goroutine. The temp
// directory is removed on every path out.
func (c *Coordinator) receiveArchive(ctx context.Context, sessionID, url, target, browsed, remotePath, name string) api.UploadStatus {
	fail := func(msg string) api.UploadStatus {
		return api.NewUploadStatus(c.deviceID, sessionID, api.UploadFailed, msg, remotePath, name)
	}

	tmp, err := os.MkdirTemp(c.conf.TempDir, "share-*")
	if err != nil {
		return fail(fmt.Sprintf("failed to stage download: %v", err))
	}
	defer func() {
		if err := os.RemoveAll(tmp); err != nil {
			c.log.Error().Err(err).Msg("temp cleanup failed")
		}
	}()

	archive, err := c.fetch.Fetch(ctx, url, tmp)
	if err != nil {
		return fail(fmt.Sprintf("failed to download file: %v", err))
	}
	if err = os.MkdirAll(target, os.ModePerm); err != nil {
		return fail(fmt.Sprintf("failed to create target directory: %v", err))
	}
	files, err := c.archive.Extract(archive, target)
	if err != nil {
		return fail(fmt.Sprintf("extraction failed: %v", err))
	}
	c.log.Info().Msgf("received %d file(s) into %s", len(files), target)
	return api.NewUploadStatus(c.deviceID, sessionID, api.UploadOk,
		fmt.Sprintf("files received successfully at %s", browsed), browsed, name)
}

// handleDownload stages the requested paths and posts them to the
// share endpoint. Failures surface to the host only; the wire stays
// silent apart from the success response.
func (c *Coordinator) handleDownload(ctx context.Context, env api.Envelope) {
	req := api.Unwrap[api.DownloadRequest](env.Raw)
	if req == nil || len(req.Paths) == 0 {
		c.log.Warn().Msg("malformed download frame")
		return
	}
	if _, err := c.store.List(c.lastBrowsePath); err == storage.ErrPermission {
		c.log.Warn().Msg("file access not granted")
		c.emit(Event{Kind: EventPermissionNeeded})
		return
	}
	base := c.store.Resolve(c.lastBrowsePath)
	sessionID := req.SessionID
	paths := req.Paths
	c.setState(Transferring)

	go func() {
		err := c.stageAndUpload(ctx, base, sessionID, paths)
		c.post(func() {
			if err != nil {
				c.log.Error().Err(err).Msg("download staging failed")
				c.setState(Errored)
				c.emit(Event{Kind: EventTransferFailed, Message: err.Error()})
				return
			}
			c.send(api.NewDownloadResponse(c.deviceID, sessionID, c.endpoint))
			c.setState(Active)
			c.emit(Event{Kind: EventTransferDone, Message: c.endpoint})
		})
	}()
}

// stageAndUpload runs off the coordinator goroutine. A single regular
// file goes up as-is; anything else is archived first.
func (c *Coordinator) stageAndUpload(ctx context.Context, base, sessionID string, paths []api.PathItem) error {
	if info, err := os.Stat(base); err != nil || !info.IsDir() {
		return fmt.Errorf("browsed directory unavailable: %s", base)
	}
	fields := map[string]string{"deviceId": c.deviceID, "sessionId": sessionID}

	if len(paths) == 1 && paths[0].Type != api.EntryFolder {
		file := filepath.Join(base, paths[0].Name)
		info, err := os.Stat(file)
		if err != nil || info.IsDir() {
			return fmt.Errorf("not a regular file: %s", file)
		}
		return c.upload.Upload(ctx, c.endpoint, fields, file, paths[0].Name)
	}

	abs := make([]string, 0, len(paths))
	for _, p := range paths {
		abs = append(abs, filepath.Join(base, p.Name))
	}
	tmp, err := os.MkdirTemp(c.conf.TempDir, "share-*")
	if err != nil {
		return err
	}
	defer func() {
		if err := os.RemoveAll(tmp); err != nil {
			c.log.Error().Err(err).Msg("temp cleanup failed")
		}
	}()
	name := c.deviceID + "_files_" + xid.New().String() + zipfmt.Ext
	archive := filepath.Join(tmp, name)
	if err = c.archive.Create(archive, abs); err != nil {
		return fmt.Errorf("archive failed: %w", err)
	}
	return c.upload.Upload(ctx, c.endpoint, fields, archive, name)
}

func (c *Coordinator) setState(s State) {
	if c.state == s {
		return
	}
	c.log.Info().Msgf("file share state %s -> %s", c.state, s)
	c.state = s
}

func (c *Coordinator) send(v any) {
	if err := c.out.Send(v); err != nil {
		c.log.Error().Err(err).Msg("file share send failed")
	}
}

func (c *Coordinator) emit(ev Event) {
	select {
	case c.events <- ev:
	default:
		c.log.Warn().Msg("event channel full, host notification dropped")
	}
}

func lastSegment(url string) string {
	if i := strings.LastIndexByte(url, '/'); i >= 0 {
		return url[i+1:]
	}
	return url
}
