// Package input relays remote control gestures to the host platform.
// Frames pass through untouched past the type check; parsing the
// coordinates is the sink's business.
package input

import (
	"github.com/screenport/agent/pkg/api"
	"github.com/screenport/agent/pkg/logger"
)

// EventSink executes one gesture on the host. Implementations live
// outside this module (platform injection service).
type EventSink interface {
	Inject(kind string, frame []byte) error
}

type Forwarder struct {
	sink EventSink
	log  *logger.Logger
}

func NewForwarder(sink EventSink, log *logger.Logger) *Forwarder {
	return &Forwarder{sink: sink, log: log.Extend(log.With().Str("d", "in"))}
}

func (f *Forwarder) Handle(env api.Envelope) {
	if err := f.sink.Inject(env.Type, env.Raw); err != nil {
		f.log.Error().Err(err).Msgf("gesture %q failed", env.Type)
	}
}

// Nop discards gestures; used when no injection service is wired.
type Nop struct{}

func (Nop) Inject(string, []byte) error { return nil }
