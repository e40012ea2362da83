package signal

import (
	"fmt"

	"github.com/screenport/agent/pkg/api"
	"github.com/screenport/agent/pkg/logger"
	"github.com/screenport/agent/pkg/monitoring"
)

// Handler consumes one routed frame. Handlers run on the router's
// goroutine and must hand off work instead of blocking.
type Handler func(env api.Envelope)

// Router demultiplexes inbound frames by their type discriminator.
// Exactly one subscriber per type: duplicate side effects from
// broadcast dispatch are a protocol bug, not a feature.
type Router struct {
	log      *logger.Logger
	handlers map[string]Handler
}

func NewRouter(log *logger.Logger) *Router {
	return &Router{
		log:      log.Extend(log.With().Str("d", "rt")),
		handlers: make(map[string]Handler),
	}
}

// Subscribe registers h for the given frame types.
// Registration happens during wiring, before Run; a second subscriber
// for a type is rejected.
func (r *Router) Subscribe(h Handler, types ...string) error {
	for _, t := range types {
		if _, ok := r.handlers[t]; ok {
			return fmt.Errorf("signal: type %q already has a subscriber", t)
		}
		r.handlers[t] = h
	}
	return nil
}

// Dispatch parses one raw frame and routes it. Malformed and
// unroutable frames are dropped, never propagated.
func (r *Router) Dispatch(raw []byte) {
	env := api.Unwrap[api.Envelope](raw)
	if env == nil || env.Type == "" {
		monitoring.FramesDropped.WithLabelValues("malformed").Inc()
		r.log.Warn().Msgf("dropped malformed frame: %.128s", raw)
		return
	}
	h, ok := r.handlers[env.Type]
	if !ok {
		monitoring.FramesDropped.WithLabelValues("unroutable").Inc()
		r.log.Debug().Msgf("no subscriber for %q", env.Type)
		return
	}
	switch env.Type {
	case api.MsgOffer, api.MsgAnswer, api.MsgIceCandidate:
		env.Payload = api.FlattenRTCPayload(env.Payload)
	}
	env.Raw = raw
	monitoring.FramesRouted.WithLabelValues(env.Type).Inc()
	h(*env)
}

// Run consumes the channel until it is closed.
func (r *Router) Run(in <-chan []byte) {
	for raw := range in {
		r.Dispatch(raw)
	}
}
