package stream

import (
	"context"
	"sync"

	"github.com/rs/zerolog/log"
)

const subscriptionBuffer = 16

// Router demultiplexes a raw frame stream into per-kind subscriptions.
// Events fan out: every subscription interested in a kind receives its own
// copy, nothing is consumed exclusively. Unknown kinds are ignored so the
// server can add event types without breaking older clients.
type Router struct {
	mu   sync.Mutex
	subs map[*Subscription]struct{}
}

// Subscription is a filtered view of the event stream.
type Subscription struct {
	router *Router
	kinds  map[Kind]bool
	ch     chan Event
}

func NewRouter() *Router {
	return &Router{subs: make(map[*Subscription]struct{})}
}

// Run decodes and dispatches frames until the context is cancelled or the
// frame channel is closed. Malformed payloads are dropped and logged; they
// never terminate the loop.
func (r *Router) Run(ctx context.Context, frames <-chan Frame) {
	for {
		select {
		case <-ctx.Done():
			return
		case f, ok := <-frames:
			if !ok {
				return
			}
			if !knownKinds[Kind(f.Event)] {
				log.Debug().Str("event", f.Event).Msg("ignoring unknown event kind")
				continue
			}
			ev, err := DecodeEvent(f)
			if err != nil {
				log.Warn().Err(err).Str("event", f.Event).Msg("dropping undecodable event")
				continue
			}
			r.dispatch(ev)
		}
	}
}

// Subscribe returns a subscription delivering events of the given kinds.
// With no kinds, every known event is delivered. Multiple subscriptions
// may coexist; cancel each when done.
func (r *Router) Subscribe(kinds ...Kind) *Subscription {
	sub := &Subscription{
		router: r,
		ch:     make(chan Event, subscriptionBuffer),
	}
	if len(kinds) > 0 {
		sub.kinds = make(map[Kind]bool, len(kinds))
		for _, k := range kinds {
			sub.kinds[k] = true
		}
	}
	r.mu.Lock()
	r.subs[sub] = struct{}{}
	r.mu.Unlock()
	return sub
}

// C returns the subscription's event channel.
func (s *Subscription) C() <-chan Event { return s.ch }

// Cancel detaches the subscription from the router. The channel is not
// closed; buffered events may still be read.
func (s *Subscription) Cancel() {
	s.router.mu.Lock()
	delete(s.router.subs, s)
	s.router.mu.Unlock()
}

func (r *Router) dispatch(ev Event) {
	r.mu.Lock()
	targets := make([]*Subscription, 0, len(r.subs))
	for sub := range r.subs {
		if sub.kinds == nil || sub.kinds[ev.Kind] {
			targets = append(targets, sub)
		}
	}
	r.mu.Unlock()

	for _, sub := range targets {
		select {
		case sub.ch <- ev:
		default:
			log.Warn().Str("kind", string(ev.Kind)).Msg("subscriber buffer full, dropping event")
		}
	}
}
