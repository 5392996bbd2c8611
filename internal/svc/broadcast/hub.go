package broadcast

import (
	"context"
	"errors"
	"sync"

	"github.com/mkrupp/feed/internal/domain"
	"github.com/mkrupp/feed/internal/infra/logging"
)

// ErrHubClosed is returned when subscribing to a closed hub.
var ErrHubClosed = errors.New("hub closed")

// HubConfig holds configuration parameters for the broadcast hub.
type HubConfig struct {
	// QueueSize is the number of undelivered events buffered per subscriber.
	// A subscriber whose queue is full is dropped.
	QueueSize int `env:"QUEUE_SIZE" default:"16"`
}

// Subscription receives the events published after it was created.
type Subscription struct {
	events chan domain.Event
	hub    *Hub
}

// Events returns the event queue. It is closed when the subscription ends.
func (sub *Subscription) Events() <-chan domain.Event {
	return sub.events
}

// Close ends the subscription. It is safe to call more than once.
func (sub *Subscription) Close() {
	sub.hub.Unsubscribe(sub)
}

// Hub fans out events to all current subscribers.
// Publishing never blocks: every subscriber has a bounded queue and is
// dropped when it falls behind.
type Hub struct {
	mu     sync.Mutex
	subs   map[*Subscription]struct{}
	closed bool
	cfg    HubConfig
	log    logging.Logger
}

// NewHub creates an empty Hub.
func NewHub(cfg HubConfig) *Hub {
	if cfg.QueueSize < 1 {
		cfg.QueueSize = 1
	}

	return &Hub{
		subs: make(map[*Subscription]struct{}),
		cfg:  cfg,
		log:  logging.GetLogger("svc.broadcast.hub"),
	}
}

// Subscribe registers a new subscriber.
func (h *Hub) Subscribe() (*Subscription, error) {
	h.mu.Lock()
	defer h.mu.Unlock()

	if h.closed {
		return nil, ErrHubClosed
	}

	sub := &Subscription{
		events: make(chan domain.Event, h.cfg.QueueSize),
		hub:    h,
	}
	h.subs[sub] = struct{}{}

	return sub, nil
}

// Unsubscribe removes sub and closes its queue. Unknown or already removed
// subscriptions are ignored.
func (h *Hub) Unsubscribe(sub *Subscription) {
	h.mu.Lock()
	defer h.mu.Unlock()

	h.remove(sub)
}

// remove requires h.mu.
func (h *Hub) remove(sub *Subscription) {
	if _, ok := h.subs[sub]; !ok {
		return
	}

	delete(h.subs, sub)
	close(sub.events)
}

// Publish queues event for every subscriber. Subscribers see events in publish order.
func (h *Hub) Publish(ctx context.Context, event domain.Event) {
	h.mu.Lock()
	defer h.mu.Unlock()

	var dropped int

	for sub := range h.subs {
		select {
		case sub.events <- event:
		default:
			h.remove(sub)

			dropped++
		}
	}

	log := h.log.With(logging.Group("event", "action", event.Action, "post_id", event.PostID))

	if dropped > 0 {
		log.WarnContext(ctx, "slow subscribers dropped", "dropped", dropped)
	}

	log.DebugContext(ctx, "event published", "subscribers", len(h.subs))
}

// Len returns the number of current subscribers.
func (h *Hub) Len() int {
	h.mu.Lock()
	defer h.mu.Unlock()

	return len(h.subs)
}

// Close ends all subscriptions and rejects new ones.
func (h *Hub) Close() {
	h.mu.Lock()
	defer h.mu.Unlock()

	for sub := range h.subs {
		h.remove(sub)
	}

	h.closed = true
}
