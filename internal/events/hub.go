package events

import (
	"log/slog"
	"sync"
	"sync/atomic"

	"github.com/kode4food/caravan"
	"github.com/kode4food/caravan/message"
	"github.com/kode4food/caravan/topic"

	"github.com/lgmbx/DataProcessingOrchestrator/pkg/api"
	"github.com/lgmbx/DataProcessingOrchestrator/pkg/log"
)

type (
	// Hub fans instance events out to subscribers. Publishing never blocks
	// on a slow subscriber; a subscriber whose buffer is full misses the
	// event
	Hub struct {
		prod       topic.Producer[*api.InstanceEvent]
		cons       topic.Consumer[*api.InstanceEvent]
		subs       map[uint64]*Subscription
		stop       chan struct{}
		bufferSize int
		nextID     uint64
		queued     atomic.Int64
		mu         sync.RWMutex
		wg         sync.WaitGroup
		startOnce  sync.Once
		stopOnce   sync.Once
		started    bool
		closed     bool
	}

	// Subscription receives the events accepted by its filter until closed
	Subscription struct {
		hub    *Hub
		filter Filter
		ch     chan *api.InstanceEvent
		id     uint64
	}
)

// DefaultBufferSize is the per-subscription buffer used when none is given
const DefaultBufferSize = 64

// NewHub creates an event hub with the given per-subscription buffer size
func NewHub(bufferSize int) *Hub {
	if bufferSize <= 0 {
		bufferSize = DefaultBufferSize
	}
	queue := caravan.NewTopic[*api.InstanceEvent]()
	return &Hub{
		prod:       queue.NewProducer(),
		cons:       queue.NewConsumer(),
		subs:       map[uint64]*Subscription{},
		stop:       make(chan struct{}),
		bufferSize: bufferSize,
	}
}

// Start begins delivering published events to subscribers
func (h *Hub) Start() {
	h.startOnce.Do(func() {
		h.mu.Lock()
		h.started = true
		h.mu.Unlock()
		h.wg.Go(h.deliverLoop)
	})
}

// Stop delivers any queued events, then closes every subscription
func (h *Hub) Stop() {
	h.stopOnce.Do(func() {
		h.mu.Lock()
		h.closed = true
		started := h.started
		h.mu.Unlock()

		h.prod.Close()
		close(h.stop)
		h.wg.Wait()
		if !started {
			h.cons.Close()
		}

		h.mu.Lock()
		defer h.mu.Unlock()
		for id, sub := range h.subs {
			delete(h.subs, id)
			close(sub.ch)
		}
	})
}

// Publish queues an event for delivery. Events published after Stop are
// discarded
func (h *Hub) Publish(ev *api.InstanceEvent) {
	if ev == nil {
		return
	}
	h.mu.RLock()
	defer h.mu.RUnlock()
	if h.closed {
		return
	}
	h.queued.Add(1)
	message.Send(h.prod, ev)
}

// Subscribe registers a subscription for the events accepted by filter. A
// nil filter accepts everything
func (h *Hub) Subscribe(filter Filter) *Subscription {
	if filter == nil {
		filter = All
	}
	sub := &Subscription{
		hub:    h,
		filter: filter,
		ch:     make(chan *api.InstanceEvent, h.bufferSize),
	}

	h.mu.Lock()
	defer h.mu.Unlock()
	if h.closed {
		close(sub.ch)
		return sub
	}
	h.nextID++
	sub.id = h.nextID
	h.subs[sub.id] = sub
	return sub
}

func (h *Hub) deliver(ev *api.InstanceEvent) {
	h.mu.RLock()
	defer h.mu.RUnlock()
	for _, sub := range h.subs {
		if !sub.filter(ev) {
			continue
		}
		select {
		case sub.ch <- ev:
		default:
			slog.Warn("Event dropped for slow subscriber",
				log.InstanceID(ev.InstanceID),
				slog.String("event_type", string(ev.Type)))
		}
	}
}

// deliverLoop owns the consumer and closes it only after every published
// event has been received
func (h *Hub) deliverLoop() {
	defer h.cons.Close()
	defer h.drain()

	for {
		select {
		case <-h.stop:
			return
		case ev, ok := <-h.cons.Receive():
			if !ok {
				return
			}
			h.queued.Add(-1)
			h.deliver(ev)
		}
	}
}

func (h *Hub) drain() {
	for h.queued.Load() > 0 {
		ev, ok := <-h.cons.Receive()
		if !ok {
			return
		}
		h.queued.Add(-1)
		h.deliver(ev)
	}
}

func (h *Hub) unsubscribe(sub *Subscription) {
	h.mu.Lock()
	defer h.mu.Unlock()
	if _, ok := h.subs[sub.id]; !ok {
		return
	}
	delete(h.subs, sub.id)
	close(sub.ch)
}

// Events returns the channel of accepted events. It is closed when the
// subscription or the hub is closed
func (s *Subscription) Events() <-chan *api.InstanceEvent {
	return s.ch
}

// Close ends the subscription
func (s *Subscription) Close() {
	s.hub.unsubscribe(s)
}
