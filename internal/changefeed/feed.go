package changefeed

import (
	"context"
	"sync"

	"ms-boxoffice/internal/models"
)

// Notifier receives every committed order write.
type Notifier interface {
	Notify(ctx context.Context, change models.OrderChange) error
}

type subscriber struct {
	ch   chan models.OrderChange
	seen map[string]int64
	once sync.Once
}

// deliver drops changes older than what the subscriber already saw, so
// versions for one order only ever move forward on a channel.
func (s *subscriber) deliver(change models.OrderChange) {
	if change.Version <= s.seen[change.OrderID] {
		return
	}
	select {
	case s.ch <- change:
		s.seen[change.OrderID] = change.Version
	default:
		// slow client, skip; the next change carries the full order anyway
	}
}

// Feed fans committed order changes out to live subscribers: a buyer
// watching one order, or an admin console watching one event.
type Feed struct {
	mu         sync.Mutex
	orderSubs  map[string][]*subscriber
	eventSubs  map[string][]*subscriber
	bufferSize int
}

func NewFeed(bufferSize int) *Feed {
	if bufferSize <= 0 {
		bufferSize = 10
	}
	return &Feed{
		orderSubs:  make(map[string][]*subscriber),
		eventSubs:  make(map[string][]*subscriber),
		bufferSize: bufferSize,
	}
}

// SubscribeOrder streams changes of one order. The returned func removes the
// subscription and closes the channel; it is safe to call more than once.
func (f *Feed) SubscribeOrder(orderID string) (<-chan models.OrderChange, func()) {
	return f.subscribe(f.orderSubs, orderID)
}

// SubscribeEvent streams changes of every order of one event.
func (f *Feed) SubscribeEvent(eventID string) (<-chan models.OrderChange, func()) {
	return f.subscribe(f.eventSubs, eventID)
}

func (f *Feed) subscribe(subs map[string][]*subscriber, key string) (<-chan models.OrderChange, func()) {
	s := &subscriber{
		ch:   make(chan models.OrderChange, f.bufferSize),
		seen: map[string]int64{},
	}

	f.mu.Lock()
	subs[key] = append(subs[key], s)
	f.mu.Unlock()

	return s.ch, func() { f.remove(subs, key, s) }
}

func (f *Feed) remove(subs map[string][]*subscriber, key string, s *subscriber) {
	f.mu.Lock()
	defer f.mu.Unlock()

	clients := subs[key]
	for i, c := range clients {
		if c == s {
			subs[key] = append(clients[:i], clients[i+1:]...)
			break
		}
	}
	if len(subs[key]) == 0 {
		delete(subs, key)
	}
	s.once.Do(func() { close(s.ch) })
}

// Notify publishes change to the order's and the event's subscribers. It
// never blocks on a slow subscriber.
func (f *Feed) Notify(_ context.Context, change models.OrderChange) error {
	f.mu.Lock()
	defer f.mu.Unlock()

	for _, s := range f.orderSubs[change.OrderID] {
		s.deliver(change)
	}
	for _, s := range f.eventSubs[change.EventID] {
		s.deliver(change)
	}
	return nil
}

func (f *Feed) OrderSubscribers(orderID string) int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.orderSubs[orderID])
}

func (f *Feed) EventSubscribers(eventID string) int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.eventSubs[eventID])
}
