package changefeed

import (
	"context"
	"fmt"
	"hash/fnv"
	"sync"

	"ms-boxoffice/internal/logger"
	"ms-boxoffice/internal/models"
)

// Handler processes one change. Errors are the handler's to log.
type Handler func(ctx context.Context, change models.OrderChange)

// Dispatcher runs a handler off the request path. Changes for the same order
// always land on the same worker, so they are handled in commit order.
type Dispatcher struct {
	shards  []chan models.OrderChange
	handler Handler
	log     *logger.Logger

	mu     sync.RWMutex
	closed bool
	wg     sync.WaitGroup
}

func NewDispatcher(shards, buffer int, handler Handler, log *logger.Logger) *Dispatcher {
	if shards <= 0 {
		shards = 1
	}
	if buffer <= 0 {
		buffer = 64
	}
	d := &Dispatcher{
		shards:  make([]chan models.OrderChange, shards),
		handler: handler,
		log:     log,
	}
	for i := range d.shards {
		d.shards[i] = make(chan models.OrderChange, buffer)
	}
	return d
}

// Start launches one worker per shard. Workers exit once Close drains them.
func (d *Dispatcher) Start(ctx context.Context) {
	for i, ch := range d.shards {
		d.wg.Add(1)
		go func(shard int, ch <-chan models.OrderChange) {
			defer d.wg.Done()
			for change := range ch {
				d.handle(ctx, shard, change)
			}
		}(i, ch)
	}
	d.log.Info("DISPATCH", fmt.Sprintf("Started %d fulfillment workers", len(d.shards)))
}

func (d *Dispatcher) handle(ctx context.Context, shard int, change models.OrderChange) {
	defer func() {
		if r := recover(); r != nil {
			d.log.Error("DISPATCH", fmt.Sprintf("shard %d: handler panicked on order %s: %v", shard, change.OrderID, r))
		}
	}()
	d.handler(ctx, change)
}

// Notify enqueues change on its order's shard. It blocks only while that
// shard's buffer is full.
func (d *Dispatcher) Notify(ctx context.Context, change models.OrderChange) error {
	d.mu.RLock()
	defer d.mu.RUnlock()
	if d.closed {
		return fmt.Errorf("dispatcher closed, dropping change for order %s", change.OrderID)
	}

	select {
	case d.shards[d.shardFor(change.OrderID)] <- change:
		return nil
	case <-ctx.Done():
		return fmt.Errorf("enqueue change for order %s: %w", change.OrderID, ctx.Err())
	}
}

func (d *Dispatcher) shardFor(orderID string) int {
	h := fnv.New32a()
	h.Write([]byte(orderID))
	return int(h.Sum32() % uint32(len(d.shards)))
}

// Close stops accepting changes and waits for queued ones to be handled.
func (d *Dispatcher) Close() {
	d.mu.Lock()
	if d.closed {
		d.mu.Unlock()
		return
	}
	d.closed = true
	for _, ch := range d.shards {
		close(ch)
	}
	d.mu.Unlock()
	d.wg.Wait()
}
