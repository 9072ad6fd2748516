package kafka

import (
	"context"
	"encoding/json"
	"errors"
	"sync"
	"testing"

	"ms-boxoffice/internal/logger"
	"ms-boxoffice/internal/models"

	"github.com/segmentio/kafka-go"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeWriter struct {
	msgs []kafka.Message
	err  error
}

func (w *fakeWriter) WriteMessages(_ context.Context, msgs ...kafka.Message) error {
	if w.err != nil {
		return w.err
	}
	w.msgs = append(w.msgs, msgs...)
	return nil
}

func (w *fakeWriter) Close() error { return nil }

// fakeReader serves queued messages, then blocks until the context ends.
type fakeReader struct {
	mu        sync.Mutex
	queue     []kafka.Message
	committed []int64
}

func (r *fakeReader) FetchMessage(ctx context.Context) (kafka.Message, error) {
	r.mu.Lock()
	if len(r.queue) > 0 {
		msg := r.queue[0]
		r.queue = r.queue[1:]
		r.mu.Unlock()
		return msg, nil
	}
	r.mu.Unlock()
	<-ctx.Done()
	return kafka.Message{}, ctx.Err()
}

func (r *fakeReader) CommitMessages(ctx context.Context, msgs ...kafka.Message) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, m := range msgs {
		r.committed = append(r.committed, m.Offset)
	}
	return nil
}

func (r *fakeReader) Close() error { return nil }

func (r *fakeReader) committedOffsets() []int64 {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]int64(nil), r.committed...)
}

func sampleChange() models.OrderChange {
	before := &models.Order{ID: "ord-1", EventID: "evt-1", Status: models.StatusDraft, Version: 4}
	after := before.Clone()
	after.Status = models.StatusPaid
	after.Version = 5
	return models.NewOrderChange(before, after)
}

func TestProducerKeysByOrderID(t *testing.T) {
	w := &fakeWriter{}
	p := &Producer{Writer: w, topic: "changes", log: logger.Discard()}

	require.NoError(t, p.Notify(context.Background(), sampleChange()))
	require.Len(t, w.msgs, 1)
	assert.Equal(t, "ord-1", string(w.msgs[0].Key))
	assert.Equal(t, "type", w.msgs[0].Headers[0].Key)

	var decoded models.OrderChange
	require.NoError(t, json.Unmarshal(w.msgs[0].Value, &decoded))
	assert.Equal(t, int64(5), decoded.Version)
	assert.Equal(t, models.StatusDraft, decoded.Before.Status)
	assert.Equal(t, models.StatusPaid, decoded.After.Status)
}

func TestProducerWrapsWriteErrors(t *testing.T) {
	p := &Producer{Writer: &fakeWriter{err: errors.New("leader not available")}, topic: "changes", log: logger.Discard()}

	err := p.Notify(context.Background(), sampleChange())
	assert.ErrorContains(t, err, "ord-1")
	assert.ErrorContains(t, err, "leader not available")
}

func TestConsumerHandlesAndCommits(t *testing.T) {
	value, err := json.Marshal(sampleChange())
	require.NoError(t, err)

	reader := &fakeReader{queue: []kafka.Message{
		{Offset: 1, Value: []byte("not json")},
		{Offset: 2, Key: []byte("ord-1"), Value: value},
	}}
	c := &Consumer{reader: reader, topic: "changes", log: logger.Discard()}

	ctx, cancel := context.WithCancel(context.Background())
	var handled []models.OrderChange
	done := make(chan error, 1)
	go func() {
		done <- c.Start(ctx, func(_ context.Context, change models.OrderChange) {
			handled = append(handled, change)
			cancel()
		})
	}()

	require.NoError(t, <-done)
	require.Len(t, handled, 1)
	assert.Equal(t, "ord-1", handled[0].OrderID)
	assert.Equal(t, []int64{1, 2}, reader.committedOffsets(), "malformed messages are committed and skipped")
}

func TestConsumerCommitsOnlyAfterHandlerFinishes(t *testing.T) {
	value, err := json.Marshal(sampleChange())
	require.NoError(t, err)

	reader := &fakeReader{queue: []kafka.Message{{Offset: 7, Key: []byte("ord-1"), Value: value}}}
	c := &Consumer{reader: reader, topic: "changes", log: logger.Discard()}

	ctx, cancel := context.WithCancel(context.Background())
	var seenDuringHandle []int64
	var handlerCtxErr error
	done := make(chan error, 1)
	go func() {
		done <- c.Start(ctx, func(hctx context.Context, _ models.OrderChange) {
			// shutdown arrives while the change is being fulfilled
			cancel()
			seenDuringHandle = reader.committedOffsets()
			handlerCtxErr = hctx.Err()
		})
	}()

	require.NoError(t, <-done)
	assert.Empty(t, seenDuringHandle, "nothing is committed before the handler returns")
	assert.NoError(t, handlerCtxErr, "in-flight handling is not cut short by shutdown")
	assert.Equal(t, []int64{7}, reader.committedOffsets())
}
