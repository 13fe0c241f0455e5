// Package queue is the durable offline mutation queue. Writes that fail on
// the network are captured here and replayed to the backend in one batch;
// idempotency keys make the full-batch retry safe.
package queue

import (
	"context"
	"errors"
	"fmt"
	"log"
	"sync"
	"time"

	"courierlink/api"
	"courierlink/events"
	"courierlink/protocol"
	"courierlink/store"

	"github.com/google/uuid"
)

// ErrFlushInProgress is returned when a flush is requested while another is
// still outstanding. Two concurrent flushes would race on the final clear.
var ErrFlushInProgress = errors.New("flush already in progress")

// ErrStorage marks a persistence failure on enqueue. The mutation is lost,
// which breaks the no-loss-while-offline guarantee, so callers must surface
// it to the operator rather than swallow it.
var ErrStorage = errors.New("offline storage unavailable")

// Syncer is the batch endpoint of the backend client.
type Syncer interface {
	SyncBatch(ctx context.Context, updates []protocol.PendingMutation) (*api.SyncResult, error)
}

// Queue wraps the persisted mutation list with single-flight flush
// semantics. One instance exists per process; the enqueue/flush pair is the
// only writer to the underlying table.
type Queue struct {
	db     *store.DB
	syncer Syncer
	bus    *events.Bus

	flushMu sync.Mutex
}

// New creates the queue.
func New(db *store.DB, syncer Syncer, bus *events.Bus) *Queue {
	return &Queue{db: db, syncer: syncer, bus: bus}
}

// Enqueue persists a mutation at the end of the queue. A missing
// clientRequestId is minted here, exactly once; retries must reuse it. A
// missing occurredAt is stamped with the current time, since enqueue happens
// at the moment of the real-world event, not at flush time.
func (q *Queue) Enqueue(m protocol.PendingMutation) (protocol.PendingMutation, error) {
	if m.ClientRequestID == "" {
		m.ClientRequestID = uuid.New().String()
	}
	if m.OccurredAt == "" {
		m.OccurredAt = time.Now().UTC().Format(time.RFC3339)
	}

	if _, err := q.db.EnqueueMutation(&m); err != nil {
		return m, fmt.Errorf("%w: %v", ErrStorage, err)
	}

	q.bus.Emit(events.Event{Type: events.EventMutationQueued, Payload: events.MutationQueuedEvent{
		OrderID:         m.OrderID,
		Kind:            m.Kind,
		ClientRequestID: m.ClientRequestID,
	}})
	return m, nil
}

// PeekAll returns the queued mutations in flush order without mutating the
// queue.
func (q *Queue) PeekAll() ([]protocol.PendingMutation, error) {
	return q.db.ListPendingMutations()
}

// Depth returns the number of queued mutations.
func (q *Queue) Depth() (int, error) {
	return q.db.CountPendingMutations()
}

// Clear removes all queued mutations. Only a confirmed full-batch success
// may call this.
func (q *Queue) Clear() error {
	return q.db.ClearMutations()
}

// FlushResult reports a completed flush.
type FlushResult struct {
	Attempted int `json:"attempted"`
	Processed int `json:"processed"`
}

// Flush submits the entire queue in one batch and clears it on confirmed
// success. Any error leaves the queue byte-for-byte unchanged: the next
// flush retries the same full batch under the same idempotency keys. Only
// one flush may be in progress at a time; concurrent callers get
// ErrFlushInProgress.
func (q *Queue) Flush(ctx context.Context) (FlushResult, error) {
	if !q.flushMu.TryLock() {
		return FlushResult{}, ErrFlushInProgress
	}
	defer q.flushMu.Unlock()

	pending, err := q.db.ListPendingMutations()
	if err != nil {
		return FlushResult{}, fmt.Errorf("read queue: %w", err)
	}
	if len(pending) == 0 {
		return FlushResult{}, nil
	}

	res, err := q.syncer.SyncBatch(ctx, pending)
	if err != nil {
		return FlushResult{Attempted: len(pending)}, err
	}
	if res.SuccessCount < 0 {
		return FlushResult{Attempted: len(pending)}, fmt.Errorf("sync reported invalid successCount %d", res.SuccessCount)
	}

	if err := q.db.ClearMutations(); err != nil {
		return FlushResult{Attempted: len(pending)}, fmt.Errorf("clear queue: %w", err)
	}

	log.Printf("queue: flushed %d mutation(s), server processed %d", len(pending), res.SuccessCount)
	q.bus.Emit(events.Event{Type: events.EventQueueFlushed, Payload: events.QueueFlushedEvent{Processed: res.SuccessCount}})

	return FlushResult{Attempted: len(pending), Processed: res.SuccessCount}, nil
}
