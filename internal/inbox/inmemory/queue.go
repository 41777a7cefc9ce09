package inmemory

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/dvloznov/expense-sync/internal/inbox"
	"github.com/dvloznov/expense-sync/internal/logger"
)

// Queue is an in-memory implementation of message publisher and consumer.
// A single worker processes messages one at a time in publish order.
// Messages are never retried: a failed message stays failed.
//
// A published message is either handed to the worker or its claim is
// released and Publish returns an error. Messages still pending when the
// worker stopped early are picked up again by the next Start on the same
// store.
type Queue struct {
	msgChan    chan *inbox.Message
	stopping   chan struct{}
	closeChan  chan struct{}
	workerDone chan struct{}
	publishing sync.WaitGroup
	wg         sync.WaitGroup
	mu         sync.RWMutex
	store      inbox.Store
	closed     bool
	started    bool
	now        func() time.Time
}

// NewQueue creates a new in-memory message queue.
// bufferSize determines how many messages can be queued before Publish blocks.
func NewQueue(bufferSize int, store inbox.Store) *Queue {
	return &Queue{
		msgChan:    make(chan *inbox.Message, bufferSize),
		stopping:   make(chan struct{}),
		closeChan:  make(chan struct{}),
		workerDone: make(chan struct{}),
		store:      store,
		now:        time.Now,
	}
}

var errClosed = errors.New("queue is closed")

// Publish implements the Publisher interface.
func (q *Queue) Publish(ctx context.Context, msg *inbox.Message) error {
	q.mu.RLock()
	if q.closed {
		q.mu.RUnlock()
		return errClosed
	}
	q.publishing.Add(1)
	q.mu.RUnlock()
	defer q.publishing.Done()

	// Generate message ID if not provided
	if msg.ID == "" {
		msg.ID = uuid.New().String()
	}
	if msg.ReceivedAt.IsZero() {
		msg.ReceivedAt = q.now()
	}
	msg.Status = inbox.MessageStatusPending

	fresh, err := q.store.Claim(ctx, msg.ID)
	if err != nil {
		return fmt.Errorf("failed to claim message: %w", err)
	}
	if !fresh {
		return fmt.Errorf("%w: %s", inbox.ErrDuplicate, msg.ID)
	}

	if err := q.store.SaveMessage(ctx, msg); err != nil {
		return q.release(ctx, msg.ID, fmt.Errorf("failed to save message: %w", err))
	}

	select {
	case q.msgChan <- msg:
		return nil
	case <-ctx.Done():
		return q.release(ctx, msg.ID, ctx.Err())
	case <-q.stopping:
		return q.release(ctx, msg.ID, errClosed)
	case <-q.workerDone:
		return q.release(ctx, msg.ID, errClosed)
	}
}

// release drops the claim on a message that never reached the worker and
// returns cause.
func (q *Queue) release(ctx context.Context, id string, cause error) error {
	if err := q.store.Release(context.WithoutCancel(ctx), id); err != nil {
		log := logger.FromContext(ctx)
		log.Error().Err(err).Str("message_id", id).Msg("Failed to release message claim")
		return errors.Join(cause, err)
	}
	return cause
}

// Start implements the Consumer interface. Messages the store still holds
// as pending are processed before newly published ones.
func (q *Queue) Start(ctx context.Context, handler inbox.Handler) error {
	q.mu.Lock()
	defer q.mu.Unlock()

	if q.closed {
		return errClosed
	}
	if q.started {
		return fmt.Errorf("queue is already started")
	}

	pending, err := q.store.Pending(ctx)
	if err != nil {
		return fmt.Errorf("failed to load pending messages: %w", err)
	}
	if len(pending) > 0 {
		log := logger.FromContext(ctx)
		log.Info().Int("count", len(pending)).Msg("Resuming pending messages")
	}
	q.started = true

	q.wg.Add(1)
	go q.worker(ctx, handler, pending)
	return nil
}

// worker processes messages until the context ends or the queue is stopped.
// On stop, already queued messages are processed first.
func (q *Queue) worker(ctx context.Context, handler inbox.Handler, pending []*inbox.Message) {
	defer q.wg.Done()
	defer close(q.workerDone)

	for _, msg := range pending {
		if ctx.Err() != nil {
			return
		}
		q.process(ctx, msg, handler)
	}

	for {
		select {
		case <-ctx.Done():
			return
		case <-q.closeChan:
			for {
				select {
				case msg := <-q.msgChan:
					q.process(ctx, msg, handler)
				default:
					return
				}
			}
		case msg := <-q.msgChan:
			q.process(ctx, msg, handler)
		}
	}
}

// process runs the handler on one message and records the outcome.
func (q *Queue) process(ctx context.Context, msg *inbox.Message, handler inbox.Handler) {
	log := logger.FromContext(ctx)

	// A message published before Start is also among the resumed ones.
	stored, err := q.store.GetMessage(ctx, msg.ID)
	if errors.Is(err, inbox.ErrMessageNotFound) || (err == nil && stored.Status != inbox.MessageStatusPending) {
		return
	}

	msg.Status = inbox.MessageStatusProcessing
	_ = q.store.SaveMessage(ctx, msg)

	err = handler(ctx, msg)

	processedAt := q.now()
	msg.ProcessedAt = &processedAt
	if err != nil {
		msg.Status = inbox.MessageStatusFailed
		msg.Error = err.Error()
		log.Warn().Err(err).Str("message_id", msg.ID).Msg("Failed to process message")
	} else if msg.Status == inbox.MessageStatusProcessing {
		msg.Status = inbox.MessageStatusUnmatched
	}

	if err := q.store.SaveMessage(ctx, msg); err != nil {
		log.Warn().Err(err).Str("message_id", msg.ID).Msg("Failed to save message state")
	}
}

// Stop implements the Consumer interface. It waits for queued messages to be
// processed, or for ctx to end.
func (q *Queue) Stop(ctx context.Context) error {
	q.mu.Lock()
	if q.closed {
		q.mu.Unlock()
		return nil
	}
	q.closed = true
	close(q.stopping)
	q.mu.Unlock()

	done := make(chan struct{})
	go func() {
		// Every send into msgChan finishes before the worker starts draining.
		q.publishing.Wait()
		close(q.closeChan)
		q.wg.Wait()
		close(done)
	}()

	select {
	case <-done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Close implements the Publisher interface.
func (q *Queue) Close() error {
	return q.Stop(context.Background())
}

// Ensure Queue implements both Publisher and Consumer interfaces.
var _ inbox.Publisher = (*Queue)(nil)
var _ inbox.Consumer = (*Queue)(nil)
