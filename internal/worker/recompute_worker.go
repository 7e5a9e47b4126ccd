package worker

import (
	"context"
	"fmt"
	"sync/atomic"

	"ledger/internal/amqp"
	"ledger/internal/log"
)

// Enqueuer schedules accounts for a background replay.
type Enqueuer interface {
	Enqueue(ids ...string)
}

// RecomputeWorker turns ledger events into replays of the accounts they
// touched. Replays are idempotent, so redelivered events are harmless.
type RecomputeWorker struct {
	queue  Enqueuer
	logger *log.Logger

	handled int64
	skipped int64
}

func NewRecomputeWorker(queue Enqueuer, logger *log.Logger) *RecomputeWorker {
	if logger == nil {
		logger = log.New(log.DefaultConfig())
	}
	return &RecomputeWorker{
		queue:  queue,
		logger: logger.WithComponent(log.ComponentWorker),
	}
}

// HandleEvent processes a single ledger event from AMQP. Returning an
// error requeues the delivery.
func (w *RecomputeWorker) HandleEvent(ctx context.Context, ev *amqp.LedgerEvent) error {
	if ev == nil {
		return fmt.Errorf("nil ledger event")
	}

	ids := ev.AccountIDs
	switch ev.Type {
	case amqp.EventTransactionCreated, amqp.EventTransactionUpdated, amqp.EventTransactionDeleted,
		amqp.EventAccountCreated, amqp.EventAccountUpdated, amqp.EventBalanceAdjusted:
	case amqp.EventAccountDeleted:
		// the first id is the removed account itself
		if len(ids) > 0 {
			ids = ids[1:]
		}
	case amqp.EventRulesApplied:
		// categorization never moves a balance
		ids = nil
	default:
		w.logger.WarnContext(ctx, "Ignoring unknown ledger event", "type", ev.Type)
		atomic.AddInt64(&w.skipped, 1)
		return nil
	}

	if len(ids) == 0 {
		atomic.AddInt64(&w.skipped, 1)
		return nil
	}

	w.queue.Enqueue(ids...)
	atomic.AddInt64(&w.handled, 1)

	w.logger.DebugContext(ctx, "Queued accounts for replay",
		"type", ev.Type,
		log.FieldTransactionID, ev.TransactionID,
		"accounts", len(ids))
	return nil
}

// Stats returns how many events queued work and how many were skipped.
func (w *RecomputeWorker) Stats() (handled, skipped int64) {
	return atomic.LoadInt64(&w.handled), atomic.LoadInt64(&w.skipped)
}
