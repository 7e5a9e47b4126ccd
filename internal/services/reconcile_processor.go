package services

import (
	"context"
	"fmt"
	"log/slog"
	"sort"
	"sync"
	"time"
)

// Reconciler replays accounts and corrects diverged cached balances.
type Reconciler interface {
	ReconcileAccounts(ctx context.Context, ids []string, parallel int) (ReconcileReport, error)
	ReconcileAll(ctx context.Context, parallel int) (ReconcileReport, error)
}

// ReconcileProcessorConfig holds configuration for the reconcile processor
type ReconcileProcessorConfig struct {
	// PollInterval is how often queued accounts are replayed (default: 10s)
	PollInterval time.Duration

	// BatchSize is the max number of accounts replayed per poll cycle (default: 10)
	BatchSize int

	// MaxRetries is how often a failing account is requeued before it is dropped (default: 3)
	MaxRetries int

	// SweepInterval is how often every account is replayed (default: 1h)
	SweepInterval time.Duration

	// Parallelism bounds concurrent replays (default: 4)
	Parallelism int
}

// DefaultReconcileProcessorConfig returns sensible defaults
func DefaultReconcileProcessorConfig() ReconcileProcessorConfig {
	return ReconcileProcessorConfig{
		PollInterval:  10 * time.Second,
		BatchSize:     10,
		MaxRetries:    3,
		SweepInterval: 1 * time.Hour,
		Parallelism:   4,
	}
}

// ReconcileProcessor replays accounts in the background: queued accounts
// on every poll, all accounts on every sweep.
type ReconcileProcessor struct {
	reconciler Reconciler
	config     ReconcileProcessorConfig

	queueMu sync.Mutex
	pending map[string]int // account id -> failed attempts

	// Lifecycle management
	mu      sync.Mutex
	running bool
	stopCh  chan struct{}
	doneCh  chan struct{}
}

// NewReconcileProcessor creates a new reconcile processor
func NewReconcileProcessor(reconciler Reconciler, config ReconcileProcessorConfig) *ReconcileProcessor {
	return &ReconcileProcessor{
		reconciler: reconciler,
		config:     config,
		pending:    map[string]int{},
	}
}

// Enqueue schedules accounts for replay on the next poll.
func (p *ReconcileProcessor) Enqueue(ids ...string) {
	p.queueMu.Lock()
	defer p.queueMu.Unlock()
	for _, id := range ids {
		if id == "" {
			continue
		}
		if _, ok := p.pending[id]; !ok {
			p.pending[id] = 0
		}
	}
}

// Pending returns the number of queued accounts.
func (p *ReconcileProcessor) Pending() int {
	p.queueMu.Lock()
	defer p.queueMu.Unlock()
	return len(p.pending)
}

// Start begins the processing loop. Returns an error if already running.
func (p *ReconcileProcessor) Start(ctx context.Context) error {
	p.mu.Lock()
	if p.running {
		p.mu.Unlock()
		return fmt.Errorf("reconcile processor is already running")
	}
	p.running = true
	p.stopCh = make(chan struct{})
	p.doneCh = make(chan struct{})
	p.mu.Unlock()

	go p.runLoop(ctx)

	slog.InfoContext(ctx, "Reconcile processor started",
		"poll_interval", p.config.PollInterval,
		"sweep_interval", p.config.SweepInterval,
		"batch_size", p.config.BatchSize)

	return nil
}

// Stop gracefully stops the processor and waits for completion.
func (p *ReconcileProcessor) Stop(ctx context.Context) error {
	p.mu.Lock()
	if !p.running {
		p.mu.Unlock()
		return nil
	}
	p.mu.Unlock()

	close(p.stopCh)

	select {
	case <-p.doneCh:
		slog.InfoContext(ctx, "Reconcile processor stopped gracefully")
	case <-ctx.Done():
		slog.WarnContext(ctx, "Reconcile processor stop timed out")
		return ctx.Err()
	}

	p.mu.Lock()
	p.running = false
	p.mu.Unlock()

	return nil
}

// IsRunning returns whether the processor is currently running
func (p *ReconcileProcessor) IsRunning() bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.running
}

func (p *ReconcileProcessor) runLoop(ctx context.Context) {
	defer close(p.doneCh)

	pollTicker := time.NewTicker(p.config.PollInterval)
	defer pollTicker.Stop()

	sweepTicker := time.NewTicker(p.config.SweepInterval)
	defer sweepTicker.Stop()

	// Sweep immediately on startup
	p.sweep(ctx)

	for {
		select {
		case <-p.stopCh:
			return
		case <-ctx.Done():
			return
		case <-pollTicker.C:
			p.processBatch(ctx)
		case <-sweepTicker.C:
			p.sweep(ctx)
		}
	}
}

// take removes up to n queued accounts in id order.
func (p *ReconcileProcessor) take(n int) map[string]int {
	p.queueMu.Lock()
	defer p.queueMu.Unlock()
	ids := make([]string, 0, len(p.pending))
	for id := range p.pending {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	if n > 0 && len(ids) > n {
		ids = ids[:n]
	}
	batch := make(map[string]int, len(ids))
	for _, id := range ids {
		batch[id] = p.pending[id]
		delete(p.pending, id)
	}
	return batch
}

// processBatch replays a single batch of queued accounts
func (p *ReconcileProcessor) processBatch(ctx context.Context) {
	batch := p.take(p.config.BatchSize)
	if len(batch) == 0 {
		return
	}
	ids := make([]string, 0, len(batch))
	for id := range batch {
		ids = append(ids, id)
	}
	sort.Strings(ids)

	slog.DebugContext(ctx, "Processing reconcile batch", "count", len(ids))

	report, err := p.reconciler.ReconcileAccounts(ctx, ids, p.config.Parallelism)
	if err != nil {
		// nothing was recorded; put the whole batch back
		slog.ErrorContext(ctx, "Reconcile batch failed", "error", err)
		p.requeue(batch, ids)
		return
	}
	p.requeue(batch, report.FailedIDs)

	if report.Corrected > 0 || report.Failed > 0 {
		slog.InfoContext(ctx, "Reconciled queued accounts",
			"checked", report.Checked,
			"corrected", report.Corrected,
			"failed", report.Failed)
	}
}

func (p *ReconcileProcessor) requeue(batch map[string]int, ids []string) {
	p.queueMu.Lock()
	defer p.queueMu.Unlock()
	for _, id := range ids {
		attempts := batch[id] + 1
		if attempts >= p.config.MaxRetries {
			slog.Error("Reconcile failed permanently after max retries",
				"account_id", id,
				"attempts", attempts)
			continue
		}
		if prev, ok := p.pending[id]; !ok || prev < attempts {
			p.pending[id] = attempts
		}
	}
}

func (p *ReconcileProcessor) sweep(ctx context.Context) {
	report, err := p.reconciler.ReconcileAll(ctx, p.config.Parallelism)
	if err != nil {
		slog.ErrorContext(ctx, "Reconcile sweep failed", "error", err)
		return
	}
	p.Enqueue(report.FailedIDs...)
	slog.InfoContext(ctx, "Reconcile sweep finished",
		"checked", report.Checked,
		"corrected", report.Corrected,
		"failed", report.Failed)
}
