package services

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	"ledger/internal/amqp"
	"ledger/internal/cache"
	"ledger/internal/core"
	"ledger/internal/engine"
	"ledger/internal/log"
	"ledger/internal/rules"
	"ledger/internal/store"
)

// Publisher emits ledger events after committed writes.
type Publisher interface {
	PublishEvent(ctx context.Context, ev *amqp.LedgerEvent) error
	Close() error
}

// LedgerConfig holds tunables for the ledger service
type LedgerConfig struct {
	// DefaultCurrency is used when an account is created without one (default: EUR)
	DefaultCurrency string

	// StatusCacheSize bounds the monthly status cache (default: 64)
	StatusCacheSize int

	// StatusCacheTTL is how long a cached monthly status lives (default: 5m)
	StatusCacheTTL time.Duration
}

// DefaultLedgerConfig returns sensible defaults
func DefaultLedgerConfig() LedgerConfig {
	return LedgerConfig{
		DefaultCurrency: "EUR",
		StatusCacheSize: 64,
		StatusCacheTTL:  5 * time.Minute,
	}
}

// LedgerService is the single write path of the ledger. Every mutation
// re-derives the cached balance of each touched account by full replay
// while holding that account's lock.
type LedgerService struct {
	store     store.Store
	publisher Publisher
	rules     *rules.Engine
	locks     *keyedMutex
	status    *cache.LRUCache[core.MonthlyStatus]
	logger    *log.Logger
	events    *log.StructuredLogger
	config    LedgerConfig
	now       func() time.Time
}

// NewLedgerService wires the service and loads the rule set. publisher
// may be nil.
func NewLedgerService(ctx context.Context, st store.Store, publisher Publisher, config LedgerConfig, logger *log.Logger) (*LedgerService, error) {
	if config.DefaultCurrency == "" {
		config.DefaultCurrency = DefaultLedgerConfig().DefaultCurrency
	}
	if config.StatusCacheSize <= 0 {
		config.StatusCacheSize = DefaultLedgerConfig().StatusCacheSize
	}
	if config.StatusCacheTTL <= 0 {
		config.StatusCacheTTL = DefaultLedgerConfig().StatusCacheTTL
	}
	if logger == nil {
		logger = log.New(log.DefaultConfig())
	}
	logger = logger.WithComponent(log.ComponentLedger)

	s := &LedgerService{
		store:     st,
		publisher: publisher,
		locks:     newKeyedMutex(),
		status:    cache.NewLRUCache[core.MonthlyStatus](config.StatusCacheSize, config.StatusCacheTTL),
		logger:    logger,
		events:    log.NewStructuredLogger(logger),
		config:    config,
		now:       func() time.Time { return time.Now().UTC().Truncate(time.Microsecond) },
	}
	s.rules = rules.NewEngine(s)
	if err := s.reloadRules(ctx); err != nil {
		return nil, err
	}
	return s, nil
}

// StatusCache exposes the monthly status cache for expiry management.
func (s *LedgerService) StatusCache() *cache.LRUCache[core.MonthlyStatus] {
	return s.status
}

// Ping checks the backing store.
func (s *LedgerService) Ping(ctx context.Context) error {
	return s.store.Ping(ctx)
}

// BalanceCheck compares the cached balance with a full replay.
type BalanceCheck struct {
	AccountID  string     `json:"account_id"`
	Cached     core.Money `json:"cached"`
	Replayed   core.Money `json:"replayed"`
	Consistent bool       `json:"consistent"`
}

// recompute replays accountID and rewrites the cached balance when it
// diverges. Callers hold the account lock.
func (s *LedgerService) recompute(ctx context.Context, accountID string) (BalanceCheck, error) {
	a, err := s.store.GetAccount(ctx, accountID)
	if err != nil {
		return BalanceCheck{}, err
	}
	txns, err := s.store.ListTransactions(ctx, store.TransactionFilter{AccountID: accountID})
	if err != nil {
		return BalanceCheck{}, fmt.Errorf("load transactions for %s: %w", accountID, err)
	}
	replayed := engine.Replay(accountID, txns)
	check := BalanceCheck{
		AccountID:  accountID,
		Cached:     a.Balance,
		Replayed:   replayed,
		Consistent: a.Balance == replayed,
	}
	if check.Consistent {
		return check, nil
	}
	if err := s.store.SetCachedBalance(ctx, accountID, replayed); err != nil {
		return check, fmt.Errorf("store replayed balance for %s: %w", accountID, err)
	}
	return check, nil
}

// afterWrite recomputes every touched account and drops cached reports.
// Failures are logged; the primary write stands and the recompute
// endpoint or the reconciler converges later.
func (s *LedgerService) afterWrite(ctx context.Context, accountIDs ...string) {
	s.status.Purge()
	for _, id := range uniqueIDs(accountIDs) {
		if _, err := s.recompute(ctx, id); err != nil {
			s.logger.ErrorContext(ctx, "Failed to recompute balance after write",
				log.NewFields().
					WithAccount(id).
					WithOperation(log.OpRecompute).
					WithErrorType(log.ErrorTypeDatabase).
					WithError(err).
					ToSlice()...)
		}
	}
}

func (s *LedgerService) publish(ctx context.Context, ev *amqp.LedgerEvent) {
	if s.publisher == nil {
		return
	}
	if err := s.publisher.PublishEvent(ctx, ev); err != nil {
		s.logger.ErrorContext(ctx, "Failed to publish ledger event",
			log.NewFields().
				WithOperation(log.OpPublish).
				WithErrorType(log.ErrorTypeNetwork).
				WithError(err).
				ToSlice()...)
	}
}

// Close closes both storage and AMQP connections
func (s *LedgerService) Close() error {
	var errs []error

	if s.store != nil {
		if err := s.store.Close(); err != nil {
			errs = append(errs, fmt.Errorf("storage: %w", err))
		}
	}

	if s.publisher != nil {
		if err := s.publisher.Close(); err != nil {
			errs = append(errs, fmt.Errorf("amqp: %w", err))
		}
	}

	if len(errs) > 0 {
		return fmt.Errorf("close ledger service: %v", errs)
	}

	return nil
}

func uniqueIDs(ids []string) []string {
	seen := make(map[string]bool, len(ids))
	out := make([]string, 0, len(ids))
	for _, id := range ids {
		if id == "" || seen[id] {
			continue
		}
		seen[id] = true
		out = append(out, id)
	}
	sort.Strings(out)
	return out
}

// keyedMutex serializes work per account id. Lock acquires keys in
// sorted order so overlapping multi-account writes cannot deadlock.
type keyedMutex struct {
	mu    sync.Mutex
	locks map[string]*refMutex
}

type refMutex struct {
	sync.Mutex
	refs int
}

func newKeyedMutex() *keyedMutex {
	return &keyedMutex{locks: map[string]*refMutex{}}
}

func (k *keyedMutex) Lock(keys ...string) (unlock func()) {
	keys = uniqueIDs(keys)
	held := make([]*refMutex, 0, len(keys))
	for _, key := range keys {
		k.mu.Lock()
		m, ok := k.locks[key]
		if !ok {
			m = &refMutex{}
			k.locks[key] = m
		}
		m.refs++
		k.mu.Unlock()
		m.Lock()
		held = append(held, m)
	}
	return func() {
		for i := len(held) - 1; i >= 0; i-- {
			held[i].Unlock()
			k.mu.Lock()
			held[i].refs--
			if held[i].refs == 0 {
				delete(k.locks, keys[i])
			}
			k.mu.Unlock()
		}
	}
}
