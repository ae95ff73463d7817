package monitor

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"github.com/shopspring/decimal"
	"gorm.io/gorm"

	"clore-monitor-bot/clore"
	"clore-monitor-bot/model"
)

// ListingSource provides the current marketplace listings.
type ListingSource interface {
	Fetch(ctx context.Context) ([]clore.Listing, error)
}

// Notifier delivers a formatted alert to a user. Fire-and-forget:
// delivery failures on the background path are logged, never retried.
type Notifier interface {
	Notify(userID int64, text string) error
}

// Config holds engine tunables.
type Config struct {
	PollInterval time.Duration
	PageSize     int
}

func DefaultConfig() Config {
	return Config{
		PollInterval: 60 * time.Second,
		PageSize:     DefaultPageSize,
	}
}

// userState is one user's aggregate record: filters, efficiency
// override, dedup state and the handle of the running poll loop (nil
// while stopped). Fields are guarded by Engine.mu; the Dedup pointer is
// handed to the poll goroutine and synchronizes itself.
type userState struct {
	filters    Filters
	efficiency *decimal.Decimal
	dedup      *Dedup
	cancel     context.CancelFunc
}

// Engine owns the per-user monitoring loops: for every active user an
// independent goroutine fetches listings on a fixed interval, filters
// them, estimates profit and pushes qualifying results through the
// deduplicator to the notifier. Loops never block each other; the only
// shared resource is the read-mostly coin cache.
type Engine struct {
	cfg      Config
	listings ListingSource
	coins    CoinSource
	notifier Notifier
	db       *gorm.DB // alert history, best-effort; may be nil
	logger   *slog.Logger

	mu    sync.Mutex
	users map[int64]*userState
	wg    sync.WaitGroup
}

func NewEngine(cfg Config, listings ListingSource, coins CoinSource, notifier Notifier, db *gorm.DB, logger *slog.Logger) *Engine {
	if cfg.PollInterval <= 0 {
		cfg.PollInterval = DefaultConfig().PollInterval
	}
	if cfg.PageSize <= 0 {
		cfg.PageSize = DefaultPageSize
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Engine{
		cfg:      cfg,
		listings: listings,
		coins:    coins,
		notifier: notifier,
		db:       db,
		logger:   logger,
		users:    make(map[int64]*userState),
	}
}

// SetNotifier wires the delivery sink. Must be called before the first
// Start; the bot front-end is constructed after the engine, so the sink
// arrives late.
func (e *Engine) SetNotifier(n Notifier) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.notifier = n
}

// ensureUser returns the user's state, creating it with defaults on
// first interaction. Caller must hold e.mu.
func (e *Engine) ensureUser(userID int64) *userState {
	st, ok := e.users[userID]
	if !ok {
		st = &userState{
			filters: DefaultFilters(),
			dedup:   NewDedup(),
		}
		e.users[userID] = st
	}
	return st
}

// Filters returns the user's current thresholds.
func (e *Engine) Filters(userID int64) Filters {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.ensureUser(userID).filters
}

// SetFilters replaces the user's thresholds. Zero-valued fields keep
// their current setting.
func (e *Engine) SetFilters(userID int64, minGPU int, maxPrice decimal.Decimal) {
	e.mu.Lock()
	defer e.mu.Unlock()
	st := e.ensureUser(userID)
	if minGPU >= 1 {
		st.filters.MinGPU = minGPU
	}
	if maxPrice.IsPositive() {
		st.filters.MaxPrice = maxPrice
	}
}

// SetEfficiency sets the user's efficiency override; values outside
// (0,1] are ignored and reported false.
func (e *Engine) SetEfficiency(userID int64, value decimal.Decimal) bool {
	if !value.IsPositive() || value.GreaterThan(decimal.NewFromInt(1)) {
		return false
	}
	e.mu.Lock()
	defer e.mu.Unlock()
	e.ensureUser(userID).efficiency = &value
	return true
}

// Active reports whether the user's poll loop is running.
func (e *Engine) Active(userID int64) bool {
	e.mu.Lock()
	defer e.mu.Unlock()
	st, ok := e.users[userID]
	return ok && st.cancel != nil
}

// Start launches the user's poll loop. Idempotent: a second start while
// running reports false.
func (e *Engine) Start(userID int64) bool {
	e.mu.Lock()
	defer e.mu.Unlock()
	st := e.ensureUser(userID)
	if st.cancel != nil {
		return false
	}

	ctx, cancel := context.WithCancel(context.Background())
	st.cancel = cancel

	e.wg.Add(1)
	go e.run(ctx, userID)

	e.logger.Info("monitoring started", "user", userID, "interval", e.cfg.PollInterval)
	return true
}

// Stop cancels the user's poll loop. The loop observes cancellation at
// its next tick boundary; in-flight fetches are aborted through the
// context. Idempotent.
func (e *Engine) Stop(userID int64) bool {
	e.mu.Lock()
	defer e.mu.Unlock()
	st, ok := e.users[userID]
	if !ok || st.cancel == nil {
		return false
	}
	st.cancel()
	st.cancel = nil
	e.logger.Info("monitoring stopped", "user", userID)
	return true
}

// StopAll cancels every running loop and waits for them to exit.
func (e *Engine) StopAll() {
	e.mu.Lock()
	for userID, st := range e.users {
		if st.cancel != nil {
			st.cancel()
			st.cancel = nil
			e.logger.Info("monitoring stopped", "user", userID)
		}
	}
	e.mu.Unlock()
	e.wg.Wait()
}

// run is one user's poll loop: an immediate tick, then one per interval
// until cancelled. Ticks for the same user are strictly sequential.
func (e *Engine) run(ctx context.Context, userID int64) {
	defer e.wg.Done()

	ticker := time.NewTicker(e.cfg.PollInterval)
	defer ticker.Stop()

	e.tick(ctx, userID)

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			e.tick(ctx, userID)
		}
	}
}

// tick runs one pass of the fetch → filter → estimate → dedup → notify
// pipeline. No failure in here ends the loop: a failed fetch means "no
// data this tick" and the next tick tries again.
func (e *Engine) tick(ctx context.Context, userID int64) {
	listings, err := e.listings.Fetch(ctx)
	if err != nil {
		e.logger.Warn("tick skipped, no listing data", "user", userID, "err", err)
		return
	}
	if len(listings) == 0 {
		return
	}

	e.mu.Lock()
	st := e.ensureUser(userID)
	filters, override, dedup := st.filters, st.efficiency, st.dedup
	notifier := e.notifier
	e.mu.Unlock()

	for _, l := range listings {
		if !filters.Passes(l) {
			continue
		}

		est := e.Estimate(ctx, l, override)
		if !dedup.ShouldNotify(l.ID, est.Profit) {
			continue
		}

		text := FormatAlert(l, est)
		if notifier != nil {
			if err := notifier.Notify(userID, text); err != nil {
				e.logger.Warn("notification delivery failed", "user", userID, "listing", l.ID, "err", err)
			}
		}
		e.recordAlert(userID, l, est)
	}
}

// recordAlert appends the alert to the history table. Best-effort: the
// history is an audit trail, never read back by the engine.
func (e *Engine) recordAlert(userID int64, l clore.Listing, est Estimate) {
	if e.db == nil {
		return
	}
	alert := model.Alert{
		UserID:    userID,
		ListingID: l.ID,
		GPUModel:  l.GPUModel,
		GPUCount:  l.GPUCount,
		Price:     l.Price.StringFixed(2),
		Coin:      est.Coin,
		Income:    est.Income.StringFixed(2),
		Profit:    est.Profit.StringFixed(2),
	}
	if err := e.db.Create(&alert).Error; err != nil {
		e.logger.Warn("alert history write failed", "user", userID, "err", err)
	}
}

// CheckNow runs the pipeline once, synchronously, bypassing the
// deduplicator: every currently profitable listing that passes the
// user's filters is formatted and returned, paginated into messages of
// at most PageSize results. An empty slice with a nil error means no
// listing qualified.
func (e *Engine) CheckNow(ctx context.Context, userID int64) ([]string, error) {
	listings, err := e.listings.Fetch(ctx)
	if err != nil {
		return nil, err
	}

	e.mu.Lock()
	st := e.ensureUser(userID)
	filters, override := st.filters, st.efficiency
	e.mu.Unlock()

	var results []string
	for _, l := range listings {
		if !filters.Passes(l) {
			continue
		}
		est := e.Estimate(ctx, l, override)
		if !est.Profit.IsPositive() {
			continue
		}
		results = append(results, FormatAlert(l, est))
	}

	return Paginate(results, e.cfg.PageSize), nil
}
