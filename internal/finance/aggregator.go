// Package finance keeps the in-memory mirror of the local store and derives
// statistics from it.
package finance

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	"golang.org/x/sync/errgroup"

	"smartbudget/internal/core"
	applog "smartbudget/internal/log"
)

// ErrNotReady is returned by mutations issued before Load succeeded.
var ErrNotReady = errors.New("finance data not loaded")

// Repository is the persistence surface the Aggregator depends on.
// *storage.Store satisfies it.
type Repository interface {
	Initialize(ctx context.Context) error
	ListTransactions(ctx context.Context) ([]core.Transaction, error)
	AddTransaction(ctx context.Context, tx core.Transaction) error
	PutTransaction(ctx context.Context, tx core.Transaction) error
	DeleteTransaction(ctx context.Context, id string) error
	ListCategories(ctx context.Context) ([]core.Category, error)
	ListBudgets(ctx context.Context) ([]core.Budget, error)
	AddBudget(ctx context.Context, b core.Budget) error
	GetProfile(ctx context.Context) (*core.Profile, error)
	PutProfile(ctx context.Context, p core.Profile) error
	ExportSnapshot(ctx context.Context) ([]byte, error)
}

// Notifier announces a newly registered profile.
type Notifier interface {
	NotifyProfile(ctx context.Context, p core.Profile) error
}

// State is the session lifecycle of an Aggregator.
type State int32

const (
	StateUninitialized State = iota
	StateLoading
	StateReady
	StateFailed
)

func (s State) String() string {
	switch s {
	case StateUninitialized:
		return "uninitialized"
	case StateLoading:
		return "loading"
	case StateReady:
		return "ready"
	case StateFailed:
		return "failed"
	default:
		return fmt.Sprintf("state(%d)", int32(s))
	}
}

// Option configures an Aggregator.
type Option func(*Aggregator)

// WithNotifier sets the profile notifier. Without one, no notification is
// ever attempted.
func WithNotifier(n Notifier) Option {
	return func(a *Aggregator) { a.notifier = n }
}

// WithQueuedNotifier sets a notifier that only hands the announcement to
// another process. Its success leaves telegramSent false; the delivering side
// confirms through MarkNotified.
func WithQueuedNotifier(n Notifier) Option {
	return func(a *Aggregator) {
		a.notifier = n
		a.queued = true
	}
}

// WithOnlineCheck sets the connectivity probe consulted before notifying.
func WithOnlineCheck(online func(context.Context) bool) Option {
	return func(a *Aggregator) { a.online = online }
}

// WithClock overrides time.Now.
func WithClock(now func() time.Time) Option {
	return func(a *Aggregator) { a.now = now }
}

// WithIDGenerator overrides the record id source.
func WithIDGenerator(newID func() string) Option {
	return func(a *Aggregator) { a.newID = newID }
}

// WithLogger sets the logger.
func WithLogger(l *applog.Logger) Option {
	return func(a *Aggregator) { a.logger = l.WithComponent(applog.ComponentFinance) }
}

// WithNotifyTimeout bounds a single background notification attempt.
func WithNotifyTimeout(d time.Duration) Option {
	return func(a *Aggregator) { a.notifyTimeout = d }
}

// Aggregator orchestrates store calls and maintains the in-memory mirror.
// Every mutation persists first and touches the mirror only on success.
type Aggregator struct {
	repo          Repository
	notifier      Notifier
	queued        bool
	online        func(context.Context) bool
	now           func() time.Time
	newID         func() string
	logger        *applog.Logger
	notifyTimeout time.Duration

	state    atomic.Int32
	loadOnce sync.Once
	loadErr  error

	mu           sync.RWMutex
	transactions []core.Transaction
	categories   []core.Category
	budgets      []core.Budget
	profile      *core.Profile

	// profileMu orders profile writes so a late notification flag never
	// clobbers a newer save. It also guards closed.
	profileMu sync.Mutex
	closed    bool

	notifying atomic.Bool
	bg        sync.WaitGroup
}

// New returns an Aggregator in the Uninitialized state.
func New(repo Repository, opts ...Option) *Aggregator {
	a := &Aggregator{
		repo:          repo,
		online:        func(context.Context) bool { return true },
		now:           time.Now,
		newID:         uuid.NewString,
		logger:        applog.New(applog.DefaultConfig()).WithComponent(applog.ComponentFinance),
		notifyTimeout: 30 * time.Second,
	}
	for _, opt := range opts {
		opt(a)
	}
	return a
}

// State reports the current lifecycle state.
func (a *Aggregator) State() State {
	return State(a.state.Load())
}

// Err returns the load failure once the Aggregator is Failed.
func (a *Aggregator) Err() error {
	if a.State() != StateFailed {
		return nil
	}
	return a.loadErr
}

// Load initializes the store and fills the mirror. It runs once; later and
// concurrent callers wait for and share the first result. A failed load is
// terminal for this Aggregator.
func (a *Aggregator) Load(ctx context.Context) error {
	a.loadOnce.Do(func() {
		a.state.Store(int32(StateLoading))
		a.loadErr = a.load(ctx)
		if a.loadErr != nil {
			a.logger.ErrorContext(ctx, "Failed to load finance data",
				applog.FieldOperation, applog.OpLoad, applog.FieldError, a.loadErr)
			a.state.Store(int32(StateFailed))
			return
		}
		a.state.Store(int32(StateReady))
	})
	return a.loadErr
}

func (a *Aggregator) load(ctx context.Context) error {
	if err := a.repo.Initialize(ctx); err != nil {
		return fmt.Errorf("initialize store: %w", err)
	}

	var (
		transactions []core.Transaction
		categories   []core.Category
		budgets      []core.Budget
		profile      *core.Profile
	)

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() (err error) {
		transactions, err = a.repo.ListTransactions(gctx)
		return err
	})
	g.Go(func() (err error) {
		categories, err = a.repo.ListCategories(gctx)
		return err
	})
	g.Go(func() (err error) {
		budgets, err = a.repo.ListBudgets(gctx)
		return err
	})
	g.Go(func() (err error) {
		profile, err = a.repo.GetProfile(gctx)
		return err
	})
	if err := g.Wait(); err != nil {
		return fmt.Errorf("load collections: %w", err)
	}

	sortNewestFirst(transactions)

	a.mu.Lock()
	a.transactions = transactions
	a.categories = categories
	a.budgets = budgets
	a.profile = profile
	a.mu.Unlock()

	a.logger.InfoContext(ctx, "Finance data loaded",
		"transactions", len(transactions),
		"categories", len(categories),
		"budgets", len(budgets),
		"has_profile", profile != nil)
	return nil
}

func sortNewestFirst(txs []core.Transaction) {
	sort.SliceStable(txs, func(i, j int) bool {
		return txs[i].CreatedAt.After(txs[j].CreatedAt)
	})
}

func (a *Aggregator) requireReady() error {
	if s := a.State(); s != StateReady {
		return fmt.Errorf("%w (state %s)", ErrNotReady, s)
	}
	return nil
}

// fail logs a mutation failure and hands it back to the caller.
func (a *Aggregator) fail(ctx context.Context, op string, err error, args ...any) error {
	fields := append([]any{applog.FieldOperation, op, applog.FieldError, err}, args...)
	a.logger.ErrorContext(ctx, "Finance operation failed", fields...)
	return err
}

// Transactions returns a copy of the mirror, newest first.
func (a *Aggregator) Transactions() []core.Transaction {
	a.mu.RLock()
	defer a.mu.RUnlock()
	return append(make([]core.Transaction, 0, len(a.transactions)), a.transactions...)
}

// Categories returns the loaded categories.
func (a *Aggregator) Categories() []core.Category {
	a.mu.RLock()
	defer a.mu.RUnlock()
	return append(make([]core.Category, 0, len(a.categories)), a.categories...)
}

// Budgets returns the loaded budgets.
func (a *Aggregator) Budgets() []core.Budget {
	a.mu.RLock()
	defer a.mu.RUnlock()
	return append(make([]core.Budget, 0, len(a.budgets)), a.budgets...)
}

// Profile returns the current profile, or nil when none was saved.
func (a *Aggregator) Profile() *core.Profile {
	a.mu.RLock()
	defer a.mu.RUnlock()
	if a.profile == nil {
		return nil
	}
	p := *a.profile
	return &p
}

// AddTransaction records a new transaction and prepends it to the mirror.
func (a *Aggregator) AddTransaction(ctx context.Context, in core.TransactionInput) (core.Transaction, error) {
	if err := a.requireReady(); err != nil {
		return core.Transaction{}, err
	}
	if err := in.Validate(); err != nil {
		return core.Transaction{}, fmt.Errorf("validate transaction: %w", err)
	}

	tx := core.Transaction{
		ID:          a.newID(),
		Type:        in.Type,
		Amount:      in.Amount,
		Category:    in.Category,
		Description: in.Description,
		Date:        in.Date,
		CreatedAt:   a.now(),
	}
	if err := a.repo.AddTransaction(ctx, tx); err != nil {
		return core.Transaction{}, a.fail(ctx, applog.OpCreate, err, applog.FieldTransactionID, tx.ID)
	}

	a.mu.Lock()
	a.transactions = append([]core.Transaction{tx}, a.transactions...)
	a.mu.Unlock()

	a.logger.InfoContext(ctx, "Transaction added", applog.NewFields().
		WithTransaction(tx.ID, string(tx.Type), tx.Amount.String(), tx.Category).ToSlice()...)
	return tx, nil
}

// UpdateTransaction overwrites a transaction and replaces its mirror entry in
// place. The creation time of an existing entry is kept. An id unknown to the
// mirror is stored and inserted by creation time.
func (a *Aggregator) UpdateTransaction(ctx context.Context, tx core.Transaction) (core.Transaction, error) {
	if err := a.requireReady(); err != nil {
		return core.Transaction{}, err
	}
	if err := tx.Validate(); err != nil {
		return core.Transaction{}, fmt.Errorf("validate transaction: %w", err)
	}

	now := a.now()
	a.mu.RLock()
	idx := indexOf(a.transactions, tx.ID)
	if idx >= 0 {
		tx.CreatedAt = a.transactions[idx].CreatedAt
	}
	a.mu.RUnlock()
	if tx.CreatedAt.IsZero() {
		tx.CreatedAt = now
	}
	tx.UpdatedAt = &now

	if err := a.repo.PutTransaction(ctx, tx); err != nil {
		return core.Transaction{}, a.fail(ctx, applog.OpUpdate, err, applog.FieldTransactionID, tx.ID)
	}

	a.mu.Lock()
	if i := indexOf(a.transactions, tx.ID); i >= 0 {
		a.transactions[i] = tx
	} else {
		pos := sort.Search(len(a.transactions), func(i int) bool {
			return !a.transactions[i].CreatedAt.After(tx.CreatedAt)
		})
		a.transactions = append(a.transactions, core.Transaction{})
		copy(a.transactions[pos+1:], a.transactions[pos:])
		a.transactions[pos] = tx
	}
	a.mu.Unlock()

	a.logger.InfoContext(ctx, "Transaction updated", applog.FieldTransactionID, tx.ID)
	return tx, nil
}

// DeleteTransaction removes a transaction. Unknown ids are a no-op.
func (a *Aggregator) DeleteTransaction(ctx context.Context, id string) error {
	if err := a.requireReady(); err != nil {
		return err
	}
	if err := a.repo.DeleteTransaction(ctx, id); err != nil {
		return a.fail(ctx, applog.OpDelete, err, applog.FieldTransactionID, id)
	}

	a.mu.Lock()
	if i := indexOf(a.transactions, id); i >= 0 {
		a.transactions = append(a.transactions[:i], a.transactions[i+1:]...)
	}
	a.mu.Unlock()

	a.logger.InfoContext(ctx, "Transaction deleted", applog.FieldTransactionID, id)
	return nil
}

func indexOf(txs []core.Transaction, id string) int {
	for i := range txs {
		if txs[i].ID == id {
			return i
		}
	}
	return -1
}

// AddBudget records a spending limit for a category.
func (a *Aggregator) AddBudget(ctx context.Context, in core.BudgetInput) (core.Budget, error) {
	if err := a.requireReady(); err != nil {
		return core.Budget{}, err
	}
	if err := in.Validate(); err != nil {
		return core.Budget{}, fmt.Errorf("validate budget: %w", err)
	}

	b := core.Budget{
		ID:        a.newID(),
		Category:  in.Category,
		Amount:    in.Amount,
		Period:    in.Period,
		CreatedAt: a.now(),
	}
	if err := a.repo.AddBudget(ctx, b); err != nil {
		return core.Budget{}, a.fail(ctx, applog.OpCreate, err, applog.FieldCategory, b.Category)
	}

	a.mu.Lock()
	a.budgets = append(a.budgets, b)
	a.mu.Unlock()

	a.logger.InfoContext(ctx, "Budget added", applog.FieldCategory, b.Category, "period", b.Period)
	return b, nil
}

// SaveProfile stores the profile, reusing the identity of an existing one.
// The first save with connectivity also announces the profile in the
// background. The notification outcome never affects the returned profile.
func (a *Aggregator) SaveProfile(ctx context.Context, in core.ProfileInput) (core.Profile, error) {
	if err := a.requireReady(); err != nil {
		return core.Profile{}, err
	}
	if err := in.Validate(); err != nil {
		return core.Profile{}, fmt.Errorf("validate profile: %w", err)
	}

	a.profileMu.Lock()
	defer a.profileMu.Unlock()

	now := a.now()
	p := core.Profile{
		Name:      in.Name,
		Email:     in.Email,
		Phone:     in.Phone,
		UpdatedAt: now,
	}
	if existing := a.Profile(); existing != nil {
		p.ID = existing.ID
		p.CreatedAt = existing.CreatedAt
		p.TelegramSent = existing.TelegramSent
	} else {
		p.ID = a.newID()
		p.CreatedAt = now
	}

	if err := a.repo.PutProfile(ctx, p); err != nil {
		return core.Profile{}, a.fail(ctx, applog.OpUpdate, err, applog.FieldProfileID, p.ID)
	}

	a.mu.Lock()
	mirrored := p
	a.profile = &mirrored
	a.mu.Unlock()

	a.logger.InfoContext(ctx, "Profile saved", applog.FieldProfileID, p.ID)

	if !p.TelegramSent && a.notifier != nil {
		a.dispatchNotification(p)
	}
	return p, nil
}

// dispatchNotification announces p on a detached goroutine once the
// connectivity check passes. At most one attempt runs at a time; a save
// during an attempt does not start another. a.profileMu must be held.
func (a *Aggregator) dispatchNotification(p core.Profile) {
	if a.closed {
		a.logger.Debug("Aggregator closed, skipping profile notification", applog.FieldProfileID, p.ID)
		return
	}
	if !a.notifying.CompareAndSwap(false, true) {
		a.logger.Debug("Profile notification already in flight", applog.FieldProfileID, p.ID)
		return
	}

	a.bg.Add(1)
	go func() {
		defer a.bg.Done()
		defer a.notifying.Store(false)

		ctx, cancel := context.WithTimeout(context.Background(), a.notifyTimeout)
		defer cancel()

		if !a.online(ctx) {
			a.logger.InfoContext(ctx, "Offline, profile notification skipped", applog.FieldProfileID, p.ID)
			return
		}
		if err := a.notifier.NotifyProfile(ctx, p); err != nil {
			a.logger.WarnContext(ctx, "Profile notification failed",
				applog.FieldOperation, applog.OpNotify,
				applog.FieldProfileID, p.ID,
				applog.FieldError, err)
			return
		}
		if a.queued {
			a.logger.InfoContext(ctx, "Profile notification queued", applog.FieldProfileID, p.ID)
			return
		}
		_ = a.MarkNotified(ctx, p.ID)
	}()
}

// MarkNotified flips telegramSent on the current profile, which may have been
// edited while the notification was in flight. Unknown or already flagged ids
// are ignored.
func (a *Aggregator) MarkNotified(ctx context.Context, id string) error {
	if err := a.requireReady(); err != nil {
		return err
	}

	a.profileMu.Lock()
	defer a.profileMu.Unlock()

	current := a.Profile()
	if current == nil || current.ID != id || current.TelegramSent {
		return nil
	}
	current.TelegramSent = true

	if err := a.repo.PutProfile(ctx, *current); err != nil {
		return a.fail(ctx, applog.OpNotify, err, applog.FieldProfileID, id)
	}

	a.mu.Lock()
	if a.profile != nil && a.profile.ID == id {
		a.profile.TelegramSent = true
	}
	a.mu.Unlock()

	a.logger.InfoContext(ctx, "Profile notification sent", applog.FieldProfileID, id)
	return nil
}

// Stats filters the mirror by period and aggregates it.
func (a *Aggregator) Stats(period core.Period) core.Stats {
	return ComputeStats(FilterByPeriod(a.Transactions(), period, a.now()))
}

// Export returns the store's JSON snapshot unmodified.
func (a *Aggregator) Export(ctx context.Context) ([]byte, error) {
	if err := a.requireReady(); err != nil {
		return nil, err
	}
	data, err := a.repo.ExportSnapshot(ctx)
	if err != nil {
		return nil, a.fail(ctx, applog.OpExport, err)
	}
	return data, nil
}

// Close stops new notifications and waits for the running one to finish.
func (a *Aggregator) Close() {
	a.profileMu.Lock()
	a.closed = true
	a.profileMu.Unlock()
	a.bg.Wait()
}
