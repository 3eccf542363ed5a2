package storage

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"sync"
	"time"

	"smartbudget/internal/core"

	_ "modernc.org/sqlite"
)

var (
	ErrStorageUnavailable = errors.New("storage unavailable")
	ErrDuplicateKey       = errors.New("duplicate key")
	ErrNotInitialized     = errors.New("store not initialized")
)

// Collection names, also the table names.
const (
	CollectionTransactions = "transactions"
	CollectionCategories   = "categories"
	CollectionBudgets      = "budgets"
	CollectionProfile      = "profile"
)

// Store is the on-device persistence layer: one SQLite file holding the four
// record collections.
type Store struct {
	path string
	now  func() time.Time

	mu      sync.RWMutex
	db      *sql.DB
	version uint

	transactions *Collection[core.Transaction]
	categories   *Collection[core.Category]
	budgets      *Collection[core.Budget]
	profile      *Collection[core.Profile]
}

// New returns a store for the database at dbPath. Nothing is opened until
// Initialize is called.
func New(dbPath string) *Store {
	s := &Store{path: dbPath, now: time.Now}
	s.transactions = newCollection[core.Transaction](s, CollectionTransactions)
	s.categories = newCollection[core.Category](s, CollectionCategories)
	s.budgets = newCollection[core.Budget](s, CollectionBudgets)
	s.profile = newCollection[core.Profile](s, CollectionProfile)
	return s
}

// Initialize opens the database, creating it if absent, and migrates it to
// SchemaVersion. Calling it on an initialized store is a no-op.
func (s *Store) Initialize(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.db != nil {
		return nil
	}

	if dir := filepath.Dir(s.path); dir != "" && dir != "." {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return fmt.Errorf("%w: create db directory: %v", ErrStorageUnavailable, err)
		}
	}

	db, err := sql.Open("sqlite", s.path)
	if err != nil {
		return fmt.Errorf("%w: open sqlite database: %v", ErrStorageUnavailable, err)
	}
	// One connection keeps writers from tripping over SQLITE_BUSY.
	db.SetMaxOpenConns(1)

	if err := db.PingContext(ctx); err != nil {
		db.Close()
		return fmt.Errorf("%w: ping database: %v", ErrStorageUnavailable, err)
	}

	for _, pragma := range []string{
		"PRAGMA busy_timeout = 5000;",
		"PRAGMA journal_mode = WAL;",
		"PRAGMA synchronous = NORMAL;",
	} {
		if _, err := db.ExecContext(ctx, pragma); err != nil {
			db.Close()
			return fmt.Errorf("%w: %s: %v", ErrStorageUnavailable, pragma, err)
		}
	}

	version, err := RunMigrations(s.path)
	if err != nil {
		db.Close()
		return fmt.Errorf("%w: %v", ErrStorageUnavailable, err)
	}

	s.db = db
	s.version = version

	slog.InfoContext(ctx, "Local store initialized",
		"path", s.path,
		"schema_version", version)

	return nil
}

func (s *Store) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.db == nil {
		return nil
	}
	err := s.db.Close()
	s.db = nil
	return err
}

// Initialized reports whether Initialize has completed.
func (s *Store) Initialized() bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.db != nil
}

// Version returns the schema version, 0 before Initialize.
func (s *Store) Version() uint {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.version
}

func (s *Store) handle() *sql.DB {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.db
}

func (s *Store) Transactions() *Collection[core.Transaction] { return s.transactions }
func (s *Store) Categories() *Collection[core.Category]      { return s.categories }
func (s *Store) Budgets() *Collection[core.Budget]           { return s.budgets }
func (s *Store) Profile() *Collection[core.Profile]          { return s.profile }

func (s *Store) ListTransactions(ctx context.Context) ([]core.Transaction, error) {
	return s.transactions.All(ctx)
}

func (s *Store) AddTransaction(ctx context.Context, t core.Transaction) error {
	return s.transactions.Add(ctx, t)
}

func (s *Store) PutTransaction(ctx context.Context, t core.Transaction) error {
	return s.transactions.Put(ctx, t)
}

func (s *Store) DeleteTransaction(ctx context.Context, id string) error {
	return s.transactions.Delete(ctx, id)
}

func (s *Store) ListCategories(ctx context.Context) ([]core.Category, error) {
	return s.categories.All(ctx)
}

func (s *Store) ListBudgets(ctx context.Context) ([]core.Budget, error) {
	return s.budgets.All(ctx)
}

func (s *Store) AddBudget(ctx context.Context, b core.Budget) error {
	return s.budgets.Add(ctx, b)
}

// GetProfile returns the single profile record, or nil when none was saved.
func (s *Store) GetProfile(ctx context.Context) (*core.Profile, error) {
	profiles, err := s.profile.All(ctx)
	if err != nil {
		return nil, err
	}
	if len(profiles) == 0 {
		return nil, nil
	}
	if len(profiles) > 1 {
		slog.WarnContext(ctx, "More than one profile stored, using the most recently updated",
			"count", len(profiles))
	}
	latest := profiles[0]
	for _, p := range profiles[1:] {
		if p.UpdatedAt.After(latest.UpdatedAt) {
			latest = p
		}
	}
	return &latest, nil
}

func (s *Store) PutProfile(ctx context.Context, p core.Profile) error {
	return s.profile.Put(ctx, p)
}
