package finance

import (
	"context"
	"encoding/json"
	"path/filepath"
	"sort"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"smartbudget/internal/core"
	applog "smartbudget/internal/log"
	"smartbudget/internal/storage"
)

// txView flattens a transaction into comparable values. Times are compared as
// instants plus the month bucket they fall in.
type txView struct {
	ID          string
	Type        core.TransactionType
	Amount      string
	Category    string
	Description string
	Date        string
	Month       string
	CreatedAt   int64
	UpdatedAt   int64
}

func viewsOf(txs []core.Transaction) []txView {
	out := make([]txView, 0, len(txs))
	for _, tx := range txs {
		v := txView{
			ID:          tx.ID,
			Type:        tx.Type,
			Amount:      tx.Amount.String(),
			Category:    tx.Category,
			Description: tx.Description,
			Date:        tx.Date.UTC().Format(time.RFC3339Nano),
			Month:       tx.Date.MonthKey(),
			CreatedAt:   tx.CreatedAt.UnixNano(),
		}
		if tx.UpdatedAt != nil {
			v.UpdatedAt = tx.UpdatedAt.UnixNano()
		}
		out = append(out, v)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out
}

// offsetMidnight is midnight of the given day in a zone four hours ahead of
// local time, written as RFC 3339.
func offsetMidnight(t *testing.T, year int, month time.Month, day int) core.Date {
	t.Helper()
	_, off := time.Date(year, month, day, 0, 0, 0, 0, time.Local).Zone()
	other := off + 4*3600
	if other > 14*3600 {
		other -= 24 * 3600
	}
	d, err := core.ParseDate(time.Date(year, month, day, 0, 0, 0, 0, time.FixedZone("", other)).Format(time.RFC3339))
	require.NoError(t, err)
	return d
}

func mustJSON(t *testing.T, v any) string {
	t.Helper()
	b, err := json.Marshal(v)
	require.NoError(t, err)
	return string(b)
}

func openStoreAggregator(t *testing.T, path string) (*Aggregator, *storage.Store) {
	t.Helper()
	store := storage.New(path)
	a := New(store,
		WithLogger(applog.Discard()),
		WithClock(newStepClock(time.Date(2024, 3, 15, 9, 0, 0, 0, time.Local)).Now))
	require.NoError(t, a.Load(context.Background()))
	return a, store
}

func TestMirrorMatchesStoreAcrossReload(t *testing.T) {
	ctx := context.Background()
	path := filepath.Join(t.TempDir(), "smartbudget.db")
	now := time.Date(2024, 3, 15, 12, 0, 0, 0, time.Local)

	a, store := openStoreAggregator(t, path)

	salary, err := a.AddTransaction(ctx, core.TransactionInput{
		Type:        core.Income,
		Amount:      decimal.NewFromInt(5),
		Category:    "Maosh",
		Description: "oylik",
		Date:        offsetMidnight(t, 2024, time.March, 15),
	})
	require.NoError(t, err)

	lunch, err := a.AddTransaction(ctx, expenseInput(45000, "Oziq-ovqat", core.NewDate(2024, 3, 14)))
	require.NoError(t, err)

	taxi, err := a.AddTransaction(ctx, expenseInput(20000, "Transport", core.NewDate(2024, 3, 1)))
	require.NoError(t, err)

	lunch.Amount = decimal.RequireFromString("47500.50")
	lunch.Date = offsetMidnight(t, 2024, time.March, 1)
	_, err = a.UpdateTransaction(ctx, lunch)
	require.NoError(t, err)

	evening, err := core.ParseDate("2024-03-15T19:30")
	require.NoError(t, err)
	_, err = a.UpdateTransaction(ctx, core.Transaction{
		ID:          "imported-1",
		Type:        core.Expense,
		Amount:      decimal.NewFromInt(9000),
		Category:    "Transport",
		Description: "metro",
		Date:        evening,
	})
	require.NoError(t, err)

	require.NoError(t, a.DeleteTransaction(ctx, taxi.ID))

	stored, err := store.ListTransactions(ctx)
	require.NoError(t, err)
	mirror := a.Transactions()
	assert.Equal(t, viewsOf(stored), viewsOf(mirror), "mirror and store disagree")

	a.Close()
	require.NoError(t, store.Close())

	reloaded, reloadedStore := openStoreAggregator(t, path)
	t.Cleanup(func() {
		reloaded.Close()
		_ = reloadedStore.Close()
	})

	assert.Equal(t, viewsOf(mirror), viewsOf(reloaded.Transactions()), "reload changed the transactions")

	for _, period := range []core.Period{core.PeriodDay, core.PeriodWeek, core.PeriodMonth, core.PeriodYear, core.PeriodAll} {
		before := ComputeStats(FilterByPeriod(mirror, period, now))
		after := ComputeStats(FilterByPeriod(reloaded.Transactions(), period, now))
		assert.JSONEq(t, mustJSON(t, before), mustJSON(t, after), "stats for %s differ after reload", period)
	}

	for _, tx := range reloaded.Transactions() {
		if tx.ID == salary.ID {
			assert.True(t, tx.Date.Equal(salary.Date.Time), "salary date moved from %v to %v", salary.Date.Time, tx.Date.Time)
		}
	}
}
