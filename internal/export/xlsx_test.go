package export

import (
	"bytes"
	"encoding/json"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/xuri/excelize/v2"

	"smartbudget/internal/core"
	"smartbudget/internal/storage"
)

func sampleSnapshot() storage.Snapshot {
	created := time.Date(2024, 1, 5, 9, 30, 0, 0, time.UTC)
	return storage.Snapshot{
		Transactions: []core.Transaction{
			{
				ID:          "t1",
				Type:        core.Expense,
				Amount:      decimal.NewFromInt(20000),
				Category:    "Oziq-ovqat",
				Description: "bozor",
				Date:        core.NewDate(2024, 1, 5),
				CreatedAt:   created,
			},
			{
				ID:          "t2",
				Type:        core.Income,
				Amount:      decimal.RequireFromString("100000.5"),
				Category:    "Maosh",
				Description: "fevral",
				Date:        core.NewDate(2024, 2, 10),
				CreatedAt:   created.Add(time.Hour),
			},
		},
		Budgets: []core.Budget{
			{ID: "b1", Category: "Transport", Amount: decimal.NewFromInt(300000), Period: core.Monthly, CreatedAt: created},
		},
		ExportDate: "2024-03-01T12:00:00.000Z",
	}
}

func TestWriteXLSX(t *testing.T) {
	data, err := json.Marshal(sampleSnapshot())
	require.NoError(t, err)

	var buf bytes.Buffer
	require.NoError(t, WriteXLSX(&buf, data))

	f, err := excelize.OpenReader(&buf)
	require.NoError(t, err)
	defer f.Close()

	assert.Equal(t, []string{SheetTransactions, SheetBudgets}, f.GetSheetList())

	rows, err := f.GetRows(SheetTransactions)
	require.NoError(t, err)
	require.Len(t, rows, 3)
	assert.Equal(t, []string{"Date", "Type", "Category", "Description", "Amount", "Created At"}, rows[0])
	assert.Equal(t, []string{"2024-01-05", "expense", "Oziq-ovqat", "bozor", "20000", "2024-01-05T09:30:00.000Z"}, rows[1])
	assert.Equal(t, "100000.5", rows[2][4])

	budgets, err := f.GetRows(SheetBudgets)
	require.NoError(t, err)
	require.Len(t, budgets, 2)
	assert.Equal(t, []string{"Transport", "300000", "monthly", "2024-01-05T09:30:00.000Z"}, budgets[1])
}

func TestWriteXLSXEmptySnapshot(t *testing.T) {
	var buf bytes.Buffer
	require.NoError(t, WriteXLSX(&buf, []byte(`{"transactions":[],"budgets":[],"exportDate":"2024-03-01T12:00:00.000Z"}`)))

	f, err := excelize.OpenReader(&buf)
	require.NoError(t, err)
	defer f.Close()

	rows, err := f.GetRows(SheetTransactions)
	require.NoError(t, err)
	assert.Len(t, rows, 1)
}

func TestWriteXLSXRejectsGarbage(t *testing.T) {
	err := WriteXLSX(&bytes.Buffer{}, []byte("not json"))
	assert.Error(t, err)
}
