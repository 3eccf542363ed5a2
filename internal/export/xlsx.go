// Package export renders the export snapshot as a spreadsheet.
package export

import (
	"encoding/json"
	"fmt"
	"io"
	"time"

	"github.com/xuri/excelize/v2"

	"smartbudget/internal/core"
	"smartbudget/internal/storage"
)

const (
	SheetTransactions = "Transactions"
	SheetBudgets      = "Budgets"

	// ContentTypeXLSX is the MIME type of the workbook.
	ContentTypeXLSX = "application/vnd.openxmlformats-officedocument.spreadsheetml.sheet"
)

var (
	transactionHeaders = []any{"Date", "Type", "Category", "Description", "Amount", "Created At"}
	budgetHeaders      = []any{"Category", "Amount", "Period", "Created At"}
)

// DecodeSnapshot parses the JSON export artifact.
func DecodeSnapshot(data []byte) (storage.Snapshot, error) {
	var snap storage.Snapshot
	if err := json.Unmarshal(data, &snap); err != nil {
		return storage.Snapshot{}, fmt.Errorf("decode snapshot: %w", err)
	}
	return snap, nil
}

// Workbook builds a workbook with one sheet per exported collection.
func Workbook(snap storage.Snapshot) (*excelize.File, error) {
	f := excelize.NewFile()

	if err := f.SetSheetName("Sheet1", SheetTransactions); err != nil {
		f.Close()
		return nil, fmt.Errorf("rename sheet: %w", err)
	}
	if err := writeTransactions(f, snap.Transactions); err != nil {
		f.Close()
		return nil, err
	}

	if _, err := f.NewSheet(SheetBudgets); err != nil {
		f.Close()
		return nil, fmt.Errorf("create budgets sheet: %w", err)
	}
	if err := writeBudgets(f, snap.Budgets); err != nil {
		f.Close()
		return nil, err
	}

	f.SetActiveSheet(0)
	return f, nil
}

func writeTransactions(f *excelize.File, txs []core.Transaction) error {
	if err := f.SetSheetRow(SheetTransactions, "A1", &transactionHeaders); err != nil {
		return fmt.Errorf("write transaction headers: %w", err)
	}
	for i, tx := range txs {
		cell, err := excelize.CoordinatesToCellName(1, i+2)
		if err != nil {
			return err
		}
		row := []any{
			tx.Date.String(),
			string(tx.Type),
			tx.Category,
			tx.Description,
			tx.Amount.InexactFloat64(),
			core.FormatTimestamp(tx.CreatedAt),
		}
		if err := f.SetSheetRow(SheetTransactions, cell, &row); err != nil {
			return fmt.Errorf("write transaction %s: %w", tx.ID, err)
		}
	}

	_ = f.SetColWidth(SheetTransactions, "A", "B", 12)
	_ = f.SetColWidth(SheetTransactions, "C", "C", 16)
	_ = f.SetColWidth(SheetTransactions, "D", "D", 32)
	_ = f.SetColWidth(SheetTransactions, "E", "E", 14)
	_ = f.SetColWidth(SheetTransactions, "F", "F", 26)
	return nil
}

func writeBudgets(f *excelize.File, budgets []core.Budget) error {
	if err := f.SetSheetRow(SheetBudgets, "A1", &budgetHeaders); err != nil {
		return fmt.Errorf("write budget headers: %w", err)
	}
	for i, b := range budgets {
		cell, err := excelize.CoordinatesToCellName(1, i+2)
		if err != nil {
			return err
		}
		row := []any{
			b.Category,
			b.Amount.InexactFloat64(),
			string(b.Period),
			core.FormatTimestamp(b.CreatedAt),
		}
		if err := f.SetSheetRow(SheetBudgets, cell, &row); err != nil {
			return fmt.Errorf("write budget %s: %w", b.ID, err)
		}
	}

	_ = f.SetColWidth(SheetBudgets, "A", "A", 16)
	_ = f.SetColWidth(SheetBudgets, "B", "C", 12)
	_ = f.SetColWidth(SheetBudgets, "D", "D", 26)
	return nil
}

// WriteXLSX converts a JSON export artifact to a workbook and writes it to w.
func WriteXLSX(w io.Writer, snapshotJSON []byte) error {
	snap, err := DecodeSnapshot(snapshotJSON)
	if err != nil {
		return err
	}
	f, err := Workbook(snap)
	if err != nil {
		return err
	}
	defer f.Close()

	if err := f.Write(w); err != nil {
		return fmt.Errorf("write workbook: %w", err)
	}
	return nil
}

// Filename names a download after the local date it was taken on, for
// example smartbudget-export-2024-03-01.json.
func Filename(now time.Time, ext string) string {
	return "smartbudget-export-" + now.Format("2006-01-02") + "." + ext
}
