package storage

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"sort"

	"smartbudget/internal/core"
)

// Snapshot is the export payload. Categories and the profile are left out on
// purpose.
type Snapshot struct {
	Transactions []core.Transaction `json:"transactions"`
	Budgets      []core.Budget      `json:"budgets"`
	ExportDate   string             `json:"exportDate"`
}

// Snapshot collects the persisted transactions (newest first) and budgets.
func (s *Store) Snapshot(ctx context.Context) (Snapshot, error) {
	transactions, err := s.transactions.All(ctx)
	if err != nil {
		return Snapshot{}, fmt.Errorf("snapshot transactions: %w", err)
	}
	budgets, err := s.budgets.All(ctx)
	if err != nil {
		return Snapshot{}, fmt.Errorf("snapshot budgets: %w", err)
	}

	sort.SliceStable(transactions, func(i, j int) bool {
		return transactions[i].CreatedAt.After(transactions[j].CreatedAt)
	})
	sort.SliceStable(budgets, func(i, j int) bool {
		return budgets[i].CreatedAt.Before(budgets[j].CreatedAt)
	})

	return Snapshot{
		Transactions: transactions,
		Budgets:      budgets,
		ExportDate:   core.FormatTimestamp(s.now()),
	}, nil
}

// ExportSnapshot returns the snapshot as 2-space indented JSON.
func (s *Store) ExportSnapshot(ctx context.Context) ([]byte, error) {
	snap, err := s.Snapshot(ctx)
	if err != nil {
		return nil, err
	}
	data, err := json.MarshalIndent(snap, "", "  ")
	if err != nil {
		return nil, fmt.Errorf("encode snapshot: %w", err)
	}

	slog.InfoContext(ctx, "Export snapshot generated",
		"transactions", len(snap.Transactions),
		"budgets", len(snap.Budgets),
		"bytes", len(data))

	return data, nil
}
