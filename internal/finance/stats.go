package finance

import (
	"github.com/shopspring/decimal"

	"smartbudget/internal/core"
)

// ComputeStats aggregates txs in a single pass. Categories and months without
// transactions are absent from the maps.
func ComputeStats(txs []core.Transaction) core.Stats {
	stats := core.Stats{
		TotalIncome:         decimal.Zero,
		TotalExpenses:       decimal.Zero,
		CategoryStats:       make(map[string]decimal.Decimal),
		CategoryIncomeStats: make(map[string]decimal.Decimal),
		MonthlyStats:        make(map[string]core.MonthTotals),
	}

	for _, tx := range txs {
		month, ok := stats.MonthlyStats[tx.Date.MonthKey()]
		if !ok {
			month = core.MonthTotals{Income: decimal.Zero, Expenses: decimal.Zero}
		}

		switch tx.Type {
		case core.Income:
			stats.TotalIncome = stats.TotalIncome.Add(tx.Amount)
			stats.CategoryIncomeStats[tx.Category] = addTo(stats.CategoryIncomeStats, tx.Category, tx.Amount)
			month.Income = month.Income.Add(tx.Amount)
		case core.Expense:
			stats.TotalExpenses = stats.TotalExpenses.Add(tx.Amount)
			stats.CategoryStats[tx.Category] = addTo(stats.CategoryStats, tx.Category, tx.Amount)
			month.Expenses = month.Expenses.Add(tx.Amount)
		default:
			continue
		}
		stats.MonthlyStats[tx.Date.MonthKey()] = month
	}

	stats.Balance = stats.TotalIncome.Sub(stats.TotalExpenses)
	return stats
}

func addTo(m map[string]decimal.Decimal, key string, amount decimal.Decimal) decimal.Decimal {
	if cur, ok := m[key]; ok {
		return cur.Add(amount)
	}
	return amount
}
