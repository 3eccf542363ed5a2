package core

import (
	"fmt"
	"strings"

	"github.com/shopspring/decimal"
)

// Period names the trailing window applied before aggregation.
type Period string

const (
	PeriodAll   Period = "all"
	PeriodDay   Period = "day"
	PeriodWeek  Period = "week"
	PeriodMonth Period = "month"
	PeriodYear  Period = "year"
)

// ParsePeriod maps a query value to a Period. Empty means all.
func ParsePeriod(s string) (Period, error) {
	switch p := Period(strings.ToLower(strings.TrimSpace(s))); p {
	case "":
		return PeriodAll, nil
	case PeriodAll, PeriodDay, PeriodWeek, PeriodMonth, PeriodYear:
		return p, nil
	default:
		return "", fmt.Errorf("invalid filter period %q", s)
	}
}

// MonthTotals is one bucket of the monthly series.
type MonthTotals struct {
	Income   decimal.Decimal `json:"income"`
	Expenses decimal.Decimal `json:"expenses"`
}

// Stats are derived on demand and never persisted.
type Stats struct {
	TotalIncome         decimal.Decimal            `json:"totalIncome"`
	TotalExpenses       decimal.Decimal            `json:"totalExpenses"`
	Balance             decimal.Decimal            `json:"balance"`
	CategoryStats       map[string]decimal.Decimal `json:"categoryStats"`
	CategoryIncomeStats map[string]decimal.Decimal `json:"categoryIncomeStats"`
	MonthlyStats        map[string]MonthTotals     `json:"monthlyStats"`
}
