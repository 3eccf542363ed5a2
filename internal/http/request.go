package http

import (
	"bytes"
	"strings"

	"github.com/shopspring/decimal"

	"smartbudget/internal/core"
)

// amountValue accepts a JSON number or a user-typed string such as "500 000"
// or "12,5".
type amountValue decimal.Decimal

func (a *amountValue) UnmarshalJSON(b []byte) error {
	b = bytes.TrimSpace(b)
	if bytes.Equal(b, []byte("null")) {
		return core.ErrInvalidAmount
	}
	d, err := core.ParseAmount(strings.Trim(string(b), `"`))
	if err != nil {
		return err
	}
	*a = amountValue(d)
	return nil
}

func (a *amountValue) value() (decimal.Decimal, error) {
	if a == nil {
		return decimal.Zero, core.ErrInvalidAmount
	}
	return decimal.Decimal(*a), nil
}

type transactionRequest struct {
	Type        core.TransactionType `json:"type"`
	Amount      *amountValue         `json:"amount"`
	Category    string               `json:"category"`
	Description string               `json:"description"`
	Date        core.Date            `json:"date"`
}

func (r transactionRequest) input() (core.TransactionInput, error) {
	amount, err := r.Amount.value()
	if err != nil {
		return core.TransactionInput{}, err
	}
	return core.TransactionInput{
		Type:        core.TransactionType(strings.ToLower(strings.TrimSpace(string(r.Type)))),
		Amount:      amount,
		Category:    sanitizeInput(r.Category),
		Description: sanitizeInput(r.Description),
		Date:        r.Date,
	}, nil
}

type budgetRequest struct {
	Category string            `json:"category"`
	Amount   *amountValue      `json:"amount"`
	Period   core.BudgetPeriod `json:"period"`
}

func (r budgetRequest) input() (core.BudgetInput, error) {
	amount, err := r.Amount.value()
	if err != nil {
		return core.BudgetInput{}, err
	}
	return core.BudgetInput{
		Category: sanitizeInput(r.Category),
		Amount:   amount,
		Period:   core.BudgetPeriod(strings.ToLower(strings.TrimSpace(string(r.Period)))),
	}, nil
}

type profileRequest struct {
	Name  string `json:"name"`
	Email string `json:"email"`
	Phone string `json:"phone"`
}

func (r profileRequest) input() core.ProfileInput {
	return core.ProfileInput{
		Name:  sanitizeInput(r.Name),
		Email: sanitizeInput(r.Email),
		Phone: sanitizeInput(r.Phone),
	}
}

// sanitizeInput trims whitespace and drops control characters other than
// tab and newlines.
func sanitizeInput(s string) string {
	return strings.Map(func(r rune) rune {
		if r < 32 && r != '\t' && r != '\n' && r != '\r' {
			return -1
		}
		return r
	}, strings.TrimSpace(s))
}
