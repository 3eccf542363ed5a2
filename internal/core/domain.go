package core

import (
	"errors"
	"strings"
	"time"
	"unicode/utf8"

	"github.com/shopspring/decimal"
)

const (
	Income  TransactionType = "income"
	Expense TransactionType = "expense"

	Weekly  BudgetPeriod = "weekly"
	Monthly BudgetPeriod = "monthly"
)

type (
	TransactionType string

	BudgetPeriod string

	Transaction struct {
		ID          string          `json:"id"`
		Type        TransactionType `json:"type"`
		Amount      decimal.Decimal `json:"amount"`
		Category    string          `json:"category"`
		Description string          `json:"description"`
		Date        Date            `json:"date"`
		CreatedAt   time.Time       `json:"createdAt"`
		UpdatedAt   *time.Time      `json:"updatedAt,omitempty"`
	}

	// TransactionInput is what a caller supplies when recording a new transaction.
	TransactionInput struct {
		Type        TransactionType `json:"type"`
		Amount      decimal.Decimal `json:"amount"`
		Category    string          `json:"category"`
		Description string          `json:"description"`
		Date        Date            `json:"date"`
	}

	Category struct {
		ID    string          `json:"id"`
		Name  string          `json:"name"`
		Icon  string          `json:"icon"`
		Color string          `json:"color"`
		Type  TransactionType `json:"type"`
	}

	Budget struct {
		ID        string          `json:"id"`
		Category  string          `json:"category"`
		Amount    decimal.Decimal `json:"amount"`
		Period    BudgetPeriod    `json:"period"`
		CreatedAt time.Time       `json:"createdAt"`
	}

	BudgetInput struct {
		Category string          `json:"category"`
		Amount   decimal.Decimal `json:"amount"`
		Period   BudgetPeriod    `json:"period"`
	}

	Profile struct {
		ID           string    `json:"id"`
		Name         string    `json:"name"`
		Email        string    `json:"email"`
		Phone        string    `json:"phone"`
		TelegramSent bool      `json:"telegramSent"`
		CreatedAt    time.Time `json:"createdAt"`
		UpdatedAt    time.Time `json:"updatedAt"`
	}

	ProfileInput struct {
		Name  string `json:"name"`
		Email string `json:"email"`
		Phone string `json:"phone"`
	}
)

const maxDescriptionLen = 200

var (
	ErrInvalidType      = errors.New("invalid transaction type")
	ErrInvalidAmount    = errors.New("invalid amount")
	ErrEmptyDescription = errors.New("empty description")
	ErrEmptyCategory    = errors.New("empty category")
	ErrInvalidDate      = errors.New("invalid date")
	ErrInvalidPeriod    = errors.New("invalid budget period")
	ErrEmptyID          = errors.New("empty id")
	ErrDescriptionLong  = errors.New("description too long (max 200 characters)")
	ErrEmptyName        = errors.New("empty profile name")
)

// IsValidationError reports whether err stems from rejected user input.
func IsValidationError(err error) bool {
	for _, target := range []error{
		ErrInvalidType, ErrInvalidAmount, ErrEmptyDescription, ErrEmptyCategory,
		ErrInvalidDate, ErrInvalidPeriod, ErrEmptyID, ErrDescriptionLong, ErrEmptyName,
	} {
		if errors.Is(err, target) {
			return true
		}
	}
	return false
}

// Key implementations let every record live in a keyed collection.
func (t Transaction) Key() string { return t.ID }
func (c Category) Key() string    { return c.ID }
func (b Budget) Key() string      { return b.ID }
func (p Profile) Key() string     { return p.ID }

func (t TransactionType) IsValid() bool {
	return t == Income || t == Expense
}

func (p BudgetPeriod) IsValid() bool {
	return p == Weekly || p == Monthly
}

func validateAmount(a decimal.Decimal) error {
	if a.IsNegative() {
		return ErrInvalidAmount
	}
	return nil
}

func (in TransactionInput) Validate() error {
	if !in.Type.IsValid() {
		return ErrInvalidType
	}
	if err := validateAmount(in.Amount); err != nil {
		return err
	}
	if len(strings.TrimSpace(in.Description)) == 0 {
		return ErrEmptyDescription
	}
	if utf8.RuneCountInString(in.Description) > maxDescriptionLen {
		return ErrDescriptionLong
	}
	if strings.TrimSpace(in.Category) == "" {
		return ErrEmptyCategory
	}
	if in.Date.IsZero() {
		return ErrInvalidDate
	}
	return nil
}

// Validate checks the user-editable fields of a stored transaction.
func (t Transaction) Validate() error {
	if strings.TrimSpace(t.ID) == "" {
		return ErrEmptyID
	}
	return t.Input().Validate()
}

// Input returns the user-editable part of the transaction.
func (t Transaction) Input() TransactionInput {
	return TransactionInput{
		Type:        t.Type,
		Amount:      t.Amount,
		Category:    t.Category,
		Description: t.Description,
		Date:        t.Date,
	}
}

func (in BudgetInput) Validate() error {
	if strings.TrimSpace(in.Category) == "" {
		return ErrEmptyCategory
	}
	if err := validateAmount(in.Amount); err != nil {
		return err
	}
	if !in.Period.IsValid() {
		return ErrInvalidPeriod
	}
	return nil
}

func (in ProfileInput) Validate() error {
	if strings.TrimSpace(in.Name) == "" {
		return ErrEmptyName
	}
	return nil
}
