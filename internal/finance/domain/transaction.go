package domain

import (
	"context"
	"encoding/json"
	"time"
	"unicode/utf8"

	"github.com/sebuszqo/ClaritySpend/internal/finance/errors"
	"github.com/shopspring/decimal"
)

const (
	MaxDescriptionLength = 255
	MaxCategoryLength    = 255
)

type TransactionRepository interface {
	Save(ctx context.Context, transaction *Transaction) error
	// SaveAll stores every transaction or none of them.
	SaveAll(ctx context.Context, transactions []*Transaction) error
	FindByOwner(ctx context.Context, ownerID int64) ([]Transaction, error)
	FindByID(ctx context.Context, transactionID int64) (*Transaction, error)
	UpdateCategory(ctx context.Context, transactionID, ownerID int64, category string) (*Transaction, error)
}

// Transaction is a single spending or income record. The owner is never
// serialized; clients only ever see their own records.
type Transaction struct {
	ID          int64           `json:"id"`
	OwnerID     int64           `json:"-"`
	Description string          `json:"description"`
	Amount      decimal.Decimal `json:"amount"`
	Category    string          `json:"category"`
	CreatedAt   time.Time       `json:"createdAt"`
}

// MarshalJSON writes the amount as a JSON number.
func (t Transaction) MarshalJSON() ([]byte, error) {
	type transactionJSON Transaction
	return json.Marshal(struct {
		transactionJSON
		Amount json.Number `json:"amount"`
	}{
		transactionJSON: transactionJSON(t),
		Amount:          json.Number(t.Amount.String()),
	})
}

func (t *Transaction) Validate() error {
	if utf8.RuneCountInString(t.Description) > MaxDescriptionLength {
		return errors.NewValidationError("Description must be of length less than 256")
	}
	return ValidateCategory(t.Category)
}

func ValidateCategory(category string) error {
	if category == "" {
		return errors.NewValidationError("Category must not be empty")
	}
	if utf8.RuneCountInString(category) > MaxCategoryLength {
		return errors.NewValidationError("Category must be of length less than 256")
	}
	return nil
}
