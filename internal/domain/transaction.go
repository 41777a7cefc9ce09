package domain

import (
	"encoding/json"
	"fmt"
	"sort"
	"time"

	"github.com/shopspring/decimal"
)

// Direction tells whether money came in or went out.
type Direction string

const (
	// Credit is money received.
	Credit Direction = "Cr"
	// Debit is money spent.
	Debit Direction = "Db"
)

// Valid reports whether d is one of the known directions.
func (d Direction) Valid() bool {
	return d == Credit || d == Debit
}

const (
	// StatusReview marks a record that was detected automatically and awaits confirmation.
	StatusReview = "Review"
	// StatusCleared is the default status for records entered by hand.
	StatusCleared = "Cleared"
	// CategoryUncategorized is the default category.
	CategoryUncategorized = "Uncategorized"

	// MaxDetailLength bounds the detail preview taken from raw message text.
	MaxDetailLength = 120
)

// Transaction is one financial event on a user's timeline.
// ID is the merge key: two records with the same ID are the same logical transaction.
type Transaction struct {
	ID         string
	Detail     string
	Amount     decimal.Decimal // non-negative, two decimal places
	Direction  Direction
	Status     string
	Category   string
	OccurredAt time.Time // date of the financial event, not of capture
	OwnerEmail string    // empty until tagged during a merge
}

// wireTransaction is the JSON shape shared by the local store and remote documents.
type wireTransaction struct {
	ID         string          `json:"id"`
	Detail     string          `json:"detail"`
	Amount     json.RawMessage `json:"amount"`
	Type       Direction       `json:"type"`
	Status     string          `json:"status"`
	Category   string          `json:"category"`
	Date       time.Time       `json:"date"`
	OwnerEmail string          `json:"ownerEmail,omitempty"`
}

// MarshalJSON writes the amount as a bare JSON number with two decimals.
func (t Transaction) MarshalJSON() ([]byte, error) {
	return json.Marshal(wireTransaction{
		ID:         t.ID,
		Detail:     t.Detail,
		Amount:     json.RawMessage(t.Amount.StringFixed(2)),
		Type:       t.Direction,
		Status:     t.Status,
		Category:   t.Category,
		Date:       t.OccurredAt.UTC(),
		OwnerEmail: t.OwnerEmail,
	})
}

// UnmarshalJSON accepts the amount either as a number or as a quoted string.
func (t *Transaction) UnmarshalJSON(data []byte) error {
	var w wireTransaction
	if err := json.Unmarshal(data, &w); err != nil {
		return err
	}

	amount := decimal.Zero
	if len(w.Amount) > 0 && string(w.Amount) != "null" {
		if err := amount.UnmarshalJSON(w.Amount); err != nil {
			return fmt.Errorf("amount: %w", err)
		}
	}

	*t = Transaction{
		ID:         w.ID,
		Detail:     w.Detail,
		Amount:     amount,
		Direction:  w.Type,
		Status:     w.Status,
		Category:   w.Category,
		OccurredAt: w.Date,
		OwnerEmail: w.OwnerEmail,
	}
	return nil
}

// WithOwner returns a copy of t tagged with email, unless t already carries an owner.
func (t Transaction) WithOwner(email string) Transaction {
	if t.OwnerEmail == "" {
		t.OwnerEmail = email
	}
	return t
}

// TagOwner returns a copy of txs with every untagged record tagged with email.
func TagOwner(txs []Transaction, email string) []Transaction {
	tagged := make([]Transaction, len(txs))
	for i, tx := range txs {
		tagged[i] = tx.WithOwner(email)
	}
	return tagged
}

// SortNewestFirst orders txs by OccurredAt descending, in place.
// Records with equal timestamps keep their relative order.
func SortNewestFirst(txs []Transaction) {
	sort.SliceStable(txs, func(i, j int) bool {
		return txs[i].OccurredAt.After(txs[j].OccurredAt)
	})
}
