package bigquery

import (
	"math/big"
	"time"

	"cloud.google.com/go/bigquery"
	"cloud.google.com/go/civil"

	"github.com/dvloznov/expense-sync/internal/domain"
)

// TimelineRow is one transaction of an exported timeline.
type TimelineRow struct {
	TransactionID string `bigquery:"transaction_id"` // REQUIRED

	OwnerEmail bigquery.NullString `bigquery:"owner_email"` // NULLABLE

	TransactionDate civil.Date `bigquery:"transaction_date"` // REQUIRED
	OccurredAt      time.Time  `bigquery:"occurred_at"`      // REQUIRED

	Amount    *big.Rat `bigquery:"amount"`    // REQUIRED NUMERIC
	Direction string   `bigquery:"direction"` // REQUIRED, "Cr" or "Db"

	Detail   string `bigquery:"detail"`   // REQUIRED
	Status   string `bigquery:"status"`   // REQUIRED
	Category string `bigquery:"category"` // REQUIRED

	ExportedTS time.Time `bigquery:"exported_ts"` // REQUIRED
}

// NewTimelineRow maps a transaction to a row. The date column is the UTC
// calendar date of OccurredAt.
func NewTimelineRow(tx domain.Transaction, exportedAt time.Time) *TimelineRow {
	occurred := tx.OccurredAt.UTC()
	return &TimelineRow{
		TransactionID:   tx.ID,
		OwnerEmail:      bigquery.NullString{StringVal: tx.OwnerEmail, Valid: tx.OwnerEmail != ""},
		TransactionDate: civil.DateOf(occurred),
		OccurredAt:      occurred,
		Amount:          tx.Amount.Rat(),
		Direction:       string(tx.Direction),
		Detail:          tx.Detail,
		Status:          tx.Status,
		Category:        tx.Category,
		ExportedTS:      exportedAt.UTC(),
	}
}
