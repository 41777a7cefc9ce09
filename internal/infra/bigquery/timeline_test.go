package bigquery

import (
	"math/big"
	"testing"
	"time"

	"cloud.google.com/go/civil"
	"github.com/shopspring/decimal"

	"github.com/dvloznov/expense-sync/internal/domain"
)

func TestNewTimelineRow(t *testing.T) {
	ist := time.FixedZone("IST", 5*3600+1800)
	exportedAt := time.Date(2025, 7, 1, 12, 0, 0, 0, time.UTC)
	tx := domain.Transaction{
		ID:         "sms-1",
		Detail:     "debited for INR 1,250.00",
		Amount:     decimal.RequireFromString("1250.00"),
		Direction:  domain.Debit,
		Status:     domain.StatusReview,
		Category:   domain.CategoryUncategorized,
		OccurredAt: time.Date(2025, 6, 2, 1, 0, 0, 0, ist),
		OwnerEmail: "me@x.com",
	}

	row := NewTimelineRow(tx, exportedAt)

	if row.TransactionID != "sms-1" {
		t.Errorf("TransactionID = %q", row.TransactionID)
	}
	if want := (civil.Date{Year: 2025, Month: time.June, Day: 1}); row.TransactionDate != want {
		t.Errorf("TransactionDate = %v, want %v (UTC date)", row.TransactionDate, want)
	}
	if row.Amount.Cmp(big.NewRat(1250, 1)) != 0 {
		t.Errorf("Amount = %s, want 1250", row.Amount.RatString())
	}
	if row.Direction != "Db" {
		t.Errorf("Direction = %q, want Db", row.Direction)
	}
	if !row.OwnerEmail.Valid || row.OwnerEmail.StringVal != "me@x.com" {
		t.Errorf("OwnerEmail = %+v", row.OwnerEmail)
	}
	if row.OccurredAt.Location() != time.UTC {
		t.Errorf("OccurredAt should be UTC, got %s", row.OccurredAt.Location())
	}
}

func TestNewTimelineRow_NoOwner(t *testing.T) {
	row := NewTimelineRow(domain.Transaction{ID: "a", Amount: decimal.Zero}, time.Now())
	if row.OwnerEmail.Valid {
		t.Error("OwnerEmail should be NULL when untagged")
	}
}

func TestTimelineSavers(t *testing.T) {
	txs := []domain.Transaction{{ID: "a"}, {ID: "b"}}

	savers := TimelineSavers(txs, time.Now())

	if len(savers) != 2 {
		t.Fatalf("len(savers) = %d, want 2", len(savers))
	}
	for i, s := range savers {
		if s.InsertID != txs[i].ID {
			t.Errorf("savers[%d].InsertID = %q, want %q", i, s.InsertID, txs[i].ID)
		}
		if s.Struct.(*TimelineRow).TransactionID != txs[i].ID {
			t.Errorf("savers[%d] row id mismatch", i)
		}
	}
}
