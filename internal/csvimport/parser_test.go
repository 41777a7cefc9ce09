package csvimport

import (
	"strings"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dvloznov/expense-sync/internal/domain"
)

var now = time.Date(2025, 12, 20, 15, 0, 0, 0, time.UTC)

const sheet = `Aerocity,December,,,,,,,,
Detail,Amount,Type,Paid,,,,,,
Rent,"₹ 18,000.00",Db,Yes,,F,9.33,,Rent,,1-Jan,"₹ 1,065.00",Travel
Salary,"₹ 95,000.00",Cr,Yes,,,,,Income
Coffee,₹ 120.50,Db,No
Groceries,₹ 2300,Db,Yes,3-Feb,,Food
Refund,abc,Cr,Yes,,,,,,
Bad date,₹ 10,Db,Yes,5-Foo,,,,
`

func TestParse(t *testing.T) {
	p := NewParser().WithClock(func() time.Time { return now })

	txs, err := p.Parse(strings.NewReader(sheet))
	require.NoError(t, err)
	require.Len(t, txs, 6)

	tests := []struct {
		detail    string
		amount    string
		direction domain.Direction
		status    string
		category  string
		date      time.Time
	}{
		{"Rent", "18000", domain.Debit, "Yes", "Travel", time.Date(2025, 1, 1, 0, 0, 0, 0, time.UTC)},
		{"Salary", "95000", domain.Credit, "Yes", "Income", now},
		{"Coffee", "120.5", domain.Debit, "No", domain.CategoryUncategorized, now},
		{"Groceries", "2300", domain.Debit, "Yes", "Food", time.Date(2025, 2, 3, 0, 0, 0, 0, time.UTC)},
		{"Refund", "0", domain.Credit, "Yes", domain.CategoryUncategorized, now},
		{"Bad date", "10", domain.Debit, "Yes", domain.CategoryUncategorized, now},
	}

	for i, tt := range tests {
		t.Run(tt.detail, func(t *testing.T) {
			tx := txs[i]
			assert.Equal(t, tt.detail, tx.Detail)
			assert.True(t, tx.Amount.Equal(decimal.RequireFromString(tt.amount)), "amount = %s", tx.Amount)
			assert.Equal(t, tt.direction, tx.Direction)
			assert.Equal(t, tt.status, tx.Status)
			assert.Equal(t, tt.category, tx.Category)
			assert.True(t, tt.date.Equal(tx.OccurredAt), "date = %s", tx.OccurredAt)
			assert.True(t, strings.HasPrefix(tx.ID, "csv-"))
		})
	}
}

func TestParse_FreshIDs(t *testing.T) {
	txs, err := NewParser().Parse(strings.NewReader("a,1,Db,Yes\na,1,Db,Yes\n"))
	require.NoError(t, err)
	require.Len(t, txs, 2)
	assert.NotEqual(t, txs[0].ID, txs[1].ID)
}

func TestParse_Empty(t *testing.T) {
	txs, err := NewParser().Parse(strings.NewReader(""))
	require.NoError(t, err)
	assert.Empty(t, txs)
}

func TestParseDayMonth(t *testing.T) {
	tests := []struct {
		in   string
		ok   bool
		want time.Time
	}{
		{"1-Jan", true, time.Date(2025, 1, 1, 0, 0, 0, 0, time.UTC)},
		{"28-dec", true, time.Date(2025, 12, 28, 0, 0, 0, 0, time.UTC)},
		{"123-Jan", false, time.Time{}},
		{"1-January", false, time.Time{}},
		{"5-Foo", false, time.Time{}},
	}

	for _, tt := range tests {
		t.Run(tt.in, func(t *testing.T) {
			got, ok := parseDayMonth(tt.in, now)
			assert.Equal(t, tt.ok, ok)
			if tt.ok {
				assert.True(t, tt.want.Equal(got), "got %s", got)
			}
		})
	}
}
