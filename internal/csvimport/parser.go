// Package csvimport reads transactions from bank spreadsheet exports that have
// no reliable header row.
package csvimport

import (
	"encoding/csv"
	"fmt"
	"io"
	"regexp"
	"strconv"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/dvloznov/expense-sync/internal/domain"
)

var (
	dayMonthPattern = regexp.MustCompile(`^\d{1,2}-[A-Za-z]{3}$`)
	nonAmountChars  = regexp.MustCompile(`[^0-9.-]+`)
)

var months = map[string]time.Month{
	"jan": time.January, "feb": time.February, "mar": time.March,
	"apr": time.April, "may": time.May, "jun": time.June,
	"jul": time.July, "aug": time.August, "sep": time.September,
	"oct": time.October, "nov": time.November, "dec": time.December,
}

// Column positions of a transaction row.
const (
	colDetail    = 0
	colAmount    = 1
	colDirection = 2
	colStatus    = 3
	colCategory  = 8
	firstDateCol = 4
)

// Parser turns CSV rows into transactions.
type Parser struct {
	now   func() time.Time
	newID func() string
}

// NewParser creates a Parser using the wall clock and random ids.
func NewParser() *Parser {
	return &Parser{
		now:   time.Now,
		newID: func() string { return "csv-" + uuid.NewString() },
	}
}

// WithClock replaces the clock used for undated rows and the current year.
func (p *Parser) WithClock(now func() time.Time) *Parser {
	p.now = now
	return p
}

// Parse reads every row and keeps those that look like transactions: more
// than three columns with "Cr" or "Db" in the third. Other rows are skipped.
func (p *Parser) Parse(r io.Reader) ([]domain.Transaction, error) {
	reader := csv.NewReader(r)
	reader.FieldsPerRecord = -1
	reader.LazyQuotes = true

	var txs []domain.Transaction
	for {
		row, err := reader.Read()
		if err == io.EOF {
			break
		}
		if err != nil {
			return nil, fmt.Errorf("Parse: %w", err)
		}

		if tx, ok := p.parseRow(row); ok {
			txs = append(txs, tx)
		}
	}
	return txs, nil
}

func (p *Parser) parseRow(row []string) (domain.Transaction, bool) {
	if len(row) <= colStatus {
		return domain.Transaction{}, false
	}
	direction := domain.Direction(strings.TrimSpace(row[colDirection]))
	if !direction.Valid() {
		return domain.Transaction{}, false
	}

	now := p.now()
	tx := domain.Transaction{
		ID:         p.newID(),
		Detail:     strings.TrimSpace(row[colDetail]),
		Amount:     parseAmount(row[colAmount]),
		Direction:  direction,
		Status:     strings.TrimSpace(row[colStatus]),
		Category:   domain.CategoryUncategorized,
		OccurredAt: now,
	}
	if len(row) > colCategory && strings.TrimSpace(row[colCategory]) != "" {
		tx.Category = strings.TrimSpace(row[colCategory])
	}

	for i := firstDateCol; i < len(row); i++ {
		date, ok := parseDayMonth(strings.TrimSpace(row[i]), now)
		if !ok {
			continue
		}
		tx.OccurredAt = date
		if len(row) > i+2 && strings.TrimSpace(row[i+2]) != "" {
			tx.Category = strings.TrimSpace(row[i+2])
		}
		break
	}
	return tx, true
}

// parseAmount keeps digits, dots and minus signs. Anything unparsable is zero.
func parseAmount(raw string) decimal.Decimal {
	d, err := decimal.NewFromString(nonAmountChars.ReplaceAllString(raw, ""))
	if err != nil {
		return decimal.Zero
	}
	return d
}

// parseDayMonth parses "1-Jan" as a date in the year of now.
func parseDayMonth(s string, now time.Time) (time.Time, bool) {
	if !dayMonthPattern.MatchString(s) {
		return time.Time{}, false
	}
	parts := strings.SplitN(s, "-", 2)
	day, err := strconv.Atoi(parts[0])
	if err != nil {
		return time.Time{}, false
	}
	month, ok := months[strings.ToLower(parts[1])]
	if !ok {
		return time.Time{}, false
	}
	return time.Date(now.Year(), month, day, 0, 0, 0, 0, now.Location()), true
}
