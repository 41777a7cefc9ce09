// Package sms turns bank notification texts into transactions awaiting review.
package sms

import (
	"fmt"
	"regexp"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/dvloznov/expense-sync/internal/domain"
)

// Rule pairs a pattern with the direction of the money it describes.
// The amount is taken from the last non-empty capture group.
type Rule struct {
	Name      string
	Pattern   *regexp.Regexp
	Direction domain.Direction
}

const currency = `(?:INR|Rs\.?|₹)`
const amount = `([0-9,]+(?:\.[0-9]{1,2})?)`

// DefaultRules is the built-in rule list in priority order.
var DefaultRules = []Rule{
	{
		Name:      "debited_inr",
		Pattern:   regexp.MustCompile(`(?i)debited for\s*` + currency + `\s*` + amount),
		Direction: domain.Debit,
	},
	{
		Name:      "debited_at",
		Pattern:   regexp.MustCompile(`(?i)debited(?: at| by)?\s+([A-Za-z0-9 &.,'-]+)\s*(?:for|:)?\s*` + currency + `?\s*` + amount),
		Direction: domain.Debit,
	},
	{
		Name:      "spent_at",
		Pattern:   regexp.MustCompile(`(?i)spent(?: at)?\s+([A-Za-z0-9 &.,'-]+)\s*(?:for|:)?\s*` + currency + `?\s*` + amount),
		Direction: domain.Debit,
	},
	{
		Name:      "credited",
		Pattern:   regexp.MustCompile(`(?i)credited(?: to)?\s*` + currency + `?\s*` + amount),
		Direction: domain.Credit,
	},
}

// Result is the outcome of Extract. Transaction is set only when Matched.
type Result struct {
	Matched     bool
	Rule        string
	Transaction domain.Transaction
}

// Extractor applies rules in order; the first matching rule wins.
type Extractor struct {
	rules []Rule
	now   func() time.Time
	newID func(time.Time) string
}

// Option configures an Extractor.
type Option func(*Extractor)

// WithClock replaces the wall clock used for ids and timestamps.
func WithClock(now func() time.Time) Option {
	return func(e *Extractor) { e.now = now }
}

// WithIDGenerator replaces the id generator.
func WithIDGenerator(newID func(time.Time) string) Option {
	return func(e *Extractor) { e.newID = newID }
}

// WithRules replaces the rule list.
func WithRules(rules []Rule) Option {
	return func(e *Extractor) { e.rules = rules }
}

// NewExtractor creates an Extractor with DefaultRules.
func NewExtractor(opts ...Option) *Extractor {
	e := &Extractor{
		rules: DefaultRules,
		now:   time.Now,
		newID: NewID,
	}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

// Extract parses text. Empty input never matches.
func (e *Extractor) Extract(text string) Result {
	if strings.TrimSpace(text) == "" {
		return Result{}
	}

	for _, rule := range e.rules {
		m := rule.Pattern.FindStringSubmatch(text)
		if m == nil {
			continue
		}

		capturedAt := e.now()
		return Result{
			Matched: true,
			Rule:    rule.Name,
			Transaction: domain.Transaction{
				ID:         e.newID(capturedAt),
				Detail:     preview(text),
				Amount:     NormalizeAmount(lastCapture(m)),
				Direction:  rule.Direction,
				Status:     domain.StatusReview,
				Category:   domain.CategoryUncategorized,
				OccurredAt: capturedAt,
			},
		}
	}
	return Result{}
}

// NormalizeAmount strips thousands separators and parses raw as a decimal
// rounded to two places. Anything unparsable is zero.
func NormalizeAmount(raw string) decimal.Decimal {
	cleaned := strings.ReplaceAll(strings.TrimSpace(raw), ",", "")
	d, err := decimal.NewFromString(cleaned)
	if err != nil {
		return decimal.Zero
	}
	return d.Round(2)
}

// NewID returns "sms-<unix millis>-<8 hex chars>".
func NewID(at time.Time) string {
	return fmt.Sprintf("sms-%d-%s", at.UnixMilli(), uuid.NewString()[:8])
}

func lastCapture(m []string) string {
	for i := len(m) - 1; i > 0; i-- {
		if m[i] != "" {
			return m[i]
		}
	}
	return ""
}

func preview(text string) string {
	runes := []rune(text)
	if len(runes) <= domain.MaxDetailLength {
		return text
	}
	return string(runes[:domain.MaxDetailLength])
}
