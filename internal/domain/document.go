package domain

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/shopspring/decimal"
)

// ErrMalformedDocument is returned when a stored document is not a JSON array of transactions.
var ErrMalformedDocument = errors.New("malformed transaction document")

// DocumentStats describes how DecodeDocument had to repair a document.
type DocumentStats struct {
	Total int
	// Skipped entries are not objects or carry no id. They cannot be merged
	// and are dropped.
	Skipped int
	// Defaulted entries were kept with a missing or invalid direction,
	// amount or date replaced by its default.
	Defaulted int
}

// EncodeDocument serializes a transaction list. A nil list encodes as an empty array.
func EncodeDocument(txs []Transaction) ([]byte, error) {
	if txs == nil {
		txs = []Transaction{}
	}
	data, err := json.Marshal(txs)
	if err != nil {
		return nil, fmt.Errorf("EncodeDocument: %w", err)
	}
	return data, nil
}

// DecodeDocument parses a transaction list. Every entry with an id is kept:
// an unknown direction becomes Debit, an unreadable amount zero and an
// unreadable date the zero time. Entries that are not objects or carry no id
// are skipped. All repairs are counted in the returned stats. An empty body
// or JSON null decodes to an empty list. Anything other than an array is
// ErrMalformedDocument.
func DecodeDocument(data []byte) ([]Transaction, DocumentStats, error) {
	var stats DocumentStats

	trimmed := bytes.TrimSpace(data)
	if len(trimmed) == 0 || bytes.Equal(trimmed, []byte("null")) {
		return []Transaction{}, stats, nil
	}

	var raw []json.RawMessage
	if err := json.Unmarshal(trimmed, &raw); err != nil {
		return nil, stats, fmt.Errorf("%w: %v", ErrMalformedDocument, err)
	}

	txs := make([]Transaction, 0, len(raw))
	for _, item := range raw {
		stats.Total++

		tx, defaulted, ok := decodeEntry(item)
		if !ok {
			stats.Skipped++
			continue
		}
		if defaulted {
			stats.Defaulted++
		}
		txs = append(txs, tx)
	}

	return txs, stats, nil
}

// decodeEntry reads one document entry field by field.
func decodeEntry(item json.RawMessage) (tx Transaction, defaulted bool, ok bool) {
	var fields map[string]json.RawMessage
	if err := json.Unmarshal(item, &fields); err != nil || fields == nil {
		return Transaction{}, false, false
	}

	id, _ := stringField(fields["id"])
	if id == "" {
		return Transaction{}, false, false
	}
	tx.ID = id

	tx.Detail, _ = stringField(fields["detail"])
	tx.Status, _ = stringField(fields["status"])
	tx.Category, _ = stringField(fields["category"])
	tx.OwnerEmail, _ = stringField(fields["ownerEmail"])

	direction, _ := stringField(fields["type"])
	tx.Direction = Direction(direction)
	if !tx.Direction.Valid() {
		tx.Direction = Debit
		defaulted = true
	}

	tx.Amount = decimal.Zero
	if raw := fields["amount"]; len(raw) > 0 && string(raw) != "null" {
		var amount decimal.Decimal
		if err := amount.UnmarshalJSON(raw); err != nil {
			defaulted = true
		} else {
			tx.Amount = amount
		}
	} else {
		defaulted = true
	}

	if err := json.Unmarshal(fields["date"], &tx.OccurredAt); err != nil {
		tx.OccurredAt = time.Time{}
		defaulted = true
	}

	return tx, defaulted, true
}

// stringField reads a JSON string, or a number as its literal text.
func stringField(raw json.RawMessage) (string, bool) {
	if len(raw) == 0 || string(raw) == "null" {
		return "", false
	}
	var s string
	if err := json.Unmarshal(raw, &s); err == nil {
		return s, true
	}
	var n json.Number
	if err := json.Unmarshal(raw, &n); err == nil {
		return n.String(), true
	}
	return "", false
}
