// Package localstore keeps the on-device transaction list.
package localstore

import (
	"context"
	"errors"
	"fmt"

	"github.com/dvloznov/expense-sync/internal/domain"
	"github.com/dvloznov/expense-sync/internal/kv"
	"github.com/dvloznov/expense-sync/internal/logger"
)

// TransactionsKey is the storage slot of the serialized transaction list.
const TransactionsKey = "@expenses_app:transactions"

// TransactionStore reads and writes the full transaction list as one JSON document.
type TransactionStore struct {
	kv kv.Store
}

// NewTransactionStore creates a TransactionStore on top of store.
func NewTransactionStore(store kv.Store) *TransactionStore {
	return &TransactionStore{kv: store}
}

// GetAll returns the stored transactions, newest first as last written.
// A missing slot is an empty list. A slot holding unparsable JSON is cleared
// and treated as empty. Only a failure of the underlying store is returned.
func (s *TransactionStore) GetAll(ctx context.Context) ([]domain.Transaction, error) {
	log := logger.FromContext(ctx)

	raw, err := s.kv.Get(ctx, TransactionsKey)
	if errors.Is(err, kv.ErrNotFound) {
		return []domain.Transaction{}, nil
	}
	if err != nil {
		return []domain.Transaction{}, fmt.Errorf("GetAll: read: %w", err)
	}

	txs, stats, err := domain.DecodeDocument(raw)
	if err != nil {
		log.Warn().Err(err).Str("key", TransactionsKey).Msg("Clearing corrupt local transaction list")
		if rmErr := s.kv.Remove(ctx, TransactionsKey); rmErr != nil {
			log.Warn().Err(rmErr).Str("key", TransactionsKey).Msg("Failed to clear corrupt key")
		}
		return []domain.Transaction{}, nil
	}
	if stats.Skipped > 0 || stats.Defaulted > 0 {
		log.Warn().
			Int("skipped", stats.Skipped).
			Int("defaulted", stats.Defaulted).
			Int("total", stats.Total).
			Msg("Repaired invalid local transactions")
	}

	return txs, nil
}

// Add prepends tx to the stored list.
func (s *TransactionStore) Add(ctx context.Context, tx domain.Transaction) error {
	current, err := s.GetAll(ctx)
	if err != nil {
		return fmt.Errorf("Add: %w", err)
	}

	next := make([]domain.Transaction, 0, len(current)+1)
	next = append(next, tx)
	next = append(next, current...)

	if err := s.ReplaceAll(ctx, next); err != nil {
		return fmt.Errorf("Add: %w", err)
	}
	return nil
}

// ReplaceAll overwrites the stored list with txs.
func (s *TransactionStore) ReplaceAll(ctx context.Context, txs []domain.Transaction) error {
	data, err := domain.EncodeDocument(txs)
	if err != nil {
		return fmt.Errorf("ReplaceAll: %w", err)
	}
	if err := s.kv.Set(ctx, TransactionsKey, data); err != nil {
		return fmt.Errorf("ReplaceAll: write: %w", err)
	}
	return nil
}
