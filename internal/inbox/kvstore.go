package inbox

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"slices"
	"sync"

	"github.com/dvloznov/expense-sync/internal/kv"
)

const (
	claimKeyPrefix   = "@expenses_app:sms_claimed:"
	messageKeyPrefix = "@expenses_app:sms_message:"
	pendingKey       = "@expenses_app:sms_pending"
)

// KVStore is a Store on the local key-value store, so deliveries are
// remembered across restarts. Claims are not atomic across processes; only
// one inbox consumer may run per local store.
//
// The kv store cannot list keys, so ids of pending messages are kept in a
// separate index entry.
type KVStore struct {
	kv kv.Store
	mu sync.Mutex
}

// NewKVStore creates a KVStore.
func NewKVStore(store kv.Store) *KVStore {
	return &KVStore{kv: store}
}

// Claim implements Store.
func (s *KVStore) Claim(ctx context.Context, id string) (bool, error) {
	if id == "" {
		return false, fmt.Errorf("Claim: message ID is required")
	}

	_, err := s.kv.Get(ctx, claimKeyPrefix+id)
	if err == nil {
		return false, nil
	}
	if !errors.Is(err, kv.ErrNotFound) {
		return false, fmt.Errorf("Claim: %w", err)
	}

	if err := s.kv.Set(ctx, claimKeyPrefix+id, []byte{1}); err != nil {
		return false, fmt.Errorf("Claim: %w", err)
	}
	return true, nil
}

// SaveMessage implements Store.
func (s *KVStore) SaveMessage(ctx context.Context, msg *Message) error {
	if msg.ID == "" {
		return fmt.Errorf("SaveMessage: message ID is required")
	}

	data, err := json.Marshal(msg)
	if err != nil {
		return fmt.Errorf("SaveMessage: marshal: %w", err)
	}
	if err := s.kv.Set(ctx, messageKeyPrefix+msg.ID, data); err != nil {
		return fmt.Errorf("SaveMessage: %w", err)
	}
	if err := s.index(ctx, msg.ID, msg.Status == MessageStatusPending); err != nil {
		return fmt.Errorf("SaveMessage: %w", err)
	}
	return nil
}

// GetMessage implements Store.
func (s *KVStore) GetMessage(ctx context.Context, id string) (*Message, error) {
	data, err := s.kv.Get(ctx, messageKeyPrefix+id)
	if errors.Is(err, kv.ErrNotFound) {
		return nil, fmt.Errorf("GetMessage: %w: %s", ErrMessageNotFound, id)
	}
	if err != nil {
		return nil, fmt.Errorf("GetMessage: %w", err)
	}

	var msg Message
	if err := json.Unmarshal(data, &msg); err != nil {
		return nil, fmt.Errorf("GetMessage: unmarshal: %w", err)
	}
	return &msg, nil
}

// Release implements Store.
func (s *KVStore) Release(ctx context.Context, id string) error {
	if err := s.index(ctx, id, false); err != nil {
		return fmt.Errorf("Release: %w", err)
	}
	if err := s.kv.Remove(ctx, messageKeyPrefix+id); err != nil {
		return fmt.Errorf("Release: %w", err)
	}
	if err := s.kv.Remove(ctx, claimKeyPrefix+id); err != nil {
		return fmt.Errorf("Release: %w", err)
	}
	return nil
}

// Pending implements Store. Index entries whose message is gone or no
// longer pending are skipped.
func (s *KVStore) Pending(ctx context.Context) ([]*Message, error) {
	s.mu.Lock()
	ids, err := s.pendingIDs(ctx)
	s.mu.Unlock()
	if err != nil {
		return nil, fmt.Errorf("Pending: %w", err)
	}

	var result []*Message
	for _, id := range ids {
		msg, err := s.GetMessage(ctx, id)
		if errors.Is(err, ErrMessageNotFound) {
			continue
		}
		if err != nil {
			return nil, fmt.Errorf("Pending: %w", err)
		}
		if msg.Status == MessageStatusPending {
			result = append(result, msg)
		}
	}
	return result, nil
}

// index adds id to or removes it from the pending index.
func (s *KVStore) index(ctx context.Context, id string, pending bool) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	ids, err := s.pendingIDs(ctx)
	if err != nil {
		return err
	}

	i := slices.Index(ids, id)
	switch {
	case pending && i < 0:
		ids = append(ids, id)
	case !pending && i >= 0:
		ids = slices.Delete(ids, i, i+1)
	default:
		return nil
	}

	data, err := json.Marshal(ids)
	if err != nil {
		return fmt.Errorf("marshal pending index: %w", err)
	}
	if err := s.kv.Set(ctx, pendingKey, data); err != nil {
		return fmt.Errorf("save pending index: %w", err)
	}
	return nil
}

func (s *KVStore) pendingIDs(ctx context.Context) ([]string, error) {
	data, err := s.kv.Get(ctx, pendingKey)
	if errors.Is(err, kv.ErrNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("load pending index: %w", err)
	}

	var ids []string
	if err := json.Unmarshal(data, &ids); err != nil {
		return nil, fmt.Errorf("unmarshal pending index: %w", err)
	}
	return ids, nil
}

var _ Store = (*KVStore)(nil)
