package inmemory

import (
	"context"
	"fmt"
	"sort"
	"sync"

	"github.com/dvloznov/expense-sync/internal/inbox"
)

// Store is an in-memory implementation of inbox.Store.
// Data is lost on restart; use inbox.KVStore to remember deliveries.
type Store struct {
	mu       sync.RWMutex
	claimed  map[string]bool
	messages map[string]*inbox.Message
}

// NewStore creates a new in-memory message store.
func NewStore() *Store {
	return &Store{
		claimed:  make(map[string]bool),
		messages: make(map[string]*inbox.Message),
	}
}

// Claim implements inbox.Store.
func (s *Store) Claim(ctx context.Context, id string) (bool, error) {
	if id == "" {
		return false, fmt.Errorf("message ID is required")
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if s.claimed[id] {
		return false, nil
	}
	s.claimed[id] = true
	return true, nil
}

// SaveMessage implements inbox.Store.
func (s *Store) SaveMessage(ctx context.Context, msg *inbox.Message) error {
	if msg.ID == "" {
		return fmt.Errorf("message ID is required")
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	// Create a copy to avoid external modifications
	msgCopy := *msg
	s.messages[msg.ID] = &msgCopy
	return nil
}

// GetMessage implements inbox.Store.
func (s *Store) GetMessage(ctx context.Context, id string) (*inbox.Message, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	msg, exists := s.messages[id]
	if !exists {
		return nil, fmt.Errorf("%w: %s", inbox.ErrMessageNotFound, id)
	}

	msgCopy := *msg
	return &msgCopy, nil
}

// Release implements inbox.Store.
func (s *Store) Release(ctx context.Context, id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	delete(s.claimed, id)
	delete(s.messages, id)
	return nil
}

// Pending implements inbox.Store.
func (s *Store) Pending(ctx context.Context) ([]*inbox.Message, error) {
	return s.ListMessages(ctx, inbox.MessageStatusPending), nil
}

// ListMessages returns stored messages with the given status, or all of
// them when status is empty, oldest first.
func (s *Store) ListMessages(ctx context.Context, status inbox.MessageStatus) []*inbox.Message {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var result []*inbox.Message
	for _, msg := range s.messages {
		if status != "" && msg.Status != status {
			continue
		}
		msgCopy := *msg
		result = append(result, &msgCopy)
	}

	sort.Slice(result, func(i, j int) bool {
		if result[i].ReceivedAt.Equal(result[j].ReceivedAt) {
			return result[i].ID < result[j].ID
		}
		return result[i].ReceivedAt.Before(result[j].ReceivedAt)
	})
	return result
}

// Ensure Store implements inbox.Store interface.
var _ inbox.Store = (*Store)(nil)
