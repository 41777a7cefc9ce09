// Package remote is the client side of the cloud file store holding the
// users' transaction documents.
package remote

import (
	"context"
	"errors"
	"fmt"

	"github.com/dvloznov/expense-sync/internal/domain"
	"github.com/dvloznov/expense-sync/internal/logger"
)

// Client speaks transactions on top of a byte-level Backend. It is the only
// place remote JSON is decoded, and every decoded entry is shape-checked.
type Client struct {
	backend Backend
}

// NewClient creates a Client over backend.
func NewClient(backend Backend) *Client {
	return &Client{backend: backend}
}

// FindByNameAndScope returns the handle of the caller's document, or ErrNotFound.
func (c *Client) FindByNameAndScope(ctx context.Context, name string, scope Scope) (Handle, error) {
	h, err := c.backend.Find(ctx, name, scope)
	if err != nil {
		return "", fmt.Errorf("FindByNameAndScope: %s (%s): %w", name, scope, err)
	}
	return h, nil
}

// Create stores a new document holding initial.
func (c *Client) Create(ctx context.Context, name string, scope Scope, initial []domain.Transaction) (Handle, error) {
	data, err := domain.EncodeDocument(initial)
	if err != nil {
		return "", fmt.Errorf("Create: %w", err)
	}

	h, err := c.backend.Create(ctx, name, scope, data)
	if err != nil {
		return "", fmt.Errorf("Create: %s (%s): %w", name, scope, err)
	}

	log := logger.FromContext(ctx)
	log.Info().
		Str("document", name).
		Str("scope", scope.String()).
		Str("handle", string(h)).
		Msg("Created remote document")
	return h, nil
}

// Read downloads and decodes a document. Entries with an id are kept, with
// invalid fields defaulted. Entries without an id are dropped and the
// remaining list is returned with ErrEntriesDropped.
func (c *Client) Read(ctx context.Context, h Handle) ([]domain.Transaction, error) {
	data, err := c.backend.Download(ctx, h)
	if err != nil {
		return nil, fmt.Errorf("Read: %s: %w", h, err)
	}

	txs, stats, err := domain.DecodeDocument(data)
	if err != nil {
		return nil, fmt.Errorf("Read: %s: %w", h, err)
	}

	log := logger.FromContext(ctx)
	if stats.Defaulted > 0 {
		log.Warn().
			Str("handle", string(h)).
			Int("defaulted", stats.Defaulted).
			Int("total", stats.Total).
			Msg("Defaulted invalid fields of remote transactions")
	}
	if stats.Skipped > 0 {
		log.Warn().
			Str("handle", string(h)).
			Int("skipped", stats.Skipped).
			Int("total", stats.Total).
			Msg("Dropped remote entries without id")
		return txs, fmt.Errorf("Read: %s: %d of %d entries: %w", h, stats.Skipped, stats.Total, ErrEntriesDropped)
	}
	return txs, nil
}

// Overwrite replaces the content of a document with txs.
func (c *Client) Overwrite(ctx context.Context, h Handle, txs []domain.Transaction) error {
	data, err := domain.EncodeDocument(txs)
	if err != nil {
		return fmt.Errorf("Overwrite: %w", err)
	}
	if err := c.backend.Upload(ctx, h, data); err != nil {
		return fmt.Errorf("Overwrite: %s: %w", h, err)
	}
	return nil
}

// GrantReaderPermission lets email read the document. Rejections surface as *PermissionError.
func (c *Client) GrantReaderPermission(ctx context.Context, h Handle, email string) error {
	if err := c.backend.GrantReader(ctx, h, email); err != nil {
		var permErr *PermissionError
		if errors.As(err, &permErr) {
			return permErr
		}
		return &PermissionError{Handle: h, Email: email, Err: err}
	}
	return nil
}

// ListSharedWithMe lists documents named name that were shared with the caller.
func (c *Client) ListSharedWithMe(ctx context.Context, name string) ([]SharedFile, error) {
	files, err := c.backend.ListSharedWithMe(ctx, name)
	if err != nil {
		return nil, fmt.Errorf("ListSharedWithMe: %s: %w", name, err)
	}
	return files, nil
}

// Exists reports whether a document is still available.
func (c *Client) Exists(ctx context.Context, h Handle) (bool, error) {
	ok, err := c.backend.Exists(ctx, h)
	if err != nil {
		return false, fmt.Errorf("Exists: %s: %w", h, err)
	}
	return ok, nil
}

// EnsureDocument returns the caller's document named name in scope, creating
// an empty one when none exists yet.
func EnsureDocument(ctx context.Context, store Store, name string, scope Scope) (Handle, error) {
	h, err := store.FindByNameAndScope(ctx, name, scope)
	if err == nil {
		return h, nil
	}
	if !errors.Is(err, ErrNotFound) {
		return "", fmt.Errorf("EnsureDocument: %w", err)
	}

	h, err = store.Create(ctx, name, scope, nil)
	if err != nil {
		return "", fmt.Errorf("EnsureDocument: %w", err)
	}
	return h, nil
}

// Ensure Client implements Store interface.
var _ Store = (*Client)(nil)
