package remote

import (
	"context"
	"errors"
	"fmt"

	"github.com/dvloznov/expense-sync/internal/domain"
)

// Handle is an opaque reference to a remote document.
type Handle string

// Scope is the visibility area a document is created in and searched by.
type Scope int

const (
	// ScopePrivate documents are visible only to their owner and cannot be shared.
	ScopePrivate Scope = iota
	// ScopeShared documents are owned by the user and may be granted to other principals.
	ScopeShared
)

func (s Scope) String() string {
	switch s {
	case ScopePrivate:
		return "private"
	case ScopeShared:
		return "shared"
	default:
		return fmt.Sprintf("scope(%d)", int(s))
	}
}

var (
	// ErrNotFound reports a document that does not exist, is trashed, or is not visible to the caller.
	ErrNotFound = errors.New("remote: document not found")

	// ErrInvalidDocument reports a document whose content is not a transaction list.
	ErrInvalidDocument = domain.ErrMalformedDocument

	// ErrEntriesDropped reports a document read that had to drop entries
	// without an id. Read returns the remaining transactions along with it.
	ErrEntriesDropped = errors.New("remote: document entries without id dropped")
)

// PermissionError is returned when the backend rejects a permission grant.
// Reason carries the backend's own explanation when it gave one.
type PermissionError struct {
	Handle Handle
	Email  string
	Reason string
	Err    error
}

func (e *PermissionError) Error() string {
	if e.Reason != "" {
		return fmt.Sprintf("grant reader on %s to %s: %s", e.Handle, e.Email, e.Reason)
	}
	return fmt.Sprintf("grant reader on %s to %s: %v", e.Handle, e.Email, e.Err)
}

func (e *PermissionError) Unwrap() error {
	return e.Err
}

// SharedFile is a document another user granted the caller access to.
type SharedFile struct {
	Handle      Handle
	Name        string
	OwnerEmails []string
}

// Backend is the byte-level contract a cloud file store must satisfy.
// Implementations map "absent" conditions to ErrNotFound.
type Backend interface {
	// Find locates a document owned by the caller by exact name within scope.
	Find(ctx context.Context, name string, scope Scope) (Handle, error)

	// Create stores a new document and returns its handle.
	Create(ctx context.Context, name string, scope Scope, content []byte) (Handle, error)

	// Download returns the full content of a document.
	Download(ctx context.Context, h Handle) ([]byte, error)

	// Upload replaces the full content of a document.
	Upload(ctx context.Context, h Handle, content []byte) error

	// GrantReader gives email read access to a document.
	GrantReader(ctx context.Context, h Handle, email string) error

	// ListSharedWithMe lists documents named name that other users shared with the caller.
	ListSharedWithMe(ctx context.Context, name string) ([]SharedFile, error)

	// Exists reports whether a document is still present and not trashed.
	Exists(ctx context.Context, h Handle) (bool, error)
}

// Store is the transaction-level remote object store consumed by the sync engine
// and the partner handshake.
type Store interface {
	FindByNameAndScope(ctx context.Context, name string, scope Scope) (Handle, error)
	Create(ctx context.Context, name string, scope Scope, initial []domain.Transaction) (Handle, error)
	// Read returns the document's transactions. When entries had to be
	// dropped the list is returned together with ErrEntriesDropped.
	Read(ctx context.Context, h Handle) ([]domain.Transaction, error)
	Overwrite(ctx context.Context, h Handle, txs []domain.Transaction) error
	GrantReaderPermission(ctx context.Context, h Handle, email string) error
	ListSharedWithMe(ctx context.Context, name string) ([]SharedFile, error)
	Exists(ctx context.Context, h Handle) (bool, error)
}
