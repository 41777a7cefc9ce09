package syncengine

import (
	"context"

	"github.com/dvloznov/expense-sync/internal/domain"
	"github.com/dvloznov/expense-sync/internal/remote"
)

// LocalStore is the on-device transaction list.
type LocalStore interface {
	GetAll(ctx context.Context) ([]domain.Transaction, error)
	ReplaceAll(ctx context.Context, txs []domain.Transaction) error
}

// RemoteStore is the remote object store holding the documents.
type RemoteStore = remote.Store

// PartnerSettings exposes the Partner Mode record.
type PartnerSettings interface {
	GetSettings(ctx context.Context) domain.PartnerLink
	SetPartnerFileHandle(ctx context.Context, handle string) error
}

// PartnerDiscovery locates the partner's document and the user's own shared document.
type PartnerDiscovery interface {
	Discover(ctx context.Context, partnerEmail string) (remote.Handle, error)
	EnsureSharedDocument(ctx context.Context) (remote.Handle, error)
}
