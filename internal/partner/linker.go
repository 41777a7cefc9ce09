package partner

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/dvloznov/expense-sync/internal/domain"
	"github.com/dvloznov/expense-sync/internal/logger"
	"github.com/dvloznov/expense-sync/internal/remote"
)

var (
	// ErrPartnerNotFound is returned when no document shared with the user matches.
	ErrPartnerNotFound = errors.New("could not find a shared file from your partner")

	// ErrShareFailed wraps every failure of the sharing side of the handshake.
	ErrShareFailed = errors.New("sharing failed")
)

// Documents names the two remote documents every user owns.
type Documents struct {
	Own    string
	Shared string
}

// DefaultDocuments returns the well-known document names.
func DefaultDocuments() Documents {
	return Documents{
		Own:    "transactions.json",
		Shared: "expenses_app_shared_transactions.json",
	}
}

// Linker runs the Partner Mode handshake for the user identified by self.
type Linker struct {
	store   RemoteStore
	manager *Manager
	docs    Documents
	self    string
}

// NewLinker creates a Linker.
func NewLinker(store RemoteStore, manager *Manager, docs Documents, selfEmail string) *Linker {
	return &Linker{
		store:   store,
		manager: manager,
		docs:    docs,
		self:    NormalizeEmail(selfEmail),
	}
}

// Share publishes the user's transactions to partnerEmail: it prepares the
// shared document, copies the own list into it, grants read access and only
// then enables Partner Mode. Local settings are unchanged on failure.
func (l *Linker) Share(ctx context.Context, partnerEmail string) (remote.Handle, error) {
	email, err := ValidatePartnerEmail(partnerEmail, l.self)
	if err != nil {
		return "", err
	}

	h, err := l.publish(ctx, email)
	if err != nil {
		return "", err
	}

	if err := l.manager.Enable(ctx, email); err != nil {
		return "", fmt.Errorf("Share: %w", err)
	}
	return h, nil
}

// Reshare re-runs the sharing side for the partner already on record.
func (l *Linker) Reshare(ctx context.Context) (remote.Handle, error) {
	settings := l.manager.GetSettings(ctx)
	if settings.PartnerEmail == "" {
		return "", fmt.Errorf("Reshare: %w", ErrPartnerModeDisabled)
	}
	return l.publish(ctx, settings.PartnerEmail)
}

// Link attaches to the document partnerEmail shared with the user. Partner
// Mode and the discovered handle are saved together; on failure the settings
// are unchanged.
func (l *Linker) Link(ctx context.Context, partnerEmail string) (remote.Handle, error) {
	email, err := ValidatePartnerEmail(partnerEmail, l.self)
	if err != nil {
		return "", err
	}

	h, err := l.Discover(ctx, email)
	if err != nil {
		return "", fmt.Errorf("Link: %w", err)
	}

	if err := l.manager.EnableWithHandle(ctx, email, string(h)); err != nil {
		return "", fmt.Errorf("Link: %w", err)
	}
	return h, nil
}

// Discover finds the shared document of partnerEmail among the documents
// shared with the user. A document owned by partnerEmail is preferred; when
// none is, the first result is returned.
func (l *Linker) Discover(ctx context.Context, partnerEmail string) (remote.Handle, error) {
	log := logger.FromContext(ctx)

	files, err := l.store.ListSharedWithMe(ctx, l.docs.Shared)
	if err != nil {
		return "", fmt.Errorf("Discover: %w", err)
	}
	if len(files) == 0 {
		return "", ErrPartnerNotFound
	}

	for _, f := range files {
		for _, owner := range f.OwnerEmails {
			if strings.EqualFold(owner, partnerEmail) {
				return f.Handle, nil
			}
		}
	}

	// TODO: surface the unverified owner to the user once the CLI can prompt for confirmation.
	log.Warn().
		Str("partner_email", partnerEmail).
		Str("handle", string(files[0].Handle)).
		Strs("owners", files[0].OwnerEmails).
		Msg("No shared document owned by partner, using first result")
	return files[0].Handle, nil
}

// EnsureSharedDocument returns the user's shared document. A cached handle is
// reused while it still exists; otherwise the document is looked up by name
// or created, and the cache is refreshed.
func (l *Linker) EnsureSharedDocument(ctx context.Context) (remote.Handle, error) {
	log := logger.FromContext(ctx)

	if cached, ok := l.manager.SharedDocumentHandle(ctx); ok {
		exists, err := l.store.Exists(ctx, cached)
		if err == nil && exists {
			return cached, nil
		}
		log.Warn().Err(err).Str("handle", string(cached)).Msg("Cached shared document is gone")
	}

	h, err := remote.EnsureDocument(ctx, l.store, l.docs.Shared, remote.ScopeShared)
	if err != nil {
		return "", fmt.Errorf("EnsureSharedDocument: %w", err)
	}

	if err := l.manager.SetSharedDocumentHandle(ctx, h); err != nil {
		log.Warn().Err(err).Str("handle", string(h)).Msg("Failed to cache shared document handle")
	}
	return h, nil
}

// OwnTransactions reads the user's remote own document tagged with the user's
// email. A missing document is an empty list.
func (l *Linker) OwnTransactions(ctx context.Context) ([]domain.Transaction, error) {
	h, err := l.store.FindByNameAndScope(ctx, l.docs.Own, remote.ScopePrivate)
	if errors.Is(err, remote.ErrNotFound) {
		return []domain.Transaction{}, nil
	}
	if err != nil {
		return nil, fmt.Errorf("OwnTransactions: %w", err)
	}

	txs, err := l.store.Read(ctx, h)
	if err != nil && !errors.Is(err, remote.ErrEntriesDropped) {
		return nil, fmt.Errorf("OwnTransactions: %w", err)
	}
	return domain.TagOwner(txs, l.self), nil
}

// publish refreshes the shared document and grants email read access.
func (l *Linker) publish(ctx context.Context, email string) (remote.Handle, error) {
	log := logger.FromContext(ctx).With().Str("partner_email", email).Logger()

	h, err := l.EnsureSharedDocument(ctx)
	if err != nil {
		return "", fmt.Errorf("%w: could not create shared file: %w", ErrShareFailed, err)
	}

	own, err := l.OwnTransactions(ctx)
	if err != nil {
		log.Warn().Err(err).Msg("Failed to read own transactions, sharing current shared copy")
	} else if err := l.store.Overwrite(ctx, h, own); err != nil {
		log.Warn().Err(err).Str("handle", string(h)).Msg("Failed to copy transactions to shared document")
	} else {
		log.Info().Int("count", len(own)).Str("handle", string(h)).Msg("Copied transactions to shared document")
	}

	if err := l.store.GrantReaderPermission(ctx, h, email); err != nil {
		return "", fmt.Errorf("%w: %w", ErrShareFailed, err)
	}

	log.Info().Str("handle", string(h)).Msg("Shared transactions with partner")
	return h, nil
}
