// Package syncengine merges the local transaction list with the user's remote
// own document and with the partner's shared document.
//
// The engine never fails outright. Every operation returns the best timeline
// it could build; remote problems only mark the result as degraded.
package syncengine

import (
	"context"
	"errors"
	"fmt"

	"github.com/dvloznov/expense-sync/internal/domain"
	"github.com/dvloznov/expense-sync/internal/logger"
	"github.com/dvloznov/expense-sync/internal/partner"
	"github.com/dvloznov/expense-sync/internal/remote"
)

// Timeline is the result of a sync. Reason joins every step that degraded.
type Timeline struct {
	Transactions []domain.Transaction
	Degraded     bool
	Reason       error
}

func timeline(txs []domain.Transaction, reasons []error) Timeline {
	reason := errors.Join(reasons...)
	return Timeline{Transactions: txs, Degraded: reason != nil, Reason: reason}
}

// Engine is the only writer of the remote documents and of the full local list.
// Calls must not overlap on the same local store.
type Engine struct {
	local    LocalStore
	remote   RemoteStore
	settings PartnerSettings
	partners PartnerDiscovery
	docs     partner.Documents
}

// New creates an Engine.
func New(local LocalStore, store RemoteStore, settings PartnerSettings, partners PartnerDiscovery, docs partner.Documents) *Engine {
	return &Engine{
		local:    local,
		remote:   store,
		settings: settings,
		partners: partners,
		docs:     docs,
	}
}

// SyncOwn merges the local list with the remote own document, remote winning
// on id collisions, and writes the result to both.
func (e *Engine) SyncOwn(ctx context.Context) Timeline {
	log := logger.FromContext(ctx)
	var reasons []error

	h, err := remote.EnsureDocument(ctx, e.remote, e.docs.Own, remote.ScopePrivate)
	if err != nil {
		log.Warn().Err(err).Str("document", e.docs.Own).Msg("Own document unavailable")
		reasons = append(reasons, fmt.Errorf("SyncOwn: %w", err))
	}

	remoteTxs, writeRemote := []domain.Transaction{}, h != ""
	if h != "" {
		txs, err := e.remote.Read(ctx, h)
		switch {
		case err == nil:
			remoteTxs = txs
		case errors.Is(err, remote.ErrEntriesDropped):
			// Entries without an id cannot be merged; the rest still count.
			remoteTxs = txs
			reasons = append(reasons, fmt.Errorf("SyncOwn: %w", err))
		case errors.Is(err, remote.ErrInvalidDocument):
			log.Warn().Err(err).Str("handle", string(h)).Msg("Own document is malformed, rewriting it")
			reasons = append(reasons, fmt.Errorf("SyncOwn: %w", err))
		default:
			// The remote copy is intact but unknown; writing the local
			// view over it would drop remote-only records.
			log.Warn().Err(err).Str("handle", string(h)).Msg("Failed to read own document")
			reasons = append(reasons, fmt.Errorf("SyncOwn: %w", err))
			writeRemote = false
		}
	}

	local, err := e.local.GetAll(ctx)
	if err != nil {
		log.Warn().Err(err).Msg("Failed to read local transactions")
		return timeline(local, append(reasons, fmt.Errorf("SyncOwn: %w", err)))
	}

	merged := MergeRemoteWins(local, remoteTxs)

	if err := e.local.ReplaceAll(ctx, merged); err != nil {
		log.Warn().Err(err).Msg("Failed to write merged transactions locally")
		return timeline(local, append(reasons, fmt.Errorf("SyncOwn: %w", err)))
	}

	if writeRemote {
		if err := e.remote.Overwrite(ctx, h, merged); err != nil {
			log.Warn().Err(err).Str("handle", string(h)).Msg("Failed to write merged transactions remotely")
			reasons = append(reasons, fmt.Errorf("SyncOwn: %w", err))
		}
	}

	log.Info().
		Int("local", len(local)).
		Int("remote", len(remoteTxs)).
		Int("count", len(merged)).
		Msg("Synced own transactions")
	return timeline(merged, reasons)
}

// SyncWithPartner runs SyncOwn, tags the result with selfEmail and, in
// Partner Mode, adds the partner's records. Own records win on id collisions.
// The combined timeline is not persisted.
func (e *Engine) SyncWithPartner(ctx context.Context, selfEmail string) Timeline {
	log := logger.FromContext(ctx)

	own := e.SyncOwn(ctx)
	var reasons []error
	if own.Reason != nil {
		reasons = append(reasons, own.Reason)
	}
	tagged := domain.TagOwner(own.Transactions, selfEmail)

	settings := e.settings.GetSettings(ctx)
	if !settings.Enabled {
		return timeline(tagged, reasons)
	}

	partnerTxs, err := e.partnerTransactions(ctx, settings)
	if err != nil {
		log.Warn().Err(err).Str("partner_email", settings.PartnerEmail).Msg("Failed to fetch partner transactions")
		reasons = append(reasons, fmt.Errorf("SyncWithPartner: %w", err))
	}

	merged := MergeOwnWins(tagged, partnerTxs)
	log.Info().
		Int("own", len(tagged)).
		Int("partner", len(partnerTxs)).
		Int("count", len(merged)).
		Msg("Synced with partner")
	return timeline(merged, reasons)
}

// Append prepends tx to the remote own document. The caller has already
// stored tx locally.
func (e *Engine) Append(ctx context.Context, tx domain.Transaction) error {
	h, err := remote.EnsureDocument(ctx, e.remote, e.docs.Own, remote.ScopePrivate)
	if err != nil {
		return fmt.Errorf("Append: %w", err)
	}

	current, err := e.remote.Read(ctx, h)
	if err != nil && !errors.Is(err, remote.ErrInvalidDocument) && !errors.Is(err, remote.ErrEntriesDropped) {
		return fmt.Errorf("Append: %w", err)
	}

	next := make([]domain.Transaction, 0, len(current)+1)
	next = append(next, tx)
	next = append(next, current...)

	if err := e.remote.Overwrite(ctx, h, next); err != nil {
		return fmt.Errorf("Append: %w", err)
	}
	return nil
}

// PublishSharedSnapshot overwrites the user's shared document with the remote
// own list tagged with selfEmail. It does nothing outside Partner Mode.
func (e *Engine) PublishSharedSnapshot(ctx context.Context, selfEmail string) error {
	if !e.settings.GetSettings(ctx).Enabled {
		return nil
	}

	h, err := e.partners.EnsureSharedDocument(ctx)
	if err != nil {
		return fmt.Errorf("PublishSharedSnapshot: %w", err)
	}

	own, err := e.readOwn(ctx)
	if err != nil {
		return fmt.Errorf("PublishSharedSnapshot: %w", err)
	}

	if err := e.remote.Overwrite(ctx, h, domain.TagOwner(own, selfEmail)); err != nil {
		return fmt.Errorf("PublishSharedSnapshot: %w", err)
	}

	log := logger.FromContext(ctx)
	log.Info().Int("count", len(own)).Str("handle", string(h)).Msg("Published shared snapshot")
	return nil
}

// partnerTransactions reads the partner's document, tagged with the partner's
// email. A partner that has not shared yet yields no records and no error.
func (e *Engine) partnerTransactions(ctx context.Context, settings domain.PartnerLink) ([]domain.Transaction, error) {
	if settings.PartnerEmail == "" {
		return nil, nil
	}

	h := remote.Handle(settings.PartnerFileHandle)
	cached := h != ""
	if !cached {
		found, err := e.discover(ctx, settings.PartnerEmail)
		if err != nil || found == "" {
			return nil, err
		}
		h = found
	}

	txs, err := e.remote.Read(ctx, h)
	if errors.Is(err, remote.ErrNotFound) && cached {
		log := logger.FromContext(ctx)
		log.Info().Str("handle", string(h)).Msg("Cached partner document is gone, rediscovering")

		found, derr := e.discover(ctx, settings.PartnerEmail)
		if derr != nil {
			return nil, derr
		}
		if found == "" || found == h {
			if cerr := e.settings.SetPartnerFileHandle(ctx, ""); cerr != nil {
				log.Warn().Err(cerr).Msg("Failed to clear partner document handle")
			}
			return nil, nil
		}
		txs, err = e.remote.Read(ctx, found)
	}
	if err != nil && !errors.Is(err, remote.ErrEntriesDropped) {
		return nil, err
	}

	// A partial read still contributes its records; err marks it degraded.
	return domain.TagOwner(txs, settings.PartnerEmail), err
}

// discover runs partner discovery and caches the handle. A partner that has
// not shared yet is reported as an empty handle.
func (e *Engine) discover(ctx context.Context, partnerEmail string) (remote.Handle, error) {
	log := logger.FromContext(ctx)

	h, err := e.partners.Discover(ctx, partnerEmail)
	if errors.Is(err, partner.ErrPartnerNotFound) {
		log.Info().Str("partner_email", partnerEmail).Msg("Partner has not shared their file yet")
		return "", nil
	}
	if err != nil {
		return "", err
	}

	if err := e.settings.SetPartnerFileHandle(ctx, string(h)); err != nil {
		log.Warn().Err(err).Str("handle", string(h)).Msg("Failed to cache partner document handle")
	}
	return h, nil
}

func (e *Engine) readOwn(ctx context.Context) ([]domain.Transaction, error) {
	h, err := e.remote.FindByNameAndScope(ctx, e.docs.Own, remote.ScopePrivate)
	if errors.Is(err, remote.ErrNotFound) {
		return []domain.Transaction{}, nil
	}
	if err != nil {
		return nil, err
	}
	txs, err := e.remote.Read(ctx, h)
	if errors.Is(err, remote.ErrEntriesDropped) {
		return txs, nil
	}
	return txs, err
}
