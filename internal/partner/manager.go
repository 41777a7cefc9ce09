// Package partner manages the Partner Mode link and runs the share/link
// handshake between two users through the remote object store.
package partner

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/dvloznov/expense-sync/internal/domain"
	"github.com/dvloznov/expense-sync/internal/kv"
	"github.com/dvloznov/expense-sync/internal/logger"
	"github.com/dvloznov/expense-sync/internal/remote"
)

const (
	// SettingsKey is the storage slot of the serialized PartnerLink.
	SettingsKey = "@expenses_app:partner_settings"

	// SharedDocumentKey is the storage slot caching the handle of the
	// user's own shared document.
	SharedDocumentKey = "@expenses_app:shared_file_id"
)

// ErrPartnerModeDisabled is returned when caching a partner handle while Partner Mode is off.
var ErrPartnerModeDisabled = errors.New("partner mode is disabled")

// Manager owns the PartnerLink record and the shared document handle cache.
type Manager struct {
	store SettingsStore
	now   func() time.Time
}

// NewManager creates a Manager persisting to store.
func NewManager(store SettingsStore) *Manager {
	return &Manager{store: store, now: time.Now}
}

// WithClock replaces the clock used to stamp EnabledAt.
func (m *Manager) WithClock(now func() time.Time) *Manager {
	m.now = now
	return m
}

// GetSettings returns the persisted settings merged over defaults. It never
// fails: read errors yield defaults and a corrupt record is cleared.
func (m *Manager) GetSettings(ctx context.Context) domain.PartnerLink {
	log := logger.FromContext(ctx)
	settings := domain.DefaultPartnerLink()

	raw, err := m.store.Get(ctx, SettingsKey)
	if errors.Is(err, kv.ErrNotFound) {
		return settings
	}
	if err != nil {
		log.Warn().Err(err).Str("key", SettingsKey).Msg("Failed to read partner settings, using defaults")
		return settings
	}

	if err := json.Unmarshal(raw, &settings); err != nil {
		log.Warn().Err(err).Str("key", SettingsKey).Msg("Clearing corrupt partner settings")
		if rmErr := m.store.Remove(ctx, SettingsKey); rmErr != nil {
			log.Warn().Err(rmErr).Str("key", SettingsKey).Msg("Failed to clear corrupt key")
		}
		return domain.DefaultPartnerLink()
	}

	if !settings.Enabled {
		settings.PartnerFileHandle = ""
	}
	return settings
}

// Enable turns Partner Mode on for partnerEmail. The email must already be
// validated. Any previously cached partner handle is dropped.
func (m *Manager) Enable(ctx context.Context, partnerEmail string) error {
	if err := m.enable(ctx, partnerEmail, ""); err != nil {
		return fmt.Errorf("Enable: %w", err)
	}
	return nil
}

// EnableWithHandle turns Partner Mode on for partnerEmail with the partner's
// shared document handle already cached. Both are stored in one write, so a
// failure leaves the previous settings in place.
func (m *Manager) EnableWithHandle(ctx context.Context, partnerEmail, handle string) error {
	if err := m.enable(ctx, partnerEmail, handle); err != nil {
		return fmt.Errorf("EnableWithHandle: %w", err)
	}
	return nil
}

func (m *Manager) enable(ctx context.Context, partnerEmail, handle string) error {
	enabledAt := m.now().UTC()
	settings := domain.PartnerLink{
		Enabled:           true,
		PartnerEmail:      NormalizeEmail(partnerEmail),
		PartnerFileHandle: handle,
		EnabledAt:         &enabledAt,
	}
	if err := m.save(ctx, settings); err != nil {
		return err
	}

	log := logger.FromContext(ctx)
	log.Info().
		Str("partner_email", settings.PartnerEmail).
		Bool("linked", handle != "").
		Msg("Partner mode enabled")
	return nil
}

// Disable resets the settings to defaults.
func (m *Manager) Disable(ctx context.Context) error {
	if err := m.save(ctx, domain.DefaultPartnerLink()); err != nil {
		return fmt.Errorf("Disable: %w", err)
	}

	log := logger.FromContext(ctx)
	log.Info().Msg("Partner mode disabled")
	return nil
}

// SetPartnerFileHandle caches the partner's shared document handle, keeping
// the rest of the settings.
func (m *Manager) SetPartnerFileHandle(ctx context.Context, handle string) error {
	settings := m.GetSettings(ctx)
	if !settings.Enabled {
		return fmt.Errorf("SetPartnerFileHandle: %w", ErrPartnerModeDisabled)
	}

	settings.PartnerFileHandle = handle
	if err := m.save(ctx, settings); err != nil {
		return fmt.Errorf("SetPartnerFileHandle: %w", err)
	}
	return nil
}

// IsActive reports whether Partner Mode is on with a known partner.
func (m *Manager) IsActive(ctx context.Context) bool {
	return m.GetSettings(ctx).Active()
}

// SharedDocumentHandle returns the cached handle of the user's own shared document.
func (m *Manager) SharedDocumentHandle(ctx context.Context) (remote.Handle, bool) {
	raw, err := m.store.Get(ctx, SharedDocumentKey)
	if err != nil {
		if !errors.Is(err, kv.ErrNotFound) {
			log := logger.FromContext(ctx)
			log.Warn().Err(err).Str("key", SharedDocumentKey).Msg("Failed to read shared document handle")
		}
		return "", false
	}
	if len(raw) == 0 {
		return "", false
	}
	return remote.Handle(raw), true
}

// SetSharedDocumentHandle caches the handle of the user's own shared document.
func (m *Manager) SetSharedDocumentHandle(ctx context.Context, h remote.Handle) error {
	if err := m.store.Set(ctx, SharedDocumentKey, []byte(h)); err != nil {
		return fmt.Errorf("SetSharedDocumentHandle: %w", err)
	}
	return nil
}

func (m *Manager) save(ctx context.Context, settings domain.PartnerLink) error {
	data, err := json.Marshal(settings)
	if err != nil {
		return fmt.Errorf("marshal settings: %w", err)
	}
	if err := m.store.Set(ctx, SettingsKey, data); err != nil {
		return fmt.Errorf("write settings: %w", err)
	}
	return nil
}
