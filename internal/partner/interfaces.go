package partner

import (
	"github.com/dvloznov/expense-sync/internal/kv"
	"github.com/dvloznov/expense-sync/internal/remote"
)

// SettingsStore is the slot storage the Manager persists to.
type SettingsStore = kv.Store

// RemoteStore is the remote object store the handshake runs against.
type RemoteStore = remote.Store
