package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"

	"github.com/dvloznov/expense-sync/internal/config"
	"github.com/dvloznov/expense-sync/internal/inbox"
	inboxmem "github.com/dvloznov/expense-sync/internal/inbox/inmemory"
	"github.com/dvloznov/expense-sync/internal/kv"
	kvmem "github.com/dvloznov/expense-sync/internal/kv/inmemory"
	"github.com/dvloznov/expense-sync/internal/kv/sqlite"
	"github.com/dvloznov/expense-sync/internal/localstore"
	"github.com/dvloznov/expense-sync/internal/partner"
	"github.com/dvloznov/expense-sync/internal/remote"
	"github.com/dvloznov/expense-sync/internal/remote/drive"
	"github.com/dvloznov/expense-sync/internal/remote/gcs"
	remotemem "github.com/dvloznov/expense-sync/internal/remote/inmemory"
	"github.com/dvloznov/expense-sync/internal/sms"
	"github.com/dvloznov/expense-sync/internal/syncengine"
)

const inboxBuffer = 64

// app holds the components of one command run.
type app struct {
	cfg      config.Config
	kv       kv.Store
	local    *localstore.TransactionStore
	remote   *remote.Client
	manager  *partner.Manager
	linker   *partner.Linker
	engine   *syncengine.Engine
	messages *inbox.KVStore

	closers []func() error
}

func newApp(ctx context.Context, cfg config.Config, server *remotemem.Server) (*app, error) {
	a := &app{cfg: cfg}

	store, err := a.openStore()
	if err != nil {
		return nil, err
	}
	a.kv = store

	backend, err := a.openBackend(ctx, server)
	if err != nil {
		a.Close()
		return nil, err
	}

	docs := partner.Documents{Own: cfg.Remote.OwnDocument, Shared: cfg.Remote.SharedDocument}

	a.local = localstore.NewTransactionStore(store)
	a.remote = remote.NewClient(backend)
	a.manager = partner.NewManager(store)
	a.linker = partner.NewLinker(a.remote, a.manager, docs, cfg.User.Email)
	a.engine = syncengine.New(a.local, a.remote, a.manager, a.linker, docs)
	a.messages = inbox.NewKVStore(store)
	return a, nil
}

func (a *app) openStore() (kv.Store, error) {
	switch a.cfg.Storage.Driver {
	case config.DriverMemory:
		return kvmem.NewStore(), nil
	default:
		if err := os.MkdirAll(filepath.Dir(a.cfg.Storage.Path), 0o755); err != nil {
			return nil, fmt.Errorf("create storage dir: %w", err)
		}
		store, err := sqlite.Open(a.cfg.Storage.Path)
		if err != nil {
			return nil, err
		}
		a.closers = append(a.closers, store.Close)
		return store, nil
	}
}

func (a *app) openBackend(ctx context.Context, server *remotemem.Server) (remote.Backend, error) {
	switch a.cfg.Remote.Backend {
	case config.BackendDrive:
		backend, err := drive.New(ctx, a.cfg.Remote.AccessToken)
		if err != nil {
			return nil, err
		}
		return backend, nil
	case config.BackendGCS:
		backend, err := gcs.New(ctx, a.cfg.Remote.GCSBucket, a.cfg.User.Email)
		if err != nil {
			return nil, err
		}
		a.closers = append(a.closers, backend.Close)
		return backend, nil
	default:
		if server == nil {
			server = remotemem.NewServer()
		}
		return server.As(a.cfg.User.Email), nil
	}
}

// startInbox starts a single-worker queue feeding the SMS processor. The
// worker outlives ctx cancellation so that Stop can drain queued messages.
func (a *app) startInbox(ctx context.Context) (*inboxmem.Queue, error) {
	queue := inboxmem.NewQueue(inboxBuffer, a.messages)
	processor := inbox.NewProcessor(sms.NewExtractor(), a.local, a.engine)
	if err := queue.Start(context.WithoutCancel(ctx), processor.Handle); err != nil {
		return nil, fmt.Errorf("start inbox: %w", err)
	}
	return queue, nil
}

// Close releases every opened resource.
func (a *app) Close() error {
	var errs []error
	for i := len(a.closers) - 1; i >= 0; i-- {
		errs = append(errs, a.closers[i]())
	}
	return errors.Join(errs...)
}
