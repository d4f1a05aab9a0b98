// Regsync - Global Registry Synchronization Client
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/regsync

package main

import (
	"context"
	"errors"
	"fmt"
	"os/signal"
	"syscall"
	"time"

	"github.com/tomtom215/regsync/internal/api"
	"github.com/tomtom215/regsync/internal/binding"
	"github.com/tomtom215/regsync/internal/config"
	"github.com/tomtom215/regsync/internal/dispatch"
	"github.com/tomtom215/regsync/internal/logging"
	"github.com/tomtom215/regsync/internal/models"
	"github.com/tomtom215/regsync/internal/queue"
	"github.com/tomtom215/regsync/internal/registry"
	"github.com/tomtom215/regsync/internal/store"
	"github.com/tomtom215/regsync/internal/supervisor"
	"github.com/tomtom215/regsync/internal/supervisor/services"
	"github.com/tomtom215/regsync/internal/syncer"
	"github.com/tomtom215/regsync/internal/typeregistry"
)

// daemon holds the wired components.
type daemon struct {
	cfg        *config.Config
	bindings   *binding.Registry
	store      *store.Store
	types      *typeregistry.Registry
	syncer     *syncer.Syncer
	queue      *queue.Queue
	dispatcher *dispatch.Dispatcher
}

// build wires every component. The caller owns Close.
func build(ctx context.Context, cfg *config.Config, opts ...registry.Option) (_ *daemon, err error) {
	action, err := syncer.ParseErrorAction(cfg.Sync.RuntimeErrorAction)
	if err != nil {
		return nil, err
	}

	bindings := binding.NewRegistry()
	if err := bindings.RegisterConfig(cfg.Bindings); err != nil {
		return nil, fmt.Errorf("bindings: %w", err)
	}

	st, err := store.Open(cfg.Store)
	if err != nil {
		return nil, err
	}
	d := &daemon{cfg: cfg, bindings: bindings, store: st}
	defer func() {
		if err != nil {
			_ = d.Close()
		}
	}()

	client := registry.New(&cfg.Registry, opts...)
	d.types = typeregistry.New(client, bindings, st, cfg.Sync.TypeCacheTTL)

	// The queue runs the syncer and the syncer enqueues follow-up tasks.
	d.syncer = syncer.New(client, d.types, bindings, st, nil)

	logger := logging.WithComponent("queue")
	backend, err := queue.Open(ctx, cfg.Queue, logging.NewWatermillAdapter(logger))
	if err != nil {
		return nil, err
	}
	d.queue, err = queue.New(queue.Options{
		Config: cfg.Queue,
		Action: action,
		Window: pullWindow(bindings),
		Jitter: -1,
		Logger: logger,
	}, backend, d.syncer)
	if err != nil {
		_ = backend.Close()
		return nil, err
	}
	d.syncer.SetEnqueuer(d.queue)

	d.dispatcher = dispatch.New(bindings, d.queue, d.syncer, st, action, logging.Logger())
	st.OnChange(d.dispatcher.OnChange)

	logging.Info().Strs("kinds", bindings.Kinds()).Str("queue_backend", cfg.Queue.Backend).
		Str("registry", cfg.Registry.BaseURL).Msg("regsync wired")
	return d, nil
}

// pullWindow keeps an mdm pull deduplicated for the entity's MDMTimeout.
// Every other task is deduplicated only while queued.
func pullWindow(bindings *binding.Registry) queue.WindowFunc {
	return func(t models.Task) time.Duration {
		if t.Op != models.OpPullMDMID {
			return 0
		}
		e, err := bindings.Entity(t.Kind)
		if err != nil {
			return 0
		}
		return e.MDMTimeout
	}
}

// tree builds the supervisor tree for the daemon's services.
func (d *daemon) tree() (*supervisor.SupervisorTree, error) {
	tree, err := supervisor.NewSupervisorTree(logging.NewSlogLogger(), supervisor.TreeConfig{})
	if err != nil {
		return nil, err
	}

	if !d.cfg.Store.InMemory {
		tree.AddDataService(services.NewStoreGCService(d.store, d.cfg.Store.GCInterval, logging.NewSlogLogger()))
	}
	tree.AddSyncService(services.NewQueueService(d.queue))
	if d.cfg.Server.Enabled {
		router := api.NewRouter(d.store, d.dispatcher, d.queue, d.cfg.Server)
		tree.AddAPIService(services.NewHTTPServerService(router.Server(), d.cfg.Server.ShutdownTimeout))
		logging.Info().Str("addr", d.cfg.Server.Listen).Msg("http api enabled")
	}
	return tree, nil
}

// Close releases what the supervisor does not own.
func (d *daemon) Close() error {
	var errs []error
	if d.queue != nil {
		errs = append(errs, d.queue.Close())
	}
	if d.types != nil {
		d.types.Close()
	}
	if d.store != nil {
		errs = append(errs, d.store.Close())
	}
	return errors.Join(errs...)
}

func serve(ctx context.Context, cfg *config.Config) error {
	if ctx == nil {
		ctx = context.Background()
	}
	ctx, stop := signal.NotifyContext(ctx, syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	d, err := build(ctx, cfg)
	if err != nil {
		return err
	}
	defer func() {
		if err := d.Close(); err != nil {
			logging.Error().Err(err).Msg("shutdown error")
		}
	}()

	tree, err := d.tree()
	if err != nil {
		return err
	}

	logging.Info().Str("version", version).Msg("starting supervisor tree")
	err = tree.Serve(ctx)
	if err != nil && !errors.Is(err, context.Canceled) {
		logging.Error().Err(err).Msg("supervisor tree stopped")
	}

	unstopped, _ := tree.UnstoppedServiceReport()
	for _, svc := range unstopped {
		logging.Warn().Str("service", svc.Name).Msg("service failed to stop within timeout")
	}
	logging.Info().Msg("regsync stopped")
	if errors.Is(err, context.Canceled) {
		return nil
	}
	return err
}
