// Regsync - Global Registry Synchronization Client
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/regsync

// Package store keeps the local records regsync synchronizes in BadgerDB.
//
// The owning application writes records through Save and Delete, which fire
// the registered change hooks after the transaction commits. The
// synchronizers write their own columns through UpdateMeta, which never fires
// hooks, so a push cannot schedule another push of the same record.
package store

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/dgraph-io/badger/v4"
	json "github.com/goccy/go-json"
	"github.com/go-playground/validator/v10"

	"github.com/tomtom215/regsync/internal/config"
	"github.com/tomtom215/regsync/internal/logging"
	"github.com/tomtom215/regsync/internal/models"
)

// Key prefix for record storage: rec/<kind>/<id>
const recordKeyPrefix = "rec/"

var (
	// ErrNotFound is returned when no record exists for a kind and id.
	ErrNotFound = errors.New("record not found")

	// ErrInvalidRecord is returned by Save for a record that fails validation.
	ErrInvalidRecord = errors.New("invalid record")
)

// Hook observes a committed change. An error is reported back to the caller
// of Save or Delete; the change itself stays committed.
type Hook func(ctx context.Context, ch models.Change) error

// Store is a BadgerDB-backed record store.
type Store struct {
	db       *badger.DB
	validate *validator.Validate
	now      func() time.Time

	hookMu sync.RWMutex
	hooks  []Hook
}

// Open opens the badger database described by cfg.
func Open(cfg config.StoreConfig) (*Store, error) {
	opts := badger.DefaultOptions(cfg.Path)
	if cfg.InMemory {
		opts = badger.DefaultOptions("").WithInMemory(true)
	}
	opts = opts.WithLogger(nil)

	db, err := badger.Open(opts)
	if err != nil {
		return nil, fmt.Errorf("open badger store: %w", err)
	}
	logging.Info().Str("path", cfg.Path).Bool("in_memory", cfg.InMemory).Msg("record store opened")
	return New(db), nil
}

// New wraps an already opened database.
func New(db *badger.DB) *Store {
	return &Store{
		db:       db,
		validate: validator.New(validator.WithRequiredStructEnabled()),
		now:      time.Now,
	}
}

// CollectGarbage rewrites value log files that are at least half stale.
// Nothing to rewrite and in-memory databases are not errors.
func (s *Store) CollectGarbage() error {
	if s.db.Opts().InMemory {
		return nil
	}
	err := s.db.RunValueLogGC(0.5)
	if err == nil || errors.Is(err, badger.ErrNoRewrite) || errors.Is(err, badger.ErrRejected) {
		return nil
	}
	return fmt.Errorf("value log gc: %w", err)
}

// Close closes the underlying database.
func (s *Store) Close() error {
	return s.db.Close()
}

// OnChange registers a hook. Hooks run in registration order.
func (s *Store) OnChange(h Hook) {
	s.hookMu.Lock()
	defer s.hookMu.Unlock()
	s.hooks = append(s.hooks, h)
}

// Get returns a copy of the stored record.
func (s *Store) Get(ctx context.Context, kind, id string) (*models.Record, error) {
	var rec *models.Record
	err := s.db.View(func(txn *badger.Txn) error {
		var err error
		rec, err = getRecord(txn, kind, id)
		return err
	})
	if err != nil {
		return nil, err
	}
	return rec, nil
}

// List returns every record of kind ordered by id.
func (s *Store) List(ctx context.Context, kind string) ([]*models.Record, error) {
	var out []*models.Record
	err := s.db.View(func(txn *badger.Txn) error {
		opts := badger.DefaultIteratorOptions
		prefix := []byte(recordKeyPrefix + kind + "/")
		opts.Prefix = prefix
		it := txn.NewIterator(opts)
		defer it.Close()

		for it.Seek(prefix); it.ValidForPrefix(prefix); it.Next() {
			if err := ctx.Err(); err != nil {
				return err
			}
			var rec models.Record
			if err := it.Item().Value(func(val []byte) error {
				return decode(val, &rec)
			}); err != nil {
				return fmt.Errorf("decode %s: %w", it.Item().Key(), err)
			}
			out = append(out, &rec)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return out, nil
}

// Save creates or replaces the application-owned part of r and fires the
// change hooks. Meta of an existing record is kept; synchronizer columns are
// written only through UpdateMeta. UpdatedAt is set to the current time.
func (s *Store) Save(ctx context.Context, r *models.Record) error {
	if err := s.validate.Struct(r); err != nil {
		return fmt.Errorf("%w: %w", ErrInvalidRecord, err)
	}

	next := r.Clone()
	next.UpdatedAt = s.now().UTC()

	var prev *models.Record
	err := s.db.Update(func(txn *badger.Txn) error {
		var err error
		prev, err = getRecord(txn, r.Kind, r.ID)
		switch {
		case errors.Is(err, ErrNotFound):
			prev = nil
		case err != nil:
			return err
		default:
			next.Meta = prev.Meta
		}
		return putRecord(txn, next)
	})
	if err != nil {
		return fmt.Errorf("save %s(%s): %w", r.Kind, r.ID, err)
	}

	r.UpdatedAt = next.UpdatedAt
	r.Meta = next.Meta
	ev := models.EventUpdate
	if prev == nil {
		ev = models.EventCreate
	}
	return s.fire(ctx, models.Change{Event: ev, Record: next.Clone(), Previous: prev})
}

// Delete removes a record and fires the change hooks with its last state.
func (s *Store) Delete(ctx context.Context, kind, id string) error {
	var prev *models.Record
	err := s.db.Update(func(txn *badger.Txn) error {
		var err error
		prev, err = getRecord(txn, kind, id)
		if err != nil {
			return err
		}
		return txn.Delete(recordKey(kind, id))
	})
	if err != nil {
		return fmt.Errorf("delete %s(%s): %w", kind, id, err)
	}
	return s.fire(ctx, models.Change{Event: models.EventDelete, Record: prev, Previous: prev})
}

// UpdateMeta sets synchronizer-owned columns on a stored record. An empty
// value removes the column. No hooks fire and no validation runs.
func (s *Store) UpdateMeta(ctx context.Context, kind, id string, meta map[string]string) error {
	err := s.db.Update(func(txn *badger.Txn) error {
		rec, err := getRecord(txn, kind, id)
		if err != nil {
			return err
		}
		for column, value := range meta {
			rec.SetMeta(column, value)
		}
		return putRecord(txn, rec)
	})
	if err != nil {
		return fmt.Errorf("update meta %s(%s): %w", kind, id, err)
	}
	return nil
}

func (s *Store) fire(ctx context.Context, ch models.Change) error {
	s.hookMu.RLock()
	hooks := make([]Hook, len(s.hooks))
	copy(hooks, s.hooks)
	s.hookMu.RUnlock()

	var errs []error
	for _, h := range hooks {
		if err := h(ctx, ch); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

func recordKey(kind, id string) []byte {
	return []byte(recordKeyPrefix + kind + "/" + id)
}

func getRecord(txn *badger.Txn, kind, id string) (*models.Record, error) {
	item, err := txn.Get(recordKey(kind, id))
	if errors.Is(err, badger.ErrKeyNotFound) {
		return nil, fmt.Errorf("%w: %s(%s)", ErrNotFound, kind, id)
	}
	if err != nil {
		return nil, fmt.Errorf("get record: %w", err)
	}
	var rec models.Record
	if err := item.Value(func(val []byte) error {
		return decode(val, &rec)
	}); err != nil {
		return nil, fmt.Errorf("decode record: %w", err)
	}
	return &rec, nil
}

func putRecord(txn *badger.Txn, r *models.Record) error {
	data, err := json.Marshal(r)
	if err != nil {
		return fmt.Errorf("marshal record: %w", err)
	}
	return txn.Set(recordKey(r.Kind, r.ID), data)
}

// decode keeps numbers as json.Number so ids and decimals survive unchanged.
func decode(data []byte, rec *models.Record) error {
	dec := json.NewDecoder(bytes.NewReader(data))
	dec.UseNumber()
	return dec.Decode(rec)
}
