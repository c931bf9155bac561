// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

// Package cache persists query results in BadgerDB.
//
// Entries are keyed by the network fingerprint and the canonical query key,
// so editing a network file invalidates its answers without an explicit
// purge. Only result factors are stored; networks themselves are not.
package cache

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/dgraph-io/badger/v4"

	"github.com/AleutianAI/AleutianBayes/services/inference/factor"
	store "github.com/AleutianAI/AleutianBayes/services/inference/storage/badger"
)

const keyPrefix = "bayes/v1/"

var (
	// ErrNilDB indicates New was given no database.
	ErrNilDB = errors.New("cache: db must not be nil")

	// ErrScalarResult indicates a result with no variables, which is not cached.
	ErrScalarResult = errors.New("cache: scalar results are not cached")

	// ErrCorruptRecord indicates a stored record that cannot be decoded.
	ErrCorruptRecord = errors.New("cache: corrupt record")
)

// Record is a stored query result.
type Record struct {
	// QueryID is the ID of the query that computed the result.
	QueryID string `json:"query_id"`

	// Key is the canonical query key.
	Key string `json:"key"`

	Variables []string  `json:"variables"`
	Values    []float64 `json:"values"`

	// MaxWidth is the widest product the original computation built.
	MaxWidth int `json:"max_width"`

	ComputedAt time.Time `json:"computed_at"`
}

// FromFactor captures a complete result factor.
func FromFactor(queryID, key string, f *factor.Factor, maxWidth int, now time.Time) (*Record, error) {
	if f.IsScalar() {
		return nil, ErrScalarResult
	}
	values, err := f.Values()
	if err != nil {
		return nil, err
	}
	names := make([]string, 0, f.NumVariables())
	for _, v := range f.Variables() {
		names = append(names, v.Name())
	}
	return &Record{
		QueryID:    queryID,
		Key:        key,
		Variables:  names,
		Values:     values,
		MaxWidth:   maxWidth,
		ComputedAt: now.UTC(),
	}, nil
}

// Factor rebuilds the result factor.
func (r *Record) Factor() (*factor.Factor, error) {
	vars := make([]factor.Variable, len(r.Variables))
	for i, name := range r.Variables {
		vars[i] = factor.NewVariable(name)
	}
	f, err := factor.NewTable(vars, r.Values)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrCorruptRecord, err)
	}
	return f, nil
}

// Key returns the storage key for a query on a network.
func Key(fingerprint, queryKey string) []byte {
	return []byte(keyPrefix + fingerprint + "/" + queryKey)
}

// Config controls a Store.
type Config struct {
	// TTL expires entries. Zero keeps them until purged.
	TTL time.Duration

	// Logger defaults to slog.Default() with component=result_cache.
	Logger *slog.Logger
}

// Store is a result cache backed by BadgerDB.
//
// Thread Safety: Safe for concurrent use.
type Store struct {
	db     *store.DB
	ttl    time.Duration
	logger *slog.Logger
}

// New wraps an open database. The caller keeps ownership of db.
func New(db *store.DB, cfg Config) (*Store, error) {
	if db == nil {
		return nil, ErrNilDB
	}
	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default().With("component", "result_cache")
	}
	return &Store{db: db, ttl: cfg.TTL, logger: logger}, nil
}

// Get looks up key.
//
// Outputs:
//   - *Record: The stored record, or nil on a miss.
//   - bool: True on a hit.
//   - error: Storage failures and ErrCorruptRecord. A miss is not an error.
func (s *Store) Get(ctx context.Context, key []byte) (*Record, bool, error) {
	var rec Record
	found := false
	err := s.db.View(ctx, func(txn *badger.Txn) error {
		item, err := txn.Get(key)
		if errors.Is(err, badger.ErrKeyNotFound) {
			return nil
		}
		if err != nil {
			return err
		}
		found = true
		return item.Value(func(val []byte) error {
			if err := json.Unmarshal(val, &rec); err != nil {
				return fmt.Errorf("%w: %v", ErrCorruptRecord, err)
			}
			return nil
		})
	})
	if err != nil {
		recordLookup(ctx, "error")
		return nil, false, err
	}
	if !found {
		recordLookup(ctx, "miss")
		return nil, false, nil
	}
	recordLookup(ctx, "hit")
	return &rec, true, nil
}

// Put stores rec under key, replacing any previous entry.
func (s *Store) Put(ctx context.Context, key []byte, rec *Record) error {
	data, err := json.Marshal(rec)
	if err != nil {
		return fmt.Errorf("marshal record: %w", err)
	}
	err = s.db.Update(ctx, func(txn *badger.Txn) error {
		entry := badger.NewEntry(key, data)
		if s.ttl > 0 {
			entry = entry.WithTTL(s.ttl)
		}
		return txn.SetEntry(entry)
	})
	if err != nil {
		return fmt.Errorf("store record: %w", err)
	}
	recordWrite(ctx)
	s.logger.Debug("cached result", slog.String("key", rec.Key), slog.Int("bytes", len(data)))
	return nil
}

// Purge deletes the entries of one network, or every entry when
// fingerprint is empty, and returns how many were removed.
func (s *Store) Purge(ctx context.Context, fingerprint string) (int, error) {
	prefix := []byte(keyPrefix)
	if fingerprint != "" {
		prefix = []byte(keyPrefix + fingerprint + "/")
	}

	var keys [][]byte
	err := s.db.View(ctx, func(txn *badger.Txn) error {
		opts := badger.DefaultIteratorOptions
		opts.PrefetchValues = false
		opts.Prefix = prefix
		it := txn.NewIterator(opts)
		defer it.Close()
		for it.Rewind(); it.Valid(); it.Next() {
			keys = append(keys, it.Item().KeyCopy(nil))
		}
		return nil
	})
	if err != nil {
		return 0, fmt.Errorf("scan cache: %w", err)
	}
	if len(keys) == 0 {
		return 0, nil
	}

	wb := s.db.NewWriteBatch()
	defer wb.Cancel()
	for _, k := range keys {
		if err := wb.Delete(k); err != nil {
			return 0, fmt.Errorf("delete %s: %w", strings.TrimPrefix(string(k), keyPrefix), err)
		}
	}
	if err := wb.Flush(); err != nil {
		return 0, fmt.Errorf("flush deletes: %w", err)
	}

	s.logger.Info("purged cache", slog.String("fingerprint", fingerprint), slog.Int("entries", len(keys)))
	return len(keys), nil
}
