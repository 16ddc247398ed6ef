// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

// Package store persists trained graphs in an embedded BadgerDB.
//
// Each artifact is the serialized graph with its learned profile, the
// student it was tuned for and the strategy that produced it. Artifacts are
// keyed by a generated model id that the predict path uses to reload them.
// Provider API keys are never stored.
package store

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"slices"
	"time"

	"github.com/dgraph-io/badger/v4"
	"github.com/google/uuid"

	"github.com/AleutianAI/promptfusion/services/promptopt/graph"
)

// ErrNotFound is returned when no artifact has the requested id.
var ErrNotFound = errors.New("model not found")

const keyPrefix = "model/"

// ModelRef names a provider and model without credentials.
type ModelRef struct {
	ProviderID string `json:"provider_id"`
	ModelID    string `json:"model_id"`
}

// Artifact is one trained graph.
type Artifact struct {
	ID              string     `json:"id"`
	CreatedAt       time.Time  `json:"created_at"`
	TaskDescription string     `json:"task_description,omitempty"`
	Student         ModelRef   `json:"student"`
	Teacher         ModelRef   `json:"teacher"`
	Strategy        string     `json:"strategy"`
	Samples         int        `json:"samples"`
	Graph           graph.Spec `json:"graph"`
}

// Build reconstructs the graph with its learned profile.
func (a Artifact) Build(opts ...graph.Option) (*graph.Graph, error) {
	return graph.FromSpec(a.Graph, opts...)
}

// Store is a BadgerDB-backed artifact store.
//
// Thread Safety: Safe for concurrent use.
type Store struct {
	db     *badger.DB
	logger *slog.Logger
	now    func() time.Time

	gcStop chan struct{}
	gcDone chan struct{}
}

// Open opens the store described by cfg and starts value log GC when
// configured.
func Open(cfg Config) (*Store, error) {
	db, err := openDB(cfg)
	if err != nil {
		return nil, err
	}
	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}

	s := &Store{db: db, logger: logger, now: time.Now}
	if cfg.GCInterval > 0 && !cfg.InMemory {
		if cfg.GCDiscardRatio <= 0 || cfg.GCDiscardRatio >= 1 {
			db.Close()
			return nil, fmt.Errorf("GC discard ratio %v must be between 0 and 1", cfg.GCDiscardRatio)
		}
		s.gcStop = make(chan struct{})
		s.gcDone = make(chan struct{})
		go gcLoop(db, cfg.GCInterval, cfg.GCDiscardRatio, logger, s.gcStop, s.gcDone)
	}
	return s, nil
}

// OpenInMemory opens a store that is discarded on Close.
func OpenInMemory() (*Store, error) {
	return Open(InMemoryConfig())
}

// Close stops GC and closes the database.
func (s *Store) Close() error {
	if s.gcStop != nil {
		close(s.gcStop)
		<-s.gcDone
		s.gcStop = nil
	}
	return s.db.Close()
}

// Save stores a. An empty ID is replaced with a new UUID and a zero
// CreatedAt with the current time.
//
// Outputs:
//
//	string - The model id.
//	error - Non-nil if encoding or the write fails.
func (s *Store) Save(ctx context.Context, a Artifact) (string, error) {
	if err := ctx.Err(); err != nil {
		return "", err
	}
	if a.ID == "" {
		a.ID = uuid.NewString()
	}
	if a.CreatedAt.IsZero() {
		a.CreatedAt = s.now().UTC()
	}
	raw, err := json.Marshal(a)
	if err != nil {
		return "", fmt.Errorf("encode model %s: %w", a.ID, err)
	}

	err = s.db.Update(func(txn *badger.Txn) error {
		return txn.Set(key(a.ID), raw)
	})
	if err != nil {
		return "", fmt.Errorf("save model %s: %w", a.ID, err)
	}
	s.logger.Debug("model saved", slog.String("model_id", a.ID), slog.Int("bytes", len(raw)))
	return a.ID, nil
}

// Get loads the artifact with the given id.
func (s *Store) Get(ctx context.Context, id string) (Artifact, error) {
	if err := ctx.Err(); err != nil {
		return Artifact{}, err
	}
	var a Artifact
	err := s.db.View(func(txn *badger.Txn) error {
		item, err := txn.Get(key(id))
		if errors.Is(err, badger.ErrKeyNotFound) {
			return fmt.Errorf("%w: %s", ErrNotFound, id)
		}
		if err != nil {
			return err
		}
		return item.Value(func(val []byte) error {
			return json.Unmarshal(val, &a)
		})
	})
	if err != nil {
		return Artifact{}, fmt.Errorf("load model %s: %w", id, err)
	}
	return a, nil
}

// List returns every artifact, newest first.
func (s *Store) List(ctx context.Context) ([]Artifact, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	var out []Artifact
	err := s.db.View(func(txn *badger.Txn) error {
		opts := badger.DefaultIteratorOptions
		opts.Prefix = []byte(keyPrefix)
		it := txn.NewIterator(opts)
		defer it.Close()

		for it.Rewind(); it.Valid(); it.Next() {
			var a Artifact
			if err := it.Item().Value(func(val []byte) error {
				return json.Unmarshal(val, &a)
			}); err != nil {
				return fmt.Errorf("decode %s: %w", it.Item().Key(), err)
			}
			out = append(out, a)
		}
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("list models: %w", err)
	}
	slices.SortStableFunc(out, func(a, b Artifact) int {
		return b.CreatedAt.Compare(a.CreatedAt)
	})
	return out, nil
}

// Delete removes the artifact with the given id.
func (s *Store) Delete(ctx context.Context, id string) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	err := s.db.Update(func(txn *badger.Txn) error {
		if _, err := txn.Get(key(id)); err != nil {
			if errors.Is(err, badger.ErrKeyNotFound) {
				return fmt.Errorf("%w: %s", ErrNotFound, id)
			}
			return err
		}
		return txn.Delete(key(id))
	})
	if err != nil {
		return fmt.Errorf("delete model %s: %w", id, err)
	}
	return nil
}

func key(id string) []byte {
	return []byte(keyPrefix + id)
}
