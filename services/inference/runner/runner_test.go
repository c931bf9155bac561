// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package runner

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/AleutianAI/AleutianBayes/services/inference/cache"
	"github.com/AleutianAI/AleutianBayes/services/inference/elimination"
	"github.com/AleutianAI/AleutianBayes/services/inference/network"
	store "github.com/AleutianAI/AleutianBayes/services/inference/storage/badger"
)

// mapCache is a ResultCache that counts calls.
type mapCache struct {
	mu      sync.Mutex
	entries map[string]*cache.Record
	gets    int
	puts    int
	getErr  error
}

func newMapCache() *mapCache {
	return &mapCache{entries: make(map[string]*cache.Record)}
}

func (c *mapCache) Get(_ context.Context, key []byte) (*cache.Record, bool, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.gets++
	if c.getErr != nil {
		return nil, false, c.getErr
	}
	rec, ok := c.entries[string(key)]
	return rec, ok, nil
}

func (c *mapCache) Put(_ context.Context, key []byte, rec *cache.Record) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.puts++
	c.entries[string(key)] = rec
	return nil
}

func setup(t *testing.T, cfg Config) (*Runner, *network.Network) {
	t.Helper()
	engine, err := elimination.NewEngine(elimination.DefaultConfig())
	require.NoError(t, err)
	r, err := New(engine, cfg)
	require.NoError(t, err)
	n, err := network.Example()
	require.NoError(t, err)
	return r, n
}

func fraudTrue(t *testing.T, o Outcome) float64 {
	t.Helper()
	require.NoError(t, o.Err)
	v, err := o.Answer.Factor.Value(true)
	require.NoError(t, err)
	return v
}

var evidence = map[string]bool{"FP": true, "IP": false, "CRP": true}

func TestNew(t *testing.T) {
	engine, err := elimination.NewEngine(elimination.DefaultConfig())
	require.NoError(t, err)

	_, err = New(nil, DefaultConfig())
	assert.ErrorIs(t, err, ErrNilEngine)

	_, err = New(engine, Config{MaxConcurrency: 0})
	assert.ErrorIs(t, err, ErrInvalidConfig)

	_, err = New(engine, Config{MaxConcurrency: 1, QueryTimeout: -1})
	assert.ErrorIs(t, err, ErrInvalidConfig)

	_, err = New(engine, Config{MaxConcurrency: 1, DefaultHeuristic: "min-weight"})
	assert.ErrorIs(t, err, ErrInvalidConfig)
	assert.ErrorIs(t, err, elimination.ErrUnknownHeuristic)
}

func TestDefaultHeuristicApplied(t *testing.T) {
	cfg := DefaultConfig()
	cfg.DefaultHeuristic = "min-degree"
	r, n := setup(t, cfg)

	o := r.RunOne(context.Background(), n, network.QuerySpec{Query: []string{"Fraud"}})
	require.NoError(t, o.Err)
	assert.Equal(t, "min-degree", o.Spec.Heuristic)

	o = r.RunOne(context.Background(), n, network.QuerySpec{Query: []string{"Fraud"}, Heuristic: "min-fill"})
	assert.Equal(t, "min-fill", o.Spec.Heuristic)
}

func TestRunKeepsInputOrder(t *testing.T) {
	r, n := setup(t, Config{MaxConcurrency: 4})

	specs := []network.QuerySpec{
		{ID: "prior", Query: []string{"Fraud"}},
		{Query: []string{"Fraud"}, Evidence: evidence},
		{ID: "bad", Query: []string{"Nope"}},
		{ID: "trav", Query: []string{"Fraud"}, Evidence: map[string]bool{"FP": true, "IP": false, "CRP": true, "Trav": true}},
		{ID: "call", Query: []string{"Call"}, Evidence: evidence, Decision: true},
	}
	out, err := r.Run(context.Background(), n, specs)
	require.NoError(t, err)
	require.Len(t, out, len(specs))

	for i, o := range out {
		assert.Equal(t, i, o.Index)
	}
	assert.Equal(t, "prior", out[0].ID)
	assert.InDelta(t, 0.0043, fraudTrue(t, out[0]), 1e-12)

	assert.Len(t, out[1].ID, 36, "generated uuid")
	assert.InDelta(t, 0.014983811413390233, fraudTrue(t, out[1]), 1e-12)

	assert.ErrorIs(t, out[2].Err, network.ErrUnknownName)
	assert.Nil(t, out[2].Answer)

	assert.InDelta(t, 0.009899994767603944, fraudTrue(t, out[3]), 1e-12)

	require.NoError(t, out[4].Err)
	require.NotNil(t, out[4].Answer.Decision)
	assert.True(t, out[4].Answer.Decision.Best)
	assert.InDelta(t, 0.0144147736125, out[4].Answer.Decision.Gap(), 1e-9)
}

func TestRunManyParallel(t *testing.T) {
	r, n := setup(t, Config{MaxConcurrency: 3})

	specs := make([]network.QuerySpec, 40)
	for i := range specs {
		ev := map[string]bool{"FP": i%2 == 0, "IP": i%3 == 0, "CRP": true}
		specs[i] = network.QuerySpec{ID: fmt.Sprintf("q%02d", i), Query: []string{"Fraud"}, Evidence: ev}
	}
	out, err := r.Run(context.Background(), n, specs)
	require.NoError(t, err)

	// Each query sees only its own evidence.
	engine, err := elimination.NewEngine(elimination.DefaultConfig())
	require.NoError(t, err)
	for i, o := range out {
		want, err := n.Query(context.Background(), engine, specs[i])
		require.NoError(t, err)
		assert.Equal(t, specs[i].ID, o.ID)
		assert.True(t, want.Factor.ApproxEqual(o.Answer.Factor, 1e-15), "query %d", i)
	}
}

func TestRunFailFast(t *testing.T) {
	r, n := setup(t, Config{MaxConcurrency: 1, FailFast: true})

	specs := []network.QuerySpec{
		{ID: "bad", Query: []string{"Nope"}},
		{ID: "later", Query: []string{"Fraud"}},
	}
	out, err := r.Run(context.Background(), n, specs)
	require.Error(t, err)
	assert.ErrorIs(t, err, network.ErrUnknownName)
	assert.Contains(t, err.Error(), "query bad")
	assert.ErrorIs(t, out[1].Err, context.Canceled)
}

func TestRunCanceled(t *testing.T) {
	r, n := setup(t, DefaultConfig())
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	out, err := r.Run(ctx, n, []network.QuerySpec{{Query: []string{"Fraud"}}, {Query: []string{"OC"}}})
	assert.ErrorIs(t, err, context.Canceled)
	for _, o := range out {
		assert.ErrorIs(t, o.Err, context.Canceled)
	}
}

func TestRunNilNetwork(t *testing.T) {
	r, _ := setup(t, DefaultConfig())
	_, err := r.Run(context.Background(), nil, nil)
	assert.ErrorIs(t, err, ErrNilNetwork)
	assert.ErrorIs(t, r.RunOne(context.Background(), nil, network.QuerySpec{}).Err, ErrNilNetwork)
}

func TestRunUsesCache(t *testing.T) {
	c := newMapCache()
	cfg := DefaultConfig()
	cfg.Cache = c
	r, n := setup(t, cfg)
	ctx := context.Background()
	spec := network.QuerySpec{ID: "a", Query: []string{"Fraud"}, Evidence: evidence}

	first := r.RunOne(ctx, n, spec)
	require.NoError(t, first.Err)
	assert.False(t, first.Cached)
	assert.Equal(t, 1, c.puts)

	// Same question, different order: served from the cache.
	spec.Order = []string{"Trav", "OC", "FP", "IP", "CRP"}
	second := r.RunOne(ctx, n, spec)
	require.NoError(t, second.Err)
	assert.True(t, second.Cached)
	assert.True(t, first.Answer.Factor.ApproxEqual(second.Answer.Factor, 0))
	assert.Equal(t, first.Answer.MaxWidth, second.Answer.MaxWidth)
	assert.Equal(t, 1, c.puts)
}

func TestRunRejectsBadOrderOnWarmCache(t *testing.T) {
	c := newMapCache()
	cfg := DefaultConfig()
	cfg.Cache = c
	r, n := setup(t, cfg)
	ctx := context.Background()

	warm := r.RunOne(ctx, n, network.QuerySpec{Query: []string{"Fraud"}})
	require.NoError(t, warm.Err)
	require.Equal(t, 1, c.puts)

	tests := []struct {
		name  string
		order []string
		err   error
	}{
		{"unknown variable", []string{"Bogus"}, network.ErrUnknownName},
		{"incomplete", []string{"Trav", "FP"}, elimination.ErrIncompleteOrder},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			o := r.RunOne(ctx, n, network.QuerySpec{Query: []string{"Fraud"}, Order: tt.order})
			assert.ErrorIs(t, o.Err, tt.err)
			assert.False(t, o.Cached)
			assert.Nil(t, o.Answer)
		})
	}
	assert.Equal(t, 1, c.gets, "rejected queries never reach the cache")
}

func TestRunCachedDecision(t *testing.T) {
	c := newMapCache()
	cfg := DefaultConfig()
	cfg.Cache = c
	r, n := setup(t, cfg)
	spec := network.QuerySpec{Query: []string{"Block"}, Evidence: evidence, Decision: true}

	r.RunOne(context.Background(), n, spec)
	o := r.RunOne(context.Background(), n, spec)
	require.NoError(t, o.Err)
	require.True(t, o.Cached)
	require.NotNil(t, o.Answer.Decision)
	assert.InDelta(t, -0.034945574958, o.Answer.Decision.IfTrue, 1e-9)
}

func TestRunCacheErrorIsAMiss(t *testing.T) {
	c := newMapCache()
	c.getErr = errors.New("disk on fire")
	cfg := DefaultConfig()
	cfg.Cache = c
	r, n := setup(t, cfg)

	o := r.RunOne(context.Background(), n, network.QuerySpec{Query: []string{"Fraud"}})
	require.NoError(t, o.Err)
	assert.False(t, o.Cached)
	assert.InDelta(t, 0.0043, fraudTrue(t, o), 1e-12)
}

func TestRunWithBadgerCache(t *testing.T) {
	db, err := store.OpenInMemory()
	require.NoError(t, err)
	defer db.Close()
	s, err := cache.New(db, cache.Config{})
	require.NoError(t, err)

	cfg := DefaultConfig()
	cfg.Cache = s
	r, n := setup(t, cfg)

	specs := []network.QuerySpec{{Query: []string{"Fraud"}, Evidence: evidence}}
	_, err = r.Run(context.Background(), n, specs)
	require.NoError(t, err)

	out, err := r.Run(context.Background(), n, specs)
	require.NoError(t, err)
	assert.True(t, out[0].Cached)
	assert.InDelta(t, 0.014983811413390233, fraudTrue(t, out[0]), 1e-12)
}
