package main

import (
	"context"
	"strings"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/rotisserie/eris"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/meridian-gems/gemscan/internal/model"
)

func TestReadIDLines(t *testing.T) {
	in := strings.NewReader("g1\n\n# a comment\n  g2  \ng3\n")
	ids, err := readIDLines(in)
	require.NoError(t, err)
	assert.Equal(t, []string{"g1", "g2", "g3"}, ids)
}

func TestDedupe(t *testing.T) {
	ids := dedupe([]string{"g1", "g2", "g1", "g3", "g2"})
	assert.Equal(t, []string{"g1", "g2", "g3"}, ids)
}

func TestProcessBatch_FailuresDontAbort(t *testing.T) {
	var calls atomic.Int64
	analyze := func(ctx context.Context, id string) (*model.AnalysisRecord, error) {
		calls.Add(1)
		if id == "bad" {
			return nil, eris.New("boom")
		}
		return &model.AnalysisRecord{GemstoneID: id}, nil
	}

	err := processBatchWith(context.Background(), []string{"g1", "bad", "g2"}, 0, 2, time.Minute, analyze)
	require.NoError(t, err)
	assert.Equal(t, int64(3), calls.Load())
}

func TestProcessBatch_LimitApplied(t *testing.T) {
	var mu sync.Mutex
	var seen []string
	analyze := func(ctx context.Context, id string) (*model.AnalysisRecord, error) {
		mu.Lock()
		seen = append(seen, id)
		mu.Unlock()
		return &model.AnalysisRecord{GemstoneID: id}, nil
	}

	err := processBatchWith(context.Background(), []string{"g1", "g2", "g3"}, 2, 1, time.Minute, analyze)
	require.NoError(t, err)
	assert.Equal(t, []string{"g1", "g2"}, seen)
}

func TestProcessBatch_CancellationStopsRemainder(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())

	var calls atomic.Int64
	analyze := func(ctx context.Context, id string) (*model.AnalysisRecord, error) {
		calls.Add(1)
		cancel()
		return &model.AnalysisRecord{GemstoneID: id}, nil
	}

	ids := []string{"g1", "g2", "g3", "g4", "g5"}
	err := processBatchWith(ctx, ids, 0, 1, time.Minute, analyze)
	require.NoError(t, err)
	assert.Less(t, calls.Load(), int64(len(ids)), "cancellation skips queued gemstones")
}

func TestProcessBatch_InFlightGemstoneShieldedFromStop(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	var calls atomic.Int64
	var runCtxErr error
	analyze := func(runCtx context.Context, id string) (*model.AnalysisRecord, error) {
		calls.Add(1)
		cancel()
		// The current gemstone keeps a live context and finishes naturally;
		// only the queued remainder is dropped.
		runCtxErr = runCtx.Err()
		return &model.AnalysisRecord{GemstoneID: id}, nil
	}

	err := processBatchWith(ctx, []string{"g1", "g2", "g3"}, 0, 1, time.Minute, analyze)
	require.NoError(t, err)
	assert.NoError(t, runCtxErr)
	assert.Equal(t, int64(1), calls.Load())
}
