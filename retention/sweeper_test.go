package retention

import (
	"bytes"
	"context"
	"sync"
	"testing"
	"time"

	"github.com/mattn/go-sqlite3"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"go.uber.org/zap/zaptest"
	"go.uber.org/zap/zaptest/observer"

	"github.com/teranos/flowstate/errors"
	"github.com/teranos/flowstate/executor"
	qtest "github.com/teranos/flowstate/internal/testing"
	"github.com/teranos/flowstate/retry"
)

type fakePruner struct {
	mu      sync.Mutex
	cutoffs []time.Time
	errs    []error
}

func (f *fakePruner) DeleteOlderThan(_ context.Context, cutoff time.Time) (int64, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.cutoffs = append(f.cutoffs, cutoff)
	if len(f.errs) > 0 {
		err := f.errs[0]
		f.errs = f.errs[1:]
		return 0, err
	}
	return 4, nil
}

func (f *fakePruner) calls() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.cutoffs)
}

func TestRunOnce_Cutoff(t *testing.T) {
	p := &fakePruner{}
	s := NewSweeper(p, Config{MaxAge: 48 * time.Hour}, zaptest.NewLogger(t).Sugar())
	now := time.Date(2026, 5, 10, 8, 0, 0, 0, time.UTC)
	s.now = func() time.Time { return now }

	n, err := s.RunOnce(context.Background())
	require.NoError(t, err)
	assert.Equal(t, int64(4), n)
	require.Len(t, p.cutoffs, 1)
	assert.Equal(t, now.Add(-48*time.Hour), p.cutoffs[0])

	sweeps, deleted := s.Stats()
	assert.Equal(t, int64(1), sweeps)
	assert.Equal(t, int64(4), deleted)
}

func TestRunOnce_Disabled(t *testing.T) {
	p := &fakePruner{}
	s := NewSweeper(p, Config{}, nil)

	n, err := s.RunOnce(context.Background())
	require.NoError(t, err)
	assert.Zero(t, n)
	assert.Zero(t, p.calls())

	s.Start()
	s.Stop()
	assert.Zero(t, p.calls())
}

func TestRunOnce_RetriesBusy(t *testing.T) {
	busy := errors.NewPersistenceError(sqlite3.Error{Code: sqlite3.ErrBusy}, "delete")
	p := &fakePruner{errs: []error{busy}}
	s := NewSweeper(p, Config{MaxAge: time.Hour, Retry: retry.Policy{MaxAttempts: 2}}, nil)

	n, err := s.RunOnce(context.Background())
	require.NoError(t, err)
	assert.Equal(t, int64(4), n)
	assert.Equal(t, 2, p.calls())
}

func TestRunOnce_PropagatesFailure(t *testing.T) {
	p := &fakePruner{errs: []error{errors.NewPersistenceError(errors.New("disk I/O error"), "delete")}}
	s := NewSweeper(p, Config{MaxAge: time.Hour, Retry: retry.Policy{MaxAttempts: 3}}, nil)

	_, err := s.RunOnce(context.Background())
	assert.True(t, errors.IsPersistenceError(err))
	assert.Equal(t, 1, p.calls())
	sweeps, _ := s.Stats()
	assert.Zero(t, sweeps)
}

func TestSweeper_Periodic(t *testing.T) {
	p := &fakePruner{}
	s := NewSweeper(p, Config{MaxAge: time.Hour, Interval: 5 * time.Millisecond}, zaptest.NewLogger(t).Sugar())
	s.Start()

	require.Eventually(t, func() bool { return p.calls() >= 3 }, time.Second, time.Millisecond)
	s.Stop()

	settled := p.calls()
	time.Sleep(20 * time.Millisecond)
	assert.Equal(t, settled, p.calls(), "no sweeps after Stop")
}

func TestSweeper_AgainstLogStore(t *testing.T) {
	database := qtest.CreateTestDB(t)
	loader := executor.NewLoader(database, executor.Options{ChunkSize: 10})
	ctx := context.Background()

	flow := &executor.Flow{ProjectID: 3, ProjectName: "reports", FlowID: "weekly", Version: 1, SubmitUser: "ana"}
	execID, err := loader.Flows.Create(ctx, flow)
	require.NoError(t, err)

	key := executor.LogKey{ExecID: execID, Name: "render", Attempt: 0}
	written, err := loader.Logs.Upload(ctx, key, bytes.NewReader(bytes.Repeat([]byte("x"), 35)))
	require.NoError(t, err)
	require.Equal(t, int64(35), written)

	s := NewSweeper(loader.Logs, Config{MaxAge: 24 * time.Hour}, nil)

	n, err := s.RunOnce(ctx)
	require.NoError(t, err)
	assert.Zero(t, n, "fresh chunks survive")

	s.now = func() time.Time { return time.Now().Add(48 * time.Hour) }
	n, err = s.RunOnce(ctx)
	require.NoError(t, err)
	assert.Equal(t, int64(4), n)

	_, err = loader.Logs.Fetch(ctx, execID, "render", 0, 0, 100)
	assert.True(t, errors.IsNotFoundError(err))
}

func TestSweeper_LogsCarryComponent(t *testing.T) {
	core, logs := observer.New(zap.InfoLevel)
	s := NewSweeper(&fakePruner{}, Config{}, zap.New(core).Sugar())
	s.Start()
	s.Stop()

	disabled := logs.FilterMessage("Log retention disabled").All()
	require.Len(t, disabled, 1)
	assert.Equal(t, "retention", disabled[0].ContextMap()["component"])
}
