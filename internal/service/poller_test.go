package service

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/goleak"

	"github.com/pagereach/cps-client/internal/model"
)

type tick struct {
	snap *model.ProgressSnapshot
	err  error
}

// scriptedFetcher replays a fixed sequence of poll responses; the last entry
// repeats once the script runs out.
type scriptedFetcher struct {
	mu    sync.Mutex
	ticks []tick
	calls int
}

func (f *scriptedFetcher) SubmissionStatus(ctx context.Context, campaignID string) (*model.ProgressSnapshot, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	idx := f.calls
	if idx >= len(f.ticks) {
		idx = len(f.ticks) - 1
	}
	f.calls++
	t := f.ticks[idx]
	if t.err != nil {
		return nil, t.err
	}
	snap := *t.snap
	return &snap, nil
}

func (f *scriptedFetcher) callCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.calls
}

func snap(processed, total int, status string) *model.ProgressSnapshot {
	return &model.ProgressSnapshot{
		CampaignID: "c2",
		Total:      total,
		Processed:  processed,
		Successful: processed,
		Pending:    total - processed,
		Status:     status,
	}
}

func TestPollerStopsOnCompleted(t *testing.T) {
	fetcher := &scriptedFetcher{ticks: []tick{
		{snap: snap(10, 500, "active")},
		{snap: snap(50, 500, "ACTIVE")},
		{snap: snap(500, 500, "Completed")},
	}}

	var snapshots []model.ProgressSnapshot
	completions := 0
	poller := &Poller{
		API:         fetcher,
		Interval:    2 * time.Millisecond,
		OnSnapshot:  func(s model.ProgressSnapshot) { snapshots = append(snapshots, s) },
		OnCompleted: func(model.ProgressSnapshot) { completions++ },
	}

	require.NoError(t, poller.Run(context.Background(), "c2"))

	assert.Equal(t, 3, fetcher.callCount(), "no ticks after the terminal snapshot")
	assert.Equal(t, 1, completions, "exactly one completion notification")
	assert.Equal(t, PollCompleted, poller.State())

	require.Len(t, snapshots, 3)
	assert.Equal(t, []int{10, 50, 500}, []int{snapshots[0].Processed, snapshots[1].Processed, snapshots[2].Processed})

	latest, ok := poller.Latest()
	require.True(t, ok)
	assert.Equal(t, 500, latest.Processed)
}

func TestPollerSurvivesTransientFailure(t *testing.T) {
	fetcher := &scriptedFetcher{ticks: []tick{
		{err: errors.New("timeout")},
		{snap: snap(500, 500, "completed")},
	}}

	snapshots := 0
	poller := &Poller{
		API:        fetcher,
		Interval:   2 * time.Millisecond,
		OnSnapshot: func(model.ProgressSnapshot) { snapshots++ },
	}

	require.NoError(t, poller.Run(context.Background(), "c2"))
	assert.Equal(t, 2, fetcher.callCount())
	assert.Equal(t, 1, snapshots, "the failed tick delivers nothing to the user")
	assert.Equal(t, PollCompleted, poller.State())
}

func TestPollerErroredAfterMaxConsecutiveFailures(t *testing.T) {
	fetcher := &scriptedFetcher{ticks: []tick{{err: errors.New("down")}}}

	poller := &Poller{
		API:                    fetcher,
		Interval:               time.Millisecond,
		MaxConsecutiveFailures: 3,
	}

	err := poller.Run(context.Background(), "c2")
	require.Error(t, err)
	assert.Equal(t, PollErrored, poller.State())
	assert.Equal(t, 3, fetcher.callCount())
}

func TestPollerOtherTerminalStatusFiresOnTerminal(t *testing.T) {
	fetcher := &scriptedFetcher{ticks: []tick{{snap: snap(7, 500, "STOPPED")}}}

	completions, terminals := 0, 0
	poller := &Poller{
		API:         fetcher,
		Interval:    time.Millisecond,
		OnCompleted: func(model.ProgressSnapshot) { completions++ },
		OnTerminal:  func(model.ProgressSnapshot) { terminals++ },
	}

	require.NoError(t, poller.Run(context.Background(), "c2"))
	assert.Equal(t, PollStopped, poller.State())
	assert.Equal(t, 0, completions)
	assert.Equal(t, 1, terminals)
}

func TestPollerCancellationStopsUpdates(t *testing.T) {
	defer goleak.VerifyNone(t)

	fetcher := &scriptedFetcher{ticks: []tick{{snap: snap(1, 500, "active")}}}

	var delivered atomic.Int64
	poller := &Poller{
		API:        fetcher,
		Interval:   time.Millisecond,
		OnSnapshot: func(model.ProgressSnapshot) { delivered.Add(1) },
	}

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- poller.Run(ctx, "c2") }()

	require.Eventually(t, func() bool { return delivered.Load() >= 2 }, testWaitTimeout, testWaitTick)
	cancel()

	require.ErrorIs(t, <-done, context.Canceled)
	assert.Equal(t, PollStopped, poller.State())

	after := delivered.Load()
	time.Sleep(20 * time.Millisecond)
	assert.Equal(t, after, delivered.Load(), "no snapshot deliveries after teardown")
}

func TestPollerSkipsTicksWhileHidden(t *testing.T) {
	fetcher := &scriptedFetcher{ticks: []tick{{snap: snap(500, 500, "completed")}}}

	var visible atomic.Bool
	poller := &Poller{
		API:      fetcher,
		Interval: time.Millisecond,
		Visible:  visible.Load,
	}

	done := make(chan error, 1)
	go func() { done <- poller.Run(context.Background(), "c2") }()

	// Hidden: the timer keeps firing but no requests go out.
	time.Sleep(20 * time.Millisecond)
	assert.Equal(t, 0, fetcher.callCount())

	// Refocus: polling resumes promptly and reaches the terminal state.
	visible.Store(true)
	require.NoError(t, <-done)
	assert.Equal(t, 1, fetcher.callCount())
}

func TestPollerIsSingleUse(t *testing.T) {
	fetcher := &scriptedFetcher{ticks: []tick{{snap: snap(500, 500, "completed")}}}
	poller := &Poller{API: fetcher, Interval: time.Millisecond}

	require.NoError(t, poller.Run(context.Background(), "c2"))
	assert.ErrorIs(t, poller.Run(context.Background(), "c2"), ErrPollerReused)
}

func TestBackoffCapsAtMax(t *testing.T) {
	interval := 100 * time.Millisecond
	max := 800 * time.Millisecond
	assert.Equal(t, interval, backoff(interval, 1, max))
	assert.Equal(t, 200*time.Millisecond, backoff(interval, 2, max))
	assert.Equal(t, 400*time.Millisecond, backoff(interval, 3, max))
	assert.Equal(t, max, backoff(interval, 4, max))
	assert.Equal(t, max, backoff(interval, 10, max))
}
