package service

import (
	"context"
	"errors"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/pagereach/cps-client/internal/model"
)

// PollState tracks where a Poller is in its lifecycle.
type PollState string

const (
	PollIdle      PollState = "idle"
	PollPolling   PollState = "polling"
	PollCompleted PollState = "completed"
	PollStopped   PollState = "stopped"
	PollErrored   PollState = "errored"
)

const (
	// DefaultPollInterval is the base cadence between status fetches.
	DefaultPollInterval = 3 * time.Second
	// DefaultMaxBackoff caps the widened interval after repeated failures.
	DefaultMaxBackoff = 30 * time.Second
)

// StatusFetcher is the slice of the backend client the poller needs.
type StatusFetcher interface {
	SubmissionStatus(ctx context.Context, campaignID string) (*model.ProgressSnapshot, error)
}

// Poller fetches a campaign's progress on a fixed interval until a terminal
// status, then stops. Requests are serial: the next tick is scheduled only
// after the previous response resolves, so snapshots can never be applied
// out of order.
//
// A Poller runs once; build a fresh one per campaign view.
type Poller struct {
	API StatusFetcher
	// Interval between ticks; DefaultPollInterval when zero.
	Interval time.Duration
	// MaxBackoff caps the failure backoff; DefaultMaxBackoff when zero.
	MaxBackoff time.Duration
	// MaxConsecutiveFailures transitions the poller to Errored once reached.
	// Zero means poll forever through failures, matching the original
	// front-end behavior.
	MaxConsecutiveFailures int
	// Visible gates each tick: when it reports false the fetch is skipped
	// but the timer keeps running, so polling resumes promptly. Nil means
	// always visible.
	Visible func() bool
	// OnSnapshot observes every successfully fetched snapshot.
	OnSnapshot func(model.ProgressSnapshot)
	// OnCompleted fires exactly once, when the status reads completed.
	OnCompleted func(model.ProgressSnapshot)
	// OnTerminal fires exactly once for the other terminal statuses
	// (failed, stopped).
	OnTerminal func(model.ProgressSnapshot)
	Log        *zap.Logger

	mu     sync.Mutex
	state  PollState
	latest *model.ProgressSnapshot
}

// ErrPollerReused is returned when Run is called on a poller that already
// ran.
var ErrPollerReused = errors.New("poller has already run")

// State returns the current lifecycle state.
func (p *Poller) State() PollState {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.state == "" {
		return PollIdle
	}
	return p.state
}

// Latest returns the most recent snapshot, if any tick has succeeded.
func (p *Poller) Latest() (model.ProgressSnapshot, bool) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.latest == nil {
		return model.ProgressSnapshot{}, false
	}
	return *p.latest, true
}

func (p *Poller) setState(s PollState) {
	p.mu.Lock()
	p.state = s
	p.mu.Unlock()
}

// Run blocks until a terminal status, a fatal error, or ctx cancellation.
// After Run returns, no callbacks fire and no state is written: cancelling
// the context is how an owning view tears the poller down safely.
func (p *Poller) Run(ctx context.Context, campaignID string) error {
	p.mu.Lock()
	if p.state != "" && p.state != PollIdle {
		p.mu.Unlock()
		return ErrPollerReused
	}
	p.state = PollPolling
	p.mu.Unlock()

	interval := p.Interval
	if interval <= 0 {
		interval = DefaultPollInterval
	}
	maxBackoff := p.MaxBackoff
	if maxBackoff <= 0 {
		maxBackoff = DefaultMaxBackoff
	}
	log := p.Log
	if log == nil {
		log = zap.NewNop()
	}

	wait := interval
	failures := 0
	timer := time.NewTimer(wait)
	defer timer.Stop()

	for {
		select {
		case <-ctx.Done():
			p.setState(PollStopped)
			return ctx.Err()
		case <-timer.C:
		}

		if p.Visible != nil && !p.Visible() {
			// Tab hidden: skip the fetch, keep the cadence.
			timer.Reset(interval)
			continue
		}

		snap, err := p.API.SubmissionStatus(ctx, campaignID)
		if err != nil {
			if ctx.Err() != nil {
				p.setState(PollStopped)
				return ctx.Err()
			}
			failures++
			log.Warn("poll tick failed, continuing",
				zap.String("campaign_id", campaignID),
				zap.Int("consecutive_failures", failures),
				zap.Error(err))
			if p.MaxConsecutiveFailures > 0 && failures >= p.MaxConsecutiveFailures {
				p.setState(PollErrored)
				return err
			}
			wait = backoff(interval, failures, maxBackoff)
			timer.Reset(wait)
			continue
		}
		failures = 0

		if ctx.Err() != nil {
			p.setState(PollStopped)
			return ctx.Err()
		}

		p.mu.Lock()
		p.latest = snap
		p.mu.Unlock()
		if p.OnSnapshot != nil {
			p.OnSnapshot(*snap)
		}

		switch status := model.ParseStatus(snap.Status); {
		case status == model.StatusCompleted:
			p.setState(PollCompleted)
			if p.OnCompleted != nil {
				p.OnCompleted(*snap)
			}
			return nil
		case status.Terminal():
			p.setState(PollStopped)
			if p.OnTerminal != nil {
				p.OnTerminal(*snap)
			}
			return nil
		}

		timer.Reset(interval)
	}
}

// backoff widens the interval exponentially per consecutive failure, capped.
func backoff(interval time.Duration, failures int, max time.Duration) time.Duration {
	wait := interval
	for i := 1; i < failures; i++ {
		wait *= 2
		if wait >= max {
			return max
		}
	}
	if wait > max {
		return max
	}
	return wait
}
