package stub

import (
	"fmt"
	"math/rand"
	"time"

	"go.uber.org/zap"

	"github.com/pagereach/cps-client/internal/model"
	"github.com/pagereach/cps-client/internal/queue"
)

// TopicCampaignRuns carries ids of campaigns waiting to be "crawled".
const TopicCampaignRuns = "campaign_runs"

// Simulator stands in for the crawler fleet: it consumes started campaigns
// from the queue and advances their counts one URL per tick, so a polling
// client sees live progress ending in a completed status.
type Simulator struct {
	Store *Store
	// TickEvery is the simulated per-URL processing time.
	TickEvery time.Duration
	// SuccessRate is the fraction of URLs that "succeed" (0..1).
	SuccessRate float64
	Log         *zap.Logger
}

// Attach subscribes the simulator to the run topic.
func (s *Simulator) Attach(q queue.Queue) {
	q.Subscribe(TopicCampaignRuns, s.handle)
}

func (s *Simulator) handle(payload any) error {
	id, ok := payload.(string)
	if !ok {
		s.logger().Warn("dropping run job with unexpected payload type")
		return nil
	}

	tick := s.TickEvery
	if tick <= 0 {
		tick = 200 * time.Millisecond
	}
	rate := s.SuccessRate
	if rate <= 0 || rate > 1 {
		rate = 0.9
	}

	for {
		status, err := s.Store.Status(id)
		if err != nil {
			return fmt.Errorf("run %s: %w", id, err)
		}
		switch status {
		case model.StatusStopped, model.StatusFailed, model.StatusCompleted:
			s.logger().Info("run finished", zap.String("campaign_id", id), zap.String("status", status.String()))
			return nil
		case model.StatusPaused:
			time.Sleep(tick)
			continue
		}

		time.Sleep(tick)
		remaining, err := s.Store.RecordResult(id, rand.Float64() < rate)
		if err != nil {
			return fmt.Errorf("run %s: %w", id, err)
		}
		if remaining == 0 {
			s.logger().Info("run completed", zap.String("campaign_id", id))
			return nil
		}
	}
}

func (s *Simulator) logger() *zap.Logger {
	if s.Log == nil {
		return zap.NewNop()
	}
	return s.Log
}
