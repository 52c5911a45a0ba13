// Package scheduler drives periodic collection and rescoring.
package scheduler

import (
	"context"
	"time"

	"github.com/rs/zerolog/log"

	"github.com/elonfeng/paperpulse/pkg/collector"
	"github.com/elonfeng/paperpulse/pkg/engagement"
)

// Collector gathers a snapshot for a date.
type Collector interface {
	Run(ctx context.Context, date string) (*collector.Summary, error)
}

// Recomputer rescores a stored snapshot.
type Recomputer interface {
	Recompute(ctx context.Context, date string) (*engagement.Report, error)
}

// Scheduler runs periodic collection and snapshot rescoring.
type Scheduler struct {
	collector  Collector
	engine     Recomputer
	collectInt time.Duration
	rescoreInt time.Duration
	now        func() time.Time
}

// New creates a new scheduler. Zero intervals fall back to 6h for
// collection and 1h for rescoring.
func New(c Collector, engine Recomputer, collectInt, rescoreInt time.Duration) *Scheduler {
	if collectInt <= 0 {
		collectInt = 6 * time.Hour
	}
	if rescoreInt <= 0 {
		rescoreInt = time.Hour
	}
	return &Scheduler{
		collector:  c,
		engine:     engine,
		collectInt: collectInt,
		rescoreInt: rescoreInt,
		now:        time.Now,
	}
}

// Run starts the scheduler loop. Blocks until ctx is cancelled.
func (s *Scheduler) Run(ctx context.Context) error {
	collectTicker := time.NewTicker(s.collectInt)
	rescoreTicker := time.NewTicker(s.rescoreInt)
	defer collectTicker.Stop()
	defer rescoreTicker.Stop()

	// Run immediately on start.
	log.Info().Msg("scheduler: initial collection")
	s.collect(ctx)
	s.rescore(ctx)

	log.Info().
		Dur("collect_every", s.collectInt).
		Dur("rescore_every", s.rescoreInt).
		Msg("scheduler: running")

	for {
		select {
		case <-ctx.Done():
			log.Info().Msg("scheduler: stopped")
			return ctx.Err()
		case <-collectTicker.C:
			s.collect(ctx)
		case <-rescoreTicker.C:
			s.rescore(ctx)
		}
	}
}

func (s *Scheduler) today() string {
	return engagement.SnapshotDate(s.now())
}

func (s *Scheduler) collect(ctx context.Context) {
	date := s.today()
	sum, err := s.collector.Run(ctx, date)
	if err != nil {
		log.Error().Err(err).Str("date", date).Msg("scheduled collection failed")
		return
	}
	log.Debug().Str("date", date).Int("papers", sum.Papers).Msg("scheduled collection done")
}

// rescore recomputes today's snapshot so counts written outside a
// collection run are normalized against the whole batch.
func (s *Scheduler) rescore(ctx context.Context) {
	date := s.today()
	report, err := s.engine.Recompute(ctx, date)
	if err != nil {
		log.Error().Err(err).Str("date", date).Msg("scheduled rescore failed")
		return
	}
	if err := report.Err(); err != nil {
		log.Warn().Err(err).Str("date", date).Int("failed", len(report.Failures)).Msg("scheduled rescore incomplete")
	}
}
