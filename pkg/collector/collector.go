// Package collector gathers papers and their raw signals into a snapshot.
package collector

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/rs/zerolog/log"

	"github.com/elonfeng/paperpulse/internal/metrics"
	"github.com/elonfeng/paperpulse/pkg/engagement"
	"github.com/elonfeng/paperpulse/pkg/source"
)

// Store is the persistence the collector writes through.
type Store interface {
	UpsertPapers(ctx context.Context, papers []source.Paper) error
	UpsertRawMetric(ctx context.Context, date string, m engagement.RawMetric) error
}

// Recomputer rescores a stored snapshot.
type Recomputer interface {
	Recompute(ctx context.Context, date string) (*engagement.Report, error)
}

// Summary describes one collection run.
type Summary struct {
	Date         string             `json:"date"`
	Papers       int                `json:"papers"`
	BySource     map[string]int     `json:"by_source"`
	Cited        int                `json:"cited"`
	Mentioned    int                `json:"mentioned"`
	Written      int                `json:"written"`
	WriteErrors  int                `json:"write_errors"`
	SourceErrors map[string]string  `json:"source_errors,omitempty"`
	Report       *engagement.Report `json:"report,omitempty"`
	Duration     time.Duration      `json:"duration_ns"`
}

// Collector runs paper sources and counters and stores one snapshot.
type Collector struct {
	store     Store
	sources   []source.PaperSource
	citations source.Counter // optional
	mentions  source.Counter // optional
	engine    Recomputer     // optional, nil = store counts only
}

// New creates a collector. citations, mentions and engine may be nil.
func New(s Store, sources []source.PaperSource, citations, mentions source.Counter, engine Recomputer) *Collector {
	return &Collector{
		store:     s,
		sources:   sources,
		citations: citations,
		mentions:  mentions,
		engine:    engine,
	}
}

// Run collects papers from every source, stores them, attaches citation and
// mention counts for date and rescores the snapshot. Failing sources and
// counters are logged and skipped; counts they would have supplied are zero.
// An error is returned only when nothing could be collected or stored.
func (c *Collector) Run(ctx context.Context, date string) (*Summary, error) {
	date, err := engagement.ParseDate(date)
	if err != nil {
		return nil, err
	}

	start := time.Now()
	sum := &Summary{
		Date:         date,
		BySource:     make(map[string]int),
		SourceErrors: make(map[string]string),
	}
	logger := log.With().Str("date", date).Logger()

	papers, err := c.collectPapers(ctx, sum)
	if err != nil {
		return nil, err
	}
	sum.Papers = len(papers)
	if len(papers) == 0 {
		logger.Info().Msg("no papers collected")
		sum.Duration = time.Since(start)
		return sum, nil
	}

	if err := c.store.UpsertPapers(ctx, papers); err != nil {
		return nil, fmt.Errorf("store papers: %w", err)
	}

	citations := c.count(ctx, c.citations, papers, sum)
	mentions := c.count(ctx, c.mentions, papers, sum)
	sum.Cited = len(citations)
	sum.Mentioned = len(mentions)

	for _, p := range papers {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		m := engagement.RawMetric{
			PaperID:          p.ID,
			CitationCount:    citations[p.ID],
			RepoMentionCount: mentions[p.ID],
		}
		if err := c.store.UpsertRawMetric(ctx, date, m); err != nil {
			logger.Warn().Err(err).Str("paper_id", p.ID).Msg("raw metric write failed")
			sum.WriteErrors++
			continue
		}
		sum.Written++
	}

	if c.engine != nil {
		report, err := c.engine.Recompute(ctx, date)
		if err != nil {
			return sum, fmt.Errorf("recompute %s: %w", date, err)
		}
		sum.Report = report
	}

	sum.Duration = time.Since(start)
	logger.Info().
		Int("papers", sum.Papers).
		Int("cited", sum.Cited).
		Int("mentioned", sum.Mentioned).
		Int("written", sum.Written).
		Int("write_errors", sum.WriteErrors).
		Dur("took", sum.Duration).
		Msg("collection finished")

	return sum, nil
}

// collectPapers merges every source's papers, first source wins on
// duplicate IDs. It fails only when every source failed.
func (c *Collector) collectPapers(ctx context.Context, sum *Summary) ([]source.Paper, error) {
	seen := make(map[string]bool)
	var (
		papers []source.Paper
		errs   []error
	)

	for _, src := range c.sources {
		name := string(src.Name())
		got, err := src.Papers(ctx)
		if err != nil {
			log.Warn().Err(err).Str("source", name).Msg("paper source failed")
			metrics.SourceErrors.WithLabelValues(name).Inc()
			sum.SourceErrors[name] = err.Error()
			errs = append(errs, fmt.Errorf("%s: %w", name, err))
			continue
		}

		added := 0
		for _, p := range got {
			if p.ID == "" || seen[p.ID] {
				continue
			}
			seen[p.ID] = true
			papers = append(papers, p)
			added++
		}
		sum.BySource[name] = added
		metrics.PapersCollected.WithLabelValues(name).Add(float64(added))
		log.Debug().Str("source", name).Int("papers", len(got)).Int("new", added).Msg("collected papers")
	}

	if len(c.sources) > 0 && len(errs) == len(c.sources) {
		return nil, fmt.Errorf("all paper sources failed: %w", errors.Join(errs...))
	}
	return papers, nil
}

// count runs counter and keeps whatever it returned, even on error.
func (c *Collector) count(ctx context.Context, counter source.Counter, papers []source.Paper, sum *Summary) map[string]int {
	if counter == nil {
		return nil
	}
	counts, err := counter.Counts(ctx, papers)
	if err != nil {
		log.Warn().Err(err).Str("source", counter.Name()).Int("counted", len(counts)).Msg("counter failed")
		metrics.SourceErrors.WithLabelValues(counter.Name()).Inc()
		sum.SourceErrors[counter.Name()] = err.Error()
	}
	return counts
}
