package engagement

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog/log"

	"github.com/elonfeng/paperpulse/internal/metrics"
)

// MetricStore is the persistence the engine reads batches from and writes
// scores to. Writes are keyed by (date, paper ID) and independent of each other.
type MetricStore interface {
	ListBatch(ctx context.Context, date string) ([]RawMetric, error)
	UpdateScore(ctx context.Context, date, paperID string, score float64) error
	ListSnapshotDates(ctx context.Context) ([]string, error)
}

// Notifier receives the ranked batch after a recomputation.
type Notifier interface {
	NotifyRanking(ctx context.Context, date string, ranked []ScoredMetric) error
}

// ItemFailure records a score that could not be persisted.
type ItemFailure struct {
	PaperID string `json:"paper_id"`
	Err     error  `json:"-"`
	Message string `json:"error"`
}

// Report summarizes one snapshot recomputation.
type Report struct {
	RunID    string        `json:"run_id"`
	Date     string        `json:"date"`
	State    State         `json:"state"`
	Total    int           `json:"total"`
	Written  int           `json:"written"`
	Failures []ItemFailure `json:"failures,omitempty"`
	Duration time.Duration `json:"duration_ns"`
}

// Err joins the per-item failures, or returns nil when every write succeeded.
func (r *Report) Err() error {
	var errs []error
	for _, f := range r.Failures {
		errs = append(errs, fmt.Errorf("%s: %w", f.PaperID, f.Err))
	}
	return errors.Join(errs...)
}

// Engine recomputes stored snapshot scores.
type Engine struct {
	store    MetricStore
	notifier Notifier // optional, nil = disabled
}

// NewEngine creates a recomputation engine over s. notifier may be nil.
func NewEngine(s MetricStore, notifier Notifier) *Engine {
	return &Engine{store: s, notifier: notifier}
}

// Recompute rescores every stored metric for date. Normalization is
// batch-relative, so the whole batch is re-read and every score rewritten.
// A failed write is recorded in the report and does not stop the others.
func (e *Engine) Recompute(ctx context.Context, date string) (*Report, error) {
	start := time.Now()
	report := &Report{RunID: uuid.NewString(), Date: date, State: StateEmpty}

	now, err := referenceTime(date)
	if err != nil {
		return nil, err
	}

	batch, err := e.store.ListBatch(ctx, date)
	if err != nil {
		metrics.RecomputeRuns.WithLabelValues("error").Inc()
		return nil, fmt.Errorf("load batch %s: %w", date, err)
	}

	logger := log.With().Str("run_id", report.RunID).Str("date", date).Logger()

	if len(batch) == 0 {
		metrics.RecomputeRuns.WithLabelValues("empty").Inc()
		logger.Debug().Msg("empty snapshot, nothing to score")
		report.Duration = time.Since(start)
		return report, nil
	}

	result := EvaluateAt(batch, now)
	report.State = result.State
	report.Total = len(result.Metrics)

	for _, m := range result.Metrics {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		if err := e.store.UpdateScore(ctx, date, m.PaperID, m.EngagementScore); err != nil {
			logger.Warn().Err(err).Str("paper_id", m.PaperID).Msg("score write failed")
			metrics.ScoreWriteFailures.Inc()
			report.Failures = append(report.Failures, ItemFailure{
				PaperID: m.PaperID,
				Err:     err,
				Message: err.Error(),
			})
			continue
		}
		report.Written++
	}

	report.Duration = time.Since(start)
	metrics.RecomputeDuration.Observe(report.Duration.Seconds())
	metrics.ItemsScored.WithLabelValues(string(result.State)).Add(float64(report.Written))
	if len(report.Failures) > 0 {
		metrics.RecomputeRuns.WithLabelValues("partial").Inc()
	} else {
		metrics.RecomputeRuns.WithLabelValues("ok").Inc()
	}

	logger.Info().
		Str("state", string(report.State)).
		Int("total", report.Total).
		Int("written", report.Written).
		Int("failed", len(report.Failures)).
		Dur("took", report.Duration).
		Msg("snapshot rescored")

	if e.notifier != nil {
		if err := e.notifier.NotifyRanking(ctx, date, Rank(result.Metrics)); err != nil {
			logger.Warn().Err(err).Msg("ranking notification failed")
		}
	}

	return report, nil
}

// RecomputeAll rescores every stored snapshot date in ascending order. A date
// that cannot be loaded is skipped; its error is joined into the returned error.
func (e *Engine) RecomputeAll(ctx context.Context) ([]*Report, error) {
	dates, err := e.store.ListSnapshotDates(ctx)
	if err != nil {
		return nil, fmt.Errorf("list snapshot dates: %w", err)
	}

	var (
		reports []*Report
		errs    []error
	)
	for _, date := range dates {
		if err := ctx.Err(); err != nil {
			return reports, err
		}
		report, err := e.Recompute(ctx, date)
		if err != nil {
			log.Warn().Err(err).Str("date", date).Msg("recompute failed")
			errs = append(errs, err)
			continue
		}
		reports = append(reports, report)
	}
	return reports, errors.Join(errs...)
}
