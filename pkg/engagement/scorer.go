package engagement

import (
	"sort"
	"time"
)

// RawMetric is one paper's observed signals as of a snapshot date.
type RawMetric struct {
	PaperID          string     `json:"paper_id" db:"paper_id"`
	CitationCount    int        `json:"citation_count" db:"citation_count"`
	RepoMentionCount int        `json:"repo_mention_count" db:"repo_mention_count"`
	PublishedAt      *time.Time `json:"published_at,omitempty" db:"published_at"`
}

// ScoredMetric is a RawMetric with its batch-relative engagement score.
type ScoredMetric struct {
	RawMetric
	EngagementScore float64 `json:"engagement_score" db:"engagement_score"`
}

// State names the branch of the scoring cascade that produced a batch's scores.
type State string

const (
	StateEmpty      State = "empty"
	StatePrimary    State = "primary"
	StateRecency    State = "recency"
	StateTimeOfDay  State = "time_of_day"
	StatePositional State = "positional"
)

// Result is the outcome of scoring one batch.
type Result struct {
	State   State          `json:"state"`
	Metrics []ScoredMetric `json:"metrics"`
}

// Scorer turns a batch of raw signals into engagement scores in [0,1].
// It holds no mutable state and is safe for concurrent use.
type Scorer struct {
	now func() time.Time
}

// Option configures a Scorer.
type Option func(*Scorer)

// WithClock sets the reference clock used for recency weights.
func WithClock(now func() time.Time) Option {
	return func(s *Scorer) {
		if now != nil {
			s.now = now
		}
	}
}

// NewScorer creates a Scorer. The default clock is time.Now.
func NewScorer(opts ...Option) *Scorer {
	s := &Scorer{now: time.Now}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// ScoreBatch scores metrics against the scorer's clock.
func (s *Scorer) ScoreBatch(metrics []RawMetric) []ScoredMetric {
	return s.Evaluate(metrics).Metrics
}

// Evaluate scores metrics against the scorer's clock and reports which
// branch of the cascade was used.
func (s *Scorer) Evaluate(metrics []RawMetric) Result {
	return EvaluateAt(metrics, s.now())
}

// ScoreBatchAt scores metrics with now as the reference time for recency.
// The output is one-to-one with the input and in the same order.
func ScoreBatchAt(metrics []RawMetric, now time.Time) []ScoredMetric {
	return EvaluateAt(metrics, now).Metrics
}

// EvaluateAt runs the scoring cascade:
//
//	primary     citation counts, when any paper has one
//	recency     1/(1+ageHours/24), when weights differ
//	time_of_day UTC hour-of-day fraction of the publish time
//	positional  publish time descending, 1 - i/(n-1)
//
// Every input receives a score; an empty batch yields an empty result.
func EvaluateAt(metrics []RawMetric, now time.Time) Result {
	if len(metrics) == 0 {
		return Result{State: StateEmpty, Metrics: []ScoredMetric{}}
	}

	out := make([]ScoredMetric, len(metrics))
	for i, m := range metrics {
		out[i] = ScoredMetric{RawMetric: m}
	}

	if scores, ok := citationScores(metrics); ok {
		return fill(out, StatePrimary, scores)
	}

	weights := make([]float64, len(metrics))
	nonZero := false
	for i, m := range metrics {
		weights[i] = RecencyWeight(m.PublishedAt, now)
		if weights[i] > 0 {
			nonZero = true
		}
	}
	if scores, ok := normalizeAll(weights); ok {
		return fill(out, StateRecency, scores)
	}

	if nonZero {
		fractions := make([]float64, len(metrics))
		for i, m := range metrics {
			fractions[i] = hourOfDay(m.PublishedAt)
		}
		if scores, ok := normalizeAll(fractions); ok {
			return fill(out, StateTimeOfDay, scores)
		}
	}

	return fill(out, StatePositional, positionalScores(metrics))
}

// RecencyWeight decays with age in days: 1 for a paper published now, 0.5 a
// day later. Absent publish times weigh 0; future ones weigh 1.
func RecencyWeight(publishedAt *time.Time, now time.Time) float64 {
	if publishedAt == nil || publishedAt.IsZero() {
		return 0
	}
	hours := now.Sub(*publishedAt).Hours()
	if hours < 0 {
		hours = 0
	}
	return 1 / (1 + hours/24)
}

func citationScores(metrics []RawMetric) ([]float64, bool) {
	lo, hi := 0, 0
	for _, m := range metrics {
		if m.CitationCount < lo {
			lo = m.CitationCount
		}
		if m.CitationCount > hi {
			hi = m.CitationCount
		}
	}
	if hi <= 0 {
		return nil, false
	}

	scores := make([]float64, len(metrics))
	for i, m := range metrics {
		scores[i] = Normalize(float64(m.CitationCount), float64(lo), float64(hi))
	}
	return scores, true
}

func hourOfDay(t *time.Time) float64 {
	if t == nil || t.IsZero() {
		return 0
	}
	u := t.UTC()
	h := float64(u.Hour()) +
		float64(u.Minute())/60 +
		float64(u.Second())/3600 +
		float64(u.Nanosecond())/3.6e12
	return h / 24
}

func positionalScores(metrics []RawMetric) []float64 {
	n := len(metrics)
	scores := make([]float64, n)
	if n == 1 {
		return scores
	}

	order := make([]int, n)
	for i := range order {
		order[i] = i
	}
	sort.SliceStable(order, func(a, b int) bool {
		return newer(metrics[order[a]].PublishedAt, metrics[order[b]].PublishedAt)
	})

	for rank, idx := range order {
		scores[idx] = 1 - float64(rank)/float64(n-1)
	}
	return scores
}

// newer reports whether a sorts before b in publish-time-descending order.
// Absent times sort last.
func newer(a, b *time.Time) bool {
	switch {
	case a == nil || a.IsZero():
		return false
	case b == nil || b.IsZero():
		return true
	default:
		return a.After(*b)
	}
}

func fill(out []ScoredMetric, state State, scores []float64) Result {
	for i := range out {
		out[i].EngagementScore = scores[i]
	}
	return Result{State: state, Metrics: out}
}
