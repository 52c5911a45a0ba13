package engagement

import "sort"

// Rank returns a copy of metrics ordered for display: score descending, then
// newer publish time, then more repository mentions, then paper ID.
func Rank(metrics []ScoredMetric) []ScoredMetric {
	ranked := make([]ScoredMetric, len(metrics))
	copy(ranked, metrics)

	sort.SliceStable(ranked, func(i, j int) bool {
		a, b := ranked[i], ranked[j]
		if a.EngagementScore != b.EngagementScore {
			return a.EngagementScore > b.EngagementScore
		}
		if newer(a.PublishedAt, b.PublishedAt) {
			return true
		}
		if newer(b.PublishedAt, a.PublishedAt) {
			return false
		}
		if a.RepoMentionCount != b.RepoMentionCount {
			return a.RepoMentionCount > b.RepoMentionCount
		}
		return a.PaperID < b.PaperID
	})
	return ranked
}

// Top returns at most n entries of Rank(metrics).
func Top(metrics []ScoredMetric, n int) []ScoredMetric {
	ranked := Rank(metrics)
	if n > 0 && len(ranked) > n {
		ranked = ranked[:n]
	}
	return ranked
}
