package alert

import (
	"context"
	"fmt"
	"sync"

	"github.com/rs/zerolog/log"

	"github.com/elonfeng/paperpulse/pkg/engagement"
	"github.com/elonfeng/paperpulse/pkg/source"
)

// PaperLookup resolves paper display fields.
type PaperLookup interface {
	GetPaper(ctx context.Context, id string) (*source.Paper, error)
}

// RankingNotifier turns a rescored snapshot into a notification about its
// top papers. Each (date, paper) pair is announced at most once per process.
type RankingNotifier struct {
	mgr      *Manager
	papers   PaperLookup
	minScore float64
	topN     int

	mu      sync.Mutex
	alerted map[string]bool
}

// NewRankingNotifier creates a notifier that announces papers ranked within
// topN whose score is at least minScore.
func NewRankingNotifier(mgr *Manager, papers PaperLookup, minScore float64, topN int) *RankingNotifier {
	if topN <= 0 {
		topN = 10
	}
	return &RankingNotifier{
		mgr:      mgr,
		papers:   papers,
		minScore: minScore,
		topN:     topN,
		alerted:  make(map[string]bool),
	}
}

// NotifyRanking implements engagement.Notifier. ranked must already be in
// ranking order.
func (r *RankingNotifier) NotifyRanking(ctx context.Context, date string, ranked []engagement.ScoredMetric) error {
	if r.mgr == nil || !r.mgr.HasNotifiers() {
		return nil
	}

	r.mu.Lock()
	var fresh []PaperAlert
	for i, m := range ranked {
		if i >= r.topN {
			break
		}
		if m.EngagementScore < r.minScore || r.alerted[date+"/"+m.PaperID] {
			continue
		}
		fresh = append(fresh, PaperAlert{
			Rank:         i + 1,
			PaperID:      m.PaperID,
			Score:        m.EngagementScore,
			Citations:    m.CitationCount,
			RepoMentions: m.RepoMentionCount,
		})
	}
	r.mu.Unlock()

	if len(fresh) == 0 {
		return nil
	}

	for i := range fresh {
		fresh[i].Title = fresh[i].PaperID
		if r.papers == nil {
			continue
		}
		p, err := r.papers.GetPaper(ctx, fresh[i].PaperID)
		if err != nil {
			log.Debug().Err(err).Str("paper_id", fresh[i].PaperID).Msg("paper lookup failed")
			continue
		}
		fresh[i].Title = p.Title
		fresh[i].URL = p.URL
	}

	n := &Notification{
		Date:   date,
		Title:  fmt.Sprintf("Top papers for %s", date),
		Body:   fmt.Sprintf("%d papers scored at least %.2f", len(fresh), r.minScore),
		Papers: fresh,
	}
	if err := r.mgr.Broadcast(ctx, n); err != nil {
		return err
	}

	r.mu.Lock()
	for _, p := range fresh {
		r.alerted[date+"/"+p.PaperID] = true
	}
	r.mu.Unlock()

	log.Info().Str("date", date).Int("papers", len(fresh)).Msg("ranking alert sent")
	return nil
}
