package source

import (
	"context"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/mmcdole/gofeed"
	"github.com/rs/zerolog/log"

	"github.com/elonfeng/paperpulse/internal/httputil"
)

// ArXivRSSURL is the base of the arXiv daily listing feeds.
const ArXivRSSURL = "https://rss.arxiv.org/rss"

// ArXivRSS collects papers from the arXiv daily listing RSS feeds, one feed
// per category.
type ArXivRSS struct {
	client     *httputil.Client
	parser     *gofeed.Parser
	baseURL    string
	categories []string
	filter     *Filter
}

// NewArXivRSS creates a new ArXivRSS source.
func NewArXivRSS(client *httputil.Client, categories []string, filter *Filter) *ArXivRSS {
	if len(categories) == 0 {
		categories = DefaultCategories
	}
	return &ArXivRSS{
		client:     client,
		parser:     gofeed.NewParser(),
		baseURL:    ArXivRSSURL,
		categories: categories,
		filter:     filter,
	}
}

// WithBaseURL points the source at a different feed host.
func (r *ArXivRSS) WithBaseURL(u string) *ArXivRSS {
	r.baseURL = strings.TrimRight(u, "/")
	return r
}

func (r *ArXivRSS) Name() SourceType { return SourceArXivRSS }

// Papers fetches every category feed. A failing feed is logged and skipped;
// an error is returned only when every feed fails.
func (r *ArXivRSS) Papers(ctx context.Context) ([]Paper, error) {
	seen := make(map[string]bool)
	var all []Paper
	var lastErr error
	failed := 0

	for _, cat := range r.categories {
		papers, err := r.collectFeed(ctx, cat)
		if err != nil {
			log.Warn().Err(err).Str("category", cat).Msg("arxiv rss feed failed")
			lastErr = err
			failed++
			continue
		}
		for _, p := range papers {
			if seen[p.ID] {
				continue
			}
			seen[p.ID] = true
			all = append(all, p)
		}
	}

	if failed > 0 && failed == len(r.categories) {
		return nil, lastErr
	}
	return all, nil
}

func (r *ArXivRSS) collectFeed(ctx context.Context, category string) ([]Paper, error) {
	feedURL := r.baseURL + "/" + category
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, feedURL, nil)
	if err != nil {
		return nil, fmt.Errorf("create rss request %s: %w", category, err)
	}

	resp, err := r.client.Do(ctx, req)
	if err != nil {
		return nil, fmt.Errorf("fetch rss %s: %w", category, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("rss %s status %d", category, resp.StatusCode)
	}

	parsed, err := r.parser.Parse(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("parse rss %s: %w", category, err)
	}

	now := time.Now().UTC()
	var papers []Paper
	for _, entry := range parsed.Items {
		id := extractArXivID(entry.Link)
		if id == "" {
			id = extractArXivID(entry.GUID)
		}
		if id == "" {
			continue
		}

		categories := entry.Categories
		if len(categories) == 0 {
			categories = []string{category}
		}

		p := Paper{
			ID:          PaperID(id),
			Source:      SourceArXivRSS,
			ExternalID:  id,
			Title:       collapseSpace(entry.Title),
			URL:         "https://arxiv.org/abs/" + id,
			Abstract:    trimAbstract(entry.Description),
			Authors:     authorNames(entry),
			Categories:  categories,
			PublishedAt: publishedAt(entry),
			CollectedAt: now,
		}
		if r.filter != nil && !r.filter.Match(p) {
			continue
		}
		papers = append(papers, p)
	}

	return papers, nil
}

// trimAbstract drops the "arXiv:<id> Announce Type: new Abstract:" preamble
// the listing feeds put in front of each description.
func trimAbstract(s string) string {
	if i := strings.Index(s, "Abstract:"); i >= 0 {
		s = s[i+len("Abstract:"):]
	}
	return collapseSpace(s)
}
