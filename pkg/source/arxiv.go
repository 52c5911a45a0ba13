package source

import (
	"context"
	"fmt"
	"net/http"
	"regexp"
	"strings"
	"time"

	"github.com/mmcdole/gofeed"

	"github.com/elonfeng/paperpulse/internal/httputil"
)

// ArXivAPIURL is the arXiv export query endpoint.
const ArXivAPIURL = "https://export.arxiv.org/api/query"

// DefaultCategories are queried when none are configured.
var DefaultCategories = []string{"cs.AI", "cs.CL", "cs.CV", "cs.LG"}

// ArXiv collects recent papers from the arXiv export API.
type ArXiv struct {
	client     *httputil.Client
	parser     *gofeed.Parser
	baseURL    string
	categories []string
	maxResults int
	filter     *Filter
}

// NewArXiv creates a new ArXiv source.
func NewArXiv(client *httputil.Client, categories []string, maxResults int, filter *Filter) *ArXiv {
	if len(categories) == 0 {
		categories = DefaultCategories
	}
	if maxResults <= 0 {
		maxResults = 100
	}
	return &ArXiv{
		client:     client,
		parser:     gofeed.NewParser(),
		baseURL:    ArXivAPIURL,
		categories: categories,
		maxResults: maxResults,
		filter:     filter,
	}
}

// WithBaseURL points the source at a different endpoint.
func (a *ArXiv) WithBaseURL(u string) *ArXiv {
	a.baseURL = u
	return a
}

func (a *ArXiv) Name() SourceType { return SourceArXiv }

func (a *ArXiv) Papers(ctx context.Context) ([]Paper, error) {
	var parts []string
	for _, cat := range a.categories {
		parts = append(parts, "cat:"+cat)
	}
	query := strings.Join(parts, "+OR+")

	// ArXiv expects unencoded +OR+ in the search query, so build the URL manually.
	reqURL := fmt.Sprintf("%s?search_query=%s&sortBy=submittedDate&sortOrder=descending&max_results=%d",
		a.baseURL, query, a.maxResults)
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, reqURL, nil)
	if err != nil {
		return nil, fmt.Errorf("create arxiv request: %w", err)
	}

	resp, err := a.client.Do(ctx, req)
	if err != nil {
		return nil, fmt.Errorf("fetch arxiv: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("arxiv status %d", resp.StatusCode)
	}

	feed, err := a.parser.Parse(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("parse arxiv feed: %w", err)
	}

	now := time.Now().UTC()
	var papers []Paper
	for _, entry := range feed.Items {
		id := extractArXivID(entry.GUID)
		if id == "" {
			id = extractArXivID(entry.Link)
		}
		if id == "" {
			continue
		}

		p := Paper{
			ID:          PaperID(id),
			Source:      SourceArXiv,
			ExternalID:  id,
			Title:       collapseSpace(entry.Title),
			URL:         "https://arxiv.org/abs/" + id,
			Abstract:    collapseSpace(entry.Description),
			Authors:     authorNames(entry),
			Categories:  entry.Categories,
			PublishedAt: publishedAt(entry),
			CollectedAt: now,
		}
		if a.filter != nil && !a.filter.Match(p) {
			continue
		}
		papers = append(papers, p)
	}

	return papers, nil
}

var (
	arxivIDPattern = regexp.MustCompile(`(\d{4}\.\d{4,5}|[a-z\-]+(?:\.[A-Z]{2})?/\d{7})(?:v\d+)?$`)
	spaceRun       = regexp.MustCompile(`\s+`)
)

// extractArXivID returns the version-less arXiv identifier embedded in an
// abs URL, an OAI identifier or a bare ID, or "" when none is found.
//
//	"http://arxiv.org/abs/2402.12345v1" -> "2402.12345"
//	"oai:arXiv.org:hep-th/9901001v2"    -> "hep-th/9901001"
func extractArXivID(s string) string {
	s = strings.TrimSpace(s)
	if i := strings.Index(s, "/abs/"); i >= 0 {
		s = s[i+len("/abs/"):]
	}
	s = strings.TrimPrefix(s, "oai:arXiv.org:")
	m := arxivIDPattern.FindStringSubmatch(s)
	if m == nil {
		return ""
	}
	return m[1]
}

func collapseSpace(s string) string {
	return strings.TrimSpace(spaceRun.ReplaceAllString(s, " "))
}

// authorNames prefers dc:creator, which the listing feeds fill with a
// comma-separated author list, over the feed's author elements.
func authorNames(item *gofeed.Item) []string {
	var names []string
	if item.DublinCoreExt != nil {
		for _, c := range item.DublinCoreExt.Creator {
			for _, n := range strings.Split(c, ",") {
				if n = strings.TrimSpace(n); n != "" {
					names = append(names, n)
				}
			}
		}
	}
	if len(names) > 0 {
		return names
	}
	for _, a := range item.Authors {
		if a != nil && a.Name != "" {
			names = append(names, a.Name)
		}
	}
	return names
}

// publishedAt returns the entry's publish time, falling back to its update
// time, or nil when the feed carries neither.
func publishedAt(item *gofeed.Item) *time.Time {
	var t *time.Time
	switch {
	case item.PublishedParsed != nil:
		t = item.PublishedParsed
	case item.UpdatedParsed != nil:
		t = item.UpdatedParsed
	default:
		return nil
	}
	utc := t.UTC()
	return &utc
}
