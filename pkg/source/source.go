package source

import (
	"context"
	"time"
)

// SourceType identifies where a paper came from.
type SourceType string

const (
	SourceArXiv    SourceType = "arxiv"
	SourceArXivRSS SourceType = "arxiv-rss"
)

// Paper is the standardized paper record shared by all sources.
type Paper struct {
	ID             string     `json:"id" db:"id"`
	Source         SourceType `json:"source" db:"source"`
	ExternalID     string     `json:"external_id" db:"external_id"`
	Title          string     `json:"title" db:"title"`
	URL            string     `json:"url" db:"url"`
	Abstract       string     `json:"abstract" db:"abstract"`
	Authors        []string   `json:"authors" db:"-"`
	Categories     []string   `json:"categories" db:"-"`
	PublishedAt    *time.Time `json:"published_at,omitempty" db:"published_at"`
	CollectedAt    time.Time  `json:"collected_at" db:"collected_at"`
	AuthorsJSON    string     `json:"-" db:"authors"`
	CategoriesJSON string     `json:"-" db:"categories"`
}

// PaperSource supplies paper identity, publish time and categories.
type PaperSource interface {
	Name() SourceType
	Papers(ctx context.Context) ([]Paper, error)
}

// Counter supplies one raw integer signal per paper, keyed by paper ID.
// Papers missing from the result have no observed signal, which callers
// treat as zero. Implementations may be rate limited or fail outright.
type Counter interface {
	Name() string
	Counts(ctx context.Context, papers []Paper) (map[string]int, error)
}

// PaperID returns the canonical ID for an arXiv identifier.
func PaperID(arxivID string) string {
	return "arxiv:" + arxivID
}

// AllSourceTypes returns all known paper source types.
func AllSourceTypes() []SourceType {
	return []SourceType{SourceArXiv, SourceArXivRSS}
}
