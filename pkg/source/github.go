package source

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/url"

	"github.com/sony/gobreaker"

	"github.com/elonfeng/paperpulse/internal/httputil"
)

// GitHubAPIURL is the GitHub REST API base.
const GitHubAPIURL = "https://api.github.com"

// GitHub counts repositories that mention a paper's arXiv ID in their
// README or description.
type GitHub struct {
	client  *httputil.Client
	baseURL string
	token   string
}

// NewGitHub creates a repository-mention counter. token is optional but
// raises the search rate limit.
func NewGitHub(client *httputil.Client, token string) *GitHub {
	return &GitHub{client: client, baseURL: GitHubAPIURL, token: token}
}

// WithBaseURL points the counter at a different API host.
func (g *GitHub) WithBaseURL(u string) *GitHub {
	g.baseURL = u
	return g
}

func (g *GitHub) Name() string { return "github" }

type ghSearchResult struct {
	TotalCount int `json:"total_count"`
}

// Counts searches once per paper. It stops early once the upstream
// circuit opens or ctx is done.
func (g *GitHub) Counts(ctx context.Context, papers []Paper) (map[string]int, error) {
	counts := make(map[string]int)
	var errs []error

	for _, p := range papers {
		n, err := g.count(ctx, p.ExternalID)
		if err != nil {
			errs = append(errs, fmt.Errorf("%s: %w", p.ID, err))
			if ctx.Err() != nil || errors.Is(err, gobreaker.ErrOpenState) {
				break
			}
			continue
		}
		counts[p.ID] = n
	}

	return counts, errors.Join(errs...)
}

func (g *GitHub) count(ctx context.Context, arxivID string) (int, error) {
	params := url.Values{}
	params.Set("q", fmt.Sprintf("%q in:readme,description", arxivID))
	params.Set("per_page", "1")

	reqURL := g.baseURL + "/search/repositories?" + params.Encode()
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, reqURL, nil)
	if err != nil {
		return 0, fmt.Errorf("create github request: %w", err)
	}

	req.Header.Set("Accept", "application/vnd.github+json")
	if g.token != "" {
		req.Header.Set("Authorization", "Bearer "+g.token)
	}

	resp, err := g.client.Do(ctx, req)
	if err != nil {
		return 0, fmt.Errorf("search github: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return 0, fmt.Errorf("github API status %d", resp.StatusCode)
	}

	var result ghSearchResult
	if err := json.NewDecoder(resp.Body).Decode(&result); err != nil {
		return 0, fmt.Errorf("decode github response: %w", err)
	}
	return result.TotalCount, nil
}
