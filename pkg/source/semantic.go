package source

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"

	"github.com/elonfeng/paperpulse/internal/httputil"
)

// SemanticScholarURL is the Semantic Scholar API base.
const SemanticScholarURL = "https://api.semanticscholar.org"

// semanticBatchLimit is the maximum number of ids per batch request.
const semanticBatchLimit = 500

// SemanticScholar counts citations through the Semantic Scholar batch API.
type SemanticScholar struct {
	client  *httputil.Client
	baseURL string
	apiKey  string
	chunk   int
}

// NewSemanticScholar creates a citation counter. apiKey is optional.
func NewSemanticScholar(client *httputil.Client, apiKey string) *SemanticScholar {
	return &SemanticScholar{
		client:  client,
		baseURL: SemanticScholarURL,
		apiKey:  apiKey,
		chunk:   semanticBatchLimit,
	}
}

// WithBaseURL points the counter at a different API host.
func (s *SemanticScholar) WithBaseURL(u string) *SemanticScholar {
	s.baseURL = u
	return s
}

func (s *SemanticScholar) Name() string { return "semantic_scholar" }

// Counts returns citation counts for the papers Semantic Scholar knows.
// When a chunk fails the counts gathered so far are returned with the error.
func (s *SemanticScholar) Counts(ctx context.Context, papers []Paper) (map[string]int, error) {
	counts := make(map[string]int)
	var errs []error

	for start := 0; start < len(papers); start += s.chunk {
		end := min(start+s.chunk, len(papers))
		if err := s.fetchChunk(ctx, papers[start:end], counts); err != nil {
			errs = append(errs, err)
			if ctx.Err() != nil {
				break
			}
		}
	}

	return counts, errors.Join(errs...)
}

type s2BatchRequest struct {
	IDs []string `json:"ids"`
}

type s2Paper struct {
	PaperID       string `json:"paperId"`
	CitationCount *int   `json:"citationCount"`
}

func (s *SemanticScholar) fetchChunk(ctx context.Context, papers []Paper, counts map[string]int) error {
	ids := make([]string, len(papers))
	for i, p := range papers {
		ids[i] = "ARXIV:" + p.ExternalID
	}
	body, err := json.Marshal(s2BatchRequest{IDs: ids})
	if err != nil {
		return fmt.Errorf("encode semantic scholar batch: %w", err)
	}

	reqURL := s.baseURL + "/graph/v1/paper/batch?fields=citationCount"
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, reqURL, bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("create semantic scholar request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	if s.apiKey != "" {
		req.Header.Set("x-api-key", s.apiKey)
	}

	resp, err := s.client.Do(ctx, req)
	if err != nil {
		return fmt.Errorf("fetch semantic scholar batch: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("semantic scholar status %d", resp.StatusCode)
	}

	// The response is positionally aligned with the request ids; unknown
	// papers come back as null.
	var result []*s2Paper
	if err := json.NewDecoder(resp.Body).Decode(&result); err != nil {
		return fmt.Errorf("decode semantic scholar batch: %w", err)
	}
	if len(result) != len(papers) {
		return fmt.Errorf("semantic scholar returned %d results for %d ids", len(result), len(papers))
	}

	for i, r := range result {
		if r == nil || r.CitationCount == nil {
			continue
		}
		counts[papers[i].ID] = *r.CitationCount
	}
	return nil
}
