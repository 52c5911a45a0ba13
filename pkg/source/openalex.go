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

// OpenAlexURL is the OpenAlex API base.
const OpenAlexURL = "https://api.openalex.org"

// OpenAlex counts citations through OpenAlex work lookups by arXiv DOI.
type OpenAlex struct {
	client  *httputil.Client
	baseURL string
	email   string
}

// NewOpenAlex creates a citation counter. email joins the polite pool.
func NewOpenAlex(client *httputil.Client, email string) *OpenAlex {
	return &OpenAlex{client: client, baseURL: OpenAlexURL, email: email}
}

// WithBaseURL points the counter at a different API host.
func (o *OpenAlex) WithBaseURL(u string) *OpenAlex {
	o.baseURL = u
	return o
}

func (o *OpenAlex) Name() string { return "openalex" }

type openAlexWork struct {
	CitedByCount int `json:"cited_by_count"`
}

// Counts looks papers up one at a time. Works OpenAlex does not know are
// left out of the result; the lookup stops early once the upstream circuit
// opens or ctx is done.
func (o *OpenAlex) Counts(ctx context.Context, papers []Paper) (map[string]int, error) {
	counts := make(map[string]int)
	var errs []error

	for _, p := range papers {
		n, found, err := o.count(ctx, p.ExternalID)
		if err != nil {
			errs = append(errs, fmt.Errorf("%s: %w", p.ID, err))
			if ctx.Err() != nil || errors.Is(err, gobreaker.ErrOpenState) {
				break
			}
			continue
		}
		if found {
			counts[p.ID] = n
		}
	}

	return counts, errors.Join(errs...)
}

func (o *OpenAlex) count(ctx context.Context, arxivID string) (int, bool, error) {
	reqURL := fmt.Sprintf("%s/works/doi:10.48550/arXiv.%s", o.baseURL, arxivID)
	if o.email != "" {
		reqURL += "?mailto=" + url.QueryEscape(o.email)
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, reqURL, nil)
	if err != nil {
		return 0, false, fmt.Errorf("create openalex request: %w", err)
	}

	resp, err := o.client.Do(ctx, req)
	if err != nil {
		return 0, false, fmt.Errorf("fetch openalex work: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode == http.StatusNotFound {
		return 0, false, nil
	}
	if resp.StatusCode != http.StatusOK {
		return 0, false, fmt.Errorf("openalex status %d", resp.StatusCode)
	}

	var work openAlexWork
	if err := json.NewDecoder(resp.Body).Decode(&work); err != nil {
		return 0, false, fmt.Errorf("decode openalex work: %w", err)
	}
	return work.CitedByCount, true, nil
}
