// ABOUTME: Web search client over a SerpAPI-compatible endpoint.
// ABOUTME: Returns typed organic results for company discovery queries.
package services

import (
	"context"
	"fmt"
	"net/http"
	"net/url"
)

// SearchResult is one organic web search hit.
type SearchResult struct {
	Title   string `json:"title"`
	URL     string `json:"url"`
	Snippet string `json:"snippet"`
}

// WebSearch queries a SerpAPI-compatible search endpoint.
type WebSearch struct {
	apiKey  string
	baseURL string
	httpc   *http.Client
}

// WebSearchOption configures a WebSearch client.
type WebSearchOption func(*WebSearch)

// WithSearchBaseURL overrides the search endpoint (used in tests).
func WithSearchBaseURL(u string) WebSearchOption {
	return func(w *WebSearch) { w.baseURL = u }
}

// NewWebSearch creates a web search client with the given API key.
func NewWebSearch(apiKey string, opts ...WebSearchOption) *WebSearch {
	w := &WebSearch{
		apiKey:  apiKey,
		baseURL: "https://serpapi.com",
		httpc:   newHTTPClient(),
	}
	for _, opt := range opts {
		opt(w)
	}
	return w
}

type serpResponse struct {
	OrganicResults []struct {
		Title   string `json:"title"`
		Link    string `json:"link"`
		Snippet string `json:"snippet"`
	} `json:"organic_results"`
}

// Search runs a web search and returns up to limit organic results.
func (w *WebSearch) Search(ctx context.Context, query string, limit int) ([]SearchResult, error) {
	if w.apiKey == "" {
		return nil, &ServiceError{Provider: "websearch", Message: "no API key configured"}
	}
	if limit <= 0 {
		limit = 5
	}

	q := url.Values{}
	q.Set("engine", "google")
	q.Set("q", query)
	q.Set("num", fmt.Sprint(limit))
	q.Set("api_key", w.apiKey)

	var parsed serpResponse
	if err := getJSON(ctx, w.httpc, "websearch", w.baseURL+"/search?"+q.Encode(), &parsed); err != nil {
		return nil, err
	}

	results := make([]SearchResult, 0, limit)
	for _, r := range parsed.OrganicResults {
		results = append(results, SearchResult{Title: r.Title, URL: r.Link, Snippet: r.Snippet})
		if len(results) == limit {
			break
		}
	}
	return results, nil
}
