// ABOUTME: Professional-network people lookup via site-scoped web search.
// ABOUTME: Parses "Name - Title - Company" profile result titles into typed Person records.
package services

import (
	"context"
	"fmt"
	"net/http"
	"net/url"
	"strings"
)

// Person is one profile hit from a people search.
type Person struct {
	Name       string `json:"name"`
	Title      string `json:"title"`
	Company    string `json:"company"`
	ProfileURL string `json:"profile_url"`
}

// PeopleSearch finds likely decision makers by running site-scoped profile
// searches against the same SerpAPI-compatible endpoint as WebSearch.
type PeopleSearch struct {
	apiKey  string
	baseURL string
	httpc   *http.Client
}

// PeopleSearchOption configures a PeopleSearch client.
type PeopleSearchOption func(*PeopleSearch)

// WithPeopleBaseURL overrides the search endpoint (used in tests).
func WithPeopleBaseURL(u string) PeopleSearchOption {
	return func(p *PeopleSearch) { p.baseURL = u }
}

// NewPeopleSearch creates a people search client with the given API key.
func NewPeopleSearch(apiKey string, opts ...PeopleSearchOption) *PeopleSearch {
	p := &PeopleSearch{
		apiKey:  apiKey,
		baseURL: "https://serpapi.com",
		httpc:   newHTTPClient(),
	}
	for _, opt := range opts {
		opt(p)
	}
	return p
}

// FindPeople searches for people at the company matching the given roles.
// Results across roles are deduplicated by profile URL.
func (p *PeopleSearch) FindPeople(ctx context.Context, company string, roles []string) ([]Person, error) {
	if p.apiKey == "" {
		return nil, &ServiceError{Provider: "peoplesearch", Message: "no API key configured"}
	}
	if len(roles) == 0 {
		roles = []string{"CEO", "CTO", "VP Sales"}
	}

	seen := make(map[string]bool)
	var people []Person
	for _, role := range roles {
		q := url.Values{}
		q.Set("engine", "google")
		q.Set("q", fmt.Sprintf(`site:linkedin.com/in %q %q`, company, role))
		q.Set("num", "5")
		q.Set("api_key", p.apiKey)

		var parsed serpResponse
		if err := getJSON(ctx, p.httpc, "peoplesearch", p.baseURL+"/search?"+q.Encode(), &parsed); err != nil {
			return nil, err
		}

		for _, r := range parsed.OrganicResults {
			person, ok := parseProfileTitle(r.Title)
			if !ok || seen[r.Link] {
				continue
			}
			seen[r.Link] = true
			person.ProfileURL = r.Link
			if person.Company == "" {
				person.Company = company
			}
			people = append(people, person)
		}
	}
	return people, nil
}

// parseProfileTitle splits a profile result title like
// "Jane Doe - VP Engineering - Acme Robotics | LinkedIn" into its parts.
func parseProfileTitle(title string) (Person, bool) {
	title = strings.TrimSpace(strings.TrimSuffix(title, "| LinkedIn"))
	title = strings.TrimSpace(strings.TrimSuffix(title, "- LinkedIn"))

	parts := strings.Split(title, " - ")
	if len(parts) < 2 || strings.TrimSpace(parts[0]) == "" {
		return Person{}, false
	}

	person := Person{
		Name:  strings.TrimSpace(parts[0]),
		Title: strings.TrimSpace(parts[1]),
	}
	if len(parts) > 2 {
		person.Company = strings.TrimSpace(parts[2])
	}
	return person, true
}
