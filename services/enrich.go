// ABOUTME: Contact enrichment client over an Apollo-style people match API.
// ABOUTME: Resolves a name + company into verified contact details where available.
package services

import (
	"context"
	"net/http"
)

// Contact is an enriched, verified contact record.
type Contact struct {
	FirstName   string `json:"first_name"`
	LastName    string `json:"last_name"`
	Title       string `json:"title"`
	Email       string `json:"email"`
	Phone       string `json:"phone"`
	LinkedInURL string `json:"linkedin_url"`
}

// Enricher matches people to contact records via an Apollo-compatible API.
type Enricher struct {
	apiKey  string
	baseURL string
	httpc   *http.Client
}

// EnricherOption configures an Enricher.
type EnricherOption func(*Enricher)

// WithEnrichBaseURL overrides the enrichment endpoint (used in tests).
func WithEnrichBaseURL(u string) EnricherOption {
	return func(e *Enricher) { e.baseURL = u }
}

// NewEnricher creates an enrichment client with the given API key.
func NewEnricher(apiKey string, opts ...EnricherOption) *Enricher {
	e := &Enricher{
		apiKey:  apiKey,
		baseURL: "https://api.apollo.io",
		httpc:   newHTTPClient(),
	}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

type matchRequest struct {
	APIKey           string `json:"api_key"`
	Name             string `json:"name"`
	OrganizationName string `json:"organization_name"`
	RevealEmails     bool   `json:"reveal_personal_emails"`
}

type matchResponse struct {
	Person *struct {
		FirstName   string `json:"first_name"`
		LastName    string `json:"last_name"`
		Title       string `json:"title"`
		Email       string `json:"email"`
		PhoneNumber string `json:"sanitized_phone"`
		LinkedInURL string `json:"linkedin_url"`
	} `json:"person"`
}

// MatchPerson resolves a person at a company into a contact record. Returns
// (nil, nil) when the provider has no match.
func (e *Enricher) MatchPerson(ctx context.Context, name, company string) (*Contact, error) {
	if e.apiKey == "" {
		return nil, &ServiceError{Provider: "enrich", Message: "no API key configured"}
	}

	req := matchRequest{
		APIKey:           e.apiKey,
		Name:             name,
		OrganizationName: company,
		RevealEmails:     true,
	}

	var parsed matchResponse
	if err := postJSON(ctx, e.httpc, "enrich", e.baseURL+"/v1/people/match", req, &parsed); err != nil {
		return nil, err
	}
	if parsed.Person == nil {
		return nil, nil
	}

	return &Contact{
		FirstName:   parsed.Person.FirstName,
		LastName:    parsed.Person.LastName,
		Title:       parsed.Person.Title,
		Email:       parsed.Person.Email,
		Phone:       parsed.Person.PhoneNumber,
		LinkedInURL: parsed.Person.LinkedInURL,
	}, nil
}
