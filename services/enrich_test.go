// ABOUTME: Tests for the contact enrichment client: match payloads, no-match
// ABOUTME: handling, and provider error mapping.
package services

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"
)

func TestMatchPersonReturnsContact(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/v1/people/match" {
			t.Errorf("path = %q", r.URL.Path)
		}
		var req map[string]any
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			t.Fatalf("decode request: %v", err)
		}
		if req["name"] != "Jane Doe" || req["organization_name"] != "Acme" {
			t.Errorf("request = %v", req)
		}
		if req["api_key"] != "test-key" {
			t.Error("api key not in request body")
		}
		fmt.Fprint(w, `{"person":{
			"first_name":"Jane","last_name":"Doe","title":"VP Engineering",
			"email":"jane@acme.example","sanitized_phone":"+15551234567",
			"linkedin_url":"https://li.example/jane"
		}}`)
	}))
	defer srv.Close()

	e := NewEnricher("test-key", WithEnrichBaseURL(srv.URL))
	contact, err := e.MatchPerson(context.Background(), "Jane Doe", "Acme")
	if err != nil {
		t.Fatalf("MatchPerson: %v", err)
	}
	if contact == nil {
		t.Fatal("expected a contact")
	}
	if contact.Email != "jane@acme.example" || contact.Phone != "+15551234567" {
		t.Errorf("contact = %+v", contact)
	}
}

func TestMatchPersonNoMatch(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		fmt.Fprint(w, `{"person":null}`)
	}))
	defer srv.Close()

	e := NewEnricher("test-key", WithEnrichBaseURL(srv.URL))
	contact, err := e.MatchPerson(context.Background(), "Nobody", "Acme")
	if err != nil {
		t.Fatalf("MatchPerson: %v", err)
	}
	if contact != nil {
		t.Errorf("expected nil contact for no match, got %+v", contact)
	}
}

func TestMatchPersonProviderError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, `{"error":"invalid key"}`, http.StatusUnauthorized)
	}))
	defer srv.Close()

	e := NewEnricher("test-key", WithEnrichBaseURL(srv.URL))
	_, err := e.MatchPerson(context.Background(), "Jane Doe", "Acme")

	var serr *ServiceError
	if !errors.As(err, &serr) {
		t.Fatalf("expected ServiceError, got %v", err)
	}
	if serr.Status != http.StatusUnauthorized || serr.Provider != "enrich" {
		t.Errorf("error = %+v", serr)
	}
}

func TestMatchPersonRequiresAPIKey(t *testing.T) {
	e := NewEnricher("")
	if _, err := e.MatchPerson(context.Background(), "Jane", "Acme"); err == nil {
		t.Error("expected error without API key")
	}
}
