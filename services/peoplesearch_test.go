// ABOUTME: Tests for people search: profile title parsing, role fan-out, and
// ABOUTME: cross-role deduplication.
package services

import (
	"context"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"
)

func TestParseProfileTitle(t *testing.T) {
	tests := []struct {
		title string
		want  Person
		ok    bool
	}{
		{
			"Jane Doe - VP Engineering - Acme Robotics | LinkedIn",
			Person{Name: "Jane Doe", Title: "VP Engineering", Company: "Acme Robotics"},
			true,
		},
		{
			"John Smith - CTO | LinkedIn",
			Person{Name: "John Smith", Title: "CTO"},
			true,
		},
		{"Acme Robotics careers page", Person{}, false},
		{"", Person{}, false},
	}

	for _, tt := range tests {
		got, ok := parseProfileTitle(tt.title)
		if ok != tt.ok {
			t.Errorf("parseProfileTitle(%q) ok = %v, want %v", tt.title, ok, tt.ok)
			continue
		}
		if ok && (got.Name != tt.want.Name || got.Title != tt.want.Title || got.Company != tt.want.Company) {
			t.Errorf("parseProfileTitle(%q) = %+v, want %+v", tt.title, got, tt.want)
		}
	}
}

func TestFindPeopleDeduplicatesAcrossRoles(t *testing.T) {
	calls := 0
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls++
		// The same profile shows up for both role queries.
		fmt.Fprint(w, `{"organic_results":[
			{"title":"Jane Doe - CTO - Acme | LinkedIn","link":"https://li.example/jane","snippet":""}
		]}`)
	}))
	defer srv.Close()

	ps := NewPeopleSearch("test-key", WithPeopleBaseURL(srv.URL))
	people, err := ps.FindPeople(context.Background(), "Acme", []string{"CTO", "VP Engineering"})
	if err != nil {
		t.Fatalf("FindPeople: %v", err)
	}
	if calls != 2 {
		t.Errorf("expected one query per role, got %d", calls)
	}
	if len(people) != 1 {
		t.Fatalf("got %d people, want deduplicated 1", len(people))
	}
	if people[0].Name != "Jane Doe" || people[0].ProfileURL != "https://li.example/jane" {
		t.Errorf("people[0] = %+v", people[0])
	}
}

func TestFindPeopleDefaultRoles(t *testing.T) {
	var queries []string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		queries = append(queries, r.URL.Query().Get("q"))
		fmt.Fprint(w, `{"organic_results":[]}`)
	}))
	defer srv.Close()

	ps := NewPeopleSearch("test-key", WithPeopleBaseURL(srv.URL))
	if _, err := ps.FindPeople(context.Background(), "Acme", nil); err != nil {
		t.Fatalf("FindPeople: %v", err)
	}
	if len(queries) != 3 {
		t.Errorf("expected 3 default role queries, got %d: %v", len(queries), queries)
	}
}

func TestFindPeopleRequiresAPIKey(t *testing.T) {
	ps := NewPeopleSearch("")
	if _, err := ps.FindPeople(context.Background(), "Acme", nil); err == nil {
		t.Error("expected error without API key")
	}
}
