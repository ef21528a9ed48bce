// ABOUTME: Tests for the research stages with a stub LLM and fake service providers:
// ABOUTME: result decoding, dependency fan-out, context injection, and registry wiring.
package agents

import (
	"context"
	"encoding/json"
	"errors"
	"strings"
	"testing"

	"github.com/2389-research/prospect/llm"
	"github.com/2389-research/prospect/pipeline"
	"github.com/2389-research/prospect/services"
)

type fakeSearch struct {
	results []services.SearchResult
	err     error
	queries []string
}

func (f *fakeSearch) Search(ctx context.Context, query string, limit int) ([]services.SearchResult, error) {
	f.queries = append(f.queries, query)
	return f.results, f.err
}

type fakePeople struct {
	people []services.Person
	err    error
	roles  []string
}

func (f *fakePeople) FindPeople(ctx context.Context, company string, roles []string) ([]services.Person, error) {
	f.roles = roles
	return f.people, f.err
}

type fakeEnricher struct {
	contacts map[string]*services.Contact
	err      error
}

func (f *fakeEnricher) MatchPerson(ctx context.Context, name, company string) (*services.Contact, error) {
	if f.err != nil {
		return nil, f.err
	}
	return f.contacts[name], nil
}

func newTask(entity string, roles []string) *pipeline.Task {
	return &pipeline.Task{
		ExecutionID: "test-exec",
		Input:       entity,
		Entity:      entity,
		Roles:       roles,
		Results:     map[string]json.RawMessage{},
	}
}

func TestBuildRegistryOrderAndPolicies(t *testing.T) {
	reg, err := BuildRegistry(Deps{LLM: &llm.Stub{}})
	if err != nil {
		t.Fatalf("BuildRegistry: %v", err)
	}

	want := []string{StageDiscovery, StageStructure, StageRoles, StageEnrichment, StageVerification}
	got := reg.Names()
	if strings.Join(got, ",") != strings.Join(want, ",") {
		t.Errorf("stage order = %v, want %v", got, want)
	}

	for _, st := range reg.Stages() {
		if st.Name == StageEnrichment && !st.Optional {
			t.Error("enrichment must be optional")
		}
		if st.Name != StageEnrichment && st.Optional {
			t.Errorf("stage %s should not be optional", st.Name)
		}
	}
}

func TestDiscoveryParsesProfileAndRemembersFacts(t *testing.T) {
	search := &fakeSearch{results: []services.SearchResult{
		{Title: "Acme Robotics", URL: "https://acme.example", Snippet: "Industrial robots"},
	}}
	stub := &llm.Stub{Responses: []string{"```json\n" + `{
		"name": "Acme Robotics",
		"industry": "Robotics",
		"size": "medium",
		"employee_count": 450,
		"status": "accepted",
		"reason": "established vendor"
	}` + "\n```"}}

	d := Deps{LLM: stub, Search: search}
	out, err := d.discovery(context.Background(), newTask("Acme Robotics", nil))
	if err != nil {
		t.Fatalf("discovery: %v", err)
	}

	profile := out.(CompanyProfile)
	if profile.Name != "Acme Robotics" || profile.EmployeeCount != 450 {
		t.Errorf("profile = %+v", profile)
	}
	if len(search.queries) != 1 || !strings.Contains(search.queries[0], "Acme Robotics") {
		t.Errorf("search queries = %v", search.queries)
	}
	if len(stub.Calls) != 1 || !strings.Contains(stub.Calls[0].Prompt, "Industrial robots") {
		t.Error("search evidence not in prompt")
	}
}

func TestDiscoveryInjectsMemoryContext(t *testing.T) {
	stub := &llm.Stub{Responses: []string{`{"name":"Acme","status":"accepted"}`}}
	d := Deps{LLM: stub}

	task := newTask("Acme", nil)
	task.Context = "[KNOWN FACTS]\n  industry = robotics"
	if _, err := d.discovery(context.Background(), task); err != nil {
		t.Fatalf("discovery: %v", err)
	}
	if !strings.Contains(stub.Calls[0].Prompt, "industry = robotics") {
		t.Error("memory context not injected into prompt")
	}
}

func TestDiscoverySearchFailurePropagates(t *testing.T) {
	d := Deps{
		LLM:    &llm.Stub{},
		Search: &fakeSearch{err: errors.New("quota exceeded")},
	}
	if _, err := d.discovery(context.Background(), newTask("Acme", nil)); err == nil {
		t.Error("expected search error to propagate")
	}
}

func TestDiscoveryBadModelOutput(t *testing.T) {
	d := Deps{LLM: &llm.Stub{Responses: []string{"not json at all"}}}
	if _, err := d.discovery(context.Background(), newTask("Acme", nil)); err == nil {
		t.Error("expected decode error")
	}
}

func TestStructureUsesDiscoveryResult(t *testing.T) {
	stub := &llm.Stub{Responses: []string{`{
		"departments": [{"name": "Engineering", "relevance": "buys tooling"}],
		"recommended_targets": ["VP Engineering"]
	}`}}
	d := Deps{LLM: stub}

	task := newTask("Acme", []string{"CTO"})
	task.Results[StageDiscovery] = json.RawMessage(`{"name":"Acme","industry":"Robotics","size":"medium","status":"accepted"}`)

	out, err := d.structure(context.Background(), task)
	if err != nil {
		t.Fatalf("structure: %v", err)
	}
	structure := out.(OrgStructure)
	if len(structure.Departments) != 1 || structure.Departments[0].Name != "Engineering" {
		t.Errorf("structure = %+v", structure)
	}
	if !strings.Contains(stub.Calls[0].Prompt, "Robotics") {
		t.Error("discovery result not in prompt")
	}
}

func TestRolesFallsBackToRecommendedTargets(t *testing.T) {
	people := &fakePeople{people: []services.Person{
		{Name: "Jane Doe", Title: "VP Engineering", ProfileURL: "https://li.example/jane"},
	}}
	stub := &llm.Stub{Responses: []string{`{
		"people": [{"name": "Jane Doe", "title": "VP Engineering", "decision_power": 8, "accepted": true}]
	}`}}
	d := Deps{LLM: stub, People: people}

	task := newTask("Acme", nil) // no requested roles
	task.Results[StageStructure] = json.RawMessage(`{"departments":[],"recommended_targets":["VP Engineering"]}`)

	out, err := d.roles(context.Background(), task)
	if err != nil {
		t.Fatalf("roles: %v", err)
	}
	targets := out.(RoleTargets)
	if len(targets.People) != 1 || !targets.People[0].Accepted {
		t.Errorf("targets = %+v", targets)
	}
	if len(people.roles) != 1 || people.roles[0] != "VP Engineering" {
		t.Errorf("people search roles = %v, want recommended targets", people.roles)
	}
}

func TestEnrichmentOnlyAcceptedPeople(t *testing.T) {
	enricher := &fakeEnricher{contacts: map[string]*services.Contact{
		"Jane Doe": {FirstName: "Jane", LastName: "Doe", Email: "jane@acme.example"},
	}}
	d := Deps{LLM: &llm.Stub{}, Enrich: enricher}

	task := newTask("Acme", nil)
	task.Results[StageRoles] = json.RawMessage(`{"people":[
		{"name": "Jane Doe", "title": "VP Engineering", "decision_power": 8, "accepted": true},
		{"name": "John Intern", "title": "Intern", "decision_power": 1, "accepted": false},
		{"name": "Ghost", "title": "CTO", "decision_power": 9, "accepted": true}
	]}`)

	out, err := d.enrichment(context.Background(), task)
	if err != nil {
		t.Fatalf("enrichment: %v", err)
	}
	result := out.(EnrichmentResult)
	if len(result.Contacts) != 1 || result.Contacts[0].Email != "jane@acme.example" {
		t.Errorf("contacts = %+v", result.Contacts)
	}
	if len(result.Misses) != 1 || result.Misses[0] != "Ghost" {
		t.Errorf("misses = %v, want the accepted person with no match", result.Misses)
	}
}

func TestEnrichmentWithoutProviderFails(t *testing.T) {
	d := Deps{LLM: &llm.Stub{}}
	task := newTask("Acme", nil)
	task.Results[StageRoles] = json.RawMessage(`{"people":[]}`)

	if _, err := d.enrichment(context.Background(), task); err == nil {
		t.Error("expected error with no enrichment provider")
	}
}

func TestVerificationSeesAllPriorResults(t *testing.T) {
	stub := &llm.Stub{Responses: []string{`{
		"status": "verified",
		"confidence_score": 0.85,
		"reason": "strong signals",
		"summary": "qualified lead"
	}`}}
	d := Deps{LLM: stub}

	task := newTask("Acme", nil)
	task.Results[StageDiscovery] = json.RawMessage(`{"name":"Acme","status":"accepted"}`)
	task.Results[StageRoles] = json.RawMessage(`{"people":[{"name":"Jane","accepted":true}]}`)

	out, err := d.verification(context.Background(), task)
	if err != nil {
		t.Fatalf("verification: %v", err)
	}
	verdict := out.(Verification)
	if verdict.Status != "verified" || verdict.ConfidenceScore != 0.85 {
		t.Errorf("verdict = %+v", verdict)
	}

	prompt := stub.Calls[0].Prompt
	if !strings.Contains(prompt, "discovery result") || !strings.Contains(prompt, "roles result") {
		t.Errorf("prior results missing from prompt:\n%s", prompt)
	}
}

func TestDecodeJSONFenceVariants(t *testing.T) {
	tests := []struct {
		name  string
		input string
	}{
		{"bare", `{"name":"Acme"}`},
		{"json fence", "```json\n{\"name\":\"Acme\"}\n```"},
		{"plain fence", "```\n{\"name\":\"Acme\"}\n```"},
		{"surrounding whitespace", "\n\n  {\"name\":\"Acme\"}  \n"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var v struct {
				Name string `json:"name"`
			}
			if err := decodeJSON(tt.input, &v); err != nil {
				t.Fatalf("decodeJSON: %v", err)
			}
			if v.Name != "Acme" {
				t.Errorf("name = %q", v.Name)
			}
		})
	}
}
