// ABOUTME: Stage result types and the dependency bundle for the five research stages.
// ABOUTME: Service dependencies are interfaces so tests swap in fakes without HTTP.
package agents

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/2389-research/prospect/llm"
	"github.com/2389-research/prospect/memory"
	"github.com/2389-research/prospect/services"
)

// Searcher is the web search dependency of the discovery stage.
type Searcher interface {
	Search(ctx context.Context, query string, limit int) ([]services.SearchResult, error)
}

// PeopleFinder is the professional-network lookup dependency of the roles
// stage.
type PeopleFinder interface {
	FindPeople(ctx context.Context, company string, roles []string) ([]services.Person, error)
}

// ContactEnricher is the contact enrichment dependency of the enrichment
// stage.
type ContactEnricher interface {
	MatchPerson(ctx context.Context, name, company string) (*services.Contact, error)
}

// Deps bundles everything the stage functions call out to. Memory is
// optional; stages record durable facts through it when present.
type Deps struct {
	LLM    llm.Client
	Search Searcher
	People PeopleFinder
	Enrich ContactEnricher
	Memory *memory.Manager
}

// CompanyProfile is the discovery stage result.
type CompanyProfile struct {
	Name          string   `json:"name"`
	Industry      string   `json:"industry"`
	Size          string   `json:"size"`
	EmployeeCount int      `json:"employee_count,omitempty"`
	Location      string   `json:"location,omitempty"`
	Website       string   `json:"website,omitempty"`
	GrowthSignals []string `json:"growth_signals,omitempty"`
	Status        string   `json:"status"`
	Reason        string   `json:"reason,omitempty"`
	Sources       []string `json:"sources,omitempty"`
}

// Department is one unit in the mapped org structure.
type Department struct {
	Name      string `json:"name"`
	Head      string `json:"head,omitempty"`
	Relevance string `json:"relevance,omitempty"`
}

// OrgStructure is the structure stage result.
type OrgStructure struct {
	Departments        []Department `json:"departments"`
	RecommendedTargets []string     `json:"recommended_targets,omitempty"`
}

// TargetPerson is one scored decision maker from the roles stage.
type TargetPerson struct {
	Name          string `json:"name"`
	Title         string `json:"title"`
	DecisionPower int    `json:"decision_power"`
	Accepted      bool   `json:"accepted"`
	Source        string `json:"source,omitempty"`
	ProfileURL    string `json:"profile_url,omitempty"`
}

// RoleTargets is the roles stage result.
type RoleTargets struct {
	People []TargetPerson `json:"people"`
}

// EnrichmentResult is the enrichment stage result.
type EnrichmentResult struct {
	Contacts []services.Contact `json:"contacts"`
	Misses   []string           `json:"misses,omitempty"`
}

// Verification is the verification stage result and the run's final output.
type Verification struct {
	Status            string  `json:"status"`
	ConfidenceScore   float64 `json:"confidence_score"`
	Reason            string  `json:"reason"`
	Summary           string  `json:"summary,omitempty"`
	RecommendedAction string  `json:"recommended_action,omitempty"`
}

// decodeJSON parses an LLM completion into v, tolerating markdown code
// fences around the JSON body.
func decodeJSON(completion string, v any) error {
	s := strings.TrimSpace(completion)
	if strings.HasPrefix(s, "```") {
		s = strings.TrimPrefix(s, "```json")
		s = strings.TrimPrefix(s, "```")
		if i := strings.LastIndex(s, "```"); i >= 0 {
			s = s[:i]
		}
		s = strings.TrimSpace(s)
	}
	if err := json.Unmarshal([]byte(s), v); err != nil {
		return fmt.Errorf("parse model output: %w", err)
	}
	return nil
}
