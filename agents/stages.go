// ABOUTME: The five research stage functions: discovery, structure, roles, enrichment, verification.
// ABOUTME: Each builds a prompt from task data plus injected context, calls the LLM, and returns typed results.
package agents

import (
	"context"
	"fmt"
	"strings"

	"github.com/2389-research/prospect/llm"
	"github.com/2389-research/prospect/memory"
	"github.com/2389-research/prospect/pipeline"
)

// Stage names, in pipeline order.
const (
	StageDiscovery    = "discovery"
	StageStructure    = "structure"
	StageRoles        = "roles"
	StageEnrichment   = "enrichment"
	StageVerification = "verification"
)

// BuildRegistry wires the five stages into an ordered registry. Enrichment
// is optional: a missing or failing contact provider degrades the run
// instead of aborting it.
func BuildRegistry(d Deps) (*pipeline.Registry, error) {
	return pipeline.NewRegistry(
		pipeline.Stage{Name: StageDiscovery, Run: d.discovery, Retry: pipeline.RetryPolicyStandard()},
		pipeline.Stage{Name: StageStructure, Run: d.structure, Retry: pipeline.RetryPolicyStandard()},
		pipeline.Stage{Name: StageRoles, Run: d.roles, Retry: pipeline.RetryPolicyStandard()},
		pipeline.Stage{Name: StageEnrichment, Run: d.enrichment, Optional: true},
		pipeline.Stage{Name: StageVerification, Run: d.verification, Retry: pipeline.RetryPolicyStandard()},
	)
}

const discoveryPrompt = `You are a B2B company validation agent.

You are given real web search results about a company. Determine whether the
company is suitable for B2B sales targeting: is it real and established,
what industry, what size, any growth evidence.

Output only valid JSON, no markdown:
{
  "name": "official company name",
  "industry": "industry",
  "size": "small / medium / large / enterprise",
  "employee_count": 0,
  "location": "headquarters if found",
  "website": "company website URL",
  "growth_signals": ["indicators found"],
  "status": "accepted | rejected",
  "reason": "explanation citing the search evidence"
}`

func (d Deps) discovery(ctx context.Context, task *pipeline.Task) (any, error) {
	var evidence strings.Builder
	if d.Search != nil {
		results, err := d.Search.Search(ctx, task.Entity+" company", 5)
		if err != nil {
			return nil, fmt.Errorf("web search: %w", err)
		}
		for _, r := range results {
			fmt.Fprintf(&evidence, "- %s (%s): %s\n", r.Title, r.URL, r.Snippet)
		}
	}

	prompt := fmt.Sprintf("Company: %s\n\nSearch results:\n%s", task.Entity, evidence.String())
	if task.Context != "" {
		prompt += "\n\nMemory of prior runs:\n" + task.Context
	}

	out, err := d.LLM.Complete(ctx, llm.Request{System: discoveryPrompt, Prompt: prompt})
	if err != nil {
		return nil, fmt.Errorf("discovery: %w", err)
	}

	var profile CompanyProfile
	if err := decodeJSON(out, &profile); err != nil {
		return nil, fmt.Errorf("discovery: %w", err)
	}
	if profile.Name == "" {
		profile.Name = task.Entity
	}

	d.rememberProfile(task.Entity, profile)
	return profile, nil
}

const structurePrompt = `You are an org-structure mapping agent.

Given a validated company profile, map the departments most relevant for B2B
outreach and recommend which role titles to target.

Output only valid JSON, no markdown:
{
  "departments": [{"name": "...", "head": "", "relevance": "why it matters"}],
  "recommended_targets": ["role titles to pursue"]
}`

func (d Deps) structure(ctx context.Context, task *pipeline.Task) (any, error) {
	var profile CompanyProfile
	if _, err := task.Result(StageDiscovery, &profile); err != nil {
		return nil, err
	}

	prompt := fmt.Sprintf("Company: %s\nIndustry: %s\nSize: %s\nRequested roles: %s",
		profile.Name, profile.Industry, profile.Size, strings.Join(task.Roles, ", "))
	if task.Context != "" {
		prompt += "\n\nMemory of prior runs:\n" + task.Context
	}

	out, err := d.LLM.Complete(ctx, llm.Request{System: structurePrompt, Prompt: prompt})
	if err != nil {
		return nil, fmt.Errorf("structure: %w", err)
	}

	var structure OrgStructure
	if err := decodeJSON(out, &structure); err != nil {
		return nil, fmt.Errorf("structure: %w", err)
	}
	return structure, nil
}

const rolesPrompt = `You are a decision-maker scoring agent.

You are given people found at a company. Score each person's decision-making
power 1-10 for B2B purchasing and accept those with power >= 7.

Output only valid JSON, no markdown:
{
  "people": [{"name": "...", "title": "...", "decision_power": 0,
              "accepted": false, "source": "search", "profile_url": ""}]
}`

func (d Deps) roles(ctx context.Context, task *pipeline.Task) (any, error) {
	targets := task.Roles
	var structure OrgStructure
	if ok, err := task.Result(StageStructure, &structure); err != nil {
		return nil, err
	} else if ok && len(targets) == 0 {
		targets = structure.RecommendedTargets
	}

	var found strings.Builder
	if d.People != nil {
		people, err := d.People.FindPeople(ctx, task.Entity, targets)
		if err != nil {
			return nil, fmt.Errorf("people search: %w", err)
		}
		for _, p := range people {
			fmt.Fprintf(&found, "- %s, %s (%s)\n", p.Name, p.Title, p.ProfileURL)
		}
	}

	prompt := fmt.Sprintf("Company: %s\nTarget roles: %s\n\nPeople found:\n%s",
		task.Entity, strings.Join(targets, ", "), found.String())
	if task.Context != "" {
		prompt += "\n\nMemory of prior runs:\n" + task.Context
	}

	out, err := d.LLM.Complete(ctx, llm.Request{System: rolesPrompt, Prompt: prompt})
	if err != nil {
		return nil, fmt.Errorf("roles: %w", err)
	}

	var roleTargets RoleTargets
	if err := decodeJSON(out, &roleTargets); err != nil {
		return nil, fmt.Errorf("roles: %w", err)
	}
	return roleTargets, nil
}

// enrichment resolves accepted people into verified contacts. No LLM call;
// it is a pure fan-out over the contact provider.
func (d Deps) enrichment(ctx context.Context, task *pipeline.Task) (any, error) {
	if d.Enrich == nil {
		return nil, fmt.Errorf("no contact enrichment provider configured")
	}

	var roleTargets RoleTargets
	if ok, err := task.Result(StageRoles, &roleTargets); err != nil {
		return nil, err
	} else if !ok {
		return nil, fmt.Errorf("no role targets to enrich")
	}

	result := EnrichmentResult{}
	for _, p := range roleTargets.People {
		if !p.Accepted {
			continue
		}
		contact, err := d.Enrich.MatchPerson(ctx, p.Name, task.Entity)
		if err != nil {
			return nil, fmt.Errorf("enrich %s: %w", p.Name, err)
		}
		if contact == nil {
			result.Misses = append(result.Misses, p.Name)
			continue
		}
		result.Contacts = append(result.Contacts, *contact)
	}

	d.rememberContacts(task.Entity, result)
	return result, nil
}

const verificationPrompt = `You are a B2B lead verification agent.

Review all gathered data and make a final decision. Start from a 0.5 base
score; add up to +0.2 for an accepted B2B-relevant company, +0.2 for accepted
roles with decision_power >= 7, +0.1 for enriched contacts with emails. A
lead with confidence below 0.7 is rejected.

Output only valid JSON, no markdown:
{
  "status": "verified | rejected",
  "confidence_score": 0.0,
  "reason": "detailed explanation",
  "summary": "one-line summary of the lead",
  "recommended_action": "what to do next"
}`

func (d Deps) verification(ctx context.Context, task *pipeline.Task) (any, error) {
	var prompt strings.Builder
	fmt.Fprintf(&prompt, "Company: %s\n\n", task.Entity)
	for _, stage := range []string{StageDiscovery, StageStructure, StageRoles, StageEnrichment} {
		if data, ok := task.Results[stage]; ok {
			fmt.Fprintf(&prompt, "%s result:\n%s\n\n", stage, string(data))
		}
	}
	if task.Context != "" {
		prompt.WriteString("Memory of prior runs:\n" + task.Context)
	}

	out, err := d.LLM.Complete(ctx, llm.Request{System: verificationPrompt, Prompt: prompt.String()})
	if err != nil {
		return nil, fmt.Errorf("verification: %w", err)
	}

	var verdict Verification
	if err := decodeJSON(out, &verdict); err != nil {
		return nil, fmt.Errorf("verification: %w", err)
	}

	d.rememberVerdict(task.Entity, verdict)
	return verdict, nil
}

// rememberProfile records durable point facts from a company profile.
func (d Deps) rememberProfile(entity string, p CompanyProfile) {
	if d.Memory == nil {
		return
	}
	if p.Industry != "" {
		_ = d.Memory.RememberLongTerm(entity, memory.Fact{Key: "industry", Value: p.Industry, Importance: 6})
	}
	if p.Size != "" {
		_ = d.Memory.RememberLongTerm(entity, memory.Fact{Key: "size", Value: p.Size, Importance: 5})
	}
	if p.EmployeeCount > 0 {
		_ = d.Memory.RememberLongTerm(entity, memory.Fact{Key: "employee_count", Value: fmt.Sprint(p.EmployeeCount), Importance: 5})
	}
	if p.Website != "" {
		_ = d.Memory.RememberLongTerm(entity, memory.Fact{Key: "website", Value: p.Website, Importance: 4})
	}
}

// rememberContacts records enriched contacts as collection facts so repeat
// runs can reuse them.
func (d Deps) rememberContacts(entity string, r EnrichmentResult) {
	if d.Memory == nil {
		return
	}
	for _, c := range r.Contacts {
		if c.Email == "" {
			continue
		}
		value := fmt.Sprintf("%s %s <%s> (%s)", c.FirstName, c.LastName, c.Email, c.Title)
		_ = d.Memory.RememberLongTerm(entity, memory.Fact{
			Key: "contact", Value: value, Kind: memory.FactCollection, Importance: 8,
		})
	}
}

// rememberVerdict records the final confidence as a superseding point fact.
func (d Deps) rememberVerdict(entity string, v Verification) {
	if d.Memory == nil {
		return
	}
	_ = d.Memory.RememberLongTerm(entity, memory.Fact{
		Key: "confidence_score", Value: fmt.Sprintf("%.2f", v.ConfidenceScore), Importance: 7,
	})
	if v.Status != "" {
		_ = d.Memory.RememberLongTerm(entity, memory.Fact{Key: "last_verdict", Value: v.Status, Importance: 6})
	}
}
