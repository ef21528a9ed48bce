// ABOUTME: Renders a finished (or partial) execution into a readable research report.
// ABOUTME: Markdown is the native format; HTML is produced from it with goldmark.
package report

import (
	"bytes"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/yuin/goldmark"
	"github.com/yuin/goldmark/extension"
	"github.com/yuin/goldmark/renderer/html"

	"github.com/2389-research/prospect/agents"
	"github.com/2389-research/prospect/pipeline"
)

var md = goldmark.New(
	goldmark.WithExtensions(extension.GFM),
	goldmark.WithRendererOptions(html.WithHardWraps()),
)

// Markdown renders an execution as a Markdown research report. Stages with
// no committed data get a one-line status note rather than a section body.
func Markdown(exec *pipeline.Execution) string {
	var b strings.Builder

	fmt.Fprintf(&b, "# Research Report: %s\n\n", exec.Entity)
	fmt.Fprintf(&b, "- **Execution:** `%s`\n", exec.ID)
	fmt.Fprintf(&b, "- **Status:** %s\n", exec.Status)
	fmt.Fprintf(&b, "- **Started:** %s\n", exec.CreatedAt.Format(time.RFC3339))
	if exec.CompletedAt != nil {
		fmt.Fprintf(&b, "- **Finished:** %s\n", exec.CompletedAt.Format(time.RFC3339))
	}
	if len(exec.Roles) > 0 {
		fmt.Fprintf(&b, "- **Requested roles:** %s\n", strings.Join(exec.Roles, ", "))
	}
	if exec.Error != "" {
		fmt.Fprintf(&b, "- **Error:** %s\n", exec.Error)
	}
	b.WriteString("\n")

	for _, name := range exec.StageOrder {
		sr := exec.Stages[name]
		if sr == nil {
			continue
		}
		fmt.Fprintf(&b, "## %s\n\n", titleFor(name))
		if len(sr.Data) == 0 {
			fmt.Fprintf(&b, "_%s_\n\n", statusNote(sr))
			continue
		}
		writeStageBody(&b, name, sr.Data)
	}

	return b.String()
}

// HTML renders the execution's Markdown report to HTML.
func HTML(exec *pipeline.Execution) (string, error) {
	var buf bytes.Buffer
	if err := md.Convert([]byte(Markdown(exec)), &buf); err != nil {
		return "", fmt.Errorf("render report: %w", err)
	}
	return buf.String(), nil
}

func titleFor(stage string) string {
	switch stage {
	case agents.StageDiscovery:
		return "Company Discovery"
	case agents.StageStructure:
		return "Organization Structure"
	case agents.StageRoles:
		return "Decision Makers"
	case agents.StageEnrichment:
		return "Contact Enrichment"
	case agents.StageVerification:
		return "Verification"
	}
	return strings.ToUpper(stage[:1]) + stage[1:]
}

func statusNote(sr *pipeline.StageResult) string {
	switch sr.Status {
	case pipeline.StageSkipped:
		if sr.Error != "" {
			return "Skipped: " + sr.Error
		}
		return "Skipped."
	case pipeline.StageFailed:
		return "Failed: " + sr.Error
	case pipeline.StagePending:
		return "Not yet run."
	}
	return "No data recorded."
}

// writeStageBody renders one stage's committed data, falling back to a
// fenced JSON block when the payload does not decode into its known type.
func writeStageBody(b *strings.Builder, stage string, data json.RawMessage) {
	switch stage {
	case agents.StageDiscovery:
		var p agents.CompanyProfile
		if json.Unmarshal(data, &p) == nil && p.Name != "" {
			writeProfile(b, p)
			return
		}
	case agents.StageStructure:
		var s agents.OrgStructure
		if json.Unmarshal(data, &s) == nil && len(s.Departments) > 0 {
			writeStructure(b, s)
			return
		}
	case agents.StageRoles:
		var r agents.RoleTargets
		if json.Unmarshal(data, &r) == nil && len(r.People) > 0 {
			writeRoles(b, r)
			return
		}
	case agents.StageEnrichment:
		var e agents.EnrichmentResult
		if json.Unmarshal(data, &e) == nil {
			writeEnrichment(b, e)
			return
		}
	case agents.StageVerification:
		var v agents.Verification
		if json.Unmarshal(data, &v) == nil && v.Status != "" {
			writeVerification(b, v)
			return
		}
	}
	fmt.Fprintf(b, "```json\n%s\n```\n\n", string(data))
}

func writeProfile(b *strings.Builder, p agents.CompanyProfile) {
	fmt.Fprintf(b, "- **Industry:** %s\n", orDash(p.Industry))
	fmt.Fprintf(b, "- **Size:** %s", orDash(p.Size))
	if p.EmployeeCount > 0 {
		fmt.Fprintf(b, " (~%d employees)", p.EmployeeCount)
	}
	b.WriteString("\n")
	if p.Location != "" {
		fmt.Fprintf(b, "- **Location:** %s\n", p.Location)
	}
	if p.Website != "" {
		fmt.Fprintf(b, "- **Website:** <%s>\n", p.Website)
	}
	fmt.Fprintf(b, "- **Assessment:** %s", orDash(p.Status))
	if p.Reason != "" {
		fmt.Fprintf(b, ": %s", p.Reason)
	}
	b.WriteString("\n")
	if len(p.GrowthSignals) > 0 {
		b.WriteString("- **Growth signals:**\n")
		for _, s := range p.GrowthSignals {
			fmt.Fprintf(b, "  - %s\n", s)
		}
	}
	b.WriteString("\n")
}

func writeStructure(b *strings.Builder, s agents.OrgStructure) {
	b.WriteString("| Department | Head | Relevance |\n|---|---|---|\n")
	for _, d := range s.Departments {
		fmt.Fprintf(b, "| %s | %s | %s |\n", d.Name, orDash(d.Head), orDash(d.Relevance))
	}
	if len(s.RecommendedTargets) > 0 {
		fmt.Fprintf(b, "\n**Recommended targets:** %s\n", strings.Join(s.RecommendedTargets, ", "))
	}
	b.WriteString("\n")
}

func writeRoles(b *strings.Builder, r agents.RoleTargets) {
	b.WriteString("| Name | Title | Power | Accepted |\n|---|---|---|---|\n")
	for _, p := range r.People {
		accepted := "no"
		if p.Accepted {
			accepted = "yes"
		}
		fmt.Fprintf(b, "| %s | %s | %d | %s |\n", p.Name, p.Title, p.DecisionPower, accepted)
	}
	b.WriteString("\n")
}

func writeEnrichment(b *strings.Builder, e agents.EnrichmentResult) {
	if len(e.Contacts) == 0 {
		b.WriteString("_No contacts enriched._\n\n")
		return
	}
	b.WriteString("| Name | Title | Email | Phone |\n|---|---|---|---|\n")
	for _, c := range e.Contacts {
		fmt.Fprintf(b, "| %s %s | %s | %s | %s |\n",
			c.FirstName, c.LastName, orDash(c.Title), orDash(c.Email), orDash(c.Phone))
	}
	if len(e.Misses) > 0 {
		fmt.Fprintf(b, "\n**Not matched:** %s\n", strings.Join(e.Misses, ", "))
	}
	b.WriteString("\n")
}

func writeVerification(b *strings.Builder, v agents.Verification) {
	fmt.Fprintf(b, "- **Verdict:** %s (confidence %.2f)\n", v.Status, v.ConfidenceScore)
	if v.Summary != "" {
		fmt.Fprintf(b, "- **Summary:** %s\n", v.Summary)
	}
	if v.Reason != "" {
		fmt.Fprintf(b, "- **Reason:** %s\n", v.Reason)
	}
	if v.RecommendedAction != "" {
		fmt.Fprintf(b, "- **Next action:** %s\n", v.RecommendedAction)
	}
	b.WriteString("\n")
}

func orDash(s string) string {
	if s == "" {
		return "-"
	}
	return s
}
