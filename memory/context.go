// ABOUTME: Budgeted context bundle assembly for stage invocations.
// ABOUTME: Fixed priority order: current-run results, then long-term facts, then pattern hints.
package memory

import (
	"fmt"
	"strings"

	"github.com/2389-research/prospect/pipeline"
)

const (
	// defaultBudget is the character budget for one context bundle,
	// roughly 2000 tokens.
	defaultBudget = 8000

	// defaultFactBudget caps how many long-term facts recall contributes.
	defaultFactBudget = 12

	// resultExcerpt caps how much of each stage result is quoted.
	resultExcerpt = 400

	// minPatternSamples is how many outcomes a (stage, bucket) pair needs
	// before its statistics are considered signal.
	minPatternSamples = 5

	truncationMarker = "\n[... context truncated ...]"
)

// ContextBuilder assembles the bounded context bundle for a stage from the
// three memory tiers plus the current execution's committed results.
type ContextBuilder struct {
	memory     *Manager
	budget     int
	factBudget int
}

// NewContextBuilder creates a builder over the given manager. budget <= 0
// selects the default character budget.
func NewContextBuilder(m *Manager, budget int) *ContextBuilder {
	if budget <= 0 {
		budget = defaultBudget
	}
	return &ContextBuilder{memory: m, budget: budget, factBudget: defaultFactBudget}
}

// Build assembles the bundle. Sections are appended in fixed priority order
// (current-run results, long-term facts, pattern hints) under a single
// budget, so decision-relevant information is never evicted in favor of
// background statistics. exec may be nil.
func (b *ContextBuilder) Build(entity, stage string, exec *pipeline.Execution) string {
	sections := []string{}

	if cur := b.currentRunSection(exec); cur != "" {
		sections = append(sections, cur)
	}
	if facts := b.factsSection(entity); facts != "" {
		sections = append(sections, facts)
	}
	if hints := b.patternSection(stage); hints != "" {
		sections = append(sections, hints)
	}

	return truncate(strings.Join(sections, "\n\n"), b.budget)
}

// currentRunSection summarizes committed stage results of the current run,
// in stage order.
func (b *ContextBuilder) currentRunSection(exec *pipeline.Execution) string {
	if exec == nil {
		return ""
	}

	var lines []string
	for _, name := range exec.StageOrder {
		sr := exec.Stages[name]
		if sr == nil || sr.Status != pipeline.StageCompleted || len(sr.Data) == 0 {
			continue
		}
		lines = append(lines, fmt.Sprintf("  %s: %s", name, excerpt(string(sr.Data), resultExcerpt)))
	}
	if len(lines) == 0 {
		return ""
	}
	return "[CURRENT RUN]\n" + strings.Join(lines, "\n")
}

// factsSection renders recalled long-term facts for the entity.
func (b *ContextBuilder) factsSection(entity string) string {
	facts, err := b.memory.Recall(entity, b.factBudget)
	if err != nil || len(facts) == 0 {
		return ""
	}

	lines := make([]string, 0, len(facts))
	for _, f := range facts {
		lines = append(lines, fmt.Sprintf("  %s = %s", f.Key, excerpt(f.Value, 200)))
	}
	return "[KNOWN FACTS]\n" + strings.Join(lines, "\n")
}

// patternSection renders outcome-statistics hints for the stage. Only pairs
// with enough samples and a meaningful failure rate make the cut.
func (b *ContextBuilder) patternSection(stage string) string {
	stats, err := b.memory.PatternsForStage(stage)
	if err != nil || len(stats) == 0 {
		return ""
	}

	var lines []string
	for _, p := range stats {
		if p.Samples() < minPatternSamples || p.FailureRate() < 0.3 {
			continue
		}
		lines = append(lines, fmt.Sprintf("  %s fails %.0f%% of the time for %s companies (%d samples)",
			p.Stage, p.FailureRate()*100, p.Bucket, p.Samples()))
	}
	if len(lines) == 0 {
		return ""
	}
	return "[STAGE HINTS]\n" + strings.Join(lines, "\n")
}

// truncate enforces the character budget with a deterministic marker.
func truncate(s string, budget int) string {
	if len(s) <= budget {
		return s
	}
	cut := budget - len(truncationMarker)
	if cut < 0 {
		cut = 0
	}
	return s[:cut] + truncationMarker
}

// excerpt caps a string at n characters with an ellipsis.
func excerpt(s string, n int) string {
	s = strings.TrimSpace(s)
	if len(s) <= n {
		return s
	}
	return s[:n] + "..."
}
