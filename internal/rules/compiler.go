// Package rules renders an agent's behavioral rules into a prompt section.
package rules

import (
	"fmt"
	"sort"
	"strings"

	"github.com/crewdesk/crewdesk/internal/team"
)

const sectionHeading = "## Behavioral Rules"

// CompilePrompt appends the agent's enabled rules to basePrompt as a
// fixed-order section (Always, Never, Conditional). The base prompt is
// never reordered or rewritten; with no enabled rules it is returned
// unchanged.
func CompilePrompt(basePrompt string, rs []team.Rule) string {
	enabled := make([]team.Rule, 0, len(rs))
	for _, r := range rs {
		if r.Enabled {
			enabled = append(enabled, r)
		}
	}
	if len(enabled) == 0 {
		return basePrompt
	}

	// Stable sort: ties keep input order.
	sort.SliceStable(enabled, func(i, j int) bool {
		return enabled[i].EffectivePriority() < enabled[j].EffectivePriority()
	})

	var always, never, when []team.Rule
	for _, r := range enabled {
		switch r.Type {
		case team.RuleAlways:
			always = append(always, r)
		case team.RuleNever:
			never = append(never, r)
		case team.RuleWhen:
			when = append(when, r)
		}
	}

	var sb strings.Builder
	sb.WriteString(strings.TrimRight(basePrompt, "\n"))
	sb.WriteString("\n\n")
	sb.WriteString(sectionHeading)
	sb.WriteString("\n")
	writeBucket(&sb, "Always", always)
	writeBucket(&sb, "Never", never)
	writeBucket(&sb, "Conditional", when)
	return strings.TrimRight(sb.String(), "\n") + "\n"
}

func writeBucket(sb *strings.Builder, title string, rs []team.Rule) {
	if len(rs) == 0 {
		return
	}
	fmt.Fprintf(sb, "\n### %s\n", title)
	for _, r := range rs {
		if r.Type == team.RuleWhen && r.Condition != "" {
			fmt.Fprintf(sb, "- When %s: %s\n", r.Condition, r.Content)
			continue
		}
		fmt.Fprintf(sb, "- %s\n", r.Content)
	}
}
