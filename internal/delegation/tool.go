package delegation

import (
	"fmt"
	"strings"

	"github.com/crewdesk/crewdesk/internal/team"
)

// DelegateToolName is the function name exposed to the head agent's
// reasoning loop.
const DelegateToolName = "delegate_task"

// fallbackCapability describes a target whose edge carries no condition
// and whose agent has no description.
const fallbackCapability = "handles general tasks"

// Tool is a callable tool definition in the shape LLM providers accept.
type Tool struct {
	Type     string       `json:"type"`
	Function ToolFunction `json:"function"`
}

// ToolFunction describes the callable function and its argument schema.
type ToolFunction struct {
	Name        string                 `json:"name"`
	Description string                 `json:"description"`
	Parameters  map[string]interface{} `json:"parameters"`
}

// BuildDelegationTool derives the delegate tool for one head agent from
// the active configuration. The valid targets and their descriptions vary
// per workspace (disablement, overrides), so the schema is rebuilt from
// the resolved config rather than hard-coded. A head agent with no
// enabled outgoing edges has no delegation capability: found is false and
// callers must not treat that as an error.
func BuildDelegationTool(active team.ActiveConfiguration, headSlug string) (Tool, bool) {
	type target struct {
		slug       string
		capability string
	}
	var targets []target
	seen := make(map[string]bool)
	for _, e := range active.Delegations {
		if e.From != headSlug || !e.Enabled {
			continue
		}
		if seen[e.To] {
			continue
		}
		seen[e.To] = true
		targets = append(targets, target{slug: e.To, capability: capabilityLine(active, e)})
	}
	if len(targets) == 0 {
		return Tool{}, false
	}

	slugs := make([]string, len(targets))
	var desc strings.Builder
	desc.WriteString("Delegate a sub-task to a specialist agent on your team. Available specialists:\n")
	for i, tg := range targets {
		slugs[i] = tg.slug
		fmt.Fprintf(&desc, "- %s: %s\n", tg.slug, tg.capability)
	}
	desc.WriteString("Pick the specialist whose capabilities best match the task.")

	return Tool{
		Type: "function",
		Function: ToolFunction{
			Name:        DelegateToolName,
			Description: desc.String(),
			Parameters: map[string]interface{}{
				"type": "object",
				"properties": map[string]interface{}{
					"agent": map[string]interface{}{
						"type":        "string",
						"enum":        slugs,
						"description": "Slug of the specialist agent to delegate to",
					},
					"task": map[string]interface{}{
						"type":        "string",
						"description": "The task to hand off, stated completely",
					},
					"context": map[string]interface{}{
						"type":        "string",
						"description": "Optional background the specialist needs",
					},
				},
				"required": []string{"agent", "task"},
			},
		},
	}, true
}

func capabilityLine(active team.ActiveConfiguration, e team.DelegationEdge) string {
	if e.Condition != "" {
		return e.Condition
	}
	if a, ok := active.AgentBySlug(e.To); ok && a.Description != "" {
		return a.Description
	}
	return fallbackCapability
}

// FindDelegationRule retrieves the enabled edge between two agents, used
// to fetch the context template after a delegation target is chosen.
// Absent or disabled edges report false: callers send without a template
// rather than failing.
func FindDelegationRule(active team.ActiveConfiguration, fromSlug, toSlug string) (team.DelegationEdge, bool) {
	for _, e := range active.Delegations {
		if e.From == fromSlug && e.To == toSlug && e.Enabled {
			return e, true
		}
	}
	return team.DelegationEdge{}, false
}

// FormatDelegationContext renders the content of a delegation request.
// The edge's context template may reference {task} and {context}; with no
// template the task is sent as-is, with the extra context appended.
func FormatDelegationContext(tmpl, task, extra string) string {
	if tmpl == "" {
		if extra == "" {
			return task
		}
		return task + "\n\nContext: " + extra
	}
	out := strings.ReplaceAll(tmpl, "{task}", task)
	out = strings.ReplaceAll(out, "{context}", extra)
	return out
}
