package team

import (
	"fmt"
	"time"
)

// AgentOverride holds per-workspace partial overrides for one agent.
// Every field is optional; a nil field keeps the base value. Slug and ID
// are deliberately absent — overrides can never re-address an agent.
type AgentOverride struct {
	Name         *string `json:"name,omitempty"`
	Description  *string `json:"description,omitempty"`
	Avatar       *string `json:"avatar,omitempty"`
	SystemPrompt *string `json:"system_prompt,omitempty"`
	Model        *string `json:"model,omitempty"`
	Provider     *string `json:"provider,omitempty"`
	Enabled      *bool   `json:"enabled,omitempty"`
}

// Customizations captures one workspace's deviations from a base team
// definition. Mutating it never affects the base.
type Customizations struct {
	Version             int                      `json:"version"`
	DisabledAgents      []string                 `json:"disabled_agents,omitempty"`
	DisabledDelegations []string                 `json:"disabled_delegations,omitempty"`
	AddedMind           []MindEntry              `json:"added_mind,omitempty"`
	AgentOverrides      map[string]AgentOverride `json:"agent_overrides,omitempty"`
}

// ValidationError reports malformed resolver input. Resolution is
// all-or-nothing: a validation error means nothing was applied.
type ValidationError struct {
	Field  string
	Reason string
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("invalid configuration: %s: %s", e.Field, e.Reason)
}

// Resolve merges a base team definition with a workspace's customizations
// into an ActiveConfiguration. It is a pure function: neither input is
// mutated, so one base may be resolved concurrently for many workspaces.
// Callers cache the result per (team version, customization version);
// Resolve itself always recomputes.
func Resolve(workspace string, base TeamDefinition, custom Customizations) (ActiveConfiguration, error) {
	if err := validate(base, custom); err != nil {
		return ActiveConfiguration{}, err
	}

	disabledAgents := make(map[string]bool, len(custom.DisabledAgents))
	for _, slug := range custom.DisabledAgents {
		disabledAgents[slug] = true
	}
	disabledEdges := make(map[string]bool, len(custom.DisabledDelegations))
	for _, id := range custom.DisabledDelegations {
		disabledEdges[id] = true
	}

	agents := make([]Agent, 0, len(base.Agents))
	surviving := make(map[string]bool, len(base.Agents))
	for _, a := range base.Agents {
		if disabledAgents[a.Slug] {
			continue
		}
		if ov, ok := custom.AgentOverrides[a.Slug]; ok {
			a = applyOverride(a, ov)
		}
		agents = append(agents, a)
		surviving[a.Slug] = true
	}

	// Delegations are dropped when individually disabled, when either
	// endpoint no longer survives, or when they duplicate an earlier
	// (from, to) pair.
	edges := make([]DelegationEdge, 0, len(base.Delegations))
	seen := make(map[[2]string]bool, len(base.Delegations))
	for _, e := range base.Delegations {
		if disabledEdges[e.ID] {
			continue
		}
		if !surviving[e.From] || !surviving[e.To] {
			continue
		}
		pair := [2]string{e.From, e.To}
		if seen[pair] {
			continue
		}
		seen[pair] = true
		edges = append(edges, e)
	}

	mind := make([]MindEntry, 0, len(base.TeamMind)+len(custom.AddedMind))
	for _, m := range base.TeamMind {
		if m.Source == "" {
			m.Source = "base"
		}
		mind = append(mind, m)
	}
	for _, m := range custom.AddedMind {
		m.Source = "tenant"
		mind = append(mind, m)
	}

	return ActiveConfiguration{
		Workspace:   workspace,
		TeamID:      base.ID,
		TeamVersion: base.Version,
		Name:        base.Name,
		Slug:        base.Slug,
		HeadAgentID: base.HeadAgentID,
		Agents:      agents,
		Delegations: edges,
		TeamMind:    mind,
		ResolvedAt:  time.Now().UTC(),
	}, nil
}

// applyOverride copies the agent and merges the override field by field.
// Owned collections (tools, skills, mind, rules) are copied so the result
// shares no mutable state with the base definition.
func applyOverride(a Agent, ov AgentOverride) Agent {
	a.Tools = append([]ToolRef(nil), a.Tools...)
	a.Skills = append([]Skill(nil), a.Skills...)
	a.Mind = append([]MindEntry(nil), a.Mind...)
	a.Rules = append([]Rule(nil), a.Rules...)

	if ov.Name != nil {
		a.Name = *ov.Name
	}
	if ov.Description != nil {
		a.Description = *ov.Description
	}
	if ov.Avatar != nil {
		a.Avatar = *ov.Avatar
	}
	if ov.SystemPrompt != nil {
		a.SystemPrompt = *ov.SystemPrompt
	}
	if ov.Model != nil {
		a.Model = *ov.Model
	}
	if ov.Provider != nil {
		a.Provider = *ov.Provider
	}
	if ov.Enabled != nil {
		a.Enabled = *ov.Enabled
	}
	return a
}

func validate(base TeamDefinition, custom Customizations) error {
	if base.ID == "" {
		return &ValidationError{Field: "team.id", Reason: "missing"}
	}
	slugs := make(map[string]bool, len(base.Agents))
	for _, a := range base.Agents {
		if a.Slug == "" {
			return &ValidationError{Field: "agent.slug", Reason: fmt.Sprintf("agent %s has no slug", a.ID)}
		}
		if slugs[a.Slug] {
			return &ValidationError{Field: "agent.slug", Reason: fmt.Sprintf("duplicate slug %q", a.Slug)}
		}
		slugs[a.Slug] = true
	}
	for slug := range custom.AgentOverrides {
		if !slugs[slug] {
			return &ValidationError{Field: "agent_overrides", Reason: fmt.Sprintf("override targets unknown agent %q", slug)}
		}
	}
	return nil
}
