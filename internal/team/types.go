package team

import "time"

// RuleType classifies a behavioral rule.
type RuleType string

const (
	RuleAlways RuleType = "always"
	RuleNever  RuleType = "never"
	RuleWhen   RuleType = "when"
)

// DefaultRulePriority is used when a rule carries no explicit priority.
// Lower values sort first.
const DefaultRulePriority = 100

// Rule is a behavioral constraint attached to an agent.
type Rule struct {
	ID        string   `json:"id"`
	AgentID   string   `json:"agent_id"`
	Type      RuleType `json:"type"`
	Content   string   `json:"content"`
	Condition string   `json:"condition,omitempty"`
	Priority  *int     `json:"priority,omitempty"`
	Enabled   bool     `json:"enabled"`
}

// EffectivePriority returns the rule's priority, applying the default
// when none is set.
func (r Rule) EffectivePriority() int {
	if r.Priority == nil {
		return DefaultRulePriority
	}
	return *r.Priority
}

// MindEntry is a unit of team or tenant knowledge injected into prompts.
type MindEntry struct {
	ID      string `json:"id"`
	Title   string `json:"title,omitempty"`
	Content string `json:"content"`
	// Source is "base" for entries shipped with the team definition and
	// "tenant" for entries added by a workspace.
	Source string `json:"source,omitempty"`
}

// ToolRef names a tool an agent may call.
type ToolRef struct {
	ID          string `json:"id"`
	Name        string `json:"name"`
	Description string `json:"description,omitempty"`
	Enabled     bool   `json:"enabled"`
}

// Skill is a capability package assigned to an agent.
type Skill struct {
	ID             string `json:"id"`
	Name           string `json:"name"`
	Description    string `json:"description,omitempty"`
	PromptFragment string `json:"prompt_fragment,omitempty"`
	Enabled        bool   `json:"enabled"`
}

// Agent is one member of a team. Slug is the stable addressing key: it
// names the agent's dedicated channel and locates its profile.
type Agent struct {
	ID           string      `json:"id"`
	Slug         string      `json:"slug"`
	Name         string      `json:"name"`
	Description  string      `json:"description,omitempty"`
	Avatar       string      `json:"avatar,omitempty"`
	SystemPrompt string      `json:"system_prompt"`
	Model        string      `json:"model,omitempty"`
	Provider     string      `json:"provider,omitempty"`
	Enabled      bool        `json:"enabled"`
	Tools        []ToolRef   `json:"tools,omitempty"`
	Skills       []Skill     `json:"skills,omitempty"`
	Mind         []MindEntry `json:"mind,omitempty"`
	Rules        []Rule      `json:"rules,omitempty"`
}

// DelegationEdge is a directed (from, to) pair in the team's delegation
// graph, addressed by agent slug.
type DelegationEdge struct {
	ID              string `json:"id"`
	From            string `json:"from"`
	To              string `json:"to"`
	Condition       string `json:"condition,omitempty"`
	ContextTemplate string `json:"context_template,omitempty"`
	Enabled         bool   `json:"enabled"`
}

// TeamDefinition is an immutable-per-version snapshot of a publishable
// team. New versions are new snapshots; a definition is never mutated in
// place.
type TeamDefinition struct {
	ID          string           `json:"id"`
	Version     int              `json:"version"`
	Name        string           `json:"name"`
	Slug        string           `json:"slug"`
	HeadAgentID string           `json:"head_agent_id"`
	Agents      []Agent          `json:"agents"`
	Delegations []DelegationEdge `json:"delegations,omitempty"`
	TeamMind    []MindEntry      `json:"team_mind,omitempty"`
	CreatedAt   time.Time        `json:"created_at,omitempty"`
}

// HeadAgent returns the designated head agent, if present.
func (d TeamDefinition) HeadAgent() (Agent, bool) {
	for _, a := range d.Agents {
		if a.ID == d.HeadAgentID {
			return a, true
		}
	}
	return Agent{}, false
}

// AgentBySlug looks an agent up by its slug.
func (d TeamDefinition) AgentBySlug(slug string) (Agent, bool) {
	for _, a := range d.Agents {
		if a.Slug == slug {
			return a, true
		}
	}
	return Agent{}, false
}

// ActiveConfiguration is the materialized result of resolving a
// TeamDefinition against one workspace's Customizations: disabled agents
// and delegations removed, overrides applied, tenant mind appended. This
// is the JSON boundary document handed to the agent runtime.
type ActiveConfiguration struct {
	Workspace   string           `json:"workspace"`
	TeamID      string           `json:"team_id"`
	TeamVersion int              `json:"team_version"`
	Name        string           `json:"name"`
	Slug        string           `json:"slug"`
	HeadAgentID string           `json:"head_agent_id"`
	Agents      []Agent          `json:"agents"`
	Delegations []DelegationEdge `json:"delegations,omitempty"`
	TeamMind    []MindEntry      `json:"team_mind,omitempty"`
	ResolvedAt  time.Time        `json:"resolved_at"`
}

// AgentBySlug looks a resolved agent up by its slug.
func (c ActiveConfiguration) AgentBySlug(slug string) (Agent, bool) {
	for _, a := range c.Agents {
		if a.Slug == slug {
			return a, true
		}
	}
	return Agent{}, false
}
