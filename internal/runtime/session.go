package runtime

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/crewdesk/crewdesk/internal/delegation"
	"github.com/crewdesk/crewdesk/internal/mind"
	"github.com/crewdesk/crewdesk/internal/rules"
	"github.com/crewdesk/crewdesk/internal/team"
)

// DefaultDelegationTimeout bounds how long a head agent waits for a
// specialist's reply.
const DefaultDelegationTimeout = 2 * time.Minute

// Delegator hands a task to a specialist agent and returns its reply.
// Satisfied by delegation.Broker.
type Delegator interface {
	Delegate(ctx context.Context, workspaceID, fromSlug, toSlug, content string, timeout time.Duration) (string, error)
}

// Session is one agent instantiated from an active configuration. It
// carries everything the reasoning loop consumes: the compiled system
// prompt and the tool registry. The session itself performs no LLM calls.
type Session struct {
	Workspace string
	Agent     team.Agent

	active  team.ActiveConfiguration
	prompt  string
	tools   *ToolRegistry
	timeout time.Duration
	logger  *zap.Logger
}

// NewSession instantiates the named agent from the active configuration.
// The delegate tool is registered only when the agent has enabled
// outgoing delegation edges.
func NewSession(active team.ActiveConfiguration, agentSlug string, delegator Delegator, logger *zap.Logger) (*Session, error) {
	agent, ok := active.AgentBySlug(agentSlug)
	if !ok {
		return nil, fmt.Errorf("agent %q not in active configuration", agentSlug)
	}

	s := &Session{
		Workspace: active.Workspace,
		Agent:     agent,
		active:    active,
		prompt:    compilePrompt(active, agent),
		tools:     NewToolRegistry(),
		timeout:   DefaultDelegationTimeout,
		logger:    logger,
	}

	if tool, found := delegation.BuildDelegationTool(active, agentSlug); found {
		s.tools.Register(tool, s.delegateHandler(delegator))
	}
	return s, nil
}

// SetDelegationTimeout overrides the per-delegation deadline.
func (s *Session) SetDelegationTimeout(d time.Duration) {
	s.timeout = d
}

// SystemPrompt returns the compiled system prompt.
func (s *Session) SystemPrompt() string {
	return s.prompt
}

// Tools returns the session's tool registry.
func (s *Session) Tools() *ToolRegistry {
	return s.tools
}

// compilePrompt assembles the agent's system prompt: base prompt, skills,
// team and agent knowledge, then the behavioral rules section. The base
// prompt itself is never rewritten.
func compilePrompt(active team.ActiveConfiguration, agent team.Agent) string {
	var sb strings.Builder
	sb.WriteString(strings.TrimRight(agent.SystemPrompt, "\n"))

	if skills := formatSkills(agent.Skills); skills != "" {
		sb.WriteString("\n\n")
		sb.WriteString(skills)
	}

	entries := append(append([]team.MindEntry(nil), active.TeamMind...), agent.Mind...)
	if knowledge := mind.FormatMindPrompt(entries); knowledge != "" {
		sb.WriteString("\n\n")
		sb.WriteString(knowledge)
	}

	return rules.CompilePrompt(sb.String(), agent.Rules)
}

func formatSkills(skills []team.Skill) string {
	var sb strings.Builder
	for _, sk := range skills {
		if !sk.Enabled {
			continue
		}
		if sb.Len() == 0 {
			sb.WriteString("## Skills\n")
		}
		if sk.Description != "" {
			fmt.Fprintf(&sb, "- %s: %s\n", sk.Name, sk.Description)
		} else {
			fmt.Fprintf(&sb, "- %s\n", sk.Name)
		}
		if sk.PromptFragment != "" {
			fmt.Fprintf(&sb, "  %s\n", sk.PromptFragment)
		}
	}
	return strings.TrimRight(sb.String(), "\n")
}

// delegateHandler adapts a delegate tool call to the broker: it picks up
// the edge's context template, formats the request content, and blocks
// until the specialist replies or the deadline passes.
func (s *Session) delegateHandler(delegator Delegator) ToolHandler {
	return func(ctx context.Context, args string) (string, error) {
		var p struct {
			Agent   string `json:"agent"`
			Task    string `json:"task"`
			Context string `json:"context"`
		}
		if err := json.Unmarshal([]byte(args), &p); err != nil {
			return "", fmt.Errorf("parse delegate args: %w", err)
		}
		if p.Agent == "" || p.Task == "" {
			return "", fmt.Errorf("delegate requires agent and task")
		}

		// A missing or disabled edge means "send without a template".
		var tmpl string
		if edge, found := delegation.FindDelegationRule(s.active, s.Agent.Slug, p.Agent); found {
			tmpl = edge.ContextTemplate
		}
		content := delegation.FormatDelegationContext(tmpl, p.Task, p.Context)

		s.logger.Info("delegating task",
			zap.String("workspace", s.Workspace),
			zap.String("from", s.Agent.Slug),
			zap.String("to", p.Agent))
		return delegator.Delegate(ctx, s.Workspace, s.Agent.Slug, p.Agent, content, s.timeout)
	}
}
