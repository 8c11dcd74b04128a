package runtime

import (
	"context"
	"strings"
	"testing"
	"time"

	"go.uber.org/zap"

	"github.com/crewdesk/crewdesk/internal/delegation"
	"github.com/crewdesk/crewdesk/internal/team"
)

type recordingDelegator struct {
	workspace, from, to, content string
	reply                        string
	err                          error
}

func (d *recordingDelegator) Delegate(_ context.Context, workspaceID, fromSlug, toSlug, content string, _ time.Duration) (string, error) {
	d.workspace, d.from, d.to, d.content = workspaceID, fromSlug, toSlug, content
	return d.reply, d.err
}

func sessionActive() team.ActiveConfiguration {
	prio := 10
	return team.ActiveConfiguration{
		Workspace:   "ws-1",
		TeamID:      "team-1",
		HeadAgentID: "a1",
		Agents: []team.Agent{
			{
				ID: "a1", Slug: "dispatcher", Name: "Dispatcher", Enabled: true,
				SystemPrompt: "You coordinate the team.",
				Skills: []team.Skill{
					{Name: "triage", Description: "Classify incoming work", Enabled: true},
					{Name: "hidden", Enabled: false},
				},
				Rules: []team.Rule{
					{Type: team.RuleAlways, Content: "Be concise", Priority: &prio, Enabled: true},
				},
			},
			{ID: "a2", Slug: "finance", Name: "Finance", Description: "Handles invoices", Enabled: true},
		},
		Delegations: []team.DelegationEdge{
			{ID: "d1", From: "dispatcher", To: "finance",
				ContextTemplate: "Request from dispatch: {task}\nNotes: {context}", Enabled: true},
		},
		TeamMind: []team.MindEntry{{Content: "Invoices are net-30.", Source: "base"}},
	}
}

func TestNewSessionCompilesPrompt(t *testing.T) {
	s, err := NewSession(sessionActive(), "dispatcher", &recordingDelegator{}, zap.NewNop())
	if err != nil {
		t.Fatalf("new session: %v", err)
	}

	prompt := s.SystemPrompt()
	if !strings.HasPrefix(prompt, "You coordinate the team.") {
		t.Errorf("base prompt not first:\n%s", prompt)
	}
	for _, want := range []string{"- triage: Classify incoming work", "Invoices are net-30.", "- Be concise"} {
		if !strings.Contains(prompt, want) {
			t.Errorf("prompt missing %q:\n%s", want, prompt)
		}
	}
	if strings.Contains(prompt, "hidden") {
		t.Errorf("disabled skill leaked into prompt:\n%s", prompt)
	}
}

func TestNewSessionRegistersDelegateTool(t *testing.T) {
	s, err := NewSession(sessionActive(), "dispatcher", &recordingDelegator{}, zap.NewNop())
	if err != nil {
		t.Fatalf("new session: %v", err)
	}
	if !s.Tools().Has(delegation.DelegateToolName) {
		t.Error("head agent must carry the delegate tool")
	}

	// A specialist with no outgoing edges has no delegation capability.
	s2, err := NewSession(sessionActive(), "finance", &recordingDelegator{}, zap.NewNop())
	if err != nil {
		t.Fatalf("new session: %v", err)
	}
	if s2.Tools().Has(delegation.DelegateToolName) {
		t.Error("agent without edges must not carry the delegate tool")
	}
	if len(s2.Tools().Definitions()) != 0 {
		t.Errorf("unexpected tools: %+v", s2.Tools().Definitions())
	}
}

func TestSessionDelegateToolAppliesTemplate(t *testing.T) {
	del := &recordingDelegator{reply: "invoice sent"}
	s, err := NewSession(sessionActive(), "dispatcher", del, zap.NewNop())
	if err != nil {
		t.Fatalf("new session: %v", err)
	}

	out, err := s.Tools().Execute(context.Background(), delegation.DelegateToolName,
		`{"agent":"finance","task":"send invoice 42","context":"customer is waiting"}`)
	if err != nil {
		t.Fatalf("execute: %v", err)
	}
	if out != "invoice sent" {
		t.Errorf("got %q", out)
	}
	if del.workspace != "ws-1" || del.from != "dispatcher" || del.to != "finance" {
		t.Errorf("delegated as %s/%s→%s", del.workspace, del.from, del.to)
	}
	want := "Request from dispatch: send invoice 42\nNotes: customer is waiting"
	if del.content != want {
		t.Errorf("content %q, want %q", del.content, want)
	}
}

func TestSessionDelegateToolValidatesArgs(t *testing.T) {
	s, err := NewSession(sessionActive(), "dispatcher", &recordingDelegator{}, zap.NewNop())
	if err != nil {
		t.Fatalf("new session: %v", err)
	}
	if _, err := s.Tools().Execute(context.Background(), delegation.DelegateToolName, `{"agent":"finance"}`); err == nil {
		t.Error("missing task must fail")
	}
	if _, err := s.Tools().Execute(context.Background(), delegation.DelegateToolName, `not json`); err == nil {
		t.Error("malformed args must fail")
	}
}

func TestNewSessionUnknownAgent(t *testing.T) {
	if _, err := NewSession(sessionActive(), "ghost", &recordingDelegator{}, zap.NewNop()); err == nil {
		t.Error("unknown agent must fail")
	}
}
