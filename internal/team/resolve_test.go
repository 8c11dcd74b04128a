package team

import (
	"encoding/json"
	"errors"
	"reflect"
	"testing"
)

func strPtr(s string) *string { return &s }

func testBase() TeamDefinition {
	return TeamDefinition{
		ID:          "team-1",
		Version:     3,
		Name:        "Support Crew",
		Slug:        "support-crew",
		HeadAgentID: "a-head",
		Agents: []Agent{
			{ID: "a-head", Slug: "dispatcher", Name: "Dispatcher", Enabled: true, SystemPrompt: "You dispatch."},
			{ID: "a-fin", Slug: "finance", Name: "Finance", Description: "Handles invoices", Enabled: true},
			{ID: "a-crm", Slug: "crm", Name: "CRM", Description: "Handles contacts", Enabled: true},
		},
		Delegations: []DelegationEdge{
			{ID: "d1", From: "dispatcher", To: "finance", Condition: "billing questions", Enabled: true},
			{ID: "d2", From: "dispatcher", To: "crm", Enabled: true},
		},
		TeamMind: []MindEntry{{ID: "m1", Content: "Office hours are 9-5."}},
	}
}

func TestResolveIdempotent(t *testing.T) {
	base := testBase()
	custom := Customizations{
		DisabledAgents: []string{"crm"},
		AddedMind:      []MindEntry{{ID: "m2", Content: "Tenant fact."}},
		AgentOverrides: map[string]AgentOverride{
			"finance": {Name: strPtr("Billing Desk")},
		},
	}

	baseBefore, _ := json.Marshal(base)
	customBefore, _ := json.Marshal(custom)

	first, err := Resolve("ws-1", base, custom)
	if err != nil {
		t.Fatalf("resolve: %v", err)
	}
	second, err := Resolve("ws-1", base, custom)
	if err != nil {
		t.Fatalf("resolve again: %v", err)
	}

	// ResolvedAt is the only field allowed to differ between calls.
	first.ResolvedAt = second.ResolvedAt
	if !reflect.DeepEqual(first, second) {
		t.Errorf("repeated resolve differs:\nfirst:  %+v\nsecond: %+v", first, second)
	}

	baseAfter, _ := json.Marshal(base)
	customAfter, _ := json.Marshal(custom)
	if string(baseBefore) != string(baseAfter) {
		t.Error("base definition mutated by Resolve")
	}
	if string(customBefore) != string(customAfter) {
		t.Error("customizations mutated by Resolve")
	}
}

func TestResolveDisablementRemovesDanglingEdges(t *testing.T) {
	base := testBase()
	custom := Customizations{DisabledAgents: []string{"finance"}}

	cfg, err := Resolve("ws-1", base, custom)
	if err != nil {
		t.Fatalf("resolve: %v", err)
	}

	for _, e := range cfg.Delegations {
		if e.From == "finance" || e.To == "finance" {
			t.Errorf("edge %s references disabled agent finance", e.ID)
		}
	}
	if len(cfg.Delegations) != 1 || cfg.Delegations[0].ID != "d2" {
		t.Errorf("got delegations %+v, want only d2", cfg.Delegations)
	}
	if _, ok := cfg.AgentBySlug("finance"); ok {
		t.Error("disabled agent finance survived resolution")
	}
}

func TestResolveDeduplicatesEdges(t *testing.T) {
	base := testBase()
	base.Delegations = append(base.Delegations,
		DelegationEdge{ID: "d1-dup", From: "dispatcher", To: "finance", Enabled: true})

	cfg, err := Resolve("ws-1", base, Customizations{})
	if err != nil {
		t.Fatalf("resolve: %v", err)
	}

	count := 0
	for _, e := range cfg.Delegations {
		if e.From == "dispatcher" && e.To == "finance" {
			count++
		}
	}
	if count != 1 {
		t.Errorf("got %d dispatcher→finance edges, want 1", count)
	}
}

func TestResolveOverrideIsolation(t *testing.T) {
	base := testBase()

	cfgA, err := Resolve("ws-a", base, Customizations{
		AgentOverrides: map[string]AgentOverride{
			"finance": {Name: strPtr("Tenant A Billing"), Model: strPtr("gpt-4o")},
		},
	})
	if err != nil {
		t.Fatalf("resolve ws-a: %v", err)
	}
	cfgB, err := Resolve("ws-b", base, Customizations{})
	if err != nil {
		t.Fatalf("resolve ws-b: %v", err)
	}

	agentA, _ := cfgA.AgentBySlug("finance")
	agentB, _ := cfgB.AgentBySlug("finance")
	if agentA.Name != "Tenant A Billing" {
		t.Errorf("ws-a override not applied: %q", agentA.Name)
	}
	if agentB.Name != "Finance" {
		t.Errorf("ws-a override leaked into ws-b: %q", agentB.Name)
	}
	if orig, _ := base.AgentBySlug("finance"); orig.Name != "Finance" {
		t.Errorf("override leaked into base: %q", orig.Name)
	}

	// Absent override fields keep base values.
	if agentA.Description != "Handles invoices" {
		t.Errorf("untouched field changed: %q", agentA.Description)
	}
}

func TestResolveMindOrdering(t *testing.T) {
	base := testBase()
	custom := Customizations{
		AddedMind: []MindEntry{{ID: "m2", Content: "Tenant prefers email."}},
	}

	cfg, err := Resolve("ws-1", base, custom)
	if err != nil {
		t.Fatalf("resolve: %v", err)
	}
	if len(cfg.TeamMind) != 2 {
		t.Fatalf("got %d mind entries, want 2", len(cfg.TeamMind))
	}
	if cfg.TeamMind[0].ID != "m1" || cfg.TeamMind[0].Source != "base" {
		t.Errorf("base entry first, got %+v", cfg.TeamMind[0])
	}
	if cfg.TeamMind[1].ID != "m2" || cfg.TeamMind[1].Source != "tenant" {
		t.Errorf("tenant entry second and tagged, got %+v", cfg.TeamMind[1])
	}
}

func TestResolveAllAgentsDisabled(t *testing.T) {
	base := testBase()
	custom := Customizations{DisabledAgents: []string{"dispatcher", "finance", "crm"}}

	cfg, err := Resolve("ws-1", base, custom)
	if err != nil {
		t.Fatalf("degenerate case must still resolve: %v", err)
	}
	if len(cfg.Agents) != 0 || len(cfg.Delegations) != 0 {
		t.Errorf("expected empty config, got %d agents, %d delegations",
			len(cfg.Agents), len(cfg.Delegations))
	}
}

func TestResolveRejectsUnknownOverrideTarget(t *testing.T) {
	base := testBase()
	custom := Customizations{
		AgentOverrides: map[string]AgentOverride{"ghost": {Name: strPtr("x")}},
	}

	_, err := Resolve("ws-1", base, custom)
	var verr *ValidationError
	if !errors.As(err, &verr) {
		t.Fatalf("got %v, want ValidationError", err)
	}
}

func TestResolveRejectsDuplicateSlugs(t *testing.T) {
	base := testBase()
	base.Agents = append(base.Agents, Agent{ID: "a-dup", Slug: "finance", Enabled: true})

	_, err := Resolve("ws-1", base, Customizations{})
	var verr *ValidationError
	if !errors.As(err, &verr) {
		t.Fatalf("got %v, want ValidationError", err)
	}
}
