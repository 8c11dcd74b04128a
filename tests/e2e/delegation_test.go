package e2e

import (
	"context"
	"errors"
	"fmt"
	"os"
	"testing"
	"time"

	"go.uber.org/zap"

	"github.com/crewdesk/crewdesk/internal/delegation"
	"github.com/crewdesk/crewdesk/internal/deploy"
	"github.com/crewdesk/crewdesk/internal/feed"
	"github.com/crewdesk/crewdesk/internal/mind"
	pgstore "github.com/crewdesk/crewdesk/internal/store"
	"github.com/crewdesk/crewdesk/internal/team"
)

func TestMain(m *testing.M) {
	ctx := context.Background()
	testLogger, _ = zap.NewDevelopment()

	// 1. Start PostgreSQL
	pgDSN, pgCleanup, err := startPostgres(ctx)
	if err != nil {
		fmt.Fprintf(os.Stderr, "postgres: %v\n", err)
		os.Exit(1)
	}
	defer pgCleanup()

	testStore, err = pgstore.New(pgDSN, testLogger)
	if err != nil {
		fmt.Fprintf(os.Stderr, "pg store: %v\n", err)
		os.Exit(1)
	}
	defer testStore.Close()

	if err := testStore.Migrate(ctx, "../../migrations"); err != nil {
		fmt.Fprintf(os.Stderr, "migrate: %v\n", err)
		os.Exit(1)
	}

	// 2. Start Redis
	redisURL, redisCleanup, err := startRedis(ctx)
	if err != nil {
		fmt.Fprintf(os.Stderr, "redis: %v\n", err)
		os.Exit(1)
	}
	defer redisCleanup()

	testFeed, err = feed.New(redisURL, testLogger)
	if err != nil {
		fmt.Fprintf(os.Stderr, "feed: %v\n", err)
		os.Exit(1)
	}
	defer testFeed.Close()

	// 3. Start Neo4j
	neo4jURI, neo4jCleanup, err := startNeo4j(ctx)
	if err != nil {
		fmt.Fprintf(os.Stderr, "neo4j: %v\n", err)
		os.Exit(1)
	}
	defer neo4jCleanup()

	testMind, err = mind.NewStore(neo4jURI, "", "", testLogger)
	if err != nil {
		fmt.Fprintf(os.Stderr, "mind store: %v\n", err)
		os.Exit(1)
	}
	defer testMind.Close(ctx)

	os.Exit(m.Run())
}

func TestDeploymentLifecycle(t *testing.T) {
	ctx := context.Background()
	mgr := deploy.NewManager(testStore, testStore, testLogger)
	const ws = "ws-lifecycle"

	d, err := mgr.Activate(ctx, ws, e2eTeam(), team.Customizations{})
	if err != nil {
		t.Fatalf("activate: %v", err)
	}
	if d.State != deploy.StateActive {
		t.Fatalf("state %s, want active", d.State)
	}

	// Activation provisions a channel and profile per agent.
	for _, slug := range []string{"dispatcher", "finance"} {
		if _, found, err := testStore.ResolveAgentChannel(ctx, ws, slug); err != nil || !found {
			t.Errorf("channel for %s: found=%v err=%v", slug, found, err)
		}
		if _, found, err := testStore.ResolveAgentProfile(ctx, ws, slug); err != nil || !found {
			t.Errorf("profile for %s: found=%v err=%v", slug, found, err)
		}
	}

	cfg, err := mgr.ActiveConfig(ctx, ws)
	if err != nil {
		t.Fatalf("active config: %v", err)
	}
	if len(cfg.Agents) != 2 {
		t.Errorf("got %d agents, want 2", len(cfg.Agents))
	}

	// A re-activation with a disabled specialist supersedes the first.
	d2, err := mgr.Activate(ctx, ws, e2eTeam(), team.Customizations{
		DisabledAgents: []string{"finance"},
	})
	if err != nil {
		t.Fatalf("re-activate: %v", err)
	}
	if d2.Supersedes != d.ID {
		t.Errorf("supersedes %s, want %s", d2.Supersedes, d.ID)
	}
	cfg, err = mgr.ActiveConfig(ctx, ws)
	if err != nil {
		t.Fatalf("active config: %v", err)
	}
	if len(cfg.Agents) != 1 || len(cfg.Delegations) != 0 {
		t.Errorf("resolved config wrong: %d agents, %d delegations",
			len(cfg.Agents), len(cfg.Delegations))
	}

	// Rollback restores the original configuration.
	if _, err := mgr.Rollback(ctx, ws); err != nil {
		t.Fatalf("rollback: %v", err)
	}
	cfg, err = mgr.ActiveConfig(ctx, ws)
	if err != nil {
		t.Fatalf("active config after rollback: %v", err)
	}
	if len(cfg.Agents) != 2 {
		t.Errorf("rollback served %d agents, want 2", len(cfg.Agents))
	}
}

func TestDelegationRoundTrip(t *testing.T) {
	ctx := context.Background()
	mgr := deploy.NewManager(testStore, testStore, testLogger)
	broker := delegation.NewBroker(testStore, testFeed, testStore, testLogger)
	const ws = "ws-roundtrip"

	if _, err := mgr.Activate(ctx, ws, e2eTeam(), team.Customizations{}); err != nil {
		t.Fatalf("activate: %v", err)
	}

	channelID, _, err := testStore.ResolveAgentChannel(ctx, ws, "finance")
	if err != nil {
		t.Fatalf("resolve channel: %v", err)
	}
	financeProfile, _, err := testStore.ResolveAgentProfile(ctx, ws, "finance")
	if err != nil {
		t.Fatalf("resolve profile: %v", err)
	}

	// Responder: watch the specialist's channel and answer the first
	// request that arrives.
	respCtx, cancel := context.WithCancel(ctx)
	defer cancel()
	requests := testFeed.Subscribe(respCtx, channelID)
	go func() {
		for msg := range requests {
			if msg.Kind != delegation.KindRequest {
				continue
			}
			_ = broker.PostResponse(respCtx, channelID, financeProfile,
				"invoice 42 sent", msg.RequestID)
			return
		}
	}()

	reply, err := broker.Delegate(ctx, ws, "dispatcher", "finance",
		"send invoice 42", 30*time.Second)
	if err != nil {
		t.Fatalf("delegate: %v", err)
	}
	if reply != "invoice 42 sent" {
		t.Errorf("reply %q", reply)
	}

	// The log keeps the full exchange: the request is marked completed
	// and the response carries the same correlation id.
	msgs, err := testStore.GetChannelMessages(ctx, channelID, 0)
	if err != nil {
		t.Fatalf("list messages: %v", err)
	}
	var req, resp *delegation.Message
	for _, m := range msgs {
		switch m.Kind {
		case delegation.KindRequest:
			req = m
		case delegation.KindResponse:
			resp = m
		}
	}
	if req == nil || resp == nil {
		t.Fatalf("incomplete exchange: %d messages", len(msgs))
	}
	if req.Status != delegation.StatusCompleted {
		t.Errorf("request status %s, want completed", req.Status)
	}
	if resp.RequestID != req.RequestID {
		t.Errorf("correlation broken: %s vs %s", resp.RequestID, req.RequestID)
	}
}

func TestCallerSuppliedRequestID(t *testing.T) {
	ctx := context.Background()
	mgr := deploy.NewManager(testStore, testStore, testLogger)
	broker := delegation.NewBroker(testStore, testFeed, testStore, testLogger)
	const ws = "ws-custom-id"

	if _, err := mgr.Activate(ctx, ws, e2eTeam(), team.Customizations{}); err != nil {
		t.Fatalf("activate: %v", err)
	}
	channelID, _, err := testStore.ResolveAgentChannel(ctx, ws, "finance")
	if err != nil {
		t.Fatalf("resolve channel: %v", err)
	}
	dispatcherProfile, _, err := testStore.ResolveAgentProfile(ctx, ws, "dispatcher")
	if err != nil {
		t.Fatalf("resolve profile: %v", err)
	}
	financeProfile, _, err := testStore.ResolveAgentProfile(ctx, ws, "finance")
	if err != nil {
		t.Fatalf("resolve profile: %v", err)
	}

	// Correlation ids are opaque: a caller-chosen id that is not a UUID
	// must round-trip through the log.
	const requestID = "crm-ticket-8841"

	respCtx, cancel := context.WithCancel(ctx)
	defer cancel()
	requests := testFeed.Subscribe(respCtx, channelID)
	go func() {
		for msg := range requests {
			if msg.Kind != delegation.KindRequest {
				continue
			}
			_ = broker.PostResponse(respCtx, channelID, financeProfile,
				"ticket resolved", msg.RequestID)
			return
		}
	}()

	type result struct {
		reply string
		err   error
	}
	done := make(chan result, 1)
	go func() {
		reply, _, err := broker.AwaitResponse(ctx, channelID, requestID, 30*time.Second)
		done <- result{reply, err}
	}()
	// Let both stream subscriptions attach before the request lands.
	time.Sleep(500 * time.Millisecond)

	if err := broker.PostDelegationRequest(ctx, channelID, dispatcherProfile,
		"resolve crm ticket", requestID); err != nil {
		t.Fatalf("post request: %v", err)
	}

	res := <-done
	if res.err != nil {
		t.Fatalf("await: %v", res.err)
	}
	if res.reply != "ticket resolved" {
		t.Errorf("reply %q", res.reply)
	}

	msgs, err := testStore.GetChannelMessages(ctx, channelID, 0)
	if err != nil {
		t.Fatalf("list messages: %v", err)
	}
	var req *delegation.Message
	for _, m := range msgs {
		if m.Kind == delegation.KindRequest {
			req = m
		}
	}
	if req == nil {
		t.Fatal("request not persisted")
	}
	if req.RequestID != requestID {
		t.Errorf("request id %q, want %q", req.RequestID, requestID)
	}
	if req.Status != delegation.StatusCompleted {
		t.Errorf("request status %s, want completed", req.Status)
	}
}

func TestDelegationTimeoutPersisted(t *testing.T) {
	ctx := context.Background()
	mgr := deploy.NewManager(testStore, testStore, testLogger)
	broker := delegation.NewBroker(testStore, testFeed, testStore, testLogger)
	const ws = "ws-timeout"

	if _, err := mgr.Activate(ctx, ws, e2eTeam(), team.Customizations{}); err != nil {
		t.Fatalf("activate: %v", err)
	}

	_, err := broker.Delegate(ctx, ws, "dispatcher", "finance",
		"no one is listening", 2*time.Second)
	var terr *delegation.TimeoutError
	if !errors.As(err, &terr) {
		t.Fatalf("got %v, want TimeoutError", err)
	}

	channelID, _, err := testStore.ResolveAgentChannel(ctx, ws, "finance")
	if err != nil {
		t.Fatalf("resolve channel: %v", err)
	}
	msgs, err := testStore.GetChannelMessages(ctx, channelID, 0)
	if err != nil {
		t.Fatalf("list messages: %v", err)
	}
	if len(msgs) != 1 {
		t.Fatalf("got %d messages, want 1", len(msgs))
	}
	if msgs[0].Status != delegation.StatusTimeout {
		t.Errorf("request status %s, want timeout", msgs[0].Status)
	}
}

func TestDelegateToUnknownAgent(t *testing.T) {
	ctx := context.Background()
	mgr := deploy.NewManager(testStore, testStore, testLogger)
	broker := delegation.NewBroker(testStore, testFeed, testStore, testLogger)
	const ws = "ws-unknown"

	if _, err := mgr.Activate(ctx, ws, e2eTeam(), team.Customizations{}); err != nil {
		t.Fatalf("activate: %v", err)
	}

	_, err := broker.Delegate(ctx, ws, "dispatcher", "ghost", "hello", time.Second)
	if !errors.Is(err, delegation.ErrUnavailable) {
		t.Errorf("got %v, want ErrUnavailable", err)
	}
}

func TestMindStoreRoundTrip(t *testing.T) {
	ctx := context.Background()
	const ws = "ws-mind"

	saved, err := testMind.AddEntry(ctx, ws, team.MindEntry{
		Title:   "billing",
		Content: "Invoices are net-30.",
		Source:  "tenant",
	})
	if err != nil {
		t.Fatalf("add entry: %v", err)
	}
	if saved.ID == "" {
		t.Fatal("entry id not assigned")
	}

	entries, err := testMind.WorkspaceEntries(ctx, ws)
	if err != nil {
		t.Fatalf("list entries: %v", err)
	}
	if len(entries) != 1 || entries[0].Content != "Invoices are net-30." {
		t.Fatalf("entries %+v", entries)
	}

	if err := testMind.DeleteEntry(ctx, ws, saved.ID); err != nil {
		t.Fatalf("delete entry: %v", err)
	}
	entries, err = testMind.WorkspaceEntries(ctx, ws)
	if err != nil {
		t.Fatalf("list entries: %v", err)
	}
	if len(entries) != 0 {
		t.Errorf("entry not deleted: %+v", entries)
	}
}
