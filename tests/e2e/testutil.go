package e2e

import (
	"context"
	"fmt"

	"github.com/testcontainers/testcontainers-go"
	tcneo4j "github.com/testcontainers/testcontainers-go/modules/neo4j"
	tcpg "github.com/testcontainers/testcontainers-go/modules/postgres"
	tcredis "github.com/testcontainers/testcontainers-go/modules/redis"
	"go.uber.org/zap"

	"github.com/crewdesk/crewdesk/internal/feed"
	"github.com/crewdesk/crewdesk/internal/mind"
	pgstore "github.com/crewdesk/crewdesk/internal/store"
	"github.com/crewdesk/crewdesk/internal/team"
)

// Suppress unused import warning for testcontainers base package.
var _ = testcontainers.GenericContainerRequest{}

// Package-level shared state — set by TestMain, used by all subtests.
var (
	testLogger *zap.Logger
	testStore  *pgstore.Store
	testFeed   *feed.Feed
	testMind   *mind.Store
)

// startNeo4j starts a Neo4j testcontainer, returns URI + cleanup func.
func startNeo4j(ctx context.Context) (string, func(), error) {
	container, err := tcneo4j.Run(ctx, "neo4j:5-community",
		tcneo4j.WithoutAuthentication(),
	)
	if err != nil {
		return "", nil, fmt.Errorf("start neo4j: %w", err)
	}
	uri, err := container.BoltUrl(ctx)
	if err != nil {
		container.Terminate(ctx)
		return "", nil, fmt.Errorf("neo4j bolt url: %w", err)
	}
	cleanup := func() { container.Terminate(ctx) }
	return uri, cleanup, nil
}

// startPostgres starts a PostgreSQL testcontainer, returns DSN + cleanup func.
func startPostgres(ctx context.Context) (string, func(), error) {
	container, err := tcpg.Run(ctx, "postgres:16-alpine",
		tcpg.WithDatabase("crewdesk_test"),
		tcpg.WithUsername("test"),
		tcpg.WithPassword("test"),
		tcpg.BasicWaitStrategies(),
	)
	if err != nil {
		return "", nil, fmt.Errorf("start postgres: %w", err)
	}
	dsn, err := container.ConnectionString(ctx, "sslmode=disable")
	if err != nil {
		container.Terminate(ctx)
		return "", nil, fmt.Errorf("pg connection string: %w", err)
	}
	cleanup := func() { container.Terminate(ctx) }
	return dsn, cleanup, nil
}

// startRedis starts a Redis testcontainer, returns URL + cleanup func.
func startRedis(ctx context.Context) (string, func(), error) {
	container, err := tcredis.Run(ctx, "redis:7-alpine")
	if err != nil {
		return "", nil, fmt.Errorf("start redis: %w", err)
	}
	endpoint, err := container.Endpoint(ctx, "")
	if err != nil {
		container.Terminate(ctx)
		return "", nil, fmt.Errorf("redis endpoint: %w", err)
	}
	url := "redis://" + endpoint
	cleanup := func() { container.Terminate(ctx) }
	return url, cleanup, nil
}

// e2eTeam builds a two-agent team: a dispatcher head that can delegate
// to a finance specialist.
func e2eTeam() team.TeamDefinition {
	return team.TeamDefinition{
		ID:          "team-e2e",
		Version:     1,
		Name:        "E2E Crew",
		Slug:        "e2e-crew",
		HeadAgentID: "a1",
		Agents: []team.Agent{
			{
				ID: "a1", Slug: "dispatcher", Name: "Dispatcher", Enabled: true,
				SystemPrompt: "You coordinate the team.",
			},
			{
				ID: "a2", Slug: "finance", Name: "Finance", Enabled: true,
				Description:  "Handles invoices and billing",
				SystemPrompt: "You handle finance tasks.",
			},
		},
		Delegations: []team.DelegationEdge{
			{ID: "d1", From: "dispatcher", To: "finance", Enabled: true},
		},
	}
}
