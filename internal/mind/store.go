// Package mind stores workspace knowledge entries and serves semantic
// search over them for prompt assembly. Entries added here become a
// workspace's AddedMind at deployment time.
package mind

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/neo4j/neo4j-go-driver/v5/neo4j"
	"go.uber.org/zap"

	"github.com/crewdesk/crewdesk/internal/team"
)

// Store handles Neo4j persistence of mind entries.
type Store struct {
	driver neo4j.DriverWithContext
	logger *zap.Logger
}

// NewStore creates a Neo4j mind store.
func NewStore(uri, user, password string, logger *zap.Logger) (*Store, error) {
	driver, err := neo4j.NewDriverWithContext(uri, neo4j.BasicAuth(user, password, ""))
	if err != nil {
		return nil, fmt.Errorf("create neo4j driver: %w", err)
	}
	return &Store{driver: driver, logger: logger}, nil
}

// Close shuts down the Neo4j driver.
func (s *Store) Close(ctx context.Context) error {
	return s.driver.Close(ctx)
}

// Ping verifies the Neo4j connection.
func (s *Store) Ping(ctx context.Context) error {
	return s.driver.VerifyConnectivity(ctx)
}

// AddEntry stores a tenant mind entry for a workspace.
func (s *Store) AddEntry(ctx context.Context, workspaceID string, e team.MindEntry) (team.MindEntry, error) {
	if e.ID == "" {
		e.ID = uuid.New().String()
	}
	if e.Source == "" {
		e.Source = "tenant"
	}

	session := s.driver.NewSession(ctx, neo4j.SessionConfig{})
	defer session.Close(ctx)

	_, err := session.Run(ctx,
		`CREATE (m:MindEntry {
			id: $id, workspace_id: $workspaceId,
			title: $title, content: $content,
			source: $source, created_at: datetime($createdAt)
		})`,
		map[string]interface{}{
			"id":          e.ID,
			"workspaceId": workspaceID,
			"title":       e.Title,
			"content":     e.Content,
			"source":      e.Source,
			"createdAt":   time.Now().UTC().Format(time.RFC3339),
		})
	if err != nil {
		return team.MindEntry{}, fmt.Errorf("add mind entry: %w", err)
	}
	return e, nil
}

// WorkspaceEntries returns all mind entries a workspace has added.
func (s *Store) WorkspaceEntries(ctx context.Context, workspaceID string) ([]team.MindEntry, error) {
	session := s.driver.NewSession(ctx, neo4j.SessionConfig{})
	defer session.Close(ctx)

	result, err := session.Run(ctx,
		`MATCH (m:MindEntry {workspace_id: $workspaceId})
		 RETURN m.id, m.title, m.content, m.source
		 ORDER BY m.created_at`,
		map[string]interface{}{"workspaceId": workspaceID})
	if err != nil {
		return nil, fmt.Errorf("list mind entries: %w", err)
	}

	var entries []team.MindEntry
	for result.Next(ctx) {
		rec := result.Record()
		id, _ := rec.Get("m.id")
		title, _ := rec.Get("m.title")
		content, _ := rec.Get("m.content")
		source, _ := rec.Get("m.source")
		entries = append(entries, team.MindEntry{
			ID:      asString(id),
			Title:   asString(title),
			Content: asString(content),
			Source:  asString(source),
		})
	}
	if err := result.Err(); err != nil {
		return nil, fmt.Errorf("read mind entries: %w", err)
	}
	return entries, nil
}

// DeleteEntry removes one mind entry from a workspace.
func (s *Store) DeleteEntry(ctx context.Context, workspaceID, entryID string) error {
	session := s.driver.NewSession(ctx, neo4j.SessionConfig{})
	defer session.Close(ctx)

	_, err := session.Run(ctx,
		`MATCH (m:MindEntry {workspace_id: $workspaceId, id: $id}) DELETE m`,
		map[string]interface{}{"workspaceId": workspaceID, "id": entryID})
	if err != nil {
		return fmt.Errorf("delete mind entry %s: %w", entryID, err)
	}
	return nil
}

func asString(v interface{}) string {
	s, _ := v.(string)
	return s
}
