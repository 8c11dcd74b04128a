package store

import (
	"context"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
)

// agentChannelPrefix names an agent's dedicated channel from its slug.
const agentChannelPrefix = "agent-"

// AgentChannelName returns the conventional channel name for an agent slug.
func AgentChannelName(slug string) string {
	return agentChannelPrefix + slug
}

// EnsureAgentChannel creates the agent's dedicated channel in a workspace
// if it does not exist, returning the channel id either way.
func (s *Store) EnsureAgentChannel(ctx context.Context, workspaceID, agentSlug string) (string, error) {
	name := AgentChannelName(agentSlug)
	var id string
	err := s.db.QueryRow(ctx, `
		INSERT INTO channels (id, workspace_id, name, is_agent_channel)
		VALUES ($1, $2, $3, TRUE)
		ON CONFLICT (workspace_id, name) DO UPDATE SET is_agent_channel = TRUE
		RETURNING id`,
		uuid.New().String(), workspaceID, name,
	).Scan(&id)
	if err != nil {
		return "", fmt.Errorf("ensure channel %s/%s: %w", workspaceID, name, err)
	}
	return id, nil
}

// ResolveAgentChannel finds the channel named agent-<slug> in a workspace
// and flagged as an agent channel. Absence is reported as found=false,
// not an error: a missing channel means the agent has no deployment.
func (s *Store) ResolveAgentChannel(ctx context.Context, workspaceID, agentSlug string) (string, bool, error) {
	var id string
	err := s.db.QueryRow(ctx, `
		SELECT id FROM channels
		WHERE workspace_id = $1 AND name = $2 AND is_agent_channel`,
		workspaceID, AgentChannelName(agentSlug),
	).Scan(&id)
	if errors.Is(err, pgx.ErrNoRows) {
		return "", false, nil
	}
	if err != nil {
		return "", false, fmt.Errorf("resolve channel %s/%s: %w", workspaceID, agentSlug, err)
	}
	return id, true, nil
}

// EnsureAgentProfile creates the agent's profile in a workspace if it
// does not exist, returning the profile id either way.
func (s *Store) EnsureAgentProfile(ctx context.Context, workspaceID, agentSlug, displayName string) (string, error) {
	var id string
	err := s.db.QueryRow(ctx, `
		INSERT INTO profiles (id, workspace_id, agent_slug, display_name, is_agent)
		VALUES ($1, $2, $3, $4, TRUE)
		ON CONFLICT (workspace_id, agent_slug) DO UPDATE SET display_name = EXCLUDED.display_name
		RETURNING id`,
		uuid.New().String(), workspaceID, agentSlug, displayName,
	).Scan(&id)
	if err != nil {
		return "", fmt.Errorf("ensure profile %s/%s: %w", workspaceID, agentSlug, err)
	}
	return id, nil
}

// ResolveAgentProfile finds the agent profile scoped to a workspace and
// slug. Absence is reported as found=false, not an error.
func (s *Store) ResolveAgentProfile(ctx context.Context, workspaceID, agentSlug string) (string, bool, error) {
	var id string
	err := s.db.QueryRow(ctx, `
		SELECT id FROM profiles
		WHERE workspace_id = $1 AND agent_slug = $2 AND is_agent`,
		workspaceID, agentSlug,
	).Scan(&id)
	if errors.Is(err, pgx.ErrNoRows) {
		return "", false, nil
	}
	if err != nil {
		return "", false, fmt.Errorf("resolve profile %s/%s: %w", workspaceID, agentSlug, err)
	}
	return id, true, nil
}
