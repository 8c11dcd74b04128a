package store

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"

	"github.com/crewdesk/crewdesk/internal/deploy"
)

// CreateDeployment inserts a deployment record. The base, customization,
// and active-configuration documents are stored as JSON.
func (s *Store) CreateDeployment(ctx context.Context, d *deploy.Deployment) error {
	base, err := json.Marshal(d.Base)
	if err != nil {
		return fmt.Errorf("marshal base config: %w", err)
	}
	custom, err := json.Marshal(d.Custom)
	if err != nil {
		return fmt.Errorf("marshal customizations: %w", err)
	}
	active, err := json.Marshal(d.Active)
	if err != nil {
		return fmt.Errorf("marshal active config: %w", err)
	}

	var supersedes *string
	if d.Supersedes != "" {
		supersedes = &d.Supersedes
	}
	_, err = s.db.Exec(ctx, `
		INSERT INTO deployments (id, workspace_id, team_id, team_version, base_config,
		                         customizations, active_config, state, supersedes, error, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $11)`,
		d.ID, d.WorkspaceID, d.TeamID, d.TeamVersion, base, custom, active,
		string(d.State), supersedes, d.Error, d.CreatedAt,
	)
	if err != nil {
		return fmt.Errorf("create deployment %s: %w", d.ID, err)
	}
	return nil
}

// SetDeploymentState updates a deployment's lifecycle state.
func (s *Store) SetDeploymentState(ctx context.Context, id string, state deploy.State) error {
	_, err := s.db.Exec(ctx,
		`UPDATE deployments SET state = $1, updated_at = NOW() WHERE id = $2`,
		string(state), id)
	if err != nil {
		return fmt.Errorf("set deployment %s state: %w", id, err)
	}
	return nil
}

// GetDeployment retrieves a deployment by id.
func (s *Store) GetDeployment(ctx context.Context, id string) (*deploy.Deployment, bool, error) {
	d, err := s.scanDeployment(s.db.QueryRow(ctx, deploymentColumns+` FROM deployments WHERE id = $1`, id))
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, fmt.Errorf("get deployment %s: %w", id, err)
	}
	return d, true, nil
}

// ActiveDeployment returns the workspace's newest live (active or paused)
// deployment. Replaced and failed deployments never serve.
func (s *Store) ActiveDeployment(ctx context.Context, workspaceID string) (*deploy.Deployment, bool, error) {
	d, err := s.scanDeployment(s.db.QueryRow(ctx, deploymentColumns+`
		FROM deployments
		WHERE workspace_id = $1 AND state IN ('active', 'paused')
		ORDER BY created_at DESC LIMIT 1`, workspaceID))
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, fmt.Errorf("active deployment for %s: %w", workspaceID, err)
	}
	return d, true, nil
}

// ListDeployments returns all of a workspace's deployments, newest first.
func (s *Store) ListDeployments(ctx context.Context, workspaceID string) ([]*deploy.Deployment, error) {
	rows, err := s.db.Query(ctx, deploymentColumns+`
		FROM deployments WHERE workspace_id = $1 ORDER BY created_at DESC`, workspaceID)
	if err != nil {
		return nil, fmt.Errorf("list deployments for %s: %w", workspaceID, err)
	}
	defer rows.Close()

	var out []*deploy.Deployment
	for rows.Next() {
		d, err := s.scanDeployment(rows)
		if err != nil {
			return nil, fmt.Errorf("scan deployment: %w", err)
		}
		out = append(out, d)
	}
	return out, nil
}

const deploymentColumns = `
	SELECT id, workspace_id, team_id, team_version, base_config, customizations,
	       active_config, state, COALESCE(supersedes::text, ''), error, created_at, updated_at`

func (s *Store) scanDeployment(row pgx.Row) (*deploy.Deployment, error) {
	var (
		d                    deploy.Deployment
		base, custom, active []byte
		state                string
		createdAt, updatedAt time.Time
	)
	err := row.Scan(&d.ID, &d.WorkspaceID, &d.TeamID, &d.TeamVersion,
		&base, &custom, &active, &state, &d.Supersedes, &d.Error, &createdAt, &updatedAt)
	if err != nil {
		return nil, err
	}
	d.State = deploy.State(state)
	d.CreatedAt = createdAt
	d.UpdatedAt = updatedAt
	if err := json.Unmarshal(base, &d.Base); err != nil {
		return nil, fmt.Errorf("unmarshal base config: %w", err)
	}
	if err := json.Unmarshal(custom, &d.Custom); err != nil {
		return nil, fmt.Errorf("unmarshal customizations: %w", err)
	}
	if err := json.Unmarshal(active, &d.Active); err != nil {
		return nil, fmt.Errorf("unmarshal active config: %w", err)
	}
	return &d, nil
}
