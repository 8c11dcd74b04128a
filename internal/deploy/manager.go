package deploy

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/crewdesk/crewdesk/internal/team"
)

// ErrNoActiveDeployment is returned when a workspace has no deployment in
// the requested state.
var ErrNoActiveDeployment = errors.New("no active deployment")

// Store persists deployments.
type Store interface {
	CreateDeployment(ctx context.Context, d *Deployment) error
	GetDeployment(ctx context.Context, id string) (*Deployment, bool, error)
	ActiveDeployment(ctx context.Context, workspaceID string) (*Deployment, bool, error)
	ListDeployments(ctx context.Context, workspaceID string) ([]*Deployment, error)
	SetDeploymentState(ctx context.Context, id string, state State) error
}

// Provisioner creates the per-agent channels and profiles a deployment's
// agents need for delegation.
type Provisioner interface {
	EnsureAgentChannel(ctx context.Context, workspaceID, agentSlug string) (string, error)
	EnsureAgentProfile(ctx context.Context, workspaceID, agentSlug, displayName string) (string, error)
}

// Manager resolves and activates deployments. Activation supersedes the
// workspace's previous active deployment; resolution failures are
// recorded as failed deployments rather than lost.
type Manager struct {
	store  Store
	prov   Provisioner // optional
	logger *zap.Logger
}

// NewManager creates a deployment manager. prov may be nil when channel
// provisioning is handled elsewhere.
func NewManager(store Store, prov Provisioner, logger *zap.Logger) *Manager {
	return &Manager{store: store, prov: prov, logger: logger}
}

// Activate resolves base against custom for a workspace, persists the
// deployment, and replaces the previously active one. The active
// configuration is recomputed from scratch on every activation.
func (m *Manager) Activate(ctx context.Context, workspaceID string, base team.TeamDefinition, custom team.Customizations) (*Deployment, error) {
	now := time.Now().UTC()
	d := &Deployment{
		ID:          uuid.New().String(),
		WorkspaceID: workspaceID,
		TeamID:      base.ID,
		TeamVersion: base.Version,
		Base:        base,
		Custom:      custom,
		CreatedAt:   now,
		UpdatedAt:   now,
	}

	active, err := team.Resolve(workspaceID, base, custom)
	if err != nil {
		d.State = StateFailed
		d.Error = err.Error()
		if cerr := m.store.CreateDeployment(ctx, d); cerr != nil {
			m.logger.Warn("record failed deployment", zap.Error(cerr))
		}
		return nil, fmt.Errorf("resolve deployment for %s: %w", workspaceID, err)
	}
	d.Active = active
	d.State = StateActive

	prev, found, err := m.store.ActiveDeployment(ctx, workspaceID)
	if err != nil {
		return nil, fmt.Errorf("lookup active deployment: %w", err)
	}
	if found {
		d.Supersedes = prev.ID
	}

	if err := m.provision(ctx, workspaceID, active); err != nil {
		d.State = StateFailed
		d.Error = err.Error()
		if cerr := m.store.CreateDeployment(ctx, d); cerr != nil {
			m.logger.Warn("record failed deployment", zap.Error(cerr))
		}
		return nil, err
	}

	if err := m.store.CreateDeployment(ctx, d); err != nil {
		return nil, fmt.Errorf("persist deployment: %w", err)
	}
	if found {
		if err := Transition(prev.State, StateReplaced); err != nil {
			return nil, err
		}
		if err := m.store.SetDeploymentState(ctx, prev.ID, StateReplaced); err != nil {
			return nil, fmt.Errorf("replace deployment %s: %w", prev.ID, err)
		}
	}

	m.logger.Info("deployment activated",
		zap.String("workspace", workspaceID),
		zap.String("deployment", d.ID),
		zap.String("team", base.ID),
		zap.Int("team_version", base.Version),
		zap.Int("agents", len(active.Agents)))
	return d, nil
}

func (m *Manager) provision(ctx context.Context, workspaceID string, active team.ActiveConfiguration) error {
	if m.prov == nil {
		return nil
	}
	for _, a := range active.Agents {
		if _, err := m.prov.EnsureAgentChannel(ctx, workspaceID, a.Slug); err != nil {
			return fmt.Errorf("provision channel for %s: %w", a.Slug, err)
		}
		if _, err := m.prov.EnsureAgentProfile(ctx, workspaceID, a.Slug, a.Name); err != nil {
			return fmt.Errorf("provision profile for %s: %w", a.Slug, err)
		}
	}
	return nil
}

// Pause suspends the workspace's active deployment.
func (m *Manager) Pause(ctx context.Context, workspaceID string) (*Deployment, error) {
	return m.transitionActive(ctx, workspaceID, StateActive, StatePaused)
}

// Resume reactivates the workspace's paused deployment.
func (m *Manager) Resume(ctx context.Context, workspaceID string) (*Deployment, error) {
	return m.transitionActive(ctx, workspaceID, StatePaused, StateActive)
}

func (m *Manager) transitionActive(ctx context.Context, workspaceID string, from, to State) (*Deployment, error) {
	d, found, err := m.store.ActiveDeployment(ctx, workspaceID)
	if err != nil {
		return nil, err
	}
	if !found || d.State != from {
		return nil, ErrNoActiveDeployment
	}
	if err := Transition(d.State, to); err != nil {
		return nil, err
	}
	if err := m.store.SetDeploymentState(ctx, d.ID, to); err != nil {
		return nil, fmt.Errorf("set deployment %s %s: %w", d.ID, to, err)
	}
	d.State = to
	return d, nil
}

// Rollback replaces the active deployment with the one it superseded.
func (m *Manager) Rollback(ctx context.Context, workspaceID string) (*Deployment, error) {
	cur, found, err := m.store.ActiveDeployment(ctx, workspaceID)
	if err != nil {
		return nil, err
	}
	if !found {
		return nil, ErrNoActiveDeployment
	}
	if cur.Supersedes == "" {
		return nil, fmt.Errorf("deployment %s has nothing to roll back to", cur.ID)
	}
	prev, found, err := m.store.GetDeployment(ctx, cur.Supersedes)
	if err != nil {
		return nil, err
	}
	if !found {
		return nil, fmt.Errorf("superseded deployment %s not found", cur.Supersedes)
	}
	if err := Transition(prev.State, StateActive); err != nil {
		return nil, err
	}
	if err := m.store.SetDeploymentState(ctx, cur.ID, StateReplaced); err != nil {
		return nil, fmt.Errorf("retire deployment %s: %w", cur.ID, err)
	}
	if err := m.store.SetDeploymentState(ctx, prev.ID, StateActive); err != nil {
		return nil, fmt.Errorf("restore deployment %s: %w", prev.ID, err)
	}
	prev.State = StateActive
	m.logger.Info("deployment rolled back",
		zap.String("workspace", workspaceID),
		zap.String("from", cur.ID),
		zap.String("to", prev.ID))
	return prev, nil
}

// List returns the workspace's deployment history, newest first.
func (m *Manager) List(ctx context.Context, workspaceID string) ([]*Deployment, error) {
	return m.store.ListDeployments(ctx, workspaceID)
}

// ActiveConfig returns the workspace's live configuration. Paused and
// replaced deployments do not serve configuration.
func (m *Manager) ActiveConfig(ctx context.Context, workspaceID string) (team.ActiveConfiguration, error) {
	d, found, err := m.store.ActiveDeployment(ctx, workspaceID)
	if err != nil {
		return team.ActiveConfiguration{}, err
	}
	if !found || d.State != StateActive {
		return team.ActiveConfiguration{}, ErrNoActiveDeployment
	}
	return d.Active, nil
}
