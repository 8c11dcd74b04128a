// Package deploy tracks team deployments per workspace: the (base,
// customizations, active configuration) triple, its lifecycle, and the
// chain of superseded deployments for audit and rollback.
package deploy

import (
	"fmt"
	"time"

	"github.com/crewdesk/crewdesk/internal/team"
)

// State is the lifecycle of a deployment.
type State string

const (
	StateActive   State = "active"
	StatePaused   State = "paused"
	StateReplaced State = "replaced"
	StateFailed   State = "failed"
)

// Deployment wraps a resolved configuration with its inputs and state.
// Supersedes back-references the deployment this one replaced.
type Deployment struct {
	ID          string                   `json:"id"`
	WorkspaceID string                   `json:"workspace_id"`
	TeamID      string                   `json:"team_id"`
	TeamVersion int                      `json:"team_version"`
	Base        team.TeamDefinition      `json:"base"`
	Custom      team.Customizations      `json:"customizations"`
	Active      team.ActiveConfiguration `json:"active_config"`
	State       State                    `json:"state"`
	Supersedes  string                   `json:"supersedes,omitempty"`
	Error       string                   `json:"error,omitempty"`
	CreatedAt   time.Time                `json:"created_at"`
	UpdatedAt   time.Time                `json:"updated_at"`
}

// validTransitions defines allowed state transitions. Replaced → active
// exists only to serve rollback.
var validTransitions = map[State][]State{
	StateActive:   {StatePaused, StateReplaced, StateFailed},
	StatePaused:   {StateActive, StateReplaced},
	StateReplaced: {StateActive},
}

// Transition returns nil if from→to is a legal transition.
func Transition(from, to State) error {
	for _, s := range validTransitions[from] {
		if s == to {
			return nil
		}
	}
	return fmt.Errorf("invalid deployment transition %q → %q", from, to)
}
