package supervisor

import (
	"fmt"

	"metronome/pkg/config"
)

// Action defines what to do when a runner reaches its terminal state.
type Action int

const (
	// ActionIgnore leaves the runner down.
	ActionIgnore Action = iota
	// ActionRestart launches a fresh runner for the role.
	ActionRestart
	// ActionShutdown brings the whole process down (unrecoverable role).
	ActionShutdown
)

// String returns the config-file name of the action.
func (a Action) String() string {
	switch a {
	case ActionIgnore:
		return config.ActionNameIgnore
	case ActionRestart:
		return config.ActionNameRestart
	case ActionShutdown:
		return config.ActionNameShutdown
	default:
		return fmt.Sprintf("action(%d)", int(a))
	}
}

// ParseAction maps a config-file action name to an Action.
func ParseAction(name string) (Action, error) {
	switch name {
	case config.ActionNameIgnore:
		return ActionIgnore, nil
	case config.ActionNameRestart:
		return ActionRestart, nil
	case config.ActionNameShutdown:
		return ActionShutdown, nil
	default:
		return ActionIgnore, fmt.Errorf("unknown restart action %q", name)
	}
}

// RestartPolicy defines how to handle runner exits. Actions are looked up by
// role; the empty key sets the default for roles without an explicit entry.
type RestartPolicy struct {
	OnClean     map[string]Action // Actions when runners close without a failure
	OnFailure   map[string]Action // Actions when runners close after a failure
	MaxAttempts int               // Consecutive restarts per role before giving up (0 = unlimited)
}

// DefaultRestartPolicy returns the standard restart policy: failed runners
// come back, cleanly finished runners stay down.
func DefaultRestartPolicy() RestartPolicy {
	return RestartPolicy{
		OnClean: map[string]Action{
			"": ActionIgnore,
		},
		OnFailure: map[string]Action{
			"": ActionRestart,
		},
		MaxAttempts: config.DefaultMaxAttempts,
	}
}

// PolicyFromConfig builds a restart policy from the config file section.
func PolicyFromConfig(rc config.RestartConfig) (RestartPolicy, error) {
	policy := DefaultRestartPolicy()
	policy.MaxAttempts = rc.MaxAttempts

	for role, name := range rc.OnClean {
		action, err := ParseAction(name)
		if err != nil {
			return RestartPolicy{}, fmt.Errorf("on_clean for role %q: %w", role, err)
		}
		policy.OnClean[role] = action
	}
	for role, name := range rc.OnFailure {
		action, err := ParseAction(name)
		if err != nil {
			return RestartPolicy{}, fmt.Errorf("on_failure for role %q: %w", role, err)
		}
		policy.OnFailure[role] = action
	}

	return policy, nil
}

// ActionFor returns the action for a role's exit. Role-specific entries win
// over the empty-key default; with neither present, failures restart and
// clean exits are left alone.
func (p RestartPolicy) ActionFor(role string, failed bool) Action {
	actions := p.OnClean
	fallback := ActionIgnore
	if failed {
		actions = p.OnFailure
		fallback = ActionRestart
	}

	if action, ok := actions[role]; ok {
		return action
	}
	if action, ok := actions[""]; ok {
		return action
	}
	return fallback
}
