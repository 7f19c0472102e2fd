package agent

import (
	"errors"
	"fmt"
	"strings"
)

// Composite treats several agents as one so a single runner can drive them
// in lockstep. Members start in order, work in order every cycle, and close
// together; the composite's work count is the sum of its members'.
type Composite struct {
	role   string
	agents []Agent
	closed []bool
}

// NewComposite builds a composite over agents. An empty role derives one
// from the member roles. At least one non-nil member is required.
func NewComposite(role string, agents ...Agent) (*Composite, error) {
	if len(agents) == 0 {
		return nil, ErrEmptyComposite
	}
	names := make([]string, len(agents))
	for i, a := range agents {
		if a == nil {
			return nil, fmt.Errorf("composite member %d is nil", i)
		}
		names[i] = a.RoleName()
	}
	if role == "" {
		role = "composite:[" + strings.Join(names, ",") + "]"
	}
	return &Composite{
		role:   role,
		agents: agents,
		closed: make([]bool, len(agents)),
	}, nil
}

// OnStart starts members in order. On a failure the already-started members
// are closed again before returning, so a half-started composite never
// leaks; the start failure and any unwind failures come back joined.
func (c *Composite) OnStart() error {
	for i, a := range c.agents {
		err := a.OnStart()
		if err == nil {
			continue
		}
		failure := fmt.Errorf("start %s: %w", a.RoleName(), err)
		errs := []error{failure}
		for j := i - 1; j >= 0; j-- {
			if closeErr := c.closeMember(j); closeErr != nil {
				errs = append(errs, closeErr)
			}
		}
		return errors.Join(errs...)
	}
	return nil
}

// DoWork invokes every member once and sums their work counts. Member
// failures are collected so one bad member does not starve the others of
// their cycle. A member's termination request outranks failures collected
// in the same pass: the joined error matches ErrTerminateAgent and the
// runner shuts down cleanly.
func (c *Composite) DoWork() (int, error) {
	sum := 0
	var errs []error
	for _, a := range c.agents {
		n, err := a.DoWork()
		if n > 0 {
			sum += n
		}
		if err != nil {
			errs = append(errs, err)
		}
	}
	return sum, errors.Join(errs...)
}

// OnClose closes every member exactly once, joining any failures. Members
// already closed by a start unwind are skipped.
func (c *Composite) OnClose() error {
	var errs []error
	for i := range c.agents {
		if err := c.closeMember(i); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

// RoleName returns the composite role.
func (c *Composite) RoleName() string {
	return c.role
}

// Members returns how many agents the composite drives.
func (c *Composite) Members() int {
	return len(c.agents)
}

func (c *Composite) closeMember(i int) error {
	if c.closed[i] {
		return nil
	}
	c.closed[i] = true
	if err := c.agents[i].OnClose(); err != nil {
		return fmt.Errorf("close %s: %w", c.agents[i].RoleName(), err)
	}
	return nil
}
