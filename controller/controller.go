package controller

import (
	"context"
	"errors"
	"log/slog"

	"github.com/cfm/securedrop-client/archive"
	"github.com/cfm/securedrop-client/config"
	"github.com/cfm/securedrop-client/interfaces"
	"github.com/cfm/securedrop-client/metadata"
)

// State is a step of a single invocation.
type State int

const (
	StateIntake State = iota
	StateValidating
	StateControlOnly
	StateDispatching
	StateCompleted
)

func (s State) String() string {
	switch s {
	case StateIntake:
		return "intake"
	case StateValidating:
		return "validating"
	case StateControlOnly:
		return "control-only"
	case StateDispatching:
		return "dispatching"
	case StateCompleted:
		return "completed"
	default:
		return "unknown"
	}
}

// Dispatcher runs a non-control command against the archive.
type Dispatcher interface {
	Dispatch(ctx context.Context, cmd interfaces.Command, a *archive.Archive) interfaces.Status
}

// Controller drives one invocation from intake to a final Status. It owns
// the Archive it creates; the caller passes it to a Finisher afterwards.
type Controller struct {
	cfg        config.Config
	dispatcher Dispatcher
	log        *slog.Logger

	state   State
	archive *archive.Archive
}

// New creates a controller in StateIntake.
func New(cfg config.Config, dispatcher Dispatcher, log *slog.Logger) *Controller {
	return &Controller{
		cfg:        cfg,
		dispatcher: dispatcher,
		log:        log,
		state:      StateIntake,
	}
}

// State returns the current state.
func (c *Controller) State() State {
	return c.state
}

// Archive returns the archive created during intake, or nil.
func (c *Controller) Archive() *archive.Archive {
	return c.archive
}

// Run extracts and validates the archive at sourcePath, then either
// acknowledges a control command or dispatches it. It returns exactly one
// Status and never panics; the work directory is left for the Finisher.
func (c *Controller) Run(ctx context.Context, sourcePath string) (status interfaces.Status) {
	defer func() {
		if r := recover(); r != nil {
			c.log.Error("Controller panicked", slog.String("state", c.state.String()), slog.Any("panic", r))
			status = interfaces.StatusErrorGeneric
		}
		c.transition(StateCompleted)
		c.log.Info("Run finished", slog.String("status", status.String()))
	}()

	if c.state != StateIntake {
		return c.fail("Controller reused", interfaces.NewStatusError(interfaces.StatusErrorGeneric, errors.New("run already started")))
	}

	a, err := archive.New(sourcePath, c.cfg, c.log)
	if err != nil {
		return c.fail("Archive not accepted", err)
	}
	c.archive = a
	if err := a.Extract(); err != nil {
		return c.fail("Extraction failed", err)
	}

	c.transition(StateValidating)
	md, err := metadata.Parse(a.WorkDir())
	if err != nil {
		return c.fail("Metadata rejected", err)
	}
	if err := a.SetMetadata(md); err != nil {
		return c.fail("Metadata rejected", err)
	}
	c.log.Info("Metadata validated", slog.Any("metadata", md))

	cmd := md.Command()
	if cmd.Family() == interfaces.FamilyControl {
		c.transition(StateControlOnly)
		return c.control(cmd)
	}

	c.transition(StateDispatching)
	return c.dispatcher.Dispatch(ctx, cmd, a)
}

// control acknowledges commands that need no collaborator.
func (c *Controller) control(cmd interfaces.Command) interfaces.Status {
	switch cmd {
	case interfaces.CommandStartVM:
		return interfaces.StatusStartVMSuccess
	default:
		c.log.Error("Unhandled control command", slog.String("command", cmd.String()))
		return interfaces.StatusErrorGeneric
	}
}

func (c *Controller) transition(next State) {
	c.log.Debug("State transition", slog.String("from", c.state.String()), slog.String("to", next.String()))
	c.state = next
}

func (c *Controller) fail(msg string, err error) interfaces.Status {
	status := interfaces.StatusFromError(err)
	c.log.Error(msg, "err", err, slog.String("status", status.String()), slog.String("state", c.state.String()))
	return status
}
