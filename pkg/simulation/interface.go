package simulation

import (
	"context"
	"time"

	"github.com/picogrid/biosim/pkg/process"
	"github.com/picogrid/biosim/pkg/system"
)

// Runner defines the lifecycle shared by engine runs
type Runner interface {
	// Name returns the base name of the run files
	Name() string

	// Engine returns the registry name of the engine
	Engine() string

	// Start launches the engine process
	Start(ctx context.Context) error

	// Wait blocks until the engine process exits
	Wait(ctx context.Context) error

	// Poll returns the process state without blocking
	Poll() process.State

	// IsError reports whether the run failed
	IsError() bool

	// ElapsedTime returns the wall-clock run time
	ElapsedTime() time.Duration

	// System returns the input system with the latest engine coordinates
	System(ctx context.Context, block bool) (*system.System, bool, error)
}

var _ Runner = (*Run)(nil)
