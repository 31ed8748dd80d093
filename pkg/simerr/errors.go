// Package simerr defines the error kinds shared by the biosim packages.
//
// Errors are returned wrapped with context, e.g.
//
//	fmt.Errorf("%w: SOMD doesn't support backbone atom restraints", simerr.ErrIncompatibleProtocol)
//
// and callers match the kind with errors.Is.
package simerr

import "errors"

var (
	// ErrValidation is returned for bad constructor arguments and unsupported units or formats.
	ErrValidation = errors.New("validation error")

	// ErrUnsupportedProtocol is returned when an engine has no generator for a protocol variant.
	ErrUnsupportedProtocol = errors.New("unsupported protocol")

	// ErrIncompatibleProtocol is returned when an engine cannot honor the requested protocol semantics.
	ErrIncompatibleProtocol = errors.New("incompatible protocol")

	// ErrMissingExecutable is returned when an engine binary cannot be found.
	ErrMissingExecutable = errors.New("missing executable")

	// ErrLaunchFailure is returned when a process could not be started.
	ErrLaunchFailure = errors.New("launch failure")

	// ErrAlreadyRunning is returned by Start while a previous invocation is still running.
	ErrAlreadyRunning = errors.New("process already running")

	// ErrIO is returned when an input or output file could not be written or read.
	ErrIO = errors.New("io failure")

	// ErrEnvironment is returned for fatal environment configuration problems,
	// such as a GPU platform without a visible device list.
	ErrEnvironment = errors.New("environment error")
)
