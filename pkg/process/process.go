// Package process supervises a single external engine invocation.
//
// A Process owns one executable, a working directory and a run name. Output
// is captured to <name>.out and <name>.err in the working directory, and the
// exit is observed by a background goroutine so Poll never blocks.
package process

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"os/exec"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/picogrid/biosim/pkg/logger"
	"github.com/picogrid/biosim/pkg/metrics"
	"github.com/picogrid/biosim/pkg/simerr"
)

// State is the lifecycle state of a process.
type State int

const (
	Queued State = iota
	Running
	Finished
	Errored
)

func (s State) String() string {
	switch s {
	case Queued:
		return "queued"
	case Running:
		return "running"
	case Finished:
		return "finished"
	case Errored:
		return "errored"
	}
	return fmt.Sprintf("State(%d)", int(s))
}

// IsTerminal reports whether s is Finished or Errored.
func (s State) IsTerminal() bool {
	return s == Finished || s == Errored
}

// Option configures a Process.
type Option func(*Process)

// WithErrorMarkers sets strings whose presence in captured output marks the
// run as errored.
func WithErrorMarkers(markers ...string) Option {
	return func(p *Process) { p.markers = append(p.markers, markers...) }
}

// WithArtifacts names output files, relative to the working directory, that
// are removed before every start.
func WithArtifacts(files ...string) Option {
	return func(p *Process) { p.artifacts = append(p.artifacts, files...) }
}

// WithLabel sets the engine label used in metrics and logs.
func WithLabel(label string) Option {
	return func(p *Process) { p.label = label }
}

// WithEnv adds KEY=VALUE entries to the inherited environment.
func WithEnv(env ...string) Option {
	return func(p *Process) { p.env = append(p.env, env...) }
}

// WithClock replaces the wall clock.
func WithClock(now func() time.Time) Option {
	return func(p *Process) { p.now = now }
}

// WithMergedOutput sends stderr to the stdout file. The stderr file then
// only holds note.
func WithMergedOutput(note string) Option {
	return func(p *Process) {
		p.merged = true
		p.mergedNote = note
	}
}

// Process is a handle on one engine invocation.
type Process struct {
	exe       string
	workDir   string
	name      string
	args      []string
	markers   []string
	artifacts []string
	label     string
	env       []string
	now       func() time.Time

	merged     bool
	mergedNote string

	mu       sync.Mutex
	state    State
	exitCode int
	started  time.Time
	stopped  time.Time
	done     chan struct{}
}

// New creates a process for exe, which is resolved on PATH unless it
// contains a path separator.
func New(exe, workDir, name string, args []string, opts ...Option) (*Process, error) {
	if workDir == "" {
		return nil, fmt.Errorf("%w: working directory must be set", simerr.ErrValidation)
	}
	if name == "" {
		return nil, fmt.Errorf("%w: process name must be set", simerr.ErrValidation)
	}
	path, err := exec.LookPath(exe)
	if err != nil {
		return nil, fmt.Errorf("%w: cannot find %q: %v", simerr.ErrMissingExecutable, exe, err)
	}

	p := &Process{
		exe:     path,
		workDir: workDir,
		name:    name,
		args:    append([]string(nil), args...),
		label:   filepath.Base(exe),
		now:     time.Now,
		state:   Queued,
	}
	for _, opt := range opts {
		opt(p)
	}
	return p, nil
}

func (p *Process) Name() string    { return p.name }
func (p *Process) WorkDir() string { return p.workDir }
func (p *Process) Exe() string     { return p.exe }

// Args returns a copy of the command-line arguments.
func (p *Process) Args() []string { return append([]string(nil), p.args...) }

// Command returns the command line as a single string.
func (p *Process) Command() string {
	return strings.TrimSpace(p.exe + " " + strings.Join(p.args, " "))
}

// StdoutPath returns the file that captures standard output.
func (p *Process) StdoutPath() string { return filepath.Join(p.workDir, p.name+".out") }

// StderrPath returns the file that captures standard error.
func (p *Process) StderrPath() string { return filepath.Join(p.workDir, p.name+".err") }

func (p *Process) writeReadme() error {
	text := "# Auto-generated by biosim.\n\n" +
		"# Run the engine from this directory with:\n\n" +
		p.Command() + "\n"
	return os.WriteFile(filepath.Join(p.workDir, "README.txt"), []byte(text), 0o644)
}

func (p *Process) clearArtifacts() error {
	for _, a := range p.artifacts {
		err := os.Remove(filepath.Join(p.workDir, a))
		if err != nil && !errors.Is(err, fs.ErrNotExist) {
			return fmt.Errorf("%w: cannot remove %s: %v", simerr.ErrIO, a, err)
		}
	}
	return nil
}

// Start launches the executable. It fails with ErrAlreadyRunning while a
// previous invocation is still running. Starting again after a terminal
// state reruns the process from scratch.
func (p *Process) Start() error {
	p.mu.Lock()
	defer p.mu.Unlock()

	if p.state == Running {
		return fmt.Errorf("%w: %s", simerr.ErrAlreadyRunning, p.name)
	}

	if err := p.writeReadme(); err != nil {
		return p.launchFailed(err)
	}
	if err := p.clearArtifacts(); err != nil {
		return p.launchFailed(err)
	}

	stdout, err := os.Create(p.StdoutPath())
	if err != nil {
		return p.launchFailed(err)
	}
	stderr, err := os.Create(p.StderrPath())
	if err != nil {
		stdout.Close()
		return p.launchFailed(err)
	}

	cmd := exec.Command(p.exe, p.args...)
	cmd.Dir = p.workDir
	cmd.Env = append(os.Environ(), p.env...)
	cmd.Stdout = stdout
	cmd.Stderr = stderr
	if p.merged {
		cmd.Stderr = stdout
		if _, err := fmt.Fprintln(stderr, p.mergedNote); err != nil {
			stdout.Close()
			stderr.Close()
			return p.launchFailed(err)
		}
	}

	if err := cmd.Start(); err != nil {
		stdout.Close()
		stderr.Close()
		return p.launchFailed(err)
	}

	p.state = Running
	p.exitCode = 0
	p.started = p.now()
	p.stopped = time.Time{}
	p.done = make(chan struct{})
	metrics.RunsStartedTotal.WithLabelValues(p.label).Inc()
	metrics.RunsActive.WithLabelValues(p.label).Inc()
	logger.Debugf("Started %s in %s: %s", p.name, p.workDir, p.Command())

	go p.supervise(cmd, stdout, stderr, p.done)
	return nil
}

func (p *Process) launchFailed(err error) error {
	metrics.LaunchFailuresTotal.WithLabelValues(p.label).Inc()
	return fmt.Errorf("%w: %s: %v", simerr.ErrLaunchFailure, p.name, err)
}

// supervise waits for the process to exit and records its terminal state.
func (p *Process) supervise(cmd *exec.Cmd, stdout, stderr *os.File, done chan struct{}) {
	waitErr := cmd.Wait()
	stdout.Close()
	stderr.Close()

	code := 0
	if waitErr != nil {
		code = -1
		var exitErr *exec.ExitError
		if errors.As(waitErr, &exitErr) {
			code = exitErr.ExitCode()
		}
	}

	state := Finished
	marker := ""
	if code != 0 {
		state = Errored
	} else if m, found := p.findMarker(); found {
		state = Errored
		marker = m
	}

	p.mu.Lock()
	p.state = state
	p.exitCode = code
	p.stopped = p.now()
	elapsed := p.stopped.Sub(p.started)
	p.mu.Unlock()

	metrics.RunsActive.WithLabelValues(p.label).Dec()
	metrics.RunsCompletedTotal.WithLabelValues(p.label, state.String()).Inc()
	metrics.RunDuration.WithLabelValues(p.label).Observe(elapsed.Seconds())
	switch {
	case marker != "":
		logger.Warnf("%s reported an error (%q found in output)", p.name, marker)
	case code != 0:
		logger.Warnf("%s exited with code %d", p.name, code)
	default:
		logger.Debugf("%s finished after %s", p.name, elapsed.Round(time.Millisecond))
	}
	close(done)
}

func (p *Process) findMarker() (string, bool) {
	if len(p.markers) == 0 {
		return "", false
	}
	for _, path := range []string{p.StdoutPath(), p.StderrPath()} {
		data, err := os.ReadFile(path)
		if err != nil {
			continue
		}
		for _, m := range p.markers {
			if strings.Contains(string(data), m) {
				return m, true
			}
		}
	}
	return "", false
}

// Wait blocks until the process reaches a terminal state or ctx is done. It
// returns immediately for a process that is not running.
func (p *Process) Wait(ctx context.Context) error {
	p.mu.Lock()
	done := p.done
	p.mu.Unlock()
	if done == nil {
		return nil
	}
	select {
	case <-done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Poll returns the current state without blocking.
func (p *Process) Poll() State {
	return p.State()
}

func (p *Process) State() State {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.state
}

// IsRunning reports whether the process is running.
func (p *Process) IsRunning() bool { return p.State() == Running }

// IsError reports whether the process ended in the Errored state.
func (p *Process) IsError() bool { return p.State() == Errored }

// ExitCode returns the exit code of the last terminated invocation.
func (p *Process) ExitCode() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.exitCode
}

// ElapsedTime returns the wall-clock time since Start, frozen once the
// process terminates. It is zero before the first start.
func (p *Process) ElapsedTime() time.Duration {
	p.mu.Lock()
	defer p.mu.Unlock()
	switch {
	case p.started.IsZero():
		return 0
	case p.stopped.IsZero():
		return p.now().Sub(p.started)
	default:
		return p.stopped.Sub(p.started)
	}
}

// StartedAt returns the time of the last start.
func (p *Process) StartedAt() time.Time {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.started
}

// Stdout returns the last n lines of captured standard output, or all of
// them when n <= 0.
func (p *Process) Stdout(n int) ([]string, error) {
	return lastLines(p.StdoutPath(), n)
}

// Stderr returns the last n lines of captured standard error.
func (p *Process) Stderr(n int) ([]string, error) {
	return lastLines(p.StderrPath(), n)
}

func lastLines(path string, n int) ([]string, error) {
	f, err := os.Open(path)
	if errors.Is(err, fs.ErrNotExist) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("%w: %v", simerr.ErrIO, err)
	}
	defer f.Close()

	var lines []string
	scanner := bufio.NewScanner(f)
	scanner.Buffer(make([]byte, 64*1024), 1024*1024)
	for scanner.Scan() {
		lines = append(lines, scanner.Text())
		if n > 0 && len(lines) > n {
			lines = lines[1:]
		}
	}
	if err := scanner.Err(); err != nil {
		return nil, fmt.Errorf("%w: %v", simerr.ErrIO, err)
	}
	return lines, nil
}
