// Package simulation prepares and runs one protocol on one engine.
//
// New writes the engine inputs into a working directory, and the returned
// Run starts the engine process and reads its results back onto the input
// system.
package simulation

import (
	"context"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/picogrid/biosim/pkg/engine"
	"github.com/picogrid/biosim/pkg/ledger"
	"github.com/picogrid/biosim/pkg/logger"
	"github.com/picogrid/biosim/pkg/molio"
	"github.com/picogrid/biosim/pkg/process"
	"github.com/picogrid/biosim/pkg/protocol"
	"github.com/picogrid/biosim/pkg/results"
	"github.com/picogrid/biosim/pkg/simerr"
	"github.com/picogrid/biosim/pkg/system"
	"github.com/picogrid/biosim/pkg/units"
)

// Option configures a Run.
type Option func(*settings)

type settings struct {
	workDir   string
	name      string
	exe       string
	platform  string
	seed      *int64
	registry  *engine.Registry
	store     ledger.Store
	pipeline  string
	lookupEnv func(string) (string, bool)
}

// WithWorkDir sets the working directory. It is created if missing. By
// default a new temporary directory is used.
func WithWorkDir(dir string) Option {
	return func(s *settings) { s.workDir = dir }
}

// WithName sets the base name of the run files. It defaults to the engine
// name.
func WithName(name string) Option {
	return func(s *settings) { s.name = name }
}

// WithExecutable overrides the engine binary.
func WithExecutable(exe string) Option {
	return func(s *settings) { s.exe = exe }
}

// WithPlatform selects the compute platform for engines that have one.
func WithPlatform(platform string) Option {
	return func(s *settings) { s.platform = platform }
}

// WithSeed seeds the engine random number generator.
func WithSeed(seed int64) Option {
	return func(s *settings) { s.seed = &seed }
}

// WithRegistry looks engines up in r instead of engine.DefaultRegistry.
func WithRegistry(r *engine.Registry) Option {
	return func(s *settings) { s.registry = r }
}

// WithLedger records the run in store.
func WithLedger(store ledger.Store) Option {
	return func(s *settings) { s.store = store }
}

// WithPipeline tags the ledger record with a pipeline name.
func WithPipeline(name string) Option {
	return func(s *settings) { s.pipeline = name }
}

// WithLookupEnv replaces os.LookupEnv for platform checks.
func WithLookupEnv(fn func(string) (string, bool)) Option {
	return func(s *settings) { s.lookupEnv = fn }
}

// Run is a prepared engine run.
type Run struct {
	input     *system.System
	protocol  protocol.Protocol
	engine    engine.Engine
	workDir   string
	name      string
	flags     engine.Flags
	inputs    engine.Inputs
	args      *engine.Args
	proc      *process.Process
	extractor results.Extractor
	store     ledger.Store

	mu     sync.Mutex
	config engine.Config
	record *ledger.Record
}

// New validates p, generates the engine config and writes every input file.
// Configuration problems are reported before anything is written.
func New(ctx context.Context, sys *system.System, p protocol.Protocol, engineName string, opts ...Option) (*Run, error) {
	s := settings{
		registry:  engine.DefaultRegistry,
		lookupEnv: os.LookupEnv,
	}
	for _, opt := range opts {
		opt(&s)
	}

	if sys == nil {
		return nil, fmt.Errorf("%w: system must not be nil", simerr.ErrValidation)
	}
	if p == nil {
		return nil, fmt.Errorf("%w: protocol must not be nil", simerr.ErrValidation)
	}
	if err := p.Validate(); err != nil {
		return nil, err
	}
	eng, err := s.registry.Get(engineName)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", simerr.ErrValidation, err)
	}
	if s.name == "" {
		s.name = eng.Name()
	}

	flags := engine.FlagsFor(sys, s.seed)
	if sel, ok := eng.(engine.PlatformSelector); ok {
		flags.Platform, err = sel.Platform(s.platform, s.lookupEnv)
		if err != nil {
			return nil, err
		}
	} else if s.platform != "" {
		return nil, fmt.Errorf("%w: engine %s has no platform selection", simerr.ErrValidation, eng.Name())
	}

	if _, ok := p.(*protocol.FreeEnergy); ok {
		if _, err := molio.SinglePerturbation(sys); err != nil {
			return nil, err
		}
	}

	cfg, err := eng.Generate(p, flags)
	if err != nil {
		return nil, err
	}
	if _, ok := p.(*protocol.Custom); ok {
		p.SetCustomised(true)
	}
	args, err := eng.Args(p, s.name, flags)
	if err != nil {
		return nil, err
	}

	if s.workDir == "" {
		s.workDir, err = os.MkdirTemp("", "biosim-"+s.name+"-")
	} else {
		err = os.MkdirAll(s.workDir, 0o755)
	}
	if err != nil {
		return nil, fmt.Errorf("%w: cannot create working directory: %v", simerr.ErrIO, err)
	}

	exe := s.exe
	if exe == "" {
		exe = eng.Executable(p)
	}
	procOpts := []process.Option{
		process.WithLabel(eng.Name()),
		process.WithErrorMarkers(eng.ErrorMarkers()...),
		process.WithArtifacts(eng.Artifacts(p, s.name)...),
	}
	if m, ok := eng.(engine.OutputMerger); ok {
		procOpts = append(procOpts, process.WithMergedOutput(m.MergedOutputNote()))
	}
	proc, err := process.New(exe, s.workDir, s.name, args.List(), procOpts...)
	if err != nil {
		return nil, err
	}

	r := &Run{
		input:     sys.Clone(),
		protocol:  p,
		engine:    eng,
		workDir:   s.workDir,
		name:      s.name,
		flags:     flags,
		inputs:    eng.Inputs(p, s.name),
		args:      args,
		proc:      proc,
		extractor: eng.Extractor(p, s.workDir, s.name),
		store:     s.store,
		config:    cfg,
	}
	if err := r.writeInputs(); err != nil {
		return nil, err
	}

	if prep, ok := eng.(engine.Preparer); ok {
		job := engine.Job{WorkDir: s.workDir, Name: s.name, Executable: proc.Exe(), Protocol: p}
		if err := prep.Prepare(ctx, job); err != nil {
			return nil, err
		}
	}

	if s.store != nil {
		r.record = ledger.NewRecord(s.name, eng.Name(), string(p.Kind()), s.workDir)
		r.record.Pipeline = s.pipeline
		if err := s.store.Save(ctx, r.record); err != nil {
			return nil, fmt.Errorf("failed to record run: %w", err)
		}
	}

	logger.Debugf("Prepared %s %s run in %s", eng.Name(), p.Kind(), s.workDir)
	return r, nil
}

func (r *Run) writeInputs() error {
	formats := []string{r.inputs.CoordinatesFormat, r.inputs.TopologyFormat}
	if r.inputs.Perturbation != "" {
		formats = append(formats, "PERT")
	}
	if _, err := molio.Save(filepath.Join(r.workDir, r.name), r.input, formats...); err != nil {
		return err
	}
	return r.writeConfig()
}

func (r *Run) writeConfig() error {
	return molio.WriteFile(filepath.Join(r.workDir, r.inputs.Config), func(w io.Writer) error {
		_, err := io.WriteString(w, r.config.Text())
		return err
	})
}

func (r *Run) Name() string                { return r.name }
func (r *Run) WorkDir() string             { return r.workDir }
func (r *Run) Engine() string              { return r.engine.Name() }
func (r *Run) Protocol() protocol.Protocol { return r.protocol }
func (r *Run) Flags() engine.Flags         { return r.flags }

// Command returns the engine command line.
func (r *Run) Command() string { return r.proc.Command() }

// InputFiles returns the absolute paths of the files written for the run.
func (r *Run) InputFiles() []string {
	files := r.inputs.Files()
	for i, f := range files {
		files[i] = filepath.Join(r.workDir, f)
	}
	return files
}

// Config returns a copy of the engine config.
func (r *Run) Config() engine.Config {
	r.mu.Lock()
	defer r.mu.Unlock()
	return engine.Config(r.config.Lines())
}

// SetConfig replaces the generated config with lines, marks the protocol as
// customised and rewrites the config file.
func (r *Run) SetConfig(lines []string) error {
	if r.proc.IsRunning() {
		return fmt.Errorf("%w: cannot change the config of a running process", simerr.ErrAlreadyRunning)
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	r.config = engine.Config(append([]string(nil), lines...))
	r.protocol.SetCustomised(true)
	return r.writeConfig()
}

// Args returns a copy of the command-line arguments.
func (r *Run) Args() []string { return r.args.List() }

// Start launches the engine process. Results cached from an earlier start
// are dropped, since the engine rewrites its output files.
func (r *Run) Start(ctx context.Context) error {
	if err := r.proc.Start(); err != nil {
		return err
	}
	r.mu.Lock()
	r.extractor = r.engine.Extractor(r.protocol, r.workDir, r.name)
	r.mu.Unlock()
	return r.saveRecord(ctx)
}

func (r *Run) results() results.Extractor {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.extractor
}

// Wait blocks until the engine process exits or ctx is done.
func (r *Run) Wait(ctx context.Context) error {
	if err := r.proc.Wait(ctx); err != nil {
		return err
	}
	return r.saveRecord(ctx)
}

// Poll returns the process state without blocking.
func (r *Run) Poll() process.State { return r.proc.Poll() }

func (r *Run) IsError() bool                  { return r.proc.IsError() }
func (r *Run) ElapsedTime() time.Duration     { return r.proc.ElapsedTime() }
func (r *Run) Stdout(n int) ([]string, error) { return r.proc.Stdout(n) }
func (r *Run) Stderr(n int) ([]string, error) { return r.proc.Stderr(n) }

// Record returns a copy of the ledger record, or nil without a ledger.
func (r *Run) Record() *ledger.Record {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.record == nil {
		return nil
	}
	rec := *r.record
	return &rec
}

func (r *Run) saveRecord(ctx context.Context) error {
	if r.store == nil {
		return nil
	}
	r.mu.Lock()
	rec := r.record
	rec.State = r.proc.State().String()
	rec.StartedAt = r.proc.StartedAt()
	rec.Elapsed = r.proc.ElapsedTime()
	rec.ExitCode = r.proc.ExitCode()
	snapshot := *rec
	r.mu.Unlock()

	if err := r.store.Save(ctx, &snapshot); err != nil {
		return fmt.Errorf("failed to record run: %w", err)
	}
	return nil
}

func (r *Run) wait(ctx context.Context, block bool) error {
	if !block {
		return nil
	}
	return r.Wait(ctx)
}

// System returns the input system with the latest coordinates written by
// the engine. With block set it first waits for the process to exit. ok is
// false while no coordinates are available or when the run errored.
func (r *Run) System(ctx context.Context, block bool) (sys *system.System, ok bool, err error) {
	if err := r.wait(ctx, block); err != nil {
		return nil, false, err
	}
	if r.IsError() {
		return nil, false, nil
	}
	frame, ok, err := r.results().Frame()
	if err != nil || !ok {
		return nil, false, err
	}
	sys, err = results.Merge(r.input, frame)
	if err != nil {
		return nil, false, err
	}
	return sys, true, nil
}

// Gradients returns the free-energy gradient at every record so far.
func (r *Run) Gradients(ctx context.Context, block bool) ([]float64, error) {
	gr, ok := r.results().(results.GradientReader)
	if !ok {
		return nil, fmt.Errorf("%w: %s does not record gradients", simerr.ErrUnsupportedProtocol, r.engine.Name())
	}
	if err := r.wait(ctx, block); err != nil {
		return nil, err
	}
	return gr.Gradients()
}

// Gradient returns the latest free-energy gradient.
func (r *Run) Gradient(ctx context.Context, block bool) (float64, bool, error) {
	g, err := r.Gradients(ctx, block)
	if err != nil || len(g) == 0 {
		return 0, false, err
	}
	return g[len(g)-1], true, nil
}

// Times returns the simulation time of every record so far.
func (r *Run) Times(ctx context.Context, block bool) ([]units.Time, error) {
	if err := r.wait(ctx, block); err != nil {
		return nil, err
	}
	return r.results().Times()
}

// Time returns the latest simulation time.
func (r *Run) Time(ctx context.Context, block bool) (units.Time, bool, error) {
	t, err := r.Times(ctx, block)
	if err != nil || len(t) == 0 {
		return units.Time{}, false, err
	}
	return t[len(t)-1], true, nil
}

// Energies returns an energy record series by its engine key.
func (r *Run) Energies(ctx context.Context, key string, block bool) ([]float64, error) {
	er, ok := r.results().(results.EnergyReader)
	if !ok {
		return nil, fmt.Errorf("%w: %s does not record energies", simerr.ErrUnsupportedProtocol, r.engine.Name())
	}
	if err := r.wait(ctx, block); err != nil {
		return nil, err
	}
	return er.Energies(key)
}

// Energy returns the latest value of an energy record.
func (r *Run) Energy(ctx context.Context, key string, block bool) (float64, bool, error) {
	e, err := r.Energies(ctx, key, block)
	if err != nil || len(e) == 0 {
		return 0, false, err
	}
	return e[len(e)-1], true, nil
}
