// Package pipeline chains simulation stages, feeding the system produced by
// each stage into the next.
package pipeline

import (
	"context"
	"errors"
	"fmt"
	"path/filepath"

	"github.com/picogrid/biosim/pkg/logger"
	"github.com/picogrid/biosim/pkg/metrics"
	"github.com/picogrid/biosim/pkg/protocol"
	"github.com/picogrid/biosim/pkg/simerr"
	"github.com/picogrid/biosim/pkg/simulation"
	"github.com/picogrid/biosim/pkg/system"
)

// ErrStageFailed is returned when a stage ends in the errored state or
// produces no coordinates.
var ErrStageFailed = errors.New("pipeline: stage failed")

// Stage is one protocol run on one engine.
type Stage struct {
	Name       string
	Engine     string
	WorkDir    string
	Platform   string
	Executable string
	Seed       *int64
	Protocol   protocol.Protocol
}

// Pipeline is an ordered list of stages.
type Pipeline struct {
	Name string
	// WorkDir is the parent of stage directories that don't set their own.
	WorkDir string
	Stages  []Stage
}

// Validate checks that the pipeline has stages with unique names, an engine
// and a valid protocol each.
func (p *Pipeline) Validate() error {
	if len(p.Stages) == 0 {
		return fmt.Errorf("%w: pipeline %q has no stages", simerr.ErrValidation, p.Name)
	}
	seen := make(map[string]bool, len(p.Stages))
	for i, st := range p.Stages {
		if st.Name == "" {
			return fmt.Errorf("%w: stage %d has no name", simerr.ErrValidation, i+1)
		}
		if seen[st.Name] {
			return fmt.Errorf("%w: duplicate stage name %q", simerr.ErrValidation, st.Name)
		}
		seen[st.Name] = true
		if st.Engine == "" {
			return fmt.Errorf("%w: stage %q has no engine", simerr.ErrValidation, st.Name)
		}
		if st.Protocol == nil {
			return fmt.Errorf("%w: stage %q has no protocol", simerr.ErrValidation, st.Name)
		}
	}
	return nil
}

// Hooks observe stage execution. Nil hooks are skipped.
type Hooks struct {
	// BeforeStage is called once the stage inputs are written.
	BeforeStage func(i int, st Stage, run *simulation.Run)
	// AfterStage is called when the stage finished successfully.
	AfterStage func(i int, st Stage, run *simulation.Run, sys *system.System)
}

func (p *Pipeline) stageDir(st Stage) string {
	switch {
	case st.WorkDir != "":
		return st.WorkDir
	case p.WorkDir != "":
		return filepath.Join(p.WorkDir, st.Name)
	}
	return ""
}

// Execute runs the stages in order. Each stage starts from the system
// returned by the previous one, and the first stage starts from sys.
// Execution stops at the first failing stage with an error naming it.
func (p *Pipeline) Execute(ctx context.Context, sys *system.System, hooks Hooks, opts ...simulation.Option) (*system.System, error) {
	if err := p.Validate(); err != nil {
		return nil, err
	}

	current := sys
	for i, st := range p.Stages {
		logger.Infof("Stage %d/%d: %s (%s on %s)", i+1, len(p.Stages), st.Name, st.Protocol.Kind(), st.Engine)
		out, err := p.runStage(ctx, i, st, current, hooks, opts)
		if err != nil {
			return nil, fmt.Errorf("stage %q: %w", st.Name, err)
		}
		current = out
	}
	return current, nil
}

func (p *Pipeline) runStage(ctx context.Context, i int, st Stage, sys *system.System, hooks Hooks, base []simulation.Option) (*system.System, error) {
	opts := append([]simulation.Option{}, base...)
	opts = append(opts, simulation.WithPipeline(p.Name))
	if dir := p.stageDir(st); dir != "" {
		opts = append(opts, simulation.WithWorkDir(dir))
	}
	if st.Platform != "" {
		opts = append(opts, simulation.WithPlatform(st.Platform))
	}
	if st.Executable != "" {
		opts = append(opts, simulation.WithExecutable(st.Executable))
	}
	if st.Seed != nil {
		opts = append(opts, simulation.WithSeed(*st.Seed))
	}

	run, err := simulation.New(ctx, sys, st.Protocol, st.Engine, opts...)
	if err != nil {
		metrics.PipelineStagesTotal.WithLabelValues(st.Engine, "setup_failed").Inc()
		return nil, err
	}
	if hooks.BeforeStage != nil {
		hooks.BeforeStage(i, st, run)
	}

	if err := run.Start(ctx); err != nil {
		metrics.PipelineStagesTotal.WithLabelValues(st.Engine, "setup_failed").Inc()
		return nil, err
	}
	out, ok, err := run.System(ctx, true)
	if err != nil {
		return nil, err
	}
	if run.IsError() {
		metrics.PipelineStagesTotal.WithLabelValues(st.Engine, "errored").Inc()
		return nil, fmt.Errorf("%w: %s errored, see %s", ErrStageFailed, st.Engine, run.WorkDir())
	}
	if !ok {
		metrics.PipelineStagesTotal.WithLabelValues(st.Engine, "errored").Inc()
		return nil, fmt.Errorf("%w: %s wrote no coordinates in %s", ErrStageFailed, st.Engine, run.WorkDir())
	}

	metrics.PipelineStagesTotal.WithLabelValues(st.Engine, "finished").Inc()
	logger.Debugf("Stage %s finished after %s", st.Name, run.ElapsedTime())
	if hooks.AfterStage != nil {
		hooks.AfterStage(i, st, run, out)
	}
	return out, nil
}
