// SPDX-License-Identifier: MPL-2.0

package bootstrap

import (
	"context"
	"errors"
	"fmt"
	"io"
	"time"

	"github.com/charmbracelet/log"
)

const (
	// SeverityFatal stops the run when the stage fails.
	SeverityFatal Severity = iota
	// SeverityAdvisory records a warning when the stage fails and continues.
	SeverityAdvisory
)

const (
	// StatusOK means the stage succeeded.
	StatusOK Status = iota
	// StatusWarning means an advisory stage failed and the run continued.
	StatusWarning
	// StatusFailed means a fatal stage failed and the run stopped.
	StatusFailed
)

type (
	// Severity declares how a stage failure is handled.
	Severity int

	// Status is the outcome of a stage that ran.
	Status int

	// Stage is one named step of the bootstrap.
	Stage struct {
		Name     StageName
		Title    string
		Severity Severity
		Run      func(ctx context.Context, r *Report) error
	}

	// StageResult records one stage that ran.
	StageResult struct {
		Name     StageName
		Status   Status
		Duration time.Duration
		Err      error
	}

	// StageError is returned by Pipeline.Run when a fatal stage fails or the
	// run is canceled.
	StageError struct {
		Stage StageName
		Err   error
	}

	// Hooks receive stage progress. Nil hooks are skipped.
	Hooks struct {
		// StageStarted is called before stage index (0-based) of total runs.
		StageStarted func(index, total int, stage Stage)
		// StageFinished is called after a stage returns.
		StageFinished func(stage Stage, result StageResult)
	}

	// Pipeline runs stages in order.
	Pipeline struct {
		stages []Stage
		hooks  Hooks
		logger *log.Logger
	}
)

// NewPipeline creates a Pipeline over stages.
func NewPipeline(stages []Stage, hooks Hooks, logger *log.Logger) *Pipeline {
	if logger == nil {
		logger = log.New(io.Discard)
	}
	return &Pipeline{stages: stages, hooks: hooks, logger: logger}
}

// Stages returns the stages in run order.
func (p *Pipeline) Stages() []Stage { return p.stages }

// Run executes the stages into r. It returns a *StageError for the first
// fatal failure; stages after it do not run.
func (p *Pipeline) Run(ctx context.Context, r *Report) error {
	for i, stage := range p.stages {
		if err := ctx.Err(); err != nil {
			return &StageError{Stage: stage.Name, Err: err}
		}

		if p.hooks.StageStarted != nil {
			p.hooks.StageStarted(i, len(p.stages), stage)
		}
		logger := p.logger.With("stage", string(stage.Name))
		logger.Debug("stage started")

		start := time.Now()
		err := stage.Run(ctx, r)
		res := StageResult{Name: stage.Name, Duration: time.Since(start), Err: err}

		canceled := err != nil && ctx.Err() != nil
		switch {
		case err == nil:
			res.Status = StatusOK
			logger.Info("stage completed", "took", res.Duration.Round(time.Millisecond))
		case stage.Severity == SeverityAdvisory && !canceled:
			res.Status = StatusWarning
			r.warn(stage.Name, err.Error())
			logger.Warn("stage failed, continuing", "err", err)
		default:
			res.Status = StatusFailed
			logger.Error("stage failed", "err", err)
		}

		r.Stages = append(r.Stages, res)
		if p.hooks.StageFinished != nil {
			p.hooks.StageFinished(stage, res)
		}
		if res.Status == StatusFailed {
			return &StageError{Stage: stage.Name, Err: err}
		}
	}
	return nil
}

// Error implements the error interface.
func (e *StageError) Error() string {
	return fmt.Sprintf("stage %s failed: %v", e.Stage, e.Err)
}

// Unwrap returns the stage error.
func (e *StageError) Unwrap() error { return e.Err }

// FailedStage returns the stage name carried by err, if any.
func FailedStage(err error) (StageName, bool) {
	var se *StageError
	if errors.As(err, &se) {
		return se.Stage, true
	}
	return "", false
}

// String returns the severity name.
func (s Severity) String() string {
	switch s {
	case SeverityFatal:
		return "fatal"
	case SeverityAdvisory:
		return "advisory"
	default:
		return fmt.Sprintf("Severity(%d)", int(s))
	}
}

// String returns the status name.
func (s Status) String() string {
	switch s {
	case StatusOK:
		return "ok"
	case StatusWarning:
		return "warning"
	case StatusFailed:
		return "failed"
	default:
		return fmt.Sprintf("Status(%d)", int(s))
	}
}
