// SPDX-License-Identifier: MPL-2.0

package bootstrap

import (
	"github.com/rosstrap/rosstrap/internal/container"
	"github.com/rosstrap/rosstrap/internal/generate"
	"github.com/rosstrap/rosstrap/internal/preflight"
	"github.com/rosstrap/rosstrap/internal/provision"
	"github.com/rosstrap/rosstrap/internal/workspace"
)

type (
	// Warning is an advisory problem collected during the run.
	Warning struct {
		Stage   StageName
		Message string
	}

	// Report accumulates what the run did. Stages write into it.
	Report struct {
		// Declined is true when the operator answered no to the initial
		// confirmation. No stage ran.
		Declined bool

		Stages   []StageResult
		Warnings []Warning

		Preflight preflight.Report
		Runtime   provision.RuntimeResult
		Clone     workspace.Outcome
		Image     *container.ImageInfo
		Display   provision.DisplayResult
		Scripts   []generate.WrittenFile
		Guide     generate.WrittenFile

		// BuildFailed is true when the containerized build exited non-zero.
		BuildFailed   bool
		BuildExitCode int
	}
)

func (r *Report) warn(stage StageName, msg string) {
	r.Warnings = append(r.Warnings, Warning{Stage: stage, Message: msg})
}

// Completed returns the stages that succeeded.
func (r *Report) Completed() []StageName {
	var out []StageName
	for _, s := range r.Stages {
		if s.Status == StatusOK {
			out = append(out, s.Name)
		}
	}
	return out
}

// Ran reports whether stage ran, whatever its outcome.
func (r *Report) Ran(stage StageName) bool {
	for _, s := range r.Stages {
		if s.Name == stage {
			return true
		}
	}
	return false
}

// ReloginRequired reports whether the runtime group changed in this run.
func (r *Report) ReloginRequired() bool {
	return r.Runtime.ReloginRequired
}
