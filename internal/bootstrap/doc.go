// SPDX-License-Identifier: MPL-2.0

// Package bootstrap runs the ten provisioning stages in order.
//
// Each Stage declares its Severity. Pipeline runs stages strictly in
// sequence and checks the severity after each one returns: a fatal stage
// error stops the run, an advisory stage error is recorded as a warning and
// the run continues. There is no rollback; running again is the recovery
// path, and every stage is safe to repeat.
//
// Bootstrapper wires the stages to the host through explicit dependencies
// (runner, engine, prober, cloner, prompter), so the whole sequence can be
// exercised with fakes.
package bootstrap
