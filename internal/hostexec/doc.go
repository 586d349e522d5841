// SPDX-License-Identifier: MPL-2.0

// Package hostexec runs host subprocesses (package manager, container runtime,
// service manager) behind the narrow Runner interface.
//
// A Runner reports how a command ended instead of failing on a non-zero exit:
// the returned error is reserved for commands that could not be started or
// were cancelled. Callers that treat a non-zero exit as fatal use MustSucceed,
// which converts it into an *ExitError. Stage logic depends on Runner only, so
// tests substitute the recording fake from the hostexectest subpackage.
package hostexec
