// SPDX-License-Identifier: MPL-2.0

// Package issue provides actionable error handling with user-friendly messages.
//
// ActionableError carries the failed operation, the resource involved and
// remediation suggestions. Errors can reference a catalog Issue by Id; the
// catalog holds Markdown troubleshooting guides rendered with glamour when a
// bootstrap run aborts.
package issue
