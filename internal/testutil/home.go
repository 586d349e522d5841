// SPDX-License-Identifier: MPL-2.0

package testutil

import "testing"

// SetHomeDir points HOME at dir and returns a cleanup function restoring the
// original value. Paths with a leading ~ in the configuration resolve
// against it.
//
//	t.Cleanup(testutil.SetHomeDir(t, t.TempDir()))
func SetHomeDir(t testing.TB, dir string) func() {
	t.Helper()
	return MustSetenv(t, "HOME", dir)
}
