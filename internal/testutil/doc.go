// SPDX-License-Identifier: MPL-2.0

// Package testutil provides helper functions for tests that handle errors
// appropriately, reducing boilerplate and ensuring consistent error handling.
//
// Common helpers include environment variable management (MustSetenv,
// MustUnsetenv, SetHomeDir), directory and file operations (MustChdir,
// MustMkdirAll, MustWriteFile, MustReadFile) and a semaphore bounding
// concurrent container tests (ContainerSemaphore).
package testutil
