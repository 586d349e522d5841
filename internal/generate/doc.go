// SPDX-License-Identifier: MPL-2.0

// Package generate writes the workspace artifacts: the wrapper scripts and the
// quick-start guide.
//
// Output is a pure function of the configuration, so regenerating with the
// same config yields byte-identical files. Files are always fully
// overwritten. Every script is parsed as bash before it is written.
package generate
