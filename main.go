// SPDX-License-Identifier: MPL-2.0

package main

import cmd "github.com/rosstrap/rosstrap/cmd/rosstrap"

func main() {
	cmd.Execute()
}
