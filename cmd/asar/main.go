// Copyright (c) HashiCorp, Inc.
// SPDX-License-Identifier: MPL-2.0

package main

import "github.com/hashicorp/go-asar/cmd"

var (
	version = "dev"
	commit  = "none"
	date    = "unknown"
)

// main starts the asar archive tool
func main() {
	cmd.Run(version, commit, date)
}
