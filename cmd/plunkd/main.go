// Copyright 2025 Tom Barlow
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//     http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.

// Command plunkd is the workflow/campaign daemon: `serve` runs the queue
// worker pool, event router, and campaign dispatcher against a shared
// store; `campaign send`/`campaign cancel` are short-lived operator
// commands against the same on-disk store.
package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
)

// Version information (injected via ldflags at build time).
var (
	version   = "dev"
	commit    = "unknown"
	buildDate = "unknown"
)

func main() {
	root := newRootCommand()
	root.AddCommand(newServeCommand())
	root.AddCommand(newCampaignCommand())
	root.AddCommand(newEventCommand())
	root.AddCommand(newActivityCommand())
	root.AddCommand(newVersionCommand())

	if err := root.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

var configPath string

func newRootCommand() *cobra.Command {
	cmd := &cobra.Command{
		Use:           "plunkd",
		Short:         "plunkd runs the workflow, campaign, and event-tracking backend",
		SilenceUsage:  true,
		SilenceErrors: true,
	}
	cmd.PersistentFlags().StringVar(&configPath, "config", "", "path to YAML deployment config (default: none, env-only)")
	return cmd
}

func newVersionCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "version",
		Short: "Print version information",
		RunE: func(cmd *cobra.Command, args []string) error {
			fmt.Printf("plunkd %s (commit: %s, built: %s)\n", version, commit, buildDate)
			return nil
		},
	}
}
