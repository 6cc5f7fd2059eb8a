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

package main

import (
	"encoding/json"
	"fmt"

	"github.com/spf13/cobra"
)

// newEventCommand exposes eventrouter.Engine.TrackEvent as an operator
// command: the only ingestion path into the event-trigger/resume
// machinery, otherwise reachable solely from an HTTP/SDK front door.
// Useful for manual triggering and smoke-testing workflow triggers
// against a real store without standing up that front door.
func newEventCommand() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "event",
		Short: "Operator commands for event ingestion",
	}
	cmd.AddCommand(newEventTrackCommand())
	return cmd
}

func newEventTrackCommand() *cobra.Command {
	var projectID, contactID, emailID, dataJSON string

	cmd := &cobra.Command{
		Use:   "track <eventName>",
		Short: "Record a named event, triggering and resuming workflows",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := loadConfig()
			if err != nil {
				return err
			}
			a, err := newApp(cfg)
			if err != nil {
				return err
			}

			var data map[string]any
			if dataJSON != "" {
				if err := json.Unmarshal([]byte(dataJSON), &data); err != nil {
					return fmt.Errorf("invalid --data JSON: %w", err)
				}
			}

			if err := a.events.TrackEvent(cmd.Context(), projectID, args[0], contactID, emailID, data); err != nil {
				return err
			}
			fmt.Printf("event %q tracked for contact %s\n", args[0], contactID)
			return nil
		},
	}
	cmd.Flags().StringVar(&projectID, "project", "", "project ID (required)")
	cmd.Flags().StringVar(&contactID, "contact", "", "contact ID (omit for a project-wide event)")
	cmd.Flags().StringVar(&emailID, "email", "", "related email ID, if any")
	cmd.Flags().StringVar(&dataJSON, "data", "", "event payload as a JSON object")
	cmd.MarkFlagRequired("project")
	return cmd
}
