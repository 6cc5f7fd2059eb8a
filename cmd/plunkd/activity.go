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
	"fmt"
	"time"

	"github.com/spf13/cobra"
)

// newActivityCommand exposes activity.Engine's read path as operator
// commands: like eventrouter, its natural caller is an HTTP/API front
// door, so these give it a way to be exercised and inspected directly
// against the store.
func newActivityCommand() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "activity",
		Short: "Operator commands for the activity feed and stats",
	}
	cmd.AddCommand(newActivityFeedCommand())
	cmd.AddCommand(newActivityStatsCommand())
	return cmd
}

func newActivityFeedCommand() *cobra.Command {
	var projectID, contactID string
	var limit int

	cmd := &cobra.Command{
		Use:   "feed",
		Short: "Print the merged event/email/workflow activity feed for a project",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := loadConfig()
			if err != nil {
				return err
			}
			a, err := newApp(cfg)
			if err != nil {
				return err
			}

			page, err := a.activity.GetActivities(cmd.Context(), projectID, limit, "", nil, contactID, time.Time{}, time.Time{})
			if err != nil {
				return err
			}
			for _, act := range page.Activities {
				fmt.Printf("%s  %-22s contact=%s source=%s\n", act.Timestamp.Format("2006-01-02T15:04:05Z07:00"), act.Type, act.ContactID, act.SourceID)
			}
			if page.HasMore {
				fmt.Printf("(more available, cursor=%s)\n", page.NextCursor)
			}
			return nil
		},
	}
	cmd.Flags().StringVar(&projectID, "project", "", "project ID (required)")
	cmd.Flags().StringVar(&contactID, "contact", "", "restrict to one contact")
	cmd.Flags().IntVar(&limit, "limit", 50, "maximum activities to print")
	cmd.MarkFlagRequired("project")
	return cmd
}

func newActivityStatsCommand() *cobra.Command {
	var projectID string

	cmd := &cobra.Command{
		Use:   "stats",
		Short: "Print aggregated activity stats for a project over its default window",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := loadConfig()
			if err != nil {
				return err
			}
			a, err := newApp(cfg)
			if err != nil {
				return err
			}

			stats, err := a.activity.GetStats(cmd.Context(), projectID, time.Time{}, time.Time{})
			if err != nil {
				return err
			}
			fmt.Printf("events=%d sent=%d delivered=%d opened=%d clicked=%d bounced=%d deliveryRate=%.2f workflowsStarted=%d workflowsCompleted=%d\n",
				stats.EventCount, stats.SentCount, stats.DeliveredCount, stats.OpenedCount, stats.ClickedCount, stats.BouncedCount,
				stats.DeliveryRate, stats.WorkflowStartedCount, stats.WorkflowCompletedCount)
			return nil
		},
	}
	cmd.Flags().StringVar(&projectID, "project", "", "project ID (required)")
	cmd.MarkFlagRequired("project")
	return cmd
}
