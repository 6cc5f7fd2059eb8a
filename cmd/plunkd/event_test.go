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

import "testing"

func TestNewEventCommand_HasTrackSubcommand(t *testing.T) {
	cmd := newEventCommand()
	found := false
	for _, c := range cmd.Commands() {
		if c.Name() == "track" {
			found = true
		}
	}
	if !found {
		t.Error("want a track subcommand")
	}
}

func TestNewEventTrackCommand_RequiresEventNameArgAndProjectFlag(t *testing.T) {
	cmd := newEventTrackCommand()
	if err := cmd.Args(cmd, nil); err == nil {
		t.Error("want an error with zero args (eventName required)")
	}
	if err := cmd.Args(cmd, []string{"signup"}); err != nil {
		t.Errorf("want one arg accepted, got %v", err)
	}

	if cmd.Flags().Lookup("project") == nil {
		t.Fatal("want a --project flag")
	}
}

func TestNewEventTrackCommand_OptionalFlagsPresent(t *testing.T) {
	cmd := newEventTrackCommand()
	for _, name := range []string{"contact", "email", "data"} {
		if cmd.Flags().Lookup(name) == nil {
			t.Errorf("want a --%s flag", name)
		}
	}
}
