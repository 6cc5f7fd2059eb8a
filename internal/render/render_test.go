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

package render

import "testing"

func TestRender_SimpleSubstitution(t *testing.T) {
	got := Render("Hello {{name}}!", map[string]any{"name": "Ava"})
	if got != "Hello Ava!" {
		t.Errorf("Render = %q, want %q", got, "Hello Ava!")
	}
}

func TestRender_MissingIdentifierWithoutFallbackRendersEmpty(t *testing.T) {
	got := Render("Hello {{name}}!", map[string]any{})
	if got != "Hello !" {
		t.Errorf("Render = %q, want %q", got, "Hello !")
	}
}

func TestRender_NilValueUsesFallback(t *testing.T) {
	got := Render(`Hi {{name ?? "friend"}}`, map[string]any{"name": nil})
	if got != "Hi friend" {
		t.Errorf("Render = %q, want %q", got, "Hi friend")
	}
}

func TestRender_FallbackOnlyUsedWhenMissing(t *testing.T) {
	got := Render(`Hi {{name ?? "friend"}}`, map[string]any{"name": "Ava"})
	if got != "Hi Ava" {
		t.Errorf("Render = %q, want %q", got, "Hi Ava")
	}
}

func TestRender_StringSliceExpandsToListItems(t *testing.T) {
	got := Render("{{items}}", map[string]any{"items": []string{"a", "b"}})
	want := "<li>a</li>\n<li>b</li>"
	if got != want {
		t.Errorf("Render = %q, want %q", got, want)
	}
}

func TestRender_AnySliceOfStringsExpandsToListItems(t *testing.T) {
	got := Render("{{items}}", map[string]any{"items": []any{"a", "b"}})
	want := "<li>a</li>\n<li>b</li>"
	if got != want {
		t.Errorf("Render = %q, want %q", got, want)
	}
}

func TestRender_NumericAndBoolCoercion(t *testing.T) {
	got := Render("{{count}} {{active}}", map[string]any{"count": 3, "active": true})
	if got != "3 true" {
		t.Errorf("Render = %q, want %q", got, "3 true")
	}
}

func TestRender_WhitespaceInsideBracesIsTrimmed(t *testing.T) {
	got := Render("{{  name  }}", map[string]any{"name": "Ava"})
	if got != "Ava" {
		t.Errorf("Render = %q, want %q", got, "Ava")
	}
}

func TestFlatten_LaterMapsWinOnKeyCollision(t *testing.T) {
	out := Flatten(
		map[string]any{"name": "Ava", "plan": "free"},
		map[string]any{"plan": "pro"},
	)
	if out["name"] != "Ava" || out["plan"] != "pro" {
		t.Errorf("Flatten = %+v, want name=Ava plan=pro", out)
	}
}

func TestFlatten_NoMapsReturnsEmpty(t *testing.T) {
	out := Flatten()
	if len(out) != 0 {
		t.Errorf("Flatten() = %+v, want empty", out)
	}
}
