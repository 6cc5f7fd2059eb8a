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

package condition

import "testing"

func TestResolvePath_WalksNestedMaps(t *testing.T) {
	root := Root(map[string]any{"plan": map[string]any{"tier": "pro"}}, nil, nil)
	val, ok := ResolvePath("contact.plan.tier", root)
	if !ok || val != "pro" {
		t.Errorf("ResolvePath = %v, %v, want pro, true", val, ok)
	}
}

func TestResolvePath_MissingSegmentIsAbsentNotError(t *testing.T) {
	root := Root(map[string]any{"plan": "pro"}, nil, nil)
	val, ok := ResolvePath("contact.missing.deeper", root)
	if ok || val != nil {
		t.Errorf("ResolvePath on a missing path = %v, %v, want nil, false", val, ok)
	}
}

func TestResolvePath_EmptyPathIsAbsent(t *testing.T) {
	if _, ok := ResolvePath("", Root(nil, nil, nil)); ok {
		t.Error("want an empty path to resolve as absent")
	}
}

func TestResolvePath_NonMapIntermediateIsAbsent(t *testing.T) {
	root := Root(map[string]any{"plan": "pro"}, nil, nil)
	if _, ok := ResolvePath("contact.plan.tier", root); ok {
		t.Error("want descending into a string value to resolve as absent")
	}
}

func TestRoot_NilSectionsStayNil(t *testing.T) {
	root := Root(nil, nil, nil)
	for _, key := range []string{"contact", "data", "workflow"} {
		m, ok := root[key].(map[string]any)
		if !ok || m != nil {
			t.Errorf("root[%q] = %#v, want a nil map[string]any", key, root[key])
		}
	}
}
