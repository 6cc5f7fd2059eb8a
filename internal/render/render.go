// Package render implements the email body/subject template grammar:
// {{identifier}} substitution, {{identifier ?? default}} fallback, and
// array-of-strings expansion to a joined <li> list. A single regex pass
// stringifies resolved values directly into the output text.
package render

import (
	"fmt"
	"regexp"
	"strconv"
	"strings"
)

var templatePattern = regexp.MustCompile(`\{\{\s*([^}]+?)\s*\}\}`)

// Render substitutes every {{identifier}} / {{identifier ?? default}} token
// in text using data, a flat key->value map: rendering is against a single
// merged {email, ...contact.data, ...execution.context} map, already
// flattened by the caller.
func Render(text string, data map[string]any) string {
	return templatePattern.ReplaceAllStringFunc(text, func(match string) string {
		inner := match[2 : len(match)-2]
		identifier, fallback, hasFallback := splitFallback(inner)

		value, ok := data[strings.TrimSpace(identifier)]
		if !ok || isNullish(value) {
			if hasFallback {
				return fallback
			}
			return ""
		}
		return stringify(value)
	})
}

// splitFallback splits "identifier ?? default" into its two parts; default
// may itself contain whitespace, so only the first "??" is significant.
func splitFallback(inner string) (identifier, fallback string, hasFallback bool) {
	idx := strings.Index(inner, "??")
	if idx < 0 {
		return strings.TrimSpace(inner), "", false
	}
	identifier = strings.TrimSpace(inner[:idx])
	fallback = strings.TrimSpace(inner[idx+2:])
	fallback = strings.Trim(fallback, `"'`)
	return identifier, fallback, true
}

func isNullish(v any) bool {
	return v == nil
}

// stringify converts a resolved value to its rendered text. A []string (or
// []any of strings) renders as a newline-joined <li>...</li> list;
// everything else uses default Go string coercion.
func stringify(v any) string {
	switch t := v.(type) {
	case string:
		return t
	case []string:
		return renderList(t)
	case []any:
		items := make([]string, 0, len(t))
		allStrings := true
		for _, item := range t {
			s, ok := item.(string)
			if !ok {
				allStrings = false
				break
			}
			items = append(items, s)
		}
		if allStrings {
			return renderList(items)
		}
		return fmt.Sprintf("%v", t)
	case float64:
		return strconv.FormatFloat(t, 'f', -1, 64)
	case int:
		return strconv.Itoa(t)
	case bool:
		return strconv.FormatBool(t)
	default:
		return fmt.Sprintf("%v", t)
	}
}

func renderList(items []string) string {
	lines := make([]string, len(items))
	for i, s := range items {
		lines[i] = "<li>" + s + "</li>"
	}
	return strings.Join(lines, "\n")
}

// Flatten merges email/contact-data/execution-context maps into the single
// flat map Render expects, with later maps taking precedence — the
// SEND_EMAIL rendering context is {email, ...contact.data,
// ...execution.context}.
func Flatten(maps ...map[string]any) map[string]any {
	out := make(map[string]any)
	for _, m := range maps {
		for k, v := range m {
			out[k] = v
		}
	}
	return out
}
