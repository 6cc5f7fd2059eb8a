package condition

import "strings"

// ResolvePath walks a dot-separated field path across a {contact, data,
// workflow} root, mirroring pkg/workflow/expression's path resolution but
// returning (nil, false) instead of an error on a missing segment — a
// CONDITION step treats a missing path as "absent" (exists=false), not a
// validation failure.
func ResolvePath(path string, root map[string]any) (any, bool) {
	if path == "" {
		return nil, false
	}

	var current any = root
	for _, part := range strings.Split(path, ".") {
		part = strings.TrimSpace(part)
		if part == "" {
			return nil, false
		}
		m, ok := current.(map[string]any)
		if !ok {
			return nil, false
		}
		val, ok := m[part]
		if !ok {
			return nil, false
		}
		current = val
	}
	return current, true
}

// Root builds the {contact, data, workflow} resolution context a
// CONDITION/AudienceFilter field path is evaluated against.
func Root(contactData, eventData, workflowContext map[string]any) map[string]any {
	return map[string]any{
		"contact":  contactData,
		"data":     eventData,
		"workflow": workflowContext,
	}
}
