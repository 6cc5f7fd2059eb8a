package runtime

import (
	"sort"

	"github.com/driaug/plunk/internal/domain"
)

// outgoing returns wf's Transitions leaving stepID, ordered by Priority
// ascending (ties broken by ID for a stable, deterministic order).
func outgoing(wf *domain.Workflow, stepID string) []domain.Transition {
	var out []domain.Transition
	for _, t := range wf.Transitions {
		if t.FromStepID == stepID {
			out = append(out, t)
		}
	}
	sort.SliceStable(out, func(i, j int) bool {
		if out[i].Priority != out[j].Priority {
			return out[i].Priority < out[j].Priority
		}
		return out[i].ID < out[j].ID
	})
	return out
}

// selectTransition picks the transition after a step completes: prefer
// one whose condition.branch matches the step's output branch, else the
// first unconditional transition, else the first transition outright.
func selectTransition(wf *domain.Workflow, stepID string, output *domain.StepOutput) (domain.Transition, bool) {
	edges := outgoing(wf, stepID)
	if len(edges) == 0 {
		return domain.Transition{}, false
	}

	if output != nil && output.Branch != "" {
		for _, t := range edges {
			if t.Condition.Branch == output.Branch {
				return t, true
			}
		}
	}
	for _, t := range edges {
		if t.Condition.IsZero() {
			return t, true
		}
	}
	return edges[0], true
}

// selectTimeoutTransition picks the timeout-branch transition for
// ProcessTimeout: the first transition flagged for the timeout branch or
// marked as the fallback, else the first transition, else none.
func selectTimeoutTransition(wf *domain.Workflow, stepID string) (domain.Transition, bool) {
	edges := outgoing(wf, stepID)
	if len(edges) == 0 {
		return domain.Transition{}, false
	}
	for _, t := range edges {
		if t.Condition.Branch == "timeout" || t.Condition.Fallback {
			return t, true
		}
	}
	return edges[0], true
}

func stepByID(wf *domain.Workflow, id string) (domain.Step, bool) {
	for _, s := range wf.Steps {
		if s.ID == id {
			return s, true
		}
	}
	return domain.Step{}, false
}
