package condition

import (
	"fmt"

	"github.com/driaug/plunk/internal/domain"
)

// Evaluator resolves a CONDITION step's config.field against a
// {contact,data,workflow} root and applies config.operator/config.value.
type Evaluator struct {
	expr *ExprEvaluator // optional escape hatch, lazily wired by the caller
}

// New creates an Evaluator with no expr-lang escape hatch configured.
func New() *Evaluator {
	return &Evaluator{}
}

// WithExpr attaches the expr-lang escape hatch (see escape.go); returns the
// receiver for chaining.
func (e *Evaluator) WithExpr(ee *ExprEvaluator) *Evaluator {
	e.expr = ee
	return e
}

// EvaluateStep evaluates a CONDITION step's config against root and
// returns the branch label ("yes"/"no").
func (e *Evaluator) EvaluateStep(cfg domain.ConditionConfig, root map[string]any) (branch string, err error) {
	if cfg.Field == "expression" && e.expr != nil {
		if exprStr, ok := cfg.Value.(string); ok {
			ok, err := e.expr.Evaluate(exprStr, root)
			if err != nil {
				return "", err
			}
			return branchFor(ok), nil
		}
	}

	actual, _ := ResolvePath(cfg.Field, root)
	result := Evaluate(cfg.Operator, actual, cfg.Value)
	return branchFor(result), nil
}

func branchFor(result bool) string {
	if result {
		return "yes"
	}
	return "no"
}

// MatchFilters reports whether all AudienceFilters pass against contactData
// (ANDed together), used to resolve SEGMENT/FILTERED campaign audiences.
func MatchFilters(filters []domain.AudienceFilter, contactData map[string]any) bool {
	root := Root(contactData, nil, nil)
	for _, f := range filters {
		actual, _ := ResolvePath("contact."+f.Field, root)
		if !Evaluate(f.Operator, actual, f.Value) {
			return false
		}
	}
	return true
}

// ValidateConfig checks that a CONDITION step's config names a field and a
// supported operator, rejecting malformed config at mutation time with a
// ValidationError.
func ValidateConfig(cfg domain.ConditionConfig) error {
	if cfg.Field == "" {
		return fmt.Errorf("condition: field is required")
	}
	switch cfg.Operator {
	case domain.OpEquals, domain.OpNotEquals, domain.OpContains, domain.OpNotContains,
		domain.OpGreaterThan, domain.OpLessThan, domain.OpExists, domain.OpNotExists:
		return nil
	default:
		return fmt.Errorf("condition: unsupported operator %q", cfg.Operator)
	}
}
