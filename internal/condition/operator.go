// Package condition evaluates CONDITION-step comparisons and the
// AudienceFilter predicates campaigns use to resolve recipients. The
// required operator table (equals/notEquals/contains/notContains/
// greaterThan/lessThan/exists/notExists) is plain Go; an optional
// expr-lang escape hatch is layered on top for advanced step configs that
// name a "expression" field instead of field/operator/value (see escape.go).
package condition

import (
	"strconv"
	"strings"

	"github.com/driaug/plunk/internal/domain"
)

// Evaluate applies operator to (actual, expected) per the following
// operator semantics:
//
//	equals, notEquals       — strict equality via fmt-stringified comparison
//	                           for scalars (covers string/number/bool mixes
//	                           from JSON-decoded config).
//	contains, notContains    — string substring; null/undefined => contains
//	                           false, notContains true.
//	greaterThan, lessThan    — numeric parse of both sides.
//	exists, notExists        — treat nil as absent.
func Evaluate(operator domain.ConditionOperator, actual, expected any) bool {
	switch operator {
	case domain.OpExists:
		return actual != nil
	case domain.OpNotExists:
		return actual == nil
	case domain.OpEquals:
		return equalValues(actual, expected)
	case domain.OpNotEquals:
		return !equalValues(actual, expected)
	case domain.OpContains:
		if actual == nil {
			return false
		}
		return strings.Contains(toString(actual), toString(expected))
	case domain.OpNotContains:
		if actual == nil {
			return true
		}
		return !strings.Contains(toString(actual), toString(expected))
	case domain.OpGreaterThan:
		a, aok := toFloat(actual)
		b, bok := toFloat(expected)
		return aok && bok && a > b
	case domain.OpLessThan:
		a, aok := toFloat(actual)
		b, bok := toFloat(expected)
		return aok && bok && a < b
	default:
		return false
	}
}

func equalValues(a, b any) bool {
	if a == nil || b == nil {
		return a == nil && b == nil
	}
	if af, aok := toFloat(a); aok {
		if bf, bok := toFloat(b); bok {
			return af == bf
		}
	}
	return toString(a) == toString(b)
}

func toString(v any) string {
	switch t := v.(type) {
	case nil:
		return ""
	case string:
		return t
	case bool:
		return strconv.FormatBool(t)
	case float64:
		return strconv.FormatFloat(t, 'f', -1, 64)
	case float32:
		return strconv.FormatFloat(float64(t), 'f', -1, 32)
	case int:
		return strconv.Itoa(t)
	case int64:
		return strconv.FormatInt(t, 10)
	default:
		return ""
	}
}

func toFloat(v any) (float64, bool) {
	switch t := v.(type) {
	case float64:
		return t, true
	case float32:
		return float64(t), true
	case int:
		return float64(t), true
	case int64:
		return float64(t), true
	case string:
		f, err := strconv.ParseFloat(t, 64)
		return f, err == nil
	default:
		return 0, false
	}
}
