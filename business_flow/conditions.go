package businessflow

import (
	"fmt"
	"strconv"
	"strings"

	"github.com/CHINMAYKUDALKAR/LINE-sub002/app/services"
	"github.com/CHINMAYKUDALKAR/LINE-sub002/utils"
)

// Condition operators accepted inside an operator object
const (
	condOpEq  = "eq"
	condOpNeq = "neq"
	condOpLt  = "lt"
	condOpGt  = "gt"
)

var condOperators = map[string]struct{}{condOpEq: {}, condOpNeq: {}, condOpLt: {}, condOpGt: {}}

// ValidateConditions checks that every operator object uses known operators only
func ValidateConditions(conditions map[string]any) error {
	for field, want := range conditions {
		if strings.TrimSpace(field) == "" {
			return fmt.Errorf("%w: empty field name", ErrInvalidCondition)
		}
		ops, ok := want.(map[string]any)
		if !ok {
			continue
		}
		if len(ops) == 0 {
			return fmt.Errorf("%w: field %q has an empty operator object", ErrInvalidCondition, field)
		}
		for op := range ops {
			if _, known := condOperators[op]; !known {
				return fmt.Errorf("%w: field %q uses unknown operator %q", ErrInvalidCondition, field, op)
			}
		}
	}
	return nil
}

// MatchConditions reports whether every condition holds against ctx. A field
// missing from ctx never matches; it is not an error.
func MatchConditions(conditions, ctx map[string]any) bool {
	for field, want := range conditions {
		got, ok := services.LookupPath(ctx, field)
		if !ok || got == nil {
			return false
		}
		ops, isOps := want.(map[string]any)
		if !isOps {
			if !valuesEqual(got, want) {
				return false
			}
			continue
		}
		for op, operand := range ops {
			if !applyOperator(op, got, operand) {
				return false
			}
		}
	}
	return true
}

func applyOperator(op string, got, operand any) bool {
	switch op {
	case condOpEq:
		return valuesEqual(got, operand)
	case condOpNeq:
		return !valuesEqual(got, operand)
	case condOpLt:
		c, ok := compareValues(got, operand)
		return ok && c < 0
	case condOpGt:
		c, ok := compareValues(got, operand)
		return ok && c > 0
	}
	return false
}

func valuesEqual(a, b any) bool {
	if fa, ok := toFloat(a); ok {
		if fb, ok := toFloat(b); ok {
			return fa == fb
		}
	}
	return fmt.Sprint(a) == fmt.Sprint(b)
}

// compareValues orders numbers numerically, then timestamps, then strings
func compareValues(a, b any) (int, bool) {
	if fa, ok := toFloat(a); ok {
		fb, ok := toFloat(b)
		if !ok {
			return 0, false
		}
		switch {
		case fa < fb:
			return -1, true
		case fa > fb:
			return 1, true
		}
		return 0, true
	}
	sa, aStr := a.(string)
	sb, bStr := b.(string)
	if !aStr || !bStr {
		return 0, false
	}
	if ta, err := utils.ParseTimeValue(sa); err == nil {
		if tb, err := utils.ParseTimeValue(sb); err == nil {
			return ta.Compare(tb), true
		}
	}
	return strings.Compare(sa, sb), true
}

func toFloat(v any) (float64, bool) {
	switch n := v.(type) {
	case float64:
		return n, true
	case float32:
		return float64(n), true
	case int:
		return float64(n), true
	case int32:
		return float64(n), true
	case int64:
		return float64(n), true
	case uint:
		return float64(n), true
	case uint64:
		return float64(n), true
	case string:
		f, err := strconv.ParseFloat(strings.TrimSpace(n), 64)
		return f, err == nil
	}
	return 0, false
}
