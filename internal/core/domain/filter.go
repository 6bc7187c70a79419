package domain

import (
	"fmt"
	"strconv"
	"strings"
)

type ConditionKind string

const (
	ConditionMatch ConditionKind = "match"
	ConditionRange ConditionKind = "range"
)

// Range bounds a numeric attribute. Nil bounds are open.
type Range struct {
	Gt  *float64 `json:"gt,omitempty"`
	Gte *float64 `json:"gte,omitempty"`
	Lt  *float64 `json:"lt,omitempty"`
	Lte *float64 `json:"lte,omitempty"`
}

func (r Range) IsEmpty() bool {
	return r.Gt == nil && r.Gte == nil && r.Lt == nil && r.Lte == nil
}

func (r Range) Contains(v float64) bool {
	if r.Gt != nil && !(v > *r.Gt) {
		return false
	}
	if r.Gte != nil && !(v >= *r.Gte) {
		return false
	}
	if r.Lt != nil && !(v < *r.Lt) {
		return false
	}
	if r.Lte != nil && !(v <= *r.Lte) {
		return false
	}
	return true
}

// Condition is a single attribute constraint: an exact match or a numeric range.
type Condition struct {
	Attribute string        `json:"attribute"`
	Kind      ConditionKind `json:"kind"`
	Value     string        `json:"value,omitempty"`
	Range     Range         `json:"range,omitempty"`
}

func NewMatch(attribute, value string) Condition {
	return Condition{Attribute: attribute, Kind: ConditionMatch, Value: value}
}

func NewRange(attribute string, r Range) Condition {
	return Condition{Attribute: attribute, Kind: ConditionRange, Range: r}
}

// FilterPredicate is a conjunction of conditions. The zero value matches everything.
type FilterPredicate struct {
	Conditions []Condition `json:"conditions,omitempty"`
}

func (p FilterPredicate) IsEmpty() bool {
	return len(p.Conditions) == 0
}

// Value returns the match value for attribute, if the predicate constrains it.
func (p FilterPredicate) Value(attribute string) (string, bool) {
	for _, c := range p.Conditions {
		if c.Kind == ConditionMatch && c.Attribute == attribute {
			return c.Value, true
		}
	}
	return "", false
}

// Matches reports whether metadata satisfies every condition. A missing
// attribute never satisfies a condition.
func (p FilterPredicate) Matches(metadata map[string]any) bool {
	for _, c := range p.Conditions {
		v, ok := metadata[c.Attribute]
		if !ok || v == nil {
			return false
		}
		switch c.Kind {
		case ConditionMatch:
			if !matchValue(v, c.Value) {
				return false
			}
		case ConditionRange:
			n, ok := toFloat(v)
			if !ok || !c.Range.Contains(n) {
				return false
			}
		default:
			return false
		}
	}
	return true
}

func (p FilterPredicate) String() string {
	if p.IsEmpty() {
		return "<none>"
	}
	parts := make([]string, 0, len(p.Conditions))
	for _, c := range p.Conditions {
		switch c.Kind {
		case ConditionMatch:
			parts = append(parts, fmt.Sprintf("%s=%s", c.Attribute, c.Value))
		case ConditionRange:
			parts = append(parts, c.Attribute+rangeString(c.Range))
		}
	}
	return strings.Join(parts, " AND ")
}

func rangeString(r Range) string {
	var b strings.Builder
	write := func(op string, v *float64) {
		if v == nil {
			return
		}
		b.WriteString(op)
		b.WriteString(strconv.FormatFloat(*v, 'f', -1, 64))
	}
	write(">", r.Gt)
	write(">=", r.Gte)
	write("<", r.Lt)
	write("<=", r.Lte)
	return b.String()
}

func matchValue(v any, want string) bool {
	switch t := v.(type) {
	case string:
		return strings.EqualFold(strings.TrimSpace(t), want)
	case []string:
		for _, item := range t {
			if strings.EqualFold(strings.TrimSpace(item), want) {
				return true
			}
		}
		return false
	case []any:
		for _, item := range t {
			if matchValue(item, want) {
				return true
			}
		}
		return false
	default:
		return strings.EqualFold(fmt.Sprintf("%v", t), want)
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
		n, err := strconv.ParseFloat(strings.TrimSpace(t), 64)
		return n, err == nil
	default:
		return 0, false
	}
}
