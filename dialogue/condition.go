package dialogue

import (
	"fmt"
	"math"
	"sort"
)

type opKind string

const (
	opEq  opKind = "eq"
	opNe  opKind = "ne"
	opGt  opKind = "gt"
	opGte opKind = "gte"
	opLt  opKind = "lt"
	opLte opKind = "lte"
	opIn  opKind = "in"
)

var numericOps = map[opKind]bool{opGt: true, opGte: true, opLt: true, opLte: true}

type operand struct {
	kind  opKind
	value any   // string, bool or float64
	set   []any // for opIn
}

// Predicate is one attribute test. All operands must hold.
type Predicate struct {
	Attr     string
	operands []operand
}

// Conditions is a predicate set ordered by attribute name.
type Conditions []Predicate

// ParseConditions converts an authored condition map into Conditions.
// A scalar value means equality; an object value holds operators.
func ParseConditions(raw map[string]any) (Conditions, error) {
	if len(raw) == 0 {
		return nil, nil
	}
	attrs := make([]string, 0, len(raw))
	for k := range raw {
		attrs = append(attrs, k)
	}
	sort.Strings(attrs)

	out := make(Conditions, 0, len(attrs))
	for _, attr := range attrs {
		if attr == "" {
			return nil, fmt.Errorf("empty attribute name")
		}
		p, err := parsePredicate(attr, raw[attr])
		if err != nil {
			return nil, err
		}
		out = append(out, p)
	}
	return out, nil
}

func parsePredicate(attr string, v any) (Predicate, error) {
	p := Predicate{Attr: attr}
	if s, ok := scalar(v); ok {
		p.operands = []operand{{kind: opEq, value: s}}
		return p, nil
	}
	obj, ok := asObject(v)
	if !ok || len(obj) == 0 {
		return p, fmt.Errorf("attribute %q: unsupported predicate %T", attr, v)
	}

	keys := make([]string, 0, len(obj))
	for k := range obj {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	for _, k := range keys {
		kind := opKind(k)
		arg := obj[k]
		switch {
		case kind == opEq || kind == opNe:
			s, ok := scalar(arg)
			if !ok {
				return p, fmt.Errorf("attribute %q: %s needs a scalar", attr, k)
			}
			p.operands = append(p.operands, operand{kind: kind, value: s})
		case numericOps[kind]:
			n, ok := toNumber(arg)
			if !ok {
				return p, fmt.Errorf("attribute %q: %s needs a number", attr, k)
			}
			p.operands = append(p.operands, operand{kind: kind, value: n})
		case kind == opIn:
			list, ok := arg.([]any)
			if !ok || len(list) == 0 {
				return p, fmt.Errorf("attribute %q: in needs a non-empty list", attr)
			}
			set := make([]any, 0, len(list))
			for _, item := range list {
				s, ok := scalar(item)
				if !ok {
					return p, fmt.Errorf("attribute %q: in accepts scalars only", attr)
				}
				set = append(set, s)
			}
			p.operands = append(p.operands, operand{kind: opIn, set: set})
		default:
			return p, fmt.Errorf("attribute %q: unknown operator %q", attr, k)
		}
	}
	return p, nil
}

// Matches reports whether the player context satisfies the predicate.
func (p Predicate) Matches(ctx map[string]any) bool {
	raw, present := ctx[p.Attr]
	if !present {
		return false
	}
	v, ok := scalar(raw)
	if !ok {
		return false
	}
	for _, op := range p.operands {
		if !op.holds(v) {
			return false
		}
	}
	return true
}

func (op operand) holds(v any) bool {
	switch op.kind {
	case opEq:
		return scalarEqual(v, op.value)
	case opNe:
		return !scalarEqual(v, op.value)
	case opIn:
		for _, s := range op.set {
			if scalarEqual(v, s) {
				return true
			}
		}
		return false
	}

	n, ok := v.(float64)
	if !ok {
		return false
	}
	bound := op.value.(float64)
	switch op.kind {
	case opGt:
		return n > bound
	case opGte:
		return n >= bound
	case opLt:
		return n < bound
	case opLte:
		return n <= bound
	}
	return false
}

// Score returns the fraction of predicates the context satisfies.
// Condition-free sets score zero.
func (c Conditions) Score(ctx map[string]any) float64 {
	if len(c) == 0 || len(ctx) == 0 {
		return 0
	}
	hit := 0
	for _, p := range c {
		if p.Matches(ctx) {
			hit++
		}
	}
	return float64(hit) / float64(len(c))
}

// scalar normalizes bool, string and numeric values. Numbers become float64.
func scalar(v any) (any, bool) {
	switch t := v.(type) {
	case bool, string:
		return t, true
	}
	if n, ok := toNumber(v); ok {
		return n, true
	}
	return nil, false
}

func toNumber(v any) (float64, bool) {
	var n float64
	switch t := v.(type) {
	case float64:
		n = t
	case float32:
		n = float64(t)
	case int:
		n = float64(t)
	case int32:
		n = float64(t)
	case int64:
		n = float64(t)
	case uint:
		n = float64(t)
	case uint32:
		n = float64(t)
	case uint64:
		n = float64(t)
	default:
		return 0, false
	}
	if math.IsNaN(n) || math.IsInf(n, 0) {
		return 0, false
	}
	return n, true
}

func scalarEqual(a, b any) bool {
	switch x := a.(type) {
	case float64:
		y, ok := b.(float64)
		return ok && x == y
	case string:
		y, ok := b.(string)
		return ok && x == y
	case bool:
		y, ok := b.(bool)
		return ok && x == y
	}
	return false
}

// asObject accepts both decoded JSON and decoded YAML object shapes.
func asObject(v any) (map[string]any, bool) {
	switch t := v.(type) {
	case map[string]any:
		return t, true
	case Record:
		return map[string]any(t), true
	}
	return nil, false
}
