package scenario

import (
	"fmt"
	"math"
	"strconv"
	"strings"
)

// Field selects what a Condition inspects.
type Field int

const (
	FieldPeriod Field = iota
	FieldValue
)

func (f Field) String() string {
	if f == FieldPeriod {
		return "period"
	}
	return "value"
}

// Op is a comparison operator.
type Op string

const (
	OpGT Op = ">"
	OpLT Op = "<"
	OpGE Op = ">="
	OpLE Op = "<="
	OpEQ Op = "=="
)

// Compare applies op to (lhs, rhs). Unknown operators never match.
func (op Op) Compare(lhs, rhs float64) bool {
	switch op {
	case OpGT:
		return lhs > rhs
	case OpLT:
		return lhs < rhs
	case OpGE:
		return lhs >= rhs
	case OpLE:
		return lhs <= rhs
	case OpEQ:
		return lhs == rhs
	default:
		return false
	}
}

// Condition is a single period- or value-range predicate.
type Condition struct {
	Field     Field   `json:"field"`
	Op        Op      `json:"op"`
	Threshold float64 `json:"threshold"`
}

// ActionKind is the adjustment applied when a rule matches.
type ActionKind int

const (
	ActionSet ActionKind = iota
	ActionAdd
	ActionMultiply
	// ActionFloor raises the value to at least Operand.
	ActionFloor
	// ActionCap lowers the value to at most Operand.
	ActionCap
)

// Action is the adjustment half of a Rule.
type Action struct {
	Kind    ActionKind `json:"kind"`
	Operand float64    `json:"operand"`
}

// Rule adjusts a period's value when its conditions hold. All conditions
// must hold unless Any is set. A rule with no conditions always matches.
type Rule struct {
	Conditions []Condition `json:"conditions"`
	Any        bool        `json:"any,omitempty"`
	Action     Action      `json:"action"`
}

// Matches reports whether the rule fires for a (0-based) period and its running value.
func (r Rule) Matches(period int, value float64) bool {
	if len(r.Conditions) == 0 {
		return true
	}
	for _, c := range r.Conditions {
		lhs := value
		if c.Field == FieldPeriod {
			lhs = float64(period)
		}
		ok := c.Op.Compare(lhs, c.Threshold)
		if r.Any && ok {
			return true
		}
		if !r.Any && !ok {
			return false
		}
	}
	return !r.Any
}

// Apply returns the adjusted value.
func (a Action) Apply(value float64) float64 {
	switch a.Kind {
	case ActionSet:
		return a.Operand
	case ActionAdd:
		return value + a.Operand
	case ActionMultiply:
		return value * a.Operand
	case ActionFloor:
		return math.Max(a.Operand, value)
	case ActionCap:
		return math.Min(a.Operand, value)
	default:
		return value
	}
}

// ParseRule compiles the closed rule grammar
//
//	if <period|value> <op> <number> [and|or ...] then value = <expr>
//
// where <expr> is <number>, value <+|-|*|/> <number>, max(<number>, value)
// or min(<number>, value). Mixing "and" with "or" is rejected.
func ParseRule(text string) (Rule, error) {
	s := strings.TrimSpace(strings.ToLower(text))
	if !strings.HasPrefix(s, "if ") {
		return Rule{}, fmt.Errorf("ParseRule: %q: expected leading \"if\"", text)
	}
	condPart, actionPart, ok := strings.Cut(s[len("if "):], " then ")
	if !ok {
		return Rule{}, fmt.Errorf("ParseRule: %q: missing \"then\"", text)
	}

	var r Rule
	hasAnd := strings.Contains(condPart, " and ")
	hasOr := strings.Contains(condPart, " or ")
	if hasAnd && hasOr {
		return Rule{}, fmt.Errorf("ParseRule: %q: mixing and/or is not supported", text)
	}
	sep := " and "
	if hasOr {
		sep = " or "
		r.Any = true
	}
	for _, clause := range strings.Split(condPart, sep) {
		c, err := parseCondition(clause)
		if err != nil {
			return Rule{}, fmt.Errorf("ParseRule: %q: %w", text, err)
		}
		r.Conditions = append(r.Conditions, c)
	}

	a, err := parseAction(actionPart)
	if err != nil {
		return Rule{}, fmt.Errorf("ParseRule: %q: %w", text, err)
	}
	r.Action = a
	return r, nil
}

func parseCondition(clause string) (Condition, error) {
	fields := strings.Fields(clause)
	if len(fields) != 3 {
		return Condition{}, fmt.Errorf("condition %q: want <field> <op> <number>", clause)
	}
	var c Condition
	switch fields[0] {
	case "period":
		c.Field = FieldPeriod
	case "value":
		c.Field = FieldValue
	default:
		return Condition{}, fmt.Errorf("condition %q: unknown field %q", clause, fields[0])
	}
	switch Op(fields[1]) {
	case OpGT, OpLT, OpGE, OpLE, OpEQ:
		c.Op = Op(fields[1])
	default:
		return Condition{}, fmt.Errorf("condition %q: unknown operator %q", clause, fields[1])
	}
	v, err := strconv.ParseFloat(fields[2], 64)
	if err != nil {
		return Condition{}, fmt.Errorf("condition %q: %w", clause, err)
	}
	c.Threshold = v
	return c, nil
}

func parseAction(s string) (Action, error) {
	lhs, rhs, ok := strings.Cut(s, "=")
	if !ok || strings.TrimSpace(lhs) != "value" {
		return Action{}, fmt.Errorf("action %q: want value = <expr>", s)
	}
	expr := strings.ReplaceAll(strings.TrimSpace(rhs), " ", "")
	expr = strings.TrimPrefix(expr, "math.")

	for _, fn := range []struct {
		name string
		kind ActionKind
	}{{"max(", ActionFloor}, {"min(", ActionCap}} {
		if !strings.HasPrefix(expr, fn.name) || !strings.HasSuffix(expr, ")") {
			continue
		}
		args := strings.Split(expr[len(fn.name):len(expr)-1], ",")
		if len(args) != 2 {
			return Action{}, fmt.Errorf("action %q: %s takes two arguments", s, strings.TrimSuffix(fn.name, "("))
		}
		num := args[0]
		if num == "value" {
			num = args[1]
		} else if args[1] != "value" {
			return Action{}, fmt.Errorf("action %q: one argument must be value", s)
		}
		v, err := strconv.ParseFloat(num, 64)
		if err != nil {
			return Action{}, fmt.Errorf("action %q: %w", s, err)
		}
		return Action{Kind: fn.kind, Operand: v}, nil
	}

	if v, err := strconv.ParseFloat(expr, 64); err == nil {
		return Action{Kind: ActionSet, Operand: v}, nil
	}

	if !strings.HasPrefix(expr, "value") || len(expr) < len("value")+2 {
		return Action{}, fmt.Errorf("action %q: unsupported expression", s)
	}
	op, num := expr[len("value")], expr[len("value")+1:]
	v, err := strconv.ParseFloat(num, 64)
	if err != nil {
		return Action{}, fmt.Errorf("action %q: %w", s, err)
	}
	switch op {
	case '+':
		return Action{Kind: ActionAdd, Operand: v}, nil
	case '-':
		return Action{Kind: ActionAdd, Operand: -v}, nil
	case '*':
		return Action{Kind: ActionMultiply, Operand: v}, nil
	case '/':
		if v == 0 {
			return Action{}, fmt.Errorf("action %q: division by zero", s)
		}
		return Action{Kind: ActionMultiply, Operand: 1 / v}, nil
	default:
		return Action{}, fmt.Errorf("action %q: unsupported operator %q", s, op)
	}
}
