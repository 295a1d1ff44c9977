package rule

import (
	"fmt"

	"github.com/cloudkucooland/ifthen/devices"
	"github.com/cloudkucooland/ifthen/value"
)

// Operator compares an event value with a threshold
type Operator int

const (
	None Operator = iota
	GT
	EQ
	LT
)

// ParseOperator accepts the symbols used in rule files
func ParseOperator(s string) (Operator, error) {
	switch s {
	case "":
		return None, nil
	case ">":
		return GT, nil
	case "=", "==":
		return EQ, nil
	case "<":
		return LT, nil
	}
	return None, fmt.Errorf("unknown operator %q", s)
}

func (o Operator) String() string {
	switch o {
	case GT:
		return ">"
	case EQ:
		return "="
	case LT:
		return "<"
	}
	return ""
}

// MarshalText lets operators show up as symbols in JSON
func (o Operator) MarshalText() ([]byte, error) {
	return []byte(o.String()), nil
}

// Condition is the "if" of a rule
type Condition struct {
	DeviceID  string
	Metric    string // defaults to metrics:level
	Operator  Operator
	Threshold value.Value
}

func (c Condition) metric() string {
	if c.Metric == "" {
		return devices.MetricLevel
	}
	return c.Metric
}

// Match decides whether v, reported by a device of the given class, satisfies c.
// Cross-variant comparisons are false, never coerced.
func Match(c Condition, v value.Value, class devices.Class) bool {
	if class == devices.ClassToggleButton {
		return true
	}
	if value.Equal(v, c.Threshold) {
		return true
	}
	if c.Threshold.IsNull() {
		return false
	}

	switch c.Operator {
	case EQ:
		return value.Equal(v, c.Threshold)
	case GT:
		cmp, ok := value.Compare(v, c.Threshold)
		return ok && cmp > 0
	case LT:
		cmp, ok := value.Compare(v, c.Threshold)
		return ok && cmp < 0
	}
	return false
}
