package value

import (
	"encoding/json"
	"fmt"
	"reflect"
	"regexp"
	"strconv"
	"strings"
)

// leadingNumber is the numeric prefix of a reading such as "50%" or "+45.0°C"
var leadingNumber = regexp.MustCompile(`^[+-]?(\d+\.?\d*|\.\d+)([eE][+-]?\d+)?`)

// Kind is the variant held by a Value
type Kind int

const (
	KindNull Kind = iota
	KindNumber
	KindText
	KindObject
)

func (k Kind) String() string {
	switch k {
	case KindNumber:
		return "number"
	case KindText:
		return "text"
	case KindObject:
		return "object"
	default:
		return "null"
	}
}

// Value is a device metric, threshold or desired state.
// The zero Value is Null.
type Value struct {
	kind Kind
	num  float64
	text string
	obj  map[string]interface{}
}

// Null is the absent value
var Null = Value{}

// Number wraps a float
func Number(f float64) Value {
	return Value{kind: KindNumber, num: f}
}

// Text wraps a string
func Text(s string) Value {
	return Value{kind: KindText, text: s}
}

// Object wraps a structured value, e.g. a color {"red": 255, "green": 0, "blue": 0}
func Object(m map[string]interface{}) Value {
	if m == nil {
		return Null
	}
	return Value{kind: KindObject, obj: m}
}

// On and Off are the boolean level labels
var (
	On  = Text("on")
	Off = Text("off")
)

// From converts a decoded JSON/YAML value into a Value.
// Booleans become "on"/"off", unknown types become Null.
func From(v interface{}) Value {
	switch t := v.(type) {
	case nil:
		return Null
	case Value:
		return t
	case float64:
		return Number(t)
	case float32:
		return Number(float64(t))
	case int:
		return Number(float64(t))
	case int64:
		return Number(float64(t))
	case uint8:
		return Number(float64(t))
	case json.Number:
		f, err := t.Float64()
		if err != nil {
			return Text(t.String())
		}
		return Number(f)
	case string:
		return Text(t)
	case bool:
		if t {
			return On
		}
		return Off
	case map[string]interface{}:
		return Object(t)
	default:
		return Null
	}
}

func (v Value) Kind() Kind     { return v.kind }
func (v Value) IsNull() bool   { return v.kind == KindNull }
func (v Value) IsNumber() bool { return v.kind == KindNumber }
func (v Value) IsText() bool   { return v.kind == KindText }
func (v Value) IsObject() bool { return v.kind == KindObject }

// Num returns the number, 0 when v is not a Number
func (v Value) Num() float64 { return v.num }

// Str returns the text, "" when v is not Text
func (v Value) Str() string { return v.text }

// Map returns the object, nil when v is not an Object
func (v Value) Map() map[string]interface{} { return v.obj }

// IsSwitch reports whether v is the text "on" or "off"
func (v Value) IsSwitch() bool {
	return v.kind == KindText && (v.text == "on" || v.text == "off")
}

// Float parses v as a float: numbers as-is, text when it starts with a number
func (v Value) Float() (float64, bool) {
	switch v.kind {
	case KindNumber:
		return v.num, true
	case KindText:
		n := leadingNumber.FindString(strings.TrimSpace(v.text))
		if n == "" {
			return 0, false
		}
		f, err := strconv.ParseFloat(n, 64)
		if err != nil {
			return 0, false
		}
		return f, true
	}
	return 0, false
}

// Equal is strict equality: same variant and same content.
// Null equals nothing, not even Null.
func Equal(a, b Value) bool {
	if a.kind != b.kind {
		return false
	}
	switch a.kind {
	case KindNumber:
		return a.num == b.num
	case KindText:
		return a.text == b.text
	case KindObject:
		return reflect.DeepEqual(a.obj, b.obj)
	}
	return false
}

// Compare orders two values of the same scalar variant. ok is false for Null, Object
// and cross-variant pairs.
func Compare(a, b Value) (cmp int, ok bool) {
	if a.kind != b.kind {
		return 0, false
	}
	switch a.kind {
	case KindNumber:
		switch {
		case a.num < b.num:
			return -1, true
		case a.num > b.num:
			return 1, true
		}
		return 0, true
	case KindText:
		return strings.Compare(a.text, b.text), true
	}
	return 0, false
}

// Changed reports whether moving from current to desired is a change. When both parse
// as floats they are compared numerically, otherwise by strict inequality.
func Changed(current, desired Value) bool {
	cf, cok := current.Float()
	df, dok := desired.Float()
	if cok && dok {
		return cf != df
	}
	if cok != dok {
		return true
	}
	return !Equal(current, desired)
}

// Interface returns the plain Go value, for encoding
func (v Value) Interface() interface{} {
	switch v.kind {
	case KindNumber:
		return v.num
	case KindText:
		return v.text
	case KindObject:
		return v.obj
	}
	return nil
}

func (v Value) String() string {
	switch v.kind {
	case KindNumber:
		return strconv.FormatFloat(v.num, 'f', -1, 64)
	case KindText:
		return v.text
	case KindObject:
		return fmt.Sprintf("%v", v.obj)
	}
	return "null"
}

// MarshalJSON encodes the underlying plain value
func (v Value) MarshalJSON() ([]byte, error) {
	return json.Marshal(v.Interface())
}

// UnmarshalJSON decodes any JSON scalar or object
func (v *Value) UnmarshalJSON(b []byte) error {
	var raw interface{}
	if err := json.Unmarshal(b, &raw); err != nil {
		return err
	}
	*v = From(raw)
	return nil
}
