package action

import (
	"fmt"

	"github.com/cloudkucooland/ifthen/devices"
	"github.com/cloudkucooland/ifthen/value"
)

// Kind says what the desired value of an action is
type Kind int

const (
	Level Kind = iota
	Color
	StatusLabel
)

func (k Kind) String() string {
	switch k {
	case Level:
		return "level"
	case Color:
		return "color"
	default:
		return "status"
	}
}

// Action is one "then" of a rule: put Target into Desired
type Action struct {
	Target string       // device ID
	Type   devices.Type // the device type this action was written for; scene for scene actions
	Kind   Kind
	// number or "on"/"off" for Level, object for Color, text for StatusLabel
	Desired value.Value
	// only send when the target's current level differs from Desired
	SendOnlyOnChange bool
}

// Validate checks that the desired value fits the kind
func (a Action) Validate() error {
	if a.Target == "" {
		return fmt.Errorf("action target unset")
	}
	if a.Type == "" {
		return fmt.Errorf("action type unset for target %s", a.Target)
	}
	if a.Type.Class() == devices.ClassScene && a.Desired.IsNull() {
		return nil
	}
	switch a.Kind {
	case Level:
		if !a.Desired.IsNumber() && !a.Desired.IsSwitch() {
			return fmt.Errorf("level action for %s wants a number or on/off, got %s", a.Target, a.Desired.Kind())
		}
	case Color:
		if !a.Desired.IsObject() {
			return fmt.Errorf("color action for %s wants an object, got %s", a.Target, a.Desired.Kind())
		}
	case StatusLabel:
		if !a.Desired.IsText() {
			return fmt.Errorf("status action for %s wants text, got %s", a.Target, a.Desired.Kind())
		}
	default:
		return fmt.Errorf("unknown action kind %d for %s", a.Kind, a.Target)
	}
	return nil
}
