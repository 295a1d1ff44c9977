package rule

import (
	"github.com/cloudkucooland/ifthen/action"
	"github.com/cloudkucooland/ifthen/devices"
	"github.com/cloudkucooland/ifthen/value"
)

// Command is what a rule sends to one target
type Command struct {
	Name    string
	Payload value.Value
}

// Dispatch picks the command for action a on a target of type target. ok is false
// when the target type does not fit the action.
func Dispatch(a action.Action, target devices.Type) (cmd Command, ok bool) {
	lvl := a.Desired
	sameType := target == a.Type

	if sameType && target.Class().Commandable() {
		switch {
		case lvl.IsSwitch():
			return Command{Name: lvl.Str()}, true
		case lvl.IsObject():
			return Command{Name: "exact", Payload: lvl}, true
		case lvl.IsNumber():
			return Command{Name: "exact", Payload: value.Object(map[string]interface{}{"level": lvl.Num()})}, true
		}
	}

	if target.Class() == devices.ClassToggleButton && a.Type.Class() == devices.ClassScene {
		return Command{Name: "on"}, true
	}

	if sameType && lvl.IsText() {
		return Command{Name: lvl.Str()}, true
	}
	return Command{}, false
}

// changed compares the target's current level with the desired value
func changed(target devices.Handle, a action.Action) bool {
	return value.Changed(target.Metric(devices.MetricLevel), a.Desired)
}
