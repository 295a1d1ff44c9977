package config

import (
	"encoding/json"
	"fmt"
	"path/filepath"

	"github.com/brutella/hc/log"

	"github.com/cloudkucooland/ifthen/action"
	"github.com/cloudkucooland/ifthen/devices"
	"github.com/cloudkucooland/ifthen/rule"
	"github.com/cloudkucooland/ifthen/value"
)

// ruleFile is the IfThen module configuration: the source and every target are
// keyed by their device type, the filter names the key in use
//
//	{"sourceDevice": {"filterIf": "switchMultilevel", "switchMultilevel": {...}},
//	 "targets": [{"filterThen": "switchBinary", "switchBinary": {...}}]}
type ruleFile struct {
	ID           string                       `json:"id"`
	SourceDevice map[string]json.RawMessage   `json:"sourceDevice"`
	Targets      []map[string]json.RawMessage `json:"targets"`
}

type ifElement struct {
	Device   string      `json:"device"`
	Operator string      `json:"operator"`
	Status   string      `json:"status"` // "level" or a label like "on"
	Level    value.Value `json:"level"`
}

type thenElement struct {
	Target     string      `json:"target"`
	Status     string      `json:"status"` // "level", "color" or a label
	Level      value.Value `json:"level"`
	Color      value.Value `json:"color"`
	SendAction bool        `json:"sendAction"` // only when changed
}

// LoadRules reads <dir>/rules. Broken files are logged and skipped.
func (c *Config) LoadRules() ([]rule.Rule, error) {
	docs, err := readDir(filepath.Join(c.ConfigDir, "rules"))
	if err != nil {
		return nil, err
	}

	var out []rule.Rule
	for _, d := range docs {
		r, err := ParseRule(d.Name, d.JSON)
		if err != nil {
			log.Info.Printf("%s: %s", d.Path, err.Error())
			continue
		}
		out = append(out, r)
	}
	return out, nil
}

// ParseRule decodes one rule file; id is used when the file sets none
func ParseRule(id string, raw []byte) (rule.Rule, error) {
	var rf ruleFile
	if err := json.Unmarshal(raw, &rf); err != nil {
		return rule.Rule{}, err
	}
	if rf.ID != "" {
		id = rf.ID
	}
	r := rule.Rule{ID: id}

	filter, el, err := filtered(rf.SourceDevice, "filterIf")
	if err != nil {
		return r, fmt.Errorf("sourceDevice: %w", err)
	}
	var ife ifElement
	if err := json.Unmarshal(el, &ife); err != nil {
		return r, fmt.Errorf("sourceDevice.%s: %w", filter, err)
	}
	op, err := rule.ParseOperator(ife.Operator)
	if err != nil {
		return r, fmt.Errorf("sourceDevice.%s: %w", filter, err)
	}
	r.Condition = rule.Condition{
		DeviceID:  ife.Device,
		Metric:    devices.MetricLevel,
		Operator:  op,
		Threshold: ife.threshold(),
	}

	for i, t := range rf.Targets {
		filter, el, err := filtered(t, "filterThen")
		if err != nil {
			return r, fmt.Errorf("targets[%d]: %w", i, err)
		}
		var te thenElement
		if err := json.Unmarshal(el, &te); err != nil {
			return r, fmt.Errorf("targets[%d].%s: %w", i, filter, err)
		}
		r.Actions = append(r.Actions, te.action(devices.Type(filter)))
	}
	return r, nil
}

// filtered returns the element named by the filter key
func filtered(m map[string]json.RawMessage, key string) (string, json.RawMessage, error) {
	raw, ok := m[key]
	if !ok {
		return "", nil, fmt.Errorf("%s unset", key)
	}
	var filter string
	if err := json.Unmarshal(raw, &filter); err != nil {
		return "", nil, fmt.Errorf("%s: %w", key, err)
	}
	el, ok := m[filter]
	if !ok {
		return filter, nil, fmt.Errorf("%s names %q but there is no such element", key, filter)
	}
	return filter, el, nil
}

// threshold is the level when the status asks for one (or is unset) and the level is set,
// otherwise the status. A level of 0 counts as unset.
func (e ifElement) threshold() value.Value {
	if (e.Status == "level" || e.Status == "") && levelSet(e.Level) {
		return e.Level
	}
	if e.Status == "" {
		return value.Null
	}
	return value.Text(e.Status)
}

func (e thenElement) action(t devices.Type) action.Action {
	a := action.Action{
		Target:           e.Target,
		Type:             t,
		SendOnlyOnChange: e.SendAction,
	}
	switch {
	case e.Status == "level" && !e.Level.IsNull():
		a.Kind = action.Level
		a.Desired = e.Level
	case e.Status == "color" && !e.Color.IsNull():
		a.Kind = action.Color
		a.Desired = e.Color
	case e.Status == "on" || e.Status == "off":
		a.Kind = action.Level
		a.Desired = value.Text(e.Status)
	case e.Status != "":
		a.Kind = action.StatusLabel
		a.Desired = value.Text(e.Status)
	default:
		a.Kind = action.StatusLabel
	}
	return a
}

func levelSet(v value.Value) bool {
	switch {
	case v.IsNull():
		return false
	case v.IsNumber():
		return v.Num() != 0
	case v.IsText():
		return v.Str() != ""
	}
	return true
}
