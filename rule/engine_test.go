package rule

import (
	"errors"
	"testing"

	"github.com/google/go-cmp/cmp"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/cloudkucooland/ifthen/action"
	"github.com/cloudkucooland/ifthen/devices"
	"github.com/cloudkucooland/ifthen/metrics"
	"github.com/cloudkucooland/ifthen/registry"
	"github.com/cloudkucooland/ifthen/value"
)

type issued struct {
	Device  string
	Command string
	Payload string
}

type recordingSink struct {
	sent []issued
}

func (s *recordingSink) Command(d *registry.Device, name string, payload value.Value) error {
	s.sent = append(s.sent, issued{d.ID(), name, payload.String()})
	return nil
}

func newHost(t *testing.T, devs map[string]devices.Type) (*registry.Registry, *recordingSink) {
	t.Helper()
	sink := &recordingSink{}
	reg := registry.New(sink)
	for id, typ := range devs {
		require.NoError(t, reg.Add(registry.NewDevice(id, typ)))
	}
	return reg, sink
}

func TestEndToEnd(t *testing.T) {
	reg, sink := newHost(t, map[string]devices.Type{
		"D1": devices.SwitchMultilevel,
		"D2": devices.SwitchMultilevel,
	})
	e, err := New(reg, Rule{
		ID: "e2e",
		Condition: Condition{
			DeviceID:  "D1",
			Metric:    devices.MetricLevel,
			Operator:  GT,
			Threshold: value.Number(50),
		},
		Actions: []action.Action{
			{Target: "D2", Type: devices.SwitchMultilevel, Kind: action.Level, Desired: value.On},
		},
	})
	require.NoError(t, err)
	defer e.Stop()

	require.NoError(t, reg.Set("D1", devices.MetricLevel, value.Number(60)))
	require.Equal(t, []issued{{"D2", "on", "null"}}, sink.sent)

	require.NoError(t, reg.Set("D1", devices.MetricLevel, value.Number(40)))
	assert.Len(t, sink.sent, 1)
}

func TestSendOnlyOnChange(t *testing.T) {
	reg, sink := newHost(t, map[string]devices.Type{
		"S":  devices.SwitchBinary,
		"D2": devices.SwitchMultilevel,
	})
	require.NoError(t, reg.Set("D2", devices.MetricLevel, value.Number(50)))

	install := func(desired float64) *Engine {
		e, err := New(reg, Rule{
			ID:        "change",
			Condition: Condition{DeviceID: "S", Threshold: value.On},
			Actions: []action.Action{{
				Target: "D2", Type: devices.SwitchMultilevel, Kind: action.Level,
				Desired: value.Number(desired), SendOnlyOnChange: true,
			}},
		})
		require.NoError(t, err)
		return e
	}

	same := install(50)
	require.NoError(t, reg.Set("S", devices.MetricLevel, value.On))
	assert.Empty(t, sink.sent)
	same.Stop()
	require.NoError(t, reg.Set("S", devices.MetricLevel, value.Off))

	more := install(60)
	defer more.Stop()
	require.NoError(t, reg.Set("S", devices.MetricLevel, value.On))
	require.Len(t, sink.sent, 1)
	assert.Equal(t, "exact", sink.sent[0].Command)
	assert.Equal(t, value.Object(map[string]interface{}{"level": 60.0}).String(), sink.sent[0].Payload)

	d2, _ := reg.Device("D2")
	assert.Equal(t, value.Number(60), d2.Metric(devices.MetricLevel))
}

func TestActionOrderAndSkippedTarget(t *testing.T) {
	reg, sink := newHost(t, map[string]devices.Type{
		"B":  devices.ToggleButton,
		"T1": devices.SwitchBinary,
		"T3": devices.SwitchRGBW,
	})
	m := metrics.New(prometheus.NewRegistry())
	red := value.Object(map[string]interface{}{"red": 255.0, "green": 0.0, "blue": 0.0})

	e, err := New(reg, Rule{
		ID:        "order",
		Condition: Condition{DeviceID: "B"},
		Actions: []action.Action{
			{Target: "T1", Type: devices.SwitchBinary, Kind: action.StatusLabel, Desired: value.On},
			{Target: "T2", Type: devices.SwitchBinary, Kind: action.StatusLabel, Desired: value.On},
			{Target: "T3", Type: devices.SwitchRGBW, Kind: action.Color, Desired: red},
		},
	}, WithMetrics(m))
	require.NoError(t, err)
	defer e.Stop()

	require.NoError(t, reg.Set("B", devices.MetricLevel, value.On))

	want := []issued{
		{"T1", "on", "null"},
		{"T3", "exact", red.String()},
	}
	if diff := cmp.Diff(want, sink.sent); diff != "" {
		t.Errorf("commands (-want +got):\n%s", diff)
	}
	assert.Equal(t, 1.0, testutil.ToFloat64(m.Skipped.WithLabelValues("order", "unresolved")))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.Matches.WithLabelValues("order")))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.Commands.WithLabelValues("order", "on")))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.Commands.WithLabelValues("order", "exact")))
}

func TestToggleSourceFiresEveryPress(t *testing.T) {
	reg, sink := newHost(t, map[string]devices.Type{
		"B": devices.ToggleButton,
		"S": devices.ToggleButton,
	})
	e, err := New(reg, Rule{
		ID:        "scene",
		Condition: Condition{DeviceID: "B", Operator: GT, Threshold: value.Number(1000)},
		Actions:   []action.Action{{Target: "S", Type: devices.Scene, Kind: action.StatusLabel}},
	})
	require.NoError(t, err)
	defer e.Stop()

	require.NoError(t, reg.Set("B", devices.MetricLevel, value.On))
	require.NoError(t, reg.Set("B", devices.MetricLevel, value.On))
	assert.Equal(t, []issued{{"S", "on", "null"}, {"S", "on", "null"}}, sink.sent)
}

func TestTypeMismatchIgnored(t *testing.T) {
	reg, sink := newHost(t, map[string]devices.Type{
		"D1": devices.SwitchMultilevel,
		"D2": devices.SwitchBinary,
	})
	e, err := New(reg, Rule{
		ID:        "mismatch",
		Condition: Condition{DeviceID: "D1", Operator: LT, Threshold: value.Number(10)},
		Actions:   []action.Action{{Target: "D2", Type: devices.SwitchMultilevel, Kind: action.Level, Desired: value.Number(5)}},
	})
	require.NoError(t, err)
	defer e.Stop()

	require.NoError(t, reg.Set("D1", devices.MetricLevel, value.Number(3)))
	assert.Empty(t, sink.sent)
}

func TestNewConfigErrors(t *testing.T) {
	reg, _ := newHost(t, map[string]devices.Type{"D1": devices.SwitchMultilevel})
	good := action.Action{Target: "D1", Type: devices.SwitchMultilevel, Kind: action.Level, Desired: value.On}

	tests := []struct {
		name string
		r    Rule
	}{
		{"no source", Rule{ID: "a", Actions: []action.Action{good}}},
		{"operator without threshold", Rule{ID: "b", Condition: Condition{DeviceID: "D1", Operator: GT}, Actions: []action.Action{good}}},
		{"object threshold", Rule{ID: "c", Condition: Condition{DeviceID: "D1", Threshold: value.Object(map[string]interface{}{"a": 1})}, Actions: []action.Action{good}}},
		{"no actions", Rule{ID: "d", Condition: Condition{DeviceID: "D1"}}},
		{"bad action", Rule{ID: "e", Condition: Condition{DeviceID: "D1"}, Actions: []action.Action{{Target: "D1", Type: devices.SwitchRGBW, Kind: action.Color, Desired: value.On}}}},
		{"unknown source", Rule{ID: "f", Condition: Condition{DeviceID: "ghost"}, Actions: []action.Action{good}}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			e, err := New(reg, tt.r)
			require.Error(t, err)
			assert.Nil(t, e)
			var cerr *ConfigError
			require.True(t, errors.As(err, &cerr))
			assert.Equal(t, tt.r.ID, cerr.Rule)
			assert.Equal(t, 0, reg.Subscribers(tt.r.Condition.DeviceID, devices.MetricLevel))
		})
	}

	_, err := New(reg, Rule{ID: "f", Condition: Condition{DeviceID: "ghost"}, Actions: []action.Action{good}})
	assert.True(t, errors.Is(err, ErrUnresolved))
}

func TestStopIdempotent(t *testing.T) {
	reg, sink := newHost(t, map[string]devices.Type{
		"D1": devices.SwitchMultilevel,
		"D2": devices.SwitchBinary,
	})
	e, err := New(reg, Rule{
		ID:        "stop",
		Condition: Condition{DeviceID: "D1", Threshold: value.On},
		Actions:   []action.Action{{Target: "D2", Type: devices.SwitchBinary, Kind: action.StatusLabel, Desired: value.On}},
	})
	require.NoError(t, err)
	assert.Equal(t, 1, reg.Subscribers("D1", devices.MetricLevel))

	reg.Remove("D1")
	assert.NotPanics(t, func() {
		e.Stop()
		e.Stop()
	})
	assert.Equal(t, 0, reg.Subscribers("D1", devices.MetricLevel))

	require.NoError(t, reg.Add(registry.NewDevice("D1", devices.SwitchMultilevel)))
	require.NoError(t, reg.Set("D1", devices.MetricLevel, value.On))
	assert.Empty(t, sink.sent)
}

func TestRemovedSourceStillEvaluates(t *testing.T) {
	reg, sink := newHost(t, map[string]devices.Type{
		"B":  devices.ToggleButton,
		"D2": devices.SwitchBinary,
	})
	e, err := New(reg, Rule{
		ID:        "gone",
		Condition: Condition{DeviceID: "B", Threshold: value.On},
		Actions:   []action.Action{{Target: "D2", Type: devices.SwitchBinary, Kind: action.StatusLabel, Desired: value.On}},
	})
	require.NoError(t, err)
	defer e.Stop()

	reg.Remove("B")
	e.Handle(devices.Event{DeviceID: "B", Metric: devices.MetricLevel, Value: value.Off})
	assert.Empty(t, sink.sent)
	e.Handle(devices.Event{DeviceID: "B", Metric: devices.MetricLevel, Value: value.On})
	assert.Len(t, sink.sent, 1)
}
