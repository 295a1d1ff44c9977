package tfhttp

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/cloudkucooland/ifthen/action"
	"github.com/cloudkucooland/ifthen/devices"
	"github.com/cloudkucooland/ifthen/metrics"
	"github.com/cloudkucooland/ifthen/registry"
	"github.com/cloudkucooland/ifthen/rule"
	"github.com/cloudkucooland/ifthen/value"
)

type recordingSink struct {
	calls []string
}

func (s *recordingSink) Command(d *registry.Device, name string, payload value.Value) error {
	s.calls = append(s.calls, d.ID()+" "+name+" "+payload.String())
	return nil
}

type staticRules []rule.Rule

func (s staticRules) Rules() []rule.Rule { return s }

func setup(t *testing.T) (*Server, *registry.Registry, *recordingSink, *prometheus.Registry) {
	t.Helper()
	sink := &recordingSink{}
	reg := registry.New(sink)
	require.NoError(t, reg.Add(registry.NewDevice("S", devices.SwitchMultilevel)))
	require.NoError(t, reg.Add(registry.NewDevice("T", devices.SwitchBinary)))

	rules := staticRules{{
		ID:        "r1",
		Condition: rule.Condition{DeviceID: "S", Operator: rule.GT, Threshold: value.Number(50)},
		Actions: []action.Action{
			{Target: "T", Type: devices.SwitchBinary, Kind: action.Level, Desired: value.On},
		},
	}}
	pr := prometheus.NewRegistry()
	m := metrics.New(pr)
	m.Evaluated("r1")
	return New(":0", reg, rules, pr), reg, sink, pr
}

func do(t *testing.T, s *Server, method, path, body string) *httptest.ResponseRecorder {
	t.Helper()
	var req *http.Request
	if body == "" {
		req = httptest.NewRequest(method, path, nil)
	} else {
		req = httptest.NewRequest(method, path, strings.NewReader(body))
	}
	w := httptest.NewRecorder()
	s.Handler().ServeHTTP(w, req)
	return w
}

func TestHome(t *testing.T) {
	s, _, _, _ := setup(t)
	w := do(t, s, "GET", "/", "")
	assert.Equal(t, http.StatusOK, w.Code)
	assert.JSONEq(t, `{"status": "OK"}`, w.Body.String())
}

func TestDevices(t *testing.T) {
	s, reg, _, _ := setup(t)
	require.NoError(t, reg.Set("S", devices.MetricLevel, value.Number(42)))

	w := do(t, s, "GET", "/devices", "")
	require.Equal(t, http.StatusOK, w.Code)
	var list []deviceView
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &list))
	require.Len(t, list, 2)
	assert.Equal(t, "S", list[0].ID)
	assert.Equal(t, value.Number(42), list[0].Metrics[devices.MetricLevel])

	w = do(t, s, "GET", "/devices/T", "")
	assert.Equal(t, http.StatusOK, w.Code)
	assert.JSONEq(t, `{"id":"T","type":"switchBinary","title":"T","metrics":{}}`, w.Body.String())

	assert.Equal(t, http.StatusNotFound, do(t, s, "GET", "/devices/nope", "").Code)
}

func TestSetMetric(t *testing.T) {
	s, reg, _, _ := setup(t)
	var got []devices.Event
	_, err := reg.Subscribe("S", devices.MetricLevel, func(ev devices.Event) { got = append(got, ev) })
	require.NoError(t, err)

	w := do(t, s, "POST", "/devices/S/metrics", `{"metric": "metrics:level", "value": 60}`)
	assert.Equal(t, http.StatusNoContent, w.Code)
	require.Len(t, got, 1)
	assert.Equal(t, value.Number(60), got[0].Value)

	assert.Equal(t, http.StatusBadRequest, do(t, s, "POST", "/devices/S/metrics", `{"value": 60}`).Code)
	assert.Equal(t, http.StatusBadRequest, do(t, s, "POST", "/devices/S/metrics", `{`).Code)
	assert.Equal(t, http.StatusNotFound, do(t, s, "POST", "/devices/nope/metrics", `{"metric": "metrics:level", "value": 1}`).Code)
	assert.Equal(t, http.StatusMethodNotAllowed, do(t, s, "GET", "/devices/S/metrics", "").Code)
}

func TestCommand(t *testing.T) {
	s, reg, sink, _ := setup(t)

	assert.Equal(t, http.StatusAccepted, do(t, s, "POST", "/devices/T/command/on", "").Code)
	assert.Equal(t, http.StatusAccepted, do(t, s, "POST", "/devices/S/command/exact", `{"level": 30}`).Code)
	assert.Equal(t, []string{"T on null", "S exact map[level:30]"}, sink.calls)

	d, _ := reg.Device("S")
	assert.Equal(t, value.Number(30), d.Metric(devices.MetricLevel))

	assert.Equal(t, http.StatusBadRequest, do(t, s, "POST", "/devices/S/command/exact", `{`).Code)
	assert.Equal(t, http.StatusNotFound, do(t, s, "POST", "/devices/nope/command/on", "").Code)
}

func TestRules(t *testing.T) {
	s, _, _, _ := setup(t)
	w := do(t, s, "GET", "/rules", "")
	require.Equal(t, http.StatusOK, w.Code)
	assert.JSONEq(t, `[{
		"id": "r1", "device": "S", "operator": ">", "threshold": 50,
		"actions": [{"target": "T", "type": "switchBinary", "kind": "level", "desired": "on", "sendOnlyOnChange": false}]
	}]`, w.Body.String())
}

func TestMetricsEndpoint(t *testing.T) {
	s, _, _, _ := setup(t)
	w := do(t, s, "GET", "/metrics", "")
	require.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Body.String(), `ifthen_rule_evaluations_total{rule="r1"} 1`)
}

func TestPlatformRoute(t *testing.T) {
	s, _, _, _ := setup(t)
	s.HandleFunc("/shelly/{cmd}", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusTeapot)
	})
	assert.Equal(t, http.StatusTeapot, do(t, s, "GET", "/shelly/on", "").Code)
}
