package tradfri

import (
	"encoding/json"
	"fmt"
	"testing"

	"github.com/eriklupander/tradfri-go/model"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/cloudkucooland/ifthen/accessory"
	"github.com/cloudkucooland/ifthen/config"
	"github.com/cloudkucooland/ifthen/devices"
	"github.com/cloudkucooland/ifthen/registry"
	"github.com/cloudkucooland/ifthen/value"
)

type fakeGateway struct {
	calls  []string
	device model.Device
}

func (f *fakeGateway) PutDevicePower(id string, power bool) (model.Result, error) {
	f.calls = append(f.calls, fmt.Sprintf("%s power %t", id, power))
	return model.Result{Msg: "Changed"}, nil
}

func (f *fakeGateway) PutDeviceDimming(id string, dimming int) (model.Result, error) {
	f.calls = append(f.calls, fmt.Sprintf("%s dim %d", id, dimming))
	return model.Result{Msg: "Changed"}, nil
}

func (f *fakeGateway) PutDeviceColorHSL(id string, h, s, l float64) (model.Result, error) {
	f.calls = append(f.calls, fmt.Sprintf("%s hsl %.0f %.0f %.0f", id, h, s, l))
	return model.Result{Msg: "Changed"}, nil
}

func (f *fakeGateway) GetDevice(id string) (model.Device, error) {
	return f.device, nil
}

func setup(t *testing.T, typ devices.Type) (*Platform, *fakeGateway, *registry.Device) {
	t.Helper()
	reg := registry.New(nil)
	p := New(reg)
	gw := &fakeGateway{}
	require.NoError(t, json.Unmarshal([]byte(`{"3311":[{"5850":1,"5851":254}]}`), &gw.device))
	p.client = gw

	acc := &accessory.Accessory{Name: "bulb", Platform: "Tradfri", Type: typ, IP: "65537"}
	d := acc.Device()
	require.NoError(t, reg.Add(d))
	require.NoError(t, p.AddAccessory(acc, d))
	return p, gw, d
}

func TestStartupNeedsGateway(t *testing.T) {
	p := New(registry.New(nil))
	searched := false
	p.discover = func() (string, error) {
		searched = true
		return "", nil
	}
	assert.Error(t, p.Startup(&config.Config{}))
	assert.False(t, searched)

	assert.Error(t, p.Startup(&config.Config{TradfriIdentity: "ifthen", TradfriPSK: "secret"}))
	assert.True(t, searched)
	assert.Nil(t, p.client)
}

func TestCommand(t *testing.T) {
	p, gw, d := setup(t, devices.SwitchRGBW)
	assert.Equal(t, value.Number(99), d.Metric(devices.MetricLevel))

	require.NoError(t, p.Command(d, "off", value.Null))
	require.NoError(t, p.Command(d, "exact", value.Object(map[string]interface{}{"level": 50.0})))
	require.NoError(t, p.Command(d, "exact", value.Object(map[string]interface{}{"level": 0.0})))
	require.NoError(t, p.Command(d, "exact", value.Object(map[string]interface{}{"red": 255.0, "green": 0.0, "blue": 0.0})))

	assert.Equal(t, []string{
		"65537 power false",
		"65537 dim 128",
		"65537 power false",
		"65537 hsl 0 100 50",
	}, gw.calls)

	assert.Error(t, p.Command(d, "exact", value.Null))
	assert.Error(t, p.Command(d, "exact", value.Object(map[string]interface{}{"level": "high"})))
	assert.Error(t, p.Command(d, "close", value.Null))
}

func TestUpdateAll(t *testing.T) {
	p, gw, d := setup(t, devices.SwitchMultilevel)
	gw.device.LightControl[0].Power = 0
	p.updateAll()
	assert.Equal(t, value.Number(0), d.Metric(devices.MetricLevel))

	gw.device.LightControl[0].Power = 1
	gw.device.LightControl[0].Dimmer = 127
	p.updateAll()
	assert.Equal(t, value.Number(49), d.Metric(devices.MetricLevel))

	plug, gw2, pd := setup(t, devices.SwitchBinary)
	gw2.device.LightControl[0].Power = 0
	plug.updateAll()
	assert.Equal(t, value.Off, pd.Metric(devices.MetricLevel))
}

func TestConversions(t *testing.T) {
	h, s, l := rgbToHsl(0, 0, 255)
	assert.InDelta(t, 240, h, 0.01)
	assert.InDelta(t, 100, s, 0.01)
	assert.InDelta(t, 50, l, 0.01)

	assert.Equal(t, 254, levelToDimmer(99))
	assert.Equal(t, 254, levelToDimmer(150))
	assert.Equal(t, 0, levelToDimmer(0))
	assert.Equal(t, 99.0, dimmerToLevel(254))

	assert.Equal(t, `{ "3311": [ {"5707": 0, "5708": 65279, "5851": 127, "5712": 5}] }`, hslPayload(0, 100, 50, 500))
	assert.Equal(t, "/15001/65537", toDeviceUri("65537"))
}
