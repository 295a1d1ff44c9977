package homecontrol

import (
	"testing"

	"github.com/brutella/hc/characteristic"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/cloudkucooland/ifthen/devices"
	"github.com/cloudkucooland/ifthen/registry"
	"github.com/cloudkucooland/ifthen/value"
)

type recordingSink struct {
	calls []string
}

func (s *recordingSink) Command(d *registry.Device, name string, payload value.Value) error {
	s.calls = append(s.calls, d.ID()+" "+name+" "+payload.String())
	return nil
}

func setup(t *testing.T, id string, typ devices.Type) (*Bridge, *registry.Registry, *registry.Device, *recordingSink) {
	t.Helper()
	sink := &recordingSink{}
	reg := registry.New(sink)
	d := registry.NewDevice(id, typ)
	require.NoError(t, reg.Add(d))
	b := New(reg, nil)
	return b, reg, d, sink
}

func characteristicValue(t *testing.T, b *Bridge, id, typ string) interface{} {
	t.Helper()
	acc, ok := b.Accessory(id)
	require.True(t, ok)
	for _, svc := range acc.GetServices() {
		for _, c := range svc.GetCharacteristics() {
			if c.Type == typ {
				return c.Value
			}
		}
	}
	t.Fatalf("no characteristic %s on %s", typ, id)
	return nil
}

func TestDimmerFollowsRegistry(t *testing.T) {
	b, reg, d, _ := setup(t, "lamp", devices.SwitchMultilevel)
	require.NoError(t, reg.Set("lamp", devices.MetricLevel, value.Number(30)))
	require.NoError(t, b.Add(d))

	assert.Equal(t, true, characteristicValue(t, b, "lamp", characteristic.TypeOn))
	assert.Equal(t, 30, characteristicValue(t, b, "lamp", characteristic.TypeBrightness))

	require.NoError(t, reg.Set("lamp", devices.MetricLevel, value.Number(0)))
	assert.Equal(t, false, characteristicValue(t, b, "lamp", characteristic.TypeOn))

	require.NoError(t, reg.Set("lamp", devices.MetricLevel, value.On))
	assert.Equal(t, true, characteristicValue(t, b, "lamp", characteristic.TypeOn))
	assert.Equal(t, 0, characteristicValue(t, b, "lamp", characteristic.TypeBrightness))

	assert.Error(t, b.Add(d))
}

func TestRemoteUpdatesBecomeCommands(t *testing.T) {
	b, _, d, sink := setup(t, "lamp", devices.SwitchMultilevel)
	require.NoError(t, b.Add(d))

	b.switchOn(d)(true)
	b.brightness(d)(40)
	b.switchOn(d)(false)
	assert.Equal(t, []string{
		`lamp on null`,
		`lamp exact map[level:40]`,
		`lamp off null`,
	}, sink.calls)

	// the registry applies the commands, which flow back to HomeKit
	assert.Equal(t, value.Off, d.Metric(devices.MetricLevel))
	assert.Equal(t, false, characteristicValue(t, b, "lamp", characteristic.TypeOn))
}

func TestTogglePress(t *testing.T) {
	b, reg, d, sink := setup(t, "button", devices.ToggleButton)
	require.NoError(t, b.Add(d))

	presses := 0
	_, err := reg.Subscribe("button", devices.MetricLevel, func(devices.Event) { presses++ })
	require.NoError(t, err)

	b.press(d)()
	b.press(d)()
	assert.Equal(t, 2, presses)
	assert.Empty(t, sink.calls)

	sb, _, scene, ssink := setup(t, "movie", devices.Scene)
	require.NoError(t, sb.Add(scene))
	sb.press(scene)()
	assert.Equal(t, []string{"movie on null"}, ssink.calls)
}

func TestSensors(t *testing.T) {
	b, reg, d, _ := setup(t, "outside", devices.SensorMultilevel)
	require.NoError(t, b.Add(d))
	require.NoError(t, reg.Set("outside", devices.MetricLevel, value.Number(-4.5)))
	require.NoError(t, reg.Set("outside", devices.MetricHumidity, value.Number(80)))
	assert.Equal(t, -4.5, characteristicValue(t, b, "outside", characteristic.TypeCurrentTemperature))
	assert.Equal(t, 80.0, characteristicValue(t, b, "outside", characteristic.TypeCurrentRelativeHumidity))

	pb, preg, phone, _ := setup(t, "phone", devices.SensorBinary)
	require.NoError(t, pb.Add(phone))
	require.NoError(t, preg.Set("phone", devices.MetricLevel, value.On))
	assert.Equal(t, characteristic.ContactSensorStateContactDetected, characteristicValue(t, pb, "phone", characteristic.TypeContactSensorState))
	require.NoError(t, preg.Set("phone", devices.MetricLevel, value.Off))
	assert.Equal(t, characteristic.ContactSensorStateContactNotDetected, characteristicValue(t, pb, "phone", characteristic.TypeContactSensorState))
}

func TestStopUnsubscribes(t *testing.T) {
	b, reg, d, _ := setup(t, "relay", devices.SwitchBinary)
	require.NoError(t, b.Add(d))
	assert.Equal(t, 1, reg.Subscribers("relay", devices.MetricLevel))
	b.Stop()
	assert.Equal(t, 0, reg.Subscribers("relay", devices.MetricLevel))
}

func TestUnmapped(t *testing.T) {
	b, _, d, _ := setup(t, "cell", devices.Battery)
	assert.Error(t, b.Add(d))
}

func TestColorConversions(t *testing.T) {
	h, s := hueSat(value.Object(map[string]interface{}{"red": 0.0, "green": 0.0, "blue": 255.0}))
	assert.InDelta(t, 240, h, 0.01)
	assert.InDelta(t, 100, s, 0.01)

	r, g, bl := hsvToRGB(240, 100)
	assert.Equal(t, []int{0, 0, 255}, []int{r, g, bl})
	r, g, bl = hsvToRGB(0, 0)
	assert.Equal(t, []int{255, 255, 255}, []int{r, g, bl})

	assert.NotEqual(t, accessoryID("lamp"), accessoryID("lamp2"))
	assert.Equal(t, accessoryID("lamp"), accessoryID("lamp"))
}
