package homecontrol

import (
	"fmt"
	"hash/fnv"
	"math"
	"sort"
	"sync"
	"time"

	"github.com/brutella/hc"
	"github.com/brutella/hc/accessory"
	"github.com/brutella/hc/characteristic"
	"github.com/brutella/hc/log"
	"github.com/brutella/hc/util"

	"github.com/cloudkucooland/ifthen/config"
	"github.com/cloudkucooland/ifthen/devices"
	"github.com/cloudkucooland/ifthen/registry"
	"github.com/cloudkucooland/ifthen/value"
)

const firmware = "0.1.0"

type transport interface {
	Start()
	Stop() <-chan struct{}
}

// Bridge exposes registry devices as HomeKit accessories. Changes made in the Home app
// become device commands, device changes update the characteristics.
type Bridge struct {
	reg     *registry.Registry
	storage util.Storage

	mu          sync.Mutex
	accessories map[string]*bound // by device ID
	transport   transport
}

type bound struct {
	acc    *accessory.Accessory
	update func(metric string, v value.Value)
	subs   []devices.Subscription
}

// New returns a bridge over reg; storage keeps serial numbers stable across restarts and may be nil
func New(reg *registry.Registry, storage util.Storage) *Bridge {
	return &Bridge{
		reg:         reg,
		storage:     storage,
		accessories: make(map[string]*bound),
	}
}

// Add builds the HomeKit accessory for a registered device
func (b *Bridge) Add(d *registry.Device) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	if _, ok := b.accessories[d.ID()]; ok {
		return fmt.Errorf("device [%s] already bridged", d.ID())
	}

	info := b.info(d)
	var bd *bound
	metrics := []string{devices.MetricLevel}

	switch d.Type() {
	case devices.SwitchMultilevel:
		dm := NewDimmer(info)
		dm.Lightbulb.On.OnValueRemoteUpdate(b.switchOn(d))
		dm.Lightbulb.Brightness.OnValueRemoteUpdate(b.brightness(d))
		bd = &bound{acc: dm.Accessory, update: func(metric string, v value.Value) {
			on, lvl := levelState(v)
			dm.Lightbulb.On.SetValue(on)
			if lvl >= 0 {
				dm.Lightbulb.Brightness.SetValue(lvl)
			}
		}}
	case devices.SwitchRGBW:
		cl := accessory.NewColoredLightbulb(info)
		lb := cl.Lightbulb
		lb.On.OnValueRemoteUpdate(b.switchOn(d))
		lb.Brightness.OnValueRemoteUpdate(b.brightness(d))
		lb.Hue.OnValueRemoteUpdate(func(h float64) {
			b.color(d)(h, lb.Saturation.GetValue())
		})
		lb.Saturation.OnValueRemoteUpdate(func(s float64) {
			b.color(d)(lb.Hue.GetValue(), s)
		})
		metrics = append(metrics, devices.MetricColor)
		bd = &bound{acc: cl.Accessory, update: func(metric string, v value.Value) {
			if metric == devices.MetricColor {
				h, s := hueSat(v)
				lb.Hue.SetValue(h)
				lb.Saturation.SetValue(s)
				return
			}
			on, lvl := levelState(v)
			lb.On.SetValue(on)
			if lvl >= 0 {
				lb.Brightness.SetValue(lvl)
			}
		}}
	case devices.Thermostat:
		th := accessory.NewThermostat(info, 20, 5, 35, 0.5)
		th.Thermostat.TargetTemperature.OnValueRemoteUpdate(func(t float64) {
			d.Command("exact", level(t))
		})
		bd = &bound{acc: th.Accessory, update: func(metric string, v value.Value) {
			if t, ok := v.Float(); ok && v.IsNumber() {
				th.Thermostat.TargetTemperature.SetValue(t)
				th.Thermostat.CurrentTemperature.SetValue(t)
			}
		}}
	case devices.SwitchBinary, devices.SwitchControl, devices.Doorlock:
		sw := accessory.NewSwitch(info)
		sw.Switch.On.OnValueRemoteUpdate(b.switchOn(d))
		bd = &bound{acc: sw.Accessory, update: func(metric string, v value.Value) {
			on, _ := levelState(v)
			sw.Switch.On.SetValue(on)
		}}
	case devices.ToggleButton, devices.Scene:
		sw := accessory.NewSwitch(info)
		press := b.press(d)
		sw.Switch.On.OnValueRemoteUpdate(func(on bool) {
			if !on {
				return
			}
			press()
			// momentary: spring back so the next tap is a press again
			time.AfterFunc(time.Second, func() { sw.Switch.On.SetValue(false) })
		})
		bd = &bound{acc: sw.Accessory}
	case devices.SensorMultilevel:
		ws := NewWeatherSensor(info)
		metrics = append(metrics, devices.MetricHumidity)
		bd = &bound{acc: ws.Accessory, update: func(metric string, v value.Value) {
			f, ok := v.Float()
			if !ok {
				return
			}
			if metric == devices.MetricHumidity {
				ws.HumiditySensor.CurrentRelativeHumidity.SetValue(f)
				return
			}
			ws.TemperatureSensor.CurrentTemperature.SetValue(f)
		}}
	case devices.SensorBinary:
		ps := NewPresenceSensor(info)
		bd = &bound{acc: ps.Accessory, update: func(metric string, v value.Value) {
			if on, _ := levelState(v); on {
				ps.ContactSensor.ContactSensorState.SetValue(characteristic.ContactSensorStateContactDetected)
				return
			}
			ps.ContactSensor.ContactSensorState.SetValue(characteristic.ContactSensorStateContactNotDetected)
		}}
	default:
		return fmt.Errorf("no HomeKit mapping for [%s] (%s)", d.ID(), d.Type())
	}

	bd.acc.OnIdentify(func() {
		log.Info.Printf("identify called for [%s]: %+v", d.ID(), bd.acc.Info)
	})

	if bd.update != nil {
		for _, m := range metrics {
			if v := d.Metric(m); !v.IsNull() {
				bd.update(m, v)
			}
			sub, err := b.reg.Subscribe(d.ID(), m, func(ev devices.Event) {
				bd.update(ev.Metric, ev.Value)
			})
			if err != nil {
				return err
			}
			bd.subs = append(bd.subs, sub)
		}
	}

	b.accessories[d.ID()] = bd
	log.Debug.Printf("bridged [%s] as %s", d.ID(), d.Type())
	return nil
}

// Accessory returns the HomeKit accessory of a bridged device
func (b *Bridge) Accessory(id string) (*accessory.Accessory, bool) {
	b.mu.Lock()
	defer b.mu.Unlock()
	bd, ok := b.accessories[id]
	if !ok {
		return nil, false
	}
	return bd.acc, true
}

// Start publishes the bridge and every added accessory
func (b *Bridge) Start(c *config.Config) error {
	serial := c.ID
	if serial == "" {
		serial = b.serial("IfThenRoot")
	}
	root := accessory.NewBridge(accessory.Info{
		Name:             c.Name,
		ID:               1,
		SerialNumber:     serial,
		Manufacturer:     "deviousness",
		Model:            "IfThen",
		FirmwareRevision: firmware,
	})
	root.Accessory.OnIdentify(func() {
		log.Info.Printf("bridge root identify called: %+v", root.Accessory.Info)
	})

	b.mu.Lock()
	ids := make([]string, 0, len(b.accessories))
	for id := range b.accessories {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	values := make([]*accessory.Accessory, 0, len(ids))
	for _, id := range ids {
		values = append(values, b.accessories[id].acc)
	}
	b.mu.Unlock()

	t, err := hc.NewIPTransport(c.HCConfig, root.Accessory, values...)
	if err != nil {
		return err
	}
	go t.Start()
	uri, _ := t.XHMURI()
	log.Info.Printf("add this bridge with: %s", uri)

	b.mu.Lock()
	b.transport = t
	b.mu.Unlock()
	return nil
}

// Stop takes the bridge off the network and stops following the devices
func (b *Bridge) Stop() {
	b.mu.Lock()
	t := b.transport
	b.transport = nil
	for _, bd := range b.accessories {
		for _, sub := range bd.subs {
			sub.Unsubscribe()
		}
		bd.subs = nil
	}
	b.mu.Unlock()

	if t != nil {
		<-t.Stop()
	}
}

func (b *Bridge) info(d *registry.Device) accessory.Info {
	manufacturer := d.Platform
	if manufacturer == "" {
		manufacturer = "IfThen"
	}
	return accessory.Info{
		Name:             d.Title,
		ID:               accessoryID(d.ID()),
		SerialNumber:     b.serial(d.ID()),
		Manufacturer:     manufacturer,
		Model:            string(d.Type()),
		FirmwareRevision: firmware,
	}
}

func (b *Bridge) serial(name string) string {
	if b.storage == nil {
		return name
	}
	return util.GetSerialNumberForAccessoryName(name, b.storage)
}

// switchOn turns an on/off tap in the Home app into a command
func (b *Bridge) switchOn(d *registry.Device) func(bool) {
	return func(on bool) {
		log.Info.Printf("HomeKit: [%s] on=%t", d.ID(), on)
		if on {
			d.Command("on", value.Null)
			return
		}
		d.Command("off", value.Null)
	}
}

func (b *Bridge) brightness(d *registry.Device) func(int) {
	return func(n int) {
		log.Info.Printf("HomeKit: [%s] brightness=%d", d.ID(), n)
		d.Command("exact", level(float64(n)))
	}
}

func (b *Bridge) color(d *registry.Device) func(h, s float64) {
	return func(h, s float64) {
		r, g, bl := hsvToRGB(h, s)
		d.Command("exact", value.Object(map[string]interface{}{
			"red": float64(r), "green": float64(g), "blue": float64(bl),
		}))
	}
}

// press reports a toggle button press or activates a scene
func (b *Bridge) press(d *registry.Device) func() {
	return func() {
		log.Info.Printf("HomeKit: [%s] pressed", d.ID())
		if d.Type() == devices.ToggleButton {
			if err := b.reg.Set(d.ID(), devices.MetricLevel, value.On); err != nil {
				log.Info.Print(err)
			}
			return
		}
		d.Command("on", value.Null)
	}
}

func level(n float64) value.Value {
	return value.Object(map[string]interface{}{"level": n})
}

// levelState reads a level as on/off and brightness; brightness is -1 for on/off text
func levelState(v value.Value) (bool, int) {
	if v.IsSwitch() {
		return v.Str() == "on", -1
	}
	if v.IsNumber() {
		n := int(math.Round(v.Num()))
		if n > 100 {
			n = 100
		}
		if n < 0 {
			n = 0
		}
		return n > 0, n
	}
	return false, -1
}

// hueSat reads a {red, green, blue} object as HomeKit hue (0-360) and saturation (0-100)
func hueSat(v value.Value) (float64, float64) {
	m := v.Map()
	if m == nil {
		return 0, 0
	}
	r, _ := value.From(m["red"]).Float()
	g, _ := value.From(m["green"]).Float()
	bl, _ := value.From(m["blue"]).Float()
	r, g, bl = r/255, g/255, bl/255

	max := math.Max(r, math.Max(g, bl))
	min := math.Min(r, math.Min(g, bl))
	delta := max - min
	if max == 0 || delta == 0 {
		return 0, 0
	}

	var h float64
	switch max {
	case r:
		h = math.Mod((g-bl)/delta, 6)
	case g:
		h = (bl-r)/delta + 2
	default:
		h = (r-g)/delta + 4
	}
	h *= 60
	if h < 0 {
		h += 360
	}
	return h, delta / max * 100
}

// hsvToRGB converts at full value, brightness is sent separately
func hsvToRGB(h, s float64) (int, int, int) {
	s /= 100
	c := s
	x := c * (1 - math.Abs(math.Mod(h/60, 2)-1))
	m := 1 - c

	var r, g, bl float64
	switch {
	case h < 60:
		r, g, bl = c, x, 0
	case h < 120:
		r, g, bl = x, c, 0
	case h < 180:
		r, g, bl = 0, c, x
	case h < 240:
		r, g, bl = 0, x, c
	case h < 300:
		r, g, bl = x, 0, c
	default:
		r, g, bl = c, 0, x
	}
	return int(math.Round((r + m) * 255)), int(math.Round((g + m) * 255)), int(math.Round((bl + m) * 255))
}

// accessoryID is stable per device ID; 1 is the bridge
func accessoryID(id string) uint64 {
	h := fnv.New64a()
	h.Write([]byte(id))
	n := h.Sum64()
	if n <= 1 {
		n += 2
	}
	return n
}
