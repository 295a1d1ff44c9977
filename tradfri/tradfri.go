package tradfri

// https://callistaenterprise.se/blogg/teknik/2019/03/15/a-quick-home-automation/

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/brutella/hc/log"
	"github.com/eriklupander/dtls"
	"github.com/eriklupander/tradfri-go/model"
	"github.com/sirupsen/logrus"

	"github.com/cloudkucooland/ifthen/accessory"
	"github.com/cloudkucooland/ifthen/config"
	"github.com/cloudkucooland/ifthen/devices"
	"github.com/cloudkucooland/ifthen/registry"
	"github.com/cloudkucooland/ifthen/value"
)

// gateway is the part of Client the platform uses
type gateway interface {
	PutDevicePower(deviceID string, power bool) (model.Result, error)
	PutDeviceDimming(deviceID string, dimming int) (model.Result, error)
	PutDeviceColorHSL(deviceID string, hue, saturation, lightness float64) (model.Result, error)
	GetDevice(deviceID string) (model.Device, error)
}

// Platform drives bulbs and plugs behind one Tradfri gateway
type Platform struct {
	reg      *registry.Registry
	client   gateway
	discover func() (string, error)

	mu      sync.RWMutex
	devices map[string]*registry.Device // indexed by gateway device ID
}

// New returns the platform; devices report into reg
func New(reg *registry.Registry) *Platform {
	return &Platform{
		reg:      reg,
		discover: discover,
		devices:  make(map[string]*registry.Device),
	}
}

// Startup connects to the configured gateway; with credentials but no address it looks for one
func (tp *Platform) Startup(c *config.Config) error {
	if c.TradfriIdentity == "" || c.TradfriPSK == "" {
		return fmt.Errorf("no tradfri credentials configured")
	}
	gw := c.TradfriGateway
	if gw == "" {
		found, err := tp.discover()
		if err != nil {
			return err
		}
		if found == "" {
			return fmt.Errorf("no tradfri gateway configured or found")
		}
		gw = found
	}
	dtls.SetLogLevel(dtls.LogLevelError)
	logrus.SetLevel(logrus.ErrorLevel)

	log.Info.Printf("using Tradfri Gateway: [%s]", gw)
	ip := fmt.Sprintf("%s:%d", gw, 5684)
	tp.client = NewTradfriClient(ip, c.TradfriIdentity, c.TradfriPSK)
	return nil
}

// Shutdown is called by the platform management to shut things down
func (tp *Platform) Shutdown() {}

// AddAccessory binds a registry device to a gateway device ID (the accessory IP field)
func (tp *Platform) AddAccessory(a *accessory.Accessory, d *registry.Device) error {
	if a.IP == "" {
		return fmt.Errorf("tradfri device %s has no gateway device ID", a.Name)
	}
	tp.mu.Lock()
	tp.devices[a.IP] = d
	tp.mu.Unlock()

	if tp.client == nil {
		return nil
	}
	td, err := tp.client.GetDevice(a.IP)
	if err != nil {
		log.Info.Printf("unable to read tradfri device [%s]: %s", a.Name, err.Error())
		return nil
	}
	log.Info.Printf("adding: [%s]: [%s]", td.Name, td.Metadata.TypeName)
	tp.update(d, td)
	return nil
}

// Command maps on/off, exact levels and exact colors onto the gateway
func (tp *Platform) Command(d *registry.Device, name string, payload value.Value) error {
	if tp.client == nil {
		return fmt.Errorf("tradfri gateway not connected")
	}
	id := d.Address
	log.Info.Printf("Tradfri-Device [%s] (%s): %s %s", d.ID(), id, name, payload)

	switch name {
	case "on", "off":
		_, err := tp.client.PutDevicePower(id, name == "on")
		return err
	case "exact":
		m := payload.Map()
		if m == nil {
			return fmt.Errorf("exact needs a level or a color")
		}
		if _, ok := m["red"]; ok {
			h, s, l := rgbToHsl(channel(m, "red"), channel(m, "green"), channel(m, "blue"))
			_, err := tp.client.PutDeviceColorHSL(id, h, s, l)
			return err
		}
		lvl, ok := value.From(m["level"]).Float()
		if !ok {
			return fmt.Errorf("exact level is not a number: %v", m["level"])
		}
		if lvl <= 0 {
			_, err := tp.client.PutDevicePower(id, false)
			return err
		}
		_, err := tp.client.PutDeviceDimming(id, levelToDimmer(lvl))
		return err
	}
	return fmt.Errorf("tradfri does not know command %s", name)
}

// Background polls the gateway so changes made in the Ikea app reach the rules
func (tp *Platform) Background(ctx context.Context) {
	go func() {
		t := time.NewTicker(time.Minute)
		defer t.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case <-t.C:
				tp.updateAll()
			}
		}
	}()
}

func (tp *Platform) updateAll() {
	if tp.client == nil {
		return
	}
	tp.mu.RLock()
	ids := make(map[string]*registry.Device, len(tp.devices))
	for id, d := range tp.devices {
		ids[id] = d
	}
	tp.mu.RUnlock()

	for id, d := range ids {
		td, err := tp.client.GetDevice(id)
		if err != nil {
			log.Info.Printf("unable to get Tradfri-Device [%s]: %s", id, err.Error())
			continue
		}
		tp.update(d, td)
	}
}

func (tp *Platform) update(d *registry.Device, td model.Device) {
	if len(td.LightControl) == 0 {
		return
	}
	lc := td.LightControl[0]
	if d.Type().Class() == devices.ClassOther {
		tp.reg.Set(d.ID(), devices.MetricLevel, onOff(lc.Power > 0))
		return
	}
	lvl := 0.0
	if lc.Power > 0 {
		lvl = dimmerToLevel(lc.Dimmer)
	}
	tp.reg.Set(d.ID(), devices.MetricLevel, value.Number(lvl))
}

// levels are 0-99, the gateway dims 0-254
func levelToDimmer(lvl float64) int {
	if lvl > 99 {
		lvl = 99
	}
	return int(mapRange(lvl, 0, 99, 0, 254))
}

func dimmerToLevel(dimmer int) float64 {
	return float64(int(mapRange(float64(dimmer), 0, 254, 0, 99)))
}

func channel(m map[string]interface{}, name string) int {
	f, _ := value.From(m[name]).Float()
	return int(f)
}

func onOff(b bool) value.Value {
	if b {
		return value.On
	}
	return value.Off
}
