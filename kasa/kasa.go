package kasa

import (
	"context"
	"fmt"
	"math"
	"sync"
	"time"

	"github.com/brutella/hc/log"

	"github.com/cloudkucooland/ifthen/accessory"
	"github.com/cloudkucooland/ifthen/config"
	"github.com/cloudkucooland/ifthen/devices"
	"github.com/cloudkucooland/ifthen/registry"
	"github.com/cloudkucooland/ifthen/value"
)

// Platform is the platform handle for the Kasa stuff: HS1xx/KP115 plugs and HS200 switches
// as switchBinary, HS220 dimmers as switchMultilevel
type Platform struct {
	reg     *registry.Registry
	pull    time.Duration
	timeout time.Duration

	mu    sync.RWMutex
	kasas map[string]*registry.Device // indexed by IP address
}

// New returns the platform; devices report into reg
func New(reg *registry.Registry) *Platform {
	return &Platform{
		reg:     reg,
		timeout: 10 * time.Second,
		kasas:   make(map[string]*registry.Device),
	}
}

// Startup is called by the platform management to start the platform up
func (k *Platform) Startup(c *config.Config) error {
	k.pull = time.Duration(c.KasaPullRate) * time.Second
	// unset/0 -- use the default of 10 seconds
	if c.KasaTimeout > 0 {
		k.timeout = time.Duration(c.KasaTimeout) * time.Second
	}
	return nil
}

// Shutdown is called by the platform management to shut things down
func (k *Platform) Shutdown() {}

// AddAccessory adds a Kasa device and pulls it for its current state
func (k *Platform) AddAccessory(a *accessory.Accessory, d *registry.Device) error {
	if a.IP == "" {
		return fmt.Errorf("kasa %s has no IP address", a.Name)
	}
	if t := d.Type(); t != devices.SwitchBinary && t != devices.SwitchMultilevel {
		return fmt.Errorf("kasa %s must be a %s or %s", a.Name, devices.SwitchBinary, devices.SwitchMultilevel)
	}
	k.mu.Lock()
	if _, ok := k.kasas[a.IP]; ok {
		k.mu.Unlock()
		return fmt.Errorf("already have a device with this IP address: %s", a.IP)
	}
	k.kasas[a.IP] = d
	k.mu.Unlock()

	settings, err := getSysinfo(a.IP, k.timeout)
	if err != nil {
		log.Info.Printf("unable to identify kasa device [%s]: %s", a.Name, err.Error())
		return nil
	}
	log.Info.Printf("adding [%s]: [%s] %s", a.Name, settings.Alias, settings.Model)
	k.update(d, settings)
	return nil
}

// Command maps on/off onto the relay and exact levels onto the dimmer
func (k *Platform) Command(d *registry.Device, name string, payload value.Value) error {
	ip := d.Address
	log.Info.Printf("Kasa [%s] (%s): %s %s", d.ID(), ip, name, payload)

	switch name {
	case "on", "off":
		return setRelayState(ip, name == "on", k.timeout)
	case "exact":
		if d.Type() != devices.SwitchMultilevel {
			return fmt.Errorf("kasa %s is not a dimmer", d.ID())
		}
		lvl, ok := value.From(payload.Map()["level"]).Float()
		if !ok {
			return fmt.Errorf("exact needs a level")
		}
		if lvl <= 0 {
			return setRelayState(ip, false, k.timeout)
		}
		if err := setBrightness(ip, brightness(lvl), k.timeout); err != nil {
			return err
		}
		return setRelayState(ip, true, k.timeout)
	}
	return fmt.Errorf("kasa does not know command %s", name)
}

// Background runs a background Go task keeping the registry in step with the devices
func (k *Platform) Background(ctx context.Context) {
	if k.pull == 0 {
		log.Info.Println("KasaPullRate is 0, disabling checks")
		return
	}
	go func() {
		t := time.NewTicker(k.pull)
		defer t.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case <-t.C:
				k.backgroundPuller()
			}
		}
	}()
}

func (k *Platform) backgroundPuller() {
	k.mu.RLock()
	kasas := make(map[string]*registry.Device, len(k.kasas))
	for ip, d := range k.kasas {
		kasas[ip] = d
	}
	k.mu.RUnlock()

	for ip, d := range kasas {
		settings, err := getSysinfo(ip, k.timeout)
		if err != nil {
			log.Info.Printf("kasa [%s]: %s", d.ID(), err.Error())
			continue
		}
		k.update(d, settings)
	}
}

func (k *Platform) update(d *registry.Device, s *ksysinfo) {
	if d.Type() == devices.SwitchMultilevel {
		lvl := 0.0
		if s.RelayState > 0 {
			lvl = float64(s.Brightness)
		}
		k.reg.Set(d.ID(), devices.MetricLevel, value.Number(lvl))
		return
	}
	if s.RelayState > 0 {
		k.reg.Set(d.ID(), devices.MetricLevel, value.On)
		return
	}
	k.reg.Set(d.ID(), devices.MetricLevel, value.Off)
}

// levels are 0-99, the dimmer takes 1-100
func brightness(lvl float64) int {
	b := int(math.Round(lvl))
	if b < 1 {
		b = 1
	}
	if b > 100 {
		b = 100
	}
	return b
}
