package owm

import (
	"context"
	"fmt"
	"sync"
	"time"

	owm "github.com/briandowns/openweathermap"
	"github.com/brutella/hc/log"

	"github.com/cloudkucooland/ifthen/accessory"
	"github.com/cloudkucooland/ifthen/config"
	"github.com/cloudkucooland/ifthen/devices"
	"github.com/cloudkucooland/ifthen/registry"
	"github.com/cloudkucooland/ifthen/value"
)

type weather struct {
	Temp     float64
	Humidity int
}

// Platform is the handle to the OWM sensors; each sensor is a city
type Platform struct {
	reg   *registry.Registry
	pull  time.Duration
	fetch func(city string) (weather, error)

	mu      sync.RWMutex
	sensors map[string]string // device ID -> city
}

// New returns the platform; sensors report into reg
func New(reg *registry.Registry) *Platform {
	return &Platform{
		reg:     reg,
		sensors: make(map[string]string),
	}
}

// Startup is called by the platform management to get things going
func (o *Platform) Startup(c *config.Config) error {
	if c.OWMKey == "" {
		return fmt.Errorf("no OpenWeatherMap key configured")
	}
	o.pull = time.Duration(c.OWMPullRate) * time.Second
	key, units := c.OWMKey, c.OWMUnits
	o.fetch = func(city string) (weather, error) {
		w, err := owm.NewCurrent(units, "EN", key)
		if err != nil {
			return weather{}, err
		}
		if err := w.CurrentByName(city); err != nil {
			return weather{}, err
		}
		return weather{Temp: w.Main.Temp, Humidity: w.Main.Humidity}, nil
	}
	return nil
}

// Shutdown is called by the platform management to shut things down
func (o *Platform) Shutdown() {}

// AddAccessory adds an OWM location; the city goes in the accessory's Username
func (o *Platform) AddAccessory(a *accessory.Accessory, d *registry.Device) error {
	city := a.Username
	if city == "" {
		city = a.Title
	}
	if city == "" {
		return fmt.Errorf("OWM sensor %s has no city", a.Name)
	}
	o.mu.Lock()
	o.sensors[d.ID()] = city
	o.mu.Unlock()

	o.update(d.ID(), city)
	return nil
}

// Command: sensors take no commands
func (o *Platform) Command(d *registry.Device, name string, payload value.Value) error {
	return fmt.Errorf("weather sensor %s takes no commands", d.ID())
}

// Background starts up the go process to periodically update the sensors values
func (o *Platform) Background(ctx context.Context) {
	go func() {
		t := time.NewTicker(o.pull)
		defer t.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case <-t.C:
				o.backgroundPuller()
			}
		}
	}()
}

func (o *Platform) backgroundPuller() {
	o.mu.RLock()
	sensors := make(map[string]string, len(o.sensors))
	for id, city := range o.sensors {
		sensors[id] = city
	}
	o.mu.RUnlock()

	for id, city := range sensors {
		o.update(id, city)
	}
}

func (o *Platform) update(id, city string) {
	if o.fetch == nil {
		return
	}
	w, err := o.fetch(city)
	if err != nil {
		log.Info.Printf("OWM %s: %s", city, err.Error())
		return
	}
	log.Debug.Printf("OWM %s: %.1f %d%%", city, w.Temp, w.Humidity)
	o.reg.Set(id, devices.MetricLevel, value.Number(w.Temp))
	o.reg.Set(id, devices.MetricHumidity, value.Number(float64(w.Humidity)))
}
