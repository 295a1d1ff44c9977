package ifthen

import (
	"fmt"
	"path/filepath"
	"sync"

	"github.com/brutella/hc/log"
	"github.com/brutella/hc/util"

	"github.com/cloudkucooland/ifthen/accessory"
	"github.com/cloudkucooland/ifthen/config"
	"github.com/cloudkucooland/ifthen/devices"
	"github.com/cloudkucooland/ifthen/homecontrol"
	"github.com/cloudkucooland/ifthen/kasa"
	"github.com/cloudkucooland/ifthen/konnected"
	"github.com/cloudkucooland/ifthen/linuxsensors"
	"github.com/cloudkucooland/ifthen/metrics"
	"github.com/cloudkucooland/ifthen/owm"
	"github.com/cloudkucooland/ifthen/ping"
	"github.com/cloudkucooland/ifthen/platform"
	"github.com/cloudkucooland/ifthen/registry"
	"github.com/cloudkucooland/ifthen/rule"
	"github.com/cloudkucooland/ifthen/runner"
	"github.com/cloudkucooland/ifthen/shelly"
	"github.com/cloudkucooland/ifthen/tradfri"
)

// Daemon ties the registry, the platforms and the installed rules together
type Daemon struct {
	Config    *config.Config
	Registry  *registry.Registry
	Platforms *platform.Set
	Metrics   *metrics.Metrics
	Shelly    *shelly.Platform
	Konnected *konnected.Platform

	mu      sync.Mutex
	engines []*rule.Engine
	bridge  *homecontrol.Bridge
}

// New builds an empty daemon; commands go through the platforms, counted in m (which may be nil)
func New(c *config.Config, m *metrics.Metrics) *Daemon {
	set := platform.NewSet()
	return &Daemon{
		Config:    c,
		Registry:  registry.New(runner.New(set, m)),
		Platforms: set,
		Metrics:   m,
	}
}

// BootstrapPlatforms registers and starts every platform; those without configuration drop out
func (d *Daemon) BootstrapPlatforms() {
	d.Shelly = shelly.New(d.Registry)
	d.Platforms.Register("Shelly", d.Shelly)
	d.Platforms.Register("Kasa", kasa.New(d.Registry))
	d.Konnected = konnected.New(d.Registry)
	d.Platforms.Register("Konnected", d.Konnected)
	d.Platforms.Register("Tradfri", tradfri.New(d.Registry))
	d.Platforms.Register("OWM", owm.New(d.Registry))
	d.Platforms.Register("LinuxSensors", linuxsensors.New(d.Registry))
	d.Platforms.Register("Ping", ping.New(d.Registry))

	d.Platforms.StartupAll(d.Config)
}

// AddAccessories puts each accessory in the registry, sets its starting level and hands it
// to its platform. Failures are logged; the first one is returned.
func (d *Daemon) AddAccessories(accs []*accessory.Accessory) error {
	var first error
	for _, a := range accs {
		if err := d.addAccessory(a); err != nil {
			log.Info.Print(err)
			if first == nil {
				first = err
			}
		}
	}
	return first
}

func (d *Daemon) addAccessory(a *accessory.Accessory) error {
	if err := a.Validate(); err != nil {
		return err
	}
	if a.Platform != "" {
		if _, ok := d.Platforms.Get(a.Platform); !ok {
			return fmt.Errorf("unknown accessory platform: %s (%s)", a.Platform, a.Name)
		}
	}
	dev := a.Device()
	if err := d.Registry.Add(dev); err != nil {
		return err
	}
	if !a.Level.IsNull() {
		if err := d.Registry.Set(dev.ID(), devices.MetricLevel, a.Level); err != nil {
			return err
		}
	}
	if err := d.Platforms.AddAccessory(a, dev); err != nil {
		d.Registry.Remove(dev.ID())
		return fmt.Errorf("%s: %w", a.Name, err)
	}
	return nil
}

// InstallRules starts an engine per rule. Rules that fail to install are logged and skipped.
func (d *Daemon) InstallRules(rules []rule.Rule) int {
	d.mu.Lock()
	defer d.mu.Unlock()

	installed := 0
	for _, r := range rules {
		e, err := rule.New(d.Registry, r, rule.WithMetrics(d.Metrics))
		if err != nil {
			log.Info.Printf("rule %s not installed: %s", r.ID, err.Error())
			continue
		}
		d.engines = append(d.engines, e)
		installed++
	}
	log.Info.Printf("installed %d of %d rules", installed, len(rules))
	return installed
}

// Rules lists the installed rules in install order
func (d *Daemon) Rules() []rule.Rule {
	d.mu.Lock()
	defer d.mu.Unlock()
	out := make([]rule.Rule, 0, len(d.engines))
	for _, e := range d.engines {
		out = append(out, e.Rule())
	}
	return out
}

// StopRules stops and forgets every installed rule
func (d *Daemon) StopRules() {
	d.mu.Lock()
	defer d.mu.Unlock()
	for _, e := range d.engines {
		e.Stop()
	}
	d.engines = nil
}

// StartHomeKit bridges every registered device that has a HomeKit mapping
func (d *Daemon) StartHomeKit() error {
	storage, err := util.NewFileStorage(filepath.Join(d.Config.ConfigDir, "serials"))
	if err != nil {
		log.Info.Println("unable to get storage")
		storage = nil
	}
	b := homecontrol.New(d.Registry, storage)
	for _, dev := range d.Registry.Devices() {
		if err := b.Add(dev); err != nil {
			log.Debug.Print(err)
		}
	}
	if err := b.Start(d.Config); err != nil {
		return err
	}
	d.mu.Lock()
	d.bridge = b
	d.mu.Unlock()
	return nil
}

// Shutdown stops the rules, the bridge and the platforms
func (d *Daemon) Shutdown() {
	d.StopRules()
	d.mu.Lock()
	b := d.bridge
	d.bridge = nil
	d.mu.Unlock()
	if b != nil {
		b.Stop()
	}
	d.Platforms.ShutdownAll()
}
