package ping

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/brutella/hc/log"
	"github.com/go-ping/ping"

	"github.com/cloudkucooland/ifthen/accessory"
	"github.com/cloudkucooland/ifthen/config"
	"github.com/cloudkucooland/ifthen/devices"
	"github.com/cloudkucooland/ifthen/registry"
	"github.com/cloudkucooland/ifthen/value"
)

// Platform is the platform handle for the presence sensors
type Platform struct {
	reg     *registry.Registry
	pull    time.Duration
	timeout time.Duration
	probe   func(addr string, timeout time.Duration) bool

	mu      sync.RWMutex
	devices map[string]string // device ID -> address
}

// New returns the platform; presence reports into reg
func New(reg *registry.Registry) *Platform {
	return &Platform{
		reg:     reg,
		probe:   icmp,
		timeout: 5 * time.Second,
		devices: make(map[string]string),
	}
}

// Startup is called by the platform management to start the platform up
func (p *Platform) Startup(c *config.Config) error {
	p.pull = time.Duration(c.PingPullRate) * time.Second
	if c.PingTimeout > 0 {
		p.timeout = time.Duration(c.PingTimeout) * time.Second
	}
	return nil
}

// Shutdown is called by the platform management to shut things down
func (p *Platform) Shutdown() {}

// AddAccessory adds a host to watch; it reports "on" while it answers
func (p *Platform) AddAccessory(a *accessory.Accessory, d *registry.Device) error {
	if a.IP == "" {
		return fmt.Errorf("ping device %s has no address", a.Name)
	}
	p.mu.Lock()
	p.devices[d.ID()] = a.IP
	p.mu.Unlock()

	p.update(d.ID(), a.IP)
	return nil
}

// Command: presence sensors take no commands
func (p *Platform) Command(d *registry.Device, name string, payload value.Value) error {
	return fmt.Errorf("presence sensor %s takes no commands", d.ID())
}

// Background runs a background Go task periodically pinging everything
func (p *Platform) Background(ctx context.Context) {
	go func() {
		t := time.NewTicker(p.pull)
		defer t.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case <-t.C:
				p.backgroundPuller()
			}
		}
	}()
}

func (p *Platform) backgroundPuller() {
	p.mu.RLock()
	devs := make(map[string]string, len(p.devices))
	for id, addr := range p.devices {
		devs[id] = addr
	}
	p.mu.RUnlock()

	for id, addr := range devs {
		p.update(id, addr)
	}
}

func (p *Platform) update(id, addr string) {
	up := p.probe(addr, p.timeout)
	log.Debug.Printf("ping %s (%s): %t", id, addr, up)
	if up {
		p.reg.Set(id, devices.MetricLevel, value.On)
		return
	}
	p.reg.Set(id, devices.MetricLevel, value.Off)
}

func icmp(addr string, timeout time.Duration) bool {
	pinger, err := ping.NewPinger(addr)
	if err != nil {
		log.Info.Println(err.Error())
		return false
	}
	pinger.Count = 1
	pinger.Timeout = timeout
	pinger.SetPrivileged(false)
	if err := pinger.Run(); err != nil {
		log.Info.Println(err.Error())
		return false
	}
	return pinger.Statistics().PacketsRecv > 0
}
