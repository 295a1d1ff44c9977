package linuxsensors

import (
	"context"
	"fmt"
	"sort"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/brutella/hc/log"
	"github.com/ssimunic/gosensors"

	"github.com/cloudkucooland/ifthen/accessory"
	"github.com/cloudkucooland/ifthen/config"
	"github.com/cloudkucooland/ifthen/devices"
	"github.com/cloudkucooland/ifthen/registry"
	"github.com/cloudkucooland/ifthen/value"
)

// Platform is the handle to the host sensors
type Platform struct {
	reg  *registry.Registry
	pull time.Duration
	read func() (map[string]map[string]string, error)

	mu      sync.RWMutex
	sensors []string // device IDs fed from the host
}

// New returns the platform; the host temperature reports into reg
func New(reg *registry.Registry) *Platform {
	return &Platform{
		reg:  reg,
		read: readSystem,
	}
}

func readSystem() (map[string]map[string]string, error) {
	nfs, err := gosensors.NewFromSystem()
	if err != nil {
		return nil, err
	}
	chips := make(map[string]map[string]string, len(nfs.Chips))
	for chip, entries := range nfs.Chips {
		chips[chip] = entries
	}
	return chips, nil
}

// Startup is called by the platform management to get things going
func (s *Platform) Startup(c *config.Config) error {
	s.pull = time.Duration(c.SensorPullRate) * time.Second
	return nil
}

// Shutdown is called by the platform management to shut things down
func (s *Platform) Shutdown() {}

// AddAccessory feeds the host temperature to the device
func (s *Platform) AddAccessory(a *accessory.Accessory, d *registry.Device) error {
	if d.Type() != devices.SensorMultilevel {
		return fmt.Errorf("host sensor %s must be a %s", a.Name, devices.SensorMultilevel)
	}
	s.mu.Lock()
	s.sensors = append(s.sensors, d.ID())
	s.mu.Unlock()

	s.backgroundPuller()
	return nil
}

// Command: sensors take no commands
func (s *Platform) Command(d *registry.Device, name string, payload value.Value) error {
	return fmt.Errorf("host sensor %s takes no commands", d.ID())
}

// Background starts up the go process to periodically update the sensors values
func (s *Platform) Background(ctx context.Context) {
	go func() {
		t := time.NewTicker(s.pull)
		defer t.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case <-t.C:
				s.backgroundPuller()
			}
		}
	}()
}

func (s *Platform) backgroundPuller() {
	chips, err := s.read()
	if err != nil {
		log.Info.Println(err)
		return
	}
	temp, ok := hostTemp(chips)
	if !ok {
		log.Debug.Println("no temp1 reading on any chip")
		return
	}

	s.mu.RLock()
	ids := append([]string(nil), s.sensors...)
	s.mu.RUnlock()
	for _, id := range ids {
		s.reg.Set(id, devices.MetricLevel, value.Number(temp))
	}
}

// hostTemp returns the first readable temp1, chips in name order
func hostTemp(chips map[string]map[string]string) (float64, bool) {
	names := make([]string, 0, len(chips))
	for chip := range chips {
		names = append(names, chip)
	}
	sort.Strings(names)

	for _, chip := range names {
		v, ok := chips[chip]["temp1"]
		if !ok {
			continue
		}
		temp, err := parseTemp(v)
		if err != nil {
			log.Info.Println(err)
			continue
		}
		return temp, true
	}
	return 0, false
}

// parseTemp reads lm-sensors output such as "+45.0°C  (high = +80.0°C)"
func parseTemp(v string) (float64, error) {
	v = strings.TrimSpace(v)
	end := 0
	for end < len(v) {
		c := v[end]
		if (c >= '0' && c <= '9') || c == '.' || ((c == '+' || c == '-') && end == 0) {
			end++
			continue
		}
		break
	}
	return strconv.ParseFloat(v[:end], 64)
}
