package registry

import (
	"sort"
	"sync"

	"github.com/brutella/hc/log"

	"github.com/cloudkucooland/ifthen/devices"
	"github.com/cloudkucooland/ifthen/value"
)

// Device is a registry entry: identity, the platform that drives it, its metrics
type Device struct {
	id       string
	typ      devices.Type
	Title    string // display name
	Platform string // the platform owning the hardware; empty for virtual devices
	Address  string // platform specific: IP, gateway device ID, host name

	mu      sync.RWMutex
	metrics map[string]value.Value
	reg     *Registry
}

// NewDevice makes an unregistered device
func NewDevice(id string, t devices.Type) *Device {
	return &Device{
		id:      id,
		typ:     t,
		Title:   id,
		metrics: make(map[string]value.Value),
	}
}

func (d *Device) ID() string         { return d.id }
func (d *Device) Type() devices.Type { return d.typ }

// Metric reads a metric, Null when never set
func (d *Device) Metric(path string) value.Value {
	d.mu.RLock()
	defer d.mu.RUnlock()
	return d.metrics[path]
}

// Metrics is a copy of all metrics
func (d *Device) Metrics() map[string]value.Value {
	d.mu.RLock()
	defer d.mu.RUnlock()
	out := make(map[string]value.Value, len(d.metrics))
	for k, v := range d.metrics {
		out[k] = v
	}
	return out
}

// MetricNames lists the metrics that have been set, sorted
func (d *Device) MetricNames() []string {
	d.mu.RLock()
	defer d.mu.RUnlock()
	names := make([]string, 0, len(d.metrics))
	for k := range d.metrics {
		names = append(names, k)
	}
	sort.Strings(names)
	return names
}

// Command sends a command through the registry's sink. Devices that were removed drop it.
func (d *Device) Command(name string, payload value.Value) {
	d.mu.RLock()
	r := d.reg
	d.mu.RUnlock()
	if r == nil {
		log.Info.Printf("device [%s] is not registered, dropping command %s", d.id, name)
		return
	}
	r.command(d, name, payload)
}

func (d *Device) set(metric string, v value.Value) (value.Value, bool) {
	d.mu.Lock()
	defer d.mu.Unlock()
	prev, ok := d.metrics[metric]
	d.metrics[metric] = v
	if !ok {
		return prev, true
	}
	return prev, !value.Equal(prev, v)
}

func (d *Device) setRegistry(r *Registry) {
	d.mu.Lock()
	d.reg = r
	d.mu.Unlock()
}
