package runner

// this is distinct from platform so platforms never see each other

import (
	"fmt"

	"github.com/brutella/hc/log"

	"github.com/cloudkucooland/ifthen/metrics"
	"github.com/cloudkucooland/ifthen/platform"
	"github.com/cloudkucooland/ifthen/registry"
	"github.com/cloudkucooland/ifthen/value"
)

// Runner is the registry's command sink: it hands each command to the platform
// that owns the device. Virtual devices (no platform) accept everything.
type Runner struct {
	platforms *platform.Set
	metrics   *metrics.Metrics
}

// New routes commands to the platforms in s
func New(s *platform.Set, m *metrics.Metrics) *Runner {
	return &Runner{platforms: s, metrics: m}
}

// Command satisfies registry.Sink
func (r *Runner) Command(d *registry.Device, name string, payload value.Value) error {
	if d.Platform == "" {
		log.Debug.Printf("virtual device [%s]: %s %s", d.ID(), name, payload)
		return nil
	}
	p, ok := r.platforms.Get(d.Platform)
	if !ok {
		r.metrics.CommandFailed(d.Platform)
		return fmt.Errorf("unknown platform [%s]", d.Platform)
	}
	log.Info.Printf("running command on [%s] (%s): %s %s", d.ID(), d.Platform, name, payload)
	if err := p.Command(d, name, payload); err != nil {
		r.metrics.CommandFailed(d.Platform)
		return err
	}
	return nil
}
