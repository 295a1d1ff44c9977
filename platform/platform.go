package platform

import (
	"context"
	"fmt"
	"sort"
	"sync"

	"github.com/brutella/hc/log"

	"github.com/cloudkucooland/ifthen/accessory"
	"github.com/cloudkucooland/ifthen/config"
	"github.com/cloudkucooland/ifthen/registry"
	"github.com/cloudkucooland/ifthen/value"
)

// Control is the interface which all platforms must satisfy
type Control interface {
	Startup(*config.Config) error
	// AddAccessory is called once the accessory's device is in the registry
	AddAccessory(*accessory.Accessory, *registry.Device) error
	// Command forwards a device command to the hardware
	Command(d *registry.Device, name string, payload value.Value) error
	// Background runs pollers until ctx is done; it must not block
	Background(ctx context.Context)
	Shutdown()
}

// Set is the collection of running platforms, owned by the daemon
type Set struct {
	mu        sync.RWMutex
	platforms map[string]Control
}

// NewSet returns an empty platform set
func NewSet() *Set {
	return &Set{platforms: make(map[string]Control)}
}

// Register adds a platform; the first registration of a name wins
func (s *Set) Register(name string, control Control) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.platforms[name]; !ok {
		s.platforms[name] = control
	}
}

// Get looks up a registered platform by name
func (s *Set) Get(name string) (Control, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	pc, ok := s.platforms[name]
	return pc, ok
}

// Names lists the registered platforms, sorted
func (s *Set) Names() []string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	names := make([]string, 0, len(s.platforms))
	for n := range s.platforms {
		names = append(names, n)
	}
	sort.Strings(names)
	return names
}

// StartupAll is called at process start to initialize all platforms. Platforms that fail
// to start are dropped.
func (s *Set) StartupAll(c *config.Config) {
	for _, name := range s.Names() {
		p, _ := s.Get(name)
		if err := p.Startup(c); err != nil {
			log.Info.Printf("platform %s did not start: %s", name, err.Error())
			s.mu.Lock()
			delete(s.platforms, name)
			s.mu.Unlock()
			continue
		}
		log.Debug.Printf("started platform %s", name)
	}
}

// AddAccessory hands an accessory to its platform
func (s *Set) AddAccessory(a *accessory.Accessory, d *registry.Device) error {
	if a.Platform == "" {
		return nil
	}
	p, ok := s.Get(a.Platform)
	if !ok {
		return fmt.Errorf("unknown accessory platform: %s (%s)", a.Platform, a.Name)
	}
	return p.AddAccessory(a, d)
}

// BackgroundAll starts the background processes of every platform
func (s *Set) BackgroundAll(ctx context.Context) {
	for _, name := range s.Names() {
		p, _ := s.Get(name)
		p.Background(ctx)
	}
}

// ShutdownAll is called at process stop to shutdown all platforms
func (s *Set) ShutdownAll() {
	for _, name := range s.Names() {
		log.Debug.Printf("shutting down: %s", name)
		p, _ := s.Get(name)
		p.Shutdown()
	}
}
