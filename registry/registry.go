package registry

import (
	"fmt"
	"sort"
	"sync"

	"github.com/brutella/hc/log"

	"github.com/cloudkucooland/ifthen/devices"
	"github.com/cloudkucooland/ifthen/value"
)

// Sink accepts device commands and forwards them to hardware
type Sink interface {
	Command(d *Device, name string, payload value.Value) error
}

// CommandError is a command the sink rejected
type CommandError struct {
	Device  string
	Command string
	Err     error
}

func (e *CommandError) Error() string {
	return fmt.Sprintf("command %s to %s rejected: %s", e.Command, e.Device, e.Err.Error())
}

func (e *CommandError) Unwrap() error { return e.Err }

// Registry holds the live devices and delivers their change events
type Registry struct {
	mu      sync.RWMutex
	devices map[string]*Device
	subs    map[subKey]map[uint64]devices.Handler
	nextSub uint64

	sink Sink
	// OnCommandError, if set, is called for every rejected command
	OnCommandError func(*CommandError)

	qmu      sync.Mutex
	queue    []devices.Event
	draining bool
}

type subKey struct {
	device string
	metric string
}

// New returns an empty registry sending commands to sink. A nil sink accepts everything.
func New(sink Sink) *Registry {
	return &Registry{
		devices: make(map[string]*Device),
		subs:    make(map[subKey]map[uint64]devices.Handler),
		sink:    sink,
	}
}

// Add registers a device; IDs are unique
func (r *Registry) Add(d *Device) error {
	if d.id == "" {
		return fmt.Errorf("device ID unset")
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.devices[d.id]; ok {
		return fmt.Errorf("already have a device with this ID: %s", d.id)
	}
	d.setRegistry(r)
	r.devices[d.id] = d
	log.Debug.Printf("added device [%s] (%s)", d.id, d.typ)
	return nil
}

// Remove drops a device. Subscriptions on it stay valid and fire again if the ID is re-added.
func (r *Registry) Remove(id string) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	d, ok := r.devices[id]
	if !ok {
		return false
	}
	d.setRegistry(nil)
	delete(r.devices, id)
	return true
}

// Device looks up a device by ID
func (r *Registry) Device(id string) (*Device, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	d, ok := r.devices[id]
	return d, ok
}

// Resolve is Device as a devices.Handle
func (r *Registry) Resolve(id string) (devices.Handle, bool) {
	d, ok := r.Device(id)
	if !ok {
		return nil, false
	}
	return d, true
}

// Devices lists every device, sorted by ID
func (r *Registry) Devices() []*Device {
	r.mu.RLock()
	out := make([]*Device, 0, len(r.devices))
	for _, d := range r.devices {
		out = append(out, d)
	}
	r.mu.RUnlock()
	sort.Slice(out, func(i, j int) bool { return out[i].id < out[j].id })
	return out
}

// Subscribe delivers every later change of metric on deviceID to h, until unsubscribed.
// The device does not need to exist yet.
func (r *Registry) Subscribe(deviceID, metric string, h devices.Handler) (devices.Subscription, error) {
	if deviceID == "" || metric == "" {
		return nil, fmt.Errorf("subscribe needs a device and a metric")
	}
	if h == nil {
		return nil, fmt.Errorf("subscribe needs a handler")
	}
	key := subKey{deviceID, metric}

	r.mu.Lock()
	defer r.mu.Unlock()
	r.nextSub++
	id := r.nextSub
	if r.subs[key] == nil {
		r.subs[key] = make(map[uint64]devices.Handler)
	}
	r.subs[key][id] = h
	return &subscription{reg: r, key: key, id: id}, nil
}

type subscription struct {
	reg  *Registry
	key  subKey
	id   uint64
	once sync.Once
}

func (s *subscription) Unsubscribe() {
	s.once.Do(func() {
		s.reg.mu.Lock()
		defer s.reg.mu.Unlock()
		delete(s.reg.subs[s.key], s.id)
		if len(s.reg.subs[s.key]) == 0 {
			delete(s.reg.subs, s.key)
		}
	})
}

// Subscribers counts live subscriptions on a device metric
func (r *Registry) Subscribers(deviceID, metric string) int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.subs[subKey{deviceID, metric}])
}

// Set updates a metric and emits a change event when the value changed. Toggle buttons
// and scenes emit on every report.
func (r *Registry) Set(deviceID, metric string, v value.Value) error {
	d, ok := r.Device(deviceID)
	if !ok {
		return fmt.Errorf("unknown device: %s", deviceID)
	}
	prev, changed := d.set(metric, v)
	if !changed && !momentary(d.typ) {
		return nil
	}
	r.publish(devices.Event{DeviceID: deviceID, Metric: metric, Value: v, Previous: prev})
	return nil
}

// publish queues the event; whichever caller finds the bus idle drains it, so handlers
// run one at a time and a handler that causes further changes never nests.
func (r *Registry) publish(ev devices.Event) {
	r.qmu.Lock()
	r.queue = append(r.queue, ev)
	if r.draining {
		r.qmu.Unlock()
		return
	}
	r.draining = true
	r.qmu.Unlock()

	for {
		r.qmu.Lock()
		if len(r.queue) == 0 {
			r.draining = false
			r.qmu.Unlock()
			return
		}
		next := r.queue[0]
		r.queue = r.queue[1:]
		r.qmu.Unlock()

		r.deliver(next)
	}
}

func (r *Registry) deliver(ev devices.Event) {
	r.mu.RLock()
	set := r.subs[subKey{ev.DeviceID, ev.Metric}]
	ids := make([]uint64, 0, len(set))
	for id := range set {
		ids = append(ids, id)
	}
	sort.Slice(ids, func(i, j int) bool { return ids[i] < ids[j] })
	handlers := make([]devices.Handler, 0, len(ids))
	for _, id := range ids {
		handlers = append(handlers, set[id])
	}
	r.mu.RUnlock()

	for _, h := range handlers {
		h(ev)
	}
}

// command hands a command to the sink; on success the device state follows it
func (r *Registry) command(d *Device, name string, payload value.Value) {
	log.Debug.Printf("command [%s] %s %s", d.id, name, payload)
	if r.sink != nil {
		if err := r.sink.Command(d, name, payload); err != nil {
			cerr := &CommandError{Device: d.id, Command: name, Err: err}
			log.Info.Print(cerr)
			if r.OnCommandError != nil {
				r.OnCommandError(cerr)
			}
			return
		}
	}
	r.apply(d, name, payload)
}

func (r *Registry) apply(d *Device, name string, payload value.Value) {
	switch name {
	case "on", "off":
		if momentary(d.typ) {
			// a press, reported again on every command
			r.Set(d.id, devices.MetricLevel, value.On)
			return
		}
		r.Set(d.id, devices.MetricLevel, value.Text(name))
	case "exact":
		m := payload.Map()
		if m == nil {
			return
		}
		if lvl, ok := m["level"]; ok {
			r.Set(d.id, devices.MetricLevel, value.From(lvl))
		}
		if _, ok := m["red"]; ok {
			r.Set(d.id, devices.MetricColor, payload)
		}
	default:
		// status labels such as open/close become the level
		if d.typ.Class() == devices.ClassOther {
			r.Set(d.id, devices.MetricLevel, value.Text(name))
		}
	}
}

func momentary(t devices.Type) bool {
	c := t.Class()
	return c == devices.ClassToggleButton || c == devices.ClassScene
}
