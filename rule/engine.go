package rule

import (
	"errors"
	"fmt"
	"sync"

	"github.com/brutella/hc/log"

	"github.com/cloudkucooland/ifthen/action"
	"github.com/cloudkucooland/ifthen/devices"
	"github.com/cloudkucooland/ifthen/metrics"
)

// Host is what a rule needs from the device registry
type Host interface {
	Subscribe(deviceID, metric string, h devices.Handler) (devices.Subscription, error)
	Resolve(deviceID string) (devices.Handle, bool)
}

// Rule is one condition and the actions it triggers, in dispatch order
type Rule struct {
	ID        string
	Condition Condition
	Actions   []action.Action
}

// Validate reports the first malformed field
func (r Rule) Validate() error {
	if r.Condition.DeviceID == "" {
		return &ConfigError{Rule: r.ID, Field: "condition", Err: errors.New("source device unset")}
	}
	if r.Condition.Operator != None && r.Condition.Threshold.IsNull() {
		return &ConfigError{Rule: r.ID, Field: "condition", Err: fmt.Errorf("operator %s without a threshold", r.Condition.Operator)}
	}
	if r.Condition.Threshold.IsObject() {
		return &ConfigError{Rule: r.ID, Field: "condition", Err: errors.New("threshold must be a number or text")}
	}
	if len(r.Actions) == 0 {
		return &ConfigError{Rule: r.ID, Field: "actions", Err: errors.New("no actions")}
	}
	for i, a := range r.Actions {
		if err := a.Validate(); err != nil {
			return &ConfigError{Rule: r.ID, Field: fmt.Sprintf("actions[%d]", i), Err: err}
		}
	}
	return nil
}

// Engine runs one rule against a host
type Engine struct {
	rule    Rule
	host    Host
	metrics *metrics.Metrics

	mu  sync.Mutex
	sub devices.Subscription
}

// Option configures an Engine
type Option func(*Engine)

// WithMetrics counts evaluations and commands
func WithMetrics(m *metrics.Metrics) Option {
	return func(e *Engine) { e.metrics = m }
}

// New validates r and subscribes to its source device. The source must be registered;
// events that happened before New are not replayed.
func New(host Host, r Rule, opts ...Option) (*Engine, error) {
	if err := r.Validate(); err != nil {
		return nil, err
	}
	if _, ok := host.Resolve(r.Condition.DeviceID); !ok {
		return nil, &ConfigError{Rule: r.ID, Field: "condition", Err: fmt.Errorf("%s: %w", r.Condition.DeviceID, ErrUnresolved)}
	}

	e := &Engine{rule: r, host: host}
	for _, o := range opts {
		o(e)
	}

	sub, err := host.Subscribe(r.Condition.DeviceID, r.Condition.metric(), e.Handle)
	if err != nil {
		return nil, &ConfigError{Rule: r.ID, Field: "condition", Err: err}
	}
	e.sub = sub
	log.Debug.Printf("rule %s: watching [%s] %s", r.ID, r.Condition.DeviceID, r.Condition.metric())
	return e, nil
}

// Rule returns the rule this engine runs
func (e *Engine) Rule() Rule {
	return e.rule
}

// Handle evaluates one change event of the source device
func (e *Engine) Handle(ev devices.Event) {
	e.metrics.Evaluated(e.rule.ID)

	class := devices.ClassOther
	if src, ok := e.host.Resolve(e.rule.Condition.DeviceID); ok {
		class = src.Type().Class()
	}
	if !Match(e.rule.Condition, ev.Value, class) {
		return
	}
	e.metrics.Matched(e.rule.ID)
	log.Debug.Printf("rule %s: [%s] %s matched", e.rule.ID, ev.DeviceID, ev.Value)

	for _, a := range e.rule.Actions {
		e.run(a)
	}
}

func (e *Engine) run(a action.Action) {
	target, ok := e.host.Resolve(a.Target)
	if !ok {
		log.Info.Print(&ResolutionError{Rule: e.rule.ID, Target: a.Target})
		e.metrics.Skip(e.rule.ID, "unresolved")
		return
	}

	if a.SendOnlyOnChange && !changed(target, a) {
		e.metrics.Skip(e.rule.ID, "unchanged")
		return
	}

	cmd, ok := Dispatch(a, target.Type())
	if !ok {
		log.Debug.Printf("rule %s: [%s] is a %s, not a %s; ignoring", e.rule.ID, a.Target, target.Type(), a.Type)
		e.metrics.Skip(e.rule.ID, "type")
		return
	}
	log.Info.Printf("rule %s: [%s] %s %s", e.rule.ID, a.Target, cmd.Name, cmd.Payload)
	e.metrics.Commanded(e.rule.ID, cmd.Name)
	target.Command(cmd.Name, cmd.Payload)
}

// Stop removes the subscription; safe to call repeatedly
func (e *Engine) Stop() {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.sub == nil {
		return
	}
	e.sub.Unsubscribe()
	e.sub = nil
}
