package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
)

// Metrics are the rule engine counters. A nil *Metrics is valid and counts nothing.
type Metrics struct {
	Evaluations   *prometheus.CounterVec
	Matches       *prometheus.CounterVec
	Commands      *prometheus.CounterVec
	Skipped       *prometheus.CounterVec
	CommandErrors *prometheus.CounterVec
}

// New creates the counters and registers them with reg
func New(reg prometheus.Registerer) *Metrics {
	m := &Metrics{
		Evaluations: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "ifthen",
			Name:      "rule_evaluations_total",
			Help:      "Change events evaluated, per rule.",
		}, []string{"rule"}),
		Matches: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "ifthen",
			Name:      "rule_matches_total",
			Help:      "Change events whose condition matched, per rule.",
		}, []string{"rule"}),
		Commands: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "ifthen",
			Name:      "rule_commands_total",
			Help:      "Commands issued by rules.",
		}, []string{"rule", "command"}),
		Skipped: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "ifthen",
			Name:      "rule_actions_skipped_total",
			Help:      "Actions not dispatched, by reason.",
		}, []string{"rule", "reason"}),
		CommandErrors: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "ifthen",
			Name:      "command_errors_total",
			Help:      "Commands rejected by the device's platform.",
		}, []string{"platform"}),
	}
	if reg != nil {
		reg.MustRegister(m.Evaluations, m.Matches, m.Commands, m.Skipped, m.CommandErrors)
	}
	return m
}

func (m *Metrics) Evaluated(rule string) {
	if m != nil {
		m.Evaluations.WithLabelValues(rule).Inc()
	}
}

func (m *Metrics) Matched(rule string) {
	if m != nil {
		m.Matches.WithLabelValues(rule).Inc()
	}
}

func (m *Metrics) Commanded(rule, command string) {
	if m != nil {
		m.Commands.WithLabelValues(rule, command).Inc()
	}
}

func (m *Metrics) Skip(rule, reason string) {
	if m != nil {
		m.Skipped.WithLabelValues(rule, reason).Inc()
	}
}

func (m *Metrics) CommandFailed(platform string) {
	if m != nil {
		m.CommandErrors.WithLabelValues(platform).Inc()
	}
}
