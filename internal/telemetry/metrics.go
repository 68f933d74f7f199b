package telemetry

import (
	"sync"

	"github.com/prometheus/client_golang/prometheus"
)

var (
	// CommandsTotal counts every command sent to the radio driver.
	CommandsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "nightjar",
			Name:      "commands_total",
			Help:      "Total number of commands sent to the radio driver",
		},
		[]string{"verb"},
	)

	// CommandErrorsTotal counts failed radio-driver commands.
	CommandErrorsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "nightjar",
			Name:      "command_errors_total",
			Help:      "Total number of failed radio-driver commands",
		},
		[]string{"verb", "kind"},
	)

	// EventsTotal counts every radio-driver event frame received.
	EventsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "nightjar",
			Name:      "events_total",
			Help:      "Total number of radio-driver event frames received",
		},
		[]string{"tag"},
	)

	// HandshakesTotal counts unique handshakes recorded.
	HandshakesTotal = prometheus.NewCounter(
		prometheus.CounterOpts{
			Namespace: "nightjar",
			Name:      "handshakes_total",
			Help:      "Total number of unique handshakes recorded",
		},
	)

	// EpochReward is the last reward computed by the Epoch engine.
	EpochReward = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Namespace: "nightjar",
			Name:      "epoch_reward",
			Help:      "Reward value from the most recently closed epoch",
		},
	)

	// EpochNumber is the current epoch counter.
	EpochNumber = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Namespace: "nightjar",
			Name:      "epoch_number",
			Help:      "Current epoch counter",
		},
	)

	// MoodState is 1 for the currently active mood, 0 for all others.
	MoodState = prometheus.NewGaugeVec(
		prometheus.GaugeOpts{
			Namespace: "nightjar",
			Name:      "mood_state",
			Help:      "1 for the active mood state, 0 otherwise",
		},
		[]string{"state"},
	)

	// HookInvocationsTotal counts calls through each wrapped hook site.
	HookInvocationsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "nightjar",
			Name:      "hook_invocations_total",
			Help:      "Total number of calls through each hook site",
		},
		[]string{"site"},
	)

	// PluginState is the numeric domain.PluginState of each loaded plugin.
	PluginState = prometheus.NewGaugeVec(
		prometheus.GaugeOpts{
			Namespace: "nightjar",
			Name:      "plugin_state",
			Help:      "Numeric lifecycle state of each loaded plugin",
		},
		[]string{"plugin"},
	)

	// Ensure metrics are only registered once
	once sync.Once
)

// InitMetrics registers all metrics with the global Prometheus registry
// This function is idempotent and can be called multiple times safely
func InitMetrics() {
	once.Do(func() {
		// Register metrics, ignoring errors if already registered
		// This prevents panics when metrics are already in the registry
		prometheus.DefaultRegisterer.Register(CommandsTotal)
		prometheus.DefaultRegisterer.Register(CommandErrorsTotal)
		prometheus.DefaultRegisterer.Register(EventsTotal)
		prometheus.DefaultRegisterer.Register(HandshakesTotal)
		prometheus.DefaultRegisterer.Register(EpochReward)
		prometheus.DefaultRegisterer.Register(EpochNumber)
		prometheus.DefaultRegisterer.Register(MoodState)
		prometheus.DefaultRegisterer.Register(HookInvocationsTotal)
		prometheus.DefaultRegisterer.Register(PluginState)
	})
}
