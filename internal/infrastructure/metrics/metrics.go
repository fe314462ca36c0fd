// Package metrics holds the bridge's Prometheus instrumentation.
//
// Collectors register with the default registry through promauto, so the
// /metrics handler of the status API exposes them without further wiring.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Outcomes of a single state variable passing through the event detector.
const (
	OutcomeEmitted       = "emitted"
	OutcomeDuplicate     = "duplicate"
	OutcomeUnknownDevice = "unknown_device"
	OutcomeFiltered      = "filtered"
	OutcomeUnchanged     = "unchanged"
	OutcomeInvalidValue  = "invalid_value"
)

// Results shared by polls, exports and sink pushes.
const (
	ResultSuccess      = "success"
	ResultError        = "error"
	ResultDuplicate    = "duplicate"
	ResultDisconnected = "disconnected"
	ResultRejected     = "rejected"
	ResultCircuitOpen  = "circuit_open"
	ResultDropped      = "dropped"
)

var (
	// PollsTotal counts status polls by result.
	PollsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "verabridge_polls_total",
		Help: "Total number of controller status polls",
	}, []string{"result"})

	// RawEventsTotal counts state variables examined by the event detector.
	RawEventsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "verabridge_raw_events_total",
		Help: "Total number of state variables examined, by outcome",
	}, []string{"outcome"})

	// ExportsTotal counts MQTT export attempts.
	ExportsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "verabridge_exports_total",
		Help: "Total number of MQTT event exports, by result",
	}, []string{"result"})

	// SinkPushesTotal counts HTTP sink pushes.
	SinkPushesTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "verabridge_sink_pushes_total",
		Help: "Total number of HTTP sink pushes, by result",
	}, []string{"result"})

	// DirectoryRooms is the number of rooms in the current directory.
	DirectoryRooms = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "verabridge_directory_rooms",
		Help: "Number of rooms in the device directory",
	})

	// DirectoryDevices is the number of devices in the current directory.
	DirectoryDevices = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "verabridge_directory_devices",
		Help: "Number of devices in the device directory",
	})

	// SinkBreakerState mirrors the sink circuit breaker (0=closed, 1=half-open, 2=open).
	SinkBreakerState = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "verabridge_sink_breaker_state",
		Help: "Sink circuit breaker state (0=closed, 1=half-open, 2=open)",
	})
)

// RecordPoll counts one status poll.
func RecordPoll(result string) {
	PollsTotal.WithLabelValues(result).Inc()
}

// RecordRawEvent counts one state variable outcome.
func RecordRawEvent(outcome string) {
	RawEventsTotal.WithLabelValues(outcome).Inc()
}

// RecordExport counts one export attempt.
func RecordExport(result string) {
	ExportsTotal.WithLabelValues(result).Inc()
}

// RecordSinkPush counts one sink push.
func RecordSinkPush(result string) {
	SinkPushesTotal.WithLabelValues(result).Inc()
}

// SetDirectorySize updates the directory gauges.
func SetDirectorySize(rooms, devices int) {
	DirectoryRooms.Set(float64(rooms))
	DirectoryDevices.Set(float64(devices))
}
