// Package vera implements the polling bridge for Vera home-automation
// controllers.
//
// The controller only offers a polling REST API. This package turns that
// API into a stream of deduplicated device events for two push channels:
// an HTTP sink and MQTT.
//
// # Architecture
//
//	┌────────────┐  lu_sdata   ┌───────────┐
//	│ Controller │────────────►│ Directory │
//	│  REST API  │   status    └─────┬─────┘
//	│            │──────┐            │ lookup
//	└────────────┘      ▼            ▼
//	               ┌────────┐   ┌──────────┐   ┌─────────────────┐
//	               │ Poller │──►│ Detector │──►│ Export publisher│──► MQTT
//	               └────────┘   └────┬─────┘   └─────────────────┘
//	                                 └──────────► HTTP sink
//
// # Event Pipeline
//
// For each Status, LoadLevelStatus or Tripped variable of a status report
// the detector applies:
//
//  1. Raw dedup: the same (device, variable, raw value) within 3s is dropped
//  2. Directory lookup: devices outside the directory are dropped
//  3. Filter: the room/device allow-list must accept the event
//  4. Last-value suppression: an unchanged normalized value is dropped
//  5. Normalization: values that cannot become a number are dropped
//
// The export publisher applies its own 5s window per (room, device, type)
// before publishing to vera/events/{room}/{device}.
//
// # Filter Syntax
//
//	Nappali#Konyha:Light*#Garázs:Door [0-9]
//
// An empty filter accepts nothing.
//
// # Thread Safety
//
// The directory, both dedup caches and the last-value table are
// lock-protected. The poller is the only writer in normal operation; MQTT
// handlers and the status API read concurrently.
package vera
