// Package api implements the local, read-only HTTP status API of the bridge.
//
// Endpoints:
//   - GET /health            poller, MQTT and exporter state, directory size, sink
//   - GET /metrics           Prometheus exposition
//   - GET /api/v1/directory  rooms and their devices
//   - GET /api/v1/snapshot   live normalized controller snapshot
//
// The server binds to loopback by default and carries no authentication.
// Requests are rate limited per client IP.
//
// The server runs under the process supervisor:
//
//	srv, err := api.New(deps)
//	supervisor.Add(srv) // Serve(ctx) until shutdown
package api
