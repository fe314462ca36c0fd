// Package sink owns the HTTP push destination of the bridge.
//
// The destination address is announced at runtime over MQTT and persisted so
// a restart resumes with the last announced address. Address is the single
// owner of that value; everything else reads it through Current.
//
// Pusher sends JSON bodies to http://<address>:<port>/. A push succeeds only
// on HTTP 200. Delivery is at-most-once: failed pushes are logged and
// dropped, and a circuit breaker stops hammering a sink that is down.
//
// Usage:
//
//	addr, err := sink.NewAddress(ctx, cfg.Sink.IP, sink.NewSQLiteStore(db), logger)
//	pusher := sink.NewPusher(sink.PusherOptions{Address: addr, DevicePort: cfg.Sink.DevicePort})
//	pusher.Deliver(msg) // returns immediately
package sink
