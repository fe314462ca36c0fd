// Package mqtt provides MQTT client connectivity for the Vera bridge.
//
// This package manages:
//   - Connection to the broker with auto-reconnect
//   - Message publishing with a bounded acknowledgement wait
//   - Topic subscriptions, restored after every reconnect
//   - Last Will and Testament (LWT) on vera/bridge/status
//
// The bridge opens two clients against the same broker: one for the command
// dispatcher (client/con_ip, read/data) and one owned by the event exporter
// (vera/events/...). Every client gets a unique client ID so the broker never
// kicks one off when the other connects.
//
// # Usage
//
//	client, err := mqtt.Connect(cfg.MQTT, "dispatch")
//	if err != nil {
//	    log.Fatal(err)
//	}
//	defer client.Close()
//
//	err = client.Subscribe(mqtt.Topics{}.SinkIP(), 1,
//	    func(topic string, payload []byte) error {
//	        log.Printf("sink moved: %s", payload)
//	        return nil
//	    })
//
//	topic := mqtt.Topics{}.DeviceEvent("Nappali", "Lámpa")
//	client.Publish(topic, payload, 0, false)
package mqtt
