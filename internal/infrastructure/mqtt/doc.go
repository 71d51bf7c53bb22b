// Package mqtt provides MQTT client connectivity for ddcwatch.
//
// This package manages:
//   - Connection to the broker with auto-reconnect
//   - Message publishing with QoS guarantees
//   - Topic subscriptions with wildcard support
//   - Last Will and Testament (LWT) for offline detection
//   - Connection health monitoring
//
// # Architecture
//
// ddcwatch publishes display hotplug events and retained per-connector
// state so that other services (brightness controllers, desktop
// integrations, dashboards) can react to monitor changes without
// touching the I2C buses themselves.
//
//	ddcwatchd → MQTT Broker → consumers
//
// The daemon also listens on ddcwatch/command/rescan to let consumers
// request an immediate bus rescan.
//
// # Security Considerations
//
//   - TLS is required for production deployments (cfg.Broker.TLS=true)
//   - Credentials are validated against broker ACL
//   - Anonymous access is only for local development
//   - Message payloads are not encrypted beyond TLS transport
//
// # Usage
//
//	client, err := mqtt.Connect(cfg.MQTT)
//	if err != nil {
//	    log.Fatal(err)
//	}
//	defer client.Close()
//
//	// Subscribe to all display status events
//	err = client.Subscribe(mqtt.Topics{}.AllEvents(), 1,
//	    func(topic string, payload []byte) error {
//	        log.Printf("Received: %s = %s", topic, payload)
//	        return nil
//	    })
//
//	// Publish retained display state
//	topic := mqtt.Topics{}.DisplayState("card0-DP-1")
//	client.PublishRetained(topic, []byte(`{"connected":true}`))
package mqtt
