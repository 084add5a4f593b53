// Package notifications publishes generation events to an MQTT broker.
//
// Events are JSON documents sent with QoS 0 to "<mqtt_topic>/<kind>". When no
// broker is configured a no-op Service is returned, so callers never need to
// check whether notifications are enabled.
package notifications
