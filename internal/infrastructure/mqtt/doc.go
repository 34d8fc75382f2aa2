// Package mqtt provides Runbeat's MQTT transport layer.
//
// It wraps paho.mqtt.golang with connection lifecycle management,
// tracked subscriptions that survive reconnects, Last Will and Testament
// for offline detection, and a typed topic grammar (see Topics).
//
// Runbeat uses MQTT for two flows: inbound registry rename notifications
// on runbeat/registry/rename, and an outbound retained state mirror on
// runbeat/sensor/{display_id}/state so external dashboards can observe
// sensor state without polling the REST API.
package mqtt
