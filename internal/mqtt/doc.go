// Package mqtt bridges the kiosk hardware to Home Assistant over MQTT.
//
// The [Publisher] owns the broker connection and a single event loop.
// On every (re-)connect it publishes retained discovery configs for each
// entity the host supports, a birth message ("online") to the
// availability topic, subscribes to the entity command topics and then
// publishes the full current state. After that, state is pushed when
// the hardware poller reports a change and on three fixed cadences.
//
// Inbound command payloads are parsed into closed [Command] variants at
// the topic boundary; anything outside a topic's contract is rejected
// and logged, and the message is considered consumed.
//
// Connection management uses Eclipse Paho v2's [autopaho] package with
// automatic reconnection. A will message moves the availability topic
// to "offline" on unexpected disconnects. While offline, state
// publishes are skipped rather than queued.
package mqtt
