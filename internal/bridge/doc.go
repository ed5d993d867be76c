// Package bridge exposes the heater coordinator to home automation over
// HTTP and WebSocket.
//
// GET /status returns the latest snapshot without touching the device;
// the coordinator's background poll keeps it fresh. POST /power,
// /temperature, /level, /fan and /mode forward commands and answer with
// the refreshed snapshot. GET /ws upgrades to a WebSocket that streams
// every published snapshot as a JSON message, starting with the current
// one.
//
// Range violations come back as 400; device-side failures as 502 with a
// truncated error message. The bridge holds no state of its own and can
// be restarted freely.
package bridge
