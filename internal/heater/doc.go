// Package heater coordinates the heater control box: a single-flight
// command queue over the BLE transport and a polling coordinator that
// reconciles user intent against device state.
//
// # Command Queue
//
// All outbound frames pass through one Queue worker: FIFO, one command
// in flight, a mandatory pacing delay after every item. The wire
// protocol has no correlation tokens, so a command's response is simply
// the next notification; the coordinator classifies decoded frames to
// survive mis-attributed echoes.
//
// # Polling Coordinator
//
// The Coordinator owns the link and the queue. A periodic tick fetches
// status and publishes a Snapshot; user commands share the same mutex as
// the tick, so no two protocol operations ever overlap. Poll failures
// are recovered locally (disconnect to reset, republish the last-known
// snapshot tagged with the error); command failures surface to the
// caller after the same cleanup.
//
// The user's desire to be connected is tracked separately from the
// actual transport state, and every tick reconciles the two. Range
// checks on temperature, level, fan speed and mode happen before any
// I/O.
package heater
