// Package transport owns the BLE session to one heater control box.
//
// A Session covers the full connection lifecycle: bounded peer discovery,
// connect with exponential backoff for transient failures, GATT profile
// probing across the layouts known to exist in the field, notification
// subscription into a bounded channel, and best-effort teardown. The
// session is the exclusive owner of the connection handle; nothing else
// writes to or closes it.
//
// The BLE stack reports link drops asynchronously, possibly mid-command.
// The session reacts by flipping to Disconnected and closing the
// notification channel, which is how a waiting caller learns that no
// response is coming.
//
// Sessions do not serialize their callers. The command queue above this
// package guarantees a single in-flight protocol operation; the session
// only locks its own state fields.
package transport
