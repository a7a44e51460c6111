// Package actioncable implements a client for the Rails Action Cable
// websocket protocol.
//
// The client:
//   - Dials the cable endpoint and completes the welcome handshake
//   - Sends subscribe/unsubscribe/message commands for channel identifiers
//   - Delivers server frames over a channel (pings are consumed internally)
//   - Monitors server pings and reports stale connections
package actioncable
