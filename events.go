package cablelink

import "encoding/json"

// eventKind tags entries on the per-stream conduit. Lifecycle transitions
// and channel traffic share one ordered channel so the coordinator handles
// them sequentially, in arrival order.
type eventKind int

const (
	eventConnected eventKind = iota
	eventCannotConnect
	eventConnectionLost
	eventSubscribed
	eventRejected
	eventMessage
)

func (k eventKind) String() string {
	switch k {
	case eventConnected:
		return "connected"
	case eventCannotConnect:
		return "cannot_connect"
	case eventConnectionLost:
		return "connection_lost"
	case eventSubscribed:
		return "subscribed"
	case eventRejected:
		return "rejected"
	case eventMessage:
		return "message"
	}
	return "unknown"
}

// event is one entry on the conduit.
type event struct {
	kind    eventKind
	err     error           // cause, for cannot_connect / connection_lost
	payload json.RawMessage // broadcast payload, for message
}
