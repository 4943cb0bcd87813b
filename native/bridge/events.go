package bridge

import (
	"encoding/hex"
	"strconv"

	"omnivault/core/types"
)

const (
	EventTypeMessageSent    = "bridge.message_sent"
	EventTypeMessageApplied = "bridge.message_applied"
)

type bridgeEvent struct {
	evt *types.Event
}

func (e bridgeEvent) EventType() string {
	if e.evt == nil {
		return ""
	}
	return e.evt.Type
}

func (e bridgeEvent) Event() *types.Event { return e.evt }

// NewMessageSentEvent returns the event payload for a message handed to the
// transport.
func NewMessageSentEvent(id [32]byte, destDomain uint64) *types.Event {
	return &types.Event{Type: EventTypeMessageSent, Attributes: map[string]string{
		"id":         hex.EncodeToString(id[:]),
		"destDomain": strconv.FormatUint(destDomain, 10),
	}}
}

// NewMessageAppliedEvent returns the event payload recorded on the receiving
// side. A duplicate delivery reports applied=false.
func NewMessageAppliedEvent(id [32]byte, applied bool) *types.Event {
	return &types.Event{Type: EventTypeMessageApplied, Attributes: map[string]string{
		"id":      hex.EncodeToString(id[:]),
		"applied": strconv.FormatBool(applied),
	}}
}
