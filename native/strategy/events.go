package strategy

import (
	"strconv"

	"omnivault/core/types"
)

const (
	EventTypeRebalanceEvaluated = "strategy.rebalance_evaluated"
)

type strategyEvent struct {
	evt *types.Event
}

func (e strategyEvent) EventType() string {
	if e.evt == nil {
		return ""
	}
	return e.evt.Type
}

func (e strategyEvent) Event() *types.Event { return e.evt }

// NewRebalanceEvaluatedEvent returns the event payload describing an
// allocation plan produced by Evaluate.
func NewRebalanceEvaluatedEvent(plan AllocationPlan) *types.Event {
	return &types.Event{Type: EventTypeRebalanceEvaluated, Attributes: map[string]string{
		"destination": plan.Destination,
		"expectedApy": strconv.FormatUint(uint64(plan.ExpectedAPYBps), 10),
		"confidence":  strconv.FormatUint(uint64(plan.Confidence), 10),
	}}
}
