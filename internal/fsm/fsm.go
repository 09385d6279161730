package fsm

import "danceBack/internal/models"

// Machine is a table of allowed status transitions.
type Machine struct {
	name        string
	transitions map[string]map[string]struct{}
}

// Orders drives one-time purchases: created -> pending -> succeeded|failed.
var Orders = Machine{
	name: "order",
	transitions: map[string]map[string]struct{}{
		models.OrderStatusCreated:   {models.OrderStatusPending: {}},
		models.OrderStatusPending:   {models.OrderStatusSucceeded: {}, models.OrderStatusFailed: {}},
		models.OrderStatusSucceeded: {},
		models.OrderStatusFailed:    {},
	},
}

// Subscriptions drives recurring billing records. cancel_at_period_end is
// tracked separately and never appears here.
var Subscriptions = Machine{
	name: "subscription",
	transitions: map[string]map[string]struct{}{
		models.SubscriptionStatusPending: {
			models.SubscriptionStatusTrialing:  {},
			models.SubscriptionStatusActive:    {},
			models.SubscriptionStatusCancelled: {},
		},
		models.SubscriptionStatusTrialing: {
			models.SubscriptionStatusActive:    {},
			models.SubscriptionStatusCancelled: {},
		},
		models.SubscriptionStatusActive: {
			models.SubscriptionStatusCancelled: {},
		},
		models.SubscriptionStatusCancelled: {},
	},
}

func (m Machine) Name() string { return m.name }

// Known reports whether status belongs to the machine.
func (m Machine) Known(status string) bool {
	_, ok := m.transitions[status]
	return ok
}

// CanTransition returns whether a record can move from the current status to the target status.
func (m Machine) CanTransition(from, to string) bool {
	if from == to {
		return m.Known(from)
	}
	allowed, ok := m.transitions[from]
	if !ok {
		return false
	}
	_, ok = allowed[to]
	return ok
}

// Terminal reports whether no transition leaves status.
func (m Machine) Terminal(status string) bool {
	allowed, ok := m.transitions[status]
	return ok && len(allowed) == 0
}
