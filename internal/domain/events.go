package domain

// EventKind distinguishes the lifecycle transitions the alert manager emits.
// This replaces a callback-list design: consumers (the broker) read from a
// channel of ManagerEvent rather than registering callbacks the manager
// would need to invoke synchronously under its own lock.
type EventKind string

const (
	EventAdded   EventKind = "added"
	EventUpdated EventKind = "updated"
	EventRemoved EventKind = "removed"
)

// ManagerEvent is one alert-manager state transition, ordered causally per
// ProductID: added always precedes updated/removed for the same product,
// and nothing follows removed for that product until a new added.
type ManagerEvent struct {
	Kind      EventKind
	Alert     Alert
	Reason    string // populated for EventRemoved: "expired" | "cancelled" | "manual"
}
