package round

import "time"

// Event types pushed to room subscribers.
const (
	EventRoundCreated      = "round_created"
	EventBetAccepted       = "bet_accepted"
	EventPotUpdate         = "pot_update"
	EventPhaseChanged      = "phase_changed"
	EventClientSeedUpdated = "client_seed_updated"
	EventRoundResolved     = "round_resolved"
	EventRoundError        = "round_error"
)

// Event is one room-scoped notification.
type Event struct {
	Type   string      `json:"type"`
	RoomID string      `json:"roomId"`
	Data   interface{} `json:"data,omitempty"`
	At     time.Time   `json:"at"`
}

// Notifier fans events out to whoever is watching a room. Publish must not
// block; the engines call it while holding their round lock.
type Notifier interface {
	Publish(ev Event)
}

// NopNotifier discards events.
type NopNotifier struct{}

func (NopNotifier) Publish(Event) {}
