package services

import "time"

// Event is a change notification pushed to connected clients.
type Event struct {
	Type     string    `json:"type"`
	Scope    string    `json:"scope"`
	EntityID string    `json:"entity_id,omitempty"`
	At       time.Time `json:"at"`
}

// Event types emitted by the services.
const (
	EventTransactionCreated = "transaction.created"
	EventTransactionUpdated = "transaction.updated"
	EventTransactionDeleted = "transaction.deleted"
	EventBatchCommitted     = "transactions.batch_committed"
	EventInsightsGenerated  = "insights.generated"
)

// Notifier fans events out to subscribers. The websocket hub implements it;
// NopNotifier stands in where no hub is wired (tests, CLI tools).
type Notifier interface {
	Publish(event Event)
}

// NopNotifier discards all events.
type NopNotifier struct{}

func (NopNotifier) Publish(Event) {}
