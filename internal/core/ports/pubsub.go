package ports

const (
	TopicReservationCreated  = "reservation_created"
	TopicReservationReleased = "reservation_released"
	TopicReservationExpired  = "reservation_expired"
	TopicSwapSettled         = "swap_settled"
	TopicSwapAborted         = "swap_aborted"
	TopicIndexReconciled     = "index_reconciled"
)

// Event is a message published on some topic.
type Event struct {
	Topic   string      `json:"topic"`
	Payload interface{} `json:"payload"`
}

// EventPublisher delivers events to whoever is listening. Publish must not
// block the caller.
type EventPublisher interface {
	Publish(topic string, payload interface{})
}
