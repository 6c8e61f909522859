package repository

// MessageBus publishes transaction events to downstream consumers.
type MessageBus interface {
	Publish(topic string, data []byte) error
}

// TopicTransactionCreated carries model.TransactionEvent payloads.
const TopicTransactionCreated = "transactions.created"
