package amqp

import (
	"encoding/json"
	"errors"
	"time"
)

// RoutingTransactionCreated is the routing key of TransactionEvent.
const RoutingTransactionCreated = "transaction.created"

// TransactionEvent announces a stored transaction. It carries only
// identifiers; consumers read the record from the store.
type TransactionEvent struct {
	ID         string    `json:"id"`
	UserID     string    `json:"user_id"`
	InstanceID string    `json:"instance_id"`
	Timestamp  time.Time `json:"timestamp"`
}

func NewTransactionEvent(id, userID, instanceID string) *TransactionEvent {
	return &TransactionEvent{
		ID:         id,
		UserID:     userID,
		InstanceID: instanceID,
		Timestamp:  time.Now().UTC(),
	}
}

func (m *TransactionEvent) ToJSON() ([]byte, error) {
	return json.Marshal(m)
}

// TransactionEventFromJSON decodes an event; id and user are required.
func TransactionEventFromJSON(data []byte) (*TransactionEvent, error) {
	var msg TransactionEvent
	if err := json.Unmarshal(data, &msg); err != nil {
		return nil, err
	}
	if msg.ID == "" || msg.UserID == "" {
		return nil, errors.New("transaction event without id or user")
	}
	return &msg, nil
}
