package amqp

import (
	"encoding/json"
	"time"
)

// ExportMessage is the lightweight event published when an expense changes.
// It carries only identifiers; the worker treats it as a wake-up call and
// reads the durable export queue for the authoritative payload.
type ExportMessage struct {
	ExpenseID string    `json:"expense_id"`
	UserID    string    `json:"user_id"`
	Operation string    `json:"operation"`
	Timestamp time.Time `json:"timestamp"`
}

// NewExportMessage creates an export event for the given expense.
func NewExportMessage(expenseID, userID, operation string) *ExportMessage {
	return &ExportMessage{
		ExpenseID: expenseID,
		UserID:    userID,
		Operation: operation,
		Timestamp: time.Now(),
	}
}

// ToJSON converts the message to JSON bytes
func (m *ExportMessage) ToJSON() ([]byte, error) {
	return json.Marshal(m)
}

// ExportMessageFromJSON creates a message from JSON bytes
func ExportMessageFromJSON(data []byte) (*ExportMessage, error) {
	var msg ExportMessage
	if err := json.Unmarshal(data, &msg); err != nil {
		return nil, err
	}
	return &msg, nil
}
