package amqp

import (
	"encoding/json"
	"time"

	"github.com/google/uuid"
)

// ExpenseChangedMessage announces a ledger mutation. It carries only the
// identifiers; the worker recomputes progress from the database, so a stale
// or duplicated message is harmless.
type ExpenseChangedMessage struct {
	UserID    string    `json:"user_id"`
	ExpenseID int64     `json:"expense_id"`
	Op        string    `json:"op"` // created, updated, deleted
	Timestamp time.Time `json:"timestamp"`
}

func NewExpenseChangedMessage(userID string, expenseID int64, op string) *ExpenseChangedMessage {
	return &ExpenseChangedMessage{
		UserID:    userID,
		ExpenseID: expenseID,
		Op:        op,
		Timestamp: time.Now(),
	}
}

// ToJSON converts the message to JSON bytes
func (m *ExpenseChangedMessage) ToJSON() ([]byte, error) {
	return json.Marshal(m)
}

// FromJSON creates a message from JSON bytes
func ExpenseChangedMessageFromJSON(data []byte) (*ExpenseChangedMessage, error) {
	var msg ExpenseChangedMessage
	if err := json.Unmarshal(data, &msg); err != nil {
		return nil, err
	}
	return &msg, nil
}

// ChallengeCompletedMessage announces an enrollment's transition to
// completed. Delivery is at-least-once; consumers de-duplicate on
// EnrollmentID if they must act exactly once.
type ChallengeCompletedMessage struct {
	EnrollmentID  uuid.UUID `json:"enrollment_id"`
	ChallengeID   uuid.UUID `json:"challenge_id"`
	UserID        string    `json:"user_id"`
	Title         string    `json:"title"`
	CurrentAmount int64     `json:"current_amount"`
	TargetAmount  int64     `json:"target_amount"`
	CompletedAt   time.Time `json:"completed_at"`
}

func (m *ChallengeCompletedMessage) ToJSON() ([]byte, error) {
	return json.Marshal(m)
}

func ChallengeCompletedMessageFromJSON(data []byte) (*ChallengeCompletedMessage, error) {
	var msg ChallengeCompletedMessage
	if err := json.Unmarshal(data, &msg); err != nil {
		return nil, err
	}
	return &msg, nil
}
