package notification

import "time"

// Type tags a notification for the client inbox.
type Type string

const (
	TypeContractApproved Type = "contract_approved"
	TypeContractRejected Type = "contract_rejected"
	TypeGeneral          Type = "general"
	TypeReminder         Type = "reminder"
	TypeAlert            Type = "alert"
)

func (t Type) Valid() bool {
	switch t {
	case TypeContractApproved, TypeContractRejected, TypeGeneral, TypeReminder, TypeAlert:
		return true
	}
	return false
}

// Topic is the outbox topic and broker routing key for the type.
func (t Type) Topic() string {
	return "notification." + string(t)
}

// Intent is what the core emits when a transition affects someone.
type Intent struct {
	UserID     string         `json:"user_id"`
	Type       Type           `json:"type"`
	Title      string         `json:"title"`
	Message    string         `json:"message"`
	ContractID string         `json:"contract_id,omitempty"`
	Data       map[string]any `json:"data,omitempty"`
}

type OutboxStatus string

const (
	OutboxPending   OutboxStatus = "pending"
	OutboxDelivered OutboxStatus = "delivered"
	OutboxDead      OutboxStatus = "dead"
)

// Message is one outbox row awaiting the relay.
type Message struct {
	ID          string
	Topic       string
	Intent      Intent
	Status      OutboxStatus
	Attempts    int
	LastError   string
	CreatedAt   time.Time
	DeliveredAt *time.Time
}

// Notification is a delivered inbox entry.
type Notification struct {
	ID         string
	UserID     string
	Type       Type
	Title      string
	Message    string
	ContractID string
	Data       map[string]any
	IsRead     bool
	ReadAt     *time.Time
	CreatedAt  time.Time
}

// FromMessage materialises an outbox message into an inbox entry. The entry
// reuses the message id so redelivery stays idempotent.
func FromMessage(msg Message, at time.Time) Notification {
	return Notification{
		ID:         msg.ID,
		UserID:     msg.Intent.UserID,
		Type:       msg.Intent.Type,
		Title:      msg.Intent.Title,
		Message:    msg.Intent.Message,
		ContractID: msg.Intent.ContractID,
		Data:       msg.Intent.Data,
		CreatedAt:  at,
	}
}
