package bus

import (
	"time"

	"github.com/google/uuid"
)

// Event is the payload published on every topic. Optional ids are omitted when unrelated.
type Event struct {
	TenantID       uuid.UUID      `json:"tenant_id"`
	SubscriptionID *uuid.UUID     `json:"subscription_id,omitempty"`
	InvoiceID      *uuid.UUID     `json:"invoice_id,omitempty"`
	PaymentID      *uuid.UUID     `json:"payment_id,omitempty"`
	Status         string         `json:"status,omitempty"`
	Amount         string         `json:"amount,omitempty"`
	Currency       string         `json:"currency,omitempty"`
	Details        map[string]any `json:"details,omitempty"`
	OccurredAt     time.Time      `json:"occurred_at"`
}

// Message pairs a topic with its event so services can collect them inside a transaction
// and publish after commit.
type Message struct {
	Topic Topic
	Event Event
}

// PublishAll sends messages in order and returns the first error while still attempting the rest.
func PublishAll(p Publisher, messages []Message) error {
	var first error
	for _, m := range messages {
		if err := p.Publish(m.Topic, m.Event); err != nil && first == nil {
			first = err
		}
	}

	return first
}
