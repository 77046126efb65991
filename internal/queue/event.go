// Package queue carries post-commit work over RabbitMQ: guest notifications
// and guest summary refreshes.  Messages are JSON bodies on durable queues.
package queue

import "time"

// Default queue names.  Both are declared durable by publisher and consumer.
const (
	NotificationQueue   = "notification.requested"
	SummaryRefreshQueue = "guest.summary.refresh"
)

// NotificationRequested is published once the variables of a template have
// been built.  Rendering and delivery happen downstream.
type NotificationRequested struct {
	TemplateCode      string         `json:"template_code"`
	RecipientType     string         `json:"recipient_type"`
	RecipientID       uint64         `json:"recipient_id"`
	Variables         map[string]any `json:"variables"`
	RelatedEntityType string         `json:"related_entity_type"`
	RelatedEntityID   uint64         `json:"related_entity_id"`
	ActorID           uint64         `json:"actor_id"`
	HotelID           uint64         `json:"hotel_id"`
	RequestedAt       time.Time      `json:"requested_at"`
}

// SummaryRefreshRequested asks the consumer to recompute the statistics of
// the guest owning ReservationID.
type SummaryRefreshRequested struct {
	ReservationID uint64    `json:"reservation_id"`
	RequestedAt   time.Time `json:"requested_at"`
}
