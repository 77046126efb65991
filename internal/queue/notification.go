package queue

import (
	"context"
	"fmt"
	"time"

	"github.com/iliyamo/hotel-pms-core/internal/service"
)

// templateKeys lists the variables each known template needs.
var templateKeys = map[string][]string{
	service.TemplateReservationConfirmed:  {"reservation_id", "arrival_date", "departure_date"},
	service.TemplateReservationCheckedIn:  {"reservation_id"},
	service.TemplateReservationCheckedOut: {"reservation_id"},
	service.TemplateReservationCancelled:  {"reservation_id"},
	service.TemplateReservationNoShow:     {"reservation_id"},
	service.TemplateReservationAmended:    {"reservation_id", "arrival_date", "departure_date"},
}

// NotificationPublisher is the notification boundary of the reservation
// service.  It checks template variables and hands the request to the
// broker; rendering and delivery are downstream.
type NotificationPublisher struct {
	sender Sender
	queue  string
	clock  func() time.Time
}

func NewNotificationPublisher(sender Sender, queue string) *NotificationPublisher {
	if queue == "" {
		queue = NotificationQueue
	}
	return &NotificationPublisher{sender: sender, queue: queue, clock: time.Now}
}

// BuildVariables copies vars and stamps the template code and generation
// time.  Unknown templates and missing variables are errors.
func (n *NotificationPublisher) BuildVariables(ctx context.Context, templateCode string, vars map[string]any) (map[string]any, error) {
	keys, ok := templateKeys[templateCode]
	if !ok {
		return nil, fmt.Errorf("unknown notification template %q", templateCode)
	}
	out := make(map[string]any, len(vars)+2)
	for k, v := range vars {
		out[k] = v
	}
	for _, k := range keys {
		if _, ok := out[k]; !ok {
			return nil, fmt.Errorf("template %s: missing variable %s", templateCode, k)
		}
	}
	out["template"] = templateCode
	out["generated_at"] = n.clock().UTC().Format(time.RFC3339)
	return out, nil
}

func (n *NotificationPublisher) SendWithTemplate(ctx context.Context, req service.NotificationRequest) error {
	return n.sender.Send(ctx, n.queue, NotificationRequested{
		TemplateCode:      req.TemplateCode,
		RecipientType:     req.RecipientType,
		RecipientID:       req.RecipientID,
		Variables:         req.Variables,
		RelatedEntityType: req.RelatedEntityType,
		RelatedEntityID:   req.RelatedEntityID,
		ActorID:           req.ActorID,
		HotelID:           req.HotelID,
		RequestedAt:       n.clock().UTC(),
	})
}

// SummaryRefreshPublisher defers guest summary recomputation to the
// summary consumer.
type SummaryRefreshPublisher struct {
	sender Sender
	queue  string
}

func NewSummaryRefreshPublisher(sender Sender, queue string) *SummaryRefreshPublisher {
	if queue == "" {
		queue = SummaryRefreshQueue
	}
	return &SummaryRefreshPublisher{sender: sender, queue: queue}
}

func (s *SummaryRefreshPublisher) RecomputeFromReservation(ctx context.Context, reservationID uint64) error {
	return s.sender.Send(ctx, s.queue, SummaryRefreshRequested{
		ReservationID: reservationID,
		RequestedAt:   time.Now().UTC(),
	})
}
