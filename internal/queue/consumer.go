package queue

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"time"

	"github.com/labstack/echo/v4"
	amqp "github.com/rabbitmq/amqp091-go"

	"github.com/iliyamo/hotel-pms-core/internal/repository"
)

// HandlerFunc processes one message body.  A returned error rejects the
// message without requeueing it.
type HandlerFunc func(ctx context.Context, body []byte) error

// Consume connects to the broker, declares queue and feeds each delivery to
// handle.  It reconnects with exponential backoff until ctx is cancelled.
func Consume(ctx context.Context, url, queue string, logger echo.Logger, handle HandlerFunc) error {
	backoff := time.Second
	for {
		if ctx.Err() != nil {
			return ctx.Err()
		}
		conn, err := amqp.Dial(url)
		if err != nil {
			logger.Warnf("%s consumer: dial failed: %v; retrying in %s", queue, err, backoff)
			if !sleep(ctx, backoff) {
				return ctx.Err()
			}
			if backoff < 30*time.Second {
				backoff *= 2
			}
			continue
		}
		backoff = time.Second

		err = consumeLoop(ctx, conn, queue, logger, handle)
		_ = conn.Close()
		if ctx.Err() != nil {
			return ctx.Err()
		}
		logger.Warnf("%s consumer: loop ended: %v; reconnecting", queue, err)
		if !sleep(ctx, 2*time.Second) {
			return ctx.Err()
		}
	}
}

func sleep(ctx context.Context, d time.Duration) bool {
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return false
	case <-t.C:
		return true
	}
}

func consumeLoop(ctx context.Context, conn *amqp.Connection, queue string, logger echo.Logger, handle HandlerFunc) error {
	ch, err := conn.Channel()
	if err != nil {
		return fmt.Errorf("channel open: %w", err)
	}
	defer func() { _ = ch.Close() }()

	if err := ch.Qos(50, 0, false); err != nil {
		logger.Warnf("%s consumer: set QoS failed: %v", queue, err)
	}
	if _, err := ch.QueueDeclare(queue, true, false, false, false, nil); err != nil {
		return fmt.Errorf("queue declare: %w", err)
	}
	msgs, err := ch.Consume(queue, "", false, false, false, false, nil)
	if err != nil {
		return fmt.Errorf("queue consume: %w", err)
	}

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case d, ok := <-msgs:
			if !ok {
				return errors.New("deliveries channel closed")
			}
			if err := handle(ctx, d.Body); err != nil {
				logger.Errorf("%s consumer: message %s failed: %v", queue, d.MessageId, err)
				_ = d.Nack(false, false)
				continue
			}
			_ = d.Ack(false)
		}
	}
}

// GuestFinder resolves the guest a notification is addressed to.
type GuestFinder interface {
	FindByID(ctx context.Context, id uint64) (*repository.Guest, error)
}

// NotificationLogHandler appends one line per notification request to the
// file at path.  Guest recipients are resolved to a name when guests is set.
func NotificationLogHandler(path string, guests GuestFinder) HandlerFunc {
	return func(ctx context.Context, body []byte) error {
		if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
			return fmt.Errorf("mkdir logs: %w", err)
		}
		f, err := os.OpenFile(path, os.O_CREATE|os.O_APPEND|os.O_WRONLY, 0o644)
		if err != nil {
			return fmt.Errorf("open log file: %w", err)
		}
		defer f.Close()
		return writeNotification(ctx, f, body, guests)
	}
}

func writeNotification(ctx context.Context, w io.Writer, body []byte, guests GuestFinder) error {
	var ev NotificationRequested
	if err := json.Unmarshal(body, &ev); err != nil {
		return fmt.Errorf("unmarshal: %w", err)
	}
	recipient := fmt.Sprintf("%s:%d", ev.RecipientType, ev.RecipientID)
	if ev.RecipientType == "guest" && guests != nil {
		if g, err := guests.FindByID(ctx, ev.RecipientID); err == nil {
			recipient = fmt.Sprintf("%s (%s)", recipient, g.FullName())
		}
	}

	keys := make([]string, 0, len(ev.Variables))
	for k := range ev.Variables {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	vars := make([]string, len(keys))
	for i, k := range keys {
		vars[i] = fmt.Sprintf("%s=%v", k, ev.Variables[k])
	}

	line := fmt.Sprintf("[%s] Notification %s | to=%s | %s=%d | hotel_id=%d | actor_id=%d | vars={%s}\n",
		ev.RequestedAt.Format(time.RFC3339), ev.TemplateCode, recipient,
		ev.RelatedEntityType, ev.RelatedEntityID, ev.HotelID, ev.ActorID, strings.Join(vars, ", "))
	if _, err := io.WriteString(w, line); err != nil {
		return fmt.Errorf("write log: %w", err)
	}
	return nil
}

// SummaryRecomputer is the repository side of a summary refresh.
type SummaryRecomputer interface {
	RecomputeFromReservation(ctx context.Context, reservationID uint64) error
}

// SummaryRefreshHandler recomputes the guest summary named by each message.
func SummaryRefreshHandler(summaries SummaryRecomputer) HandlerFunc {
	return func(ctx context.Context, body []byte) error {
		var ev SummaryRefreshRequested
		if err := json.Unmarshal(body, &ev); err != nil {
			return fmt.Errorf("unmarshal: %w", err)
		}
		if ev.ReservationID == 0 {
			return errors.New("summary refresh without reservation id")
		}
		return summaries.RecomputeFromReservation(ctx, ev.ReservationID)
	}
}
