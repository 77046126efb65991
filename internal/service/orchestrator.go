package service

import (
	"context"
	"sync"

	"github.com/google/uuid"
	"github.com/labstack/echo/v4"
	"github.com/labstack/gommon/log"
)

// Effect is a side effect an operation requests while it runs.  Effects are
// plain data; nothing executes them until the unit of work has committed.
type Effect interface {
	EffectID() uuid.UUID
}

// NotificationEffect asks the notification boundary to render a template
// for one recipient.
type NotificationEffect struct {
	ID                uuid.UUID
	TemplateCode      string
	RecipientType     string
	RecipientID       uint64
	Context           map[string]any
	RelatedEntityType string
	RelatedEntityID   uint64
	ActorID           uint64
	HotelID           uint64
}

// GuestSummaryEffect asks for the guest statistics behind a reservation to
// be recomputed.
type GuestSummaryEffect struct {
	ID            uuid.UUID
	ReservationID uint64
}

// FolioCreationEffect asks for the folios of a freshly confirmed
// reservation to be opened and its room charges posted.
type FolioCreationEffect struct {
	ID            uuid.UUID
	ReservationID uint64
	ActorID       uint64
}

func (e NotificationEffect) EffectID() uuid.UUID  { return e.ID }
func (e GuestSummaryEffect) EffectID() uuid.UUID  { return e.ID }
func (e FolioCreationEffect) EffectID() uuid.UUID { return e.ID }

// Effects collects the post-commit work of one operation.
type Effects struct {
	list []Effect
}

func (fx *Effects) Notify(n NotificationEffect) {
	n.ID = uuid.New()
	fx.list = append(fx.list, n)
}

// RefreshGuestSummary is deduplicated per reservation.
func (fx *Effects) RefreshGuestSummary(reservationID uint64) {
	for _, e := range fx.list {
		if g, ok := e.(GuestSummaryEffect); ok && g.ReservationID == reservationID {
			return
		}
	}
	fx.list = append(fx.list, GuestSummaryEffect{ID: uuid.New(), ReservationID: reservationID})
}

func (fx *Effects) CreateFolios(reservationID, actorID uint64) {
	fx.list = append(fx.list, FolioCreationEffect{ID: uuid.New(), ReservationID: reservationID, ActorID: actorID})
}

// List returns the collected effects in the order they were requested.
func (fx *Effects) List() []Effect {
	out := make([]Effect, len(fx.list))
	copy(out, fx.list)
	return out
}

// Dispatcher executes effects outside of any transaction.
type Dispatcher interface {
	Dispatch(ctx context.Context, effects []Effect)
}

// Orchestrator wraps an operation in a unit of work and hands the effects
// it collected to the dispatcher once, after a successful commit.
type Orchestrator struct {
	uow        UnitOfWork
	dispatcher Dispatcher
}

func NewOrchestrator(uow UnitOfWork, dispatcher Dispatcher) *Orchestrator {
	return &Orchestrator{uow: uow, dispatcher: dispatcher}
}

// Execute runs fn atomically.  A failed unit dispatches nothing.
func (o *Orchestrator) Execute(ctx context.Context, fn func(ctx context.Context, tx Tx, fx *Effects) error) error {
	var fx *Effects
	err := o.uow.Do(ctx, func(ctx context.Context, tx Tx) error {
		// Reset on every attempt so a retried unit does not carry effects
		// of the attempt that rolled back.
		fx = &Effects{}
		return fn(ctx, tx, fx)
	})
	if err != nil {
		return err
	}
	if o.dispatcher != nil && fx != nil && len(fx.list) > 0 {
		o.dispatcher.Dispatch(ctx, fx.List())
	}
	return nil
}

// FolioCreator opens folios for a confirmed reservation.
type FolioCreator interface {
	EnsureFolios(ctx context.Context, reservationID, actorID uint64) error
}

// AsyncDispatcher runs effects on a background goroutine detached from the
// request context.  Failures are logged and dropped.
type AsyncDispatcher struct {
	notifier  NotificationDispatcher
	summaries GuestSummaryRecomputer
	folios    FolioCreator
	logger    echo.Logger
	wg        sync.WaitGroup
}

func NewAsyncDispatcher(notifier NotificationDispatcher, summaries GuestSummaryRecomputer, logger echo.Logger) *AsyncDispatcher {
	return &AsyncDispatcher{notifier: notifier, summaries: summaries, logger: logger}
}

// UseFolioCreator sets the handler for FolioCreationEffect.  The reservation
// service is both the producer and the consumer of that effect, so it is
// attached after construction.
func (d *AsyncDispatcher) UseFolioCreator(fc FolioCreator) {
	d.folios = fc
}

func (d *AsyncDispatcher) Dispatch(ctx context.Context, effects []Effect) {
	if len(effects) == 0 {
		return
	}
	d.wg.Add(1)
	go func(ctx context.Context) {
		defer d.wg.Done()
		for _, e := range effects {
			d.run(ctx, e)
		}
	}(context.WithoutCancel(ctx))
}

// Wait blocks until every dispatched batch has finished.
func (d *AsyncDispatcher) Wait() {
	d.wg.Wait()
}

func (d *AsyncDispatcher) run(ctx context.Context, e Effect) {
	defer func() {
		if r := recover(); r != nil {
			d.logger.Errorj(log.JSON{"event": "effect_panic", "effect_id": e.EffectID().String(), "panic": r})
		}
	}()

	var err error
	kind := "unknown"
	switch v := e.(type) {
	case NotificationEffect:
		kind = "notification"
		err = d.notify(ctx, v)
	case GuestSummaryEffect:
		kind = "guest_summary"
		if d.summaries != nil {
			err = d.summaries.RecomputeFromReservation(ctx, v.ReservationID)
		}
	case FolioCreationEffect:
		kind = "folio_creation"
		if d.folios != nil {
			err = d.folios.EnsureFolios(ctx, v.ReservationID, v.ActorID)
		}
	}
	if err != nil {
		d.logger.Errorj(log.JSON{
			"event":     "effect_failed",
			"kind":      kind,
			"effect_id": e.EffectID().String(),
			"error":     err.Error(),
		})
	}
}

func (d *AsyncDispatcher) notify(ctx context.Context, n NotificationEffect) error {
	if d.notifier == nil {
		return nil
	}
	vars, err := d.notifier.BuildVariables(ctx, n.TemplateCode, n.Context)
	if err != nil {
		return err
	}
	return d.notifier.SendWithTemplate(ctx, NotificationRequest{
		TemplateCode:      n.TemplateCode,
		RecipientType:     n.RecipientType,
		RecipientID:       n.RecipientID,
		Variables:         vars,
		RelatedEntityType: n.RelatedEntityType,
		RelatedEntityID:   n.RelatedEntityID,
		ActorID:           n.ActorID,
		HotelID:           n.HotelID,
	})
}
