package service

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	amqp "github.com/rabbitmq/amqp091-go"
	"go.uber.org/zap"

	"github.com/driveshare/rental-booking/internal/queue"
	"github.com/driveshare/rental-booking/internal/workflow"
)

// Publisher sends workflow events to RabbitMQ. Every publish dials its
// own connection, declares the durable queue and marks the message
// persistent. Failures are logged and returned; the workflow never fails
// a transition because of them.
type Publisher struct {
	URL string
	Log *zap.Logger
}

func NewPublisher(url string, log *zap.Logger) *Publisher {
	if log == nil {
		log = zap.NewNop()
	}
	return &Publisher{URL: url, Log: log}
}

// Notify implements workflow.Notifier.
func (p *Publisher) Notify(ctx context.Context, ev workflow.Event) error {
	name, payload, err := Payload(ev)
	if err != nil {
		return err
	}
	return p.publish(ctx, name, payload)
}

// Payload maps a workflow event onto its queue and message body.
func Payload(ev workflow.Event) (string, any, error) {
	at := ev.At.UTC().Format(time.RFC3339)
	switch ev.Kind {
	case workflow.EventBookingCreated:
		return queue.BookingCreatedQueue, queue.BookingCreatedEvent{
			BookingID:      ev.BookingID,
			DraftID:        ev.DraftID,
			UserID:         ev.UserID,
			VehicleID:      ev.Draft.VehicleID,
			VehicleName:    ev.Draft.VehicleName,
			PickupLocation: ev.Draft.PickupLocation,
			PickupDate:     ev.Draft.PickupDate,
			ReturnDate:     ev.Draft.ReturnDate,
			RentalDays:     ev.Draft.RentalDays(),
			TotalPrice:     ev.Draft.TotalPrice(),
			CreatedAt:      at,
		}, nil
	case workflow.EventCheckinCompleted:
		return queue.CheckinCompletedQueue, queue.CheckinCompletedEvent{
			BookingID:   ev.BookingID,
			UserID:      ev.UserID,
			FuelLevel:   ev.Draft.CheckinFuelLevel,
			Mileage:     ev.Draft.CheckinMileage,
			PhotoCount:  len(ev.Draft.CheckinPhotos),
			CompletedAt: at,
		}, nil
	}
	return "", nil, fmt.Errorf("unknown event kind %q", ev.Kind)
}

// DialTimeout bounds the broker connect when ctx carries no earlier
// deadline. amqp.Dial alone ignores ctx.
const DialTimeout = 5 * time.Second

func dialTimeout(ctx context.Context) time.Duration {
	d := DialTimeout
	if dl, ok := ctx.Deadline(); ok {
		if left := time.Until(dl); left < d {
			d = left
		}
	}
	return d
}

func (p *Publisher) publish(ctx context.Context, name string, payload any) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	conn, err := amqp.DialConfig(p.URL, amqp.Config{
		Heartbeat: 10 * time.Second,
		Locale:    "en_US",
		Dial:      amqp.DefaultDial(dialTimeout(ctx)),
	})
	if err != nil {
		p.Log.Warn("rabbitmq: dial failed", zap.Error(err))
		return err
	}
	defer func() { _ = conn.Close() }()

	ch, err := conn.Channel()
	if err != nil {
		p.Log.Warn("rabbitmq: channel open failed", zap.Error(err))
		return err
	}
	defer func() { _ = ch.Close() }()

	if _, err := ch.QueueDeclare(name, true, false, false, false, nil); err != nil {
		p.Log.Warn("rabbitmq: queue declare failed", zap.String("queue", name), zap.Error(err))
		return err
	}

	body, err := json.Marshal(payload)
	if err != nil {
		return err
	}
	pub := amqp.Publishing{
		ContentType:  "application/json",
		DeliveryMode: amqp.Persistent,
		Timestamp:    time.Now().UTC(),
		Body:         body,
	}
	// default exchange, routing key = queue name
	if err := ch.PublishWithContext(ctx, "", name, false, false, pub); err != nil {
		p.Log.Warn("rabbitmq: publish failed", zap.String("queue", name), zap.Error(err))
		return err
	}
	return nil
}

// NopNotifier drops every event. It is used when EVENTS_ENABLED=false.
type NopNotifier struct{}

func (NopNotifier) Notify(context.Context, workflow.Event) error { return nil }
