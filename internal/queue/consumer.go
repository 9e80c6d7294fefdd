package queue

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	amqp "github.com/rabbitmq/amqp091-go"
	"go.uber.org/zap"
)

// Consumer listens on both booking queues and appends one line per event
// to <LogDir>/booking.log.
type Consumer struct {
	URL    string
	LogDir string
	Log    *zap.Logger
}

// Run dials the broker and consumes until ctx is cancelled. Broken
// connections are re-dialled with exponential backoff capped at 30s.
func (c Consumer) Run(ctx context.Context) error {
	lg := c.Log
	if lg == nil {
		lg = zap.NewNop()
	}
	backoff := time.Second
	for {
		conn, err := amqp.Dial(c.URL)
		if err != nil {
			lg.Warn("booking consumer: dial failed", zap.Error(err), zap.Duration("retry_in", backoff))
			if !sleep(ctx, backoff) {
				return ctx.Err()
			}
			if backoff < 30*time.Second {
				backoff *= 2
			}
			continue
		}
		backoff = time.Second

		err = c.consume(ctx, conn, lg)
		_ = conn.Close()
		if ctx.Err() != nil {
			return ctx.Err()
		}
		lg.Warn("booking consumer: reconnecting", zap.Error(err))
		if !sleep(ctx, 2*time.Second) {
			return ctx.Err()
		}
	}
}

func (c Consumer) consume(ctx context.Context, conn *amqp.Connection, lg *zap.Logger) error {
	ch, err := conn.Channel()
	if err != nil {
		return fmt.Errorf("channel open: %w", err)
	}
	defer func() { _ = ch.Close() }()

	if err := ch.Qos(50, 0, false); err != nil {
		lg.Warn("booking consumer: set QoS failed", zap.Error(err))
	}

	created, err := subscribe(ch, BookingCreatedQueue)
	if err != nil {
		return err
	}
	checkins, err := subscribe(ch, CheckinCompletedQueue)
	if err != nil {
		return err
	}

	for {
		var d amqp.Delivery
		var ok bool
		select {
		case <-ctx.Done():
			return ctx.Err()
		case d, ok = <-created:
		case d, ok = <-checkins:
		}
		if !ok {
			return errors.New("deliveries channel closed")
		}
		line, err := FormatLine(d.RoutingKey, d.Body)
		if err == nil {
			err = c.appendLine(line)
		}
		if err != nil {
			lg.Error("booking consumer: handle message failed", zap.String("queue", d.RoutingKey), zap.Error(err))
			_ = d.Nack(false, false) // no requeue, avoids a poison loop
			continue
		}
		lg.Info("booking event recorded", zap.String("queue", d.RoutingKey))
		_ = d.Ack(false)
	}
}

func subscribe(ch *amqp.Channel, queue string) (<-chan amqp.Delivery, error) {
	if _, err := ch.QueueDeclare(queue, true, false, false, false, nil); err != nil {
		return nil, fmt.Errorf("queue declare %s: %w", queue, err)
	}
	msgs, err := ch.Consume(queue, "", false, false, false, false, nil)
	if err != nil {
		return nil, fmt.Errorf("queue consume %s: %w", queue, err)
	}
	return msgs, nil
}

// FormatLine decodes a message body published to queue and renders the
// single log line written for it.
func FormatLine(queue string, body []byte) (string, error) {
	switch queue {
	case BookingCreatedQueue:
		var ev BookingCreatedEvent
		if err := json.Unmarshal(body, &ev); err != nil {
			return "", fmt.Errorf("unmarshal: %w", err)
		}
		return fmt.Sprintf("[%s] Booking created | booking_id=%s | draft_id=%s | user_id=%d | vehicle=%q | location=%q | dates=%s..%s | days=%d | total=%.2f\n",
			ev.CreatedAt, ev.BookingID, ev.DraftID, ev.UserID, ev.VehicleName, ev.PickupLocation,
			ev.PickupDate, ev.ReturnDate, ev.RentalDays, ev.TotalPrice), nil
	case CheckinCompletedQueue:
		var ev CheckinCompletedEvent
		if err := json.Unmarshal(body, &ev); err != nil {
			return "", fmt.Errorf("unmarshal: %w", err)
		}
		return fmt.Sprintf("[%s] Check-in completed | booking_id=%s | user_id=%d | fuel=%d%% | mileage=%d | photos=%d\n",
			ev.CompletedAt, ev.BookingID, ev.UserID, ev.FuelLevel, ev.Mileage, ev.PhotoCount), nil
	}
	return "", fmt.Errorf("unknown queue %q", queue)
}

func (c Consumer) appendLine(line string) error {
	dir := c.LogDir
	if dir == "" {
		dir = "logs"
	}
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return fmt.Errorf("mkdir logs: %w", err)
	}
	f, err := os.OpenFile(filepath.Join(dir, "booking.log"), os.O_CREATE|os.O_APPEND|os.O_WRONLY, 0o644)
	if err != nil {
		return fmt.Errorf("open log file: %w", err)
	}
	defer f.Close()
	if _, err := f.WriteString(line); err != nil {
		return fmt.Errorf("write log: %w", err)
	}
	return nil
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
