package queue

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	amqp "github.com/rabbitmq/amqp091-go"
	"github.com/rs/zerolog"
)

// Notifier delivers a text notification to a chat. The bot's Telegram
// client satisfies it; tests inject a fake.
type Notifier interface {
	Notify(chatID int64, text string) error
}

// Consumer drains the event queues and forwards each event to the admin
// chat. It reconnects with backoff when the broker drops the connection.
type Consumer struct {
	url         string
	adminChatID int64
	notifier    Notifier
	log         zerolog.Logger
}

// NewConsumer builds a consumer that notifies adminChatID about every event.
func NewConsumer(url string, adminChatID int64, n Notifier, log zerolog.Logger) *Consumer {
	return &Consumer{url: url, adminChatID: adminChatID, notifier: n, log: log}
}

// Run consumes both queues until ctx is cancelled. Connection failures are
// retried with capped backoff; the loop never returns an error because the
// broker being down must not take the bot down with it.
func (c *Consumer) Run(ctx context.Context) {
	backoff := time.Second
	for {
		if err := c.consumeOnce(ctx); err != nil {
			c.log.Warn().Err(err).Dur("retry_in", backoff).Msg("amqp consumer disconnected")
		}
		select {
		case <-ctx.Done():
			return
		case <-time.After(backoff):
		}
		backoff *= 2
		if backoff > time.Minute {
			backoff = time.Minute
		}
	}
}

func (c *Consumer) consumeOnce(ctx context.Context) error {
	conn, err := amqp.Dial(c.url)
	if err != nil {
		return fmt.Errorf("amqp dial: %w", err)
	}
	defer func() { _ = conn.Close() }()

	ch, err := conn.Channel()
	if err != nil {
		return fmt.Errorf("amqp channel: %w", err)
	}
	defer func() { _ = ch.Close() }()

	if err := ch.Qos(8, 0, false); err != nil {
		return fmt.Errorf("qos: %w", err)
	}

	bookings, err := c.deliveries(ch, BookingQueue)
	if err != nil {
		return err
	}
	payments, err := c.deliveries(ch, PaymentQueue)
	if err != nil {
		return err
	}

	closed := conn.NotifyClose(make(chan *amqp.Error, 1))
	for {
		select {
		case <-ctx.Done():
			return nil
		case err := <-closed:
			return fmt.Errorf("connection closed: %w", err)
		case d, ok := <-bookings:
			if !ok {
				return fmt.Errorf("booking deliveries channel closed")
			}
			c.handleBooking(d)
		case d, ok := <-payments:
			if !ok {
				return fmt.Errorf("payment deliveries channel closed")
			}
			c.handlePayment(d)
		}
	}
}

func (c *Consumer) deliveries(ch *amqp.Channel, name string) (<-chan amqp.Delivery, error) {
	if _, err := ch.QueueDeclare(name, true, false, false, false, nil); err != nil {
		return nil, fmt.Errorf("queue declare %s: %w", name, err)
	}
	out, err := ch.Consume(name, "", false, false, false, false, nil)
	if err != nil {
		return nil, fmt.Errorf("consume %s: %w", name, err)
	}
	return out, nil
}

func (c *Consumer) handleBooking(d amqp.Delivery) {
	var ev BookingConfirmedEvent
	if err := json.Unmarshal(d.Body, &ev); err != nil {
		c.log.Error().Err(err).Msg("malformed booking event")
		_ = d.Nack(false, false)
		return
	}
	text := fmt.Sprintf("📅 Новая запись: %s (id %d)\n%s, %s %s",
		ev.FirstName, ev.UserID, ev.Location, ev.Date, ev.Time)
	if err := c.notifier.Notify(c.adminChatID, text); err != nil {
		c.log.Error().Err(err).Int64("booking_id", ev.BookingID).Msg("notify admin failed")
		_ = d.Nack(false, true)
		return
	}
	_ = d.Ack(false)
}

func (c *Consumer) handlePayment(d amqp.Delivery) {
	var ev PaymentConfirmedEvent
	if err := json.Unmarshal(d.Body, &ev); err != nil {
		c.log.Error().Err(err).Msg("malformed payment event")
		_ = d.Nack(false, false)
		return
	}
	text := fmt.Sprintf("💳 Оплата подтверждена: %s\nПользователь %d, %d ₽",
		ev.PlanName, ev.UserID, ev.Amount)
	if err := c.notifier.Notify(c.adminChatID, text); err != nil {
		c.log.Error().Err(err).Str("payment_id", ev.PaymentID).Msg("notify admin failed")
		_ = d.Nack(false, true)
		return
	}
	_ = d.Ack(false)
}
