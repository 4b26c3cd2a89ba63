// Package queue publishes domain events to RabbitMQ and runs the consumer
// that turns them into admin notifications. The broker is optional: when no
// URL is configured the bot simply never constructs a Publisher.
package queue

// Queue names. Durable, declared idempotently by both ends.
const (
	BookingQueue = "booking.confirmed"
	PaymentQueue = "payment.confirmed"
)

// BookingConfirmedEvent is published when a customer's booking commits. It
// carries enough detail for downstream consumers to notify or aggregate
// without querying the database.
type BookingConfirmedEvent struct {
	BookingID int64  `json:"booking_id"`
	UserID    int64  `json:"user_id"`
	FirstName string `json:"first_name"`
	Location  string `json:"location"`
	Date      string `json:"date"`
	Time      string `json:"time"`
	BookedAt  string `json:"booked_at"`
}

// PaymentConfirmedEvent is published when an administrator confirms a
// payment and the subscription is activated.
type PaymentConfirmedEvent struct {
	PaymentID   string `json:"payment_id"`
	UserID      int64  `json:"user_id"`
	PlanName    string `json:"plan_name"`
	Amount      int    `json:"amount"`
	ConfirmedAt string `json:"confirmed_at"`
}
