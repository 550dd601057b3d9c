package notification

import (
	"context"
	"fmt"
	"sync"

	"go.uber.org/zap"

	"github.com/jdfresh/backend/internal/domain/identity"
	"github.com/jdfresh/backend/internal/domain/order"
	"github.com/jdfresh/backend/internal/domain/payment"
)

// Channel is the medium a notification goes out on
type Channel string

const (
	ChannelEmail Channel = "email"
	ChannelSMS   Channel = "sms"
)

// Notification is one outbound message
type Notification struct {
	Channel   Channel
	Recipient string
	Subject   string
	Body      string
}

// Sender delivers notifications on one channel
type Sender interface {
	Channel() Channel
	Send(ctx context.Context, n *Notification) error
}

const queueSize = 256

// Dispatcher fans order and payment events out to notification senders.
// Dispatch is fire-and-forget: messages are queued and sent by a worker,
// and when the queue is full new messages are dropped rather than
// blocking the calling operation.
type Dispatcher struct {
	senders map[Channel]Sender
	users   identity.Repository
	logger  *zap.Logger

	queue chan *Notification
	done  chan struct{}
	once  sync.Once
}

// NewDispatcher creates a Dispatcher and starts its worker
func NewDispatcher(senders []Sender, users identity.Repository, logger *zap.Logger) *Dispatcher {
	if logger == nil {
		logger = zap.NewNop()
	}
	byChannel := make(map[Channel]Sender)
	for _, s := range senders {
		byChannel[s.Channel()] = s
	}
	d := &Dispatcher{
		senders: byChannel,
		users:   users,
		logger:  logger,
		queue:   make(chan *Notification, queueSize),
		done:    make(chan struct{}),
	}
	go d.run()
	return d
}

// Close stops the worker after draining the queue
func (d *Dispatcher) Close() {
	d.once.Do(func() {
		close(d.queue)
		<-d.done
	})
}

func (d *Dispatcher) run() {
	defer close(d.done)
	for n := range d.queue {
		sender, ok := d.senders[n.Channel]
		if !ok {
			continue
		}
		if err := sender.Send(context.Background(), n); err != nil {
			d.logger.Warn("Notification send failed",
				zap.String("channel", string(n.Channel)),
				zap.String("subject", n.Subject),
				zap.Error(err))
		}
	}
}

// enqueue queues a notification, dropping it when the queue is full
func (d *Dispatcher) enqueue(n *Notification) {
	select {
	case d.queue <- n:
	default:
		d.logger.Warn("Notification queue full, dropping message",
			zap.String("channel", string(n.Channel)),
			zap.String("subject", n.Subject))
	}
}

// notifyCustomer queues the message on every channel the customer can be
// reached on
func (d *Dispatcher) notifyCustomer(ctx context.Context, o *order.Order, subject, body string) {
	u, err := d.users.FindByID(ctx, o.CustomerID)
	if err != nil {
		d.logger.Warn("Cannot notify unknown customer",
			zap.String("customer_id", o.CustomerID.String()),
			zap.Error(err))
		return
	}

	if u.Email != "" {
		d.enqueue(&Notification{Channel: ChannelEmail, Recipient: u.Email, Subject: subject, Body: body})
	}
	if u.Phone != "" {
		d.enqueue(&Notification{Channel: ChannelSMS, Recipient: u.Phone, Subject: subject, Body: body})
	}
}

// OrderCreated notifies the customer that their order was placed
func (d *Dispatcher) OrderCreated(ctx context.Context, o *order.Order) {
	d.notifyCustomer(ctx, o,
		fmt.Sprintf("Order %s placed", o.OrderNumber),
		fmt.Sprintf("Your order %s for %s %s has been placed.", o.OrderNumber, o.Total.StringFixed(2), "INR"))
}

// OrderStatusChanged notifies the customer of a fulfillment update
func (d *Dispatcher) OrderStatusChanged(ctx context.Context, o *order.Order, _, to order.OrderStatus) {
	d.notifyCustomer(ctx, o,
		fmt.Sprintf("Order %s update", o.OrderNumber),
		fmt.Sprintf("Your order %s is now %s.", o.OrderNumber, to))
}

// OrderCancelled notifies the customer that their order was cancelled
func (d *Dispatcher) OrderCancelled(ctx context.Context, o *order.Order) {
	d.notifyCustomer(ctx, o,
		fmt.Sprintf("Order %s cancelled", o.OrderNumber),
		fmt.Sprintf("Your order %s has been cancelled.", o.OrderNumber))
}

// PaymentCompleted notifies the customer that their payment went through
func (d *Dispatcher) PaymentCompleted(ctx context.Context, o *order.Order, p *payment.Payment) {
	d.notifyCustomer(ctx, o,
		fmt.Sprintf("Payment received for %s", o.OrderNumber),
		fmt.Sprintf("We received your payment of %s %s for order %s.", p.Amount.StringFixed(2), p.Currency, o.OrderNumber))
}

// PaymentFailed notifies the customer that their payment did not go through
func (d *Dispatcher) PaymentFailed(ctx context.Context, o *order.Order, p *payment.Payment) {
	d.notifyCustomer(ctx, o,
		fmt.Sprintf("Payment failed for %s", o.OrderNumber),
		fmt.Sprintf("Your payment of %s %s for order %s failed. Please try again.", p.Amount.StringFixed(2), p.Currency, o.OrderNumber))
}

// RefundProcessed notifies the customer that their refund was issued
func (d *Dispatcher) RefundProcessed(ctx context.Context, o *order.Order, p *payment.Payment) {
	amount := p.Amount
	if p.Refund != nil {
		amount = p.Refund.Amount
	}
	d.notifyCustomer(ctx, o,
		fmt.Sprintf("Refund issued for %s", o.OrderNumber),
		fmt.Sprintf("A refund of %s %s for order %s has been issued.", amount.StringFixed(2), p.Currency, o.OrderNumber))
}
