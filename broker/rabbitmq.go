// Package broker connects the order engine to the fulfillment system over RabbitMQ.
package broker

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"scan-order/models"
	"scan-order/services"

	amqp "github.com/rabbitmq/amqp091-go"
	"go.uber.org/zap"
)

const (
	ExchangeOrders     = "orders_topic"
	QueueStatusUpdates = "order_status_updates"
	StatusBindingKey   = "status.*"

	publishTimeout = 5 * time.Second
)

// RabbitMQ publishes order events and consumes status updates from the kitchen.
type RabbitMQ struct {
	conn    *amqp.Connection
	channel *amqp.Channel
	log     *zap.Logger
}

// Connect dials url and declares the exchange and the status queue.
func Connect(url string, log *zap.Logger) (*RabbitMQ, error) {
	conn, err := amqp.Dial(url)
	if err != nil {
		return nil, fmt.Errorf("dial rabbitmq: %w", err)
	}
	ch, err := conn.Channel()
	if err != nil {
		conn.Close()
		return nil, fmt.Errorf("open channel: %w", err)
	}
	if err := declareTopology(ch); err != nil {
		ch.Close()
		conn.Close()
		return nil, err
	}
	log = log.Named("broker")
	log.Info("connected to rabbitmq", zap.String("exchange", ExchangeOrders))
	return &RabbitMQ{conn: conn, channel: ch, log: log}, nil
}

func declareTopology(ch *amqp.Channel) error {
	err := ch.ExchangeDeclare(
		ExchangeOrders, // name
		"topic",        // type
		true,           // durable
		false,          // auto-deleted
		false,          // internal
		false,          // no-wait
		nil,            // arguments
	)
	if err != nil {
		return fmt.Errorf("declare exchange: %w", err)
	}
	_, err = ch.QueueDeclare(
		QueueStatusUpdates, // name
		true,               // durable
		false,              // delete when unused
		false,              // exclusive
		false,              // no-wait
		nil,                // arguments
	)
	if err != nil {
		return fmt.Errorf("declare queue: %w", err)
	}
	if err := ch.QueueBind(QueueStatusUpdates, StatusBindingKey, ExchangeOrders, false, nil); err != nil {
		return fmt.Errorf("bind queue: %w", err)
	}
	return nil
}

func (r *RabbitMQ) Close() {
	if r.channel != nil {
		r.channel.Close()
	}
	if r.conn != nil {
		r.conn.Close()
	}
}

// RoutingKey is order.<status> in lower case, e.g. order.pending_pay.
func RoutingKey(evt services.OrderEvent) string {
	return "order." + strings.ToLower(string(evt.Status))
}

// PublishOrderEvent sends evt to the orders exchange.
func (r *RabbitMQ) PublishOrderEvent(ctx context.Context, evt services.OrderEvent) error {
	body, err := json.Marshal(evt)
	if err != nil {
		return fmt.Errorf("marshal order event: %w", err)
	}
	ctx, cancel := context.WithTimeout(ctx, publishTimeout)
	defer cancel()
	err = r.channel.PublishWithContext(ctx,
		ExchangeOrders,  // exchange
		RoutingKey(evt), // routing key
		false,           // mandatory
		false,           // immediate
		amqp.Publishing{
			DeliveryMode: amqp.Persistent,
			ContentType:  "application/json",
			MessageId:    evt.OrderID + ":" + string(evt.Status),
			Timestamp:    evt.At,
			Body:         body,
		})
	if err != nil {
		return fmt.Errorf("publish %s: %w", evt.Type, err)
	}
	r.log.Debug("order event published", zap.String("order_id", evt.OrderID), zap.String("routing_key", RoutingKey(evt)))
	return nil
}

// StatusUpdate is a status report from the fulfillment system.
type StatusUpdate struct {
	OrderID string             `json:"order_id"`
	Status  models.OrderStatus `json:"status"`
	Note    string             `json:"note,omitempty"`
}

var ErrMalformedUpdate = errors.New("malformed status update")

// ParseStatusUpdate decodes and validates a status update body.
func ParseStatusUpdate(body []byte) (StatusUpdate, error) {
	var u StatusUpdate
	if err := json.Unmarshal(body, &u); err != nil {
		return StatusUpdate{}, fmt.Errorf("%w: %v", ErrMalformedUpdate, err)
	}
	u.OrderID = strings.TrimSpace(u.OrderID)
	u.Status = models.OrderStatus(strings.ToUpper(strings.TrimSpace(string(u.Status))))
	if u.OrderID == "" {
		return StatusUpdate{}, fmt.Errorf("%w: missing order_id", ErrMalformedUpdate)
	}
	if !u.Status.Valid() {
		return StatusUpdate{}, fmt.Errorf("%w: unknown status %q", ErrMalformedUpdate, u.Status)
	}
	return u, nil
}

// StatusApplier applies a reported status to an order.
type StatusApplier interface {
	Advance(ctx context.Context, orderID string, to models.OrderStatus, note string) (*models.Order, error)
}

type deliveryAction int

const (
	ackDelivery     deliveryAction = iota
	requeueDelivery                // transient failure, try again later
	dropDelivery                   // never processable, nack without requeue
)

// handleUpdate applies one message body and says what to do with the delivery.
func handleUpdate(ctx context.Context, applier StatusApplier, body []byte, log *zap.Logger) deliveryAction {
	u, err := ParseStatusUpdate(body)
	if err != nil {
		log.Warn("dropping malformed status update", zap.Error(err))
		return dropDelivery
	}
	log = log.With(zap.String("order_id", u.OrderID), zap.String("status", string(u.Status)))
	_, err = applier.Advance(ctx, u.OrderID, u.Status, u.Note)
	switch {
	case err == nil:
		return ackDelivery
	case errors.Is(err, services.ErrInvalidTransition), errors.Is(err, services.ErrOrderNotFound):
		log.Warn("ignoring status update", zap.Error(err))
		return ackDelivery
	case ctx.Err() != nil:
		return requeueDelivery
	default:
		log.Error("status update failed, requeueing", zap.Error(err))
		return requeueDelivery
	}
}

// ConsumeStatusUpdates applies kitchen status updates until ctx ends or the channel closes.
func (r *RabbitMQ) ConsumeStatusUpdates(ctx context.Context, applier StatusApplier, prefetch int) error {
	ch, err := r.conn.Channel()
	if err != nil {
		return fmt.Errorf("open consumer channel: %w", err)
	}
	defer ch.Close()
	if err := ch.Qos(prefetch, 0, false); err != nil {
		return fmt.Errorf("set prefetch: %w", err)
	}
	msgs, err := ch.Consume(
		QueueStatusUpdates, // queue
		"scan-order",       // consumer
		false,              // auto-ack
		false,              // exclusive
		false,              // no-local
		false,              // no-wait
		nil,                // args
	)
	if err != nil {
		return fmt.Errorf("consume %s: %w", QueueStatusUpdates, err)
	}
	r.log.Info("consuming status updates", zap.String("queue", QueueStatusUpdates))

	for {
		select {
		case <-ctx.Done():
			return nil
		case msg, ok := <-msgs:
			if !ok {
				return errors.New("status update channel closed")
			}
			r.settle(msg, handleUpdate(ctx, applier, msg.Body, r.log))
		}
	}
}

func (r *RabbitMQ) settle(msg amqp.Delivery, action deliveryAction) {
	var err error
	switch action {
	case ackDelivery:
		err = msg.Ack(false)
	case requeueDelivery:
		err = msg.Nack(false, true)
	default:
		err = msg.Nack(false, false)
	}
	if err != nil {
		r.log.Error("settle delivery failed", zap.Uint64("tag", msg.DeliveryTag), zap.Error(err))
	}
}
