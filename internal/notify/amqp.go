package notify

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/MarkoPoloResearchLab/mealswap/pkg/exchange"
	amqp "github.com/rabbitmq/amqp091-go"
)

const (
	routingKeyPrefix   = "notification."
	jsonContentType    = "application/json"
	topicExchangeKind  = "topic"
	defaultPublishWait = 5 * time.Second
)

// Channel is the subset of *amqp.Channel used for publishing.
type Channel interface {
	ExchangeDeclare(name, kind string, durable, autoDelete, internal, noWait bool, args amqp.Table) error
	PublishWithContext(ctx context.Context, exchange, key string, mandatory, immediate bool, msg amqp.Publishing) error
	Close() error
}

// AMQPNotifier publishes notifications as JSON to a topic exchange keyed by notification kind.
type AMQPNotifier struct {
	conn     *amqp.Connection
	channel  Channel
	exchange string
	nowFn    func() time.Time
}

type message struct {
	UserID  string            `json:"user_id"`
	Kind    string            `json:"kind"`
	Title   string            `json:"title"`
	Message string            `json:"message"`
	Payload map[string]string `json:"payload,omitempty"`
	SentAt  time.Time         `json:"sent_at"`
}

// DialAMQP connects to RabbitMQ and declares the exchange.
func DialAMQP(url string, exchangeName string) (*AMQPNotifier, error) {
	conn, err := amqp.Dial(url)
	if err != nil {
		return nil, fmt.Errorf("dial rabbitmq: %w", err)
	}
	channel, err := conn.Channel()
	if err != nil {
		_ = conn.Close()
		return nil, fmt.Errorf("open channel: %w", err)
	}
	notifier, err := NewAMQPNotifier(channel, exchangeName, time.Now)
	if err != nil {
		_ = channel.Close()
		_ = conn.Close()
		return nil, err
	}
	notifier.conn = conn
	return notifier, nil
}

// NewAMQPNotifier declares a durable topic exchange on channel.
func NewAMQPNotifier(channel Channel, exchangeName string, now func() time.Time) (*AMQPNotifier, error) {
	if channel == nil || exchangeName == "" {
		return nil, fmt.Errorf("amqp notifier: channel and exchange are required")
	}
	if now == nil {
		now = time.Now
	}
	if err := channel.ExchangeDeclare(exchangeName, topicExchangeKind, true, false, false, false, nil); err != nil {
		return nil, fmt.Errorf("declare exchange: %w", err)
	}
	return &AMQPNotifier{channel: channel, exchange: exchangeName, nowFn: now}, nil
}

// RoutingKey returns the routing key for a notification kind.
func RoutingKey(kind exchange.NotificationKind) string {
	return routingKeyPrefix + string(kind)
}

func (notifier *AMQPNotifier) Send(ctx context.Context, notification exchange.Notification) error {
	body, err := json.Marshal(message{
		UserID:  notification.UserID.String(),
		Kind:    string(notification.Kind),
		Title:   notification.Title,
		Message: notification.Message,
		Payload: notification.Payload,
		SentAt:  notifier.nowFn().UTC(),
	})
	if err != nil {
		return fmt.Errorf("encode notification: %w", err)
	}
	if _, hasDeadline := ctx.Deadline(); !hasDeadline {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, defaultPublishWait)
		defer cancel()
	}
	err = notifier.channel.PublishWithContext(ctx, notifier.exchange, RoutingKey(notification.Kind), false, false, amqp.Publishing{
		ContentType:  jsonContentType,
		DeliveryMode: amqp.Persistent,
		Timestamp:    notifier.nowFn().UTC(),
		Body:         body,
	})
	if err != nil {
		return fmt.Errorf("publish notification: %w", err)
	}
	return nil
}

func (notifier *AMQPNotifier) Close() error {
	if notifier.channel != nil {
		_ = notifier.channel.Close()
	}
	if notifier.conn != nil {
		return notifier.conn.Close()
	}
	return nil
}
