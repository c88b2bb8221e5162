package publisher

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/google/uuid"
	amqp "github.com/rabbitmq/amqp091-go"

	"cafe_notifier/internal/domain"
)

// RabbitMQ mirrors announcements to an exchange for downstream consumers.
type RabbitMQ struct {
	conn       *amqp.Connection
	channel    *amqp.Channel
	exchange   string
	routingKey string
	logger     *slog.Logger
}

type Config struct {
	URL      string
	Exchange string
	// RoutingKey prefixes the per-board key: "<prefix>.<board_key>".
	RoutingKey string
	// QueueName receives every board's announcements.
	QueueName string
}

func NewRabbitMQ(cfg Config, logger *slog.Logger) (*RabbitMQ, error) {
	conn, err := amqp.Dial(cfg.URL)
	if err != nil {
		return nil, fmt.Errorf("connect to rabbitmq: %w", err)
	}

	ch, err := conn.Channel()
	if err != nil {
		conn.Close()
		return nil, fmt.Errorf("open channel: %w", err)
	}

	if err := declareTopology(ch, cfg); err != nil {
		ch.Close()
		conn.Close()
		return nil, err
	}

	logger = logger.With("component", "rabbitmq")
	logger.Info("connected to rabbitmq",
		"exchange", cfg.Exchange,
		"queue", cfg.QueueName,
		"binding", bindingKey(cfg.RoutingKey),
	)

	return &RabbitMQ{
		conn:       conn,
		channel:    ch,
		exchange:   cfg.Exchange,
		routingKey: cfg.RoutingKey,
		logger:     logger,
	}, nil
}

// declareTopology sets up a durable topic exchange and one durable queue bound to
// every board under the routing prefix.
func declareTopology(ch *amqp.Channel, cfg Config) error {
	if err := ch.ExchangeDeclare(cfg.Exchange, amqp.ExchangeTopic, true, false, false, false, nil); err != nil {
		return fmt.Errorf("declare exchange %s: %w", cfg.Exchange, err)
	}
	if cfg.QueueName == "" {
		return nil
	}
	if _, err := ch.QueueDeclare(cfg.QueueName, true, false, false, false, nil); err != nil {
		return fmt.Errorf("declare queue %s: %w", cfg.QueueName, err)
	}
	if err := ch.QueueBind(cfg.QueueName, bindingKey(cfg.RoutingKey), cfg.Exchange, false, nil); err != nil {
		return fmt.Errorf("bind queue %s: %w", cfg.QueueName, err)
	}
	return nil
}

func bindingKey(prefix string) string {
	return prefix + ".#"
}

// routingKeyFor keeps board keys usable as a single topic word.
func routingKeyFor(prefix, boardKey string) string {
	word := strings.Map(func(r rune) rune {
		switch r {
		case '.', '*', '#', ' ':
			return '_'
		}
		return r
	}, boardKey)
	if word == "" {
		word = "unknown"
	}
	return prefix + "." + word
}

// AnnouncementMessage is the JSON body of every published announcement.
type AnnouncementMessage struct {
	ID           string              `json:"id"`
	Action       string              `json:"action"`
	Announcement domain.Announcement `json:"announcement"`
	Timestamp    time.Time           `json:"timestamp"`
}

// Publish mirrors an announcement to the exchange as a persistent message.
func (r *RabbitMQ) Publish(ctx context.Context, announcement domain.Announcement) error {
	msg := AnnouncementMessage{
		ID:           uuid.NewString(),
		Action:       "announce",
		Announcement: announcement,
		Timestamp:    time.Now().UTC(),
	}

	body, err := json.Marshal(msg)
	if err != nil {
		return fmt.Errorf("marshal message: %w", err)
	}

	err = r.channel.PublishWithContext(
		ctx,
		r.exchange,
		routingKeyFor(r.routingKey, announcement.BoardKey),
		false,
		false,
		amqp.Publishing{
			DeliveryMode: amqp.Persistent,
			ContentType:  "application/json",
			MessageId:    msg.ID,
			Type:         "announcement",
			Body:         body,
			Timestamp:    msg.Timestamp,
		},
	)
	if err != nil {
		return fmt.Errorf("publish message: %w", err)
	}

	r.logger.Debug("published announcement",
		"board", announcement.BoardKey,
		"link", announcement.Link,
		"message_id", msg.ID,
	)

	return nil
}

func (r *RabbitMQ) Close() error {
	if r.channel != nil {
		r.channel.Close()
	}
	if r.conn != nil {
		return r.conn.Close()
	}
	return nil
}
