// Package service publishes domain events to RabbitMQ.
package service

import (
	"context"
	"encoding/json"
	"time"

	"github.com/charmbracelet/log"
	amqp "github.com/rabbitmq/amqp091-go"

	"github.com/iliyamo/recital-program/internal/queue"
)

// Publisher sends live status audit events.  Each publish opens its own
// connection; events are rare (a handful per act change).
type Publisher struct {
	url string
	log *log.Logger
}

// NewPublisher returns nil when url is empty, which disables audit events.
func NewPublisher(url string, logger *log.Logger) *Publisher {
	if url == "" {
		return nil
	}
	return &Publisher{url: url, log: logger}
}

// PublishLiveStatusChanged sends ev to the live.status.changed queue as a
// persistent JSON message.  Errors are logged and returned so the caller can
// ignore them without interrupting the request.
func (p *Publisher) PublishLiveStatusChanged(ctx context.Context, ev queue.LiveStatusChangedEvent) error {
	conn, err := amqp.Dial(p.url)
	if err != nil {
		p.log.Warn("rabbitmq dial failed", "err", err)
		return err
	}
	defer func() { _ = conn.Close() }()

	ch, err := conn.Channel()
	if err != nil {
		p.log.Warn("rabbitmq channel open failed", "err", err)
		return err
	}
	defer func() { _ = ch.Close() }()

	if _, err := ch.QueueDeclare(queue.LiveStatusQueue, true, false, false, false, nil); err != nil {
		p.log.Warn("rabbitmq queue declare failed", "err", err)
		return err
	}
	body, err := json.Marshal(ev)
	if err != nil {
		return err
	}
	pub := amqp.Publishing{
		ContentType:  "application/json",
		DeliveryMode: amqp.Persistent,
		Timestamp:    time.Now().UTC(),
		Body:         body,
	}
	if err := ch.PublishWithContext(ctx, "", queue.LiveStatusQueue, false, false, pub); err != nil {
		p.log.Warn("rabbitmq publish failed", "err", err)
		return err
	}
	return nil
}
