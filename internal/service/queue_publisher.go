// Package service holds the background pieces of the checkout service:
// the RabbitMQ publisher for lifecycle events and the abandoned-hold
// sweeper.  Publish errors are logged and returned so callers can ignore
// them without interrupting the request flow.
package service

import (
	"context"
	"encoding/json"
	"time"

	amqp "github.com/rabbitmq/amqp091-go"
	"github.com/sirupsen/logrus"

	q "github.com/iliyamo/bus-seat-checkout/internal/queue"
)

// LifecyclePublisher publishes LifecycleEvents to the lifecycle queue.  A
// connection is dialled per publish; the volume is a handful of events per
// checkout.
type LifecyclePublisher struct {
	URL string
	Log *logrus.Logger
}

// NewLifecyclePublisher returns a publisher for the broker at url.
func NewLifecyclePublisher(url string, log *logrus.Logger) *LifecyclePublisher {
	return &LifecyclePublisher{URL: url, Log: log}
}

// Publish sends event to the lifecycle queue.  It never panics; any error
// is logged and returned.  Messages are marked as persistent.
func (p *LifecyclePublisher) Publish(ctx context.Context, event q.LifecycleEvent) error {
	log := p.Log.WithFields(logrus.Fields{"kind": event.Kind, "reservation_id": event.ReservationID})
	if event.OccurredAt.IsZero() {
		event.OccurredAt = time.Now().UTC()
	}
	conn, err := amqp.Dial(p.URL)
	if err != nil {
		log.WithError(err).Warn("rabbitmq: dial failed")
		return err
	}
	defer func() { _ = conn.Close() }()

	ch, err := conn.Channel()
	if err != nil {
		log.WithError(err).Warn("rabbitmq: channel open failed")
		return err
	}
	defer func() { _ = ch.Close() }()

	// Ensure the queue exists (idempotent). Durable so messages survive broker restarts.
	if _, err := ch.QueueDeclare(
		q.LifecycleQueue, // name
		true,             // durable
		false,            // autoDelete
		false,            // exclusive
		false,            // noWait
		nil,              // args
	); err != nil {
		log.WithError(err).Warn("rabbitmq: queue declare failed")
		return err
	}

	body, err := json.Marshal(event)
	if err != nil {
		log.WithError(err).Warn("rabbitmq: marshal event failed")
		return err
	}

	pub := amqp.Publishing{
		ContentType:  "application/json",
		DeliveryMode: amqp.Persistent, // store on disk
		Timestamp:    time.Now().UTC(),
		Body:         body,
	}
	if err := ch.PublishWithContext(ctx,
		"",               // default exchange
		q.LifecycleQueue, // routing key = queue name
		false,            // mandatory
		false,            // immediate
		pub,
	); err != nil {
		log.WithError(err).Warn("rabbitmq: publish failed")
		return err
	}
	return nil
}
