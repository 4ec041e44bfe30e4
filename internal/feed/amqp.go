package feed

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/rabbitmq/amqp091-go"
)

// AMQPFeed routes change events through a durable direct exchange, one
// routing key per owner scope. Each subscription consumes from its own
// exclusive queue, so every subscriber sees every event for its owner.
type AMQPFeed struct {
	conn         *amqp091.Connection
	channel      *amqp091.Channel
	exchangeName string
}

func NewAMQPFeed(url, exchangeName string) (*AMQPFeed, error) {
	conn, err := amqp091.Dial(url)
	if err != nil {
		return nil, fmt.Errorf("dial AMQP: %w", err)
	}

	channel, err := conn.Channel()
	if err != nil {
		conn.Close()
		return nil, fmt.Errorf("open channel: %w", err)
	}

	err = channel.ExchangeDeclare(
		exchangeName, // name
		"direct",     // type
		true,         // durable
		false,        // auto-deleted
		false,        // internal
		false,        // no-wait
		nil,          // arguments
	)
	if err != nil {
		channel.Close()
		conn.Close()
		return nil, fmt.Errorf("declare exchange: %w", err)
	}

	return &AMQPFeed{conn: conn, channel: channel, exchangeName: exchangeName}, nil
}

func (f *AMQPFeed) Publish(ctx context.Context, e Event) error {
	body, err := e.ToJSON()
	if err != nil {
		return fmt.Errorf("marshal event: %w", err)
	}

	ctx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()

	err = f.channel.PublishWithContext(
		ctx,
		f.exchangeName, // exchange
		e.OwnerID,      // routing key: owner scope
		false,          // mandatory
		false,          // immediate
		amqp091.Publishing{
			ContentType:  "application/json",
			DeliveryMode: amqp091.Persistent,
			Timestamp:    time.Now(),
			Body:         body,
		},
	)
	if err != nil {
		return fmt.Errorf("publish event: %w", err)
	}

	slog.DebugContext(ctx, "Published change event",
		"kind", e.Kind, "record_id", e.RecordID, "owner_id", e.OwnerID)
	return nil
}

func (f *AMQPFeed) Subscribe(ctx context.Context, ownerID string, fn func(Event)) (Subscription, error) {
	channel, err := f.conn.Channel()
	if err != nil {
		return nil, fmt.Errorf("open subscription channel: %w", err)
	}

	// Exclusive auto-deleted queue: one per subscriber, gone on teardown.
	queue, err := channel.QueueDeclare("", false, true, true, false, nil)
	if err != nil {
		channel.Close()
		return nil, fmt.Errorf("declare queue: %w", err)
	}

	if err := channel.QueueBind(queue.Name, ownerID, f.exchangeName, false, nil); err != nil {
		channel.Close()
		return nil, fmt.Errorf("bind queue: %w", err)
	}

	msgs, err := channel.Consume(queue.Name, "", false, true, false, false, nil)
	if err != nil {
		channel.Close()
		return nil, fmt.Errorf("start consuming: %w", err)
	}

	sub := &amqpSub{channel: channel}
	go func() {
		for {
			select {
			case <-ctx.Done():
				return
			case delivery, ok := <-msgs:
				if !ok {
					return
				}
				e, err := EventFromJSON(delivery.Body)
				if err != nil {
					slog.ErrorContext(ctx, "Failed to decode change event", "error", err)
					delivery.Nack(false, false)
					continue
				}
				fn(e)
				delivery.Ack(false)
			}
		}
	}()

	slog.InfoContext(ctx, "Subscribed to change feed",
		"owner_id", ownerID, "queue", queue.Name)
	return sub, nil
}

type amqpSub struct {
	channel *amqp091.Channel
	once    sync.Once
}

func (s *amqpSub) Unsubscribe() error {
	var err error
	s.once.Do(func() {
		// Closing the channel ends the delivery stream; the consume loop
		// drains and exits.
		err = s.channel.Close()
	})
	return err
}

func (f *AMQPFeed) Close() error {
	if f.channel != nil {
		f.channel.Close()
	}
	if f.conn != nil {
		return f.conn.Close()
	}
	return nil
}
