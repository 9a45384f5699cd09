package bridge

import (
	"context"
	"fmt"
	"time"

	amqp "github.com/rabbitmq/amqp091-go"

	"github.com/soyeahso/trellis/internal/fault"
	"github.com/soyeahso/trellis/internal/logging"
)

const defaultExchange = "trellis.events"

// AMQPSink publishes events to a durable topic exchange.
type AMQPSink struct {
	conn     *amqp.Connection
	ch       *amqp.Channel
	exchange string
	log      *logging.Logger
}

// NewAMQPSink dials url and declares exchange.
func NewAMQPSink(url, exchange string, log *logging.Logger) (*AMQPSink, error) {
	if url == "" {
		return nil, fault.New(fault.KindInvalidArgument, "amqp bridge requires a url")
	}
	if exchange == "" {
		exchange = defaultExchange
	}
	conn, err := amqp.Dial(url)
	if err != nil {
		return nil, fmt.Errorf("connecting to amqp: %w", err)
	}
	ch, err := conn.Channel()
	if err != nil {
		conn.Close()
		return nil, fmt.Errorf("opening amqp channel: %w", err)
	}
	if err := ch.ExchangeDeclare(exchange, amqp.ExchangeTopic, true, false, false, false, nil); err != nil {
		ch.Close()
		conn.Close()
		return nil, fmt.Errorf("declaring exchange %s: %w", exchange, err)
	}

	s := &AMQPSink{conn: conn, ch: ch, exchange: exchange, log: log.Sub("bridge")}
	s.log.Info().Str("exchange", exchange).Msg("amqp bridge connected")
	return s, nil
}

// Publish sends payload with topic as the routing key.
func (s *AMQPSink) Publish(ctx context.Context, topic string, payload []byte) error {
	return s.ch.PublishWithContext(ctx, s.exchange, topic, false, false, amqp.Publishing{
		ContentType:  "application/json",
		DeliveryMode: amqp.Persistent,
		Timestamp:    time.Now(),
		Body:         payload,
	})
}

func (s *AMQPSink) Close() error {
	if s.ch != nil {
		_ = s.ch.Close()
	}
	if s.conn != nil {
		return s.conn.Close()
	}
	return nil
}
