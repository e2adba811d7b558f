package audit

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	"github.com/rabbitmq/amqp091-go"

	"github.com/mattjoyce/wxgate/internal/center"
	"github.com/mattjoyce/wxgate/internal/events"
)

// Meta identifies a published envelope. Type is the event name and version,
// e.g. message.replied.v1.
type Meta struct {
	ID            string    `json:"id"`
	CorrelationID *string   `json:"correlation_id,omitempty"`
	Producer      *string   `json:"producer,omitempty"`
	Time          time.Time `json:"time"`
	Type          string    `json:"type"`
}

// Envelope is the JSON document published per callback outcome.
type Envelope struct {
	Meta Meta `json:"meta"`
	Data any  `json:"data"`
}

// Sink delivers envelopes to a broker.
type Sink interface {
	Publish(ctx context.Context, key string, env Envelope) error
	Close() error
}

// AMQPSink publishes to a durable topic exchange over one confirm-mode
// channel. Publish waits for the broker's ack and is not safe for concurrent
// use; AMQPPublisher calls it from a single goroutine.
type AMQPSink struct {
	conn     *amqp091.Connection
	ch       *amqp091.Channel
	exchange string
	logger   *slog.Logger
}

// DialAMQP connects to url and declares exchange as a durable topic exchange.
func DialAMQP(url, exchange string, logger *slog.Logger) (*AMQPSink, error) {
	if logger == nil {
		logger = slog.Default()
	}
	conn, err := amqp091.Dial(url)
	if err != nil {
		return nil, fmt.Errorf("dial amqp: %w", err)
	}
	ch, err := conn.Channel()
	if err != nil {
		conn.Close()
		return nil, fmt.Errorf("open amqp channel: %w", err)
	}
	if err := ch.ExchangeDeclare(exchange, "topic", true, false, false, false, nil); err != nil {
		conn.Close()
		return nil, fmt.Errorf("declare exchange %q: %w", exchange, err)
	}
	if err := ch.Confirm(false); err != nil {
		conn.Close()
		return nil, fmt.Errorf("enable publisher confirms: %w", err)
	}

	return &AMQPSink{
		conn:     conn,
		ch:       ch,
		exchange: exchange,
		logger:   logger,
	}, nil
}

func (s *AMQPSink) Publish(ctx context.Context, key string, env Envelope) error {
	body, err := json.Marshal(env)
	if err != nil {
		return fmt.Errorf("marshal envelope: %w", err)
	}

	msgID := env.Meta.ID
	if msgID == "" {
		msgID = uuid.NewString()
	}
	cid := ""
	if env.Meta.CorrelationID != nil {
		cid = *env.Meta.CorrelationID
	}

	confirm, err := s.ch.PublishWithDeferredConfirmWithContext(
		ctx, s.exchange, key, false, false,
		amqp091.Publishing{
			ContentType:   "application/json",
			DeliveryMode:  amqp091.Persistent,
			MessageId:     msgID,
			CorrelationId: cid,
			Timestamp:     env.Meta.Time,
			Type:          env.Meta.Type,
			Body:          body,
		},
	)
	if err != nil {
		return fmt.Errorf("publish %s: %w", key, err)
	}
	acked, err := confirm.WaitContext(ctx)
	if err != nil {
		return fmt.Errorf("await confirm %s: %w", key, err)
	}
	if !acked {
		return fmt.Errorf("publish %s: nacked by broker", key)
	}
	s.logger.Debug("published", "key", key, "exchange", s.exchange)
	return nil
}

func (s *AMQPSink) Close() error {
	return errors.Join(s.ch.Close(), s.conn.Close())
}

type outbound struct {
	key string
	env Envelope
}

var _ center.Observer = (*AMQPPublisher)(nil)

// AMQPPublisher forwards callback outcomes to a Sink. The observer hooks only
// enqueue; Run does the publishing. A full buffer drops the envelope.
type AMQPPublisher struct {
	sink     Sink
	producer string
	queue    chan outbound
	logger   *slog.Logger
	dropped  atomic.Int64
	failed   atomic.Int64

	closeOnce sync.Once
}

func NewAMQPPublisher(sink Sink, producer string, buffer int, logger *slog.Logger) *AMQPPublisher {
	if buffer <= 0 {
		buffer = 256
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &AMQPPublisher{
		sink:     sink,
		producer: producer,
		queue:    make(chan outbound, buffer),
		logger:   logger,
	}
}

// RoutingKey is wxgate.<app>.<kind>; failures before parsing use the kind
// "unparsed".
func RoutingKey(r Record) string {
	kind := r.Kind
	if kind == "" {
		kind = "unparsed"
	}
	return "wxgate." + r.App + "." + kind
}

func (p *AMQPPublisher) OnRequest(context.Context, string, []byte) {}

func (p *AMQPPublisher) OnResponse(_ context.Context, ex center.Exchange) {
	p.enqueue(events.TypeReplied, FromExchange(ex))
}

func (p *AMQPPublisher) OnFailure(_ context.Context, f center.Failure) {
	p.enqueue(events.TypeFailed, FromFailure(f))
}

func (p *AMQPPublisher) enqueue(eventType string, r Record) {
	env := Envelope{
		Meta: Meta{
			ID:       r.ID,
			Producer: &p.producer,
			Time:     r.CreatedAt,
			Type:     eventType + ".v1",
		},
		Data: r,
	}
	if r.Key != "" {
		cid := r.App + ":" + r.Key
		env.Meta.CorrelationID = &cid
	}

	select {
	case p.queue <- outbound{key: RoutingKey(r), env: env}:
	default:
		p.dropped.Add(1)
		p.logger.Warn("amqp buffer full, dropping envelope", "app", r.App, "key", r.Key)
	}
}

// Dropped counts envelopes discarded because the buffer was full.
func (p *AMQPPublisher) Dropped() int64 { return p.dropped.Load() }

// Failed counts envelopes the sink rejected.
func (p *AMQPPublisher) Failed() int64 { return p.failed.Load() }

// Close closes the sink. It is safe to call more than once and without Run
// having started.
func (p *AMQPPublisher) Close() {
	p.closeOnce.Do(func() {
		if err := p.sink.Close(); err != nil {
			p.logger.Warn("close amqp sink", "error", err)
		}
	})
}

// Run publishes queued envelopes until ctx ends, then flushes what is already
// buffered with a bounded grace period and closes the sink.
func (p *AMQPPublisher) Run(ctx context.Context) error {
	defer p.Close()

	for {
		select {
		case <-ctx.Done():
			p.flush()
			return nil
		case m := <-p.queue:
			p.publish(ctx, m)
		}
	}
}

func (p *AMQPPublisher) flush() {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	for {
		select {
		case m := <-p.queue:
			p.publish(ctx, m)
		default:
			return
		}
	}
}

func (p *AMQPPublisher) publish(ctx context.Context, m outbound) {
	if err := p.sink.Publish(ctx, m.key, m.env); err != nil {
		p.failed.Add(1)
		p.logger.Warn("amqp publish failed", "key", m.key, "error", err)
	}
}
