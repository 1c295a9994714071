// Package bus delivers lifecycle events to in-process subscribers.
package bus

import (
	"context"
	"encoding/json"
	"sync"

	evbus "github.com/asaskevich/EventBus"
	"github.com/pkg/errors"
	"github.com/rs/zerolog"
)

type Topic string

const (
	TopicSubscriptionCreated   Topic = "subscription_created"
	TopicSubscriptionRenewed   Topic = "subscription_renewed"
	TopicSubscriptionCancelled Topic = "subscription_cancelled"
	TopicInvoiceCreated        Topic = "invoice_created"
	TopicInvoicePaid           Topic = "invoice_paid"
	TopicPaymentCreated        Topic = "payment_created"
	TopicPaymentSucceeded      Topic = "payment_succeeded"
	TopicPaymentFailed         Topic = "payment_failed"
	TopicPaymentRefunded       Topic = "payment_refunded"
)

// Topics lists every topic emitted by the engine.
var Topics = []Topic{
	TopicSubscriptionCreated,
	TopicSubscriptionRenewed,
	TopicSubscriptionCancelled,
	TopicInvoiceCreated,
	TopicInvoicePaid,
	TopicPaymentCreated,
	TopicPaymentSucceeded,
	TopicPaymentFailed,
	TopicPaymentRefunded,
}

type Publisher interface {
	Publish(topic Topic, message any) error
}

// Consumer receives the JSON encoded message.
type Consumer func(ctx context.Context, topic Topic, message []byte) error

var ErrClosed = errors.New("pubsub is closed")

// PubSub is an asynchronous in-memory bus. Publish never blocks on consumers.
type PubSub struct {
	ctx    context.Context
	bus    evbus.Bus
	mu     sync.RWMutex
	closed bool
	logger *zerolog.Logger
}

func NewPubSub(ctx context.Context, logger *zerolog.Logger) *PubSub {
	log := logger.With().Str("channel", "pubsub").Logger()

	return &PubSub{
		ctx:    ctx,
		bus:    evbus.New(),
		logger: &log,
	}
}

func (p *PubSub) Publish(topic Topic, message any) error {
	p.mu.RLock()
	defer p.mu.RUnlock()

	if p.closed {
		return ErrClosed
	}

	raw, err := json.Marshal(message)
	if err != nil {
		return errors.Wrapf(err, "unable to marshal %s message", topic)
	}

	p.bus.Publish(string(topic), topic, raw)

	return nil
}

// Subscribe registers an async consumer. Messages of one topic are delivered in order.
func (p *PubSub) Subscribe(topic Topic, consumer Consumer) error {
	handler := func(topic Topic, raw []byte) {
		if err := consumer(p.ctx, topic, raw); err != nil {
			p.logger.Error().Err(err).Str("topic", string(topic)).Msg("consumer failed")
		}
	}

	if err := p.bus.SubscribeAsync(string(topic), handler, true); err != nil {
		return errors.Wrapf(err, "unable to subscribe to %s", topic)
	}

	return nil
}

// Shutdown stops accepting messages and waits for in-flight consumers.
func (p *PubSub) Shutdown() {
	p.mu.Lock()
	p.closed = true
	p.mu.Unlock()

	p.bus.WaitAsync()
}

// LogConsumer writes every event to the logger. The external broadcaster tails these records.
func LogConsumer(logger *zerolog.Logger) Consumer {
	log := logger.With().Str("channel", "event_log").Logger()

	return func(_ context.Context, topic Topic, message []byte) error {
		log.Info().Str("topic", string(topic)).RawJSON("event", message).Msg("event published")
		return nil
	}
}

// Nop discards every message.
type Nop struct{}

func (Nop) Publish(Topic, any) error { return nil }
