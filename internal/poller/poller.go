package poller

import (
	"context"
	"encoding/json"
	"errors"
	"time"

	"github.com/fjod/cartstore/pkg/logger"
	"github.com/segmentio/kafka-go"
)

const (
	DefaultTopic   = "checkout-outbox"
	DefaultGroupID = "cart-service-consumer"

	retryDelay = time.Second
)

var errMissingSession = errors.New("missing or invalid session_id")

// Forgetter drops a session's cart once its checkout has completed.
type Forgetter interface {
	Forget(ctx context.Context, sessionID string) error
}

type messageReader interface {
	ReadMessage(ctx context.Context) (kafka.Message, error)
	Close() error
}

// checkoutEvent is the part of the checkout-completed payload the cart needs.
type checkoutEvent struct {
	CheckoutID string `json:"checkout_id"`
	SessionID  string `json:"session_id"`
}

type Poller struct {
	carts  Forgetter
	reader messageReader
	log    *logger.Logger
}

func NewPoller(carts Forgetter, log *logger.Logger, topic, groupID string, brokers ...string) *Poller {
	if topic == "" {
		topic = DefaultTopic
	}
	if groupID == "" {
		groupID = DefaultGroupID
	}
	reader := kafka.NewReader(kafka.ReaderConfig{
		Brokers:  brokers,
		Topic:    topic,
		GroupID:  groupID,
		MaxBytes: 10e6, // 10MB
	})
	return newPoller(carts, reader, log)
}

func newPoller(carts Forgetter, reader messageReader, log *logger.Logger) *Poller {
	if log == nil {
		log = logger.Nop()
	}
	return &Poller{carts: carts, reader: reader, log: log}
}

// Run consumes checkout events until ctx is cancelled.
func (p *Poller) Run(ctx context.Context) {
	for {
		if ctx.Err() != nil {
			return
		}
		if err := p.consumeOne(ctx); err != nil && ctx.Err() == nil {
			select {
			case <-ctx.Done():
				return
			case <-time.After(retryDelay):
			}
		}
	}
}

func (p *Poller) Close() {
	if err := p.reader.Close(); err != nil {
		p.log.Error(context.Background(), "error closing checkout reader", err)
	}
}

// consumeOne returns an error only when reading from the broker failed.
// Bad payloads are logged and skipped.
func (p *Poller) consumeOne(ctx context.Context) error {
	m, err := p.reader.ReadMessage(ctx)
	if err != nil {
		if ctx.Err() == nil {
			p.log.Error(ctx, "error reading checkout message", err)
		}
		return err
	}

	event, err := decodeEvent(m.Value)
	if err != nil {
		logCtx := p.log.WithField(ctx, "offset", m.Offset)
		p.log.Warn(logCtx, "skipping checkout message", err)
		return nil
	}

	logCtx := p.log.WithSessionID(ctx, event.SessionID)
	if event.CheckoutID != "" {
		logCtx = p.log.WithField(logCtx, "checkout_id", event.CheckoutID)
	}
	if err := p.carts.Forget(ctx, event.SessionID); err != nil {
		p.log.Error(logCtx, "failed to clear cart after checkout", err)
		return nil
	}
	p.log.Info(logCtx, "cart cleared after checkout")
	return nil
}

func decodeEvent(value []byte) (checkoutEvent, error) {
	var event checkoutEvent
	if err := json.Unmarshal(value, &event); err != nil {
		return checkoutEvent{}, err
	}
	if event.SessionID == "" {
		return checkoutEvent{}, errMissingSession
	}
	return event, nil
}
