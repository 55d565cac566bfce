package repository

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/sony/gobreaker"

	"OrgTrader/internal/domain/models"
	domrepo "OrgTrader/internal/domain/repository"
	pkgkafka "OrgTrader/pkg/kafka"
	applogger "OrgTrader/pkg/logger"
)

// MessagePublisher is the slice of pkg/kafka.Producer the repositories need.
type MessagePublisher interface {
	Publish(ctx context.Context, topic string, key []byte, value interface{}) error
}

// OrderMessage is the wire form of an order on the orders topic.
type OrderMessage struct {
	ID         string    `json:"id"`
	Instrument string    `json:"instrument"`
	Quantity   int64     `json:"quantity"`
	Side       string    `json:"side"`
	Time       time.Time `json:"time"`
}

// BreakerSettings tunes the circuit breaker guarding the orders topic.
type BreakerSettings struct {
	MaxRequests uint32
	Interval    time.Duration
	Timeout     time.Duration
	MaxFailures uint32
}

// KafkaBroker publishes orders to a topic for a downstream execution service and keeps its own
// position book, assuming every accepted order fills. Publishing goes through a circuit breaker.
type KafkaBroker struct {
	pub   MessagePublisher
	topic string
	cb    *gobreaker.CircuitBreaker
	book  *positionBook
	l     *applogger.Logger
	now   func() time.Time
}

func NewKafkaBroker(pub MessagePublisher, topic string, bs BreakerSettings) *KafkaBroker {
	if bs.MaxFailures == 0 {
		bs.MaxFailures = 5
	}
	b := &KafkaBroker{pub: pub, topic: topic, book: newPositionBook(), now: time.Now}
	st := gobreaker.Settings{
		Name:        "kafka-broker",
		MaxRequests: bs.MaxRequests,
		Interval:    bs.Interval,
		Timeout:     bs.Timeout,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			return counts.ConsecutiveFailures >= bs.MaxFailures
		},
		OnStateChange: func(name string, from, to gobreaker.State) {
			if b.l != nil {
				b.l.Warn("circuit breaker state change",
					applogger.String("breaker", name),
					applogger.String("from", from.String()),
					applogger.String("to", to.String()),
				)
			}
		},
	}
	b.cb = gobreaker.NewCircuitBreaker(st)
	return b
}

// SetLogger injects a structured logger.
func (b *KafkaBroker) SetLogger(l *applogger.Logger) { b.l = l }

func (b *KafkaBroker) Shares(_ context.Context, instr models.Instrument) (int64, error) {
	return b.book.shares(instr), nil
}

func (b *KafkaBroker) SubmitOrder(ctx context.Context, instr models.Instrument, qty int64) (models.OrderHandle, error) {
	msg := OrderMessage{
		ID:         uuid.NewString(),
		Instrument: string(instr),
		Quantity:   qty,
		Side:       models.Order{Quantity: qty}.Side(),
		Time:       b.now().UTC(),
	}
	_, err := b.cb.Execute(func() (interface{}, error) {
		return nil, b.pub.Publish(traced(ctx), b.topic, []byte(instr), msg)
	})
	if err != nil {
		if errors.Is(err, gobreaker.ErrOpenState) || errors.Is(err, gobreaker.ErrTooManyRequests) {
			return "", fmt.Errorf("submit %s: %w", instr, ErrBrokerOpen)
		}
		return "", fmt.Errorf("submit %s: %w", instr, err)
	}
	b.book.apply(instr, qty)
	return models.OrderHandle(msg.ID), nil
}

// State reports the breaker state.
func (b *KafkaBroker) State() gobreaker.State { return b.cb.State() }

var _ domrepo.Broker = (*KafkaBroker)(nil)

// traced stamps the epoch carried by ctx as the Kafka trace id, so an epoch's orders and its
// report share one id.
func traced(ctx context.Context) context.Context {
	if epoch, ok := domrepo.EpochFromContext(ctx); ok {
		return pkgkafka.WithTraceID(ctx, fmt.Sprintf("epoch-%d", epoch))
	}
	return ctx
}
