package kafka

import (
	"context"
	"errors"
	"fmt"
	"math/rand"
	"sync"
	"time"

	applogger "OrgTrader/pkg/logger"

	"github.com/segmentio/kafka-go"
)

const (
	fetchTimeout  = 3 * time.Second
	commitTimeout = 2 * time.Second
	commitRetries = 3
)

// MessageHandler handles messages from one topic.
type MessageHandler interface {
	Topic() string
	Handle(context.Context, []byte) error
}

// messageReader is the subset of *kafka.Reader the consumer drives.
type messageReader interface {
	FetchMessage(ctx context.Context) (kafka.Message, error)
	CommitMessages(ctx context.Context, msgs ...kafka.Message) error
	Close() error
}

type messageWriter interface {
	WriteMessages(ctx context.Context, msgs ...kafka.Message) error
	Close() error
}

// Consumer reads one reader per registered topic into a bounded queue drained by a worker
// pool. A message is committed once handled, or once dead-lettered when a DLQ is set;
// without a DLQ a failed message stays uncommitted and is redelivered after a rebalance.
// Handlers run under a context that Stop cancels; a message interrupted that way is neither
// committed nor dead-lettered.
type Consumer struct {
	cfg      *ConsumerConfig
	handlers map[string]MessageHandler
	readers  map[string]messageReader
	dlq      messageWriter
	hook     ConsumerHook
	metrics  *consumerMetrics
	l        *applogger.Logger

	newReader  func(topic string) messageReader
	queue      chan kafka.Message
	stop       chan struct{}
	stopOnce   sync.Once
	wg         sync.WaitGroup
	handleCtx  context.Context
	cancelRuns context.CancelFunc
}

func NewConsumer(opts ...ConsumerOption) (*Consumer, error) {
	cfg, err := newConsumerConfig(opts)
	if err != nil {
		return nil, err
	}
	c := &Consumer{
		cfg:      cfg,
		handlers: make(map[string]MessageHandler),
		readers:  make(map[string]messageReader),
		hook:     NoopHook{},
		metrics:  newConsumerMetrics(cfg.Registerer),
		queue:    make(chan kafka.Message, cfg.BufferSize),
		stop:     make(chan struct{}),
	}
	c.handleCtx, c.cancelRuns = context.WithCancel(context.Background())
	c.newReader = func(topic string) messageReader {
		return kafka.NewReader(kafka.ReaderConfig{
			Brokers:     cfg.Brokers,
			Topic:       topic,
			GroupID:     cfg.GroupID,
			StartOffset: cfg.StartOffset,
			MinBytes:    cfg.MinBytes,
			MaxBytes:    cfg.MaxBytes,
		})
	}
	if cfg.DLQTopic != "" {
		c.dlq = &kafka.Writer{Addr: kafka.TCP(cfg.Brokers...), Topic: cfg.DLQTopic, Balancer: &kafka.Hash{}}
	}
	return c, nil
}

func (c *Consumer) SetLogger(l *applogger.Logger) { c.l = l }

// WithConsumerHook replaces the lifecycle hook. Call before Start.
func (c *Consumer) WithConsumerHook(h ConsumerHook) {
	if h != nil {
		c.hook = h
	}
}

func (c *Consumer) RegisterHandler(h MessageHandler) error {
	topic := h.Topic()
	if _, dup := c.handlers[topic]; dup {
		return fmt.Errorf("handler already registered for topic %s", topic)
	}
	c.handlers[topic] = h
	return nil
}

// Start opens the readers and launches fetchers and workers. It does not block.
func (c *Consumer) Start() error {
	if len(c.handlers) == 0 {
		return errors.New("no handlers registered")
	}
	for topic := range c.handlers {
		c.readers[topic] = c.newReader(topic)
	}
	for i := 0; i < c.cfg.WorkerCount; i++ {
		c.wg.Add(1)
		go c.work()
	}
	for topic, r := range c.readers {
		c.wg.Add(1)
		go c.fetch(topic, r)
	}
	c.info("kafka consumer started",
		applogger.String("group", c.cfg.GroupID),
		applogger.Int("topics", len(c.readers)),
		applogger.Int("workers", c.cfg.WorkerCount),
	)
	return nil
}

// Stop signals fetchers and workers, waits for them within ctx and closes the readers.
func (c *Consumer) Stop(ctx context.Context) error {
	var err error
	c.stopOnce.Do(func() {
		close(c.stop)
		c.cancelRuns()
		done := make(chan struct{})
		go func() {
			c.wg.Wait()
			close(done)
		}()
		select {
		case <-done:
		case <-ctx.Done():
			err = fmt.Errorf("timeout waiting for consumer to stop: %w", ctx.Err())
		}
		for topic, r := range c.readers {
			if cerr := r.Close(); cerr != nil {
				c.error("kafka consumer: close reader", cerr, applogger.String("topic", topic))
			}
		}
		if c.dlq != nil {
			if cerr := c.dlq.Close(); cerr != nil {
				c.error("kafka consumer: close dlq writer", cerr)
			}
		}
	})
	return err
}

func (c *Consumer) stopped() bool {
	select {
	case <-c.stop:
		return true
	default:
		return false
	}
}

func (c *Consumer) fetch(topic string, r messageReader) {
	defer c.wg.Done()
	for !c.stopped() {
		ctx, cancel := context.WithTimeout(context.Background(), fetchTimeout)
		msg, err := r.FetchMessage(ctx)
		cancel()
		if err != nil {
			if !errors.Is(err, context.DeadlineExceeded) {
				c.error("kafka consumer: fetch", err, applogger.String("topic", topic))
			}
			continue
		}
		// a full queue blocks the fetcher, which is the backpressure on the broker
		select {
		case c.queue <- msg:
			c.metrics.queueDepth.Set(float64(len(c.queue)))
		case <-c.stop:
			return
		}
	}
}

func (c *Consumer) work() {
	defer c.wg.Done()
	for {
		select {
		case <-c.stop:
			return
		case msg := <-c.queue:
			c.metrics.queueDepth.Set(float64(len(c.queue)))
			c.process(msg)
		}
	}
}

func (c *Consumer) process(msg kafka.Message) {
	h, ok := c.handlers[msg.Topic]
	if !ok {
		return
	}
	start := time.Now()
	defer func() {
		c.metrics.latency.WithLabelValues(msg.Topic).Observe(time.Since(start).Seconds())
	}()

	attempts, err := c.handleWithRetry(h, msg)
	if errors.Is(err, errStopped) {
		return
	}

	outcome := "ok"
	if err != nil {
		outcome = "failed"
		c.hook.OnError(context.Background(), msg.Topic, msg, msg.Value, err)
		c.error("kafka consumer: handle failed", err,
			applogger.String("topic", msg.Topic),
			applogger.Int64("offset", msg.Offset),
			applogger.Int("attempts", attempts),
		)
		if c.deadLetter(msg, err) {
			outcome = "dead_lettered"
		}
	}
	c.metrics.handled.WithLabelValues(msg.Topic, outcome).Inc()

	if outcome != "failed" {
		c.commit(msg)
	}
}

var errStopped = errors.New("consumer stopped")

// handleWithRetry runs the hook chain and handler up to RetryMax+1 times.
func (c *Consumer) handleWithRetry(h MessageHandler, msg kafka.Message) (int, error) {
	var err error
	for attempt := 1; ; attempt++ {
		err = c.handleOnce(h, msg)
		if err != nil && c.stopping() {
			return attempt, errStopped
		}
		if err == nil || attempt > c.cfg.RetryMax {
			return attempt, err
		}
		var hookErr *HookError
		if errors.As(err, &hookErr) {
			// hooks reject deterministically; retrying would only repeat the rejection
			return attempt, err
		}
		select {
		case <-time.After(backoffWithJitter(c.cfg.BackoffMin, c.cfg.BackoffMax, attempt)):
		case <-c.stop:
			return attempt, errStopped
		}
	}
}

func (c *Consumer) stopping() bool {
	select {
	case <-c.stop:
		return true
	default:
		return false
	}
}

func (c *Consumer) handleOnce(h MessageHandler, msg kafka.Message) (err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("handler panic: %v", r)
		}
	}()
	ctx, km, data, err := c.hook.BeforeHandle(c.handleCtx, msg.Topic, msg, msg.Value)
	if err != nil {
		return err
	}
	err = h.Handle(ctx, data)
	c.hook.AfterHandle(ctx, msg.Topic, km, data, err)
	return err
}

// deadLetter forwards msg with its origin and failure in headers. It reports whether the
// message reached the DLQ.
func (c *Consumer) deadLetter(msg kafka.Message, cause error) bool {
	if c.dlq == nil {
		return false
	}
	headers := append([]kafka.Header{
		{Key: "source_topic", Value: []byte(msg.Topic)},
		{Key: "source_offset", Value: []byte(fmt.Sprint(msg.Offset))},
		{Key: "error", Value: []byte(cause.Error())},
	}, msg.Headers...)
	err := c.dlq.WriteMessages(context.Background(), kafka.Message{
		Key:     msg.Key,
		Value:   msg.Value,
		Time:    time.Now(),
		Headers: headers,
	})
	if err != nil {
		c.error("kafka consumer: dlq write", err, applogger.String("dlq", c.cfg.DLQTopic))
		return false
	}
	return true
}

func (c *Consumer) commit(msg kafka.Message) {
	r := c.readers[msg.Topic]
	if r == nil {
		return
	}
	var err error
	for attempt := 1; attempt <= commitRetries; attempt++ {
		ctx, cancel := context.WithTimeout(context.Background(), commitTimeout)
		err = r.CommitMessages(ctx, msg)
		cancel()
		if err == nil {
			return
		}
		time.Sleep(backoffWithJitter(50*time.Millisecond, 500*time.Millisecond, attempt))
	}
	c.error("kafka consumer: commit", err, applogger.String("topic", msg.Topic), applogger.Int64("offset", msg.Offset))
}

func (c *Consumer) info(msg string, fields ...applogger.Field) {
	if c.l != nil {
		c.l.Info(msg, fields...)
	}
}

func (c *Consumer) error(msg string, err error, fields ...applogger.Field) {
	if c.l != nil {
		c.l.Error(msg, append(fields, applogger.Error(err))...)
	}
}

// backoffWithJitter doubles min per attempt up to max and subtracts up to half as jitter.
func backoffWithJitter(min, max time.Duration, attempt int) time.Duration {
	if min <= 0 {
		min = 50 * time.Millisecond
	}
	if max < min {
		max = min
	}
	d := max
	if attempt < 32 {
		if exp := min << uint(attempt-1); exp > 0 && exp < max {
			d = exp
		}
	}
	half := int64(d / 2)
	if half <= 0 {
		return d
	}
	return d - time.Duration(rand.Int63n(half))
}
