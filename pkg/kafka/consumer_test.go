package kafka

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/segmentio/kafka-go"
)

type fakeReader struct {
	msgs chan kafka.Message

	mu        sync.Mutex
	committed []int64
	closed    bool
}

func newFakeReader(msgs ...kafka.Message) *fakeReader {
	r := &fakeReader{msgs: make(chan kafka.Message, len(msgs))}
	for _, m := range msgs {
		r.msgs <- m
	}
	return r
}

func (r *fakeReader) FetchMessage(ctx context.Context) (kafka.Message, error) {
	select {
	case m := <-r.msgs:
		return m, nil
	case <-time.After(10 * time.Millisecond):
		return kafka.Message{}, context.DeadlineExceeded
	case <-ctx.Done():
		return kafka.Message{}, ctx.Err()
	}
}

func (r *fakeReader) CommitMessages(_ context.Context, msgs ...kafka.Message) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, m := range msgs {
		r.committed = append(r.committed, m.Offset)
	}
	return nil
}

func (r *fakeReader) Close() error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.closed = true
	return nil
}

func (r *fakeReader) commits() []int64 {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]int64(nil), r.committed...)
}

type fakeWriter struct {
	mu   sync.Mutex
	msgs []kafka.Message
}

func (w *fakeWriter) WriteMessages(_ context.Context, msgs ...kafka.Message) error {
	w.mu.Lock()
	defer w.mu.Unlock()
	w.msgs = append(w.msgs, msgs...)
	return nil
}

func (w *fakeWriter) Close() error { return nil }

type scriptedHandler struct {
	topic   string
	failFor int // calls that fail before succeeding; -1 fails forever

	mu    sync.Mutex
	calls int
	done  chan struct{}
}

func (h *scriptedHandler) Topic() string { return h.topic }

func (h *scriptedHandler) Handle(context.Context, []byte) error {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.calls++
	if h.failFor < 0 || h.calls <= h.failFor {
		return errors.New("not yet")
	}
	close(h.done)
	return nil
}

func (h *scriptedHandler) callCount() int {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.calls
}

func newTestConsumer(t *testing.T, r *fakeReader, opts ...ConsumerOption) (*Consumer, *prometheus.Registry) {
	t.Helper()
	reg := prometheus.NewRegistry()
	base := []ConsumerOption{
		WithConsumerBrokers([]string{"localhost:9092"}),
		WithConsumerRetry(2, time.Millisecond, 2*time.Millisecond),
		WithConsumerRegisterer(reg),
	}
	c, err := NewConsumer(append(base, opts...)...)
	if err != nil {
		t.Fatalf("new consumer: %v", err)
	}
	c.newReader = func(string) messageReader { return r }
	return c, reg
}

func stopConsumer(t *testing.T, c *Consumer) {
	t.Helper()
	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()
	if err := c.Stop(ctx); err != nil {
		t.Fatalf("stop: %v", err)
	}
}

func waitFor(t *testing.T, cond func() bool) {
	t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	for !cond() {
		if time.Now().After(deadline) {
			t.Fatalf("condition not met in time")
		}
		time.Sleep(5 * time.Millisecond)
	}
}

func TestConsumerRetriesThenCommits(t *testing.T) {
	r := newFakeReader(kafka.Message{Topic: "bars", Offset: 7, Value: []byte(`{}`)})
	c, reg := newTestConsumer(t, r)
	h := &scriptedHandler{topic: "bars", failFor: 1, done: make(chan struct{})}
	if err := c.RegisterHandler(h); err != nil {
		t.Fatalf("register: %v", err)
	}
	if err := c.RegisterHandler(h); err == nil {
		t.Fatalf("expected duplicate handler error")
	}
	if err := c.Start(); err != nil {
		t.Fatalf("start: %v", err)
	}
	waitFor(t, func() bool { return len(r.commits()) == 1 })
	stopConsumer(t, c)

	if h.callCount() != 2 || r.commits()[0] != 7 {
		t.Fatalf("calls=%d commits=%v", h.callCount(), r.commits())
	}
	if got := testutil.ToFloat64(c.metrics.handled.WithLabelValues("bars", "ok")); got != 1 {
		t.Fatalf("ok counter %v", got)
	}
	if n, _ := testutil.GatherAndCount(reg, "orgtrader_kafka_consumer_messages_total"); n != 1 {
		t.Fatalf("expected consumer metrics on the injected registry, got %d series", n)
	}
	if !r.closed {
		t.Fatalf("reader not closed")
	}
}

func TestConsumerDeadLettersAndCommits(t *testing.T) {
	r := newFakeReader(kafka.Message{Topic: "bars", Offset: 3, Key: []byte("AAA"), Value: []byte(`bad`)})
	c, _ := newTestConsumer(t, r, WithConsumerDLQ("bars.dlq"))
	dlq := &fakeWriter{}
	c.dlq = dlq
	h := &scriptedHandler{topic: "bars", failFor: -1, done: make(chan struct{})}
	_ = c.RegisterHandler(h)
	_ = c.Start()
	waitFor(t, func() bool { return len(r.commits()) == 1 })
	stopConsumer(t, c)

	if h.callCount() != 3 {
		t.Fatalf("expected 1 attempt plus 2 retries, got %d", h.callCount())
	}
	if len(dlq.msgs) != 1 || string(dlq.msgs[0].Key) != "AAA" {
		t.Fatalf("unexpected dlq messages %+v", dlq.msgs)
	}
	hdr := map[string]string{}
	for _, h := range dlq.msgs[0].Headers {
		hdr[h.Key] = string(h.Value)
	}
	if hdr["source_topic"] != "bars" || hdr["source_offset"] != "3" || hdr["error"] != "not yet" {
		t.Fatalf("unexpected headers %v", hdr)
	}
}

func TestConsumerLeavesFailedMessageUncommittedWithoutDLQ(t *testing.T) {
	r := newFakeReader(kafka.Message{Topic: "bars", Offset: 1})
	c, _ := newTestConsumer(t, r)
	_ = c.RegisterHandler(&scriptedHandler{topic: "bars", failFor: -1, done: make(chan struct{})})
	_ = c.Start()
	waitFor(t, func() bool {
		return testutil.ToFloat64(c.metrics.handled.WithLabelValues("bars", "failed")) == 1
	})
	stopConsumer(t, c)
	if len(r.commits()) != 0 {
		t.Fatalf("failed message must not be committed: %v", r.commits())
	}
}

func TestConsumerDoesNotRetryHookRejection(t *testing.T) {
	r := newFakeReader(kafka.Message{Topic: "bars", Offset: 1, Value: []byte("0123456789")})
	c, _ := newTestConsumer(t, r)
	c.WithConsumerHook(NewHookChain(MaxPayloadHook(4)))
	h := &scriptedHandler{topic: "bars", done: make(chan struct{})}
	_ = c.RegisterHandler(h)
	_ = c.Start()
	waitFor(t, func() bool {
		return testutil.ToFloat64(c.metrics.handled.WithLabelValues("bars", "failed")) == 1
	})
	stopConsumer(t, c)
	if h.callCount() != 0 {
		t.Fatalf("handler must not run for rejected payloads")
	}
}

func TestConsumerStartWithoutHandlers(t *testing.T) {
	c, _ := newTestConsumer(t, newFakeReader())
	if err := c.Start(); err == nil {
		t.Fatalf("expected error")
	}
}

type blockingHandler struct {
	entered chan struct{}
}

func (h *blockingHandler) Topic() string { return "bars" }

func (h *blockingHandler) Handle(ctx context.Context, _ []byte) error {
	close(h.entered)
	<-ctx.Done()
	return ctx.Err()
}

func TestConsumerStopCancelsBlockedHandler(t *testing.T) {
	r := newFakeReader(kafka.Message{Topic: "bars", Offset: 5})
	c, _ := newTestConsumer(t, r, WithConsumerDLQ("bars.dlq"))
	dlq := &fakeWriter{}
	c.dlq = dlq
	h := &blockingHandler{entered: make(chan struct{})}
	_ = c.RegisterHandler(h)
	_ = c.Start()
	<-h.entered

	start := time.Now()
	stopConsumer(t, c)
	if d := time.Since(start); d > 500*time.Millisecond {
		t.Fatalf("stop waited %v for a blocked handler", d)
	}
	if len(r.commits()) != 0 || len(dlq.msgs) != 0 {
		t.Fatalf("interrupted message must be neither committed nor dead-lettered: commits=%v dlq=%d", r.commits(), len(dlq.msgs))
	}
}
