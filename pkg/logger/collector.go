package logger

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"os"
	"sort"
	"sync"
	"time"
)

const (
	defaultCollectInterval  = 30 * time.Second
	defaultCollectThreshold = 100
	publishTimeout          = 10 * time.Second
)

// Publisher ships aggregated batches. *kafka.Producer satisfies it.
type Publisher interface {
	PublishMessage(ctx context.Context, topic string, payload interface{}) error
}

type CollectionConfig struct {
	TimeInterval   time.Duration
	CountThreshold int // distinct entries that force an early flush
	Topic          string
	Publisher      Publisher
}

// AggregatedLogEntry is one distinct (level, message, fields, caller) tuple with its
// occurrence count over a flush window.
type AggregatedLogEntry struct {
	Level     string                 `json:"level"`
	Message   string                 `json:"message"`
	Fields    map[string]interface{} `json:"fields"`
	Caller    string                 `json:"caller"`
	Count     int                    `json:"count"`
	FirstSeen time.Time              `json:"first_seen"`
	LastSeen  time.Time              `json:"last_seen"`

	seq uint64
}

// LogCollector deduplicates warn/error events and publishes them in batches, so a
// failing feed that logs the same error per bar produces one entry with a count.
type LogCollector struct {
	cfg     CollectionConfig
	mu      sync.Mutex
	entries map[string]*AggregatedLogEntry
	seq     uint64
	now     func() time.Time

	stop     chan struct{}
	loopDone sync.WaitGroup
	inflight sync.WaitGroup
}

func NewLogCollector(config *CollectionConfig) *LogCollector {
	cfg := *config
	if cfg.TimeInterval <= 0 {
		cfg.TimeInterval = defaultCollectInterval
	}
	if cfg.CountThreshold <= 0 {
		cfg.CountThreshold = defaultCollectThreshold
	}
	c := &LogCollector{
		cfg:     cfg,
		entries: make(map[string]*AggregatedLogEntry),
		now:     time.Now,
		stop:    make(chan struct{}),
	}
	c.loopDone.Add(1)
	go c.loop()
	return c
}

func (c *LogCollector) AddLog(level, message string, fields map[string]interface{}, caller string) {
	key := entryKey(level, message, fields, caller)
	now := c.now()

	c.mu.Lock()
	if e, ok := c.entries[key]; ok {
		e.Count++
		e.LastSeen = now
	} else {
		c.seq++
		c.entries[key] = &AggregatedLogEntry{
			Level: level, Message: message, Fields: fields, Caller: caller,
			Count: 1, FirstSeen: now, LastSeen: now, seq: c.seq,
		}
	}
	var batch []AggregatedLogEntry
	if len(c.entries) >= c.cfg.CountThreshold {
		batch = c.drainLocked()
	}
	c.mu.Unlock()

	if batch != nil {
		c.inflight.Add(1)
		go func() {
			defer c.inflight.Done()
			ctx, cancel := context.WithTimeout(context.Background(), publishTimeout)
			defer cancel()
			c.publish(ctx, batch)
		}()
	}
}

// Flush publishes whatever has been collected so far and waits for the send.
func (c *LogCollector) Flush(ctx context.Context) error {
	c.mu.Lock()
	batch := c.drainLocked()
	c.mu.Unlock()
	if batch == nil {
		return nil
	}
	return c.publish(ctx, batch)
}

// Close stops the flush loop, sends the final batch and waits for in-flight sends.
func (c *LogCollector) Close() {
	close(c.stop)
	c.loopDone.Wait()
	c.inflight.Wait()
}

func (c *LogCollector) loop() {
	defer c.loopDone.Done()
	t := time.NewTicker(c.cfg.TimeInterval)
	defer t.Stop()
	for {
		select {
		case <-t.C:
		case <-c.stop:
			ctx, cancel := context.WithTimeout(context.Background(), publishTimeout)
			_ = c.Flush(ctx)
			cancel()
			return
		}
		ctx, cancel := context.WithTimeout(context.Background(), publishTimeout)
		_ = c.Flush(ctx)
		cancel()
	}
}

// drainLocked returns entries ordered by first occurrence and resets the window.
func (c *LogCollector) drainLocked() []AggregatedLogEntry {
	if len(c.entries) == 0 {
		return nil
	}
	batch := make([]AggregatedLogEntry, 0, len(c.entries))
	for _, e := range c.entries {
		batch = append(batch, *e)
	}
	c.entries = make(map[string]*AggregatedLogEntry)
	sort.Slice(batch, func(i, j int) bool { return batch[i].seq < batch[j].seq })
	return batch
}

func (c *LogCollector) publish(ctx context.Context, batch []AggregatedLogEntry) error {
	if c.cfg.Publisher == nil {
		return nil
	}
	if err := c.cfg.Publisher.PublishMessage(ctx, c.cfg.Topic, batch); err != nil {
		// the logger itself feeds this collector, so failures go straight to stderr
		fmt.Fprintf(os.Stderr, "log collector: publish %d entries to %s: %v\n", len(batch), c.cfg.Topic, err)
		return err
	}
	return nil
}

// entryKey hashes the JSON form; encoding/json sorts map keys so equal fields hash equal.
func entryKey(level, message string, fields map[string]interface{}, caller string) string {
	b, _ := json.Marshal(struct {
		L string                 `json:"l"`
		M string                 `json:"m"`
		F map[string]interface{} `json:"f"`
		C string                 `json:"c"`
	}{level, message, fields, caller})
	sum := sha256.Sum256(b)
	return hex.EncodeToString(sum[:])
}
