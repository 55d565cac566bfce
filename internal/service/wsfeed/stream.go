package wsfeed

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/url"
	"sync"
	"time"

	"github.com/gorilla/websocket"
	"github.com/jpillora/backoff"

	"OrgTrader/internal/domain/models"
	domrepo "OrgTrader/internal/domain/repository"
	applogger "OrgTrader/pkg/logger"
)

// BarHandler receives every bar decoded from the stream.
type BarHandler interface {
	HandleBar(ctx context.Context, bar models.Bar) error
}

// Stream subscribes to a trade websocket and turns trades into bars of one timeframe.
// The last trade price within a bar is its close.
type Stream struct {
	url            string
	token          string
	symbols        []string
	tf             domrepo.Timeframe
	reconnectDelay time.Duration
	reconnectMax   time.Duration
	pingInterval   time.Duration
	dialer         *websocket.Dialer
	handler        BarHandler
	metrics        domrepo.Metrics
	l              *applogger.Logger

	mu        sync.RWMutex
	connected bool
}

type Option func(*Stream)

func WithToken(token string) Option { return func(s *Stream) { s.token = token } }

func WithTimeframe(tf domrepo.Timeframe) Option { return func(s *Stream) { s.tf = tf } }

func WithReconnectDelay(d time.Duration) Option {
	return func(s *Stream) {
		if d > 0 {
			s.reconnectDelay = d
		}
	}
}

// WithReconnectMax caps the reconnect delay, which doubles after each session that
// never got connected.
func WithReconnectMax(d time.Duration) Option {
	return func(s *Stream) {
		if d > 0 {
			s.reconnectMax = d
		}
	}
}

func WithPingInterval(d time.Duration) Option {
	return func(s *Stream) {
		if d > 0 {
			s.pingInterval = d
		}
	}
}

func WithMetrics(m domrepo.Metrics) Option { return func(s *Stream) { s.metrics = m } }

func WithLogger(l *applogger.Logger) Option { return func(s *Stream) { s.l = l } }

// New creates a stream for symbols at wsURL.
func New(wsURL string, symbols []string, handler BarHandler, opts ...Option) *Stream {
	s := &Stream{
		url:            wsURL,
		symbols:        symbols,
		tf:             domrepo.TF1m,
		reconnectDelay: 5 * time.Second,
		reconnectMax:   2 * time.Minute,
		pingInterval:   30 * time.Second,
		dialer:         websocket.DefaultDialer,
		handler:        handler,
	}
	for _, o := range opts {
		o(s)
	}
	return s
}

// Run connects and streams until ctx is cancelled, reconnecting after every failure.
func (s *Stream) Run(ctx context.Context) error {
	b := &backoff.Backoff{Min: s.reconnectDelay, Max: s.reconnectMax, Factor: 2, Jitter: true}
	if b.Max < b.Min {
		b.Max = b.Min
	}
	for {
		connected, err := s.session(ctx)
		if ctx.Err() != nil {
			return nil
		}
		if connected {
			b.Reset()
		}
		delay := b.Duration()
		if s.metrics != nil {
			s.metrics.RecordError("ws_session")
		}
		if s.l != nil {
			s.l.Warn("websocket session ended, reconnecting",
				applogger.Error(err),
				applogger.Duration("delay", delay),
			)
		}
		select {
		case <-ctx.Done():
			return nil
		case <-time.After(delay):
		}
	}
}

// IsConnected reports whether a session is live.
func (s *Stream) IsConnected() bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.connected
}

func (s *Stream) setConnected(v bool) {
	s.mu.Lock()
	s.connected = v
	s.mu.Unlock()
}

func (s *Stream) dialURL() (string, error) {
	if s.token == "" {
		return s.url, nil
	}
	u, err := url.Parse(s.url)
	if err != nil {
		return "", err
	}
	q := u.Query()
	q.Set("token", s.token)
	u.RawQuery = q.Encode()
	return u.String(), nil
}

func (s *Stream) session(ctx context.Context) (bool, error) {
	u, err := s.dialURL()
	if err != nil {
		return false, fmt.Errorf("websocket url: %w", err)
	}
	conn, _, err := s.dialer.DialContext(ctx, u, nil)
	if err != nil {
		return false, fmt.Errorf("websocket connect: %w", err)
	}
	defer conn.Close()

	for _, sym := range s.symbols {
		if err := conn.WriteJSON(map[string]string{"type": "subscribe", "symbol": sym}); err != nil {
			return false, fmt.Errorf("subscribe %s: %w", sym, err)
		}
	}
	s.setConnected(true)
	defer s.setConnected(false)
	if s.l != nil {
		s.l.Info("websocket connected", applogger.Strings("symbols", s.symbols))
	}

	sctx, cancel := context.WithCancel(ctx)
	defer cancel()
	go s.keepalive(sctx, conn)

	for {
		_, b, err := conn.ReadMessage()
		if err != nil {
			return true, fmt.Errorf("websocket read: %w", err)
		}
		bars, err := s.decode(b)
		if err != nil {
			if s.l != nil {
				s.l.Debug("websocket frame skipped", applogger.Error(err))
			}
			continue
		}
		for _, bar := range bars {
			if err := s.handler.HandleBar(ctx, bar); err != nil {
				return true, fmt.Errorf("handle bar: %w", err)
			}
		}
	}
}

// keepalive pings on an interval and closes conn once ctx ends so ReadMessage returns.
func (s *Stream) keepalive(ctx context.Context, conn *websocket.Conn) {
	ticker := time.NewTicker(s.pingInterval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			_ = conn.Close()
			return
		case <-ticker.C:
			deadline := time.Now().Add(s.pingInterval / 2)
			if err := conn.WriteControl(websocket.PingMessage, nil, deadline); err != nil {
				_ = conn.Close()
				return
			}
		}
	}
}

type trade struct {
	S string  `json:"s"`
	P float64 `json:"p"`
	V float64 `json:"v"`
	T int64   `json:"t"` // ms
}

type frame struct {
	Type string  `json:"type"`
	Data []trade `json:"data"`
}

var errNotTrade = errors.New("not a trade frame")

func (s *Stream) decode(b []byte) ([]models.Bar, error) {
	var f frame
	if err := json.Unmarshal(b, &f); err != nil {
		return nil, err
	}
	if f.Type != "trade" {
		return nil, errNotTrade
	}
	bars := make([]models.Bar, 0, len(f.Data))
	for _, d := range f.Data {
		if d.S == "" || d.P <= 0 {
			continue
		}
		bars = append(bars, models.Bar{
			Instrument: models.Instrument(d.S),
			Close:      d.P,
			Time:       s.tf.Truncate(time.UnixMilli(d.T)),
		})
	}
	return bars, nil
}
