package wsfeed

import (
	"context"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/gorilla/websocket"

	"OrgTrader/internal/domain/models"
	domrepo "OrgTrader/internal/domain/repository"
)

type barRecorder struct {
	mu   sync.Mutex
	bars []models.Bar
	got  chan struct{}
}

func (r *barRecorder) HandleBar(_ context.Context, b models.Bar) error {
	r.mu.Lock()
	r.bars = append(r.bars, b)
	r.mu.Unlock()
	select {
	case r.got <- struct{}{}:
	default:
	}
	return nil
}

func TestDecodeTradeFrame(t *testing.T) {
	s := New("ws://unused", nil, nil, WithTimeframe(domrepo.TF1m))
	bars, err := s.decode([]byte(`{"type":"trade","data":[{"s":"AAA","p":10.5,"v":1,"t":1700000012345},{"s":"","p":1,"t":1}]}`))
	if err != nil {
		t.Fatalf("decode: %v", err)
	}
	if len(bars) != 1 {
		t.Fatalf("expected 1 bar, got %d", len(bars))
	}
	if bars[0].Time.Second() != 0 || bars[0].Close != 10.5 {
		t.Fatalf("unexpected bar %+v", bars[0])
	}

	if _, err := s.decode([]byte(`{"type":"ping"}`)); err == nil {
		t.Fatalf("expected ping frame to be skipped")
	}
}

func TestDialURLAddsToken(t *testing.T) {
	s := New("wss://example.com/stream?x=1", nil, nil, WithToken("secret"))
	u, err := s.dialURL()
	if err != nil {
		t.Fatalf("dialURL: %v", err)
	}
	if !strings.Contains(u, "token=secret") || !strings.Contains(u, "x=1") {
		t.Fatalf("unexpected url %s", u)
	}
}

func TestStreamSubscribesAndDeliversBars(t *testing.T) {
	subs := make(chan string, 4)
	upgrader := websocket.Upgrader{}
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		conn, err := upgrader.Upgrade(w, r, nil)
		if err != nil {
			return
		}
		defer conn.Close()
		for i := 0; i < 2; i++ {
			var m map[string]string
			if err := conn.ReadJSON(&m); err != nil {
				return
			}
			subs <- m["symbol"]
		}
		_ = conn.WriteMessage(websocket.TextMessage, []byte(`{"type":"trade","data":[{"s":"AAA","p":10,"t":1700000000000}]}`))
		for {
			if _, _, err := conn.ReadMessage(); err != nil {
				return
			}
		}
	}))
	defer srv.Close()

	rec := &barRecorder{got: make(chan struct{}, 1)}
	wsURL := "ws" + strings.TrimPrefix(srv.URL, "http")
	s := New(wsURL, []string{"AAA", "BBB"}, rec, WithReconnectDelay(10*time.Millisecond))

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- s.Run(ctx) }()

	select {
	case <-rec.got:
	case <-time.After(3 * time.Second):
		t.Fatalf("no bar received")
	}
	if !s.IsConnected() {
		t.Fatalf("expected stream to be connected")
	}
	cancel()

	select {
	case err := <-done:
		if err != nil {
			t.Fatalf("run: %v", err)
		}
	case <-time.After(3 * time.Second):
		t.Fatalf("run did not stop")
	}

	if got := []string{<-subs, <-subs}; got[0] != "AAA" || got[1] != "BBB" {
		t.Fatalf("unexpected subscriptions %v", got)
	}
	rec.mu.Lock()
	defer rec.mu.Unlock()
	if rec.bars[0].Instrument != "AAA" {
		t.Fatalf("unexpected bar %+v", rec.bars[0])
	}
}

func TestRunRetriesFailedDials(t *testing.T) {
	var dials atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		dials.Add(1)
		http.Error(w, "unavailable", http.StatusServiceUnavailable)
	}))
	defer srv.Close()

	wsURL := "ws" + strings.TrimPrefix(srv.URL, "http")
	s := New(wsURL, []string{"AAA"}, &barRecorder{got: make(chan struct{}, 1)},
		WithReconnectDelay(5*time.Millisecond), WithReconnectMax(20*time.Millisecond))

	ctx, cancel := context.WithTimeout(context.Background(), 500*time.Millisecond)
	defer cancel()
	if err := s.Run(ctx); err != nil {
		t.Fatalf("run: %v", err)
	}
	if n := dials.Load(); n < 3 {
		t.Fatalf("expected repeated dials, got %d", n)
	}
	if s.IsConnected() {
		t.Fatalf("stream must not report a connection")
	}
}
