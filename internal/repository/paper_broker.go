package repository

import (
	"context"
	"sync"
	"time"

	"github.com/google/uuid"

	"OrgTrader/internal/domain/models"
	domrepo "OrgTrader/internal/domain/repository"
)

// Fill is an order the paper broker executed in full.
type Fill struct {
	Handle     models.OrderHandle `json:"handle"`
	Instrument models.Instrument  `json:"instrument"`
	Quantity   int64              `json:"quantity"`
	Time       time.Time          `json:"time"`
}

// positionBook tracks signed share counts per instrument.
type positionBook struct {
	mu       sync.RWMutex
	holdings map[models.Instrument]int64
}

func newPositionBook() *positionBook {
	return &positionBook{holdings: make(map[models.Instrument]int64)}
}

func (b *positionBook) shares(instr models.Instrument) int64 {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return b.holdings[instr]
}

func (b *positionBook) apply(instr models.Instrument, qty int64) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.holdings[instr] += qty
	if b.holdings[instr] == 0 {
		delete(b.holdings, instr)
	}
}

func (b *positionBook) snapshot() map[models.Instrument]int64 {
	b.mu.RLock()
	defer b.mu.RUnlock()
	out := make(map[models.Instrument]int64, len(b.holdings))
	for k, v := range b.holdings {
		out[k] = v
	}
	return out
}

// PaperBroker fills every order immediately and in full. Short positions are allowed.
type PaperBroker struct {
	book  *positionBook
	mu    sync.Mutex
	fills []Fill
	now   func() time.Time
}

func NewPaperBroker() *PaperBroker {
	return &PaperBroker{book: newPositionBook(), now: time.Now}
}

func (b *PaperBroker) Shares(_ context.Context, instr models.Instrument) (int64, error) {
	return b.book.shares(instr), nil
}

func (b *PaperBroker) SubmitOrder(_ context.Context, instr models.Instrument, qty int64) (models.OrderHandle, error) {
	h := models.OrderHandle(uuid.NewString())
	b.book.apply(instr, qty)

	b.mu.Lock()
	b.fills = append(b.fills, Fill{Handle: h, Instrument: instr, Quantity: qty, Time: b.now()})
	b.mu.Unlock()
	return h, nil
}

// Holdings returns a copy of the current positions.
func (b *PaperBroker) Holdings() map[models.Instrument]int64 { return b.book.snapshot() }

// Fills returns a copy of the executed orders in submission order.
func (b *PaperBroker) Fills() []Fill {
	b.mu.Lock()
	defer b.mu.Unlock()
	return append([]Fill(nil), b.fills...)
}

var _ domrepo.Broker = (*PaperBroker)(nil)
