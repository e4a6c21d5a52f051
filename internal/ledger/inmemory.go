package ledger

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/google/uuid"
)

type inMemoryLedger struct {
	mu        sync.RWMutex
	receipts  map[string]Receipt
	purchases []Purchase
}

// NewInMemory creates a concurrency-safe in-memory ledger useful for unit tests.
func NewInMemory() Ledger {
	return &inMemoryLedger{receipts: make(map[string]Receipt)}
}

func (l *inMemoryLedger) RecordPurchase(_ context.Context, p Purchase) (Receipt, error) {
	if p.Reference == "" {
		return Receipt{}, errors.New("purchase reference is required")
	}
	if p.Amount.IsNegative() {
		return Receipt{}, errors.New("amount must not be negative")
	}

	l.mu.Lock()
	defer l.mu.Unlock()

	if res, exists := l.receipts[p.Reference]; exists {
		return res, ErrDuplicateTransaction
	}

	res := Receipt{
		ID:         uuid.NewString(),
		Reference:  p.Reference,
		Status:     StatusCompleted,
		RecordedAt: time.Now().UTC(),
	}
	l.receipts[p.Reference] = res
	l.purchases = append(l.purchases, p)
	return res, nil
}

func (l *inMemoryLedger) Receipt(_ context.Context, reference string) (Receipt, error) {
	l.mu.RLock()
	defer l.mu.RUnlock()
	res, ok := l.receipts[reference]
	if !ok {
		return Receipt{}, ErrNotFound
	}
	return res, nil
}
