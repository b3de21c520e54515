// Package journal posts balanced double-entry ledger lines for the finance
// core. It carries only what the ingestion channel needs; the full general
// ledger lives in the accounting module.
package journal

import (
	"context"
	"errors"
	"math"
	"time"
)

// balanceTolerance is half a currency minor unit; debits and credits that
// differ by more are rejected.
const balanceTolerance = 0.005

var (
	// ErrUnbalanced indicates debits and credits do not match.
	ErrUnbalanced = errors.New("journal: entry debits and credits do not balance")
	// ErrNoLines indicates an entry without lines.
	ErrNoLines = errors.New("journal: entry requires at least two lines")
)

// Store persists entries atomically.
type Store interface {
	InsertEntry(ctx context.Context, input PostInput) (*Entry, error)
}

// Service validates and posts entries.
type Service struct {
	store Store
}

// NewService builds a Service instance.
func NewService(store Store) *Service {
	return &Service{store: store}
}

// Post validates the entry balances and persists it with its lines in one
// transaction. The system never invents a plug entry; unbalanced input fails.
func (s *Service) Post(ctx context.Context, input PostInput) (*Entry, error) {
	if len(input.Lines) < 2 {
		return nil, ErrNoLines
	}
	var debits, credits float64
	for _, line := range input.Lines {
		if line.Debit < 0 || line.Credit < 0 {
			return nil, ErrUnbalanced
		}
		debits += line.Debit
		credits += line.Credit
	}
	if math.Abs(debits-credits) > balanceTolerance {
		return nil, ErrUnbalanced
	}
	if input.Date.IsZero() {
		input.Date = time.Now()
	}
	return s.store.InsertEntry(ctx, input)
}
