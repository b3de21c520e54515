// Package financetest provides an in-memory finance store used by package
// tests across the finance core. Transactions serialize on one mutex and
// roll back by snapshot, matching the store contract's atomicity guarantees.
package financetest

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/NCGHoldings/StoresONE-sub004/internal/finance"
)

// Store is an in-memory implementation of the finance store ports.
type Store struct {
	mu sync.Mutex

	invoices       map[int64]finance.Invoice
	instruments    map[int64]finance.Instrument
	allocations    []finance.Allocation
	counterparties map[int64]finance.Counterparty
	byExternalRef  map[string]int64
	sequences      map[string]int64

	nextInvoiceID    int64
	nextInstrumentID int64
	nextAllocationID int64
}

// NewStore constructs an empty store.
func NewStore() *Store {
	return &Store{
		invoices:       make(map[int64]finance.Invoice),
		instruments:    make(map[int64]finance.Instrument),
		counterparties: make(map[int64]finance.Counterparty),
		byExternalRef:  make(map[string]int64),
		sequences:      make(map[string]int64),
	}
}

// AddCounterparty seeds a counterparty.
func (s *Store) AddCounterparty(cp finance.Counterparty) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.counterparties[cp.ID] = cp
}

// SeedInvoice inserts an invoice as given, bypassing creation defaults.
func (s *Store) SeedInvoice(inv finance.Invoice) finance.Invoice {
	s.mu.Lock()
	defer s.mu.Unlock()
	if inv.ID == 0 {
		s.nextInvoiceID++
		inv.ID = s.nextInvoiceID
	} else if inv.ID > s.nextInvoiceID {
		s.nextInvoiceID = inv.ID
	}
	s.invoices[inv.ID] = inv
	return inv
}

// SeedInstrument inserts an instrument as given.
func (s *Store) SeedInstrument(ins finance.Instrument) finance.Instrument {
	s.mu.Lock()
	defer s.mu.Unlock()
	if ins.ID == 0 {
		s.nextInstrumentID++
		ins.ID = s.nextInstrumentID
	} else if ins.ID > s.nextInstrumentID {
		s.nextInstrumentID = ins.ID
	}
	s.instruments[ins.ID] = ins
	if ins.ExternalRef != "" {
		s.byExternalRef[ins.ExternalRef] = ins.ID
	}
	return ins
}

// Allocations returns a copy of all allocation rows.
func (s *Store) Allocations() []finance.Allocation {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]finance.Allocation, len(s.allocations))
	copy(out, s.allocations)
	return out
}

// InstrumentCount reports how many instruments exist.
func (s *Store) InstrumentCount() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.instruments)
}

// --- Repository surface ---

func (s *Store) CreateInvoice(ctx context.Context, input finance.CreateInvoiceInput) (*finance.Invoice, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	number := input.Number
	if number == "" {
		number = s.nextNumberLocked("INV", input.IssuedAt)
	}
	issuedAt := input.IssuedAt
	if issuedAt.IsZero() {
		issuedAt = time.Now()
	}
	s.nextInvoiceID++
	inv := finance.Invoice{
		ID:             s.nextInvoiceID,
		Number:         number,
		CounterpartyID: input.CounterpartyID,
		Direction:      input.Direction,
		OrderRef:       input.OrderRef,
		Currency:       input.Currency,
		Subtotal:       input.Subtotal,
		TaxAmount:      input.TaxAmount,
		Total:          input.Subtotal + input.TaxAmount,
		Status:         finance.InvoiceStatusDraft,
		IssuedAt:       issuedAt,
		DueAt:          input.DueDate,
		CreatedBy:      input.CreatedBy,
		CreatedAt:      time.Now(),
		UpdatedAt:      time.Now(),
	}
	s.invoices[inv.ID] = inv
	return &inv, nil
}

func (s *Store) GetInvoice(ctx context.Context, id int64) (*finance.Invoice, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.getInvoiceLocked(id)
}

func (s *Store) GetInvoiceByNumber(ctx context.Context, number string) (*finance.Invoice, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, inv := range s.invoices {
		if inv.Number == number {
			cp := inv
			return &cp, nil
		}
	}
	return nil, finance.ErrNotFound
}

func (s *Store) ListInvoices(ctx context.Context, filter finance.InvoiceFilter) ([]finance.Invoice, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []finance.Invoice
	for id := int64(1); id <= s.nextInvoiceID; id++ {
		inv, ok := s.invoices[id]
		if !ok {
			continue
		}
		if filter.CounterpartyID > 0 && inv.CounterpartyID != filter.CounterpartyID {
			continue
		}
		if filter.Direction != "" && inv.Direction != filter.Direction {
			continue
		}
		if filter.Status != "" && inv.Status != filter.Status {
			continue
		}
		if filter.OpenOnly && !inv.Open() {
			continue
		}
		if !filter.IssuedBefore.IsZero() && !inv.IssuedAt.Before(filter.IssuedBefore) {
			continue
		}
		if !filter.IssuedFrom.IsZero() && inv.IssuedAt.Before(filter.IssuedFrom) {
			continue
		}
		if !filter.IssuedTo.IsZero() && inv.IssuedAt.After(filter.IssuedTo) {
			continue
		}
		out = append(out, inv)
	}
	sortByIssued(out, func(v finance.Invoice) (time.Time, int64) { return v.IssuedAt, v.ID })
	return out, nil
}

func (s *Store) UpdateInvoiceStatus(ctx context.Context, id int64, from, to finance.InvoiceStatus) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	inv, ok := s.invoices[id]
	if !ok || inv.Status != from {
		return finance.ErrInvalidStatus
	}
	inv.Status = to
	inv.UpdatedAt = time.Now()
	s.invoices[id] = inv
	return nil
}

func (s *Store) CreateInstrument(ctx context.Context, input finance.CreateInstrumentInput) (*finance.Instrument, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if input.ExternalRef != "" {
		if _, exists := s.byExternalRef[input.ExternalRef]; exists {
			return nil, finance.ErrDuplicateExternalRef
		}
	}
	number := input.Number
	if number == "" {
		number = s.nextNumberLocked(kindPrefix(input.Kind), input.IssuedAt)
	}
	issuedAt := input.IssuedAt
	if issuedAt.IsZero() {
		issuedAt = time.Now()
	}
	status := input.Status
	if status == "" {
		status = finance.InstrumentStatusPending
	}
	s.nextInstrumentID++
	ins := finance.Instrument{
		ID:              s.nextInstrumentID,
		Number:          number,
		Kind:            input.Kind,
		CounterpartyID:  input.CounterpartyID,
		Direction:       input.Direction,
		LinkedInvoiceID: input.LinkedInvoiceID,
		OriginalAmount:  input.OriginalAmount,
		Status:          status,
		Reason:          input.Reason,
		ExternalRef:     input.ExternalRef,
		IssuedAt:        issuedAt,
		CreatedBy:       input.CreatedBy,
		CreatedAt:       time.Now(),
		UpdatedAt:       time.Now(),
	}
	s.instruments[ins.ID] = ins
	if ins.ExternalRef != "" {
		s.byExternalRef[ins.ExternalRef] = ins.ID
	}
	return &ins, nil
}

func (s *Store) GetInstrument(ctx context.Context, id int64) (*finance.Instrument, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.getInstrumentLocked(id)
}

func (s *Store) GetInstrumentByExternalRef(ctx context.Context, externalRef string) (*finance.Instrument, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	id, ok := s.byExternalRef[externalRef]
	if !ok {
		return nil, finance.ErrNotFound
	}
	return s.getInstrumentLocked(id)
}

func (s *Store) ApproveInstrument(ctx context.Context, id int64) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	ins, ok := s.instruments[id]
	if !ok || ins.Status != finance.InstrumentStatusPending {
		return finance.ErrInvalidStatus
	}
	ins.Status = finance.InstrumentStatusApproved
	ins.UpdatedAt = time.Now()
	s.instruments[id] = ins
	return nil
}

func (s *Store) ListInstruments(ctx context.Context, filter finance.InstrumentFilter) ([]finance.Instrument, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []finance.Instrument
	for id := int64(1); id <= s.nextInstrumentID; id++ {
		ins, ok := s.instruments[id]
		if !ok {
			continue
		}
		if ins.Status == finance.InstrumentStatusCancelled || ins.Status == finance.InstrumentStatusReversed {
			continue
		}
		if filter.CounterpartyID > 0 && ins.CounterpartyID != filter.CounterpartyID {
			continue
		}
		if filter.Direction != "" && ins.Direction != filter.Direction {
			continue
		}
		if filter.Kind != "" && ins.Kind != filter.Kind {
			continue
		}
		if !filter.IssuedBefore.IsZero() && !ins.IssuedAt.Before(filter.IssuedBefore) {
			continue
		}
		if !filter.IssuedFrom.IsZero() && ins.IssuedAt.Before(filter.IssuedFrom) {
			continue
		}
		if !filter.IssuedTo.IsZero() && ins.IssuedAt.After(filter.IssuedTo) {
			continue
		}
		out = append(out, ins)
	}
	sortByIssued(out, func(v finance.Instrument) (time.Time, int64) { return v.IssuedAt, v.ID })
	return out, nil
}

func (s *Store) ListAllocations(ctx context.Context, instrumentID int64) ([]finance.Allocation, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []finance.Allocation
	for _, a := range s.allocations {
		if a.InstrumentID == instrumentID {
			out = append(out, a)
		}
	}
	return out, nil
}

func (s *Store) GetCounterparty(ctx context.Context, id int64) (*finance.Counterparty, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	cp, ok := s.counterparties[id]
	if !ok {
		return nil, finance.ErrNotFound
	}
	return &cp, nil
}

func (s *Store) GetCounterpartyByCode(ctx context.Context, code string) (*finance.Counterparty, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, cp := range s.counterparties {
		if cp.Code == code {
			out := cp
			return &out, nil
		}
	}
	return nil, finance.ErrNotFound
}

func (s *Store) NextDocumentNumber(ctx context.Context, prefix string, issuedAt time.Time) (string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.nextNumberLocked(prefix, issuedAt), nil
}

// WithTx serializes the callback under the store mutex; on error the store
// is restored from a snapshot, so partial writes are never observable.
func (s *Store) WithTx(ctx context.Context, fn func(ctx context.Context, tx finance.TxStore) error) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	snap := s.snapshotLocked()
	if err := fn(ctx, &memTx{store: s}); err != nil {
		s.restoreLocked(snap)
		return err
	}
	return nil
}

type memTx struct {
	store *Store
}

func (t *memTx) GetInstrumentForUpdate(ctx context.Context, id int64) (*finance.Instrument, error) {
	return t.store.getInstrumentLocked(id)
}

func (t *memTx) GetInvoiceForUpdate(ctx context.Context, id int64) (*finance.Invoice, error) {
	return t.store.getInvoiceLocked(id)
}

func (t *memTx) GetAllocation(ctx context.Context, id int64) (*finance.Allocation, error) {
	for _, a := range t.store.allocations {
		if a.ID == id {
			cp := a
			return &cp, nil
		}
	}
	return nil, finance.ErrNotFound
}

func (t *memTx) InsertAllocation(ctx context.Context, instrumentID, invoiceID int64, amount float64, reversesID *int64) (*finance.Allocation, error) {
	t.store.nextAllocationID++
	a := finance.Allocation{
		ID:           t.store.nextAllocationID,
		InstrumentID: instrumentID,
		InvoiceID:    invoiceID,
		Amount:       amount,
		ReversesID:   reversesID,
		CreatedAt:    time.Now(),
	}
	t.store.allocations = append(t.store.allocations, a)
	return &a, nil
}

func (t *memTx) SetInstrumentApplied(ctx context.Context, id int64, amountApplied float64, status finance.InstrumentStatus, appliedTo *int64) error {
	ins, ok := t.store.instruments[id]
	if !ok {
		return finance.ErrNotFound
	}
	ins.AmountApplied = amountApplied
	ins.Status = status
	if appliedTo != nil {
		ins.AppliedToInvoiceID = appliedTo
	}
	ins.UpdatedAt = time.Now()
	t.store.instruments[id] = ins
	return nil
}

func (t *memTx) SetInvoicePaid(ctx context.Context, id int64, amountPaid float64, status finance.InvoiceStatus) error {
	inv, ok := t.store.invoices[id]
	if !ok {
		return finance.ErrNotFound
	}
	inv.AmountPaid = amountPaid
	inv.Status = status
	inv.UpdatedAt = time.Now()
	t.store.invoices[id] = inv
	return nil
}

// --- internals ---

type snapshot struct {
	invoices         map[int64]finance.Invoice
	instruments      map[int64]finance.Instrument
	allocations      []finance.Allocation
	byExternalRef    map[string]int64
	nextInvoiceID    int64
	nextInstrumentID int64
	nextAllocationID int64
}

func (s *Store) snapshotLocked() snapshot {
	snap := snapshot{
		invoices:         make(map[int64]finance.Invoice, len(s.invoices)),
		instruments:      make(map[int64]finance.Instrument, len(s.instruments)),
		allocations:      make([]finance.Allocation, len(s.allocations)),
		byExternalRef:    make(map[string]int64, len(s.byExternalRef)),
		nextInvoiceID:    s.nextInvoiceID,
		nextInstrumentID: s.nextInstrumentID,
		nextAllocationID: s.nextAllocationID,
	}
	for k, v := range s.invoices {
		snap.invoices[k] = v
	}
	for k, v := range s.instruments {
		snap.instruments[k] = v
	}
	copy(snap.allocations, s.allocations)
	for k, v := range s.byExternalRef {
		snap.byExternalRef[k] = v
	}
	return snap
}

func (s *Store) restoreLocked(snap snapshot) {
	s.invoices = snap.invoices
	s.instruments = snap.instruments
	s.allocations = snap.allocations
	s.byExternalRef = snap.byExternalRef
	s.nextInvoiceID = snap.nextInvoiceID
	s.nextInstrumentID = snap.nextInstrumentID
	s.nextAllocationID = snap.nextAllocationID
}

func (s *Store) getInvoiceLocked(id int64) (*finance.Invoice, error) {
	inv, ok := s.invoices[id]
	if !ok {
		return nil, finance.ErrNotFound
	}
	cp := inv
	return &cp, nil
}

func (s *Store) getInstrumentLocked(id int64) (*finance.Instrument, error) {
	ins, ok := s.instruments[id]
	if !ok {
		return nil, finance.ErrNotFound
	}
	cp := ins
	return &cp, nil
}

func (s *Store) nextNumberLocked(prefix string, issuedAt time.Time) string {
	if issuedAt.IsZero() {
		issuedAt = time.Now()
	}
	key := fmt.Sprintf("%s-%d", prefix, issuedAt.Year())
	s.sequences[key]++
	return fmt.Sprintf("%s-%d-%04d", prefix, issuedAt.Year(), s.sequences[key])
}

func kindPrefix(kind finance.InstrumentKind) string {
	switch kind {
	case finance.KindCreditNote:
		return "CN"
	case finance.KindDebitNote:
		return "DN"
	case finance.KindAdvance:
		return "ADV"
	case finance.KindReceipt:
		return "RCT"
	default:
		return "PAY"
	}
}

func sortByIssued[T any](items []T, key func(T) (time.Time, int64)) {
	// Insertion sort keeps the fetch order stable for equal timestamps.
	for i := 1; i < len(items); i++ {
		for j := i; j > 0; j-- {
			tj, ij := key(items[j])
			tp, ip := key(items[j-1])
			if tj.Before(tp) || (tj.Equal(tp) && ij < ip) {
				items[j], items[j-1] = items[j-1], items[j]
			} else {
				break
			}
		}
	}
}
