package finance

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgtype"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/NCGHoldings/StoresONE-sub004/internal/platform/db"
)

// Repository provides PostgreSQL backed persistence for the instrument store.
type Repository struct {
	pool *pgxpool.Pool
}

// NewRepository constructs a repository.
func NewRepository(pool *pgxpool.Pool) *Repository {
	return &Repository{pool: pool}
}

const invoiceColumns = `id, number, counterparty_id, direction, order_ref, currency,
	subtotal, tax_amount, total, amount_paid, status, issued_at, due_at,
	created_by, created_at, updated_at`

const instrumentColumns = `id, number, kind, counterparty_id, direction, linked_invoice_id,
	original_amount, amount_applied, status, reason, external_ref,
	applied_to_invoice_id, issued_at, created_by, created_at, updated_at`

// --- Invoice operations ---

// CreateInvoice creates a new invoice in DRAFT status.
func (r *Repository) CreateInvoice(ctx context.Context, input CreateInvoiceInput) (*Invoice, error) {
	number := input.Number
	if number == "" {
		var err error
		number, err = r.NextDocumentNumber(ctx, "INV", input.IssuedAt)
		if err != nil {
			return nil, err
		}
	}

	issuedAt := input.IssuedAt
	if issuedAt.IsZero() {
		issuedAt = time.Now()
	}
	total := input.Subtotal + input.TaxAmount

	query := `
		INSERT INTO invoices (
			number, counterparty_id, direction, order_ref, currency,
			subtotal, tax_amount, total, amount_paid, status,
			issued_at, due_at, created_by, created_at, updated_at
		) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, 0, 'DRAFT', $9, $10, $11, NOW(), NOW())
		RETURNING id, created_at, updated_at`

	var createdBy pgtype.Int8
	if input.CreatedBy > 0 {
		createdBy = pgtype.Int8{Int64: input.CreatedBy, Valid: true}
	}

	var inv Invoice
	err := r.pool.QueryRow(ctx, query,
		number,
		input.CounterpartyID,
		string(input.Direction),
		input.OrderRef,
		input.Currency,
		input.Subtotal,
		input.TaxAmount,
		total,
		issuedAt,
		input.DueDate,
		createdBy,
	).Scan(&inv.ID, &inv.CreatedAt, &inv.UpdatedAt)
	if err != nil {
		return nil, fmt.Errorf("finance: create invoice: %w", err)
	}

	inv.Number = number
	inv.CounterpartyID = input.CounterpartyID
	inv.Direction = input.Direction
	inv.OrderRef = input.OrderRef
	inv.Currency = input.Currency
	inv.Subtotal = input.Subtotal
	inv.TaxAmount = input.TaxAmount
	inv.Total = total
	inv.Status = InvoiceStatusDraft
	inv.IssuedAt = issuedAt
	inv.DueAt = input.DueDate
	inv.CreatedBy = input.CreatedBy
	return &inv, nil
}

// GetInvoice retrieves an invoice by id.
func (r *Repository) GetInvoice(ctx context.Context, id int64) (*Invoice, error) {
	row := r.pool.QueryRow(ctx, `SELECT `+invoiceColumns+` FROM invoices WHERE id = $1`, id)
	return scanInvoice(row)
}

// GetInvoiceByNumber retrieves an invoice by its document number.
func (r *Repository) GetInvoiceByNumber(ctx context.Context, number string) (*Invoice, error) {
	row := r.pool.QueryRow(ctx, `SELECT `+invoiceColumns+` FROM invoices WHERE number = $1`, number)
	return scanInvoice(row)
}

// ListInvoices returns invoices matching the filter, issued-date ascending.
// The stable ordering (issued_at, then id) keeps statement assembly
// deterministic across reads.
func (r *Repository) ListInvoices(ctx context.Context, filter InvoiceFilter) ([]Invoice, error) {
	query := `SELECT ` + invoiceColumns + ` FROM invoices WHERE 1=1`
	args := []any{}
	argNum := 1

	if filter.CounterpartyID > 0 {
		query += fmt.Sprintf(" AND counterparty_id = $%d", argNum)
		args = append(args, filter.CounterpartyID)
		argNum++
	}
	if filter.Direction != "" {
		query += fmt.Sprintf(" AND direction = $%d", argNum)
		args = append(args, string(filter.Direction))
		argNum++
	}
	if filter.Status != "" {
		query += fmt.Sprintf(" AND status = $%d", argNum)
		args = append(args, string(filter.Status))
		argNum++
	}
	if filter.OpenOnly {
		query += " AND status NOT IN ('PAID', 'CANCELLED', 'WRITTEN_OFF')"
	}
	if !filter.IssuedBefore.IsZero() {
		query += fmt.Sprintf(" AND issued_at < $%d", argNum)
		args = append(args, filter.IssuedBefore)
		argNum++
	}
	if !filter.IssuedFrom.IsZero() {
		query += fmt.Sprintf(" AND issued_at >= $%d", argNum)
		args = append(args, filter.IssuedFrom)
		argNum++
	}
	if !filter.IssuedTo.IsZero() {
		query += fmt.Sprintf(" AND issued_at <= $%d", argNum)
		args = append(args, filter.IssuedTo)
		argNum++
	}

	query += " ORDER BY issued_at, id"

	if filter.Limit > 0 {
		query += fmt.Sprintf(" LIMIT $%d", argNum)
		args = append(args, filter.Limit)
		argNum++
	}
	if filter.Offset > 0 {
		query += fmt.Sprintf(" OFFSET $%d", argNum)
		args = append(args, filter.Offset)
	}

	rows, err := r.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("finance: list invoices: %w", err)
	}
	defer rows.Close()

	var invoices []Invoice
	for rows.Next() {
		inv, err := scanInvoice(rows)
		if err != nil {
			return nil, err
		}
		invoices = append(invoices, *inv)
	}
	return invoices, rows.Err()
}

// UpdateInvoiceStatus moves an invoice to the given status. Used by the
// overdue scan and by cancel/write-off flows; payment counters only move
// through the allocation engine.
func (r *Repository) UpdateInvoiceStatus(ctx context.Context, id int64, from, to InvoiceStatus) error {
	result, err := r.pool.Exec(ctx,
		`UPDATE invoices SET status = $3, updated_at = NOW() WHERE id = $1 AND status = $2`,
		id, string(from), string(to),
	)
	if err != nil {
		return fmt.Errorf("finance: update invoice status: %w", err)
	}
	if result.RowsAffected() == 0 {
		return ErrInvalidStatus
	}
	return nil
}

// --- Instrument operations ---

// CreateInstrument creates a new adjustment instrument.
func (r *Repository) CreateInstrument(ctx context.Context, input CreateInstrumentInput) (*Instrument, error) {
	number := input.Number
	if number == "" {
		var err error
		number, err = r.NextDocumentNumber(ctx, numberPrefix(input.Kind), input.IssuedAt)
		if err != nil {
			return nil, err
		}
	}

	issuedAt := input.IssuedAt
	if issuedAt.IsZero() {
		issuedAt = time.Now()
	}
	status := input.Status
	if status == "" {
		status = InstrumentStatusPending
	}

	query := `
		INSERT INTO instruments (
			number, kind, counterparty_id, direction, linked_invoice_id,
			original_amount, amount_applied, status, reason, external_ref,
			issued_at, created_by, created_at, updated_at
		) VALUES ($1, $2, $3, $4, $5, $6, 0, $7, $8, $9, $10, $11, NOW(), NOW())
		RETURNING id, created_at, updated_at`

	var linked pgtype.Int8
	if input.LinkedInvoiceID != nil {
		linked = pgtype.Int8{Int64: *input.LinkedInvoiceID, Valid: true}
	}
	var externalRef pgtype.Text
	if input.ExternalRef != "" {
		externalRef = pgtype.Text{String: input.ExternalRef, Valid: true}
	}
	var createdBy pgtype.Int8
	if input.CreatedBy > 0 {
		createdBy = pgtype.Int8{Int64: input.CreatedBy, Valid: true}
	}

	var ins Instrument
	err := r.pool.QueryRow(ctx, query,
		number,
		string(input.Kind),
		input.CounterpartyID,
		string(input.Direction),
		linked,
		input.OriginalAmount,
		string(status),
		input.Reason,
		externalRef,
		issuedAt,
		createdBy,
	).Scan(&ins.ID, &ins.CreatedAt, &ins.UpdatedAt)
	if err != nil {
		if db.IsUniqueViolation(err) {
			return nil, ErrDuplicateExternalRef
		}
		return nil, fmt.Errorf("finance: create instrument: %w", err)
	}

	ins.Number = number
	ins.Kind = input.Kind
	ins.CounterpartyID = input.CounterpartyID
	ins.Direction = input.Direction
	ins.LinkedInvoiceID = input.LinkedInvoiceID
	ins.OriginalAmount = input.OriginalAmount
	ins.Status = status
	ins.Reason = input.Reason
	ins.ExternalRef = input.ExternalRef
	ins.IssuedAt = issuedAt
	ins.CreatedBy = input.CreatedBy
	return &ins, nil
}

// GetInstrument retrieves an instrument by id.
func (r *Repository) GetInstrument(ctx context.Context, id int64) (*Instrument, error) {
	row := r.pool.QueryRow(ctx, `SELECT `+instrumentColumns+` FROM instruments WHERE id = $1`, id)
	return scanInstrument(row)
}

// GetInstrumentByExternalRef retrieves an instrument by its idempotency key.
func (r *Repository) GetInstrumentByExternalRef(ctx context.Context, externalRef string) (*Instrument, error) {
	row := r.pool.QueryRow(ctx, `SELECT `+instrumentColumns+` FROM instruments WHERE external_ref = $1`, externalRef)
	return scanInstrument(row)
}

// ApproveInstrument moves a pending credit/debit note into APPROVED.
func (r *Repository) ApproveInstrument(ctx context.Context, id int64) error {
	result, err := r.pool.Exec(ctx,
		`UPDATE instruments SET status = 'APPROVED', updated_at = NOW() WHERE id = $1 AND status = 'PENDING'`,
		id,
	)
	if err != nil {
		return fmt.Errorf("finance: approve instrument: %w", err)
	}
	if result.RowsAffected() == 0 {
		return ErrInvalidStatus
	}
	return nil
}

// ListInstruments returns instruments matching the filter, issued-date ascending.
func (r *Repository) ListInstruments(ctx context.Context, filter InstrumentFilter) ([]Instrument, error) {
	query := `SELECT ` + instrumentColumns + ` FROM instruments WHERE status NOT IN ('CANCELLED', 'REVERSED')`
	args := []any{}
	argNum := 1

	if filter.CounterpartyID > 0 {
		query += fmt.Sprintf(" AND counterparty_id = $%d", argNum)
		args = append(args, filter.CounterpartyID)
		argNum++
	}
	if filter.Direction != "" {
		query += fmt.Sprintf(" AND direction = $%d", argNum)
		args = append(args, string(filter.Direction))
		argNum++
	}
	if filter.Kind != "" {
		query += fmt.Sprintf(" AND kind = $%d", argNum)
		args = append(args, string(filter.Kind))
		argNum++
	}
	if !filter.IssuedBefore.IsZero() {
		query += fmt.Sprintf(" AND issued_at < $%d", argNum)
		args = append(args, filter.IssuedBefore)
		argNum++
	}
	if !filter.IssuedFrom.IsZero() {
		query += fmt.Sprintf(" AND issued_at >= $%d", argNum)
		args = append(args, filter.IssuedFrom)
		argNum++
	}
	if !filter.IssuedTo.IsZero() {
		query += fmt.Sprintf(" AND issued_at <= $%d", argNum)
		args = append(args, filter.IssuedTo)
		argNum++
	}

	query += " ORDER BY issued_at, id"

	if filter.Limit > 0 {
		query += fmt.Sprintf(" LIMIT $%d", argNum)
		args = append(args, filter.Limit)
		argNum++
	}
	if filter.Offset > 0 {
		query += fmt.Sprintf(" OFFSET $%d", argNum)
		args = append(args, filter.Offset)
	}

	rows, err := r.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("finance: list instruments: %w", err)
	}
	defer rows.Close()

	var instruments []Instrument
	for rows.Next() {
		ins, err := scanInstrument(rows)
		if err != nil {
			return nil, err
		}
		instruments = append(instruments, *ins)
	}
	return instruments, rows.Err()
}

// ListAllocations returns the append-only allocation rows for an instrument.
func (r *Repository) ListAllocations(ctx context.Context, instrumentID int64) ([]Allocation, error) {
	rows, err := r.pool.Query(ctx, `
		SELECT id, instrument_id, invoice_id, amount, reverses_id, created_at
		FROM allocations
		WHERE instrument_id = $1
		ORDER BY id`, instrumentID)
	if err != nil {
		return nil, fmt.Errorf("finance: list allocations: %w", err)
	}
	defer rows.Close()

	var allocations []Allocation
	for rows.Next() {
		var a Allocation
		var reverses pgtype.Int8
		if err := rows.Scan(&a.ID, &a.InstrumentID, &a.InvoiceID, &a.Amount, &reverses, &a.CreatedAt); err != nil {
			return nil, err
		}
		if reverses.Valid {
			a.ReversesID = &reverses.Int64
		}
		allocations = append(allocations, a)
	}
	return allocations, rows.Err()
}

// --- Counterparty operations ---

// GetCounterparty retrieves a counterparty by id.
func (r *Repository) GetCounterparty(ctx context.Context, id int64) (*Counterparty, error) {
	var cp Counterparty
	err := r.pool.QueryRow(ctx,
		`SELECT id, code, name FROM counterparties WHERE id = $1`, id,
	).Scan(&cp.ID, &cp.Code, &cp.Name)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("finance: get counterparty: %w", err)
	}
	return &cp, nil
}

// GetCounterpartyByCode retrieves a counterparty by its external code.
func (r *Repository) GetCounterpartyByCode(ctx context.Context, code string) (*Counterparty, error) {
	var cp Counterparty
	err := r.pool.QueryRow(ctx,
		`SELECT id, code, name FROM counterparties WHERE code = $1`, code,
	).Scan(&cp.ID, &cp.Code, &cp.Name)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("finance: get counterparty by code: %w", err)
	}
	return &cp, nil
}

// --- Document numbers ---

// NextDocumentNumber issues the next sequential number for a document kind,
// scoped per calendar year (INV-2025-0001 style).
func (r *Repository) NextDocumentNumber(ctx context.Context, prefix string, issuedAt time.Time) (string, error) {
	if issuedAt.IsZero() {
		issuedAt = time.Now()
	}
	year := issuedAt.Year()
	var value int64
	err := r.pool.QueryRow(ctx, `
		INSERT INTO document_sequences (prefix, year, value)
		VALUES ($1, $2, 1)
		ON CONFLICT (prefix, year) DO UPDATE SET value = document_sequences.value + 1
		RETURNING value`, prefix, year,
	).Scan(&value)
	if err != nil {
		return "", fmt.Errorf("finance: next document number: %w", err)
	}
	return fmt.Sprintf("%s-%d-%04d", prefix, year, value), nil
}

func numberPrefix(kind InstrumentKind) string {
	switch kind {
	case KindCreditNote:
		return "CN"
	case KindDebitNote:
		return "DN"
	case KindAdvance:
		return "ADV"
	case KindReceipt:
		return "RCT"
	default:
		return "PAY"
	}
}

// --- Transaction support ---

// TxStore exposes the row-locked operations the allocation engine runs
// inside one transaction. Locks are acquired instrument-first then
// invoice-second; callers must not reorder.
type TxStore interface {
	GetInstrumentForUpdate(ctx context.Context, id int64) (*Instrument, error)
	GetInvoiceForUpdate(ctx context.Context, id int64) (*Invoice, error)
	GetAllocation(ctx context.Context, id int64) (*Allocation, error)
	InsertAllocation(ctx context.Context, instrumentID, invoiceID int64, amount float64, reversesID *int64) (*Allocation, error)
	SetInstrumentApplied(ctx context.Context, id int64, amountApplied float64, status InstrumentStatus, appliedTo *int64) error
	SetInvoicePaid(ctx context.Context, id int64, amountPaid float64, status InvoiceStatus) error
}

// WithTx wraps fn in a repeatable-read transaction. Serialization conflicts
// surface as ErrSerialization so callers can retry the whole unit.
func (r *Repository) WithTx(ctx context.Context, fn func(ctx context.Context, tx TxStore) error) error {
	err := db.WithTx(ctx, r.pool, func(tx pgx.Tx) error {
		return fn(ctx, &txStore{tx: tx})
	})
	if err != nil && db.IsSerializationFailure(err) {
		return ErrSerialization
	}
	return err
}

type txStore struct {
	tx pgx.Tx
}

func (t *txStore) GetInstrumentForUpdate(ctx context.Context, id int64) (*Instrument, error) {
	row := t.tx.QueryRow(ctx, `SELECT `+instrumentColumns+` FROM instruments WHERE id = $1 FOR UPDATE`, id)
	return scanInstrument(row)
}

func (t *txStore) GetInvoiceForUpdate(ctx context.Context, id int64) (*Invoice, error) {
	row := t.tx.QueryRow(ctx, `SELECT `+invoiceColumns+` FROM invoices WHERE id = $1 FOR UPDATE`, id)
	return scanInvoice(row)
}

func (t *txStore) GetAllocation(ctx context.Context, id int64) (*Allocation, error) {
	var a Allocation
	var reverses pgtype.Int8
	err := t.tx.QueryRow(ctx, `
		SELECT id, instrument_id, invoice_id, amount, reverses_id, created_at
		FROM allocations WHERE id = $1`, id,
	).Scan(&a.ID, &a.InstrumentID, &a.InvoiceID, &a.Amount, &reverses, &a.CreatedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("finance: get allocation: %w", err)
	}
	if reverses.Valid {
		a.ReversesID = &reverses.Int64
	}
	return &a, nil
}

func (t *txStore) InsertAllocation(ctx context.Context, instrumentID, invoiceID int64, amount float64, reversesID *int64) (*Allocation, error) {
	var reverses pgtype.Int8
	if reversesID != nil {
		reverses = pgtype.Int8{Int64: *reversesID, Valid: true}
	}
	var a Allocation
	err := t.tx.QueryRow(ctx, `
		INSERT INTO allocations (instrument_id, invoice_id, amount, reverses_id, created_at)
		VALUES ($1, $2, $3, $4, NOW())
		RETURNING id, created_at`,
		instrumentID, invoiceID, amount, reverses,
	).Scan(&a.ID, &a.CreatedAt)
	if err != nil {
		return nil, fmt.Errorf("finance: insert allocation: %w", err)
	}
	a.InstrumentID = instrumentID
	a.InvoiceID = invoiceID
	a.Amount = amount
	a.ReversesID = reversesID
	return &a, nil
}

func (t *txStore) SetInstrumentApplied(ctx context.Context, id int64, amountApplied float64, status InstrumentStatus, appliedTo *int64) error {
	var applied pgtype.Int8
	if appliedTo != nil {
		applied = pgtype.Int8{Int64: *appliedTo, Valid: true}
	}
	result, err := t.tx.Exec(ctx, `
		UPDATE instruments
		SET amount_applied = $2, status = $3,
			applied_to_invoice_id = COALESCE($4, applied_to_invoice_id),
			updated_at = NOW()
		WHERE id = $1`,
		id, amountApplied, string(status), applied,
	)
	if err != nil {
		return fmt.Errorf("finance: set instrument applied: %w", err)
	}
	if result.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}

func (t *txStore) SetInvoicePaid(ctx context.Context, id int64, amountPaid float64, status InvoiceStatus) error {
	result, err := t.tx.Exec(ctx, `
		UPDATE invoices
		SET amount_paid = $2, status = $3, updated_at = NOW()
		WHERE id = $1`,
		id, amountPaid, string(status),
	)
	if err != nil {
		return fmt.Errorf("finance: set invoice paid: %w", err)
	}
	if result.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}

// --- Scan helpers ---

type rowScanner interface {
	Scan(dest ...any) error
}

func scanInvoice(row rowScanner) (*Invoice, error) {
	var inv Invoice
	var direction, status string
	var orderRef pgtype.Text
	var createdBy pgtype.Int8
	err := row.Scan(
		&inv.ID, &inv.Number, &inv.CounterpartyID, &direction, &orderRef, &inv.Currency,
		&inv.Subtotal, &inv.TaxAmount, &inv.Total, &inv.AmountPaid, &status,
		&inv.IssuedAt, &inv.DueAt, &createdBy, &inv.CreatedAt, &inv.UpdatedAt,
	)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("finance: scan invoice: %w", err)
	}
	inv.Direction = Direction(direction)
	inv.Status = InvoiceStatus(status)
	inv.OrderRef = orderRef.String
	inv.CreatedBy = createdBy.Int64
	return &inv, nil
}

func scanInstrument(row rowScanner) (*Instrument, error) {
	var ins Instrument
	var kind, direction, status string
	var linked, appliedTo, createdBy pgtype.Int8
	var reason, externalRef pgtype.Text
	err := row.Scan(
		&ins.ID, &ins.Number, &kind, &ins.CounterpartyID, &direction, &linked,
		&ins.OriginalAmount, &ins.AmountApplied, &status, &reason, &externalRef,
		&appliedTo, &ins.IssuedAt, &createdBy, &ins.CreatedAt, &ins.UpdatedAt,
	)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("finance: scan instrument: %w", err)
	}
	ins.Kind = InstrumentKind(kind)
	ins.Direction = Direction(direction)
	ins.Status = InstrumentStatus(status)
	ins.Reason = reason.String
	ins.ExternalRef = externalRef.String
	if linked.Valid {
		ins.LinkedInvoiceID = &linked.Int64
	}
	if appliedTo.Valid {
		ins.AppliedToInvoiceID = &appliedTo.Int64
	}
	ins.CreatedBy = createdBy.Int64
	return &ins, nil
}
