package finance

import "errors"

var (
	// ErrNotFound indicates resource not found.
	ErrNotFound = errors.New("finance: not found")
	// ErrInsufficientInstrumentBalance indicates the instrument has nothing left to apply.
	ErrInsufficientInstrumentBalance = errors.New("finance: instrument has no remaining balance")
	// ErrInvoiceAlreadySettled indicates the invoice carries no balance due.
	ErrInvoiceAlreadySettled = errors.New("finance: invoice already settled")
	// ErrInvalidStatus indicates the document status forbids the operation.
	ErrInvalidStatus = errors.New("finance: invalid status for operation")
	// ErrNotApproved indicates a credit/debit note was not approved before allocation.
	ErrNotApproved = errors.New("finance: instrument requires approval before allocation")
	// ErrCounterpartyMismatch indicates the instrument and invoice belong to
	// different counterparties or run in opposite directions.
	ErrCounterpartyMismatch = errors.New("finance: instrument and invoice counterparties do not match")
	// ErrDuplicateExternalRef indicates an instrument with the same external
	// transaction id already exists.
	ErrDuplicateExternalRef = errors.New("finance: duplicate external reference")
	// ErrSerialization indicates a transaction serialization conflict; the
	// whole operation is safe to retry from the first read.
	ErrSerialization = errors.New("finance: transaction serialization conflict")
)
