package journal

import (
	"time"

	"github.com/google/uuid"
)

// Account codes the finance core posts against.
const (
	AccountReceivablesControl = "1200"
	AccountSalesReturns       = "4900"
)

// Entry captures posting metadata for one balanced set of lines.
type Entry struct {
	ID           int64
	Date         time.Time
	SourceModule string
	SourceRef    uuid.UUID
	Memo         string
	CreatedAt    time.Time
	Lines        []Line
}

// Line stores a debit or credit amount for an account.
type Line struct {
	ID        int64
	EntryID   int64
	Account   string
	Debit     float64
	Credit    float64
	CreatedAt time.Time
}

// PostInput describes an entry to post.
type PostInput struct {
	Date         time.Time
	SourceModule string
	SourceRef    uuid.UUID
	Memo         string
	Lines        []LineInput
}

// LineInput is one debit or credit leg.
type LineInput struct {
	Account string
	Debit   float64
	Credit  float64
}
