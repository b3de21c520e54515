package pos

// Error codes returned to the point-of-sale channel.
const (
	CodeInvalidPayload      = "INVALID_PAYLOAD"
	CodeRateLimitExceeded   = "RATE_LIMIT_EXCEEDED"
	CodeUnauthorized        = "UNAUTHORIZED"
	CodeCounterpartyMissing = "COUNTERPARTY_NOT_FOUND"
	CodeInvoiceMissing      = "INVOICE_NOT_FOUND"
	CodeInvoiceMismatch     = "INVOICE_MISMATCH"
	CodeInternalError       = "INTERNAL_ERROR"
)

// AdjustmentRequest is the ingestion payload. Amounts above one billion are
// treated as malformed before any store access.
type AdjustmentRequest struct {
	TerminalID            string  `json:"terminal_id" validate:"required,max=64"`
	ExternalTransactionID string  `json:"external_transaction_id" validate:"required,max=128"`
	CounterpartyCode      string  `json:"counterparty_code" validate:"required,max=32"`
	Amount                float64 `json:"amount" validate:"required,gt=0,lt=1000000000"`
	Reason                string  `json:"reason" validate:"required,max=255"`
	ApplyImmediately      bool    `json:"apply_immediately"`
	LinkedInvoiceNumber   string  `json:"linked_invoice_number" validate:"omitempty,max=64"`
}

// AdjustmentResult is the success payload.
type AdjustmentResult struct {
	InstrumentNumber string  `json:"instrument_number"`
	AmountApplied    float64 `json:"amount_applied"`
	InvoiceBalance   float64 `json:"invoice_balance"`
	Status           string  `json:"status"`
}

// Response is the channel envelope: a success flag plus either a result or
// an error code and message.
type Response struct {
	Success bool              `json:"success"`
	Data    *AdjustmentResult `json:"data,omitempty"`
	Error   string            `json:"error,omitempty"`
	Message string            `json:"message,omitempty"`
}

// ChannelError carries a channel error code through the service layer.
type ChannelError struct {
	Code    string
	Message string
}

func (e *ChannelError) Error() string {
	return e.Code + ": " + e.Message
}

func channelErr(code, message string) *ChannelError {
	return &ChannelError{Code: code, Message: message}
}
