package types

import "errors"

var (
	ErrIncompleteData    = errors.New("incomplete data")
	ErrStaleData         = errors.New("stale data")
	ErrInvalidQuote      = errors.New("invalid quote")
	ErrNoLiquidityRoute  = errors.New("no liquidity route")
	ErrImpactCapExceeded = errors.New("impact cap exceeded")
	ErrGasCapExceeded    = errors.New("gas cap exceeded")
	ErrNoSafeSize        = errors.New("no safe size")
	ErrComputation       = errors.New("computation error")

	ErrInvalidPayload = errors.New("invalid payload")
	ErrUnknownSymbol  = errors.New("unknown symbol")
)

// SkipReason is the machine-readable cause of a skipped evaluation.
type SkipReason string

const (
	SkipIncompleteData   SkipReason = "incomplete_data"
	SkipStaleData        SkipReason = "stale_data"
	SkipQuoteError       SkipReason = "quote_error"
	SkipInvalidQuote     SkipReason = "invalid_or_unvalidated_quote"
	SkipUntrustedSource  SkipReason = "non_real_or_invalid_uniswap_quote"
	SkipComputationError SkipReason = "computation_error"
	SkipNoQuoteAtSize    SkipReason = "no_valid_dex_quote_for_size"
)

// SkipError carries a skip reason and the taxonomy error behind it.
type SkipError struct {
	Reason SkipReason
	Err    error
}

func (e *SkipError) Error() string {
	if e.Err == nil {
		return string(e.Reason)
	}
	return string(e.Reason) + ": " + e.Err.Error()
}

func (e *SkipError) Unwrap() error { return e.Err }

func NewSkip(reason SkipReason, err error) *SkipError {
	return &SkipError{Reason: reason, Err: err}
}

// ReasonOf extracts the skip reason from err, or "" when err is not a skip.
func ReasonOf(err error) SkipReason {
	var se *SkipError
	if errors.As(err, &se) {
		return se.Reason
	}
	return ""
}
