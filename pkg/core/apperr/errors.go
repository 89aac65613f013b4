// Package apperr provides the error taxonomy shared by the valuation pipeline.
// Metrics-layer conditions are attached to results as warnings, generator and
// parser conditions are recovered through the fallback path, and only an
// invalid record aborts a run.
package apperr

// AppError represents a structured pipeline error with a stable code,
// a human-readable message and an optional internal cause.
type AppError struct {
	Code     string `json:"code"`
	Message  string `json:"message"`
	Internal error  `json:"-"`
}

// Error implements the error interface.
func (e *AppError) Error() string {
	if e.Internal != nil {
		return e.Message + ": " + e.Internal.Error()
	}
	return e.Message
}

// Unwrap returns the internal error for use with errors.Is/As.
func (e *AppError) Unwrap() error { return e.Internal }

// Is reports whether target carries the same code, so wrapped copies of a
// sentinel still match it.
func (e *AppError) Is(target error) bool {
	t, ok := target.(*AppError)
	if !ok {
		return false
	}
	return t.Code == e.Code
}

// Wrap creates a new AppError with the sentinel's code and message around an internal error.
func Wrap(sentinel *AppError, internal error) *AppError {
	return &AppError{
		Code:     sentinel.Code,
		Message:  sentinel.Message,
		Internal: internal,
	}
}

// WithMessage creates a new AppError with a custom message.
func WithMessage(sentinel *AppError, message string) *AppError {
	return &AppError{
		Code:     sentinel.Code,
		Message:  message,
		Internal: sentinel.Internal,
	}
}

// CodeOf returns the code of the first AppError in err's chain, or "" if none.
func CodeOf(err error) string {
	for err != nil {
		if ae, ok := err.(*AppError); ok {
			return ae.Code
		}
		u, ok := err.(interface{ Unwrap() error })
		if !ok {
			return ""
		}
		err = u.Unwrap()
	}
	return ""
}

// Metrics-layer errors. Terminal for the affected metric only.
var (
	ErrMissingCapitalStructure = &AppError{Code: "MISSING_CAPITAL_STRUCTURE", Message: "market value of equity and debt are both zero or absent"}
	ErrInvalidGrowthAssumption = &AppError{Code: "INVALID_GROWTH_ASSUMPTION", Message: "terminal growth rate must be strictly less than the discount rate"}
)

// Generation and parsing errors. Always recovered through the fallback recommendation.
var (
	ErrGenerationUnavailable  = &AppError{Code: "GENERATION_UNAVAILABLE", Message: "generative model unavailable or timed out"}
	ErrParseContractViolation = &AppError{Code: "PARSE_CONTRACT_VIOLATION", Message: "model output does not satisfy the recommendation contract"}
)

// Pipeline and infrastructure errors.
var (
	ErrInvalidRecord     = &AppError{Code: "INVALID_RECORD", Message: "financial record is structurally invalid"}
	ErrDimensionMismatch = &AppError{Code: "DIMENSION_MISMATCH", Message: "embedding dimension does not match the store"}
	ErrStoreUnavailable  = &AppError{Code: "STORE_UNAVAILABLE", Message: "knowledge persistence is not configured"}
	ErrConfig            = &AppError{Code: "CONFIG_ERROR", Message: "invalid configuration"}
)
