package errors

// ErrorCategory classifies errors by their nature and retry semantics.
type ErrorCategory string

// Error categories define how errors should be handled.
const (
	// CategoryTransient indicates temporary failures where retry may succeed.
	// Examples: publish timeouts, broker temporarily unreachable.
	CategoryTransient ErrorCategory = "transient"

	// CategoryPermanent indicates failures where retry will not help.
	// Examples: invalid device id, unknown metrics group.
	CategoryPermanent ErrorCategory = "permanent"

	// CategoryResource indicates resource exhaustion.
	// Examples: report larger than the allowed buffer.
	CategoryResource ErrorCategory = "resource"

	// CategoryInternal indicates unexpected errors or broken invariants.
	CategoryInternal ErrorCategory = "internal"
)

// String returns the string representation of the category.
func (c ErrorCategory) String() string {
	return string(c)
}

// IsRetryable returns true if errors in this category may succeed on retry.
func (c ErrorCategory) IsRetryable() bool {
	switch c {
	case CategoryTransient, CategoryResource:
		return true
	default:
		return false
	}
}

// ErrorCode identifies specific error types within categories.
type ErrorCode string

// Error codes used by the reporting agent.
const (
	// Transient errors
	ErrCodeTimeout   ErrorCode = "TIMEOUT"   // Operation timed out
	ErrCodeTransport ErrorCode = "TRANSPORT" // Pub/sub transport failure

	// Permanent errors
	ErrCodeInvalidInput   ErrorCode = "INVALID_INPUT"    // Bad caller arguments
	ErrCodeAlreadyStarted ErrorCode = "ALREADY_STARTED"  // Agent already running
	ErrCodePeriodTooShort ErrorCode = "PERIOD_TOO_SHORT" // Period below the floor
	ErrCodeCanceled       ErrorCode = "CANCELED"         // Operation was canceled

	// Resource errors
	ErrCodeNoMemory ErrorCode = "NO_MEMORY" // Buffer could not be allocated

	// Internal errors
	ErrCodeInternal  ErrorCode = "INTERNAL"  // Unexpected internal error
	ErrCodeAssertion ErrorCode = "ASSERTION" // Invariant violation
	ErrCodePanic     ErrorCode = "PANIC"     // Recovered from panic
)

// String returns the string representation of the error code.
func (c ErrorCode) String() string {
	return string(c)
}

// DefaultCategory returns the default category for an error code.
func (c ErrorCode) DefaultCategory() ErrorCategory {
	switch c {
	case ErrCodeTimeout, ErrCodeTransport:
		return CategoryTransient
	case ErrCodeInvalidInput, ErrCodeAlreadyStarted, ErrCodePeriodTooShort, ErrCodeCanceled:
		return CategoryPermanent
	case ErrCodeNoMemory:
		return CategoryResource
	default:
		return CategoryInternal
	}
}

var codeDescriptions = map[ErrorCode]string{
	ErrCodeTimeout:        "operation timed out",
	ErrCodeTransport:      "transport failure",
	ErrCodeInvalidInput:   "invalid input provided",
	ErrCodeAlreadyStarted: "agent already started",
	ErrCodePeriodTooShort: "period below minimum",
	ErrCodeCanceled:       "operation canceled",
	ErrCodeNoMemory:       "buffer allocation failed",
	ErrCodeInternal:       "internal error",
	ErrCodeAssertion:      "assertion failed",
	ErrCodePanic:          "recovered from panic",
}

// Description returns a human-readable description for the error code.
func (c ErrorCode) Description() string {
	if desc, ok := codeDescriptions[c]; ok {
		return desc
	}
	return "unknown error"
}
