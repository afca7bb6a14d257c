package repositories

import "fmt"

// CommissionErrorCode enumerates failure reasons for commission operations.
type CommissionErrorCode string

const (
	// CommissionErrorUnknown represents an unspecified failure.
	CommissionErrorUnknown CommissionErrorCode = "commission_unknown"
	// CommissionErrorInvalidInput indicates the caller supplied invalid arguments.
	CommissionErrorInvalidInput CommissionErrorCode = "commission_invalid_input"
	// CommissionErrorOrganizationNotFound indicates the organization document is missing.
	CommissionErrorOrganizationNotFound CommissionErrorCode = "commission_organization_not_found"
	// CommissionErrorExceedsBalance indicates the payment is larger than the unpaid balance.
	CommissionErrorExceedsBalance CommissionErrorCode = "commission_exceeds_balance"
)

// CommissionError wraps commission-specific failures with machine readable codes.
type CommissionError struct {
	Op      string
	Code    CommissionErrorCode
	Message string
	Err     error
}

// Error implements the error interface.
func (e *CommissionError) Error() string {
	if e == nil {
		return ""
	}
	if e.Op != "" {
		return fmt.Sprintf("%s: %s", e.Op, e.Message)
	}
	return e.Message
}

// Unwrap exposes the underlying error, if any.
func (e *CommissionError) Unwrap() error {
	if e == nil {
		return nil
	}
	return e.Err
}

// NewCommissionError constructs a typed commission error.
func NewCommissionError(code CommissionErrorCode, message string, err error) *CommissionError {
	if message == "" {
		message = string(code)
	}
	return &CommissionError{
		Code:    code,
		Message: message,
		Err:     err,
	}
}
