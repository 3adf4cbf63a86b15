package apierror

import (
	"errors"
	"fmt"
	"net/http"

	"github.com/sirupsen/logrus"
)

type ErrorCode string

const (
	ErrNotFound       ErrorCode = "NOT_FOUND"
	ErrConflict       ErrorCode = "CONFLICT"
	ErrInvalidInput   ErrorCode = "INVALID_INPUT"
	ErrInternalServer ErrorCode = "INTERNAL_SERVER_ERROR"
)

// Reason identifies the exact failed precondition so callers never have to
// pattern-match message text.
type Reason string

const (
	ReasonAccountNotFound                    Reason = "ACCOUNT_NOT_FOUND"
	ReasonSourceAccountNotFound              Reason = "SOURCE_ACCOUNT_NOT_FOUND"
	ReasonDestinationAccountNotFound         Reason = "DESTINATION_ACCOUNT_NOT_FOUND"
	ReasonTransactionNotFound                Reason = "TRANSACTION_NOT_FOUND"
	ReasonCurrencyMismatch                   Reason = "CURRENCY_MISMATCH"
	ReasonSourceAccountCurrencyMismatch      Reason = "SOURCE_ACCOUNT_CURRENCY_MISMATCH"
	ReasonDestinationAccountCurrencyMismatch Reason = "DESTINATION_ACCOUNT_CURRENCY_MISMATCH"
	ReasonInsufficientFunds                  Reason = "INSUFFICIENT_FUNDS"
	ReasonDuplicateReference                 Reason = "DUPLICATE_REFERENCE"
	ReasonAccountNotActive                   Reason = "ACCOUNT_NOT_ACTIVE"
	ReasonAccountBalanceNotZero              Reason = "ACCOUNT_BALANCE_NOT_ZERO"
	ReasonVersionConflict                    Reason = "VERSION_CONFLICT"
	ReasonAccountLocked                      Reason = "ACCOUNT_LOCKED"
)

type APIError struct {
	Code    ErrorCode   `json:"code"`
	Reason  Reason      `json:"reason,omitempty"`
	Message string      `json:"message"`
	Details interface{} `json:"details,omitempty"`
}

func (e APIError) Error() string {
	return fmt.Sprintf("%s: %s", e.Code, e.Message)
}

func NewAPIError(code ErrorCode, message string, details interface{}) APIError {
	logrus.Error(details)
	return APIError{
		Code:    code,
		Message: message,
		Details: details,
	}
}

// NewReasonError builds a typed error carrying both the taxonomy code and the
// precise reason for the failed precondition.
func NewReasonError(code ErrorCode, reason Reason, message string, details interface{}) APIError {
	return APIError{
		Code:    code,
		Reason:  reason,
		Message: message,
		Details: details,
	}
}

// CodeOf extracts the taxonomy code from err, defaulting to ErrInternalServer
// for anything that is not an APIError.
func CodeOf(err error) ErrorCode {
	var apiErr APIError
	if errors.As(err, &apiErr) {
		return apiErr.Code
	}
	return ErrInternalServer
}

// ReasonOf extracts the precondition reason from err, empty when absent.
func ReasonOf(err error) Reason {
	var apiErr APIError
	if errors.As(err, &apiErr) {
		return apiErr.Reason
	}
	return ""
}

func MapErrorToHTTPStatus(err error) int {
	if apiErr, ok := err.(APIError); ok {
		switch apiErr.Code {
		case ErrNotFound:
			return http.StatusNotFound
		case ErrConflict:
			return http.StatusConflict
		case ErrInvalidInput:
			return http.StatusBadRequest
		case ErrInternalServer:
			return http.StatusInternalServerError
		default:
			return http.StatusInternalServerError
		}
	}
	return http.StatusInternalServerError
}
