package apperror

import (
	"fmt"
	"net/http"
)

// AppError is a structured error that maps to HTTP responses.
type AppError struct {
	Code       string `json:"error_code"`
	Message    string `json:"message"`
	HTTPStatus int    `json:"-"`
	Err        error  `json:"-"` // Wrapped internal error (not exposed to client)
}

func (e *AppError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("[%s] %s: %v", e.Code, e.Message, e.Err)
	}
	return fmt.Sprintf("[%s] %s", e.Code, e.Message)
}

func (e *AppError) Unwrap() error {
	return e.Err
}

// New creates a new AppError.
func New(code string, message string, httpStatus int) *AppError {
	return &AppError{
		Code:       code,
		Message:    message,
		HTTPStatus: httpStatus,
	}
}

// Wrap wraps an internal error with an AppError.
func Wrap(code string, message string, httpStatus int, err error) *AppError {
	return &AppError{
		Code:       code,
		Message:    message,
		HTTPStatus: httpStatus,
		Err:        err,
	}
}

// ---- Validation (VAL) ----

// Validation returns a field-level validation error.
func Validation(message string) *AppError {
	return New("VAL_001", message, http.StatusBadRequest)
}

// ---- Currency (CUR) ----

func ErrUnsupportedCurrency(code string) *AppError {
	return New("CUR_001", fmt.Sprintf("Unsupported currency: %s", code), http.StatusBadRequest)
}

// ---- Payment Business Logic (PAY) ----

func ErrInsufficientBalance() *AppError {
	return New("PAY_001", "Insufficient wallet balance", http.StatusPaymentRequired)
}

func ErrInvalidAmount() *AppError {
	return New("PAY_002", "Invalid amount", http.StatusBadRequest)
}

func ErrUnsupportedPaymentMethod(method string) *AppError {
	return New("PAY_003", fmt.Sprintf("Unsupported payment method: %s", method), http.StatusBadRequest)
}

func ErrNotFound(entity string) *AppError {
	return New("PAY_004", fmt.Sprintf("%s not found", entity), http.StatusNotFound)
}

func ErrInvalidPaymentState(state string) *AppError {
	return New("PAY_005", fmt.Sprintf("Payment state does not allow this operation: %s", state), http.StatusConflict)
}

func ErrRetryLimitExceeded() *AppError {
	return New("PAY_006", "Payment retry limit exceeded", http.StatusUnprocessableEntity)
}

func ErrProvider(err error) *AppError {
	return Wrap("PAY_007", "Payment provider error", http.StatusInternalServerError, err)
}

// ---- Escrow (ESC) ----

func ErrInvalidEscrowState(state string) *AppError {
	return New("ESC_001", fmt.Sprintf("Escrow state does not allow this operation: %s", state), http.StatusConflict)
}

func ErrDisputeAlreadyOpen() *AppError {
	return New("ESC_002", "Escrow already has an open dispute", http.StatusConflict)
}

// ---- Authentication & Authorization (AUTH) ----

func ErrInvalidCredentials() *AppError {
	return New("AUTH_001", "Invalid credentials", http.StatusUnauthorized)
}

func ErrUsernameExists() *AppError {
	return New("AUTH_002", "Username already exists", http.StatusConflict)
}

func ErrInvalidToken() *AppError {
	return New("AUTH_003", "Invalid or expired token", http.StatusUnauthorized)
}

func ErrNotAuthorized() *AppError {
	return New("AUTH_004", "Not authorized to perform this action", http.StatusForbidden)
}

// ---- Rate Limiting (RATE) ----

func ErrRateLimitExceeded() *AppError {
	return New("RATE_001", "Rate limit exceeded", http.StatusTooManyRequests)
}

// ---- System & Infrastructure (SYS) ----

// InternalError wraps an internal error as a SYS_001 error.
func InternalError(err error) *AppError {
	return Wrap("SYS_001", "Internal server error", http.StatusInternalServerError, err)
}
