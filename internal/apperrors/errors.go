// Package apperrors carries the error taxonomy shared by the checkout funnel,
// the fulfillment trigger and the scanner.
package apperrors

import (
	"errors"
	"fmt"
	"net/http"
)

type Code string

const (
	CodeValidation          Code = "VALIDATION_ERROR"
	CodeTermsNotAccepted    Code = "TERMS_NOT_ACCEPTED"
	CodePaymentDeclined     Code = "PAYMENT_DECLINED"
	CodePaymentTimeout      Code = "PAYMENT_TIMEOUT"
	CodeInventoryExceeded   Code = "INVENTORY_EXCEEDED"
	CodeOrderNotFound       Code = "ORDER_NOT_FOUND"
	CodeEventNotFound       Code = "EVENT_NOT_FOUND"
	CodeWrongEvent          Code = "WRONG_EVENT"
	CodeFulfillmentFailed   Code = "FULFILLMENT_DELIVERY_FAILED"
	CodeInvalidTransition   Code = "INVALID_TRANSITION"
	CodeConcurrentUpdate    Code = "CONCURRENT_UPDATE"
	CodeInvalidPayload      Code = "INVALID_PAYLOAD"
	CodeUnitNotFound        Code = "UNIT_NOT_FOUND"
	CodeOrderNotPaid        Code = "ORDER_NOT_PAID"
	CodeUnauthorized        Code = "UNAUTHORIZED"
	CodeInternal            Code = "INTERNAL_ERROR"
)

var (
	ErrValidation                = New(CodeValidation, "validation failed")
	ErrTermsNotAccepted          = New(CodeTermsNotAccepted, "terms must be accepted before payment")
	ErrPaymentDeclined           = New(CodePaymentDeclined, "payment was declined")
	ErrPaymentTimeout            = New(CodePaymentTimeout, "payment gateway timed out")
	ErrInventoryExceeded         = New(CodeInventoryExceeded, "requested quantity exceeds available inventory")
	ErrOrderNotFound             = New(CodeOrderNotFound, "order not found")
	ErrEventNotFound             = New(CodeEventNotFound, "event not found")
	ErrWrongEvent                = New(CodeWrongEvent, "order belongs to a different event")
	ErrFulfillmentDeliveryFailed = New(CodeFulfillmentFailed, "fulfillment delivery failed")
	ErrInvalidTransition         = New(CodeInvalidTransition, "order cannot make this transition")
	ErrConcurrentUpdate          = New(CodeConcurrentUpdate, "order was modified concurrently")
	ErrInvalidPayload            = New(CodeInvalidPayload, "ticket payload is invalid")
	ErrUnitNotFound              = New(CodeUnitNotFound, "ticket unit not found on order")
	ErrOrderNotPaid              = New(CodeOrderNotPaid, "order is not paid")
	ErrUnauthorized              = New(CodeUnauthorized, "authentication required")
)

var statusByCode = map[Code]int{
	CodeValidation:        http.StatusBadRequest,
	CodeTermsNotAccepted:  http.StatusBadRequest,
	CodePaymentDeclined:   http.StatusPaymentRequired,
	CodePaymentTimeout:    http.StatusGatewayTimeout,
	CodeInventoryExceeded: http.StatusConflict,
	CodeOrderNotFound:     http.StatusNotFound,
	CodeEventNotFound:     http.StatusNotFound,
	CodeWrongEvent:        http.StatusConflict,
	CodeFulfillmentFailed: http.StatusBadGateway,
	CodeInvalidTransition: http.StatusUnprocessableEntity,
	CodeConcurrentUpdate:  http.StatusConflict,
	CodeInvalidPayload:    http.StatusBadRequest,
	CodeUnitNotFound:      http.StatusNotFound,
	CodeOrderNotPaid:      http.StatusUnprocessableEntity,
	CodeUnauthorized:      http.StatusUnauthorized,
	CodeInternal:          http.StatusInternalServerError,
}

// Error is a coded error. Two errors are equal under errors.Is when their
// codes match, so callers compare against the package sentinels.
type Error struct {
	code    Code
	message string
	details any
	cause   error
}

func New(code Code, message string) *Error {
	return &Error{code: code, message: message}
}

func Wrap(code Code, err error, message string) *Error {
	return &Error{code: code, message: message, cause: err}
}

// Newf derives a new error from a sentinel with a specific message.
func (e *Error) Newf(format string, args ...any) *Error {
	return &Error{code: e.code, message: fmt.Sprintf(format, args...)}
}

// WithCause derives a new error from a sentinel wrapping err.
func (e *Error) WithCause(err error) *Error {
	return &Error{code: e.code, message: e.message, details: e.details, cause: err}
}

func (e *Error) WithDetails(details any) *Error {
	return &Error{code: e.code, message: e.message, details: details, cause: e.cause}
}

func (e *Error) Code() Code {
	if e == nil {
		return CodeInternal
	}
	return e.code
}

func (e *Error) Message() string {
	return e.message
}

func (e *Error) Details() any {
	return e.details
}

func (e *Error) Error() string {
	if e.cause != nil {
		return fmt.Sprintf("%s: %s: %v", e.code, e.message, e.cause)
	}
	return fmt.Sprintf("%s: %s", e.code, e.message)
}

func (e *Error) Unwrap() error {
	return e.cause
}

func (e *Error) Is(target error) bool {
	var t *Error
	if !errors.As(target, &t) {
		return false
	}
	return t.code == e.code
}

// As extracts the outermost coded error from err.
func As(err error) (*Error, bool) {
	var e *Error
	if errors.As(err, &e) {
		return e, true
	}
	return nil, false
}

// CodeOf returns the code of err, or CodeInternal for uncoded errors.
func CodeOf(err error) Code {
	if e, ok := As(err); ok {
		return e.code
	}
	return CodeInternal
}

func HTTPStatus(err error) int {
	if status, ok := statusByCode[CodeOf(err)]; ok {
		return status
	}
	return http.StatusInternalServerError
}
