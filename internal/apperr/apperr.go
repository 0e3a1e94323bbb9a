// Package apperr defines the error taxonomy surfaced by every ledger operation.
//
// Errors carry a Kind (how the caller should treat them) and a Code (which rule was
// broken). Sentinel values compare by code, so a wrapped or field-annotated error still
// matches its sentinel through errors.Is.
package apperr

import (
	"errors"
	"fmt"
	"net/http"
)

// Kind classifies an error by its effect on the caller.
type Kind string

const (
	KindValidation Kind = "validation"
	KindConflict   Kind = "conflict"
	KindState      Kind = "state"
	KindTransfer   Kind = "transfer"
	KindNotFound   Kind = "not_found"
	KindForbidden  Kind = "forbidden"
	KindArithmetic Kind = "arithmetic"
	KindInternal   Kind = "internal"
)

// Code identifies the violated rule.
type Code string

const (
	CodeFieldTooLong     Code = "field_too_long"
	CodeFieldRequired    Code = "field_required"
	CodeInvalidPrice     Code = "invalid_price"
	CodeInvalidRating    Code = "invalid_rating"
	CodeInvalidFeeRate   Code = "invalid_fee_rate"
	CodeInvalidCategory  Code = "invalid_category"
	CodeInvalidCondition Code = "invalid_condition"
	CodeInvalidAmount    Code = "invalid_amount"
	CodeInvalidField     Code = "invalid_field"

	CodeAlreadyInitialized Code = "already_initialized"
	CodeProfileExists      Code = "profile_exists"
	CodeListingExists      Code = "listing_exists"
	CodeDuplicatePurchase  Code = "duplicate_purchase"
	CodeDuplicateReview    Code = "duplicate_review"

	CodeListingNotActive     Code = "listing_not_active"
	CodeAlreadySold          Code = "already_sold"
	CodeAlreadyCompleted     Code = "already_completed"
	CodeDisputed             Code = "disputed"
	CodePurchaseNotCompleted Code = "purchase_not_completed"

	CodeInsufficientFunds Code = "insufficient_funds"
	CodeTransferFailed    Code = "transfer_failed"

	CodeNotFound           Code = "not_found"
	CodeForbidden          Code = "forbidden"
	CodeArithmeticOverflow Code = "arithmetic_overflow"
)

// Error is the structured error returned by the ledger services.
type Error struct {
	Kind    Kind
	Code    Code
	Field   string
	Message string
	Err     error
}

func (e *Error) Error() string {
	if e.Err != nil {
		return e.Message + ": " + e.Err.Error()
	}
	return e.Message
}

func (e *Error) Unwrap() error { return e.Err }

// Is reports whether target is an *Error with the same code.
func (e *Error) Is(target error) bool {
	t, ok := target.(*Error)
	if !ok {
		return false
	}
	return e.Code == t.Code
}

func newError(kind Kind, code Code, msg string) *Error {
	return &Error{Kind: kind, Code: code, Message: msg}
}

var (
	ErrFieldTooLong     = newError(KindValidation, CodeFieldTooLong, "field is too long")
	ErrFieldRequired    = newError(KindValidation, CodeFieldRequired, "field is required")
	ErrInvalidPrice     = newError(KindValidation, CodeInvalidPrice, "price must be greater than zero")
	ErrInvalidRating    = newError(KindValidation, CodeInvalidRating, "rating must be between 1 and 5")
	ErrInvalidFeeRate   = newError(KindValidation, CodeInvalidFeeRate, "fee rate must be between 0 and 10000 basis points")
	ErrInvalidCategory  = newError(KindValidation, CodeInvalidCategory, "unknown category")
	ErrInvalidCondition = newError(KindValidation, CodeInvalidCondition, "unknown condition")
	ErrInvalidAmount    = newError(KindValidation, CodeInvalidAmount, "amount must be greater than zero")

	ErrAlreadyInitialized = newError(KindConflict, CodeAlreadyInitialized, "marketplace already initialized")
	ErrProfileExists      = newError(KindConflict, CodeProfileExists, "profile already exists")
	ErrListingExists      = newError(KindConflict, CodeListingExists, "listing with this title already exists")
	ErrDuplicatePurchase  = newError(KindConflict, CodeDuplicatePurchase, "purchase already recorded for this buyer")
	ErrDuplicateReview    = newError(KindConflict, CodeDuplicateReview, "review already left for this purchase")

	ErrListingNotActive     = newError(KindState, CodeListingNotActive, "listing is not active")
	ErrAlreadySold          = newError(KindState, CodeAlreadySold, "listing is already sold")
	ErrAlreadyCompleted     = newError(KindState, CodeAlreadyCompleted, "purchase is already completed")
	ErrDisputed             = newError(KindState, CodeDisputed, "purchase is disputed")
	ErrPurchaseNotCompleted = newError(KindState, CodePurchaseNotCompleted, "purchase is not completed")

	ErrInsufficientFunds = newError(KindTransfer, CodeInsufficientFunds, "insufficient balance")
	ErrTransferFailed    = newError(KindTransfer, CodeTransferFailed, "fund transfer failed")

	ErrNotFound           = newError(KindNotFound, CodeNotFound, "not found")
	ErrForbidden          = newError(KindForbidden, CodeForbidden, "not allowed")
	ErrArithmeticOverflow = newError(KindArithmetic, CodeArithmeticOverflow, "arithmetic overflow")
)

// FieldTooLong reports that field exceeds max characters.
func FieldTooLong(field string, max int) error {
	return &Error{
		Kind:    KindValidation,
		Code:    CodeFieldTooLong,
		Field:   field,
		Message: fmt.Sprintf("%s must be at most %d characters", field, max),
	}
}

// Invalid reports a field that breaks a rule without a dedicated code.
func Invalid(field, msg string) error {
	return &Error{Kind: KindValidation, Code: CodeInvalidField, Field: field, Message: msg}
}

// Required reports that field is empty.
func Required(field string) error {
	return &Error{Kind: KindValidation, Code: CodeFieldRequired, Field: field, Message: field + " is required"}
}

// NotFound reports a missing entity of the named kind.
func NotFound(entity string) error {
	return &Error{Kind: KindNotFound, Code: CodeNotFound, Field: entity, Message: entity + " not found"}
}

// Forbidden reports that the acting identity may not perform the operation.
func Forbidden(msg string) error {
	return &Error{Kind: KindForbidden, Code: CodeForbidden, Message: msg}
}

// Transfer wraps a fund-movement failure. Errors that already carry the transfer
// kind are returned unchanged.
func Transfer(err error) error {
	if err == nil {
		return nil
	}
	var appErr *Error
	if errors.As(err, &appErr) && appErr.Kind == KindTransfer {
		return err
	}
	return &Error{Kind: KindTransfer, Code: CodeTransferFailed, Message: "fund transfer failed", Err: err}
}

// KindOf returns the kind of err, or KindInternal for errors outside the taxonomy.
func KindOf(err error) Kind {
	var appErr *Error
	if errors.As(err, &appErr) {
		return appErr.Kind
	}
	return KindInternal
}

// CodeOf returns the code of err, or an empty code for errors outside the taxonomy.
func CodeOf(err error) Code {
	var appErr *Error
	if errors.As(err, &appErr) {
		return appErr.Code
	}
	return ""
}

// HTTPStatus maps err to the status code the API responds with.
func HTTPStatus(err error) int {
	switch KindOf(err) {
	case KindValidation:
		return http.StatusBadRequest
	case KindConflict, KindState:
		return http.StatusConflict
	case KindTransfer:
		return http.StatusPaymentRequired
	case KindNotFound:
		return http.StatusNotFound
	case KindForbidden:
		return http.StatusForbidden
	case KindArithmetic:
		return http.StatusUnprocessableEntity
	default:
		return http.StatusInternalServerError
	}
}
