package service

import (
	"errors"
	"fmt"
)

// Error kinds. Every error returned by this package matches exactly one of
// these through errors.Is, which is what the HTTP boundary switches on.
var (
	ErrNotFound          = errors.New("not found")
	ErrInvalidState      = errors.New("invalid state")
	ErrInvalidTransition = errors.New("invalid status transition")
	ErrValidation        = errors.New("validation failed")
	ErrExternalService   = errors.New("external service failure")
)

// Errors returned by the services.
var (
	ErrTableNotFound   = kindError(ErrNotFound, "table not found")
	ErrSessionNotFound = kindError(ErrNotFound, "session not found")
	ErrOrderNotFound   = kindError(ErrNotFound, "order not found")

	ErrTableInactive = kindError(ErrInvalidState, "table is not active")
	ErrSessionClosed = kindError(ErrInvalidState, "session is closed")
	ErrOrderTerminal = kindError(ErrInvalidState, "order is in a terminal state")
	ErrAlreadyPaid   = kindError(ErrInvalidState, "order is already paid")
	ErrNothingToPay  = kindError(ErrInvalidState, "order total must be > 0")
	ErrStaleIntent   = kindError(ErrInvalidState, "payment intent does not match the order total")

	ErrEmptyCart           = kindError(ErrValidation, "cart lines are required")
	ErrInvalidQuantity     = kindError(ErrValidation, "quantity must be > 0")
	ErrInvalidPrice        = kindError(ErrValidation, "price must be >= 0")
	ErrPricePrecision      = kindError(ErrValidation, "amounts allow at most 2 decimal places")
	ErrInvalidMenuItemID   = kindError(ErrValidation, "invalid menu_item_id")
	ErrInvalidModifierID   = kindError(ErrValidation, "invalid modifier id")
	ErrInvalidStatus       = kindError(ErrValidation, "invalid status")
	ErrInvalidMethod       = kindError(ErrValidation, "invalid payment method")
	ErrInvalidAdjustment   = kindError(ErrValidation, "invalid payment adjustment")
	ErrInsufficientCash    = kindError(ErrValidation, "amount_received must be >= amount due")
	ErrPriceMismatch       = kindError(ErrValidation, "price snapshot does not match catalog")
	ErrInvalidWebhookEvent = kindError(ErrValidation, "invalid webhook payload")
	ErrUnknownProvider     = kindError(ErrValidation, "unknown payment provider")
	ErrInvalidSignature    = kindError(ErrValidation, "invalid webhook signature")

	ErrGateway = kindError(ErrExternalService, "payment gateway error")
)

type serviceError struct {
	kind error
	msg  string
}

func kindError(kind error, msg string) error {
	return &serviceError{kind: kind, msg: msg}
}

func (e *serviceError) Error() string { return e.msg }
func (e *serviceError) Unwrap() error { return e.kind }

func transitionError(from, to string) error {
	return fmt.Errorf("%w: %s -> %s", ErrInvalidTransition, from, to)
}
