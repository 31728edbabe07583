package model

import (
	"errors"
	"fmt"
)

// Typed failure kinds shared across the engine. The HTTP layer maps these
// to status codes; nothing in the core ever inspects error strings.
var (
	ErrNotFound      = errors.New("not found")
	ErrInvalidInput  = errors.New("invalid input")
	ErrInvalidAmount = errors.New("invalid amount")
	ErrForbidden     = errors.New("forbidden")

	ErrEventNotOpen        = errors.New("event is not open")
	ErrEventAlreadyStarted = errors.New("event has already started")
	ErrEventAlreadySettled = errors.New("event has already been settled or cancelled")
	ErrAlreadyPredicted    = errors.New("prediction already exists for this event")

	ErrCashoutUnavailable  = errors.New("cashout unavailable")
	ErrExternalUnavailable = errors.New("external provider unavailable")
)

// InsufficientBalanceError is returned when a debit would push a cached
// balance below zero. The enclosing atomic unit rolls back; nothing is
// written.
type InsufficientBalanceError struct {
	Currency  Currency
	Required  int64
	Available int64
}

func (e *InsufficientBalanceError) Error() string {
	return fmt.Sprintf("insufficient %s balance: required %d, available %d",
		e.Currency, e.Required, e.Available)
}

// IsInsufficientBalance reports whether err is an InsufficientBalanceError.
func IsInsufficientBalance(err error) bool {
	var ib *InsufficientBalanceError
	return errors.As(err, &ib)
}
