package domain

import (
	"errors"
	"fmt"
	"sort"
	"strconv"
	"strings"
)

// Error kinds. Every domain error unwraps to exactly one of these.
var (
	ErrNotFound     = errors.New("not found")
	ErrInvalidState = errors.New("invalid state")
	ErrConflict     = errors.New("conflict")
	ErrForbidden    = errors.New("forbidden")
	ErrUnavailable  = errors.New("unavailable")
)

// Error is a named domain error belonging to one kind.
type Error struct {
	kind error
	msg  string
}

func newError(kind error, msg string) *Error {
	return &Error{kind: kind, msg: msg}
}

func (e *Error) Error() string { return e.msg }

func (e *Error) Unwrap() error { return e.kind }

var (
	ErrRaffleNotFound        = newError(ErrNotFound, "raffle not found")
	ErrPurchaseNotFound      = newError(ErrNotFound, "purchase not found")
	ErrCustomerNotFound      = newError(ErrNotFound, "customer not found")
	ErrPaymentMethodNotFound = newError(ErrNotFound, "payment method not found")

	ErrRaffleNotActive       = newError(ErrInvalidState, "raffle is not active")
	ErrInvalidID             = newError(ErrInvalidState, "invalid id")
	ErrInvalidQuantity       = newError(ErrInvalidState, "ticket quantity must be positive")
	ErrInvalidAmount         = newError(ErrInvalidState, "total amount must not be negative")
	ErrInvalidStatus         = newError(ErrInvalidState, "invalid purchase status")
	ErrInvalidPage           = newError(ErrInvalidState, "invalid page")
	ErrInvalidRaffleStatus   = newError(ErrInvalidState, "invalid raffle status")
	ErrInvalidSelectionType  = newError(ErrInvalidState, "invalid selection type")
	ErrInvalidCapacity       = newError(ErrInvalidState, "total tickets must be positive")
	ErrBankReferenceRequired = newError(ErrInvalidState, "bank reference is required")
	ErrCustomerDataRequired  = newError(ErrInvalidState, "customer national id, full name and email are required")
	ErrTitleRequired         = newError(ErrInvalidState, "raffle title is required")
	ErrNameRequired          = newError(ErrInvalidState, "name is required")
	ErrCurrencyRequired      = newError(ErrInvalidState, "currency symbol is required")
	ErrTicketNumbersRequired = newError(ErrInvalidState, "ticket numbers are required for specific raffles")
	ErrTicketCountMismatch   = newError(ErrInvalidState, "ticket numbers count does not match quantity")
	ErrDuplicateTicketNumber = newError(ErrInvalidState, "ticket numbers contain duplicates")
	ErrTicketOutOfRange      = newError(ErrInvalidState, "ticket numbers out of range")
	ErrScreenshotRequired    = newError(ErrInvalidState, "payment screenshot is required")

	ErrTicketsTaken          = newError(ErrConflict, "some selected tickets are already reserved or verified")
	ErrInsufficientTickets   = newError(ErrConflict, "not enough tickets available")
	ErrDrawCongestion        = newError(ErrConflict, "could not assign tickets (congestion), try again")
	ErrDuplicateReference    = newError(ErrConflict, "bank reference already used")
	ErrCustomerEmailTaken    = newError(ErrConflict, "email already registered to another customer")
	ErrPaymentMethodExists   = newError(ErrConflict, "payment method already exists")
	ErrRaffleExternalIDTaken = newError(ErrConflict, "raffle external id already exists")

	ErrRevertForbidden = newError(ErrForbidden, "only a super admin can change a verified purchase")

	ErrLockTimeout = newError(ErrUnavailable, "raffle is busy, retry later")
)

// TicketsTakenError reports which requested numbers are held by live purchases.
type TicketsTakenError struct {
	Numbers []int
}

func (e *TicketsTakenError) Error() string {
	return fmt.Sprintf("%s: %s", ErrTicketsTaken.Error(), joinInts(e.Numbers))
}

func (e *TicketsTakenError) Unwrap() error { return ErrTicketsTaken }

// InsufficientTicketsError reports how many tickets remain available.
type InsufficientTicketsError struct {
	Available int
}

func (e *InsufficientTicketsError) Error() string {
	return fmt.Sprintf("%s: available %d", ErrInsufficientTickets.Error(), e.Available)
}

func (e *InsufficientTicketsError) Unwrap() error { return ErrInsufficientTickets }

// OutOfRangeError lists requested numbers outside [0, totalTickets).
type OutOfRangeError struct {
	Numbers []int
}

func (e *OutOfRangeError) Error() string {
	return fmt.Sprintf("%s: %s", ErrTicketOutOfRange.Error(), joinInts(e.Numbers))
}

func (e *OutOfRangeError) Unwrap() error { return ErrTicketOutOfRange }

func joinInts(nums []int) string {
	sorted := append([]int(nil), nums...)
	sort.Ints(sorted)
	parts := make([]string, len(sorted))
	for i, n := range sorted {
		parts[i] = strconv.Itoa(n)
	}
	return strings.Join(parts, ", ")
}
