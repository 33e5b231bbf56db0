package http

import (
	"encoding/json"
	"errors"
	"net/http"

	"github.com/google/logger"

	"github.com/victor5516/raffles-api-core/internal/domain"
)

const (
	codeMethodNotAllowed   = "method_not_allowed"
	codeNotFound           = "not_found"
	codeInvalidRequestBody = "invalid_request_body"
	codePayloadTooLarge    = "payload_too_large"
	codeUnauthorized       = "unauthorized"
	codeForbidden          = "forbidden"
	codeInvalidState       = "invalid_request"
	codeConflict           = "conflict"
	codeUnavailable        = "unavailable"
	codeTicketsTaken       = "tickets_taken"
	codeInsufficient       = "insufficient_tickets"
	codeOutOfRange         = "ticket_out_of_range"
	codeInternalError      = "internal_error"
)

// errorCodes names the domain errors clients are expected to branch on.
var errorCodes = []struct {
	err  error
	code string
}{
	{domain.ErrRaffleNotFound, "raffle_not_found"},
	{domain.ErrPurchaseNotFound, "purchase_not_found"},
	{domain.ErrCustomerNotFound, "customer_not_found"},
	{domain.ErrPaymentMethodNotFound, "payment_method_not_found"},
	{domain.ErrRaffleNotActive, "raffle_not_active"},
	{domain.ErrInvalidID, "invalid_id"},
	{domain.ErrInvalidQuantity, "invalid_quantity"},
	{domain.ErrInvalidAmount, "invalid_amount"},
	{domain.ErrInvalidStatus, "invalid_status"},
	{domain.ErrInvalidRaffleStatus, "invalid_raffle_status"},
	{domain.ErrInvalidSelectionType, "invalid_selection_type"},
	{domain.ErrInvalidCapacity, "invalid_capacity"},
	{domain.ErrBankReferenceRequired, "bank_reference_required"},
	{domain.ErrCustomerDataRequired, "customer_data_required"},
	{domain.ErrTitleRequired, "title_required"},
	{domain.ErrNameRequired, "name_required"},
	{domain.ErrCurrencyRequired, "currency_required"},
	{domain.ErrTicketNumbersRequired, "ticket_numbers_required"},
	{domain.ErrTicketCountMismatch, "ticket_count_mismatch"},
	{domain.ErrDuplicateTicketNumber, "duplicate_ticket_number"},
	{domain.ErrScreenshotRequired, "screenshot_required"},
	{domain.ErrDrawCongestion, "draw_congestion"},
	{domain.ErrDuplicateReference, "duplicate_reference"},
	{domain.ErrCustomerEmailTaken, "customer_email_taken"},
	{domain.ErrPaymentMethodExists, "payment_method_exists"},
	{domain.ErrRaffleExternalIDTaken, "raffle_external_id_taken"},
	{domain.ErrRevertForbidden, "revert_forbidden"},
	{domain.ErrLockTimeout, "raffle_busy"},
}

type errorResponse struct {
	Error              string `json:"error"`
	Code               string `json:"code"`
	UnavailableNumbers []int  `json:"unavailable_numbers,omitempty"`
	InvalidNumbers     []int  `json:"invalid_numbers,omitempty"`
	Available          *int   `json:"available,omitempty"`
}

func writeError(w http.ResponseWriter, status int, code, msg string) {
	writeErrorBody(w, status, errorResponse{Error: msg, Code: code})
}

func writeErrorBody(w http.ResponseWriter, status int, body errorResponse) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)

	payload, err := json.Marshal(body)
	if err != nil {
		_, _ = w.Write([]byte(`{"error":"internal error","code":"internal_error"}`))
		return
	}
	_, _ = w.Write(payload)
}

// writeServiceError maps a service error onto a status by its kind.
// Unclassified errors are logged and reported as 500 without detail.
func writeServiceError(w http.ResponseWriter, log *logger.Logger, err error) {
	var (
		taken        *domain.TicketsTakenError
		outOfRange   *domain.OutOfRangeError
		insufficient *domain.InsufficientTicketsError
	)
	switch {
	case errors.As(err, &taken):
		writeErrorBody(w, http.StatusConflict, errorResponse{
			Error: err.Error(), Code: codeTicketsTaken, UnavailableNumbers: taken.Numbers,
		})
		return
	case errors.As(err, &insufficient):
		available := insufficient.Available
		writeErrorBody(w, http.StatusConflict, errorResponse{
			Error: err.Error(), Code: codeInsufficient, Available: &available,
		})
		return
	case errors.As(err, &outOfRange):
		writeErrorBody(w, http.StatusBadRequest, errorResponse{
			Error: err.Error(), Code: codeOutOfRange, InvalidNumbers: outOfRange.Numbers,
		})
		return
	}

	var status int
	code := ""
	switch {
	case errors.Is(err, domain.ErrNotFound):
		status, code = http.StatusNotFound, codeNotFound
	case errors.Is(err, domain.ErrInvalidState):
		status, code = http.StatusBadRequest, codeInvalidState
	case errors.Is(err, domain.ErrConflict):
		status, code = http.StatusConflict, codeConflict
	case errors.Is(err, domain.ErrForbidden):
		status, code = http.StatusForbidden, codeForbidden
	case errors.Is(err, domain.ErrUnavailable):
		w.Header().Set("Retry-After", "1")
		status, code = http.StatusServiceUnavailable, codeUnavailable
	default:
		if log != nil {
			log.Errorf("request failed: %v", err)
		}
		writeError(w, http.StatusInternalServerError, codeInternalError, "internal error")
		return
	}
	for _, c := range errorCodes {
		if errors.Is(err, c.err) {
			code = c.code
			break
		}
	}
	writeError(w, status, code, err.Error())
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}
