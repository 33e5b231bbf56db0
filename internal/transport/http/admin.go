package http

import (
	"context"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/google/logger"

	"github.com/victor5516/raffles-api-core/internal/app"
	"github.com/victor5516/raffles-api-core/internal/domain"
)

// PurchaseReviewer is what admins use to inspect and move purchases.
type PurchaseReviewer interface {
	GetPurchase(ctx context.Context, id string) (domain.PurchaseDetails, error)
	ListPurchases(ctx context.Context, filter domain.PurchaseFilter) (app.PurchasePage, error)
}

type PurchaseStatusUpdater interface {
	UpdateStatus(ctx context.Context, purchaseID string, status domain.PurchaseStatus, actor domain.Actor) (domain.Purchase, error)
	UpdateNotes(ctx context.Context, purchaseID, notes string) (domain.Purchase, error)
}

// AdminRaffleService is the minimal interface needed for admin raffle and
// payment method endpoints.
type AdminRaffleService interface {
	CreateRaffle(ctx context.Context, in app.CreateRaffleInput) (domain.Raffle, error)
	ListRaffles(ctx context.Context) ([]domain.Raffle, error)
	SetRaffleStatus(ctx context.Context, id string, status domain.RaffleStatus) (domain.Raffle, error)
	RaffleAvailability(ctx context.Context, raffleID string) (domain.Availability, error)
	CreatePaymentMethod(ctx context.Context, in app.CreatePaymentMethodInput) (domain.PaymentMethod, error)
	ListPaymentMethods(ctx context.Context) ([]domain.PaymentMethod, error)
}

func HandleListPurchases(svc PurchaseReviewer, log *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		q := r.URL.Query()
		filter := domain.PurchaseFilter{
			RaffleID:   q.Get("raffle_id"),
			Status:     domain.PurchaseStatus(q.Get("status")),
			NationalID: q.Get("national_id"),
		}
		var ok bool
		if filter.Page, ok = queryInt(w, q.Get("page"), "page"); !ok {
			return
		}
		if filter.Page > app.MaxListPage {
			writeError(w, http.StatusBadRequest, codeInvalidState, "invalid page")
			return
		}
		if filter.Limit, ok = queryInt(w, q.Get("limit"), "limit"); !ok {
			return
		}
		if raw := q.Get("ticket_number"); raw != "" {
			n, err := strconv.Atoi(raw)
			if err != nil || n < 0 {
				writeError(w, http.StatusBadRequest, codeInvalidState, "invalid ticket_number")
				return
			}
			filter.TicketNumber = &n
		}

		page, err := svc.ListPurchases(r.Context(), filter)
		if err != nil {
			writeServiceError(w, log, err)
			return
		}
		writeJSON(w, http.StatusOK, toPageResponse(page))
	}
}

func HandleGetPurchase(svc PurchaseReviewer, log *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		details, err := svc.GetPurchase(r.Context(), chi.URLParam(r, "id"))
		if err != nil {
			writeServiceError(w, log, err)
			return
		}
		writeJSON(w, http.StatusOK, toDetailsResponse(details))
	}
}

type updateStatusRequest struct {
	Status string `json:"status"`
}

func HandleUpdatePurchaseStatus(svc PurchaseStatusUpdater, log *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		actor, ok := ActorFromContext(r.Context())
		if !ok {
			writeError(w, http.StatusUnauthorized, codeUnauthorized, "unauthorized")
			return
		}
		var req updateStatusRequest
		if err := decodeStrict(r.Body, &req); err != nil {
			writeBodyError(w, err)
			return
		}
		purchase, err := svc.UpdateStatus(r.Context(), chi.URLParam(r, "id"), domain.PurchaseStatus(req.Status), actor)
		if err != nil {
			writeServiceError(w, log, err)
			return
		}
		writeJSON(w, http.StatusOK, toPurchaseResponse(purchase))
	}
}

type updateNotesRequest struct {
	Notes string `json:"notes"`
}

func HandleUpdatePurchaseNotes(svc PurchaseStatusUpdater, log *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var req updateNotesRequest
		if err := decodeStrict(r.Body, &req); err != nil {
			writeBodyError(w, err)
			return
		}
		purchase, err := svc.UpdateNotes(r.Context(), chi.URLParam(r, "id"), req.Notes)
		if err != nil {
			writeServiceError(w, log, err)
			return
		}
		writeJSON(w, http.StatusOK, toPurchaseResponse(purchase))
	}
}

type createRaffleRequest struct {
	Title         string  `json:"title"`
	TotalTickets  int     `json:"total_tickets"`
	SelectionType string  `json:"selection_type"`
	Status        string  `json:"status,omitempty"`
	TicketPrice   float64 `json:"ticket_price"`
	Deadline      string  `json:"deadline,omitempty"`
	ExternalID    string  `json:"external_id,omitempty"`
}

// HandleAdminRaffles lists raffles on GET and creates one on POST.
func HandleAdminRaffles(svc AdminRaffleService, log *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		switch r.Method {
		case http.MethodGet:
			raffles, err := svc.ListRaffles(r.Context())
			if err != nil {
				writeServiceError(w, log, err)
				return
			}
			resp := make([]raffleResponse, 0, len(raffles))
			for _, raffle := range raffles {
				resp = append(resp, toRaffleResponse(raffle))
			}
			writeJSON(w, http.StatusOK, resp)
		case http.MethodPost:
			var req createRaffleRequest
			if err := decodeStrict(r.Body, &req); err != nil {
				writeBodyError(w, err)
				return
			}
			var deadline *time.Time
			if req.Deadline != "" {
				parsed, err := time.Parse(time.RFC3339, req.Deadline)
				if err != nil {
					writeError(w, http.StatusBadRequest, codeInvalidState, "invalid deadline format")
					return
				}
				deadline = &parsed
			}
			raffle, err := svc.CreateRaffle(r.Context(), app.CreateRaffleInput{
				Title:         req.Title,
				TotalTickets:  req.TotalTickets,
				SelectionType: domain.SelectionType(req.SelectionType),
				Status:        domain.RaffleStatus(req.Status),
				TicketPrice:   req.TicketPrice,
				Deadline:      deadline,
				ExternalID:    req.ExternalID,
			})
			if err != nil {
				writeServiceError(w, log, err)
				return
			}
			writeJSON(w, http.StatusCreated, toRaffleResponse(raffle))
		default:
			writeError(w, http.StatusMethodNotAllowed, codeMethodNotAllowed, "method not allowed")
		}
	}
}

type setRaffleStatusRequest struct {
	Status string `json:"status"`
}

func HandleSetRaffleStatus(svc AdminRaffleService, log *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var req setRaffleStatusRequest
		if err := decodeStrict(r.Body, &req); err != nil {
			writeBodyError(w, err)
			return
		}
		raffle, err := svc.SetRaffleStatus(r.Context(), chi.URLParam(r, "id"), domain.RaffleStatus(req.Status))
		if err != nil {
			writeServiceError(w, log, err)
			return
		}
		writeJSON(w, http.StatusOK, toRaffleResponse(raffle))
	}
}

func HandleRaffleAvailability(svc AdminRaffleService, log *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		a, err := svc.RaffleAvailability(r.Context(), chi.URLParam(r, "id"))
		if err != nil {
			writeServiceError(w, log, err)
			return
		}
		writeJSON(w, http.StatusOK, availabilityResponse{
			RaffleID:     a.RaffleID,
			TotalTickets: a.TotalTickets,
			Occupied:     a.Occupied,
			Available:    a.Available,
		})
	}
}

type createPaymentMethodRequest struct {
	Name           string `json:"name"`
	CurrencySymbol string `json:"currency_symbol"`
	ExternalID     string `json:"external_id,omitempty"`
}

func HandleAdminPaymentMethods(svc AdminRaffleService, log *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		switch r.Method {
		case http.MethodGet:
			methods, err := svc.ListPaymentMethods(r.Context())
			if err != nil {
				writeServiceError(w, log, err)
				return
			}
			resp := make([]paymentMethodResponse, 0, len(methods))
			for _, m := range methods {
				resp = append(resp, toPaymentMethodResponse(m))
			}
			writeJSON(w, http.StatusOK, resp)
		case http.MethodPost:
			var req createPaymentMethodRequest
			if err := decodeStrict(r.Body, &req); err != nil {
				writeBodyError(w, err)
				return
			}
			m, err := svc.CreatePaymentMethod(r.Context(), app.CreatePaymentMethodInput{
				Name:           req.Name,
				CurrencySymbol: req.CurrencySymbol,
				ExternalID:     req.ExternalID,
			})
			if err != nil {
				writeServiceError(w, log, err)
				return
			}
			writeJSON(w, http.StatusCreated, toPaymentMethodResponse(m))
		default:
			writeError(w, http.StatusMethodNotAllowed, codeMethodNotAllowed, "method not allowed")
		}
	}
}

func queryInt(w http.ResponseWriter, raw, name string) (int, bool) {
	if raw == "" {
		return 0, true
	}
	n, err := strconv.Atoi(raw)
	if err != nil {
		writeError(w, http.StatusBadRequest, codeInvalidState, "invalid "+name)
		return 0, false
	}
	return n, true
}
