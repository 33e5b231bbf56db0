package http

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"strings"
	"time"

	"github.com/google/logger"

	"github.com/victor5516/raffles-api-core/internal/app"
	"github.com/victor5516/raffles-api-core/internal/domain"
)

// ReceiptProcessor applies an extraction result to a purchase.
type ReceiptProcessor interface {
	ProcessReceiptResult(ctx context.Context, purchaseID string, raw json.RawMessage) (domain.Purchase, app.Decision, error)
}

// PurchaseImporter records purchases coming from the audit system.
type PurchaseImporter interface {
	ImportPurchase(ctx context.Context, in app.ImportPurchaseInput) (domain.Purchase, error)
}

// The worker also sends its own status guess; decisions are made here, so it
// is accepted and ignored.
type aiResultRequest struct {
	PurchaseID string          `json:"purchaseId"`
	Status     string          `json:"status,omitempty"`
	AIResult   json.RawMessage `json:"aiResult"`
}

type decisionResponse struct {
	Status string `json:"status"`
	Reason string `json:"reason,omitempty"`
}

type aiResultResponse struct {
	Purchase purchaseResponse  `json:"purchase"`
	Decision *decisionResponse `json:"decision,omitempty"`
}

func HandleAIResult(svc ReceiptProcessor, log *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var req aiResultRequest
		if err := decodeStrict(r.Body, &req); err != nil {
			writeBodyError(w, err)
			return
		}
		if req.PurchaseID == "" {
			writeError(w, http.StatusBadRequest, codeInvalidRequestBody, "purchaseId is required")
			return
		}

		purchase, decision, err := svc.ProcessReceiptResult(r.Context(), req.PurchaseID, req.AIResult)
		if err != nil {
			writeServiceError(w, log, err)
			return
		}
		resp := aiResultResponse{Purchase: toPurchaseResponse(purchase)}
		if decision.Status != "" {
			resp.Decision = &decisionResponse{Status: string(decision.Status), Reason: decision.Reason}
		}
		writeJSON(w, http.StatusOK, resp)
	}
}

// auditRequest mirrors the flat form the audit system posts. Numbers may
// arrive quoted. The currency comes from the payment method, so
// currency_symbol is accepted but not used.
type auditRequest struct {
	RaffleID          string      `json:"raffle_id"`
	TicketQuantity    json.Number `json:"ticket_quantity"`
	TicketNumbers     []int       `json:"ticket_numbers"`
	BankReference     string      `json:"bank_reference"`
	NationalID        string      `json:"national_id"`
	FullName          string      `json:"full_name"`
	Email             string      `json:"email"`
	Phone             string      `json:"phone"`
	PaymentMethodID   string      `json:"payment_method_id"`
	PaymentMethodName string      `json:"payment_method_name"`
	ScreenshotKey     string      `json:"payment_screenshot"`
	TotalAmount       json.Number `json:"total_amount"`
	CurrencySymbol    string      `json:"currency_symbol"`
	CreatedAt         string      `json:"created_at"`
	Status            string      `json:"status"`
}

func (a auditRequest) input(upload *app.Upload) (app.ImportPurchaseInput, error) {
	quantity, err := a.TicketQuantity.Int64()
	if err != nil {
		return app.ImportPurchaseInput{}, errors.New("invalid ticket_quantity")
	}
	amount, err := a.TotalAmount.Float64()
	if err != nil {
		return app.ImportPurchaseInput{}, errors.New("invalid total_amount")
	}
	var submittedAt *time.Time
	if a.CreatedAt != "" {
		t, err := time.Parse(time.RFC3339, a.CreatedAt)
		if err != nil {
			return app.ImportPurchaseInput{}, errors.New("invalid created_at")
		}
		submittedAt = &t
	}
	return app.ImportPurchaseInput{
		RaffleRef:         a.RaffleID,
		PaymentMethodRef:  a.PaymentMethodID,
		PaymentMethodName: a.PaymentMethodName,
		TicketQuantity:    int(quantity),
		TicketNumbers:     a.TicketNumbers,
		Status:            domain.PurchaseStatus(strings.ToLower(strings.TrimSpace(a.Status))),
		TotalAmount:       amount,
		BankReference:     a.BankReference,
		Customer: app.CustomerInput{
			NationalID: a.NationalID,
			FullName:   a.FullName,
			Email:      a.Email,
			Phone:      a.Phone,
		},
		Screenshot:    upload,
		ScreenshotKey: a.ScreenshotKey,
		SubmittedAt:   submittedAt,
	}, nil
}

// HandleAuditImport accepts JSON, or a multipart form with the same fields as
// form values and the screenshot file in "payment_screenshot".
func HandleAuditImport(svc PurchaseImporter, maxUploadBytes int64, log *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		r.Body = http.MaxBytesReader(w, r.Body, maxUploadBytes)

		var (
			req    auditRequest
			upload *app.Upload
		)
		if isMultipart(r) {
			if err := r.ParseMultipartForm(maxUploadBytes); err != nil {
				writeBodyError(w, err)
				return
			}
			var err error
			if upload, err = formUpload(r, "payment_screenshot"); err != nil {
				writeBodyError(w, err)
				return
			}
			if req, err = auditFromForm(r); err != nil {
				writeError(w, http.StatusBadRequest, codeInvalidRequestBody, err.Error())
				return
			}
		} else if err := decodeStrict(r.Body, &req); err != nil {
			writeBodyError(w, err)
			return
		}

		in, err := req.input(upload)
		if err != nil {
			writeError(w, http.StatusBadRequest, codeInvalidRequestBody, err.Error())
			return
		}
		purchase, err := svc.ImportPurchase(r.Context(), in)
		if err != nil {
			writeServiceError(w, log, err)
			return
		}
		writeJSON(w, http.StatusCreated, toPurchaseResponse(purchase))
	}
}

func auditFromForm(r *http.Request) (auditRequest, error) {
	req := auditRequest{
		RaffleID:          r.FormValue("raffle_id"),
		TicketQuantity:    json.Number(strings.TrimSpace(r.FormValue("ticket_quantity"))),
		BankReference:     r.FormValue("bank_reference"),
		NationalID:        r.FormValue("national_id"),
		FullName:          r.FormValue("full_name"),
		Email:             r.FormValue("email"),
		Phone:             r.FormValue("phone"),
		PaymentMethodID:   r.FormValue("payment_method_id"),
		PaymentMethodName: r.FormValue("payment_method_name"),
		ScreenshotKey:     r.FormValue("payment_screenshot"),
		TotalAmount:       json.Number(strings.TrimSpace(r.FormValue("total_amount"))),
		CurrencySymbol:    r.FormValue("currency_symbol"),
		CreatedAt:         r.FormValue("created_at"),
		Status:            r.FormValue("status"),
	}
	// Arrays travel as JSON text inside the form.
	if raw := strings.TrimSpace(r.FormValue("ticket_numbers")); raw != "" {
		if err := json.Unmarshal([]byte(raw), &req.TicketNumbers); err != nil {
			return auditRequest{}, errors.New("invalid ticket_numbers")
		}
	}
	return req, nil
}
