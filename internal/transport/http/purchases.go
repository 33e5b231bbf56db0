package http

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"strings"

	"github.com/google/logger"

	"github.com/victor5516/raffles-api-core/internal/app"
	"github.com/victor5516/raffles-api-core/internal/domain"
)

// PurchaseCreator is the minimal interface needed to submit a purchase.
type PurchaseCreator interface {
	CreatePurchase(ctx context.Context, in app.CreatePurchaseInput) (domain.Purchase, error)
}

// TicketSearcher looks up the tickets a customer holds in a raffle.
type TicketSearcher interface {
	SearchTickets(ctx context.Context, raffleID, nationalID string) ([]domain.TicketClaim, error)
}

type customerRequest struct {
	NationalID string `json:"national_id"`
	FullName   string `json:"full_name"`
	Email      string `json:"email"`
	Phone      string `json:"phone"`
}

func (c customerRequest) input() app.CustomerInput {
	return app.CustomerInput{
		NationalID: c.NationalID,
		FullName:   c.FullName,
		Email:      c.Email,
		Phone:      c.Phone,
	}
}

type createPurchaseRequest struct {
	RaffleID        string          `json:"raffle_id"`
	PaymentMethodID string          `json:"payment_method_id"`
	TicketQuantity  int             `json:"ticket_quantity"`
	TicketNumbers   []int           `json:"ticket_numbers"`
	TotalAmount     float64         `json:"total_amount"`
	BankReference   string          `json:"bank_reference"`
	ScreenshotKey   string          `json:"payment_screenshot_key"`
	Customer        customerRequest `json:"customer"`
}

func (r createPurchaseRequest) validate() error {
	if r.RaffleID == "" || r.PaymentMethodID == "" {
		return errors.New("raffle_id and payment_method_id are required")
	}
	return nil
}

// HandleCreatePurchase accepts a JSON body, or a multipart form with the same
// JSON in a "payload" field and the payment screenshot in "screenshot".
func HandleCreatePurchase(svc PurchaseCreator, maxUploadBytes int64, log *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		r.Body = http.MaxBytesReader(w, r.Body, maxUploadBytes)

		var (
			req    createPurchaseRequest
			upload *app.Upload
		)
		if isMultipart(r) {
			payload, up, ok := readMultipart(w, r, maxUploadBytes, "payload", "screenshot")
			if !ok {
				return
			}
			if err := decodeStrict(strings.NewReader(payload), &req); err != nil {
				writeError(w, http.StatusBadRequest, codeInvalidRequestBody, "invalid payload field")
				return
			}
			upload = up
		} else if err := decodeStrict(r.Body, &req); err != nil {
			writeBodyError(w, err)
			return
		}
		if err := req.validate(); err != nil {
			writeError(w, http.StatusBadRequest, codeInvalidRequestBody, err.Error())
			return
		}

		purchase, err := svc.CreatePurchase(r.Context(), app.CreatePurchaseInput{
			RaffleID:        req.RaffleID,
			PaymentMethodID: req.PaymentMethodID,
			TicketQuantity:  req.TicketQuantity,
			TicketNumbers:   req.TicketNumbers,
			TotalAmount:     req.TotalAmount,
			BankReference:   req.BankReference,
			Customer:        req.Customer.input(),
			Screenshot:      upload,
			ScreenshotKey:   req.ScreenshotKey,
		})
		if err != nil {
			writeServiceError(w, log, err)
			return
		}
		writeJSON(w, http.StatusCreated, toPurchaseResponse(purchase))
	}
}

// HandleSearchTickets serves GET /purchases/tickets?raffle_id=&national_id=.
func HandleSearchTickets(svc TicketSearcher, log *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		q := r.URL.Query()
		claims, err := svc.SearchTickets(r.Context(), q.Get("raffle_id"), q.Get("national_id"))
		if err != nil {
			writeServiceError(w, log, err)
			return
		}
		resp := make([]ticketClaimResponse, 0, len(claims))
		for _, c := range claims {
			resp = append(resp, ticketClaimResponse{
				RaffleID:       c.RaffleID,
				TicketNumber:   c.TicketNumber,
				PurchaseID:     c.PurchaseID,
				PurchaseStatus: string(c.PurchaseStatus),
				CustomerName:   c.CustomerName,
				NationalID:     c.NationalID,
				SubmittedAt:    c.SubmittedAt,
			})
		}
		writeJSON(w, http.StatusOK, resp)
	}
}

func decodeStrict(r io.Reader, v any) error {
	dec := json.NewDecoder(r)
	dec.DisallowUnknownFields()
	return dec.Decode(v)
}

func writeBodyError(w http.ResponseWriter, err error) {
	var tooLarge *http.MaxBytesError
	if errors.As(err, &tooLarge) {
		writeError(w, http.StatusRequestEntityTooLarge, codePayloadTooLarge, "request body too large")
		return
	}
	writeError(w, http.StatusBadRequest, codeInvalidRequestBody, "invalid request body")
}

func isMultipart(r *http.Request) bool {
	return strings.HasPrefix(r.Header.Get("Content-Type"), "multipart/form-data")
}

// readMultipart parses the form and returns the text field and the optional
// file. On failure it has already written the response.
func readMultipart(w http.ResponseWriter, r *http.Request, maxBytes int64, field, fileField string) (string, *app.Upload, bool) {
	if err := r.ParseMultipartForm(maxBytes); err != nil {
		writeBodyError(w, err)
		return "", nil, false
	}
	upload, err := formUpload(r, fileField)
	if err != nil {
		writeBodyError(w, err)
		return "", nil, false
	}
	return r.FormValue(field), upload, true
}

func formUpload(r *http.Request, field string) (*app.Upload, error) {
	file, header, err := r.FormFile(field)
	if errors.Is(err, http.ErrMissingFile) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	defer file.Close()
	data, err := io.ReadAll(file)
	if err != nil {
		return nil, err
	}
	return &app.Upload{
		Filename:    header.Filename,
		ContentType: header.Header.Get("Content-Type"),
		Data:        data,
	}, nil
}
