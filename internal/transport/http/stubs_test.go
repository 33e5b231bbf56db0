package http

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/victor5516/raffles-api-core/internal/app"
	"github.com/victor5516/raffles-api-core/internal/domain"
)

var testSecret = []byte("test-secret")

type stubPurchases struct {
	purchase domain.Purchase
	decision app.Decision
	err      error

	created  app.CreatePurchaseInput
	imported app.ImportPurchaseInput
	status   domain.PurchaseStatus
	actor    domain.Actor
	notes    string
	id       string
	raw      json.RawMessage
}

func (s *stubPurchases) CreatePurchase(_ context.Context, in app.CreatePurchaseInput) (domain.Purchase, error) {
	s.created = in
	return s.purchase, s.err
}

func (s *stubPurchases) UpdateStatus(_ context.Context, id string, status domain.PurchaseStatus, actor domain.Actor) (domain.Purchase, error) {
	s.id, s.status, s.actor = id, status, actor
	return s.purchase, s.err
}

func (s *stubPurchases) UpdateNotes(_ context.Context, id, notes string) (domain.Purchase, error) {
	s.id, s.notes = id, notes
	return s.purchase, s.err
}

func (s *stubPurchases) ProcessReceiptResult(_ context.Context, id string, raw json.RawMessage) (domain.Purchase, app.Decision, error) {
	s.id, s.raw = id, raw
	return s.purchase, s.decision, s.err
}

func (s *stubPurchases) ImportPurchase(_ context.Context, in app.ImportPurchaseInput) (domain.Purchase, error) {
	s.imported = in
	return s.purchase, s.err
}

type stubQueries struct {
	details domain.PurchaseDetails
	page    app.PurchasePage
	claims  []domain.TicketClaim
	err     error

	filter     domain.PurchaseFilter
	raffleID   string
	nationalID string
}

func (s *stubQueries) GetPurchase(_ context.Context, id string) (domain.PurchaseDetails, error) {
	return s.details, s.err
}

func (s *stubQueries) ListPurchases(_ context.Context, filter domain.PurchaseFilter) (app.PurchasePage, error) {
	s.filter = filter
	return s.page, s.err
}

func (s *stubQueries) SearchTickets(_ context.Context, raffleID, nationalID string) ([]domain.TicketClaim, error) {
	s.raffleID, s.nationalID = raffleID, nationalID
	return s.claims, s.err
}

type stubAdmin struct {
	raffle  domain.Raffle
	method  domain.PaymentMethod
	avail   domain.Availability
	err     error
	created app.CreateRaffleInput
}

func (s *stubAdmin) CreateRaffle(_ context.Context, in app.CreateRaffleInput) (domain.Raffle, error) {
	s.created = in
	return s.raffle, s.err
}

func (s *stubAdmin) ListRaffles(context.Context) ([]domain.Raffle, error) {
	return []domain.Raffle{s.raffle}, s.err
}

func (s *stubAdmin) SetRaffleStatus(_ context.Context, _ string, status domain.RaffleStatus) (domain.Raffle, error) {
	r := s.raffle
	r.Status = status
	return r, s.err
}

func (s *stubAdmin) RaffleAvailability(context.Context, string) (domain.Availability, error) {
	return s.avail, s.err
}

func (s *stubAdmin) CreatePaymentMethod(context.Context, app.CreatePaymentMethodInput) (domain.PaymentMethod, error) {
	return s.method, s.err
}

func (s *stubAdmin) ListPaymentMethods(context.Context) ([]domain.PaymentMethod, error) {
	return []domain.PaymentMethod{s.method}, s.err
}

func newTestRouter(p *stubPurchases, q *stubQueries, a *stubAdmin, webhookSecret string) http.Handler {
	return NewRouter(RouterConfig{
		Purchases:     p,
		Queries:       q,
		Admin:         a,
		JWTSecret:     testSecret,
		WebhookSecret: webhookSecret,
		CORSOrigins:   []string{"http://localhost:5173"},
	})
}

func bearer(t *testing.T, role domain.Role) string {
	t.Helper()
	token, err := IssueToken(testSecret, "admin-1", role, time.Hour, time.Now())
	if err != nil {
		t.Fatalf("issue token: %v", err)
	}
	return "Bearer " + token
}

func doJSON(t *testing.T, h http.Handler, method, path, body, auth string) *httptest.ResponseRecorder {
	t.Helper()
	req := httptest.NewRequest(method, path, bytes.NewBufferString(body))
	req.Header.Set("Content-Type", "application/json")
	if auth != "" {
		req.Header.Set("Authorization", auth)
	}
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	return rec
}

func decodeError(t *testing.T, rec *httptest.ResponseRecorder) errorResponse {
	t.Helper()
	var resp errorResponse
	if err := json.NewDecoder(rec.Body).Decode(&resp); err != nil {
		t.Fatalf("decode error body: %v (%s)", err, rec.Body.String())
	}
	return resp
}
