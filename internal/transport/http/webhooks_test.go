package http

import (
	"bytes"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/victor5516/raffles-api-core/internal/app"
	"github.com/victor5516/raffles-api-core/internal/domain"
)

func TestWebhooks_RequireSecret(t *testing.T) {
	t.Parallel()

	h := newTestRouter(&stubPurchases{}, &stubQueries{}, &stubAdmin{}, "s3cret")
	body := `{"purchaseId":"p1","aiResult":{"amount":10}}`

	rec := doJSON(t, h, http.MethodPost, "/webhooks/ai-result", body, "")
	if rec.Code != http.StatusUnauthorized {
		t.Fatalf("expected 401 without secret, got %d", rec.Code)
	}

	req := httptest.NewRequest(http.MethodPost, "/webhooks/ai-result", strings.NewReader(body))
	req.Header.Set("X-Webhook-Secret", "wrong")
	rec = httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	if rec.Code != http.StatusUnauthorized {
		t.Fatalf("expected 401 with wrong secret, got %d", rec.Code)
	}

	req = httptest.NewRequest(http.MethodPost, "/webhooks/ai-result", strings.NewReader(body))
	req.Header.Set("X-Webhook-Secret", "s3cret")
	rec = httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200 with secret, got %d (%s)", rec.Code, rec.Body.String())
	}
}

func TestHandleAIResult(t *testing.T) {
	t.Parallel()

	p := &stubPurchases{
		purchase: domain.Purchase{ID: "p1", Status: domain.PurchaseStatusManualReview},
		decision: app.Decision{Status: domain.PurchaseStatusManualReview, Reason: "amount mismatch"},
	}
	rec := doJSON(t, HandleAIResult(p, nil), http.MethodPost, "/webhooks/ai-result",
		`{"purchaseId":"p1","status":"VERIFIED","aiResult":{"amount":"10.00","currency":"$","reference":"0042"}}`, "")

	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d (%s)", rec.Code, rec.Body.String())
	}
	if p.id != "p1" || !strings.Contains(string(p.raw), `"reference":"0042"`) {
		t.Fatalf("unexpected call: %s %s", p.id, p.raw)
	}
	if !strings.Contains(rec.Body.String(), `"reason":"amount mismatch"`) {
		t.Fatalf("expected decision in body, got %s", rec.Body.String())
	}

	rec = doJSON(t, HandleAIResult(p, nil), http.MethodPost, "/webhooks/ai-result", `{"aiResult":{}}`, "")
	if rec.Code != http.StatusBadRequest {
		t.Fatalf("expected 400 without purchaseId, got %d", rec.Code)
	}

	p.err = domain.ErrPurchaseNotFound
	rec = doJSON(t, HandleAIResult(p, nil), http.MethodPost, "/webhooks/ai-result", `{"purchaseId":"nope","aiResult":{}}`, "")
	if rec.Code != http.StatusNotFound {
		t.Fatalf("expected 404, got %d", rec.Code)
	}
}

func TestHandleAuditImport_JSON(t *testing.T) {
	t.Parallel()

	p := &stubPurchases{purchase: domain.Purchase{ID: "p9", Status: domain.PurchaseStatusVerified}}
	body := `{"raffle_id":"EXT-1","ticket_quantity":"2","ticket_numbers":[1,2],"bank_reference":"778899",` +
		`"national_id":"V1","full_name":"Ana","email":"ana@example.com","phone":"555",` +
		`"payment_method_id":"","payment_method_name":"Zelle","payment_screenshot":"legacy/1.png",` +
		`"total_amount":"20.50","currency_symbol":"$","created_at":"2025-01-02T10:00:00Z","status":"VERIFIED"}`

	rec := doJSON(t, HandleAuditImport(p, 1<<20, nil), http.MethodPost, "/webhooks/audit", body, "")
	if rec.Code != http.StatusCreated {
		t.Fatalf("expected 201, got %d (%s)", rec.Code, rec.Body.String())
	}
	in := p.imported
	if in.RaffleRef != "EXT-1" || in.PaymentMethodName != "Zelle" || in.TicketQuantity != 2 || in.TotalAmount != 20.5 {
		t.Fatalf("unexpected input: %+v", in)
	}
	if in.Status != domain.PurchaseStatusVerified || in.SubmittedAt == nil || in.ScreenshotKey != "legacy/1.png" {
		t.Fatalf("unexpected status, time or key: %+v", in)
	}

	rec = doJSON(t, HandleAuditImport(p, 1<<20, nil), http.MethodPost, "/webhooks/audit", `{"raffle_id":"EXT-1","ticket_quantity":"two","total_amount":"1"}`, "")
	if rec.Code != http.StatusBadRequest {
		t.Fatalf("expected 400 for bad quantity, got %d", rec.Code)
	}
}

func TestHandleAuditImport_Multipart(t *testing.T) {
	t.Parallel()

	var body bytes.Buffer
	mw := multipart.NewWriter(&body)
	fields := map[string]string{
		"raffle_id":         "EXT-1",
		"ticket_quantity":   "3",
		"ticket_numbers":    "[4,5,6]",
		"bank_reference":    "1234",
		"national_id":       "V1",
		"full_name":         "Ana",
		"email":             "ana@example.com",
		"phone":             "555",
		"payment_method_id": "PM-EXT",
		"total_amount":      "30",
		"currency_symbol":   "Bs",
	}
	for k, v := range fields {
		if err := mw.WriteField(k, v); err != nil {
			t.Fatalf("write field: %v", err)
		}
	}
	fw, err := mw.CreateFormFile("payment_screenshot", "pago.jpg")
	if err != nil {
		t.Fatalf("create file: %v", err)
	}
	_, _ = fw.Write([]byte("jpg"))
	_ = mw.Close()

	p := &stubPurchases{}
	req := httptest.NewRequest(http.MethodPost, "/webhooks/audit", &body)
	req.Header.Set("Content-Type", mw.FormDataContentType())
	rec := httptest.NewRecorder()
	HandleAuditImport(p, 1<<20, nil).ServeHTTP(rec, req)

	if rec.Code != http.StatusCreated {
		t.Fatalf("expected 201, got %d (%s)", rec.Code, rec.Body.String())
	}
	in := p.imported
	if len(in.TicketNumbers) != 3 || in.TicketNumbers[2] != 6 || in.PaymentMethodRef != "PM-EXT" {
		t.Fatalf("unexpected input: %+v", in)
	}
	if in.Screenshot == nil || in.Screenshot.Filename != "pago.jpg" {
		t.Fatalf("expected screenshot upload, got %+v", in.Screenshot)
	}
}
