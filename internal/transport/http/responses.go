package http

import (
	"encoding/json"
	"time"

	"github.com/victor5516/raffles-api-core/internal/app"
	"github.com/victor5516/raffles-api-core/internal/domain"
)

type purchaseResponse struct {
	ID               string          `json:"id"`
	RaffleID         string          `json:"raffle_id"`
	CustomerID       string          `json:"customer_id"`
	PaymentMethodID  string          `json:"payment_method_id"`
	TicketQuantity   int             `json:"ticket_quantity"`
	TicketNumbers    []int           `json:"ticket_numbers"`
	Status           string          `json:"status"`
	TotalAmount      float64         `json:"total_amount"`
	BankReference    string          `json:"bank_reference"`
	ScreenshotKey    string          `json:"payment_screenshot_key,omitempty"`
	Notes            string          `json:"notes,omitempty"`
	AIAnalysisResult json.RawMessage `json:"ai_analysis_result,omitempty"`
	SubmittedAt      time.Time       `json:"submitted_at"`
	VerifiedAt       *time.Time      `json:"verified_at,omitempty"`
}

func toPurchaseResponse(p domain.Purchase) purchaseResponse {
	return purchaseResponse{
		ID:               p.ID,
		RaffleID:         p.RaffleID,
		CustomerID:       p.CustomerID,
		PaymentMethodID:  p.PaymentMethodID,
		TicketQuantity:   p.TicketQuantity,
		TicketNumbers:    p.TicketNumbers,
		Status:           string(p.Status),
		TotalAmount:      p.TotalAmount,
		BankReference:    p.BankReference,
		ScreenshotKey:    p.ScreenshotKey,
		Notes:            p.Notes,
		AIAnalysisResult: p.AIAnalysisResult,
		SubmittedAt:      p.SubmittedAt,
		VerifiedAt:       p.VerifiedAt,
	}
}

type customerResponse struct {
	ID         string `json:"id"`
	NationalID string `json:"national_id"`
	FullName   string `json:"full_name"`
	Email      string `json:"email"`
	Phone      string `json:"phone,omitempty"`
}

type purchaseDetailsResponse struct {
	purchaseResponse
	RaffleTitle   string                `json:"raffle_title"`
	Customer      customerResponse      `json:"customer"`
	PaymentMethod paymentMethodResponse `json:"payment_method"`
}

func toDetailsResponse(d domain.PurchaseDetails) purchaseDetailsResponse {
	return purchaseDetailsResponse{
		purchaseResponse: toPurchaseResponse(d.Purchase),
		RaffleTitle:      d.RaffleTitle,
		Customer: customerResponse{
			ID:         d.Customer.ID,
			NationalID: d.Customer.NationalID,
			FullName:   d.Customer.FullName,
			Email:      d.Customer.Email,
			Phone:      d.Customer.Phone,
		},
		PaymentMethod: toPaymentMethodResponse(d.PaymentMethod),
	}
}

type purchasePageResponse struct {
	Items []purchaseDetailsResponse `json:"items"`
	Total int                       `json:"total"`
	Page  int                       `json:"page"`
	Limit int                       `json:"limit"`
}

func toPageResponse(p app.PurchasePage) purchasePageResponse {
	items := make([]purchaseDetailsResponse, 0, len(p.Items))
	for _, d := range p.Items {
		items = append(items, toDetailsResponse(d))
	}
	return purchasePageResponse{Items: items, Total: p.Total, Page: p.Page, Limit: p.Limit}
}

type ticketClaimResponse struct {
	RaffleID       string    `json:"raffle_id"`
	TicketNumber   int       `json:"ticket_number"`
	PurchaseID     string    `json:"purchase_id"`
	PurchaseStatus string    `json:"purchase_status"`
	CustomerName   string    `json:"customer_name"`
	NationalID     string    `json:"national_id"`
	SubmittedAt    time.Time `json:"submitted_at"`
}

type raffleResponse struct {
	ID            string    `json:"id"`
	Title         string    `json:"title"`
	TotalTickets  int       `json:"total_tickets"`
	SelectionType string    `json:"selection_type"`
	Status        string    `json:"status"`
	TicketPrice   float64   `json:"ticket_price"`
	Deadline      time.Time `json:"deadline"`
	ExternalID    string    `json:"external_id,omitempty"`
	CreatedAt     time.Time `json:"created_at"`
}

func toRaffleResponse(r domain.Raffle) raffleResponse {
	return raffleResponse{
		ID:            r.ID,
		Title:         r.Title,
		TotalTickets:  r.TotalTickets,
		SelectionType: string(r.SelectionType),
		Status:        string(r.Status),
		TicketPrice:   r.TicketPrice,
		Deadline:      r.Deadline,
		ExternalID:    r.ExternalID,
		CreatedAt:     r.CreatedAt,
	}
}

type availabilityResponse struct {
	RaffleID     string `json:"raffle_id"`
	TotalTickets int    `json:"total_tickets"`
	Occupied     int    `json:"occupied"`
	Available    int    `json:"available"`
}

type paymentMethodResponse struct {
	ID             string `json:"id"`
	Name           string `json:"name"`
	CurrencySymbol string `json:"currency_symbol"`
	ExternalID     string `json:"external_id,omitempty"`
}

func toPaymentMethodResponse(m domain.PaymentMethod) paymentMethodResponse {
	return paymentMethodResponse{
		ID:             m.ID,
		Name:           m.Name,
		CurrencySymbol: m.CurrencySymbol,
		ExternalID:     m.ExternalID,
	}
}
