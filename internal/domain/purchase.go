package domain

import (
	"encoding/json"
	"time"
)

type PurchaseStatus string

const (
	PurchaseStatusPending      PurchaseStatus = "pending"
	PurchaseStatusVerified     PurchaseStatus = "verified"
	PurchaseStatusRejected     PurchaseStatus = "rejected"
	PurchaseStatusManualReview PurchaseStatus = "manual_review"
	PurchaseStatusDuplicated   PurchaseStatus = "duplicated"
)

func (s PurchaseStatus) Valid() bool {
	switch s {
	case PurchaseStatusPending, PurchaseStatusVerified, PurchaseStatusRejected,
		PurchaseStatusManualReview, PurchaseStatusDuplicated:
		return true
	}
	return false
}

// Live reports whether purchases in this status hold capacity.
func (s PurchaseStatus) Live() bool {
	return s == PurchaseStatusPending || s == PurchaseStatusVerified
}

// LiveStatuses are the statuses counted by occupancy.
var LiveStatuses = []PurchaseStatus{PurchaseStatusPending, PurchaseStatusVerified}

// Purchase is one customer's claim to a quantity of tickets in a raffle.
// TicketNumbers is nil for random raffles until the purchase is verified.
type Purchase struct {
	ID               string
	RaffleID         string
	CustomerID       string
	PaymentMethodID  string
	TicketQuantity   int
	TicketNumbers    []int
	Status           PurchaseStatus
	TotalAmount      float64
	BankReference    string
	ScreenshotKey    string
	Notes            string
	AIAnalysisResult json.RawMessage
	SubmittedAt      time.Time
	VerifiedAt       *time.Time
}

// HasNumbers reports whether ticket numbers have been allocated.
func (p Purchase) HasNumbers() bool {
	return len(p.TicketNumbers) > 0
}

// PurchaseDetails is a purchase joined with the records admins look at.
type PurchaseDetails struct {
	Purchase
	Customer      Customer
	RaffleTitle   string
	PaymentMethod PaymentMethod
}

// PurchaseFilter narrows purchase listings. Zero values are ignored.
type PurchaseFilter struct {
	RaffleID     string
	Status       PurchaseStatus
	NationalID   string
	TicketNumber *int
	Page         int
	Limit        int
}

// TicketClaim is one ticket number held by a live purchase.
type TicketClaim struct {
	RaffleID       string
	TicketNumber   int
	PurchaseID     string
	PurchaseStatus PurchaseStatus
	CustomerName   string
	NationalID     string
	SubmittedAt    time.Time
}
