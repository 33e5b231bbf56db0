package domain

import "time"

const (
	EventPurchaseCreated       = "purchase.created"
	EventPurchaseStatusChanged = "purchase.status_changed"
)

// PurchaseEvent is emitted after a purchase is created or changes status.
type PurchaseEvent struct {
	Name       string         `json:"event"`
	Type       string         `json:"type"`
	Message    string         `json:"msg"`
	RaffleID   string         `json:"raffleId"`
	PurchaseID string         `json:"purchaseId"`
	Status     PurchaseStatus `json:"status,omitempty"`
	OccurredAt time.Time      `json:"occurredAt"`
}
