package domain

import "time"

// Customer is keyed by national id; email is unique as well.
type Customer struct {
	ID         string
	NationalID string
	FullName   string
	Email      string
	Phone      string
	CreatedAt  time.Time
}

// PaymentMethod is where customers send money; only its currency matters to validation.
type PaymentMethod struct {
	ID             string
	Name           string
	CurrencySymbol string
	ExternalID     string
	CreatedAt      time.Time
}
