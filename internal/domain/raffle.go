package domain

import "time"

type RaffleStatus string

const (
	RaffleStatusDraft  RaffleStatus = "draft"
	RaffleStatusActive RaffleStatus = "active"
	RaffleStatusClosed RaffleStatus = "closed"
)

func (s RaffleStatus) Valid() bool {
	switch s {
	case RaffleStatusDraft, RaffleStatusActive, RaffleStatusClosed:
		return true
	}
	return false
}

type SelectionType string

const (
	SelectionRandom   SelectionType = "random"
	SelectionSpecific SelectionType = "specific"
)

func (s SelectionType) Valid() bool {
	return s == SelectionRandom || s == SelectionSpecific
}

// Raffle is a pool of tickets numbered 0..TotalTickets-1.
type Raffle struct {
	ID            string
	Title         string
	TotalTickets  int
	SelectionType SelectionType
	Status        RaffleStatus
	TicketPrice   float64
	Deadline      time.Time
	ExternalID    string
	CreatedAt     time.Time
}

// Availability summarises how much of a raffle is held by live purchases.
type Availability struct {
	RaffleID     string
	TotalTickets int
	Occupied     int
	Available    int
}
