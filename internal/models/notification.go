package models

import (
	"time"

	"go.mongodb.org/mongo-driver/bson/primitive"
)

// EventKind is the closed set of auction lifecycle events that produce
// notifications. Each kind carries a fixed payload shape (EventPayload)
// rather than an ad hoc object.
type EventKind string

const (
	EventOutbid      EventKind = "OUTBID"
	EventEndingSoon  EventKind = "ENDING_SOON"
	EventEndingToday EventKind = "ENDING_TODAY"
	EventWon         EventKind = "WON"
	EventLost        EventKind = "LOST"
	EventSoldToOwner EventKind = "SOLD_TO_OWNER"
	EventNoSale      EventKind = "NO_SALE"
)

// EventPayload carries the typed data a notification message is rendered
// from. Fields not relevant to a given kind are left zero.
type EventPayload struct {
	AuctionTitle   string    `json:"auction_title"`
	CurrencyCode   string    `json:"currency_code"`
	Amount         float64   `json:"amount,omitempty"`           // The recipient's own (out)bid amount
	NewHighestBid  float64   `json:"new_highest_bid,omitempty"`  // OUTBID: the bid that superseded
	MinimumNextBid float64   `json:"minimum_next_bid,omitempty"` // OUTBID/ENDING_*: hint to rebid
	FinalPrice     float64   `json:"final_price,omitempty"`      // WON/LOST/SOLD_TO_OWNER
	EndAt          time.Time `json:"end_at"`
}

// Recipient is one deduplicated notification target: a user plus the
// bid amount relevant to them (their own highest bid for bidders, zero
// for watchers and owners).
type Recipient struct {
	UserID     primitive.ObjectID
	HighestBid float64
	IsWatcher  bool // true when targeted via a watch, not a bid
}
