package models

import (
	"time"

	"go.mongodb.org/mongo-driver/bson/primitive"
)

// AuctionStatus is the lifecycle state of an auction. ACTIVE is the only
// non-terminal state; the three ENDED_* variants are terminal and an
// auction never leaves a terminal state.
type AuctionStatus string

const (
	AuctionActive             AuctionStatus = "ACTIVE"
	AuctionEndedSold          AuctionStatus = "ENDED_SOLD"
	AuctionEndedNoSale        AuctionStatus = "ENDED_NO_SALE"
	AuctionEndedReserveNotMet AuctionStatus = "ENDED_RESERVE_NOT_MET"
)

// IsTerminal reports whether the status is one of the ENDED_* variants.
func (s AuctionStatus) IsTerminal() bool {
	return s == AuctionEndedSold || s == AuctionEndedNoSale || s == AuctionEndedReserveNotMet
}

// Auction represents one property under auction. EndAt only ever moves
// forward (anti-sniping extensions); CurrentBid is denormalized from the
// bid ledger for fast reads and is re-checked inside every conditional
// write that depends on it.
type Auction struct {
	ID              primitive.ObjectID  `bson:"_id,omitempty" json:"id,omitempty"`
	OwnerID         primitive.ObjectID  `bson:"owner_id" json:"owner_id"`
	Title           string              `bson:"title" json:"title"`
	Status          AuctionStatus       `bson:"status" json:"status"`
	MinimumBid      float64             `bson:"minimum_bid" json:"minimum_bid"`
	ReservePrice    *float64            `bson:"reserve_price,omitempty" json:"reserve_price,omitempty"`
	CurrencyCode    string              `bson:"currency_code" json:"currency_code"`
	CurrentBid      *float64            `bson:"current_bid,omitempty" json:"current_bid,omitempty"`
	CurrentBidderID *primitive.ObjectID `bson:"current_bidder_id,omitempty" json:"current_bidder_id,omitempty"`
	BidCount        int                 `bson:"bid_count" json:"bid_count"`
	ExtensionCount  int                 `bson:"extension_count" json:"extension_count"`
	EndAt           time.Time           `bson:"end_at" json:"end_at"`
	WinnerID        *primitive.ObjectID `bson:"winner_id,omitempty" json:"winner_id,omitempty"`
	FinalPrice      *float64            `bson:"final_price,omitempty" json:"final_price,omitempty"`
	SettledAt       *time.Time          `bson:"settled_at,omitempty" json:"settled_at,omitempty"`
	CreatedAt       time.Time           `bson:"created_at" json:"created_at"`
	UpdatedAt       time.Time           `bson:"updated_at" json:"updated_at"`
	Deleted         bool                `bson:"deleted" json:"-"`
}

// CurrentHighest returns the highest accepted bid amount, or the
// MinimumBid base when no bids exist yet.
func (a *Auction) CurrentHighest() float64 {
	if a.CurrentBid != nil {
		return *a.CurrentBid
	}
	return a.MinimumBid
}

// HasBids reports whether at least one bid has been accepted.
func (a *Auction) HasBids() bool {
	return a.CurrentBid != nil
}

// Extension is an audit record created once per qualifying bid.
// Never mutated or deleted.
type Extension struct {
	ID               primitive.ObjectID `bson:"_id,omitempty" json:"id,omitempty"`
	AuctionID        primitive.ObjectID `bson:"auction_id" json:"auction_id"`
	BidID            primitive.ObjectID `bson:"bid_id" json:"bid_id"`
	OriginalEndDate  time.Time          `bson:"original_end_date" json:"original_end_date"`
	NewEndDate       time.Time          `bson:"new_end_date" json:"new_end_date"`
	ExtensionMinutes int                `bson:"extension_minutes" json:"extension_minutes"`
	CreatedAt        time.Time          `bson:"created_at" json:"created_at"`
}
