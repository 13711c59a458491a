package models

import (
	"time"

	"go.mongodb.org/mongo-driver/bson/primitive"
)

// BidStatus is the lifecycle state of a bid. A superseded bid becomes
// OUTBID immediately upon a higher bid's acceptance. At settlement
// exactly one bid may become WINNING; remaining ACTIVE bids become
// EXPIRED.
type BidStatus string

const (
	BidActive  BidStatus = "ACTIVE"
	BidOutbid  BidStatus = "OUTBID"
	BidWinning BidStatus = "WINNING"
	BidExpired BidStatus = "EXPIRED"
)

// Bid is an entry in the append-only bid ledger. Immutable once created
// except for Status, which only the auction lifecycle transitions.
type Bid struct {
	ID        primitive.ObjectID `bson:"_id,omitempty" json:"id,omitempty"`
	AuctionID primitive.ObjectID `bson:"auction_id" json:"auction_id"`
	BidderID  primitive.ObjectID `bson:"bidder_id" json:"bidder_id"`
	Amount    float64            `bson:"amount" json:"amount"`
	Status    BidStatus          `bson:"status" json:"status"`
	CreatedAt time.Time          `bson:"created_at" json:"created_at"`
}
