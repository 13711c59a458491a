package models

import (
	"time"

	"go.mongodb.org/mongo-driver/bson/primitive"
)

// AuctionAnalytics is a derived projection of Bid + Extension + Auction
// history. Always recomputable; never a source of truth.
type AuctionAnalytics struct {
	AuctionID      primitive.ObjectID `bson:"_id" json:"auction_id"`
	TotalBids      int                `bson:"total_bids" json:"total_bids"`
	UniqueBidders  int                `bson:"unique_bidders" json:"unique_bidders"`
	HighestBid     float64            `bson:"highest_bid" json:"highest_bid"`
	AverageBid     float64            `bson:"average_bid" json:"average_bid"`
	ReserveMet     bool               `bson:"reserve_met" json:"reserve_met"`
	ExtensionCount int                `bson:"extension_count" json:"extension_count"`
	FinalSalePrice *float64           `bson:"final_sale_price,omitempty" json:"final_sale_price,omitempty"`
	ComputedAt     time.Time          `bson:"computed_at" json:"computed_at"`
}
