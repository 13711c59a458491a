package models

import (
	"time"

	"go.mongodb.org/mongo-driver/bson/primitive"
)

// Watch is an interest registration: the user wants notifications about
// the auction without necessarily bidding. Used only for notification
// targeting, not for bidding eligibility.
type Watch struct {
	ID        primitive.ObjectID `bson:"_id,omitempty" json:"id,omitempty"`
	AuctionID primitive.ObjectID `bson:"auction_id" json:"auction_id"`
	UserID    primitive.ObjectID `bson:"user_id" json:"user_id"`
	CreatedAt time.Time          `bson:"created_at" json:"created_at"`
}
