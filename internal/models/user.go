package models

import (
	"time"

	"go.mongodb.org/mongo-driver/bson/primitive"
)

// User holds the slice of the user record the auction engine needs:
// identity and a notification contact. Account management lives in the
// main application.
type User struct {
	ID        primitive.ObjectID `bson:"_id,omitempty" json:"id,omitempty"`
	Name      string             `bson:"name" json:"name"`
	Email     string             `bson:"email" json:"email"`
	CreatedAt time.Time          `bson:"created_at" json:"created_at"`
	UpdatedAt time.Time          `bson:"updated_at" json:"updated_at"`
	Deleted   bool               `bson:"deleted" json:"-"`
}
