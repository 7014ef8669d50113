package models

import "time"

// Favorite is the user-to-listing side relation toggled from the UI.
type Favorite struct {
	UserID    string    `bson:"user_id" json:"user_id"`
	ListingID string    `bson:"listing_id" json:"listing_id"`
	CreatedAt time.Time `bson:"created_at" json:"created_at"`
}
