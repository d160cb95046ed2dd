package models

import "time"

// User is the persisted form of a logged-in sync user: the identity returned at
// login, its refresh token and the auth server it belongs to.
type User struct {
	Identity     string    `bson:"_id" json:"identity"`
	RefreshToken string    `bson:"refreshToken" json:"refreshToken"`
	ServerURI    string    `bson:"serverUri" json:"serverUri"`
	CreatedAt    time.Time `bson:"createdAt" json:"createdAt"`
	UpdatedAt    time.Time `bson:"updatedAt" json:"updatedAt"`
}
