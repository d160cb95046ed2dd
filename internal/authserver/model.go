// Package authserver is the domain of the development stub of the sync
// service auth endpoint: password accounts and the refresh grants issued to them.
package authserver

import (
	"errors"
	"time"
)

var (
	ErrAccountExists = errors.New("account already exists")
	ErrGrantExists   = errors.New("grant already exists")
)

// Account is a password account. Username is unique; Identity is the opaque
// user id handed to clients.
type Account struct {
	Username     string    `json:"username" bson:"_id"`
	Identity     string    `json:"identity" bson:"identity"`
	PasswordHash []byte    `json:"passwordHash" bson:"passwordHash"`
	IsAdmin      bool      `json:"isAdmin" bson:"isAdmin"`
	CreatedAt    time.Time `json:"createdAt" bson:"createdAt"`
}

// Grant is an issued refresh token. It never expires; only Revoke ends it.
type Grant struct {
	Token     string    `json:"token" bson:"_id"`
	Identity  string    `json:"identity" bson:"identity"`
	IsAdmin   bool      `json:"isAdmin" bson:"isAdmin"`
	CreatedAt time.Time `json:"createdAt" bson:"createdAt"`
}

// AccessGrant is a minted access token scoped to one resource path.
type AccessGrant struct {
	Token    string
	Identity string
	Path     string
	Expires  time.Time
	Access   []string
}
