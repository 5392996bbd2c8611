package domain

import "time"

var (
	ErrNoAuthToken       = &Error{Kind: ErrUnauthenticated, Message: "Not authenticated."}
	ErrInvalidAuthToken  = &Error{Kind: ErrUnauthenticated, Message: "Invalid token."}
	ErrExpiredAuthToken  = &Error{Kind: ErrUnauthenticated, Message: "Token expired."}
	ErrMalformedAuthInfo = &Error{Kind: ErrUnauthenticated, Message: "Malformed authorization header."}
)

// AuthToken is a signed bearer token and the identity it asserts.
type AuthToken struct {
	Token     string    `json:"token"`
	UserID    string    `json:"userId"`
	Email     string    `json:"-"`
	ExpiresAt time.Time `json:"-"`
}

// AuthClaims is the verified identity extracted from a token.
type AuthClaims struct {
	UserID    string
	Email     string
	IssuedAt  time.Time
	ExpiresAt time.Time
}
