package models

import (
	"github.com/golang-jwt/jwt/v5"
)

// TokenTypeSession is the only token type issued by the login flow
const TokenTypeSession = "session"

type TokenClaims struct {
	Type       string `json:"type"`
	AccountID  string `json:"account_id"`
	Identifier string `json:"identifier,omitempty"`
	Role       string `json:"role,omitempty"`
	jwt.RegisteredClaims
}
