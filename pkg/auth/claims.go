package auth

import (
	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
)

const (
	RoleAdmin    = "admin"
	RoleCustomer = "customer"
)

// ValidRole reports whether role is one the API authorizes against.
func ValidRole(role string) bool {
	return role == RoleAdmin || role == RoleCustomer
}

// AccessTokenClaims is the bearer token presented to the API. The user id is
// the only source of cart ownership.
type AccessTokenClaims struct {
	UserID uuid.UUID `json:"user_id"`
	Role   string    `json:"role"`
	jwt.RegisteredClaims
}
