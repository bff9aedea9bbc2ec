package models

import "github.com/golang-jwt/jwt/v5"

// ProviderClaims is the payload of an identity token issued by the external
// auth provider. Only the subject (provider uid) and email are trusted; the
// internal user row is resolved from them on each request.
type ProviderClaims struct {
	Email string `json:"email"`
	Name  string `json:"name,omitempty"`
	jwt.RegisteredClaims
}

// AuthContext carries the resolved internal user for the current request.
type AuthContext struct {
	UserID     string
	ExternalID string
	Email      string
	Role       UserRole
}

// UserInfo describes the authenticated user in responses.
type UserInfo struct {
	ID          string   `json:"id"`
	Email       string   `json:"email"`
	DisplayName string   `json:"display_name"`
	Role        UserRole `json:"role"`
}
