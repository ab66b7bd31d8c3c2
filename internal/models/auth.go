package models

import "github.com/golang-jwt/jwt/v5"

type LoginRequest struct {
	InitData string `json:"initData"`
	// StartParam is the start parameter found in the launch URL, used when
	// initData carries none.
	StartParam string `json:"startParam,omitempty"`
}

type LoginResponse struct {
	Token  string `json:"token"`
	UserID string `json:"user_id"`
	User   any    `json:"user"`
}

// Claims defines the JWT claims structure
type Claims struct {
	UserID    string `json:"user_id"`
	FirstName string `json:"first_name"`
	Username  string `json:"username,omitempty"`
	jwt.RegisteredClaims
}
