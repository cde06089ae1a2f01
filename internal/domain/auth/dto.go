// internal/domain/auth/dto.go
package auth

import "time"

// LoginRequest for user login
type LoginRequest struct {
	Email     string `json:"email" binding:"required,email"`
	Password  string `json:"password" binding:"required"`
	IPAddress string `json:"-"`
	UserAgent string `json:"-"`
}

// RegisterRequest for self-service sign up
type RegisterRequest struct {
	Name      string `json:"name" binding:"required,min=1,max=255"`
	Email     string `json:"email" binding:"required,email"`
	Password  string `json:"password" binding:"required,min=8"`
	IPAddress string `json:"-"`
	UserAgent string `json:"-"`
}

// SubscriptionSummary is the slice of a user's subscription shown on the profile.
type SubscriptionSummary struct {
	ID           string    `json:"id"`
	Status       string    `json:"status"`
	TierID       string    `json:"tierId"`
	TierName     string    `json:"tierName"`
	BillingCycle string    `json:"billingCycle"`
	RenewalDate  time.Time `json:"renewalDate"`
}

// UserInfo minimal user information
type UserInfo struct {
	ID           string               `json:"id"`
	Email        string               `json:"email"`
	Name         string               `json:"name"`
	Role         string               `json:"role"`
	Subscription *SubscriptionSummary `json:"subscription,omitempty"`
}

// LoginResponse successful login response
type LoginResponse struct {
	User      UserInfo  `json:"user"`
	Token     string    `json:"token"`
	ExpiresAt time.Time `json:"expiresAt"`
}
