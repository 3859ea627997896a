package models

import "time"

// Subscriber is a single signup record. Rows are never deleted; unsubscribing
// flips Active so a stale unsubscribe link stays valid forever.
type Subscriber struct {
	ID               int
	Email            string
	City             string
	State            string
	Active           bool
	UnsubscribeToken string
	CreatedAt        time.Time
	LastSentAt       *time.Time
}

// SignupData is what the signup form posts.
type SignupData struct {
	Email string `form:"email" json:"email" binding:"required,email"`
	City  string `form:"city" json:"city" binding:"required"`
	State string `form:"state" json:"state" binding:"required"`
}
