package models

import "time"

// User is an account that devices authenticate as.
type User struct {
	ID           string
	Username     string
	PasswordHash string
	CreatedAt    time.Time
}
