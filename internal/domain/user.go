package domain

import "time"

// User represents an account. PasswordHash is empty for accounts created
// through a third-party identity provider.
type User struct {
	ID           string
	Name         string
	Email        string
	PasswordHash []byte
	IsAdmin      bool
	CreatedAt    time.Time
}
