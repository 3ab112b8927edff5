package domain

import "time"

// User mirrors the persisted representation in the users table.
type User struct {
	ID                string
	Name              string
	Email             string
	PasswordHash      string
	CachedAccessToken *string
	CreatedAt         time.Time
}

// Public returns the user without credentials.
func (u User) Public() PublicUser {
	return PublicUser{ID: u.ID, Name: u.Name, Email: u.Email}
}

// PublicUser is the credential-free view of a user.
type PublicUser struct {
	ID    string `json:"id"`
	Name  string `json:"name"`
	Email string `json:"email"`
}

// Todo is a per-user item; its owner drives ownership conditions.
type Todo struct {
	ID        string
	Title     string
	UserID    string
	CreatedAt time.Time
}
