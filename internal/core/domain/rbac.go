package domain

import "time"

// Role is a named subject category referenced by policies through its name.
type Role struct {
	ID   string `json:"id"`
	Name string `json:"name"`
}

// UserRole assigns a role to a user.
type UserRole struct {
	UserID     string
	RoleID     string
	AssignedAt time.Time
}

// RoleNames extracts the names of the given roles preserving order.
func RoleNames(roles []Role) []string {
	names := make([]string, 0, len(roles))
	for _, role := range roles {
		names = append(names, role.Name)
	}
	return names
}
