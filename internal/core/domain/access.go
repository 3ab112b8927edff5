package domain

// AccessData is the cached credential stored under its bearer token.
type AccessData struct {
	Token    string   `json:"token"`
	UserID   string   `json:"userId"`
	UserData UserData `json:"userData"`
}

// UserData is the user snapshot taken at login together with the resolved roles.
type UserData struct {
	User  CachedUser `json:"user"`
	Roles []Role     `json:"roles"`
}

// CachedUser is the user snapshot inside AccessData. Password is always empty once cached.
type CachedUser struct {
	ID                string `json:"id"`
	Name              string `json:"name"`
	Email             string `json:"email"`
	Password          string `json:"password"`
	CachedAccessToken string `json:"cachedAccessToken,omitempty"`
}

// RoleNames returns the names of the cached roles.
func (a AccessData) RoleNames() []string {
	return RoleNames(a.UserData.Roles)
}

// Public returns the credential-free user of the snapshot.
func (a AccessData) Public() PublicUser {
	u := a.UserData.User
	return PublicUser{ID: u.ID, Name: u.Name, Email: u.Email}
}

// WithoutPassword returns a copy with the user password scrubbed.
func (a AccessData) WithoutPassword() AccessData {
	a.UserData.User.Password = ""
	a.UserData.Roles = append([]Role(nil), a.UserData.Roles...)
	return a
}
