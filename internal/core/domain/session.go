package domain

// SessionAccessTokenKey is the session entry pointing at the bearer token.
const SessionAccessTokenKey = "access_token"

// SessionData is the small key-value bag kept for a browser session.
type SessionData map[string]string

// AccessToken returns the bearer token bound to the session, if any.
func (d SessionData) AccessToken() string {
	if d == nil {
		return ""
	}
	return d[SessionAccessTokenKey]
}
