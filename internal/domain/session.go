package domain

import "strings"

// User is the profile payload under logged_in_as.
type User struct {
	Username  string `json:"Username"`
	FirstName string `json:"Prenom,omitempty"`
	LastName  string `json:"Nom,omitempty"`
}

// DisplayName returns "First Last" when either part is set, the username
// otherwise, and "User" when nothing is known.
func (u *User) DisplayName() string {
	if u == nil {
		return "User"
	}
	if u.FirstName != "" || u.LastName != "" {
		return strings.TrimSpace(u.FirstName + " " + u.LastName)
	}
	if u.Username != "" {
		return u.Username
	}
	return "User"
}

// Session is the client's view of its authentication state.
type Session struct {
	Authenticated bool  `json:"authenticated"`
	User          *User `json:"user,omitempty"`
}

// Anonymous is the unauthenticated session.
func Anonymous() Session {
	return Session{}
}
