package session

import "github.com/jrsteele09/go-auth-session/authclient"

// DefaultDisplayName is shown whenever nobody is logged in.
const DefaultDisplayName = "User"

// State is a snapshot of the tab's session. IsLoggedIn implies User is set;
// a logged out state has no User and the default display name. Loading is
// orthogonal: it marks a verification in flight.
type State struct {
	IsLoggedIn  bool
	DisplayName string
	User        *authclient.UserInfo
	Loading     bool
}

// Anonymous is the logged out state.
func Anonymous(loading bool) State {
	return State{DisplayName: DefaultDisplayName, Loading: loading}
}

// Authenticated is the logged in state for user.
func Authenticated(user authclient.UserInfo) State {
	name := user.DisplayName()
	if name == "" {
		name = DefaultDisplayName
	}
	return State{IsLoggedIn: true, DisplayName: name, User: &user}
}

// clone copies s so callers never share the User with the manager.
func (s State) clone() State {
	if s.User != nil {
		u := *s.User
		s.User = &u
	}
	return s
}
