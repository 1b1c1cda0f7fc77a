package session

import "github.com/jrsteele09/solugarde-client/users"

type State int

const (
	StateUninitialized State = iota
	StateInitializing
	StateAuthenticated
	StateUnauthenticated
)

func (s State) String() string {
	switch s {
	case StateInitializing:
		return "initializing"
	case StateAuthenticated:
		return "authenticated"
	case StateUnauthenticated:
		return "unauthenticated"
	}
	return "uninitialized"
}

// Snapshot is an immutable view of the session handed to callers and listeners
type Snapshot struct {
	State State
	User  *users.User
}

func (s Snapshot) IsAuthenticated() bool {
	return s.State == StateAuthenticated
}

// IsLoading reports whether the session has not resolved yet
func (s Snapshot) IsLoading() bool {
	return s.State == StateUninitialized || s.State == StateInitializing
}

func (s Snapshot) Role() users.RoleType {
	if s.User == nil {
		return ""
	}
	return s.User.Role
}

func (s Snapshot) HasRole(role users.RoleType) bool {
	return s.User.HasRole(role)
}

func (s Snapshot) HasAnyRole(roles ...users.RoleType) bool {
	return s.User.HasAnyRole(roles...)
}

func (s Snapshot) IsAdmin() bool {
	return s.User.IsAdmin()
}

func (s Snapshot) IsClient() bool {
	return s.User.IsClient()
}

func (s Snapshot) IsRemplacant() bool {
	return s.User.IsRemplacant()
}

// Listener is called with the new snapshot after every transition
type Listener func(Snapshot)
