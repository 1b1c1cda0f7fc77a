package users

import (
	"strings"
	"time"
)

// GarderieRef is the daycare a client account is attached to
type GarderieRef struct {
	ID   string `json:"id"`
	Name string `json:"name,omitempty"`
}

// User is the cached snapshot of the authenticated principal as returned by /auth/me.
// It is advisory only: the API is authoritative for every authorization decision.
type User struct {
	ID            string       `json:"id"`                    // Unique identifier for the user
	Email         string       `json:"email,omitempty"`       // User's email address
	FirstName     string       `json:"firstName,omitempty"`   // First name of the user
	LastName      string       `json:"lastName,omitempty"`    // Last name of the user
	DisplayName   string       `json:"displayName,omitempty"` // Optional display name chosen by the user
	Phone         string       `json:"phone,omitempty"`
	AvatarURL     string       `json:"avatarUrl,omitempty"`
	Role          RoleType     `json:"role,omitempty"`          // admin, client or remplacant
	IsActive      bool         `json:"isActive"`                // Active flag, inactive accounts cannot log in
	IsBanned      bool         `json:"isBanned,omitempty"`      // Banned by an administrator
	EmailVerified bool         `json:"emailVerified,omitempty"` // Has the user verified their email
	LastLoginAt   *time.Time   `json:"lastLoginAt,omitempty"`
	Garderie      *GarderieRef `json:"garderie,omitempty"` // Set for client accounts
}

func (u *User) HasRole(role RoleType) bool {
	return u != nil && u.Role == role
}

func (u *User) HasAnyRole(roles ...RoleType) bool {
	if u == nil {
		return false
	}
	for _, r := range roles {
		if u.Role == r {
			return true
		}
	}
	return false
}

func (u *User) IsAdmin() bool {
	return u.HasRole(RoleAdmin)
}

func (u *User) IsClient() bool {
	return u.HasRole(RoleClient)
}

func (u *User) IsRemplacant() bool {
	return u.HasRole(RoleRemplacant)
}

// Name returns the best human readable name available for the user
func (u *User) Name() string {
	if u == nil {
		return "User"
	}
	switch {
	case u.DisplayName != "":
		return u.DisplayName
	case u.FirstName != "" && u.LastName != "":
		return u.FirstName + " " + u.LastName
	case u.FirstName != "":
		return u.FirstName
	case u.Email != "":
		return u.Email
	}
	return "User"
}

// Initials returns up to two upper-case initials, "U" when nothing is known
func (u *User) Initials() string {
	if u == nil {
		return "U"
	}
	if u.FirstName != "" && u.LastName != "" {
		return strings.ToUpper(firstRune(u.FirstName) + firstRune(u.LastName))
	}
	if u.DisplayName != "" {
		names := strings.Fields(u.DisplayName)
		if len(names) > 1 {
			return strings.ToUpper(firstRune(names[0]) + firstRune(names[1]))
		}
		if len(names) == 1 {
			return strings.ToUpper(firstRune(names[0]))
		}
	}
	if u.Email != "" {
		return strings.ToUpper(firstRune(u.Email))
	}
	return "U"
}

// Clone returns a deep copy so snapshots handed out cannot be mutated by callers
func (u *User) Clone() *User {
	if u == nil {
		return nil
	}
	c := *u
	if u.LastLoginAt != nil {
		t := *u.LastLoginAt
		c.LastLoginAt = &t
	}
	if u.Garderie != nil {
		g := *u.Garderie
		c.Garderie = &g
	}
	return &c
}

func firstRune(s string) string {
	for _, r := range s {
		return string(r)
	}
	return ""
}
