package store

// Scope identifies one of the two storage locations a session can live in.
type Scope int

const (
	// ScopeSession is cleared when the process exits (the "do not remember me" choice)
	ScopeSession Scope = iota
	// ScopeDurable survives restarts (the "remember me" choice)
	ScopeDurable
)

func (s Scope) String() string {
	if s == ScopeDurable {
		return "durable"
	}
	return "session"
}

// Backend is a flat string key/value storage location.
// Get reports ok=false for a missing key; errors are reserved for storage failures.
type Backend interface {
	Get(key string) (value string, ok bool, err error)
	Set(key, value string) error
	Delete(key string) error
}
