package config

import "time"

type SessionConfig interface {
	GetRefreshCheckInterval() time.Duration
	GetRefreshThreshold() time.Duration
}

type Session struct{}

var _ SessionConfig = Session{}

func (Session) GetRefreshCheckInterval() time.Duration {
	return GetEnvDuration("SOLUGARDE_REFRESH_CHECK_INTERVAL", time.Minute)
}

// GetRefreshThreshold is the remaining access token lifetime below which a proactive refresh runs
func (Session) GetRefreshThreshold() time.Duration {
	return GetEnvDuration("SOLUGARDE_REFRESH_THRESHOLD", 5*time.Minute)
}
