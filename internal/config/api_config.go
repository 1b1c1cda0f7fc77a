package config

import "time"

const (
	apiBaseURLVar  = "SOLUGARDE_API_BASE_URL"
	apiTimeoutVar  = "SOLUGARDE_API_TIMEOUT"
	messagesURLVar = "SOLUGARDE_WS_URL"

	DefaultAPIBaseURL = "https://solugarde-dev-production.up.railway.app/api/v1"
)

type APIConfig interface {
	GetAPIBaseURL() string
	GetAPITimeout() time.Duration
	GetMessagesURL() string
}

type API struct{}

var _ APIConfig = API{}

func (API) GetAPIBaseURL() string {
	return GetEnv(apiBaseURLVar, DefaultAPIBaseURL)
}

func (API) GetAPITimeout() time.Duration {
	return GetEnvDuration(apiTimeoutVar, 30*time.Second)
}

// GetMessagesURL returns the explicit messaging gateway URL, empty when it should be derived
// from the API base URL.
func (API) GetMessagesURL() string {
	return GetEnv(messagesURLVar, "")
}
