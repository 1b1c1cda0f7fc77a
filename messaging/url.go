package messaging

import (
	"net/url"
	"strings"
)

const (
	messagesPath       = "/messages"
	devGatewayPort     = "8081"
	fallbackGatewayURL = "ws://localhost:8081/messages"
)

// GatewayURL returns the messaging websocket URL. An explicit URL wins and gets the /messages
// path appended when missing. Otherwise the API host is reused: wss on the default port for an
// https API, ws on the dev port for anything else.
func GatewayURL(explicit, apiBaseURL string) string {
	if explicit != "" {
		if strings.HasSuffix(explicit, messagesPath) {
			return explicit
		}
		return strings.TrimRight(explicit, "/") + messagesPath
	}

	if apiBaseURL != "" {
		if u, err := url.Parse(apiBaseURL); err == nil && u.Hostname() != "" {
			if u.Scheme == "https" {
				return "wss://" + u.Hostname() + messagesPath
			}
			return "ws://" + u.Hostname() + ":" + devGatewayPort + messagesPath
		}
	}
	return fallbackGatewayURL
}

// withToken adds the access token as the token query parameter
func withToken(gatewayURL, token string) (string, error) {
	u, err := url.Parse(gatewayURL)
	if err != nil {
		return "", err
	}
	q := u.Query()
	q.Set("token", token)
	u.RawQuery = q.Encode()
	return u.String(), nil
}
