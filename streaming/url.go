package streaming

import (
	"fmt"
	"net/url"
	"strconv"
	"strings"
)

// ConnectConfig maps to the live endpoint path and query parameters.
type ConnectConfig struct {
	// Host is "localhost:8000" or a full base URL ("http://", "https://", "ws://", "wss://").
	Host string
	// Secure selects wss:// when Host carries no scheme.
	Secure bool
	// UserID is required.
	UserID string

	Audio     bool
	SessionID string
}

func DefaultHost() string { return "localhost:8000" }

// BuildURL returns ws(s)://<host>/ws/<userId>?is_audio=<bool>[&session_id=<id>].
func BuildURL(cfg ConnectConfig) (string, error) {
	if cfg.UserID == "" {
		return "", fmt.Errorf("missing user_id")
	}

	host := cfg.Host
	if host == "" {
		host = DefaultHost()
	}
	host = strings.TrimRight(host, "/")

	if !strings.Contains(host, "://") {
		scheme := "ws"
		if cfg.Secure {
			scheme = "wss"
		}
		host = scheme + "://" + host
	}

	u, err := url.Parse(host)
	if err != nil {
		return "", err
	}
	switch u.Scheme {
	case "http":
		u.Scheme = "ws"
	case "https":
		u.Scheme = "wss"
	case "ws", "wss":
	default:
		return "", fmt.Errorf("unsupported scheme %q", u.Scheme)
	}

	// RawPath keeps a "/" inside the user id as one segment.
	base, rawBase := strings.TrimRight(u.Path, "/"), strings.TrimRight(u.EscapedPath(), "/")
	u.Path = base + "/ws/" + cfg.UserID
	u.RawPath = rawBase + "/ws/" + url.PathEscape(cfg.UserID)

	q := url.Values{}
	q.Set("is_audio", strconv.FormatBool(cfg.Audio))
	if cfg.SessionID != "" {
		q.Set("session_id", cfg.SessionID)
	}
	u.RawQuery = q.Encode()
	return u.String(), nil
}
