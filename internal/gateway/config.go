package gateway

import (
	"net/http"
	"time"
)

// ServerConfig configures the auth gateway: provider audience, redirect
// target, cookie scope, and token TTLs.
type ServerConfig struct {
	GoogleWebClientID string
	ClientURL         string
	CookieDomain      string
	RefreshCookieName string
	AccessTTL         time.Duration
	RefreshTTL        time.Duration
	SameSiteMode      http.SameSite
	AllowInsecureHTTP bool
}
