package strava

import (
	"errors"
	"fmt"
	"time"
)

const (
	DefaultBaseURL  = "https://www.strava.com/api/v3"
	DefaultTokenURL = "https://www.strava.com/oauth/token"

	defaultTimeout = 10 * time.Second
	feedPageSize   = 50
)

// ErrAuth marks failures to obtain or use a credential. Callers abort the
// current cycle on it instead of retrying.
var ErrAuth = errors.New("strava: authentication failed")

// Config holds credentials and endpoints. Either AccessToken (static) or
// the ClientID/ClientSecret/RefreshToken trio must be set.
type Config struct {
	ClientID     string
	ClientSecret string
	RefreshToken string
	AccessToken  string

	BaseURL  string // default DefaultBaseURL
	TokenURL string // default DefaultTokenURL
	Timeout  time.Duration
}

// APIError is a non-2xx response from the API.
type APIError struct {
	Status int
	Method string
	Path   string
	Body   string
}

func (e *APIError) Error() string {
	return fmt.Sprintf("strava: %s %s: status %d", e.Method, e.Path, e.Status)
}
