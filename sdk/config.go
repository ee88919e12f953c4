package sdk

import (
	"fmt"
	"io"
	"net/url"
	"time"

	"github.com/sirupsen/logrus"
)

// DefaultBaseURL is where the Flox servers are found.
const DefaultBaseURL = "https://www.flox.cc"

// Config holds the configuration for the Flox client.
// GameID and GameKey are required; everything else has a default.
//
// Configuration can be built using the fluent builder pattern:
//
//	config := sdk.DefaultConfig().
//	    WithGame("my-game-id", "my-game-key").
//	    WithTimeout(10 * time.Second).
//	    WithLogger(logrus.StandardLogger())
//
//	client, err := sdk.NewClient(config)
type Config struct {
	// BaseURL is the URL of the Flox REST API, without the /api path.
	// Default: "https://www.flox.cc"
	BaseURL string

	// GameID is the unique identifier of the game.
	GameID string

	// GameKey is the key that identifies the game. It travels in the
	// metadata header of every request.
	GameKey string

	// Timeout is the HTTP request timeout. It bounds a single round trip;
	// use a context deadline to bound a whole operation.
	// Default: 30s
	Timeout time.Duration

	// InsecureSkipVerify disables TLS certificate verification.
	// Only meant for development backends with self-signed certificates.
	// Default: false
	InsecureSkipVerify bool

	// Headers are custom headers to include in all requests.
	Headers map[string]string

	// Observer for monitoring requests. If nil, NoopObserver is used.
	Observer Observer

	// Logger receives debug entries for every request and a warning when
	// TLS verification is disabled. If nil, logging is discarded.
	Logger logrus.FieldLogger
}

// DefaultConfig returns a Config with defaults for everything but the game
// credentials.
//
// Example:
//
//	config := sdk.DefaultConfig().WithGame(gameID, gameKey)
func DefaultConfig() *Config {
	return &Config{
		BaseURL:  DefaultBaseURL,
		Timeout:  30 * time.Second,
		Headers:  make(map[string]string),
		Observer: &NoopObserver{},
	}
}

// WithBaseURL sets the base URL of the Flox API.
//
// Example:
//
//	config := sdk.DefaultConfig().
//	    WithBaseURL("http://localhost:8080")
func (c *Config) WithBaseURL(url string) *Config {
	c.BaseURL = url
	return c
}

// WithGame sets the game ID and key.
func (c *Config) WithGame(gameID, gameKey string) *Config {
	c.GameID = gameID
	c.GameKey = gameKey
	return c
}

// WithTimeout sets the per-request timeout.
func (c *Config) WithTimeout(timeout time.Duration) *Config {
	c.Timeout = timeout
	return c
}

// WithInsecureSkipVerify turns off TLS certificate verification.
// Do not use this against production servers.
func (c *Config) WithInsecureSkipVerify() *Config {
	c.InsecureSkipVerify = true
	return c
}

// WithHeader adds a custom header to be sent with all requests.
//
// Example:
//
//	config := sdk.DefaultConfig().
//	    WithHeader("X-Request-Source", "maintenance-job")
func (c *Config) WithHeader(key, value string) *Config {
	if c.Headers == nil {
		c.Headers = make(map[string]string)
	}
	c.Headers[key] = value
	return c
}

// WithObserver sets a custom observer for monitoring requests.
func (c *Config) WithObserver(observer Observer) *Config {
	c.Observer = observer
	return c
}

// WithLogger sets the logger used for request diagnostics.
func (c *Config) WithLogger(logger logrus.FieldLogger) *Config {
	c.Logger = logger
	return c
}

// Validate validates the configuration and sets defaults for missing values.
// This is called automatically by NewClient and NewRestService.
func (c *Config) Validate() error {
	if c.BaseURL == "" {
		c.BaseURL = DefaultBaseURL
	}
	u, err := url.Parse(c.BaseURL)
	if err != nil || u.Scheme == "" || u.Host == "" {
		return fmt.Errorf("%w: base URL %q must have a scheme and host", ErrInvalidConfig, c.BaseURL)
	}
	if c.GameID == "" {
		return fmt.Errorf("%w: game ID is required", ErrInvalidConfig)
	}
	if c.GameKey == "" {
		return fmt.Errorf("%w: game key is required", ErrInvalidConfig)
	}
	if c.Timeout <= 0 {
		c.Timeout = 30 * time.Second
	}
	if c.Observer == nil {
		c.Observer = &NoopObserver{}
	}
	if c.Logger == nil {
		discard := logrus.New()
		discard.SetOutput(io.Discard)
		c.Logger = discard
	}
	return nil
}
