package sdk

import (
	"context"
	"fmt"
	"net/http"
	"net/url"
	"sync"
)

const (
	// SDKType identifies this SDK in the metadata header.
	SDKType = "go"
	// Version is the SDK version reported to the server.
	Version = "0.4.0"
)

// ResponseFunc receives the decoded body and the response of a request
// regardless of its status.
type ResponseFunc func(body interface{}, resp *Response)

// RestService executes requests against the Flox REST API on behalf of
// the current Session. Most applications use Client instead; RestService
// is the lower layer for calls the facade does not cover.
//
// A RestService is safe for concurrent use. A request that is already in
// flight when a login completes still carries the previous Session.
type RestService struct {
	transport *httpTransport
	config    *Config

	mu      sync.RWMutex
	session Session
	closed  bool

	// loginMu serializes logins so the guest id carried forward is the one
	// that was current when the login started.
	loginMu sync.Mutex
}

// NewRestService creates a service for the given configuration and logs
// in a fresh guest.
//
// Example:
//
//	service, err := sdk.NewRestService(sdk.DefaultConfig().WithGame(gameID, gameKey))
//	if err != nil {
//	    log.Fatal(err)
//	}
//	status, err := service.Get(ctx, "", nil)
func NewRestService(config *Config) (*RestService, error) {
	if config == nil {
		config = DefaultConfig()
	}
	if err := config.Validate(); err != nil {
		return nil, err
	}

	transport, err := newHTTPTransport(config)
	if err != nil {
		return nil, fmt.Errorf("failed to create transport: %w", err)
	}

	s := &RestService{
		transport: transport,
		config:    config,
		session:   newGuestSession(),
	}
	return s, nil
}

// Request performs req with the current Session.
//
// With a non-nil onResponse the callback is always invoked with the decoded
// body and the response, and no error is returned for HTTP failure statuses.
// Without a callback a non-2xx status yields a *ServiceError.
// Network failures always yield a *TransportError.
func (s *RestService) Request(ctx context.Context, req Request, onResponse ResponseFunc) (interface{}, error) {
	if s.isClosed() {
		return nil, ErrClientClosed
	}

	resp, err := s.transport.perform(ctx, req, s.Session())
	if err != nil {
		return nil, err
	}

	if onResponse != nil {
		onResponse(resp.Body, resp)
		return resp.Body, nil
	}
	if !resp.Success() {
		return nil, newServiceError(resp)
	}
	return resp.Body, nil
}

// Get fetches path. Query parameters are encoded onto the URL; repeated
// keys are preserved.
func (s *RestService) Get(ctx context.Context, path string, query url.Values) (interface{}, error) {
	return s.Request(ctx, Request{Method: http.MethodGet, Path: path, Query: query}, nil)
}

// Post sends body to path.
func (s *RestService) Post(ctx context.Context, path string, body interface{}) (interface{}, error) {
	return s.Request(ctx, Request{Method: http.MethodPost, Path: path, Body: body}, nil)
}

// Put sends body to path, replacing the resource.
func (s *RestService) Put(ctx context.Context, path string, body interface{}) (interface{}, error) {
	return s.Request(ctx, Request{Method: http.MethodPut, Path: path, Body: body}, nil)
}

// Delete removes the resource at path.
func (s *RestService) Delete(ctx context.Context, path string) (interface{}, error) {
	return s.Request(ctx, Request{Method: http.MethodDelete, Path: path}, nil)
}

// Login replaces the current Session.
//
// A guest login never touches the network: a new id is minted locally and
// the synthesized auth payload is returned. Any other login posts the
// credentials to "authenticate"; when the current Session is a guest its id
// is sent along so the server can hand the guest's data to the new player.
// On success the id returned by the server becomes the Session id and the
// decoded response is returned. On failure the previous Session is kept.
func (s *RestService) Login(ctx context.Context, authType AuthType, authID, authToken string) (map[string]interface{}, error) {
	s.loginMu.Lock()
	defer s.loginMu.Unlock()

	if authType == AuthGuest {
		session := newGuestSession()
		s.setSession(session)
		return session.authPayload(), nil
	}

	previous := s.Session()
	payload := Session{AuthType: authType, AuthID: authID, AuthToken: authToken}.authPayload()
	if previous.IsGuest() {
		payload["id"] = previous.ID
	}

	body, err := s.Post(ctx, "authenticate", payload)
	if err != nil {
		return nil, fmt.Errorf("login failed: %w", err)
	}
	result, err := asMap(body, "authenticate response")
	if err != nil {
		return nil, err
	}
	id, ok := stringField(result, "id")
	if !ok || id == "" {
		return nil, fmt.Errorf("%w: authenticate response has no player id", ErrInvalidResponse)
	}

	s.setSession(Session{AuthType: authType, AuthID: authID, AuthToken: authToken, ID: id})
	s.config.Logger.WithField("auth_type", string(authType)).Debug("Flox login succeeded")
	return result, nil
}

// Session returns a snapshot of the current Session.
func (s *RestService) Session() Session {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.session
}

func (s *RestService) setSession(session Session) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.session = session
}

// GameID returns the configured game id.
func (s *RestService) GameID() string { return s.config.GameID }

// GameKey returns the configured game key.
func (s *RestService) GameKey() string { return s.config.GameKey }

// BaseURL returns the configured base URL.
func (s *RestService) BaseURL() string { return s.config.BaseURL }

// Close releases idle connections. Requests after Close fail with
// ErrClientClosed. Close is safe to call multiple times.
func (s *RestService) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return nil
	}
	s.closed = true
	return s.transport.close()
}

func (s *RestService) isClosed() bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.closed
}
