package sdk

import (
	"bytes"
	"context"
	"crypto/tls"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/sirupsen/logrus"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/codes"
	semconv "go.opentelemetry.io/otel/semconv/v1.4.0"
	"go.opentelemetry.io/otel/trace"

	"github.com/birbparty/flox-go/internal/wire"
)

const tracerName = "github.com/birbparty/flox-go/sdk"

// Request describes one call to the REST API. Path is relative to the
// game's root, e.g. "entities/SaveGame/123". Query is only used for GET
// requests, Body only for the other verbs.
type Request struct {
	Method string
	Path   string
	Query  url.Values
	Body   interface{}
}

// Response is a decoded server response. Body holds the decoded JSON value
// (or {"message": ...} for non-JSON bodies).
type Response struct {
	Body       interface{}
	StatusCode int
	Status     string
	Header     http.Header
}

// Success reports whether the status code is 2xx.
func (r *Response) Success() bool {
	return r.StatusCode >= 200 && r.StatusCode < 300
}

// httpTransport turns Requests into authenticated, compressed HTTP round
// trips and decodes whatever comes back.
type httpTransport struct {
	// client is the underlying HTTP client
	client *http.Client
	// config holds the SDK configuration
	config *Config
	// baseURL is the parsed base URL for the API
	baseURL *url.URL
	// observer for monitoring operations
	observer Observer
	// logger receives per-request debug entries
	logger logrus.FieldLogger
	// tracer creates one client span per request
	tracer trace.Tracer
}

// newHTTPTransport creates the transport for a validated config.
func newHTTPTransport(config *Config) (*httpTransport, error) {
	baseURL, err := url.Parse(config.BaseURL)
	if err != nil {
		return nil, fmt.Errorf("invalid base URL: %w", err)
	}
	if baseURL.Scheme == "" || baseURL.Host == "" {
		return nil, fmt.Errorf("base URL must have a scheme and host")
	}

	transport := &http.Transport{
		Proxy:               http.ProxyFromEnvironment,
		TLSHandshakeTimeout: 10 * time.Second,
		TLSClientConfig:     &tls.Config{InsecureSkipVerify: config.InsecureSkipVerify},
	}
	if config.InsecureSkipVerify {
		config.Logger.WithField("base_url", config.BaseURL).
			Warn("TLS certificate verification is disabled")
	}

	return &httpTransport{
		client: &http.Client{
			Transport: transport,
			Timeout:   config.Timeout,
		},
		config:   config,
		baseURL:  baseURL,
		observer: config.Observer,
		logger:   config.Logger,
		tracer:   otel.Tracer(tracerName),
	}, nil
}

// fullURL builds {base}/api/games/{gameID}/{path}[?query].
func (t *httpTransport) fullURL(req Request) *url.URL {
	u := *t.baseURL
	u.Path = strings.TrimRight(t.baseURL.Path, "/") + "/api/games/" + t.config.GameID + "/" + req.Path
	u.RawPath = ""
	u.RawQuery = ""
	if req.Method == http.MethodGet && len(req.Query) > 0 {
		u.RawQuery = req.Query.Encode()
	}
	return &u
}

// perform executes a single round trip. It returns an error only when no
// response could be obtained; HTTP failure statuses come back as a Response.
func (t *httpTransport) perform(ctx context.Context, req Request, session Session) (*Response, error) {
	ctx, span := t.tracer.Start(ctx, "flox "+req.Method,
		trace.WithSpanKind(trace.SpanKindClient),
		trace.WithAttributes(
			semconv.HTTPMethodKey.String(req.Method),
			semconv.HTTPTargetKey.String(req.Path),
		),
	)
	defer span.End()

	t.observer.OnRequestStart(req.Method, req.Path)
	start := time.Now()

	resp, err := t.roundTrip(ctx, req, session)

	duration := time.Since(start)
	status := 0
	var reported error = err
	if resp != nil {
		status = resp.StatusCode
		span.SetAttributes(semconv.HTTPStatusCodeKey.Int(status))
		if !resp.Success() {
			reported = newServiceError(resp)
		}
	}
	t.observer.OnRequestEnd(req.Method, req.Path, status, duration, reported)

	entry := t.logger.WithFields(logrus.Fields{
		"method":      req.Method,
		"path":        req.Path,
		"status":      status,
		"duration_ms": duration.Milliseconds(),
	})
	if reported != nil {
		span.RecordError(reported)
		span.SetStatus(codes.Error, reported.Error())
		entry.WithError(reported).Debug("Flox request failed")
	} else {
		span.SetStatus(codes.Ok, "")
		entry.Debug("Flox request completed")
	}

	return resp, err
}

func (t *httpTransport) roundTrip(ctx context.Context, req Request, session Session) (*Response, error) {
	op := req.Method + " " + req.Path

	var bodyReader io.Reader
	if req.Body != nil && req.Method != http.MethodGet {
		data, err := wire.EncodeBody(req.Body)
		if err != nil {
			return nil, err
		}
		bodyReader = bytes.NewReader(data)
	}

	httpReq, err := http.NewRequestWithContext(ctx, req.Method, t.fullURL(req).String(), bodyReader)
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}

	meta, err := wire.EncodeMetadata(
		wire.SDKInfo{Type: SDKType, Version: Version},
		t.config.GameKey,
		time.Now(),
		session,
	)
	if err != nil {
		return nil, err
	}

	httpReq.Header.Set("Content-Type", "application/json")
	httpReq.Header.Set(wire.HeaderName, meta)
	for key, value := range t.config.Headers {
		httpReq.Header.Set(key, value)
	}

	httpResp, err := t.client.Do(httpReq)
	if err != nil {
		return nil, &TransportError{Op: op, Err: err}
	}
	defer httpResp.Body.Close()

	raw, err := io.ReadAll(httpResp.Body)
	if err != nil {
		return nil, &TransportError{Op: "reading response of " + op, Err: err}
	}

	compressed := strings.EqualFold(httpResp.Header.Get(wire.ContentEncodingHeader), wire.CompressionZlib)
	return &Response{
		Body:       wire.DecodeBody(raw, compressed),
		StatusCode: httpResp.StatusCode,
		Status:     httpResp.Status,
		Header:     httpResp.Header,
	}, nil
}

// close releases idle connections
func (t *httpTransport) close() error {
	t.client.CloseIdleConnections()
	return nil
}
