// Package smd implements a client session for a utility's Green Button /
// Share My Data API: OAuth2 client-credential authentication over mutually
// authenticated TLS, asynchronous bulk-data requests, and resource fetches.
//
// All calls are synchronous request/acknowledge or request/response; the
// remote service delivers requested data later through an out-of-band
// notification handled by an external collaborator.
package smd

import (
	"context"
	"crypto/tls"
	"encoding/base64"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"time"

	"github.com/sirupsen/logrus"
	"golang.org/x/time/rate"
)

var (
	// ErrConfiguration marks fatal setup defects: missing certificate
	// paths or a missing/malformed credential record. Never retried.
	ErrConfiguration = errors.New("invalid session configuration")

	// ErrAuthGrant marks a failed client-credentials grant. The caller
	// decides whether to retry with backoff.
	ErrAuthGrant = errors.New("token grant failed")

	// ErrRequestRejected marks a bulk data request the server answered
	// with anything but 202 Accepted.
	ErrRequestRejected = errors.New("bulk data request rejected")

	// ErrFetchDenied marks a resource fetch that was still forbidden
	// after a token refresh; the credentials or authorization are bad.
	ErrFetchDenied = errors.New("resource fetch denied")

	// ErrFetchFailed marks any other terminal fetch failure.
	ErrFetchFailed = errors.New("resource fetch failed")

	// ErrMalformedDocument marks an XML response that could not be
	// parsed.
	ErrMalformedDocument = errors.New("malformed document")
)

// Endpoints locates the remote API surfaces. Zero fields fall back to the
// PG&E production defaults.
type Endpoints struct {
	TokenURL         string
	UtilityURL       string
	APIPath          string
	ServiceStatusURL string
}

// DefaultEndpoints returns the PG&E production endpoints.
func DefaultEndpoints() Endpoints {
	return Endpoints{
		TokenURL:         "https://api.pge.com/datacustodian/oauth/v2/token",
		UtilityURL:       "https://api.pge.com",
		APIPath:          "/GreenButtonConnect/espi",
		ServiceStatusURL: "https://api.pge.com/GreenButtonConnect/espi/1_1/resource/ReadServiceStatus",
	}
}

func (e Endpoints) withDefaults() Endpoints {
	def := DefaultEndpoints()
	if e.TokenURL == "" {
		e.TokenURL = def.TokenURL
	}
	if e.UtilityURL == "" {
		e.UtilityURL = def.UtilityURL
	}
	if e.APIPath == "" {
		e.APIPath = def.APIPath
	}
	if e.ServiceStatusURL == "" {
		e.ServiceStatusURL = def.ServiceStatusURL
	}
	return e
}

// Session owns the credentials, the mutually authenticated TLS channel,
// and the live access token for one Share My Data authorization. A Session
// is exclusively owned by its calling goroutine; it holds no global state,
// so multiple sessions can coexist.
type Session struct {
	creds     *Credentials
	endpoints Endpoints
	client    *http.Client
	logger    *logrus.Logger
	limiter   *rate.Limiter
	loc       *time.Location
	now       func() time.Time

	authHeader      string
	bulkResourceURL string

	token    string
	tokenExp time.Time
}

// Option adjusts a Session at construction time.
type Option func(*Session)

// WithTransport replaces the mutually authenticated TLS transport,
// bypassing certificate loading. Intended for tests.
func WithTransport(rt http.RoundTripper) Option {
	return func(s *Session) {
		s.client = &http.Client{Transport: rt}
	}
}

// WithClock replaces the session's time source. Intended for tests.
func WithClock(now func() time.Time) Option {
	return func(s *Session) { s.now = now }
}

// WithLocation sets the utility's local timezone, used to anchor calendar
// day windows. Defaults to America/Los_Angeles.
func WithLocation(loc *time.Location) Option {
	return func(s *Session) { s.loc = loc }
}

// WithRateLimit replaces the client-side request pacing toward the API.
func WithRateLimit(limiter *rate.Limiter) Option {
	return func(s *Session) { s.limiter = limiter }
}

// NewSession builds a session from a validated credential record. Missing
// certificate or key paths are a configuration error, logged at error
// level and never retried.
func NewSession(creds *Credentials, endpoints Endpoints, logger *logrus.Logger, opts ...Option) (*Session, error) {
	if creds == nil {
		return nil, fmt.Errorf("%w: nil credentials", ErrConfiguration)
	}
	if err := creds.validate(); err != nil {
		logger.WithError(err).Error("refusing to build session")
		return nil, err
	}

	endpoints = endpoints.withDefaults()

	s := &Session{
		creds:     creds,
		endpoints: endpoints,
		logger:    logger,
		limiter:   rate.NewLimiter(2, 5),
		now:       time.Now,
		authHeader: "Basic " + base64.StdEncoding.EncodeToString(
			[]byte(creds.ClientID+":"+creds.ClientSecret)),
		bulkResourceURL: fmt.Sprintf("%s%s/1_1/resource/Batch/Bulk/%s",
			endpoints.UtilityURL, endpoints.APIPath, creds.ThirdPartyID),
	}

	for _, opt := range opts {
		opt(s)
	}

	if s.loc == nil {
		loc, err := time.LoadLocation("America/Los_Angeles")
		if err != nil {
			return nil, fmt.Errorf("%w: loading utility timezone: %v", ErrConfiguration, err)
		}
		s.loc = loc
	}

	if s.client == nil {
		cert, err := tls.LoadX509KeyPair(creds.CertPath, creds.KeyPath)
		if err != nil {
			logger.WithError(err).Error("failed to load client certificate pair")
			return nil, fmt.Errorf("%w: loading client certificate: %v", ErrConfiguration, err)
		}
		s.client = &http.Client{
			Timeout: 60 * time.Second,
			Transport: &http.Transport{
				TLSClientConfig: &tls.Config{Certificates: []tls.Certificate{cert}},
			},
		}
	}

	return s, nil
}

// BulkResourcePrefix returns the Batch/Bulk resource root for this
// utility, without a third-party id.
func (s *Session) BulkResourcePrefix() string {
	return fmt.Sprintf("%s%s/1_1/resource/Batch/Bulk/",
		s.endpoints.UtilityURL, s.endpoints.APIPath)
}

// get issues one authorized GET and returns the status and body. Network
// failures surface as errors; HTTP statuses do not.
func (s *Session) get(ctx context.Context, rawURL string, params url.Values) (int, []byte, error) {
	if err := s.limiter.Wait(ctx); err != nil {
		return 0, nil, err
	}

	u := rawURL
	if len(params) > 0 {
		u += "?" + params.Encode()
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, u, nil)
	if err != nil {
		return 0, nil, err
	}
	req.Header.Set("Authorization", "Bearer "+s.token)

	resp, err := s.client.Do(req)
	if err != nil {
		return 0, nil, err
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return 0, nil, err
	}
	return resp.StatusCode, body, nil
}

// snippet bounds response bodies destined for log entries.
func snippet(body []byte) string {
	const max = 512
	if len(body) > max {
		return string(body[:max]) + "..."
	}
	return string(body)
}
