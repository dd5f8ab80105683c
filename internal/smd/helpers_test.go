package smd

import (
	"bytes"
	"io"
	"net/http"
	"testing"
	"time"

	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/require"
	"golang.org/x/time/rate"
)

// mockRoundTripper routes every HTTP request through a test handler.
type mockRoundTripper struct {
	handler func(req *http.Request) (*http.Response, error)
}

func (m *mockRoundTripper) RoundTrip(req *http.Request) (*http.Response, error) {
	return m.handler(req)
}

func httpResponse(status int, body string) (*http.Response, error) {
	return &http.Response{
		StatusCode: status,
		Body:       io.NopCloser(bytes.NewReader([]byte(body))),
		Header:     make(http.Header),
	}, nil
}

func testCredentials() *Credentials {
	return &Credentials{
		ThirdPartyID: "50916",
		ClientID:     "fake_client_id",
		ClientSecret: "fake_client_secret",
		CertPath:     "/tls/cert.crt",
		KeyPath:      "/tls/private.key",
	}
}

func quietLogger() *logrus.Logger {
	logger := logrus.New()
	logger.SetOutput(io.Discard)
	return logger
}

var testNow = time.Unix(1570086000, 0)

func newTestSession(t *testing.T, handler func(req *http.Request) (*http.Response, error)) *Session {
	t.Helper()
	s, err := NewSession(testCredentials(), Endpoints{}, quietLogger(),
		WithTransport(&mockRoundTripper{handler: handler}),
		WithClock(func() time.Time { return testNow }),
		WithRateLimit(rate.NewLimiter(rate.Inf, 0)),
	)
	require.NoError(t, err)
	return s
}
