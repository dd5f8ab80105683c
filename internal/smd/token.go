package smd

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/sirupsen/logrus"
)

// tokenExpirySkew is subtracted from the token lifetime so a token never
// expires mid-flight.
const tokenExpirySkew = 5 * time.Second

type tokenResponse struct {
	AccessToken string `json:"client_access_token"`
	ExpiresIn   int64  `json:"expires_in"`
}

// needsRefresh reports whether the access token is absent, expired, or
// within the expiry skew of expiring.
func (s *Session) needsRefresh() bool {
	return !s.now().Before(s.tokenExp.Add(-tokenExpirySkew))
}

// RefreshToken performs the OAuth2 client-credentials grant over the
// mutually authenticated channel. On any failure the previous token, if
// one exists, is left unchanged.
func (s *Session) RefreshToken(ctx context.Context) error {
	if err := s.limiter.Wait(ctx); err != nil {
		return fmt.Errorf("%w: %v", ErrAuthGrant, err)
	}

	form := "grant_type=client_credentials"
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, s.endpoints.TokenURL, strings.NewReader(form))
	if err != nil {
		return fmt.Errorf("%w: %v", ErrAuthGrant, err)
	}
	req.Header.Set("Authorization", s.authHeader)
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")

	resp, err := s.client.Do(req)
	if err != nil {
		s.logger.WithError(err).Error("token request failed")
		return fmt.Errorf("%w: %v", ErrAuthGrant, err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return fmt.Errorf("%w: reading response: %v", ErrAuthGrant, err)
	}

	if resp.StatusCode != http.StatusOK {
		s.logger.WithFields(logrus.Fields{
			"status": resp.StatusCode,
			"body":   snippet(body),
		}).Error("token grant rejected")
		return fmt.Errorf("%w: status %d", ErrAuthGrant, resp.StatusCode)
	}

	var tok tokenResponse
	if err := json.Unmarshal(body, &tok); err != nil {
		s.logger.WithError(err).Error("token grant returned unparseable body")
		return fmt.Errorf("%w: %v", ErrAuthGrant, err)
	}
	if tok.AccessToken == "" {
		s.logger.Error("token grant response missing client_access_token")
		return fmt.Errorf("%w: response missing access token", ErrAuthGrant)
	}

	s.token = tok.AccessToken
	s.tokenExp = s.now().Add(time.Duration(tok.ExpiresIn) * time.Second)

	s.logger.WithField("expires_in", tok.ExpiresIn).Info("access token refreshed")
	return nil
}

// ensureToken refreshes the token if it is missing or about to expire.
func (s *Session) ensureToken(ctx context.Context) error {
	if !s.needsRefresh() {
		return nil
	}
	return s.RefreshToken(ctx)
}
