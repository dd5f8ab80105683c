package smd

import (
	"bytes"
	"context"
	"encoding/xml"
	"fmt"
	"io"
	"net/http"
	"strings"

	"github.com/sirupsen/logrus"
)

// FetchResource retrieves an ESPI XML document from a resource URI,
// typically one delivered by a server notification. A 403 triggers
// exactly one transparent token refresh and retry; a second 403 is
// terminal.
func (s *Session) FetchResource(ctx context.Context, resourceURI string) ([]byte, error) {
	if err := s.ensureToken(ctx); err != nil {
		return nil, err
	}

	status, body, err := s.get(ctx, resourceURI, nil)
	if err != nil {
		s.logger.WithError(err).WithField("uri", resourceURI).Error("resource fetch failed")
		return nil, fmt.Errorf("%w: %v", ErrFetchFailed, err)
	}

	if status == http.StatusForbidden {
		s.logger.WithField("uri", resourceURI).Warn("resource fetch forbidden, refreshing token")
		if err := s.RefreshToken(ctx); err != nil {
			return nil, err
		}
		status, body, err = s.get(ctx, resourceURI, nil)
		if err != nil {
			s.logger.WithError(err).WithField("uri", resourceURI).Error("resource fetch failed")
			return nil, fmt.Errorf("%w: %v", ErrFetchFailed, err)
		}
		if status == http.StatusForbidden {
			s.logger.WithFields(logrus.Fields{
				"uri":    resourceURI,
				"status": status,
				"body":   snippet(body),
			}).Error("resource fetch still forbidden, check the authorization record")
			return nil, fmt.Errorf("%w: status %d", ErrFetchDenied, status)
		}
	}

	if status != http.StatusOK {
		s.logger.WithFields(logrus.Fields{
			"uri":    resourceURI,
			"status": status,
			"body":   snippet(body),
		}).Error("resource fetch failed")
		return nil, fmt.Errorf("%w: status %d", ErrFetchFailed, status)
	}

	return body, nil
}

// ServiceStatus asks the utility whether the data service is online. The
// outcome is tri-state: (true, nil) online, (false, nil) reported offline,
// (false, err) unreachable or unparseable.
func (s *Session) ServiceStatus(ctx context.Context) (bool, error) {
	if err := s.ensureToken(ctx); err != nil {
		return false, err
	}

	status, body, err := s.get(ctx, s.endpoints.ServiceStatusURL, nil)
	if err != nil {
		s.logger.WithError(err).Error("service status request failed")
		return false, fmt.Errorf("%w: %v", ErrFetchFailed, err)
	}
	if status != http.StatusOK {
		s.logger.WithFields(logrus.Fields{
			"status": status,
			"body":   snippet(body),
		}).Error("service status request failed")
		return false, fmt.Errorf("%w: status %d", ErrFetchFailed, status)
	}

	flag, err := firstChildText(bytes.NewReader(body))
	if err != nil {
		s.logger.WithError(err).WithField("body", snippet(body)).Error("service status response unparseable")
		return false, fmt.Errorf("%w: %v", ErrMalformedDocument, err)
	}

	online := flag == "1"
	if online {
		s.logger.Info("service status is online")
	} else {
		s.logger.WithField("flag", flag).Warn("service status is offline")
	}
	return online, nil
}

// firstChildText returns the text of the XML root's first child element.
func firstChildText(r io.Reader) (string, error) {
	dec := xml.NewDecoder(r)
	seenRoot := false
	for {
		tok, err := dec.Token()
		if err == io.EOF {
			return "", fmt.Errorf("document has no child element")
		}
		if err != nil {
			return "", err
		}
		se, ok := tok.(xml.StartElement)
		if !ok {
			continue
		}
		if !seenRoot {
			seenRoot = true
			continue
		}
		var text string
		if err := dec.DecodeElement(&text, &se); err != nil {
			return "", err
		}
		return strings.TrimSpace(text), nil
	}
}
