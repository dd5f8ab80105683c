package smd

import (
	"bytes"
	"context"
	"fmt"

	"github.com/smdcollect/smdcollect/internal/espi"
)

// Registration walks the Share My Data connectivity tests a third party
// must pass before the utility enables its data feed: obtain a token,
// confirm the service is online, download the sample data set, and
// recover the assigned third-party (bulk) id from the Authorization
// resource.
type Registration struct {
	session          *Session
	sampleDataURL    string
	authorizationURL string
}

// NewRegistration builds the test flow on top of an existing session.
func NewRegistration(session *Session) *Registration {
	base := fmt.Sprintf("%s%s/1_1/resource",
		session.endpoints.UtilityURL, session.endpoints.APIPath)
	return &Registration{
		session:          session,
		sampleDataURL:    base + "/DownloadSampleData",
		authorizationURL: base + "/Authorization",
	}
}

// CompleteTesting runs the whole flow and returns the discovered
// third-party id. It stops at the first failing step.
func (r *Registration) CompleteTesting(ctx context.Context) (string, error) {
	if err := r.session.RefreshToken(ctx); err != nil {
		return "", err
	}

	online, err := r.session.ServiceStatus(ctx)
	if err != nil {
		return "", err
	}
	if !online {
		return "", fmt.Errorf("%w: service status is not online", ErrFetchFailed)
	}

	if _, err := r.session.FetchResource(ctx, r.sampleDataURL); err != nil {
		return "", err
	}

	id, err := r.ThirdPartyID(ctx)
	if err != nil {
		return "", err
	}

	r.session.logger.WithField("third_party_id", id).Info("connectivity testing completed")
	return id, nil
}

// ThirdPartyID fetches the Authorization resource and returns the suffix
// of the first resourceURI under the utility's Batch/Bulk root.
func (r *Registration) ThirdPartyID(ctx context.Context) (string, error) {
	body, err := r.session.FetchResource(ctx, r.authorizationURL)
	if err != nil {
		return "", err
	}

	suffix, err := espi.FindResourceSuffix(bytes.NewReader(body), r.session.BulkResourcePrefix())
	if err != nil {
		return "", fmt.Errorf("%w: %v", ErrMalformedDocument, err)
	}
	if suffix == "" {
		return "", fmt.Errorf("%w: no bulk resource URI in authorization document", ErrMalformedDocument)
	}
	return suffix, nil
}
