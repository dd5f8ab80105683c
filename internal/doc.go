// Package smdcollect implements a Green Button data collector for the
// PG&E Share My Data API.
//
// # Architecture
//
// The collector is structured into several key packages:
//   - smd: Share My Data API client (OAuth2 over mTLS, bulk requests,
//     resource fetch, service status, registration)
//   - espi: streaming ESPI XML parser with DST correction
//   - collector: fetch/archive/parse/store pipeline
//   - sink: PostgreSQL storage for interval readings
//   - archive: raw XML retention on disk
//   - scheduler: cron-driven daily bulk requests
//   - config: YAML configuration with environment overrides
//
// Key Features
//
//   - Bulk Requests:
//     Data is requested asynchronously; the utility responds 202
//     Accepted and later posts a notification naming the resource
//     URIs to fetch.
//
//   - DST Correction:
//     The parser guarantees 24 hourly readings per day: duplicated
//     fall-back hours are skipped and spring-forward gaps are filled
//     with the average of the neighboring readings.
//
//   - Historical Data:
//     A single historical request can cover up to two years of
//     usage data.
//
// Example Usage
//
//	session, err := smd.NewSession(creds, smd.Endpoints{}, logger)
//	if err != nil {
//	    return err
//	}
//	if err := session.RequestLatest(ctx); err != nil {
//	    return err
//	}
//
// For more information about specific packages, see their respective
// documentation.
package smdcollect
