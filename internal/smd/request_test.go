package smd

import (
	"context"
	"net/http"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const tokenBody = `{"client_access_token":"tok-1","expires_in":3600}`

// bulkHandler answers the token endpoint and records bulk request URLs.
func bulkHandler(t *testing.T, status int, gotURLs *[]string) func(req *http.Request) (*http.Response, error) {
	t.Helper()
	return func(req *http.Request) (*http.Response, error) {
		if req.Method == http.MethodPost {
			return httpResponse(http.StatusOK, tokenBody)
		}
		require.Equal(t, "Bearer tok-1", req.Header.Get("Authorization"))
		*gotURLs = append(*gotURLs, req.URL.String())
		return httpResponse(status, "")
	}
}

func TestRequestLatest(t *testing.T) {
	var urls []string
	s := newTestSession(t, bulkHandler(t, http.StatusAccepted, &urls))

	require.NoError(t, s.RequestLatest(context.Background()))
	require.Len(t, urls, 1)
	assert.Equal(t,
		"https://api.pge.com/GreenButtonConnect/espi/1_1/resource/Batch/Bulk/50916",
		urls[0])
}

func TestRequestRange(t *testing.T) {
	var urls []string
	s := newTestSession(t, bulkHandler(t, http.StatusAccepted, &urls))

	start := time.Unix(1570000000, 0)
	end := time.Unix(1570086000, 0)
	require.NoError(t, s.RequestRange(context.Background(), start, end))
	require.Len(t, urls, 1)
	assert.Contains(t, urls[0], "published-min=1570000000")
	assert.Contains(t, urls[0], "published-max=1570086000")
}

func TestRequestRangeDefaultsEndToNow(t *testing.T) {
	var urls []string
	s := newTestSession(t, bulkHandler(t, http.StatusAccepted, &urls))

	require.NoError(t, s.RequestRange(context.Background(), time.Unix(1570000000, 0), time.Time{}))
	require.Len(t, urls, 1)
	assert.Contains(t, urls[0], "published-max=1570086000")
}

func TestRequestDay(t *testing.T) {
	tests := []struct {
		name    string
		year    int
		month   time.Month
		day     int
		wantMin string // local midnight with that date's own UTC offset
		wantMax string // min + 82800
	}{
		{"summer day, PDT (UTC-7)", 2019, time.July, 1, "1561964400", "1562047200"},
		{"winter day, PST (UTC-8)", 2019, time.January, 15, "1547539200", "1547622000"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var urls []string
			s := newTestSession(t, bulkHandler(t, http.StatusAccepted, &urls))

			require.NoError(t, s.RequestDay(context.Background(), tt.year, tt.month, tt.day))
			require.Len(t, urls, 1)
			assert.Contains(t, urls[0], "published-min="+tt.wantMin)
			assert.Contains(t, urls[0], "published-max="+tt.wantMax)
		})
	}
}

func TestRequestHistorical(t *testing.T) {
	var urls []string
	s := newTestSession(t, bulkHandler(t, http.StatusAccepted, &urls))

	end := time.Unix(1570086000, 0)
	require.NoError(t, s.RequestHistorical(context.Background(), 730, end))
	require.Len(t, urls, 1)
	assert.Contains(t, urls[0], "published-min=1507014000") // end - 730*86400
	assert.Contains(t, urls[0], "published-max=1570086000")
}

func TestRequestRejected(t *testing.T) {
	var urls []string
	s := newTestSession(t, bulkHandler(t, http.StatusServiceUnavailable, &urls))

	err := s.RequestLatest(context.Background())
	require.ErrorIs(t, err, ErrRequestRejected)
	// No automatic retry for this class of call.
	assert.Len(t, urls, 1)
}

func TestRequestAuthGrantFailure(t *testing.T) {
	s := newTestSession(t, func(req *http.Request) (*http.Response, error) {
		return httpResponse(http.StatusUnauthorized, "")
	})

	err := s.RequestLatest(context.Background())
	assert.ErrorIs(t, err, ErrAuthGrant)
}
