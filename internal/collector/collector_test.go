package collector

import (
	"context"
	"errors"
	"io"
	"testing"

	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/smdcollect/smdcollect/internal/espi"
	"github.com/smdcollect/smdcollect/internal/smd"
)

const testDocument = `<feed xmlns="http://www.w3.org/2005/Atom" xmlns:espi="http://naesb.org/espi">
<entry><content>
<espi:ReadingType><espi:powerOfTenMultiplier>0</espi:powerOfTenMultiplier></espi:ReadingType>
<espi:IntervalBlock>
<espi:IntervalReading>
<espi:timePeriod><espi:duration>3600</espi:duration><espi:start>1570086000</espi:start></espi:timePeriod>
<espi:value>1067</espi:value>
</espi:IntervalReading>
<espi:IntervalReading>
<espi:timePeriod><espi:duration>3600</espi:duration><espi:start>1570089600</espi:start></espi:timePeriod>
<espi:value>917</espi:value>
</espi:IntervalReading>
</espi:IntervalBlock>
</content></entry>
</feed>`

type fakeFetcher struct {
	calls     int
	responses map[string]string
	err       error
}

func (f *fakeFetcher) FetchResource(ctx context.Context, uri string) ([]byte, error) {
	f.calls++
	if f.err != nil {
		return nil, f.err
	}
	return []byte(f.responses[uri]), nil
}

type fakeRepo struct {
	inserted []espi.Reading
	err      error
}

func (r *fakeRepo) BatchInsert(ctx context.Context, readings []espi.Reading) error {
	if r.err != nil {
		return r.err
	}
	r.inserted = append(r.inserted, readings...)
	return nil
}

func (r *fakeRepo) Close() error { return nil }

type fakeArchive struct {
	saves int
}

func (a *fakeArchive) Save(xmlData []byte, label string) (string, error) {
	a.saves++
	return "/archive/doc.xml", nil
}

func quietLogger() *logrus.Logger {
	logger := logrus.New()
	logger.SetOutput(io.Discard)
	return logger
}

const testURI = "https://api.example.com/espi/1_1/resource/Batch/Bulk/50916/1"

func newTestCollector(t *testing.T, fetcher *fakeFetcher, repo *fakeRepo, arch *fakeArchive) *Collector {
	t.Helper()
	var archiver Archiver
	if arch != nil {
		archiver = arch
	}
	c, err := New(fetcher, repo, archiver, quietLogger(), 16)
	require.NoError(t, err)
	return c
}

func TestCollect(t *testing.T) {
	fetcher := &fakeFetcher{responses: map[string]string{testURI: testDocument}}
	repo := &fakeRepo{}
	arch := &fakeArchive{}
	c := newTestCollector(t, fetcher, repo, arch)

	n, err := c.Collect(context.Background(), testURI)
	require.NoError(t, err)
	assert.Equal(t, 2, n)
	assert.Equal(t, 1, arch.saves)
	require.Len(t, repo.inserted, 2)
	assert.Equal(t, espi.Reading{Start: 1570086000, Duration: 3600, WattHours: 1067}, repo.inserted[0])
}

func TestCollectSkipsSeenResource(t *testing.T) {
	fetcher := &fakeFetcher{responses: map[string]string{testURI: testDocument}}
	repo := &fakeRepo{}
	c := newTestCollector(t, fetcher, repo, nil)

	_, err := c.Collect(context.Background(), testURI)
	require.NoError(t, err)

	n, err := c.Collect(context.Background(), testURI)
	require.NoError(t, err)
	assert.Zero(t, n)
	assert.Equal(t, 1, fetcher.calls)
	assert.Len(t, repo.inserted, 2)
}

func TestCollectFetchFailureNotMarkedSeen(t *testing.T) {
	fetcher := &fakeFetcher{err: smd.ErrFetchFailed}
	repo := &fakeRepo{}
	c := newTestCollector(t, fetcher, repo, nil)

	_, err := c.Collect(context.Background(), testURI)
	require.ErrorIs(t, err, smd.ErrFetchFailed)

	// The next attempt fetches again.
	fetcher.err = nil
	fetcher.responses = map[string]string{testURI: testDocument}
	n, err := c.Collect(context.Background(), testURI)
	require.NoError(t, err)
	assert.Equal(t, 2, n)
}

func TestCollectMalformedDocument(t *testing.T) {
	fetcher := &fakeFetcher{responses: map[string]string{testURI: `<feed xmlns:espi="http://naesb.org/espi"><espi:IntervalBlock>`}}
	repo := &fakeRepo{}
	c := newTestCollector(t, fetcher, repo, nil)

	_, err := c.Collect(context.Background(), testURI)
	assert.ErrorIs(t, err, smd.ErrMalformedDocument)
	assert.Empty(t, repo.inserted)
}

func TestCollectStoreFailure(t *testing.T) {
	fetcher := &fakeFetcher{responses: map[string]string{testURI: testDocument}}
	repo := &fakeRepo{err: errors.New("connection refused")}
	c := newTestCollector(t, fetcher, repo, nil)

	_, err := c.Collect(context.Background(), testURI)
	assert.Error(t, err)
}

func TestIngestNotification(t *testing.T) {
	const uri2 = testURI + "?part=2"
	notification := `<ns0:BatchList xmlns:ns0="http://naesb.org/espi">
<ns0:resourceURI>` + testURI + `</ns0:resourceURI>
<ns0:resourceURI>` + uri2 + `</ns0:resourceURI>
</ns0:BatchList>`

	fetcher := &fakeFetcher{responses: map[string]string{
		testURI: testDocument,
		uri2:    testDocument,
	}}
	repo := &fakeRepo{}
	c := newTestCollector(t, fetcher, repo, nil)

	n, err := c.IngestNotification(context.Background(), []byte(notification))
	require.NoError(t, err)
	assert.Equal(t, 4, n)
	assert.Equal(t, 2, fetcher.calls)
}

func TestIngestNotificationEmpty(t *testing.T) {
	c := newTestCollector(t, &fakeFetcher{}, &fakeRepo{}, nil)

	n, err := c.IngestNotification(context.Background(), []byte(`<ns0:BatchList xmlns:ns0="http://naesb.org/espi"/>`))
	require.NoError(t, err)
	assert.Zero(t, n)
}
