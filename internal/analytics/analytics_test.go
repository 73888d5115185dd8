package analytics

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/derickschaefer/opendosm/internal/model"
)

func TestCounts(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/pipes/publication_dls_by_pub_res.json", r.URL.Path)
		assert.Equal(t, "Bearer tok", r.Header.Get("Authorization"))
		w.Write([]byte(`{"data":[{"publication_id":"a","resource_id":"1","total_downloads":4}]}`))
	}))
	defer srv.Close()

	c := New(srv.URL, "tok", time.Second)
	counts, err := c.Counts(context.Background())
	require.NoError(t, err)
	require.Len(t, counts, 1)
	assert.Equal(t, 4, counts[0].TotalDownloads)
}

func TestRecordDownloadBody(t *testing.T) {
	var got model.DownloadEvent
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, http.MethodPost, r.Method)
		assert.Equal(t, "dgmy_pub_dls", r.URL.Query().Get("name"))
		assert.NoError(t, json.NewDecoder(r.Body).Decode(&got))
		w.WriteHeader(http.StatusAccepted)
	}))
	defer srv.Close()

	c := New(srv.URL, "", time.Second)
	c.now = func() time.Time { return time.Date(2024, 5, 1, 13, 4, 5, 60e6, time.Local) }
	require.NoError(t, c.RecordDownload(context.Background(), "lfs", 7))

	assert.Equal(t, "lfs", got.PublicationID)
	assert.Equal(t, 7, got.ResourceID)
	assert.Equal(t, "2024-05-01 13:04:05.060", got.Timestamp)
}

func TestRecordDownloadPendingGate(t *testing.T) {
	release := make(chan struct{})
	entered := make(chan struct{})
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		close(entered)
		<-release
	}))
	defer srv.Close()

	c := New(srv.URL, "", 5*time.Second)
	done := make(chan error, 1)
	go func() { done <- c.RecordDownload(context.Background(), "a", 1) }()
	<-entered

	err := c.RecordDownload(context.Background(), "a", 1)
	assert.True(t, errors.Is(err, ErrPending), "second call should be gated, got %v", err)

	close(release)
	require.NoError(t, <-done)
	assert.False(t, c.pending.Load(), "gate should reopen after completion")
}

func TestRecordDownloadFailureReleasesGate(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusInternalServerError)
	}))
	defer srv.Close()

	c := New(srv.URL, "", time.Second)
	require.Error(t, c.RecordDownload(context.Background(), "a", 1))
	assert.False(t, c.pending.Load())
}

func TestDisabled(t *testing.T) {
	c := New("", "", time.Second)
	assert.False(t, c.Enabled())
	_, err := c.Counts(context.Background())
	assert.ErrorIs(t, err, ErrDisabled)
	assert.ErrorIs(t, c.RecordDownload(context.Background(), "a", 1), ErrDisabled)
}

func TestEnrich(t *testing.T) {
	pubs := []model.Publication{{PublicationID: "a"}, {PublicationID: "b"}}
	counts := []model.DownloadCount{
		{PublicationID: "a", ResourceID: "1", TotalDownloads: 3},
		{PublicationID: "a", ResourceID: "2", TotalDownloads: 2},
		{PublicationID: "c", ResourceID: "1", TotalDownloads: 9},
	}
	out := Enrich(pubs, counts)
	assert.Equal(t, 5, out[0].TotalDownloads)
	assert.Equal(t, 0, out[1].TotalDownloads)
	assert.Equal(t, 0, pubs[0].TotalDownloads, "input must not be mutated")
}

func TestEnrichResources(t *testing.T) {
	d := model.PublicationDetail{
		PublicationID: "a",
		Resources:     []model.Resource{{ResourceID: 1}, {ResourceID: 2}, {ResourceID: 3}},
	}
	counts := []model.DownloadCount{
		{PublicationID: "a", ResourceID: "1", TotalDownloads: 3},
		{PublicationID: "a", ResourceID: " 2", TotalDownloads: 8},
		{PublicationID: "b", ResourceID: "3", TotalDownloads: 1},
	}
	out := EnrichResources(d, counts)
	assert.Equal(t, []int{3, 8, 0}, []int{out.Resources[0].Downloads, out.Resources[1].Downloads, out.Resources[2].Downloads})
	assert.Equal(t, 0, d.Resources[0].Downloads)
}

func TestIncrement(t *testing.T) {
	counts := []model.DownloadCount{{PublicationID: "a", ResourceID: "1", TotalDownloads: 3}}
	out := Increment(counts, "a", 1)
	assert.Equal(t, 4, out[0].TotalDownloads)
	assert.Equal(t, 3, counts[0].TotalDownloads)
	out = Increment(out, "a", 2)
	require.Len(t, out, 2)
	assert.Equal(t, "2", out[1].ResourceID)
}
