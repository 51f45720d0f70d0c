package downloader

import (
	"context"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/patentsearch/evidence-engine/internal/testutil"
)

func TestDiscoverFromDatasetPage_ParsesLinks(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`<a href="ipg20240109.zip">week</a>`))
	}))
	defer srv.Close()

	d := New(srv.Client(), t.TempDir(), testutil.NewNopLogger())
	weeks, err := d.DiscoverFromDatasetPage(context.Background(), srv.URL+"/")
	require.NoError(t, err)
	require.Len(t, weeks, 1)
	assert.Equal(t, "20240109", weeks[0].ID)
}

func TestDiscoverFromDatasetPage_ErrorStatusFails(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusInternalServerError)
	}))
	defer srv.Close()

	d := New(srv.Client(), t.TempDir(), testutil.NewNopLogger())
	_, err := d.DiscoverFromDatasetPage(context.Background(), srv.URL+"/")
	assert.Error(t, err)
}

func TestDiscoverFromSearchAPI_SendsAPIKeyHeader(t *testing.T) {
	var gotKey string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotKey = r.Header.Get("X-API-KEY")
		w.Write([]byte(`{"results": [{"fileName": "ipg20240101.zip", "downloadUrl": "https://x/ipg20240101.zip"}]}`))
	}))
	defer srv.Close()

	d := New(srv.Client(), t.TempDir(), testutil.NewNopLogger())
	weeks, err := d.DiscoverFromSearchAPI(context.Background(), srv.URL, "secret-key", 12)
	require.NoError(t, err)
	require.Len(t, weeks, 1)
	assert.Equal(t, "secret-key", gotKey)
}

func TestDownloadWeek_IdempotentOnExistingNonEmptyFile(t *testing.T) {
	dataRoot := t.TempDir()
	week := "20240101"
	finalDir := filepath.Join(dataRoot, "raw", "ptgrxml", "ipg"+week)
	require.NoError(t, os.MkdirAll(finalDir, 0o755))
	finalPath := filepath.Join(finalDir, "ipg"+week+".zip")
	require.NoError(t, os.WriteFile(finalPath, []byte("existing content"), 0o644))

	called := false
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		called = true
	}))
	defer srv.Close()

	d := New(srv.Client(), dataRoot, testutil.NewNopLogger())
	path, err := d.DownloadWeek(context.Background(), week, srv.URL)
	require.NoError(t, err)
	assert.Equal(t, finalPath, path)
	assert.False(t, called, "should not re-download an existing non-empty file")
}

func TestDownloadWeek_StreamsAndRenames(t *testing.T) {
	dataRoot := t.TempDir()
	week := "20240108"
	content := []byte("archive-bytes")

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write(content)
	}))
	defer srv.Close()

	d := New(srv.Client(), dataRoot, testutil.NewNopLogger())
	path, err := d.DownloadWeek(context.Background(), week, srv.URL)
	require.NoError(t, err)

	got, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.Equal(t, content, got)

	_, err = os.Stat(path + ".part")
	assert.True(t, os.IsNotExist(err))
}

func TestDownloadWeek_ResumesWithRangeHeader(t *testing.T) {
	dataRoot := t.TempDir()
	week := "20240115"
	dir := filepath.Join(dataRoot, "raw", "ptgrxml", "ipg"+week)
	require.NoError(t, os.MkdirAll(dir, 0o755))
	require.NoError(t, os.WriteFile(filepath.Join(dir, "ipg"+week+".zip.part"), []byte("first-"), 0o644))

	var gotRange string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotRange = r.Header.Get("Range")
		w.WriteHeader(http.StatusPartialContent)
		w.Write([]byte("second-half"))
	}))
	defer srv.Close()

	d := New(srv.Client(), dataRoot, testutil.NewNopLogger())
	path, err := d.DownloadWeek(context.Background(), week, srv.URL)
	require.NoError(t, err)
	assert.Equal(t, "bytes=6-", gotRange)

	got, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.Equal(t, "first-second-half", string(got))
}
