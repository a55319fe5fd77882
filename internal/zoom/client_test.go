package zoom

import (
	"context"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDownloadRecording(t *testing.T) {
	tokenCalls := 0
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		switch r.URL.Path {
		case "/oauth/token":
			tokenCalls++
			user, pass, ok := r.BasicAuth()
			require.True(t, ok)
			assert.Equal(t, "cid", user)
			assert.Equal(t, "csecret", pass)
			w.Header().Set("Content-Type", "application/json")
			w.Write([]byte(`{"access_token":"tok-1","token_type":"bearer","expires_in":3600}`))
		case "/rec/file.mp4":
			assert.Equal(t, "Bearer tok-1", r.Header.Get("Authorization"))
			w.Write([]byte("fake-mp4-bytes"))
		default:
			w.WriteHeader(http.StatusNotFound)
		}
	}))
	defer srv.Close()

	c := NewClient(Config{AccountID: "acc", ClientID: "cid", ClientSecret: "csecret"}, nil)
	// point token fetches at the test server
	c.tokenURL = srv.URL + "/oauth/token"

	dir := t.TempDir()
	path, size, err := c.DownloadRecording(context.Background(), srv.URL+"/rec/file.mp4", dir, "file.mp4")
	require.NoError(t, err)
	assert.Equal(t, filepath.Join(dir, "file.mp4"), path)
	assert.Equal(t, int64(len("fake-mp4-bytes")), size)

	data, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.Equal(t, "fake-mp4-bytes", string(data))

	// second download reuses the cached token
	_, _, err = c.DownloadRecording(context.Background(), srv.URL+"/rec/file.mp4", dir, "file.mp4")
	require.NoError(t, err)
	assert.Equal(t, 1, tokenCalls)
}

func TestDownloadRecordingHTTPError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path == "/oauth/token" {
			w.Write([]byte(`{"access_token":"tok","expires_in":3600}`))
			return
		}
		w.WriteHeader(http.StatusUnauthorized)
	}))
	defer srv.Close()

	c := NewClient(Config{}, nil)
	c.tokenURL = srv.URL + "/oauth/token"

	_, _, err := c.DownloadRecording(context.Background(), srv.URL+"/rec/x.mp4", t.TempDir(), "x.mp4")
	assert.ErrorContains(t, err, "HTTP 401")
}

func TestCleanupMissingFileIsSilent(t *testing.T) {
	c := NewClient(Config{}, nil)
	c.Cleanup(filepath.Join(t.TempDir(), "nope.mp4"))
	c.Cleanup("")
}
