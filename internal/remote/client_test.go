package remote

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/bytedance/sonic"
	"github.com/hybridkit/ota-agent/internal/config"
	"github.com/hybridkit/ota-agent/internal/model"
	"github.com/hybridkit/ota-agent/internal/pkg/errs"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

func testConf() *config.Config {
	return &config.Config{
		Update: config.UpdateConfig{
			RequestTimeout:  5 * time.Second,
			VersionCacheTTL: time.Minute,
		},
	}
}

func TestVersionToken(t *testing.T) {

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		require.Equal(t, "/moduleservices/moduleversioninfo", r.URL.Path)

		buf, err := sonic.Marshal(model.VersionInfoResponse{VersionToken: "v7"})
		require.NoError(t, err)
		_, _ = w.Write(buf)
	}))
	defer srv.Close()

	c := NewClient(testConf(), zap.NewNop())

	token, err := c.VersionToken(context.Background(), srv.URL)
	require.NoError(t, err)
	require.Equal(t, "v7", token)
}

func TestVersionTokenServerError(t *testing.T) {

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusInternalServerError)
	}))
	defer srv.Close()

	c := NewClient(testConf(), zap.NewNop())

	_, err := c.VersionToken(context.Background(), srv.URL)
	require.ErrorIs(t, err, errs.ErrVersionCheckFailed)
}

func TestManifest(t *testing.T) {

	want := model.Manifest{
		VersionToken: "v7",
		URLVersions:  map[string]string{"index.html": "h1"},
		URLMappings:  map[string]string{"home": "index.html"},
	}

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		require.Equal(t, "/moduleservices/moduleinfo", r.URL.Path)

		buf, err := sonic.Marshal(model.ManifestResponse{Manifest: want})
		require.NoError(t, err)
		_, _ = w.Write(buf)
	}))
	defer srv.Close()

	c := NewClient(testConf(), zap.NewNop())

	m, err := c.Manifest(context.Background(), srv.URL)
	require.NoError(t, err)
	require.Equal(t, &want, m)
}

func TestManifestDecodeFailure(t *testing.T) {

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte("{not json"))
	}))
	defer srv.Close()

	c := NewClient(testConf(), zap.NewNop())

	_, err := c.Manifest(context.Background(), srv.URL)
	require.ErrorIs(t, err, errs.ErrManifestFetchFailed)
}

func TestTrimBaseURL(t *testing.T) {
	require.Equal(t, "https://apps.example.com", TrimBaseURL("https://apps.example.com/"))
	require.Equal(t, "https://apps.example.com", TrimBaseURL("https://apps.example.com"))
}
