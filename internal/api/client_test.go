package api

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"

	fiber "github.com/gofiber/fiber/v2"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/NicoRio42/mapant-fr-worker/internal/config"
)

func newTestClient(serverURL string) *Client {
	return NewClient(config.Config{
		WorkerID: "worker-42",
		Token:    "s3cr3t",
		BaseURL:  serverURL,
	})
}

func TestClient_NextJob(t *testing.T) {
	t.Run("decodes a lidar job", func(t *testing.T) {
		var gotMethod, gotPath, gotAuth, gotOrigin string

		server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			gotMethod = r.Method
			gotPath = r.URL.Path
			gotAuth = r.Header.Get("Authorization")
			gotOrigin = r.Header.Get("Origin")

			w.Header().Set("Content-Type", "application/json")
			_, _ = w.Write([]byte(`{"type":"Lidar","data":{"tile_id":"601000_6520000","tile_url":"https://storage.example.com/601000_6520000.laz"}}`))
		}))
		defer server.Close()

		client := newTestClient(server.URL)

		job, err := client.NextJob(context.Background())
		require.NoError(t, err)

		assert.Equal(t, http.MethodPost, gotMethod)
		assert.Equal(t, "/api/map-generation/next-job", gotPath)
		assert.Equal(t, "Bearer worker-42.s3cr3t", gotAuth)
		assert.Equal(t, server.URL, gotOrigin)

		require.NotNil(t, job.Lidar)
		assert.Equal(t, "601000_6520000", job.Lidar.TileID)
	})

	t.Run("decodes an empty queue answer", func(t *testing.T) {
		server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
			w.Header().Set("Content-Type", "application/json")
			_, _ = w.Write([]byte(`{"type":"NoJobLeft"}`))
		}))
		defer server.Close()

		job, err := newTestClient(server.URL).NextJob(context.Background())
		require.NoError(t, err)
		assert.Equal(t, "NoJobLeft", job.Type.String())
	})

	t.Run("returns a fiber error on server failure", func(t *testing.T) {
		server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
			w.WriteHeader(http.StatusUnauthorized)
			_, _ = w.Write([]byte("invalid token"))
		}))
		defer server.Close()

		_, err := newTestClient(server.URL).NextJob(context.Background())
		require.Error(t, err)

		var fiberErr *fiber.Error
		require.ErrorAs(t, err, &fiberErr)
		assert.Equal(t, http.StatusUnauthorized, fiberErr.Code)
		assert.Contains(t, fiberErr.Message, "invalid token")
	})

	t.Run("rejects an unknown job type", func(t *testing.T) {
		server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
			_, _ = w.Write([]byte(`{"type":"Shade","data":{}}`))
		}))
		defer server.Close()

		_, err := newTestClient(server.URL).NextJob(context.Background())
		assert.Error(t, err)
	})

	t.Run("reports transport failures", func(t *testing.T) {
		server := httptest.NewServer(http.HandlerFunc(func(_ http.ResponseWriter, _ *http.Request) {}))
		serverURL := server.URL
		server.Close()

		_, err := newTestClient(serverURL).NextJob(context.Background())
		assert.Error(t, err)
	})
}
