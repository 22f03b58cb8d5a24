package transfer

import (
	"context"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"testing"

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

func TestClient_Download(t *testing.T) {
	t.Run("writes the response body to disk", func(t *testing.T) {
		var gotAuth, gotOrigin string
		server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			gotAuth = r.Header.Get("Authorization")
			gotOrigin = r.Header.Get("Origin")
			_, _ = w.Write([]byte("point cloud bytes"))
		}))
		defer server.Close()

		dest := filepath.Join(t.TempDir(), "601000_6520000.laz")
		err := newTestClient(server.URL).Download(context.Background(), server.URL+"/601000_6520000.laz", dest)
		require.NoError(t, err)

		content, err := os.ReadFile(dest)
		require.NoError(t, err)
		assert.Equal(t, "point cloud bytes", string(content))

		// Public downloads must not leak worker credentials.
		assert.Empty(t, gotAuth)
		assert.Empty(t, gotOrigin)
	})

	t.Run("authenticated download sends credentials", func(t *testing.T) {
		var gotAuth, gotOrigin string
		server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			gotAuth = r.Header.Get("Authorization")
			gotOrigin = r.Header.Get("Origin")
			_, _ = w.Write([]byte("archive bytes"))
		}))
		defer server.Close()

		dest := filepath.Join(t.TempDir(), "601000_6520000.tar.xz")
		err := newTestClient(server.URL).DownloadAuthenticated(context.Background(), server.URL+"/archive", dest)
		require.NoError(t, err)

		assert.Equal(t, "Bearer worker-42.s3cr3t", gotAuth)
		assert.Equal(t, server.URL, gotOrigin)
	})

	t.Run("creates intermediate directories", func(t *testing.T) {
		server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
			_, _ = w.Write([]byte("tile"))
		}))
		defer server.Close()

		dest := filepath.Join(t.TempDir(), "tiles", "occitanie", "12", "2105", "1713.png")
		err := newTestClient(server.URL).Download(context.Background(), server.URL+"/tile", dest)
		require.NoError(t, err)
		assert.FileExists(t, dest)
	})

	t.Run("missing resource maps to ErrNotFound", func(t *testing.T) {
		server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
			w.WriteHeader(http.StatusNotFound)
		}))
		defer server.Close()

		dest := filepath.Join(t.TempDir(), "missing.png")
		err := newTestClient(server.URL).Download(context.Background(), server.URL+"/missing", dest)
		require.Error(t, err)
		assert.ErrorIs(t, err, ErrNotFound)
		assert.NoFileExists(t, dest)
	})

	t.Run("server failure carries status and body", func(t *testing.T) {
		server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
			w.WriteHeader(http.StatusInternalServerError)
			_, _ = w.Write([]byte("database on fire"))
		}))
		defer server.Close()

		err := newTestClient(server.URL).Download(context.Background(), server.URL+"/tile", filepath.Join(t.TempDir(), "tile.png"))
		require.Error(t, err)

		var statusErr *StatusError
		require.ErrorAs(t, err, &statusErr)
		assert.Equal(t, http.StatusInternalServerError, statusErr.StatusCode)
		assert.Equal(t, "database on fire", statusErr.Body)
		assert.NotErrorIs(t, err, ErrNotFound)
	})
}

func TestClient_UploadFiles(t *testing.T) {
	writeFile := func(t *testing.T, dir, name, content string) string {
		t.Helper()
		path := filepath.Join(dir, name)
		require.NoError(t, os.WriteFile(path, []byte(content), 0o644))
		return path
	}

	t.Run("sends every part with its own content type", func(t *testing.T) {
		type receivedPart struct {
			fileName    string
			contentType string
			content     string
		}
		received := map[string]receivedPart{}
		var gotAuth, gotOrigin string

		server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			gotAuth = r.Header.Get("Authorization")
			gotOrigin = r.Header.Get("Origin")

			require.NoError(t, r.ParseMultipartForm(32<<20))
			for field, headers := range r.MultipartForm.File {
				header := headers[0]
				file, err := header.Open()
				require.NoError(t, err)
				content, err := io.ReadAll(file)
				require.NoError(t, err)
				_ = file.Close()

				received[field] = receivedPart{
					fileName:    header.Filename,
					contentType: header.Header.Get("Content-Type"),
					content:     string(content),
				}
			}
			w.WriteHeader(http.StatusOK)
		}))
		defer server.Close()

		dir := t.TempDir()
		parts := []FilePart{
			{
				Field:       "rasters",
				FileName:    "rasters_601000_6520000.tar.xz",
				Path:        writeFile(t, dir, "rasters.tar.xz", "raster archive"),
				ContentType: "application/x-xz",
			},
			{
				Field:       "full-map",
				FileName:    "full-map.png",
				Path:        writeFile(t, dir, "full-map.png", "png bytes"),
				ContentType: "image/png",
			},
		}

		err := newTestClient(server.URL).UploadFiles(context.Background(), server.URL+"/render-steps/601000_6520000", parts)
		require.NoError(t, err)

		assert.Equal(t, "Bearer worker-42.s3cr3t", gotAuth)
		assert.Equal(t, server.URL, gotOrigin)

		require.Contains(t, received, "rasters")
		assert.Equal(t, "rasters_601000_6520000.tar.xz", received["rasters"].fileName)
		assert.Equal(t, "application/x-xz", received["rasters"].contentType)
		assert.Equal(t, "raster archive", received["rasters"].content)

		require.Contains(t, received, "full-map")
		assert.Equal(t, "image/png", received["full-map"].contentType)
		assert.Equal(t, "png bytes", received["full-map"].content)
	})

	t.Run("single file upload", func(t *testing.T) {
		var gotField string
		server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			require.NoError(t, r.ParseMultipartForm(32<<20))
			for field := range r.MultipartForm.File {
				gotField = field
			}
			w.WriteHeader(http.StatusCreated)
		}))
		defer server.Close()

		part := FilePart{
			Field:       "file",
			FileName:    "1713.png",
			Path:        writeFile(t, t.TempDir(), "1713.png", "tile"),
			ContentType: "image/png",
		}
		err := newTestClient(server.URL).UploadFile(context.Background(), server.URL+"/tile", part)
		require.NoError(t, err)
		assert.Equal(t, "file", gotField)
	})

	t.Run("rejected upload returns a status error", func(t *testing.T) {
		server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
			w.WriteHeader(http.StatusForbidden)
			_, _ = w.Write([]byte("unknown worker"))
		}))
		defer server.Close()

		part := FilePart{
			Field:       "file",
			FileName:    "tile.png",
			Path:        writeFile(t, t.TempDir(), "tile.png", "tile"),
			ContentType: "image/png",
		}
		err := newTestClient(server.URL).UploadFile(context.Background(), server.URL+"/tile", part)

		var statusErr *StatusError
		require.ErrorAs(t, err, &statusErr)
		assert.Equal(t, http.StatusForbidden, statusErr.StatusCode)
		assert.Equal(t, "unknown worker", statusErr.Body)
	})

	t.Run("missing local file fails before any request", func(t *testing.T) {
		requests := 0
		server := httptest.NewServer(http.HandlerFunc(func(_ http.ResponseWriter, _ *http.Request) {
			requests++
		}))
		defer server.Close()

		part := FilePart{Field: "file", FileName: "gone.png", Path: filepath.Join(t.TempDir(), "gone.png"), ContentType: "image/png"}
		err := newTestClient(server.URL).UploadFile(context.Background(), server.URL+"/tile", part)
		require.Error(t, err)
		assert.Equal(t, 0, requests)
	})
}

func TestStatusError_Error(t *testing.T) {
	err := &StatusError{URL: "https://mapant.fr/api", StatusCode: 502, Body: "bad gateway"}
	assert.Contains(t, err.Error(), "502")
	assert.Contains(t, err.Error(), "https://mapant.fr/api")
	assert.Contains(t, err.Error(), "bad gateway")

	assert.True(t, errors.Is(&StatusError{StatusCode: 404}, ErrNotFound))
	assert.False(t, errors.Is(&StatusError{StatusCode: 500}, ErrNotFound))
}
