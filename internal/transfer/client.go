// Package transfer moves tile artifacts between the worker's disk and the
// mapant.fr API: plain file downloads and multipart form uploads.
package transfer

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"
	"net/textproto"
	"os"
	"path/filepath"

	"github.com/NicoRio42/mapant-fr-worker/internal/config"
)

// ErrNotFound marks downloads whose remote resource does not exist. Callers
// match it with errors.Is to tell a missing tile from a real failure.
var ErrNotFound = errors.New("resource not found")

// StatusError reports a non-success HTTP status along with the response body
// sent by the server.
type StatusError struct {
	URL        string
	StatusCode int
	Body       string
}

// Error implements the error interface for StatusError
func (e *StatusError) Error() string {
	return fmt.Sprintf("request to %s failed with status %d: %s", e.URL, e.StatusCode, e.Body)
}

// Is reports 404 status errors as ErrNotFound.
func (e *StatusError) Is(target error) bool {
	return target == ErrNotFound && e.StatusCode == http.StatusNotFound
}

// FilePart describes one file of a multipart upload.
type FilePart struct {
	// Field is the form part name.
	Field string
	// FileName is the name announced in the part header, not the local one.
	FileName string
	// Path is the local file to send.
	Path string
	// ContentType is the MIME type announced for the part.
	ContentType string
}

// Client performs the file transfers of the worker. It is safe for
// concurrent use by multiple workers.
type Client struct {
	httpClient    *http.Client
	authorization string
	origin        string
}

// NewClient creates a transfer client from the worker configuration.
func NewClient(cfg config.Config) *Client {
	// Tile archives are large and job deadlines do not exist, so the client
	// sets no timeout. Cancellation comes from the request context.
	return &Client{
		httpClient:    &http.Client{},
		authorization: cfg.Authorization(),
		origin:        cfg.BaseURL,
	}
}

// Download fetches url into destPath without credentials. It is used for
// public resources such as the LiDAR point clouds hosted by IGN.
func (c *Client) Download(ctx context.Context, url, destPath string) error {
	return c.download(ctx, url, destPath, false)
}

// DownloadAuthenticated fetches url into destPath with worker credentials.
func (c *Client) DownloadAuthenticated(ctx context.Context, url, destPath string) error {
	return c.download(ctx, url, destPath, true)
}

func (c *Client) download(ctx context.Context, url, destPath string, authenticated bool) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return fmt.Errorf("failed to build request for %s: %w", url, err)
	}
	if authenticated {
		c.setAuthHeaders(req)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("failed to download %s: %w", url, err)
	}
	defer func() { _ = resp.Body.Close() }()

	if err := checkStatus(resp, url); err != nil {
		return err
	}

	if err := os.MkdirAll(filepath.Dir(destPath), 0o750); err != nil {
		return fmt.Errorf("failed to create directory for %s: %w", destPath, err)
	}

	file, err := os.Create(destPath)
	if err != nil {
		return fmt.Errorf("failed to create %s: %w", destPath, err)
	}
	if _, err := io.Copy(file, resp.Body); err != nil {
		_ = file.Close()
		// Drop the partial file so a retry starts clean.
		_ = os.Remove(destPath)
		return fmt.Errorf("failed to write %s: %w", destPath, err)
	}
	if err := file.Close(); err != nil {
		return fmt.Errorf("failed to close %s: %w", destPath, err)
	}

	return nil
}

// UploadFile posts a single file as a multipart form.
func (c *Client) UploadFile(ctx context.Context, url string, part FilePart) error {
	return c.UploadFiles(ctx, url, []FilePart{part})
}

// UploadFiles posts several files as one multipart form. On a non-success
// status it returns a StatusError and leaves the retry policy to the caller.
func (c *Client) UploadFiles(ctx context.Context, url string, parts []FilePart) error {
	var body bytes.Buffer
	form := multipart.NewWriter(&body)
	for _, part := range parts {
		if err := writeFilePart(form, part); err != nil {
			return err
		}
	}
	if err := form.Close(); err != nil {
		return fmt.Errorf("failed to finalize multipart form: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, &body)
	if err != nil {
		return fmt.Errorf("failed to build request for %s: %w", url, err)
	}
	req.Header.Set("Content-Type", form.FormDataContentType())
	c.setAuthHeaders(req)

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("failed to upload to %s: %w", url, err)
	}
	defer func() { _ = resp.Body.Close() }()

	return checkStatus(resp, url)
}

func (c *Client) setAuthHeaders(req *http.Request) {
	req.Header.Set("Authorization", c.authorization)
	req.Header.Set("Origin", c.origin)
}

// checkStatus turns a non-success response into a StatusError carrying the
// response body.
func checkStatus(resp *http.Response, url string) error {
	if resp.StatusCode >= 200 && resp.StatusCode < 300 {
		return nil
	}

	body, _ := io.ReadAll(resp.Body)
	return &StatusError{
		URL:        url,
		StatusCode: resp.StatusCode,
		Body:       string(body),
	}
}

func writeFilePart(form *multipart.Writer, part FilePart) error {
	header := make(textproto.MIMEHeader)
	header.Set("Content-Disposition", fmt.Sprintf(`form-data; name=%q; filename=%q`, part.Field, part.FileName))
	header.Set("Content-Type", part.ContentType)

	dest, err := form.CreatePart(header)
	if err != nil {
		return fmt.Errorf("failed to create form part %s: %w", part.Field, err)
	}

	file, err := os.Open(part.Path)
	if err != nil {
		return fmt.Errorf("failed to open %s: %w", part.Path, err)
	}
	defer func() { _ = file.Close() }()

	if _, err := io.Copy(dest, file); err != nil {
		return fmt.Errorf("failed to read %s: %w", part.Path, err)
	}

	return nil
}
