// Package backend talks to the detection pipeline over HTTP: video upload,
// the halftime toggle and the server-sent detection stream.
package backend

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"
	"net/url"
	"strings"
	"time"

	"match-overlay/internal/overlay"
)

// StatusError is returned when the backend answers with a non-2xx status.
type StatusError struct {
	Op   string
	Code int
}

func (e *StatusError) Error() string {
	return fmt.Sprintf("%s failed (%d)", e.Op, e.Code)
}

// Client is an HTTP client for the detection backend.
type Client struct {
	baseURL string
	http    *http.Client
	stream  *http.Client
}

// NewClient returns a client for the backend at baseURL. timeout bounds
// upload and toggle requests; the detection stream has no timeout.
func NewClient(baseURL string, timeout time.Duration) *Client {
	return &Client{
		baseURL: strings.TrimRight(baseURL, "/"),
		http:    &http.Client{Timeout: timeout},
		stream:  &http.Client{},
	}
}

// Upload implements overlay.Uploader. It posts the file and direction as a
// multipart form and returns the name the backend stored the video under.
func (c *Client) Upload(ctx context.Context, u overlay.Upload) (string, error) {
	pr, pw := io.Pipe()
	mw := multipart.NewWriter(pw)

	go func() {
		err := writeUploadForm(mw, u)
		if err == nil {
			err = mw.Close()
		}
		pw.CloseWithError(err)
	}()

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/upload", pr)
	if err != nil {
		pr.Close()
		return "", fmt.Errorf("build upload request: %w", err)
	}
	req.Header.Set("Content-Type", mw.FormDataContentType())

	resp, err := c.http.Do(req)
	if err != nil {
		return "", fmt.Errorf("upload: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return "", &StatusError{Op: "Upload", Code: resp.StatusCode}
	}

	var body struct {
		Filename string `json:"filename"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&body); err != nil {
		return "", fmt.Errorf("decode upload response: %w", err)
	}
	if body.Filename == "" {
		return "", fmt.Errorf("upload response has no filename")
	}
	return body.Filename, nil
}

func writeUploadForm(mw *multipart.Writer, u overlay.Upload) error {
	part, err := mw.CreateFormFile("file", u.Name)
	if err != nil {
		return err
	}
	if _, err := io.Copy(part, u.File); err != nil {
		return err
	}
	return mw.WriteField("direction", string(u.Direction))
}

// MediaURL implements overlay.Uploader.
func (c *Client) MediaURL(filename string) string {
	return c.baseURL + "/uploads/" + url.PathEscape(filename)
}

// ToggleHalftime implements overlay.HalftimeToggler.
func (c *Client) ToggleHalftime(ctx context.Context) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/halftime", nil)
	if err != nil {
		return fmt.Errorf("build halftime request: %w", err)
	}

	resp, err := c.http.Do(req)
	if err != nil {
		return fmt.Errorf("halftime: %w", err)
	}
	defer resp.Body.Close()
	io.Copy(io.Discard, resp.Body)

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return &StatusError{Op: "Halftime toggle", Code: resp.StatusCode}
	}
	return nil
}

// Dial implements overlay.Dialer by opening GET /stream.
func (c *Client) Dial(ctx context.Context) (overlay.EventSource, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+"/stream", nil)
	if err != nil {
		return nil, fmt.Errorf("build stream request: %w", err)
	}
	req.Header.Set("Accept", "text/event-stream")
	req.Header.Set("Cache-Control", "no-cache")

	resp, err := c.stream.Do(req)
	if err != nil {
		return nil, err
	}
	if resp.StatusCode != http.StatusOK {
		resp.Body.Close()
		return nil, &StatusError{Op: "Stream", Code: resp.StatusCode}
	}
	return NewEventReader(resp.Body), nil
}
