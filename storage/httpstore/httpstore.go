// Package httpstore stores room payloads on an HTTP object store that serves
// GET and PUT on {base}/rooms/{roomId}.
package httpstore

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"net/http"
	"net/url"

	"github.com/hashicorp/go-cleanhttp"
	"github.com/hashicorp/go-hclog"
	"github.com/hashicorp/go-retryablehttp"

	"collabtext/storage"
)

// StatusError indicates an unexpected HTTP response status.
type StatusError struct {
	Method string
	Code   int
}

func (e *StatusError) Error() string {
	return fmt.Sprintf("%s: unexpected HTTP response code %d", e.Method, e.Code)
}

// Store is a storage.RoomStore backed by an HTTP endpoint.
type Store struct {
	base   *url.URL
	client *retryablehttp.Client
	logger hclog.Logger
}

var _ storage.RoomStore = (*Store)(nil)

// New returns a store for the endpoint at baseURL. retryMax bounds the
// number of retries of a failed request.
func New(baseURL string, retryMax int, logger hclog.Logger) (*Store, error) {
	base, err := url.Parse(baseURL)
	if err != nil {
		return nil, fmt.Errorf("parsing remote storage URL: %w", err)
	}
	if base.Scheme != "http" && base.Scheme != "https" {
		return nil, fmt.Errorf("remote storage URL %q must be http or https", baseURL)
	}
	if logger == nil {
		logger = hclog.NewNullLogger()
	}
	logger = logger.Named("httpstore")

	client := retryablehttp.NewClient()
	client.HTTPClient = cleanhttp.DefaultPooledClient()
	client.RetryMax = retryMax
	client.Logger = logger

	return &Store{base: base, client: client, logger: logger}, nil
}

func (s *Store) roomURL(roomID string) string {
	return s.base.JoinPath("rooms", roomID).String()
}

// GetRoom implements storage.RoomStore. 204 and 404 responses mean the room
// has no content yet.
func (s *Store) GetRoom(ctx context.Context, roomID string) ([]byte, error) {
	resp, err := s.do(ctx, http.MethodGet, s.roomURL(roomID), nil)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	switch resp.StatusCode {
	case http.StatusOK:
	case http.StatusNoContent, http.StatusNotFound:
		return nil, nil
	default:
		s.logger.Debug("GET room", "room", roomID, "status", resp.StatusCode, "body", bodyForLog(resp))
		return nil, &StatusError{Method: http.MethodGet, Code: resp.StatusCode}
	}

	buf := bytes.NewBuffer(nil)
	if _, err := io.Copy(buf, resp.Body); err != nil {
		return nil, fmt.Errorf("reading room %q: %w", roomID, err)
	}
	return buf.Bytes(), nil
}

// PutRoom implements storage.RoomStore.
func (s *Store) PutRoom(ctx context.Context, roomID string, payload []byte) error {
	resp, err := s.do(ctx, http.MethodPut, s.roomURL(roomID), payload)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	switch resp.StatusCode {
	case http.StatusOK, http.StatusCreated, http.StatusNoContent:
		return nil
	default:
		s.logger.Debug("PUT room", "room", roomID, "status", resp.StatusCode, "body", bodyForLog(resp))
		return &StatusError{Method: http.MethodPut, Code: resp.StatusCode}
	}
}

func (s *Store) do(ctx context.Context, method, target string, body []byte) (*http.Response, error) {
	var rawBody interface{}
	if body != nil {
		rawBody = body
	}
	req, err := retryablehttp.NewRequestWithContext(ctx, method, target, rawBody)
	if err != nil {
		return nil, fmt.Errorf("failed to make %s request: %w", method, err)
	}
	if body != nil {
		req.Header.Set("Content-Type", "application/octet-stream")
	}

	resp, err := s.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("%s %s: %w", method, target, err)
	}
	return resp, nil
}

func bodyForLog(resp *http.Response) string {
	b, err := io.ReadAll(io.LimitReader(resp.Body, 512))
	if err != nil {
		return ""
	}
	return string(b)
}
