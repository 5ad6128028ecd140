package client

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"time"

	"github.com/pasturelabs/herdsync/internal/common"
	"github.com/sethvargo/go-retry"
)

// HTTPClient implements Client over the server's JSON API. Transient
// failures (network errors, 5xx) are retried with a fibonacci backoff;
// everything else surfaces immediately.
type HTTPClient struct {
	baseURL string
	http    *http.Client
	token   string
}

func NewHTTPClient(baseURL string) *HTTPClient {
	return &HTTPClient{
		baseURL: baseURL,
		http:    &http.Client{Timeout: 30 * time.Second},
	}
}

func (c *HTTPClient) backoff() retry.Backoff {
	b := retry.NewFibonacci(200 * time.Millisecond)
	return retry.WithMaxRetries(3, b)
}

type loginRequest struct {
	Username string `json:"username"`
	Password string `json:"password"`
}

type loginResponse struct {
	Token string `json:"token"`
}

func (c *HTTPClient) Login(ctx context.Context, username, password string) error {
	var resp loginResponse
	err := c.do(ctx, http.MethodPost, "/api/v1/login",
		loginRequest{Username: username, Password: password}, &resp)
	if err != nil {
		return err
	}
	c.token = resp.Token
	return nil
}

func (c *HTTPClient) Ping(ctx context.Context) error {
	return c.do(ctx, http.MethodGet, "/api/v1/ping", nil, nil)
}

type upsertResponse struct {
	RemoteID int64 `json:"remote_id"`
}

func (c *HTTPClient) Upsert(ctx context.Context, entity string, rec WireRecord) (int64, error) {
	var resp upsertResponse
	path := fmt.Sprintf("/api/v1/%s/upsert", url.PathEscape(entity))
	if err := c.do(ctx, http.MethodPost, path, rec, &resp); err != nil {
		return 0, err
	}
	return resp.RemoteID, nil
}

func (c *HTTPClient) Delete(ctx context.Context, entity string, remoteID int64) error {
	path := fmt.Sprintf("/api/v1/%s/%d", url.PathEscape(entity), remoteID)
	return c.do(ctx, http.MethodDelete, path, nil, nil)
}

func (c *HTTPClient) Changes(ctx context.Context, entity string, since time.Time) ([]WireRecord, error) {
	path := fmt.Sprintf("/api/v1/%s/changes?since=%s",
		url.PathEscape(entity), url.QueryEscape(since.UTC().Format(time.RFC3339Nano)))
	var records []WireRecord
	if err := c.do(ctx, http.MethodGet, path, nil, &records); err != nil {
		return nil, err
	}
	return records, nil
}

func (c *HTTPClient) Close() error {
	c.http.CloseIdleConnections()
	return nil
}

// do runs one request with retries, decoding a JSON response into out when
// out is non-nil.
func (c *HTTPClient) do(ctx context.Context, method, path string, in, out any) error {
	var body []byte
	if in != nil {
		var err error
		if body, err = json.Marshal(in); err != nil {
			return fmt.Errorf("failed to encode request: %w", err)
		}
	}

	op := method + " " + path
	err := retry.Do(ctx, c.backoff(), func(ctx context.Context) error {
		req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, bytes.NewReader(body))
		if err != nil {
			return err
		}
		req.Header.Set("Content-Type", "application/json")
		if c.token != "" {
			req.Header.Set("Authorization", "Bearer "+c.token)
		}

		resp, err := c.http.Do(req)
		if err != nil {
			return retry.RetryableError(err)
		}
		defer resp.Body.Close()

		switch {
		case resp.StatusCode >= 500:
			return retry.RetryableError(fmt.Errorf("server error: %s", resp.Status))
		case resp.StatusCode == http.StatusConflict:
			return &common.ValidationError{Entity: path, Reason: readErrorBody(resp.Body)}
		case resp.StatusCode == http.StatusNotFound:
			return common.ErrNotFound
		case resp.StatusCode == http.StatusUnauthorized:
			return common.ErrUnauthorized
		case resp.StatusCode >= 400:
			return fmt.Errorf("remote rejected request: %s: %s", resp.Status, readErrorBody(resp.Body))
		}

		if out == nil {
			return nil
		}
		if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
			return fmt.Errorf("failed to decode response: %w", err)
		}
		return nil
	})
	if err == nil {
		return nil
	}
	// Validation and not-found outcomes are definitive answers from the
	// remote, not transport failures.
	var ve *common.ValidationError
	if errors.As(err, &ve) || errors.Is(err, common.ErrNotFound) || errors.Is(err, common.ErrUnauthorized) {
		return err
	}
	return &common.TransportError{Op: op, Err: err}
}

type errorBody struct {
	Error string `json:"error"`
}

func readErrorBody(r io.Reader) string {
	var eb errorBody
	if err := json.NewDecoder(r).Decode(&eb); err != nil || eb.Error == "" {
		return "request failed"
	}
	return eb.Error
}
