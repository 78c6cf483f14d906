package backend

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog/log"

	"nexchain/internal/application/port"
)

var (
	// ErrUnsuccessful is returned when the backend answers with success=false.
	ErrUnsuccessful = errors.New("backend request unsuccessful")
	// ErrTwoFactorRequired is returned when an order needs a 2FA code.
	ErrTwoFactorRequired = port.ErrTwoFactorRequired
)

const defaultTimeout = 10 * time.Second

// Client talks to the trading platform REST API.
type Client struct {
	baseURL    string
	token      string
	httpClient *http.Client
}

func NewClient(baseURL, token string, timeout time.Duration) *Client {
	if timeout <= 0 {
		timeout = defaultTimeout
	}
	return &Client{
		baseURL: strings.TrimRight(strings.TrimSpace(baseURL), "/"),
		token:   strings.TrimSpace(token),
		httpClient: &http.Client{
			Timeout: timeout,
		},
	}
}

// envelope is the common response wrapper.
type envelope struct {
	Success     *bool  `json:"success"`
	Message     string `json:"message"`
	Error       string `json:"error"`
	Requires2FA bool   `json:"requires_2fa"`
}

func (e envelope) text() string {
	if e.Message != "" {
		return e.Message
	}
	return e.Error
}

// APIError carries the backend message of a failed call. It unwraps to
// ErrUnsuccessful or ErrTwoFactorRequired.
type APIError struct {
	Method  string
	Path    string
	Status  int
	Message string
	err     error
}

func (e *APIError) Error() string {
	if e.Message == "" {
		return fmt.Sprintf("%s %s: http %d: %v", e.Method, e.Path, e.Status, e.err)
	}
	return fmt.Sprintf("%s %s: http %d: %s", e.Method, e.Path, e.Status, e.Message)
}

func (e *APIError) Unwrap() error { return e.err }

// do sends one request and decodes the body into out. A JSON body with
// success=false or a non-2xx status is an APIError.
func (c *Client) do(ctx context.Context, method, path string, in, out any) error {
	var body io.Reader
	if in != nil {
		b, err := json.Marshal(in)
		if err != nil {
			return fmt.Errorf("encode %s %s: %w", method, path, err)
		}
		body = bytes.NewReader(b)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, body)
	if err != nil {
		return err
	}
	req.Header.Set("Accept", "application/json")
	if in != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if method != http.MethodGet {
		req.Header.Set("X-Request-ID", uuid.NewString())
	}
	if c.token != "" {
		req.Header.Set("Authorization", "Bearer "+c.token)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("%s %s: %w", method, path, err)
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(resp.Body)
	if err != nil {
		return fmt.Errorf("read %s %s: %w", method, path, err)
	}

	var env envelope
	_ = json.Unmarshal(raw, &env)

	if resp.StatusCode < 200 || resp.StatusCode >= 300 || (env.Success != nil && !*env.Success) {
		apiErr := &APIError{Method: method, Path: path, Status: resp.StatusCode, Message: env.text(), err: ErrUnsuccessful}
		if env.Requires2FA {
			apiErr.err = ErrTwoFactorRequired
		}
		if apiErr.Message == "" && env.Success == nil {
			apiErr.Message = strings.TrimSpace(string(raw))
		}
		log.Debug().Str("method", method).Str("path", path).Int("status", resp.StatusCode).Msg("backend call failed")
		return apiErr
	}

	if out == nil || len(bytes.TrimSpace(raw)) == 0 {
		return nil
	}
	dec := json.NewDecoder(bytes.NewReader(raw))
	dec.UseNumber()
	if err := dec.Decode(out); err != nil {
		return fmt.Errorf("decode %s %s: %w", method, path, err)
	}
	return nil
}
