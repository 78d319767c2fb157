package client

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"
)

const (
	maxStatusBody    = 64 << 10
	maxDownloadBody  = 256 << 20
	errorBodySnippet = 400
)

// ErrNotJSON is returned when the status endpoint answers with something
// other than JSON, typically a proxy or login page.
var ErrNotJSON = errors.New("non-JSON response from status endpoint")

// ErrTooLarge is returned when a response body exceeds the limit for its
// endpoint. The body is discarded rather than truncated.
var ErrTooLarge = errors.New("response body exceeds limit")

// HTTPError is a non-2xx response from the server.
type HTTPError struct {
	Op         string
	StatusCode int
	Body       string
}

func (e *HTTPError) Error() string {
	if e.Body == "" {
		return fmt.Sprintf("%s: http %d", e.Op, e.StatusCode)
	}
	return fmt.Sprintf("%s: http %d: %s", e.Op, e.StatusCode, e.Body)
}

// API talks to the device endpoints with Basic credentials. Every call is
// bounded by its own timeout regardless of the caller's context.
type API struct {
	base     string
	username string
	password string
	http     *http.Client

	requestTimeout   time.Duration
	downloadTimeout  time.Duration
	telemetryTimeout time.Duration

	maxDownload int64
}

// NewAPI builds a client for cfg. hc may be nil.
func NewAPI(cfg Config, hc *http.Client) *API {
	if hc == nil {
		hc = &http.Client{}
	}
	return &API{
		base:             strings.TrimRight(cfg.Server, "/"),
		username:         cfg.Username,
		password:         cfg.Password,
		http:             hc,
		requestTimeout:   cfg.RequestTimeout.Std(),
		downloadTimeout:  cfg.DownloadTimeout.Std(),
		telemetryTimeout: cfg.TelemetryTimeout.Std(),
		maxDownload:      maxDownloadBody,
	}
}

func (a *API) newRequest(ctx context.Context, method, path string, query url.Values, body io.Reader) (*http.Request, error) {
	target := a.base + path
	if len(query) > 0 {
		target += "?" + query.Encode()
	}
	req, err := http.NewRequestWithContext(ctx, method, target, body)
	if err != nil {
		return nil, err
	}
	req.SetBasicAuth(a.username, a.password)
	return req, nil
}

func (a *API) do(req *http.Request, op string, limit int64) ([]byte, *http.Response, error) {
	resp, err := a.http.Do(req)
	if err != nil {
		return nil, nil, fmt.Errorf("%s: %w", op, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		snippet, _ := io.ReadAll(io.LimitReader(resp.Body, errorBodySnippet))
		return nil, resp, &HTTPError{Op: op, StatusCode: resp.StatusCode, Body: strings.TrimSpace(string(snippet))}
	}

	if resp.ContentLength > limit {
		return nil, resp, fmt.Errorf("%s: %w: content-length %d > %d", op, ErrTooLarge, resp.ContentLength, limit)
	}
	body, err := io.ReadAll(io.LimitReader(resp.Body, limit+1))
	if err != nil {
		return nil, resp, fmt.Errorf("%s: read body: %w", op, err)
	}
	if int64(len(body)) > limit {
		return nil, resp, fmt.Errorf("%s: %w: more than %d bytes", op, ErrTooLarge, limit)
	}
	return body, resp, nil
}

// Status polls for the newest command after cursor.
func (a *API) Status(ctx context.Context, cursor *int64) (Status, error) {
	ctx, cancel := context.WithTimeout(ctx, a.requestTimeout)
	defer cancel()

	q := url.Values{}
	if cursor != nil {
		q.Set("last_id", strconv.FormatInt(*cursor, 10))
	}
	req, err := a.newRequest(ctx, http.MethodGet, "/api/status", q, nil)
	if err != nil {
		return nil, err
	}
	req.Header.Set("Accept", "application/json")

	body, resp, err := a.do(req, "status", maxStatusBody)
	if err != nil {
		return nil, err
	}
	if ct := strings.ToLower(resp.Header.Get("Content-Type")); !strings.Contains(ct, "application/json") {
		return nil, fmt.Errorf("%w: content-type %q", ErrNotJSON, ct)
	}
	return DecodeStatus(body)
}

// Download fetches the audio payload of a PLAY command.
func (a *API) Download(ctx context.Context, commandID int64) ([]byte, error) {
	ctx, cancel := context.WithTimeout(ctx, a.downloadTimeout)
	defer cancel()

	q := url.Values{"command_id": {strconv.FormatInt(commandID, 10)}}
	req, err := a.newRequest(ctx, http.MethodGet, "/api/file", q, nil)
	if err != nil {
		return nil, err
	}
	body, _, err := a.do(req, "download", a.maxDownload)
	return body, err
}

// PostLog appends one telemetry record.
func (a *API) PostLog(ctx context.Context, level, message string) error {
	ctx, cancel := context.WithTimeout(ctx, a.telemetryTimeout)
	defer cancel()

	form := url.Values{"level": {level}, "message": {message}}
	req, err := a.newRequest(ctx, http.MethodPost, "/api/client-log", nil, strings.NewReader(form.Encode()))
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	_, _, err = a.do(req, "client-log", maxStatusBody)
	return err
}
