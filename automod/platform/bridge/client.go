// HTTP/JSON client for a platform bridge sidecar, which holds the platform credentials and exposes platform operations as simple RPC methods.
//
// Queries are `GET {host}/bridge/{method}?{params}`; procedures are `POST {host}/bridge/{method}` with a JSON body. Non-200 responses carry a JSON body like `{"error": "NotFound", "message": "..."}`.
package bridge

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"strconv"
	"time"

	"github.com/modwarden/warden/automod/platform"
	"github.com/modwarden/warden/pkg/robusthttp"

	"github.com/carlmjohnson/versioninfo"
	"golang.org/x/time/rate"
)

type RequestType int

const (
	Query = RequestType(iota)
	Procedure
)

type Client struct {
	Host string
	// sent as a bearer token, if set
	Token string
	// used for queries. Defaults to a retrying client.
	QueryClient *http.Client
	// used for procedures. Must not retry: the platform has no idempotency keys, so a retried mutation could be applied twice.
	ProcedureClient *http.Client
	// shared across queries and procedures
	Limiter   *rate.Limiter
	UserAgent string
	Logger    *slog.Logger
}

var _ platform.Platform = (*Client)(nil)

type ClientConfig struct {
	Host  string
	Token string
	// requests per second; zero disables client-side limiting
	RateLimit float64
	Logger    *slog.Logger
}

func NewClient(config ClientConfig) *Client {
	logger := config.Logger
	if logger == nil {
		logger = slog.Default()
	}
	logger = logger.With("subsystem", "bridge")
	limiter := rate.NewLimiter(rate.Inf, 1)
	if config.RateLimit > 0 {
		limiter = rate.NewLimiter(rate.Limit(config.RateLimit), max(1, int(config.RateLimit)))
	}
	return &Client{
		Host:            config.Host,
		Token:           config.Token,
		QueryClient:     robusthttp.NewClient(robusthttp.WithLogger(logger)),
		ProcedureClient: robusthttp.NewClient(robusthttp.WithLogger(logger), robusthttp.WithMaxRetries(0)),
		Limiter:         limiter,
		UserAgent:       "warden/" + versioninfo.Short(),
		Logger:          logger,
	}
}

type BridgeError struct {
	ErrStr  string `json:"error"`
	Message string `json:"message"`
}

func (be *BridgeError) Error() string {
	return fmt.Sprintf("%s: %s", be.ErrStr, be.Message)
}

type Error struct {
	StatusCode int
	Wrapped    error
	// parsed from Retry-After, on 429
	RetryAfter time.Duration
}

func (e *Error) Error() string {
	if e.Wrapped == nil {
		return fmt.Sprintf("bridge error %d", e.StatusCode)
	}
	return fmt.Sprintf("bridge error %d: %s", e.StatusCode, e.Wrapped)
}

func (e *Error) Unwrap() error {
	return e.Wrapped
}

// Lets callers match "not found" with errors.Is(err, platform.ErrNotFound).
func (e *Error) Is(target error) bool {
	return target == platform.ErrNotFound && e.StatusCode == http.StatusNotFound
}

func (e *Error) IsThrottled() bool {
	return e.StatusCode == http.StatusTooManyRequests
}

func errorFromHTTPResponse(resp *http.Response, err error) error {
	r := &Error{
		StatusCode: resp.StatusCode,
		Wrapped:    err,
	}
	if n, err := strconv.Atoi(resp.Header.Get("Retry-After")); err == nil {
		r.RetryAfter = time.Duration(n) * time.Second
	}
	return r
}

func makeParams(p map[string]string) string {
	params := url.Values{}
	for k, v := range p {
		params.Add(k, v)
	}
	return params.Encode()
}

func (c *Client) Do(ctx context.Context, kind RequestType, method string, params map[string]string, bodyobj any, out any) error {
	var body io.Reader
	if bodyobj != nil {
		b, err := json.Marshal(bodyobj)
		if err != nil {
			return err
		}
		body = bytes.NewReader(b)
	}

	var m string
	var client *http.Client
	switch kind {
	case Query:
		m = http.MethodGet
		client = c.QueryClient
	case Procedure:
		m = http.MethodPost
		client = c.ProcedureClient
	default:
		return fmt.Errorf("unsupported request kind: %d", kind)
	}
	if client == nil {
		client = http.DefaultClient
	}

	uri := c.Host + "/bridge/" + method
	if len(params) > 0 {
		uri += "?" + makeParams(params)
	}

	req, err := http.NewRequestWithContext(ctx, m, uri, body)
	if err != nil {
		return err
	}
	if bodyobj != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if c.UserAgent != "" {
		req.Header.Set("User-Agent", c.UserAgent)
	}
	if c.Token != "" {
		req.Header.Set("Authorization", "Bearer "+c.Token)
	}

	if c.Limiter != nil {
		if err := c.Limiter.Wait(ctx); err != nil {
			return err
		}
	}

	resp, err := client.Do(req)
	if err != nil {
		return fmt.Errorf("bridge request failed (%s): %w", method, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		var be BridgeError
		if err := json.NewDecoder(resp.Body).Decode(&be); err != nil {
			return errorFromHTTPResponse(resp, fmt.Errorf("failed to decode bridge error message: %w", err))
		}
		return errorFromHTTPResponse(resp, &be)
	}

	if out != nil {
		if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
			return fmt.Errorf("decoding %s response: %w", method, err)
		}
	}
	return nil
}
