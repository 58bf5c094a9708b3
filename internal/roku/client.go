// Package roku talks to a Roku device over the External Control Protocol.
//
// Every operation is a single HTTP request against port 8060 on its own
// short-lived client. Only PowerOn is retried.
package roku

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/hashicorp/go-cleanhttp"
	"github.com/hashicorp/go-retryablehttp"

	"go2tv.app/uniremote/internal/buildinfo"
	"go2tv.app/uniremote/internal/keymap"
)

// Port is the fixed ECP control port.
const Port = "8060"

const (
	DefaultKeyTimeout     = 2 * time.Second
	DefaultPowerOnTimeout = 5 * time.Second
	DefaultPowerOnBackoff = 400 * time.Millisecond
	DefaultInfoTimeout    = 1 * time.Second

	powerOnAttempts = 2
	maxBodyBytes    = 64 << 10
)

// Options tunes a Client. Zero values fall back to the defaults above.
type Options struct {
	UserAgent      string
	KeyTimeout     time.Duration
	PowerOnTimeout time.Duration
	PowerOnBackoff time.Duration
	// Transport replaces the per-request transport. Tests use it to fake the device.
	Transport http.RoundTripper
	Logger    *slog.Logger
}

type Client struct {
	userAgent      string
	keyTimeout     time.Duration
	powerOnTimeout time.Duration
	powerOnBackoff time.Duration
	transport      http.RoundTripper
	logger         *slog.Logger
}

// requestPolicy is how one ECP call is sent.
type requestPolicy struct {
	attempts int
	timeout  time.Duration
	backoff  time.Duration
	powerOn  bool
}

func NewClient(opts Options) *Client {
	c := &Client{
		userAgent:      strings.TrimSpace(opts.UserAgent),
		keyTimeout:     opts.KeyTimeout,
		powerOnTimeout: opts.PowerOnTimeout,
		powerOnBackoff: opts.PowerOnBackoff,
		transport:      opts.Transport,
		logger:         opts.Logger,
	}
	if c.userAgent == "" {
		c.userAgent = buildinfo.UserAgent()
	}
	if c.keyTimeout <= 0 {
		c.keyTimeout = DefaultKeyTimeout
	}
	if c.powerOnTimeout <= 0 {
		c.powerOnTimeout = DefaultPowerOnTimeout
	}
	if c.powerOnBackoff < 0 {
		c.powerOnBackoff = 0
	} else if c.powerOnBackoff == 0 {
		c.powerOnBackoff = DefaultPowerOnBackoff
	}
	if c.logger == nil {
		c.logger = slog.New(slog.NewTextHandler(io.Discard, nil))
	}
	return c
}

// SendKey presses key on the Roku at address. PowerOn gets a longer
// timeout and one retry; every other key is a single 2s attempt.
func (c *Client) SendKey(ctx context.Context, address, key string) error {
	key = strings.TrimSpace(key)
	if key == "" {
		return invalidKeyError(key)
	}
	policy := requestPolicy{attempts: 1, timeout: c.keyTimeout}
	if key == keymap.RokuPowerOn {
		policy = requestPolicy{
			attempts: powerOnAttempts,
			timeout:  c.powerOnTimeout,
			backoff:  c.powerOnBackoff,
			powerOn:  true,
		}
	}
	target, err := endpoint(address, "keypress", key)
	if err != nil {
		return err
	}
	return c.expectSuccess(ctx, http.MethodPost, target, policy, isKeySuccess)
}

// Launch starts a channel or switches input. Never retried.
func (c *Client) Launch(ctx context.Context, address, appID string) error {
	appID = strings.TrimSpace(appID)
	if appID == "" {
		return invalidAppError()
	}
	target, err := endpoint(address, "launch", appID)
	if err != nil {
		return err
	}
	return c.expectSuccess(ctx, http.MethodPost, target, requestPolicy{attempts: 1, timeout: c.keyTimeout}, isKeySuccess)
}

// Validate checks the Roku answers /query/device-info with a 2xx.
func (c *Client) Validate(ctx context.Context, address string) error {
	target, err := endpoint(address, "query", "device-info")
	if err != nil {
		return err
	}
	return c.expectSuccess(ctx, http.MethodGet, target, requestPolicy{attempts: 1, timeout: c.keyTimeout}, is2xx)
}

func (c *Client) expectSuccess(ctx context.Context, method, target string, policy requestPolicy, ok func(int) bool) error {
	started := time.Now()
	resp, err := c.do(ctx, method, target, policy)
	if err != nil {
		c.logger.Warn("roku_request_failed",
			slog.String("method", method),
			slog.String("url", target),
			slog.Duration("elapsed", time.Since(started)),
			slog.String("error", err.Error()),
		)
		return transportError(target, policy.powerOn, err)
	}
	defer resp.Body.Close()
	_, _ = io.Copy(io.Discard, io.LimitReader(resp.Body, maxBodyBytes))

	c.logger.Debug("roku_request",
		slog.String("method", method),
		slog.String("url", target),
		slog.Int("status", resp.StatusCode),
		slog.Duration("elapsed", time.Since(started)),
	)
	if !ok(resp.StatusCode) {
		return statusError(target, resp)
	}
	return nil
}

// do sends one ECP request through a fresh client. Transport errors are
// retried up to policy.attempts; HTTP statuses never are.
func (c *Client) do(ctx context.Context, method, target string, policy requestPolicy) (*http.Response, error) {
	if ctx == nil {
		ctx = context.Background()
	}
	attempts := policy.attempts
	if attempts <= 0 {
		attempts = 1
	}

	rc := &retryablehttp.Client{
		HTTPClient:   c.httpClient(policy.timeout),
		Logger:       c.logger,
		RetryWaitMin: policy.backoff,
		RetryWaitMax: policy.backoff,
		RetryMax:     attempts - 1,
		CheckRetry:   retryTransportErrors,
		Backoff: func(_, _ time.Duration, _ int, _ *http.Response) time.Duration {
			return policy.backoff
		},
		ErrorHandler: retryablehttp.PassthroughErrorHandler,
	}

	req, err := retryablehttp.NewRequestWithContext(ctx, method, target, nil)
	if err != nil {
		return nil, err
	}
	req.Header.Set("Accept", "*/*")
	req.Header.Set("User-Agent", c.userAgent)

	resp, err := rc.Do(req)
	if err != nil {
		if resp != nil && resp.Body != nil {
			resp.Body.Close()
		}
		return nil, err
	}
	return resp, nil
}

func (c *Client) httpClient(timeout time.Duration) *http.Client {
	hc := cleanhttp.DefaultClient()
	hc.Timeout = timeout
	if c.transport != nil {
		hc.Transport = c.transport
	}
	return hc
}

func retryTransportErrors(ctx context.Context, _ *http.Response, err error) (bool, error) {
	if ctxErr := ctx.Err(); ctxErr != nil {
		return false, ctxErr
	}
	return err != nil, nil
}

func endpoint(address string, segments ...string) (string, error) {
	host := strings.TrimSpace(address)
	if host == "" {
		return "", notConfiguredError()
	}
	escaped := make([]string, 0, len(segments))
	for _, s := range segments {
		escaped = append(escaped, url.PathEscape(s))
	}
	return "http://" + net.JoinHostPort(host, Port) + "/" + strings.Join(escaped, "/"), nil
}

func isKeySuccess(code int) bool { return code >= 200 && code <= 204 }

func is2xx(code int) bool { return code >= 200 && code < 300 }

// isTimeoutLike reports connect timeouts, refusals and unroutable hosts.
// These are the failures a sleeping TV produces.
func isTimeoutLike(err error) bool {
	if err == nil {
		return false
	}
	if errors.Is(err, context.DeadlineExceeded) {
		return true
	}
	var netErr net.Error
	if errors.As(err, &netErr) && netErr.Timeout() {
		return true
	}
	if isConnectFailure(err) {
		return true
	}
	msg := strings.ToLower(err.Error())
	for _, pattern := range []string{
		"timeout",
		"timed out",
		"connection refused",
		"network is unreachable",
		"no route to host",
		"host is down",
	} {
		if strings.Contains(msg, pattern) {
			return true
		}
	}
	return false
}

func rootMessage(err error) string {
	for {
		next := errors.Unwrap(err)
		if next == nil {
			return err.Error()
		}
		err = next
	}
}

func describe(target string, err error) string {
	if err == nil {
		return fmt.Sprintf("Failed to reach Roku at %s", target)
	}
	if msg := strings.TrimSpace(rootMessage(err)); msg != "" {
		return msg
	}
	return fmt.Sprintf("Failed to reach Roku at %s", target)
}
