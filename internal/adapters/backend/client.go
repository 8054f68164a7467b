package backend

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/goccy/go-json"
	gobreaker "github.com/sony/gobreaker/v2"

	"cardrec/internal/adapters/http/perf"
	"cardrec/internal/domain/card"
	"cardrec/internal/domain/view"
)

// Operation names, used in errors, logs and metrics.
const (
	OpStatus     = "status"
	OpCategories = "categories"
	OpRecommend  = "recommend"
	OpLogin      = "login"
	OpRegister   = "register"
	OpLogout     = "logout"
)

// Defaults applied by New for zero Config fields.
const (
	DefaultTimeout         = 15 * time.Second
	DefaultBreakerFailures = 5
	DefaultBreakerCooldown = 30 * time.Second
)

const maxBodyBytes = 1 << 20

// Config configures a Client.
type Config struct {
	BaseURL         string
	Timeout         time.Duration
	BreakerFailures uint32        // consecutive failures that open the breaker
	BreakerCooldown time.Duration // time spent open before a trial call
	Transport       http.RoundTripper
	Collector       *perf.Collector
}

// Client calls the recommendation backend's JSON API. One Client serves every
// browser; each call carries that browser's cookies through the jar argument.
type Client struct {
	base      *url.URL
	timeout   time.Duration
	transport http.RoundTripper
	breaker   *gobreaker.CircuitBreaker[*http.Response]
	collector *perf.Collector
}

// errServerStatus marks 5xx answers so the breaker counts them as failures
// while the response itself is still read for its error message.
var errServerStatus = errors.New("backend server error")

// New returns a Client for the backend at cfg.BaseURL.
// PRE: cfg.BaseURL is an absolute http(s) URL
// POST: Returns a ready client with its circuit breaker closed
func New(cfg Config) (*Client, error) {
	base, err := url.Parse(strings.TrimRight(cfg.BaseURL, "/"))
	if err != nil || (base.Scheme != "http" && base.Scheme != "https") || base.Host == "" {
		return nil, fmt.Errorf("invalid backend url %q", cfg.BaseURL)
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = DefaultTimeout
	}
	if cfg.BreakerFailures == 0 {
		cfg.BreakerFailures = DefaultBreakerFailures
	}
	if cfg.BreakerCooldown <= 0 {
		cfg.BreakerCooldown = DefaultBreakerCooldown
	}
	if cfg.Transport == nil {
		cfg.Transport = http.DefaultTransport
	}

	const name = "backend-api"
	breakerState.WithLabelValues(name).Set(0)
	failures := cfg.BreakerFailures
	cb := gobreaker.NewCircuitBreaker[*http.Response](gobreaker.Settings{
		Name:        name,
		MaxRequests: 1,
		Timeout:     cfg.BreakerCooldown,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			return counts.ConsecutiveFailures >= failures
		},
		OnStateChange: func(name string, from, to gobreaker.State) {
			slog.Warn("backend_breaker", "from", from.String(), "to", to.String())
			breakerState.WithLabelValues(name).Set(stateToFloat(to))
		},
	})

	return &Client{
		base:      base,
		timeout:   cfg.Timeout,
		transport: cfg.Transport,
		breaker:   cb,
		collector: cfg.Collector,
	}, nil
}

// Status is the answer of GET /api/status.
type Status struct {
	LoggedIn bool       `json:"logged_in"`
	User     *view.User `json:"user"`
}

// Status asks whether the browser behind jar has a backend session.
func (c *Client) Status(ctx context.Context, jar http.CookieJar) (Status, error) {
	var st Status
	err := c.do(ctx, jar, OpStatus, http.MethodGet, "/api/status", nil, &st)
	return st, err
}

// Categories returns the spending category names.
func (c *Client) Categories(ctx context.Context, jar http.CookieJar) ([]string, error) {
	var cats []string
	if err := c.do(ctx, jar, OpCategories, http.MethodGet, "/api/categories", nil, &cats); err != nil {
		return nil, err
	}
	return cats, nil
}

// Recommend asks for the best cards for category. A success answer without a
// best card is still a result; its sections simply render nothing.
// POST: on success Category is set
func (c *Client) Recommend(ctx context.Context, jar http.CookieJar, category string) (*card.Recommendation, error) {
	var rec card.Recommendation
	body := map[string]string{"category": category}
	if err := c.do(ctx, jar, OpRecommend, http.MethodPost, "/api/recommend", body, &rec); err != nil {
		return nil, err
	}
	rec.Category = category
	return &rec, nil
}

// Login authenticates; the backend's session cookie lands in jar.
func (c *Client) Login(ctx context.Context, jar http.CookieJar, email, password string) (view.User, error) {
	var resp struct {
		User *view.User `json:"user"`
	}
	body := map[string]string{"email": email, "password": password}
	if err := c.do(ctx, jar, OpLogin, http.MethodPost, "/api/login", body, &resp); err != nil {
		return view.User{}, err
	}
	if resp.User == nil {
		return view.User{Email: email}, nil
	}
	return *resp.User, nil
}

// Register creates an account. It does not log the user in.
func (c *Client) Register(ctx context.Context, jar http.CookieJar, username, email, password string) error {
	body := map[string]string{"username": username, "email": email, "password": password}
	return c.do(ctx, jar, OpRegister, http.MethodPost, "/api/register", body, nil)
}

// Logout ends the backend session.
func (c *Client) Logout(ctx context.Context, jar http.CookieJar) error {
	return c.do(ctx, jar, OpLogout, http.MethodPost, "/api/logout", nil, nil)
}

// do performs one call through the breaker and decodes the answer into out.
// A JSON object carrying an "error" field is a RemoteError whatever the status.
func (c *Client) do(ctx context.Context, jar http.CookieJar, op, method, path string, in, out any) error {
	var payload []byte
	if in != nil {
		b, err := json.Marshal(in)
		if err != nil {
			return fmt.Errorf("backend %s: encode: %w", op, err)
		}
		payload = b
	}

	start := time.Now()
	resp, err := c.breaker.Execute(func() (*http.Response, error) {
		req, err := http.NewRequestWithContext(ctx, method, c.base.String()+path, bytes.NewReader(payload))
		if err != nil {
			return nil, err
		}
		req.Header.Set("Accept", "application/json")
		if payload != nil {
			req.Header.Set("Content-Type", "application/json")
		}
		hc := &http.Client{Transport: c.transport, Timeout: c.timeout}
		if jar != nil {
			hc.Jar = hostJar{host: c.base.Host, jar: jar}
		}
		resp, err := hc.Do(req)
		if err != nil {
			return nil, err
		}
		if resp.StatusCode >= 500 {
			return resp, errServerStatus
		}
		return resp, nil
	})
	if err != nil && !errors.Is(err, errServerStatus) {
		outcome := "unreachable"
		if errors.Is(err, gobreaker.ErrOpenState) || errors.Is(err, gobreaker.ErrTooManyRequests) {
			outcome = "rejected"
		}
		c.observe(op, start, 0, outcome)
		slog.Warn("backend_call_failed", "op", op, "outcome", outcome, "error", err)
		return fmt.Errorf("%w: %s: %v", ErrUnreachable, op, err)
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(io.LimitReader(resp.Body, maxBodyBytes))
	if err != nil {
		c.observe(op, start, resp.StatusCode, "unreachable")
		return fmt.Errorf("%w: %s: read body: %v", ErrUnreachable, op, err)
	}

	if remote := remoteError(op, resp.StatusCode, raw); remote != nil {
		c.observe(op, start, resp.StatusCode, "remote_error")
		slog.Info("backend_remote_error", "op", op, "status", resp.StatusCode, "message", remote.Message)
		return remote
	}

	if out != nil && len(bytes.TrimSpace(raw)) > 0 {
		if err := json.Unmarshal(raw, out); err != nil {
			c.observe(op, start, resp.StatusCode, "unreachable")
			return fmt.Errorf("%w: %s: decode: %v", ErrUnreachable, op, err)
		}
	}
	c.observe(op, start, resp.StatusCode, "ok")
	return nil
}

// hostJar scopes a browser's backend cookies to the backend host. A redirect
// to any other host neither receives nor sets them.
type hostJar struct {
	host string
	jar  http.CookieJar
}

func (h hostJar) SetCookies(u *url.URL, cookies []*http.Cookie) {
	if u.Host == h.host {
		h.jar.SetCookies(u, cookies)
	}
}

func (h hostJar) Cookies(u *url.URL) []*http.Cookie {
	if u.Host != h.host {
		return nil
	}
	return h.jar.Cookies(u)
}

// remoteError returns nil when the answer is a success.
func remoteError(op string, status int, raw []byte) *RemoteError {
	var env struct {
		Error string `json:"error"`
	}
	trimmed := bytes.TrimSpace(raw)
	if len(trimmed) > 0 && trimmed[0] == '{' {
		_ = json.Unmarshal(trimmed, &env)
	}
	if status >= 200 && status < 300 && env.Error == "" {
		return nil
	}
	return &RemoteError{Op: op, StatusCode: status, Message: env.Error}
}

func (c *Client) observe(op string, start time.Time, status int, outcome string) {
	elapsed := time.Since(start)
	requestsTotal.WithLabelValues(op, outcome).Inc()
	requestDuration.WithLabelValues(op).Observe(elapsed.Seconds())
	c.collector.Record(perf.Entry{
		Kind:       perf.KindBackend,
		Path:       "backend." + op,
		StatusCode: status,
		DurationMs: float64(elapsed.Microseconds()) / 1000.0,
		Timestamp:  start,
	})
}
