// Package apiclient is the REST client for the booking console API. Every
// failure it returns is an *apierr.Error.
package apiclient

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"golang.org/x/oauth2"

	"github.com/unkn0wn-root/querycache/apierr"
)

const (
	defaultTimeout   = 15 * time.Second
	defaultUserAgent = "querycache-console/1"
	maxErrorBody     = 64 << 10
)

type Config struct {
	BaseURL string // required, e.g. https://api.example.com/v1/
	// TokenSource supplies the bearer token; nil sends unauthenticated requests.
	TokenSource oauth2.TokenSource
	// HTTPClient is the base client; its Transport is wrapped with oauth2.
	HTTPClient *http.Client
	Timeout    time.Duration // 0 => 15s; transport concern, the cache never times out
	UserAgent  string
}

type Client struct {
	base *url.URL
	http *http.Client
	ua   string
}

func New(cfg Config) (*Client, error) {
	if cfg.BaseURL == "" {
		return nil, errors.New("apiclient: base URL is required")
	}
	base, err := url.Parse(cfg.BaseURL)
	if err != nil {
		return nil, fmt.Errorf("apiclient: invalid base URL: %w", err)
	}
	if !strings.HasSuffix(base.Path, "/") {
		base.Path += "/"
	}

	var transport http.RoundTripper = http.DefaultTransport
	if cfg.HTTPClient != nil && cfg.HTTPClient.Transport != nil {
		transport = cfg.HTTPClient.Transport
	}
	if cfg.TokenSource != nil {
		transport = &oauth2.Transport{
			Source: oauth2.ReuseTokenSource(nil, cfg.TokenSource),
			Base:   transport,
		}
	}
	timeout := cfg.Timeout
	if timeout == 0 {
		timeout = defaultTimeout
	}
	ua := cfg.UserAgent
	if ua == "" {
		ua = defaultUserAgent
	}
	return &Client{
		base: base,
		http: &http.Client{Transport: transport, Timeout: timeout},
		ua:   ua,
	}, nil
}

// StaticToken is a TokenSource for a bearer token obtained at login.
func StaticToken(accessToken string) oauth2.TokenSource {
	return oauth2.StaticTokenSource(&oauth2.Token{AccessToken: accessToken, TokenType: "Bearer"})
}

// request describes one API call. idem is sent as Idempotency-Key when set.
type request struct {
	method string
	path   string
	query  url.Values
	body   any
	idem   string
}

// do performs r and returns the raw response body of a 2xx response.
func (c *Client) do(ctx context.Context, r request) ([]byte, error) {
	u := c.base.ResolveReference(&url.URL{Path: strings.TrimPrefix(r.path, "/")})
	if len(r.query) > 0 {
		u.RawQuery = r.query.Encode()
	}

	var body io.Reader
	if r.body != nil {
		b, err := json.Marshal(r.body)
		if err != nil {
			return nil, &apierr.Error{Kind: apierr.KindValidation, Message: "encode request body", Cause: err}
		}
		body = bytes.NewReader(b)
	}

	req, err := http.NewRequestWithContext(ctx, r.method, u.String(), body)
	if err != nil {
		return nil, &apierr.Error{Kind: apierr.KindUnknown, Message: "build request", Cause: err}
	}
	req.Header.Set("Accept", "application/json")
	req.Header.Set("User-Agent", c.ua)
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if r.idem != "" {
		req.Header.Set("Idempotency-Key", r.idem)
	}

	resp, err := c.http.Do(req)
	if err != nil {
		return nil, transportError(err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		data, _ := io.ReadAll(io.LimitReader(resp.Body, maxErrorBody))
		return nil, apierr.FromStatus(resp.StatusCode, data)
	}
	data, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, &apierr.Error{Kind: apierr.KindNetwork, Status: resp.StatusCode, Message: "read response body", Cause: err}
	}
	return data, nil
}

// transportError classifies failures that never produced a response. A token
// that cannot be obtained or refreshed is an auth failure.
func transportError(err error) error {
	var re *oauth2.RetrieveError
	if errors.As(err, &re) {
		e := &apierr.Error{Kind: apierr.KindAuth, Message: "token refresh failed", Cause: err}
		if re.Response != nil {
			e.Status = re.Response.StatusCode
		}
		return e
	}
	return apierr.Wrap(err)
}

func getJSON[T any](ctx context.Context, c *Client, path string, query url.Values) (T, error) {
	var out T
	data, err := c.do(ctx, request{method: http.MethodGet, path: path, query: query})
	if err != nil {
		return out, err
	}
	return decode[T](data)
}

func sendJSON[T any](ctx context.Context, c *Client, method, path string, body any, idem string) (T, error) {
	var out T
	data, err := c.do(ctx, request{method: method, path: path, body: body, idem: idem})
	if err != nil {
		return out, err
	}
	return decode[T](data)
}

func decode[T any](data []byte) (T, error) {
	var out T
	if err := json.Unmarshal(data, &out); err != nil {
		return out, &apierr.Error{Kind: apierr.KindUnknown, Message: "decode response", Cause: err}
	}
	return out, nil
}

func validationError(field, msg string) error {
	return &apierr.Error{Kind: apierr.KindValidation, Message: field + " " + msg, Fields: map[string]string{field: msg}}
}
