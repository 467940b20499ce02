// Package gateway is the HTTP client for the scopes backend API.
package gateway

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/scopenav/scopenav/internal/metrics"
	"github.com/scopenav/scopenav/internal/scopes"
)

const (
	defaultTimeout   = 30 * time.Second
	DefaultNodeLimit = 1000
	maxRetriesOn429  = 3
	maxErrorBodySize = 1 << 20 // 1 MiB
	userAgent        = "scopenav"
)

// Operation names used for metrics and logs.
const (
	OpFetchNodes    = "fetch_nodes"
	OpFetchScope    = "fetch_scope"
	OpFetchBindings = "fetch_dashboard_bindings"
)

// ErrNotFound is returned when the backend answers 404.
var ErrNotFound = errors.New("not found")

type Client struct {
	BaseURL   string
	Namespace string
	Token     string
	NodeLimit int
	HTTP      *http.Client
}

// New creates a client for the scopes API of namespace served under baseURL.
func New(baseURL, namespace, token string, timeout time.Duration) (*Client, error) {
	base := strings.TrimRight(strings.TrimSpace(baseURL), "/")
	namespace = strings.TrimSpace(namespace)

	if base == "" {
		return nil, errors.New("scopes api base URL is required")
	}
	u, err := url.Parse(base)
	if err != nil || u.Scheme == "" || u.Host == "" {
		return nil, fmt.Errorf("scopes api base URL %q is not absolute", baseURL)
	}
	if namespace == "" {
		return nil, errors.New("scopes api namespace is required")
	}
	if timeout <= 0 {
		timeout = defaultTimeout
	}

	return &Client{
		BaseURL:   base,
		Namespace: namespace,
		Token:     strings.TrimSpace(token),
		NodeLimit: DefaultNodeLimit,
		HTTP:      &http.Client{Timeout: timeout},
	}, nil
}

func (c *Client) ensureClient() error {
	if c.BaseURL == "" {
		return errors.New("scopes api base URL is required")
	}
	if c.Namespace == "" {
		return errors.New("scopes api namespace is required")
	}
	if c.HTTP == nil {
		return errors.New("scopes api http client is not configured")
	}
	return nil
}

// FetchNodes lists the children of parent ("" for the root) whose title
// matches query.
func (c *Client) FetchNodes(ctx context.Context, parent, query string) ([]scopes.ScopeNode, error) {
	if err := c.ensureClient(); err != nil {
		return nil, err
	}
	limit := c.NodeLimit
	if limit <= 0 {
		limit = DefaultNodeLimit
	}

	q := url.Values{}
	q.Set("parent", parent)
	q.Set("query", query)
	q.Set("limit", strconv.Itoa(limit))
	endpoint, err := c.endpoint("/find/scope_node_children", q)
	if err != nil {
		return nil, err
	}

	var payload struct {
		Items []scopes.ScopeNode `json:"items"`
	}
	if err := c.getJSON(ctx, OpFetchNodes, endpoint, &payload); err != nil {
		return nil, err
	}
	return payload.Items, nil
}

// FetchScope loads one scope by name.
func (c *Client) FetchScope(ctx context.Context, name string) (scopes.Scope, error) {
	if err := c.ensureClient(); err != nil {
		return scopes.Scope{}, err
	}
	name = strings.TrimSpace(name)
	if name == "" {
		return scopes.Scope{}, errors.New("scope name is required")
	}

	endpoint, err := c.endpoint("/scopes/"+url.PathEscape(name), nil)
	if err != nil {
		return scopes.Scope{}, err
	}
	var out scopes.Scope
	if err := c.getJSON(ctx, OpFetchScope, endpoint, &out); err != nil {
		return scopes.Scope{}, err
	}
	return out, nil
}

// FetchDashboardBindings lists the dashboard bindings of every named scope.
func (c *Client) FetchDashboardBindings(ctx context.Context, scopeNames []string) ([]scopes.ScopeDashboardBinding, error) {
	if err := c.ensureClient(); err != nil {
		return nil, err
	}

	q := url.Values{}
	for _, name := range scopeNames {
		q.Add("scope", name)
	}
	endpoint, err := c.endpoint("/find/scope_dashboard_bindings", q)
	if err != nil {
		return nil, err
	}

	var payload struct {
		Items []scopes.ScopeDashboardBinding `json:"items"`
	}
	if err := c.getJSON(ctx, OpFetchBindings, endpoint, &payload); err != nil {
		return nil, err
	}
	return payload.Items, nil
}

// NamespacePrefix is the escaped path under which every scopes resource of
// namespace lives.
func NamespacePrefix(namespace string) string {
	return "/apis/" + scopes.APIGroupVersion + "/namespaces/" + url.PathEscape(namespace)
}

func (c *Client) endpoint(path string, query url.Values) (string, error) {
	u, err := url.Parse(strings.TrimRight(c.BaseURL, "/"))
	if err != nil {
		return "", err
	}
	escaped := strings.TrimRight(u.EscapedPath(), "/") + NamespacePrefix(c.Namespace) + path
	if u.Path, err = url.PathUnescape(escaped); err != nil {
		return "", err
	}
	u.RawPath = escaped
	if query != nil {
		u.RawQuery = query.Encode()
	}
	u.Fragment = ""
	return u.String(), nil
}

func (c *Client) getJSON(ctx context.Context, operation, endpoint string, out any) error {
	start := time.Now()
	status := "error"
	defer func() {
		metrics.GatewayRequestsTotal.WithLabelValues(operation, status).Inc()
		metrics.GatewayRequestDuration.WithLabelValues(operation).Observe(time.Since(start).Seconds())
	}()

	body, code, err := c.get(ctx, endpoint)
	if code != 0 {
		status = strconv.Itoa(code)
	}
	if err != nil {
		return err
	}
	if err := json.Unmarshal(body, out); err != nil {
		return fmt.Errorf("decode %s response: %w", operation, err)
	}
	return nil
}

func (c *Client) get(ctx context.Context, endpoint string) ([]byte, int, error) {
	var lastErr error
	for attempt := 0; attempt <= maxRetriesOn429; attempt++ {
		req, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint, nil)
		if err != nil {
			return nil, 0, err
		}
		if c.Token != "" {
			req.Header.Set("Authorization", "Bearer "+c.Token)
		}
		req.Header.Set("Accept", "application/json")
		req.Header.Set("User-Agent", userAgent)

		resp, err := c.HTTP.Do(req)
		if err != nil {
			return nil, 0, err
		}
		body, readErr := io.ReadAll(io.LimitReader(resp.Body, maxErrorBodySize))
		resp.Body.Close()
		if readErr != nil {
			return nil, resp.StatusCode, readErr
		}

		if resp.StatusCode == http.StatusTooManyRequests {
			lastErr = formatAPIError("scopes api rate limited", endpoint, resp, body)
			if attempt == maxRetriesOn429 {
				return nil, resp.StatusCode, lastErr
			}
			wait, ok := retryAfterDuration(resp.Header.Get("Retry-After"))
			if !ok {
				wait = time.Second
			}
			if err := sleep(ctx, wait); err != nil {
				return nil, resp.StatusCode, err
			}
			continue
		}

		if resp.StatusCode == http.StatusNotFound {
			return nil, resp.StatusCode, fmt.Errorf("%w: %w", ErrNotFound, formatAPIError("scopes api failed", endpoint, resp, body))
		}
		if resp.StatusCode < 200 || resp.StatusCode >= 300 {
			return nil, resp.StatusCode, formatAPIError("scopes api failed", endpoint, resp, body)
		}
		return body, resp.StatusCode, nil
	}
	if lastErr != nil {
		return nil, http.StatusTooManyRequests, lastErr
	}
	return nil, 0, errors.New("scopes api request failed")
}

func retryAfterDuration(header string) (time.Duration, bool) {
	header = strings.TrimSpace(header)
	if header == "" {
		return 0, false
	}
	secs, err := strconv.Atoi(header)
	if err != nil || secs < 0 {
		return 0, false
	}
	return time.Duration(secs) * time.Second, true
}

func sleep(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return nil
	}
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}

func formatAPIError(prefix, reqURL string, resp *http.Response, body []byte) error {
	message := extractAPIErrorMessage(body)
	details := formatAPIErrorDetails(reqURL, resp)

	if message != "" && details != "" {
		return fmt.Errorf("%s: %s: %s (%s)", prefix, resp.Status, message, details)
	}
	if message != "" {
		return fmt.Errorf("%s: %s: %s", prefix, resp.Status, message)
	}
	if details != "" {
		return fmt.Errorf("%s: %s (%s)", prefix, resp.Status, details)
	}
	return fmt.Errorf("%s: %s", prefix, resp.Status)
}

func extractAPIErrorMessage(body []byte) string {
	var payload struct {
		Message string `json:"message"`
		Error   string `json:"error"`
		Reason  string `json:"reason"`
	}
	if err := json.Unmarshal(body, &payload); err == nil {
		for _, msg := range []string{payload.Message, payload.Error, payload.Reason} {
			if msg = strings.TrimSpace(msg); msg != "" {
				return msg
			}
		}
	}

	msg := strings.TrimSpace(string(body))
	if msg == "" {
		return ""
	}
	if strings.HasPrefix(msg, "<!DOCTYPE html") || strings.HasPrefix(msg, "<html") {
		return ""
	}
	msg = strings.Join(strings.Fields(msg), " ")
	const maxLen = 300
	if len(msg) > maxLen {
		msg = msg[:maxLen] + "..."
	}
	return msg
}

func formatAPIErrorDetails(reqURL string, resp *http.Response) string {
	var parts []string
	if v := safeURL(reqURL); v != "" {
		parts = append(parts, "url="+v)
	}
	if v := strings.TrimSpace(resp.Header.Get("X-Request-ID")); v != "" {
		parts = append(parts, "request_id="+v)
	}
	if v := resp.Header.Get("Retry-After"); v != "" {
		parts = append(parts, "retry_after="+v)
	}
	return strings.Join(parts, ", ")
}

func safeURL(raw string) string {
	if raw == "" {
		return ""
	}
	u, err := url.Parse(raw)
	if err != nil {
		return raw
	}
	if u.RawQuery != "" {
		return u.Scheme + "://" + u.Host + u.Path + "?" + u.RawQuery
	}
	return u.Scheme + "://" + u.Host + u.Path
}
