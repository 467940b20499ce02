package gateway

import (
	"context"
	"errors"
	"io"
	"net/http"
	"slices"
	"strings"
	"sync/atomic"
	"testing"
	"time"
)

const testPrefix = "/apis/scope.grafana.app/v0alpha1/namespaces/default"

func jsonResponse(req *http.Request, code int, body string) *http.Response {
	return &http.Response{
		StatusCode: code,
		Status:     http.StatusText(code),
		Header:     make(http.Header),
		Body:       io.NopCloser(strings.NewReader(body)),
		Request:    req,
	}
}

func newTestClient(t *testing.T, fn roundTripperFunc) *Client {
	t.Helper()
	c, err := New("https://grafana.example.test/", "default", "tok", time.Second)
	if err != nil {
		t.Fatalf("New error: %v", err)
	}
	c.HTTP.Transport = fn
	return c
}

func TestNewValidatesInput(t *testing.T) {
	tests := []struct {
		name      string
		baseURL   string
		namespace string
	}{
		{name: "empty base", baseURL: "", namespace: "default"},
		{name: "relative base", baseURL: "grafana", namespace: "default"},
		{name: "empty namespace", baseURL: "https://example.test", namespace: " "},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			if _, err := New(tc.baseURL, tc.namespace, "", time.Second); err == nil {
				t.Fatal("expected error")
			}
		})
	}
}

func TestFetchNodesSendsQueryAndHeaders(t *testing.T) {
	c := newTestClient(t, func(req *http.Request) (*http.Response, error) {
		if req.URL.Path != testPrefix+"/find/scope_node_children" {
			return jsonResponse(req, http.StatusNotFound, `{"message":"not found"}`), nil
		}
		q := req.URL.Query()
		if q.Get("parent") != "prod" || q.Get("query") != "eu" || q.Get("limit") != "1000" {
			t.Errorf("unexpected query %q", req.URL.RawQuery)
		}
		if got := req.Header.Get("Authorization"); got != "Bearer tok" {
			t.Errorf("Authorization = %q", got)
		}
		if got := req.Header.Get("User-Agent"); got != "scopenav" {
			t.Errorf("User-Agent = %q", got)
		}
		return jsonResponse(req, http.StatusOK, `{"items":[`+
			`{"metadata":{"name":"prod-eu"},"spec":{"parentName":"prod","nodeType":"container","title":"EU"}},`+
			`{"metadata":{"name":"prod-eu-web"},"spec":{"nodeType":"leaf","title":"Web","linkType":"scope","linkId":"web"}}`+
			`]}`), nil
	})

	nodes, err := c.FetchNodes(context.Background(), "prod", "eu")
	if err != nil {
		t.Fatalf("FetchNodes error: %v", err)
	}
	if len(nodes) != 2 {
		t.Fatalf("expected 2 nodes, got %d", len(nodes))
	}
	if nodes[1].Spec.LinkID != "web" || nodes[1].Spec.LinkType != "scope" {
		t.Fatalf("unexpected node[1]: %#v", nodes[1])
	}
}

func TestFetchScopeEscapesName(t *testing.T) {
	c := newTestClient(t, func(req *http.Request) (*http.Response, error) {
		if got, want := req.URL.EscapedPath(), testPrefix+"/scopes/team%2Fa"; got != want {
			t.Errorf("path = %q, want %q", got, want)
		}
		return jsonResponse(req, http.StatusOK, `{"metadata":{"name":"team/a"},"spec":{"title":"Team A","filters":[{"key":"team","value":"a","operator":"equals"}]}}`), nil
	})

	scope, err := c.FetchScope(context.Background(), "team/a")
	if err != nil {
		t.Fatalf("FetchScope error: %v", err)
	}
	if scope.Spec.Title != "Team A" || len(scope.Spec.Filters) != 1 {
		t.Fatalf("unexpected scope: %#v", scope)
	}
}

func TestFetchScopeNotFound(t *testing.T) {
	c := newTestClient(t, func(req *http.Request) (*http.Response, error) {
		resp := jsonResponse(req, http.StatusNotFound, `{"message":"scope missing"}`)
		resp.Header.Set("X-Request-ID", "req-1")
		return resp, nil
	})

	_, err := c.FetchScope(context.Background(), "missing")
	if !errors.Is(err, ErrNotFound) {
		t.Fatalf("expected ErrNotFound, got %v", err)
	}
	for _, want := range []string{"scope missing", "request_id=req-1", "url=https://grafana.example.test"} {
		if !strings.Contains(err.Error(), want) {
			t.Fatalf("error %q does not contain %q", err, want)
		}
	}
}

func TestFetchDashboardBindingsRepeatsScopeParam(t *testing.T) {
	c := newTestClient(t, func(req *http.Request) (*http.Response, error) {
		if got := req.URL.Query()["scope"]; !slices.Equal(got, []string{"a", "b"}) {
			t.Errorf("scope params = %v", got)
		}
		return jsonResponse(req, http.StatusOK, `{"items":[{"metadata":{"name":"bind-1"},"spec":{"dashboard":"d1","scope":"a"},"status":{"dashboardTitle":"Overview","groups":["Ops"]}}]}`), nil
	})

	bindings, err := c.FetchDashboardBindings(context.Background(), []string{"a", "b"})
	if err != nil {
		t.Fatalf("FetchDashboardBindings error: %v", err)
	}
	if len(bindings) != 1 || bindings[0].Status.DashboardTitle != "Overview" || bindings[0].Status.Groups[0] != "Ops" {
		t.Fatalf("unexpected bindings: %#v", bindings)
	}
}

func TestRetriesOn429(t *testing.T) {
	var calls int32
	c := newTestClient(t, func(req *http.Request) (*http.Response, error) {
		if atomic.AddInt32(&calls, 1) == 1 {
			resp := jsonResponse(req, http.StatusTooManyRequests, `{"message":"slow down"}`)
			resp.Header.Set("Retry-After", "0")
			return resp, nil
		}
		return jsonResponse(req, http.StatusOK, `{"items":[]}`), nil
	})

	if _, err := c.FetchNodes(context.Background(), "", ""); err != nil {
		t.Fatalf("FetchNodes error: %v", err)
	}
	if got := atomic.LoadInt32(&calls); got != 2 {
		t.Fatalf("expected 2 requests, got %d", got)
	}
}

func TestGivesUpAfterRepeated429(t *testing.T) {
	var calls int32
	c := newTestClient(t, func(req *http.Request) (*http.Response, error) {
		atomic.AddInt32(&calls, 1)
		resp := jsonResponse(req, http.StatusTooManyRequests, ``)
		resp.Header.Set("Retry-After", "0")
		return resp, nil
	})

	_, err := c.FetchNodes(context.Background(), "", "")
	if err == nil || !strings.Contains(err.Error(), "rate limited") {
		t.Fatalf("expected rate limited error, got %v", err)
	}
	if got := atomic.LoadInt32(&calls); got != maxRetriesOn429+1 {
		t.Fatalf("expected %d requests, got %d", maxRetriesOn429+1, got)
	}
}

func TestServerErrorHidesHTMLBody(t *testing.T) {
	c := newTestClient(t, func(req *http.Request) (*http.Response, error) {
		return jsonResponse(req, http.StatusBadGateway, `<html><body>bad gateway</body></html>`), nil
	})

	_, err := c.FetchScope(context.Background(), "a")
	if err == nil {
		t.Fatal("expected error")
	}
	if errors.Is(err, ErrNotFound) {
		t.Fatalf("502 must not match ErrNotFound: %v", err)
	}
	if strings.Contains(err.Error(), "<html>") {
		t.Fatalf("error leaks html body: %v", err)
	}
}

func TestRetryAfterDuration(t *testing.T) {
	if d, ok := retryAfterDuration("3"); !ok || d != 3*time.Second {
		t.Fatalf("retryAfterDuration(3) = %s, %v", d, ok)
	}
	for _, raw := range []string{"", "-1", "soon"} {
		if _, ok := retryAfterDuration(raw); ok {
			t.Fatalf("retryAfterDuration(%q) accepted", raw)
		}
	}
}

type roundTripperFunc func(*http.Request) (*http.Response, error)

func (f roundTripperFunc) RoundTrip(r *http.Request) (*http.Response, error) {
	return f(r)
}
