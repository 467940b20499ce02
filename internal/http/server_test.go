package httpapp

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/labstack/echo/v5"

	"github.com/scopenav/scopenav/internal/catalog"
	"github.com/scopenav/scopenav/internal/gateway"
	"github.com/scopenav/scopenav/internal/logging"
	"github.com/scopenav/scopenav/internal/scopes"
)

const testNamespace = "default"

func newTestServer(t *testing.T) *EchoServer {
	t.Helper()
	c, err := catalog.LoadFile(filepath.Join("..", "catalog", "testdata", "catalog.yaml"))
	if err != nil {
		t.Fatalf("load catalog: %v", err)
	}
	return NewEchoServer(catalog.NewMemoryStore(c), Options{Namespace: testNamespace, Logger: logging.Discard()})
}

func serve(t *testing.T, es *EchoServer, target string) *httptest.ResponseRecorder {
	t.Helper()
	req := httptest.NewRequest(http.MethodGet, target, nil)
	rec := httptest.NewRecorder()
	es.Handler().ServeHTTP(rec, req)
	return rec
}

func apiPath(path string) string {
	return gateway.NamespacePrefix(testNamespace) + path
}

type failingStore struct{}

func (failingStore) ListChildNodes(context.Context, string, string, int) ([]scopes.ScopeNode, error) {
	return nil, errors.New("very sensitive error")
}

func (failingStore) GetScope(context.Context, string) (scopes.Scope, error) {
	return scopes.Scope{}, errors.New("very sensitive error")
}

func (failingStore) ListBindings(context.Context, []string) ([]scopes.ScopeDashboardBinding, error) {
	return nil, errors.New("very sensitive error")
}

func TestFindScopeNodeChildren(t *testing.T) {
	t.Parallel()
	es := newTestServer(t)

	rec := serve(t, es, apiPath("/find/scope_node_children?parent=applications&query=vote"))
	if rec.Code != http.StatusOK {
		t.Fatalf("status=%d body=%s", rec.Code, rec.Body.String())
	}
	var payload struct {
		Kind  string             `json:"kind"`
		Items []scopes.ScopeNode `json:"items"`
	}
	if err := json.Unmarshal(rec.Body.Bytes(), &payload); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if payload.Kind != "FindScopeNodeChildrenResults" || len(payload.Items) != 1 {
		t.Fatalf("payload = %#v", payload)
	}
	if got := payload.Items[0].Spec.LinkID; got != "slothVoteTracker" {
		t.Fatalf("linkId = %q", got)
	}
}

func TestFindScopeNodeChildrenRejectsBadLimit(t *testing.T) {
	t.Parallel()
	es := newTestServer(t)

	rec := serve(t, es, apiPath("/find/scope_node_children?limit=zero"))
	if rec.Code != http.StatusBadRequest {
		t.Fatalf("status=%d want %d", rec.Code, http.StatusBadRequest)
	}
	if strings.Contains(rec.Body.String(), "positive integer") {
		t.Fatalf("response leaked error details: %q", rec.Body.String())
	}
}

func TestGetScope(t *testing.T) {
	t.Parallel()
	es := newTestServer(t)

	rec := serve(t, es, apiPath("/scopes/slothClusterNorth"))
	if rec.Code != http.StatusOK {
		t.Fatalf("status=%d body=%s", rec.Code, rec.Body.String())
	}
	var s scopes.Scope
	if err := json.Unmarshal(rec.Body.Bytes(), &s); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if s.Metadata.Name != "slothClusterNorth" || s.Spec.Type != "cluster" || len(s.Spec.Filters) != 1 {
		t.Fatalf("scope = %#v", s)
	}

	if rec := serve(t, es, apiPath("/scopes/ghost")); rec.Code != http.StatusNotFound {
		t.Fatalf("unknown scope status=%d want 404", rec.Code)
	}
}

func TestUnknownNamespaceIsNotFound(t *testing.T) {
	t.Parallel()
	es := newTestServer(t)

	rec := serve(t, es, gateway.NamespacePrefix("other")+"/scopes/slothClusterNorth")
	if rec.Code != http.StatusNotFound {
		t.Fatalf("status=%d want 404", rec.Code)
	}
	if got := strings.TrimSpace(rec.Body.String()); got != `{"message":"Not Found"}` {
		t.Fatalf("body=%q", got)
	}
}

func TestFindScopeDashboardBindings(t *testing.T) {
	t.Parallel()
	es := newTestServer(t)

	rec := serve(t, es, apiPath("/find/scope_dashboard_bindings?scope=slothVoteTracker&scope=slothClusterNorth"))
	if rec.Code != http.StatusOK {
		t.Fatalf("status=%d body=%s", rec.Code, rec.Body.String())
	}
	var payload struct {
		Items []scopes.ScopeDashboardBinding `json:"items"`
	}
	if err := json.Unmarshal(rec.Body.Bytes(), &payload); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if len(payload.Items) != 2 || payload.Items[0].Spec.Scope != "slothVoteTracker" {
		t.Fatalf("items = %#v", payload.Items)
	}

	rec = serve(t, es, apiPath("/find/scope_dashboard_bindings"))
	if rec.Code != http.StatusOK || !strings.Contains(rec.Body.String(), `"items":[]`) {
		t.Fatalf("no scopes: status=%d body=%s", rec.Code, rec.Body.String())
	}
}

func TestRequestIDIsEchoedOrGenerated(t *testing.T) {
	t.Parallel()
	es := newTestServer(t)

	req := httptest.NewRequest(http.MethodGet, "/healthz", nil)
	req.Header.Set(echo.HeaderXRequestID, "req-abc")
	rec := httptest.NewRecorder()
	es.Handler().ServeHTTP(rec, req)
	if got := rec.Header().Get(echo.HeaderXRequestID); got != "req-abc" {
		t.Fatalf("request id = %q, want echoed", got)
	}

	rec = serve(t, es, "/healthz")
	if got := rec.Header().Get(echo.HeaderXRequestID); len(got) != 36 {
		t.Fatalf("generated request id = %q, want a uuid", got)
	}
}

func TestInternalErrorIsGeneric(t *testing.T) {
	t.Parallel()
	es := NewEchoServer(failingStore{}, Options{Namespace: testNamespace, Logger: logging.Discard()})

	req := httptest.NewRequest(http.MethodGet, apiPath("/scopes/a"), nil)
	req.Header.Set(echo.HeaderXRequestID, "req-123")
	rec := httptest.NewRecorder()
	es.Handler().ServeHTTP(rec, req)

	if rec.Code != http.StatusInternalServerError {
		t.Fatalf("status=%d want %d", rec.Code, http.StatusInternalServerError)
	}
	body := rec.Body.String()
	if strings.Contains(body, "very sensitive") {
		t.Fatalf("response leaked error details: %q", body)
	}
	var payload errorResponse
	if err := json.Unmarshal(rec.Body.Bytes(), &payload); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if payload.Reference != "req-123" || payload.Code != InternalErrorCode {
		t.Fatalf("payload = %#v", payload)
	}
}

func TestHTTPStatusFromError(t *testing.T) {
	t.Parallel()

	if got := httpStatusFromError(echo.ErrNotFound); got != http.StatusNotFound {
		t.Fatalf("status=%d want %d", got, http.StatusNotFound)
	}
	if got := httpStatusFromError(echo.NewHTTPError(http.StatusBadRequest, "bad")); got != http.StatusBadRequest {
		t.Fatalf("status=%d want %d", got, http.StatusBadRequest)
	}
	if got := httpStatusFromError(errors.New("boom")); got != http.StatusInternalServerError {
		t.Fatalf("status=%d want %d", got, http.StatusInternalServerError)
	}
}

func TestGatewayClientAgainstServer(t *testing.T) {
	t.Parallel()
	es := newTestServer(t)
	srv := httptest.NewServer(es.Handler())
	defer srv.Close()

	client, err := gateway.New(srv.URL, testNamespace, "", 5*time.Second)
	if err != nil {
		t.Fatalf("gateway.New() error = %v", err)
	}
	ctx := context.Background()

	roots, err := client.FetchNodes(ctx, "", "")
	if err != nil {
		t.Fatalf("FetchNodes() error = %v", err)
	}
	if len(roots) != 2 || roots[0].Metadata.Name != "applications" {
		t.Fatalf("roots = %#v", roots)
	}

	s, err := client.FetchScope(ctx, "slothPictureFactory")
	if err != nil {
		t.Fatalf("FetchScope() error = %v", err)
	}
	if s.Spec.Title != "slothPictureFactory" {
		t.Fatalf("scope = %#v", s)
	}
	if _, err := client.FetchScope(ctx, "ghost"); !errors.Is(err, gateway.ErrNotFound) {
		t.Fatalf("FetchScope(ghost) error = %v, want gateway.ErrNotFound", err)
	}

	bindings, err := client.FetchDashboardBindings(ctx, []string{"slothPictureFactory"})
	if err != nil {
		t.Fatalf("FetchDashboardBindings() error = %v", err)
	}
	if len(bindings) != 2 {
		t.Fatalf("bindings = %#v", bindings)
	}
}
