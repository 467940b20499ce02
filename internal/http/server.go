package httpapp

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"strconv"
	"time"

	"github.com/google/uuid"
	"github.com/labstack/echo/v5"
	"github.com/labstack/echo/v5/middleware"

	"github.com/scopenav/scopenav/internal/catalog"
	"github.com/scopenav/scopenav/internal/gateway"
	"github.com/scopenav/scopenav/internal/logging"
	"github.com/scopenav/scopenav/internal/metrics"
)

const (
	// ContextKeyRequestID stores the request id (X-Request-ID) for logging and client error references.
	ContextKeyRequestID = "request_id"

	// InternalErrorCode is a stable error code safe to return to clients.
	InternalErrorCode = "INTERNAL_ERROR"
)

type Options struct {
	// Namespace is the only namespace served; others answer 404.
	Namespace string
	// NodeLimit caps and defaults the limit of node queries.
	NodeLimit int
	Logger    *slog.Logger
}

// EchoServer serves the scopes API from a catalog store.
type EchoServer struct {
	store     catalog.Store
	namespace string
	nodeLimit int
	logger    *slog.Logger
	e         *echo.Echo
}

func NewEchoServer(store catalog.Store, opts Options) *EchoServer {
	limit := opts.NodeLimit
	if limit <= 0 || limit > catalog.DefaultNodeLimit {
		limit = catalog.DefaultNodeLimit
	}
	logger := logging.Component(opts.Logger, "http")

	e := echo.New()
	e.Logger = logger

	es := &EchoServer{
		store:     store,
		namespace: opts.Namespace,
		nodeLimit: limit,
		logger:    logger,
		e:         e,
	}
	e.HTTPErrorHandler = es.httpErrorHandler
	e.Use(middleware.Recover())
	e.Use(requestIDMiddleware)
	e.Use(requestMetricsMiddleware)
	es.registerRoutes()
	return es
}

func (es *EchoServer) registerRoutes() {
	es.e.GET("/healthz", es.handleHealthz)

	api := es.e.Group(gateway.NamespacePrefix(":namespace"))
	api.Use(es.namespaceMiddleware)
	api.GET("/find/scope_node_children", es.handleFindScopeNodeChildren)
	api.GET("/scopes/:name", es.handleGetScope)
	api.GET("/find/scope_dashboard_bindings", es.handleFindScopeDashboardBindings)
}

// Handler exposes the router, e.g. for an http.Server or httptest.
func (es *EchoServer) Handler() http.Handler {
	return es.e
}

// Serve runs the API on addr until ctx is done, then shuts down gracefully.
func (es *EchoServer) Serve(ctx context.Context, addr string) error {
	srv := &http.Server{
		Addr:              addr,
		Handler:           es.e,
		ReadHeaderTimeout: 10 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		es.logger.Info("http server listening", "addr", addr)
		errCh <- srv.ListenAndServe()
	}()

	select {
	case err := <-errCh:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return err
	case <-ctx.Done():
	}

	shutdownCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), 10*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		return err
	}
	if err := <-errCh; err != nil && !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return nil
}

func requestIDMiddleware(next echo.HandlerFunc) echo.HandlerFunc {
	return func(c *echo.Context) error {
		id := c.Request().Header.Get(echo.HeaderXRequestID)
		if id == "" {
			id = uuid.NewString()
		}
		c.Set(ContextKeyRequestID, id)
		c.Response().Header().Set(echo.HeaderXRequestID, id)
		return next(c)
	}
}

// requestMetricsMiddleware counts requests by route pattern. Handlers either
// write 200 or return an error, so the status follows from the error.
func requestMetricsMiddleware(next echo.HandlerFunc) echo.HandlerFunc {
	return func(c *echo.Context) error {
		err := next(c)
		code := http.StatusOK
		if err != nil {
			code = httpStatusFromError(err)
		}
		route := c.Path()
		if route == "" {
			route = "unmatched"
		}
		metrics.APIRequestsTotal.WithLabelValues(route, strconv.Itoa(code)).Inc()
		return err
	}
}

func (es *EchoServer) namespaceMiddleware(next echo.HandlerFunc) echo.HandlerFunc {
	return func(c *echo.Context) error {
		if c.Param("namespace") != es.namespace {
			return echo.ErrNotFound
		}
		return next(c)
	}
}

type statusCoder interface {
	StatusCode() int
}

func httpStatusFromError(err error) int {
	var sc statusCoder
	if errors.As(err, &sc) {
		if code := sc.StatusCode(); code != 0 {
			return code
		}
	}
	var he *echo.HTTPError
	if errors.As(err, &he) && he.Code != 0 {
		return he.Code
	}
	return http.StatusInternalServerError
}

type errorResponse struct {
	Message   string `json:"message"`
	Reference string `json:"reference,omitempty"`
	Code      string `json:"code,omitempty"`
}

// httpErrorHandler answers with the status text only. Server errors are
// logged and reported with a reference instead of their message.
func (es *EchoServer) httpErrorHandler(c *echo.Context, err error) {
	status := httpStatusFromError(err)
	requestID, _ := c.Get(ContextKeyRequestID).(string)

	body := errorResponse{Message: http.StatusText(status)}
	if status >= http.StatusInternalServerError {
		req := c.Request()
		es.logger.Error("http error",
			"request_id", requestID,
			"method", req.Method,
			"path", req.URL.Path,
			"ip", c.RealIP(),
			"err", err,
		)
		body = errorResponse{
			Message:   "Internal server error",
			Reference: requestID,
			Code:      InternalErrorCode,
		}
	}

	if c.Request().Method == http.MethodHead {
		err = c.NoContent(status)
	} else {
		err = c.JSON(status, body)
	}
	if err != nil {
		es.logger.Debug("write error response", "err", err)
	}
}
