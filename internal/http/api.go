package httpapp

import (
	"errors"
	"net/http"
	"net/url"
	"strconv"
	"strings"

	"github.com/labstack/echo/v5"

	"github.com/scopenav/scopenav/internal/catalog"
	"github.com/scopenav/scopenav/internal/scopes"
)

type listResponse[T any] struct {
	APIVersion string `json:"apiVersion"`
	Kind       string `json:"kind"`
	Items      []T    `json:"items"`
}

type scopeResponse struct {
	APIVersion string `json:"apiVersion"`
	Kind       string `json:"kind"`
	scopes.Scope
}

func (es *EchoServer) handleHealthz(c *echo.Context) error {
	return c.JSON(http.StatusOK, map[string]string{"status": "ok"})
}

func (es *EchoServer) handleFindScopeNodeChildren(c *echo.Context) error {
	limit := es.nodeLimit
	if raw := strings.TrimSpace(c.QueryParam("limit")); raw != "" {
		n, err := strconv.Atoi(raw)
		if err != nil || n < 1 {
			return echo.NewHTTPError(http.StatusBadRequest, "limit must be a positive integer")
		}
		limit = min(n, es.nodeLimit)
	}

	nodes, err := es.store.ListChildNodes(c.Request().Context(), c.QueryParam("parent"), c.QueryParam("query"), limit)
	if err != nil {
		return err
	}
	return c.JSON(http.StatusOK, listResponse[scopes.ScopeNode]{
		APIVersion: scopes.APIGroupVersion,
		Kind:       "FindScopeNodeChildrenResults",
		Items:      nodes,
	})
}

func (es *EchoServer) handleGetScope(c *echo.Context) error {
	name, err := url.PathUnescape(c.Param("name"))
	if err != nil || strings.TrimSpace(name) == "" {
		return echo.NewHTTPError(http.StatusBadRequest, "invalid scope name")
	}

	scope, err := es.store.GetScope(c.Request().Context(), name)
	if errors.Is(err, catalog.ErrNotFound) {
		return echo.ErrNotFound
	}
	if err != nil {
		return err
	}
	if scope.Spec.Filters == nil {
		scope.Spec.Filters = []scopes.ScopeFilter{}
	}
	return c.JSON(http.StatusOK, scopeResponse{
		APIVersion: scopes.APIGroupVersion,
		Kind:       "Scope",
		Scope:      scope,
	})
}

func (es *EchoServer) handleFindScopeDashboardBindings(c *echo.Context) error {
	var names []string
	for _, name := range c.QueryParams()["scope"] {
		if name = strings.TrimSpace(name); name != "" {
			names = append(names, name)
		}
	}

	bindings, err := es.store.ListBindings(c.Request().Context(), names)
	if err != nil {
		return err
	}
	return c.JSON(http.StatusOK, listResponse[scopes.ScopeDashboardBinding]{
		APIVersion: scopes.APIGroupVersion,
		Kind:       "FindScopeDashboardBindingsResults",
		Items:      bindings,
	})
}
