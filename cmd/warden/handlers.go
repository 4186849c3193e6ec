package main

import (
	"crypto/subtle"
	"errors"
	"fmt"
	"log/slog"
	"net/http"

	"github.com/modwarden/warden/automod/engine"
	"github.com/modwarden/warden/automod/settings"

	"github.com/labstack/echo-contrib/echoprometheus"
	"github.com/labstack/echo/v4"
	"github.com/labstack/echo/v4/middleware"
	slogecho "github.com/samber/slog-echo"
	"go.opentelemetry.io/contrib/instrumentation/github.com/labstack/echo/otelecho"
)

const secretHeader = "X-Warden-Secret"

type GenericStatus struct {
	Daemon  string `json:"daemon"`
	Status  string `json:"status"`
	Message string `json:"msg,omitempty"`
}

type SettingsResponse struct {
	// explicitly configured values only
	Settings settings.Values `json:"settings"`
	// every key, with defaults filled in
	Effective settings.Values `json:"effective"`
}

type SettingRequest struct {
	Value any `json:"value"`
}

// registers collectors with the default registry, so it can only be built once per process
var httpMetrics = echoprometheus.NewMiddleware("warden")

func (srv *Server) newEcho() *echo.Echo {
	e := echo.New()
	e.HideBanner = true
	e.HidePort = true
	e.Use(slogecho.New(srv.logger))
	e.Use(middleware.Recover())
	e.Use(middleware.BodyLimit("1M"))
	e.Use(httpMetrics)
	e.Use(otelecho.Middleware("warden"))
	e.HTTPErrorHandler = srv.errorHandler

	e.GET("/_health", srv.HandleHealthCheck)

	e.POST("/webhook/post-create", srv.HandlePostCreate, srv.checkSecret)
	e.GET("/settings", srv.HandleGetSettings, srv.checkSecret)
	e.PUT("/settings/:key", srv.HandlePutSetting, srv.checkSecret)
	return e
}

func (srv *Server) errorHandler(err error, c echo.Context) {
	code := http.StatusInternalServerError
	var errorMessage string
	var he *echo.HTTPError
	if errors.As(err, &he) {
		code = he.Code
		errorMessage = fmt.Sprintf("%s", he.Message)
	}
	if code >= 500 {
		srv.logger.Warn("warden-http-internal-error", "err", err)
	}
	if c.Response().Committed {
		return
	}
	c.JSON(code, GenericStatus{Status: "error", Daemon: "warden", Message: errorMessage}) // nolint:errcheck
}

// Rejects requests without the shared secret header. A no-op if no secret is configured.
func (srv *Server) checkSecret(next echo.HandlerFunc) echo.HandlerFunc {
	return func(c echo.Context) error {
		if srv.secret == "" {
			return next(c)
		}
		got := c.Request().Header.Get(secretHeader)
		if subtle.ConstantTimeCompare([]byte(got), []byte(srv.secret)) != 1 {
			return echo.NewHTTPError(http.StatusUnauthorized, "missing or incorrect "+secretHeader)
		}
		return next(c)
	}
}

func (srv *Server) HandleHealthCheck(c echo.Context) error {
	return c.JSON(http.StatusOK, GenericStatus{Status: "ok", Daemon: "warden"})
}

func (srv *Server) HandlePostCreate(c echo.Context) error {
	var evt engine.PostCreateEvent
	if err := c.Bind(&evt); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "invalid post-create event")
	}
	if evt.PostID == "" {
		return echo.NewHTTPError(http.StatusBadRequest, "postId is required")
	}
	res, err := srv.engine.ProcessPostCreate(c.Request().Context(), evt)
	if err != nil {
		return err
	}
	return c.JSON(http.StatusOK, res)
}

func (srv *Server) HandleGetSettings(c echo.Context) error {
	vals, err := srv.settings.Get(c.Request().Context())
	if err != nil {
		return err
	}
	return c.JSON(http.StatusOK, SettingsResponse{Settings: vals, Effective: vals.WithDefaults()})
}

func (srv *Server) HandlePutSetting(c echo.Context) error {
	key := c.Param("key")
	var req SettingRequest
	if err := c.Bind(&req); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "invalid setting request body")
	}
	if err := srv.settings.Set(c.Request().Context(), key, req.Value); err != nil {
		if errors.Is(err, settings.ErrInvalidSetting) {
			return echo.NewHTTPError(http.StatusBadRequest, err.Error())
		}
		return err
	}
	srv.logger.Info("setting updated", "key", key, slog.Any("value", req.Value))
	return c.JSON(http.StatusOK, GenericStatus{Status: "ok", Daemon: "warden"})
}
