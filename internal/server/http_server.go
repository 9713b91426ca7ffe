package server

import (
	"net/http"
	"time"

	"github.com/labstack/echo/v4"
	echomw "github.com/labstack/echo/v4/middleware"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	echoapi "go.wtyk.dev/authd/api/echo"
	"go.wtyk.dev/authd/config"
	"go.wtyk.dev/authd/log"
)

// NewHTTPServer builds the echo router, wires the API surfaces, and wraps
// everything in an http.Server with sane timeouts.
func NewHTTPServer(
	cfg *config.ServerConfig,
	appLogger log.Logger,
	oauthAPI *echoapi.OAuth2API,
	keyAPI *echoapi.APIKeyAPI,
	accountAPI *echoapi.AccountAPI,
) *http.Server {
	e := echo.New()
	e.HideBanner = true
	e.HidePort = true

	e.Use(echomw.Recover())
	e.Use(requestLogger(appLogger))

	oauthAPI.RegisterRoutes(e)
	keyAPI.RegisterRoutes(e)
	accountAPI.RegisterRoutes(e)

	e.GET("/health", func(c echo.Context) error {
		return c.JSON(http.StatusOK, map[string]string{"status": "ok"})
	})
	e.GET("/metrics", echo.WrapHandler(promhttp.Handler()))

	return &http.Server{
		Addr:         ":" + cfg.HTTPPort,
		Handler:      e,
		ReadTimeout:  5 * time.Second,
		WriteTimeout: 10 * time.Second,
		IdleTimeout:  120 * time.Second,
	}
}

func requestLogger(appLogger log.Logger) echo.MiddlewareFunc {
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			start := time.Now()
			err := next(c)

			fields := map[string]interface{}{
				"method":  c.Request().Method,
				"path":    c.Request().URL.Path,
				"status":  c.Response().Status,
				"latency": time.Since(start).String(),
				"ip":      c.RealIP(),
			}
			if err != nil {
				appLogger.Error(c.Request().Context(), "http request", err, fields)
			} else {
				appLogger.Info(c.Request().Context(), "http request", fields)
			}
			return err
		}
	}
}
