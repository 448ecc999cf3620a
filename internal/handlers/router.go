package handlers

import (
	"fmt"
	"net/http"

	"github.com/Anuj5504/cloudbox/internal/auth"
	"github.com/Anuj5504/cloudbox/internal/logger"
	"github.com/labstack/echo/v4"
	"github.com/labstack/echo/v4/middleware"
)

type RouterOptions struct {
	CORSOrigins []string
	// MaxBodyBytes caps request bodies; 0 leaves them unlimited.
	MaxBodyBytes int64
	// MediaDir, when set, is served under /media for the local storage driver.
	MediaDir string
}

func NewRouter(h *Handler, verifier auth.Verifier, opts RouterOptions) *echo.Echo {
	e := echo.New()
	e.HideBanner = true
	e.HidePort = true
	e.HTTPErrorHandler = ErrorHandler(h.Log)
	e.Validator = NewRequestValidator()

	e.Use(middleware.Recover())
	e.Use(middleware.RequestID())
	e.Use(logger.RequestLogger(h.Log))
	e.Use(middleware.CORSWithConfig(middleware.CORSConfig{
		AllowOrigins: opts.CORSOrigins,
		AllowMethods: []string{http.MethodGet, http.MethodPost, http.MethodPatch, http.MethodDelete, http.MethodOptions},
		AllowHeaders: []string{echo.HeaderAuthorization, echo.HeaderContentType},
	}))
	if opts.MaxBodyBytes > 0 {
		// multipart framing needs a little room on top of the file itself
		e.Use(middleware.BodyLimit(fmt.Sprintf("%dK", opts.MaxBodyBytes/1024+64)))
	}

	e.GET("/healthz", func(c echo.Context) error {
		return c.JSON(http.StatusOK, map[string]string{"status": "ok"})
	})
	if opts.MediaDir != "" {
		e.Static("/media", opts.MediaDir)
	}

	api := e.Group("/api")
	api.Use(auth.Middleware(verifier, h.Log))
	h.Register(api)
	return e
}
