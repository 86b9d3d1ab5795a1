package server

import (
	"context"
	"crypto/subtle"
	"errors"
	"net"
	"net/http"
	"strconv"

	"github.com/carousell/ct-go/pkg/logger"
	log "github.com/carousell/ct-go/pkg/logger/log_context"
	"github.com/labstack/echo/v4"
	"github.com/labstack/echo/v4/middleware"
	"go.uber.org/fx"

	"github.com/pixelhotel/messenger/internal/config"
	"github.com/pixelhotel/messenger/internal/models"
	pkgmdw "github.com/pixelhotel/messenger/internal/server/middleware"
	"github.com/pixelhotel/messenger/internal/session"
)

func StartServer(
	lc fx.Lifecycle,
	sd fx.Shutdowner,
	conf *config.Config,
	controller *Controller,
	sessions *session.Manager,
) {
	e := echo.New()
	e.HideBanner = true
	e.Validator = pkgmdw.NewValidator()
	e.HTTPErrorHandler = errorHandler()

	logConfig := pkgmdw.LogRequestConfig{
		Logger: logger.MustNamed("http"),
		Enabled: func(c echo.Context) bool {
			uri := c.Request().RequestURI
			return uri != "/health" && uri != "/metrics"
		},
	}

	e.Use(pkgmdw.Metrics())
	e.Use(pkgmdw.RequestID())
	e.Use(pkgmdw.LogRequest(logConfig))
	e.Use(middleware.RecoverWithConfig(middleware.RecoverConfig{
		LogErrorFunc: func(c echo.Context, err error, stack []byte) error {
			log.Errorw(c.Request().Context(), "PANIC RECOVER", "error", err, "stack", string(stack))
			return nil
		},
	}))

	e.GET("/health", controller.Health)

	api := e.Group("/api/v1", pkgmdw.UserID())
	api.POST("/sessions", controller.AttachSession)
	api.DELETE("/sessions", controller.DetachSession)
	api.POST("/messages", controller.SendMessage)
	api.DELETE("/messages/:id", controller.DeleteMessage)
	api.POST("/messages/:id/report", controller.ReportMessage)
	api.GET("/conversations", controller.ListConversations)
	api.POST("/conversations/:counterpart/open", controller.OpenConversation)
	api.POST("/conversations/close", controller.CloseConversation)
	api.POST("/blocks", controller.BlockUser)
	api.DELETE("/blocks/:id", controller.UnblockUser)
	api.GET("/blocks", controller.ListBlocked)
	api.POST("/comments", controller.PostComment)
	api.PUT("/presence", controller.SetPresencePreference)

	admin := e.Group("/api/v1/admin", adminAuth(conf.Server.AdminToken))
	admin.DELETE("/conversations", controller.EraseConversation)

	addr := net.JoinHostPort(conf.Server.Host, conf.Server.Port)

	lc.Append(fx.Hook{
		OnStart: func(ctx context.Context) error {
			go func() {
				if err := e.Start(addr); err != nil && !errors.Is(err, http.ErrServerClosed) {
					log.Errorw(ctx, "http server stopped", "error", err)
					_ = sd.Shutdown()
				}
			}()
			return nil
		},
		OnStop: func(ctx context.Context) error {
			sessions.Shutdown()
			return e.Shutdown(ctx)
		},
	})
}

// adminAuth guards the privileged operations behind a static token.
func adminAuth(token string) echo.MiddlewareFunc {
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			if token == "" {
				return echo.NewHTTPError(http.StatusForbidden, "admin API is disabled")
			}
			provided := c.Request().Header.Get("x-admin-token")
			if subtle.ConstantTimeCompare([]byte(provided), []byte(token)) != 1 {
				return echo.NewHTTPError(http.StatusForbidden, "invalid admin token")
			}
			return next(c)
		}
	}
}

// errorHandler maps domain errors onto HTTP statuses. The expected
// pre-persistence rejections keep their user-facing messages; storage
// failures surface as a bad gateway without internals.
func errorHandler() echo.HTTPErrorHandler {
	return func(err error, c echo.Context) {
		if err == nil || c.Response().Committed {
			return
		}

		status := http.StatusInternalServerError
		message := "internal error"

		var ve *models.ValidationError
		var se *models.SpamRejectedError
		var re *models.RateLimitError
		var pde *models.PermissionDeniedError
		var pe *models.PersistenceError
		var he *echo.HTTPError

		switch {
		case errors.As(err, &ve):
			status = http.StatusBadRequest
			message = ve.Error()
		case errors.As(err, &se):
			status = http.StatusUnprocessableEntity
			message = se.Error()
		case errors.As(err, &re):
			status = http.StatusTooManyRequests
			message = re.Error()
			retryAfter := int(re.RetryAfter.Seconds())
			if retryAfter < 1 {
				retryAfter = 1
			}
			c.Response().Header().Set("Retry-After", strconv.Itoa(retryAfter))
		case errors.As(err, &pde):
			status = http.StatusForbidden
			message = pde.Error()
		case errors.Is(err, models.ErrNotFound):
			status = http.StatusNotFound
			message = "not found"
		case errors.As(err, &pe):
			status = http.StatusBadGateway
			message = "storage temporarily unavailable"
		case errors.As(err, &he):
			status = he.Code
			message = he.Error()
			if m, ok := he.Message.(string); ok {
				message = m
			}
		}

		if jsonErr := c.JSON(status, map[string]any{
			"success": false,
			"error":   message,
		}); jsonErr != nil {
			log.Errorw(c.Request().Context(), "could not write error response",
				"error", jsonErr, "status", status)
		}
	}
}
