package middleware

import (
	"context"
	"net/http"

	"github.com/labstack/echo/v4"
	"github.com/segmentio/ksuid"
)

const (
	XRequestID = "x-request-id"
	XUserID    = "x-user-id"
)

func GetRequestID(c echo.Context) string {
	if id, ok := c.Get(XRequestID).(string); ok && id != "" {
		return id
	}
	if id := GetRequestIDFromContext(c.Request().Context()); id != "" {
		return id
	}
	return c.Request().Header.Get(XRequestID)
}

func GetRequestIDFromContext(ctx context.Context) string {
	if id, ok := ctx.Value(XRequestID).(string); ok {
		return id
	}
	return ""
}

// GetUserID returns the authenticated user set by the identity gateway.
func GetUserID(c echo.Context) string {
	if id, ok := c.Get(XUserID).(string); ok {
		return id
	}
	return ""
}

func InjectRequestID(c echo.Context, reqID string) {
	ctx := c.Request().Context()
	//lint:ignore SA1029 we want to expose this key
	ctx = context.WithValue(ctx, XRequestID, reqID)

	c.SetRequest(c.Request().WithContext(ctx))
	c.Set(XRequestID, reqID)
}

func GenerateRequestID() string {
	return ksuid.New().String()
}

// UserID extracts the caller's identity from the gateway header and
// exposes it to handlers. Requests without one are rejected; the portal
// gateway always sets it for signed-in users.
func UserID() echo.MiddlewareFunc {
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			userID := c.Request().Header.Get(XUserID)
			if userID == "" {
				return echo.NewHTTPError(http.StatusUnauthorized, "missing user identity")
			}
			c.Set(XUserID, userID)
			return next(c)
		}
	}
}

func RequestID() echo.MiddlewareFunc {
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) (err error) {
			reqID := GetRequestID(c)
			if reqID == "" {
				reqID = GenerateRequestID()
			}
			InjectRequestID(c, reqID)
			c.Response().Header().Set(XRequestID, reqID)
			return next(c)
		}
	}
}
