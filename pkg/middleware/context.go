package middleware

import (
	"github.com/google/uuid"
	"github.com/labstack/echo/v4"

	"github.com/Ramsey-B/fern/pkg/appctx"
)

const (
	// HeaderActorID is the header key for the acting user's id
	HeaderActorID = "X-Actor-ID"
)

// Context propagates request identity into the request context.
func Context() echo.MiddlewareFunc {
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			req := c.Request()

			requestID := req.Header.Get(echo.HeaderXRequestID)
			if requestID == "" {
				requestID = uuid.New().String()
			}
			c.Response().Header().Set(echo.HeaderXRequestID, requestID)

			ctx := req.Context()
			ctx = appctx.SetRequestID(ctx, requestID)
			if actorID := req.Header.Get(HeaderActorID); actorID != "" {
				ctx = appctx.SetActorID(ctx, actorID)
			}

			c.SetRequest(req.WithContext(ctx))
			return next(c)
		}
	}
}
