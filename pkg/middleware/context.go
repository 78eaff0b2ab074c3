package middleware

import (
	"github.com/google/uuid"
	"github.com/labstack/echo/v4"

	"github.com/Ramsey-B/aster/pkg/context"
)

const (
	// HeaderAdvisorID is the header key for the advisor owning the records
	HeaderAdvisorID = "X-Advisor-ID"
	// HeaderUserID is the header key for user ID
	HeaderUserID = "X-User-ID"
)

func Context() echo.MiddlewareFunc {
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) (err error) {
			req := c.Request()

			requestID := req.Header.Get(echo.HeaderXRequestID)
			if requestID == "" {
				requestID = uuid.New().String()
			}

			advisorID := req.Header.Get(HeaderAdvisorID)
			userID := req.Header.Get(HeaderUserID)

			ctx := req.Context()
			ctx = context.SetRequestID(ctx, requestID)
			ctx = context.SetMethod(ctx, req.Method)
			ctx = context.SetRoute(ctx, req.URL.Path)
			ctx = context.SetRemoteIP(ctx, c.RealIP())
			ctx = context.SetAdvisorID(ctx, advisorID)
			ctx = context.SetUserID(ctx, userID)

			c.SetRequest(req.WithContext(ctx))

			return next(c)
		}
	}
}
