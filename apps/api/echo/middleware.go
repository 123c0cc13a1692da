package echoapi

import (
	"github.com/labstack/echo/v4"
	"github.com/labstack/echo/v4/middleware"

	"github.com/trezcool/ripoti/services/backend"
)

// bearerAuthMiddleware requires an "Authorization: Bearer <token>" header and forwards
// the token to the backend through the request context. The token is not inspected here:
// the backend owns authentication.
func bearerAuthMiddleware() echo.MiddlewareFunc {
	return middleware.KeyAuthWithConfig(middleware.KeyAuthConfig{
		KeyLookup:  "header:" + echo.HeaderAuthorization,
		AuthScheme: "Bearer",
		Validator: func(token string, ctx echo.Context) (bool, error) {
			req := ctx.Request()
			ctx.SetRequest(req.WithContext(backend.WithToken(req.Context(), token)))
			return true, nil
		},
		ErrorHandler: func(err error, ctx echo.Context) error {
			return errUnauthorized
		},
	})
}
