package identity

import (
	"strconv"

	"github.com/labstack/echo/v4"

	"github.com/Additional-Code/roomserve/internal/presentation/http/response"
	"github.com/Additional-Code/roomserve/pkg/errorbank"
)

// Header names populated by the upstream authentication proxy.
const (
	HeaderRole = "X-User-Role"
	HeaderRoom = "X-Room-ID"
)

// Middleware resolves the caller principal from trusted headers and stores
// it on the request context.
func Middleware() echo.MiddlewareFunc {
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			role := Role(c.Request().Header.Get(HeaderRole))
			if !role.Valid() {
				return response.New(c).WithError(errorbank.Unauthorized("missing or unknown role")).Build()
			}

			principal := Principal{Role: role}
			if role == RoleClient {
				roomID, err := strconv.ParseInt(c.Request().Header.Get(HeaderRoom), 10, 64)
				if err != nil || roomID <= 0 {
					return response.New(c).WithError(errorbank.Unauthorized("client identity requires a room")).Build()
				}
				principal.RoomID = roomID
			}

			c.SetRequest(c.Request().WithContext(WithPrincipal(c.Request().Context(), principal)))
			return next(c)
		}
	}
}

// Require rejects callers whose role is not in the allow list.
func Require(roles ...Role) echo.MiddlewareFunc {
	allowed := make(map[Role]struct{}, len(roles))
	for _, r := range roles {
		allowed[r] = struct{}{}
	}

	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			p, err := FromContext(c.Request().Context())
			if err != nil {
				return response.New(c).WithError(err).Build()
			}
			if _, ok := allowed[p.Role]; !ok {
				return response.New(c).WithError(errorbank.Forbidden("role not permitted")).Build()
			}
			return next(c)
		}
	}
}
