package echoapi

import (
	"github.com/labstack/echo/v4"
	"github.com/pkg/errors"

	"github.com/thehouse/platform/core/auth"
)

const contextObjectKey = "object"

var errObjNotFoundInCtx = errors.New("object not found in echo.Context")

// permissionMiddleware short-circuits requests whose role the permission
// table rejects outright. Ownership checks still run inside the services;
// this only spares them the obviously forbidden calls.
func permissionMiddleware(act auth.Action, res auth.Resource) echo.MiddlewareFunc {
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(ctx echo.Context) error {
			p, err := getPrincipal(ctx)
			if err != nil {
				return err
			}
			if !p.Role.Canonical() || !auth.Permits(p.Role, act, res) {
				return errHttpForbidden
			}
			return next(ctx)
		}
	}
}
