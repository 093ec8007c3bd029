package echoapi

import (
	"net/http"

	ut "github.com/go-playground/universal-translator"
	"github.com/go-playground/validator/v10"
	"github.com/labstack/echo/v4"
	"github.com/labstack/echo/v4/middleware"
	"github.com/pkg/errors"

	"github.com/thehouse/platform/core"
	"github.com/thehouse/platform/core/academic"
	"github.com/thehouse/platform/core/auth"
	"github.com/thehouse/platform/core/calendar"
	"github.com/thehouse/platform/core/school"
	"github.com/thehouse/platform/core/user"
	metricsvc "github.com/thehouse/platform/services/metrics"
)

var (
	errUnauthorized         = echo.NewHTTPError(http.StatusUnauthorized, "user not authenticated")
	errAuthenticationFailed = echo.NewHTTPError(http.StatusBadRequest, "authentication failed")
	errAccountDeactivated   = echo.NewHTTPError(http.StatusForbidden, "account deactivated")
	errAccountUnprovisioned = echo.NewHTTPError(http.StatusForbidden, "account has no teacher record")
	errRefreshExpired       = echo.NewHTTPError(http.StatusForbidden, "refresh has expired")
	errHttpForbidden        = echo.NewHTTPError(http.StatusForbidden, "permission denied")
	errHttpNotFound         = echo.NewHTTPError(http.StatusNotFound, "not found")
)

// notFoundErrs are the domain lookups that translate to a plain 404.
var notFoundErrs = map[error]bool{
	user.ErrNotFound:                 true,
	school.ErrTeacherNotFound:        true,
	school.ErrStudentNotFound:        true,
	school.ErrClassNotFound:          true,
	school.ErrScheduleNotFound:       true,
	school.ErrEnrollmentNotFound:     true,
	academic.ErrLessonNotFound:       true,
	academic.ErrAssessmentNotFound:   true,
	calendar.ErrAnnouncementNotFound: true,
	calendar.ErrEventNotFound:        true,
	calendar.ErrReservationNotFound:  true,
}

// conflictErrs are uniqueness collisions surfacing from the storage layer.
var conflictErrs = map[error]bool{
	user.ErrEmailExists:             true,
	school.ErrCPFExists:             true,
	school.ErrAlreadyEnrolled:       true,
	academic.ErrDuplicateLesson:     true,
	academic.ErrDuplicateAssessment: true,
}

// preconditionErrs are domain rules the request body tripped over.
var preconditionErrs = map[error]bool{
	school.ErrStudentInactive: true,
	school.ErrClassInactive:   true,
}

// newAppHTTPErrorHandler returns a custom echo.HTTPErrorHandler that knows how to handle our errors.
// signalShutdown is called in order to gracefully shutdown the Server whenever a core.shutdown error is caught.
func newAppHTTPErrorHandler(logger core.Logger, translator ut.Translator, signalShutdown func()) echo.HTTPErrorHandler {
	return func(err error, ctx echo.Context) {
		var code int
		var message interface{}

		switch origErr := errors.Cause(err).(type) {
		case *echo.HTTPError:
			if origErr == middleware.ErrJWTMissing {
				code = http.StatusUnauthorized
				message = origErr.Message
				break
			}
			if origErr.Internal != nil {
				if herr, ok := origErr.Internal.(*echo.HTTPError); ok {
					origErr = herr
				}
			}
			code = origErr.Code
			message = origErr.Message
		case validator.ValidationErrors:
			fldErrs := make(map[string]string, len(origErr))
			for _, vErr := range origErr {
				fldErrs[vErr.Field()] = vErr.Translate(translator)
			}
			code = http.StatusBadRequest
			message = fldErrs
		case *core.ValidationError:
			if origErr.Fields != nil {
				fldErrs := make(map[string]string, len(origErr.Fields))
				for _, fErr := range origErr.Fields {
					fldErrs[fErr.Field] = fErr.Error
				}
				message = fldErrs
			} else {
				message = origErr.Error()
			}
			code = http.StatusBadRequest
		case *core.ConflictError:
			code = http.StatusConflict
			message = map[string]string{origErr.Field: origErr.Error()}
		case *auth.DeniedError:
			// the reason stays in the logs, the caller only learns "no"
			logger.Info("authorization denied: " + origErr.Error())
			metricsvc.AuthDenied.Inc()
			code = http.StatusForbidden
			message = errHttpForbidden.Message
		default:
			cause := errors.Cause(err)
			switch {
			case notFoundErrs[cause]:
				code = http.StatusNotFound
				message = cause.Error()
			case conflictErrs[cause]:
				code = http.StatusConflict
				message = cause.Error()
			case preconditionErrs[cause]:
				code = http.StatusBadRequest
				message = cause.Error()
			default: // any other error is a server error
				code = http.StatusInternalServerError
				msg := http.StatusText(http.StatusInternalServerError)
				message = msg

				var usr user.User
				if claims, cErr := getContextClaims(ctx); cErr == nil {
					usr.ID = claims.UserID
					usr.Email = claims.Email
				}
				logger.Error(msg, errors.Wrap(err, msg), usr)

				// shutting down...
				if core.IsShutdown(err) {
					signalShutdown()
				}
			}
		}

		if ctx.Echo().Debug {
			message = err.Error()
		}
		if m, ok := message.(string); ok {
			message = echo.Map{"error": m}
		}

		// Send response
		if !ctx.Response().Committed {
			if ctx.Request().Method == http.MethodHead { // Issue #608
				err = ctx.NoContent(code)
			} else {
				err = ctx.JSON(code, message)
			}
			if err != nil {
				ctx.Echo().Logger.Error(err)
			}
		}
	}
}
