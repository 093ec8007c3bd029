package echoapi

import (
	"net/http"

	"github.com/go-playground/validator/v10"
	"github.com/labstack/echo/v4"
	"github.com/pkg/errors"

	"github.com/thehouse/platform/core/academic"
	metricsvc "github.com/thehouse/platform/services/metrics"
)

type academicApi struct {
	svc      academic.ServiceInterface
	validate *validator.Validate
}

// columns a client may order listings by
var (
	lessonOrderFields     = []string{"date", "class_id", "created_at"}
	assessmentOrderFields = []string{"type", "grade", "assessed_on", "created_at"}
)

func registerAcademicAPI(g *echo.Group, jwt echo.MiddlewareFunc, deps ServerDeps) {
	api := academicApi{
		svc:      deps.AcademicSvc,
		validate: deps.Validate,
	}

	lg := g.Group("/lessons", jwt)
	lg.POST("", api.createLesson)
	lg.GET("", api.queryLessons)
	lg.GET("/:id", api.retrieveLesson)
	lg.PUT("/:id", api.updateLesson)
	lg.DELETE("/:id", api.destroyLesson)
	lg.GET("/:id/attendance", api.queryAttendance)

	// the bulk sheet is the only way attendance is written
	g.POST("/attendance", api.submitAttendance, jwt)

	ag := g.Group("/assessments", jwt)
	ag.POST("", api.createAssessment)
	ag.GET("", api.queryAssessments)
	ag.GET("/:id", api.retrieveAssessment)
	ag.PUT("/:id", api.updateAssessment)
	ag.DELETE("/:id", api.destroyAssessment)
}

// --- lessons ---

func (api *academicApi) createLesson(ctx echo.Context) error {
	p, err := getPrincipal(ctx)
	if err != nil {
		return err
	}
	var data academic.NewLesson
	if err = ctx.Bind(&data); err != nil {
		return errors.Wrap(err, "binding to NewLesson")
	}
	if err = data.Validate(api.validate); err != nil {
		return err
	}
	l, err := api.svc.CreateLesson(ctx.Request().Context(), p, data)
	if err != nil {
		return err
	}
	return ctx.JSON(http.StatusCreated, l)
}

func (api *academicApi) queryLessons(ctx echo.Context) error {
	p, err := getPrincipal(ctx)
	if err != nil {
		return err
	}
	filter := new(academic.LessonQueryFilter)
	if err = ctx.Bind(filter); err != nil {
		return ctx.JSON(http.StatusOK, []academic.Lesson{})
	}
	ordering := new(Ordering)
	ordering.Bind(ctx, lessonOrderFields...)

	lessons, err := api.svc.QueryLessons(ctx.Request().Context(), p, filter, ordering.Orderings)
	if err != nil {
		return errors.Wrap(err, "querying lessons")
	}
	if lessons == nil {
		lessons = []academic.Lesson{}
	}
	return ctx.JSON(http.StatusOK, lessons)
}

func (api *academicApi) retrieveLesson(ctx echo.Context) error {
	p, err := getPrincipal(ctx)
	if err != nil {
		return err
	}
	id, err := pathID(ctx)
	if err != nil {
		return err
	}
	l, err := api.svc.GetLesson(ctx.Request().Context(), p, id)
	if err != nil {
		return err
	}
	return ctx.JSON(http.StatusOK, l)
}

func (api *academicApi) updateLesson(ctx echo.Context) error {
	p, err := getPrincipal(ctx)
	if err != nil {
		return err
	}
	id, err := pathID(ctx)
	if err != nil {
		return err
	}
	var data academic.UpdateLesson
	if err = ctx.Bind(&data); err != nil {
		return errors.Wrap(err, "binding to UpdateLesson")
	}
	l, err := api.svc.UpdateLesson(ctx.Request().Context(), p, id, data)
	if err != nil {
		return err
	}
	return ctx.JSON(http.StatusOK, l)
}

func (api *academicApi) destroyLesson(ctx echo.Context) error {
	p, err := getPrincipal(ctx)
	if err != nil {
		return err
	}
	id, err := pathID(ctx)
	if err != nil {
		return err
	}
	if err = api.svc.DeleteLesson(ctx.Request().Context(), p, id); err != nil {
		return err
	}
	return ctx.NoContent(http.StatusNoContent)
}

// --- attendance ---

func (api *academicApi) submitAttendance(ctx echo.Context) error {
	p, err := getPrincipal(ctx)
	if err != nil {
		return err
	}
	var sheet academic.AttendanceSheet
	if err = ctx.Bind(&sheet); err != nil {
		return errors.Wrap(err, "binding to AttendanceSheet")
	}
	if err = sheet.Validate(api.validate); err != nil {
		return err
	}

	res, err := api.svc.ReconcileAttendance(ctx.Request().Context(), p, sheet)
	if err != nil {
		return err
	}
	metricsvc.AttendanceRecords.Add(float64(res.Processed))
	metricsvc.AttendanceSkipped.Add(float64(res.Submitted - res.Processed))
	return ctx.JSON(http.StatusOK, res)
}

func (api *academicApi) queryAttendance(ctx echo.Context) error {
	p, err := getPrincipal(ctx)
	if err != nil {
		return err
	}
	lessonID, err := pathID(ctx)
	if err != nil {
		return err
	}
	atts, err := api.svc.QueryAttendance(ctx.Request().Context(), p, lessonID)
	if err != nil {
		return err
	}
	if atts == nil {
		atts = []academic.Attendance{}
	}
	return ctx.JSON(http.StatusOK, atts)
}

// --- assessments ---

func (api *academicApi) createAssessment(ctx echo.Context) error {
	p, err := getPrincipal(ctx)
	if err != nil {
		return err
	}
	var data academic.NewAssessment
	if err = ctx.Bind(&data); err != nil {
		return errors.Wrap(err, "binding to NewAssessment")
	}
	if err = data.Validate(api.validate); err != nil {
		return err
	}
	a, err := api.svc.CreateAssessment(ctx.Request().Context(), p, data)
	if err != nil {
		return err
	}
	return ctx.JSON(http.StatusCreated, a)
}

func (api *academicApi) queryAssessments(ctx echo.Context) error {
	p, err := getPrincipal(ctx)
	if err != nil {
		return err
	}
	filter := new(academic.AssessmentQueryFilter)
	if err = ctx.Bind(filter); err != nil {
		return ctx.JSON(http.StatusOK, []academic.Assessment{})
	}
	ordering := new(Ordering)
	ordering.Bind(ctx, assessmentOrderFields...)

	assessments, err := api.svc.QueryAssessments(ctx.Request().Context(), p, filter, ordering.Orderings)
	if err != nil {
		return errors.Wrap(err, "querying assessments")
	}
	if assessments == nil {
		assessments = []academic.Assessment{}
	}
	return ctx.JSON(http.StatusOK, assessments)
}

func (api *academicApi) retrieveAssessment(ctx echo.Context) error {
	p, err := getPrincipal(ctx)
	if err != nil {
		return err
	}
	id, err := pathID(ctx)
	if err != nil {
		return err
	}
	a, err := api.svc.GetAssessment(ctx.Request().Context(), p, id)
	if err != nil {
		return err
	}
	return ctx.JSON(http.StatusOK, a)
}

func (api *academicApi) updateAssessment(ctx echo.Context) error {
	p, err := getPrincipal(ctx)
	if err != nil {
		return err
	}
	id, err := pathID(ctx)
	if err != nil {
		return err
	}
	var data academic.UpdateAssessment
	if err = ctx.Bind(&data); err != nil {
		return errors.Wrap(err, "binding to UpdateAssessment")
	}
	orig, err := api.svc.GetAssessment(ctx.Request().Context(), p, id)
	if err != nil {
		return err
	}
	if err = data.Validate(orig, api.validate); err != nil {
		return err
	}
	a, err := api.svc.UpdateAssessment(ctx.Request().Context(), p, id, data)
	if err != nil {
		return err
	}
	return ctx.JSON(http.StatusOK, a)
}

func (api *academicApi) destroyAssessment(ctx echo.Context) error {
	p, err := getPrincipal(ctx)
	if err != nil {
		return err
	}
	id, err := pathID(ctx)
	if err != nil {
		return err
	}
	if err = api.svc.DeleteAssessment(ctx.Request().Context(), p, id); err != nil {
		return err
	}
	return ctx.NoContent(http.StatusNoContent)
}
