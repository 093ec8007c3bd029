package echoapi

import (
	"fmt"
	"net/http"
	"strconv"

	"github.com/go-playground/validator/v10"
	"github.com/labstack/echo/v4"
	"github.com/pkg/errors"
	"github.com/volatiletech/null/v8"

	"github.com/thehouse/platform/core/academic"
	"github.com/thehouse/platform/core/school"
	exportsvc "github.com/thehouse/platform/services/export"
)

const xlsxContentType = "application/vnd.openxmlformats-officedocument.spreadsheetml.sheet"

type schoolApi struct {
	svc         school.ServiceInterface
	academicSvc academic.ServiceInterface
	validate    *validator.Validate
}

// columns a client may order listings by
var (
	teacherOrderFields    = []string{"name", "email", "cpf", "specialty", "hired_on"}
	studentOrderFields    = []string{"name", "email", "cpf", "birth_date", "created_at"}
	classOrderFields      = []string{"name", "level", "capacity", "starts_on", "ends_on", "created_at"}
	enrollmentOrderFields = []string{"student_id", "class_id", "enrolled_on"}
)

func registerSchoolAPI(g *echo.Group, jwt echo.MiddlewareFunc, deps ServerDeps) {
	api := schoolApi{
		svc:         deps.SchoolSvc,
		academicSvc: deps.AcademicSvc,
		validate:    deps.Validate,
	}

	tg := g.Group("/teachers", jwt)
	tg.POST("", api.createTeacher)
	tg.GET("", api.queryTeachers)
	tg.GET("/:id", api.retrieveTeacher)
	tg.PUT("/:id", api.updateTeacher)
	tg.DELETE("/:id", api.destroyTeacher)

	sg := g.Group("/students", jwt)
	sg.POST("", api.createStudent)
	sg.GET("", api.queryStudents)
	sg.GET("/:id", api.retrieveStudent)
	sg.PUT("/:id", api.updateStudent)
	sg.DELETE("/:id", api.destroyStudent)

	cg := g.Group("/classes", jwt)
	cg.POST("", api.createClass)
	cg.GET("", api.queryClasses)
	cg.GET("/:id", api.retrieveClass)
	cg.PUT("/:id", api.updateClass)
	cg.DELETE("/:id", api.destroyClass)
	cg.POST("/:id/schedules", api.createSchedule)
	cg.GET("/:id/schedules", api.querySchedules)
	cg.GET("/:id/attendance.xlsx", api.exportAttendance)

	g.DELETE("/schedules/:id", api.destroySchedule, jwt)

	eg := g.Group("/enrollments", jwt)
	eg.POST("", api.enroll)
	eg.GET("", api.queryEnrollments)
	eg.DELETE("/:id", api.unenroll)

	g.GET("/stats", api.stats, jwt)
}

func pathID(ctx echo.Context) (int, error) {
	id, err := strconv.Atoi(ctx.Param("id"))
	if err != nil {
		return 0, errHttpNotFound
	}
	return id, nil
}

// --- teachers ---

func (api *schoolApi) createTeacher(ctx echo.Context) error {
	p, err := getPrincipal(ctx)
	if err != nil {
		return err
	}
	var data school.NewTeacher
	if err = ctx.Bind(&data); err != nil {
		return errors.Wrap(err, "binding to NewTeacher")
	}
	if err = data.Validate(api.validate, api.svc); err != nil {
		return err
	}
	t, err := api.svc.CreateTeacher(ctx.Request().Context(), p, data)
	if err != nil {
		return errors.Wrap(err, "creating teacher")
	}
	return ctx.JSON(http.StatusCreated, t)
}

func (api *schoolApi) queryTeachers(ctx echo.Context) error {
	p, err := getPrincipal(ctx)
	if err != nil {
		return err
	}
	filter := new(school.TeacherQueryFilter)
	if err = ctx.Bind(filter); err != nil {
		return ctx.JSON(http.StatusOK, []school.Teacher{})
	}
	filter.Clean()
	ordering := new(Ordering)
	ordering.Bind(ctx, teacherOrderFields...)

	teachers, err := api.svc.QueryTeachers(ctx.Request().Context(), p, filter, ordering.Orderings)
	if err != nil {
		return errors.Wrap(err, "querying teachers")
	}
	if teachers == nil {
		teachers = []school.Teacher{}
	}
	return ctx.JSON(http.StatusOK, teachers)
}

func (api *schoolApi) retrieveTeacher(ctx echo.Context) error {
	p, err := getPrincipal(ctx)
	if err != nil {
		return err
	}
	id, err := pathID(ctx)
	if err != nil {
		return err
	}
	t, err := api.svc.GetTeacher(ctx.Request().Context(), p, id)
	if err != nil {
		return err
	}
	return ctx.JSON(http.StatusOK, t)
}

func (api *schoolApi) updateTeacher(ctx echo.Context) error {
	p, err := getPrincipal(ctx)
	if err != nil {
		return err
	}
	id, err := pathID(ctx)
	if err != nil {
		return err
	}
	var data school.UpdateTeacher
	if err = ctx.Bind(&data); err != nil {
		return errors.Wrap(err, "binding to UpdateTeacher")
	}
	orig, err := api.svc.GetTeacher(ctx.Request().Context(), p, id)
	if err != nil {
		return err
	}
	if err = data.Validate(orig, api.validate); err != nil {
		return err
	}
	t, err := api.svc.UpdateTeacher(ctx.Request().Context(), p, id, data)
	if err != nil {
		return errors.Wrap(err, "updating teacher")
	}
	return ctx.JSON(http.StatusOK, t)
}

func (api *schoolApi) destroyTeacher(ctx echo.Context) error {
	p, err := getPrincipal(ctx)
	if err != nil {
		return err
	}
	id, err := pathID(ctx)
	if err != nil {
		return err
	}
	if err = api.svc.DeleteTeacher(ctx.Request().Context(), p, id); err != nil {
		return err
	}
	return ctx.NoContent(http.StatusNoContent)
}

// --- students ---

func (api *schoolApi) createStudent(ctx echo.Context) error {
	p, err := getPrincipal(ctx)
	if err != nil {
		return err
	}
	var data school.NewStudent
	if err = ctx.Bind(&data); err != nil {
		return errors.Wrap(err, "binding to NewStudent")
	}
	if err = data.Validate(api.validate, api.svc); err != nil {
		return err
	}
	s, err := api.svc.CreateStudent(ctx.Request().Context(), p, data)
	if err != nil {
		return errors.Wrap(err, "creating student")
	}
	return ctx.JSON(http.StatusCreated, s)
}

func (api *schoolApi) queryStudents(ctx echo.Context) error {
	p, err := getPrincipal(ctx)
	if err != nil {
		return err
	}
	filter := new(school.StudentQueryFilter)
	if err = ctx.Bind(filter); err != nil {
		return ctx.JSON(http.StatusOK, []school.Student{})
	}
	filter.Clean()
	if classID, err := strconv.Atoi(ctx.QueryParam("class_id")); err == nil {
		filter.ClassID = null.IntFrom(classID)
	}
	ordering := new(Ordering)
	ordering.Bind(ctx, studentOrderFields...)

	students, err := api.svc.QueryStudents(ctx.Request().Context(), p, filter, ordering.Orderings)
	if err != nil {
		return errors.Wrap(err, "querying students")
	}
	if students == nil {
		students = []school.Student{}
	}
	return ctx.JSON(http.StatusOK, students)
}

func (api *schoolApi) retrieveStudent(ctx echo.Context) error {
	p, err := getPrincipal(ctx)
	if err != nil {
		return err
	}
	id, err := pathID(ctx)
	if err != nil {
		return err
	}
	s, err := api.svc.GetStudent(ctx.Request().Context(), p, id)
	if err != nil {
		return err
	}
	return ctx.JSON(http.StatusOK, s)
}

func (api *schoolApi) updateStudent(ctx echo.Context) error {
	p, err := getPrincipal(ctx)
	if err != nil {
		return err
	}
	id, err := pathID(ctx)
	if err != nil {
		return err
	}
	var data school.UpdateStudent
	if err = ctx.Bind(&data); err != nil {
		return errors.Wrap(err, "binding to UpdateStudent")
	}
	orig, err := api.svc.GetStudent(ctx.Request().Context(), p, id)
	if err != nil {
		return err
	}
	if err = data.Validate(orig, api.validate, api.svc); err != nil {
		return err
	}
	s, err := api.svc.UpdateStudent(ctx.Request().Context(), p, id, data)
	if err != nil {
		return errors.Wrap(err, "updating student")
	}
	return ctx.JSON(http.StatusOK, s)
}

func (api *schoolApi) destroyStudent(ctx echo.Context) error {
	p, err := getPrincipal(ctx)
	if err != nil {
		return err
	}
	id, err := pathID(ctx)
	if err != nil {
		return err
	}
	if err = api.svc.DeleteStudent(ctx.Request().Context(), p, id); err != nil {
		return err
	}
	return ctx.NoContent(http.StatusNoContent)
}

// --- classes ---

func (api *schoolApi) createClass(ctx echo.Context) error {
	p, err := getPrincipal(ctx)
	if err != nil {
		return err
	}
	var data school.NewClass
	if err = ctx.Bind(&data); err != nil {
		return errors.Wrap(err, "binding to NewClass")
	}
	if err = data.Validate(api.validate); err != nil {
		return err
	}
	c, err := api.svc.CreateClass(ctx.Request().Context(), p, data)
	if err != nil {
		return errors.Wrap(err, "creating class")
	}
	return ctx.JSON(http.StatusCreated, c)
}

func (api *schoolApi) queryClasses(ctx echo.Context) error {
	p, err := getPrincipal(ctx)
	if err != nil {
		return err
	}
	filter := new(school.ClassQueryFilter)
	if err = ctx.Bind(filter); err != nil {
		return ctx.JSON(http.StatusOK, []school.Class{})
	}
	filter.Clean()
	ordering := new(Ordering)
	ordering.Bind(ctx, classOrderFields...)

	classes, err := api.svc.QueryClasses(ctx.Request().Context(), p, filter, ordering.Orderings)
	if err != nil {
		return errors.Wrap(err, "querying classes")
	}
	if classes == nil {
		classes = []school.Class{}
	}
	return ctx.JSON(http.StatusOK, classes)
}

func (api *schoolApi) retrieveClass(ctx echo.Context) error {
	p, err := getPrincipal(ctx)
	if err != nil {
		return err
	}
	id, err := pathID(ctx)
	if err != nil {
		return err
	}
	c, err := api.svc.GetClass(ctx.Request().Context(), p, id)
	if err != nil {
		return err
	}
	return ctx.JSON(http.StatusOK, c)
}

func (api *schoolApi) updateClass(ctx echo.Context) error {
	p, err := getPrincipal(ctx)
	if err != nil {
		return err
	}
	id, err := pathID(ctx)
	if err != nil {
		return err
	}
	var data school.UpdateClass
	if err = ctx.Bind(&data); err != nil {
		return errors.Wrap(err, "binding to UpdateClass")
	}
	orig, err := api.svc.GetClass(ctx.Request().Context(), p, id)
	if err != nil {
		return err
	}
	if err = data.Validate(orig, api.validate); err != nil {
		return err
	}
	c, err := api.svc.UpdateClass(ctx.Request().Context(), p, id, data)
	if err != nil {
		return errors.Wrap(err, "updating class")
	}
	return ctx.JSON(http.StatusOK, c)
}

func (api *schoolApi) destroyClass(ctx echo.Context) error {
	p, err := getPrincipal(ctx)
	if err != nil {
		return err
	}
	id, err := pathID(ctx)
	if err != nil {
		return err
	}
	if err = api.svc.DeleteClass(ctx.Request().Context(), p, id); err != nil {
		return err
	}
	return ctx.NoContent(http.StatusNoContent)
}

// --- schedules ---

func (api *schoolApi) createSchedule(ctx echo.Context) error {
	p, err := getPrincipal(ctx)
	if err != nil {
		return err
	}
	classID, err := pathID(ctx)
	if err != nil {
		return err
	}
	var data school.NewSchedule
	if err = ctx.Bind(&data); err != nil {
		return errors.Wrap(err, "binding to NewSchedule")
	}
	data.ClassID = classID
	if err = data.Validate(api.validate); err != nil {
		return err
	}
	sch, err := api.svc.CreateSchedule(ctx.Request().Context(), p, data)
	if err != nil {
		return errors.Wrap(err, "creating schedule")
	}
	return ctx.JSON(http.StatusCreated, sch)
}

func (api *schoolApi) querySchedules(ctx echo.Context) error {
	p, err := getPrincipal(ctx)
	if err != nil {
		return err
	}
	classID, err := pathID(ctx)
	if err != nil {
		return err
	}
	schedules, err := api.svc.QuerySchedules(ctx.Request().Context(), p, classID)
	if err != nil {
		return errors.Wrap(err, "querying schedules")
	}
	if schedules == nil {
		schedules = []school.Schedule{}
	}
	return ctx.JSON(http.StatusOK, schedules)
}

func (api *schoolApi) destroySchedule(ctx echo.Context) error {
	p, err := getPrincipal(ctx)
	if err != nil {
		return err
	}
	id, err := pathID(ctx)
	if err != nil {
		return err
	}
	if err = api.svc.DeleteSchedule(ctx.Request().Context(), p, id); err != nil {
		return err
	}
	return ctx.NoContent(http.StatusNoContent)
}

// --- enrollments ---

func (api *schoolApi) enroll(ctx echo.Context) error {
	p, err := getPrincipal(ctx)
	if err != nil {
		return err
	}
	var data school.NewEnrollment
	if err = ctx.Bind(&data); err != nil {
		return errors.Wrap(err, "binding to NewEnrollment")
	}
	if err = data.Validate(api.validate); err != nil {
		return err
	}
	enr, err := api.svc.Enroll(ctx.Request().Context(), p, data)
	if err != nil {
		return err
	}
	return ctx.JSON(http.StatusCreated, enr)
}

func (api *schoolApi) queryEnrollments(ctx echo.Context) error {
	p, err := getPrincipal(ctx)
	if err != nil {
		return err
	}
	filter := new(school.EnrollmentQueryFilter)
	if err = ctx.Bind(filter); err != nil {
		return ctx.JSON(http.StatusOK, []school.Enrollment{})
	}
	ordering := new(Ordering)
	ordering.Bind(ctx, enrollmentOrderFields...)

	enrollments, err := api.svc.QueryEnrollments(ctx.Request().Context(), p, filter, ordering.Orderings)
	if err != nil {
		return errors.Wrap(err, "querying enrollments")
	}
	if enrollments == nil {
		enrollments = []school.Enrollment{}
	}
	return ctx.JSON(http.StatusOK, enrollments)
}

func (api *schoolApi) unenroll(ctx echo.Context) error {
	p, err := getPrincipal(ctx)
	if err != nil {
		return err
	}
	id, err := pathID(ctx)
	if err != nil {
		return err
	}
	if err = api.svc.Unenroll(ctx.Request().Context(), p, id); err != nil {
		return err
	}
	return ctx.NoContent(http.StatusNoContent)
}

// --- dashboard & exports ---

func (api *schoolApi) stats(ctx echo.Context) error {
	p, err := getPrincipal(ctx)
	if err != nil {
		return err
	}
	stats, err := api.svc.GetStats(ctx.Request().Context(), p)
	if err != nil {
		return err
	}
	return ctx.JSON(http.StatusOK, stats)
}

// exportAttendance streams the class attendance matrix as an xlsx download.
// Every read goes through the services so a scoped teacher can only export
// their own class.
func (api *schoolApi) exportAttendance(ctx echo.Context) error {
	p, err := getPrincipal(ctx)
	if err != nil {
		return err
	}
	id, err := pathID(ctx)
	if err != nil {
		return err
	}
	reqCtx := ctx.Request().Context()

	class, err := api.svc.GetClass(reqCtx, p, id)
	if err != nil {
		return err
	}
	students, err := api.svc.QueryStudents(reqCtx, p, &school.StudentQueryFilter{ClassID: null.IntFrom(id)}, nil)
	if err != nil {
		return errors.Wrap(err, "querying class roster")
	}
	lessons, err := api.academicSvc.QueryLessons(reqCtx, p, &academic.LessonQueryFilter{ClassID: null.IntFrom(id)}, nil)
	if err != nil {
		return errors.Wrap(err, "querying class lessons")
	}

	records := make(map[int]map[int]academic.Attendance, len(lessons))
	for _, lesson := range lessons {
		atts, err := api.academicSvc.QueryAttendance(reqCtx, p, lesson.ID)
		if err != nil {
			return errors.Wrap(err, "querying lesson attendance")
		}
		rows := make(map[int]academic.Attendance, len(atts))
		for _, att := range atts {
			rows[att.StudentID] = att
		}
		records[lesson.ID] = rows
	}

	buf, err := exportsvc.BuildAttendanceWorkbook(exportsvc.AttendanceMatrix{
		Class:    class,
		Students: students,
		Lessons:  lessons,
		Records:  records,
	})
	if err != nil {
		return errors.Wrap(err, "building attendance workbook")
	}

	ctx.Response().Header().Set(
		echo.HeaderContentDisposition,
		fmt.Sprintf("attachment; filename=%q", exportsvc.AttendanceFilename(class)),
	)
	return ctx.Blob(http.StatusOK, xlsxContentType, buf.Bytes())
}
