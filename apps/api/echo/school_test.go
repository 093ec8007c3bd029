package echoapi

import (
	"context"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/volatiletech/null/v8"

	"github.com/thehouse/platform/core/academic"
	"github.com/thehouse/platform/core/school"
)

func TestTeacherAPI(t *testing.T) {
	env := newTestEnv(t)

	ana := env.createTeacher(t, "Ana Silva", "ana@test.com", "52998224725")
	anaToken := env.token(t, env.teacherUser(t, ana))
	directorToken := env.token(t, env.directorUser(t))

	newBruno := school.NewTeacher{
		Name: "Bruno Costa", Email: "bruno@test.com",
		Password: testPassword, PasswordConfirm: testPassword,
		CPF: "11144477735", Specialty: "Business English",
	}

	env.runHTTPTests(t, []httpTest{
		{
			name:     "create",
			method:   http.MethodPost,
			path:     "/v1/teachers",
			body:     newBruno,
			token:    directorToken,
			wantCode: http.StatusCreated,
			extra: func(t *testing.T, resp *httptest.ResponseRecorder) {
				var teacher school.Teacher
				unmarshalBody(t, resp, &teacher)
				assert.Equal(t, "11144477735", teacher.CPF)
				assert.NotZero(t, teacher.UserID)
			},
		},
		{
			name:   "create with taken cpf",
			method: http.MethodPost,
			path:   "/v1/teachers",
			body: school.NewTeacher{
				Name: "Carbon Copy", Email: "copy@test.com",
				Password: testPassword, PasswordConfirm: testPassword,
				CPF: "52998224725",
			},
			token:    directorToken,
			wantCode: http.StatusConflict,
		},
		{
			name:   "create with invalid cpf",
			method: http.MethodPost,
			path:   "/v1/teachers",
			body: school.NewTeacher{
				Name: "Bad Digits", Email: "bad@test.com",
				Password: testPassword, PasswordConfirm: testPassword,
				CPF: "12345678900",
			},
			token:    directorToken,
			wantCode: http.StatusBadRequest,
		},
		{
			name:   "create forbidden for teachers",
			method: http.MethodPost,
			path:   "/v1/teachers",
			body: school.NewTeacher{
				Name: "Carla Dias", Email: "carla@test.com",
				Password: testPassword, PasswordConfirm: testPassword,
				CPF: "16899535009",
			},
			token:    anaToken,
			wantCode: http.StatusForbidden,
			wantData: `{"error": "permission denied"}`,
		},
		{
			name:     "list",
			method:   http.MethodGet,
			path:     "/v1/teachers",
			token:    directorToken,
			wantCode: http.StatusOK,
			extra: func(t *testing.T, resp *httptest.ResponseRecorder) {
				var teachers []school.Teacher
				unmarshalBody(t, resp, &teachers)
				assert.Len(t, teachers, 2)
			},
		},
		{
			name:     "retrieve",
			method:   http.MethodGet,
			path:     fmt.Sprintf("/v1/teachers/%d", ana.ID),
			token:    directorToken,
			wantCode: http.StatusOK,
		},
		{
			name:     "update",
			method:   http.MethodPut,
			path:     fmt.Sprintf("/v1/teachers/%d", ana.ID),
			body:     school.UpdateTeacher{Phone: "+55 11 98888-7777"},
			token:    directorToken,
			wantCode: http.StatusOK,
			extra: func(t *testing.T, resp *httptest.ResponseRecorder) {
				var teacher school.Teacher
				unmarshalBody(t, resp, &teacher)
				assert.Equal(t, "+55 11 98888-7777", teacher.Phone)
				assert.Equal(t, "Ana Silva", teacher.Name)
			},
		},
		{
			name:     "delete",
			method:   http.MethodDelete,
			path:     fmt.Sprintf("/v1/teachers/%d", ana.ID),
			token:    directorToken,
			wantCode: http.StatusNoContent,
		},
		{
			name:     "retrieve after delete",
			method:   http.MethodGet,
			path:     fmt.Sprintf("/v1/teachers/%d", ana.ID),
			token:    directorToken,
			wantCode: http.StatusNotFound,
		},
	})
}

func TestStudentAPI(t *testing.T) {
	env := newTestEnv(t)

	teacher := env.createTeacher(t, "Ana Silva", "ana@test.com", "52998224725")
	class := env.createClass(t, "Advanced A", null.IntFrom(teacher.ID))
	enrolled := env.createStudent(t, "Joao Pedro", "11144477735")
	env.createStudent(t, "Maria Clara", "16899535009") // never enrolled
	env.enroll(t, enrolled.ID, class.ID)

	directorToken := env.token(t, env.directorUser(t))
	teacherToken := env.token(t, env.teacherUser(t, teacher))

	env.runHTTPTests(t, []httpTest{
		{
			name:     "create",
			method:   http.MethodPost,
			path:     "/v1/students",
			body:     school.NewStudent{Name: "Rafael Lima", CPF: "73051977004", GuardianName: "Lucia Lima"},
			token:    directorToken,
			wantCode: http.StatusCreated,
			extra: func(t *testing.T, resp *httptest.ResponseRecorder) {
				var student school.Student
				unmarshalBody(t, resp, &student)
				assert.True(t, student.IsActive)
			},
		},
		{
			name:     "create with taken cpf",
			method:   http.MethodPost,
			path:     "/v1/students",
			body:     school.NewStudent{Name: "Carbon Copy", CPF: "11144477735"},
			token:    directorToken,
			wantCode: http.StatusConflict,
		},
		{
			name:     "create without name",
			method:   http.MethodPost,
			path:     "/v1/students",
			body:     school.NewStudent{CPF: "73051977004"},
			token:    directorToken,
			wantCode: http.StatusBadRequest,
		},
		{
			name:     "teachers only see their roster",
			method:   http.MethodGet,
			path:     "/v1/students",
			token:    teacherToken,
			wantCode: http.StatusOK,
			extra: func(t *testing.T, resp *httptest.ResponseRecorder) {
				var students []school.Student
				unmarshalBody(t, resp, &students)
				require.Len(t, students, 1)
				assert.Equal(t, enrolled.ID, students[0].ID)
			},
		},
		{
			name:     "update",
			method:   http.MethodPut,
			path:     fmt.Sprintf("/v1/students/%d", enrolled.ID),
			body:     school.UpdateStudent{GuardianPhone: "+55 11 97777-6666"},
			token:    directorToken,
			wantCode: http.StatusOK,
			extra: func(t *testing.T, resp *httptest.ResponseRecorder) {
				var student school.Student
				unmarshalBody(t, resp, &student)
				assert.Equal(t, "+55 11 97777-6666", student.GuardianPhone)
				assert.Equal(t, "Joao Pedro", student.Name)
			},
		},
		{
			name:     "delete deactivates",
			method:   http.MethodDelete,
			path:     fmt.Sprintf("/v1/students/%d", enrolled.ID),
			token:    directorToken,
			wantCode: http.StatusNoContent,
		},
		{
			name:     "record survives deletion",
			method:   http.MethodGet,
			path:     fmt.Sprintf("/v1/students/%d", enrolled.ID),
			token:    directorToken,
			wantCode: http.StatusOK,
			extra: func(t *testing.T, resp *httptest.ResponseRecorder) {
				var student school.Student
				unmarshalBody(t, resp, &student)
				assert.False(t, student.IsActive)
			},
		},
	})
}

func TestClassAPI(t *testing.T) {
	env := newTestEnv(t)

	ana := env.createTeacher(t, "Ana Silva", "ana@test.com", "52998224725")
	bia := env.createTeacher(t, "Bia Rocha", "bia@test.com", "11144477735")
	anaClass := env.createClass(t, "Advanced A", null.IntFrom(ana.ID))
	biaClass := env.createClass(t, "Kids B", null.IntFrom(bia.ID))

	directorToken := env.token(t, env.directorUser(t))
	anaToken := env.token(t, env.teacherUser(t, ana))

	var scheduleID int

	env.runHTTPTests(t, []httpTest{
		{
			name:     "create applies default capacity",
			method:   http.MethodPost,
			path:     "/v1/classes",
			body:     school.NewClass{Name: "Conversation C"},
			token:    directorToken,
			wantCode: http.StatusCreated,
			extra: func(t *testing.T, resp *httptest.ResponseRecorder) {
				var class school.Class
				unmarshalBody(t, resp, &class)
				assert.Equal(t, 15, class.Capacity)
				assert.True(t, class.IsActive)
			},
		},
		{
			name:     "owner retrieves own class",
			method:   http.MethodGet,
			path:     fmt.Sprintf("/v1/classes/%d", anaClass.ID),
			token:    anaToken,
			wantCode: http.StatusOK,
		},
		{
			name:     "someone else's class stays off limits",
			method:   http.MethodGet,
			path:     fmt.Sprintf("/v1/classes/%d", biaClass.ID),
			token:    anaToken,
			wantCode: http.StatusForbidden,
			wantData: `{"error": "permission denied"}`,
		},
		{
			name:     "scoped listing",
			method:   http.MethodGet,
			path:     "/v1/classes",
			token:    anaToken,
			wantCode: http.StatusOK,
			extra: func(t *testing.T, resp *httptest.ResponseRecorder) {
				var classes []school.Class
				unmarshalBody(t, resp, &classes)
				require.Len(t, classes, 1)
				assert.Equal(t, anaClass.ID, classes[0].ID)
			},
		},
		{
			name:     "create schedule",
			method:   http.MethodPost,
			path:     fmt.Sprintf("/v1/classes/%d/schedules", anaClass.ID),
			body:     school.NewSchedule{Weekday: 2, StartTime: "18:00", EndTime: "19:30", Room: "Sala 3"},
			token:    directorToken,
			wantCode: http.StatusCreated,
			extra: func(t *testing.T, resp *httptest.ResponseRecorder) {
				var sch school.Schedule
				unmarshalBody(t, resp, &sch)
				assert.Equal(t, anaClass.ID, sch.ClassID)
				scheduleID = sch.ID
			},
		},
		{
			name:     "schedule slot must end after it starts",
			method:   http.MethodPost,
			path:     fmt.Sprintf("/v1/classes/%d/schedules", anaClass.ID),
			body:     school.NewSchedule{Weekday: 2, StartTime: "19:30", EndTime: "18:00"},
			token:    directorToken,
			wantCode: http.StatusBadRequest,
		},
		{
			name:     "list schedules",
			method:   http.MethodGet,
			path:     fmt.Sprintf("/v1/classes/%d/schedules", anaClass.ID),
			token:    anaToken,
			wantCode: http.StatusOK,
			extra: func(t *testing.T, resp *httptest.ResponseRecorder) {
				var schedules []school.Schedule
				unmarshalBody(t, resp, &schedules)
				assert.Len(t, schedules, 1)
			},
		},
		{
			name:     "delete schedule",
			method:   http.MethodDelete,
			pathFn:   func() string { return fmt.Sprintf("/v1/schedules/%d", scheduleID) },
			token:    directorToken,
			wantCode: http.StatusNoContent,
		},
		{
			name:     "delete deactivates",
			method:   http.MethodDelete,
			path:     fmt.Sprintf("/v1/classes/%d", biaClass.ID),
			token:    directorToken,
			wantCode: http.StatusNoContent,
		},
		{
			name:     "record survives deletion",
			method:   http.MethodGet,
			path:     fmt.Sprintf("/v1/classes/%d", biaClass.ID),
			token:    directorToken,
			wantCode: http.StatusOK,
			extra: func(t *testing.T, resp *httptest.ResponseRecorder) {
				var class school.Class
				unmarshalBody(t, resp, &class)
				assert.False(t, class.IsActive)
			},
		},
	})
}

func TestEnrollmentAPI(t *testing.T) {
	env := newTestEnv(t)

	teacher := env.createTeacher(t, "Ana Silva", "ana@test.com", "52998224725")
	class := env.createClass(t, "Advanced A", null.IntFrom(teacher.ID))
	student := env.createStudent(t, "Joao Pedro", "11144477735")
	dropout := env.createStudent(t, "Maria Clara", "16899535009")
	require.NoError(t, env.schoolSvc.DeleteStudent(context.Background(), env.director, dropout.ID))

	directorToken := env.token(t, env.directorUser(t))

	var enrollmentID int

	env.runHTTPTests(t, []httpTest{
		{
			name:     "enroll",
			method:   http.MethodPost,
			path:     "/v1/enrollments",
			body:     school.NewEnrollment{StudentID: student.ID, ClassID: class.ID},
			token:    directorToken,
			wantCode: http.StatusCreated,
			extra: func(t *testing.T, resp *httptest.ResponseRecorder) {
				var enr school.Enrollment
				unmarshalBody(t, resp, &enr)
				assert.True(t, enr.IsActive)
				enrollmentID = enr.ID
			},
		},
		{
			name:     "enrolling twice conflicts",
			method:   http.MethodPost,
			path:     "/v1/enrollments",
			body:     school.NewEnrollment{StudentID: student.ID, ClassID: class.ID},
			token:    directorToken,
			wantCode: http.StatusConflict,
		},
		{
			name:     "inactive students cannot enroll",
			method:   http.MethodPost,
			path:     "/v1/enrollments",
			body:     school.NewEnrollment{StudentID: dropout.ID, ClassID: class.ID},
			token:    directorToken,
			wantCode: http.StatusBadRequest,
		},
		{
			name:     "list",
			method:   http.MethodGet,
			path:     "/v1/enrollments",
			token:    directorToken,
			wantCode: http.StatusOK,
			extra: func(t *testing.T, resp *httptest.ResponseRecorder) {
				var enrollments []school.Enrollment
				unmarshalBody(t, resp, &enrollments)
				assert.Len(t, enrollments, 1)
			},
		},
		{
			name:     "unenroll",
			method:   http.MethodDelete,
			pathFn:   func() string { return fmt.Sprintf("/v1/enrollments/%d", enrollmentID) },
			token:    directorToken,
			wantCode: http.StatusNoContent,
		},
	})
}

func TestStatsAPI(t *testing.T) {
	env := newTestEnv(t)

	teacher := env.createTeacher(t, "Ana Silva", "ana@test.com", "52998224725")
	class := env.createClass(t, "Advanced A", null.IntFrom(teacher.ID))
	student := env.createStudent(t, "Joao Pedro", "11144477735")
	env.enroll(t, student.ID, class.ID)

	env.runHTTPTests(t, []httpTest{
		{
			name:     "dashboard",
			method:   http.MethodGet,
			path:     "/v1/stats",
			token:    env.token(t, env.directorUser(t)),
			wantCode: http.StatusOK,
			wantData: `{"active_classes": 1, "active_teachers": 1, "active_students": 1, "lessons_today": 0}`,
		},
		{
			name:     "forbidden for teachers",
			method:   http.MethodGet,
			path:     "/v1/stats",
			token:    env.token(t, env.teacherUser(t, teacher)),
			wantCode: http.StatusForbidden,
			wantData: `{"error": "permission denied"}`,
		},
	})
}

func TestExportAttendanceAPI(t *testing.T) {
	env := newTestEnv(t)

	ana := env.createTeacher(t, "Ana Silva", "ana@test.com", "52998224725")
	bia := env.createTeacher(t, "Bia Rocha", "bia@test.com", "11144477735")
	class := env.createClass(t, "Advanced A", null.IntFrom(ana.ID))
	student := env.createStudent(t, "Joao Pedro", "16899535009")
	env.enroll(t, student.ID, class.ID)

	_, err := env.academicSvc.ReconcileAttendance(context.Background(), env.director, academic.AttendanceSheet{
		ClassID: class.ID,
		Date:    mustDate(t, "2026-03-02"),
		Records: []academic.AttendanceRecord{{StudentID: student.ID, Status: academic.AttendancePresent}},
	})
	require.NoError(t, err)

	t.Run("export", func(t *testing.T) {
		resp := env.do(t, http.MethodGet, fmt.Sprintf("/v1/classes/%d/attendance.xlsx", class.ID), nil, env.token(t, env.teacherUser(t, ana)))
		require.Equal(t, http.StatusOK, resp.Code, resp.Body.String())
		assert.Equal(t, xlsxContentType, resp.Header().Get("Content-Type"))
		assert.Contains(t, resp.Header().Get("Content-Disposition"), ".xlsx")
		assert.NotZero(t, resp.Body.Len())
	})

	t.Run("scoped to the owning teacher", func(t *testing.T) {
		resp := env.do(t, http.MethodGet, fmt.Sprintf("/v1/classes/%d/attendance.xlsx", class.ID), nil, env.token(t, env.teacherUser(t, bia)))
		require.Equal(t, http.StatusForbidden, resp.Code, resp.Body.String())
	})
}
