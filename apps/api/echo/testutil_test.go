package echoapi

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/labstack/echo/v4"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/volatiletech/null/v8"

	"github.com/thehouse/platform/core"
	"github.com/thehouse/platform/core/academic"
	"github.com/thehouse/platform/core/auth"
	"github.com/thehouse/platform/core/calendar"
	"github.com/thehouse/platform/core/school"
	"github.com/thehouse/platform/core/user"
	emailsvc "github.com/thehouse/platform/services/email"
	dummydb "github.com/thehouse/platform/storage/database/dummy"
)

type testLogger struct{}

func (testLogger) Enable(enabled bool)                   {}
func (testLogger) Debug(msg string, args ...interface{}) {}
func (testLogger) Info(msg string, args ...interface{})  {}
func (testLogger) Warn(msg string, args ...interface{})  {}
func (testLogger) Error(msg string, args ...interface{}) {}
func (testLogger) Fatal(msg string, args ...interface{}) {}

type testEnv struct {
	conf   *core.Config
	server Server

	usrSvc      user.ServiceInterface
	schoolSvc   school.ServiceInterface
	academicSvc academic.ServiceInterface
	calendarSvc calendar.ServiceInterface

	// director drives test fixture setup through the services
	director auth.Principal
}

func newTestEnv(t *testing.T) *testEnv {
	t.Helper()

	db, err := dummydb.Open()
	require.NoError(t, err)

	conf := &core.Config{
		Env:             "TEST",
		TestMode:        true,
		AppName:         "The House",
		SecretKey:       []byte("s3cret"),
		FrontendBaseURL: "http://localhost:3000",
		Server: core.ServerConfig{
			JWTExpirationDelta:        time.Hour,
			JWTRefreshExpirationDelta: 4 * time.Hour,
		},
		PasswordResetTimeoutDelta: 3 * 24 * time.Hour,
	}

	usrRepo := dummydb.NewUserRepository(db)
	schoolRepo := dummydb.NewSchoolRepository(db, usrRepo)
	authz := auth.NewAuthorizer()

	usrSvc := user.NewService(conf, db, usrRepo, emailsvc.NewConsoleServiceMock(conf))
	schoolSvc := school.NewService(db, schoolRepo, usrRepo, authz)
	academicSvc := academic.NewService(db, dummydb.NewAcademicRepository(db, schoolRepo), authz)
	calendarSvc := calendar.NewService(db, dummydb.NewCalendarRepository(db), authz)

	validate, translator := core.NewValidator()
	user.RegisterValidators(validate, translator)
	school.RegisterValidators(validate, translator)

	env := &testEnv{
		conf:        conf,
		usrSvc:      usrSvc,
		schoolSvc:   schoolSvc,
		academicSvc: academicSvc,
		calendarSvc: calendarSvc,
	}
	env.server = NewServer(ServerDeps{
		Conf:           conf,
		Logger:         testLogger{},
		UserSvc:        usrSvc,
		SchoolSvc:      schoolSvc,
		AcademicSvc:    academicSvc,
		CalendarSvc:    calendarSvc,
		Validate:       validate,
		Translator:     translator,
		DisableReqLogs: true,
	})

	seed := env.createUser(t, "Head Director", "director@test.com", user.RoleDirector)
	env.director = auth.Principal{UserID: seed.ID, Role: user.RoleDirector}
	return env
}

const testPassword = "v3ryS3cret"

func (env *testEnv) createUser(t *testing.T, name, email string, role user.Role) user.User {
	t.Helper()
	usr, err := env.usrSvc.Create(context.Background(), user.NewUser{
		Name: name, Email: email, Role: role,
		Password: testPassword, PasswordConfirm: testPassword,
	})
	require.NoError(t, err)
	return usr
}

func (env *testEnv) createTeacher(t *testing.T, name, email, cpf string) school.Teacher {
	t.Helper()
	teacher, err := env.schoolSvc.CreateTeacher(context.Background(), env.director, school.NewTeacher{
		Name: name, Email: email, Password: testPassword, PasswordConfirm: testPassword, CPF: cpf,
	})
	require.NoError(t, err)
	return teacher
}

// token issues a signed JWT the way login does, teacher scoping included.
func (env *testEnv) token(t *testing.T, usr user.User) string {
	t.Helper()

	teacherID := null.Int{}
	if usr.Role == user.RoleTeacher {
		teacher, err := env.schoolSvc.GetTeacherByUser(context.Background(), usr.ID)
		require.NoError(t, err)
		teacherID = null.IntFrom(teacher.ID)
	}
	token, err := GenerateToken(env.conf, GetUserClaims(env.conf, usr, teacherID))
	require.NoError(t, err)
	return token
}

func (env *testEnv) createStudent(t *testing.T, name, cpf string) school.Student {
	t.Helper()
	student, err := env.schoolSvc.CreateStudent(context.Background(), env.director, school.NewStudent{Name: name, CPF: cpf})
	require.NoError(t, err)
	return student
}

func (env *testEnv) createClass(t *testing.T, name string, teacherID null.Int) school.Class {
	t.Helper()
	class, err := env.schoolSvc.CreateClass(context.Background(), env.director, school.NewClass{Name: name, TeacherID: teacherID})
	require.NoError(t, err)
	return class
}

func (env *testEnv) enroll(t *testing.T, studentID, classID int) school.Enrollment {
	t.Helper()
	enr, err := env.schoolSvc.Enroll(context.Background(), env.director, school.NewEnrollment{StudentID: studentID, ClassID: classID})
	require.NoError(t, err)
	return enr
}

func (env *testEnv) teacherUser(t *testing.T, teacher school.Teacher) user.User {
	t.Helper()
	usr, err := env.usrSvc.GetByID(context.Background(), teacher.UserID)
	require.NoError(t, err)
	return usr
}

func (env *testEnv) directorUser(t *testing.T) user.User {
	t.Helper()
	usr, err := env.usrSvc.GetByID(context.Background(), env.director.UserID)
	require.NoError(t, err)
	return usr
}

func mustDate(t *testing.T, value string) time.Time {
	t.Helper()
	date, err := time.Parse("2006-01-02", value)
	require.NoError(t, err)
	return date
}

type httpTest struct {
	name     string
	method   string
	path     string
	pathFn   func() string // for paths built from IDs captured by earlier subtests
	body     interface{}
	token    string
	wantCode int
	wantData string // exact JSON; leave empty to skip the body check
	extra    func(t *testing.T, resp *httptest.ResponseRecorder)
}

func (env *testEnv) runHTTPTests(t *testing.T, tests []httpTest) {
	t.Helper()
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			path := tt.path
			if tt.pathFn != nil {
				path = tt.pathFn()
			}
			resp := env.do(t, tt.method, path, tt.body, tt.token)
			require.Equal(t, tt.wantCode, resp.Code, resp.Body.String())
			if tt.wantData != "" {
				assert.JSONEq(t, tt.wantData, resp.Body.String())
			}
			if tt.extra != nil {
				tt.extra(t, resp)
			}
		})
	}
}

func (env *testEnv) do(t *testing.T, method, path string, body interface{}, token string) *httptest.ResponseRecorder {
	t.Helper()

	var reqBody io.Reader
	if body != nil {
		raw, err := json.Marshal(body)
		require.NoError(t, err)
		reqBody = bytes.NewReader(raw)
	}
	req := httptest.NewRequest(method, path, reqBody)
	req.Header.Set(echo.HeaderContentType, echo.MIMEApplicationJSON)
	if token != "" {
		req.Header.Set(echo.HeaderAuthorization, "Bearer "+token)
	}
	resp := httptest.NewRecorder()
	env.server.ServeHTTP(resp, req)
	return resp
}

func unmarshalBody(t *testing.T, resp *httptest.ResponseRecorder, dst interface{}) {
	t.Helper()
	require.NoError(t, json.Unmarshal(resp.Body.Bytes(), dst))
}
