package school_test

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/volatiletech/null/v8"

	"github.com/thehouse/platform/core/auth"
	"github.com/thehouse/platform/core/school"
	"github.com/thehouse/platform/core/user"
	dummydb "github.com/thehouse/platform/storage/database/dummy"
)

type schoolFixture struct {
	svc     *school.Service
	usrRepo user.Repository

	director auth.Principal
}

func newSchoolFixture(t *testing.T) *schoolFixture {
	t.Helper()

	db, err := dummydb.Open()
	require.NoError(t, err)

	usrRepo := dummydb.NewUserRepository(db)
	repo := dummydb.NewSchoolRepository(db, usrRepo)
	svc := school.NewService(db, repo, usrRepo, auth.NewAuthorizer())
	return &schoolFixture{
		svc:      svc,
		usrRepo:  usrRepo,
		director: auth.Principal{UserID: 1000, Role: user.RoleDirector},
	}
}

func (f *schoolFixture) createTeacher(t *testing.T, name, email, cpf string) school.Teacher {
	t.Helper()
	teacher, err := f.svc.CreateTeacher(context.Background(), f.director, school.NewTeacher{
		Name: name, Email: email, Password: "v3ryS3cret", PasswordConfirm: "v3ryS3cret",
		CPF: cpf, Specialty: "English",
	})
	require.NoError(t, err)
	return teacher
}

func (f *schoolFixture) principalFor(teacher school.Teacher) auth.Principal {
	return auth.Principal{UserID: teacher.UserID, Role: user.RoleTeacher, TeacherID: null.IntFrom(teacher.ID)}
}

func (f *schoolFixture) createStudent(t *testing.T, name, cpf string) school.Student {
	t.Helper()
	s, err := f.svc.CreateStudent(context.Background(), f.director, school.NewStudent{Name: name, CPF: cpf})
	require.NoError(t, err)
	return s
}

func (f *schoolFixture) createClass(t *testing.T, name string, teacherID null.Int) school.Class {
	t.Helper()
	c, err := f.svc.CreateClass(context.Background(), f.director, school.NewClass{Name: name, TeacherID: teacherID})
	require.NoError(t, err)
	return c
}

func (f *schoolFixture) enroll(t *testing.T, studentID, classID int) school.Enrollment {
	t.Helper()
	enr, err := f.svc.Enroll(context.Background(), f.director, school.NewEnrollment{StudentID: studentID, ClassID: classID})
	require.NoError(t, err)
	return enr
}

func TestCreateTeacherProvisionsUser(t *testing.T) {
	f := newSchoolFixture(t)
	ctx := context.Background()

	teacher := f.createTeacher(t, "Ana Silva", "ana@test.com", "52998224725")
	assert.NotZero(t, teacher.ID)
	assert.Equal(t, "Ana Silva", teacher.Name)

	usr, err := f.usrRepo.GetUser(ctx, user.GetFilter{ID: teacher.UserID})
	require.NoError(t, err)
	assert.Equal(t, user.RoleTeacher, usr.Role)
	assert.True(t, usr.IsActive)
	assert.NoError(t, usr.CheckPassword("v3ryS3cret"))

	byUser, err := f.svc.GetTeacherByUser(ctx, teacher.UserID)
	require.NoError(t, err)
	assert.Equal(t, teacher.ID, byUser.ID)

	// teachers cannot provision teachers
	_, err = f.svc.CreateTeacher(ctx, f.principalFor(teacher), school.NewTeacher{
		Name: "Other", Email: "other@test.com", Password: "v3ryS3cret", PasswordConfirm: "v3ryS3cret", CPF: "11144477735",
	})
	assert.True(t, auth.IsDenied(err))
}

func TestDeleteTeacherReleasesClasses(t *testing.T) {
	f := newSchoolFixture(t)
	ctx := context.Background()

	teacher := f.createTeacher(t, "Ana Silva", "ana@test.com", "52998224725")
	c := f.createClass(t, "Advanced A", null.IntFrom(teacher.ID))

	require.NoError(t, f.svc.DeleteTeacher(ctx, f.director, teacher.ID))

	// the class survives teacherless
	got, err := f.svc.GetClass(ctx, f.director, c.ID)
	require.NoError(t, err)
	assert.False(t, got.TeacherID.Valid)
	assert.True(t, got.IsActive)

	// teacher record and user account are both gone
	_, err = f.svc.GetTeacher(ctx, f.director, teacher.ID)
	assert.ErrorIs(t, err, school.ErrTeacherNotFound)
	_, err = f.usrRepo.GetUser(ctx, user.GetFilter{ID: teacher.UserID})
	assert.ErrorIs(t, err, user.ErrNotFound)
}

func TestStudentSoftDelete(t *testing.T) {
	f := newSchoolFixture(t)
	ctx := context.Background()

	s := f.createStudent(t, "Bruno Costa", "52998224725")
	require.NoError(t, f.svc.DeleteStudent(ctx, f.director, s.ID))

	got, err := f.svc.GetStudent(ctx, f.director, s.ID)
	require.NoError(t, err)
	assert.False(t, got.IsActive)
}

func TestClassDefaultsAndSoftDelete(t *testing.T) {
	f := newSchoolFixture(t)
	ctx := context.Background()

	c := f.createClass(t, "Basic A", null.Int{})
	assert.Equal(t, 15, c.Capacity)
	assert.True(t, c.IsActive)

	require.NoError(t, f.svc.DeleteClass(ctx, f.director, c.ID))
	got, err := f.svc.GetClass(ctx, f.director, c.ID)
	require.NoError(t, err)
	assert.False(t, got.IsActive)
}

func TestEnrollmentLifecycle(t *testing.T) {
	f := newSchoolFixture(t)
	ctx := context.Background()

	s := f.createStudent(t, "Bruno Costa", "52998224725")
	c := f.createClass(t, "Basic A", null.Int{})

	enr := f.enroll(t, s.ID, c.ID)
	assert.True(t, enr.IsActive)

	// double enrollment is rejected while the row is active
	_, err := f.svc.Enroll(ctx, f.director, school.NewEnrollment{StudentID: s.ID, ClassID: c.ID})
	assert.ErrorIs(t, err, school.ErrAlreadyEnrolled)

	require.NoError(t, f.svc.Unenroll(ctx, f.director, enr.ID))

	// re-enrolling reactivates the same row instead of inserting a new one
	again, err := f.svc.Enroll(ctx, f.director, school.NewEnrollment{StudentID: s.ID, ClassID: c.ID})
	require.NoError(t, err)
	assert.Equal(t, enr.ID, again.ID)
	assert.True(t, again.IsActive)

	enrs, err := f.svc.QueryEnrollments(ctx, f.director, &school.EnrollmentQueryFilter{StudentID: null.IntFrom(s.ID)}, nil)
	require.NoError(t, err)
	assert.Len(t, enrs, 1)
}

func TestEnrollmentPreconditions(t *testing.T) {
	f := newSchoolFixture(t)
	ctx := context.Background()

	s := f.createStudent(t, "Bruno Costa", "52998224725")
	c := f.createClass(t, "Basic A", null.Int{})

	require.NoError(t, f.svc.DeleteClass(ctx, f.director, c.ID))
	_, err := f.svc.Enroll(ctx, f.director, school.NewEnrollment{StudentID: s.ID, ClassID: c.ID})
	assert.ErrorIs(t, err, school.ErrClassInactive)

	c2 := f.createClass(t, "Basic B", null.Int{})
	require.NoError(t, f.svc.DeleteStudent(ctx, f.director, s.ID))
	_, err = f.svc.Enroll(ctx, f.director, school.NewEnrollment{StudentID: s.ID, ClassID: c2.ID})
	assert.ErrorIs(t, err, school.ErrStudentInactive)

	_, err = f.svc.Enroll(ctx, f.director, school.NewEnrollment{StudentID: 999, ClassID: c2.ID})
	assert.ErrorIs(t, err, school.ErrStudentNotFound)
}

func TestTeacherScopedQueries(t *testing.T) {
	f := newSchoolFixture(t)
	ctx := context.Background()

	mine := f.createTeacher(t, "Ana Silva", "ana@test.com", "52998224725")
	other := f.createTeacher(t, "Caio Souza", "caio@test.com", "11144477735")

	myClass := f.createClass(t, "Mine", null.IntFrom(mine.ID))
	otherClass := f.createClass(t, "Theirs", null.IntFrom(other.ID))

	myStudent := f.createStudent(t, "Bruno Costa", "16899535009")
	otherStudent := f.createStudent(t, "Dora Lima", "73051977004")
	f.enroll(t, myStudent.ID, myClass.ID)
	f.enroll(t, otherStudent.ID, otherClass.ID)

	p := f.principalFor(mine)

	classes, err := f.svc.QueryClasses(ctx, p, &school.ClassQueryFilter{}, nil)
	require.NoError(t, err)
	require.Len(t, classes, 1)
	assert.Equal(t, myClass.ID, classes[0].ID)

	students, err := f.svc.QueryStudents(ctx, p, &school.StudentQueryFilter{}, nil)
	require.NoError(t, err)
	require.Len(t, students, 1)
	assert.Equal(t, myStudent.ID, students[0].ID)

	// reads of another teacher's class are denied, own class allowed
	_, err = f.svc.GetClass(ctx, p, otherClass.ID)
	assert.True(t, auth.IsDenied(err))
	_, err = f.svc.GetClass(ctx, p, myClass.ID)
	assert.NoError(t, err)

	// a privileged role sees everything
	classes, err = f.svc.QueryClasses(ctx, f.director, &school.ClassQueryFilter{}, nil)
	require.NoError(t, err)
	assert.Len(t, classes, 2)
}

func TestSchedules(t *testing.T) {
	f := newSchoolFixture(t)
	ctx := context.Background()

	c := f.createClass(t, "Basic A", null.Int{})

	sch, err := f.svc.CreateSchedule(ctx, f.director, school.NewSchedule{
		ClassID: c.ID, Weekday: int(time.Monday), StartTime: "09:00", EndTime: "10:30", Room: "101",
	})
	require.NoError(t, err)

	_, err = f.svc.CreateSchedule(ctx, f.director, school.NewSchedule{
		ClassID: 999, Weekday: int(time.Monday), StartTime: "09:00", EndTime: "10:30",
	})
	assert.ErrorIs(t, err, school.ErrClassNotFound)

	schs, err := f.svc.QuerySchedules(ctx, f.director, c.ID)
	require.NoError(t, err)
	assert.Len(t, schs, 1)

	require.NoError(t, f.svc.DeleteSchedule(ctx, f.director, sch.ID))
	schs, err = f.svc.QuerySchedules(ctx, f.director, c.ID)
	require.NoError(t, err)
	assert.Empty(t, schs)
}

func TestGetStats(t *testing.T) {
	f := newSchoolFixture(t)
	ctx := context.Background()

	teacher := f.createTeacher(t, "Ana Silva", "ana@test.com", "52998224725")
	f.createClass(t, "Basic A", null.IntFrom(teacher.ID))
	f.createStudent(t, "Bruno Costa", "11144477735")

	stats, err := f.svc.GetStats(ctx, f.director)
	require.NoError(t, err)
	assert.Equal(t, 1, stats.ActiveClasses)
	assert.Equal(t, 1, stats.ActiveTeachers)
	assert.Equal(t, 1, stats.ActiveStudents)

	_, err = f.svc.GetStats(ctx, f.principalFor(teacher))
	assert.True(t, auth.IsDenied(err))

	_, err = f.svc.GetStats(ctx, auth.Principal{UserID: 5, Role: user.RoleAdmin})
	assert.True(t, auth.IsDenied(err))
}
