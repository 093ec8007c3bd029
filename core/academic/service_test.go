package academic_test

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/volatiletech/null/v8"

	"github.com/thehouse/platform/core"
	"github.com/thehouse/platform/core/academic"
	"github.com/thehouse/platform/core/auth"
	"github.com/thehouse/platform/core/school"
	"github.com/thehouse/platform/core/user"
	dummydb "github.com/thehouse/platform/storage/database/dummy"
)

type academicFixture struct {
	svc       *academic.Service
	schoolSvc *school.Service

	director auth.Principal
}

func newAcademicFixture(t *testing.T) *academicFixture {
	t.Helper()

	db, err := dummydb.Open()
	require.NoError(t, err)

	usrRepo := dummydb.NewUserRepository(db)
	schoolRepo := dummydb.NewSchoolRepository(db, usrRepo)
	authz := auth.NewAuthorizer()
	return &academicFixture{
		svc:       academic.NewService(db, dummydb.NewAcademicRepository(db, schoolRepo), authz),
		schoolSvc: school.NewService(db, schoolRepo, usrRepo, authz),
		director:  auth.Principal{UserID: 1000, Role: user.RoleDirector},
	}
}

// classWithStudents sets up a class and n enrolled students, returning the
// class and the student IDs.
func (f *academicFixture) classWithStudents(t *testing.T, teacherID null.Int, n int) (school.Class, []int) {
	t.Helper()
	ctx := context.Background()

	c, err := f.schoolSvc.CreateClass(ctx, f.director, school.NewClass{Name: "Basic A", TeacherID: teacherID})
	require.NoError(t, err)

	cpfs := []string{"52998224725", "11144477735", "16899535009", "73051977004"}
	ids := make([]int, 0, n)
	for i := 0; i < n; i++ {
		s, err := f.schoolSvc.CreateStudent(ctx, f.director, school.NewStudent{Name: "Student", CPF: cpfs[i]})
		require.NoError(t, err)
		_, err = f.schoolSvc.Enroll(ctx, f.director, school.NewEnrollment{StudentID: s.ID, ClassID: c.ID})
		require.NoError(t, err)
		ids = append(ids, s.ID)
	}
	return c, ids
}

func (f *academicFixture) createTeacher(t *testing.T, email, cpf string) (school.Teacher, auth.Principal) {
	t.Helper()
	teacher, err := f.schoolSvc.CreateTeacher(context.Background(), f.director, school.NewTeacher{
		Name: "Ana Silva", Email: email, Password: "v3ryS3cret", PasswordConfirm: "v3ryS3cret", CPF: cpf,
	})
	require.NoError(t, err)
	p := auth.Principal{UserID: teacher.UserID, Role: user.RoleTeacher, TeacherID: null.IntFrom(teacher.ID)}
	return teacher, p
}

func TestLessonLifecycle(t *testing.T) {
	f := newAcademicFixture(t)
	ctx := context.Background()

	c, _ := f.classWithStudents(t, null.Int{}, 0)
	date := time.Date(2026, time.March, 10, 0, 0, 0, 0, time.UTC)

	l, err := f.svc.CreateLesson(ctx, f.director, academic.NewLesson{
		ClassID: c.ID, Date: date, Content: null.StringFrom("Past simple"),
	})
	require.NoError(t, err)
	assert.NotZero(t, l.ID)

	// one lesson per (class, date)
	_, err = f.svc.CreateLesson(ctx, f.director, academic.NewLesson{ClassID: c.ID, Date: date})
	assert.ErrorIs(t, err, academic.ErrDuplicateLesson)

	updated, err := f.svc.UpdateLesson(ctx, f.director, l.ID, academic.UpdateLesson{
		Content: null.StringFrom("Past continuous"),
	})
	require.NoError(t, err)
	assert.Equal(t, "Past continuous", updated.Content.String)

	lessons, err := f.svc.QueryLessons(ctx, f.director, &academic.LessonQueryFilter{ClassID: null.IntFrom(c.ID)}, nil)
	require.NoError(t, err)
	assert.Len(t, lessons, 1)

	require.NoError(t, f.svc.DeleteLesson(ctx, f.director, l.ID))
	_, err = f.svc.GetLesson(ctx, f.director, l.ID)
	assert.ErrorIs(t, err, academic.ErrLessonNotFound)
}

func TestReconcileAttendance(t *testing.T) {
	f := newAcademicFixture(t)
	ctx := context.Background()

	c, studentIDs := f.classWithStudents(t, null.Int{}, 2)
	outsider, err := f.schoolSvc.CreateStudent(ctx, f.director, school.NewStudent{Name: "Outsider", CPF: "73051977004"})
	require.NoError(t, err)

	date := time.Date(2026, time.March, 10, 0, 0, 0, 0, time.UTC)
	sheet := academic.AttendanceSheet{
		ClassID: c.ID,
		Date:    date,
		Records: []academic.AttendanceRecord{
			{StudentID: studentIDs[0], Status: academic.AttendancePresent},
			{StudentID: studentIDs[1], Status: academic.AttendanceAbsent, Note: null.StringFrom("sick")},
			{StudentID: outsider.ID, Status: academic.AttendanceLate},
		},
		Notes: null.StringFrom("review session"),
	}

	res, err := f.svc.ReconcileAttendance(ctx, f.director, sheet)
	require.NoError(t, err)
	assert.NotZero(t, res.LessonID)
	assert.Equal(t, 3, res.Submitted)
	// the non-enrolled record is skipped, not failed
	assert.Equal(t, 2, res.Processed)

	rows, err := f.svc.QueryAttendance(ctx, f.director, res.LessonID)
	require.NoError(t, err)
	assert.Len(t, rows, 2)

	// resubmission replaces the roster on the same lesson, it never merges
	sheet.Records = sheet.Records[:1]
	res2, err := f.svc.ReconcileAttendance(ctx, f.director, sheet)
	require.NoError(t, err)
	assert.Equal(t, res.LessonID, res2.LessonID)
	assert.Equal(t, 1, res2.Processed)

	rows, err = f.svc.QueryAttendance(ctx, f.director, res.LessonID)
	require.NoError(t, err)
	require.Len(t, rows, 1)
	assert.Equal(t, studentIDs[0], rows[0].StudentID)

	// a session recorded without attendance clears the roster entirely
	sheet.WithoutAttendance = true
	res3, err := f.svc.ReconcileAttendance(ctx, f.director, sheet)
	require.NoError(t, err)
	assert.Equal(t, res.LessonID, res3.LessonID)
	assert.Zero(t, res3.Submitted)
	assert.Zero(t, res3.Processed)

	rows, err = f.svc.QueryAttendance(ctx, f.director, res.LessonID)
	require.NoError(t, err)
	assert.Empty(t, rows)
}

func TestReconcileAttendanceDuplicateStudent(t *testing.T) {
	f := newAcademicFixture(t)
	ctx := context.Background()

	c, studentIDs := f.classWithStudents(t, null.Int{}, 1)
	sheet := academic.AttendanceSheet{
		ClassID: c.ID,
		Date:    time.Date(2026, time.March, 10, 0, 0, 0, 0, time.UTC),
		Records: []academic.AttendanceRecord{
			{StudentID: studentIDs[0], Status: academic.AttendancePresent},
			{StudentID: studentIDs[0], Status: academic.AttendanceAbsent, Note: null.StringFrom("left early")},
		},
	}

	// a student listed twice yields a single row holding the last mark
	res, err := f.svc.ReconcileAttendance(ctx, f.director, sheet)
	require.NoError(t, err)
	assert.Equal(t, 2, res.Submitted)
	assert.Equal(t, 1, res.Processed)

	rows, err := f.svc.QueryAttendance(ctx, f.director, res.LessonID)
	require.NoError(t, err)
	require.Len(t, rows, 1)
	assert.Equal(t, academic.AttendanceAbsent, rows[0].Status)
	assert.Equal(t, "left early", rows[0].Note.String)
}

func TestReconcileAttendanceOwnership(t *testing.T) {
	f := newAcademicFixture(t)
	ctx := context.Background()

	mine, myPrincipal := f.createTeacher(t, "ana@test.com", "52998224725")
	_, otherPrincipal := f.createTeacher(t, "caio@test.com", "11144477735")

	c, studentIDs := f.classWithStudents(t, null.IntFrom(mine.ID), 1)
	date := time.Date(2026, time.March, 10, 0, 0, 0, 0, time.UTC)
	sheet := academic.AttendanceSheet{
		ClassID: c.ID, Date: date,
		Records: []academic.AttendanceRecord{{StudentID: studentIDs[0], Status: academic.AttendancePresent}},
	}

	_, err := f.svc.ReconcileAttendance(ctx, otherPrincipal, sheet)
	assert.True(t, auth.IsDenied(err))

	res, err := f.svc.ReconcileAttendance(ctx, myPrincipal, sheet)
	require.NoError(t, err)
	assert.Equal(t, 1, res.Processed)

	// scoped listing only surfaces the owner's lessons
	lessons, err := f.svc.QueryLessons(ctx, otherPrincipal, &academic.LessonQueryFilter{}, nil)
	require.NoError(t, err)
	assert.Empty(t, lessons)

	lessons, err = f.svc.QueryLessons(ctx, myPrincipal, &academic.LessonQueryFilter{}, nil)
	require.NoError(t, err)
	assert.Len(t, lessons, 1)
}

func TestAssessments(t *testing.T) {
	f := newAcademicFixture(t)
	ctx := context.Background()

	c, studentIDs := f.classWithStudents(t, null.Int{}, 1)
	date := time.Date(2026, time.March, 10, 0, 0, 0, 0, time.UTC)
	l, err := f.svc.CreateLesson(ctx, f.director, academic.NewLesson{ClassID: c.ID, Date: date})
	require.NoError(t, err)

	a, err := f.svc.CreateAssessment(ctx, f.director, academic.NewAssessment{
		LessonID: l.ID, StudentID: studentIDs[0], Type: "quiz", Grade: 7.5, MaxGrade: 10, Weight: 1,
	})
	require.NoError(t, err)
	assert.NotZero(t, a.ID)

	// one grade per (lesson, student, type)
	_, err = f.svc.CreateAssessment(ctx, f.director, academic.NewAssessment{
		LessonID: l.ID, StudentID: studentIDs[0], Type: "quiz", Grade: 9, MaxGrade: 10, Weight: 1,
	})
	assert.ErrorIs(t, err, academic.ErrDuplicateAssessment)

	newGrade := 9.0
	updated, err := f.svc.UpdateAssessment(ctx, f.director, a.ID, academic.UpdateAssessment{
		Type: "quiz", Grade: &newGrade,
	})
	require.NoError(t, err)
	assert.Equal(t, 9.0, updated.Grade)

	list, err := f.svc.QueryAssessments(ctx, f.director, &academic.AssessmentQueryFilter{StudentID: null.IntFrom(studentIDs[0])}, nil)
	require.NoError(t, err)
	assert.Len(t, list, 1)

	require.NoError(t, f.svc.DeleteAssessment(ctx, f.director, a.ID))
	_, err = f.svc.GetAssessment(ctx, f.director, a.ID)
	assert.ErrorIs(t, err, academic.ErrAssessmentNotFound)
}

func TestNewAssessmentValidate(t *testing.T) {
	validate, _ := core.NewValidator()

	na := academic.NewAssessment{LessonID: 1, StudentID: 1, Type: " quiz ", Grade: 7}
	require.NoError(t, na.Validate(validate))
	assert.Equal(t, "quiz", na.Type)
	assert.Equal(t, 10.0, na.MaxGrade)
	assert.Equal(t, 1.0, na.Weight)

	na = academic.NewAssessment{LessonID: 1, StudentID: 1, Type: "quiz", Grade: 12}
	err := na.Validate(validate)
	var vErr *core.ValidationError
	require.ErrorAs(t, err, &vErr)

	// a custom scale lifts the cap
	na = academic.NewAssessment{LessonID: 1, StudentID: 1, Type: "quiz", Grade: 12, MaxGrade: 20}
	assert.NoError(t, na.Validate(validate))
}

func TestUpdateAssessmentValidate(t *testing.T) {
	validate, _ := core.NewValidator()
	orig := academic.Assessment{ID: 1, Type: "quiz", Grade: 7, MaxGrade: 10, Weight: 1}

	// type backfills from the original
	ua := academic.UpdateAssessment{}
	require.NoError(t, ua.Validate(orig, validate))
	assert.Equal(t, "quiz", ua.Type)

	// raising the grade above the kept max fails
	grade := 12.0
	ua = academic.UpdateAssessment{Grade: &grade}
	err := ua.Validate(orig, validate)
	var vErr *core.ValidationError
	require.ErrorAs(t, err, &vErr)

	// unless the max moves with it
	maxGrade := 20.0
	ua = academic.UpdateAssessment{Grade: &grade, MaxGrade: &maxGrade}
	assert.NoError(t, ua.Validate(orig, validate))
}
