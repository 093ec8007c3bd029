package sqlxrepos

import (
	"context"
	"database/sql"
	"strconv"
	"time"

	"github.com/jmoiron/sqlx"
	"github.com/pkg/errors"
	"github.com/volatiletech/null/v8"

	"github.com/thehouse/platform/core"
	"github.com/thehouse/platform/core/academic"
)

const (
	lessonColumns     = "id, class_id, date, content, notes, created_at, updated_at"
	attendanceColumns = "id, lesson_id, student_id, status, note, created_at"
	assessmentColumns = "id, lesson_id, student_id, type, grade, max_grade, weight, note, assessed_on, created_at, updated_at"
)

type academicRepository struct {
	db *sqlx.DB
}

var _ academic.Repository = (*academicRepository)(nil) // interface compliance check

func NewAcademicRepository(db *sqlx.DB) *academicRepository {
	return &academicRepository{db: db}
}

// --- lessons ---

func scanLesson(row rowScanner) (academic.Lesson, error) {
	var l academic.Lesson
	err := row.Scan(&l.ID, &l.ClassID, &l.Date, &l.Content, &l.Notes, &l.CreatedAt, &l.UpdatedAt)
	return l, err
}

func (repo academicRepository) CreateLesson(ctx context.Context, l academic.Lesson, exec ...core.DBExecutor) (academic.Lesson, error) {
	err := getExec(repo.db, exec).QueryRowContext(ctx,
		`INSERT INTO lessons (class_id, date, content, notes, created_at, updated_at)
		 VALUES ($1, $2, $3, $4, $5, $6)
		 RETURNING id`,
		l.ClassID, l.Date.Format("2006-01-02"), l.Content, l.Notes, l.CreatedAt, l.UpdatedAt,
	).Scan(&l.ID)
	if err != nil {
		if domainErr, ok := uniqueViolation(err, map[string]error{"lessons_class_date_key": academic.ErrDuplicateLesson}); ok {
			return academic.Lesson{}, domainErr
		}
		return academic.Lesson{}, errors.Wrap(err, "inserting lesson")
	}
	return l, nil
}

func (repo academicRepository) GetLesson(ctx context.Context, id int, exec ...core.DBExecutor) (academic.Lesson, error) {
	l, err := scanLesson(getExec(repo.db, exec).QueryRowContext(ctx,
		`SELECT `+lessonColumns+` FROM lessons WHERE id = $1`, id))
	if err != nil {
		if err == sql.ErrNoRows {
			return academic.Lesson{}, academic.ErrLessonNotFound
		}
		return academic.Lesson{}, errors.Wrap(err, "getting lesson")
	}
	return l, nil
}

func (repo academicRepository) GetLessonByClassDate(ctx context.Context, classID int, date time.Time, exec ...core.DBExecutor) (academic.Lesson, error) {
	l, err := scanLesson(getExec(repo.db, exec).QueryRowContext(ctx,
		`SELECT `+lessonColumns+` FROM lessons WHERE class_id = $1 AND date = $2`,
		classID, date.Format("2006-01-02")))
	if err != nil {
		if err == sql.ErrNoRows {
			return academic.Lesson{}, academic.ErrLessonNotFound
		}
		return academic.Lesson{}, errors.Wrap(err, "getting lesson by class and date")
	}
	return l, nil
}

func (repo academicRepository) UpdateLesson(ctx context.Context, l academic.Lesson, exec ...core.DBExecutor) (academic.Lesson, error) {
	updated, err := scanLesson(getExec(repo.db, exec).QueryRowContext(ctx,
		`UPDATE lessons SET content = $2, notes = $3, updated_at = $4
		 WHERE id = $1
		 RETURNING `+lessonColumns,
		l.ID, l.Content, l.Notes, l.UpdatedAt))
	if err != nil {
		if err == sql.ErrNoRows {
			return academic.Lesson{}, academic.ErrLessonNotFound
		}
		return academic.Lesson{}, errors.Wrap(err, "updating lesson")
	}
	return updated, nil
}

func (repo academicRepository) DeleteLesson(ctx context.Context, id int, exec ...core.DBExecutor) error {
	res, err := getExec(repo.db, exec).ExecContext(ctx, `DELETE FROM lessons WHERE id = $1`, id)
	if err != nil {
		return errors.Wrap(err, "deleting lesson")
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return academic.ErrLessonNotFound
	}
	return nil
}

func (repo academicRepository) QueryLessons(ctx context.Context, filter *academic.LessonQueryFilter, ordering []core.DBOrdering, exec ...core.DBExecutor) ([]academic.Lesson, error) {
	query := `SELECT ` + lessonColumns + ` FROM lessons`
	var (
		where []string
		args  []interface{}
	)
	arg := func(val interface{}) string {
		args = append(args, val)
		return "$" + strconv.Itoa(len(args))
	}

	if filter != nil {
		if filter.ClassID.Valid {
			where = append(where, "class_id = "+arg(filter.ClassID.Int))
		}
		if !filter.DateFrom.IsZero() {
			where = append(where, "date >= "+arg(filter.DateFrom.Format("2006-01-02")))
		}
		if !filter.DateTo.IsZero() {
			where = append(where, "date <= "+arg(filter.DateTo.Format("2006-01-02")))
		}
		if teacherID := filter.TeacherID(); teacherID.Valid {
			where = append(where, `class_id IN (SELECT id FROM classes WHERE teacher_id = `+arg(teacherID.Int)+`)`)
		}
	}
	if len(where) > 0 {
		query += " WHERE " + joinAnd(where)
	}
	query += orderBy(ordering, "date DESC")

	lessons, err := selectAll(ctx, getExec(repo.db, exec), scanLesson, query, args...)
	if err != nil {
		return nil, errors.Wrap(err, "querying lessons")
	}
	return lessons, nil
}

func (repo academicRepository) GetLessonOwner(ctx context.Context, lessonID int, exec ...core.DBExecutor) (null.Int, error) {
	var ownerID null.Int
	err := getExec(repo.db, exec).QueryRowContext(ctx,
		`SELECT t.user_id FROM lessons l
		 JOIN classes c ON c.id = l.class_id
		 LEFT JOIN teachers t ON t.id = c.teacher_id
		 WHERE l.id = $1`, lessonID,
	).Scan(&ownerID)
	if err != nil {
		if err == sql.ErrNoRows {
			return null.Int{}, academic.ErrLessonNotFound
		}
		return null.Int{}, errors.Wrap(err, "resolving lesson owner")
	}
	return ownerID, nil
}

// --- attendance ---

func (repo academicRepository) DeleteLessonAttendance(ctx context.Context, lessonID int, exec ...core.DBExecutor) (int64, error) {
	res, err := getExec(repo.db, exec).ExecContext(ctx, `DELETE FROM attendance WHERE lesson_id = $1`, lessonID)
	if err != nil {
		return 0, errors.Wrap(err, "deleting lesson attendance")
	}
	return res.RowsAffected()
}

func (repo academicRepository) CreateAttendance(ctx context.Context, a academic.Attendance, exec ...core.DBExecutor) (academic.Attendance, error) {
	err := getExec(repo.db, exec).QueryRowContext(ctx,
		`INSERT INTO attendance (lesson_id, student_id, status, note, created_at)
		 VALUES ($1, $2, $3, $4, $5)
		 RETURNING id`,
		a.LessonID, a.StudentID, a.Status, a.Note, a.CreatedAt,
	).Scan(&a.ID)
	if err != nil {
		return academic.Attendance{}, errors.Wrap(err, "inserting attendance")
	}
	return a, nil
}

func scanAttendance(row rowScanner) (academic.Attendance, error) {
	var a academic.Attendance
	err := row.Scan(&a.ID, &a.LessonID, &a.StudentID, &a.Status, &a.Note, &a.CreatedAt)
	return a, err
}

func (repo academicRepository) QueryAttendance(ctx context.Context, lessonID int, exec ...core.DBExecutor) ([]academic.Attendance, error) {
	rows, err := selectAll(ctx, getExec(repo.db, exec), scanAttendance,
		`SELECT `+attendanceColumns+` FROM attendance WHERE lesson_id = $1 ORDER BY student_id ASC`, lessonID)
	if err != nil {
		return nil, errors.Wrap(err, "querying attendance")
	}
	return rows, nil
}

func (repo academicRepository) ActiveEnrollmentExists(ctx context.Context, studentID, classID int, exec ...core.DBExecutor) (bool, error) {
	var exists bool
	err := getExec(repo.db, exec).QueryRowContext(ctx,
		`SELECT EXISTS (SELECT 1 FROM enrollments WHERE student_id = $1 AND class_id = $2 AND is_active)`,
		studentID, classID,
	).Scan(&exists)
	if err != nil {
		return false, errors.Wrap(err, "checking active enrollment")
	}
	return exists, nil
}

// --- assessments ---

func scanAssessment(row rowScanner) (academic.Assessment, error) {
	var a academic.Assessment
	err := row.Scan(
		&a.ID, &a.LessonID, &a.StudentID, &a.Type, &a.Grade, &a.MaxGrade,
		&a.Weight, &a.Note, &a.AssessedOn, &a.CreatedAt, &a.UpdatedAt,
	)
	return a, err
}

func (repo academicRepository) CreateAssessment(ctx context.Context, a academic.Assessment, exec ...core.DBExecutor) (academic.Assessment, error) {
	err := getExec(repo.db, exec).QueryRowContext(ctx,
		`INSERT INTO assessments (lesson_id, student_id, type, grade, max_grade, weight, note, assessed_on, created_at, updated_at)
		 VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)
		 RETURNING id`,
		a.LessonID, a.StudentID, a.Type, a.Grade, a.MaxGrade, a.Weight, a.Note, a.AssessedOn, a.CreatedAt, a.UpdatedAt,
	).Scan(&a.ID)
	if err != nil {
		if domainErr, ok := uniqueViolation(err, map[string]error{"assessments_lesson_student_type_key": academic.ErrDuplicateAssessment}); ok {
			return academic.Assessment{}, domainErr
		}
		return academic.Assessment{}, errors.Wrap(err, "inserting assessment")
	}
	return a, nil
}

func (repo academicRepository) GetAssessment(ctx context.Context, id int, exec ...core.DBExecutor) (academic.Assessment, error) {
	a, err := scanAssessment(getExec(repo.db, exec).QueryRowContext(ctx,
		`SELECT `+assessmentColumns+` FROM assessments WHERE id = $1`, id))
	if err != nil {
		if err == sql.ErrNoRows {
			return academic.Assessment{}, academic.ErrAssessmentNotFound
		}
		return academic.Assessment{}, errors.Wrap(err, "getting assessment")
	}
	return a, nil
}

func (repo academicRepository) UpdateAssessment(ctx context.Context, a academic.Assessment, exec ...core.DBExecutor) (academic.Assessment, error) {
	updated, err := scanAssessment(getExec(repo.db, exec).QueryRowContext(ctx,
		`UPDATE assessments SET
			type = $2, grade = $3, max_grade = $4, weight = $5, note = $6,
			assessed_on = $7, updated_at = $8
		 WHERE id = $1
		 RETURNING `+assessmentColumns,
		a.ID, a.Type, a.Grade, a.MaxGrade, a.Weight, a.Note, a.AssessedOn, a.UpdatedAt))
	if err != nil {
		if err == sql.ErrNoRows {
			return academic.Assessment{}, academic.ErrAssessmentNotFound
		}
		if domainErr, ok := uniqueViolation(err, map[string]error{"assessments_lesson_student_type_key": academic.ErrDuplicateAssessment}); ok {
			return academic.Assessment{}, domainErr
		}
		return academic.Assessment{}, errors.Wrap(err, "updating assessment")
	}
	return updated, nil
}

func (repo academicRepository) DeleteAssessment(ctx context.Context, id int, exec ...core.DBExecutor) error {
	res, err := getExec(repo.db, exec).ExecContext(ctx, `DELETE FROM assessments WHERE id = $1`, id)
	if err != nil {
		return errors.Wrap(err, "deleting assessment")
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return academic.ErrAssessmentNotFound
	}
	return nil
}

func (repo academicRepository) QueryAssessments(ctx context.Context, filter *academic.AssessmentQueryFilter, ordering []core.DBOrdering, exec ...core.DBExecutor) ([]academic.Assessment, error) {
	query := `SELECT ` + assessmentColumns + ` FROM assessments`
	var (
		where []string
		args  []interface{}
	)
	arg := func(val interface{}) string {
		args = append(args, val)
		return "$" + strconv.Itoa(len(args))
	}

	if filter != nil {
		if filter.LessonID.Valid {
			where = append(where, "lesson_id = "+arg(filter.LessonID.Int))
		}
		if filter.StudentID.Valid {
			where = append(where, "student_id = "+arg(filter.StudentID.Int))
		}
		if filter.ClassID.Valid {
			where = append(where, `lesson_id IN (SELECT id FROM lessons WHERE class_id = `+arg(filter.ClassID.Int)+`)`)
		}
		if teacherID := filter.TeacherID(); teacherID.Valid {
			where = append(where, `lesson_id IN (
				SELECT l.id FROM lessons l
				JOIN classes c ON c.id = l.class_id
				WHERE c.teacher_id = `+arg(teacherID.Int)+`)`)
		}
	}
	if len(where) > 0 {
		query += " WHERE " + joinAnd(where)
	}
	query += orderBy(ordering, "created_at DESC")

	assessments, err := selectAll(ctx, getExec(repo.db, exec), scanAssessment, query, args...)
	if err != nil {
		return nil, errors.Wrap(err, "querying assessments")
	}
	return assessments, nil
}

func (repo academicRepository) GetAssessmentOwner(ctx context.Context, assessmentID int, exec ...core.DBExecutor) (null.Int, error) {
	var ownerID null.Int
	err := getExec(repo.db, exec).QueryRowContext(ctx,
		`SELECT t.user_id FROM assessments a
		 JOIN lessons l ON l.id = a.lesson_id
		 JOIN classes c ON c.id = l.class_id
		 LEFT JOIN teachers t ON t.id = c.teacher_id
		 WHERE a.id = $1`, assessmentID,
	).Scan(&ownerID)
	if err != nil {
		if err == sql.ErrNoRows {
			return null.Int{}, academic.ErrAssessmentNotFound
		}
		return null.Int{}, errors.Wrap(err, "resolving assessment owner")
	}
	return ownerID, nil
}
