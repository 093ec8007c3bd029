package sqlxrepos

import (
	"context"
	"database/sql"
	"fmt"
	"strconv"
	"time"

	"github.com/jmoiron/sqlx"
	"github.com/pkg/errors"
	"github.com/volatiletech/null/v8"

	"github.com/thehouse/platform/core"
	"github.com/thehouse/platform/core/school"
	"github.com/thehouse/platform/core/user"
)

const (
	teacherColumns = "t.id, t.user_id, u.name, u.email, t.cpf, t.phone, t.specialty, t.hired_on, t.created_at, t.updated_at"
	studentColumns = "id, name, email, cpf, birth_date, phone, address, guardian_name, guardian_phone, is_active, created_at, updated_at"
	classColumns   = "id, name, description, level, teacher_id, capacity, starts_on, ends_on, is_active, created_at, updated_at"
)

type schoolRepository struct {
	db *sqlx.DB
}

var _ school.Repository = (*schoolRepository)(nil) // interface compliance check

func NewSchoolRepository(db *sqlx.DB) *schoolRepository {
	return &schoolRepository{db: db}
}

// --- teachers ---

func scanTeacher(row rowScanner) (school.Teacher, error) {
	var t school.Teacher
	err := row.Scan(
		&t.ID, &t.UserID, &t.Name, &t.Email, &t.CPF, &t.Phone, &t.Specialty,
		&t.HiredOn, &t.CreatedAt, &t.UpdatedAt,
	)
	return t, err
}

func (repo schoolRepository) CheckTeacherCPFUniqueness(ctx context.Context, cpf string, exec ...core.DBExecutor) error {
	var exists bool
	err := getExec(repo.db, exec).QueryRowContext(ctx,
		`SELECT EXISTS (SELECT 1 FROM teachers WHERE cpf = $1)`, cpf,
	).Scan(&exists)
	if err != nil {
		return errors.Wrap(err, "checking teacher CPF uniqueness")
	}
	if exists {
		return school.ErrCPFExists
	}
	return nil
}

func (repo schoolRepository) CreateTeacher(ctx context.Context, t school.Teacher, exec ...core.DBExecutor) (school.Teacher, error) {
	err := getExec(repo.db, exec).QueryRowContext(ctx,
		`INSERT INTO teachers (user_id, cpf, phone, specialty, hired_on, created_at, updated_at)
		 VALUES ($1, $2, $3, $4, $5, $6, $7)
		 RETURNING id`,
		t.UserID, t.CPF, t.Phone, t.Specialty, t.HiredOn, t.CreatedAt, t.UpdatedAt,
	).Scan(&t.ID)
	if err != nil {
		if domainErr, ok := uniqueViolation(err, map[string]error{"teachers_cpf_key": school.ErrCPFExists}); ok {
			return school.Teacher{}, domainErr
		}
		return school.Teacher{}, errors.Wrap(err, "inserting teacher")
	}
	return t, nil
}

func (repo schoolRepository) QueryTeachers(ctx context.Context, filter *school.TeacherQueryFilter, ordering []core.DBOrdering, exec ...core.DBExecutor) ([]school.Teacher, error) {
	query := `SELECT ` + teacherColumns + ` FROM teachers t JOIN users u ON u.id = t.user_id`
	var args []interface{}
	if filter != nil && filter.Search != "" {
		args = append(args, "%"+filter.Search+"%")
		query += ` WHERE u.name ILIKE $1 OR u.email ILIKE $1 OR t.cpf LIKE $1`
	}
	query += orderBy(ordering, "u.name ASC")

	teachers, err := selectAll(ctx, getExec(repo.db, exec), scanTeacher, query, args...)
	if err != nil {
		return nil, errors.Wrap(err, "querying teachers")
	}
	return teachers, nil
}

func (repo schoolRepository) GetTeacher(ctx context.Context, filter school.TeacherGetFilter, exec ...core.DBExecutor) (school.Teacher, error) {
	query := `SELECT ` + teacherColumns + ` FROM teachers t JOIN users u ON u.id = t.user_id WHERE `
	var arg interface{}
	switch {
	case filter.ID != 0:
		query += "t.id = $1"
		arg = filter.ID
	default:
		query += "t.user_id = $1"
		arg = filter.UserID
	}

	t, err := scanTeacher(getExec(repo.db, exec).QueryRowContext(ctx, query, arg))
	if err != nil {
		if err == sql.ErrNoRows {
			return school.Teacher{}, school.ErrTeacherNotFound
		}
		return school.Teacher{}, errors.Wrap(err, "getting teacher")
	}
	return t, nil
}

func (repo schoolRepository) UpdateTeacher(ctx context.Context, t school.Teacher, exec ...core.DBExecutor) (school.Teacher, error) {
	err := getExec(repo.db, exec).QueryRowContext(ctx,
		`UPDATE teachers SET phone = $2, specialty = $3, hired_on = $4, updated_at = $5
		 WHERE id = $1
		 RETURNING id, user_id, cpf, phone, specialty, hired_on, created_at, updated_at`,
		t.ID, t.Phone, t.Specialty, t.HiredOn, t.UpdatedAt,
	).Scan(&t.ID, &t.UserID, &t.CPF, &t.Phone, &t.Specialty, &t.HiredOn, &t.CreatedAt, &t.UpdatedAt)
	if err != nil {
		if err == sql.ErrNoRows {
			return school.Teacher{}, school.ErrTeacherNotFound
		}
		return school.Teacher{}, errors.Wrap(err, "updating teacher")
	}
	return t, nil
}

func (repo schoolRepository) DeleteTeacher(ctx context.Context, id int, exec ...core.DBExecutor) error {
	res, err := getExec(repo.db, exec).ExecContext(ctx, `DELETE FROM teachers WHERE id = $1`, id)
	if err != nil {
		return errors.Wrap(err, "deleting teacher")
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return school.ErrTeacherNotFound
	}
	return nil
}

func (repo schoolRepository) ReleaseTeacherClasses(ctx context.Context, teacherID int, exec ...core.DBExecutor) (int64, error) {
	res, err := getExec(repo.db, exec).ExecContext(ctx,
		`UPDATE classes SET teacher_id = NULL WHERE teacher_id = $1`, teacherID)
	if err != nil {
		return 0, errors.Wrap(err, "releasing teacher classes")
	}
	return res.RowsAffected()
}

// --- students ---

func scanStudent(row rowScanner) (school.Student, error) {
	var s school.Student
	err := row.Scan(
		&s.ID, &s.Name, &s.Email, &s.CPF, &s.BirthDate, &s.Phone, &s.Address,
		&s.GuardianName, &s.GuardianPhone, &s.IsActive, &s.CreatedAt, &s.UpdatedAt,
	)
	return s, err
}

func (repo schoolRepository) CheckStudentUniqueness(ctx context.Context, cpf string, email null.String, excludedStudents []school.Student, exec ...core.DBExecutor) error {
	var exists bool
	excluded := make([]int64, 0, len(excludedStudents))
	for _, s := range excludedStudents {
		excluded = append(excluded, int64(s.ID))
	}

	if cpf != "" {
		err := getExec(repo.db, exec).QueryRowContext(ctx,
			`SELECT EXISTS (SELECT 1 FROM students WHERE cpf = $1 AND id <> ALL($2))`,
			cpf, int64Array(excluded),
		).Scan(&exists)
		if err != nil {
			return errors.Wrap(err, "checking student CPF uniqueness")
		}
		if exists {
			return school.ErrCPFExists
		}
	}
	if email.Valid {
		err := getExec(repo.db, exec).QueryRowContext(ctx,
			`SELECT EXISTS (SELECT 1 FROM students WHERE email = $1 AND id <> ALL($2))`,
			email, int64Array(excluded),
		).Scan(&exists)
		if err != nil {
			return errors.Wrap(err, "checking student email uniqueness")
		}
		if exists {
			return user.ErrEmailExists
		}
	}
	return nil
}

func (repo schoolRepository) CreateStudent(ctx context.Context, s school.Student, exec ...core.DBExecutor) (school.Student, error) {
	err := getExec(repo.db, exec).QueryRowContext(ctx,
		`INSERT INTO students (name, email, cpf, birth_date, phone, address, guardian_name, guardian_phone, is_active, created_at, updated_at)
		 VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11)
		 RETURNING id`,
		s.Name, s.Email, s.CPF, s.BirthDate, s.Phone, s.Address, s.GuardianName, s.GuardianPhone, s.IsActive, s.CreatedAt, s.UpdatedAt,
	).Scan(&s.ID)
	if err != nil {
		if domainErr, ok := uniqueViolation(err, map[string]error{
			"students_cpf_key":   school.ErrCPFExists,
			"students_email_key": user.ErrEmailExists,
		}); ok {
			return school.Student{}, domainErr
		}
		return school.Student{}, errors.Wrap(err, "inserting student")
	}
	return s, nil
}

func (repo schoolRepository) QueryStudents(ctx context.Context, filter *school.StudentQueryFilter, ordering []core.DBOrdering, exec ...core.DBExecutor) ([]school.Student, error) {
	query := `SELECT ` + studentColumns + ` FROM students`
	var (
		where []string
		args  []interface{}
	)
	arg := func(val interface{}) string {
		args = append(args, val)
		return "$" + strconv.Itoa(len(args))
	}

	if filter != nil {
		if filter.Search != "" {
			val := arg("%" + filter.Search + "%")
			where = append(where, fmt.Sprintf("(name ILIKE %s OR email ILIKE %s OR cpf LIKE %s)", val, val, val))
		}
		if filter.IsActive != nil {
			where = append(where, "is_active = "+arg(*filter.IsActive))
		}
		if filter.ClassID.Valid {
			where = append(where, `id IN (SELECT student_id FROM enrollments WHERE class_id = `+arg(filter.ClassID.Int)+` AND is_active)`)
		}
		if teacherID := filter.TeacherID(); teacherID.Valid {
			where = append(where, `id IN (
				SELECT e.student_id FROM enrollments e
				JOIN classes c ON c.id = e.class_id
				WHERE e.is_active AND c.teacher_id = `+arg(teacherID.Int)+`)`)
		}
	}
	if len(where) > 0 {
		query += " WHERE " + joinAnd(where)
	}
	query += orderBy(ordering, "name ASC")

	students, err := selectAll(ctx, getExec(repo.db, exec), scanStudent, query, args...)
	if err != nil {
		return nil, errors.Wrap(err, "querying students")
	}
	return students, nil
}

func (repo schoolRepository) GetStudent(ctx context.Context, id int, exec ...core.DBExecutor) (school.Student, error) {
	s, err := scanStudent(getExec(repo.db, exec).QueryRowContext(ctx,
		`SELECT `+studentColumns+` FROM students WHERE id = $1`, id))
	if err != nil {
		if err == sql.ErrNoRows {
			return school.Student{}, school.ErrStudentNotFound
		}
		return school.Student{}, errors.Wrap(err, "getting student")
	}
	return s, nil
}

func (repo schoolRepository) UpdateStudent(ctx context.Context, s school.Student, isActive *bool, exec ...core.DBExecutor) (school.Student, error) {
	active := sql.NullBool{}
	if isActive != nil {
		active = sql.NullBool{Bool: *isActive, Valid: true}
	}
	updated, err := scanStudent(getExec(repo.db, exec).QueryRowContext(ctx,
		`UPDATE students SET
			name = $2, email = $3, birth_date = $4, phone = $5, address = $6,
			guardian_name = $7, guardian_phone = $8, updated_at = $9,
			is_active = COALESCE($10, is_active)
		 WHERE id = $1
		 RETURNING `+studentColumns,
		s.ID, s.Name, s.Email, s.BirthDate, s.Phone, s.Address, s.GuardianName, s.GuardianPhone, s.UpdatedAt, active,
	))
	if err != nil {
		if err == sql.ErrNoRows {
			return school.Student{}, school.ErrStudentNotFound
		}
		if domainErr, ok := uniqueViolation(err, map[string]error{"students_email_key": user.ErrEmailExists}); ok {
			return school.Student{}, domainErr
		}
		return school.Student{}, errors.Wrap(err, "updating student")
	}
	return updated, nil
}

// --- classes ---

func scanClass(row rowScanner) (school.Class, error) {
	var c school.Class
	err := row.Scan(
		&c.ID, &c.Name, &c.Description, &c.Level, &c.TeacherID, &c.Capacity,
		&c.StartsOn, &c.EndsOn, &c.IsActive, &c.CreatedAt, &c.UpdatedAt,
	)
	return c, err
}

func (repo schoolRepository) CreateClass(ctx context.Context, c school.Class, exec ...core.DBExecutor) (school.Class, error) {
	err := getExec(repo.db, exec).QueryRowContext(ctx,
		`INSERT INTO classes (name, description, level, teacher_id, capacity, starts_on, ends_on, is_active, created_at, updated_at)
		 VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)
		 RETURNING id`,
		c.Name, c.Description, c.Level, c.TeacherID, c.Capacity, c.StartsOn, c.EndsOn, c.IsActive, c.CreatedAt, c.UpdatedAt,
	).Scan(&c.ID)
	if err != nil {
		return school.Class{}, errors.Wrap(err, "inserting class")
	}
	return c, nil
}

func (repo schoolRepository) QueryClasses(ctx context.Context, filter *school.ClassQueryFilter, ordering []core.DBOrdering, exec ...core.DBExecutor) ([]school.Class, error) {
	query := `SELECT ` + classColumns + ` FROM classes`
	var (
		where []string
		args  []interface{}
	)
	arg := func(val interface{}) string {
		args = append(args, val)
		return "$" + strconv.Itoa(len(args))
	}

	if filter != nil {
		if filter.Search != "" {
			where = append(where, "name ILIKE "+arg("%"+filter.Search+"%"))
		}
		if filter.Level.Valid {
			where = append(where, "level = "+arg(filter.Level.String))
		}
		if filter.IsActive != nil {
			where = append(where, "is_active = "+arg(*filter.IsActive))
		}
		if teacherID := filter.TeacherID(); teacherID.Valid {
			where = append(where, "teacher_id = "+arg(teacherID.Int))
		}
	}
	if len(where) > 0 {
		query += " WHERE " + joinAnd(where)
	}
	query += orderBy(ordering, "name ASC")

	classes, err := selectAll(ctx, getExec(repo.db, exec), scanClass, query, args...)
	if err != nil {
		return nil, errors.Wrap(err, "querying classes")
	}
	return classes, nil
}

func (repo schoolRepository) GetClass(ctx context.Context, id int, exec ...core.DBExecutor) (school.Class, error) {
	c, err := scanClass(getExec(repo.db, exec).QueryRowContext(ctx,
		`SELECT `+classColumns+` FROM classes WHERE id = $1`, id))
	if err != nil {
		if err == sql.ErrNoRows {
			return school.Class{}, school.ErrClassNotFound
		}
		return school.Class{}, errors.Wrap(err, "getting class")
	}
	return c, nil
}

func (repo schoolRepository) UpdateClass(ctx context.Context, c school.Class, isActive *bool, exec ...core.DBExecutor) (school.Class, error) {
	active := sql.NullBool{}
	if isActive != nil {
		active = sql.NullBool{Bool: *isActive, Valid: true}
	}
	updated, err := scanClass(getExec(repo.db, exec).QueryRowContext(ctx,
		`UPDATE classes SET
			name = $2, description = $3, level = $4, teacher_id = $5, capacity = $6,
			starts_on = $7, ends_on = $8, updated_at = $9,
			is_active = COALESCE($10, is_active)
		 WHERE id = $1
		 RETURNING `+classColumns,
		c.ID, c.Name, c.Description, c.Level, c.TeacherID, c.Capacity, c.StartsOn, c.EndsOn, c.UpdatedAt, active,
	))
	if err != nil {
		if err == sql.ErrNoRows {
			return school.Class{}, school.ErrClassNotFound
		}
		return school.Class{}, errors.Wrap(err, "updating class")
	}
	return updated, nil
}

func (repo schoolRepository) GetClassOwner(ctx context.Context, classID int, exec ...core.DBExecutor) (null.Int, error) {
	var ownerID null.Int
	err := getExec(repo.db, exec).QueryRowContext(ctx,
		`SELECT t.user_id FROM classes c
		 LEFT JOIN teachers t ON t.id = c.teacher_id
		 WHERE c.id = $1`, classID,
	).Scan(&ownerID)
	if err != nil {
		if err == sql.ErrNoRows {
			return null.Int{}, school.ErrClassNotFound
		}
		return null.Int{}, errors.Wrap(err, "resolving class owner")
	}
	return ownerID, nil
}

// --- schedules ---

func (repo schoolRepository) CreateSchedule(ctx context.Context, sch school.Schedule, exec ...core.DBExecutor) (school.Schedule, error) {
	err := getExec(repo.db, exec).QueryRowContext(ctx,
		`INSERT INTO schedules (class_id, weekday, start_time, end_time, room, created_at)
		 VALUES ($1, $2, $3, $4, $5, $6)
		 RETURNING id`,
		sch.ClassID, sch.Weekday, sch.StartTime, sch.EndTime, sch.Room, sch.CreatedAt,
	).Scan(&sch.ID)
	if err != nil {
		return school.Schedule{}, errors.Wrap(err, "inserting schedule")
	}
	return sch, nil
}

func scanSchedule(row rowScanner) (school.Schedule, error) {
	var sch school.Schedule
	err := row.Scan(&sch.ID, &sch.ClassID, &sch.Weekday, &sch.StartTime, &sch.EndTime, &sch.Room, &sch.CreatedAt)
	return sch, err
}

func (repo schoolRepository) QuerySchedules(ctx context.Context, classID int, exec ...core.DBExecutor) ([]school.Schedule, error) {
	schedules, err := selectAll(ctx, getExec(repo.db, exec), scanSchedule,
		`SELECT id, class_id, weekday, start_time, end_time, room, created_at
		 FROM schedules WHERE class_id = $1
		 ORDER BY weekday ASC, start_time ASC`, classID)
	if err != nil {
		return nil, errors.Wrap(err, "querying schedules")
	}
	return schedules, nil
}

func (repo schoolRepository) DeleteSchedule(ctx context.Context, id int, exec ...core.DBExecutor) error {
	res, err := getExec(repo.db, exec).ExecContext(ctx, `DELETE FROM schedules WHERE id = $1`, id)
	if err != nil {
		return errors.Wrap(err, "deleting schedule")
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return school.ErrScheduleNotFound
	}
	return nil
}

// --- enrollments ---

func scanEnrollment(row rowScanner) (school.Enrollment, error) {
	var e school.Enrollment
	err := row.Scan(&e.ID, &e.StudentID, &e.ClassID, &e.EnrolledOn, &e.IsActive, &e.CreatedAt)
	return e, err
}

const enrollmentColumns = "id, student_id, class_id, enrolled_on, is_active, created_at"

func (repo schoolRepository) GetEnrollment(ctx context.Context, studentID, classID int, exec ...core.DBExecutor) (school.Enrollment, error) {
	e, err := scanEnrollment(getExec(repo.db, exec).QueryRowContext(ctx,
		`SELECT `+enrollmentColumns+` FROM enrollments WHERE student_id = $1 AND class_id = $2`,
		studentID, classID))
	if err != nil {
		if err == sql.ErrNoRows {
			return school.Enrollment{}, school.ErrEnrollmentNotFound
		}
		return school.Enrollment{}, errors.Wrap(err, "getting enrollment")
	}
	return e, nil
}

func (repo schoolRepository) CreateEnrollment(ctx context.Context, e school.Enrollment, exec ...core.DBExecutor) (school.Enrollment, error) {
	err := getExec(repo.db, exec).QueryRowContext(ctx,
		`INSERT INTO enrollments (student_id, class_id, enrolled_on, is_active, created_at)
		 VALUES ($1, $2, $3, $4, $5)
		 RETURNING id`,
		e.StudentID, e.ClassID, e.EnrolledOn, e.IsActive, e.CreatedAt,
	).Scan(&e.ID)
	if err != nil {
		if domainErr, ok := uniqueViolation(err, map[string]error{"enrollments_student_class_key": school.ErrAlreadyEnrolled}); ok {
			return school.Enrollment{}, domainErr
		}
		return school.Enrollment{}, errors.Wrap(err, "inserting enrollment")
	}
	return e, nil
}

func (repo schoolRepository) ReactivateEnrollment(ctx context.Context, id int, enrolledOn time.Time, exec ...core.DBExecutor) (school.Enrollment, error) {
	e, err := scanEnrollment(getExec(repo.db, exec).QueryRowContext(ctx,
		`UPDATE enrollments SET is_active = TRUE, enrolled_on = $2
		 WHERE id = $1
		 RETURNING `+enrollmentColumns,
		id, enrolledOn))
	if err != nil {
		if err == sql.ErrNoRows {
			return school.Enrollment{}, school.ErrEnrollmentNotFound
		}
		return school.Enrollment{}, errors.Wrap(err, "reactivating enrollment")
	}
	return e, nil
}

func (repo schoolRepository) DeactivateEnrollment(ctx context.Context, id int, exec ...core.DBExecutor) error {
	res, err := getExec(repo.db, exec).ExecContext(ctx,
		`UPDATE enrollments SET is_active = FALSE WHERE id = $1`, id)
	if err != nil {
		return errors.Wrap(err, "deactivating enrollment")
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return school.ErrEnrollmentNotFound
	}
	return nil
}

func (repo schoolRepository) QueryEnrollments(ctx context.Context, filter *school.EnrollmentQueryFilter, ordering []core.DBOrdering, exec ...core.DBExecutor) ([]school.Enrollment, error) {
	query := `SELECT ` + enrollmentColumns + ` FROM enrollments`
	var (
		where []string
		args  []interface{}
	)
	arg := func(val interface{}) string {
		args = append(args, val)
		return "$" + strconv.Itoa(len(args))
	}

	if filter != nil {
		if filter.StudentID.Valid {
			where = append(where, "student_id = "+arg(filter.StudentID.Int))
		}
		if filter.ClassID.Valid {
			where = append(where, "class_id = "+arg(filter.ClassID.Int))
		}
		if filter.IsActive != nil {
			where = append(where, "is_active = "+arg(*filter.IsActive))
		}
		if teacherID := filter.TeacherID(); teacherID.Valid {
			where = append(where, `class_id IN (SELECT id FROM classes WHERE teacher_id = `+arg(teacherID.Int)+`)`)
		}
	}
	if len(where) > 0 {
		query += " WHERE " + joinAnd(where)
	}
	query += orderBy(ordering, "enrolled_on DESC")

	enrollments, err := selectAll(ctx, getExec(repo.db, exec), scanEnrollment, query, args...)
	if err != nil {
		return nil, errors.Wrap(err, "querying enrollments")
	}
	return enrollments, nil
}

// --- dashboard ---

func (repo schoolRepository) GetStats(ctx context.Context, today time.Time, exec ...core.DBExecutor) (school.Stats, error) {
	var stats school.Stats
	err := getExec(repo.db, exec).QueryRowContext(ctx,
		`SELECT
			(SELECT COUNT(*) FROM classes WHERE is_active),
			(SELECT COUNT(*) FROM teachers),
			(SELECT COUNT(*) FROM students WHERE is_active),
			(SELECT COUNT(*) FROM lessons WHERE date = $1)`,
		today.Format("2006-01-02"),
	).Scan(&stats.ActiveClasses, &stats.ActiveTeachers, &stats.ActiveStudents, &stats.LessonsToday)
	if err != nil {
		return school.Stats{}, errors.Wrap(err, "querying stats")
	}
	return stats, nil
}
