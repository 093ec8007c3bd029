package dummydb

import (
	"context"
	"sort"
	"strings"
	"time"

	"github.com/volatiletech/null/v8"

	"github.com/thehouse/platform/core"
	"github.com/thehouse/platform/core/school"
	"github.com/thehouse/platform/core/user"
)

type schoolRepository struct {
	db    *DB
	users *userRepository

	teacherPK    int
	studentPK    int
	classPK      int
	schedulePK   int
	enrollmentPK int
}

var _ school.Repository = (*schoolRepository)(nil) // interface compliance check

func NewSchoolRepository(db *DB, users *userRepository) *schoolRepository {
	return &schoolRepository{db: db, users: users}
}

// --- teachers ---

func (repo *schoolRepository) CheckTeacherCPFUniqueness(ctx context.Context, cpf string, exec ...core.DBExecutor) error {
	repo.db.teacher.RLock()
	defer repo.db.teacher.RUnlock()

	for _, t := range repo.db.teacher.table {
		if t.CPF == cpf {
			return school.ErrCPFExists
		}
	}
	return nil
}

func (repo *schoolRepository) CreateTeacher(ctx context.Context, t school.Teacher, exec ...core.DBExecutor) (school.Teacher, error) {
	repo.db.teacher.Lock()
	defer repo.db.teacher.Unlock()

	for _, existing := range repo.db.teacher.table {
		if existing.CPF == t.CPF {
			return school.Teacher{}, school.ErrCPFExists
		}
	}
	repo.teacherPK++
	t.ID = repo.teacherPK
	repo.db.teacher.table[t.ID] = &t
	return t, nil
}

// joinUser fills the columns that come from the users table.
func (repo *schoolRepository) joinUser(t school.Teacher) school.Teacher {
	if usr, err := repo.users.GetUser(context.Background(), user.GetFilter{ID: t.UserID}); err == nil {
		t.Name = usr.Name
		t.Email = usr.Email
	}
	return t
}

func (repo *schoolRepository) QueryTeachers(ctx context.Context, filter *school.TeacherQueryFilter, ordering []core.DBOrdering, exec ...core.DBExecutor) ([]school.Teacher, error) {
	repo.db.teacher.RLock()
	defer repo.db.teacher.RUnlock()

	teachers := make([]school.Teacher, 0, len(repo.db.teacher.table))
	for _, t := range repo.db.teacher.table {
		joined := repo.joinUser(*t)
		if filter != nil && filter.Search != "" {
			search := strings.ToLower(filter.Search)
			if !strings.Contains(strings.ToLower(joined.Name), search) &&
				!strings.Contains(strings.ToLower(joined.Email), search) &&
				!strings.Contains(joined.CPF, filter.Search) {
				continue
			}
		}
		teachers = append(teachers, joined)
	}
	sort.Slice(teachers, func(i, j int) bool { return teachers[i].Name < teachers[j].Name })
	return teachers, nil
}

func (repo *schoolRepository) GetTeacher(ctx context.Context, filter school.TeacherGetFilter, exec ...core.DBExecutor) (school.Teacher, error) {
	repo.db.teacher.RLock()
	defer repo.db.teacher.RUnlock()

	if filter.ID != 0 {
		if t, ok := repo.db.teacher.table[filter.ID]; ok {
			return repo.joinUser(*t), nil
		}
		return school.Teacher{}, school.ErrTeacherNotFound
	}
	for _, t := range repo.db.teacher.table {
		if t.UserID == filter.UserID {
			return repo.joinUser(*t), nil
		}
	}
	return school.Teacher{}, school.ErrTeacherNotFound
}

func (repo *schoolRepository) UpdateTeacher(ctx context.Context, t school.Teacher, exec ...core.DBExecutor) (school.Teacher, error) {
	repo.db.teacher.Lock()
	defer repo.db.teacher.Unlock()

	existing, ok := repo.db.teacher.table[t.ID]
	if !ok {
		return school.Teacher{}, school.ErrTeacherNotFound
	}
	existing.Phone = t.Phone
	existing.Specialty = t.Specialty
	existing.HiredOn = t.HiredOn
	existing.UpdatedAt = t.UpdatedAt
	return *existing, nil
}

func (repo *schoolRepository) DeleteTeacher(ctx context.Context, id int, exec ...core.DBExecutor) error {
	repo.db.teacher.Lock()
	defer repo.db.teacher.Unlock()

	if _, ok := repo.db.teacher.table[id]; !ok {
		return school.ErrTeacherNotFound
	}
	delete(repo.db.teacher.table, id)
	return nil
}

func (repo *schoolRepository) ReleaseTeacherClasses(ctx context.Context, teacherID int, exec ...core.DBExecutor) (int64, error) {
	repo.db.class.Lock()
	defer repo.db.class.Unlock()

	var released int64
	for _, c := range repo.db.class.table {
		if c.TeacherID.Valid && int(c.TeacherID.Int) == teacherID {
			c.TeacherID = null.Int{}
			released++
		}
	}
	return released, nil
}

// --- students ---

func (repo *schoolRepository) CheckStudentUniqueness(ctx context.Context, cpf string, email null.String, excludedStudents []school.Student, exec ...core.DBExecutor) error {
	repo.db.student.RLock()
	defer repo.db.student.RUnlock()

	excluded := func(s *school.Student) bool {
		for _, ex := range excludedStudents {
			if s.ID == ex.ID {
				return true
			}
		}
		return false
	}
	for _, s := range repo.db.student.table {
		if excluded(s) {
			continue
		}
		if cpf != "" && s.CPF == cpf {
			return school.ErrCPFExists
		}
		if email.Valid && s.Email.Valid && s.Email.String == email.String {
			return user.ErrEmailExists
		}
	}
	return nil
}

func (repo *schoolRepository) CreateStudent(ctx context.Context, s school.Student, exec ...core.DBExecutor) (school.Student, error) {
	repo.db.student.Lock()
	defer repo.db.student.Unlock()

	for _, existing := range repo.db.student.table {
		if existing.CPF == s.CPF {
			return school.Student{}, school.ErrCPFExists
		}
	}
	repo.studentPK++
	s.ID = repo.studentPK
	repo.db.student.table[s.ID] = &s
	return s, nil
}

func (repo *schoolRepository) QueryStudents(ctx context.Context, filter *school.StudentQueryFilter, ordering []core.DBOrdering, exec ...core.DBExecutor) ([]school.Student, error) {
	repo.db.student.RLock()
	defer repo.db.student.RUnlock()

	students := make([]school.Student, 0, len(repo.db.student.table))
	for _, s := range repo.db.student.table {
		if filter != nil {
			if filter.Search != "" {
				search := strings.ToLower(filter.Search)
				if !strings.Contains(strings.ToLower(s.Name), search) &&
					!strings.Contains(s.CPF, filter.Search) {
					continue
				}
			}
			if filter.IsActive != nil && s.IsActive != *filter.IsActive {
				continue
			}
			if filter.ClassID.Valid && !repo.enrolledIn(s.ID, int(filter.ClassID.Int)) {
				continue
			}
			if teacherID := filter.TeacherID(); teacherID.Valid && !repo.enrolledWithTeacher(s.ID, int(teacherID.Int)) {
				continue
			}
		}
		students = append(students, *s)
	}
	sort.Slice(students, func(i, j int) bool { return students[i].Name < students[j].Name })
	return students, nil
}

func (repo *schoolRepository) enrolledIn(studentID, classID int) bool {
	repo.db.enrollment.RLock()
	defer repo.db.enrollment.RUnlock()

	for _, e := range repo.db.enrollment.table {
		if e.StudentID == studentID && e.ClassID == classID && e.IsActive {
			return true
		}
	}
	return false
}

func (repo *schoolRepository) enrolledWithTeacher(studentID, teacherID int) bool {
	repo.db.enrollment.RLock()
	defer repo.db.enrollment.RUnlock()
	repo.db.class.RLock()
	defer repo.db.class.RUnlock()

	for _, e := range repo.db.enrollment.table {
		if e.StudentID != studentID || !e.IsActive {
			continue
		}
		if c, ok := repo.db.class.table[e.ClassID]; ok && c.TeacherID.Valid && int(c.TeacherID.Int) == teacherID {
			return true
		}
	}
	return false
}

func (repo *schoolRepository) GetStudent(ctx context.Context, id int, exec ...core.DBExecutor) (school.Student, error) {
	repo.db.student.RLock()
	defer repo.db.student.RUnlock()

	if s, ok := repo.db.student.table[id]; ok {
		return *s, nil
	}
	return school.Student{}, school.ErrStudentNotFound
}

func (repo *schoolRepository) UpdateStudent(ctx context.Context, s school.Student, isActive *bool, exec ...core.DBExecutor) (school.Student, error) {
	repo.db.student.Lock()
	defer repo.db.student.Unlock()

	existing, ok := repo.db.student.table[s.ID]
	if !ok {
		return school.Student{}, school.ErrStudentNotFound
	}
	existing.Name = s.Name
	existing.Email = s.Email
	existing.BirthDate = s.BirthDate
	existing.Phone = s.Phone
	existing.Address = s.Address
	existing.GuardianName = s.GuardianName
	existing.GuardianPhone = s.GuardianPhone
	existing.UpdatedAt = s.UpdatedAt
	if isActive != nil {
		existing.IsActive = *isActive
	}
	return *existing, nil
}

// --- classes ---

func (repo *schoolRepository) CreateClass(ctx context.Context, c school.Class, exec ...core.DBExecutor) (school.Class, error) {
	repo.db.class.Lock()
	defer repo.db.class.Unlock()

	repo.classPK++
	c.ID = repo.classPK
	repo.db.class.table[c.ID] = &c
	return c, nil
}

func (repo *schoolRepository) QueryClasses(ctx context.Context, filter *school.ClassQueryFilter, ordering []core.DBOrdering, exec ...core.DBExecutor) ([]school.Class, error) {
	repo.db.class.RLock()
	defer repo.db.class.RUnlock()

	classes := make([]school.Class, 0, len(repo.db.class.table))
	for _, c := range repo.db.class.table {
		if filter != nil {
			if filter.Search != "" && !strings.Contains(strings.ToLower(c.Name), strings.ToLower(filter.Search)) {
				continue
			}
			if filter.Level.Valid && c.Level != filter.Level {
				continue
			}
			if filter.IsActive != nil && c.IsActive != *filter.IsActive {
				continue
			}
			if teacherID := filter.TeacherID(); teacherID.Valid {
				if !c.TeacherID.Valid || c.TeacherID.Int != teacherID.Int {
					continue
				}
			}
		}
		classes = append(classes, *c)
	}
	sort.Slice(classes, func(i, j int) bool { return classes[i].Name < classes[j].Name })
	return classes, nil
}

func (repo *schoolRepository) GetClass(ctx context.Context, id int, exec ...core.DBExecutor) (school.Class, error) {
	repo.db.class.RLock()
	defer repo.db.class.RUnlock()

	if c, ok := repo.db.class.table[id]; ok {
		return *c, nil
	}
	return school.Class{}, school.ErrClassNotFound
}

func (repo *schoolRepository) UpdateClass(ctx context.Context, c school.Class, isActive *bool, exec ...core.DBExecutor) (school.Class, error) {
	repo.db.class.Lock()
	defer repo.db.class.Unlock()

	existing, ok := repo.db.class.table[c.ID]
	if !ok {
		return school.Class{}, school.ErrClassNotFound
	}
	existing.Name = c.Name
	existing.Description = c.Description
	existing.Level = c.Level
	existing.TeacherID = c.TeacherID
	existing.Capacity = c.Capacity
	existing.StartsOn = c.StartsOn
	existing.EndsOn = c.EndsOn
	existing.UpdatedAt = c.UpdatedAt
	if isActive != nil {
		existing.IsActive = *isActive
	}
	return *existing, nil
}

func (repo *schoolRepository) GetClassOwner(ctx context.Context, classID int, exec ...core.DBExecutor) (null.Int, error) {
	c, err := repo.GetClass(ctx, classID)
	if err != nil {
		return null.Int{}, err
	}
	if !c.TeacherID.Valid {
		return null.Int{}, nil
	}
	t, err := repo.GetTeacher(ctx, school.TeacherGetFilter{ID: int(c.TeacherID.Int)})
	if err != nil {
		return null.Int{}, nil
	}
	return null.IntFrom(t.UserID), nil
}

// --- schedules ---

func (repo *schoolRepository) CreateSchedule(ctx context.Context, sch school.Schedule, exec ...core.DBExecutor) (school.Schedule, error) {
	repo.db.schedule.Lock()
	defer repo.db.schedule.Unlock()

	repo.schedulePK++
	sch.ID = repo.schedulePK
	repo.db.schedule.table[sch.ID] = &sch
	return sch, nil
}

func (repo *schoolRepository) QuerySchedules(ctx context.Context, classID int, exec ...core.DBExecutor) ([]school.Schedule, error) {
	repo.db.schedule.RLock()
	defer repo.db.schedule.RUnlock()

	schedules := make([]school.Schedule, 0)
	for _, sch := range repo.db.schedule.table {
		if sch.ClassID == classID {
			schedules = append(schedules, *sch)
		}
	}
	sort.Slice(schedules, func(i, j int) bool {
		if schedules[i].Weekday != schedules[j].Weekday {
			return schedules[i].Weekday < schedules[j].Weekday
		}
		return schedules[i].StartTime < schedules[j].StartTime
	})
	return schedules, nil
}

func (repo *schoolRepository) DeleteSchedule(ctx context.Context, id int, exec ...core.DBExecutor) error {
	repo.db.schedule.Lock()
	defer repo.db.schedule.Unlock()

	if _, ok := repo.db.schedule.table[id]; !ok {
		return school.ErrScheduleNotFound
	}
	delete(repo.db.schedule.table, id)
	return nil
}

// --- enrollments ---

func (repo *schoolRepository) GetEnrollment(ctx context.Context, studentID, classID int, exec ...core.DBExecutor) (school.Enrollment, error) {
	repo.db.enrollment.RLock()
	defer repo.db.enrollment.RUnlock()

	for _, e := range repo.db.enrollment.table {
		if e.StudentID == studentID && e.ClassID == classID {
			return *e, nil
		}
	}
	return school.Enrollment{}, school.ErrEnrollmentNotFound
}

func (repo *schoolRepository) CreateEnrollment(ctx context.Context, e school.Enrollment, exec ...core.DBExecutor) (school.Enrollment, error) {
	repo.db.enrollment.Lock()
	defer repo.db.enrollment.Unlock()

	for _, existing := range repo.db.enrollment.table {
		if existing.StudentID == e.StudentID && existing.ClassID == e.ClassID {
			return school.Enrollment{}, school.ErrAlreadyEnrolled
		}
	}
	repo.enrollmentPK++
	e.ID = repo.enrollmentPK
	repo.db.enrollment.table[e.ID] = &e
	return e, nil
}

func (repo *schoolRepository) ReactivateEnrollment(ctx context.Context, id int, enrolledOn time.Time, exec ...core.DBExecutor) (school.Enrollment, error) {
	repo.db.enrollment.Lock()
	defer repo.db.enrollment.Unlock()

	existing, ok := repo.db.enrollment.table[id]
	if !ok {
		return school.Enrollment{}, school.ErrEnrollmentNotFound
	}
	existing.IsActive = true
	existing.EnrolledOn = enrolledOn
	return *existing, nil
}

func (repo *schoolRepository) DeactivateEnrollment(ctx context.Context, id int, exec ...core.DBExecutor) error {
	repo.db.enrollment.Lock()
	defer repo.db.enrollment.Unlock()

	existing, ok := repo.db.enrollment.table[id]
	if !ok {
		return school.ErrEnrollmentNotFound
	}
	existing.IsActive = false
	return nil
}

func (repo *schoolRepository) QueryEnrollments(ctx context.Context, filter *school.EnrollmentQueryFilter, ordering []core.DBOrdering, exec ...core.DBExecutor) ([]school.Enrollment, error) {
	repo.db.enrollment.RLock()
	defer repo.db.enrollment.RUnlock()

	enrollments := make([]school.Enrollment, 0, len(repo.db.enrollment.table))
	for _, e := range repo.db.enrollment.table {
		if filter != nil {
			if filter.StudentID.Valid && e.StudentID != int(filter.StudentID.Int) {
				continue
			}
			if filter.ClassID.Valid && e.ClassID != int(filter.ClassID.Int) {
				continue
			}
			if filter.IsActive != nil && e.IsActive != *filter.IsActive {
				continue
			}
			if teacherID := filter.TeacherID(); teacherID.Valid {
				repo.db.class.RLock()
				c, ok := repo.db.class.table[e.ClassID]
				repo.db.class.RUnlock()
				if !ok || !c.TeacherID.Valid || c.TeacherID.Int != teacherID.Int {
					continue
				}
			}
		}
		enrollments = append(enrollments, *e)
	}
	sort.Slice(enrollments, func(i, j int) bool { return enrollments[i].ID < enrollments[j].ID })
	return enrollments, nil
}

// --- dashboard ---

func (repo *schoolRepository) GetStats(ctx context.Context, today time.Time, exec ...core.DBExecutor) (school.Stats, error) {
	var stats school.Stats

	repo.db.class.RLock()
	for _, c := range repo.db.class.table {
		if c.IsActive {
			stats.ActiveClasses++
		}
	}
	repo.db.class.RUnlock()

	repo.db.teacher.RLock()
	stats.ActiveTeachers = len(repo.db.teacher.table)
	repo.db.teacher.RUnlock()

	repo.db.student.RLock()
	for _, s := range repo.db.student.table {
		if s.IsActive {
			stats.ActiveStudents++
		}
	}
	repo.db.student.RUnlock()

	repo.db.lesson.RLock()
	for _, l := range repo.db.lesson.table {
		if sameDate(l.Date, today) {
			stats.LessonsToday++
		}
	}
	repo.db.lesson.RUnlock()

	return stats, nil
}

func sameDate(a, b time.Time) bool {
	ay, am, ad := a.Date()
	by, bm, bd := b.Date()
	return ay == by && am == bm && ad == bd
}
