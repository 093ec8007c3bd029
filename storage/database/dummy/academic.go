package dummydb

import (
	"context"
	"sort"
	"time"

	"github.com/volatiletech/null/v8"

	"github.com/thehouse/platform/core"
	"github.com/thehouse/platform/core/academic"
	"github.com/thehouse/platform/core/school"
)

type academicRepository struct {
	db     *DB
	school *schoolRepository

	lessonPK     int
	attendancePK int
	assessmentPK int
}

var _ academic.Repository = (*academicRepository)(nil) // interface compliance check

func NewAcademicRepository(db *DB, schoolRepo *schoolRepository) *academicRepository {
	return &academicRepository{db: db, school: schoolRepo}
}

// --- lessons ---

func (repo *academicRepository) CreateLesson(ctx context.Context, l academic.Lesson, exec ...core.DBExecutor) (academic.Lesson, error) {
	repo.db.lesson.Lock()
	defer repo.db.lesson.Unlock()

	for _, existing := range repo.db.lesson.table {
		if existing.ClassID == l.ClassID && sameDate(existing.Date, l.Date) {
			return academic.Lesson{}, academic.ErrDuplicateLesson
		}
	}
	repo.lessonPK++
	l.ID = repo.lessonPK
	repo.db.lesson.table[l.ID] = &l
	return l, nil
}

func (repo *academicRepository) GetLesson(ctx context.Context, id int, exec ...core.DBExecutor) (academic.Lesson, error) {
	repo.db.lesson.RLock()
	defer repo.db.lesson.RUnlock()

	if l, ok := repo.db.lesson.table[id]; ok {
		return *l, nil
	}
	return academic.Lesson{}, academic.ErrLessonNotFound
}

func (repo *academicRepository) GetLessonByClassDate(ctx context.Context, classID int, date time.Time, exec ...core.DBExecutor) (academic.Lesson, error) {
	repo.db.lesson.RLock()
	defer repo.db.lesson.RUnlock()

	for _, l := range repo.db.lesson.table {
		if l.ClassID == classID && sameDate(l.Date, date) {
			return *l, nil
		}
	}
	return academic.Lesson{}, academic.ErrLessonNotFound
}

func (repo *academicRepository) UpdateLesson(ctx context.Context, l academic.Lesson, exec ...core.DBExecutor) (academic.Lesson, error) {
	repo.db.lesson.Lock()
	defer repo.db.lesson.Unlock()

	existing, ok := repo.db.lesson.table[l.ID]
	if !ok {
		return academic.Lesson{}, academic.ErrLessonNotFound
	}
	existing.Content = l.Content
	existing.Notes = l.Notes
	existing.UpdatedAt = l.UpdatedAt
	return *existing, nil
}

func (repo *academicRepository) DeleteLesson(ctx context.Context, id int, exec ...core.DBExecutor) error {
	repo.db.lesson.Lock()
	defer repo.db.lesson.Unlock()

	if _, ok := repo.db.lesson.table[id]; !ok {
		return academic.ErrLessonNotFound
	}
	delete(repo.db.lesson.table, id)
	return nil
}

func (repo *academicRepository) QueryLessons(ctx context.Context, filter *academic.LessonQueryFilter, ordering []core.DBOrdering, exec ...core.DBExecutor) ([]academic.Lesson, error) {
	repo.db.lesson.RLock()
	defer repo.db.lesson.RUnlock()

	lessons := make([]academic.Lesson, 0, len(repo.db.lesson.table))
	for _, l := range repo.db.lesson.table {
		if filter != nil {
			if filter.ClassID.Valid && l.ClassID != int(filter.ClassID.Int) {
				continue
			}
			if !filter.DateFrom.IsZero() && l.Date.Before(filter.DateFrom) {
				continue
			}
			if !filter.DateTo.IsZero() && l.Date.After(filter.DateTo) {
				continue
			}
			if teacherID := filter.TeacherID(); teacherID.Valid && !repo.classOwnedBy(l.ClassID, int(teacherID.Int)) {
				continue
			}
		}
		lessons = append(lessons, *l)
	}
	sort.Slice(lessons, func(i, j int) bool { return lessons[i].Date.After(lessons[j].Date) })
	return lessons, nil
}

func (repo *academicRepository) classOwnedBy(classID, teacherID int) bool {
	c, err := repo.school.GetClass(context.Background(), classID)
	return err == nil && c.TeacherID.Valid && int(c.TeacherID.Int) == teacherID
}

func (repo *academicRepository) GetLessonOwner(ctx context.Context, lessonID int, exec ...core.DBExecutor) (null.Int, error) {
	l, err := repo.GetLesson(ctx, lessonID)
	if err != nil {
		return null.Int{}, err
	}
	return repo.school.GetClassOwner(ctx, l.ClassID)
}

// --- attendance ---

func (repo *academicRepository) DeleteLessonAttendance(ctx context.Context, lessonID int, exec ...core.DBExecutor) (int64, error) {
	repo.db.attendance.Lock()
	defer repo.db.attendance.Unlock()

	var deleted int64
	for id, a := range repo.db.attendance.table {
		if a.LessonID == lessonID {
			delete(repo.db.attendance.table, id)
			deleted++
		}
	}
	return deleted, nil
}

func (repo *academicRepository) CreateAttendance(ctx context.Context, a academic.Attendance, exec ...core.DBExecutor) (academic.Attendance, error) {
	repo.db.attendance.Lock()
	defer repo.db.attendance.Unlock()

	repo.attendancePK++
	a.ID = repo.attendancePK
	repo.db.attendance.table[a.ID] = &a
	return a, nil
}

func (repo *academicRepository) QueryAttendance(ctx context.Context, lessonID int, exec ...core.DBExecutor) ([]academic.Attendance, error) {
	repo.db.attendance.RLock()
	defer repo.db.attendance.RUnlock()

	rows := make([]academic.Attendance, 0)
	for _, a := range repo.db.attendance.table {
		if a.LessonID == lessonID {
			rows = append(rows, *a)
		}
	}
	sort.Slice(rows, func(i, j int) bool { return rows[i].StudentID < rows[j].StudentID })
	return rows, nil
}

func (repo *academicRepository) ActiveEnrollmentExists(ctx context.Context, studentID, classID int, exec ...core.DBExecutor) (bool, error) {
	enr, err := repo.school.GetEnrollment(ctx, studentID, classID)
	if err != nil {
		if err == school.ErrEnrollmentNotFound {
			return false, nil
		}
		return false, err
	}
	return enr.IsActive, nil
}

// --- assessments ---

func (repo *academicRepository) CreateAssessment(ctx context.Context, a academic.Assessment, exec ...core.DBExecutor) (academic.Assessment, error) {
	repo.db.assessment.Lock()
	defer repo.db.assessment.Unlock()

	for _, existing := range repo.db.assessment.table {
		if existing.LessonID == a.LessonID && existing.StudentID == a.StudentID && existing.Type == a.Type {
			return academic.Assessment{}, academic.ErrDuplicateAssessment
		}
	}
	repo.assessmentPK++
	a.ID = repo.assessmentPK
	repo.db.assessment.table[a.ID] = &a
	return a, nil
}

func (repo *academicRepository) GetAssessment(ctx context.Context, id int, exec ...core.DBExecutor) (academic.Assessment, error) {
	repo.db.assessment.RLock()
	defer repo.db.assessment.RUnlock()

	if a, ok := repo.db.assessment.table[id]; ok {
		return *a, nil
	}
	return academic.Assessment{}, academic.ErrAssessmentNotFound
}

func (repo *academicRepository) UpdateAssessment(ctx context.Context, a academic.Assessment, exec ...core.DBExecutor) (academic.Assessment, error) {
	repo.db.assessment.Lock()
	defer repo.db.assessment.Unlock()

	existing, ok := repo.db.assessment.table[a.ID]
	if !ok {
		return academic.Assessment{}, academic.ErrAssessmentNotFound
	}
	existing.Type = a.Type
	existing.Grade = a.Grade
	existing.MaxGrade = a.MaxGrade
	existing.Weight = a.Weight
	existing.Note = a.Note
	existing.AssessedOn = a.AssessedOn
	existing.UpdatedAt = a.UpdatedAt
	return *existing, nil
}

func (repo *academicRepository) DeleteAssessment(ctx context.Context, id int, exec ...core.DBExecutor) error {
	repo.db.assessment.Lock()
	defer repo.db.assessment.Unlock()

	if _, ok := repo.db.assessment.table[id]; !ok {
		return academic.ErrAssessmentNotFound
	}
	delete(repo.db.assessment.table, id)
	return nil
}

func (repo *academicRepository) QueryAssessments(ctx context.Context, filter *academic.AssessmentQueryFilter, ordering []core.DBOrdering, exec ...core.DBExecutor) ([]academic.Assessment, error) {
	repo.db.assessment.RLock()
	defer repo.db.assessment.RUnlock()

	assessments := make([]academic.Assessment, 0, len(repo.db.assessment.table))
	for _, a := range repo.db.assessment.table {
		if filter != nil {
			if filter.LessonID.Valid && a.LessonID != int(filter.LessonID.Int) {
				continue
			}
			if filter.StudentID.Valid && a.StudentID != int(filter.StudentID.Int) {
				continue
			}
			if filter.ClassID.Valid || filter.TeacherID().Valid {
				l, err := repo.GetLesson(ctx, a.LessonID)
				if err != nil {
					continue
				}
				if filter.ClassID.Valid && l.ClassID != int(filter.ClassID.Int) {
					continue
				}
				if teacherID := filter.TeacherID(); teacherID.Valid && !repo.classOwnedBy(l.ClassID, int(teacherID.Int)) {
					continue
				}
			}
		}
		assessments = append(assessments, *a)
	}
	sort.Slice(assessments, func(i, j int) bool { return assessments[i].ID < assessments[j].ID })
	return assessments, nil
}

func (repo *academicRepository) GetAssessmentOwner(ctx context.Context, assessmentID int, exec ...core.DBExecutor) (null.Int, error) {
	a, err := repo.GetAssessment(ctx, assessmentID)
	if err != nil {
		return null.Int{}, err
	}
	return repo.GetLessonOwner(ctx, a.LessonID)
}
