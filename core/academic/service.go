package academic

import (
	"context"
	"time"

	"github.com/pkg/errors"
	"github.com/volatiletech/null/v8"

	"github.com/thehouse/platform/core"
	"github.com/thehouse/platform/core/auth"
)

const (
	defaultMaxGrade = 10.0
	defaultWeight   = 1.0

	gradeAboveMaxText = "grade cannot exceed max_grade"
)

var (
	// errors
	ErrLessonNotFound      = errors.New("lesson not found")
	ErrAssessmentNotFound  = errors.New("assessment not found")
	ErrDuplicateLesson     = errors.New("a lesson already exists for this class and date")
	ErrDuplicateAssessment = errors.New("an assessment of this type already exists for this student and lesson")

	errGradeAboveMax = errors.New("grade above max grade")
)

type (
	Repository interface {
		CreateLesson(ctx context.Context, l Lesson, exec ...core.DBExecutor) (Lesson, error)
		GetLesson(ctx context.Context, id int, exec ...core.DBExecutor) (Lesson, error)
		// GetLessonByClassDate addresses the (class, date) uniqueness key.
		GetLessonByClassDate(ctx context.Context, classID int, date time.Time, exec ...core.DBExecutor) (Lesson, error)
		UpdateLesson(ctx context.Context, l Lesson, exec ...core.DBExecutor) (Lesson, error)
		DeleteLesson(ctx context.Context, id int, exec ...core.DBExecutor) error
		QueryLessons(ctx context.Context, filter *LessonQueryFilter, ordering []core.DBOrdering, exec ...core.DBExecutor) ([]Lesson, error)
		// GetLessonOwner walks lesson → class → teacher → user.
		GetLessonOwner(ctx context.Context, lessonID int, exec ...core.DBExecutor) (null.Int, error)

		// DeleteLessonAttendance removes every attendance row of the lesson,
		// returning the count removed.
		DeleteLessonAttendance(ctx context.Context, lessonID int, exec ...core.DBExecutor) (int64, error)
		CreateAttendance(ctx context.Context, a Attendance, exec ...core.DBExecutor) (Attendance, error)
		QueryAttendance(ctx context.Context, lessonID int, exec ...core.DBExecutor) ([]Attendance, error)
		// ActiveEnrollmentExists reports whether the student holds an active
		// enrollment in the class.
		ActiveEnrollmentExists(ctx context.Context, studentID, classID int, exec ...core.DBExecutor) (bool, error)

		CreateAssessment(ctx context.Context, a Assessment, exec ...core.DBExecutor) (Assessment, error)
		GetAssessment(ctx context.Context, id int, exec ...core.DBExecutor) (Assessment, error)
		UpdateAssessment(ctx context.Context, a Assessment, exec ...core.DBExecutor) (Assessment, error)
		DeleteAssessment(ctx context.Context, id int, exec ...core.DBExecutor) error
		QueryAssessments(ctx context.Context, filter *AssessmentQueryFilter, ordering []core.DBOrdering, exec ...core.DBExecutor) ([]Assessment, error)
		GetAssessmentOwner(ctx context.Context, assessmentID int, exec ...core.DBExecutor) (null.Int, error)
	}

	ServiceInterface interface {
		CreateLesson(ctx context.Context, p auth.Principal, nl NewLesson) (Lesson, error)
		GetLesson(ctx context.Context, p auth.Principal, id int) (Lesson, error)
		UpdateLesson(ctx context.Context, p auth.Principal, id int, ul UpdateLesson) (Lesson, error)
		DeleteLesson(ctx context.Context, p auth.Principal, id int) error
		QueryLessons(ctx context.Context, p auth.Principal, filter *LessonQueryFilter, ordering []core.DBOrdering) ([]Lesson, error)

		ReconcileAttendance(ctx context.Context, p auth.Principal, sheet AttendanceSheet) (ReconcileResult, error)
		QueryAttendance(ctx context.Context, p auth.Principal, lessonID int) ([]Attendance, error)

		CreateAssessment(ctx context.Context, p auth.Principal, na NewAssessment) (Assessment, error)
		GetAssessment(ctx context.Context, p auth.Principal, id int) (Assessment, error)
		UpdateAssessment(ctx context.Context, p auth.Principal, id int, ua UpdateAssessment) (Assessment, error)
		DeleteAssessment(ctx context.Context, p auth.Principal, id int) error
		QueryAssessments(ctx context.Context, p auth.Principal, filter *AssessmentQueryFilter, ordering []core.DBOrdering) ([]Assessment, error)
	}

	Service struct {
		db    core.DB
		repo  Repository
		authz *auth.Authorizer
	}
)

var _ ServiceInterface = (*Service)(nil)

func NewService(db core.DB, repo Repository, authz *auth.Authorizer) *Service {
	svc := &Service{db: db, repo: repo, authz: authz}
	authz.RegisterOwnerResolver(auth.ResourceLesson, repo.GetLessonOwner)
	authz.RegisterOwnerResolver(auth.ResourceAssessment, repo.GetAssessmentOwner)
	return svc
}

// --- lessons ---

// CreateLesson is gated through the class the lesson belongs to. A second
// lesson on the same (class, date) key fails with ErrDuplicateLesson.
func (svc *Service) CreateLesson(ctx context.Context, p auth.Principal, nl NewLesson) (Lesson, error) {
	if err := svc.authz.Authorize(ctx, p, auth.ActionCreate, auth.ResourceLesson, &auth.Ref{Resource: auth.ResourceClass, ID: nl.ClassID}); err != nil {
		return Lesson{}, err
	}
	now := time.Now().UTC()
	return svc.repo.CreateLesson(ctx, Lesson{
		ClassID:   nl.ClassID,
		Date:      nl.Date,
		Content:   nl.Content,
		Notes:     nl.Notes,
		CreatedAt: now,
		UpdatedAt: now,
	})
}

func (svc *Service) GetLesson(ctx context.Context, p auth.Principal, id int) (Lesson, error) {
	l, err := svc.repo.GetLesson(ctx, id)
	if err != nil {
		return Lesson{}, err
	}
	if err = svc.authz.Authorize(ctx, p, auth.ActionRead, auth.ResourceLesson, &auth.Ref{Resource: auth.ResourceLesson, ID: id}); err != nil {
		return Lesson{}, err
	}
	return l, nil
}

func (svc *Service) UpdateLesson(ctx context.Context, p auth.Principal, id int, ul UpdateLesson) (Lesson, error) {
	var l Lesson
	err := core.Atomic(ctx, svc.db, func(tx core.DBTransactor) error {
		if err := svc.authz.Authorize(ctx, p, auth.ActionUpdate, auth.ResourceLesson, &auth.Ref{Resource: auth.ResourceLesson, ID: id}, tx); err != nil {
			return err
		}
		orig, err := svc.repo.GetLesson(ctx, id, tx)
		if err != nil {
			return err
		}
		orig.Content = ul.Content
		orig.Notes = ul.Notes
		orig.UpdatedAt = time.Now().UTC()
		l, err = svc.repo.UpdateLesson(ctx, orig, tx)
		return err
	})
	return l, err
}

// DeleteLesson removes the lesson and its attendance rows together.
func (svc *Service) DeleteLesson(ctx context.Context, p auth.Principal, id int) error {
	return core.Atomic(ctx, svc.db, func(tx core.DBTransactor) error {
		if err := svc.authz.Authorize(ctx, p, auth.ActionDelete, auth.ResourceLesson, &auth.Ref{Resource: auth.ResourceLesson, ID: id}, tx); err != nil {
			return err
		}
		if _, err := svc.repo.DeleteLessonAttendance(ctx, id, tx); err != nil {
			return err
		}
		return svc.repo.DeleteLesson(ctx, id, tx)
	})
}

func (svc *Service) QueryLessons(ctx context.Context, p auth.Principal, filter *LessonQueryFilter, ordering []core.DBOrdering) ([]Lesson, error) {
	if err := svc.authz.Authorize(ctx, p, auth.ActionList, auth.ResourceLesson, nil); err != nil {
		return nil, err
	}
	svc.authz.ScopeQuery(p, filter)
	return svc.repo.QueryLessons(ctx, filter, ordering)
}

// --- attendance ---

// ReconcileAttendance applies a bulk attendance sheet in one transaction:
//
//  1. find-or-create the lesson for (class, date), updating its notes in
//     place when it already exists;
//  2. drop every attendance row the lesson already has — resubmission
//     replaces the roster, it never merges;
//  3. with WithoutAttendance set, stop there: the lesson stands with no
//     roster;
//  4. otherwise insert one row per submitted record whose student holds an
//     active enrollment in the class; records without one are skipped, not
//     failed — a stale roster must not sink the whole sheet.
//
// The returned counts let the caller detect skipped records. Re-running the
// same sheet yields the same lesson and the same rows. A concurrent first
// submission for the same key loses the lesson insert race and surfaces
// ErrDuplicateLesson.
func (svc *Service) ReconcileAttendance(ctx context.Context, p auth.Principal, sheet AttendanceSheet) (ReconcileResult, error) {
	var res ReconcileResult
	err := core.Atomic(ctx, svc.db, func(tx core.DBTransactor) error {
		if err := svc.authz.Authorize(ctx, p, auth.ActionCreate, auth.ResourceAttendance, &auth.Ref{Resource: auth.ResourceClass, ID: sheet.ClassID}, tx); err != nil {
			return err
		}

		now := time.Now().UTC()
		lesson, err := svc.repo.GetLessonByClassDate(ctx, sheet.ClassID, sheet.Date, tx)
		switch errors.Cause(err) {
		case nil:
			lesson.Notes = sheet.Notes
			lesson.UpdatedAt = now
			if lesson, err = svc.repo.UpdateLesson(ctx, lesson, tx); err != nil {
				return err
			}
		case ErrLessonNotFound:
			lesson, err = svc.repo.CreateLesson(ctx, Lesson{
				ClassID:   sheet.ClassID,
				Date:      sheet.Date,
				Notes:     sheet.Notes,
				CreatedAt: now,
				UpdatedAt: now,
			}, tx)
			if err != nil {
				return err
			}
		default:
			return err
		}
		res.LessonID = lesson.ID

		if _, err = svc.repo.DeleteLessonAttendance(ctx, lesson.ID, tx); err != nil {
			return err
		}
		if sheet.WithoutAttendance {
			return nil
		}

		res.Submitted = len(sheet.Records)
		// a student listed twice gets one row: the last record wins
		records := make([]AttendanceRecord, 0, len(sheet.Records))
		index := make(map[int]int, len(sheet.Records))
		for _, rec := range sheet.Records {
			if i, ok := index[rec.StudentID]; ok {
				records[i] = rec
				continue
			}
			index[rec.StudentID] = len(records)
			records = append(records, rec)
		}
		for _, rec := range records {
			enrolled, err := svc.repo.ActiveEnrollmentExists(ctx, rec.StudentID, sheet.ClassID, tx)
			if err != nil {
				return err
			}
			if !enrolled {
				continue
			}
			if _, err = svc.repo.CreateAttendance(ctx, Attendance{
				LessonID:  lesson.ID,
				StudentID: rec.StudentID,
				Status:    rec.Status,
				Note:      rec.Note,
				CreatedAt: now,
			}, tx); err != nil {
				return err
			}
			res.Processed++
		}
		return nil
	})
	if err != nil {
		return ReconcileResult{}, err
	}
	return res, nil
}

func (svc *Service) QueryAttendance(ctx context.Context, p auth.Principal, lessonID int) ([]Attendance, error) {
	if err := svc.authz.Authorize(ctx, p, auth.ActionList, auth.ResourceAttendance, &auth.Ref{Resource: auth.ResourceLesson, ID: lessonID}); err != nil {
		return nil, err
	}
	return svc.repo.QueryAttendance(ctx, lessonID)
}

// --- assessments ---

// CreateAssessment is gated through the lesson it grades. The
// (lesson, student, type) key is unique; a second grade of the same type
// fails with ErrDuplicateAssessment instead of silently overwriting.
func (svc *Service) CreateAssessment(ctx context.Context, p auth.Principal, na NewAssessment) (Assessment, error) {
	if err := svc.authz.Authorize(ctx, p, auth.ActionCreate, auth.ResourceAssessment, &auth.Ref{Resource: auth.ResourceLesson, ID: na.LessonID}); err != nil {
		return Assessment{}, err
	}
	now := time.Now().UTC()
	return svc.repo.CreateAssessment(ctx, Assessment{
		LessonID:   na.LessonID,
		StudentID:  na.StudentID,
		Type:       na.Type,
		Grade:      na.Grade,
		MaxGrade:   na.MaxGrade,
		Weight:     na.Weight,
		Note:       na.Note,
		AssessedOn: na.AssessedOn,
		CreatedAt:  now,
		UpdatedAt:  now,
	})
}

func (svc *Service) GetAssessment(ctx context.Context, p auth.Principal, id int) (Assessment, error) {
	a, err := svc.repo.GetAssessment(ctx, id)
	if err != nil {
		return Assessment{}, err
	}
	if err = svc.authz.Authorize(ctx, p, auth.ActionRead, auth.ResourceAssessment, &auth.Ref{Resource: auth.ResourceAssessment, ID: id}); err != nil {
		return Assessment{}, err
	}
	return a, nil
}

func (svc *Service) UpdateAssessment(ctx context.Context, p auth.Principal, id int, ua UpdateAssessment) (Assessment, error) {
	var a Assessment
	err := core.Atomic(ctx, svc.db, func(tx core.DBTransactor) error {
		if err := svc.authz.Authorize(ctx, p, auth.ActionUpdate, auth.ResourceAssessment, &auth.Ref{Resource: auth.ResourceAssessment, ID: id}, tx); err != nil {
			return err
		}
		orig, err := svc.repo.GetAssessment(ctx, id, tx)
		if err != nil {
			return err
		}
		orig.Type = ua.Type
		if ua.Grade != nil {
			orig.Grade = *ua.Grade
		}
		if ua.MaxGrade != nil {
			orig.MaxGrade = *ua.MaxGrade
		}
		if ua.Weight != nil {
			orig.Weight = *ua.Weight
		}
		orig.Note = ua.Note
		orig.AssessedOn = ua.AssessedOn
		orig.UpdatedAt = time.Now().UTC()
		a, err = svc.repo.UpdateAssessment(ctx, orig, tx)
		return err
	})
	return a, err
}

// DeleteAssessment hard-deletes: grades are the one academic record with no
// soft-delete history.
func (svc *Service) DeleteAssessment(ctx context.Context, p auth.Principal, id int) error {
	return core.Atomic(ctx, svc.db, func(tx core.DBTransactor) error {
		if err := svc.authz.Authorize(ctx, p, auth.ActionDelete, auth.ResourceAssessment, &auth.Ref{Resource: auth.ResourceAssessment, ID: id}, tx); err != nil {
			return err
		}
		return svc.repo.DeleteAssessment(ctx, id, tx)
	})
}

func (svc *Service) QueryAssessments(ctx context.Context, p auth.Principal, filter *AssessmentQueryFilter, ordering []core.DBOrdering) ([]Assessment, error) {
	if err := svc.authz.Authorize(ctx, p, auth.ActionList, auth.ResourceAssessment, nil); err != nil {
		return nil, err
	}
	svc.authz.ScopeQuery(p, filter)
	return svc.repo.QueryAssessments(ctx, filter, ordering)
}
