package academic

import (
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/volatiletech/null/v8"

	"github.com/thehouse/platform/core"
	"github.com/thehouse/platform/core/auth"
)

// Lesson is a class session on a calendar date. At most one lesson exists
// per (class, date) pair.
type Lesson struct {
	ID        int         `json:"id" db:"id"`
	ClassID   int         `json:"class_id" db:"class_id"`
	Date      time.Time   `json:"date" db:"date"`
	Content   null.String `json:"content" db:"content"`
	Notes     null.String `json:"notes" db:"notes"`
	CreatedAt time.Time   `json:"created_at" db:"created_at"` // UTC
	UpdatedAt time.Time   `json:"updated_at" db:"updated_at"` // UTC
}

// AttendanceStatus is the closed set of roster marks.
type AttendanceStatus string

const (
	AttendancePresent AttendanceStatus = "present"
	AttendanceAbsent  AttendanceStatus = "absent"
	AttendanceLate    AttendanceStatus = "late"
)

func (s AttendanceStatus) Present() bool { return s == AttendancePresent || s == AttendanceLate }

type Attendance struct {
	ID        int              `json:"id" db:"id"`
	LessonID  int              `json:"lesson_id" db:"lesson_id"`
	StudentID int              `json:"student_id" db:"student_id"`
	Status    AttendanceStatus `json:"status" db:"status"`
	Note      null.String      `json:"note" db:"note"`
	CreatedAt time.Time        `json:"created_at" db:"created_at"` // UTC
}

// Assessment stores a raw grade with its own scale and weight; aggregation
// into a final score is a read-side concern that never happens here.
type Assessment struct {
	ID         int         `json:"id" db:"id"`
	LessonID   int         `json:"lesson_id" db:"lesson_id"`
	StudentID  int         `json:"student_id" db:"student_id"`
	Type       string      `json:"type" db:"type"`
	Grade      float64     `json:"grade" db:"grade"`
	MaxGrade   float64     `json:"max_grade" db:"max_grade"`
	Weight     float64     `json:"weight" db:"weight"`
	Note       null.String `json:"note" db:"note"`
	AssessedOn null.Time   `json:"assessed_on" db:"assessed_on"`
	CreatedAt  time.Time   `json:"created_at" db:"created_at"` // UTC
	UpdatedAt  time.Time   `json:"updated_at" db:"updated_at"` // UTC
}

// --- input shapes ---

type NewLesson struct {
	ClassID int         `json:"class_id" validate:"required"`
	Date    time.Time   `json:"date" validate:"required"`
	Content null.String `json:"content"`
	Notes   null.String `json:"notes"`
}

func (nl NewLesson) Validate(validate *validator.Validate) error { return validate.Struct(nl) }

type UpdateLesson struct {
	Content null.String `json:"content"`
	Notes   null.String `json:"notes"`
}

// AttendanceRecord is one submitted roster line of an attendance sheet.
type AttendanceRecord struct {
	StudentID int              `json:"student_id" validate:"required"`
	Status    AttendanceStatus `json:"status" validate:"required,oneof=present absent late"`
	Note      null.String      `json:"note"`
}

// AttendanceSheet is the bulk submission for one class session. With
// WithoutAttendance set the session is recorded without any roster (a
// cancelled class, say) and Records is ignored.
type AttendanceSheet struct {
	ClassID           int                `json:"class_id" validate:"required"`
	Date              time.Time          `json:"date" validate:"required"`
	Records           []AttendanceRecord `json:"records" validate:"dive"`
	WithoutAttendance bool               `json:"without_attendance"`
	Notes             null.String        `json:"notes"`
}

func (as AttendanceSheet) Validate(validate *validator.Validate) error { return validate.Struct(as) }

// ReconcileResult reports what a sheet submission did. Processed < Submitted
// means some records named students without an active enrollment and were
// skipped.
type ReconcileResult struct {
	LessonID  int `json:"lesson_id"`
	Processed int `json:"processed"`
	Submitted int `json:"submitted"`
}

type NewAssessment struct {
	LessonID   int         `json:"lesson_id" validate:"required"`
	StudentID  int         `json:"student_id" validate:"required"`
	Type       string      `json:"type" validate:"required"`
	Grade      float64     `json:"grade" validate:"gte=0"`
	MaxGrade   float64     `json:"max_grade" validate:"omitempty,gt=0"`
	Weight     float64     `json:"weight" validate:"omitempty,gt=0"`
	Note       null.String `json:"note"`
	AssessedOn null.Time   `json:"assessed_on"`
}

func (na *NewAssessment) Validate(validate *validator.Validate) error {
	na.Type = core.CleanString(na.Type)
	if na.MaxGrade == 0 {
		na.MaxGrade = defaultMaxGrade
	}
	if na.Weight == 0 {
		na.Weight = defaultWeight
	}
	if err := validate.Struct(na); err != nil {
		return err
	}
	if na.Grade > na.MaxGrade {
		return core.NewValidationError(errGradeAboveMax, core.FieldError{Field: "grade", Error: gradeAboveMaxText})
	}
	return nil
}

type UpdateAssessment struct {
	Type       string      `json:"type"`
	Grade      *float64    `json:"grade" validate:"omitempty,gte=0"`
	MaxGrade   *float64    `json:"max_grade" validate:"omitempty,gt=0"`
	Weight     *float64    `json:"weight" validate:"omitempty,gt=0"`
	Note       null.String `json:"note"`
	AssessedOn null.Time   `json:"assessed_on"`
}

func (ua *UpdateAssessment) Validate(orig Assessment, validate *validator.Validate) error {
	if typ := core.CleanString(ua.Type); typ != "" {
		ua.Type = typ
	} else {
		ua.Type = orig.Type
	}
	if err := validate.Struct(ua); err != nil {
		return err
	}
	grade, maxGrade := orig.Grade, orig.MaxGrade
	if ua.Grade != nil {
		grade = *ua.Grade
	}
	if ua.MaxGrade != nil {
		maxGrade = *ua.MaxGrade
	}
	if grade > maxGrade {
		return core.NewValidationError(errGradeAboveMax, core.FieldError{Field: "grade", Error: gradeAboveMaxText})
	}
	return nil
}

// --- query filters ---

type LessonQueryFilter struct {
	ClassID  null.Int  `query:"class_id"`
	DateFrom time.Time `query:"date_from"`
	DateTo   time.Time `query:"date_to"`

	teacherID null.Int
}

func (qf *LessonQueryFilter) ScopeToPrincipal(p auth.Principal) { qf.teacherID = p.TeacherID }

func (qf *LessonQueryFilter) TeacherID() null.Int { return qf.teacherID }

type AssessmentQueryFilter struct {
	LessonID  null.Int `query:"lesson_id"`
	StudentID null.Int `query:"student_id"`
	ClassID   null.Int `query:"class_id"`

	teacherID null.Int
}

func (qf *AssessmentQueryFilter) ScopeToPrincipal(p auth.Principal) { qf.teacherID = p.TeacherID }

func (qf *AssessmentQueryFilter) TeacherID() null.Int { return qf.teacherID }
