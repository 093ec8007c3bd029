package school

import (
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/volatiletech/null/v8"

	"github.com/thehouse/platform/core"
	"github.com/thehouse/platform/core/auth"
)

// Teacher extends a User with school-facing facts. It never exists without
// its user row; the Name/Email columns here come from a join, for listings.
type Teacher struct {
	ID        int       `json:"id" db:"id"`
	UserID    int       `json:"user_id" db:"user_id"`
	Name      string    `json:"name" db:"name"`
	Email     string    `json:"email" db:"email"`
	CPF       string    `json:"cpf" db:"cpf"`
	Phone     string    `json:"phone" db:"phone"`
	Specialty string    `json:"specialty" db:"specialty"`
	HiredOn   null.Time `json:"hired_on" db:"hired_on"`
	CreatedAt time.Time `json:"created_at" db:"created_at"` // UTC
	UpdatedAt time.Time `json:"updated_at" db:"updated_at"` // UTC
}

type Student struct {
	ID            int         `json:"id" db:"id"`
	Name          string      `json:"name" db:"name"`
	Email         null.String `json:"email" db:"email"`
	CPF           string      `json:"cpf" db:"cpf"`
	BirthDate     null.Time   `json:"birth_date" db:"birth_date"`
	Phone         string      `json:"phone" db:"phone"`
	Address       string      `json:"address" db:"address"`
	GuardianName  string      `json:"guardian_name" db:"guardian_name"`
	GuardianPhone string      `json:"guardian_phone" db:"guardian_phone"`
	IsActive      bool        `json:"is_active" db:"is_active"`
	CreatedAt     time.Time   `json:"created_at" db:"created_at"` // UTC
	UpdatedAt     time.Time   `json:"updated_at" db:"updated_at"` // UTC
}

// Class may be briefly teacherless: TeacherID goes NULL when its teacher is
// removed, the class itself lives on.
type Class struct {
	ID          int         `json:"id" db:"id"`
	Name        string      `json:"name" db:"name"`
	Description null.String `json:"description" db:"description"`
	Level       null.String `json:"level" db:"level"`
	TeacherID   null.Int    `json:"teacher_id" db:"teacher_id"`
	Capacity    int         `json:"capacity" db:"capacity"`
	StartsOn    null.Time   `json:"starts_on" db:"starts_on"`
	EndsOn      null.Time   `json:"ends_on" db:"ends_on"`
	IsActive    bool        `json:"is_active" db:"is_active"`
	CreatedAt   time.Time   `json:"created_at" db:"created_at"` // UTC
	UpdatedAt   time.Time   `json:"updated_at" db:"updated_at"` // UTC
}

// Schedule is a weekly slot of a class. Weekday follows time.Weekday.
type Schedule struct {
	ID        int       `json:"id" db:"id"`
	ClassID   int       `json:"class_id" db:"class_id"`
	Weekday   int       `json:"weekday" db:"weekday"`
	StartTime string    `json:"start_time" db:"start_time"` // HH:MM
	EndTime   string    `json:"end_time" db:"end_time"`     // HH:MM
	Room      string    `json:"room" db:"room"`
	CreatedAt time.Time `json:"created_at" db:"created_at"` // UTC
}

// Enrollment ties a student to a class. At most one active row may exist per
// (student, class) pair: re-enrolling flips the old row back on.
type Enrollment struct {
	ID         int       `json:"id" db:"id"`
	StudentID  int       `json:"student_id" db:"student_id"`
	ClassID    int       `json:"class_id" db:"class_id"`
	EnrolledOn time.Time `json:"enrolled_on" db:"enrolled_on"`
	IsActive   bool      `json:"is_active" db:"is_active"`
	CreatedAt  time.Time `json:"created_at" db:"created_at"` // UTC
}

// --- input shapes ---

// NewTeacher provisions the user account and the teacher record together.
type NewTeacher struct {
	Name            string    `json:"name" validate:"required"`
	Email           string    `json:"email" validate:"required,email"`
	Password        string    `json:"password" validate:"required"`
	PasswordConfirm string    `json:"password_confirm" validate:"required,eqfield=Password"`
	CPF             string    `json:"cpf" validate:"required,cpf"`
	Phone           string    `json:"phone"`
	Specialty       string    `json:"specialty"`
	HiredOn         null.Time `json:"hired_on"`
}

func (nt *NewTeacher) Validate(validate *validator.Validate, svc ServiceInterface) error {
	nt.Name = core.CleanString(nt.Name)
	nt.Email = core.CleanString(nt.Email, true /* lower */)
	nt.CPF = core.CleanString(nt.CPF)

	if err := validate.Struct(nt); err != nil {
		return err
	}
	return svc.CheckTeacherUniqueness(nt.CPF, nt.Email)
}

type UpdateTeacher struct {
	Name      string    `json:"name"`
	Phone     string    `json:"phone"`
	Specialty string    `json:"specialty"`
	HiredOn   null.Time `json:"hired_on"`
}

func (ut *UpdateTeacher) Validate(orig Teacher, validate *validator.Validate) error {
	if name := core.CleanString(ut.Name); name != "" {
		ut.Name = name
	} else {
		ut.Name = orig.Name
	}
	return validate.Struct(ut)
}

type NewStudent struct {
	Name          string      `json:"name" validate:"required"`
	Email         null.String `json:"email" validate:"omitempty,email"`
	CPF           string      `json:"cpf" validate:"required,cpf"`
	BirthDate     null.Time   `json:"birth_date"`
	Phone         string      `json:"phone"`
	Address       string      `json:"address"`
	GuardianName  string      `json:"guardian_name"`
	GuardianPhone string      `json:"guardian_phone"`
}

func (ns *NewStudent) Validate(validate *validator.Validate, svc ServiceInterface) error {
	ns.Name = core.CleanString(ns.Name)
	ns.CPF = core.CleanString(ns.CPF)
	if ns.Email.Valid {
		ns.Email = null.NewString(core.CleanString(ns.Email.String, true /* lower */), ns.Email.String != "")
	}

	if err := validate.Struct(ns); err != nil {
		return err
	}
	return svc.CheckStudentUniqueness(ns.CPF, ns.Email)
}

type UpdateStudent struct {
	Name          string      `json:"name"`
	Email         null.String `json:"email" validate:"omitempty,email"`
	BirthDate     null.Time   `json:"birth_date"`
	Phone         string      `json:"phone"`
	Address       string      `json:"address"`
	GuardianName  string      `json:"guardian_name"`
	GuardianPhone string      `json:"guardian_phone"`
	IsActive      *bool       `json:"is_active"`
}

func (us *UpdateStudent) Validate(orig Student, validate *validator.Validate, svc ServiceInterface) error {
	if name := core.CleanString(us.Name); name != "" {
		us.Name = name
	} else {
		us.Name = orig.Name
	}
	if err := validate.Struct(us); err != nil {
		return err
	}
	if us.Email.Valid && us.Email != orig.Email {
		return svc.CheckStudentUniqueness("", us.Email, orig)
	}
	return nil
}

type NewClass struct {
	Name        string      `json:"name" validate:"required"`
	Description null.String `json:"description"`
	Level       null.String `json:"level"`
	TeacherID   null.Int    `json:"teacher_id"`
	Capacity    int         `json:"capacity" validate:"omitempty,gt=0"`
	StartsOn    null.Time   `json:"starts_on"`
	EndsOn      null.Time   `json:"ends_on"`
}

func (nc *NewClass) Validate(validate *validator.Validate) error {
	nc.Name = core.CleanString(nc.Name)
	return validate.Struct(nc)
}

type UpdateClass struct {
	Name        string      `json:"name"`
	Description null.String `json:"description"`
	Level       null.String `json:"level"`
	TeacherID   null.Int    `json:"teacher_id"`
	Capacity    int         `json:"capacity" validate:"omitempty,gt=0"`
	StartsOn    null.Time   `json:"starts_on"`
	EndsOn      null.Time   `json:"ends_on"`
	IsActive    *bool       `json:"is_active"`
}

func (uc *UpdateClass) Validate(orig Class, validate *validator.Validate) error {
	if name := core.CleanString(uc.Name); name != "" {
		uc.Name = name
	} else {
		uc.Name = orig.Name
	}
	return validate.Struct(uc)
}

type NewSchedule struct {
	ClassID   int    `json:"class_id" validate:"required"`
	Weekday   int    `json:"weekday" validate:"min=0,max=6"`
	StartTime string `json:"start_time" validate:"required,timeslot"`
	EndTime   string `json:"end_time" validate:"required,timeslot"`
	Room      string `json:"room"`
}

func (ns *NewSchedule) Validate(validate *validator.Validate) error {
	ns.Room = core.CleanString(ns.Room)
	if err := validate.Struct(ns); err != nil {
		return err
	}
	if ns.EndTime <= ns.StartTime {
		return core.NewValidationError(errSlotEndsBeforeStart, core.FieldError{Field: "end_time", Error: slotEndText})
	}
	return nil
}

type NewEnrollment struct {
	StudentID int `json:"student_id" validate:"required"`
	ClassID   int `json:"class_id" validate:"required"`
}

func (ne NewEnrollment) Validate(validate *validator.Validate) error { return validate.Struct(ne) }

// --- query filters ---

type TeacherQueryFilter struct {
	Search string `query:"search"`
}

func (qf *TeacherQueryFilter) Clean() { qf.Search = core.CleanString(qf.Search) }

type StudentQueryFilter struct {
	Search   string `query:"search"`
	IsActive *bool  `query:"is_active"`
	ClassID  null.Int

	// teacherID narrows results to students enrolled in the teacher's
	// classes. Set only through ScopeToPrincipal.
	teacherID null.Int
}

func (qf *StudentQueryFilter) Clean() { qf.Search = core.CleanString(qf.Search) }

func (qf *StudentQueryFilter) ScopeToPrincipal(p auth.Principal) { qf.teacherID = p.TeacherID }

func (qf *StudentQueryFilter) TeacherID() null.Int { return qf.teacherID }

type ClassQueryFilter struct {
	Search   string      `query:"search"`
	Level    null.String `query:"level"`
	IsActive *bool       `query:"is_active"`

	teacherID null.Int
}

func (qf *ClassQueryFilter) Clean() { qf.Search = core.CleanString(qf.Search) }

func (qf *ClassQueryFilter) ScopeToPrincipal(p auth.Principal) { qf.teacherID = p.TeacherID }

func (qf *ClassQueryFilter) TeacherID() null.Int { return qf.teacherID }

type EnrollmentQueryFilter struct {
	StudentID null.Int `query:"student_id"`
	ClassID   null.Int `query:"class_id"`
	IsActive  *bool    `query:"is_active"`

	teacherID null.Int
}

func (qf *EnrollmentQueryFilter) ScopeToPrincipal(p auth.Principal) { qf.teacherID = p.TeacherID }

func (qf *EnrollmentQueryFilter) TeacherID() null.Int { return qf.teacherID }

// Stats is the dashboard summary.
type Stats struct {
	ActiveClasses  int `json:"active_classes" db:"active_classes"`
	ActiveTeachers int `json:"active_teachers" db:"active_teachers"`
	ActiveStudents int `json:"active_students" db:"active_students"`
	LessonsToday   int `json:"lessons_today" db:"lessons_today"`
}
