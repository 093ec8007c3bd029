package school

import (
	"context"
	"time"

	"github.com/pkg/errors"
	"github.com/volatiletech/null/v8"

	"github.com/thehouse/platform/core"
	"github.com/thehouse/platform/core/auth"
	"github.com/thehouse/platform/core/user"
)

var (
	// errors
	ErrTeacherNotFound    = errors.New("teacher not found")
	ErrStudentNotFound    = errors.New("student not found")
	ErrClassNotFound      = errors.New("class not found")
	ErrScheduleNotFound   = errors.New("schedule not found")
	ErrEnrollmentNotFound = errors.New("enrollment not found")
	ErrCPFExists          = errors.New("a record with this CPF already exists")
	ErrAlreadyEnrolled    = errors.New("student is already enrolled in this class")
	ErrStudentInactive    = errors.New("student is not active")
	ErrClassInactive      = errors.New("class is not active")
)

type (
	TeacherGetFilter struct {
		ID     int
		UserID int
	}

	Repository interface {
		CheckTeacherCPFUniqueness(ctx context.Context, cpf string, exec ...core.DBExecutor) error
		CreateTeacher(ctx context.Context, t Teacher, exec ...core.DBExecutor) (Teacher, error)
		QueryTeachers(ctx context.Context, filter *TeacherQueryFilter, ordering []core.DBOrdering, exec ...core.DBExecutor) ([]Teacher, error)
		GetTeacher(ctx context.Context, filter TeacherGetFilter, exec ...core.DBExecutor) (Teacher, error)
		UpdateTeacher(ctx context.Context, t Teacher, exec ...core.DBExecutor) (Teacher, error)
		DeleteTeacher(ctx context.Context, id int, exec ...core.DBExecutor) error
		// ReleaseTeacherClasses nulls teacher_id on every class the teacher
		// owns, returning the count released.
		ReleaseTeacherClasses(ctx context.Context, teacherID int, exec ...core.DBExecutor) (int64, error)

		CheckStudentUniqueness(ctx context.Context, cpf string, email null.String, excludedStudents []Student, exec ...core.DBExecutor) error
		CreateStudent(ctx context.Context, s Student, exec ...core.DBExecutor) (Student, error)
		QueryStudents(ctx context.Context, filter *StudentQueryFilter, ordering []core.DBOrdering, exec ...core.DBExecutor) ([]Student, error)
		GetStudent(ctx context.Context, id int, exec ...core.DBExecutor) (Student, error)
		UpdateStudent(ctx context.Context, s Student, isActive *bool, exec ...core.DBExecutor) (Student, error)

		CreateClass(ctx context.Context, c Class, exec ...core.DBExecutor) (Class, error)
		QueryClasses(ctx context.Context, filter *ClassQueryFilter, ordering []core.DBOrdering, exec ...core.DBExecutor) ([]Class, error)
		GetClass(ctx context.Context, id int, exec ...core.DBExecutor) (Class, error)
		UpdateClass(ctx context.Context, c Class, isActive *bool, exec ...core.DBExecutor) (Class, error)
		// GetClassOwner walks class → teacher → user and returns the owning
		// user ID; null when the class is currently teacherless.
		GetClassOwner(ctx context.Context, classID int, exec ...core.DBExecutor) (null.Int, error)

		CreateSchedule(ctx context.Context, sch Schedule, exec ...core.DBExecutor) (Schedule, error)
		QuerySchedules(ctx context.Context, classID int, exec ...core.DBExecutor) ([]Schedule, error)
		DeleteSchedule(ctx context.Context, id int, exec ...core.DBExecutor) error

		// GetEnrollment returns the row for (student, class) regardless of
		// its active flag, so re-enrollment can reactivate it in place.
		GetEnrollment(ctx context.Context, studentID, classID int, exec ...core.DBExecutor) (Enrollment, error)
		CreateEnrollment(ctx context.Context, e Enrollment, exec ...core.DBExecutor) (Enrollment, error)
		ReactivateEnrollment(ctx context.Context, id int, enrolledOn time.Time, exec ...core.DBExecutor) (Enrollment, error)
		DeactivateEnrollment(ctx context.Context, id int, exec ...core.DBExecutor) error
		QueryEnrollments(ctx context.Context, filter *EnrollmentQueryFilter, ordering []core.DBOrdering, exec ...core.DBExecutor) ([]Enrollment, error)

		GetStats(ctx context.Context, today time.Time, exec ...core.DBExecutor) (Stats, error)
	}

	ServiceInterface interface {
		CheckTeacherUniqueness(cpf, email string) error
		CheckStudentUniqueness(cpf string, email null.String, excludedStudents ...Student) error

		CreateTeacher(ctx context.Context, p auth.Principal, nt NewTeacher) (Teacher, error)
		QueryTeachers(ctx context.Context, p auth.Principal, filter *TeacherQueryFilter, ordering []core.DBOrdering) ([]Teacher, error)
		GetTeacher(ctx context.Context, p auth.Principal, id int) (Teacher, error)
		GetTeacherByUser(ctx context.Context, userID int) (Teacher, error)
		UpdateTeacher(ctx context.Context, p auth.Principal, id int, ut UpdateTeacher) (Teacher, error)
		DeleteTeacher(ctx context.Context, p auth.Principal, id int) error

		CreateStudent(ctx context.Context, p auth.Principal, ns NewStudent) (Student, error)
		QueryStudents(ctx context.Context, p auth.Principal, filter *StudentQueryFilter, ordering []core.DBOrdering) ([]Student, error)
		GetStudent(ctx context.Context, p auth.Principal, id int) (Student, error)
		UpdateStudent(ctx context.Context, p auth.Principal, id int, us UpdateStudent) (Student, error)
		DeleteStudent(ctx context.Context, p auth.Principal, id int) error

		CreateClass(ctx context.Context, p auth.Principal, nc NewClass) (Class, error)
		QueryClasses(ctx context.Context, p auth.Principal, filter *ClassQueryFilter, ordering []core.DBOrdering) ([]Class, error)
		GetClass(ctx context.Context, p auth.Principal, id int) (Class, error)
		UpdateClass(ctx context.Context, p auth.Principal, id int, uc UpdateClass) (Class, error)
		DeleteClass(ctx context.Context, p auth.Principal, id int) error

		CreateSchedule(ctx context.Context, p auth.Principal, ns NewSchedule) (Schedule, error)
		QuerySchedules(ctx context.Context, p auth.Principal, classID int) ([]Schedule, error)
		DeleteSchedule(ctx context.Context, p auth.Principal, id int) error

		Enroll(ctx context.Context, p auth.Principal, ne NewEnrollment) (Enrollment, error)
		Unenroll(ctx context.Context, p auth.Principal, id int) error
		QueryEnrollments(ctx context.Context, p auth.Principal, filter *EnrollmentQueryFilter, ordering []core.DBOrdering) ([]Enrollment, error)

		GetStats(ctx context.Context, p auth.Principal) (Stats, error)
	}

	Service struct {
		db      core.DB
		repo    Repository
		usrRepo user.Repository
		authz   *auth.Authorizer
	}
)

var _ ServiceInterface = (*Service)(nil)

func NewService(db core.DB, repo Repository, usrRepo user.Repository, authz *auth.Authorizer) *Service {
	svc := &Service{db: db, repo: repo, usrRepo: usrRepo, authz: authz}
	authz.RegisterOwnerResolver(auth.ResourceClass, svc.classOwner)
	return svc
}

func (svc *Service) classOwner(ctx context.Context, classID int, exec ...core.DBExecutor) (null.Int, error) {
	return svc.repo.GetClassOwner(ctx, classID, exec...)
}

func (svc *Service) CheckTeacherUniqueness(cpf, email string) error {
	ctx := context.Background()
	if err := svc.repo.CheckTeacherCPFUniqueness(ctx, cpf); err != nil {
		if errors.Cause(err) == ErrCPFExists {
			return core.NewConflictError(err, "cpf")
		}
		return err
	}
	if err := svc.usrRepo.CheckEmailUniqueness(ctx, email, nil); err != nil {
		if errors.Cause(err) == user.ErrEmailExists {
			return core.NewConflictError(err, "email")
		}
		return err
	}
	return nil
}

func (svc *Service) CheckStudentUniqueness(cpf string, email null.String, excludedStudents ...Student) error {
	if err := svc.repo.CheckStudentUniqueness(context.Background(), cpf, email, excludedStudents); err != nil {
		if errors.Cause(err) == ErrCPFExists {
			return core.NewConflictError(err, "cpf")
		}
		if errors.Cause(err) == user.ErrEmailExists {
			return core.NewConflictError(err, "email")
		}
		return err
	}
	return nil
}

// --- teachers ---

// CreateTeacher provisions the user account and the teacher record in one
// transaction; a failure on either side leaves nothing behind.
func (svc *Service) CreateTeacher(ctx context.Context, p auth.Principal, nt NewTeacher) (Teacher, error) {
	if err := svc.authz.Authorize(ctx, p, auth.ActionCreate, auth.ResourceTeacher, nil); err != nil {
		return Teacher{}, err
	}

	now := time.Now().UTC()
	usr := user.User{
		Name:      nt.Name,
		Email:     nt.Email,
		Role:      user.RoleTeacher,
		IsActive:  true,
		CreatedAt: now,
		UpdatedAt: now,
	}
	if err := usr.SetPassword(nt.Password); err != nil {
		return Teacher{}, errors.Wrap(err, "setting password")
	}

	var t Teacher
	err := core.Atomic(ctx, svc.db, func(tx core.DBTransactor) error {
		var err error
		if usr, err = svc.usrRepo.CreateUser(ctx, usr, tx); err != nil {
			return err
		}
		t, err = svc.repo.CreateTeacher(ctx, Teacher{
			UserID:    usr.ID,
			CPF:       nt.CPF,
			Phone:     nt.Phone,
			Specialty: nt.Specialty,
			HiredOn:   nt.HiredOn,
			CreatedAt: now,
			UpdatedAt: now,
		}, tx)
		return err
	})
	if err != nil {
		return Teacher{}, err
	}
	t.Name = usr.Name
	t.Email = usr.Email
	return t, nil
}

func (svc *Service) QueryTeachers(ctx context.Context, p auth.Principal, filter *TeacherQueryFilter, ordering []core.DBOrdering) ([]Teacher, error) {
	if err := svc.authz.Authorize(ctx, p, auth.ActionList, auth.ResourceTeacher, nil); err != nil {
		return nil, err
	}
	return svc.repo.QueryTeachers(ctx, filter, ordering)
}

func (svc *Service) GetTeacher(ctx context.Context, p auth.Principal, id int) (Teacher, error) {
	if err := svc.authz.Authorize(ctx, p, auth.ActionRead, auth.ResourceTeacher, nil); err != nil {
		return Teacher{}, err
	}
	return svc.repo.GetTeacher(ctx, TeacherGetFilter{ID: id})
}

func (svc *Service) GetTeacherByUser(ctx context.Context, userID int) (Teacher, error) {
	return svc.repo.GetTeacher(ctx, TeacherGetFilter{UserID: userID})
}

func (svc *Service) UpdateTeacher(ctx context.Context, p auth.Principal, id int, ut UpdateTeacher) (Teacher, error) {
	if err := svc.authz.Authorize(ctx, p, auth.ActionUpdate, auth.ResourceTeacher, nil); err != nil {
		return Teacher{}, err
	}

	orig, err := svc.repo.GetTeacher(ctx, TeacherGetFilter{ID: id})
	if err != nil {
		return Teacher{}, err
	}

	now := time.Now().UTC()
	t := Teacher{
		ID:        id,
		Phone:     ut.Phone,
		Specialty: ut.Specialty,
		HiredOn:   ut.HiredOn,
		UpdatedAt: now,
	}
	err = core.Atomic(ctx, svc.db, func(tx core.DBTransactor) error {
		if ut.Name != orig.Name {
			if _, err := svc.usrRepo.UpdateUser(ctx, user.User{ID: orig.UserID, Name: ut.Name, Email: orig.Email, UpdatedAt: now}, nil, tx); err != nil {
				return err
			}
		}
		var err error
		t, err = svc.repo.UpdateTeacher(ctx, t, tx)
		return err
	})
	if err != nil {
		return Teacher{}, err
	}
	t.Name = ut.Name
	t.Email = orig.Email
	return t, nil
}

// DeleteTeacher hard-deletes the teacher and its user account. Classes the
// teacher owned are kept and go teacherless, never deleted with them.
func (svc *Service) DeleteTeacher(ctx context.Context, p auth.Principal, id int) error {
	if err := svc.authz.Authorize(ctx, p, auth.ActionDelete, auth.ResourceTeacher, nil); err != nil {
		return err
	}

	t, err := svc.repo.GetTeacher(ctx, TeacherGetFilter{ID: id})
	if err != nil {
		return err
	}
	return core.Atomic(ctx, svc.db, func(tx core.DBTransactor) error {
		if _, err := svc.repo.ReleaseTeacherClasses(ctx, id, tx); err != nil {
			return err
		}
		if err := svc.repo.DeleteTeacher(ctx, id, tx); err != nil {
			return err
		}
		return svc.usrRepo.DeleteUsersByID(ctx, []int{t.UserID}, tx)
	})
}

// --- students ---

func (svc *Service) CreateStudent(ctx context.Context, p auth.Principal, ns NewStudent) (Student, error) {
	if err := svc.authz.Authorize(ctx, p, auth.ActionCreate, auth.ResourceStudent, nil); err != nil {
		return Student{}, err
	}
	now := time.Now().UTC()
	return svc.repo.CreateStudent(ctx, Student{
		Name:          ns.Name,
		Email:         ns.Email,
		CPF:           ns.CPF,
		BirthDate:     ns.BirthDate,
		Phone:         ns.Phone,
		Address:       ns.Address,
		GuardianName:  ns.GuardianName,
		GuardianPhone: ns.GuardianPhone,
		IsActive:      true,
		CreatedAt:     now,
		UpdatedAt:     now,
	})
}

func (svc *Service) QueryStudents(ctx context.Context, p auth.Principal, filter *StudentQueryFilter, ordering []core.DBOrdering) ([]Student, error) {
	if err := svc.authz.Authorize(ctx, p, auth.ActionList, auth.ResourceStudent, nil); err != nil {
		return nil, err
	}
	svc.authz.ScopeQuery(p, filter)
	return svc.repo.QueryStudents(ctx, filter, ordering)
}

func (svc *Service) GetStudent(ctx context.Context, p auth.Principal, id int) (Student, error) {
	if err := svc.authz.Authorize(ctx, p, auth.ActionRead, auth.ResourceStudent, nil); err != nil {
		return Student{}, err
	}
	return svc.repo.GetStudent(ctx, id)
}

func (svc *Service) UpdateStudent(ctx context.Context, p auth.Principal, id int, us UpdateStudent) (Student, error) {
	if err := svc.authz.Authorize(ctx, p, auth.ActionUpdate, auth.ResourceStudent, nil); err != nil {
		return Student{}, err
	}
	return svc.repo.UpdateStudent(ctx, Student{
		ID:            id,
		Name:          us.Name,
		Email:         us.Email,
		BirthDate:     us.BirthDate,
		Phone:         us.Phone,
		Address:       us.Address,
		GuardianName:  us.GuardianName,
		GuardianPhone: us.GuardianPhone,
		UpdatedAt:     time.Now().UTC(),
	}, us.IsActive)
}

// DeleteStudent flips is_active off; enrollment, attendance and assessment
// history stays referenced so the row is never physically removed.
func (svc *Service) DeleteStudent(ctx context.Context, p auth.Principal, id int) error {
	if err := svc.authz.Authorize(ctx, p, auth.ActionDelete, auth.ResourceStudent, nil); err != nil {
		return err
	}
	orig, err := svc.repo.GetStudent(ctx, id)
	if err != nil {
		return err
	}
	inactive := false
	orig.UpdatedAt = time.Now().UTC()
	_, err = svc.repo.UpdateStudent(ctx, orig, &inactive)
	return err
}

// --- classes ---

// CreateClass is gated purely by role: a class has no owner until a teacher
// is assigned.
func (svc *Service) CreateClass(ctx context.Context, p auth.Principal, nc NewClass) (Class, error) {
	if err := svc.authz.Authorize(ctx, p, auth.ActionCreate, auth.ResourceClass, nil); err != nil {
		return Class{}, err
	}
	capacity := nc.Capacity
	if capacity == 0 {
		capacity = defaultClassCapacity
	}
	now := time.Now().UTC()
	return svc.repo.CreateClass(ctx, Class{
		Name:        nc.Name,
		Description: nc.Description,
		Level:       nc.Level,
		TeacherID:   nc.TeacherID,
		Capacity:    capacity,
		StartsOn:    nc.StartsOn,
		EndsOn:      nc.EndsOn,
		IsActive:    true,
		CreatedAt:   now,
		UpdatedAt:   now,
	})
}

func (svc *Service) QueryClasses(ctx context.Context, p auth.Principal, filter *ClassQueryFilter, ordering []core.DBOrdering) ([]Class, error) {
	if err := svc.authz.Authorize(ctx, p, auth.ActionList, auth.ResourceClass, nil); err != nil {
		return nil, err
	}
	svc.authz.ScopeQuery(p, filter)
	return svc.repo.QueryClasses(ctx, filter, ordering)
}

func (svc *Service) GetClass(ctx context.Context, p auth.Principal, id int) (Class, error) {
	c, err := svc.repo.GetClass(ctx, id)
	if err != nil {
		return Class{}, err
	}
	if err = svc.authz.Authorize(ctx, p, auth.ActionRead, auth.ResourceClass, &auth.Ref{Resource: auth.ResourceClass, ID: id}); err != nil {
		return Class{}, err
	}
	return c, nil
}

func (svc *Service) UpdateClass(ctx context.Context, p auth.Principal, id int, uc UpdateClass) (Class, error) {
	if err := svc.authz.Authorize(ctx, p, auth.ActionUpdate, auth.ResourceClass, &auth.Ref{Resource: auth.ResourceClass, ID: id}); err != nil {
		return Class{}, err
	}
	return svc.repo.UpdateClass(ctx, Class{
		ID:          id,
		Name:        uc.Name,
		Description: uc.Description,
		Level:       uc.Level,
		TeacherID:   uc.TeacherID,
		Capacity:    uc.Capacity,
		StartsOn:    uc.StartsOn,
		EndsOn:      uc.EndsOn,
		UpdatedAt:   time.Now().UTC(),
	}, uc.IsActive)
}

// DeleteClass soft-deletes: lessons and enrollments keep pointing at it.
func (svc *Service) DeleteClass(ctx context.Context, p auth.Principal, id int) error {
	if err := svc.authz.Authorize(ctx, p, auth.ActionDelete, auth.ResourceClass, &auth.Ref{Resource: auth.ResourceClass, ID: id}); err != nil {
		return err
	}
	orig, err := svc.repo.GetClass(ctx, id)
	if err != nil {
		return err
	}
	inactive := false
	orig.UpdatedAt = time.Now().UTC()
	_, err = svc.repo.UpdateClass(ctx, orig, &inactive)
	return err
}

const defaultClassCapacity = 15

// --- schedules ---

func (svc *Service) CreateSchedule(ctx context.Context, p auth.Principal, ns NewSchedule) (Schedule, error) {
	if err := svc.authz.Authorize(ctx, p, auth.ActionCreate, auth.ResourceSchedule, &auth.Ref{Resource: auth.ResourceClass, ID: ns.ClassID}); err != nil {
		return Schedule{}, err
	}
	if _, err := svc.repo.GetClass(ctx, ns.ClassID); err != nil {
		return Schedule{}, err
	}
	return svc.repo.CreateSchedule(ctx, Schedule{
		ClassID:   ns.ClassID,
		Weekday:   ns.Weekday,
		StartTime: ns.StartTime,
		EndTime:   ns.EndTime,
		Room:      ns.Room,
		CreatedAt: time.Now().UTC(),
	})
}

func (svc *Service) QuerySchedules(ctx context.Context, p auth.Principal, classID int) ([]Schedule, error) {
	if err := svc.authz.Authorize(ctx, p, auth.ActionList, auth.ResourceSchedule, nil); err != nil {
		return nil, err
	}
	return svc.repo.QuerySchedules(ctx, classID)
}

func (svc *Service) DeleteSchedule(ctx context.Context, p auth.Principal, id int) error {
	if err := svc.authz.Authorize(ctx, p, auth.ActionDelete, auth.ResourceSchedule, nil); err != nil {
		return err
	}
	return svc.repo.DeleteSchedule(ctx, id)
}

// --- enrollments ---

// Enroll creates or reactivates the (student, class) enrollment. An active
// row fails with ErrAlreadyEnrolled; an inactive one is flipped back on in
// place so the pair never accumulates duplicates. The existence check and
// the write share one transaction; a concurrent winner surfaces through the
// store's uniqueness constraint as ErrAlreadyEnrolled too.
func (svc *Service) Enroll(ctx context.Context, p auth.Principal, ne NewEnrollment) (Enrollment, error) {
	if err := svc.authz.Authorize(ctx, p, auth.ActionCreate, auth.ResourceEnrollment, nil); err != nil {
		return Enrollment{}, err
	}

	var enr Enrollment
	err := core.Atomic(ctx, svc.db, func(tx core.DBTransactor) error {
		c, err := svc.repo.GetClass(ctx, ne.ClassID, tx)
		if err != nil {
			return err
		}
		if !c.IsActive {
			return ErrClassInactive
		}
		s, err := svc.repo.GetStudent(ctx, ne.StudentID, tx)
		if err != nil {
			return err
		}
		if !s.IsActive {
			return ErrStudentInactive
		}

		now := time.Now().UTC()
		existing, err := svc.repo.GetEnrollment(ctx, ne.StudentID, ne.ClassID, tx)
		switch errors.Cause(err) {
		case nil:
			if existing.IsActive {
				return ErrAlreadyEnrolled
			}
			enr, err = svc.repo.ReactivateEnrollment(ctx, existing.ID, now, tx)
			return err
		case ErrEnrollmentNotFound:
			enr, err = svc.repo.CreateEnrollment(ctx, Enrollment{
				StudentID:  ne.StudentID,
				ClassID:    ne.ClassID,
				EnrolledOn: now,
				IsActive:   true,
				CreatedAt:  now,
			}, tx)
			return err
		default:
			return err
		}
	})
	return enr, err
}

func (svc *Service) Unenroll(ctx context.Context, p auth.Principal, id int) error {
	if err := svc.authz.Authorize(ctx, p, auth.ActionDelete, auth.ResourceEnrollment, nil); err != nil {
		return err
	}
	return svc.repo.DeactivateEnrollment(ctx, id)
}

func (svc *Service) QueryEnrollments(ctx context.Context, p auth.Principal, filter *EnrollmentQueryFilter, ordering []core.DBOrdering) ([]Enrollment, error) {
	if err := svc.authz.Authorize(ctx, p, auth.ActionList, auth.ResourceEnrollment, nil); err != nil {
		return nil, err
	}
	svc.authz.ScopeQuery(p, filter)
	return svc.repo.QueryEnrollments(ctx, filter, ordering)
}

// --- dashboard ---

// GetStats is a privileged-only summary; scoped roles have no school-wide view.
func (svc *Service) GetStats(ctx context.Context, p auth.Principal) (Stats, error) {
	if !p.Role.Canonical() {
		return Stats{}, &auth.DeniedError{Principal: p, Action: auth.ActionList, Resource: auth.ResourceClass, Reason: auth.ReasonUnknownRole}
	}
	if !p.Privileged() {
		return Stats{}, &auth.DeniedError{Principal: p, Action: auth.ActionList, Resource: auth.ResourceClass, Reason: auth.ReasonRoleForbidden}
	}
	return svc.repo.GetStats(ctx, time.Now().UTC())
}
