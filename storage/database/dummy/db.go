// Package dummydb is an in-memory record store used by unit tests and local
// bring-up. Tables are mutex-guarded maps; transactions are no-ops since
// there is nothing to roll back.
package dummydb

import (
	"context"
	"database/sql"
	"sync"

	"github.com/thehouse/platform/core"
	"github.com/thehouse/platform/core/academic"
	"github.com/thehouse/platform/core/calendar"
	"github.com/thehouse/platform/core/school"
	"github.com/thehouse/platform/core/user"
)

type (
	DB struct {
		noopExecutor

		user         *userTable
		teacher      *teacherTable
		student      *studentTable
		class        *classTable
		schedule     *scheduleTable
		enrollment   *enrollmentTable
		lesson       *lessonTable
		attendance   *attendanceTable
		assessment   *assessmentTable
		announcement *announcementTable
		event        *eventTable
		reservation  *reservationTable
	}

	userTable struct {
		sync.RWMutex
		table map[int]*user.User
	}
	teacherTable struct {
		sync.RWMutex
		table map[int]*school.Teacher
	}
	studentTable struct {
		sync.RWMutex
		table map[int]*school.Student
	}
	classTable struct {
		sync.RWMutex
		table map[int]*school.Class
	}
	scheduleTable struct {
		sync.RWMutex
		table map[int]*school.Schedule
	}
	enrollmentTable struct {
		sync.RWMutex
		table map[int]*school.Enrollment
	}
	lessonTable struct {
		sync.RWMutex
		table map[int]*academic.Lesson
	}
	attendanceTable struct {
		sync.RWMutex
		table map[int]*academic.Attendance
	}
	assessmentTable struct {
		sync.RWMutex
		table map[int]*academic.Assessment
	}
	announcementTable struct {
		sync.RWMutex
		table map[int]*calendar.Announcement
	}
	eventTable struct {
		sync.RWMutex
		table map[int]*calendar.Event
	}
	reservationTable struct {
		sync.RWMutex
		table map[int]*calendar.MaterialReservation
	}
)

func Open() (*DB, error) {
	db := &DB{
		user:         &userTable{table: make(map[int]*user.User)},
		teacher:      &teacherTable{table: make(map[int]*school.Teacher)},
		student:      &studentTable{table: make(map[int]*school.Student)},
		class:        &classTable{table: make(map[int]*school.Class)},
		schedule:     &scheduleTable{table: make(map[int]*school.Schedule)},
		enrollment:   &enrollmentTable{table: make(map[int]*school.Enrollment)},
		lesson:       &lessonTable{table: make(map[int]*academic.Lesson)},
		attendance:   &attendanceTable{table: make(map[int]*academic.Attendance)},
		assessment:   &assessmentTable{table: make(map[int]*academic.Assessment)},
		announcement: &announcementTable{table: make(map[int]*calendar.Announcement)},
		event:        &eventTable{table: make(map[int]*calendar.Event)},
		reservation:  &reservationTable{table: make(map[int]*calendar.MaterialReservation)},
	}
	return db, nil
}

var _ core.DB = (*DB)(nil) // interface compliance check

func (db *DB) BeginTx(ctx context.Context, opts *sql.TxOptions) (core.DBTransactor, error) {
	return noopTx{}, nil
}

// noopExecutor satisfies core.DBExecutor so the DB can flow through
// core.Atomic; the repositories never touch it, they go straight to their
// tables.
type noopExecutor struct{}

func (noopExecutor) Exec(query string, args ...interface{}) (sql.Result, error) { return nil, nil }
func (noopExecutor) ExecContext(ctx context.Context, query string, args ...interface{}) (sql.Result, error) {
	return nil, nil
}
func (noopExecutor) Query(query string, args ...interface{}) (*sql.Rows, error) { return nil, nil }
func (noopExecutor) QueryContext(ctx context.Context, query string, args ...interface{}) (*sql.Rows, error) {
	return nil, nil
}
func (noopExecutor) QueryRow(query string, args ...interface{}) *sql.Row { return nil }
func (noopExecutor) QueryRowContext(ctx context.Context, query string, args ...interface{}) *sql.Row {
	return nil
}

type noopTx struct{ noopExecutor }

func (noopTx) Commit() error   { return nil }
func (noopTx) Rollback() error { return nil }
