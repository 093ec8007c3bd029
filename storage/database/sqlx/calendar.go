package sqlxrepos

import (
	"context"
	"database/sql"
	"strconv"

	"github.com/jmoiron/sqlx"
	"github.com/pkg/errors"
	"github.com/volatiletech/null/v8"

	"github.com/thehouse/platform/core"
	"github.com/thehouse/platform/core/calendar"
)

const (
	announcementColumns = "id, title, body, published_on, is_active, created_by, created_at, updated_at"
	eventColumns        = "id, title, description, starts_at, ends_at, location, is_active, created_by, created_at, updated_at"
	reservationColumns  = "id, reference, material, reserved_by, reserved_for, notes, created_at"
)

type calendarRepository struct {
	db *sqlx.DB
}

var _ calendar.Repository = (*calendarRepository)(nil) // interface compliance check

func NewCalendarRepository(db *sqlx.DB) *calendarRepository {
	return &calendarRepository{db: db}
}

// --- announcements ---

func scanAnnouncement(row rowScanner) (calendar.Announcement, error) {
	var a calendar.Announcement
	err := row.Scan(&a.ID, &a.Title, &a.Body, &a.PublishedOn, &a.IsActive, &a.CreatedBy, &a.CreatedAt, &a.UpdatedAt)
	return a, err
}

func (repo calendarRepository) CreateAnnouncement(ctx context.Context, a calendar.Announcement, exec ...core.DBExecutor) (calendar.Announcement, error) {
	err := getExec(repo.db, exec).QueryRowContext(ctx,
		`INSERT INTO announcements (title, body, published_on, is_active, created_by, created_at, updated_at)
		 VALUES ($1, $2, $3, $4, $5, $6, $7)
		 RETURNING id`,
		a.Title, a.Body, a.PublishedOn, a.IsActive, a.CreatedBy, a.CreatedAt, a.UpdatedAt,
	).Scan(&a.ID)
	if err != nil {
		return calendar.Announcement{}, errors.Wrap(err, "inserting announcement")
	}
	return a, nil
}

func (repo calendarRepository) GetAnnouncement(ctx context.Context, id int, exec ...core.DBExecutor) (calendar.Announcement, error) {
	a, err := scanAnnouncement(getExec(repo.db, exec).QueryRowContext(ctx,
		`SELECT `+announcementColumns+` FROM announcements WHERE id = $1`, id))
	if err != nil {
		if err == sql.ErrNoRows {
			return calendar.Announcement{}, calendar.ErrAnnouncementNotFound
		}
		return calendar.Announcement{}, errors.Wrap(err, "getting announcement")
	}
	return a, nil
}

func (repo calendarRepository) UpdateAnnouncement(ctx context.Context, a calendar.Announcement, isActive *bool, exec ...core.DBExecutor) (calendar.Announcement, error) {
	active := sql.NullBool{}
	if isActive != nil {
		active = sql.NullBool{Bool: *isActive, Valid: true}
	}
	updated, err := scanAnnouncement(getExec(repo.db, exec).QueryRowContext(ctx,
		`UPDATE announcements SET
			title = $2, body = $3, published_on = $4, updated_at = $5,
			is_active = COALESCE($6, is_active)
		 WHERE id = $1
		 RETURNING `+announcementColumns,
		a.ID, a.Title, a.Body, a.PublishedOn, a.UpdatedAt, active))
	if err != nil {
		if err == sql.ErrNoRows {
			return calendar.Announcement{}, calendar.ErrAnnouncementNotFound
		}
		return calendar.Announcement{}, errors.Wrap(err, "updating announcement")
	}
	return updated, nil
}

func (repo calendarRepository) QueryAnnouncements(ctx context.Context, filter *calendar.CalendarQueryFilter, ordering []core.DBOrdering, exec ...core.DBExecutor) ([]calendar.Announcement, error) {
	query := `SELECT ` + announcementColumns + ` FROM announcements`
	where, args := calendarWhere(filter, "published_on")
	if len(where) > 0 {
		query += " WHERE " + joinAnd(where)
	}
	query += orderBy(ordering, "created_at DESC")

	announcements, err := selectAll(ctx, getExec(repo.db, exec), scanAnnouncement, query, args...)
	if err != nil {
		return nil, errors.Wrap(err, "querying announcements")
	}
	return announcements, nil
}

// --- events ---

func scanEvent(row rowScanner) (calendar.Event, error) {
	var e calendar.Event
	err := row.Scan(&e.ID, &e.Title, &e.Description, &e.StartsAt, &e.EndsAt, &e.Location, &e.IsActive, &e.CreatedBy, &e.CreatedAt, &e.UpdatedAt)
	return e, err
}

func (repo calendarRepository) CreateEvent(ctx context.Context, e calendar.Event, exec ...core.DBExecutor) (calendar.Event, error) {
	err := getExec(repo.db, exec).QueryRowContext(ctx,
		`INSERT INTO events (title, description, starts_at, ends_at, location, is_active, created_by, created_at, updated_at)
		 VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)
		 RETURNING id`,
		e.Title, e.Description, e.StartsAt, e.EndsAt, e.Location, e.IsActive, e.CreatedBy, e.CreatedAt, e.UpdatedAt,
	).Scan(&e.ID)
	if err != nil {
		return calendar.Event{}, errors.Wrap(err, "inserting event")
	}
	return e, nil
}

func (repo calendarRepository) GetEvent(ctx context.Context, id int, exec ...core.DBExecutor) (calendar.Event, error) {
	e, err := scanEvent(getExec(repo.db, exec).QueryRowContext(ctx,
		`SELECT `+eventColumns+` FROM events WHERE id = $1`, id))
	if err != nil {
		if err == sql.ErrNoRows {
			return calendar.Event{}, calendar.ErrEventNotFound
		}
		return calendar.Event{}, errors.Wrap(err, "getting event")
	}
	return e, nil
}

func (repo calendarRepository) UpdateEvent(ctx context.Context, e calendar.Event, isActive *bool, exec ...core.DBExecutor) (calendar.Event, error) {
	active := sql.NullBool{}
	if isActive != nil {
		active = sql.NullBool{Bool: *isActive, Valid: true}
	}
	updated, err := scanEvent(getExec(repo.db, exec).QueryRowContext(ctx,
		`UPDATE events SET
			title = $2, description = $3, starts_at = $4, ends_at = $5, location = $6,
			updated_at = $7, is_active = COALESCE($8, is_active)
		 WHERE id = $1
		 RETURNING `+eventColumns,
		e.ID, e.Title, e.Description, e.StartsAt, e.EndsAt, e.Location, e.UpdatedAt, active))
	if err != nil {
		if err == sql.ErrNoRows {
			return calendar.Event{}, calendar.ErrEventNotFound
		}
		return calendar.Event{}, errors.Wrap(err, "updating event")
	}
	return updated, nil
}

func (repo calendarRepository) QueryEvents(ctx context.Context, filter *calendar.CalendarQueryFilter, ordering []core.DBOrdering, exec ...core.DBExecutor) ([]calendar.Event, error) {
	query := `SELECT ` + eventColumns + ` FROM events`
	where, args := calendarWhere(filter, "starts_at")
	if len(where) > 0 {
		query += " WHERE " + joinAnd(where)
	}
	query += orderBy(ordering, "starts_at ASC")

	events, err := selectAll(ctx, getExec(repo.db, exec), scanEvent, query, args...)
	if err != nil {
		return nil, errors.Wrap(err, "querying events")
	}
	return events, nil
}

func calendarWhere(filter *calendar.CalendarQueryFilter, dateCol string) ([]string, []interface{}) {
	var (
		where []string
		args  []interface{}
	)
	if filter == nil {
		return where, args
	}
	arg := func(val interface{}) string {
		args = append(args, val)
		return "$" + strconv.Itoa(len(args))
	}
	if !filter.From.IsZero() {
		where = append(where, dateCol+" >= "+arg(filter.From))
	}
	if !filter.To.IsZero() {
		where = append(where, dateCol+" <= "+arg(filter.To))
	}
	if filter.IsActive != nil {
		where = append(where, "is_active = "+arg(*filter.IsActive))
	}
	return where, args
}

// --- material reservations ---

func scanReservation(row rowScanner) (calendar.MaterialReservation, error) {
	var r calendar.MaterialReservation
	err := row.Scan(&r.ID, &r.Reference, &r.Material, &r.ReservedBy, &r.ReservedFor, &r.Notes, &r.CreatedAt)
	return r, err
}

func (repo calendarRepository) CreateReservation(ctx context.Context, r calendar.MaterialReservation, exec ...core.DBExecutor) (calendar.MaterialReservation, error) {
	err := getExec(repo.db, exec).QueryRowContext(ctx,
		`INSERT INTO material_reservations (reference, material, reserved_by, reserved_for, notes, created_at)
		 VALUES ($1, $2, $3, $4, $5, $6)
		 RETURNING id`,
		r.Reference, r.Material, r.ReservedBy, r.ReservedFor, r.Notes, r.CreatedAt,
	).Scan(&r.ID)
	if err != nil {
		return calendar.MaterialReservation{}, errors.Wrap(err, "inserting reservation")
	}
	return r, nil
}

func (repo calendarRepository) GetReservation(ctx context.Context, id int, exec ...core.DBExecutor) (calendar.MaterialReservation, error) {
	r, err := scanReservation(getExec(repo.db, exec).QueryRowContext(ctx,
		`SELECT `+reservationColumns+` FROM material_reservations WHERE id = $1`, id))
	if err != nil {
		if err == sql.ErrNoRows {
			return calendar.MaterialReservation{}, calendar.ErrReservationNotFound
		}
		return calendar.MaterialReservation{}, errors.Wrap(err, "getting reservation")
	}
	return r, nil
}

func (repo calendarRepository) DeleteReservation(ctx context.Context, id int, exec ...core.DBExecutor) error {
	res, err := getExec(repo.db, exec).ExecContext(ctx, `DELETE FROM material_reservations WHERE id = $1`, id)
	if err != nil {
		return errors.Wrap(err, "deleting reservation")
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return calendar.ErrReservationNotFound
	}
	return nil
}

func (repo calendarRepository) QueryReservations(ctx context.Context, filter *calendar.ReservationQueryFilter, ordering []core.DBOrdering, exec ...core.DBExecutor) ([]calendar.MaterialReservation, error) {
	query := `SELECT ` + reservationColumns + ` FROM material_reservations`
	var (
		where []string
		args  []interface{}
	)
	arg := func(val interface{}) string {
		args = append(args, val)
		return "$" + strconv.Itoa(len(args))
	}

	if filter != nil {
		if filter.Material != "" {
			where = append(where, "material ILIKE "+arg("%"+filter.Material+"%"))
		}
		if !filter.From.IsZero() {
			where = append(where, "reserved_for >= "+arg(filter.From))
		}
		if !filter.To.IsZero() {
			where = append(where, "reserved_for <= "+arg(filter.To))
		}
		if reservedBy := filter.ReservedBy(); reservedBy.Valid {
			where = append(where, "reserved_by = "+arg(reservedBy.Int))
		}
	}
	if len(where) > 0 {
		query += " WHERE " + joinAnd(where)
	}
	query += orderBy(ordering, "reserved_for ASC")

	reservations, err := selectAll(ctx, getExec(repo.db, exec), scanReservation, query, args...)
	if err != nil {
		return nil, errors.Wrap(err, "querying reservations")
	}
	return reservations, nil
}

func (repo calendarRepository) GetReservationOwner(ctx context.Context, reservationID int, exec ...core.DBExecutor) (null.Int, error) {
	var ownerID int64
	err := getExec(repo.db, exec).QueryRowContext(ctx,
		`SELECT reserved_by FROM material_reservations WHERE id = $1`, reservationID,
	).Scan(&ownerID)
	if err != nil {
		if err == sql.ErrNoRows {
			return null.Int{}, calendar.ErrReservationNotFound
		}
		return null.Int{}, errors.Wrap(err, "resolving reservation owner")
	}
	return null.IntFrom(int(ownerID)), nil
}
