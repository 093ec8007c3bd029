package dummydb

import (
	"context"
	"sort"
	"strings"

	"github.com/volatiletech/null/v8"

	"github.com/thehouse/platform/core"
	"github.com/thehouse/platform/core/calendar"
)

type calendarRepository struct {
	db *DB

	announcementPK int
	eventPK        int
	reservationPK  int
}

var _ calendar.Repository = (*calendarRepository)(nil) // interface compliance check

func NewCalendarRepository(db *DB) *calendarRepository {
	return &calendarRepository{db: db}
}

// --- announcements ---

func (repo *calendarRepository) CreateAnnouncement(ctx context.Context, a calendar.Announcement, exec ...core.DBExecutor) (calendar.Announcement, error) {
	repo.db.announcement.Lock()
	defer repo.db.announcement.Unlock()

	repo.announcementPK++
	a.ID = repo.announcementPK
	repo.db.announcement.table[a.ID] = &a
	return a, nil
}

func (repo *calendarRepository) GetAnnouncement(ctx context.Context, id int, exec ...core.DBExecutor) (calendar.Announcement, error) {
	repo.db.announcement.RLock()
	defer repo.db.announcement.RUnlock()

	if a, ok := repo.db.announcement.table[id]; ok {
		return *a, nil
	}
	return calendar.Announcement{}, calendar.ErrAnnouncementNotFound
}

func (repo *calendarRepository) UpdateAnnouncement(ctx context.Context, a calendar.Announcement, isActive *bool, exec ...core.DBExecutor) (calendar.Announcement, error) {
	repo.db.announcement.Lock()
	defer repo.db.announcement.Unlock()

	existing, ok := repo.db.announcement.table[a.ID]
	if !ok {
		return calendar.Announcement{}, calendar.ErrAnnouncementNotFound
	}
	existing.Title = a.Title
	existing.Body = a.Body
	existing.PublishedOn = a.PublishedOn
	existing.UpdatedAt = a.UpdatedAt
	if isActive != nil {
		existing.IsActive = *isActive
	}
	return *existing, nil
}

func (repo *calendarRepository) QueryAnnouncements(ctx context.Context, filter *calendar.CalendarQueryFilter, ordering []core.DBOrdering, exec ...core.DBExecutor) ([]calendar.Announcement, error) {
	repo.db.announcement.RLock()
	defer repo.db.announcement.RUnlock()

	announcements := make([]calendar.Announcement, 0, len(repo.db.announcement.table))
	for _, a := range repo.db.announcement.table {
		if filter != nil {
			if filter.IsActive != nil && a.IsActive != *filter.IsActive {
				continue
			}
			if !filter.From.IsZero() && a.PublishedOn.Valid && a.PublishedOn.Time.Before(filter.From) {
				continue
			}
			if !filter.To.IsZero() && a.PublishedOn.Valid && a.PublishedOn.Time.After(filter.To) {
				continue
			}
		}
		announcements = append(announcements, *a)
	}
	sort.Slice(announcements, func(i, j int) bool { return announcements[i].ID > announcements[j].ID })
	return announcements, nil
}

// --- events ---

func (repo *calendarRepository) CreateEvent(ctx context.Context, e calendar.Event, exec ...core.DBExecutor) (calendar.Event, error) {
	repo.db.event.Lock()
	defer repo.db.event.Unlock()

	repo.eventPK++
	e.ID = repo.eventPK
	repo.db.event.table[e.ID] = &e
	return e, nil
}

func (repo *calendarRepository) GetEvent(ctx context.Context, id int, exec ...core.DBExecutor) (calendar.Event, error) {
	repo.db.event.RLock()
	defer repo.db.event.RUnlock()

	if e, ok := repo.db.event.table[id]; ok {
		return *e, nil
	}
	return calendar.Event{}, calendar.ErrEventNotFound
}

func (repo *calendarRepository) UpdateEvent(ctx context.Context, e calendar.Event, isActive *bool, exec ...core.DBExecutor) (calendar.Event, error) {
	repo.db.event.Lock()
	defer repo.db.event.Unlock()

	existing, ok := repo.db.event.table[e.ID]
	if !ok {
		return calendar.Event{}, calendar.ErrEventNotFound
	}
	existing.Title = e.Title
	existing.Description = e.Description
	existing.StartsAt = e.StartsAt
	existing.EndsAt = e.EndsAt
	existing.Location = e.Location
	existing.UpdatedAt = e.UpdatedAt
	if isActive != nil {
		existing.IsActive = *isActive
	}
	return *existing, nil
}

func (repo *calendarRepository) QueryEvents(ctx context.Context, filter *calendar.CalendarQueryFilter, ordering []core.DBOrdering, exec ...core.DBExecutor) ([]calendar.Event, error) {
	repo.db.event.RLock()
	defer repo.db.event.RUnlock()

	events := make([]calendar.Event, 0, len(repo.db.event.table))
	for _, e := range repo.db.event.table {
		if filter != nil {
			if filter.IsActive != nil && e.IsActive != *filter.IsActive {
				continue
			}
			if !filter.From.IsZero() && e.StartsAt.Before(filter.From) {
				continue
			}
			if !filter.To.IsZero() && e.StartsAt.After(filter.To) {
				continue
			}
		}
		events = append(events, *e)
	}
	sort.Slice(events, func(i, j int) bool { return events[i].StartsAt.Before(events[j].StartsAt) })
	return events, nil
}

// --- material reservations ---

func (repo *calendarRepository) CreateReservation(ctx context.Context, r calendar.MaterialReservation, exec ...core.DBExecutor) (calendar.MaterialReservation, error) {
	repo.db.reservation.Lock()
	defer repo.db.reservation.Unlock()

	repo.reservationPK++
	r.ID = repo.reservationPK
	repo.db.reservation.table[r.ID] = &r
	return r, nil
}

func (repo *calendarRepository) GetReservation(ctx context.Context, id int, exec ...core.DBExecutor) (calendar.MaterialReservation, error) {
	repo.db.reservation.RLock()
	defer repo.db.reservation.RUnlock()

	if r, ok := repo.db.reservation.table[id]; ok {
		return *r, nil
	}
	return calendar.MaterialReservation{}, calendar.ErrReservationNotFound
}

func (repo *calendarRepository) DeleteReservation(ctx context.Context, id int, exec ...core.DBExecutor) error {
	repo.db.reservation.Lock()
	defer repo.db.reservation.Unlock()

	if _, ok := repo.db.reservation.table[id]; !ok {
		return calendar.ErrReservationNotFound
	}
	delete(repo.db.reservation.table, id)
	return nil
}

func (repo *calendarRepository) QueryReservations(ctx context.Context, filter *calendar.ReservationQueryFilter, ordering []core.DBOrdering, exec ...core.DBExecutor) ([]calendar.MaterialReservation, error) {
	repo.db.reservation.RLock()
	defer repo.db.reservation.RUnlock()

	reservations := make([]calendar.MaterialReservation, 0, len(repo.db.reservation.table))
	for _, r := range repo.db.reservation.table {
		if filter != nil {
			if filter.Material != "" && !strings.Contains(strings.ToLower(r.Material), strings.ToLower(filter.Material)) {
				continue
			}
			if !filter.From.IsZero() && r.ReservedFor.Before(filter.From) {
				continue
			}
			if !filter.To.IsZero() && r.ReservedFor.After(filter.To) {
				continue
			}
			if reservedBy := filter.ReservedBy(); reservedBy.Valid && r.ReservedBy != int(reservedBy.Int) {
				continue
			}
		}
		reservations = append(reservations, *r)
	}
	sort.Slice(reservations, func(i, j int) bool { return reservations[i].ReservedFor.Before(reservations[j].ReservedFor) })
	return reservations, nil
}

func (repo *calendarRepository) GetReservationOwner(ctx context.Context, reservationID int, exec ...core.DBExecutor) (null.Int, error) {
	r, err := repo.GetReservation(ctx, reservationID)
	if err != nil {
		return null.Int{}, err
	}
	return null.IntFrom(r.ReservedBy), nil
}
