package calendar

import (
	"context"
	"time"

	"github.com/google/uuid"
	"github.com/pkg/errors"
	"github.com/volatiletech/null/v8"

	"github.com/thehouse/platform/core"
	"github.com/thehouse/platform/core/auth"
)

var (
	// errors
	ErrAnnouncementNotFound = errors.New("announcement not found")
	ErrEventNotFound        = errors.New("event not found")
	ErrReservationNotFound  = errors.New("reservation not found")
)

type (
	Repository interface {
		CreateAnnouncement(ctx context.Context, a Announcement, exec ...core.DBExecutor) (Announcement, error)
		GetAnnouncement(ctx context.Context, id int, exec ...core.DBExecutor) (Announcement, error)
		UpdateAnnouncement(ctx context.Context, a Announcement, isActive *bool, exec ...core.DBExecutor) (Announcement, error)
		QueryAnnouncements(ctx context.Context, filter *CalendarQueryFilter, ordering []core.DBOrdering, exec ...core.DBExecutor) ([]Announcement, error)

		CreateEvent(ctx context.Context, e Event, exec ...core.DBExecutor) (Event, error)
		GetEvent(ctx context.Context, id int, exec ...core.DBExecutor) (Event, error)
		UpdateEvent(ctx context.Context, e Event, isActive *bool, exec ...core.DBExecutor) (Event, error)
		QueryEvents(ctx context.Context, filter *CalendarQueryFilter, ordering []core.DBOrdering, exec ...core.DBExecutor) ([]Event, error)

		CreateReservation(ctx context.Context, r MaterialReservation, exec ...core.DBExecutor) (MaterialReservation, error)
		GetReservation(ctx context.Context, id int, exec ...core.DBExecutor) (MaterialReservation, error)
		DeleteReservation(ctx context.Context, id int, exec ...core.DBExecutor) error
		QueryReservations(ctx context.Context, filter *ReservationQueryFilter, ordering []core.DBOrdering, exec ...core.DBExecutor) ([]MaterialReservation, error)
		// GetReservationOwner returns the booking user's ID.
		GetReservationOwner(ctx context.Context, reservationID int, exec ...core.DBExecutor) (null.Int, error)
	}

	ServiceInterface interface {
		CreateAnnouncement(ctx context.Context, p auth.Principal, na NewAnnouncement) (Announcement, error)
		GetAnnouncement(ctx context.Context, p auth.Principal, id int) (Announcement, error)
		UpdateAnnouncement(ctx context.Context, p auth.Principal, id int, ua UpdateAnnouncement) (Announcement, error)
		DeleteAnnouncement(ctx context.Context, p auth.Principal, id int) error
		QueryAnnouncements(ctx context.Context, p auth.Principal, filter *CalendarQueryFilter, ordering []core.DBOrdering) ([]Announcement, error)

		CreateEvent(ctx context.Context, p auth.Principal, ne NewEvent) (Event, error)
		GetEvent(ctx context.Context, p auth.Principal, id int) (Event, error)
		DeleteEvent(ctx context.Context, p auth.Principal, id int) error
		QueryEvents(ctx context.Context, p auth.Principal, filter *CalendarQueryFilter, ordering []core.DBOrdering) ([]Event, error)

		Reserve(ctx context.Context, p auth.Principal, nr NewReservation) (MaterialReservation, error)
		CancelReservation(ctx context.Context, p auth.Principal, id int) error
		QueryReservations(ctx context.Context, p auth.Principal, filter *ReservationQueryFilter, ordering []core.DBOrdering) ([]MaterialReservation, error)
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
	authz.RegisterOwnerResolver(auth.ResourceReservation, repo.GetReservationOwner)
	return svc
}

// --- announcements ---

func (svc *Service) CreateAnnouncement(ctx context.Context, p auth.Principal, na NewAnnouncement) (Announcement, error) {
	if err := svc.authz.Authorize(ctx, p, auth.ActionCreate, auth.ResourceAnnouncement, nil); err != nil {
		return Announcement{}, err
	}
	now := time.Now().UTC()
	return svc.repo.CreateAnnouncement(ctx, Announcement{
		Title:       na.Title,
		Body:        na.Body,
		PublishedOn: na.PublishedOn,
		IsActive:    true,
		CreatedBy:   p.UserID,
		CreatedAt:   now,
		UpdatedAt:   now,
	})
}

func (svc *Service) GetAnnouncement(ctx context.Context, p auth.Principal, id int) (Announcement, error) {
	if err := svc.authz.Authorize(ctx, p, auth.ActionRead, auth.ResourceAnnouncement, nil); err != nil {
		return Announcement{}, err
	}
	return svc.repo.GetAnnouncement(ctx, id)
}

func (svc *Service) UpdateAnnouncement(ctx context.Context, p auth.Principal, id int, ua UpdateAnnouncement) (Announcement, error) {
	if err := svc.authz.Authorize(ctx, p, auth.ActionUpdate, auth.ResourceAnnouncement, nil); err != nil {
		return Announcement{}, err
	}
	return svc.repo.UpdateAnnouncement(ctx, Announcement{
		ID:          id,
		Title:       ua.Title,
		Body:        ua.Body,
		PublishedOn: ua.PublishedOn,
		UpdatedAt:   time.Now().UTC(),
	}, ua.IsActive)
}

// DeleteAnnouncement soft-deletes.
func (svc *Service) DeleteAnnouncement(ctx context.Context, p auth.Principal, id int) error {
	if err := svc.authz.Authorize(ctx, p, auth.ActionDelete, auth.ResourceAnnouncement, nil); err != nil {
		return err
	}
	orig, err := svc.repo.GetAnnouncement(ctx, id)
	if err != nil {
		return err
	}
	inactive := false
	orig.UpdatedAt = time.Now().UTC()
	_, err = svc.repo.UpdateAnnouncement(ctx, orig, &inactive)
	return err
}

func (svc *Service) QueryAnnouncements(ctx context.Context, p auth.Principal, filter *CalendarQueryFilter, ordering []core.DBOrdering) ([]Announcement, error) {
	if err := svc.authz.Authorize(ctx, p, auth.ActionList, auth.ResourceAnnouncement, nil); err != nil {
		return nil, err
	}
	return svc.repo.QueryAnnouncements(ctx, filter, ordering)
}

// --- events ---

func (svc *Service) CreateEvent(ctx context.Context, p auth.Principal, ne NewEvent) (Event, error) {
	if err := svc.authz.Authorize(ctx, p, auth.ActionCreate, auth.ResourceEvent, nil); err != nil {
		return Event{}, err
	}
	now := time.Now().UTC()
	return svc.repo.CreateEvent(ctx, Event{
		Title:       ne.Title,
		Description: ne.Description,
		StartsAt:    ne.StartsAt,
		EndsAt:      ne.EndsAt,
		Location:    ne.Location,
		IsActive:    true,
		CreatedBy:   p.UserID,
		CreatedAt:   now,
		UpdatedAt:   now,
	})
}

func (svc *Service) GetEvent(ctx context.Context, p auth.Principal, id int) (Event, error) {
	if err := svc.authz.Authorize(ctx, p, auth.ActionRead, auth.ResourceEvent, nil); err != nil {
		return Event{}, err
	}
	return svc.repo.GetEvent(ctx, id)
}

// DeleteEvent soft-deletes.
func (svc *Service) DeleteEvent(ctx context.Context, p auth.Principal, id int) error {
	if err := svc.authz.Authorize(ctx, p, auth.ActionDelete, auth.ResourceEvent, nil); err != nil {
		return err
	}
	orig, err := svc.repo.GetEvent(ctx, id)
	if err != nil {
		return err
	}
	inactive := false
	orig.UpdatedAt = time.Now().UTC()
	_, err = svc.repo.UpdateEvent(ctx, orig, &inactive)
	return err
}

func (svc *Service) QueryEvents(ctx context.Context, p auth.Principal, filter *CalendarQueryFilter, ordering []core.DBOrdering) ([]Event, error) {
	if err := svc.authz.Authorize(ctx, p, auth.ActionList, auth.ResourceEvent, nil); err != nil {
		return nil, err
	}
	return svc.repo.QueryEvents(ctx, filter, ordering)
}

// --- material reservations ---

// Reserve books a material under the principal's name and hands back the
// booking reference.
func (svc *Service) Reserve(ctx context.Context, p auth.Principal, nr NewReservation) (MaterialReservation, error) {
	if err := svc.authz.Authorize(ctx, p, auth.ActionCreate, auth.ResourceReservation, nil); err != nil {
		return MaterialReservation{}, err
	}
	return svc.repo.CreateReservation(ctx, MaterialReservation{
		Reference:   uuid.New().String(),
		Material:    nr.Material,
		ReservedBy:  p.UserID,
		ReservedFor: nr.ReservedFor,
		Notes:       nr.Notes,
		CreatedAt:   time.Now().UTC(),
	})
}

// CancelReservation hard-deletes the booking. Scoped principals may only
// cancel their own.
func (svc *Service) CancelReservation(ctx context.Context, p auth.Principal, id int) error {
	return core.Atomic(ctx, svc.db, func(tx core.DBTransactor) error {
		if err := svc.authz.Authorize(ctx, p, auth.ActionDelete, auth.ResourceReservation, &auth.Ref{Resource: auth.ResourceReservation, ID: id}, tx); err != nil {
			return err
		}
		return svc.repo.DeleteReservation(ctx, id, tx)
	})
}

func (svc *Service) QueryReservations(ctx context.Context, p auth.Principal, filter *ReservationQueryFilter, ordering []core.DBOrdering) ([]MaterialReservation, error) {
	if err := svc.authz.Authorize(ctx, p, auth.ActionList, auth.ResourceReservation, nil); err != nil {
		return nil, err
	}
	svc.authz.ScopeQuery(p, filter)
	return svc.repo.QueryReservations(ctx, filter, ordering)
}
