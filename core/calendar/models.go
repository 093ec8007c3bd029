package calendar

import (
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/volatiletech/null/v8"

	"github.com/thehouse/platform/core"
	"github.com/thehouse/platform/core/auth"
)

type Announcement struct {
	ID          int         `json:"id" db:"id"`
	Title       string      `json:"title" db:"title"`
	Body        string      `json:"body" db:"body"`
	PublishedOn null.Time   `json:"published_on" db:"published_on"`
	IsActive    bool        `json:"is_active" db:"is_active"`
	CreatedBy   int         `json:"created_by" db:"created_by"`
	CreatedAt   time.Time   `json:"created_at" db:"created_at"` // UTC
	UpdatedAt   time.Time   `json:"updated_at" db:"updated_at"` // UTC
}

type Event struct {
	ID          int         `json:"id" db:"id"`
	Title       string      `json:"title" db:"title"`
	Description null.String `json:"description" db:"description"`
	StartsAt    time.Time   `json:"starts_at" db:"starts_at"`
	EndsAt      time.Time   `json:"ends_at" db:"ends_at"`
	Location    string      `json:"location" db:"location"`
	IsActive    bool        `json:"is_active" db:"is_active"`
	CreatedBy   int         `json:"created_by" db:"created_by"`
	CreatedAt   time.Time   `json:"created_at" db:"created_at"` // UTC
	UpdatedAt   time.Time   `json:"updated_at" db:"updated_at"` // UTC
}

// MaterialReservation books a teaching material for a date. Reference is the
// opaque booking handle given out to the front desk.
type MaterialReservation struct {
	ID          int         `json:"id" db:"id"`
	Reference   string      `json:"reference" db:"reference"`
	Material    string      `json:"material" db:"material"`
	ReservedBy  int         `json:"reserved_by" db:"reserved_by"`
	ReservedFor time.Time   `json:"reserved_for" db:"reserved_for"`
	Notes       null.String `json:"notes" db:"notes"`
	CreatedAt   time.Time   `json:"created_at" db:"created_at"` // UTC
}

// --- input shapes ---

type NewAnnouncement struct {
	Title       string    `json:"title" validate:"required"`
	Body        string    `json:"body" validate:"required"`
	PublishedOn null.Time `json:"published_on"`
}

func (na *NewAnnouncement) Validate(validate *validator.Validate) error {
	na.Title = core.CleanString(na.Title)
	return validate.Struct(na)
}

type UpdateAnnouncement struct {
	Title       string    `json:"title"`
	Body        string    `json:"body"`
	PublishedOn null.Time `json:"published_on"`
	IsActive    *bool     `json:"is_active"`
}

func (ua *UpdateAnnouncement) Validate(orig Announcement, validate *validator.Validate) error {
	if title := core.CleanString(ua.Title); title != "" {
		ua.Title = title
	} else {
		ua.Title = orig.Title
	}
	if ua.Body == "" {
		ua.Body = orig.Body
	}
	return validate.Struct(ua)
}

type NewEvent struct {
	Title       string      `json:"title" validate:"required"`
	Description null.String `json:"description"`
	StartsAt    time.Time   `json:"starts_at" validate:"required"`
	EndsAt      time.Time   `json:"ends_at" validate:"required,gtfield=StartsAt"`
	Location    string      `json:"location"`
}

func (ne *NewEvent) Validate(validate *validator.Validate) error {
	ne.Title = core.CleanString(ne.Title)
	ne.Location = core.CleanString(ne.Location)
	return validate.Struct(ne)
}

type NewReservation struct {
	Material    string    `json:"material" validate:"required"`
	ReservedFor time.Time `json:"reserved_for" validate:"required"`
	Notes       null.String `json:"notes"`
}

func (nr *NewReservation) Validate(validate *validator.Validate) error {
	nr.Material = core.CleanString(nr.Material)
	return validate.Struct(nr)
}

// --- query filters ---

type CalendarQueryFilter struct {
	From     time.Time `query:"from"`
	To       time.Time `query:"to"`
	IsActive *bool     `query:"is_active"`
}

type ReservationQueryFilter struct {
	Material string    `query:"material"`
	From     time.Time `query:"from"`
	To       time.Time `query:"to"`

	// reservedBy narrows results to a single user's bookings. Set only
	// through ScopeToPrincipal.
	reservedBy null.Int
}

func (qf *ReservationQueryFilter) Clean() { qf.Material = core.CleanString(qf.Material) }

func (qf *ReservationQueryFilter) ScopeToPrincipal(p auth.Principal) {
	qf.reservedBy = null.IntFrom(p.UserID)
}

func (qf *ReservationQueryFilter) ReservedBy() null.Int { return qf.reservedBy }
