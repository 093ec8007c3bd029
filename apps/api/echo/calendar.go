package echoapi

import (
	"net/http"

	"github.com/go-playground/validator/v10"
	"github.com/labstack/echo/v4"
	"github.com/pkg/errors"

	"github.com/thehouse/platform/core/calendar"
)

type calendarApi struct {
	svc      calendar.ServiceInterface
	validate *validator.Validate
}

// columns a client may order listings by
var (
	announcementOrderFields = []string{"title", "published_on", "created_at"}
	eventOrderFields        = []string{"title", "starts_at", "ends_at"}
	reservationOrderFields  = []string{"material", "reserved_for", "created_at"}
)

func registerCalendarAPI(g *echo.Group, jwt echo.MiddlewareFunc, deps ServerDeps) {
	api := calendarApi{
		svc:      deps.CalendarSvc,
		validate: deps.Validate,
	}

	ng := g.Group("/announcements", jwt)
	ng.POST("", api.createAnnouncement)
	ng.GET("", api.queryAnnouncements)
	ng.GET("/:id", api.retrieveAnnouncement)
	ng.PUT("/:id", api.updateAnnouncement)
	ng.DELETE("/:id", api.destroyAnnouncement)

	eg := g.Group("/events", jwt)
	eg.POST("", api.createEvent)
	eg.GET("", api.queryEvents)
	eg.GET("/:id", api.retrieveEvent)
	eg.DELETE("/:id", api.destroyEvent)

	rg := g.Group("/reservations", jwt)
	rg.POST("", api.reserve)
	rg.GET("", api.queryReservations)
	rg.DELETE("/:id", api.cancelReservation)
}

// --- announcements ---

func (api *calendarApi) createAnnouncement(ctx echo.Context) error {
	p, err := getPrincipal(ctx)
	if err != nil {
		return err
	}
	var data calendar.NewAnnouncement
	if err = ctx.Bind(&data); err != nil {
		return errors.Wrap(err, "binding to NewAnnouncement")
	}
	if err = data.Validate(api.validate); err != nil {
		return err
	}
	a, err := api.svc.CreateAnnouncement(ctx.Request().Context(), p, data)
	if err != nil {
		return err
	}
	return ctx.JSON(http.StatusCreated, a)
}

func (api *calendarApi) queryAnnouncements(ctx echo.Context) error {
	p, err := getPrincipal(ctx)
	if err != nil {
		return err
	}
	filter := new(calendar.CalendarQueryFilter)
	if err = ctx.Bind(filter); err != nil {
		return ctx.JSON(http.StatusOK, []calendar.Announcement{})
	}
	ordering := new(Ordering)
	ordering.Bind(ctx, announcementOrderFields...)

	announcements, err := api.svc.QueryAnnouncements(ctx.Request().Context(), p, filter, ordering.Orderings)
	if err != nil {
		return errors.Wrap(err, "querying announcements")
	}
	if announcements == nil {
		announcements = []calendar.Announcement{}
	}
	return ctx.JSON(http.StatusOK, announcements)
}

func (api *calendarApi) retrieveAnnouncement(ctx echo.Context) error {
	p, err := getPrincipal(ctx)
	if err != nil {
		return err
	}
	id, err := pathID(ctx)
	if err != nil {
		return err
	}
	a, err := api.svc.GetAnnouncement(ctx.Request().Context(), p, id)
	if err != nil {
		return err
	}
	return ctx.JSON(http.StatusOK, a)
}

func (api *calendarApi) updateAnnouncement(ctx echo.Context) error {
	p, err := getPrincipal(ctx)
	if err != nil {
		return err
	}
	id, err := pathID(ctx)
	if err != nil {
		return err
	}
	var data calendar.UpdateAnnouncement
	if err = ctx.Bind(&data); err != nil {
		return errors.Wrap(err, "binding to UpdateAnnouncement")
	}
	orig, err := api.svc.GetAnnouncement(ctx.Request().Context(), p, id)
	if err != nil {
		return err
	}
	if err = data.Validate(orig, api.validate); err != nil {
		return err
	}
	a, err := api.svc.UpdateAnnouncement(ctx.Request().Context(), p, id, data)
	if err != nil {
		return err
	}
	return ctx.JSON(http.StatusOK, a)
}

func (api *calendarApi) destroyAnnouncement(ctx echo.Context) error {
	p, err := getPrincipal(ctx)
	if err != nil {
		return err
	}
	id, err := pathID(ctx)
	if err != nil {
		return err
	}
	if err = api.svc.DeleteAnnouncement(ctx.Request().Context(), p, id); err != nil {
		return err
	}
	return ctx.NoContent(http.StatusNoContent)
}

// --- events ---

func (api *calendarApi) createEvent(ctx echo.Context) error {
	p, err := getPrincipal(ctx)
	if err != nil {
		return err
	}
	var data calendar.NewEvent
	if err = ctx.Bind(&data); err != nil {
		return errors.Wrap(err, "binding to NewEvent")
	}
	if err = data.Validate(api.validate); err != nil {
		return err
	}
	e, err := api.svc.CreateEvent(ctx.Request().Context(), p, data)
	if err != nil {
		return err
	}
	return ctx.JSON(http.StatusCreated, e)
}

func (api *calendarApi) queryEvents(ctx echo.Context) error {
	p, err := getPrincipal(ctx)
	if err != nil {
		return err
	}
	filter := new(calendar.CalendarQueryFilter)
	if err = ctx.Bind(filter); err != nil {
		return ctx.JSON(http.StatusOK, []calendar.Event{})
	}
	ordering := new(Ordering)
	ordering.Bind(ctx, eventOrderFields...)

	events, err := api.svc.QueryEvents(ctx.Request().Context(), p, filter, ordering.Orderings)
	if err != nil {
		return errors.Wrap(err, "querying events")
	}
	if events == nil {
		events = []calendar.Event{}
	}
	return ctx.JSON(http.StatusOK, events)
}

func (api *calendarApi) retrieveEvent(ctx echo.Context) error {
	p, err := getPrincipal(ctx)
	if err != nil {
		return err
	}
	id, err := pathID(ctx)
	if err != nil {
		return err
	}
	e, err := api.svc.GetEvent(ctx.Request().Context(), p, id)
	if err != nil {
		return err
	}
	return ctx.JSON(http.StatusOK, e)
}

func (api *calendarApi) destroyEvent(ctx echo.Context) error {
	p, err := getPrincipal(ctx)
	if err != nil {
		return err
	}
	id, err := pathID(ctx)
	if err != nil {
		return err
	}
	if err = api.svc.DeleteEvent(ctx.Request().Context(), p, id); err != nil {
		return err
	}
	return ctx.NoContent(http.StatusNoContent)
}

// --- material reservations ---

func (api *calendarApi) reserve(ctx echo.Context) error {
	p, err := getPrincipal(ctx)
	if err != nil {
		return err
	}
	var data calendar.NewReservation
	if err = ctx.Bind(&data); err != nil {
		return errors.Wrap(err, "binding to NewReservation")
	}
	if err = data.Validate(api.validate); err != nil {
		return err
	}
	r, err := api.svc.Reserve(ctx.Request().Context(), p, data)
	if err != nil {
		return err
	}
	return ctx.JSON(http.StatusCreated, r)
}

func (api *calendarApi) queryReservations(ctx echo.Context) error {
	p, err := getPrincipal(ctx)
	if err != nil {
		return err
	}
	filter := new(calendar.ReservationQueryFilter)
	if err = ctx.Bind(filter); err != nil {
		return ctx.JSON(http.StatusOK, []calendar.MaterialReservation{})
	}
	filter.Clean()
	ordering := new(Ordering)
	ordering.Bind(ctx, reservationOrderFields...)

	reservations, err := api.svc.QueryReservations(ctx.Request().Context(), p, filter, ordering.Orderings)
	if err != nil {
		return errors.Wrap(err, "querying reservations")
	}
	if reservations == nil {
		reservations = []calendar.MaterialReservation{}
	}
	return ctx.JSON(http.StatusOK, reservations)
}

func (api *calendarApi) cancelReservation(ctx echo.Context) error {
	p, err := getPrincipal(ctx)
	if err != nil {
		return err
	}
	id, err := pathID(ctx)
	if err != nil {
		return err
	}
	if err = api.svc.CancelReservation(ctx.Request().Context(), p, id); err != nil {
		return err
	}
	return ctx.NoContent(http.StatusNoContent)
}
