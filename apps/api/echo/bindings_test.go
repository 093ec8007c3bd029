package echoapi

import (
	"net/http"
	"net/http/httptest"
	"net/url"
	"testing"

	"github.com/labstack/echo/v4"
	"github.com/stretchr/testify/assert"

	"github.com/thehouse/platform/core"
)

func bindOrdering(t *testing.T, raw string, allowed ...string) []core.DBOrdering {
	t.Helper()
	req := httptest.NewRequest(http.MethodGet, "/v1/lessons?ordering="+url.QueryEscape(raw), nil)
	ctx := echo.New().NewContext(req, httptest.NewRecorder())

	ord := new(Ordering)
	ord.Bind(ctx, allowed...)
	return ord.Orderings
}

func TestOrderingBind(t *testing.T) {
	t.Run("allowed fields keep their direction", func(t *testing.T) {
		got := bindOrdering(t, "-date, created_at", "date", "created_at")
		assert.Equal(t, []core.DBOrdering{
			{Field: "date", Ascending: false},
			{Field: "created_at", Ascending: true},
		}, got)
	})

	t.Run("unknown fields dropped", func(t *testing.T) {
		got := bindOrdering(t, "password_hash,-date", "date", "created_at")
		assert.Equal(t, []core.DBOrdering{{Field: "date", Ascending: false}}, got)
	})

	t.Run("sql fragments dropped", func(t *testing.T) {
		got := bindOrdering(t, "date; DELETE FROM users --", "date", "created_at")
		assert.Empty(t, got)
	})

	t.Run("no param", func(t *testing.T) {
		req := httptest.NewRequest(http.MethodGet, "/v1/lessons", nil)
		ctx := echo.New().NewContext(req, httptest.NewRecorder())

		ord := new(Ordering)
		ord.Bind(ctx, "date")
		assert.Empty(t, ord.Orderings)
	})
}
