package sqlxrepos

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/thehouse/platform/core"
)

func TestOrderBy(t *testing.T) {
	assert.Equal(t, " ORDER BY date DESC", orderBy(nil, "date DESC"))

	ordering := []core.DBOrdering{
		{Field: "date", Ascending: false},
		{Field: "created_at", Ascending: true},
	}
	assert.Equal(t, " ORDER BY date DESC, created_at ASC", orderBy(ordering, "date DESC"))

	t.Run("only bare column names are interpolated", func(t *testing.T) {
		ordering := []core.DBOrdering{{Field: "date; DELETE FROM users --", Ascending: true}}
		assert.Equal(t, " ORDER BY date DESC", orderBy(ordering, "date DESC"))

		ordering = []core.DBOrdering{
			{Field: "(CASE WHEN (SELECT 1) = 1 THEN 1 ELSE 1/0 END)", Ascending: true},
			{Field: "created_at", Ascending: true},
		}
		assert.Equal(t, " ORDER BY created_at ASC", orderBy(ordering, "date DESC"))
	})
}
