package store

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/bizmatters/calculator-studio/internal/models"
)

func TestParseID(t *testing.T) {
	_, err := parseID("not-a-uuid")
	assert.ErrorIs(t, err, ErrNotFound)

	id, err := parseID("6f1c2d1e-8a43-4c36-9a59-3f4f0f1e2b7a")
	assert.NoError(t, err)
	assert.Equal(t, "6f1c2d1e-8a43-4c36-9a59-3f4f0f1e2b7a", id.String())
}

func TestBuildListQuery(t *testing.T) {
	t.Run("defaults", func(t *testing.T) {
		query, args := buildListQuery(models.ListFilter{}, "")

		assert.NotContains(t, query, "WHERE c.")
		assert.True(t, strings.HasSuffix(query, "LIMIT $2 OFFSET $3"))
		assert.Equal(t, []any{"", DefaultListLimit, 0}, args)
	})

	t.Run("all filters", func(t *testing.T) {
		public, template := true, false
		query, args := buildListQuery(models.ListFilter{
			UserID:     "user-1",
			IsPublic:   &public,
			IsTemplate: &template,
			Category:   "finance",
			Search:     " 50%_off ",
			Limit:      500,
			Offset:     -3,
		}, "viewer-1")

		assert.Contains(t, query, "c.user_id::text = $2")
		assert.Contains(t, query, "c.is_public = $3")
		assert.Contains(t, query, "c.is_template = $4")
		assert.Contains(t, query, "c.category = $5")
		assert.Contains(t, query, "(c.title ILIKE $6 OR c.description ILIKE $6)")
		assert.Contains(t, query, "ORDER BY c.created_at DESC")
		assert.True(t, strings.HasSuffix(query, "LIMIT $7 OFFSET $8"))

		assert.Equal(t, []any{"viewer-1", "user-1", true, false, "finance", `%50\%\_off%`, MaxListLimit, 0}, args)
	})
}
