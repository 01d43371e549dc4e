package seed

import (
	"context"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/mind-engage/mindengage-mastery/internal/assessment"
	"github.com/mind-engage/mindengage-mastery/internal/db"
	"github.com/mind-engage/mindengage-mastery/internal/grading"
)

func TestParseAndApply(t *testing.T) {
	f, err := os.Open(filepath.Join("testdata", "fixtures.yaml"))
	require.NoError(t, err)
	defer f.Close()
	fx, err := Parse(f)
	require.NoError(t, err)
	require.Len(t, fx.Items, 3)
	require.Len(t, fx.Sections, 1)
	assert.True(t, fx.Items[0].Options[0].IsCorrect)
	assert.Equal(t, 75, fx.Sections[0].Criteria.Mastery.MinPercentage)

	ctx := context.Background()
	h, err := db.Open(ctx, db.DriverSQLite, filepath.Join(t.TempDir(), "seed.db"))
	require.NoError(t, err)
	defer h.Close()

	now := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)
	c, err := Apply(ctx, h, fx, now)
	require.NoError(t, err)
	assert.Equal(t, Counts{Items: 3, Sections: 1, Enrollments: 2, Submissions: 3, Mastery: 3}, c)

	// applying twice changes nothing
	_, err = Apply(ctx, h, fx, now)
	require.NoError(t, err)

	items := assessment.NewSQLStore(h)
	it, err := items.GetItem(ctx, "frac-2")
	require.NoError(t, err)
	assert.Equal(t, 2, it.Difficulty)

	eng := grading.NewEngine(grading.NewSQLStore(h), items)
	preview, err := eng.Preview(ctx, grading.Actor{ID: "prof", Role: "teacher"}, "math-101")
	require.NoError(t, err)
	require.Len(t, preview, 2)
	assert.True(t, preview[0].WouldPass, "alice: %+v", preview[0])
	assert.False(t, preview[1].WouldPass)
	assert.Equal(t, "no mastery recorded for module decimals (required 75%)", preview[1].Checks[0].Reason)
	assert.Equal(t, "submitted 1 of 2 assignments", preview[1].Checks[1].Reason)
}

func TestParseRejectsBadFixtures(t *testing.T) {
	_, err := Parse(strings.NewReader("items:\n  - id: x\n    module: m\n"))
	assert.Error(t, err)

	_, err = Parse(strings.NewReader("items:\n  - id: x\n    module: m\n    difficulty: 6\n"))
	assert.ErrorContains(t, err, "difficulty must be in [1,5]")

	_, err = Parse(strings.NewReader("sections:\n  - id: s\n    criteria:\n      mastery: {min_percentage: 101}\n"))
	assert.Error(t, err)

	_, err = Parse(strings.NewReader("unknown: 1\n"))
	assert.Error(t, err)

	fx, err := Parse(strings.NewReader(""))
	require.NoError(t, err)
	assert.Empty(t, fx.Items)
}
