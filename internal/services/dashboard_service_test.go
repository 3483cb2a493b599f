package services

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	apperrors "github.com/altynaay/fieldops/pkg/errors"
)

func newDashboard(t *testing.T, env *testEnv) *DashboardService {
	t.Helper()

	dashboard, err := NewDashboardService(env.db)
	require.NoError(t, err)
	return dashboard
}

func TestDashboardStatsCountsAndAggregates(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	dashboard := newDashboard(t, env)

	dana := env.createStaff(t, "Dana", true)

	today := env.createActivity(t, CreateActivityInput{
		Date: dateString(0), ActivityType: "repair", CustomerName: "Acme",
		AssignedStaffIDs: []string{dana.ID},
	})
	env.createActivity(t, CreateActivityInput{
		Date: dateString(0), ActivityType: "repair", CustomerName: "Globex",
	})
	lastMonth := env.createActivity(t, CreateActivityInput{
		Date: dateString(-30), ActivityType: "installation", CustomerName: "Initech",
	})

	_, err := env.activities.MarkDone(ctx, lastMonth.ID, env.admin)
	require.NoError(t, err)

	stats, err := dashboard.Stats(ctx)
	require.NoError(t, err)

	require.EqualValues(t, 2, stats.TotalToday)
	require.EqualValues(t, 2, stats.Pending)
	require.EqualValues(t, 1, stats.Done)
	require.GreaterOrEqual(t, stats.TotalWeek, int64(2))

	require.NotEmpty(t, stats.ByType)
	require.Equal(t, "repair", stats.ByType[0].Name)
	require.EqualValues(t, 2, stats.ByType[0].Count)

	require.Len(t, stats.ByStaff, 1)
	require.Equal(t, "Dana", stats.ByStaff[0].Name)
	require.EqualValues(t, 1, stats.ByStaff[0].Count)

	require.NotEmpty(t, stats.Recent)
	require.LessOrEqual(t, len(stats.Recent), 5)
	ids := make([]string, 0, len(stats.Recent))
	for _, row := range stats.Recent {
		ids = append(ids, row.ID)
	}
	require.Contains(t, ids, today.ID)
}

func TestDashboardStatsWeekStartsOnMonday(t *testing.T) {
	env := newTestEnv(t)
	dashboard := newDashboard(t, env)

	// Pin the clock to a Wednesday; Monday and Tuesday fall inside the week,
	// Sunday does not.
	wednesday := time.Date(2026, time.September, 2, 15, 0, 0, 0, time.UTC)
	dashboard.now = func() time.Time { return wednesday }

	for _, day := range []string{"2026-08-30", "2026-08-31", "2026-09-01", "2026-09-02"} {
		env.createActivity(t, CreateActivityInput{
			Date: day, ActivityType: "repair", CustomerName: "Acme",
		})
	}

	stats, err := dashboard.Stats(context.Background())
	require.NoError(t, err)
	require.EqualValues(t, 1, stats.TotalToday)
	require.EqualValues(t, 3, stats.TotalWeek, "the Sunday row predates Monday's week start")
}

func TestSuggestReturnsDistinctMatches(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()

	suggest, err := NewSuggestionService(env.db)
	require.NoError(t, err)

	env.createStaff(t, "Dana", true)
	env.createStaff(t, "Daniel", false)

	for i := 0; i < 2; i++ {
		env.createActivity(t, CreateActivityInput{
			Date: dateString(0), ActivityType: "repair", CustomerName: "Acme Corp",
			Address: "12 Main St",
		})
	}
	env.createActivity(t, CreateActivityInput{
		Date: dateString(0), ActivityType: "repair", CustomerName: "Globex",
	})

	names, err := suggest.Suggest(ctx, SuggestCustomerName, "acm")
	require.NoError(t, err)
	require.Equal(t, []string{"Acme Corp"}, names, "duplicates collapse to one entry")

	addresses, err := suggest.Suggest(ctx, SuggestAddress, "main")
	require.NoError(t, err)
	require.Equal(t, []string{"12 Main St"}, addresses)

	// Inactive staff never show up.
	staff, err := suggest.Suggest(ctx, SuggestStaff, "dan")
	require.NoError(t, err)
	require.Equal(t, []string{"Dana"}, staff)

	_, err = suggest.Suggest(ctx, "priority", "")
	require.Error(t, err)
	require.Equal(t, 400, apperrors.FromError(err).StatusCode)
}
