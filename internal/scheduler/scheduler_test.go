package scheduler

import (
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/altynaay/fieldops/internal/backup"
	"github.com/altynaay/fieldops/internal/database/testutil"
	"github.com/altynaay/fieldops/internal/services"
)

func newRuleEngine(t *testing.T) *services.RuleEngine {
	t.Helper()

	db := testutil.MustOpenTestDB(t, testutil.WithSeedData())
	engine, err := services.NewRuleEngine(db, nil, services.RuleDefaults{HighPriorityThreshold: 5})
	require.NoError(t, err)
	return engine
}

func newBackupService(t *testing.T) *backup.Service {
	t.Helper()

	dbPath := filepath.Join(t.TempDir(), "fieldops.sqlite")
	require.NoError(t, os.WriteFile(dbPath, []byte("data"), 0o644))

	svc, err := backup.NewService(dbPath, t.TempDir())
	require.NoError(t, err)
	return svc
}

func TestRunOnceExecutesAllJobs(t *testing.T) {
	backups := newBackupService(t)
	rules := newRuleEngine(t)

	s := New(backups, rules)
	require.NoError(t, s.RunOnce(context.Background()))

	items, err := backups.List(context.Background())
	require.NoError(t, err)
	require.Len(t, items, 1)
}

func TestRunOnceCollectsJobErrors(t *testing.T) {
	// A backup service pointing at a missing database file fails its tick.
	broken, err := backup.NewService(filepath.Join(t.TempDir(), "missing.sqlite"), t.TempDir())
	require.NoError(t, err)

	s := New(broken, newRuleEngine(t))
	err = s.RunOnce(context.Background())
	require.Error(t, err, "a failing job surfaces from RunOnce")
}

func TestStartAndStopWithInjectedSchedules(t *testing.T) {
	s := New(newBackupService(t), newRuleEngine(t),
		WithBackupSchedule("@daily"),
		WithRuleInterval(time.Minute))

	require.NoError(t, s.Start())
	<-s.Stop().Done()
}

func TestDisabledSchedulerIsNoop(t *testing.T) {
	s := New(nil, nil)
	require.NoError(t, s.Start())
	require.NoError(t, s.RunOnce(context.Background()))
	<-s.Stop().Done()
}
