package storage

import (
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestStorage(t *testing.T) *Storage {
	t.Helper()
	s, err := NewStorage(filepath.Join(t.TempDir(), "runs.db"))
	require.NoError(t, err)
	t.Cleanup(func() { _ = s.Close() })
	return s
}

func TestCreateAndGetRun(t *testing.T) {
	s := newTestStorage(t)

	err := s.CreateRun(&RunRecord{
		ID:        "job-1",
		Platform:  "base",
		LoginURL:  "https://admin.thebase.in/login",
		TargetURL: "https://admin.thebase.in/shop_admin/orders/1",
		UserID:    "U1",
	})
	require.NoError(t, err)

	got, err := s.GetRun("job-1")
	require.NoError(t, err)
	assert.Equal(t, "base", got.Platform)
	assert.Equal(t, StatusPending, got.Status)
	assert.False(t, got.Success)
	assert.Nil(t, got.CompletedAt)
	assert.False(t, got.StartedAt.IsZero())
}

func TestCompleteRun(t *testing.T) {
	s := newTestStorage(t)
	require.NoError(t, s.CreateRun(&RunRecord{ID: "job-2", Platform: "tabechoku"}))
	require.NoError(t, s.MarkRunning("job-2"))

	require.NoError(t, s.CompleteRun("job-2", true, 1, 1, 3, "RPA実行が完了しました"))

	got, err := s.GetRun("job-2")
	require.NoError(t, err)
	assert.Equal(t, StatusCompleted, got.Status)
	assert.True(t, got.Success)
	assert.Equal(t, 1, got.Customers)
	assert.Equal(t, 1, got.Orders)
	assert.Equal(t, 3, got.Items)
	assert.NotNil(t, got.CompletedAt)
}

func TestCompleteRunFailure(t *testing.T) {
	s := newTestStorage(t)
	require.NoError(t, s.CreateRun(&RunRecord{ID: "job-3"}))

	require.NoError(t, s.CompleteRun("job-3", false, 0, 0, 0, "データが保存されませんでした"))

	got, err := s.GetRun("job-3")
	require.NoError(t, err)
	assert.Equal(t, StatusFailed, got.Status)
	assert.Equal(t, "データが保存されませんでした", got.Message)
}

func TestListRunsNewestFirst(t *testing.T) {
	s := newTestStorage(t)
	base := time.Now().UTC().Add(-time.Hour)
	for i, id := range []string{"old", "mid", "new"} {
		require.NoError(t, s.CreateRun(&RunRecord{
			ID:        id,
			StartedAt: base.Add(time.Duration(i) * time.Minute),
		}))
	}

	runs, err := s.ListRuns(2)
	require.NoError(t, err)
	require.Len(t, runs, 2)
	assert.Equal(t, "new", runs[0].ID)
	assert.Equal(t, "mid", runs[1].ID)
}

func TestGetStats(t *testing.T) {
	s := newTestStorage(t)
	require.NoError(t, s.CreateRun(&RunRecord{ID: "a"}))
	require.NoError(t, s.CreateRun(&RunRecord{ID: "b"}))
	require.NoError(t, s.CompleteRun("a", true, 1, 1, 2, "ok"))
	require.NoError(t, s.CompleteRun("b", false, 0, 0, 0, "ng"))

	stats, err := s.GetStats()
	require.NoError(t, err)
	assert.Equal(t, 2, stats.Total)
	assert.Equal(t, 1, stats.Completed)
	assert.Equal(t, 1, stats.Failed)
	assert.Equal(t, 4, stats.SavedRows)
}

func TestMigrationsIdempotent(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "runs.db")

	s1, err := NewStorage(path)
	require.NoError(t, err)
	require.NoError(t, s1.CreateRun(&RunRecord{ID: "persisted"}))
	require.NoError(t, s1.Close())

	// Reopening must not re-run applied migrations or lose data.
	s2, err := NewStorage(path)
	require.NoError(t, err)
	defer s2.Close()

	got, err := s2.GetRun("persisted")
	require.NoError(t, err)
	assert.Equal(t, "persisted", got.ID)
}
