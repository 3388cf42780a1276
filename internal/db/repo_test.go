package db

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"dockwatch/internal/models"
)

func TestRecordSnapshotUpsertsAndMarksMissing(t *testing.T) {
	repo := newTestRepo(t)
	ctx := context.Background()
	t1 := time.Date(2026, 2, 21, 12, 0, 0, 0, time.UTC)
	t2 := t1.Add(time.Minute)

	require.NoError(t, repo.RecordSnapshot(ctx, []models.Container{
		{ID: "c1", Name: "web", Image: "nginx:1.27", State: "running", Status: "Up 3 minutes"},
		{ID: "c2", Name: "db", Image: "postgres:16", State: "running", Status: "Up 3 minutes"},
	}, t1))
	require.NoError(t, repo.RecordSnapshot(ctx, []models.Container{
		{ID: "c1", Name: "web", Image: "nginx:1.27", State: "exited", Status: "Exited (1) 2 seconds ago"},
	}, t2))

	got, err := repo.ListContainers(ctx)
	require.NoError(t, err)
	require.Len(t, got, 2)

	assert.Equal(t, "c1", got[0].ID)
	assert.Equal(t, "exited", got[0].State)
	assert.True(t, got[0].FirstSeenAt.Equal(t1), "first_seen_at survives upserts")
	assert.True(t, got[0].LastSeenAt.Equal(t2))

	assert.Equal(t, "c2", got[1].ID)
	assert.Equal(t, StateMissing, got[1].State)
	assert.True(t, got[1].LastSeenAt.Equal(t1))
}

func TestRecordEmptySnapshotMarksEverythingMissing(t *testing.T) {
	repo := newTestRepo(t)
	ctx := context.Background()
	now := time.Date(2026, 2, 21, 12, 0, 0, 0, time.UTC)
	require.NoError(t, repo.RecordSnapshot(ctx, []models.Container{{ID: "c1", Name: "web", Image: "nginx", State: "running"}}, now))
	require.NoError(t, repo.RecordSnapshot(ctx, nil, now.Add(time.Minute)))

	got, err := repo.ListContainers(ctx)
	require.NoError(t, err)
	require.Len(t, got, 1)
	assert.Equal(t, StateMissing, got[0].State)
}

func TestDeleteMissingOlderThan(t *testing.T) {
	repo := newTestRepo(t)
	ctx := context.Background()
	old := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	now := old.Add(30 * 24 * time.Hour)

	require.NoError(t, repo.RecordSnapshot(ctx, []models.Container{
		{ID: "gone", Name: "gone", Image: "busybox", State: "running"},
		{ID: "kept", Name: "kept", Image: "busybox", State: "running"},
	}, old))
	require.NoError(t, repo.RecordSnapshot(ctx, []models.Container{
		{ID: "kept", Name: "kept", Image: "busybox", State: "running"},
		{ID: "fresh", Name: "fresh", Image: "busybox", State: "running"},
	}, now))
	require.NoError(t, repo.RecordSnapshot(ctx, []models.Container{{ID: "kept", Name: "kept", Image: "busybox", State: "running"}}, now))

	n, err := repo.DeleteMissingOlderThan(ctx, now.Add(-14*24*time.Hour))
	require.NoError(t, err)
	assert.EqualValues(t, 1, n)

	got, err := repo.ListContainers(ctx)
	require.NoError(t, err)
	ids := make([]string, 0, len(got))
	for _, c := range got {
		ids = append(ids, c.ID)
	}
	assert.ElementsMatch(t, []string{"kept", "fresh"}, ids)
}

func TestTelegramSettingsRoundTrip(t *testing.T) {
	repo := newTestRepo(t)
	ctx := context.Background()

	token, chat, err := repo.LoadTelegramSettings(ctx)
	require.NoError(t, err)
	assert.Empty(t, token)
	assert.Empty(t, chat)

	require.NoError(t, repo.SaveTelegramSettings(ctx, "123:abc", "42"))
	require.NoError(t, repo.SaveTelegramSettings(ctx, "456:def", "42"))

	token, chat, err = repo.LoadTelegramSettings(ctx)
	require.NoError(t, err)
	assert.Equal(t, "456:def", token)
	assert.Equal(t, "42", chat)
}

func newTestRepo(t *testing.T) *Repository {
	t.Helper()
	sqldb, err := Open(t.TempDir() + "/test.db")
	require.NoError(t, err)
	t.Cleanup(func() { _ = sqldb.Close() })
	require.NoError(t, Migrate(sqldb))
	require.NoError(t, Migrate(sqldb), "migrations are idempotent")
	return NewRepository(sqldb)
}
