package state

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"dockwatch/internal/models"
)

func TestTransactPutsAndEnqueuesTogether(t *testing.T) {
	s := New()
	s.Transact(func(tx *Tx) {
		h, seen := tx.Get("c1")
		assert.False(t, seen)
		assert.True(t, h.Healthy)
		now := time.Now()
		h.Healthy = false
		h.UnhealthySince = &now
		tx.Put(h)
		tx.Enqueue(models.AlertEvent{ResourceID: "c1", Message: "down"})
	})

	snap := s.Snapshot()
	require.Len(t, snap, 1)
	assert.False(t, snap[0].Healthy)
	assert.Equal(t, 1, s.PendingAlerts())

	got := s.DrainAlerts()
	require.Len(t, got, 1)
	assert.Equal(t, "down", got[0].Message)
}

func TestAcknowledge(t *testing.T) {
	s := New()
	require.ErrorIs(t, s.Acknowledge("missing"), ErrUnknownContainer)

	since := time.Now()
	s.Transact(func(tx *Tx) {
		tx.Put(models.NewContainerHealth("ok"))
		tx.Put(models.ContainerHealth{ID: "down", Healthy: false, UnhealthySince: &since})
	})

	require.ErrorIs(t, s.Acknowledge("ok"), ErrNotUnhealthy)
	require.NoError(t, s.Acknowledge("down"))

	snap := s.Snapshot()
	require.Len(t, snap, 2)
	assert.Equal(t, "down", snap[0].ID)
	assert.True(t, snap[0].Acknowledged)
	assert.True(t, snap[0].UnhealthySince.Equal(since), "acknowledge leaves the episode start untouched")
	assert.False(t, snap[1].Acknowledged)
}

func TestAcknowledgeByNameOrShortID(t *testing.T) {
	s := New()
	since := time.Now()
	s.Transact(func(tx *Tx) {
		tx.Put(models.ContainerHealth{ID: "4f2a9c01d3e8", Name: "web", UnhealthySince: &since})
		tx.Put(models.ContainerHealth{ID: "4f2b7700aa11", Name: "db", UnhealthySince: &since})
		tx.Put(models.ContainerHealth{ID: "9e01c4b2f0d7", Name: "worker", UnhealthySince: &since})
	})

	require.NoError(t, s.Acknowledge("4f2a9"))
	require.NoError(t, s.Acknowledge("db"))
	require.ErrorIs(t, s.Acknowledge("4f2"), ErrAmbiguousContainer)
	require.ErrorIs(t, s.Acknowledge("cache"), ErrUnknownContainer)
	require.ErrorIs(t, s.Acknowledge(""), ErrUnknownContainer)

	acked := map[string]bool{}
	for _, h := range s.Snapshot() {
		acked[h.Name] = h.Acknowledged
	}
	assert.Equal(t, map[string]bool{"web": true, "db": true, "worker": false}, acked)
}

func TestSnapshotIsACopy(t *testing.T) {
	s := New()
	since := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	s.Transact(func(tx *Tx) {
		tx.Put(models.ContainerHealth{ID: "c", UnhealthySince: &since})
	})
	snap := s.Snapshot()
	*snap[0].UnhealthySince = since.Add(time.Hour)

	again := s.Snapshot()
	assert.True(t, again[0].UnhealthySince.Equal(since))
}

func TestActivityCounter(t *testing.T) {
	s := New()
	s.SetActivity(4)
	assert.EqualValues(t, 5, s.AddActivity(1))
	assert.EqualValues(t, 5, s.Activity())
}
