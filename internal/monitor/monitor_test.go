package monitor

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"dockwatch/internal/docker"
	"dockwatch/internal/metrics"
	"dockwatch/internal/models"
	"dockwatch/internal/state"
)

type fakeLister struct {
	snapshots [][]docker.ContainerSummary
	errs      []error
	calls     int
}

func (f *fakeLister) ListContainers(context.Context) ([]docker.ContainerSummary, error) {
	i := f.calls
	f.calls++
	if i < len(f.errs) && f.errs[i] != nil {
		return nil, f.errs[i]
	}
	return f.snapshots[i], nil
}

type fakeInventory struct {
	rows   []models.Container
	seenAt time.Time
	calls  int
}

func (f *fakeInventory) RecordSnapshot(_ context.Context, rows []models.Container, seenAt time.Time) error {
	f.rows = rows
	f.seenAt = seenAt
	f.calls++
	return nil
}

func one(id, name, st string) []docker.ContainerSummary {
	return []docker.ContainerSummary{{ID: id, Names: []string{"/" + name}, State: st, Image: "img"}}
}

type harness struct {
	mon   *Monitor
	st    *state.RuntimeState
	m     *metrics.Metrics
	clock time.Time
}

func newHarness(l Lister, inv Inventory) *harness {
	h := &harness{st: state.New(), m: metrics.New(), clock: time.Date(2026, 2, 21, 12, 0, 0, 0, time.UTC)}
	h.mon = New(l, h.st, h.m, slog.New(slog.NewTextHandler(io.Discard, nil)), Options{Inventory: inv})
	h.mon.now = func() time.Time { return h.clock }
	return h
}

func (h *harness) tick(advance time.Duration) []models.AlertEvent {
	h.clock = h.clock.Add(advance)
	h.mon.Tick(context.Background())
	return h.st.DrainAlerts()
}

func TestTickStopAndRecoverScenario(t *testing.T) {
	l := &fakeLister{snapshots: [][]docker.ContainerSummary{
		one("c1", "web", "running"),
		one("c1", "web", "exited"),
		one("c1", "web", "exited"),
		one("c1", "web", "running"),
	}}
	h := newHarness(l, nil)

	assert.Empty(t, h.tick(0))

	got := h.tick(time.Minute)
	require.Len(t, got, 1)
	assert.Equal(t, "c1", got[0].ResourceID)
	assert.Equal(t, "Container web has stopped.", got[0].Message)
	assert.Equal(t, models.SourceMonitor, got[0].Source)
	assert.NotEmpty(t, got[0].ID)
	assert.Empty(t, got[0].Destination)

	assert.Empty(t, h.tick(time.Minute))

	got = h.tick(time.Minute)
	require.Len(t, got, 1)
	assert.Equal(t, "Container web has recovered and is now healthy.", got[0].Message)

	snap := h.st.Snapshot()
	require.Len(t, snap, 1)
	assert.True(t, snap[0].Healthy)
	assert.False(t, snap[0].Acknowledged)
	assert.Equal(t, 2.0, testutil.ToFloat64(h.m.AlertsEnqueued.WithLabelValues(models.SourceMonitor)))
}

func TestTickEscalatesAfterWindow(t *testing.T) {
	l := &fakeLister{snapshots: [][]docker.ContainerSummary{
		one("c2", "db", "exited"),
		one("c2", "db", "exited"),
		one("c2", "db", "exited"),
	}}
	h := newHarness(l, nil)

	var msgs []string
	for _, adv := range []time.Duration{0, 15 * time.Minute, 16 * time.Minute} {
		for _, ev := range h.tick(adv) {
			msgs = append(msgs, ev.Message)
		}
	}
	assert.Equal(t, []string{
		"Container db has stopped.",
		"Container db is STILL unhealthy after 30 minutes.",
	}, msgs)
}

func TestTickAcknowledgedEpisodeStaysQuiet(t *testing.T) {
	var snaps [][]docker.ContainerSummary
	for i := 0; i < 6; i++ {
		snaps = append(snaps, one("c2", "db", "exited"))
	}
	snaps = append(snaps, one("c2", "db", "running"))
	h := newHarness(&fakeLister{snapshots: snaps}, nil)

	require.Len(t, h.tick(0), 1)
	require.NoError(t, h.st.Acknowledge("c2"))
	for i := 0; i < 5; i++ {
		assert.Empty(t, h.tick(10*time.Minute))
	}
	got := h.tick(time.Minute)
	require.Len(t, got, 1)
	assert.Contains(t, got[0].Message, "recovered")
	assert.False(t, h.st.Snapshot()[0].Acknowledged)
}

func TestTickFetchFailureChangesNothing(t *testing.T) {
	l := &fakeLister{
		snapshots: [][]docker.ContainerSummary{one("c1", "web", "running"), nil, one("c1", "web", "running")},
		errs:      []error{nil, errors.New("socket closed")},
	}
	inv := &fakeInventory{}
	h := newHarness(l, inv)

	h.tick(0)
	require.Equal(t, 1, inv.calls)
	before := h.st.Snapshot()
	h.st.SetActivity(1)

	assert.Empty(t, h.tick(time.Minute))
	assert.Equal(t, before, h.st.Snapshot())
	assert.EqualValues(t, 1, h.st.Activity())
	assert.Equal(t, 1, inv.calls)
	assert.Equal(t, 1.0, testutil.ToFloat64(h.m.PollFailures))
}

func TestTickPublishesActivityAndInventory(t *testing.T) {
	l := &fakeLister{snapshots: [][]docker.ContainerSummary{{
		{ID: "a", Names: []string{"/a"}, State: "running", Image: "nginx", Status: "Up"},
		{ID: "b", Names: []string{"/b"}, State: "restarting", Image: "redis", Status: "Restarting"},
	}}}
	inv := &fakeInventory{}
	h := newHarness(l, inv)

	got := h.tick(0)
	require.Len(t, got, 1)
	assert.Equal(t, "Container b just became unhealthy.", got[0].Message)
	assert.EqualValues(t, 2, h.st.Activity())
	require.Len(t, inv.rows, 2)
	assert.Equal(t, "nginx", inv.rows[0].Image)
	assert.True(t, inv.seenAt.Equal(h.clock))
	assert.Equal(t, 1.0, testutil.ToFloat64(h.m.ContainersUnhealthy))
}

func TestNextBoundaryAlignsToPeriod(t *testing.T) {
	now := time.Date(2026, 2, 21, 12, 3, 17, 500, time.UTC)
	assert.Equal(t, time.Date(2026, 2, 21, 12, 4, 0, 0, time.UTC), nextBoundary(now, time.Minute))

	exact := time.Date(2026, 2, 21, 12, 4, 0, 0, time.UTC)
	assert.Equal(t, time.Date(2026, 2, 21, 12, 5, 0, 0, time.UTC), nextBoundary(exact, time.Minute))
}

func TestRunStopsOnCancel(t *testing.T) {
	l := &fakeLister{snapshots: [][]docker.ContainerSummary{one("c1", "web", "running")}}
	h := newHarness(l, nil)
	ctx, cancel := context.WithCancel(context.Background())

	done := make(chan error, 1)
	go func() { done <- h.mon.Run(ctx) }()
	cancel()

	select {
	case err := <-done:
		require.NoError(t, err)
	case <-time.After(2 * time.Second):
		t.Fatal("monitor did not stop after cancel")
	}
}
