package monitor

import (
	"context"
	"log/slog"
	"time"

	"github.com/google/uuid"

	"dockwatch/internal/docker"
	"dockwatch/internal/health"
	"dockwatch/internal/metrics"
	"dockwatch/internal/models"
	"dockwatch/internal/state"
)

const DefaultInterval = 60 * time.Second

// Lister is the container runtime as seen by the monitor.
type Lister interface {
	ListContainers(ctx context.Context) ([]docker.ContainerSummary, error)
}

// Inventory records what each successful poll saw. Optional.
type Inventory interface {
	RecordSnapshot(ctx context.Context, containers []models.Container, seenAt time.Time) error
}

type Monitor struct {
	lister       Lister
	state        *state.RuntimeState
	inventory    Inventory
	metrics      *metrics.Metrics
	log          *slog.Logger
	interval     time.Duration
	realertAfter time.Duration
	now          func() time.Time
}

type Options struct {
	Interval     time.Duration
	RealertAfter time.Duration
	Inventory    Inventory
}

func New(lister Lister, st *state.RuntimeState, m *metrics.Metrics, logger *slog.Logger, opts Options) *Monitor {
	if opts.Interval <= 0 {
		opts.Interval = DefaultInterval
	}
	if opts.RealertAfter <= 0 {
		opts.RealertAfter = health.DefaultRealertAfter
	}
	return &Monitor{
		lister:       lister,
		state:        st,
		inventory:    opts.Inventory,
		metrics:      m,
		log:          logger,
		interval:     opts.Interval,
		realertAfter: opts.RealertAfter,
		now:          time.Now,
	}
}

// Run ticks once immediately, then on every interval boundary of the wall
// clock until ctx is cancelled.
func (m *Monitor) Run(ctx context.Context) error {
	m.log.Info("monitor started", "interval", m.interval, "realert_after", m.realertAfter)
	m.Tick(ctx)

	timer := time.NewTimer(m.untilNextTick())
	defer timer.Stop()
	for {
		select {
		case <-ctx.Done():
			return nil
		case <-timer.C:
			m.Tick(ctx)
			timer.Reset(m.untilNextTick())
		}
	}
}

func (m *Monitor) untilNextTick() time.Duration {
	now := m.now()
	return nextBoundary(now, m.interval).Sub(now)
}

func nextBoundary(now time.Time, period time.Duration) time.Time {
	return now.Truncate(period).Add(period)
}

// Tick polls the runtime once and feeds every container through the tracker.
// A failed poll changes nothing.
func (m *Monitor) Tick(ctx context.Context) {
	containers, err := m.lister.ListContainers(ctx)
	if err != nil {
		m.metrics.PollFailures.Inc()
		m.log.Warn("list containers", "err", err)
		return
	}
	now := m.now()
	m.state.SetActivity(int64(len(containers)))

	var alerts, unhealthy int
	m.state.Transact(func(tx *state.Tx) {
		for _, c := range containers {
			obs := health.Observation{ID: c.ID, Name: c.DisplayName(), Class: health.Classify(c.State)}
			prev, _ := tx.Get(c.ID)
			next, tr := health.Evaluate(prev, obs, now, m.realertAfter)
			tx.Put(next)
			if !next.Healthy {
				unhealthy++
			}
			if tr == nil {
				continue
			}
			tx.Enqueue(models.AlertEvent{
				ID:         uuid.NewString(),
				ResourceID: c.ID,
				Message:    tr.Message,
				CreatedAt:  now,
				Source:     models.SourceMonitor,
			})
			alerts++
			m.log.Info("health transition", "container", docker.ShortID(c.ID), "name", obs.Name, "kind", tr.Kind, "state", c.State)
		}
	})

	m.metrics.AlertsEnqueued.WithLabelValues(models.SourceMonitor).Add(float64(alerts))
	m.metrics.ContainersObserved.Set(float64(len(containers)))
	m.metrics.ContainersUnhealthy.Set(float64(unhealthy))

	if m.inventory == nil {
		return
	}
	rows := make([]models.Container, 0, len(containers))
	for _, c := range containers {
		rows = append(rows, models.Container{ID: c.ID, Name: c.DisplayName(), Image: c.Image, State: c.State, Status: c.Status})
	}
	if err := m.inventory.RecordSnapshot(ctx, rows, now.UTC()); err != nil {
		m.log.Warn("record inventory", "err", err)
	}
}
