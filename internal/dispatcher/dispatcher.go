// Package dispatcher drains the alert queue and hands each event to the chat
// channel. Delivery is at-most-once: a failed send is logged and dropped.
package dispatcher

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"dockwatch/internal/metrics"
	"dockwatch/internal/models"
)

const DefaultInterval = 100 * time.Millisecond

// Sender delivers one formatted line to a chat.
type Sender interface {
	Send(ctx context.Context, chatID, text string) error
}

// Drainer is the queue side of the runtime state.
type Drainer interface {
	DrainAlerts() []models.AlertEvent
}

type Dispatcher struct {
	queue       Drainer
	sender      Sender
	defaultChat func() string
	metrics     *metrics.Metrics
	log         *slog.Logger
	interval    time.Duration
	now         func() time.Time
}

// New builds a dispatcher. defaultChat is consulted per event so a reloaded
// configuration takes effect without a restart.
func New(q Drainer, sender Sender, defaultChat func() string, m *metrics.Metrics, logger *slog.Logger, interval time.Duration) *Dispatcher {
	if interval <= 0 {
		interval = DefaultInterval
	}
	return &Dispatcher{queue: q, sender: sender, defaultChat: defaultChat, metrics: m, log: logger, interval: interval, now: time.Now}
}

func (d *Dispatcher) Run(ctx context.Context) error {
	d.log.Info("dispatcher started", "interval", d.interval)
	for {
		d.DrainOnce(ctx)
		select {
		case <-ctx.Done():
			return nil
		case <-time.After(d.interval):
		}
	}
}

// DrainOnce delivers everything queued right now, in order, and returns the
// number of events delivered successfully.
func (d *Dispatcher) DrainOnce(ctx context.Context) int {
	events := d.queue.DrainAlerts()
	delivered := 0
	for i, ev := range events {
		if ctx.Err() != nil {
			d.log.Warn("shutdown with undelivered alerts", "dropped", len(events)-i)
			return delivered
		}
		dest := ev.Destination
		if dest == "" {
			dest = d.defaultChat()
		}
		if dest == "" {
			d.metrics.AlertsFailed.Inc()
			d.log.Warn("alert dropped: no destination", "alert_id", ev.ID, "resource", ev.ResourceID)
			continue
		}
		if err := d.sender.Send(ctx, dest, Format(ev, d.now())); err != nil {
			d.metrics.AlertsFailed.Inc()
			d.log.Warn("alert delivery failed", "alert_id", ev.ID, "resource", ev.ResourceID, "err", err)
			continue
		}
		d.metrics.AlertsDelivered.Inc()
		delivered++
	}
	return delivered
}

var lineBreaks = strings.NewReplacer("\r\n", " ", "\n", " ", "\r", " ")

// Format renders the wire line "[<ageSeconds>] <resourceId>: <message>".
func Format(ev models.AlertEvent, now time.Time) string {
	age := now.Sub(ev.CreatedAt)
	if age < 0 {
		age = 0
	}
	return fmt.Sprintf("[%d] %s: %s", int64(age/time.Second), ev.ResourceID, lineBreaks.Replace(ev.Message))
}
