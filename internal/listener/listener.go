// Package listener turns authorized inbound chat messages into alert events.
package listener

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/google/uuid"

	"dockwatch/internal/metrics"
	"dockwatch/internal/models"
	"dockwatch/internal/state"
)

const ackCommand = "/ack"

// Source yields inbound messages until ctx ends, then closes the channel.
type Source interface {
	Messages(ctx context.Context) <-chan models.InboundMessage
}

type Listener struct {
	source  Source
	state   *state.RuntimeState
	adminID string
	metrics *metrics.Metrics
	log     *slog.Logger
	now     func() time.Time
}

func New(source Source, st *state.RuntimeState, adminID string, m *metrics.Metrics, logger *slog.Logger) *Listener {
	return &Listener{source: source, state: st, adminID: adminID, metrics: m, log: logger, now: time.Now}
}

func (l *Listener) Run(ctx context.Context) error {
	if l.adminID == "" {
		l.log.Warn("no admin chat id configured; every inbound message will be rejected")
	}
	l.log.Info("listener started")
	for msg := range l.source.Messages(ctx) {
		l.Handle(msg)
	}
	return nil
}

// Handle processes one inbound message.
func (l *Listener) Handle(msg models.InboundMessage) {
	if l.adminID == "" || msg.SenderID != l.adminID {
		l.metrics.InboundRejected.WithLabelValues("unauthorized").Inc()
		l.log.Warn("inbound message from unauthorized sender", "sender", msg.SenderID, "chat", msg.ChatID)
		return
	}
	if !msg.HasText {
		l.metrics.InboundRejected.WithLabelValues("no_text").Inc()
		l.log.Info("received a non-text message", "chat", msg.ChatID)
		return
	}
	l.log.Info("received message", "chat", msg.ChatID, "len", len(msg.Text))

	l.enqueue(models.OperatorResource, msg.Text, msg.ChatID)
	l.state.AddActivity(1)

	if id, ok := parseAck(msg.Text); ok {
		l.acknowledge(id, msg.ChatID)
	}
}

func (l *Listener) acknowledge(id, chatID string) {
	err := l.state.Acknowledge(id)
	var reply string
	switch {
	case err == nil:
		reply = "acknowledged; repeat alerts are suppressed until it recovers."
		l.log.Info("container acknowledged", "container", id)
	case errors.Is(err, state.ErrUnknownContainer), errors.Is(err, state.ErrNotUnhealthy), errors.Is(err, state.ErrAmbiguousContainer):
		reply = fmt.Sprintf("cannot acknowledge: %v.", err)
		l.log.Info("acknowledge refused", "container", id, "err", err)
	default:
		reply = "cannot acknowledge."
		l.log.Warn("acknowledge failed", "container", id, "err", err)
	}
	l.enqueue(id, reply, chatID)
}

func (l *Listener) enqueue(resource, text, chatID string) {
	l.state.Enqueue(models.AlertEvent{
		ID:          uuid.NewString(),
		ResourceID:  resource,
		Message:     text,
		CreatedAt:   l.now(),
		Destination: chatID,
		Source:      models.SourceInbound,
	})
	l.metrics.AlertsEnqueued.WithLabelValues(models.SourceInbound).Inc()
}

// parseAck recognises "/ack <id>" and "/ack@botname <id>".
func parseAck(text string) (string, bool) {
	fields := strings.Fields(text)
	if len(fields) != 2 {
		return "", false
	}
	cmd := fields[0]
	if i := strings.IndexByte(cmd, '@'); i >= 0 {
		cmd = cmd[:i]
	}
	if cmd != ackCommand {
		return "", false
	}
	return fields[1], true
}
