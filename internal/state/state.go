// Package state holds the runtime aggregate shared by the monitor, the
// dispatcher, the inbound listener and the status page.
//
// Lock order is health table before queue. Only Transact holds both.
package state

import (
	"errors"
	"sort"
	"strings"
	"sync"
	"sync/atomic"

	"dockwatch/internal/models"
	"dockwatch/internal/queue"
)

var (
	ErrUnknownContainer   = errors.New("unknown container")
	ErrNotUnhealthy       = errors.New("container is not unhealthy")
	ErrAmbiguousContainer = errors.New("container reference matches more than one container")
)

type RuntimeState struct {
	mu     sync.Mutex
	health map[string]models.ContainerHealth

	queue    *queue.Queue
	activity atomic.Int64
}

func New() *RuntimeState {
	return &RuntimeState{health: map[string]models.ContainerHealth{}, queue: queue.New()}
}

// Tx is the view handed to Transact callbacks. It is only valid inside the callback.
type Tx struct {
	health map[string]models.ContainerHealth
	push   func(models.AlertEvent)
}

// Get returns the tracked state for id, or a fresh healthy entry and false.
func (tx *Tx) Get(id string) (models.ContainerHealth, bool) {
	h, ok := tx.health[id]
	if !ok {
		return models.NewContainerHealth(id), false
	}
	return h, true
}

func (tx *Tx) Put(h models.ContainerHealth) {
	tx.health[h.ID] = h
}

func (tx *Tx) Enqueue(ev models.AlertEvent) {
	tx.push(ev)
}

// Transact runs fn with both the health table and the queue locked, so a
// detected transition and its alert become visible together.
func (s *RuntimeState) Transact(fn func(tx *Tx)) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.queue.Locked(func(push func(models.AlertEvent)) {
		fn(&Tx{health: s.health, push: push})
	})
}

// Acknowledge silences escalation for the current unhealthy episode of the
// container ref names: a full id, a container name or a unique id prefix.
func (s *RuntimeState) Acknowledge(ref string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	id, err := s.resolve(ref)
	if err != nil {
		return err
	}
	h := s.health[id]
	if h.Healthy {
		return ErrNotUnhealthy
	}
	h.Acknowledged = true
	s.health[id] = h
	return nil
}

// resolve must be called with mu held.
func (s *RuntimeState) resolve(ref string) (string, error) {
	if ref == "" {
		return "", ErrUnknownContainer
	}
	if _, ok := s.health[ref]; ok {
		return ref, nil
	}
	var byName, byPrefix []string
	for id, h := range s.health {
		if h.Name == ref {
			byName = append(byName, id)
		}
		if strings.HasPrefix(id, ref) {
			byPrefix = append(byPrefix, id)
		}
	}
	for _, matches := range [][]string{byName, byPrefix} {
		switch len(matches) {
		case 0:
			continue
		case 1:
			return matches[0], nil
		default:
			return "", ErrAmbiguousContainer
		}
	}
	return "", ErrUnknownContainer
}

// Snapshot returns a copy of the health table sorted by id.
func (s *RuntimeState) Snapshot() []models.ContainerHealth {
	s.mu.Lock()
	out := make([]models.ContainerHealth, 0, len(s.health))
	for _, h := range s.health {
		if h.UnhealthySince != nil {
			since := *h.UnhealthySince
			h.UnhealthySince = &since
		}
		out = append(out, h)
	}
	s.mu.Unlock()
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out
}

func (s *RuntimeState) Enqueue(ev models.AlertEvent) {
	s.queue.Enqueue(ev)
}

func (s *RuntimeState) DrainAlerts() []models.AlertEvent {
	return s.queue.DrainAll()
}

func (s *RuntimeState) PendingAlerts() int {
	return s.queue.Len()
}

func (s *RuntimeState) SetActivity(n int64) {
	s.activity.Store(n)
}

func (s *RuntimeState) AddActivity(delta int64) int64 {
	return s.activity.Add(delta)
}

func (s *RuntimeState) Activity() int64 {
	return s.activity.Load()
}
