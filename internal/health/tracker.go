// Package health implements the per-container health state machine.
//
// Evaluate is pure: it takes the previous state of a container and the
// run-state observed on this tick and returns the next state plus at most one
// transition worth alerting about. Callers own locking and persistence.
package health

import (
	"fmt"
	"strings"
	"time"

	"dockwatch/internal/models"
)

// DefaultRealertAfter is how long a container may stay unhealthy and
// unacknowledged before it is reported again.
const DefaultRealertAfter = 30 * time.Minute

// Class is the health classification of a raw run-state.
type Class int

const (
	Running Class = iota
	Stopped
	OtherUnhealthy
)

func (c Class) String() string {
	switch c {
	case Running:
		return "running"
	case Stopped:
		return "stopped"
	default:
		return "unhealthy"
	}
}

// Classify maps a container runtime state string to a Class.
func Classify(state string) Class {
	switch strings.ToLower(strings.TrimSpace(state)) {
	case "running":
		return Running
	case "exited", "dead", "removing", "created", "paused":
		return Stopped
	default:
		return OtherUnhealthy
	}
}

// Observation is what the monitor saw for one container on one tick.
type Observation struct {
	ID    string
	Name  string
	Class Class
}

// Kind identifies the transition that produced an alert.
type Kind string

const (
	BecameUnhealthy Kind = "became_unhealthy"
	StillUnhealthy  Kind = "still_unhealthy"
	Recovered       Kind = "recovered"
)

// Transition describes an alert-worthy change.
type Transition struct {
	Kind    Kind
	Message string
}

// Evaluate advances prev by one observation taken at now.
func Evaluate(prev models.ContainerHealth, obs Observation, now time.Time, realertAfter time.Duration) (models.ContainerHealth, *Transition) {
	if realertAfter <= 0 {
		realertAfter = DefaultRealertAfter
	}
	next := prev
	if obs.Name != "" {
		next.Name = obs.Name
	}
	name := next.Name
	if name == "" {
		name = obs.ID
	}

	if obs.Class == Running {
		if prev.Healthy {
			return next, nil
		}
		next.Healthy = true
		next.UnhealthySince = nil
		next.Acknowledged = false
		return next, &Transition{Kind: Recovered, Message: fmt.Sprintf("Container %s has recovered and is now healthy.", name)}
	}

	if prev.Healthy {
		since := now
		next.Healthy = false
		next.UnhealthySince = &since
		next.Acknowledged = false
		msg := fmt.Sprintf("Container %s just became unhealthy.", name)
		if obs.Class == Stopped {
			msg = fmt.Sprintf("Container %s has stopped.", name)
		}
		return next, &Transition{Kind: BecameUnhealthy, Message: msg}
	}

	if prev.Acknowledged {
		return next, nil
	}
	if prev.UnhealthySince == nil {
		// Repairs a state that lost its timestamp; the window restarts now.
		since := now
		next.UnhealthySince = &since
		return next, nil
	}
	if now.Sub(*prev.UnhealthySince) < realertAfter {
		return next, nil
	}
	since := now
	next.UnhealthySince = &since
	return next, &Transition{
		Kind:    StillUnhealthy,
		Message: fmt.Sprintf("Container %s is STILL unhealthy after %s.", name, humanWindow(realertAfter)),
	}
}

func humanWindow(d time.Duration) string {
	switch {
	case d%time.Hour == 0:
		return plural(int(d/time.Hour), "hour")
	case d%time.Minute == 0:
		return plural(int(d/time.Minute), "minute")
	default:
		return d.String()
	}
}

func plural(n int, unit string) string {
	if n == 1 {
		return "1 " + unit
	}
	return fmt.Sprintf("%d %ss", n, unit)
}
