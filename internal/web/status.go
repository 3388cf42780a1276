package web

import (
	"context"
	"strings"
	"time"

	"dockwatch/internal/models"
)

type Status struct {
	GeneratedAt   time.Time         `json:"generated_at"`
	Activity      int64             `json:"activity"`
	PendingAlerts int               `json:"pending_alerts"`
	Containers    []ContainerStatus `json:"containers"`
	Inventory     []InventoryItem   `json:"inventory"`
}

type ContainerStatus struct {
	ID             string     `json:"id"`
	Name           string     `json:"name"`
	Healthy        bool       `json:"healthy"`
	UnhealthySince *time.Time `json:"unhealthy_since,omitempty"`
	Acknowledged   bool       `json:"acknowledged"`
}

type InventoryItem struct {
	ID        string    `json:"id"`
	Name      string    `json:"name"`
	Image     string    `json:"image"`
	State     string    `json:"state"`
	Status    string    `json:"status"`
	FirstSeen time.Time `json:"first_seen_at"`
	LastSeen  time.Time `json:"last_seen_at"`
	ImageURL  string    `json:"image_url,omitempty"`
}

func (s *Server) buildStatus(ctx context.Context) Status {
	st := Status{
		GeneratedAt:   s.now().UTC(),
		Activity:      s.state.Activity(),
		PendingAlerts: s.state.PendingAlerts(),
		Containers:    []ContainerStatus{},
		Inventory:     []InventoryItem{},
	}
	for _, h := range s.state.Snapshot() {
		st.Containers = append(st.Containers, ContainerStatus{
			ID:             h.ID,
			Name:           h.Name,
			Healthy:        h.Healthy,
			UnhealthySince: h.UnhealthySince,
			Acknowledged:   h.Acknowledged,
		})
	}
	rows, err := s.repo.ListContainers(ctx)
	if err != nil {
		s.log.Warn("list inventory", "err", err)
		return st
	}
	for _, c := range rows {
		st.Inventory = append(st.Inventory, inventoryItem(c))
	}
	return st
}

func inventoryItem(c models.Container) InventoryItem {
	return InventoryItem{
		ID:        c.ID,
		Name:      c.Name,
		Image:     c.Image,
		State:     c.State,
		Status:    c.Status,
		FirstSeen: c.FirstSeenAt,
		LastSeen:  c.LastSeenAt,
		ImageURL:  hubURL(c.Image),
	}
}

// hubURL links an image reference to its Docker Hub page. Images from other
// registries and bare digests get no link.
func hubURL(image string) string {
	if image == "" || strings.HasPrefix(image, "sha256:") {
		return ""
	}
	name := image
	if i := strings.IndexByte(name, '@'); i >= 0 {
		name = name[:i]
	}
	if i := strings.LastIndexByte(name, ':'); i > strings.LastIndexByte(name, '/') {
		name = name[:i]
	}
	parts := strings.Split(name, "/")
	if len(parts) > 1 {
		host := parts[0]
		if strings.ContainsAny(host, ".:") || host == "localhost" {
			if host != "docker.io" && host != "index.docker.io" {
				return ""
			}
			parts = parts[1:]
		}
	}
	if len(parts) == 1 || (len(parts) == 2 && parts[0] == "library") {
		return "https://hub.docker.com/_/" + parts[len(parts)-1]
	}
	return "https://hub.docker.com/r/" + strings.Join(parts, "/")
}
