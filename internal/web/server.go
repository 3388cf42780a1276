package web

import (
	"context"
	"embed"
	"encoding/json"
	"errors"
	"html/template"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"dockwatch/internal/models"
	"dockwatch/internal/state"
)

//go:embed templates/*.html
var webFS embed.FS

// StateView is the slice of the runtime state the status pages read and act on.
type StateView interface {
	Snapshot() []models.ContainerHealth
	Activity() int64
	PendingAlerts() int
	Acknowledge(ref string) error
}

type Store interface {
	ListContainers(ctx context.Context) ([]models.Container, error)
	SaveTelegramSettings(ctx context.Context, token, chatID string) error
	Ping(ctx context.Context) error
}

type Pinger interface {
	Ping(ctx context.Context) error
}

type CredentialUpdater interface {
	Update(token, chatID string)
}

type Server struct {
	state   StateView
	repo    Store
	docker  Pinger
	notify  CredentialUpdater
	metrics http.Handler
	log     *slog.Logger
	tpl     *template.Template
	hub     *Hub
	now     func() time.Time
}

func NewServer(st StateView, repo Store, docker Pinger, notify CredentialUpdater, metrics http.Handler, logger *slog.Logger) *Server {
	tpl := template.Must(template.New("all").Funcs(template.FuncMap{
		"timeago": func(t time.Time) string { return time.Since(t).Round(time.Second).String() + " ago" },
		"shortid": func(id string) string {
			if len(id) > 12 {
				return id[:12]
			}
			return id
		},
	}).ParseFS(webFS, "templates/*.html"))
	s := &Server{state: st, repo: repo, docker: docker, notify: notify, metrics: metrics, log: logger, tpl: tpl, now: time.Now}
	s.hub = newHub(s.buildStatus, DefaultBroadcastInterval, logger)
	return s
}

// Hub returns the websocket broadcaster; the caller owns its Run loop.
func (s *Server) Hub() *Hub { return s.hub }

func (s *Server) Routes() http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("GET /{$}", s.handleIndex)
	mux.HandleFunc("GET /api/status", s.handleStatusAPI)
	mux.Handle("POST /api/containers/{id}/ack", sameOrigin(http.HandlerFunc(s.handleAck)))
	mux.Handle("POST /api/settings/telegram", sameOrigin(http.HandlerFunc(s.handleSettingsTelegram)))
	mux.Handle("GET /ws/status", s.hub)
	mux.HandleFunc("GET /healthz", s.handleHealthz)
	mux.HandleFunc("GET /readyz", s.handleReadyz)
	if s.metrics != nil {
		mux.Handle("GET /metrics", s.metrics)
	}
	return logMiddleware(mux, s.log)
}

func (s *Server) handleIndex(w http.ResponseWriter, r *http.Request) {
	if err := s.tpl.ExecuteTemplate(w, "status.html", s.buildStatus(r.Context())); err != nil {
		http.Error(w, err.Error(), 500)
	}
}

func (s *Server) handleStatusAPI(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, s.buildStatus(r.Context()))
}

func (s *Server) handleAck(w http.ResponseWriter, r *http.Request) {
	id := r.PathValue("id")
	err := s.state.Acknowledge(id)
	switch {
	case err == nil:
		s.log.Info("container acknowledged", "container", id)
		w.WriteHeader(http.StatusNoContent)
	case errors.Is(err, state.ErrUnknownContainer):
		http.Error(w, err.Error(), http.StatusNotFound)
	case errors.Is(err, state.ErrNotUnhealthy):
		http.Error(w, err.Error(), http.StatusConflict)
	case errors.Is(err, state.ErrAmbiguousContainer):
		http.Error(w, err.Error(), http.StatusBadRequest)
	default:
		http.Error(w, err.Error(), 500)
	}
}

func (s *Server) handleSettingsTelegram(w http.ResponseWriter, r *http.Request) {
	if err := r.ParseForm(); err != nil {
		http.Error(w, err.Error(), 400)
		return
	}
	token := strings.TrimSpace(r.FormValue("token"))
	chatID := strings.TrimSpace(r.FormValue("chat_id"))
	if token == "" || chatID == "" {
		http.Error(w, "token and chat_id are required", 400)
		return
	}
	if err := s.repo.SaveTelegramSettings(r.Context(), token, chatID); err != nil {
		http.Error(w, err.Error(), 500)
		return
	}
	s.notify.Update(token, chatID)
	s.log.Info("telegram settings updated", "chat_id", chatID)
	http.Redirect(w, r, "/", http.StatusSeeOther)
}

func (s *Server) handleHealthz(w http.ResponseWriter, r *http.Request) {
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write([]byte("ok"))
}

func (s *Server) handleReadyz(w http.ResponseWriter, r *http.Request) {
	if err := s.repo.Ping(r.Context()); err != nil {
		http.Error(w, "db not ready", 503)
		return
	}
	if err := s.docker.Ping(r.Context()); err != nil {
		http.Error(w, "docker not ready", 503)
		return
	}
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write([]byte("ready"))
}

func writeJSON(w http.ResponseWriter, v any) {
	w.Header().Set("Content-Type", "application/json")
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	_ = enc.Encode(v)
}
