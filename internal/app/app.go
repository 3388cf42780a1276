package app

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"time"

	"golang.org/x/sync/errgroup"

	"dockwatch/internal/config"
	"dockwatch/internal/db"
	"dockwatch/internal/dispatcher"
	"dockwatch/internal/docker"
	"dockwatch/internal/listener"
	"dockwatch/internal/metrics"
	"dockwatch/internal/monitor"
	"dockwatch/internal/notifier"
	"dockwatch/internal/retention"
	"dockwatch/internal/state"
	"dockwatch/internal/web"
)

const shutdownTimeout = 5 * time.Second

type App struct {
	cfg        config.Config
	configPath string
	log        *slog.Logger

	db      *db.Repository
	docker  *docker.Client
	state   *state.RuntimeState
	metrics *metrics.Metrics

	monitor    *monitor.Monitor
	dispatcher *dispatcher.Dispatcher
	listener   *listener.Listener
	retention  *retention.Service
	notify     *notifier.Telegram
	web        *web.Server

	httpSrv *http.Server
}

// New wires every component. configPath may be empty; when set, the file is
// watched and Telegram credentials are reloaded on change.
func New(cfg config.Config, configPath string, logger *slog.Logger) (*App, error) {
	sqldb, err := db.Open(cfg.Storage.DBPath)
	if err != nil {
		return nil, err
	}
	if err := db.Migrate(sqldb); err != nil {
		_ = sqldb.Close()
		return nil, err
	}
	repo := db.NewRepository(sqldb)
	dc := docker.NewClient(cfg.Docker.Socket)

	// Settings saved from the status page win over the environment.
	token, chatID, err := repo.LoadTelegramSettings(context.Background())
	if err != nil {
		logger.Warn("load saved telegram settings", "err", err)
	}
	if token == "" {
		token = cfg.Telegram.Token
	}
	if chatID == "" {
		chatID = cfg.Telegram.AlertChatID
	}
	n := notifier.NewTelegram(token, chatID, notifier.Options{
		RatePerSecond: cfg.Telegram.RatePerSecond,
		MaxAttempts:   cfg.Telegram.MaxAttempts,
		Logger:        logger.With("module", "telegram"),
	})

	st := state.New()
	m := metrics.New()
	m.WatchRuntime(
		func() float64 { return float64(st.PendingAlerts()) },
		func() float64 { return float64(st.Activity()) },
	)

	w := web.NewServer(st, repo, dc, n, m.Handler(), logger.With("module", "web"))

	app := &App{
		cfg:        cfg,
		configPath: configPath,
		log:        logger,
		db:         repo,
		docker:     dc,
		state:      st,
		metrics:    m,
		monitor: monitor.New(dc, st, m, logger.With("module", "monitor"), monitor.Options{
			Interval:     cfg.Monitor.PollInterval,
			RealertAfter: cfg.Monitor.RealertAfter,
			Inventory:    repo,
		}),
		dispatcher: dispatcher.New(st, n, n.DefaultChat, m, logger.With("module", "dispatcher"), cfg.Dispatcher.Interval),
		listener:   listener.New(n, st, cfg.Telegram.AdminChatID, m, logger.With("module", "listener")),
		retention:  retention.NewService(repo, cfg.Storage.RetentionDays, logger.With("module", "retention")),
		notify:     n,
		web:        w,
	}
	app.httpSrv = &http.Server{
		Addr:              cfg.Server.ListenAddr(),
		Handler:           w.Routes(),
		ReadHeaderTimeout: 10 * time.Second,
	}
	return app, nil
}

// Run starts every loop and blocks until ctx is cancelled or a component
// fails. The database is closed on return.
func (a *App) Run(ctx context.Context) error {
	defer a.db.DB().Close()

	g, ctx := errgroup.WithContext(ctx)

	g.Go(func() error {
		a.log.Info("http server listening", "addr", a.httpSrv.Addr)
		if err := a.httpSrv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	})
	g.Go(func() error {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer cancel()
		return a.httpSrv.Shutdown(shutdownCtx)
	})
	g.Go(func() error { return a.monitor.Run(ctx) })
	g.Go(func() error { return a.dispatcher.Run(ctx) })
	g.Go(func() error { return a.listener.Run(ctx) })
	g.Go(func() error { return a.web.Hub().Run(ctx) })
	g.Go(func() error { return a.retention.Loop(ctx, retention.DefaultEvery) })
	if a.configPath != "" {
		g.Go(func() error {
			return config.Watch(ctx, a.configPath, a.log.With("module", "config"), a.reload)
		})
	}

	err := g.Wait()
	a.log.Info("shutdown complete", "pending_alerts", a.state.PendingAlerts())
	return err
}

// reload applies the parts of a new configuration that can change at runtime.
func (a *App) reload(cfg config.Config) {
	a.notify.Update(cfg.Telegram.Token, cfg.Telegram.AlertChatID)
	a.log.Info("telegram credentials reloaded")
}
