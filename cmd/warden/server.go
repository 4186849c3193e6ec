package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"time"

	"github.com/modwarden/warden/automod/cachestore"
	"github.com/modwarden/warden/automod/countstore"
	"github.com/modwarden/warden/automod/engine"
	"github.com/modwarden/warden/automod/flagstore"
	"github.com/modwarden/warden/automod/platform"
	"github.com/modwarden/warden/automod/platform/bridge"
	"github.com/modwarden/warden/automod/settings"
	"github.com/modwarden/warden/automod/taskqueue"
	"github.com/modwarden/warden/util/cliutil"

	"github.com/labstack/echo/v4"
	"golang.org/x/sync/errgroup"
	"gorm.io/gorm"
	"gorm.io/plugin/opentelemetry/tracing"
)

type Server struct {
	logger   *slog.Logger
	engine   *engine.Engine
	store    taskqueue.Store
	runner   *taskqueue.Runner
	settings settings.Store
	echo     *echo.Echo
	httpd    *http.Server
	secret   string
}

type Config struct {
	Logger *slog.Logger
	// bridge sidecar; ignored if Platform is set
	BridgeHost      string
	BridgeToken     string
	BridgeRateLimit float64
	// overrides the bridge client (tests)
	Platform platform.Platform

	RedisURL      string
	DatabaseURL   string
	MaxDBConns    int
	DBTracing     bool
	Namespace     string
	Identity      string
	WebhookSecret string
	SlackWebhook  string
	QuotaActions  int
	PollInterval  time.Duration
	Parallelism   int
	CacheTTL      time.Duration
	Bind          string
}

// Backends shared by the daemon and the CLI tooling. With a database URL, tasks and settings live in SQL; with a redis URL, everything else (and otherwise also tasks and settings) lives in redis; with neither, all state is in-process and lost on restart.
type stores struct {
	Queue    taskqueue.Store
	Settings settings.Store
	Flags    flagstore.FlagStore
	Counters countstore.CountStore
	Cache    cachestore.CacheStore
}

func openStores(config Config, logger *slog.Logger) (*stores, error) {
	ns := config.Namespace
	if ns == "" {
		ns = "default"
	}
	ttl := config.CacheTTL
	if ttl <= 0 {
		ttl = 30 * time.Minute
	}
	s := &stores{}

	if config.RedisURL != "" {
		cnt, err := countstore.NewRedisCountStore(config.RedisURL)
		if err != nil {
			return nil, fmt.Errorf("initializing redis countstore: %v", err)
		}
		s.Counters = cnt

		csh, err := cachestore.NewRedisCacheStore(config.RedisURL, ttl)
		if err != nil {
			return nil, fmt.Errorf("initializing redis cachestore: %v", err)
		}
		s.Cache = csh

		flg, err := flagstore.NewRedisFlagStore(config.RedisURL)
		if err != nil {
			return nil, fmt.Errorf("initializing redis flagstore: %v", err)
		}
		s.Flags = flg
	} else {
		s.Counters = countstore.NewMemCountStore()
		s.Cache = cachestore.NewMemCacheStore(5_000, ttl)
		s.Flags = flagstore.NewMemFlagStore()
	}

	switch {
	case config.DatabaseURL != "":
		db, err := cliutil.SetupDatabase(config.DatabaseURL, config.MaxDBConns, logger)
		if err != nil {
			return nil, err
		}
		if config.DBTracing {
			if err := db.Use(tracing.NewPlugin()); err != nil {
				return nil, err
			}
		}
		if err := openGormStores(s, db, ns); err != nil {
			return nil, err
		}
	case config.RedisURL != "":
		q, err := taskqueue.NewRedisQueue(config.RedisURL)
		if err != nil {
			return nil, fmt.Errorf("initializing redis task queue: %v", err)
		}
		s.Queue = q
		st, err := settings.NewRedisStore(config.RedisURL, ns)
		if err != nil {
			return nil, fmt.Errorf("initializing redis settings store: %v", err)
		}
		s.Settings = st
	default:
		logger.Warn("no database or redis configured, tasks and settings will not survive a restart")
		s.Queue = taskqueue.NewMemQueue()
		s.Settings = settings.NewMemStore()
	}
	return s, nil
}

func openGormStores(s *stores, db *gorm.DB, ns string) error {
	q, err := taskqueue.NewGormQueue(db)
	if err != nil {
		return fmt.Errorf("initializing SQL task queue: %v", err)
	}
	s.Queue = q
	st, err := settings.NewGormStore(db, ns)
	if err != nil {
		return fmt.Errorf("initializing SQL settings store: %v", err)
	}
	s.Settings = st
	return nil
}

func newPlatform(config Config, logger *slog.Logger) (platform.Platform, error) {
	if config.Platform != nil {
		return config.Platform, nil
	}
	if config.BridgeHost == "" {
		return nil, errors.New("a platform bridge host is required")
	}
	return bridge.NewClient(bridge.ClientConfig{
		Host:      config.BridgeHost,
		Token:     config.BridgeToken,
		RateLimit: config.BridgeRateLimit,
		Logger:    logger,
	}), nil
}

func NewServer(config Config) (*Server, error) {
	logger := config.Logger
	if logger == nil {
		logger = slog.New(slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{
			Level: slog.LevelInfo,
		}))
	}

	p, err := newPlatform(config, logger)
	if err != nil {
		return nil, err
	}
	st, err := openStores(config, logger)
	if err != nil {
		return nil, err
	}

	identity := config.Identity
	if identity == "" {
		identity = "warden-bot"
	}
	eng := &engine.Engine{
		Logger:          logger,
		Platform:        p,
		Queue:           st.Queue,
		Settings:        st.Settings,
		Flags:           st.Flags,
		Counters:        st.Counters,
		Cache:           st.Cache,
		Identity:        identity,
		QuotaActionsDay: config.QuotaActions,
	}
	if config.SlackWebhook != "" {
		eng.Notifier = &engine.SlackNotifier{SlackWebhookURL: config.SlackWebhook}
	}

	runner := taskqueue.NewRunner(st.Queue, eng.HandleTask, logger)
	if config.PollInterval > 0 {
		runner.PollInterval = config.PollInterval
	}
	if config.Parallelism > 0 {
		runner.Parallelism = config.Parallelism
	}

	srv := &Server{
		logger:   logger,
		engine:   eng,
		store:    st.Queue,
		runner:   runner,
		settings: st.Settings,
		secret:   config.WebhookSecret,
	}
	srv.echo = srv.newEcho()
	srv.httpd = &http.Server{
		Handler:        srv.echo,
		Addr:           config.Bind,
		WriteTimeout:   time.Minute,
		ReadTimeout:    time.Minute,
		MaxHeaderBytes: 1 << 20,
	}
	return srv, nil
}

// Runs the webhook API and the task runner until ctx is done, or until either of them fails.
func (srv *Server) Run(ctx context.Context) error {
	g, ctx := errgroup.WithContext(ctx)

	g.Go(func() error {
		if err := srv.runner.Run(ctx); err != nil && !errors.Is(err, context.Canceled) {
			return fmt.Errorf("task runner: %w", err)
		}
		return nil
	})
	g.Go(func() error {
		srv.logger.Info("starting webhook server", "bind", srv.httpd.Addr)
		if err := srv.httpd.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return fmt.Errorf("webhook server: %w", err)
		}
		return nil
	})
	g.Go(func() error {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		return srv.httpd.Shutdown(shutdownCtx)
	})

	err := g.Wait()
	srv.logger.Info("graceful shutdown complete")
	return err
}
