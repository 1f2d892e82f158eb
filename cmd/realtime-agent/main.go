// realtime-agent runs one user's realtime session: the socket connection,
// the fallback poller and, optionally, the event journal. It serves health,
// debug and metrics endpoints until SIGINT or SIGTERM.
//
// SIGHUP reconnects a session whose retry budget has run out, the same as
// an app returning to the foreground.
package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgxpool"
	"golang.org/x/sync/errgroup"

	"github.com/rickgao/tutorlink-realtime/internal/api"
	"github.com/rickgao/tutorlink-realtime/internal/auth"
	"github.com/rickgao/tutorlink-realtime/internal/config"
	"github.com/rickgao/tutorlink-realtime/internal/connection"
	"github.com/rickgao/tutorlink-realtime/internal/database"
	"github.com/rickgao/tutorlink-realtime/internal/dispatch"
	"github.com/rickgao/tutorlink-realtime/internal/journal"
	"github.com/rickgao/tutorlink-realtime/internal/logging"
	"github.com/rickgao/tutorlink-realtime/internal/metrics"
	"github.com/rickgao/tutorlink-realtime/internal/poller"
	"github.com/rickgao/tutorlink-realtime/internal/reconnect"
	"github.com/rickgao/tutorlink-realtime/internal/session"
	"github.com/rickgao/tutorlink-realtime/internal/version"
)

const shutdownTimeout = 15 * time.Second

func main() {
	configPath := flag.String("config", "configs/agent.local.yaml", "path to config file")
	showVersion := flag.Bool("version", false, "print version and exit")
	flag.Parse()

	if *showVersion {
		fmt.Println(version.String())
		return
	}

	if err := run(*configPath); err != nil {
		slog.Error("agent failed", "error", err)
		os.Exit(1)
	}
}

func run(configPath string) error {
	cfg, err := config.LoadAndValidate(configPath)
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}

	logger := logging.New(logging.Config{
		Level:       cfg.Logging.Level,
		Format:      cfg.Logging.Format,
		Output:      os.Stdout,
		AddSource:   cfg.Logging.AddSource,
		ServiceName: cfg.App.Name,
		Environment: cfg.App.Environment,
	}).With("instance_id", uuid.NewString())
	slog.SetDefault(logger)

	logger.Info("starting realtime agent",
		"version", version.Version,
		"commit", version.Commit,
		"config", configPath,
	)

	creds, err := auth.LoadCredentials(cfg.API.Token, cfg.App.UserID)
	if err != nil {
		return fmt.Errorf("load credentials: %w", err)
	}
	if creds.Expired(time.Now()) {
		logger.Warn("token has expired; the server will reject the socket", "expired_at", creds.ExpiresAt)
	} else if d := creds.ExpiresIn(time.Now()); d > 0 {
		logger.Info("token loaded", "user_id", creds.UserID, "expires_in", d.Round(time.Second))
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	m := metrics.New(nil)

	apiOpts := []api.ClientOption{
		api.WithLogger(logger),
		api.WithTimeout(cfg.API.Timeout),
		api.WithRetries(cfg.API.MaxRetries, time.Second),
	}
	if cfg.API.RateLimit > 0 {
		apiOpts = append(apiOpts, api.WithRateLimit(cfg.API.RateLimit, cfg.API.RateBurst))
	}
	rest := api.NewClient(cfg.API.RestURL, creds.Token, apiOpts...)

	// Optional event journal
	var pool *pgxpool.Pool
	var writer *journal.Writer
	if cfg.Journal.Enabled {
		pool, writer, err = startJournal(ctx, cfg, creds.UserID, m, logger)
		if err != nil {
			return err
		}
		defer pool.Close()
	}

	ctrl := session.NewController(func(userID string) (*session.Session, error) {
		opts := []session.Option{session.WithMetrics(m)}
		if writer != nil {
			opts = append(opts, session.WithSubscribers(writer))
		}
		return session.New(sessionConfig(cfg, userID, creds.Token), rest, logger, opts...)
	}, logger)

	if _, err := ctrl.Login(ctx, creds.UserID); err != nil {
		return fmt.Errorf("start session: %w", err)
	}

	srv := &http.Server{
		Addr:              fmt.Sprintf(":%d", cfg.Metrics.Port),
		Handler:           newRouter(ctrl, m, cfg.Metrics.Path, logger),
		ReadHeaderTimeout: 5 * time.Second,
	}

	g, gctx := errgroup.WithContext(ctx)

	g.Go(func() error {
		logger.Info("http server starting", "port", cfg.Metrics.Port)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return fmt.Errorf("http server: %w", err)
		}
		return nil
	})

	g.Go(func() error {
		hup := make(chan os.Signal, 1)
		signal.Notify(hup, syscall.SIGHUP)
		defer signal.Stop(hup)
		for {
			select {
			case <-gctx.Done():
				return nil
			case <-hup:
				logger.Info("foreground requested")
				if err := ctrl.Foreground(gctx); err != nil {
					logger.Warn("foreground reconnect failed", "error", err)
				}
			}
		}
	})

	g.Go(func() error {
		<-gctx.Done()
		logger.Info("shutting down...")

		shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer cancel()

		if err := srv.Shutdown(shutdownCtx); err != nil {
			logger.Error("http server shutdown error", "error", err)
		}
		if err := ctrl.Logout(shutdownCtx); err != nil {
			logger.Error("session shutdown error", "error", err)
		}
		if writer != nil {
			if err := writer.Stop(shutdownCtx); err != nil {
				logger.Error("journal shutdown error", "error", err)
			}
		}
		return nil
	})

	err = g.Wait()
	logger.Info("realtime agent stopped")
	return err
}

// startJournal connects to the journal database and starts the writer.
func startJournal(ctx context.Context, cfg *config.Config, userID string, m *metrics.Metrics, logger *slog.Logger) (*pgxpool.Pool, *journal.Writer, error) {
	db := cfg.Journal.Database
	logger.Info("connecting to journal database",
		"host", db.Host,
		"port", db.Port,
		"database", db.Name,
	)

	pool, err := database.Connect(ctx, db, cfg.App.Name)
	if err != nil {
		return nil, nil, fmt.Errorf("connect journal database: %w", err)
	}
	if err := journal.EnsureSchema(ctx, pool); err != nil {
		pool.Close()
		return nil, nil, err
	}

	w := journal.NewWriter(journal.Config{
		BatchSize:     cfg.Journal.BatchSize,
		FlushInterval: cfg.Journal.FlushInterval,
		BufferSize:    cfg.Journal.BufferSize,
	}, pool, userID, m, logger)
	if err := w.Start(ctx); err != nil {
		pool.Close()
		return nil, nil, fmt.Errorf("start journal: %w", err)
	}
	return pool, w, nil
}

// sessionConfig maps file config onto one user's session.
func sessionConfig(cfg *config.Config, userID, token string) session.Config {
	conn := connection.DefaultManagerConfig()
	conn.URL = cfg.Socket.URL
	conn.Path = cfg.Socket.Path
	conn.Token = token
	conn.HandshakeTimeout = cfg.Socket.HandshakeTimeout
	conn.WriteTimeout = cfg.Socket.WriteTimeout
	conn.PingTimeout = cfg.Socket.PingTimeout
	conn.BufferSize = cfg.Socket.BufferSize
	conn.Reconnect = reconnect.Config{
		BaseDelay:   cfg.Socket.Reconnect.BaseDelay,
		MaxDelay:    cfg.Socket.Reconnect.MaxDelay,
		MaxAttempts: cfg.Socket.Reconnect.MaxAttempts,
	}

	return session.Config{
		UserID:     userID,
		Connection: conn,
		Poller: poller.Config{
			NotificationInterval:  cfg.Poller.NotificationInterval,
			UnreadInterval:        cfg.Poller.UnreadInterval,
			Timeout:               cfg.Poller.Timeout,
			NotificationsAlwaysOn: cfg.Poller.NotificationsAlwaysOn,
		},
	}
}

// Compile-time check that the journal plugs into the dispatcher.
var _ dispatch.Subscriber = (*journal.Writer)(nil)
