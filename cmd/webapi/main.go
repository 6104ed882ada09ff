/*
Webapi is the executable of the Dead Poets platform: sessions, profiles, poems, submissions and the realtime profile
streams, all behind one HTTP server. Photos kept on disk are served under /storage.

Usage:

	webapi [flags]

Flags and configurations are handled by the code in `load-configuration.go`; `--help` lists them. The secret used to
sign session tokens is required:

	CFG_AUTH_SECRET=... CFG_AUTH_MAIN_ADMIN_EMAIL=keating@welton.edu webapi

Return values (exit codes):

	0
		The program ended successfully (no errors, stopped by signal)

	> 0
		The program ended due to an error

The database schema is created on first start; an existing database must match it.
*/
package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/ardanlabs/conf"
	"github.com/silktrader/deadpoets/pkg/auth"
	"github.com/silktrader/deadpoets/pkg/notes"
	"github.com/silktrader/deadpoets/pkg/profiles"
	"github.com/silktrader/deadpoets/pkg/realtime"
	"github.com/silktrader/deadpoets/pkg/rest"
	"github.com/silktrader/deadpoets/pkg/storage/images"
	"github.com/silktrader/deadpoets/pkg/storage/sqlite"
	"github.com/silktrader/deadpoets/pkg/submissions"
	"github.com/sirupsen/logrus"
)

func main() {
	if err := run(); err != nil {
		_, _ = fmt.Fprintln(os.Stderr, "error: ", err)
		os.Exit(1)
	}
}

func run() error {
	cfg, err := loadConfiguration()
	if err != nil {
		if errors.Is(err, conf.ErrHelpWanted) {
			return nil
		}
		return err
	}

	logger := logrus.New()
	logger.SetOutput(os.Stdout)
	if cfg.Debug {
		logger.SetLevel(logrus.DebugLevel)
	} else {
		logger.SetLevel(logrus.InfoLevel)
	}
	logger.Info("application initializing")

	// storage comes first, so that a broken database stops the process before anything listens
	storage, err := sqlite.New(logger, cfg.DB.Filename)
	if err != nil {
		logger.WithError(err).Error("error initialising storage")
		return fmt.Errorf("initialising storage: %w", err)
	}
	defer storage.Close()

	setupCtx, cancelSetup := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancelSetup()

	bucket, err := openBucket(setupCtx, logger, cfg)
	if err != nil {
		logger.WithError(err).Error("error opening photo storage")
		return fmt.Errorf("opening photo storage: %w", err)
	}

	broker, closeBroker, err := openBroker(setupCtx, logger, cfg)
	if err != nil {
		logger.WithError(err).Error("error opening realtime broker")
		return fmt.Errorf("opening realtime broker: %w", err)
	}
	defer closeBroker()

	engine, err := buildEngine(logger, cfg, storage, bucket, broker)
	if err != nil {
		return err
	}

	server := &http.Server{
		Addr:              cfg.Web.APIHost,
		Handler:           applyCORSHandler(engine.Handler()),
		ReadTimeout:       cfg.Web.ReadTimeout,
		ReadHeaderTimeout: cfg.Web.ReadTimeout,
		WriteTimeout:      cfg.Web.WriteTimeout,
	}
	return serve(logger, server, cfg.Web.ShutdownTimeout)
}

// buildEngine wires every package's handlers onto one engine.
func buildEngine(logger *logrus.Logger, cfg WebAPIConfiguration, storage *sqlite.Storage, bucket images.Bucket, broker realtime.Broker) (*rest.Engine, error) {
	tokens, err := auth.NewTokens(cfg.Auth.Secret)
	if err != nil {
		return nil, fmt.Errorf("creating session tokens: %w", err)
	}
	if cfg.Auth.MainAdminEmail == "" {
		logger.Warn("no main admin email configured, nobody can change roles")
	}

	var sessions = auth.NewRepository(storage.Connection)
	if purged, err := sessions.PurgeExpiredSessions(time.Now()); err != nil {
		logger.WithError(err).Warn("can't purge expired sessions")
	} else if purged > 0 {
		logger.WithField("purged", purged).Info("expired sessions purged")
	}

	engine, err := rest.New(rest.Config{Logger: logger})
	if err != nil {
		logger.WithError(err).Error("error creating the API server instance")
		return nil, fmt.Errorf("creating the API server instance: %w", err)
	}

	var authenticator = auth.NewAuthenticator(sessions, tokens, cfg.Auth.MainAdminEmail)
	var notesStore = notes.NewStore(storage.Connection)

	auth.RegisterHandlers(engine, auth.Sessions{
		Repository:    sessions,
		Tokens:        tokens,
		Authenticator: authenticator,
		TTL:           cfg.Auth.SessionTTL,
	})
	profiles.RegisterHandlers(engine, profiles.Handlers{
		Repository:    profiles.NewRepository(storage.Connection),
		Authenticator: authenticator,
		Bucket:        bucket,
		Publisher:     broker,
	})
	notes.RegisterHandlers(engine, notesStore, authenticator)
	submissions.RegisterHandlers(engine, submissions.NewStore(storage.Connection, notesStore), authenticator)
	realtime.RegisterHandlers(engine, broker, authenticator)

	if cfg.Images.Backend == diskBackend {
		engine.ServeFiles("/storage/*filepath", http.Dir(cfg.Images.Path))
	}
	return engine, nil
}

// serve listens until the server fails or a termination signal arrives, then drains outstanding requests within
// the shutdown timeout.
func serve(logger logrus.FieldLogger, server *http.Server, shutdownTimeout time.Duration) error {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	// buffered so that the listener can exit even when nobody collects its error
	failed := make(chan error, 1)
	go func() {
		logger.Infof("API listening on %s", server.Addr)
		failed <- server.ListenAndServe()
	}()

	select {
	case err := <-failed:
		return fmt.Errorf("server error: %w", err)
	case <-ctx.Done():
		stop()
		logger.Info("termination signal received, shutting down")
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()
	if err := server.Shutdown(shutdownCtx); err != nil {
		logger.WithError(err).Warn("error during graceful shutdown of HTTP server")
		if err = server.Close(); err != nil {
			return fmt.Errorf("could not stop server gracefully: %w", err)
		}
	}
	logger.Info("API server stopped")
	return nil
}
