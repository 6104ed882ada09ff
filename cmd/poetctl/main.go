/*
Poetctl signs in to a running platform and moderates it from a terminal.

Usage:

	poetctl [flags] <command> [arguments]

Commands:

	poems [search]         lists published poems, newest first
	pending                lists submissions awaiting review
	approve <id>           publishes a submission
	reject <id>            discards a submission
	promote <profile id>   grants or revokes the semi-admin role

Flags and environment variables are handled by the code in `load-configuration.go`.
*/
package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/ardanlabs/conf"
	"github.com/silktrader/deadpoets/pkg/client"
	"github.com/silktrader/deadpoets/pkg/session"
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
	logger.SetOutput(os.Stderr)
	if cfg.Debug {
		logger.SetLevel(logrus.DebugLevel)
	} else {
		logger.SetLevel(logrus.WarnLevel)
	}

	command, found := commands[cfg.Args.Num(0)]
	if !found {
		return fmt.Errorf("unknown command %q\n%s", cfg.Args.Num(0), commandsUsage)
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()
	ctx, cancel := context.WithTimeout(ctx, cfg.Timeout)
	defer cancel()

	gateway, err := client.New(client.Config{BaseURL: cfg.API, Logger: logger})
	if err != nil {
		return err
	}
	if _, err = gateway.SignIn(ctx, cfg.Email, cfg.Password); err != nil {
		return fmt.Errorf("signing in as %s: %w", cfg.Email, err)
	}
	defer func() {
		if err := gateway.SignOut(context.Background()); err != nil {
			logger.WithError(err).Warn("can't sign out")
		}
	}()

	controller, err := session.New(session.Config{Gateway: gateway, Logger: logger, MainAdminEmail: cfg.MainAdminEmail})
	if err != nil {
		return err
	}
	defer controller.Close()
	controller.Start(ctx)
	if err = awaitSession(ctx, controller); err != nil {
		return err
	}

	var app = &console{
		gateway:        gateway,
		session:        controller,
		logger:         logger,
		out:            os.Stdout,
		mainAdminEmail: cfg.MainAdminEmail,
	}
	return command(ctx, app, cfg.Args[1:])
}

// awaitSession blocks until the signed in user's profile and roles are known.
func awaitSession(ctx context.Context, controller *session.Controller) error {
	updates, stop := controller.Watch()
	defer stop()
	for {
		select {
		case snapshot := <-updates:
			if !snapshot.Loading {
				return nil
			}
		case <-ctx.Done():
			return fmt.Errorf("loading the session: %w", ctx.Err())
		}
	}
}
