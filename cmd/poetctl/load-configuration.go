package main

import (
	"errors"
	"fmt"
	"os"
	"time"

	"github.com/ardanlabs/conf"
)

// CtlConfiguration is parsed from flags and POET_ prefixed environment variables; the command and its arguments are
// positional.
type CtlConfiguration struct {
	API            string        `conf:"default:http://localhost:3000"`
	Email          string        `conf:"required"`
	Password       string        `conf:"required,noprint"`
	MainAdminEmail string        `conf:"help:the platform's main admin email, needed to tell who can change roles"`
	Timeout        time.Duration `conf:"default:30s"`
	Debug          bool
	Args           conf.Args
}

func loadConfiguration() (CtlConfiguration, error) {
	var cfg CtlConfiguration
	if err := conf.Parse(os.Args[1:], "POET", &cfg); err != nil {
		if errors.Is(err, conf.ErrHelpWanted) {
			usage, err := conf.Usage("POET", &cfg)
			if err != nil {
				return cfg, fmt.Errorf("generating config usage: %w", err)
			}
			fmt.Println(usage)
			fmt.Println(commandsUsage)
			return cfg, conf.ErrHelpWanted
		}
		return cfg, fmt.Errorf("parsing config: %w", err)
	}
	return cfg, nil
}
