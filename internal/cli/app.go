// Package cli provides the wheelvet command-line interface. It wires the
// configuration, storage, and evidence collaborators into the aggregation
// layer and exposes them as subcommands.
package cli

import (
	"fmt"
	"log/slog"
	"time"

	"github.com/urfave/cli/v2"

	"github.com/wheelvet-project/wheelvet/internal/attestation"
	"github.com/wheelvet-project/wheelvet/internal/config"
	"github.com/wheelvet-project/wheelvet/internal/gitresolve"
	"github.com/wheelvet-project/wheelvet/internal/gpg"
	"github.com/wheelvet-project/wheelvet/internal/logger"
	"github.com/wheelvet-project/wheelvet/internal/netrc"
	"github.com/wheelvet-project/wheelvet/internal/sbom"
	"github.com/wheelvet-project/wheelvet/internal/service"
	"github.com/wheelvet-project/wheelvet/internal/storage"
	"github.com/wheelvet-project/wheelvet/internal/verifier"
	"github.com/wheelvet-project/wheelvet/internal/version"
)

// NewApp creates and configures the main CLI application.
func NewApp() *cli.App {
	return &cli.App{
		Name:     "wheelvet",
		Usage:    "Aggregate supply-chain verification evidence for Python wheels",
		Version:  version.String(),
		Compiled: time.Now(),
		Flags: []cli.Flag{
			&cli.StringFlag{
				Name:    "config",
				Aliases: []string{"c"},
				Value:   "wheelvet.yaml",
				Usage:   "path to configuration file",
				EnvVars: []string{"WHEELVET_CONFIG"},
			},
			&cli.StringFlag{
				Name:    "log-level",
				Value:   "info",
				Usage:   "log level (debug, info, warn, error)",
				EnvVars: []string{"WHEELVET_LOG_LEVEL"},
			},
			&cli.StringFlag{
				Name:    "log-format",
				Value:   "json",
				Usage:   "log format (json, text)",
				EnvVars: []string{"WHEELVET_LOG_FORMAT"},
			},
		},
		Commands: []*cli.Command{
			serveCommand(),
			verifyCommand(),
			inspectCommand(),
			packagesCommand(),
			sbomCommand(),
			resolveCommand(),
			runsCommand(),
		},
	}
}

// newLogger builds the process logger from global flags.
func newLogger(c *cli.Context) (*slog.Logger, error) {
	log, err := logger.New(c.String("log-level"), c.String("log-format"))
	if err != nil {
		return nil, fmt.Errorf("failed to set up logging: %w", err)
	}
	return log, nil
}

// buildService assembles the aggregation layer from configuration. The
// returned cleanup closes the history database.
func buildService(c *cli.Context, log *slog.Logger) (*service.Service, *config.Config, func(), error) {
	cfg, err := config.Load(c.String("config"))
	if err != nil {
		return nil, nil, nil, fmt.Errorf("failed to load config: %w", err)
	}

	cleanup := func() {}
	var history storage.Store
	if cfg.Storage.DatabasePath != "" {
		db, err := storage.InitDB(storage.Config{
			DatabasePath: cfg.Storage.DatabasePath,
			LogLevel:     "warn",
		})
		if err != nil {
			return nil, nil, nil, fmt.Errorf("failed to initialize run history: %w", err)
		}
		history = db
		cleanup = func() {
			if err := db.Close(); err != nil {
				log.Warn("failed to close run history database", "error", err)
			}
		}
	}

	var keyRing gpg.KeyRing
	if cfg.Wheels.KeyringPath != "" {
		keyRing, err = gpg.LoadKeyRingFromPath(cfg.Wheels.KeyringPath)
		if err != nil {
			cleanup()
			return nil, nil, nil, fmt.Errorf("failed to load keyring: %w", err)
		}
	}

	netrcPath := cfg.Evidence.NetrcPath
	if netrcPath == "" {
		netrcPath = netrc.DefaultPath()
	}

	attClient := attestation.NewClient(attestation.Config{
		BaseURL:     cfg.Evidence.IntegrityBaseURL,
		Timeout:     cfg.Evidence.GetFetchTimeout(),
		Credentials: attestation.NetrcSource{Path: netrcPath},
	})

	runner := verifier.NewRunner(
		verifier.NewRealCommandRunner(),
		cfg.Verifier.Binary,
		cfg.Verifier.ParentOrg,
		log,
	)

	auth := service.NewAuthManager(
		verifier.NewRealCommandRunner(),
		&service.RealProcessStarter{},
		cfg.Auth.Binary,
		cfg.Auth.GetStatusTimeout(),
		log,
	)

	resolver := gitresolve.NewResolver(
		gitresolve.NewRealGitRunner(),
		gitresolve.NewGitHubDereferencer(),
		log,
	)

	svc := service.New(service.Options{
		Verifier:       runner,
		Auth:           auth,
		Attestations:   attClient,
		Resolver:       resolver,
		SBOMs:          sbom.NewStore(cfg.Wheels.SitePackages),
		History:        history,
		KeyRing:        keyRing,
		WheelsDir:      cfg.Wheels.Dir,
		RunTimeout:     cfg.Verifier.GetRunTimeout(),
		VerboseTimeout: cfg.Verifier.GetVerboseTimeout(),
		Logger:         log,
	})
	return svc, cfg, cleanup, nil
}
