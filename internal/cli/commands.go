package cli

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/urfave/cli/v2"

	"github.com/wheelvet-project/wheelvet/internal/server"
	"github.com/wheelvet-project/wheelvet/internal/version"
)

const shutdownGrace = 10 * time.Second

func serveCommand() *cli.Command {
	return &cli.Command{
		Name:  "serve",
		Usage: "Run the evidence HTTP service",
		Flags: []cli.Flag{
			&cli.StringFlag{
				Name:    "listen",
				Usage:   "listen address, overrides the config file",
				EnvVars: []string{"WHEELVET_LISTEN"},
			},
		},
		Action: runServe,
	}
}

func runServe(c *cli.Context) error {
	log, err := newLogger(c)
	if err != nil {
		return err
	}

	svc, cfg, cleanup, err := buildService(c, log)
	if err != nil {
		log.Error("failed to build service", "error", err)
		return err
	}
	defer cleanup()

	// Probe for an existing session so the UI starts with fresh state.
	status := svc.Auth().CheckStatus(c.Context)
	log.Info("authentication state", "state", status.State)

	if min := cfg.Verifier.MinimumVersion; min != "" {
		vc, err := svc.CheckVerifierVersion(c.Context, min)
		switch {
		case err != nil:
			log.Warn("verifier version probe failed", "error", err)
		case !vc.Sufficient:
			log.Warn("verifier older than required minimum",
				"installed", vc.Installed, "minimum", vc.Minimum)
		default:
			log.Info("verifier version ok", "installed", vc.Installed)
		}
	}

	addr := cfg.Server.ListenAddr
	if c.String("listen") != "" {
		addr = c.String("listen")
	}

	srv := &http.Server{
		Addr:    addr,
		Handler: server.New(svc, version.Version, log).Routes(),
	}

	errCh := make(chan error, 1)
	go func() {
		log.Info("listening", "addr", addr)
		errCh <- srv.ListenAndServe()
	}()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)

	select {
	case err := <-errCh:
		if err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Error("server failed", "error", err)
			return err
		}
	case sig := <-sigCh:
		log.Info("shutting down", "signal", sig.String())
		ctx, cancel := context.WithTimeout(context.Background(), shutdownGrace)
		defer cancel()
		if err := srv.Shutdown(ctx); err != nil {
			log.Warn("graceful shutdown failed", "error", err)
			return err
		}
	}
	return nil
}

func verifyCommand() *cli.Command {
	return &cli.Command{
		Name:  "verify",
		Usage: "Run the verification tool over the wheel store once",
		Flags: []cli.Flag{
			&cli.BoolFlag{
				Name:  "verbose-output",
				Usage: "run the verbose variant and print its raw log",
			},
			&cli.StringFlag{
				Name:  "output",
				Value: "text",
				Usage: "output format (text, json)",
			},
		},
		Action: runVerify,
	}
}

func runVerify(c *cli.Context) error {
	log, err := newLogger(c)
	if err != nil {
		return err
	}

	svc, _, cleanup, err := buildService(c, log)
	if err != nil {
		return err
	}
	defer cleanup()

	if status := svc.Auth().CheckStatus(c.Context); !status.Authenticated {
		url, err := svc.Auth().StartLogin(c.Context)
		if err != nil {
			return fmt.Errorf("not authenticated and login failed: %w", err)
		}
		return fmt.Errorf("authentication required, visit %s and retry", url)
	}

	if c.Bool("verbose-output") {
		out, err := svc.RunVerbose(c.Context)
		if err != nil {
			return err
		}
		fmt.Fprintln(c.App.Writer, out)
		return nil
	}

	summary, err := svc.RunVerification(c.Context)
	if err != nil {
		return err
	}

	if c.String("output") == "json" {
		return writeIndented(c, summary)
	}
	renderSummary(c.App.Writer, summary)
	return nil
}

func inspectCommand() *cli.Command {
	return &cli.Command{
		Name:      "inspect",
		Usage:     "Show aggregate evidence for one wheel",
		ArgsUsage: "<package> <version>",
		Flags: []cli.Flag{
			&cli.StringFlag{
				Name:  "output",
				Value: "text",
				Usage: "output format (text, json)",
			},
		},
		Action: runInspect,
	}
}

func runInspect(c *cli.Context) error {
	if c.NArg() != 2 {
		return fmt.Errorf("usage: inspect <package> <version>")
	}
	log, err := newLogger(c)
	if err != nil {
		return err
	}

	svc, _, cleanup, err := buildService(c, log)
	if err != nil {
		return err
	}
	defer cleanup()

	ev, err := svc.WheelEvidence(c.Context, c.Args().Get(0), c.Args().Get(1))
	if err != nil {
		return err
	}

	if c.String("output") == "json" {
		return writeIndented(c, ev)
	}
	renderEvidence(c.App.Writer, ev)
	return nil
}

func packagesCommand() *cli.Command {
	return &cli.Command{
		Name:   "packages",
		Usage:  "List installed packages with SBOM provenance",
		Action: runPackages,
	}
}

func runPackages(c *cli.Context) error {
	log, err := newLogger(c)
	if err != nil {
		return err
	}

	svc, _, cleanup, err := buildService(c, log)
	if err != nil {
		return err
	}
	defer cleanup()

	packages, err := svc.Packages()
	if err != nil {
		return err
	}
	return writeIndented(c, packages)
}

func sbomCommand() *cli.Command {
	return &cli.Command{
		Name:      "sbom",
		Usage:     "Print a package's SBOM with resolved source commits",
		ArgsUsage: "<package>",
		Action:    runSBOM,
	}
}

func runSBOM(c *cli.Context) error {
	if c.NArg() != 1 {
		return fmt.Errorf("usage: sbom <package>")
	}
	log, err := newLogger(c)
	if err != nil {
		return err
	}

	svc, _, cleanup, err := buildService(c, log)
	if err != nil {
		return err
	}
	defer cleanup()

	doc, err := svc.PackageSBOM(c.Context, c.Args().First())
	if err != nil {
		return err
	}
	return writeIndented(c, doc)
}

func resolveCommand() *cli.Command {
	return &cli.Command{
		Name:      "resolve",
		Usage:     "Resolve a git tag to its commit SHA",
		ArgsUsage: "<repo-url> <tag> [object-id]",
		Action:    runResolve,
	}
}

func runResolve(c *cli.Context) error {
	if c.NArg() < 2 {
		return fmt.Errorf("usage: resolve <repo-url> <tag> [object-id]")
	}
	log, err := newLogger(c)
	if err != nil {
		return err
	}

	svc, _, cleanup, err := buildService(c, log)
	if err != nil {
		return err
	}
	defer cleanup()

	res := svc.ResolveSource(c.Context, c.Args().Get(0), c.Args().Get(1), c.Args().Get(2))
	return writeIndented(c, res)
}

func runsCommand() *cli.Command {
	return &cli.Command{
		Name:  "runs",
		Usage: "List recorded verification runs",
		Flags: []cli.Flag{
			&cli.IntFlag{
				Name:  "limit",
				Value: 20,
				Usage: "maximum number of runs to list, 0 for all",
			},
		},
		Action: runRuns,
	}
}

func runRuns(c *cli.Context) error {
	log, err := newLogger(c)
	if err != nil {
		return err
	}

	svc, _, cleanup, err := buildService(c, log)
	if err != nil {
		return err
	}
	defer cleanup()

	runs, err := svc.RunHistory(c.Int("limit"))
	if err != nil {
		return err
	}
	return writeIndented(c, runs)
}

// writeIndented prints a value as indented JSON on the app writer.
func writeIndented(c *cli.Context, v any) error {
	enc := json.NewEncoder(c.App.Writer)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}
