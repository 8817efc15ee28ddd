package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"text/tabwriter"
	"time"

	"github.com/soocke/seatbot-go/api"
	"github.com/soocke/seatbot-go/app"
	"github.com/soocke/seatbot-go/config"
	"github.com/soocke/seatbot-go/debug"
	"github.com/soocke/seatbot-go/domain/seat"
	"github.com/soocke/seatbot-go/domain/selection"
)

func main() {
	os.Exit(run(os.Args[1:]))
}

func run(args []string) int {
	fs := flag.NewFlagSet("seatbot", flag.ContinueOnError)
	cfgPath := fs.String("config", "config.json", "path to JSON config")
	profile := fs.String("profile", "", "color profile name or \"All Colors\"")
	seats := fs.Int("seats", 0, "number of seats to select")
	source := fs.String("source", "", "candidate source: cv, oracle or cv+oracle")
	listen := fs.String("listen", "", "serve the control API on this address instead of running once")
	debugFlag := fs.Bool("debug", false, "verbose logs, runtime stats and annotated snapshots")
	if err := fs.Parse(args); err != nil {
		return 2
	}

	cfg, err := config.Load(*cfgPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "config %s: %v (using defaults)\n", *cfgPath, err)
	}
	if *profile != "" {
		cfg.Profile = *profile
	}
	if *seats > 0 {
		cfg.SeatCount = *seats
	}
	if *source != "" {
		cfg.Source = *source
	}
	if *listen != "" {
		cfg.Listen = *listen
	}
	cfg.Debug = cfg.Debug || *debugFlag
	_ = cfg.Validate()

	logger := NewLogger(levelFor(cfg.Debug))

	if fs.Arg(0) == "profiles" {
		return listProfiles(cfg, logger)
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if cfg.Debug {
		debug.StartGoroutineLogger(ctx, 10*time.Second, logger)
		debug.StartMemLogger(ctx, 10*time.Second, logger)
	}

	c, err := app.BuildContainer(cfg, logger)
	if err != nil {
		logger.Error("startup failed", "error", err)
		return 1
	}
	defer c.Close()

	if cfg.Listen != "" {
		return serve(ctx, c, logger)
	}

	res, err := c.Runner.RunOnce(ctx, 0)
	if err != nil {
		logger.Error("run failed", "error", err)
		return 1
	}
	logger.Info("run finished",
		"run", res.RunID,
		"outcome", res.Outcome.String(),
		"seats", len(res.Seats),
		"rounds", res.Rounds,
		"artifact", res.Artifact,
	)
	if res.Outcome != selection.OutcomeSuccess {
		return 1
	}
	return 0
}

func serve(ctx context.Context, c *app.Container, logger *slog.Logger) int {
	a := &api.App{Runner: c.Runner, Profiles: c.Profiles, Capture: c.CaptureSvc}
	if c.Journal != nil {
		a.History = c.Journal
	}
	srv := &http.Server{Addr: c.Config.Listen, Handler: api.NewRouter(a)}
	errCh := make(chan error, 1)
	go func() { errCh <- srv.ListenAndServe() }()
	logger.Info("api listening", "addr", c.Config.Listen)

	select {
	case err := <-errCh:
		logger.Error("api stopped", "error", err)
		return 1
	case <-ctx.Done():
	}
	c.Runner.Stop()
	c.Runner.Wait()
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil && !errors.Is(err, http.ErrServerClosed) {
		logger.Warn("api shutdown", "error", err)
	}
	return 0
}

func listProfiles(cfg *config.Config, logger *slog.Logger) int {
	profiles, err := seat.NewProfileStore(cfg.ProfileDir, logger).Profiles(config.AllProfiles)
	if err != nil {
		logger.Error("profiles", "error", err)
		return 1
	}
	writeProfiles(os.Stdout, cfg.ProfileDir, profiles)
	return 0
}

func writeProfiles(w io.Writer, dir string, profiles []seat.Profile) {
	tw := tabwriter.NewWriter(w, 0, 4, 2, ' ', 0)
	fmt.Fprintln(tw, "NAME\tHEX\tRANGE")
	for _, p := range profiles {
		fmt.Fprintf(tw, "%s\t%s\t%s\n", p.Name, p.Hex, p.Range.String())
	}
	tw.Flush()
	if len(profiles) == 0 {
		fmt.Fprintf(w, "no swatches in %s; any saturated color will be treated as available\n", dir)
	}
}
