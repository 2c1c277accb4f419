package main

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"
	"time"

	"github.com/alecthomas/kong"

	"git.home.luguber.info/inful/sitebuilder/internal/build"
	"git.home.luguber.info/inful/sitebuilder/internal/config"
	"git.home.luguber.info/inful/sitebuilder/internal/history"
	"git.home.luguber.info/inful/sitebuilder/internal/invalidate"
	"git.home.luguber.info/inful/sitebuilder/internal/manifest"
	"git.home.luguber.info/inful/sitebuilder/internal/watch"
)

var CLI struct {
	Config  string `short:"c" help:"Configuration file path" default:"sitebuilder.yaml"`
	Verbose bool   `short:"v" help:"Enable verbose logging"`

	Build struct {
		Force bool `short:"f" help:"Rebuild every page regardless of cache state"`
		Clean bool `help:"Discard the cache manifest before building"`
	} `cmd:"" help:"Build the site, reusing cached pages that are still fresh"`

	Invalidate struct {
		Query string `arg:"" help:"Invalidation query: tag=<value> or path=<glob>"`
	} `cmd:"" help:"Record a durable invalidation applied on the next build"`

	Watch struct{} `cmd:"" help:"Rebuild continuously as content and layouts change"`

	History struct {
		Limit int `short:"n" help:"Number of recent build cycles to show" default:"10"`
	} `cmd:"" help:"Show recent build cycles"`
}

func main() {
	ctx := kong.Parse(&CLI)

	logLevel := slog.LevelInfo
	if CLI.Verbose {
		logLevel = slog.LevelDebug
	}
	logger := slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{
		Level: logLevel,
	}))
	slog.SetDefault(logger)

	cfg, err := config.Load(CLI.Config)
	if err != nil {
		slog.Error("Failed to load configuration", "error", err)
		os.Exit(1)
	}

	switch ctx.Command() {
	case "build":
		if err := runBuild(cfg, CLI.Build.Force, CLI.Build.Clean); err != nil {
			slog.Error("Build failed", "error", err)
			os.Exit(1)
		}
	case "invalidate <query>":
		if err := runInvalidate(cfg, CLI.Invalidate.Query); err != nil {
			slog.Error("Invalidate failed", "error", err)
			os.Exit(1)
		}
	case "watch":
		if err := runWatch(cfg); err != nil {
			slog.Error("Watch failed", "error", err)
			os.Exit(1)
		}
	case "history":
		if err := runHistory(cfg, CLI.History.Limit); err != nil {
			slog.Error("History failed", "error", err)
			os.Exit(1)
		}
	}
}

func runBuild(cfg *config.Config, force, clean bool) error {
	orch, err := build.NewOrchestrator(cfg)
	if err != nil {
		return err
	}

	hist, err := openHistory(cfg)
	if err != nil {
		slog.Warn("Build history unavailable", "error", err)
	} else {
		orch.WithHistory(hist)
		defer hist.Close()
	}

	sum, err := orch.Run(context.Background(), build.Options{
		Force:   force,
		Clean:   clean,
		Trigger: "cli",
	})
	if err != nil {
		return err
	}

	fmt.Printf("Build %s: %d pages, %d rendered, %d reused, %d failed\n",
		sum.Outcome, sum.Total, sum.Rendered, sum.Reused, sum.Failed)
	if sum.Outcome != "success" {
		return fmt.Errorf("build finished with outcome %q", sum.Outcome)
	}
	return nil
}

func runInvalidate(cfg *config.Config, query string) error {
	kind, value, err := invalidate.ParseQuery(query)
	if err != nil {
		return err
	}

	store, err := manifest.NewStore(cfg.Cache.Dir)
	if err != nil {
		return err
	}
	gw := invalidate.NewGateway(store)

	var rec manifest.PendingInvalidation
	switch kind {
	case manifest.InvalidateTag:
		rec, err = gw.ByTag(value)
	case manifest.InvalidatePath:
		rec, err = gw.ByPath(value)
	}
	if err != nil {
		return err
	}

	fmt.Printf("Recorded %s invalidation %q; it applies on the next build\n", rec.Kind, rec.Value)
	return nil
}

func runWatch(cfg *config.Config) error {
	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	orch, err := build.NewOrchestrator(cfg)
	if err != nil {
		return err
	}

	hist, err := openHistory(cfg)
	if err != nil {
		slog.Warn("Build history unavailable", "error", err)
	} else {
		orch.WithHistory(hist)
		defer hist.Close()
	}

	return watch.New(cfg, orch).Run(ctx)
}

func runHistory(cfg *config.Config, limit int) error {
	hist, err := openHistory(cfg)
	if err != nil {
		return err
	}
	defer hist.Close()

	cycles, err := hist.Recent(context.Background(), limit)
	if err != nil {
		return err
	}
	if len(cycles) == 0 {
		fmt.Println("No build cycles recorded yet")
		return nil
	}

	for _, c := range cycles {
		fmt.Printf("%s  %-8s %-8s rendered=%d reused=%d failed=%d (%s)\n",
			c.StartedAt.Local().Format("2006-01-02 15:04:05"),
			c.Trigger, c.Outcome, c.Rendered, c.Reused, c.Failed,
			c.FinishedAt.Sub(c.StartedAt).Round(time.Millisecond))
	}
	return nil
}

func openHistory(cfg *config.Config) (*history.Store, error) {
	return history.Open(filepath.Join(cfg.Cache.Dir, "history.db"))
}
