// Package main provides the bundlekit build CLI.
package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/pflag"
	"go.uber.org/automaxprocs/maxprocs"

	"github.com/euforicio/bundlekit/internal/build"
	"github.com/euforicio/bundlekit/internal/buildinfo"
	"github.com/euforicio/bundlekit/internal/config"
	"github.com/euforicio/bundlekit/internal/watch"
)

func main() {
	cfg, err := config.Load(os.Args[1:])
	if err != nil {
		slog.Error("load configuration", slog.Any("err", err))
		os.Exit(1)
	}

	flags := pflag.NewFlagSet("bundlekit", pflag.ExitOnError)
	config.RegisterFlags(flags, &cfg)
	watchFlag := flags.BoolP("watch", "w", false, "Rebuild whenever files under the context change")
	versionFlag := flags.Bool("version", false, "Print version information and exit")
	if err := flags.Parse(os.Args[1:]); err != nil {
		slog.Error("parse flags", slog.Any("err", err))
		os.Exit(1)
	}
	if *versionFlag {
		fmt.Println(buildinfo.Summary())
		os.Exit(0)
	}
	if err := config.Finalize(&cfg); err != nil {
		slog.Error("invalid configuration", slog.Any("err", err))
		os.Exit(1)
	}

	logLevel := slog.LevelInfo
	if cfg.Verbose {
		logLevel = slog.LevelDebug
	}
	logger := slog.New(slog.NewTextHandler(os.Stdout, &slog.HandlerOptions{Level: logLevel}))
	logger = logger.With("app", "bundlekit")
	slog.SetDefault(logger)
	if _, err := maxprocs.Set(maxprocs.Logger(func(format string, args ...any) {
		logger.Debug(fmt.Sprintf(format, args...))
	})); err != nil {
		logger.Warn("set GOMAXPROCS", slog.Any("err", err))
	}
	logger.Info("starting bundlekit", slog.String("version", buildinfo.Summary()), slog.String("config", cfg.ConfigFile))

	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	b, err := build.New(cfg, logger)
	if err != nil {
		cancel()
		logger.Error("configure build", slog.Any("err", err))
		//nolint:gocritic // exitAfterDefer: cancel() explicitly called before os.Exit
		os.Exit(1)
	}

	if !*watchFlag {
		stats, err := b.Compiler.Run(ctx)
		if err != nil {
			cancel()
			logger.Error("build failed", slog.Any("err", err))
			os.Exit(1)
		}
		if err := stats.WriteTable(os.Stdout); err != nil {
			logger.Warn("print stats", slog.Any("err", err))
		}
		return
	}

	if err := runWatch(ctx, cfg, b, logger); err != nil && !errors.Is(err, context.Canceled) {
		cancel()
		logger.Error("watch failed", slog.Any("err", err))
		os.Exit(1)
	}
}

func runWatch(ctx context.Context, cfg config.Config, b *build.Build, logger *slog.Logger) error {
	w, err := watch.Start(ctx, b.Compiler, logger, watch.Options{
		Root:     cfg.Context,
		Ignore:   []string{cfg.Output.Path},
		OnChange: b.Markdown.Invalidate,
	})
	if err != nil {
		return err
	}
	defer func() {
		if err := w.Close(); err != nil {
			logger.Error("close watcher", slog.Any("err", err))
		}
	}()

	events := w.Subscribe(ctx)
	if last, ok := w.Last(); ok {
		report(b, last)
	}
	for evt := range events {
		report(b, evt)
	}
	return ctx.Err()
}

func report(b *build.Build, evt watch.Event) {
	if evt.Type == watch.EventBuildFailed {
		fmt.Fprintf(os.Stderr, "build failed: %s\n", evt.Error)
		return
	}
	if stats := b.Compiler.LastStats(); stats != nil {
		_ = stats.WriteTable(os.Stdout)
	}
}
