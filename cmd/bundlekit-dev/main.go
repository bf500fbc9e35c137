// Package main provides the bundlekit development server entrypoint.
package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/pflag"
	"go.uber.org/automaxprocs/maxprocs"

	"github.com/euforicio/bundlekit/internal/build"
	"github.com/euforicio/bundlekit/internal/buildinfo"
	"github.com/euforicio/bundlekit/internal/config"
	"github.com/euforicio/bundlekit/internal/server"
	"github.com/euforicio/bundlekit/internal/watch"
)

func main() {
	cfg, err := config.Load(os.Args[1:])
	if err != nil {
		slog.Error("load configuration", slog.Any("err", err))
		os.Exit(1)
	}

	flags := pflag.NewFlagSet("bundlekit-dev", pflag.ExitOnError)
	config.RegisterFlags(flags, &cfg)
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

	logLevel := slog.LevelWarn
	if cfg.Verbose {
		logLevel = slog.LevelInfo
	}
	logger := slog.New(slog.NewTextHandler(os.Stdout, &slog.HandlerOptions{
		Level: logLevel,
	}))
	logger = logger.With("app", "bundlekit-dev")
	slog.SetDefault(logger)
	if _, err := maxprocs.Set(maxprocs.Logger(func(format string, args ...any) {
		logger.Debug(fmt.Sprintf(format, args...))
	})); err != nil {
		logger.Warn("set GOMAXPROCS", slog.Any("err", err))
	}
	logger.Log(context.Background(), slog.LevelInfo-1, "starting bundlekit-dev", slog.String("version", buildinfo.Summary()))

	ctx := context.Background()
	ctx, cancel := signal.NotifyContext(ctx, syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	b, err := build.New(cfg, logger)
	if err != nil {
		cancel()
		logger.Error("configure build", slog.Any("err", err))
		//nolint:gocritic // exitAfterDefer: cancel() explicitly called before os.Exit
		os.Exit(1)
	}

	watcher, err := watch.Start(ctx, b.Compiler, logger, watch.Options{
		Root:     cfg.Context,
		Ignore:   []string{cfg.Output.Path},
		OnChange: b.Markdown.Invalidate,
	})
	if err != nil {
		cancel()
		logger.Error("watcher init failed", slog.Any("err", err))
		os.Exit(1)
	}
	defer func() {
		if err := watcher.Close(); err != nil {
			logger.Error("close watcher", slog.Any("err", err))
		}
	}()

	srv, err := server.New(cfg, logger, watcher, b.Compiler)
	if err != nil {
		cancel()
		logger.Error("server init failed", slog.Any("err", err))
		os.Exit(1)
	}

	go func() {
		<-ctx.Done()
		shutdownCtx, stop := context.WithTimeout(context.Background(), 5*time.Second)
		defer stop()
		if err := srv.Shutdown(shutdownCtx); err != nil {
			logger.Error("shutdown error", slog.Any("err", err))
		}
	}()

	if err := srv.Start(ctx); err != nil {
		if errors.Is(err, context.Canceled) {
			logger.Info("shutdown complete")
			return
		}
		logger.Error("server error", slog.Any("err", err))
		os.Exit(1)
	}
}
