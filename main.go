package main

import (
	"context"
	"errors"
	"log/slog"
	"os"
	"os/signal"

	"pollchat/app/api"
	"pollchat/app/client/llm"
	"pollchat/app/config"
	"pollchat/app/service/session"
	"pollchat/app/util/mylog"

	"github.com/gofiber/fiber/v2/log"
	"github.com/samber/do"
	"golang.org/x/sync/errgroup"
)

func main() {
	di := do.New()
	defer di.Shutdown()
	defer slog.Info("Waiting for services to finish...")

	mylog.Preinit()

	appCtx, cancel := context.WithCancel(context.Background())
	defer cancel()
	do.ProvideValue(di, appCtx)

	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("config load failed: %v", err)
	}
	do.ProvideValue(di, cfg)

	if err = mylog.Init(cfg); err != nil {
		log.Fatalf("logging init failed: %v", err)
	}

	do.Provide(di, llm.New)
	do.Provide(di, session.New)
	do.Provide(di, api.New)

	slog.Info("Service started",
		"provider", cfg.OpenAI.Provider,
		"model", cfg.OpenAI.Model,
		"interval", cfg.Session.Interval)

	go func() {
		sigint := make(chan os.Signal, 1)
		signal.Notify(sigint, os.Interrupt)
		<-sigint

		slog.Info("Shutting down...")

		cancel()
	}()

	do.MustInvoke[*session.Service](di)

	g, ctx := errgroup.WithContext(appCtx)

	g.Go(func() error {
		return do.MustInvoke[*api.Service](di).Run(ctx)
	})

	if err = g.Wait(); err != nil && !errors.Is(err, context.Canceled) {
		slog.Error("Service failed", "error", err)
	}
}
