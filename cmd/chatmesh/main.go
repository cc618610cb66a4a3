// Command chatmesh runs the multi-agent chat router as an HTTP service.
package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/anthropics/anthropic-sdk-go"
	"github.com/hupe1980/chatmesh"
	"github.com/hupe1980/chatmesh/config"
	"github.com/hupe1980/chatmesh/core"
	"github.com/hupe1980/chatmesh/guardrail"
	"github.com/hupe1980/chatmesh/logging"
	"github.com/hupe1980/chatmesh/responder"
	anthropicresp "github.com/hupe1980/chatmesh/responder/anthropic"
	openairesp "github.com/hupe1980/chatmesh/responder/openai"
	"github.com/hupe1980/chatmesh/routing"
	"github.com/hupe1980/chatmesh/server"
)

func main() {
	configPath := flag.String("config", "", "path to YAML configuration file")
	flag.Parse()

	cfg := config.Default()
	if *configPath != "" {
		loaded, err := config.Load(*configPath)
		if err != nil {
			fmt.Fprintf(os.Stderr, "chatmesh: %v\n", err)
			os.Exit(1)
		}
		cfg = loaded
	}

	logger := logging.NewSlogLogger(logging.ParseLevel(cfg.Logging.Level), cfg.Logging.Format, false)

	backend, err := buildResponder(cfg)
	if err != nil {
		logger.Error("responder setup failed: %v", err)
		os.Exit(1)
	}

	mesh := chatmesh.New(backend, func(o *chatmesh.Options) {
		o.MaxTurns = cfg.Session.MaxTurns
		o.SessionTTL = cfg.Session.TTL
		o.InputValidator = guardrail.NewInputValidator()
		o.OutputValidator = guardrail.NewOutputValidator()
		o.Logger = logger.WithComponent("chat")
	})

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	mesh.Store().StartSweeper(ctx, cfg.Session.SweepInterval)

	srv := &http.Server{
		Addr:    cfg.Server.Addr,
		Handler: server.New(mesh.Runner(), mesh.Store(), func(o *server.Options) { o.Logger = logger.WithComponent("server") }).Handler(),
	}

	go func() {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		if err := srv.Shutdown(shutdownCtx); err != nil {
			logger.Warn("shutdown: %v", err)
		}
	}()

	logger.Info("chatmesh listening addr=%s provider=%s", cfg.Server.Addr, cfg.Model.Provider)
	if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		logger.Error("server failed: %v", err)
		os.Exit(1)
	}
}

func buildResponder(cfg *config.Config) (core.Responder, error) {
	table := routing.Default()

	switch cfg.Model.Provider {
	case "openai":
		if os.Getenv("OPENAI_API_KEY") == "" {
			return nil, fmt.Errorf("OPENAI_API_KEY environment variable is required")
		}
		return openairesp.New(func(o *openairesp.Options) {
			if cfg.Model.Name != "" {
				o.Model = cfg.Model.Name
			}
			o.Temperature = cfg.Model.Temperature
			o.MaxCompletionTokens = cfg.Model.MaxTokens
			o.Table = table
		}), nil
	case "anthropic":
		if os.Getenv("ANTHROPIC_API_KEY") == "" {
			return nil, fmt.Errorf("ANTHROPIC_API_KEY environment variable is required")
		}
		return anthropicresp.New(func(o *anthropicresp.Options) {
			if cfg.Model.Name != "" {
				o.Model = anthropic.Model(cfg.Model.Name)
			}
			o.Temperature = cfg.Model.Temperature
			o.MaxTokens = cfg.Model.MaxTokens
			o.Table = table
		}), nil
	case "scripted":
		return responder.NewScripted(), nil
	default:
		return nil, fmt.Errorf("unknown model provider %q", cfg.Model.Provider)
	}
}
