package main

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/pkg/errors"
	"github.com/rs/zerolog/log"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/xiaot623/gogo/assistant/internal/adapter/llm"
	"github.com/xiaot623/gogo/assistant/internal/config"
	"github.com/xiaot623/gogo/assistant/internal/hub"
	"github.com/xiaot623/gogo/assistant/internal/logging"
	"github.com/xiaot623/gogo/assistant/internal/network"
	"github.com/xiaot623/gogo/assistant/internal/policy"
	"github.com/xiaot623/gogo/assistant/internal/repository"
	"github.com/xiaot623/gogo/assistant/internal/service"
	"github.com/xiaot623/gogo/assistant/internal/stream"
	"github.com/xiaot623/gogo/assistant/internal/tools"
	handler "github.com/xiaot623/gogo/assistant/internal/transport/http"
	"github.com/xiaot623/gogo/assistant/internal/transport/ws"
)

func main() {
	if err := newRootCmd().Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func newRootCmd() *cobra.Command {
	v := viper.New()
	var configPath string

	root := &cobra.Command{
		Use:           "assistant",
		Short:         "Conversational assistant for SWMM hydraulic models",
		SilenceUsage:  true,
		SilenceErrors: true,
	}
	root.PersistentFlags().StringVar(&configPath, "config", "", "path to a config file")

	serve := &cobra.Command{
		Use:   "serve",
		Short: "Run the WebSocket and admin HTTP server",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := config.Load(v, configPath)
			if err != nil {
				return err
			}
			logging.Init(cfg.LogLevel, cfg.LogFormat)
			return run(cfg)
		},
	}
	flags := serve.Flags()
	flags.Int("port", 8080, "HTTP port")
	flags.String("driver", "sqlite", "checkpoint driver: sqlite, postgres, mongo or memory")
	flags.String("log-level", "info", "log level")
	flags.String("log-format", "text", "log format: text or json")
	for key, flag := range map[string]string{
		"HTTP_PORT":         "port",
		"CHECKPOINT_DRIVER": "driver",
		"LOG_LEVEL":         "log-level",
		"LOG_FORMAT":        "log-format",
	} {
		cobra.CheckErr(v.BindPFlag(key, flags.Lookup(flag)))
	}

	root.AddCommand(serve)
	return root
}

func run(cfg *config.Config) error {
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	log.Info().
		Int("port", cfg.HTTPPort).
		Str("driver", cfg.CheckpointDriver).
		Str("model", cfg.DefaultModel).
		Msg("starting assistant")

	model, err := network.Load(cfg.NetworkSeed)
	if err != nil {
		return err
	}
	engine, err := policy.NewEngineFromFile(ctx, cfg.PolicyFile)
	if err != nil {
		return err
	}
	registry, err := tools.NewDefaultRegistry(ctx, cfg.ToolCatalog, model, engine)
	if err != nil {
		return err
	}
	log.Info().Int("tools", registry.Len()).Interface("entities", model.Counts()).Msg("tool registry built")

	store, err := repository.NewCheckpointStore(ctx, repository.Options{
		Driver:        cfg.CheckpointDriver,
		SQLitePath:    cfg.DatabaseURL,
		PostgresURL:   cfg.PostgresURL,
		MongoURL:      cfg.MongoURL,
		MongoDatabase: cfg.MongoDatabase,
	})
	if err != nil {
		return errors.Wrap(err, "failed to open checkpoint store")
	}
	defer store.Close()

	connectionHub := hub.NewHub()
	hubCtx, cancelHub := context.WithCancel(context.Background())
	defer cancelHub()
	go connectionHub.Run(hubCtx)

	bus, err := stream.NewBus(stream.NewLogger(log.Logger))
	if err != nil {
		return err
	}
	bus.Forward(connectionHub)
	go func() {
		if err := bus.Run(hubCtx); err != nil {
			log.Error().Err(err).Msg("event bus stopped")
		}
	}()
	<-bus.Running()

	client := llm.NewLLMClient(cfg.Mode, cfg.OpenAIURL, cfg.OpenAIKey, cfg.LLMTimeout)
	models := llm.NewSelector(cfg.Models, cfg.DefaultModel, cfg.Temperature)
	if !cfg.IsMock() {
		missing, err := models.Unserved(ctx, client)
		if err != nil {
			log.Warn().Err(err).Msg("could not list provider models")
		} else if len(missing) > 0 {
			log.Warn().Strs("models", missing).Msg("configured models are not served by the provider")
		}
	}

	svc := service.New(service.Config{
		MaxRetries:      cfg.MaxRetries,
		MaxReplans:      cfg.MaxReplans,
		HistoryWindow:   cfg.HistoryWindow,
		AutoConcurrency: cfg.AutoConcurrency,
		ToolTimeout:     cfg.ToolTimeout,
		LLMTimeout:      cfg.LLMTimeout,
	}, client, models, registry, store, stream.NewSink(bus.Publisher, connectionHub), engine)

	server := handler.NewServer(svc, connectionHub, ws.NewServer(cfg, connectionHub, svc))

	go func() {
		addr := fmt.Sprintf(":%d", cfg.HTTPPort)
		if err := server.Start(addr); err != nil && err != http.ErrServerClosed {
			log.Error().Err(err).Msg("failed to start server")
			stop()
		}
	}()
	log.Info().Msgf("assistant listening on port %d", cfg.HTTPPort)

	<-ctx.Done()
	log.Info().Msg("shutting down assistant")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := server.Shutdown(shutdownCtx); err != nil {
		log.Warn().Err(err).Msg("failed to shutdown server gracefully")
	}
	svc.Shutdown()
	if err := bus.Close(); err != nil {
		log.Warn().Err(err).Msg("failed to close event bus")
	}

	log.Info().Msg("assistant stopped")
	return nil
}
