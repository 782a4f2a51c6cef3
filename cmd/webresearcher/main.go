// WebResearcher server — exposes the research agents over an HTTP API with
// session management and live event streaming.
package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/webresearcher/webresearcher/pkg/agent"
	"github.com/webresearcher/webresearcher/pkg/agent/controller"
	"github.com/webresearcher/webresearcher/pkg/api"
	"github.com/webresearcher/webresearcher/pkg/config"
	"github.com/webresearcher/webresearcher/pkg/llm"
	"github.com/webresearcher/webresearcher/pkg/session"
	"github.com/webresearcher/webresearcher/pkg/tools"
	"github.com/webresearcher/webresearcher/pkg/version"
)

func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func buildRegistry(cfg *config.Config, extractor llm.Client) *tools.Registry {
	visit := tools.NewVisitTool(tools.VisitOptions{
		JinaAPIKey:       cfg.Tools.JinaAPIKey,
		Extractor:        extractor,
		FetchTimeout:     cfg.Tools.VisitTimeout,
		MaxContentLength: cfg.Tools.WebContentMaxLength,
	})
	return tools.NewRegistry(
		tools.NewSearchTool(cfg.Tools.SerperAPIKey),
		tools.NewScholarTool(cfg.Tools.SerperAPIKey),
		visit,
		tools.NewPythonTool(cfg.Tools.SandboxEndpoints),
		tools.NewFileTool(cfg.Tools.FileDir),
	)
}

// newRunner builds the session runner that maps an agent kind to its
// controller over the shared LLM client and tool registry.
func newRunner(cfg *config.Config, client llm.Client, registry *tools.Registry) session.Runner {
	return func(ctx context.Context, req session.RunRequest, cb agent.ProgressFunc) (session.RunOutcome, error) {
		reg := registry
		if len(req.Tools) > 0 {
			reg = registry.Subset(req.Tools)
		}
		ctrlCfg := controller.Config{
			Client:         client,
			Registry:       reg,
			Instruction:    req.Instruction,
			MaxLLMCalls:    cfg.Agent.MaxLLMCallsPerRun,
			AgentTimeout:   cfg.Agent.Timeout,
			MaxInputTokens: cfg.LLM.MaxInputTokens,
			Model:          cfg.LLM.Model,
		}

		switch req.Kind {
		case session.AgentWebWeaver:
			res := controller.NewWeaver(ctrlCfg).Run(ctx, req.Question, cb)
			if res.Error != "" {
				return session.RunOutcome{}, errors.New(res.Error)
			}
			return session.RunOutcome{
				Answer: res.FinalReport,
				Report: res.FinalReport,
				Result: res,
			}, nil
		case session.AgentReact:
			res := controller.NewReact(ctrlCfg).Run(ctx, req.Question, cb)
			return session.RunOutcome{
				Answer:      res.Prediction,
				Report:      res.Report,
				Termination: res.Termination,
				Result:      res,
			}, nil
		case session.AgentTTS:
			res := controller.NewScaling(ctrlCfg, req.NumAgents).Run(ctx, req.Question, cb)
			return session.RunOutcome{
				Answer: res.FinalAnswer,
				Result: res,
			}, nil
		default:
			res := controller.NewResearcher(ctrlCfg).Run(ctx, req.Question, cb)
			return session.RunOutcome{
				Answer:      res.Prediction,
				Report:      res.Report,
				Termination: res.Termination,
				Result:      res,
			}, nil
		}
	}
}

func main() {
	configDir := flag.String("config-dir",
		getEnv("CONFIG_DIR", "."),
		"Path to configuration directory")
	flag.Parse()

	slog.Info("Starting WebResearcher",
		"version", version.Full(),
		"config_dir", *configDir)

	cfg, err := config.Initialize(*configDir)
	if err != nil {
		slog.Error("Failed to initialize configuration", "error", err)
		os.Exit(1)
	}

	client := llm.NewOpenAIClient(llm.Config{
		APIKey:          cfg.LLM.APIKey,
		BaseURL:         cfg.LLM.BaseURL,
		Model:           cfg.LLM.Model,
		Temperature:     cfg.LLM.Temperature,
		TopP:            cfg.LLM.TopP,
		PresencePenalty: cfg.LLM.PresencePenalty,
		Timeout:         cfg.LLM.Timeout,
	})
	// The extractor runs the cheaper summary model for page distillation.
	extractor := llm.NewOpenAIClient(llm.Config{
		APIKey:  cfg.LLM.APIKey,
		BaseURL: cfg.LLM.BaseURL,
		Model:   cfg.LLM.SummaryModel,
		Timeout: cfg.LLM.Timeout,
	})

	registry := buildRegistry(cfg, extractor)
	slog.Info("Tool registry initialized", "tools", registry.Names())

	manager := session.NewManager(cfg.History.FilePath, newRunner(cfg, client, registry))
	server := api.NewServer(manager, cfg.Server.AllowedOrigins)

	errCh := make(chan error, 1)
	go func() {
		addr := fmt.Sprintf("%s:%d", cfg.Server.Host, cfg.Server.Port)
		slog.Info("HTTP server listening", "addr", addr)
		if err := server.Start(addr); err != nil && err != http.ErrServerClosed {
			slog.Error("HTTP server error", "error", err)
			errCh <- err
		}
	}()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGTERM, syscall.SIGINT)

	select {
	case sig := <-sigCh:
		slog.Info("Shutdown signal received", "signal", sig)
	case err := <-errCh:
		slog.Error("Server error triggered shutdown", "error", err)
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := server.Shutdown(shutdownCtx); err != nil {
		slog.Error("HTTP server shutdown error", "error", err)
	}

	slog.Info("Shutdown complete")
}
