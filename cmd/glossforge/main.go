// glossforge turns a corpus of text documents into a curated glossary
// through a multi-stage LLM pipeline. It runs either as an HTTP server or as
// a one-shot CLI pipeline execution.
package main

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"

	"github.com/joho/godotenv"
	"github.com/spf13/cobra"

	"github.com/glossforge/glossforge/pkg/api"
	"github.com/glossforge/glossforge/pkg/config"
	"github.com/glossforge/glossforge/pkg/database"
	"github.com/glossforge/glossforge/pkg/llm"
	"github.com/glossforge/glossforge/pkg/models"
	"github.com/glossforge/glossforge/pkg/repository"
	"github.com/glossforge/glossforge/pkg/run"
)

func main() {
	if err := rootCmd().Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func rootCmd() *cobra.Command {
	root := &cobra.Command{
		Use:          "glossforge",
		Short:        "Document corpus to curated glossary, via an LLM pipeline",
		SilenceUsage: true,
	}
	root.AddCommand(serveCmd(), runCmd())
	return root
}

func setup() (config.Config, *slog.Logger) {
	// Missing .env is fine; environment variables still apply.
	_ = godotenv.Load()

	cfg := config.LoadFromEnv()
	logger := slog.New(slog.NewTextHandler(os.Stderr, nil))
	slog.SetDefault(logger)
	return cfg, logger
}

func catalogPath(cfg config.Config) string {
	return filepath.Join(cfg.ProjectsRoot, "catalog.db")
}

func serveCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "serve",
		Short: "Start the HTTP API server",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, logger := setup()

			ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
			defer stop()

			catalog, err := database.OpenCatalog(ctx, catalogPath(cfg))
			if err != nil {
				return err
			}
			defer catalog.Close()

			logger.Info("starting glossforge server",
				"addr", cfg.Server.Addr(),
				"projects_root", cfg.ProjectsRoot,
				"llm_debug", cfg.LLMDebug)
			return api.NewServer(cfg, catalog, logger).ListenAndServe(ctx)
		},
	}
}

func runCmd() *cobra.Command {
	var projectName, scope string

	cmd := &cobra.Command{
		Use:   "run",
		Short: "Execute a pipeline run against a project and wait for it",
		Long: "Executes one pipeline run inline. Exit code 0 when the run completes,\n" +
			"1 when it fails, 2 when it is cancelled (e.g. by Ctrl-C).",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, logger := setup()
			exitCode, err := executeCLIRun(cfg, logger, projectName, models.Scope(scope))
			if err != nil {
				return err
			}
			os.Exit(exitCode)
			return nil
		},
	}
	cmd.Flags().StringVar(&projectName, "project", "", "project name (required)")
	cmd.Flags().StringVar(&scope, "scope", string(models.ScopeFull),
		"run scope: full, extract, from_terms, provisional_to_refined")
	_ = cmd.MarkFlagRequired("project")
	return cmd
}

func executeCLIRun(cfg config.Config, logger *slog.Logger, projectName string, scope models.Scope) (int, error) {
	if !scope.Valid() {
		return 0, fmt.Errorf("unknown scope %q", scope)
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	catalog, err := database.OpenCatalog(ctx, catalogPath(cfg))
	if err != nil {
		return 0, err
	}
	defer catalog.Close()

	project, err := repository.GetProjectByName(ctx, catalog.Handle(), projectName)
	if err != nil {
		return 0, fmt.Errorf("project %q: %w", projectName, err)
	}

	dbPath := filepath.Join(cfg.ProjectsRoot, project.Name, "project.db")
	db, err := database.OpenProject(ctx, dbPath)
	if err != nil {
		return 0, err
	}
	defer db.Close()

	factory := func(runID int64) (llm.Client, error) {
		clientCfg := llm.Config{
			APIKey:  cfg.LLM.APIKey,
			BaseURL: cfg.LLM.BaseURL,
			Model:   cfg.LLM.Model,
			Timeout: cfg.LLM.Timeout,
		}
		if cfg.LLMDebug {
			sink, err := llm.NewDebugSink(filepath.Join(filepath.Dir(dbPath), "llm-debug"), logger)
			if err != nil {
				return nil, err
			}
			clientCfg.Sink = sink
		}
		return llm.NewClientForProject(project, clientCfg, logger)
	}

	// Probe the endpoint before admitting a run; a dead LLM should fail fast
	// here instead of mid-pipeline.
	probe, err := factory(0)
	if err != nil {
		return 0, err
	}
	available := probe.IsAvailable(ctx)
	_ = probe.Close()
	if !available {
		return 0, fmt.Errorf("LLM endpoint for project %q is not reachable", project.Name)
	}

	manager := run.NewManager(project.ID, db, project.DocRoot, factory, logger)
	runID, err := manager.StartRun(ctx, scope, "cli", nil)
	if err != nil {
		return 0, err
	}

	events, unsubscribe := manager.SubscribeLogs(runID)
	defer unsubscribe()

	// Ctrl-C requests a cooperative cancel; the run finishes as cancelled.
	go func() {
		<-ctx.Done()
		_, _ = manager.CancelRun(context.Background(), runID)
	}()

	for ev := range events {
		if ev.Complete {
			break
		}
		if ev.Message != "" {
			fmt.Println(ev.Message)
		} else if ev.ProgressTotal > 0 {
			fmt.Printf("[%s] %d/%d %s\n", ev.Step, ev.ProgressCurrent, ev.ProgressTotal, ev.CurrentTerm)
		}
	}

	final, err := repository.GetRun(context.Background(), db.Handle(), runID)
	if err != nil {
		return 0, err
	}
	switch final.Status {
	case models.RunStatusCompleted:
		return 0, nil
	case models.RunStatusCancelled:
		return 2, nil
	default:
		logger.Error("run failed", "error", final.ErrorMessage)
		return 1, nil
	}
}
