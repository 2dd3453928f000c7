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
	"time"

	"github.com/hibiken/asynq"
	"github.com/redis/go-redis/v9"

	"github.com/odyssey-erp/odyssey-inventory/cmd/odyssey/cli"
	"github.com/odyssey-erp/odyssey-inventory/internal/app"
	"github.com/odyssey-erp/odyssey-inventory/internal/inventory"
	inventoryhttp "github.com/odyssey-erp/odyssey-inventory/internal/inventory/http"
	"github.com/odyssey-erp/odyssey-inventory/internal/inventory/report"
	"github.com/odyssey-erp/odyssey-inventory/internal/observability"
	"github.com/odyssey-erp/odyssey-inventory/internal/platform/cache"
	"github.com/odyssey-erp/odyssey-inventory/internal/platform/db"
	"github.com/odyssey-erp/odyssey-inventory/internal/platform/pdf"
	"github.com/odyssey-erp/odyssey-inventory/jobs"
)

const usage = `usage: odyssey <command> [flags]

commands:
  serve                         run the ops HTTP server (default)
  report -from -to -format      write the warehouse report to stdout
  jobs trigger <task>           enqueue a background job
  jobs stats | scheduled        inspect the default queue
`

func main() {
	if app.InTestMode() {
		slog.Default().Info("test mode detected, skipping runtime startup")
		return
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	cfg, err := app.LoadConfig()
	if err != nil {
		slog.Default().Error("load config", slog.Any("error", err))
		os.Exit(1)
	}
	logger := app.NewLogger(cfg)

	args := os.Args[1:]
	command := "serve"
	if len(args) > 0 {
		command, args = args[0], args[1:]
	}
	switch command {
	case "serve":
		err = serve(ctx, cfg, logger)
	case "report":
		os.Exit(runReport(ctx, cfg, logger, args))
	case "jobs":
		os.Exit(runJobs(ctx, cfg, args))
	case "help", "-h", "--help":
		fmt.Fprint(os.Stdout, usage)
		return
	default:
		fmt.Fprint(os.Stderr, usage)
		os.Exit(2)
	}
	if err != nil && !errors.Is(err, context.Canceled) {
		logger.Error(command, slog.Any("error", err))
		os.Exit(1)
	}
}

func serve(ctx context.Context, cfg *app.Config, logger *slog.Logger) error {
	pool, err := db.New(ctx, cfg.PostgresOptions("api", 0))
	if err != nil {
		return err
	}
	defer pool.Close()

	redisClient := connectRedis(ctx, cfg, logger)
	if redisClient != nil {
		defer func() {
			if err := redisClient.Close(); err != nil {
				logger.Warn("redis close", slog.Any("error", err))
			}
		}()
	}

	metrics := observability.NewMetrics()
	inv, err := app.NewInventory(cfg, logger, pool, redisClient, metrics)
	if err != nil {
		return err
	}
	defer func() {
		if err := inv.Close(); err != nil {
			logger.Warn("close event publisher", slog.Any("error", err))
		}
	}()

	exporter, err := newExporter(cfg)
	if err != nil {
		return err
	}
	inventoryHandler := inventoryhttp.NewHandler(logger, inv.Service.Balances, report.NewBuilder(inv.Repository), exporter)

	inspector := asynq.NewInspector(cfg.RedisOptions().Asynq())
	defer func() {
		if err := inspector.Close(); err != nil {
			logger.Warn("inspector close", slog.Any("error", err))
		}
	}()
	jobHandler := jobs.NewHandler(inspector, logger)

	router := app.NewRouter(app.RouterParams{
		Logger:           logger,
		Config:           cfg,
		Database:         pool,
		InventoryHandler: inventoryHandler,
		JobHandler:       jobHandler,
		Metrics:          metrics,
	})

	server := &http.Server{
		Addr:         cfg.AppAddr,
		Handler:      router,
		ReadTimeout:  cfg.AppReadTimeout,
		WriteTimeout: cfg.AppWriteTimeout,
	}

	errCh := make(chan error, 1)
	go func() {
		logger.Info("starting http server", slog.String("addr", cfg.AppAddr))
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
		close(errCh)
	}()

	select {
	case err := <-errCh:
		if err != nil {
			return err
		}
	case <-ctx.Done():
	}
	logger.Info("shutting down")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	return server.Shutdown(shutdownCtx)
}

func runReport(ctx context.Context, cfg *app.Config, logger *slog.Logger, args []string) int {
	fs := flag.NewFlagSet("report", flag.ContinueOnError)
	fs.SetOutput(os.Stderr)
	from := fs.String("from", "", "first day of the range (YYYY-MM-DD)")
	to := fs.String("to", "", "last day of the range, inclusive (YYYY-MM-DD)")
	format := fs.String("format", "json", "json, xml, csv or pdf")
	out := fs.String("out", "", "write to this file instead of stdout")
	if err := fs.Parse(args); err != nil {
		return 2
	}

	pool, err := db.New(ctx, cfg.PostgresOptions("report", 2))
	if err != nil {
		logger.Error("connect postgres", slog.Any("error", err))
		return 1
	}
	defer pool.Close()

	exporter, err := newExporter(cfg)
	if err != nil {
		logger.Error("init exporter", slog.Any("error", err))
		return 1
	}

	var stdout io.Writer = os.Stdout
	if *out != "" {
		f, err := os.Create(*out)
		if err != nil {
			logger.Error("create output", slog.Any("error", err))
			return 1
		}
		defer func() {
			if err := f.Close(); err != nil {
				logger.Warn("close output", slog.Any("error", err))
			}
		}()
		stdout = f
	}

	rc := cli.NewReportCLI(report.NewBuilder(inventory.NewRepository(pool)), exporter)
	return rc.ReportCommand(ctx, cli.ReportOptions{From: *from, To: *to, Format: *format, Stdout: stdout, Stderr: os.Stderr})
}

func runJobs(ctx context.Context, cfg *app.Config, args []string) int {
	opts := cli.JobsOptions{Stdout: os.Stdout, Stderr: os.Stderr}
	if len(args) > 0 {
		opts.Action = args[0]
	}
	if len(args) > 1 {
		opts.Job = args[1]
	}
	jc := cli.NewJobsCLI(cfg.RedisOptions().Asynq())
	defer func() {
		_ = jc.Close()
	}()
	return jc.JobsCommand(ctx, opts)
}

func newExporter(cfg *app.Config) (*report.Exporter, error) {
	if !cfg.PDFEnabled() {
		return report.NewExporter(nil), nil
	}
	client, err := pdf.NewClient(cfg.GotenbergURL, pdf.WithLandscape())
	if err != nil {
		return nil, err
	}
	return report.NewExporter(client), nil
}

func connectRedis(ctx context.Context, cfg *app.Config, logger *slog.Logger) *redis.Client {
	client, err := cache.New(ctx, cfg.RedisOptions())
	if err != nil {
		logger.Warn("redis unavailable, balance cache disabled", slog.Any("error", err))
		return nil
	}
	return client
}
