package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"

	"github.com/gin-gonic/gin"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"feed-translator/config"
	"feed-translator/internal/handler"
	"feed-translator/internal/logging"
	"feed-translator/internal/model"
	"feed-translator/internal/scheduler"
	"feed-translator/internal/service"
)

func main() {
	var configPath string

	rootCmd := &cobra.Command{
		Use:           "feed-translator",
		Short:         "Fetch RSS feeds, translate and summarize entries, republish them as Atom",
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return withApp(configPath, serve)
		},
	}
	rootCmd.PersistentFlags().StringVar(&configPath, "config", config.DefaultConfigPath, "Path to YAML config file")

	var bucketName string
	syncCmd := &cobra.Command{
		Use:   "sync",
		Short: "Run one sync cycle for every feed of a refresh bucket and exit",
		RunE: func(cmd *cobra.Command, args []string) error {
			bucket, err := model.ParseBucket(bucketName)
			if err != nil {
				return err
			}
			return withApp(configPath, func(ctx context.Context, a *app) error {
				return runSync(ctx, a, bucket)
			})
		},
	}
	syncCmd.Flags().StringVar(&bucketName, "bucket", model.Every30Minutes.String(), "Refresh bucket: 5min, 15min, 30min, hourly, daily, weekly")

	validateCmd := &cobra.Command{
		Use:   "validate <engine-name>",
		Short: "Check an engine's credentials and store the result",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withApp(configPath, func(ctx context.Context, a *app) error {
				valid, err := a.engines.ValidateByName(ctx, args[0])
				if err != nil {
					return err
				}
				fmt.Fprintf(cmd.OutOrStdout(), "%s: valid=%t\n", args[0], valid)
				return nil
			})
		},
	}

	rootCmd.AddCommand(syncCmd, validateCmd)
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, "error:", err)
		os.Exit(1)
	}
}

// withApp 加载配置、构造组件，结束时释放连接。收到 SIGINT/SIGTERM 时取消 ctx
func withApp(configPath string, run func(ctx context.Context, a *app) error) error {
	cfg, found, err := config.Load(configPath)
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}
	logger, err := logging.New(cfg.Log.Level, cfg.Log.Development)
	if err != nil {
		return fmt.Errorf("init logger: %w", err)
	}
	defer logger.Sync()
	if !found {
		logger.Info("config file not found, using defaults", zap.String("path", configPath))
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	a, err := newApp(ctx, cfg, logger)
	if err != nil {
		return err
	}
	defer a.close()
	return run(ctx, a)
}

func runSync(ctx context.Context, a *app, bucket model.RefreshBucket) error {
	// 收到信号后给进行中的调用留出时间
	syncCtx, cancel := scheduler.Graceful(ctx, a.cfg.Server.ShutdownTimeout)
	defer cancel()
	go func() {
		select {
		case <-ctx.Done():
			a.logger.Info("shutdown requested, waiting for running sync", zap.Duration("grace", a.cfg.Server.ShutdownTimeout))
		case <-syncCtx.Done():
		}
	}()

	reports, err := a.sync.SyncBucket(syncCtx, bucket)
	for _, r := range reports {
		a.logger.Info("feed synced",
			zap.String("slug", r.Slug),
			zap.Boolp("fetch", r.Fetch),
			zap.Boolp("translation", r.Translation),
			zap.Boolp("summary", r.Summary),
			zap.Int("entry_errors", r.EntryErrors),
			zap.Bool("published", r.Published),
		)
	}
	return err
}

func serve(ctx context.Context, a *app) error {
	logger := a.logger
	sched, err := scheduler.NewScheduler(scheduler.SyncFunc(func(ctx context.Context, bucket model.RefreshBucket) error {
		_, err := a.sync.SyncBucket(ctx, bucket)
		return err
	}), a.cfg.Cron, logger)
	if err != nil {
		return err
	}
	sched.Start()

	gin.SetMode(a.cfg.Server.Mode)
	r := gin.New()
	r.Use(gin.Recovery())
	h := handler.NewHandler(
		a.feeds,
		a.engines,
		service.NewStatusService(a.repo, a.cache, sched),
		a.files,
		a.registry,
		logger,
	)
	h.RegisterRoutes(r)

	srv := &http.Server{
		Addr:    a.cfg.GetServerAddress(),
		Handler: r,
	}
	errCh := make(chan error, 1)
	go func() {
		logger.Info("server starting", zap.String("addr", srv.Addr))
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
	}()

	select {
	case <-ctx.Done():
	case err = <-errCh:
		logger.Error("server error", zap.Error(err))
	}

	logger.Info("shutting down server...")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), a.cfg.Server.ShutdownTimeout)
	defer cancel()
	if serr := srv.Shutdown(shutdownCtx); serr != nil {
		logger.Warn("forced shutdown", zap.Error(serr))
	}
	// 先停止调度，等待运行中的同步，超时后才取消
	if serr := sched.Stop(shutdownCtx); serr != nil {
		logger.Warn("scheduled sync cancelled at shutdown", zap.Error(serr))
	}
	if werr := a.sync.Wait(shutdownCtx); werr != nil {
		logger.Warn("sync still running at exit", zap.Error(werr))
	}
	logger.Info("server exited")
	return err
}
