package main

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	backend "github.com/redis/go-redis/v9"
	"github.com/spf13/cobra"

	"github.com/aretw0/arbiter"
	fileAdapter "github.com/aretw0/arbiter/internal/adapters/file"
	httpAdapter "github.com/aretw0/arbiter/internal/adapters/http"
	redisAdapter "github.com/aretw0/arbiter/internal/adapters/redis"
	"github.com/aretw0/arbiter/internal/logging"
	"github.com/aretw0/arbiter/pkg/observability"
	"github.com/aretw0/arbiter/pkg/session"
)

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Start the session authority HTTP server",
	Long:  `Starts the engine in server mode, exposing action submission, roll resolution, decisions and session event streams over a JSON API.`,
	Run: func(cmd *cobra.Command, args []string) {
		dir, _ := cmd.Flags().GetString("dir")
		port, _ := cmd.Flags().GetString("port")
		levelStr, _ := cmd.Flags().GetString("log-level")
		redisAddr, _ := cmd.Flags().GetString("redis")
		watch, _ := cmd.Flags().GetBool("watch")
		lockTTL, _ := cmd.Flags().GetDuration("lock-ttl")
		dataDir, _ := cmd.Flags().GetString("data")

		level, err := logging.ParseLevel(levelStr)
		if err != nil {
			fmt.Printf("Invalid log level: %v\n", err)
			os.Exit(1)
		}
		logger := logging.New(level)

		reg := prometheus.NewRegistry()
		metrics, err := observability.NewMetrics(reg)
		if err != nil {
			fmt.Printf("Error registering metrics: %v\n", err)
			os.Exit(1)
		}

		streams := httpAdapter.NewStreamManager(logger)
		opts := []arbiter.Option{
			arbiter.WithTransport(streams),
			arbiter.WithLogger(logger),
			arbiter.WithLifecycleHooks(metrics.Hooks()),
		}

		// Redis persistence keeps commits and pause queues across restarts
		// and fences the session worker through the distributed lock. The
		// file store covers single-node durability without Redis.
		if redisAddr == "" && dataDir != "" {
			store := fileAdapter.New(dataDir)
			opts = append(opts,
				arbiter.WithStore(store),
				arbiter.WithJournal(store),
			)
		}
		if redisAddr != "" {
			client := backend.NewClient(&backend.Options{Addr: redisAddr})
			store := redisAdapter.NewFromClient(client)
			opts = append(opts,
				arbiter.WithStore(store),
				arbiter.WithJournal(store),
				arbiter.WithLocker(redisAdapter.NewLocker(client, "arbiter:")),
				arbiter.WithSessionOptions(session.WithLockTTL(lockTTL)),
			)
		}

		engine, err := arbiter.New(dir, opts...)
		if err != nil {
			fmt.Printf("Error initializing arbiter: %v\n", err)
			os.Exit(1)
		}
		if err := metrics.ObserveManager(reg, engine.Manager()); err != nil {
			fmt.Printf("Error registering gauges: %v\n", err)
			os.Exit(1)
		}

		handler := httpAdapter.NewHandler(engine, streams,
			httpAdapter.WithLogger(logger),
			httpAdapter.WithGatherer(reg),
		)

		srv := &http.Server{
			Addr:    ":" + port,
			Handler: handler,
		}

		ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
		defer stop()

		if watch {
			go watchDefinitions(ctx, engine, logger.With("component", "watcher"))
		}

		// Channel to listen for errors coming from the listener.
		serverErrors := make(chan error, 1)

		go func() {
			fmt.Printf("Starting Arbiter Server on %s\n", srv.Addr)
			fmt.Printf("Serving definitions from: %s\n", dir)
			serverErrors <- srv.ListenAndServe()
		}()

		select {
		case err := <-serverErrors:
			fmt.Printf("Server error: %v\n", err)
			os.Exit(1)

		case <-ctx.Done():
			fmt.Println("\nStart shutdown...")

			shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
			defer cancel()

			if err := srv.Shutdown(shutdownCtx); err != nil {
				fmt.Printf("Graceful shutdown did not complete in %v: %v\n", 5*time.Second, err)
				if err := srv.Close(); err != nil {
					fmt.Printf("Error killing server: %v\n", err)
				}
			}
			if err := engine.Shutdown(shutdownCtx); err != nil {
				fmt.Printf("Engine shutdown error: %v\n", err)
			}
			fmt.Println("Arbiter Server stopped gracefully")
		}
	},
}

func watchDefinitions(ctx context.Context, engine *arbiter.Engine, logger *slog.Logger) {
	events, err := engine.Watch(ctx)
	if err != nil {
		logger.Error("definition watch unavailable", "err", err)
		return
	}
	for range events {
		if err := engine.Reload(ctx); err != nil {
			logger.Error("definition reload failed", "err", err)
			continue
		}
		logger.Info("definitions reloaded")
	}
}

func init() {
	rootCmd.AddCommand(serveCmd)
	serveCmd.Flags().StringP("port", "p", "8080", "Port to listen on")
	serveCmd.Flags().String("redis", "", "Redis address for durable commits, journals and locks (empty = in-memory)")
	serveCmd.Flags().String("data", "", "Directory for file-backed commits and journals (ignored when --redis is set)")
	serveCmd.Flags().Bool("watch", false, "Reload definitions when documents change")
	serveCmd.Flags().Duration("lock-ttl", session.DefaultLockTTL, "Session lock TTL when Redis locking is enabled")
}
