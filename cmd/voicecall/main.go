package main

import (
	"bufio"
	"context"
	"fmt"
	"io"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/labstack/echo/v4"
	"github.com/labstack/echo/v4/middleware"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"

	"github.com/satriahrh/voicecall/adapters"
	"github.com/satriahrh/voicecall/adapters/console"
	"github.com/satriahrh/voicecall/adapters/ffmpeg"
	"github.com/satriahrh/voicecall/adapters/filestore"
	"github.com/satriahrh/voicecall/adapters/mongo"
	"github.com/satriahrh/voicecall/adapters/redisstore"
	"github.com/satriahrh/voicecall/domain/repositories"
	"github.com/satriahrh/voicecall/internal/api"
	"github.com/satriahrh/voicecall/internal/config"
	"github.com/satriahrh/voicecall/internal/metrics"
	"github.com/satriahrh/voicecall/internal/transport"
	"github.com/satriahrh/voicecall/usecase"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		fmt.Fprintln(os.Stderr, "failed to load config:", err)
		os.Exit(1)
	}

	logger, err := config.NewLogger(cfg.Logging)
	if err != nil {
		fmt.Fprintln(os.Stderr, "failed to build logger:", err)
		os.Exit(1)
	}
	defer logger.Sync()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	registry := prometheus.NewRegistry()
	registry.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))
	m := metrics.New(registry)

	statsRepo, closeStats, err := newStatsRepository(ctx, cfg, logger)
	if err != nil {
		logger.Fatal("Failed to initialize stats storage", zap.Error(err))
	}
	defer closeStats()

	stats := usecase.NewStatsService(statsRepo, logger)
	if err := stats.Load(ctx); err != nil {
		logger.Warn("Starting with empty stats", zap.Error(err))
	}

	mediaCfg := ffmpeg.ConfigFrom(cfg.Capture, cfg.Playback)
	devices := ffmpeg.NewDevices(mediaCfg, logger)
	ui := console.NewUI(os.Stdout, logger)

	session := usecase.NewCallSession(usecase.CallSessionDeps{
		Dialer:           transport.NewDialer(cfg.Agent, logger, m),
		Devices:          devices,
		Encoders:         devices,
		Recorders:        devices,
		Output:           ffmpeg.NewSpeaker(mediaCfg, logger),
		UI:               ui,
		Stats:            stats,
		Formats:          cfg.Capture.Formats,
		ReassemblyWindow: cfg.Playback.ReassemblyWindow,
		UnitTimeout:      cfg.Playback.UnitTimeout,
		Metrics:          m,
		Logger:           logger,
	})

	var e *echo.Echo
	if cfg.Control.Enabled {
		e = echo.New()
		e.HideBanner = true
		e.Use(middleware.Recover())
		api.InitRoutes(e, session, stats, registry, logger)

		go func() {
			if err := e.Start(cfg.Control.Address); err != nil && err != http.ErrServerClosed {
				logger.Error("Control API stopped", zap.Error(err))
			}
		}()
		logger.Info("Control API started", zap.String("address", cfg.Control.Address))
	}

	fmt.Fprintln(os.Stdout, "Commands: start, rec (or Enter), end, clear, metrics, stats, quit")
	lines := make(chan string)
	go readLines(os.Stdin, lines)

loop:
	for {
		select {
		case <-ctx.Done():
			break loop
		case line, ok := <-lines:
			if !ok || !handleCommand(ctx, strings.TrimSpace(line), session, stats) {
				break loop
			}
		}
	}

	logger.Info("Shutting down...")
	session.End()

	if e != nil {
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		if err := e.Shutdown(shutdownCtx); err != nil {
			logger.Error("Control API forced to shutdown", zap.Error(err))
		}
	}
	logger.Info("Exited")
}

func readLines(r io.Reader, out chan<- string) {
	defer close(out)
	scanner := bufio.NewScanner(r)
	for scanner.Scan() {
		out <- scanner.Text()
	}
}

// handleCommand runs one console command; it returns false on quit
func handleCommand(ctx context.Context, cmd string, session *usecase.CallSession, stats *usecase.StatsService) bool {
	switch strings.ToLower(cmd) {
	case "start", "call":
		go session.Start(ctx)
	case "", "rec", "r":
		go session.ToggleRecording(ctx)
	case "end", "hangup":
		session.End()
	case "clear":
		session.ClearConversation()
	case "metrics":
		fmt.Fprintln(os.Stdout, console.FormatMetrics(session.Metrics()))
	case "stats":
		fmt.Fprintln(os.Stdout, console.FormatStats(stats.Stats()))
	case "quit", "exit", "q":
		return false
	default:
		fmt.Fprintf(os.Stdout, "unknown command %q\n", cmd)
	}
	return true
}

func newStatsRepository(ctx context.Context, cfg *config.Config, logger *zap.Logger) (repositories.StatsRepository, func(), error) {
	switch cfg.Stats.Backend {
	case "mongo":
		client, err := mongo.NewClient(ctx, cfg.Stats.MongoURI, cfg.Stats.MongoDatabase, logger)
		if err != nil {
			return nil, nil, err
		}
		closeFn := func() {
			closeCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
			defer cancel()
			client.Close(closeCtx)
		}
		return mongo.NewStatsRepository(client.Database, cfg.Agent.ClientID), closeFn, nil
	case "redis":
		client := redis.NewClient(&redis.Options{
			Addr:     cfg.Stats.RedisAddr,
			Password: cfg.Stats.RedisPassword,
			DB:       cfg.Stats.RedisDB,
		})
		if err := client.Ping(ctx).Err(); err != nil {
			client.Close()
			return nil, nil, fmt.Errorf("failed to connect to redis at %s: %w", cfg.Stats.RedisAddr, err)
		}
		logger.Info("Connected to Redis", zap.String("addr", cfg.Stats.RedisAddr))
		return redisstore.NewStatsRepository(client, cfg.Agent.ClientID), func() { client.Close() }, nil
	case "memory":
		return adapters.NewMemoryStatsRepository(), func() {}, nil
	default:
		return filestore.NewStatsRepository(cfg.Stats.File, logger), func() {}, nil
	}
}
