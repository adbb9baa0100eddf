package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/alecthomas/kong"
	"github.com/joho/godotenv"

	"github.com/yourusername/scopefence/store"
)

// CLI holds the gateway flags. Every flag can also be set from the
// environment or a .env file.
type CLI struct {
	Config        string `short:"c" help:"Path to gateway config file." type:"path" default:"gateway.yaml" env:"SCOPEFENCE_CONFIG"`
	Listen        string `help:"Listen address." default:":8080" env:"SCOPEFENCE_LISTEN"`
	RedisAddr     string `help:"Redis address for decision stats. Empty keeps stats in memory." env:"REDIS_ADDR"`
	RedisPassword string `help:"Redis password." env:"REDIS_PASSWORD"`
	RedisDB       int    `help:"Redis database number." default:"0" env:"REDIS_DB"`
	LogLevel      string `help:"Log level (debug, info, warn, error)." default:"info" enum:"debug,info,warn,error" env:"LOG_LEVEL"`
	LogFormat     string `help:"Log format (text, json)." default:"text" enum:"text,json" env:"LOG_FORMAT"`
}

func main() {
	// A missing .env file is fine
	_ = godotenv.Load()

	var cli CLI
	ctx := kong.Parse(&cli,
		kong.Name("scopefence"),
		kong.Description("Rate limiting gateway with global, consumer and provider scopes."),
		kong.UsageOnError(),
	)
	ctx.FatalIfErrorf(ctx.Run())
}

// Run starts the gateway and blocks until SIGINT or SIGTERM.
func (c *CLI) Run() error {
	logger, err := newLogger(os.Stderr, c.LogLevel, c.LogFormat)
	if err != nil {
		return err
	}
	slog.SetDefault(logger)

	cfg, err := loadGatewayConfig(c.Config)
	if err != nil {
		return err
	}

	var stats store.Store
	if c.RedisAddr != "" {
		redisStore := store.NewRedisStore(store.RedisConfig{
			Addr:     c.RedisAddr,
			Password: c.RedisPassword,
			DB:       c.RedisDB,
		})
		defer redisStore.Close()

		pingCtx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
		err := redisStore.Ping(pingCtx)
		cancel()
		if err != nil {
			return fmt.Errorf("failed to connect to redis at %s: %w", c.RedisAddr, err)
		}
		logger.Info("recording decisions in redis", "addr", c.RedisAddr)
		stats = redisStore
	} else {
		logger.Warn("recording decisions in memory (not shared between instances)")
		stats = store.NewMemoryStore()
	}

	g, err := newGateway(cfg, stats, logger)
	if err != nil {
		return err
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	srv := &http.Server{
		Addr:              c.Listen,
		Handler:           g.routes(),
		ReadHeaderTimeout: 10 * time.Second,
		ReadTimeout:       30 * time.Second,
		WriteTimeout:      30 * time.Second,
		IdleTimeout:       90 * time.Second,
	}

	go func() {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		if err := srv.Shutdown(shutdownCtx); err != nil {
			logger.Error("shutdown failed", "error", err)
		}
	}()

	for _, p := range cfg.Providers {
		logger.Info("proxying provider", "provider", p.ID, "context", p.Context, "target", p.Target)
	}
	logger.Info("gateway listening", "addr", c.Listen, "dashboard", "/dashboard")

	if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return fmt.Errorf("server error: %w", err)
	}
	logger.Info("gateway stopped")
	return nil
}
