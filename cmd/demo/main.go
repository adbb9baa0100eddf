// Command demo runs a fake provider for the gateway to proxy to. With
// --grpc-listen it also serves the gRPC health service behind the rate
// limiting interceptors.
package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/alecthomas/kong"
	"github.com/joho/godotenv"
	"google.golang.org/grpc"
	"google.golang.org/grpc/health"
	healthpb "google.golang.org/grpc/health/grpc_health_v1"

	"github.com/yourusername/scopefence/cmd/demo/handlers"
	"github.com/yourusername/scopefence/interceptor"
	"github.com/yourusername/scopefence/pkg/scopefence"
)

type CLI struct {
	ID         string `help:"Provider id reported in responses." default:"orders" env:"DEMO_PROVIDER_ID"`
	Listen     string `help:"HTTP listen address." default:":9001" env:"DEMO_LISTEN"`
	GRPCListen string `name:"grpc-listen" help:"gRPC listen address. Empty disables gRPC." env:"DEMO_GRPC_LISTEN"`
	Config     string `short:"c" help:"Rate limit config for the gRPC server. Defaults to 5 requests per second." type:"path" env:"DEMO_RATELIMIT_CONFIG"`
}

func main() {
	_ = godotenv.Load()

	var cli CLI
	ctx := kong.Parse(&cli,
		kong.Name("demo"),
		kong.Description("Fake provider for trying the scopefence gateway."),
		kong.UsageOnError(),
	)
	ctx.FatalIfErrorf(ctx.Run())
}

func (c *CLI) Run() error {
	logger := slog.New(slog.NewTextHandler(os.Stderr, nil)).With("provider", c.ID)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if c.GRPCListen != "" {
		srv, err := c.grpcServer(logger)
		if err != nil {
			return err
		}
		lis, err := net.Listen("tcp", c.GRPCListen)
		if err != nil {
			return fmt.Errorf("failed to listen on %s: %w", c.GRPCListen, err)
		}
		go func() {
			<-ctx.Done()
			srv.GracefulStop()
		}()
		go func() {
			logger.Info("grpc listening", "addr", c.GRPCListen)
			if err := srv.Serve(lis); err != nil {
				logger.Error("grpc server failed", "error", err)
			}
		}()
	}

	srv := &http.Server{
		Addr:              c.Listen,
		Handler:           handlers.New(c.ID).Routes(),
		ReadHeaderTimeout: 10 * time.Second,
	}
	go func() {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		srv.Shutdown(shutdownCtx)
	}()

	logger.Info("http listening", "addr", c.Listen)
	if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return fmt.Errorf("server error: %w", err)
	}
	return nil
}

func (c *CLI) grpcServer(logger *slog.Logger) (*grpc.Server, error) {
	cfg := &scopefence.Config{Global: scopefence.PerSecond(5)}
	if c.Config != "" {
		var err error
		if cfg, err = scopefence.LoadConfigFromFile(c.Config); err != nil {
			return nil, err
		}
	}

	filter, err := scopefence.NewFilter("grpc:"+c.ID, cfg,
		scopefence.WithProvider(c.ID),
		scopefence.WithLogger(logger),
	)
	if err != nil {
		return nil, err
	}

	srv := grpc.NewServer(
		grpc.ChainUnaryInterceptor(interceptor.UnaryServerInterceptor(filter, interceptor.WithLogger(logger))),
		grpc.ChainStreamInterceptor(interceptor.StreamServerInterceptor(filter, interceptor.WithLogger(logger))),
	)
	healthpb.RegisterHealthServer(srv, health.NewServer())
	return srv, nil
}
