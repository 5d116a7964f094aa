package cli

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"strconv"
	"syscall"
	"time"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"npcchat/apps/server/internal/auth"
	"npcchat/apps/server/internal/chat"
	"npcchat/apps/server/internal/gateway"
	"npcchat/apps/server/internal/snapshot"
	"npcchat/dialogue"
)

// ServeOptions configures the serve command.
type ServeOptions struct {
	Addr        string
	CacheSize   int
	AllowOrigin string
	Eager       bool
	LoadTimeout time.Duration
	source      sourceFlags
}

// NewServeCommand creates the serve command.
func NewServeCommand(rootOpts *RootOptions) *cobra.Command {
	opts := &ServeOptions{}

	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Serve dialogue lookups over HTTP and WebSocket",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
			defer stop()
			return runServe(ctx, rootOpts, opts)
		},
	}

	cmd.Flags().StringVar(&opts.Addr, "addr", envOr("ADDR", ":8080"), "listen address")
	cmd.Flags().IntVar(&opts.CacheSize, "cache-size", envInt("DIALOGUE_CACHE_SIZE", 0), "result cache entries (0 disables)")
	cmd.Flags().StringVar(&opts.AllowOrigin, "allow-origin", envOr("CORS_ALLOW_ORIGIN", "*"), "allowed CORS and WebSocket origin")
	cmd.Flags().BoolVar(&opts.Eager, "eager", true, "load the dataset at startup instead of on the first request")
	cmd.Flags().DurationVar(&opts.LoadTimeout, "load-timeout", 30*time.Second, "dataset load timeout")
	opts.source.bind(cmd)

	return cmd
}

// server bundles everything serve starts so it can be torn down in order.
type server struct {
	handler http.Handler
	engine  *dialogue.Engine
	gateway *gateway.Gateway
	source  snapshot.Source
	logger  *zap.Logger
}

func buildServer(logger *zap.Logger, opts *ServeOptions) (*server, error) {
	source, mode, err := opts.source.open()
	if err != nil {
		return nil, fmt.Errorf("open dialogue source: %w", err)
	}
	registry, err := opts.source.personas()
	if err != nil {
		_ = source.Close()
		return nil, err
	}
	guard, err := auth.NewGuardFromEnv()
	if err != nil {
		_ = source.Close()
		return nil, err
	}

	engine := dialogue.NewEngine(source,
		dialogue.WithEngineLogger(logger.Named("engine")),
		dialogue.WithIndexOptions(registry.IndexOptions()...),
		dialogue.WithResultCache(opts.CacheSize),
		dialogue.WithLoadTimeout(opts.LoadTimeout),
	)

	chatHTTP := chat.NewHTTPHandler(engine, chat.Config{
		Personas:    registry,
		Guard:       guard,
		Logger:      logger.Named("http"),
		AllowOrigin: opts.AllowOrigin,
	})
	gw := gateway.New(engine, logger, opts.AllowOrigin)

	mux := http.NewServeMux()
	mux.HandleFunc("/ws", gw.HandleWebSocket)
	chatHTTP.RegisterRoutes(mux)

	logger.Info("server configured",
		zap.String("source", mode),
		zap.String("stats_guard", guard.Mode()),
		zap.Int("personas", registry.Count()),
		zap.Int("cache_size", opts.CacheSize),
	)

	return &server{
		handler: chatHTTP.Wrap(mux),
		engine:  engine,
		gateway: gw,
		source:  source,
		logger:  logger,
	}, nil
}

func (s *server) close() {
	s.gateway.Close()
	if err := s.source.Close(); err != nil {
		s.logger.Warn("close dialogue source", zap.Error(err))
	}
}

func runServe(ctx context.Context, rootOpts *RootOptions, opts *ServeOptions) error {
	logger, err := rootOpts.logger()
	if err != nil {
		return err
	}
	defer logger.Sync()

	srv, err := buildServer(logger, opts)
	if err != nil {
		return err
	}
	defer srv.close()

	if opts.Eager {
		if err := srv.engine.Initialize(ctx); err != nil {
			// The first request retries the load.
			logger.Error("initial dataset load failed", zap.Error(err))
		} else if report, ok := srv.engine.Report(); ok && report.SkippedTotal() > 0 {
			logger.Warn("dataset loaded with skipped records",
				zap.String("version", report.Version),
				zap.Int("skipped", report.SkippedTotal()),
				zap.Any("reasons", report.Skipped),
			)
		}
	}

	httpServer := &http.Server{
		Addr:              opts.Addr,
		Handler:           srv.handler,
		ReadHeaderTimeout: 10 * time.Second,
	}
	errCh := make(chan error, 1)
	go func() {
		logger.Info("listening", zap.String("addr", opts.Addr))
		errCh <- httpServer.ListenAndServe()
	}()

	select {
	case err := <-errCh:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return err
	case <-ctx.Done():
	}

	logger.Info("shutting down")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	return httpServer.Shutdown(shutdownCtx)
}

func envInt(key string, fallback int) int {
	n, err := strconv.Atoi(envOr(key, ""))
	if err != nil {
		return fallback
	}
	return n
}
