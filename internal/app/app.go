// Package app wires the marketplace API together: configuration, storage,
// domain services, HTTP surface, health probes, and graceful shutdown.
package app

import (
	"context"
	"net/http"
	"time"

	"github.com/go-faster/errors"
	"github.com/go-faster/sdk/app"
	"github.com/go-faster/sdk/zctx"
	goredis "github.com/redis/go-redis/v9"
	"go.uber.org/zap"

	"github.com/nuhin13/test-ecom/internal/domain/auth"
	"github.com/nuhin13/test-ecom/internal/domain/cart"
	"github.com/nuhin13/test-ecom/internal/domain/order"
	"github.com/nuhin13/test-ecom/internal/domain/review"
	"github.com/nuhin13/test-ecom/internal/handler"
	ecomredis "github.com/nuhin13/test-ecom/internal/redis"
	"github.com/nuhin13/test-ecom/internal/repository"
	"github.com/nuhin13/test-ecom/pkg/health"
	"github.com/nuhin13/test-ecom/pkg/httpmiddleware"
)

// Run creates all dependencies, starts the HTTP server, and handles graceful
// shutdown. It is the single wiring point for the application.
func Run(ctx context.Context, lg *zap.Logger, m *app.Telemetry, cfg *Config) error {
	lg.Info("Initializing", zap.String("addr", cfg.Addr))

	freeThreshold, err := cfg.Shipping.FreeShippingThreshold()
	if err != nil {
		return err
	}
	flatFee, err := cfg.Shipping.FlatShippingFee()
	if err != nil {
		return err
	}

	// PostgreSQL pool + migrations.
	pool, err := repository.NewPool(ctx, cfg.DatabaseURL)
	if err != nil {
		return errors.Wrap(err, "create db pool")
	}
	defer pool.Close()

	if err := repository.RunMigrations(ctx, pool); err != nil {
		return errors.Wrap(err, "run migrations")
	}

	// Health check service.
	healthSvc := health.New()
	healthSvc.AddReadinessCheck("postgres", 5*time.Second, health.PingCheck(pool))
	healthSvc.AddLivenessCheck("goroutines", time.Second, health.GoroutineCountCheck(10000))

	// OTP store: Redis when configured, in-memory otherwise.
	var otpStore auth.Store
	if cfg.RedisURL != "" {
		opts, err := goredis.ParseURL(cfg.RedisURL)
		if err != nil {
			return errors.Wrap(err, "parse redis URL")
		}
		client := goredis.NewClient(opts)
		defer func() { _ = client.Close() }()

		healthSvc.AddReadinessCheck("redis", 5*time.Second, func(ctx context.Context) error {
			return client.Ping(ctx).Err()
		})
		otpStore = ecomredis.NewOTPStore(client)
	} else {
		mem := auth.NewMemStore()
		mem.StartEviction(ctx, time.Minute)
		otpStore = mem
	}

	healthSvc.Start(ctx, 10*time.Second)
	healthSvc.SetReady(true)

	// Repositories.
	productRepo := repository.NewProductRepository(pool)
	cartRepo := repository.NewCartRepository(pool)
	orderRepo := repository.NewOrderRepository(pool)
	reviewRepo := repository.NewReviewRepository(pool)

	// Domain services.
	cartService := cart.NewService(cartRepo, productRepo)
	orderService := order.NewService(productRepo, orderRepo, cartRepo, order.Config{
		FreeShippingThreshold: freeThreshold,
		FlatShippingFee:       flatFee,
	})
	reviewService := review.NewService(reviewRepo, productRepo, orderRepo)
	otpService := auth.New(otpStore, auth.Config{
		Enabled: cfg.OTP.Enabled,
		TTL:     cfg.OTP.TTL,
	})

	// HTTP surface: health endpoints + API routes on one server.
	h := handler.New(
		handler.Config{
			ImageBaseURL:    cfg.ImageBaseURL,
			DefaultPageSize: cfg.Paging.DefaultPageSize,
		},
		productRepo,
		cartService,
		orderService,
		reviewService,
		otpService,
	)

	mux := http.NewServeMux()
	mux.HandleFunc("/livez", healthSvc.LiveEndpoint)
	mux.HandleFunc("/readyz", healthSvc.ReadyEndpoint)
	h.Routes(mux)

	server := &http.Server{
		ReadHeaderTimeout: time.Second,
		ReadTimeout:       5 * time.Second,
		WriteTimeout:      10 * time.Second,
		IdleTimeout:       120 * time.Second,
		MaxHeaderBytes:    1 << 20,
		Addr:              cfg.Addr,
		Handler: httpmiddleware.Wrap(mux,
			httpmiddleware.Recovery(),
			httpmiddleware.CORS(httpmiddleware.CORSConfig{
				AllowOrigins:     cfg.CORS.Origins,
				AllowHeaders:     []string{"Content-Type", "Authorization", "X-Request-ID", "X-User-ID", "X-Session-ID", "X-Admin"},
				AllowCredentials: cfg.CORS.AllowCredentials,
				MaxAge:           86400,
			}),
			httpmiddleware.RateLimitWithCleanup(ctx, httpmiddleware.RateLimitConfig{
				Max:         cfg.RateLimit.Max,
				Window:      cfg.RateLimit.Window,
				ExemptPaths: []string{"/livez", "/readyz"},
			}),
			httpmiddleware.RequestID(),
			httpmiddleware.InjectLogger(zctx.From(ctx)),
			httpmiddleware.Instrument("ecom-api", m),
			httpmiddleware.LogRequests(),
		),
	}

	// Graceful shutdown: stop advertising readiness, drain, then stop.
	shutdownDone := make(chan struct{})
	go func() {
		<-ctx.Done()
		healthSvc.SetReady(false)
		lg.Info("Readiness set to false, draining", zap.Duration("delay", cfg.Graceful.ReadinessDelay))
		time.Sleep(cfg.Graceful.ReadinessDelay)

		shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.Graceful.ShutdownTimeout)
		defer cancel()

		lg.Info("Shutting down server", zap.Duration("timeout", cfg.Graceful.ShutdownTimeout))
		if err := server.Shutdown(shutdownCtx); err != nil {
			lg.Error("Server shutdown error", zap.Error(err))
		}
		healthSvc.Stop()
		close(shutdownDone)
	}()

	lg.Info("Server listening", zap.String("addr", cfg.Addr))
	if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return errors.Wrap(err, "server")
	}
	<-shutdownDone
	return nil
}
