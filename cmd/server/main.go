package main

import (
	"context"
	"errors"
	"fmt"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/labstack/echo/v4"
	"github.com/labstack/echo/v4/middleware"
	"go.uber.org/zap"

	"github.com/sudo-init-do/peerledger/internal/alerts"
	"github.com/sudo-init-do/peerledger/internal/bootstrap"
	"github.com/sudo-init-do/peerledger/internal/config"
	"github.com/sudo-init-do/peerledger/internal/listing"
	"github.com/sudo-init-do/peerledger/internal/logging"
	"github.com/sudo-init-do/peerledger/internal/marketplace"
	"github.com/sudo-init-do/peerledger/internal/metrics"
	mware "github.com/sudo-init-do/peerledger/internal/middleware"
	"github.com/sudo-init-do/peerledger/internal/storage"
	"github.com/sudo-init-do/peerledger/internal/trade"
	"github.com/sudo-init-do/peerledger/internal/user"
	"github.com/sudo-init-do/peerledger/internal/wallet"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("config: %v", err)
	}
	logger, err := logging.New(cfg.LogLevel)
	if err != nil {
		log.Fatalf("logger: %v", err)
	}
	defer logger.Sync()

	if err := run(cfg, logger); err != nil {
		logger.Fatal("server stopped", zap.Error(err))
	}
}

func run(cfg config.Config, logger *zap.Logger) error {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if cfg.JWTSecret == "" {
		return errors.New("JWT_SECRET is required")
	}

	store, err := bootstrap.OpenStore(ctx, cfg, logger)
	if err != nil {
		return err
	}
	defer store.Close()

	m := metrics.New()
	ledger := wallet.NewLedger()
	registry := marketplace.NewRegistry(store, ledger, logger)
	tracker := user.NewTracker(store, registry, ledger, logger, m)
	listings := listing.NewManager(store, registry, logger, m)
	wallets := wallet.NewService(store, ledger, logger, m)
	engine := trade.NewEngine(store, registry, tracker, ledger, logger)
	engine.SetMetrics(m)

	if cfg.NotificationsEnabled {
		client := alerts.NewClient(cfg.RedisAddr)
		defer client.Close()
		engine.SetNotifier(client)

		worker := alerts.NewServer(cfg.RedisAddr, logger)
		if err := worker.Start(alerts.NewProcessor(logger).Mux()); err != nil {
			return fmt.Errorf("start notification worker: %w", err)
		}
		defer worker.Shutdown()
		logger.Info("notifications enabled", zap.String("redis_addr", cfg.RedisAddr))
	}

	e := newServer(store, logger, m, []byte(cfg.JWTSecret), handlers{
		marketplace: marketplace.NewHandler(registry),
		user:        user.NewHandler(tracker),
		listing:     listing.NewHandler(listings),
		trade:       trade.NewHandler(engine),
		wallet:      wallet.NewHandler(wallets),
	})

	errCh := make(chan error, 1)
	go func() {
		logger.Info("listening", zap.String("port", cfg.Port))
		if err := e.Start(":" + cfg.Port); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
		close(errCh)
	}()

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	return e.Shutdown(shutdownCtx)
}

type handlers struct {
	marketplace *marketplace.Handler
	user        *user.Handler
	listing     *listing.Handler
	trade       *trade.Handler
	wallet      *wallet.Handler
}

func newServer(store storage.Store, logger *zap.Logger, m *metrics.Metrics, secret []byte, h handlers) *echo.Echo {
	e := echo.New()
	e.HideBanner = true
	e.HTTPErrorHandler = mware.ErrorHandler(logger)

	// Basic middleware
	e.Use(middleware.Recover())
	e.Use(mware.RequestLogger(logger))

	// Health and root routes
	e.GET("/health", func(c echo.Context) error {
		return c.JSON(http.StatusOK, echo.Map{"status": "ok"})
	})
	e.GET("/ready", func(c echo.Context) error {
		if err := store.Ping(c.Request().Context()); err != nil {
			return c.JSON(http.StatusServiceUnavailable, echo.Map{"status": "not_ready", "error": "store unreachable"})
		}
		return c.JSON(http.StatusOK, echo.Map{"status": "ready"})
	})
	e.GET("/metrics", echo.WrapHandler(m.Handler()))

	// Public routes
	e.GET("/marketplace", h.marketplace.Get)
	e.GET("/users/:id", h.user.Get)
	e.GET("/users/:id/reviews", h.user.Reviews)
	e.GET("/listings/:id", h.listing.Get)
	e.GET("/purchases/:id", h.trade.Get)

	// Protected routes
	api := e.Group("")
	api.Use(mware.JWT(secret))

	api.POST("/users", h.user.Create)
	api.PATCH("/users/me", h.user.Update)
	api.POST("/users/me/verification", h.user.Verify)

	api.POST("/listings", h.listing.Create)
	api.PATCH("/listings/:id/status", h.listing.UpdateStatus)
	api.POST("/listings/:id/purchase", h.trade.Purchase)

	api.POST("/purchases/:id/complete", h.trade.Complete)
	api.POST("/purchases/:id/dispute", h.trade.Dispute)
	api.POST("/purchases/:id/reviews", h.trade.Review)

	api.GET("/wallet/balance", h.wallet.Balance)
	api.GET("/wallet/transactions", h.wallet.Transactions)

	// Admin routes
	admin := e.Group("/admin")
	admin.Use(mware.JWT(secret))
	admin.Use(mware.AdminGuard)

	admin.POST("/marketplace", h.marketplace.Initialize)
	admin.POST("/wallets/:id/deposit", h.wallet.AdminDeposit)

	return e
}
