package app

import (
	"context"
	"net/http"
	"time"

	"github.com/go-faster/errors"
	"github.com/go-faster/sdk/app"
	"github.com/go-faster/sdk/zctx"
	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/xenking/rodela-order-api/internal/courier"
	"github.com/xenking/rodela-order-api/internal/domain/blacklist"
	"github.com/xenking/rodela-order-api/internal/domain/coupon"
	"github.com/xenking/rodela-order-api/internal/domain/customer"
	"github.com/xenking/rodela-order-api/internal/domain/inventory"
	"github.com/xenking/rodela-order-api/internal/domain/order"
	"github.com/xenking/rodela-order-api/internal/handler"
	"github.com/xenking/rodela-order-api/internal/outbox"
	"github.com/xenking/rodela-order-api/internal/storage/postgres"
	"github.com/xenking/rodela-order-api/pkg/health"
	"github.com/xenking/rodela-order-api/pkg/httpmiddleware"
)

// unconfiguredCourier rejects dispatching when no courier is configured.
type unconfiguredCourier struct{}

func (unconfiguredCourier) CreateShipment(context.Context, *order.Order) (*order.Shipment, error) {
	return nil, errors.New("courier is not configured")
}

// Run creates all dependencies, starts the HTTP server and the outbox
// dispatcher, and handles graceful shutdown. It is the single wiring point
// for the application.
func Run(ctx context.Context, lg *zap.Logger, m *app.Telemetry, cfg *Config) error {
	lg.Info("Initializing", zap.String("addr", cfg.Addr))

	// PostgreSQL pool + migrations.
	pool, err := postgres.NewPool(ctx, cfg.DatabaseURL)
	if err != nil {
		return errors.Wrap(err, "create db pool")
	}
	defer pool.Close()

	if err := postgres.RunMigrations(ctx, pool); err != nil {
		return errors.Wrap(err, "run migrations")
	}

	// Repositories.
	productRepo := postgres.NewProductRepository(pool)
	couponRepo := postgres.NewCouponRepository(pool)
	orderRepo := postgres.NewOrderRepository(pool)
	blacklistRepo := postgres.NewBlacklistRepository(pool)
	customerRepo := postgres.NewCustomerRepository(pool)
	invStore := postgres.NewInventoryStore(pool)
	outboxStore := postgres.NewOutboxStore(pool)

	// Domain services.
	gate, err := blacklist.NewGate(ctx, blacklistRepo)
	if err != nil {
		return errors.Wrap(err, "seed blacklist gate")
	}
	validator := coupon.NewValidator(couponRepo, orderRepo)
	ledger := inventory.NewLedger(invStore)
	relay := outbox.NewRelay(outboxStore)

	var courierClient order.CourierClient = unconfiguredCourier{}
	if cfg.Courier.BaseURL != "" {
		courierClient = courier.NewClient(courier.Config{
			BaseURL:   cfg.Courier.BaseURL,
			APIKey:    cfg.Courier.APIKey,
			SecretKey: cfg.Courier.SecretKey,
			Timeout:   cfg.Courier.Timeout,
		})
	}

	orderService := order.NewService(
		gate,
		productRepo,
		validator,
		ledger,
		orderRepo,
		courierClient,
		relay,
	)

	// Outbox dispatcher for order side effects.
	dispatcher := outbox.NewDispatcher(outboxStore, lg.Named("outbox"))
	dispatcher.Handle(outbox.TopicCouponRedeem, outbox.CouponRedeemHandler(couponRepo))
	dispatcher.Handle(outbox.TopicCustomerRecord, outbox.CustomerRecordHandler(customer.NewAggregator(customerRepo)))

	// Health check service.
	healthSvc := health.New()
	healthSvc.AddReadinessCheck("postgres", 5*time.Second, health.DatabasePingCheck(pool))
	healthSvc.AddReadinessCheck("outbox", time.Second, health.StalenessCheck(dispatcher.LastPoll, cfg.Outbox.StaleAfter))
	healthSvc.AddLivenessCheck("goroutines", time.Second, health.GoroutineCountCheck(10000))
	healthSvc.Start(ctx, 10*time.Second)

	// Mux: health endpoints + API routes on one server.
	h := handler.NewHandler(orderService, productRepo, validator, gate)
	mux := http.NewServeMux()
	mux.HandleFunc("/livez", healthSvc.LiveEndpoint)
	mux.HandleFunc("/readyz", healthSvc.ReadyEndpoint)
	mux.Handle("/api/", otelhttp.NewHandler(h.Routes(), "rodela-api",
		otelhttp.WithTracerProvider(m.TracerProvider()),
		otelhttp.WithMeterProvider(m.MeterProvider()),
	))

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
				AllowOrigins: cfg.CORS.Origins,
				AllowHeaders: []string{"Content-Type", "Authorization"},
			}),
			httpmiddleware.RateLimit(httpmiddleware.RateLimitConfig{
				Max:    cfg.RateLimit.Max,
				Window: cfg.RateLimit.Window,
			}),
			httpmiddleware.RequestID(),
			httpmiddleware.InjectLogger(zctx.From(ctx)),
			httpmiddleware.LogRequests(),
		),
	}

	g, gCtx := errgroup.WithContext(ctx)

	g.Go(func() error {
		return dispatcher.Run(gCtx)
	})

	g.Go(func() error {
		// Graceful shutdown: drain readiness, wait, then stop the server.
		<-gCtx.Done()
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
		return nil
	})

	g.Go(func() error {
		healthSvc.SetReady(true)
		lg.Info("Server listening", zap.String("addr", cfg.Addr))
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return errors.Wrap(err, "server")
		}
		return nil
	})

	if err := g.Wait(); err != nil && !errors.Is(err, context.Canceled) {
		return err
	}
	return nil
}
