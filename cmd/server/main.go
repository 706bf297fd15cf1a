package main

import (
	"context"
	"encoding/json"
	"errors"
	"log"
	"net/http"
	"os/signal"
	"syscall"
	"time"

	"github.com/eventpass/cashless/docs"
	"github.com/eventpass/cashless/internal/audit"
	"github.com/eventpass/cashless/internal/config"
	"github.com/eventpass/cashless/internal/database"
	"github.com/eventpass/cashless/internal/events"
	"github.com/eventpass/cashless/internal/handlers"
	"github.com/eventpass/cashless/internal/metrics"
	mW "github.com/eventpass/cashless/internal/middleware"
	"github.com/eventpass/cashless/internal/services"
	"github.com/eventpass/cashless/internal/store"
	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	httpSwagger "github.com/swaggo/http-swagger"
	"golang.org/x/sync/errgroup"
)

// @title Cashless Ledger API
// @version 1.0
// @description Wristband and wallet ledger for event cashless payments
// @host localhost:8080
// @BasePath /api/v1
// @schemes http https
// @securityDefinitions.apikey BearerAuth
// @in header
// @name Authorization

func main() {
	config.LoadEnv()

	ledgerCfg, err := config.LoadLedgerConfig()
	if err != nil {
		log.Fatalf("Invalid ledger configuration: %v", err)
	}
	gatewayCfg := config.LoadGatewayConfig()

	docs.SwaggerInfo.Host = "localhost:" + gatewayCfg.Port
	docs.SwaggerInfo.BasePath = "/api/v1"

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	// Ledger store
	var st store.Store
	switch gatewayCfg.StoreBackend {
	case "memory":
		log.Println("Using in-memory ledger store; balances are lost on restart")
		st = store.NewMemoryStore()
	case "postgres":
		db := database.InitDatabase()
		defer db.Close()
		st = store.NewPostgresStore(db)
	default:
		log.Fatalf("Unknown store backend %q", gatewayCfg.StoreBackend)
	}

	if p, ok := st.(store.Provisioner); ok && len(gatewayCfg.SeedInventory) > 0 {
		added, err := p.ProvisionInventory(ctx, gatewayCfg.SeedInventory...)
		if err != nil {
			log.Fatalf("Failed to seed inventory: %v", err)
		}
		log.Printf("Seeded %d wristband serials", added)
	}

	redisClient := database.InitRedis()
	if redisClient != nil {
		defer redisClient.Close()
	}
	mW.InitAuthMiddleware(redisClient)

	metricsCollector := metrics.NewMetricsCollector()

	nc, err := events.Connect(gatewayCfg.NATSURL)
	if err != nil {
		log.Fatalf("Failed to connect to NATS: %v", err)
	}
	var publisher services.Publisher = events.NoopPublisher{}
	if nc != nil {
		defer nc.Drain()
		publisher = events.NewNATSPublisher(nc)
	} else {
		log.Println("NATS not configured, committed events will not be published")
	}

	ledger := services.NewLedgerService(st, ledgerCfg,
		services.WithPublisher(publisher),
		services.WithRecorder(metricsCollector),
		services.WithAuditLogger(audit.NewAuditLogger()),
	)
	qrService := services.NewQRService(ledger, redisClient)

	ledgerHandler := handlers.NewLedgerHandler(ledger)
	qrHandler := handlers.NewQRHandler(qrService)

	// Setup router
	r := chi.NewRouter()

	r.Use(mW.SecurityHeaders)
	r.Use(middleware.Logger)
	r.Use(middleware.Recoverer)
	r.Use(middleware.RealIP)
	r.Use(middleware.Timeout(gatewayCfg.RequestTimeout))
	r.Use(metricsCollector.Instrument)

	r.Use(cors.Handler(cors.Options{
		AllowedOrigins:   gatewayCfg.AllowedOrigins,
		AllowedMethods:   []string{"GET", "POST", "OPTIONS"},
		AllowedHeaders:   []string{"Accept", "Authorization", "Content-Type", "Idempotency-Key"},
		ExposedHeaders:   []string{"Retry-After"},
		AllowCredentials: true,
		MaxAge:           86400,
	}))

	r.Get("/health", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		json.NewEncoder(w).Encode(map[string]string{"status": "healthy"})
	})

	r.Get("/swagger/*", httpSwagger.Handler(
		httpSwagger.URL("/swagger/doc.json"),
	))

	r.Route("/api/v1", func(r chi.Router) {
		handlers.MountAPI(r, ledgerHandler, qrHandler, handlers.RouteOptions{
			RateLimitRequests: int(gatewayCfg.RateLimitRequests),
			RateLimitWindow:   gatewayCfg.RateLimitWindow,
		})
	})

	server := &http.Server{
		Addr:         ":" + gatewayCfg.Port,
		Handler:      r,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: gatewayCfg.RequestTimeout + 5*time.Second,
		IdleTimeout:  60 * time.Second,
	}
	metricsServer := metricsCollector.NewMetricsServer(gatewayCfg.MetricsAddr)

	g, gctx := errgroup.WithContext(ctx)

	g.Go(func() error {
		log.Printf("Server starting on %s", server.Addr)
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	})

	g.Go(func() error {
		log.Printf("Metrics server starting on %s", metricsServer.Addr)
		if err := metricsServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	})

	if nc != nil {
		worker := events.NewReconcileWorker(nc, ledger, metricsCollector)
		g.Go(func() error {
			return worker.Start(gctx)
		})
	}

	g.Go(func() error {
		<-gctx.Done()
		log.Println("Server shutting down...")

		shutdownCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
		defer cancel()

		if err := metricsServer.Shutdown(shutdownCtx); err != nil {
			log.Printf("Metrics server shutdown: %v", err)
		}
		return server.Shutdown(shutdownCtx)
	})

	if err := g.Wait(); err != nil {
		log.Fatalf("Server stopped with error: %v", err)
	}

	log.Println("Server stopped")
}
