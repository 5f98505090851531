package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"github.com/patrickmn/go-cache"
	"github.com/username/folioledger/backend/src/config"
	"github.com/username/folioledger/backend/src/database"
	"github.com/username/folioledger/backend/src/handlers"
	"github.com/username/folioledger/backend/src/logger"
	"github.com/username/folioledger/backend/src/parsers"
	"github.com/username/folioledger/backend/src/processors"
	"github.com/username/folioledger/backend/src/scheduler"
	"github.com/username/folioledger/backend/src/services"
	"github.com/username/folioledger/backend/src/utils"
	"golang.org/x/time/rate"
)

type application struct {
	portfolioService services.PortfolioService
	uploadService    services.UploadService
	manager          services.PortfolioManager
	maxUploadBytes   int64
	limiter          *rate.Limiter
	allowedOrigins   []string
}

func newRouter(app application) http.Handler {
	portfolioHandler := handlers.NewPortfolioHandler(app.portfolioService)
	uploadHandler := handlers.NewUploadHandler(app.uploadService, app.maxUploadBytes)
	dividendHandler := handlers.NewDividendHandler(app.portfolioService)
	txHandler := handlers.NewTransactionHandler(app.portfolioService)
	feeHandler := handlers.NewFeeHandler(app.portfolioService)
	pfManagerHandler := handlers.NewPortfolioManagerHandler(app.manager)

	r := chi.NewRouter()

	r.Use(middleware.Recoverer)
	r.Use(middleware.RealIP)
	r.Use(handlers.ContextualLoggerMiddleware)
	r.Use(cors.Handler(cors.Options{
		AllowedOrigins:   app.allowedOrigins,
		AllowedMethods:   []string{"GET", "POST", "PUT", "DELETE", "OPTIONS"},
		AllowedHeaders:   []string{"Accept", "Content-Type", "Content-Length", "If-None-Match", handlers.RequestIDHeader},
		ExposedHeaders:   []string{"ETag", handlers.RequestIDHeader},
		AllowCredentials: false,
		MaxAge:           300,
	}))
	r.Use(handlers.RateLimitMiddleware(app.limiter))

	r.Get("/", func(w http.ResponseWriter, r *http.Request) {
		utils.WriteJSON(w, http.StatusOK, map[string]any{
			"message": "FolioLedger backend is running",
			"sources": parsers.Sources(),
		})
	})

	r.Route("/api/portfolios", func(r chi.Router) {
		r.Get("/", pfManagerHandler.ListPortfolios)
		r.Post("/", pfManagerHandler.CreatePortfolio)

		r.Route("/{id}", func(r chi.Router) {
			r.Get("/", pfManagerHandler.GetPortfolio)
			r.Delete("/", pfManagerHandler.DeletePortfolio)

			r.Post("/upload", uploadHandler.HandleUpload)
			r.Get("/uploads", uploadHandler.HandleGetUploadHistory)
			r.Get("/transactions", txHandler.HandleGetTransactions)
			r.Post("/transactions", txHandler.HandleAddTransactions)

			r.Get("/holdings", portfolioHandler.HandleGetHoldings)
			r.Get("/gain-loss", portfolioHandler.HandleGetGainLoss)
			r.Get("/allocation", portfolioHandler.HandleGetAllocation)
			r.Get("/performance", portfolioHandler.HandleGetPerformance)
			r.Get("/annual-returns", portfolioHandler.HandleGetAnnualReturns)
			r.Get("/rebalance", portfolioHandler.HandleGetRebalance)
			r.Get("/settings", portfolioHandler.HandleGetSettings)
			r.Put("/settings", portfolioHandler.HandlePutSettings)
			r.Get("/dividends", dividendHandler.HandleGetDividendSummary)
			r.Get("/fees", feeHandler.HandleGetFeeDetails)
		})
	})

	r.NotFound(func(w http.ResponseWriter, r *http.Request) {
		if strings.HasPrefix(r.URL.Path, "/api/") {
			utils.SendJSONError(w, "Not found", http.StatusNotFound)
			return
		}
		http.NotFound(w, r)
	})
	return r
}

func main() {
	config.LoadConfig()
	cfg := config.Cfg
	logger.InitLogger(cfg.LogLevel)

	logger.L.Info("FolioLedger backend server starting...")

	logger.L.Info("Initializing database...", "path", cfg.DatabasePath)
	database.InitDB(cfg.DatabasePath)
	if err := database.RunMigrations(database.DB); err != nil {
		logger.L.Error("Database migration failed", "error", err)
		os.Exit(1)
	}
	defer database.DB.Close()

	processors.ECBBaseURL = cfg.ECBBaseURL
	reportCache := cache.New(services.DefaultCacheExpiration, services.CacheCleanupInterval)

	priceService := services.NewPriceService(database.DB,
		services.DefaultPriceServiceConfig(cfg.YahooBaseURL, cfg.BaseCurrency, cfg.PriceRequestTimeout))
	transactionProcessor := processors.NewTransactionProcessor()

	portfolioService := services.NewPortfolioService(
		transactionProcessor,
		processors.NewLedgerProcessor(),
		processors.NewGainLossProcessor(),
		processors.NewValuationProcessor(),
		processors.NewPerformanceProcessor(),
		processors.NewRiskProcessor(cfg.RiskFreeRate),
		processors.NewRebalanceProcessor(cfg.RebalanceMinTradeValue),
		processors.NewDividendProcessor(),
		processors.NewFeeProcessor(),
		services.NewTransactionStore(database.DB),
		services.NewSettingsStore(database.DB),
		priceService,
		reportCache,
		cfg.ReportCacheTTL,
	)
	uploadService := services.NewUploadService(database.DB, transactionProcessor, portfolioService)
	manager := services.NewPortfolioManager(database.DB, portfolioService)

	jobs := scheduler.New()
	if cfg.PriceRefreshSchedule != "" {
		job := scheduler.NewPriceRefreshJob(database.DB, priceService, portfolioService, 10*time.Minute)
		if err := jobs.AddJob(cfg.PriceRefreshSchedule, job); err != nil {
			logger.L.Error("Invalid price refresh schedule", "schedule", cfg.PriceRefreshSchedule, "error", err)
			os.Exit(1)
		}
	}
	jobs.Start()
	defer jobs.Stop()

	router := newRouter(application{
		portfolioService: portfolioService,
		uploadService:    uploadService,
		manager:          manager,
		maxUploadBytes:   cfg.MaxUploadSizeBytes,
		limiter:          rate.NewLimiter(rate.Limit(cfg.RateLimitRPS), cfg.RateLimitBurst),
		allowedOrigins:   cfg.AllowedOrigins,
	})

	serverAddr := ":" + cfg.Port
	server := &http.Server{
		Addr:         serverAddr,
		Handler:      router,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 60 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	go func() {
		logger.L.Info("Server starting", "address", serverAddr)
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.L.Error("Failed to start server", "error", err)
			stop()
		}
	}()

	<-ctx.Done()
	logger.L.Info("Shutting down server...")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := server.Shutdown(shutdownCtx); err != nil {
		logger.L.Error("Graceful shutdown failed", "error", err)
	}
}
