package main

import (
	"context"
	"errors"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"payment-api/internal/api"
	"payment-api/internal/config"
	"payment-api/internal/database"
	"payment-api/internal/middleware"
	"payment-api/internal/services"
	"payment-api/pkg/logging"

	"github.com/gin-gonic/gin"
	"github.com/robfig/cron/v3"
	_ "go.uber.org/automaxprocs"
)

func main() {
	// Initialize configuration
	cfg, err := config.Load()
	if err != nil {
		log.Fatal("Failed to load config:", err)
	}
	if err := cfg.Validate(); err != nil {
		log.Fatal("Invalid config:", err)
	}

	// Initialize logging
	logging.InitLogging()

	// Initialize database
	db, err := database.Open(cfg)
	if err != nil {
		log.Fatal("Failed to initialize database:", err)
	}
	rdb, err := database.OpenRedis(cfg.RedisURL)
	if err != nil {
		log.Fatal("Failed to initialize Redis:", err)
	}
	defer database.Close(db, rdb)

	plans, err := services.LoadPlanCatalog(cfg.PlansFile)
	if err != nil {
		log.Fatal("Failed to load plans:", err)
	}

	orders := database.NewOrderStore(db)
	memberships := database.NewMembershipStore(db)

	var (
		locker services.OrderLocker
		replay services.ReplayGuard
		stats  func() map[string]interface{}
	)
	if rdb != nil {
		locker = services.NewRedisOrderLocker(rdb, cfg.OrderLockTTL)
		guard := services.NewRedisReplayGuard(rdb, cfg.ReplayTTL)
		replay, stats = guard, guard.Stats
	} else {
		locker = services.NewLocalOrderLocker()
		guard := services.NewMemoryReplayGuard(cfg.ReplayTTL)
		defer guard.Stop()
		replay, stats = guard, guard.Stats
	}

	var hooks []services.PaymentHook
	if cfg.BrevoAPIKey != "" && cfg.BrevoFromEmail != "" {
		hooks = append(hooks, services.NewBrevoReceiptMailer(cfg.BrevoAPIKey, cfg.BrevoFromEmail, cfg.BrevoFromName, ""))
	}
	if cfg.MembershipWebhookURL != "" {
		hooks = append(hooks, services.NewWebhookNotifier(cfg.MembershipWebhookURL, cfg.MembershipWebhookSecret))
	}

	gateway := services.NewZPayClient(cfg.GatewayURL, cfg.MerchantID, cfg.MerchantKey, cfg.NotifyURL, cfg.GatewayTimeout)
	membershipService := services.NewMembershipService(memberships)

	handler := api.NewHandler(api.Deps{
		Orders:      services.NewOrderService(orders, gateway, plans),
		Reconciler:  services.NewNotificationReconciler(orders, memberships, database.NewTxManager(db), locker, replay, cfg.MerchantKey, hooks...),
		Memberships: membershipService,
		Audio:       services.NewAudioAccessService(database.NewAudioStore(db), membershipService),
		Plans:       plans,
		Stats:       stats,
	})

	// Stale pending order sweep
	scheduler := cron.New()
	reporter := services.NewStaleOrderReporter(orders, cfg.StaleOrderAge)
	if _, err := scheduler.AddFunc(cfg.StaleOrderSchedule, reporter.Run); err != nil {
		log.Fatal("Invalid STALE_ORDER_SCHEDULE:", err)
	}
	scheduler.Start()

	// Set Gin mode
	gin.SetMode(cfg.Mode)

	r := gin.New()
	r.Use(gin.Recovery(), middleware.RequestLogger())
	api.SetupRoutes(r, handler, middleware.JWTAuth(cfg.JWTSecret, cfg.JWTAudience))

	srv := &http.Server{
		Addr:              ":" + cfg.Port,
		Handler:           r,
		ReadHeaderTimeout: 10 * time.Second,
	}

	go func() {
		logging.Infof("Starting server on port %s", cfg.Port)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Fatal("Failed to start server:", err)
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit
	logging.Infof("Shutting down server...")

	<-scheduler.Stop().Done()

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := srv.Shutdown(ctx); err != nil {
		logging.Errorf("Server forced to shutdown: %v", err)
	}
	logging.Infof("Server exited")
}
