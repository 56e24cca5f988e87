package main

import (
	"context"
	"fmt"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"groupbuy-service/config"
	"groupbuy-service/internal/api"
	"groupbuy-service/internal/broker"
	"groupbuy-service/internal/redisclient"
	"groupbuy-service/internal/service"
	"groupbuy-service/internal/store"
	"groupbuy-service/internal/util"
	"groupbuy-service/internal/worker"

	"github.com/gin-gonic/gin"
)

func main() {

	cfg := config.Load()

	if err := util.InitLogger(cfg.Server.Env); err != nil {
		log.Fatalf("Failed to initialize logger: %v", err)
	}
	defer util.SyncLogger()

	logger := util.GetLogger()
	logger.Info("Starting groupbuy service")

	tp, err := util.InitTracer("groupbuy-service", cfg.Observ.JaegerEndpoint)
	if err != nil {
		log.Fatalf("Failed to initialize tracer: %v", err)
	}
	defer func() {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := tp.Shutdown(ctx); err != nil {
			log.Printf("Error shutting down tracer: %v", err)
		}
	}()

	db, err := store.NewStore(cfg.Database.URL)
	if err != nil {
		log.Fatalf("Failed to connect to database: %v", err)
	}
	defer db.Close()
	log.Println("Database connected")

	redisClient, err := redisclient.NewClient(cfg.Redis.Addr, cfg.Redis.Password, cfg.Redis.DB)
	if err != nil {
		log.Fatalf("Failed to connect to Redis: %v", err)
	}
	defer redisClient.Close()
	log.Println("Redis connected")

	producer := broker.NewProducer(cfg.Kafka.Brokers, cfg.Kafka.TopicEvents)
	defer producer.Close()
	log.Println("Kafka producer initialized")

	eventPublisher := broker.NewEventPublisher(producer)

	campaignService := service.NewCampaignService(
		db, db, db, redisClient, eventPublisher, cfg.Business.GracePeriod)
	pledgeService := service.NewPledgeService(db, db, db, eventPublisher)
	paymentService := service.NewPaymentService(db, db, eventPublisher, cfg.Business.PaymentRetryCap)

	workerCtx, workerCancel := context.WithCancel(context.Background())
	defer workerCancel()

	gatewayConsumer := broker.NewConsumer(cfg.Kafka.Brokers, cfg.Kafka.TopicGateway, cfg.Kafka.ConsumerGroup)
	gatewayWorker := worker.NewGatewayWorker(gatewayConsumer, paymentService)
	go func() {
		if err := gatewayWorker.Start(workerCtx); err != nil {
			log.Printf("Gateway worker error: %v", err)
		}
	}()

	scheduler := worker.NewScheduler(campaignService, paymentService, redisClient, cfg.Business.SchedulerInterval)
	go func() {
		if err := scheduler.Start(workerCtx); err != nil {
			log.Printf("Scheduler error: %v", err)
		}
	}()

	if cfg.Server.Env == "production" {
		gin.SetMode(gin.ReleaseMode)
	}

	router := gin.Default()
	handler := api.NewHandler(campaignService, pledgeService, paymentService)
	handler.SetupRoutes(router)

	srv := &http.Server{
		Addr:    fmt.Sprintf(":%s", cfg.Server.Port),
		Handler: router,
	}

	go func() {
		log.Printf("Starting HTTP server on port %s", cfg.Server.Port)
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatalf("Failed to start server: %v", err)
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	log.Println("Shutting down server...")

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer shutdownCancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		log.Printf("Server forced to shutdown: %v", err)
	}

	workerCancel()
	gatewayWorker.Stop()

	log.Println("Server exited")
}
