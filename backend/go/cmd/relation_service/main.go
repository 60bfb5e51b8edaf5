package main

import (
	"Recall_1.0/backend/go/internal/config"
	kafkadb "Recall_1.0/backend/go/internal/database/kafka"
	mongodb "Recall_1.0/backend/go/internal/database/mongo"
	miniodb "Recall_1.0/backend/go/internal/database/minio"
	redisdb "Recall_1.0/backend/go/internal/database/redis"
	"Recall_1.0/backend/go/internal/relation_service/api"
	"Recall_1.0/backend/go/internal/relation_service/cache"
	"Recall_1.0/backend/go/internal/relation_service/events"
	"Recall_1.0/backend/go/internal/relation_service/service"
	"Recall_1.0/backend/go/internal/relation_service/store"
	"Recall_1.0/backend/go/pkg/logger"
	"fmt"
	"log"
	"time"

	"github.com/sirupsen/logrus"
)

func main() {
	// Load configuration
	cfg, err := config.LoadConfig("config.yaml")
	if err != nil {
		log.Fatalf("failed to load configuration: %v", err)
	}

	// Initialize logger
	level, err := logrus.ParseLevel(cfg.Logger.Level)
	if err != nil {
		level = logrus.InfoLevel
	}
	logger.Init(level)
	appLogger := logger.New("relation_service", "", "")

	appLogger.Info("Logger initialized")

	// Initialize database connection
	db, err := mongodb.GetDatabase(&cfg.Databases.MongoDB)
	if err != nil {
		appLogger.Fatal(err.Error())
	}
	appLogger.Info("Database connection established")

	userStore := store.NewMongoUserStore(db, cfg.Databases.MongoDB.Collection)
	health := map[string]api.HealthCheck{
		"mongodb": mongodb.HealthCheck,
	}

	// Optional components: each one is enabled only when configured.
	var opts []service.Option

	if cfg.Databases.Redis.Address != "" {
		redisClient, err := redisdb.GetClient(&cfg.Databases.Redis)
		if err != nil {
			appLogger.Fatal(err.Error())
		}
		ttl := time.Duration(cfg.Databases.Redis.TTL) * time.Second
		if ttl <= 0 {
			ttl = 5 * time.Minute
		}
		opts = append(opts, service.WithCache(cache.NewRedisDescriptorCache(redisClient, ttl)))
		health["redis"] = redisdb.HealthCheck
		appLogger.Info("Descriptor cache enabled")
	}

	if cfg.Databases.MinIO.Endpoint != "" {
		minioClient, err := miniodb.GetClient(&cfg.Databases.MinIO)
		if err != nil {
			appLogger.Fatal(err.Error())
		}
		opts = append(opts, service.WithPhotos(store.NewMinioPhotoStore(minioClient, cfg.Databases.MinIO.Bucket)))
		health["minio"] = miniodb.HealthCheck
		appLogger.Info("Photo storage enabled")
	}

	if len(cfg.Databases.Kafka.Brokers) > 0 {
		kafkaClient, err := kafkadb.GetClient(&cfg.Databases.Kafka)
		if err != nil {
			appLogger.Fatal(err.Error())
		}
		opts = append(opts, service.WithEvents(events.NewKafkaPublisher(kafkaClient)))
		appLogger.Info("Event publishing enabled")
	}

	// Initialize dependencies (Store -> Service -> Handler)
	svc := service.NewService(userStore, opts...)
	apiHandler := api.NewHandler(svc, health)
	appLogger.Info("Dependencies injected")

	// Setup and start Gin router
	router := api.SetupRouter(apiHandler, cfg)
	appLogger.Info("Router setup completed")

	port := cfg.Server.Port
	if port == 0 {
		port = 8080
	}
	serverAddress := fmt.Sprintf(":%d", port)
	appLogger.Info("Starting server on " + serverAddress)

	if err := router.Run(serverAddress); err != nil {
		appLogger.Fatal(err.Error())
	}
}
