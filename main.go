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

	"riderx/config"
	"riderx/controllers"
	"riderx/database"
	"riderx/messaging"
	"riderx/middleware"
	"riderx/repositories"
	"riderx/routes"
	"riderx/services"
	"riderx/utils"
	"riderx/websocket"
	"riderx/workers"

	"github.com/gin-gonic/gin"
	"github.com/go-redis/redis/v8"
	"github.com/joho/godotenv"
	"github.com/sirupsen/logrus"
)

type stores struct {
	reports  repositories.CrashReportStore
	contacts repositories.ContactStore
	rides    repositories.RideStore
}

func main() {
	// Load environment variables
	if err := godotenv.Load(); err != nil {
		log.Println("No .env file found")
	}

	cfg := config.Load()

	if cfg.Environment == "production" {
		gin.SetMode(gin.ReleaseMode)
	}

	setupLogger(cfg)

	healthChecks := map[string]controllers.HealthCheck{}

	// Initialize storage
	st := initStores(cfg, healthChecks)
	defer database.Disconnect()

	// Initialize Redis
	redisClient := initRedis(cfg, healthChecks)
	if redisClient != nil {
		defer redisClient.Close()
	}

	var fuelStore services.FuelSettingsStore
	var snapshots services.SnapshotCache
	if redisClient != nil {
		fuelStore = repositories.NewFuelSettingsRepository(redisClient)
		snapshots = repositories.NewRideSnapshotCache(redisClient, repositories.DefaultSnapshotTTL)
	}

	// Initialize WebSocket hub and event publishers
	hub := websocket.NewHub(nil)
	publishers := services.MultiPublisher{hub}

	if cfg.RabbitMQURL != "" {
		rabbit, err := messaging.NewConnection(cfg.RabbitMQURL)
		if err != nil {
			logrus.Errorf("RabbitMQ unavailable, events stay local: %v", err)
		} else {
			defer rabbit.Close()
			publishers = append(publishers, messaging.NewEventPublisher(rabbit))
			healthChecks["rabbitmq"] = func(context.Context) error {
				if !rabbit.IsConnected() {
					return errDisconnected
				}
				return nil
			}
		}
	}

	// Initialize services
	rideService := services.NewRideService(st.rides, fuelStore, snapshots, publishers, cfg.AlertPolicy())
	hub.SetFixHandler(rideService)
	go hub.Run()
	defer hub.Shutdown()

	dispatcher := services.NewNotificationDispatcher(
		cfg.InitEmailSender(),
		cfg.InitSMSSender(),
		st.reports,
		cfg.DispatcherConfig(),
	)
	dispatcher.OnContactNotified(hub.NotifyContactReached)

	emergencyService := services.NewEmergencyService(st.reports, st.contacts, dispatcher, rideService, publishers, cfg.NotifyTimeout)

	// Initialize workers
	notificationWorker := workers.NewNotificationWorker(emergencyService, workers.DefaultNotificationWorkerConfig())
	if err := notificationWorker.Start(); err != nil {
		logrus.Fatal("Failed to start notification worker: ", err)
	}
	cleanupWorker := workers.NewCleanupWorker(rideService, workers.DefaultCleanupWorkerConfig())
	cleanupWorker.Start()

	// Setup routes
	authMiddleware := middleware.NewAuthMiddleware(utils.NewJWTService(cfg.JWTSecret, cfg.JWTTTL))
	router := routes.SetupRoutes(&routes.Controllers{
		Ride:      controllers.NewRideController(rideService),
		Emergency: controllers.NewEmergencyController(emergencyService, notificationWorker),
		WebSocket: controllers.NewWebSocketController(hub, authMiddleware),
		Health:    controllers.NewHealthController(healthChecks),
	}, authMiddleware, routes.Options{
		Environment:      cfg.Environment,
		Redis:            redisClient,
		RateLimitRequest: cfg.RateLimitRequest,
		RateLimitWindow:  cfg.RateLimitWindow,
	})

	server := &http.Server{
		Addr:           ":" + cfg.Port,
		Handler:        router,
		ReadTimeout:    15 * time.Second,
		WriteTimeout:   15 * time.Second,
		IdleTimeout:    60 * time.Second,
		MaxHeaderBytes: 1 << 20,
	}

	go func() {
		logrus.Info("RiderX server starting on port ", cfg.Port)
		logrus.Info("WebSocket endpoint: /ws")
		logrus.Info("Health Check: /health")

		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logrus.Fatal("Failed to start server: ", err)
		}
	}()

	// Graceful shutdown
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	logrus.Info("Shutting down server...")

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	if err := server.Shutdown(ctx); err != nil {
		logrus.Error("Server forced to shutdown: ", err)
	}

	cleanupWorker.Stop()
	notificationWorker.Stop()

	logrus.Info("Server shutdown complete")
}

var errDisconnected = errors.New("disconnected")

// initStores uses MongoDB when DATABASE_URL is set and in-memory stores
// otherwise.
func initStores(cfg *config.Config, checks map[string]controllers.HealthCheck) stores {
	if cfg.DatabaseURL == "" {
		logrus.Warn("DATABASE_URL not set, using in-memory storage")
		return stores{
			reports:  repositories.NewMemoryCrashReportStore(),
			contacts: repositories.NewMemoryContactStore(),
			rides:    repositories.NewMemoryRideStore(),
		}
	}

	db, err := database.Connect(cfg.DatabaseURL)
	if err != nil {
		logrus.Fatal("Failed to connect to database: ", err)
	}
	checks["mongodb"] = func(context.Context) error {
		if !database.IsConnected() {
			return errDisconnected
		}
		return nil
	}

	return stores{
		reports:  repositories.NewMongoCrashReportRepository(db),
		contacts: repositories.NewMongoContactRepository(db),
		rides:    repositories.NewMongoRideRepository(db),
	}
}

func initRedis(cfg *config.Config, checks map[string]controllers.HealthCheck) *redis.Client {
	client := config.InitRedis(cfg)

	ctx, cancel := context.WithTimeout(context.Background(), 3*time.Second)
	defer cancel()
	if err := client.Ping(ctx).Err(); err != nil {
		logrus.Warnf("Redis unavailable, fuel settings use defaults and rate limiting is off: %v", err)
		client.Close()
		return nil
	}

	checks["redis"] = func(ctx context.Context) error {
		return client.Ping(ctx).Err()
	}
	return client
}

func setupLogger(cfg *config.Config) {
	logrus.SetFormatter(&logrus.JSONFormatter{})

	if cfg.Environment == "development" {
		logrus.SetFormatter(&logrus.TextFormatter{
			FullTimestamp: true,
			ForceColors:   true,
		})
		logrus.SetLevel(logrus.DebugLevel)
	} else {
		logrus.SetLevel(logrus.InfoLevel)
	}
}
