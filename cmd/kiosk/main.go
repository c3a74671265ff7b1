package main

import (
	"context"
	"database/sql"
	"log"
	"net/http"

	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	_ "github.com/lib/pq"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/redis/go-redis/v9"

	"github.com/cklob23/talus-sign-in-app-sub000/internal/adapters/device"
	"github.com/cklob23/talus-sign-in-app-sub000/internal/adapters/devicestore"
	"github.com/cklob23/talus-sign-in-app-sub000/internal/adapters/geocode"
	"github.com/cklob23/talus-sign-in-app-sub000/internal/adapters/handler"
	"github.com/cklob23/talus-sign-in-app-sub000/internal/adapters/messaging"
	"github.com/cklob23/talus-sign-in-app-sub000/internal/adapters/middleware"
	"github.com/cklob23/talus-sign-in-app-sub000/internal/adapters/photostore"
	"github.com/cklob23/talus-sign-in-app-sub000/internal/adapters/repository"
	"github.com/cklob23/talus-sign-in-app-sub000/internal/config"
	"github.com/cklob23/talus-sign-in-app-sub000/internal/core/services"
	"github.com/cklob23/talus-sign-in-app-sub000/internal/metrics"
)

func main() {

	cfg := config.Load()
	ctx := context.Background()

	db, err := sql.Open("postgres", cfg.DatabaseURL)
	if err != nil {
		log.Fatalf("failed to open database: %v", err)
	}
	defer db.Close()

	repo := repository.NewSQLRepository(db)

	redisClient := redis.NewClient(&redis.Options{
		Addr:     cfg.RedisAddress,
		Password: cfg.RedisPassword,
		DB:       0,
	})

	if err := redisClient.Ping(ctx).Err(); err != nil {
		log.Fatalf("failed to connect to redis: %v", err)
	}
	log.Println("Authenticated with Redis successfully")

	broker, err := messaging.NewRabbitMQBroker(cfg.RabbitMQURL, cfg.NoticeQueueName)
	if err != nil {
		log.Fatalf("failed to connect to RabbitMQ: %v", err)
	}
	defer broker.Close()

	awsCfg, err := awsconfig.LoadDefaultConfig(ctx)
	if err != nil {
		log.Fatalf("failed to load AWS config: %v", err)
	}
	photoStore := photostore.NewS3Store(s3.NewFromConfig(awsCfg), cfg.PhotoBucket, cfg.PhotoBaseURL)

	registry := prometheus.NewRegistry()
	kioskMetrics := metrics.New(registry)

	locator := device.NewReportedLocator()
	geocoder := geocode.NewNominatimGeocoder(cfg.GeocoderURL, "talus-sign-in-app")
	resolver := services.NewGeoResolver(locator, geocoder)
	printer := device.NewAgentPrinter(cfg.PrintAgentURL)
	rememberedStore := devicestore.NewRedisStore(redisClient)

	sessions := handler.NewSessionManager(func(deviceID string) *services.Session {
		return services.NewSession(deviceID, services.SessionDeps{
			Directory:  repo,
			Visitors:   repo,
			Training:   repo,
			SignIns:    repo,
			Bookings:   repo,
			Remembered: rememberedStore,
			Notices:    broker,
			Photos:     photoStore,
			Printer:    printer,
			Camera:     device.NewSpoolCamera(cfg.CameraSpoolDir),
			Resolver:   resolver,
			NewTicker:  services.NewRealTicker,
			Metrics:    kioskMetrics,
		})
	})

	deviceAuth := services.NewDeviceAuthService(repo, cfg.JWTPrivateKey)
	employeeOAuth := services.NewEmployeeOAuthService(
		cfg.OAuthClientID,
		cfg.OAuthClientSecret,
		cfg.OAuthRedirectURL,
		repo,
		cfg.JWTPrivateKey,
	)

	deviceMiddleware := middleware.NewDeviceAuthMiddleware(cfg.JWTPublicKey)

	kioskHandler := handler.NewKioskHandler(sessions, locator)
	authHandler := handler.NewAuthHandler(deviceAuth, employeeOAuth, sessions)
	healthHandler := handler.NewHealthHandler(db, redisClient, broker)

	mux := http.NewServeMux()

	// Health endpoints (OpenShift compatible)
	mux.HandleFunc("/health", healthHandler.Health)
	mux.HandleFunc("/health/ready", healthHandler.Ready)
	mux.HandleFunc("/health/live", healthHandler.Live)

	mux.Handle("/metrics", promhttp.HandlerFor(registry, promhttp.HandlerOpts{}))

	// Device unlock and the OAuth return leg run without a device token.
	mux.HandleFunc("/auth/unlock", authHandler.Unlock)
	mux.HandleFunc("/auth/employee/callback", authHandler.EmployeeCallback)
	mux.HandleFunc("/auth/employee/login", deviceMiddleware.RequireDevice(authHandler.EmployeeLogin))

	// Session workflow endpoints
	mux.HandleFunc("/session", deviceMiddleware.RequireDevice(kioskHandler.Snapshot))
	mux.HandleFunc("/session/location", deviceMiddleware.RequireDevice(kioskHandler.ReportLocation))
	mux.HandleFunc("/session/site", deviceMiddleware.RequireDevice(kioskHandler.SelectSite))
	mux.HandleFunc("/session/choose", deviceMiddleware.RequireDevice(kioskHandler.Choose))
	mux.HandleFunc("/session/sign-in", deviceMiddleware.RequireDevice(kioskHandler.SubmitSignIn))
	mux.HandleFunc("/session/training/start", deviceMiddleware.RequireDevice(kioskHandler.StartTraining))
	mux.HandleFunc("/session/training/bypass", deviceMiddleware.RequireDevice(kioskHandler.BypassTraining))
	mux.HandleFunc("/session/training/acknowledge", deviceMiddleware.RequireDevice(kioskHandler.AcknowledgeTraining))
	mux.HandleFunc("/session/training/complete", deviceMiddleware.RequireDevice(kioskHandler.CompleteTraining))
	mux.HandleFunc("/session/photo/preview", deviceMiddleware.RequireDevice(kioskHandler.PreviewFrame))
	mux.HandleFunc("/session/photo/capture", deviceMiddleware.RequireDevice(kioskHandler.CapturePhoto))
	mux.HandleFunc("/session/photo/retake", deviceMiddleware.RequireDevice(kioskHandler.RetakePhoto))
	mux.HandleFunc("/session/photo/retry", deviceMiddleware.RequireDevice(kioskHandler.RetryCamera))
	mux.HandleFunc("/session/commit", deviceMiddleware.RequireDevice(kioskHandler.Commit))
	mux.HandleFunc("/session/bookings/lookup", deviceMiddleware.RequireDevice(kioskHandler.LookupBookings))
	mux.HandleFunc("/session/bookings/select", deviceMiddleware.RequireDevice(kioskHandler.SelectBooking))
	mux.HandleFunc("/session/bookings/checkin", deviceMiddleware.RequireDevice(kioskHandler.CheckInBooking))
	mux.HandleFunc("/session/sign-out", deviceMiddleware.RequireDevice(kioskHandler.SubmitSignOut))
	mux.HandleFunc("/session/employee/sign-out", deviceMiddleware.RequireDevice(kioskHandler.EmployeeSignOut))
	mux.HandleFunc("/session/forget", deviceMiddleware.RequireDevice(kioskHandler.ForgetDevice))
	mux.HandleFunc("/session/back", deviceMiddleware.RequireDevice(kioskHandler.Back))
	mux.HandleFunc("/session/finish", deviceMiddleware.RequireDevice(kioskHandler.Finish))
	mux.HandleFunc("/session/reset", deviceMiddleware.RequireDevice(kioskHandler.Reset))

	cors := middleware.CORSMiddleware(cfg.AllowedOrigins)

	log.Printf("Starting server on :%s", cfg.Port)
	if err := http.ListenAndServe(":"+cfg.Port, cors(mux)); err != nil {
		log.Fatalf("Could not start server: %s\n", err)
	}
}
