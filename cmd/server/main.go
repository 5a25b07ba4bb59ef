package main

import (
	"context"
	"encoding/json"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"github.com/spf13/viper"
	httpSwagger "github.com/swaggo/http-swagger"
	"go.uber.org/zap"

	"github.com/learnhub/backend/docs"
	"github.com/learnhub/backend/internal/config"
	"github.com/learnhub/backend/internal/database"
	"github.com/learnhub/backend/internal/events"
	"github.com/learnhub/backend/internal/handlers"
	mW "github.com/learnhub/backend/internal/middleware"
	"github.com/learnhub/backend/internal/queue"
	"github.com/learnhub/backend/internal/services"
)

// @title LearnHub Backend API
// @version 1.0
// @description Course marketplace backend: catalog, wallet purchases and notifications
// @host localhost:8080
// @BasePath /api/v1
// @schemes http https
// @securityDefinitions.apikey BearerAuth
// @in header
// @name Authorization

func main() {
	logger, err := zap.NewProduction()
	if err != nil {
		panic(err)
	}
	defer logger.Sync()
	zap.ReplaceGlobals(logger)

	// Initialize config
	viper.SetConfigFile(".env") // explicitly point to .env file
	viper.AutomaticEnv()        // allow environment variables to override .env

	viper.BindEnv("database.host", "DATABASE_HOST")
	viper.BindEnv("database.port", "DATABASE_PORT")
	viper.BindEnv("database.user", "DATABASE_USER")
	viper.BindEnv("database.password", "DATABASE_PASSWORD")
	viper.BindEnv("database.name", "DATABASE_NAME")
	viper.BindEnv("database.ssl_mode", "DATABASE_SSL_MODE")

	viper.BindEnv("redis.host", "REDIS_HOST")
	viper.BindEnv("redis.port", "REDIS_PORT")
	viper.BindEnv("redis.password", "REDIS_PASSWORD")
	viper.BindEnv("redis.db", "REDIS_DB")

	viper.BindEnv("jwt.secret_key", "JWT_SECRET_KEY")
	viper.BindEnv("jwt.expiry_hours", "JWT_EXPIRY_HOURS")
	viper.BindEnv("argon2.time", "ARGON2_TIME")
	viper.BindEnv("argon2.memory", "ARGON2_MEMORY")
	viper.BindEnv("argon2.threads", "ARGON2_THREADS")
	viper.BindEnv("argon2.key_length", "ARGON2_KEY_LENGTH")
	viper.BindEnv("argon2.salt_length", "ARGON2_SALT_LENGTH")

	viper.SetDefault("jwt.expiry_hours", 24)
	viper.SetDefault("argon2.time", 1)
	viper.SetDefault("argon2.memory", 64*1024)
	viper.SetDefault("argon2.threads", 4)
	viper.SetDefault("argon2.key_length", 32)
	viper.SetDefault("argon2.salt_length", 16)

	if err := viper.ReadInConfig(); err != nil {
		zap.L().Info("config file not found, using defaults", zap.Error(err))
	}

	docs.SwaggerInfo.Host = "localhost:8080"
	docs.SwaggerInfo.BasePath = "/api/v1"

	// Initialize infrastructure
	db := database.InitDatabase()
	defer db.Close()

	redisClient := database.InitRedis()
	if redisClient != nil {
		defer redisClient.Close()
	}

	notifCfg := config.LoadNotificationConfig()

	// Event bus and notification queue: the purchase flow publishes a
	// completed event; the subscriber enqueues an email job; the worker
	// drains the queue in the background.
	bus := events.NewBus()
	var notificationQueue, mediaQueue *queue.Queue
	if redisClient != nil {
		notificationQueue = queue.New(redisClient, notifCfg.QueueName)
		mediaQueue = queue.New(redisClient, notifCfg.MediaQueueName)
	}

	notificationService := services.NewNotificationService(db, notificationQueue)
	bus.Subscribe(events.TopicPurchaseCompleted, notificationService.HandlePurchaseCompleted)

	mediaService := services.NewMediaService(db, mediaQueue)
	bus.Subscribe(events.TopicLessonVideoUploaded, mediaService.HandleLessonVideoUploaded)

	workerCtx, stopWorker := context.WithCancel(context.Background())
	defer stopWorker()
	if redisClient != nil {
		notifWorker := queue.NewWorker(notificationQueue, notifCfg.PollTimeout)
		notifWorker.Register(services.JobSendPurchaseEmail, notificationService.ProcessPurchaseEmail)
		go notifWorker.Run(workerCtx)

		mediaWorker := queue.NewWorker(mediaQueue, notifCfg.PollTimeout)
		mediaWorker.Register(services.JobCompressVideo, mediaService.ProcessCompressVideo)
		go mediaWorker.Run(workerCtx)
	} else {
		zap.L().Warn("redis unavailable, notification and media processing disabled")
	}

	// Initialize services
	authService := services.NewAuthService(db, redisClient)
	courseService := services.NewCourseService(db, redisClient)
	lessonService := services.NewLessonService(db, bus)
	walletService := services.NewWalletService(db)
	adminService := services.NewAdminService(db)
	orderService := services.NewOrderService(db, bus)
	orderHandler := handlers.NewOrderHandler(orderService)

	// Initialize auth middleware with Redis
	mW.InitAuthMiddleware(redisClient)

	// Setup router
	r := chi.NewRouter()

	// Middleware
	r.Use(mW.SecurityHeaders)
	r.Use(middleware.Logger)
	r.Use(middleware.Recoverer)
	r.Use(middleware.RealIP)
	r.Use(middleware.Timeout(60 * time.Second))

	// CORS
	r.Use(cors.Handler(cors.Options{
		AllowedOrigins:   []string{"https://*", "http://*"},
		AllowedMethods:   []string{"GET", "POST", "PUT", "DELETE", "OPTIONS"},
		AllowedHeaders:   []string{"Accept", "Authorization", "Content-Type"},
		ExposedHeaders:   []string{"Link"},
		AllowCredentials: true,
		MaxAge:           86400,
	}))

	// Health check
	r.Get("/health", func(w http.ResponseWriter, r *http.Request) {
		json.NewEncoder(w).Encode(map[string]string{"status": "healthy"})
	})

	// Swagger documentation
	r.Get("/swagger/*", httpSwagger.Handler(
		httpSwagger.URL("http://localhost:8080/swagger/doc.json"),
	))

	// Static file server for course covers
	r.Handle("/static/course-covers/*", http.StripPrefix("/static/course-covers/",
		mW.StaticFileServer("./static/course-covers")))

	// API routes
	r.Route("/api/v1", func(r chi.Router) {
		// Public endpoints (no auth required)
		r.Post("/auth/register", authService.Register)
		r.Post("/auth/login", authService.Login)
		r.Post("/auth/logout", authService.Logout)
		r.Get("/courses", courseService.ListPublished)
		// Optional auth: drafts are visible to their owner and admins.
		r.With(mW.OptionalAuth).Get("/courses/{courseId}", courseService.GetCourse)

		// Protected endpoints (auth required)
		r.Group(func(r chi.Router) {
			r.Use(mW.AuthMiddleware)

			r.Get("/auth/account", authService.GetUserAccount)
			r.Get("/wallet", walletService.GetWallet)
			r.Get("/my-courses", walletService.ListMyCourses)
			r.Get("/courses/{courseId}/lessons", lessonService.ListByCourse)

			// Purchase entry point
			r.Post("/orders/purchase", orderHandler.Purchase)

			// Instructor endpoints
			r.Group(func(r chi.Router) {
				r.Use(mW.RequireRole("INSTRUCTOR", "ADMIN"))

				r.Get("/instructor/courses", courseService.ListMine)
				r.Post("/courses", courseService.CreateCourse)
				r.Put("/courses/{courseId}", courseService.UpdateCourse)
				r.Delete("/courses/{courseId}", courseService.DeleteCourse)
				r.Post("/courses/{courseId}/publish", courseService.PublishCourse)
				r.Post("/courses/{courseId}/lessons", lessonService.CreateLesson)
				r.Put("/lessons/{lessonId}", lessonService.UpdateLesson)
			})

			// Admin endpoints
			r.Group(func(r chi.Router) {
				r.Use(mW.RequireRole("ADMIN"))

				r.Get("/admin/revenue", adminService.GetRevenue)
				r.Post("/admin/wallets/{userId}/topup", walletService.TopUp)
			})
		})
	})

	port := os.Getenv("PORT")
	if port == "" {
		port = "8080"
	}

	// Start server
	server := &http.Server{
		Addr:         ":" + port,
		Handler:      r,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 15 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	// Graceful shutdown
	go func() {
		zap.L().Info("server starting", zap.String("port", port))
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			zap.L().Fatal("server failed", zap.Error(err))
		}
	}()

	// Wait for interrupt signal
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	zap.L().Info("server shutting down")
	stopWorker()

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	if err := server.Shutdown(ctx); err != nil {
		zap.L().Fatal("server forced to shutdown", zap.Error(err))
	}

	zap.L().Info("server stopped")
}
