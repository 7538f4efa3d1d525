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

	"github.com/gin-gonic/gin"
	"github.com/joho/godotenv"

	"refund-review-api/config"
	"refund-review-api/middleware"
	"refund-review-api/routes"
	"refund-review-api/services"
	"refund-review-api/store"
)

func main() {
	// Load .env file
	if err := godotenv.Load(); err != nil {
		log.Println("No .env file found, using environment variables")
	}

	closeLog := config.InitLogging()
	defer closeLog()

	// Initialize database
	config.InitDB()
	if err := store.Migrate(config.DB); err != nil {
		log.Fatal("Failed to migrate database:", err)
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	feed := openFeed(ctx)
	defer feed.Close()

	st := store.NewGormStore(config.DB, feed)

	enforcer, err := services.NewCapabilityEnforcer()
	if err != nil {
		log.Fatal("Failed to initialize capability enforcer:", err)
	}

	fanout := services.NewNotificationFanout(st, feed)
	if recipients := config.EscalationRecipients(); len(recipients) > 0 && config.MailConfigured() {
		fanout.WithEscalationMail(config.SendMail, recipients)
		log.Printf("Escalation letters will be mailed to %v", recipients)
	}
	reviews := services.NewReviewService(st, fanout)
	sessions := services.NewSessionRegistry(reviews)

	jwtSecret := os.Getenv("JWT_SECRET")
	if jwtSecret == "" {
		log.Println("Warning: JWT_SECRET is not set, every token will be rejected")
	}
	auth := services.NewAuthService(st, jwtSecret, time.Duration(config.EnvInt("JWT_EXPIRE_HOURS", 24))*time.Hour)

	// Set Gin mode
	ginMode := os.Getenv("GIN_MODE")
	if ginMode == "release" {
		gin.SetMode(gin.ReleaseMode)
	}

	router := gin.New()
	router.Use(gin.LoggerWithWriter(config.LogWriter))
	router.Use(gin.Recovery())
	router.Use(middleware.SecurityHeaders())
	router.Use(middleware.CORSMiddleware(config.EnvList("CORS_ALLOWED_ORIGINS")))

	routes.SetupRoutes(router, routes.Dependencies{
		Auth:          auth,
		Enforcer:      enforcer,
		Reviews:       reviews,
		Sessions:      sessions,
		Fanout:        fanout,
		Transactions:  services.NewTransactionStream(reviews, feed),
		Ingest:        services.NewIngestService(st, fanout),
		IngestToken:   os.Getenv("INGEST_TOKEN"),
		WSOriginHosts: config.EnvList("WS_ALLOWED_ORIGINS"),
	})

	go sweepSessions(ctx, sessions)

	port := config.Env("SERVER_PORT", "8080")
	srv := &http.Server{Addr: ":" + port, Handler: router}

	go func() {
		log.Printf("Server starting on port %s", port)
		if ginMode == "release" {
			log.Printf("Running in production mode")
		} else {
			log.Printf("Running in development mode")
		}
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Fatal("Failed to start server:", err)
		}
	}()

	<-ctx.Done()
	log.Println("Shutting down")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		log.Printf("Server shutdown: %v", err)
	}
	fanout.WaitMail()
}

// openFeed uses redis pub/sub when REDIS_URL is set so API replicas and reviewctl
// share one change stream, and falls back to an in-process feed otherwise.
func openFeed(ctx context.Context) store.Feed {
	client, err := config.InitRedis(ctx)
	if err != nil {
		log.Printf("Warning: redis unavailable, using in-process change feed: %v", err)
		return store.NewLocalFeed()
	}
	if client == nil {
		return store.NewLocalFeed()
	}
	feed, err := store.NewRedisFeed(ctx, client, config.Env("REDIS_FEED_CHANNEL", store.DefaultFeedChannel))
	if err != nil {
		log.Printf("Warning: redis feed unavailable, using in-process change feed: %v", err)
		_ = client.Close()
		return store.NewLocalFeed()
	}
	return feed
}

func sweepSessions(ctx context.Context, sessions *services.SessionRegistry) {
	ticker := time.NewTicker(10 * time.Minute)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if n := sessions.Sweep(time.Hour); n > 0 {
				log.Printf("[session] dropped %d idle review sessions", n)
			}
		}
	}
}
