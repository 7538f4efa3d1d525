package routes

import (
	"github.com/gin-gonic/gin"

	"refund-review-api/controllers"
	"refund-review-api/middleware"
	"refund-review-api/services"
)

// Dependencies are the wired services the HTTP layer needs.
type Dependencies struct {
	Auth          *services.AuthService
	Enforcer      *services.CapabilityEnforcer
	Reviews       *services.ReviewService
	Sessions      *services.SessionRegistry
	Fanout        *services.NotificationFanout
	Transactions  *services.TransactionStream
	Ingest        *services.IngestService
	IngestToken   string
	WSOriginHosts []string
}

func SetupRoutes(router *gin.Engine, deps Dependencies) {
	authCtl := controllers.NewAuthController(deps.Auth)
	txCtl := controllers.NewTransactionController(deps.Reviews, deps.Sessions)
	notifCtl := controllers.NewNotificationController(deps.Fanout)
	ingestCtl := controllers.NewIngestController(deps.Ingest)
	streamCtl := controllers.NewStreamController(deps.Fanout, deps.Transactions, deps.Sessions, deps.WSOriginHosts)

	can := func(action string) gin.HandlerFunc {
		return middleware.RequireCapability(deps.Enforcer, services.ResourceTransaction, action)
	}

	// API v1 group
	v1 := router.Group("/api/v1")
	{
		// Public routes
		public := v1.Group("")
		{
			public.POST("/login", authCtl.Login)
			public.GET("/health", controllers.Health)
		}

		// Machine-to-machine ingestion from the scoring pipeline
		ingest := v1.Group("/ingest")
		ingest.Use(middleware.RequireIngestToken(deps.IngestToken))
		{
			ingest.POST("/transactions", ingestCtl.Ingest)
		}

		// Protected routes (require authentication)
		protected := v1.Group("")
		protected.Use(middleware.AuthMiddleware(deps.Auth))
		{
			protected.GET("/profile", authCtl.GetProfile)

			transactions := protected.Group("/transactions")
			transactions.Use(can(services.ActionView))
			{
				transactions.GET("", txCtl.List)
				transactions.GET("/stream", streamCtl.Transactions)
				transactions.GET("/:id", txCtl.Get)
				transactions.GET("/:id/audit", txCtl.Audit)

				transactions.POST("/:id/decision", can(services.ActionEdit), txCtl.SetDecision)
				transactions.POST("/:id/feedback", can(services.ActionEdit), txCtl.SubmitFeedback)
				transactions.POST("/:id/notes", can(services.ActionEdit), txCtl.AddNote)
				transactions.POST("/:id/escalate", can(services.ActionEdit), can(services.ActionEscalate), txCtl.Escalate)
				transactions.POST("/:id/override", can(services.ActionEdit), can(services.ActionOverride), txCtl.Override)
			}

			notifications := protected.Group("/notifications")
			{
				notifications.GET("", notifCtl.List)
				notifications.GET("/unread-count", notifCtl.UnreadCount)
				notifications.GET("/stream", streamCtl.Notifications)
				notifications.PATCH("/read-all", notifCtl.MarkAllRead)
				notifications.PATCH("/:id/read", notifCtl.MarkRead)
			}
		}
	}

	router.NoRoute(func(c *gin.Context) {
		c.JSON(404, gin.H{"error": "Endpoint not found"})
	})
}
