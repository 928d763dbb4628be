package routes

import (
	"github.com/gin-gonic/gin"
	"github.com/redis/go-redis/v9"
	"gorm.io/gorm"

	"github.com/launchthatbrand/portal-api/internal/credit"
	"github.com/launchthatbrand/portal-api/internal/handlers"
	"github.com/launchthatbrand/portal-api/internal/middleware"
	"github.com/launchthatbrand/portal-api/internal/notify"
	"github.com/launchthatbrand/portal-api/internal/payouts"
)

// Deps carries everything the route tree needs.
type Deps struct {
	DB      *gorm.DB
	RDB     *redis.Client
	JWTKey  []byte
	Hub     *notify.Hub
	Notify  *notify.Service
	Credit  *credit.Service
	Payouts *payouts.Runner
}

// Register wires the full route tree onto the engine: public auth and webhook
// endpoints, then the authenticated API surface.
func Register(r *gin.Engine, deps Deps) {
	authHandler := handlers.NewAuthHandler(deps.DB, deps.JWTKey)
	calendarHandler := handlers.NewCalendarHandler(deps.DB)
	notificationHandler := handlers.NewNotificationHandler(deps.DB, deps.Notify)
	payoutHandler := handlers.NewPayoutHandler(deps.DB, deps.Payouts, deps.Credit)
	webhookHandler := handlers.NewWebhookHandler(deps.Payouts)
	userHandler := handlers.NewUserHandler(deps.DB)
	auth := middleware.NewAuth(deps.DB, deps.RDB, deps.JWTKey)
	roleHandler := handlers.NewRoleHandler(deps.DB, auth)
	permissionHandler := handlers.NewPermissionHandler(deps.DB)

	r.POST("/api/auth/login", authHandler.Login)
	r.POST("/api/auth/logout", authHandler.Logout)

	// Provider webhooks authenticate via payload signature, not a session.
	r.POST("/webhooks/stripe", webhookHandler.StripeWebhook)

	api := r.Group("/api")
	api.Use(auth.Middleware())
	{
		api.GET("/ws", deps.Hub.ServeWS)

		calendars := api.Group("/calendars")
		{
			calendars.GET("", calendarHandler.ListCalendars)
			calendars.POST("", calendarHandler.CreateCalendar)
			calendars.PUT("/:id", calendarHandler.UpdateCalendar)
			calendars.DELETE("/:id", calendarHandler.DeleteCalendar)
		}

		calendar := api.Group("/calendar")
		{
			calendar.GET("/events", calendarHandler.ListEvents)
			calendar.GET("/events/search", calendarHandler.SearchEvents)
			calendar.GET("/events/:id", calendarHandler.GetEvent)
			calendar.POST("/events", calendarHandler.CreateEvent)
			calendar.PUT("/events/:id", calendarHandler.UpdateEvent)
			calendar.DELETE("/events/:id", calendarHandler.DeleteEvent)
		}

		notifications := api.Group("/notifications")
		{
			notifications.GET("", notificationHandler.ListNotifications)
			notifications.GET("/unread-count", notificationHandler.UnreadCount)
			notifications.POST("", middleware.PermissionMiddleware("notifications_admin"), notificationHandler.CreateNotifications)
			notifications.PUT("/read-all", notificationHandler.MarkAllRead)
			notifications.PUT("/:id/read", notificationHandler.MarkRead)
			notifications.DELETE("/all", notificationHandler.DeleteAllNotifications)
			notifications.DELETE("/:id", notificationHandler.DeleteNotification)

			notifications.GET("/preferences", notificationHandler.ListPreferences)
			notifications.PUT("/preferences", notificationHandler.PutPreference)
		}

		payoutGroup := api.Group("/payouts")
		{
			payoutGroup.POST("/run", middleware.PermissionMiddleware("payouts_run"), payoutHandler.RunMonthly)
			payoutGroup.GET("/runs", middleware.PermissionMiddleware("payouts_run"), payoutHandler.ListRuns)
			payoutGroup.GET("/balance", payoutHandler.GetBalance)
			payoutGroup.GET("/preference", payoutHandler.GetPreference)
			payoutGroup.PUT("/preference", payoutHandler.PutPreference)
			payoutGroup.GET("/account", payoutHandler.GetAccount)
			payoutGroup.POST("/onboarding-link", payoutHandler.CreateOnboardingLink)
			payoutGroup.DELETE("/account", payoutHandler.Disconnect)
		}

		users := api.Group("/users")
		users.Use(middleware.PermissionMiddleware("users_view"))
		{
			users.GET("", userHandler.ListUsers)
			users.POST("", middleware.PermissionMiddleware("users_create"), userHandler.CreateUser)
			users.GET("/:id", userHandler.GetUser)
			users.PUT("/:id", middleware.PermissionMiddleware("users_edit"), userHandler.UpdateUser)
			users.DELETE("/:id", middleware.PermissionMiddleware("users_delete"), userHandler.DeleteUser)
		}

		roles := api.Group("/roles")
		roles.Use(middleware.PermissionMiddleware("roles_view"))
		{
			roles.GET("", roleHandler.ListRoles)
			roles.POST("", middleware.PermissionMiddleware("roles_create"), roleHandler.CreateRole)
			roles.GET("/:id", roleHandler.GetRole)
			roles.PUT("/:id", middleware.PermissionMiddleware("roles_edit"), roleHandler.UpdateRole)
			roles.DELETE("/:id", middleware.PermissionMiddleware("roles_delete"), roleHandler.DeleteRole)
		}

		permissions := api.Group("/permissions")
		permissions.Use(middleware.PermissionMiddleware("permissions_view"))
		{
			permissions.GET("", permissionHandler.ListPermissions)
			permissions.POST("", middleware.PermissionMiddleware("permissions_create"), permissionHandler.CreatePermission)
			permissions.PUT("/:id", middleware.PermissionMiddleware("permissions_edit"), permissionHandler.UpdatePermission)
			permissions.DELETE("/:id", middleware.PermissionMiddleware("permissions_delete"), permissionHandler.DeletePermission)
		}
	}
}
