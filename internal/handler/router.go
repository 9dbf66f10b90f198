package handler

import (
	"github.com/gin-gonic/gin"

	"github.com/noah-isme/dorm-adp-api/internal/middleware"
	"github.com/noah-isme/dorm-adp-api/internal/models"
	"github.com/noah-isme/dorm-adp-api/internal/service"
)

// Handlers bundles all HTTP handlers for route registration.
type Handlers struct {
	Auth          *AuthHandler
	Rooms         *RoomHandler
	Students      *StudentHandler
	Applications  *ApplicationHandler
	Billing       *BillingHandler
	Maintenance   *MaintenanceHandler
	Announcements *AnnouncementHandler
	Messages      *MessageHandler
	Notifications *NotificationHandler
	Metrics       *MetricsHandler
}

// RegisterRoutes mounts the API surface under the given prefix. Mutating
// operations on shared resources require staff roles; resident-facing
// endpoints accept any authenticated caller.
func RegisterRoutes(r *gin.Engine, prefix string, h Handlers, auth *service.AuthService) {
	staff := middleware.RequireRoles(models.RoleSuperAdmin, models.RoleAdmin, models.RoleStaff)
	anyUser := middleware.RequireRoles(models.RoleSuperAdmin, models.RoleAdmin, models.RoleStaff, models.RoleStudent)

	r.GET("/health", h.Metrics.Health)
	r.GET("/ready", h.Metrics.Ready)
	r.GET("/metrics", h.Metrics.Prometheus)

	api := r.Group(prefix)

	authGroup := api.Group("/auth")
	{
		authGroup.POST("/login", h.Auth.Login)
		authGroup.POST("/register", h.Auth.Register)
		authGroup.POST("/refresh", h.Auth.Refresh)
		authGroup.POST("/logout", middleware.JWT(auth), h.Auth.Logout)
		authGroup.POST("/change-password", middleware.JWT(auth), h.Auth.ChangePassword)
		authGroup.GET("/me", middleware.JWT(auth), h.Auth.Me)
	}

	protected := api.Group("", middleware.JWT(auth))

	rooms := protected.Group("/rooms")
	{
		rooms.GET("", anyUser, h.Rooms.List)
		rooms.GET("/available", anyUser, h.Rooms.ListAvailable)
		rooms.GET("/:id", anyUser, h.Rooms.Get)
		rooms.GET("/:id/occupants", staff, h.Rooms.Occupants)
		rooms.POST("", staff, h.Rooms.Create)
		rooms.PUT("/:id", staff, h.Rooms.Update)
		rooms.DELETE("/:id", staff, h.Rooms.Delete)
		rooms.PUT("/:id/assign", staff, h.Rooms.Assign)
		rooms.PUT("/:id/unassign", staff, h.Rooms.Unassign)
	}

	students := protected.Group("/students")
	{
		students.GET("", staff, h.Students.List)
		students.GET("/:id", middleware.RBAC("SUPERADMIN", "ADMIN", "STAFF", "SELF"), h.Students.Get)
		students.POST("", staff, h.Students.Create)
		students.PUT("/:id", staff, h.Students.Update)
		students.DELETE("/:id", staff, h.Students.Delete)
	}

	applications := protected.Group("/applications")
	{
		applications.GET("", staff, h.Applications.List)
		applications.GET("/:id", anyUser, h.Applications.Get)
		applications.POST("", anyUser, h.Applications.Submit)
		applications.POST("/:id/approve", staff, h.Applications.Approve)
		applications.POST("/:id/reject", staff, h.Applications.Reject)
		applications.POST("/:id/cancel", anyUser, h.Applications.Cancel)
	}

	invoices := protected.Group("/invoices")
	{
		invoices.GET("", staff, h.Billing.List)
		invoices.GET("/:id", anyUser, h.Billing.Get)
		invoices.POST("", staff, h.Billing.Issue)
		invoices.POST("/:id/pay", staff, h.Billing.Pay)
		invoices.DELETE("/:id", staff, h.Billing.Void)
		invoices.POST("/:id/export", staff, h.Billing.Export)
	}
	// Download authenticates through the signed token in the query string.
	api.GET("/invoices/download", h.Billing.Download)

	protected.GET("/reports/occupancy.csv", staff, h.Billing.OccupancyCSV)

	maintenance := protected.Group("/maintenance")
	{
		maintenance.GET("", staff, h.Maintenance.List)
		maintenance.GET("/:id", anyUser, h.Maintenance.Get)
		maintenance.POST("", anyUser, h.Maintenance.Create)
		maintenance.PUT("/:id", staff, h.Maintenance.Update)
		maintenance.POST("/:id/status", staff, h.Maintenance.UpdateStatus)
	}

	announcements := protected.Group("/announcements")
	{
		announcements.GET("", anyUser, h.Announcements.List)
		announcements.GET("/:id", anyUser, h.Announcements.Get)
		announcements.POST("", staff, h.Announcements.Create)
		announcements.PUT("/:id", staff, h.Announcements.Update)
		announcements.DELETE("/:id", staff, h.Announcements.Delete)
	}

	messages := protected.Group("/messages")
	{
		messages.GET("", anyUser, h.Messages.Threads)
		messages.GET("/thread/:userId", anyUser, h.Messages.Thread)
		messages.POST("", anyUser, h.Messages.Send)
		messages.POST("/:id/read", anyUser, h.Messages.MarkRead)
	}

	notifications := protected.Group("/notifications")
	{
		notifications.GET("", anyUser, h.Notifications.List)
		notifications.POST("/:id/read", anyUser, h.Notifications.MarkRead)
	}
}
