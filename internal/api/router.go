package api

import (
	"fmt"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"gorm.io/gorm"

	"github.com/altynaay/fieldops/internal/app"
	iauth "github.com/altynaay/fieldops/internal/auth"
	"github.com/altynaay/fieldops/internal/backup"
	"github.com/altynaay/fieldops/internal/handlers"
	"github.com/altynaay/fieldops/internal/middleware"
	"github.com/altynaay/fieldops/internal/models"
	"github.com/altynaay/fieldops/internal/notifications"
	"github.com/altynaay/fieldops/internal/services"
)

// Dependencies bundles everything the router needs. Optional fields disable
// their routes when nil.
type Dependencies struct {
	DB        *gorm.DB
	Config    *app.Config
	JWT       *iauth.JWTService
	Hub       *notifications.Hub
	Users     *services.UserService
	Staff     *services.StaffService
	Acts      *services.ActivityService
	Audit     *services.AuditService
	Inbox     *services.NotificationService
	Rules     *services.RuleEngine
	Dashboard *services.DashboardService
	Suggest   *services.SuggestionService
	Master    *services.MasterDataService
	Backups   *backup.Service
}

// NewRouter builds the Gin engine, wires middleware and registers all routes.
func NewRouter(deps Dependencies) (*gin.Engine, error) {
	if deps.DB == nil {
		return nil, fmt.Errorf("database handle must be provided")
	}
	if deps.JWT == nil {
		return nil, fmt.Errorf("jwt service must be provided")
	}
	if deps.Config == nil {
		return nil, fmt.Errorf("config must be provided")
	}

	r := gin.New()

	// Global middleware
	r.Use(middleware.Recovery())
	r.Use(middleware.Logger())
	r.Use(middleware.Metrics())
	r.NoRoute(middleware.NotFoundHandler)

	if deps.Config.Monitoring.Health.Enabled {
		r.GET("/health", handlers.NewHealthHandler(deps.DB).Check)
	}
	if deps.Config.Monitoring.Prometheus.Enabled {
		endpoint := deps.Config.Monitoring.Prometheus.Endpoint
		if endpoint == "" {
			endpoint = "/metrics"
		}
		r.GET(endpoint, gin.WrapH(promhttp.Handler()))
	}

	authHandler := handlers.NewAuthHandler(deps.Users, deps.JWT)

	// Public auth routes
	r.POST("/api/auth/login", authHandler.Login)

	requireAuth := middleware.Auth(deps.JWT)
	canEdit := middleware.RequireRole(models.RoleAdmin, models.RoleManager, models.RoleStaff)
	canManage := middleware.RequireRole(models.RoleAdmin, models.RoleManager)
	adminOnly := middleware.RequireRole(models.RoleAdmin)

	api := r.Group("/api")
	api.Use(requireAuth)

	api.GET("/auth/me", authHandler.Me)

	// Activities
	activityHandler := handlers.NewActivityHandler(deps.Acts)
	acts := api.Group("/activities")
	{
		acts.GET("", activityHandler.List)
		acts.GET("/:id", activityHandler.Get)
		acts.POST("", canEdit, activityHandler.Create)
		acts.PUT("/:id", canEdit, activityHandler.Update)
		acts.DELETE("/:id", canEdit, activityHandler.Delete)
		acts.POST("/:id/done", canEdit, activityHandler.MarkDone)
		acts.POST("/reorder", canEdit, activityHandler.Reorder)
		acts.POST("/bulk", canEdit, activityHandler.Bulk)
	}

	// Audit trail
	auditHandler := handlers.NewAuditHandler(deps.Audit)
	audit := api.Group("/audit")
	{
		audit.GET("", canManage, auditHandler.List)
		audit.POST("/:id/undo", canManage, auditHandler.Undo)
	}

	// Notifications and rule engine
	notifHandler := handlers.NewNotificationHandler(deps.DB, deps.Inbox, deps.Hub, deps.Rules)
	notifs := api.Group("/notifications")
	{
		notifs.GET("", notifHandler.List)
		notifs.POST("/:id/read", notifHandler.MarkRead)
		notifs.GET("/stream", notifHandler.Stream)
		notifs.GET("/rules", canManage, notifHandler.GetRules)
		notifs.PUT("/rules", canManage, notifHandler.UpdateRules)
		notifs.POST("/rules/run", canManage, notifHandler.RunRules)
	}

	// Dashboard and typeahead suggestions
	if deps.Dashboard != nil && deps.Suggest != nil {
		dashboardHandler := handlers.NewDashboardHandler(deps.Dashboard, deps.Suggest)
		api.GET("/dashboard/stats", dashboardHandler.Stats)
		api.GET("/suggestions", dashboardHandler.Suggest)
	}

	// Master data lookup lists
	if deps.Master != nil {
		masterHandler := handlers.NewMasterDataHandler(deps.Master)
		master := api.Group("/master-data")
		{
			master.GET("", masterHandler.List)
			master.POST("", adminOnly, masterHandler.Create)
			master.PUT("/:id", adminOnly, masterHandler.Update)
			master.DELETE("/:id", adminOnly, masterHandler.Delete)
		}
	}

	// Staff roster
	staffHandler := handlers.NewStaffHandler(deps.Staff)
	staff := api.Group("/staff")
	{
		staff.GET("", staffHandler.List)
		staff.POST("", canManage, staffHandler.Create)
		staff.PUT("/:id", canManage, staffHandler.Update)
	}

	// Accounts
	userHandler := handlers.NewUserHandler(deps.Users)
	users := api.Group("/users")
	{
		users.GET("", adminOnly, userHandler.List)
		users.POST("", adminOnly, userHandler.Create)
	}

	// Backups
	if deps.Backups != nil {
		systemHandler := handlers.NewSystemHandler(deps.Backups)
		system := api.Group("/system")
		{
			system.GET("/backups", adminOnly, systemHandler.ListBackups)
			system.POST("/backups", adminOnly, systemHandler.CreateBackup)
			system.POST("/backups/restore", adminOnly, systemHandler.RestoreBackup)
		}
	}

	return r, nil
}
