package routes

import (
	controller "teamdesk/controllers"
	"teamdesk/middleware"
	"teamdesk/models"
	"teamdesk/realtime"
	"teamdesk/services"
	"teamdesk/utils"

	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/logger"
	"github.com/gofiber/websocket/v2"
	"gorm.io/gorm"
)

// Services bundles what the handlers are built from
type Services struct {
	Users          *services.UserDirectory
	Teams          *services.TeamRegistry
	Tasks          *services.TaskStore
	Messages       *services.MessageStore
	Activity       *services.ActivityAggregator
	Hub            *realtime.Hub
	FeedDisplayCap int
	LoginLimiter   fiber.Handler
}

var requestLogger = logger.Config{
	Format: "[${time}] ${status} - ${latency} ${method} ${path}\n",
}

func SetupAuthRoutes(app *fiber.App, db *gorm.DB, svc Services) {
	authController := controller.NewAuthController(svc.Users, svc.Teams, utils.Component("auth"))

	// Auth routes group with logging middleware
	auth := app.Group("/auth", logger.New(requestLogger))

	// Public auth endpoints, throttled per IP
	limiter := svc.LoginLimiter
	if limiter == nil {
		limiter = func(c *fiber.Ctx) error { return c.Next() }
	}
	auth.Post("/login", limiter, authController.Login)
	auth.Post("/refresh", limiter, authController.RefreshToken)

	// Protected auth endpoints (require valid JWT)
	protectedAuth := auth.Group("", middleware.Protected(db))
	protectedAuth.Post("/logout", authController.Logout)
	protectedAuth.Get("/me", authController.GetCurrentUser)

	utils.Component("routes").Info("Authentication routes initialized successfully")
}

func SetupAPIRoutes(app *fiber.App, db *gorm.DB, svc Services) {
	userController := controller.NewUserController(svc.Users, svc.Tasks, utils.Component("users"))
	teamController := controller.NewTeamController(svc.Teams, utils.Component("teams"))
	taskController := controller.NewTaskController(svc.Tasks, utils.Component("tasks"))
	messageController := controller.NewMessageController(svc.Messages, utils.Component("messages"))
	dashboardController := controller.NewDashboardController(svc.Activity, svc.Tasks, svc.Messages, svc.FeedDisplayCap, utils.Component("dashboard"))
	notificationController := controller.NewNotificationController(svc.Hub, utils.Component("notifications"))

	adminOnly := middleware.RequireRole(models.RoleAdmin)
	managers := middleware.RequireRole(models.RoleAdmin, models.RoleTeamAdmin)

	// API group with versioning and protection
	api := app.Group("/api/v1", middleware.Protected(db), logger.New(requestLogger))

	// Dashboard routes
	dashboard := api.Group("/dashboard")
	dashboard.Get("/stats", dashboardController.GetDashboardStats)
	dashboard.Get("/activity", managers, dashboardController.GetActivityFeed)
	dashboard.Get("/users/:id/tasks", managers, userController.UserTasks)
	dashboard.Get("/teams/:id/members", managers, teamController.Members)

	// User routes
	users := api.Group("/users")
	users.Get("/", managers, userController.ListUsers)
	users.Post("/", adminOnly, userController.CreateUser)
	users.Put("/:id/status", adminOnly, userController.UpdateStatus)

	// Team routes
	teams := api.Group("/teams")
	teams.Get("/", teamController.ListTeams)
	teams.Post("/", adminOnly, teamController.CreateTeam)
	teams.Get("/:id", teamController.GetTeam)
	teams.Put("/:id", managers, teamController.UpdateTeam)
	teams.Delete("/:id", adminOnly, teamController.DeleteTeam)
	teams.Get("/:id/members", teamController.Members)
	teams.Post("/:id/members", managers, teamController.AddMember)
	teams.Delete("/:id/members/:userId", managers, teamController.RemoveMember)
	teams.Get("/:id/permissions/:userId", adminOnly, teamController.GetPermissions)
	teams.Put("/:id/permissions/:userId", adminOnly, teamController.SetPermissions)

	// Task routes
	tasks := api.Group("/tasks")
	tasks.Get("/", taskController.ListTasks)
	tasks.Post("/", managers, taskController.CreateTask)
	tasks.Get("/:id", taskController.GetTask)
	tasks.Patch("/:id/status", taskController.UpdateStatus)
	tasks.Post("/:id/subtasks", taskController.AddSubtask)
	tasks.Post("/:id/approve", managers, taskController.ApproveTask)
	tasks.Post("/:id/archive", managers, taskController.ArchiveTask)
	api.Patch("/subtasks/:id", taskController.ToggleSubtask)

	// Message routes
	messages := api.Group("/messages")
	messages.Post("/", messageController.SendMessage)
	messages.Get("/inbox", messageController.Inbox)
	messages.Get("/sent", messageController.Sent)
	messages.Get("/unread-count", messageController.UnreadCount)
	messages.Get("/:id/thread", messageController.Thread)
	messages.Patch("/:id/read", messageController.MarkRead)
	messages.Delete("/:id", messageController.DeleteMessage)

	// Live notifications
	app.Get("/ws/notifications",
		notificationController.Upgrade,
		middleware.Protected(db),
		websocket.New(notificationController.Stream),
	)

	utils.Component("routes").Info("API routes initialized successfully")
}

func SetupRoutes(app *fiber.App, db *gorm.DB, svc Services) {
	// Setup health check endpoint
	app.Get("/health", func(c *fiber.Ctx) error {
		return c.JSON(fiber.Map{"status": "ok"})
	})

	// Setup auth routes
	SetupAuthRoutes(app, db, svc)

	// Setup API routes
	SetupAPIRoutes(app, db, svc)

	// Setup 404 handler
	app.Use(func(c *fiber.Ctx) error {
		return c.Status(fiber.StatusNotFound).JSON(fiber.Map{
			"error":   "Not Found",
			"message": "The requested resource was not found",
		})
	})
}
