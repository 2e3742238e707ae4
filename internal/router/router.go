package router

import (
	"strings"

	"flower-backoffice/internal/admin"
	"flower-backoffice/internal/audit"
	"flower-backoffice/internal/auth"
	"flower-backoffice/internal/config"
	"flower-backoffice/internal/dashboard"
	"flower-backoffice/internal/inventory"
	"flower-backoffice/internal/logger"
	"flower-backoffice/internal/metrics"
	"flower-backoffice/internal/models"

	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/cors"
	fiberlogger "github.com/gofiber/fiber/v2/middleware/logger"
	"github.com/gofiber/fiber/v2/middleware/recover"
	"github.com/sirupsen/logrus"
)

// New builds the API app with middleware and every route mounted.
func New(cfg *config.Config, log *logrus.Logger) *fiber.App {
	app := fiber.New(fiber.Config{
		AppName:      "flower-backoffice",
		ErrorHandler: errorHandler(log),
	})

	app.Use(recover.New())
	app.Use(fiberlogger.New(fiberlogger.Config{Output: log.Out}))

	corsOrigins := strings.Split(cfg.CORSOrigins, ",")
	for i := range corsOrigins {
		corsOrigins[i] = strings.TrimSpace(corsOrigins[i])
	}
	app.Use(cors.New(cors.Config{
		AllowOrigins: strings.Join(corsOrigins, ","),
		AllowHeaders: "Origin, Content-Type, Accept, Authorization, " + inventory.IdempotencyHeader,
		AllowMethods: "GET,POST,PUT,DELETE,OPTIONS",
	}))

	if cfg.MetricsEnabled {
		app.Use(metrics.Middleware())
		app.Get("/metrics", metrics.Handler())
	}

	app.Get("/health", func(c *fiber.Ctx) error {
		return c.JSON(fiber.Map{"status": "ok"})
	})

	Setup(app, cfg)
	return app
}

func errorHandler(log *logrus.Logger) fiber.ErrorHandler {
	return func(c *fiber.Ctx, err error) error {
		if e, ok := err.(*fiber.Error); ok {
			return c.Status(e.Code).JSON(fiber.Map{
				"error": e.Message,
			})
		}
		logger.LogError(log, "router", "errorHandler", c.Method()+" "+c.Path(), nil, err)
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{
			"error": "unexpected server error",
		})
	}
}

// Setup mounts the /api routes.
func Setup(app *fiber.App, cfg *config.Config) {
	api := app.Group("/api")

	// Public auth
	api.Post("/auth/register-admin", auth.RegisterAdminHandler(cfg))
	api.Post("/auth/login", auth.LoginHandler(cfg))

	// Protected
	protected := api.Group("")
	protected.Use(auth.JWTMiddleware(cfg))

	protected.Get("/auth/me", auth.MeHandler())

	manager := auth.RequireMinRole(models.RoleManager)

	// Admin routes
	adminRoutes := protected.Group("/admin")
	adminRoutes.Use(auth.RequireRole(models.RoleAdmin))

	adminRoutes.Post("/stores", admin.CreateStoreHandler())
	adminRoutes.Put("/stores/:id", admin.UpdateStoreHandler())
	adminRoutes.Delete("/stores/:id", admin.DeleteStoreHandler())
	adminRoutes.Post("/stores/:id/users", admin.CreateStoreUserHandler())
	adminRoutes.Get("/stores/:id/users", admin.ListStoreUsersHandler())

	protected.Get("/audit-logs", auth.RequireRole(models.RoleAdmin), audit.ListAuditLogsHandler())
	protected.Post("/audit-logs/:id/undo", auth.RequireRole(models.RoleAdmin), audit.UndoAuditLogHandler())

	// Stores and items
	protected.Get("/stores", admin.ListStoresHandler())
	protected.Get("/items", inventory.ListItemsHandler())
	protected.Post("/items", manager, inventory.CreateItemHandler())
	protected.Put("/items/:id", manager, inventory.UpdateItemHandler())

	// Arrivals (lots)
	protected.Get("/arrivals", inventory.ListArrivalsHandler())
	protected.Post("/arrivals", manager, inventory.CreateArrivalHandler())

	// Price history; registered before /transfers/:id
	protected.Post("/transfers/price-changes", inventory.CreatePriceChangeHandler())
	protected.Get("/transfers/price-changes-latest", inventory.LatestPricesHandler())
	protected.Get("/transfers/price-changes/:item_id", inventory.ListPriceChangesHandler())

	// Transfers
	protected.Get("/transfers/export", inventory.ExportTransfersHandler())
	protected.Post("/transfers", inventory.CreateTransferHandler())
	protected.Get("/transfers", inventory.ListTransfersHandler())
	protected.Delete("/transfers/:id", manager, inventory.DeleteTransferHandler())

	// Disposals
	protected.Post("/disposals", inventory.CreateDisposalHandler())
	protected.Get("/disposals", inventory.ListDisposalsHandler())

	// Supplies
	protected.Get("/supplies", inventory.ListSuppliesHandler())
	protected.Post("/supplies", manager, inventory.CreateSupplyHandler())
	protected.Post("/supplies/transfers", inventory.CreateSupplyTransferHandler())
	protected.Get("/supplies/transfers", inventory.ListSupplyTransfersHandler())

	// Dashboard
	protected.Get("/dashboard/transfer-chart", dashboard.TransferChartHandler())
}
