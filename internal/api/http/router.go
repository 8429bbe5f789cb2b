package http

import (
	"github.com/gofiber/fiber/v2"

	"github.com/spec-kit/pqr-service/internal/access"
	"github.com/spec-kit/pqr-service/internal/api/http/handlers"
	"github.com/spec-kit/pqr-service/internal/auth"
)

// RouteConfig bundles dependencies for route registration.
type RouteConfig struct {
	Health         *handlers.HealthHandler
	Users          *handlers.UsersHandler
	Tickets        *handlers.TicketsHandler
	Comments       *handlers.CommentsHandler
	Stats          *handlers.StatsHandler
	AuthMiddleware *auth.AuthMiddleware
}

// RegisterRoutes wires HTTP routes.
func RegisterRoutes(app *fiber.App, cfg RouteConfig) {
	app.Get("/health/live", cfg.Health.Live)
	app.Get("/health/ready", cfg.Health.Ready)

	api := app.Group("/api")

	authGroup := api.Group("/auth")
	authGroup.Post("/register", cfg.Users.Register)
	authGroup.Post("/login", cfg.Users.Login)
	authGroup.Post("/password/change", cfg.AuthMiddleware.Handle, cfg.Users.ChangePassword)

	protected := api.Group("", cfg.AuthMiddleware.Handle)

	pqrs := protected.Group("/pqrs")
	pqrs.Post("/", cfg.Tickets.CreateTicket)
	pqrs.Get("/", cfg.Tickets.ListTickets)
	pqrs.Get("/:id", cfg.Tickets.GetTicket)
	pqrs.Put("/:id", cfg.Tickets.UpdateTicket)
	pqrs.Get("/:id/attachments", cfg.Tickets.ListAttachments)
	pqrs.Get("/:id/history", cfg.Tickets.ListHistory)
	pqrs.Get("/:id/comments", cfg.Comments.ListComments)
	pqrs.Post("/:id/comments", cfg.Comments.AddComment)

	protected.Get("/stats", cfg.Stats.Get)

	protected.Get("/users", auth.RequireAction(access.ActionListUsers), cfg.Users.ListUsers)
	protected.Post("/users", auth.RequireAction(access.ActionCreateUser), cfg.Users.CreateUser)
	protected.Get("/agents", auth.RequireAction(access.ActionListAgents), cfg.Users.ListAgents)
}
