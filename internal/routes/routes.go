package routes

import (
	"time"

	"github.com/ahmetcoskunkizilkaya/agency-portal/internal/config"
	"github.com/ahmetcoskunkizilkaya/agency-portal/internal/handlers"
	"github.com/ahmetcoskunkizilkaya/agency-portal/internal/metrics"
	"github.com/ahmetcoskunkizilkaya/agency-portal/internal/middleware"
	"github.com/ahmetcoskunkizilkaya/agency-portal/internal/rolegate"
	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/limiter"
)

type Handlers struct {
	Auth          *handlers.AuthHandler
	Health        *handlers.HealthHandler
	Profile       *handlers.ProfileHandler
	Notification  *handlers.NotificationHandler
	AccessRequest *handlers.AccessRequestHandler
	Views         *handlers.ViewsHandler
}

func Setup(
	app *fiber.App,
	cfg *config.Config,
	profiles middleware.ProfileLookup,
	rec metrics.Recorder,
	h Handlers,
) {
	jwt := middleware.JWTProtected(cfg)

	// Identity endpoints. Stricter rate limit: 10 req/min per IP.
	identity := app.Group("/auth/v1")
	identity.Use(limiter.New(limiter.Config{
		Max:               10,
		Expiration:        1 * time.Minute,
		LimiterMiddleware: limiter.SlidingWindow{},
		KeyGenerator:      func(c *fiber.Ctx) string { return c.IP() },
	}))
	identity.Post("/signup", h.Auth.SignUp)
	identity.Post("/token", h.Auth.Token)
	identity.Post("/recover", h.Auth.Recover)
	identity.Post("/verify", h.Auth.Verify)
	identity.Post("/logout", jwt, h.Auth.Logout)
	identity.Get("/user", jwt, h.Auth.GetUser)
	identity.Put("/user", jwt, h.Auth.UpdateUser)

	api := app.Group("/api")

	// General API rate limiter: 60 req/min per IP
	api.Use(limiter.New(limiter.Config{
		Max:               60,
		Expiration:        1 * time.Minute,
		LimiterMiddleware: limiter.SlidingWindow{},
		KeyGenerator:      func(c *fiber.Ctx) string { return c.IP() },
	}))

	api.Get("/health", h.Health.Check)

	api.Get("/views", h.Views.List)
	api.Get("/views/decide", middleware.JWTOptional(cfg), h.Views.Decide)
	api.Get("/views/home", jwt, h.Views.Home)

	api.Get("/profiles/:id", jwt, h.Profile.Get)
	api.Post("/auth/fix-profile", jwt, h.Profile.FixProfile)

	api.Get("/notifications", jwt, h.Notification.List)
	api.Get("/notifications/unread-count", jwt, h.Notification.UnreadCount)
	api.Patch("/notifications/:id/read", jwt, h.Notification.MarkRead)
	api.Post("/notifications/read-all", jwt, h.Notification.MarkAllRead)

	api.Post("/access-requests", jwt, h.AccessRequest.Create)
	api.Get("/access-requests", jwt, h.AccessRequest.ListMine)

	// Client workspace (client or admin)
	client := api.Group("/client", jwt, middleware.RoleRequired(profiles, rec, "client",
		rolegate.RequireRoles(rolegate.RoleClient, rolegate.RoleAdmin)))
	client.Get("/profile", h.Profile.Me)

	// Admin panel
	admin := api.Group("/admin", jwt, middleware.AdminRequired(profiles, rec))
	admin.Get("/profiles", h.Profile.List)
	admin.Put("/profiles/:id", h.Profile.Update)
	admin.Post("/notifications", h.Notification.Create)
	admin.Get("/access-requests", h.AccessRequest.List)
	admin.Put("/access-requests/:id", h.AccessRequest.Resolve)
}
