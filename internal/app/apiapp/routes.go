package apiapp

import (
	"github.com/go-chi/chi/v5"
	"go.uber.org/zap"

	"github.com/astraweb/lunaria/backend/internal/config"
	"github.com/astraweb/lunaria/backend/internal/domain/enums"
	authsvc "github.com/astraweb/lunaria/backend/internal/services/auth"
	billingsvc "github.com/astraweb/lunaria/backend/internal/services/billing"
	creditssvc "github.com/astraweb/lunaria/backend/internal/services/credits"
	readingssvc "github.com/astraweb/lunaria/backend/internal/services/readings"
	"github.com/astraweb/lunaria/backend/internal/transport/http/handlers"
)

type Dependencies struct {
	AuthService     *authsvc.Service
	CreditsService  *creditssvc.Service
	BillingService  *billingsvc.Service
	ReadingsService *readingssvc.Service
	Logger          *zap.Logger
	Config          config.Config
}

func RegisterRoutes(r chi.Router, deps Dependencies) {
	healthHandler := handlers.NewHealthHandler()
	authHandler := handlers.NewAuthHandler(deps.AuthService)
	creditsHandler := handlers.NewCreditsHandler(deps.CreditsService)
	readingsHandler := handlers.NewReadingsHandler(deps.ReadingsService)
	billingHandler := handlers.NewBillingHandler(deps.BillingService, deps.Config.Stripe.WebhookSecret, deps.Logger)
	adminHandler := handlers.NewAdminHandler(deps.CreditsService, deps.Logger)

	authMW := AuthMiddleware(deps.AuthService, deps.Logger)
	adminMW := RequireRole(string(enums.RoleAdmin))

	r.Get("/healthz", healthHandler.Get)

	r.Route("/v1", func(r chi.Router) {
		r.Route("/auth", func(r chi.Router) {
			r.Post("/signup", authHandler.Signup)
			r.Post("/login", authHandler.Login)
			r.Post("/refresh", authHandler.Refresh)
			r.With(authMW).Post("/logout", authHandler.Logout)
			r.With(authMW).Post("/logout_all", authHandler.LogoutAll)
		})

		r.Route("/credits", func(r chi.Router) {
			r.Use(authMW)
			r.Get("/", creditsHandler.Overview)
			r.Get("/access", creditsHandler.Access)
			r.Get("/history", creditsHandler.History)
		})

		r.Route("/readings", func(r chi.Router) {
			r.Use(authMW)
			r.Post("/compatibility", readingsHandler.CreateCompatibility)
			r.Post("/birth-chart", readingsHandler.CreateBirthChart)
			r.Post("/moon", readingsHandler.CreateMoonReading)
			r.Get("/{kind}", readingsHandler.List)
			r.Get("/{kind}/{readingID}", readingsHandler.Get)
			r.Delete("/{kind}/{readingID}", readingsHandler.Delete)
		})

		r.Route("/billing", func(r chi.Router) {
			r.With(authMW).Post("/checkout", billingHandler.CreateCheckoutSession)
			r.With(authMW).Post("/portal", billingHandler.CreatePortalSession)
			r.Post("/webhook", billingHandler.Webhook)
		})

		r.Route("/admin", func(r chi.Router) {
			r.Use(authMW, adminMW)
			r.Post("/users/{userID}/credits/grant", adminHandler.GrantCredits)
			r.Post("/users/{userID}/credits/revoke", adminHandler.RevokeCredits)
		})
	})
}
