package routes

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	chimw "github.com/go-chi/chi/v5/middleware"

	"github.com/ecofood/foodshare/internal/app"
	"github.com/ecofood/foodshare/internal/handler"
	"github.com/ecofood/foodshare/internal/middleware"
	"github.com/ecofood/foodshare/internal/model"
)

func SetupRoutes(app *app.App) http.Handler {
	// Handlers
	health := handler.NewHealthHandler(app.DB)
	listing := handler.NewListingHandler(app.LifecycleService)
	notification := handler.NewNotificationHandler(app.InboxService)
	account := handler.NewAccountHandler(app.AccountService)

	donor := middleware.RequireRole(model.RoleDonor)
	organization := middleware.RequireRole(model.RoleOrganization)
	moderator := middleware.RequireRole(model.RoleModerator)

	r := chi.NewRouter()

	// Global middleware - executed in order (top to bottom)
	r.Use(chimw.RequestID)
	r.Use(middleware.RequestLogging)
	r.Use(chimw.Recoverer)
	r.Use(chimw.Timeout(app.Cfg.RequestTimeout))

	// ============================================================================
	// PUBLIC ROUTES
	// ============================================================================

	r.Get("/healthz", health.Healthz)

	// ============================================================================
	// AUTHENTICATED ROUTES (/api/*)
	// ============================================================================

	r.Route("/api", func(r chi.Router) {
		r.Use(middleware.Authenticate(app.AuthService))

		r.Get("/impact", listing.Impact)

		// Listings
		r.With(donor).Post("/listings", listing.Post)
		r.With(donor).Get("/listings/mine", listing.MyDonations)
		r.With(donor).Put("/listings/{id}/image", listing.UploadImage)
		r.With(donor, middleware.RateLimit(app.VerifyLimiter)).Post("/listings/{id}/verify", listing.Verify)
		r.With(organization).Get("/listings/available", listing.Available)
		r.With(organization).Get("/listings/nearby", listing.Nearby)
		r.With(organization).Get("/listings/claims", listing.MyClaims)
		r.With(organization).Post("/listings/{id}/claim", listing.Claim)
		r.With(moderator).Delete("/listings/{id}", listing.Remove)

		// Notifications
		r.Get("/notifications", notification.List)
		r.Get("/notifications/unread/count", notification.UnreadCount)
		r.Put("/notifications/read/all", notification.MarkAllRead)
		r.Put("/notifications/{id}/read", notification.MarkRead)
		r.Delete("/notifications", notification.DeleteAll)
		r.Delete("/notifications/{id}", notification.Delete)

		// Accounts
		r.Get("/accounts/me", account.Me)
		r.Put("/accounts/me/location", account.UpdateLocation)
		r.With(moderator).Put("/accounts/{id}/approval", account.SetApproval)
		r.With(moderator).Put("/accounts/{id}/active", account.SetActive)
	})

	return r
}
