package http

import (
	"database/sql"

	"github.com/go-chi/chi/v5"
	chimw "github.com/go-chi/chi/v5/middleware"

	"github.com/clupso/server/internal/auth"
	"github.com/clupso/server/internal/http/handlers"
	"github.com/clupso/server/internal/middleware"
	"github.com/clupso/server/internal/repo"
)

// NewRouter creates a new HTTP router with all routes configured
func NewRouter(authHandler *handlers.AuthHandler, vaultHandler *handlers.VaultHandler, jwtService *auth.JWTService, userRepo repo.UserRepo, database *sql.DB) *chi.Mux {
	r := chi.NewRouter()

	r.Use(chimw.RequestID)
	r.Use(chimw.RealIP)
	r.Use(chimw.Logger)
	r.Use(chimw.Recoverer)

	healthHandler := handlers.NewHealthHandler(database)
	r.Get("/health", healthHandler.ServeHTTP)

	r.Route("/api", func(r chi.Router) {
		// Requests are rejected with 503 before touching business logic
		// when the database is down.
		r.Use(middleware.DBGate(database))

		r.Route("/auth", func(r chi.Router) {
			r.Post("/signup", authHandler.HandleSignup)
			r.Post("/signin", authHandler.HandleSignin)
			r.Get("/approve-device", authHandler.HandleApproveDevice)
			r.Post("/forgot-password/verify-email", authHandler.HandleForgotVerifyEmail)
			r.Post("/forgot-password/verify-totp", authHandler.HandleForgotVerifyTOTP)
			r.Post("/forgot-password/reset", authHandler.HandleForgotReset)

			// Protected routes (require valid session token)
			r.Group(func(r chi.Router) {
				r.Use(middleware.AuthMiddleware(jwtService, userRepo))
				r.Get("/user", authHandler.HandleGetUser)
				r.Post("/logout", authHandler.HandleLogout)
				r.Post("/totp/setup", authHandler.HandleTOTPSetup)
				r.Post("/totp/verify", authHandler.HandleTOTPVerify)
				r.Post("/totp/disable", authHandler.HandleTOTPDisable)
				r.Get("/trusted-devices", authHandler.HandleListTrustedDevices)
				r.Delete("/trusted-devices/{deviceId}", authHandler.HandleRevokeDevice)
			})
		})

		r.Route("/vault", func(r chi.Router) {
			r.Use(middleware.AuthMiddleware(jwtService, userRepo))
			r.Get("/directories", vaultHandler.HandleListDirectories)
			r.Post("/directories", vaultHandler.HandleCreateDirectory)
			r.Put("/directories/{id}", vaultHandler.HandleUpdateDirectory)
			r.Delete("/directories/{id}", vaultHandler.HandleDeleteDirectory)
			r.Get("/credentials", vaultHandler.HandleListCredentials)
			r.Post("/credentials", vaultHandler.HandleCreateCredential)
			r.Put("/credentials/{id}", vaultHandler.HandleUpdateCredential)
			r.Delete("/credentials/{id}", vaultHandler.HandleDeleteCredential)
			r.Get("/activity", vaultHandler.HandleListActivity)
		})
	})

	return r
}
