package handlers

import (
	"net/http"

	"gameshop/internal/http/middleware"

	"github.com/go-chi/chi/v5"
)

// Routes mounts the public, user and admin API on one router.
func (h *Handler) Routes() http.Handler {
	r := chi.NewRouter()

	r.Get("/healthz", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte("ok"))
	})

	r.Post("/api/verify", h.VerifyInitData)
	r.Post("/auth/telegram", h.AuthTelegram)
	r.Post("/auth/admin", h.AuthAdmin)

	r.Route("/shop", func(r chi.Router) {
		r.Get("/settings", h.Settings)
		r.Get("/categories", h.Categories)
		r.Get("/categories/{id}", h.CategoryPage)
		r.Get("/banners", h.Banners)
		r.Get("/payment-methods", h.PaymentMethods)
	})

	r.Group(func(r chi.Router) {
		r.Use(middleware.AuthMiddleware(h.cfg.JWTSecret))
		r.Use(middleware.BannedUserMiddleware(h.repo, h.cfg.AdminTGIDs, h.logger))

		r.Get("/me", h.Me)
		r.Get("/me/orders", h.MyOrders)
		r.Get("/me/topups", h.MyTopups)
		r.With(middleware.LimitPerTelegramID(h.purchaseLimiter)).Post("/orders", h.CreateOrder)
		r.With(middleware.LimitPerTelegramID(h.topupLimiter)).Post("/topups", h.CreateTopup)
		r.Post("/media/upload", h.UploadMedia)
		r.Post("/media/presign", h.PresignMedia)

		r.Route("/admin", func(r chi.Router) {
			r.Use(middleware.AdminOnly(h.cfg.AdminTGIDs))

			r.Get("/stats", h.AdminStats)
			r.Get("/dashboard", h.AdminDashboard)

			r.Get("/users", h.ListAdminUsers)
			r.Get("/users/{telegramId}", h.GetAdminUser)
			r.Post("/users/{telegramId}/balance", h.AdjustBalance)
			r.Post("/users/{telegramId}/ban", h.BanUser)
			r.Post("/users/{telegramId}/unban", h.UnbanUser)
			r.Get("/banned", h.ListBannedUsers)

			r.Get("/orders", h.ListAdminOrders)
			r.Post("/orders/{id}/approve", h.ApproveOrder)
			r.Post("/orders/{id}/reject", h.RejectOrder)
			r.Get("/topups", h.ListAdminTopups)
			r.Post("/topups/{id}/approve", h.ApproveTopup)
			r.Post("/topups/{id}/reject", h.RejectTopup)

			r.Get("/categories", h.Categories)
			r.Post("/categories", h.CreateCategory)
			r.Patch("/categories/{id}", h.UpdateCategory)
			r.Delete("/categories/{id}", h.DeleteCategory)
			r.Get("/products", h.ListAdminProducts)
			r.Post("/products", h.CreateProduct)
			r.Patch("/products/{id}", h.UpdateProduct)
			r.Delete("/products/{id}", h.DeleteProduct)
			r.Get("/input-tables", h.ListInputTables)
			r.Post("/input-tables", h.CreateInputTable)
			r.Patch("/input-tables/{id}", h.UpdateInputTable)
			r.Delete("/input-tables/{id}", h.DeleteInputTable)
			r.Get("/payment-methods", h.PaymentMethods)
			r.Post("/payment-methods", h.CreatePaymentMethod)
			r.Patch("/payment-methods/{id}", h.UpdatePaymentMethod)
			r.Delete("/payment-methods/{id}", h.DeletePaymentMethod)

			r.Get("/banners", h.Banners)
			r.Post("/banners", h.CreateBanner)
			r.Delete("/banners/{type}/{id}", h.DeleteBanner)
			r.Get("/settings", h.Settings)
			r.Patch("/settings", h.UpdateSettings)

			r.Get("/broadcasts", h.ListBroadcasts)
			r.Post("/broadcasts", h.StartBroadcast)
			r.Get("/broadcasts/{id}", h.GetBroadcast)
		})
	})
	return r
}
