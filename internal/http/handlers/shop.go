package handlers

import (
	"net/http"

	"gameshop/internal/models"

	"github.com/go-chi/chi/v5"
	"golang.org/x/sync/errgroup"
)

func (h *Handler) Settings(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := h.withTimeout(r.Context())
	defer cancel()
	writeJSON(w, http.StatusOK, h.repo.GetSettings(ctx))
}

func (h *Handler) Categories(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := h.withTimeout(r.Context())
	defer cancel()
	categories, err := h.repo.ListCategories(ctx)
	if err != nil {
		h.writeServiceError(w, h.loggerForRequest(r), "list_categories", err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]interface{}{"categories": nonNil(categories)})
}

// CategoryPage returns a category with everything its page shows. The four
// collections are read in parallel.
func (h *Handler) CategoryPage(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	ctx, cancel := h.withTimeout(r.Context())
	defer cancel()

	var (
		category models.Category
		products []models.Product
		inputs   []models.InputTable
		banners  []models.Banner
	)
	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() (err error) {
		category, err = h.repo.GetCategory(gctx, id)
		return err
	})
	g.Go(func() (err error) {
		products, err = h.repo.ListProductsByCategory(gctx, id)
		return err
	})
	g.Go(func() (err error) {
		inputs, err = h.repo.ListInputTablesByCategory(gctx, id)
		return err
	})
	g.Go(func() (err error) {
		banners, err = h.repo.ListCategoryBanners(gctx, id)
		return err
	})
	if err := g.Wait(); err != nil {
		h.writeServiceError(w, h.loggerForRequest(r), "category_page", err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]interface{}{
		"category":    category,
		"products":    nonNil(products),
		"inputTables": nonNil(inputs),
		"banners":     nonNil(banners),
	})
}

func (h *Handler) Banners(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := h.withTimeout(r.Context())
	defer cancel()
	banners, err := h.repo.GetBanners(ctx)
	if err != nil {
		h.writeServiceError(w, h.loggerForRequest(r), "list_banners", err)
		return
	}
	banners.Home = nonNil(banners.Home)
	banners.Category = nonNil(banners.Category)
	writeJSON(w, http.StatusOK, banners)
}

func (h *Handler) PaymentMethods(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := h.withTimeout(r.Context())
	defer cancel()
	methods, err := h.repo.ListPaymentMethods(ctx)
	if err != nil {
		h.writeServiceError(w, h.loggerForRequest(r), "list_payment_methods", err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]interface{}{"paymentMethods": nonNil(methods)})
}

// nonNil keeps empty lists as [] in responses.
func nonNil[T any](items []T) []T {
	if items == nil {
		return []T{}
	}
	return items
}
