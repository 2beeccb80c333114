package handlers

import (
	"errors"
	"net/http"

	"gameshop/internal/models"
	"gameshop/internal/repository"

	"github.com/go-chi/chi/v5"
	"go.uber.org/zap"
)

func (h *Handler) CreateCategory(w http.ResponseWriter, r *http.Request) {
	var req repository.NewCategory
	if !h.decode(w, r, &req) {
		return
	}
	ctx, cancel := h.withTimeout(r.Context())
	defer cancel()
	category, err := h.repo.CreateCategory(ctx, req)
	if err != nil {
		h.writeServiceError(w, h.loggerForRequest(r), "admin_create_category", err)
		return
	}
	writeJSON(w, http.StatusCreated, category)
}

func (h *Handler) UpdateCategory(w http.ResponseWriter, r *http.Request) {
	var patch models.CategoryPatch
	if !h.decode(w, r, &patch) {
		return
	}
	ctx, cancel := h.withTimeout(r.Context())
	defer cancel()
	category, err := h.repo.UpdateCategory(ctx, chi.URLParam(r, "id"), patch)
	if err != nil {
		h.writeServiceError(w, h.loggerForRequest(r), "admin_update_category", err)
		return
	}
	writeJSON(w, http.StatusOK, category)
}

// DeleteCategory removes the category together with its products, input
// fields and category banners.
func (h *Handler) DeleteCategory(w http.ResponseWriter, r *http.Request) {
	logger := h.loggerForRequest(r)
	id := chi.URLParam(r, "id")
	ctx, cancel := h.withTimeout(r.Context())
	defer cancel()
	if err := h.repo.DeleteCategory(ctx, id); err != nil {
		h.writeServiceError(w, logger, "admin_delete_category", err)
		return
	}
	logger.Info("admin_delete_category", zap.String("category_id", id))
	writeJSON(w, http.StatusOK, map[string]bool{"ok": true})
}

func (h *Handler) ListAdminProducts(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := h.withTimeout(r.Context())
	defer cancel()
	var products []models.Product
	var err error
	if categoryID := r.URL.Query().Get("categoryId"); categoryID != "" {
		products, err = h.repo.ListProductsByCategory(ctx, categoryID)
	} else {
		products, err = h.repo.ListProducts(ctx)
	}
	if err != nil {
		h.writeServiceError(w, h.loggerForRequest(r), "admin_list_products", err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]interface{}{"products": nonNil(products)})
}

func (h *Handler) CreateProduct(w http.ResponseWriter, r *http.Request) {
	var req repository.NewProduct
	if !h.decode(w, r, &req) {
		return
	}
	ctx, cancel := h.withTimeout(r.Context())
	defer cancel()
	if !h.categoryExists(w, r, req.CategoryID) {
		return
	}
	if req.Currency == "" {
		req.Currency = h.cfg.Shop.Currency
	}
	product, err := h.repo.CreateProduct(ctx, req)
	if err != nil {
		h.writeServiceError(w, h.loggerForRequest(r), "admin_create_product", err)
		return
	}
	writeJSON(w, http.StatusCreated, product)
}

func (h *Handler) UpdateProduct(w http.ResponseWriter, r *http.Request) {
	var patch models.ProductPatch
	if !h.decode(w, r, &patch) {
		return
	}
	ctx, cancel := h.withTimeout(r.Context())
	defer cancel()
	if patch.CategoryID != nil && !h.categoryExists(w, r, *patch.CategoryID) {
		return
	}
	product, err := h.repo.UpdateProduct(ctx, chi.URLParam(r, "id"), patch)
	if err != nil {
		h.writeServiceError(w, h.loggerForRequest(r), "admin_update_product", err)
		return
	}
	writeJSON(w, http.StatusOK, product)
}

func (h *Handler) DeleteProduct(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := h.withTimeout(r.Context())
	defer cancel()
	if err := h.repo.DeleteProduct(ctx, chi.URLParam(r, "id")); err != nil {
		h.writeServiceError(w, h.loggerForRequest(r), "admin_delete_product", err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]bool{"ok": true})
}

func (h *Handler) categoryExists(w http.ResponseWriter, r *http.Request, id string) bool {
	_, err := h.repo.GetCategory(r.Context(), id)
	if errors.Is(err, repository.ErrNotFound) {
		writeError(w, http.StatusBadRequest, "unknown category")
		return false
	}
	if err != nil {
		h.writeServiceError(w, h.loggerForRequest(r), "category_lookup", err)
		return false
	}
	return true
}

func (h *Handler) ListInputTables(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := h.withTimeout(r.Context())
	defer cancel()
	var tables []models.InputTable
	var err error
	if categoryID := r.URL.Query().Get("categoryId"); categoryID != "" {
		tables, err = h.repo.ListInputTablesByCategory(ctx, categoryID)
	} else {
		tables, err = h.repo.ListInputTables(ctx)
	}
	if err != nil {
		h.writeServiceError(w, h.loggerForRequest(r), "admin_list_input_tables", err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]interface{}{"inputTables": nonNil(tables)})
}

func (h *Handler) CreateInputTable(w http.ResponseWriter, r *http.Request) {
	var req repository.NewInputTable
	if !h.decode(w, r, &req) {
		return
	}
	ctx, cancel := h.withTimeout(r.Context())
	defer cancel()
	if !h.categoryExists(w, r, req.CategoryID) {
		return
	}
	table, err := h.repo.CreateInputTable(ctx, req)
	if err != nil {
		h.writeServiceError(w, h.loggerForRequest(r), "admin_create_input_table", err)
		return
	}
	writeJSON(w, http.StatusCreated, table)
}

func (h *Handler) UpdateInputTable(w http.ResponseWriter, r *http.Request) {
	var patch models.InputTablePatch
	if !h.decode(w, r, &patch) {
		return
	}
	ctx, cancel := h.withTimeout(r.Context())
	defer cancel()
	table, err := h.repo.UpdateInputTable(ctx, chi.URLParam(r, "id"), patch)
	if err != nil {
		h.writeServiceError(w, h.loggerForRequest(r), "admin_update_input_table", err)
		return
	}
	writeJSON(w, http.StatusOK, table)
}

func (h *Handler) DeleteInputTable(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := h.withTimeout(r.Context())
	defer cancel()
	if err := h.repo.DeleteInputTable(ctx, chi.URLParam(r, "id")); err != nil {
		h.writeServiceError(w, h.loggerForRequest(r), "admin_delete_input_table", err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]bool{"ok": true})
}

func (h *Handler) CreatePaymentMethod(w http.ResponseWriter, r *http.Request) {
	var req repository.NewPaymentMethod
	if !h.decode(w, r, &req) {
		return
	}
	ctx, cancel := h.withTimeout(r.Context())
	defer cancel()
	method, err := h.repo.CreatePaymentMethod(ctx, req)
	if err != nil {
		h.writeServiceError(w, h.loggerForRequest(r), "admin_create_payment_method", err)
		return
	}
	writeJSON(w, http.StatusCreated, method)
}

func (h *Handler) UpdatePaymentMethod(w http.ResponseWriter, r *http.Request) {
	var patch models.PaymentMethodPatch
	if !h.decode(w, r, &patch) {
		return
	}
	ctx, cancel := h.withTimeout(r.Context())
	defer cancel()
	method, err := h.repo.UpdatePaymentMethod(ctx, chi.URLParam(r, "id"), patch)
	if err != nil {
		h.writeServiceError(w, h.loggerForRequest(r), "admin_update_payment_method", err)
		return
	}
	writeJSON(w, http.StatusOK, method)
}

func (h *Handler) DeletePaymentMethod(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := h.withTimeout(r.Context())
	defer cancel()
	if err := h.repo.DeletePaymentMethod(ctx, chi.URLParam(r, "id")); err != nil {
		h.writeServiceError(w, h.loggerForRequest(r), "admin_delete_payment_method", err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]bool{"ok": true})
}
