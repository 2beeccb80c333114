package handlers

import (
	"net/http"

	"gameshop/internal/http/middleware"
	"gameshop/internal/shop"

	"go.uber.org/zap"
)

func (h *Handler) Me(w http.ResponseWriter, r *http.Request) {
	telegramID, ok := middleware.TelegramIDFromContext(r.Context())
	if !ok {
		writeError(w, http.StatusUnauthorized, "unauthorized")
		return
	}
	ctx, cancel := h.withTimeout(r.Context())
	defer cancel()
	user, err := h.repo.GetUserByTelegramID(ctx, telegramID)
	if err != nil {
		h.writeServiceError(w, h.loggerForRequest(r), "me", err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]interface{}{
		"user":              user,
		"maxFailedAttempts": h.cfg.Shop.MaxFailedAttempts,
	})
}

func (h *Handler) MyOrders(w http.ResponseWriter, r *http.Request) {
	telegramID, ok := middleware.TelegramIDFromContext(r.Context())
	if !ok {
		writeError(w, http.StatusUnauthorized, "unauthorized")
		return
	}
	ctx, cancel := h.withTimeout(r.Context())
	defer cancel()
	orders, err := h.repo.ListOrdersByUser(ctx, telegramID)
	if err != nil {
		h.writeServiceError(w, h.loggerForRequest(r), "my_orders", err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]interface{}{"orders": nonNil(orders)})
}

func (h *Handler) MyTopups(w http.ResponseWriter, r *http.Request) {
	telegramID, ok := middleware.TelegramIDFromContext(r.Context())
	if !ok {
		writeError(w, http.StatusUnauthorized, "unauthorized")
		return
	}
	ctx, cancel := h.withTimeout(r.Context())
	defer cancel()
	topups, err := h.repo.ListTopupsByUser(ctx, telegramID)
	if err != nil {
		h.writeServiceError(w, h.loggerForRequest(r), "my_topups", err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]interface{}{"topups": nonNil(topups)})
}

type createOrderRequest struct {
	ProductID   string            `json:"productId" validate:"required"`
	InputValues map[string]string `json:"inputValues"`
}

func (h *Handler) CreateOrder(w http.ResponseWriter, r *http.Request) {
	logger := h.loggerForRequest(r)
	telegramID, ok := middleware.TelegramIDFromContext(r.Context())
	if !ok {
		writeError(w, http.StatusUnauthorized, "unauthorized")
		return
	}
	var req createOrderRequest
	if !h.decode(w, r, &req) {
		return
	}
	ctx, cancel := h.withTimeout(r.Context())
	defer cancel()
	order, err := h.shop.Purchase(ctx, shop.PurchaseRequest{
		TelegramID:  telegramID,
		ProductID:   req.ProductID,
		InputValues: req.InputValues,
	})
	if err != nil {
		h.writeServiceError(w, logger, "create_order", err)
		return
	}
	logger.Info("create_order", zap.String("status", "success"), zap.String("order_id", order.OrderID))
	writeJSON(w, http.StatusCreated, order)
}

type createTopupRequest struct {
	Amount        int64  `json:"amount" validate:"gt=0"`
	PaymentMethod string `json:"paymentMethod" validate:"required"`
	ProofImage    string `json:"proofImage" validate:"required"`
}

func (h *Handler) CreateTopup(w http.ResponseWriter, r *http.Request) {
	logger := h.loggerForRequest(r)
	telegramID, ok := middleware.TelegramIDFromContext(r.Context())
	if !ok {
		writeError(w, http.StatusUnauthorized, "unauthorized")
		return
	}
	var req createTopupRequest
	if !h.decode(w, r, &req) {
		return
	}
	ctx, cancel := h.withTimeout(r.Context())
	defer cancel()
	topup, err := h.shop.SubmitTopup(ctx, shop.TopupRequest{
		TelegramID:    telegramID,
		Amount:        req.Amount,
		PaymentMethod: req.PaymentMethod,
		ProofImage:    req.ProofImage,
	})
	if err != nil {
		h.writeServiceError(w, logger, "create_topup", err)
		return
	}
	writeJSON(w, http.StatusCreated, topup)
}
