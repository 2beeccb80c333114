package handlers

import (
	"errors"
	"net/http"
	"strings"

	"gameshop/internal/models"
	"gameshop/internal/shop"

	"github.com/go-chi/chi/v5"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"
)

func (h *Handler) AdminStats(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := h.withTimeout(r.Context())
	defer cancel()
	stats, err := h.repo.GetStats(ctx)
	if err != nil {
		h.writeServiceError(w, h.loggerForRequest(r), "admin_stats", err)
		return
	}
	writeJSON(w, http.StatusOK, stats)
}

// AdminDashboard serves the periodically refreshed overview. ?refresh=1
// forces a fresh read.
func (h *Handler) AdminDashboard(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := h.withTimeout(r.Context())
	defer cancel()
	snap, err := h.dashboard.Snapshot(ctx)
	if err == nil && r.URL.Query().Get("refresh") == "1" {
		snap, err = h.dashboard.Refresh(ctx)
	}
	if err != nil {
		h.writeServiceError(w, h.loggerForRequest(r), "admin_dashboard", err)
		return
	}
	writeJSON(w, http.StatusOK, snap)
}

// ListAdminUsers lists users, optionally filtered by ?q= against name,
// username and Telegram id.
func (h *Handler) ListAdminUsers(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := h.withTimeout(r.Context())
	defer cancel()
	users, err := h.repo.ListUsers(ctx)
	if err != nil {
		h.writeServiceError(w, h.loggerForRequest(r), "admin_list_users", err)
		return
	}
	if q := strings.ToLower(strings.TrimSpace(r.URL.Query().Get("q"))); q != "" {
		filtered := users[:0]
		for _, u := range users {
			haystack := strings.ToLower(u.TelegramID + " " + u.Username + " " + u.FirstName + " " + u.LastName)
			if strings.Contains(haystack, q) {
				filtered = append(filtered, u)
			}
		}
		users = filtered
	}
	writeJSON(w, http.StatusOK, map[string]interface{}{"users": nonNil(users)})
}

func (h *Handler) GetAdminUser(w http.ResponseWriter, r *http.Request) {
	telegramID, ok := telegramIDParam(r, "telegramId")
	if !ok {
		writeError(w, http.StatusBadRequest, "invalid telegram id")
		return
	}
	ctx, cancel := h.withTimeout(r.Context())
	defer cancel()

	var (
		user   models.User
		orders []models.Order
		topups []models.Topup
		banned bool
	)
	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() (err error) {
		user, err = h.repo.GetUserByTelegramID(gctx, telegramID)
		return err
	})
	g.Go(func() (err error) {
		orders, err = h.repo.ListOrdersByUser(gctx, telegramID)
		return err
	})
	g.Go(func() (err error) {
		topups, err = h.repo.ListTopupsByUser(gctx, telegramID)
		return err
	})
	g.Go(func() (err error) {
		banned, err = h.repo.IsBanned(gctx, telegramID)
		return err
	})
	if err := g.Wait(); err != nil {
		h.writeServiceError(w, h.loggerForRequest(r), "admin_get_user", err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]interface{}{
		"user":   user,
		"orders": nonNil(orders),
		"topups": nonNil(topups),
		"banned": banned,
	})
}

type balanceRequest struct {
	Amount    int64  `json:"amount" validate:"gte=0"`
	Operation string `json:"operation" validate:"required,oneof=add subtract set"`
}

func (h *Handler) AdjustBalance(w http.ResponseWriter, r *http.Request) {
	telegramID, ok := telegramIDParam(r, "telegramId")
	if !ok {
		writeError(w, http.StatusBadRequest, "invalid telegram id")
		return
	}
	var req balanceRequest
	if !h.decode(w, r, &req) {
		return
	}
	ctx, cancel := h.withTimeout(r.Context())
	defer cancel()
	user, err := h.shop.AdjustBalance(ctx, telegramID, req.Amount, req.Operation, actor(r))
	if err != nil {
		h.writeServiceError(w, h.loggerForRequest(r), "admin_adjust_balance", err)
		return
	}
	writeJSON(w, http.StatusOK, user)
}

type banRequest struct {
	Reason string `json:"reason"`
}

func (h *Handler) BanUser(w http.ResponseWriter, r *http.Request) {
	telegramID, ok := telegramIDParam(r, "telegramId")
	if !ok {
		writeError(w, http.StatusBadRequest, "invalid telegram id")
		return
	}
	var req banRequest
	if r.ContentLength != 0 && !h.decode(w, r, &req) {
		return
	}
	if h.cfg.IsAdmin(telegramID) {
		writeError(w, http.StatusBadRequest, "admins cannot be banned")
		return
	}
	ctx, cancel := h.withTimeout(r.Context())
	defer cancel()
	if err := h.shop.BanUser(ctx, telegramID, strings.TrimSpace(req.Reason), actor(r)); err != nil {
		h.writeServiceError(w, h.loggerForRequest(r), "admin_ban_user", err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]bool{"ok": true})
}

func (h *Handler) UnbanUser(w http.ResponseWriter, r *http.Request) {
	telegramID, ok := telegramIDParam(r, "telegramId")
	if !ok {
		writeError(w, http.StatusBadRequest, "invalid telegram id")
		return
	}
	ctx, cancel := h.withTimeout(r.Context())
	defer cancel()
	if err := h.shop.UnbanUser(ctx, telegramID, actor(r)); err != nil {
		h.writeServiceError(w, h.loggerForRequest(r), "admin_unban_user", err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]bool{"ok": true})
}

func (h *Handler) ListBannedUsers(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := h.withTimeout(r.Context())
	defer cancel()
	banned, err := h.repo.ListBannedUsers(ctx)
	if err != nil {
		h.writeServiceError(w, h.loggerForRequest(r), "admin_list_banned", err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]interface{}{"bannedUsers": nonNil(banned)})
}

func statusFilter(r *http.Request) (string, bool) {
	status := r.URL.Query().Get("status")
	switch status {
	case "", models.StatusPending, models.StatusApproved, models.StatusRejected:
		return status, true
	}
	return "", false
}

func (h *Handler) ListAdminOrders(w http.ResponseWriter, r *http.Request) {
	status, ok := statusFilter(r)
	if !ok {
		writeError(w, http.StatusBadRequest, "invalid status")
		return
	}
	ctx, cancel := h.withTimeout(r.Context())
	defer cancel()
	var orders []models.Order
	var err error
	if status == "" {
		orders, err = h.repo.ListOrders(ctx)
	} else {
		orders, err = h.repo.ListOrdersByStatus(ctx, status)
	}
	if err != nil {
		h.writeServiceError(w, h.loggerForRequest(r), "admin_list_orders", err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]interface{}{"orders": nonNil(orders)})
}

func (h *Handler) ApproveOrder(w http.ResponseWriter, r *http.Request) {
	h.processOrder(w, r, models.StatusApproved)
}

func (h *Handler) RejectOrder(w http.ResponseWriter, r *http.Request) {
	h.processOrder(w, r, models.StatusRejected)
}

func (h *Handler) processOrder(w http.ResponseWriter, r *http.Request, status string) {
	logger := h.loggerForRequest(r)
	id := chi.URLParam(r, "id")
	ctx, cancel := h.withTimeout(r.Context())
	defer cancel()

	var order models.Order
	var err error
	if status == models.StatusApproved {
		order, err = h.shop.ApproveOrder(ctx, id, actor(r))
	} else {
		order, err = h.shop.RejectOrder(ctx, id, actor(r))
	}
	if errors.Is(err, shop.ErrPartial) {
		logger.Error("admin_process_order", zap.String("status", "partial"), zap.String("order_id", order.OrderID), zap.Error(err))
		writeJSON(w, http.StatusOK, map[string]interface{}{"order": order, "warning": "follow-up updates failed"})
		return
	}
	if err != nil {
		h.writeServiceError(w, logger, "admin_process_order", err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]interface{}{"order": order})
}

func (h *Handler) ListAdminTopups(w http.ResponseWriter, r *http.Request) {
	status, ok := statusFilter(r)
	if !ok {
		writeError(w, http.StatusBadRequest, "invalid status")
		return
	}
	ctx, cancel := h.withTimeout(r.Context())
	defer cancel()
	var topups []models.Topup
	var err error
	if status == "" {
		topups, err = h.repo.ListTopups(ctx)
	} else {
		topups, err = h.repo.ListTopupsByStatus(ctx, status)
	}
	if err != nil {
		h.writeServiceError(w, h.loggerForRequest(r), "admin_list_topups", err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]interface{}{"topups": nonNil(topups)})
}

func (h *Handler) ApproveTopup(w http.ResponseWriter, r *http.Request) {
	h.processTopup(w, r, models.StatusApproved)
}

func (h *Handler) RejectTopup(w http.ResponseWriter, r *http.Request) {
	h.processTopup(w, r, models.StatusRejected)
}

func (h *Handler) processTopup(w http.ResponseWriter, r *http.Request, status string) {
	logger := h.loggerForRequest(r)
	id := chi.URLParam(r, "id")
	ctx, cancel := h.withTimeout(r.Context())
	defer cancel()

	var topup models.Topup
	var err error
	if status == models.StatusApproved {
		topup, err = h.shop.ApproveTopup(ctx, id, actor(r))
	} else {
		topup, err = h.shop.RejectTopup(ctx, id, actor(r))
	}
	if errors.Is(err, shop.ErrPartial) {
		logger.Error("admin_process_topup", zap.String("status", "partial"), zap.String("topup_id", topup.ID), zap.Error(err))
		writeJSON(w, http.StatusOK, map[string]interface{}{"topup": topup, "warning": "balance update failed"})
		return
	}
	if err != nil {
		h.writeServiceError(w, logger, "admin_process_topup", err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]interface{}{"topup": topup})
}
