package repository

import (
	"context"
	"errors"

	"gameshop/internal/docstore"
	"gameshop/internal/models"

	"golang.org/x/sync/errgroup"
)

type bannedDoc struct {
	BannedUsers []models.BannedUser `json:"bannedUsers" validate:"dive"`
}

// BanRequest identifies the user to ban and why.
type BanRequest struct {
	TelegramID int64
	Username   string
	FirstName  string
	Reason     string
	BannedBy   string
}

func (r *Repository) ListBannedUsers(ctx context.Context) ([]models.BannedUser, error) {
	doc, err := load[bannedDoc](ctx, r, r.bins.Banned)
	return doc.BannedUsers, err
}

func (r *Repository) IsBanned(ctx context.Context, telegramID int64) (bool, error) {
	banned, err := r.ListBannedUsers(ctx)
	if err != nil {
		return false, err
	}
	key := telegramKey(telegramID)
	for _, b := range banned {
		if b.TelegramID == key {
			return true, nil
		}
	}
	return false, nil
}

// BanUser adds a ban record unless one exists. It reports whether a record
// was added.
func (r *Repository) BanUser(ctx context.Context, req BanRequest) (bool, error) {
	key := telegramKey(req.TelegramID)
	reason := req.Reason
	if reason == "" {
		reason = "Violated terms of service"
	}
	added := false
	_, err := modify(ctx, r, r.bins.Banned, func(doc *bannedDoc) error {
		added = false
		for _, b := range doc.BannedUsers {
			if b.TelegramID == key {
				return docstore.ErrNoChange
			}
		}
		doc.BannedUsers = append(doc.BannedUsers, models.BannedUser{
			ID:         newID(),
			TelegramID: key,
			Username:   req.Username,
			FirstName:  req.FirstName,
			Reason:     reason,
			BannedAt:   r.timestamp(),
			BannedBy:   req.BannedBy,
		})
		added = true
		return nil
	})
	return added, err
}

// UnbanUser drops the ban record and clears the failed purchase counter,
// reporting whether a record was removed. A user without a users record
// is still unbanned.
func (r *Repository) UnbanUser(ctx context.Context, telegramID int64) (bool, error) {
	key := telegramKey(telegramID)
	removed := false
	_, err := modify(ctx, r, r.bins.Banned, func(doc *bannedDoc) error {
		removed = false
		kept := doc.BannedUsers[:0]
		for _, b := range doc.BannedUsers {
			if b.TelegramID != key {
				kept = append(kept, b)
			}
		}
		if len(kept) == len(doc.BannedUsers) {
			return docstore.ErrNoChange
		}
		doc.BannedUsers = kept
		removed = true
		return nil
	})
	if err != nil {
		return false, err
	}
	if err := r.ResetFailedAttempts(ctx, telegramID); err != nil && !errors.Is(err, ErrNotFound) {
		return removed, err
	}
	return removed, nil
}

// GetStats reads the collections behind the admin dashboard in parallel.
func (r *Repository) GetStats(ctx context.Context) (models.Stats, error) {
	var (
		users      []models.User
		orders     []models.Order
		topups     []models.Topup
		products   []models.Product
		categories []models.Category
		banned     []models.BannedUser
	)
	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() (err error) { users, err = r.ListUsers(gctx); return })
	g.Go(func() (err error) { orders, err = r.ListOrders(gctx); return })
	g.Go(func() (err error) { topups, err = r.ListTopups(gctx); return })
	g.Go(func() (err error) { products, err = r.ListProducts(gctx); return })
	g.Go(func() (err error) { categories, err = r.ListCategories(gctx); return })
	g.Go(func() (err error) { banned, err = r.ListBannedUsers(gctx); return })
	if err := g.Wait(); err != nil {
		return models.Stats{}, err
	}

	stats := models.Stats{
		TotalUsers:      len(users),
		TotalOrders:     len(orders),
		TotalProducts:   len(products),
		TotalCategories: len(categories),
		BannedUsers:     len(banned),
	}
	for _, o := range orders {
		switch o.Status {
		case models.StatusPending:
			stats.PendingOrders++
		case models.StatusApproved:
			stats.ApprovedOrders++
			stats.TotalRevenue += o.Amount
		case models.StatusRejected:
			stats.RejectedOrders++
		}
	}
	for _, t := range topups {
		if t.Status == models.StatusPending {
			stats.PendingTopups++
		}
	}
	return stats, nil
}
