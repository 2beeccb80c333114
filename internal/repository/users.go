package repository

import (
	"context"

	"gameshop/internal/models"
)

type usersDoc struct {
	Users []models.User `json:"users" validate:"dive"`
}

func (d *usersDoc) find(telegramID string) int {
	for i := range d.Users {
		if d.Users[i].TelegramID == telegramID {
			return i
		}
	}
	return -1
}

func (r *Repository) ListUsers(ctx context.Context) ([]models.User, error) {
	doc, err := load[usersDoc](ctx, r, r.bins.Users)
	return doc.Users, err
}

func (r *Repository) GetUserByTelegramID(ctx context.Context, telegramID int64) (models.User, error) {
	doc, err := load[usersDoc](ctx, r, r.bins.Users)
	if err != nil {
		return models.User{}, err
	}
	idx := doc.find(telegramKey(telegramID))
	if idx < 0 {
		return models.User{}, ErrNotFound
	}
	return doc.Users[idx], nil
}

// UpsertUser refreshes the Telegram profile of an existing user or creates a
// new one with zeroed counters.
func (r *Repository) UpsertUser(ctx context.Context, profile models.UserProfile) (models.User, error) {
	key := telegramKey(profile.TelegramID)
	var out models.User
	_, err := modify(ctx, r, r.bins.Users, func(doc *usersDoc) error {
		now := r.timestamp()
		if idx := doc.find(key); idx >= 0 {
			u := &doc.Users[idx]
			u.Username = profile.Username
			u.FirstName = profile.FirstName
			u.LastName = profile.LastName
			u.PhotoURL = profile.PhotoURL
			u.IsPremium = profile.IsPremium
			u.LastActive = now
			out = *u
			return nil
		}
		out = models.User{
			ID:         newID(),
			TelegramID: key,
			Username:   profile.Username,
			FirstName:  profile.FirstName,
			LastName:   profile.LastName,
			PhotoURL:   profile.PhotoURL,
			IsPremium:  profile.IsPremium,
			JoinedAt:   now,
			LastActive: now,
		}
		doc.Users = append(doc.Users, out)
		return nil
	})
	return out, err
}

// modifyUser applies fn to one user inside a single users write.
func (r *Repository) modifyUser(ctx context.Context, telegramID int64, fn func(u *models.User) error) (models.User, error) {
	key := telegramKey(telegramID)
	var out models.User
	_, err := modify(ctx, r, r.bins.Users, func(doc *usersDoc) error {
		idx := doc.find(key)
		if idx < 0 {
			return ErrNotFound
		}
		u := &doc.Users[idx]
		if err := fn(u); err != nil {
			out = *u
			return err
		}
		u.LastActive = r.timestamp()
		out = *u
		return nil
	})
	return out, err
}

func (r *Repository) UpdateUser(ctx context.Context, telegramID int64, patch models.UserPatch) (models.User, error) {
	return r.modifyUser(ctx, telegramID, func(u *models.User) error {
		if patch.Username != nil {
			u.Username = *patch.Username
		}
		if patch.FirstName != nil {
			u.FirstName = *patch.FirstName
		}
		if patch.LastName != nil {
			u.LastName = *patch.LastName
		}
		if patch.PhotoURL != nil {
			u.PhotoURL = *patch.PhotoURL
		}
		if patch.IsPremium != nil {
			u.IsPremium = *patch.IsPremium
		}
		return nil
	})
}

// UpdateUserBalance applies add, subtract or set. No floor is enforced here.
func (r *Repository) UpdateUserBalance(ctx context.Context, telegramID int64, amount int64, operation string) (models.User, error) {
	switch operation {
	case models.BalanceAdd, models.BalanceSubtract, models.BalanceSet:
	default:
		return models.User{}, ErrInvalidOperation
	}
	return r.modifyUser(ctx, telegramID, func(u *models.User) error {
		switch operation {
		case models.BalanceAdd:
			u.Balance += amount
		case models.BalanceSubtract:
			u.Balance -= amount
		case models.BalanceSet:
			u.Balance = amount
		}
		return nil
	})
}

// IncrementFailedAttempts counts a failed purchase. The counter restarts at 1
// when the previous failure fell on an earlier UTC calendar day.
func (r *Repository) IncrementFailedAttempts(ctx context.Context, telegramID int64) (int, error) {
	u, err := r.modifyUser(ctx, telegramID, func(u *models.User) error {
		now := r.timestamp()
		if u.LastFailedAttempt == nil || !sameDayUTC(*u.LastFailedAttempt, now) {
			u.FailedPurchaseAttempts = 1
		} else {
			u.FailedPurchaseAttempts++
		}
		u.LastFailedAttempt = ptr(now)
		return nil
	})
	if err != nil {
		return 0, err
	}
	return u.FailedPurchaseAttempts, nil
}

func (r *Repository) ResetFailedAttempts(ctx context.Context, telegramID int64) error {
	_, err := r.modifyUser(ctx, telegramID, func(u *models.User) error {
		u.FailedPurchaseAttempts = 0
		u.LastFailedAttempt = nil
		return nil
	})
	return err
}

// DebitForOrder checks the balance and debits amount together with the
// order counter. ErrInsufficientBalance comes back with the unchanged user.
func (r *Repository) DebitForOrder(ctx context.Context, telegramID int64, amount int64) (models.User, error) {
	return r.modifyUser(ctx, telegramID, func(u *models.User) error {
		if u.Balance < amount {
			return ErrInsufficientBalance
		}
		u.Balance -= amount
		u.TotalOrders++
		return nil
	})
}

// RevertOrderDebit undoes DebitForOrder after the order could not be stored.
func (r *Repository) RevertOrderDebit(ctx context.Context, telegramID int64, amount int64) (models.User, error) {
	return r.modifyUser(ctx, telegramID, func(u *models.User) error {
		u.Balance += amount
		if u.TotalOrders > 0 {
			u.TotalOrders--
		}
		return nil
	})
}

func (r *Repository) RecordOrderApproved(ctx context.Context, telegramID int64, amount int64) (models.User, error) {
	return r.modifyUser(ctx, telegramID, func(u *models.User) error {
		u.ApprovedOrders++
		u.TotalSpent += amount
		return nil
	})
}

// RecordOrderRejected counts the rejection and refunds amount in one write.
func (r *Repository) RecordOrderRejected(ctx context.Context, telegramID int64, amount int64) (models.User, error) {
	return r.modifyUser(ctx, telegramID, func(u *models.User) error {
		u.RejectedOrders++
		u.Balance += amount
		return nil
	})
}

func (r *Repository) RecordTopupApproved(ctx context.Context, telegramID int64, amount int64) (models.User, error) {
	return r.modifyUser(ctx, telegramID, func(u *models.User) error {
		u.Balance += amount
		u.TotalTopups++
		return nil
	})
}
