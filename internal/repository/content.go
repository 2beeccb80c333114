package repository

import (
	"context"
	"errors"

	"gameshop/internal/docstore"
	"gameshop/internal/models"

	"go.uber.org/zap"
)

type paymentsDoc struct {
	Payments []models.PaymentMethod `json:"payments" validate:"dive"`
}

// NewBanner is an uploaded banner. CategoryID and Description apply to
// category banners only.
type NewBanner struct {
	Image       string `json:"image" validate:"required"`
	CategoryID  string `json:"categoryId"`
	Description string `json:"description"`
}

// NewPaymentMethod describes where buyers send top-up payments.
type NewPaymentMethod struct {
	Name        string `json:"name" validate:"required"`
	Address     string `json:"address" validate:"required"`
	AccountName string `json:"accountName"`
	Note        string `json:"note"`
	Icon        string `json:"icon"`
}

// DefaultSettings is served when the settings document cannot be read.
func DefaultSettings() models.Settings {
	return models.Settings{
		WebsiteName:  "Game Top-Up Shop",
		Announcement: "Welcome to our Game Top-Up Shop! Best prices guaranteed!",
		Theme:        "dark",
	}
}

func (r *Repository) GetSettings(ctx context.Context) models.Settings {
	settings, err := docstore.Load[models.Settings](ctx, r.store, r.bins.Settings, true)
	if err != nil {
		r.logger.Warn("settings_read_failed", zap.Error(err))
		return DefaultSettings()
	}
	if settings.WebsiteName == "" && settings.CreatedAt.IsZero() {
		return DefaultSettings()
	}
	return settings
}

func (r *Repository) UpdateSettings(ctx context.Context, patch models.SettingsPatch) (models.Settings, error) {
	return modify(ctx, r, r.bins.Settings, func(s *models.Settings) error {
		now := r.timestamp()
		if s.CreatedAt.IsZero() {
			defaults := DefaultSettings()
			defaults.CreatedAt = now
			*s = defaults
		}
		if patch.WebsiteName != nil {
			s.WebsiteName = *patch.WebsiteName
		}
		if patch.WebsiteLogo != nil {
			s.WebsiteLogo = *patch.WebsiteLogo
		}
		if patch.Announcement != nil {
			s.Announcement = *patch.Announcement
		}
		if patch.CustomEmojis != nil {
			s.CustomEmojis = *patch.CustomEmojis
		}
		if patch.Theme != nil {
			s.Theme = *patch.Theme
		}
		s.UpdatedAt = now
		return nil
	})
}

func (r *Repository) GetBanners(ctx context.Context) (models.Banners, error) {
	return load[models.Banners](ctx, r, r.bins.Banners)
}

func (r *Repository) ListHomeBanners(ctx context.Context) ([]models.Banner, error) {
	banners, err := r.GetBanners(ctx)
	return banners.Home, err
}

func (r *Repository) ListCategoryBanners(ctx context.Context, categoryID string) ([]models.Banner, error) {
	banners, err := r.GetBanners(ctx)
	if err != nil {
		return nil, err
	}
	out := make([]models.Banner, 0, len(banners.Category))
	for _, b := range banners.Category {
		if b.CategoryID == categoryID {
			out = append(out, b)
		}
	}
	return out, nil
}

func (r *Repository) CreateHomeBanner(ctx context.Context, image string) (models.Banner, error) {
	banner := models.Banner{ID: newID(), Image: image, CreatedAt: r.timestamp()}
	_, err := modify(ctx, r, r.bins.Banners, func(doc *models.Banners) error {
		doc.Home = append(doc.Home, banner)
		return nil
	})
	return banner, err
}

func (r *Repository) CreateCategoryBanner(ctx context.Context, in NewBanner) (models.Banner, error) {
	if in.CategoryID == "" {
		return models.Banner{}, errors.New("category banner needs a category")
	}
	banner := models.Banner{
		ID:          newID(),
		Image:       in.Image,
		CategoryID:  in.CategoryID,
		Description: in.Description,
		CreatedAt:   r.timestamp(),
	}
	_, err := modify(ctx, r, r.bins.Banners, func(doc *models.Banners) error {
		doc.Category = append(doc.Category, banner)
		return nil
	})
	return banner, err
}

// DeleteBanner removes a banner from the list named by kind (type1 or type2).
func (r *Repository) DeleteBanner(ctx context.Context, id, kind string) error {
	_, err := modify(ctx, r, r.bins.Banners, func(doc *models.Banners) error {
		list := &doc.Home
		if kind == models.BannerCategory {
			list = &doc.Category
		}
		kept := (*list)[:0]
		for _, b := range *list {
			if b.ID != id {
				kept = append(kept, b)
			}
		}
		if len(kept) == len(*list) {
			return ErrNotFound
		}
		*list = kept
		return nil
	})
	return err
}

func (r *Repository) DeleteCategoryBanners(ctx context.Context, categoryID string) error {
	_, err := modify(ctx, r, r.bins.Banners, func(doc *models.Banners) error {
		kept := doc.Category[:0]
		for _, b := range doc.Category {
			if b.CategoryID != categoryID {
				kept = append(kept, b)
			}
		}
		if len(kept) == len(doc.Category) {
			return docstore.ErrNoChange
		}
		doc.Category = kept
		return nil
	})
	return err
}

func (r *Repository) ListPaymentMethods(ctx context.Context) ([]models.PaymentMethod, error) {
	doc, err := load[paymentsDoc](ctx, r, r.bins.Payments)
	return doc.Payments, err
}

func (r *Repository) GetPaymentMethod(ctx context.Context, id string) (models.PaymentMethod, error) {
	methods, err := r.ListPaymentMethods(ctx)
	if err != nil {
		return models.PaymentMethod{}, err
	}
	for _, m := range methods {
		if m.ID == id {
			return m, nil
		}
	}
	return models.PaymentMethod{}, ErrNotFound
}

func (r *Repository) CreatePaymentMethod(ctx context.Context, in NewPaymentMethod) (models.PaymentMethod, error) {
	method := models.PaymentMethod{
		ID:          newID(),
		Name:        in.Name,
		Address:     in.Address,
		AccountName: in.AccountName,
		Note:        in.Note,
		Icon:        in.Icon,
		CreatedAt:   r.timestamp(),
	}
	_, err := modify(ctx, r, r.bins.Payments, func(doc *paymentsDoc) error {
		doc.Payments = append(doc.Payments, method)
		return nil
	})
	return method, err
}

func (r *Repository) UpdatePaymentMethod(ctx context.Context, id string, patch models.PaymentMethodPatch) (models.PaymentMethod, error) {
	var out models.PaymentMethod
	_, err := modify(ctx, r, r.bins.Payments, func(doc *paymentsDoc) error {
		for i := range doc.Payments {
			m := &doc.Payments[i]
			if m.ID != id {
				continue
			}
			if patch.Name != nil {
				m.Name = *patch.Name
			}
			if patch.Address != nil {
				m.Address = *patch.Address
			}
			if patch.AccountName != nil {
				m.AccountName = *patch.AccountName
			}
			if patch.Note != nil {
				m.Note = *patch.Note
			}
			if patch.Icon != nil {
				m.Icon = *patch.Icon
			}
			out = *m
			return nil
		}
		return ErrNotFound
	})
	return out, err
}

func (r *Repository) DeletePaymentMethod(ctx context.Context, id string) error {
	_, err := modify(ctx, r, r.bins.Payments, func(doc *paymentsDoc) error {
		kept := doc.Payments[:0]
		for _, m := range doc.Payments {
			if m.ID != id {
				kept = append(kept, m)
			}
		}
		if len(kept) == len(doc.Payments) {
			return ErrNotFound
		}
		doc.Payments = kept
		return nil
	})
	return err
}
