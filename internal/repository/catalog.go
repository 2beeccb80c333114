package repository

import (
	"context"
	"errors"
	"math"

	"gameshop/internal/docstore"
	"gameshop/internal/models"

	"go.uber.org/zap"
)

type categoriesDoc struct {
	Categories []models.Category `json:"categories" validate:"dive"`
}

type productsDoc struct {
	Products []models.Product `json:"products" validate:"dive"`
}

// DiscountedPrice is price less discount percent, rounded half away from zero.
func DiscountedPrice(price int64, discount int) int64 {
	if discount <= 0 {
		return price
	}
	return int64(math.Round(float64(price) - float64(price)*float64(discount)/100))
}

// NewCategory holds the admin-supplied fields of a category.
type NewCategory struct {
	Name        string `json:"name" validate:"required"`
	Icon        string `json:"icon"`
	Flag        string `json:"flag"`
	HasDiscount bool   `json:"hasDiscount"`
}

// NewProduct holds the admin-supplied fields of a product.
type NewProduct struct {
	CategoryID   string `json:"categoryId" validate:"required"`
	Name         string `json:"name" validate:"required"`
	Price        int64  `json:"price" validate:"gte=0"`
	Currency     string `json:"currency"`
	Discount     int    `json:"discount" validate:"gte=0,lte=100"`
	Icon         string `json:"icon"`
	DeliveryTime string `json:"deliveryTime"`
}

func (r *Repository) ListCategories(ctx context.Context) ([]models.Category, error) {
	doc, err := load[categoriesDoc](ctx, r, r.bins.Categories)
	return doc.Categories, err
}

func (r *Repository) GetCategory(ctx context.Context, id string) (models.Category, error) {
	categories, err := r.ListCategories(ctx)
	if err != nil {
		return models.Category{}, err
	}
	for _, c := range categories {
		if c.ID == id {
			return c, nil
		}
	}
	return models.Category{}, ErrNotFound
}

func (r *Repository) CreateCategory(ctx context.Context, in NewCategory) (models.Category, error) {
	now := r.timestamp()
	category := models.Category{
		ID:          newID(),
		Name:        in.Name,
		Icon:        in.Icon,
		Flag:        in.Flag,
		HasDiscount: in.HasDiscount,
		CreatedAt:   now,
		UpdatedAt:   now,
	}
	_, err := modify(ctx, r, r.bins.Categories, func(doc *categoriesDoc) error {
		doc.Categories = append(doc.Categories, category)
		return nil
	})
	return category, err
}

func (r *Repository) UpdateCategory(ctx context.Context, id string, patch models.CategoryPatch) (models.Category, error) {
	var out models.Category
	_, err := modify(ctx, r, r.bins.Categories, func(doc *categoriesDoc) error {
		for i := range doc.Categories {
			c := &doc.Categories[i]
			if c.ID != id {
				continue
			}
			if patch.Name != nil {
				c.Name = *patch.Name
			}
			if patch.Icon != nil {
				c.Icon = *patch.Icon
			}
			if patch.Flag != nil {
				c.Flag = *patch.Flag
			}
			if patch.HasDiscount != nil {
				c.HasDiscount = *patch.HasDiscount
			}
			c.UpdatedAt = r.timestamp()
			out = *c
			return nil
		}
		return ErrNotFound
	})
	return out, err
}

// DeleteCategory removes the category and then, in separate writes, its
// products, input fields and category banners. The first failure stops the
// cascade.
func (r *Repository) DeleteCategory(ctx context.Context, id string) error {
	_, err := modify(ctx, r, r.bins.Categories, func(doc *categoriesDoc) error {
		kept := doc.Categories[:0]
		for _, c := range doc.Categories {
			if c.ID != id {
				kept = append(kept, c)
			}
		}
		if len(kept) == len(doc.Categories) {
			return ErrNotFound
		}
		doc.Categories = kept
		return nil
	})
	if err != nil {
		return err
	}
	if err := r.DeleteProductsByCategory(ctx, id); err != nil {
		return err
	}
	if err := r.DeleteInputTablesByCategory(ctx, id); err != nil {
		return err
	}
	return r.DeleteCategoryBanners(ctx, id)
}

// IncrementCategorySold bumps totalSold; a missing category is not an error.
func (r *Repository) IncrementCategorySold(ctx context.Context, id string) error {
	_, err := modify(ctx, r, r.bins.Categories, func(doc *categoriesDoc) error {
		for i := range doc.Categories {
			if doc.Categories[i].ID == id {
				doc.Categories[i].TotalSold++
				return nil
			}
		}
		return docstore.ErrNoChange
	})
	return err
}

// SyncCategoryDiscount sets hasDiscount from whether any product of the
// category currently carries a discount.
func (r *Repository) SyncCategoryDiscount(ctx context.Context, categoryID string) error {
	products, err := load[productsDoc](ctx, r, r.bins.Products)
	if err != nil {
		return err
	}
	hasDiscount := false
	for _, p := range products.Products {
		if p.CategoryID == categoryID && p.Discount > 0 {
			hasDiscount = true
			break
		}
	}
	_, err = modify(ctx, r, r.bins.Categories, func(doc *categoriesDoc) error {
		for i := range doc.Categories {
			c := &doc.Categories[i]
			if c.ID != categoryID {
				continue
			}
			if c.HasDiscount == hasDiscount {
				return docstore.ErrNoChange
			}
			c.HasDiscount = hasDiscount
			c.UpdatedAt = r.timestamp()
			return nil
		}
		return docstore.ErrNoChange
	})
	return err
}

func (r *Repository) ListProducts(ctx context.Context) ([]models.Product, error) {
	doc, err := load[productsDoc](ctx, r, r.bins.Products)
	return doc.Products, err
}

func (r *Repository) ListProductsByCategory(ctx context.Context, categoryID string) ([]models.Product, error) {
	products, err := r.ListProducts(ctx)
	if err != nil {
		return nil, err
	}
	out := make([]models.Product, 0, len(products))
	for _, p := range products {
		if p.CategoryID == categoryID {
			out = append(out, p)
		}
	}
	return out, nil
}

func (r *Repository) GetProduct(ctx context.Context, id string) (models.Product, error) {
	products, err := r.ListProducts(ctx)
	if err != nil {
		return models.Product{}, err
	}
	for _, p := range products {
		if p.ID == id {
			return p, nil
		}
	}
	return models.Product{}, ErrNotFound
}

func (r *Repository) CreateProduct(ctx context.Context, in NewProduct) (models.Product, error) {
	now := r.timestamp()
	product := models.Product{
		ID:              newID(),
		CategoryID:      in.CategoryID,
		Name:            in.Name,
		Price:           in.Price,
		Currency:        in.Currency,
		Discount:        in.Discount,
		DiscountedPrice: DiscountedPrice(in.Price, in.Discount),
		Icon:            in.Icon,
		DeliveryTime:    in.DeliveryTime,
		CreatedAt:       now,
		UpdatedAt:       now,
	}
	if product.Currency == "" {
		product.Currency = "MMK"
	}
	if product.DeliveryTime == "" {
		product.DeliveryTime = "instant"
	}
	_, err := modify(ctx, r, r.bins.Products, func(doc *productsDoc) error {
		doc.Products = append(doc.Products, product)
		return nil
	})
	if err != nil {
		return product, err
	}
	r.syncDiscount(ctx, product.CategoryID)
	return product, nil
}

// UpdateProduct merges patch into the product. discountedPrice is recomputed
// whenever price or discount is part of the patch.
func (r *Repository) UpdateProduct(ctx context.Context, id string, patch models.ProductPatch) (models.Product, error) {
	var out models.Product
	var previousCategory string
	_, err := modify(ctx, r, r.bins.Products, func(doc *productsDoc) error {
		for i := range doc.Products {
			p := &doc.Products[i]
			if p.ID != id {
				continue
			}
			previousCategory = p.CategoryID
			if patch.CategoryID != nil {
				p.CategoryID = *patch.CategoryID
			}
			if patch.Name != nil {
				p.Name = *patch.Name
			}
			if patch.Currency != nil {
				p.Currency = *patch.Currency
			}
			if patch.Icon != nil {
				p.Icon = *patch.Icon
			}
			if patch.DeliveryTime != nil {
				p.DeliveryTime = *patch.DeliveryTime
			}
			if patch.Price != nil || patch.Discount != nil {
				if patch.Price != nil {
					p.Price = *patch.Price
				}
				if patch.Discount != nil {
					p.Discount = *patch.Discount
				}
				p.DiscountedPrice = DiscountedPrice(p.Price, p.Discount)
			}
			p.UpdatedAt = r.timestamp()
			out = *p
			return nil
		}
		return ErrNotFound
	})
	if err != nil {
		return out, err
	}
	r.syncDiscount(ctx, out.CategoryID)
	if previousCategory != out.CategoryID {
		r.syncDiscount(ctx, previousCategory)
	}
	return out, nil
}

func (r *Repository) DeleteProduct(ctx context.Context, id string) error {
	var categoryID string
	_, err := modify(ctx, r, r.bins.Products, func(doc *productsDoc) error {
		kept := doc.Products[:0]
		for _, p := range doc.Products {
			if p.ID == id {
				categoryID = p.CategoryID
				continue
			}
			kept = append(kept, p)
		}
		if len(kept) == len(doc.Products) {
			return ErrNotFound
		}
		doc.Products = kept
		return nil
	})
	if err != nil {
		return err
	}
	r.syncDiscount(ctx, categoryID)
	return nil
}

func (r *Repository) DeleteProductsByCategory(ctx context.Context, categoryID string) error {
	_, err := modify(ctx, r, r.bins.Products, func(doc *productsDoc) error {
		kept := doc.Products[:0]
		for _, p := range doc.Products {
			if p.CategoryID != categoryID {
				kept = append(kept, p)
			}
		}
		if len(kept) == len(doc.Products) {
			return docstore.ErrNoChange
		}
		doc.Products = kept
		return nil
	})
	return err
}

// IncrementProductSold bumps the product and then its category.
func (r *Repository) IncrementProductSold(ctx context.Context, id string) error {
	var categoryID string
	_, err := modify(ctx, r, r.bins.Products, func(doc *productsDoc) error {
		for i := range doc.Products {
			if doc.Products[i].ID == id {
				doc.Products[i].Sold++
				categoryID = doc.Products[i].CategoryID
				return nil
			}
		}
		return docstore.ErrNoChange
	})
	if err != nil || categoryID == "" {
		return err
	}
	return r.IncrementCategorySold(ctx, categoryID)
}

// syncDiscount is best effort: the product write already succeeded.
func (r *Repository) syncDiscount(ctx context.Context, categoryID string) {
	if categoryID == "" {
		return
	}
	if err := r.SyncCategoryDiscount(ctx, categoryID); err != nil && !errors.Is(err, context.Canceled) {
		r.logger.Warn("category_discount_sync_failed", zap.String("category_id", categoryID), zap.Error(err))
	}
}
