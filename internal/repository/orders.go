package repository

import (
	"context"
	"sort"

	"gameshop/internal/models"
)

type ordersDoc struct {
	Orders []models.Order `json:"orders" validate:"dive"`
}

type topupsDoc struct {
	Topups []models.Topup `json:"topups" validate:"dive"`
}

// NewOrder is a purchase ready to be stored as a pending order.
type NewOrder struct {
	UserID       string
	TelegramID   int64
	ProductID    string
	ProductName  string
	CategoryID   string
	CategoryName string
	Amount       int64
	Currency     string
	InputValues  map[string]string
}

// NewTopup is a balance top-up request with its payment proof.
type NewTopup struct {
	UserID        string
	TelegramID    int64
	Amount        int64
	PaymentMethod string
	ProofImage    string
}

// orderMatches accepts the record id or the display order id.
func orderMatches(o models.Order, id string) bool {
	return id != "" && (o.ID == id || o.OrderID == id)
}

func checkTransition(current, target string) error {
	if target != models.StatusApproved && target != models.StatusRejected {
		return ErrInvalidTransition
	}
	if current != models.StatusPending {
		return ErrAlreadyProcessed
	}
	return nil
}

func (r *Repository) ListOrders(ctx context.Context) ([]models.Order, error) {
	doc, err := load[ordersDoc](ctx, r, r.bins.Orders)
	return doc.Orders, err
}

// ListOrdersByUser returns the user's orders, newest first.
func (r *Repository) ListOrdersByUser(ctx context.Context, telegramID int64) ([]models.Order, error) {
	key := telegramKey(telegramID)
	return r.filterOrders(ctx, func(o models.Order) bool { return o.TelegramID == key })
}

// ListOrdersByStatus returns orders in status, newest first.
func (r *Repository) ListOrdersByStatus(ctx context.Context, status string) ([]models.Order, error) {
	return r.filterOrders(ctx, func(o models.Order) bool { return o.Status == status })
}

func (r *Repository) filterOrders(ctx context.Context, keep func(models.Order) bool) ([]models.Order, error) {
	orders, err := r.ListOrders(ctx)
	if err != nil {
		return nil, err
	}
	out := make([]models.Order, 0, len(orders))
	for _, o := range orders {
		if keep(o) {
			out = append(out, o)
		}
	}
	sort.SliceStable(out, func(i, j int) bool { return out[i].CreatedAt.After(out[j].CreatedAt) })
	return out, nil
}

func (r *Repository) GetOrder(ctx context.Context, id string) (models.Order, error) {
	orders, err := r.ListOrders(ctx)
	if err != nil {
		return models.Order{}, err
	}
	for _, o := range orders {
		if orderMatches(o, id) {
			return o, nil
		}
	}
	return models.Order{}, ErrNotFound
}

func (r *Repository) CreateOrder(ctx context.Context, in NewOrder) (models.Order, error) {
	now := r.timestamp()
	order := models.Order{
		ID:           newID(),
		OrderID:      newOrderID(now),
		UserID:       in.UserID,
		TelegramID:   telegramKey(in.TelegramID),
		ProductID:    in.ProductID,
		ProductName:  in.ProductName,
		CategoryID:   in.CategoryID,
		CategoryName: in.CategoryName,
		Amount:       in.Amount,
		Currency:     in.Currency,
		InputValues:  in.InputValues,
		Status:       models.StatusPending,
		CreatedAt:    now,
	}
	if order.Currency == "" {
		order.Currency = "MMK"
	}
	if order.InputValues == nil {
		order.InputValues = map[string]string{}
	}
	_, err := modify(ctx, r, r.bins.Orders, func(doc *ordersDoc) error {
		doc.Orders = append(doc.Orders, order)
		return nil
	})
	return order, err
}

// SetOrderStatus moves a pending order to approved or rejected. A terminal
// order is left untouched and ErrAlreadyProcessed is returned with it.
func (r *Repository) SetOrderStatus(ctx context.Context, id, status, processedBy string) (models.Order, error) {
	var out models.Order
	_, err := modify(ctx, r, r.bins.Orders, func(doc *ordersDoc) error {
		for i := range doc.Orders {
			o := &doc.Orders[i]
			if !orderMatches(*o, id) {
				continue
			}
			out = *o
			if err := checkTransition(o.Status, status); err != nil {
				return err
			}
			o.Status = status
			o.ProcessedAt = ptr(r.timestamp())
			o.ProcessedBy = ptr(processedBy)
			out = *o
			return nil
		}
		return ErrNotFound
	})
	return out, err
}

func (r *Repository) ListTopups(ctx context.Context) ([]models.Topup, error) {
	doc, err := load[topupsDoc](ctx, r, r.bins.Topups)
	return doc.Topups, err
}

// ListTopupsByUser returns the user's top-ups, newest first.
func (r *Repository) ListTopupsByUser(ctx context.Context, telegramID int64) ([]models.Topup, error) {
	key := telegramKey(telegramID)
	return r.filterTopups(ctx, func(t models.Topup) bool { return t.TelegramID == key })
}

// ListTopupsByStatus returns top-ups in status, newest first.
func (r *Repository) ListTopupsByStatus(ctx context.Context, status string) ([]models.Topup, error) {
	return r.filterTopups(ctx, func(t models.Topup) bool { return t.Status == status })
}

func (r *Repository) filterTopups(ctx context.Context, keep func(models.Topup) bool) ([]models.Topup, error) {
	topups, err := r.ListTopups(ctx)
	if err != nil {
		return nil, err
	}
	out := make([]models.Topup, 0, len(topups))
	for _, t := range topups {
		if keep(t) {
			out = append(out, t)
		}
	}
	sort.SliceStable(out, func(i, j int) bool { return out[i].CreatedAt.After(out[j].CreatedAt) })
	return out, nil
}

func (r *Repository) GetTopup(ctx context.Context, id string) (models.Topup, error) {
	topups, err := r.ListTopups(ctx)
	if err != nil {
		return models.Topup{}, err
	}
	for _, t := range topups {
		if t.ID == id {
			return t, nil
		}
	}
	return models.Topup{}, ErrNotFound
}

func (r *Repository) CreateTopup(ctx context.Context, in NewTopup) (models.Topup, error) {
	topup := models.Topup{
		ID:            newID(),
		UserID:        in.UserID,
		TelegramID:    telegramKey(in.TelegramID),
		Amount:        in.Amount,
		PaymentMethod: in.PaymentMethod,
		ProofImage:    in.ProofImage,
		Status:        models.StatusPending,
		CreatedAt:     r.timestamp(),
	}
	_, err := modify(ctx, r, r.bins.Topups, func(doc *topupsDoc) error {
		doc.Topups = append(doc.Topups, topup)
		return nil
	})
	return topup, err
}

// SetTopupStatus follows the same pending-only rule as SetOrderStatus.
func (r *Repository) SetTopupStatus(ctx context.Context, id, status, processedBy string) (models.Topup, error) {
	var out models.Topup
	_, err := modify(ctx, r, r.bins.Topups, func(doc *topupsDoc) error {
		for i := range doc.Topups {
			t := &doc.Topups[i]
			if t.ID != id {
				continue
			}
			out = *t
			if err := checkTransition(t.Status, status); err != nil {
				return err
			}
			t.Status = status
			t.ProcessedAt = ptr(r.timestamp())
			t.ProcessedBy = ptr(processedBy)
			out = *t
			return nil
		}
		return ErrNotFound
	})
	return out, err
}
