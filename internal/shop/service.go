// Package shop runs the purchase, order, top-up and ban flows on top of the
// repository and tells the people involved through the notifier.
package shop

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"sync"
	"time"

	"gameshop/internal/integrations"
	"gameshop/internal/models"
	"gameshop/internal/repository"

	"go.uber.org/zap"
)

const autoBanReason = "Exceeded maximum failed purchase attempts"

var (
	ErrBanned       = errors.New("user is banned")
	ErrInvalidInput = errors.New("invalid input")
	// ErrPartial marks a stored status change whose follow-up writes failed.
	ErrPartial = errors.New("status stored but follow-up failed")
)

// InsufficientBalanceError reports a refused purchase and where the user
// stands against the failed attempt limit.
type InsufficientBalanceError struct {
	Required  int64
	Balance   int64
	Attempts  int
	Remaining int
	Banned    bool
}

func (e *InsufficientBalanceError) Error() string {
	if e.Banned {
		return "insufficient balance: account banned after too many failed attempts"
	}
	return fmt.Sprintf("insufficient balance: %d attempts remaining today", e.Remaining)
}

func (e *InsufficientBalanceError) Unwrap() error {
	return repository.ErrInsufficientBalance
}

// Notifier delivers shop events. Failures never fail a flow.
type Notifier interface {
	NotifyNewOrder(order models.Order, user models.User) error
	NotifyNewTopup(topup models.Topup, user models.User) error
	NotifyOrderStatus(order models.Order) error
	NotifyTopupStatus(topup models.Topup) error
	NotifyBan(telegramID int64, reason string) error
	NotifyUnban(telegramID int64) error
}

type Options struct {
	MaxFailedAttempts int
	BroadcastDelay    time.Duration
	Logger            *zap.Logger
}

type Service struct {
	repo      *repository.Repository
	notifier  Notifier
	sender    integrations.MessageSender
	maxFailed int
	delay     time.Duration
	logger    *zap.Logger

	baseCtx    context.Context
	cancel     context.CancelFunc
	wg         sync.WaitGroup
	mu         sync.Mutex
	broadcasts map[string]*models.Broadcast
}

func New(repo *repository.Repository, notifier Notifier, sender integrations.MessageSender, opts Options) *Service {
	if opts.MaxFailedAttempts <= 0 {
		opts.MaxFailedAttempts = 5
	}
	if opts.BroadcastDelay <= 0 {
		opts.BroadcastDelay = 50 * time.Millisecond
	}
	if opts.Logger == nil {
		opts.Logger = zap.NewNop()
	}
	ctx, cancel := context.WithCancel(context.Background())
	return &Service{
		repo:       repo,
		notifier:   notifier,
		sender:     sender,
		maxFailed:  opts.MaxFailedAttempts,
		delay:      opts.BroadcastDelay,
		logger:     opts.Logger,
		baseCtx:    ctx,
		cancel:     cancel,
		broadcasts: make(map[string]*models.Broadcast),
	}
}

// Close stops running broadcasts and waits for them to exit.
func (s *Service) Close() {
	s.cancel()
	s.wg.Wait()
}

// PurchaseRequest is a buyer's order for one product.
type PurchaseRequest struct {
	TelegramID  int64
	ProductID   string
	InputValues map[string]string
}

// Purchase debits the discounted price and records a pending order. A
// refused purchase counts towards the daily failed attempt limit; reaching
// it bans the user.
func (s *Service) Purchase(ctx context.Context, req PurchaseRequest) (models.Order, error) {
	logger := s.logger.With(zap.Int64("telegram_id", req.TelegramID), zap.String("product_id", req.ProductID))

	if err := s.ensureNotBanned(ctx, req.TelegramID); err != nil {
		return models.Order{}, err
	}
	user, err := s.repo.GetUserByTelegramID(ctx, req.TelegramID)
	if err != nil {
		return models.Order{}, fmt.Errorf("user: %w", err)
	}
	product, err := s.repo.GetProduct(ctx, req.ProductID)
	if err != nil {
		return models.Order{}, fmt.Errorf("product: %w", err)
	}
	categoryName := ""
	if category, err := s.repo.GetCategory(ctx, product.CategoryID); err == nil {
		categoryName = category.Name
	}
	inputs, err := s.collectInputs(ctx, product.CategoryID, req.InputValues)
	if err != nil {
		return models.Order{}, err
	}

	price := repository.DiscountedPrice(product.Price, product.Discount)
	debited, err := s.repo.DebitForOrder(ctx, req.TelegramID, price)
	if errors.Is(err, repository.ErrInsufficientBalance) {
		return models.Order{}, s.failedPurchase(ctx, logger, debited, price)
	}
	if err != nil {
		return models.Order{}, err
	}

	order, err := s.repo.CreateOrder(ctx, repository.NewOrder{
		UserID:       user.ID,
		TelegramID:   req.TelegramID,
		ProductID:    product.ID,
		ProductName:  product.Name,
		CategoryID:   product.CategoryID,
		CategoryName: categoryName,
		Amount:       price,
		Currency:     product.Currency,
		InputValues:  inputs,
	})
	if err != nil {
		if _, revertErr := s.repo.RevertOrderDebit(ctx, req.TelegramID, price); revertErr != nil {
			logger.Error("purchase_revert_failed", zap.Int64("amount", price), zap.Error(revertErr))
			return models.Order{}, errors.Join(err, revertErr)
		}
		logger.Warn("purchase_reverted", zap.Int64("amount", price), zap.Error(err))
		return models.Order{}, err
	}

	logger.Info("order_created", zap.String("order_id", order.OrderID), zap.Int64("amount", price))
	s.notify("notify_new_order", func() error { return s.notifier.NotifyNewOrder(order, debited) })
	return order, nil
}

func (s *Service) failedPurchase(ctx context.Context, logger *zap.Logger, user models.User, price int64) error {
	telegramID, _ := strconv.ParseInt(user.TelegramID, 10, 64)
	attempts, err := s.repo.IncrementFailedAttempts(ctx, telegramID)
	if err != nil {
		return err
	}
	insufficient := &InsufficientBalanceError{
		Required: price,
		Balance:  user.Balance,
		Attempts: attempts,
	}
	if attempts < s.maxFailed {
		insufficient.Remaining = s.maxFailed - attempts
		logger.Warn("purchase_insufficient_balance", zap.Int("attempts", attempts))
		return insufficient
	}

	insufficient.Banned = true
	added, err := s.repo.BanUser(ctx, repository.BanRequest{
		TelegramID: telegramID,
		Username:   user.Username,
		FirstName:  user.FirstName,
		Reason:     autoBanReason,
		BannedBy:   "system",
	})
	if err != nil {
		return errors.Join(insufficient, err)
	}
	logger.Warn("user_auto_banned", zap.Int("attempts", attempts))
	if added {
		s.notify("notify_ban", func() error { return s.notifier.NotifyBan(telegramID, autoBanReason) })
	}
	return insufficient
}

// collectInputs requires a non-empty value for every input field of the
// category and keeps only those fields.
func (s *Service) collectInputs(ctx context.Context, categoryID string, values map[string]string) (map[string]string, error) {
	fields, err := s.repo.ListInputTablesByCategory(ctx, categoryID)
	if err != nil {
		return nil, err
	}
	if len(fields) == 0 {
		out := make(map[string]string, len(values))
		for k, v := range values {
			out[k] = strings.TrimSpace(v)
		}
		return out, nil
	}
	out := make(map[string]string, len(fields))
	var missing []string
	for _, f := range fields {
		v := strings.TrimSpace(values[f.Name])
		if v == "" {
			missing = append(missing, f.Name)
			continue
		}
		out[f.Name] = v
	}
	if len(missing) > 0 {
		return nil, fmt.Errorf("%w: missing %s", ErrInvalidInput, strings.Join(missing, ", "))
	}
	return out, nil
}

// ApproveOrder marks a pending order approved and then records the user's
// spend and the sold counters. Failures after the status change are joined.
func (s *Service) ApproveOrder(ctx context.Context, id, adminID string) (models.Order, error) {
	order, err := s.repo.SetOrderStatus(ctx, id, models.StatusApproved, adminID)
	if err != nil {
		return order, err
	}
	var errs []error
	if telegramID, err := parseTelegramID(order.TelegramID); err != nil {
		errs = append(errs, err)
	} else if _, err := s.repo.RecordOrderApproved(ctx, telegramID, order.Amount); err != nil {
		errs = append(errs, fmt.Errorf("user stats: %w", err))
	}
	if err := s.repo.IncrementProductSold(ctx, order.ProductID); err != nil {
		errs = append(errs, fmt.Errorf("sold counters: %w", err))
	}

	s.logger.Info("order_approved", zap.String("order_id", order.OrderID), zap.String("admin", adminID), zap.Int("step_errors", len(errs)))
	s.notify("notify_order_status", func() error { return s.notifier.NotifyOrderStatus(order) })
	return order, partial(errors.Join(errs...))
}

// RejectOrder marks a pending order rejected and refunds the amount.
func (s *Service) RejectOrder(ctx context.Context, id, adminID string) (models.Order, error) {
	order, err := s.repo.SetOrderStatus(ctx, id, models.StatusRejected, adminID)
	if err != nil {
		return order, err
	}
	var stepErr error
	if telegramID, err := parseTelegramID(order.TelegramID); err != nil {
		stepErr = err
	} else if _, err := s.repo.RecordOrderRejected(ctx, telegramID, order.Amount); err != nil {
		stepErr = fmt.Errorf("refund: %w", err)
	}

	s.logger.Info("order_rejected", zap.String("order_id", order.OrderID), zap.String("admin", adminID), zap.Bool("refund_failed", stepErr != nil))
	s.notify("notify_order_status", func() error { return s.notifier.NotifyOrderStatus(order) })
	return order, partial(stepErr)
}

// TopupRequest is a balance top-up submitted with a payment proof.
type TopupRequest struct {
	TelegramID    int64
	Amount        int64
	PaymentMethod string
	ProofImage    string
}

func (s *Service) SubmitTopup(ctx context.Context, req TopupRequest) (models.Topup, error) {
	if req.Amount <= 0 {
		return models.Topup{}, fmt.Errorf("%w: amount must be positive", ErrInvalidInput)
	}
	if strings.TrimSpace(req.PaymentMethod) == "" || strings.TrimSpace(req.ProofImage) == "" {
		return models.Topup{}, fmt.Errorf("%w: payment method and proof are required", ErrInvalidInput)
	}
	if err := s.ensureNotBanned(ctx, req.TelegramID); err != nil {
		return models.Topup{}, err
	}
	user, err := s.repo.GetUserByTelegramID(ctx, req.TelegramID)
	if err != nil {
		return models.Topup{}, fmt.Errorf("user: %w", err)
	}
	topup, err := s.repo.CreateTopup(ctx, repository.NewTopup{
		UserID:        user.ID,
		TelegramID:    req.TelegramID,
		Amount:        req.Amount,
		PaymentMethod: req.PaymentMethod,
		ProofImage:    req.ProofImage,
	})
	if err != nil {
		return models.Topup{}, err
	}
	s.logger.Info("topup_submitted", zap.Int64("telegram_id", req.TelegramID), zap.String("topup_id", topup.ID), zap.Int64("amount", topup.Amount))
	s.notify("notify_new_topup", func() error { return s.notifier.NotifyNewTopup(topup, user) })
	return topup, nil
}

// ApproveTopup marks a pending top-up approved and credits the user.
func (s *Service) ApproveTopup(ctx context.Context, id, adminID string) (models.Topup, error) {
	topup, err := s.repo.SetTopupStatus(ctx, id, models.StatusApproved, adminID)
	if err != nil {
		return topup, err
	}
	var stepErr error
	if telegramID, err := parseTelegramID(topup.TelegramID); err != nil {
		stepErr = err
	} else if _, err := s.repo.RecordTopupApproved(ctx, telegramID, topup.Amount); err != nil {
		stepErr = fmt.Errorf("credit: %w", err)
	}
	s.logger.Info("topup_approved", zap.String("topup_id", topup.ID), zap.String("admin", adminID), zap.Bool("credit_failed", stepErr != nil))
	s.notify("notify_topup_status", func() error { return s.notifier.NotifyTopupStatus(topup) })
	return topup, partial(stepErr)
}

// RejectTopup marks a pending top-up rejected. Balances are not touched.
func (s *Service) RejectTopup(ctx context.Context, id, adminID string) (models.Topup, error) {
	topup, err := s.repo.SetTopupStatus(ctx, id, models.StatusRejected, adminID)
	if err != nil {
		return topup, err
	}
	s.logger.Info("topup_rejected", zap.String("topup_id", topup.ID), zap.String("admin", adminID))
	s.notify("notify_topup_status", func() error { return s.notifier.NotifyTopupStatus(topup) })
	return topup, nil
}

func (s *Service) BanUser(ctx context.Context, telegramID int64, reason, adminID string) error {
	req := repository.BanRequest{TelegramID: telegramID, Reason: reason, BannedBy: adminID}
	if user, err := s.repo.GetUserByTelegramID(ctx, telegramID); err == nil {
		req.Username = user.Username
		req.FirstName = user.FirstName
	}
	added, err := s.repo.BanUser(ctx, req)
	if err != nil {
		return err
	}
	s.logger.Info("user_banned", zap.Int64("telegram_id", telegramID), zap.String("admin", adminID), zap.Bool("added", added))
	if added {
		if reason == "" {
			reason = "Violated terms of service"
		}
		s.notify("notify_ban", func() error { return s.notifier.NotifyBan(telegramID, reason) })
	}
	return nil
}

func (s *Service) UnbanUser(ctx context.Context, telegramID int64, adminID string) error {
	removed, err := s.repo.UnbanUser(ctx, telegramID)
	if err != nil {
		return err
	}
	if !removed {
		return nil
	}
	s.logger.Info("user_unbanned", zap.Int64("telegram_id", telegramID), zap.String("admin", adminID))
	s.notify("notify_unban", func() error { return s.notifier.NotifyUnban(telegramID) })
	return nil
}

// AdjustBalance applies an admin balance change (add, subtract or set).
func (s *Service) AdjustBalance(ctx context.Context, telegramID, amount int64, operation, adminID string) (models.User, error) {
	if amount < 0 {
		return models.User{}, fmt.Errorf("%w: amount must not be negative", ErrInvalidInput)
	}
	user, err := s.repo.UpdateUserBalance(ctx, telegramID, amount, operation)
	if errors.Is(err, repository.ErrInvalidOperation) {
		return models.User{}, fmt.Errorf("%w: %v", ErrInvalidInput, err)
	}
	if err != nil {
		return models.User{}, err
	}
	s.logger.Info("balance_adjusted", zap.Int64("telegram_id", telegramID), zap.String("operation", operation),
		zap.Int64("amount", amount), zap.Int64("balance", user.Balance), zap.String("admin", adminID))
	return user, nil
}

func (s *Service) ensureNotBanned(ctx context.Context, telegramID int64) error {
	banned, err := s.repo.IsBanned(ctx, telegramID)
	if err != nil {
		return err
	}
	if banned {
		return ErrBanned
	}
	return nil
}

// notify sends in the background; Close waits for pending sends.
func (s *Service) notify(event string, send func() error) {
	if s.notifier == nil {
		return
	}
	s.wg.Add(1)
	go func() {
		defer s.wg.Done()
		if err := send(); err != nil && !errors.Is(err, integrations.ErrNotifierDisabled) {
			s.logger.Warn(event+"_failed", zap.Error(err))
		}
	}()
}

func partial(err error) error {
	if err == nil {
		return nil
	}
	return fmt.Errorf("%w: %w", ErrPartial, err)
}

func parseTelegramID(raw string) (int64, error) {
	id, err := strconv.ParseInt(raw, 10, 64)
	if err != nil {
		return 0, fmt.Errorf("bad telegram id %q: %w", raw, err)
	}
	return id, nil
}
