package shop

import (
	"context"
	"encoding/json"
	"errors"
	"sync"
	"testing"
	"time"

	"gameshop/internal/config"
	"gameshop/internal/docstore"
	"gameshop/internal/models"
	"gameshop/internal/repository"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var testBins = config.Bins{
	Settings:    "settings",
	Users:       "users",
	Products:    "products",
	Categories:  "categories",
	Orders:      "orders",
	Topups:      "topups",
	Banners:     "banners",
	Payments:    "payments",
	InputTables: "input_tables",
	Banned:      "banned",
}

type fakeNotifier struct {
	mu       sync.Mutex
	events   []string
	bans     []int64
	statuses []string
}

func (f *fakeNotifier) record(event string) error {
	f.mu.Lock()
	f.events = append(f.events, event)
	f.mu.Unlock()
	return nil
}

func (f *fakeNotifier) NotifyNewOrder(models.Order, models.User) error { return f.record("new_order") }
func (f *fakeNotifier) NotifyNewTopup(models.Topup, models.User) error { return f.record("new_topup") }
func (f *fakeNotifier) NotifyOrderStatus(o models.Order) error {
	f.mu.Lock()
	f.statuses = append(f.statuses, o.Status)
	f.mu.Unlock()
	return f.record("order_status")
}
func (f *fakeNotifier) NotifyTopupStatus(models.Topup) error { return f.record("topup_status") }
func (f *fakeNotifier) NotifyBan(id int64, _ string) error {
	f.mu.Lock()
	f.bans = append(f.bans, id)
	f.mu.Unlock()
	return f.record("ban")
}
func (f *fakeNotifier) NotifyUnban(int64) error { return f.record("unban") }

// failingBackend refuses writes to one collection.
type failingBackend struct {
	*docstore.Memory
	failPut string
}

func (b *failingBackend) Put(ctx context.Context, id string, record json.RawMessage, ifMatch string) (docstore.Document, error) {
	if id == b.failPut {
		return docstore.Document{}, &docstore.APIError{Op: "write", Status: 500, Body: "boom"}
	}
	return b.Memory.Put(ctx, id, record, ifMatch)
}

type fixture struct {
	svc      *Service
	repo     *repository.Repository
	backend  *failingBackend
	notifier *fakeNotifier
	product  models.Product
	category models.Category
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	backend := &failingBackend{Memory: docstore.NewMemory()}
	repo := repository.New(docstore.New(backend, docstore.Options{}), testBins, nil)
	notifier := &fakeNotifier{}
	svc := New(repo, notifier, nil, Options{MaxFailedAttempts: 5})
	t.Cleanup(svc.Close)

	ctx := context.Background()
	category, err := repo.CreateCategory(ctx, repository.NewCategory{Name: "Mobile Legends"})
	require.NoError(t, err)
	product, err := repo.CreateProduct(ctx, repository.NewProduct{CategoryID: category.ID, Name: "86 Diamonds", Price: 5000, Discount: 20})
	require.NoError(t, err)
	return &fixture{svc: svc, repo: repo, backend: backend, notifier: notifier, product: product, category: category}
}

func (f *fixture) user(t *testing.T, telegramID, balance int64) {
	t.Helper()
	ctx := context.Background()
	_, err := f.repo.UpsertUser(ctx, models.UserProfile{TelegramID: telegramID, FirstName: "Buyer"})
	require.NoError(t, err)
	_, err = f.repo.UpdateUserBalance(ctx, telegramID, balance, models.BalanceSet)
	require.NoError(t, err)
}

func (f *fixture) balance(t *testing.T, telegramID int64) models.User {
	t.Helper()
	u, err := f.repo.GetUserByTelegramID(context.Background(), telegramID)
	require.NoError(t, err)
	return u
}

func TestPurchaseRejectRefundsAndApproveRecordsSpend(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	f.user(t, 100, 10000)

	order, err := f.svc.Purchase(ctx, PurchaseRequest{TelegramID: 100, ProductID: f.product.ID})
	require.NoError(t, err)
	assert.Equal(t, int64(4000), order.Amount)
	assert.Equal(t, models.StatusPending, order.Status)
	assert.Equal(t, "Mobile Legends", order.CategoryName)

	u := f.balance(t, 100)
	assert.Equal(t, int64(6000), u.Balance)
	assert.Equal(t, 1, u.TotalOrders)

	_, err = f.svc.RejectOrder(ctx, order.ID, "admin")
	require.NoError(t, err)
	u = f.balance(t, 100)
	assert.Equal(t, int64(10000), u.Balance)
	assert.Equal(t, 1, u.RejectedOrders)

	second, err := f.svc.Purchase(ctx, PurchaseRequest{TelegramID: 100, ProductID: f.product.ID})
	require.NoError(t, err)
	_, err = f.svc.ApproveOrder(ctx, second.ID, "admin")
	require.NoError(t, err)

	u = f.balance(t, 100)
	assert.Equal(t, int64(6000), u.Balance)
	assert.Equal(t, 1, u.ApprovedOrders)
	assert.Equal(t, int64(4000), u.TotalSpent)
	assert.Equal(t, 2, u.TotalOrders)

	product, err := f.repo.GetProduct(ctx, f.product.ID)
	require.NoError(t, err)
	assert.Equal(t, 1, product.Sold)
	category, err := f.repo.GetCategory(ctx, f.category.ID)
	require.NoError(t, err)
	assert.Equal(t, 1, category.TotalSold)

	f.svc.wg.Wait()
	assert.ElementsMatch(t, []string{models.StatusRejected, models.StatusApproved}, f.notifier.statuses)
}

func TestProcessedOrderIsNotProcessedAgain(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	f.user(t, 100, 10000)

	order, err := f.svc.Purchase(ctx, PurchaseRequest{TelegramID: 100, ProductID: f.product.ID})
	require.NoError(t, err)
	_, err = f.svc.RejectOrder(ctx, order.ID, "admin")
	require.NoError(t, err)

	_, err = f.svc.RejectOrder(ctx, order.ID, "admin")
	require.ErrorIs(t, err, repository.ErrAlreadyProcessed)
	_, err = f.svc.ApproveOrder(ctx, order.ID, "admin")
	require.ErrorIs(t, err, repository.ErrAlreadyProcessed)

	u := f.balance(t, 100)
	assert.Equal(t, int64(10000), u.Balance)
	assert.Equal(t, 1, u.RejectedOrders)
	assert.Equal(t, 0, u.ApprovedOrders)
}

func TestFailedPurchasesBanAtLimit(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	f.user(t, 200, 100)

	for attempt := 1; attempt <= 4; attempt++ {
		_, err := f.svc.Purchase(ctx, PurchaseRequest{TelegramID: 200, ProductID: f.product.ID})
		var insufficient *InsufficientBalanceError
		require.ErrorAs(t, err, &insufficient)
		assert.Equal(t, attempt, insufficient.Attempts)
		assert.Equal(t, 5-attempt, insufficient.Remaining)
		assert.False(t, insufficient.Banned)
	}

	_, err := f.svc.Purchase(ctx, PurchaseRequest{TelegramID: 200, ProductID: f.product.ID})
	var insufficient *InsufficientBalanceError
	require.ErrorAs(t, err, &insufficient)
	assert.True(t, insufficient.Banned)
	assert.ErrorIs(t, err, repository.ErrInsufficientBalance)

	banned, err := f.repo.IsBanned(ctx, 200)
	require.NoError(t, err)
	assert.True(t, banned)
	f.svc.wg.Wait()
	assert.Equal(t, []int64{200}, f.notifier.bans)

	_, err = f.svc.Purchase(ctx, PurchaseRequest{TelegramID: 200, ProductID: f.product.ID})
	assert.ErrorIs(t, err, ErrBanned)

	u := f.balance(t, 200)
	assert.Equal(t, int64(100), u.Balance)
	assert.Equal(t, 0, u.TotalOrders)
}

func TestPurchaseRequiresCategoryInputs(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	f.user(t, 300, 10000)
	_, err := f.repo.CreateInputTable(ctx, repository.NewInputTable{CategoryID: f.category.ID, Name: "Player ID"})
	require.NoError(t, err)

	_, err = f.svc.Purchase(ctx, PurchaseRequest{TelegramID: 300, ProductID: f.product.ID, InputValues: map[string]string{"Zone": "1"}})
	require.ErrorIs(t, err, ErrInvalidInput)

	order, err := f.svc.Purchase(ctx, PurchaseRequest{TelegramID: 300, ProductID: f.product.ID, InputValues: map[string]string{"Player ID": " 123 ", "Zone": "1"}})
	require.NoError(t, err)
	assert.Equal(t, map[string]string{"Player ID": "123"}, order.InputValues)
}

func TestPurchaseRevertsDebitWhenOrderWriteFails(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	f.user(t, 400, 10000)
	f.backend.failPut = testBins.Orders

	_, err := f.svc.Purchase(ctx, PurchaseRequest{TelegramID: 400, ProductID: f.product.ID})
	var apiErr *docstore.APIError
	require.ErrorAs(t, err, &apiErr)

	u := f.balance(t, 400)
	assert.Equal(t, int64(10000), u.Balance)
	assert.Equal(t, 0, u.TotalOrders)
}

func TestTopupLifecycle(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	f.user(t, 500, 0)

	_, err := f.svc.SubmitTopup(ctx, TopupRequest{TelegramID: 500, Amount: 0, PaymentMethod: "KBZPay", ProofImage: "x"})
	require.ErrorIs(t, err, ErrInvalidInput)

	approved, err := f.svc.SubmitTopup(ctx, TopupRequest{TelegramID: 500, Amount: 10000, PaymentMethod: "KBZPay", ProofImage: "https://cdn/p.jpg"})
	require.NoError(t, err)
	rejected, err := f.svc.SubmitTopup(ctx, TopupRequest{TelegramID: 500, Amount: 7000, PaymentMethod: "WavePay", ProofImage: "https://cdn/q.jpg"})
	require.NoError(t, err)

	_, err = f.svc.ApproveTopup(ctx, approved.ID, "admin")
	require.NoError(t, err)
	_, err = f.svc.RejectTopup(ctx, rejected.ID, "admin")
	require.NoError(t, err)
	_, err = f.svc.ApproveTopup(ctx, approved.ID, "admin")
	require.ErrorIs(t, err, repository.ErrAlreadyProcessed)

	u := f.balance(t, 500)
	assert.Equal(t, int64(10000), u.Balance)
	assert.Equal(t, 1, u.TotalTopups)
}

func TestBanUnbanNotifies(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	f.user(t, 600, 0)

	require.NoError(t, f.svc.BanUser(ctx, 600, "fraud", "admin"))
	require.NoError(t, f.svc.BanUser(ctx, 600, "fraud", "admin"))
	_, err := f.svc.SubmitTopup(ctx, TopupRequest{TelegramID: 600, Amount: 1, PaymentMethod: "KBZPay", ProofImage: "x"})
	require.ErrorIs(t, err, ErrBanned)

	require.NoError(t, f.svc.UnbanUser(ctx, 600, "admin"))
	f.svc.wg.Wait()
	assert.Equal(t, []int64{600}, f.notifier.bans)
	assert.Contains(t, f.notifier.events, "unban")
}

func TestUnbanWithoutBanSendsNothing(t *testing.T) {
	f := newFixture(t)
	f.user(t, 650, 0)

	require.NoError(t, f.svc.UnbanUser(context.Background(), 650, "admin"))
	f.svc.wg.Wait()
	assert.NotContains(t, f.notifier.events, "unban")
}

// slowNotifier holds order status messages until release is closed.
type slowNotifier struct {
	fakeNotifier
	release chan struct{}
}

func (n *slowNotifier) NotifyOrderStatus(o models.Order) error {
	<-n.release
	return n.fakeNotifier.NotifyOrderStatus(o)
}

func TestNotificationsDoNotBlockFlows(t *testing.T) {
	backend := docstore.NewMemory()
	repo := repository.New(docstore.New(backend, docstore.Options{}), testBins, nil)
	notifier := &slowNotifier{release: make(chan struct{})}
	svc := New(repo, notifier, nil, Options{MaxFailedAttempts: 5})

	ctx := context.Background()
	_, err := repo.UpsertUser(ctx, models.UserProfile{TelegramID: 800, FirstName: "Buyer"})
	require.NoError(t, err)
	order, err := repo.CreateOrder(ctx, repository.NewOrder{TelegramID: 800, ProductID: "p", Amount: 100})
	require.NoError(t, err)

	done := make(chan error, 1)
	go func() {
		_, err := svc.RejectOrder(ctx, order.ID, "admin")
		done <- err
	}()
	select {
	case err := <-done:
		require.NoError(t, err)
	case <-time.After(2 * time.Second):
		t.Fatal("RejectOrder waited for the notifier")
	}

	close(notifier.release)
	svc.Close()
	assert.Equal(t, []string{models.StatusRejected}, notifier.statuses)
}

func TestAdjustBalance(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	f.user(t, 700, 1000)

	u, err := f.svc.AdjustBalance(ctx, 700, 500, models.BalanceAdd, "admin")
	require.NoError(t, err)
	assert.Equal(t, int64(1500), u.Balance)

	_, err = f.svc.AdjustBalance(ctx, 700, 500, "double", "admin")
	require.ErrorIs(t, err, ErrInvalidInput)
	_, err = f.svc.AdjustBalance(ctx, 700, -5, models.BalanceAdd, "admin")
	require.ErrorIs(t, err, ErrInvalidInput)
}

type flakySender struct {
	mu     sync.Mutex
	failOn int64
	sent   []int64
}

func (s *flakySender) SendMessage(chatID int64, _ string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if chatID == s.failOn {
		return errors.New("blocked by user")
	}
	s.sent = append(s.sent, chatID)
	return nil
}

func (s *flakySender) SendPhoto(chatID int64, _, caption string) error {
	return s.SendMessage(chatID, caption)
}

func TestBroadcastCountsSuccessAndFailure(t *testing.T) {
	backend := docstore.NewMemory()
	repo := repository.New(docstore.New(backend, docstore.Options{}), testBins, nil)
	sender := &flakySender{failOn: 2}
	svc := New(repo, &fakeNotifier{}, sender, Options{BroadcastDelay: time.Millisecond})

	ctx := context.Background()
	for _, id := range []int64{1, 2, 3} {
		_, err := repo.UpsertUser(ctx, models.UserProfile{TelegramID: id})
		require.NoError(t, err)
	}

	_, err := svc.StartBroadcast(ctx, "   ", "", "admin")
	require.ErrorIs(t, err, ErrInvalidInput)

	started, err := svc.StartBroadcast(ctx, "Big sale today!", "", "admin")
	require.NoError(t, err)
	assert.Equal(t, 3, started.Total)
	svc.wg.Wait()

	done, err := svc.Broadcast(started.ID)
	require.NoError(t, err)
	assert.Equal(t, BroadcastDone, done.Status)
	assert.Equal(t, 2, done.Sent)
	assert.Equal(t, 1, done.Failed)
	assert.NotNil(t, done.FinishedAt)
	assert.Equal(t, []int64{1, 3}, sender.sent)
	assert.Len(t, svc.ListBroadcasts(), 1)

	_, err = svc.Broadcast("missing")
	assert.ErrorIs(t, err, repository.ErrNotFound)
	svc.Close()
}
