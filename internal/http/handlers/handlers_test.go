package handlers

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"net/url"
	"testing"
	"time"

	"gameshop/internal/auth"
	"gameshop/internal/config"
	"gameshop/internal/docstore"
	"gameshop/internal/models"
	"gameshop/internal/repository"
	"gameshop/internal/shop"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const (
	botToken   = "123456:test-token"
	jwtSecret  = "test-secret"
	adminTGID  = int64(7)
	buyerTGID  = int64(1001)
	otherTGID  = int64(1002)
	adminLogin = "owner"
)

type fakeMedia struct {
	prefixes []string
}

func (f *fakeMedia) PresignPutObject(_ context.Context, prefix, fileName, _ string) (string, string, error) {
	f.prefixes = append(f.prefixes, prefix)
	return "https://s3.example/upload/" + prefix + "/" + fileName, "https://cdn.example/" + prefix + "/" + fileName, nil
}

func (f *fakeMedia) UploadObject(_ context.Context, prefix, fileName, _ string, body io.Reader, _ int64) (string, error) {
	f.prefixes = append(f.prefixes, prefix)
	_, _ = io.Copy(io.Discard, body)
	return "https://cdn.example/" + prefix + "/" + fileName, nil
}

type testEnv struct {
	t       *testing.T
	handler http.Handler
	repo    *repository.Repository
	media   *fakeMedia
}

func newTestEnv(t *testing.T) *testEnv {
	t.Helper()
	cfg := &config.Config{
		JWTSecret:     jwtSecret,
		TelegramToken: botToken,
		AdminTGIDs:    map[int64]struct{}{adminTGID: {}},
		AdminLogin:    adminLogin,
		AdminPassword: "hunter2",
		Shop: config.ShopConfig{
			MaxFailedAttempts: 5,
			Currency:          "MMK",
			InitDataMaxAge:    24 * time.Hour,
		},
	}
	bins := config.Bins{
		Settings: "settings", Users: "users", Products: "products", Categories: "categories",
		Orders: "orders", Topups: "topups", Banners: "banners", Payments: "payments",
		InputTables: "input_tables", Banned: "banned",
	}
	repo := repository.New(docstore.New(docstore.NewMemory(), docstore.Options{}), bins, nil)
	svc := shop.New(repo, nil, nil, shop.Options{MaxFailedAttempts: 5})
	t.Cleanup(svc.Close)
	media := &fakeMedia{}
	h := New(repo, svc, media, nil, cfg, nil)
	return &testEnv{t: t, handler: h.Routes(), repo: repo, media: media}
}

func (e *testEnv) do(method, path, token string, body interface{}) *httptest.ResponseRecorder {
	e.t.Helper()
	var reader io.Reader
	if body != nil {
		raw, err := json.Marshal(body)
		require.NoError(e.t, err)
		reader = bytes.NewReader(raw)
	}
	req := httptest.NewRequest(method, path, reader)
	req.Header.Set("Content-Type", "application/json")
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	resp := httptest.NewRecorder()
	e.handler.ServeHTTP(resp, req)
	return resp
}

func decodeBody(t *testing.T, resp *httptest.ResponseRecorder, dst interface{}) {
	t.Helper()
	require.NoError(t, json.Unmarshal(resp.Body.Bytes(), dst), resp.Body.String())
}

func initData(t *testing.T, telegramID int64) string {
	t.Helper()
	data, err := auth.BuildWebAppInitData(auth.TelegramUser{ID: telegramID, FirstName: "Buyer", Username: "buyer"}, botToken, time.Now())
	require.NoError(t, err)
	return data
}

// login signs in through /auth/telegram and returns the access token.
func (e *testEnv) login(telegramID int64) string {
	e.t.Helper()
	resp := e.do(http.MethodPost, "/auth/telegram", "", map[string]string{"initData": initData(e.t, telegramID)})
	require.Equal(e.t, http.StatusOK, resp.Code, resp.Body.String())
	var out struct {
		AccessToken string `json:"accessToken"`
	}
	decodeBody(e.t, resp, &out)
	return out.AccessToken
}

func (e *testEnv) seedCatalog() (models.Category, models.Product) {
	e.t.Helper()
	ctx := context.Background()
	category, err := e.repo.CreateCategory(ctx, repository.NewCategory{Name: "PUBG"})
	require.NoError(e.t, err)
	product, err := e.repo.CreateProduct(ctx, repository.NewProduct{CategoryID: category.ID, Name: "60 UC", Price: 5000, Discount: 20})
	require.NoError(e.t, err)
	return category, product
}

func TestHealthz(t *testing.T) {
	env := newTestEnv(t)
	resp := env.do(http.MethodGet, "/healthz", "", nil)
	assert.Equal(t, http.StatusOK, resp.Code)
	assert.Equal(t, "ok", resp.Body.String())
}

func TestVerifyInitData(t *testing.T) {
	env := newTestEnv(t)

	resp := env.do(http.MethodPost, "/api/verify", "", map[string]string{"initData": initData(t, buyerTGID)})
	require.Equal(t, http.StatusOK, resp.Code)
	var out struct {
		Valid    bool               `json:"valid"`
		User     *auth.TelegramUser `json:"user"`
		AuthDate int64              `json:"authDate"`
	}
	decodeBody(t, resp, &out)
	assert.True(t, out.Valid)
	require.NotNil(t, out.User)
	assert.Equal(t, buyerTGID, out.User.ID)
	assert.NotZero(t, out.AuthDate)

	values, err := url.ParseQuery(initData(t, buyerTGID))
	require.NoError(t, err)
	values.Set("user", `{"id":1,"first_name":"Mallory"}`)
	resp = env.do(http.MethodPost, "/api/verify", "", map[string]string{"initData": values.Encode()})
	assert.Equal(t, http.StatusUnauthorized, resp.Code)

	resp = env.do(http.MethodPost, "/api/verify", "", map[string]string{})
	assert.Equal(t, http.StatusBadRequest, resp.Code)
}

func TestPurchaseFlowOverHTTP(t *testing.T) {
	env := newTestEnv(t)
	_, product := env.seedCatalog()
	token := env.login(buyerTGID)

	_, err := env.repo.UpdateUserBalance(context.Background(), buyerTGID, 10000, models.BalanceSet)
	require.NoError(t, err)

	resp := env.do(http.MethodPost, "/orders", token, map[string]interface{}{"productId": product.ID})
	require.Equal(t, http.StatusCreated, resp.Code, resp.Body.String())
	var order models.Order
	decodeBody(t, resp, &order)
	assert.Equal(t, int64(4000), order.Amount)
	assert.Equal(t, models.StatusPending, order.Status)

	resp = env.do(http.MethodGet, "/me", token, nil)
	require.Equal(t, http.StatusOK, resp.Code)
	var me struct {
		User models.User `json:"user"`
	}
	decodeBody(t, resp, &me)
	assert.Equal(t, int64(6000), me.User.Balance)
	assert.Equal(t, 1, me.User.TotalOrders)

	resp = env.do(http.MethodGet, "/me/orders", token, nil)
	require.Equal(t, http.StatusOK, resp.Code)
	var mine struct {
		Orders []models.Order `json:"orders"`
	}
	decodeBody(t, resp, &mine)
	require.Len(t, mine.Orders, 1)

	resp = env.do(http.MethodPost, "/orders", token, map[string]interface{}{"productId": "missing"})
	assert.Equal(t, http.StatusNotFound, resp.Code)
}

func TestInsufficientBalanceReportsAttempts(t *testing.T) {
	env := newTestEnv(t)
	_, product := env.seedCatalog()
	token := env.login(buyerTGID)

	resp := env.do(http.MethodPost, "/orders", token, map[string]interface{}{"productId": product.ID})
	require.Equal(t, http.StatusPaymentRequired, resp.Code)
	var out struct {
		Required          int64 `json:"required"`
		RemainingAttempts int   `json:"remainingAttempts"`
		Banned            bool  `json:"banned"`
	}
	decodeBody(t, resp, &out)
	assert.Equal(t, int64(4000), out.Required)
	assert.Equal(t, 4, out.RemainingAttempts)
	assert.False(t, out.Banned)
}

func TestAdminRoutesRequireAdmin(t *testing.T) {
	env := newTestEnv(t)
	userToken := env.login(buyerTGID)
	adminToken := env.login(adminTGID)

	assert.Equal(t, http.StatusUnauthorized, env.do(http.MethodGet, "/admin/stats", "", nil).Code)
	assert.Equal(t, http.StatusForbidden, env.do(http.MethodGet, "/admin/stats", userToken, nil).Code)

	resp := env.do(http.MethodGet, "/admin/stats", adminToken, nil)
	require.Equal(t, http.StatusOK, resp.Code)
	var stats models.Stats
	decodeBody(t, resp, &stats)
	assert.Equal(t, 2, stats.TotalUsers)
}

func TestAdminOrderProcessing(t *testing.T) {
	env := newTestEnv(t)
	_, product := env.seedCatalog()
	buyer := env.login(buyerTGID)
	admin := env.login(adminTGID)
	_, err := env.repo.UpdateUserBalance(context.Background(), buyerTGID, 10000, models.BalanceSet)
	require.NoError(t, err)

	resp := env.do(http.MethodPost, "/orders", buyer, map[string]interface{}{"productId": product.ID})
	require.Equal(t, http.StatusCreated, resp.Code)
	var order models.Order
	decodeBody(t, resp, &order)

	resp = env.do(http.MethodGet, "/admin/orders?status=pending", admin, nil)
	require.Equal(t, http.StatusOK, resp.Code)
	var pending struct {
		Orders []models.Order `json:"orders"`
	}
	decodeBody(t, resp, &pending)
	require.Len(t, pending.Orders, 1)

	assert.Equal(t, http.StatusBadRequest, env.do(http.MethodGet, "/admin/orders?status=lost", admin, nil).Code)

	resp = env.do(http.MethodPost, "/admin/orders/"+order.ID+"/reject", admin, nil)
	require.Equal(t, http.StatusOK, resp.Code, resp.Body.String())
	assert.Equal(t, http.StatusConflict, env.do(http.MethodPost, "/admin/orders/"+order.ID+"/approve", admin, nil).Code)
	assert.Equal(t, http.StatusNotFound, env.do(http.MethodPost, "/admin/orders/nope/approve", admin, nil).Code)

	user, err := env.repo.GetUserByTelegramID(context.Background(), buyerTGID)
	require.NoError(t, err)
	assert.Equal(t, int64(10000), user.Balance)
	assert.Equal(t, 1, user.RejectedOrders)
}

func TestAdminTopupApproval(t *testing.T) {
	env := newTestEnv(t)
	buyer := env.login(buyerTGID)
	admin := env.login(adminTGID)

	resp := env.do(http.MethodPost, "/topups", buyer, map[string]interface{}{"amount": 0, "paymentMethod": "KBZPay", "proofImage": "x"})
	assert.Equal(t, http.StatusBadRequest, resp.Code)

	resp = env.do(http.MethodPost, "/topups", buyer, map[string]interface{}{
		"amount": 15000, "paymentMethod": "KBZPay", "proofImage": "https://cdn.example/proofs/a.jpg",
	})
	require.Equal(t, http.StatusCreated, resp.Code, resp.Body.String())
	var topup models.Topup
	decodeBody(t, resp, &topup)

	resp = env.do(http.MethodPost, "/admin/topups/"+topup.ID+"/approve", admin, nil)
	require.Equal(t, http.StatusOK, resp.Code, resp.Body.String())

	user, err := env.repo.GetUserByTelegramID(context.Background(), buyerTGID)
	require.NoError(t, err)
	assert.Equal(t, int64(15000), user.Balance)
	assert.Equal(t, 1, user.TotalTopups)
}

func TestBanBlocksUserAndLogin(t *testing.T) {
	env := newTestEnv(t)
	buyer := env.login(buyerTGID)
	admin := env.login(adminTGID)

	resp := env.do(http.MethodPost, "/admin/users/1001/ban", admin, map[string]string{"reason": "chargeback"})
	require.Equal(t, http.StatusOK, resp.Code, resp.Body.String())
	assert.Equal(t, http.StatusBadRequest, env.do(http.MethodPost, "/admin/users/7/ban", admin, nil).Code)

	assert.Equal(t, http.StatusForbidden, env.do(http.MethodGet, "/me", buyer, nil).Code)
	resp = env.do(http.MethodPost, "/auth/telegram", "", map[string]string{"initData": initData(t, buyerTGID)})
	assert.Equal(t, http.StatusForbidden, resp.Code)

	resp = env.do(http.MethodGet, "/admin/banned", admin, nil)
	require.Equal(t, http.StatusOK, resp.Code)
	var banned struct {
		BannedUsers []models.BannedUser `json:"bannedUsers"`
	}
	decodeBody(t, resp, &banned)
	require.Len(t, banned.BannedUsers, 1)
	assert.Equal(t, "chargeback", banned.BannedUsers[0].Reason)

	require.Equal(t, http.StatusOK, env.do(http.MethodPost, "/admin/users/1001/unban", admin, nil).Code)
	assert.Equal(t, http.StatusOK, env.do(http.MethodGet, "/me", buyer, nil).Code)
}

func TestAdminCatalogCRUDAndCascade(t *testing.T) {
	env := newTestEnv(t)
	admin := env.login(adminTGID)

	resp := env.do(http.MethodPost, "/admin/categories", admin, map[string]interface{}{"name": "Free Fire"})
	require.Equal(t, http.StatusCreated, resp.Code)
	var category models.Category
	decodeBody(t, resp, &category)

	resp = env.do(http.MethodPost, "/admin/products", admin, map[string]interface{}{"categoryId": "nope", "name": "x", "price": 100})
	assert.Equal(t, http.StatusBadRequest, resp.Code)
	resp = env.do(http.MethodPost, "/admin/products", admin, map[string]interface{}{"categoryId": category.ID, "name": "x", "price": 100, "discount": 150})
	assert.Equal(t, http.StatusBadRequest, resp.Code)

	resp = env.do(http.MethodPost, "/admin/products", admin, map[string]interface{}{"categoryId": category.ID, "name": "100 Diamonds", "price": 3000})
	require.Equal(t, http.StatusCreated, resp.Code)
	var product models.Product
	decodeBody(t, resp, &product)
	assert.Equal(t, "MMK", product.Currency)

	resp = env.do(http.MethodPatch, "/admin/products/"+product.ID, admin, map[string]interface{}{"discount": 10})
	require.Equal(t, http.StatusOK, resp.Code)
	decodeBody(t, resp, &product)
	assert.Equal(t, int64(2700), product.DiscountedPrice)

	resp = env.do(http.MethodPost, "/admin/input-tables", admin, map[string]interface{}{"categoryId": category.ID, "name": "Player ID"})
	require.Equal(t, http.StatusCreated, resp.Code)
	resp = env.do(http.MethodPost, "/admin/banners", admin, map[string]interface{}{"type": "type2", "image": "https://cdn.example/b.png", "categoryId": category.ID})
	require.Equal(t, http.StatusCreated, resp.Code)
	resp = env.do(http.MethodPost, "/admin/banners", admin, map[string]interface{}{"type": "type2", "image": "https://cdn.example/b.png"})
	assert.Equal(t, http.StatusBadRequest, resp.Code)

	resp = env.do(http.MethodGet, "/shop/categories/"+category.ID, "", nil)
	require.Equal(t, http.StatusOK, resp.Code)
	var page struct {
		Category    models.Category     `json:"category"`
		Products    []models.Product    `json:"products"`
		InputTables []models.InputTable `json:"inputTables"`
		Banners     []models.Banner     `json:"banners"`
	}
	decodeBody(t, resp, &page)
	assert.True(t, page.Category.HasDiscount)
	assert.Len(t, page.Products, 1)
	assert.Len(t, page.InputTables, 1)
	assert.Len(t, page.Banners, 1)

	require.Equal(t, http.StatusOK, env.do(http.MethodDelete, "/admin/categories/"+category.ID, admin, nil).Code)
	assert.Equal(t, http.StatusNotFound, env.do(http.MethodGet, "/shop/categories/"+category.ID, "", nil).Code)

	products, err := env.repo.ListProducts(context.Background())
	require.NoError(t, err)
	assert.Empty(t, products)
}

func TestPaymentMethodCRUD(t *testing.T) {
	env := newTestEnv(t)
	admin := env.login(adminTGID)

	assert.Equal(t, http.StatusBadRequest, env.do(http.MethodPost, "/admin/payment-methods", admin, map[string]string{"name": "KBZPay"}).Code)
	resp := env.do(http.MethodPost, "/admin/payment-methods", admin, map[string]string{"name": "KBZPay", "address": "09123456789", "accountName": "Shop"})
	require.Equal(t, http.StatusCreated, resp.Code)
	var method models.PaymentMethod
	decodeBody(t, resp, &method)

	resp = env.do(http.MethodPatch, "/admin/payment-methods/"+method.ID, admin, map[string]string{"note": "Send a screenshot"})
	require.Equal(t, http.StatusOK, resp.Code)
	decodeBody(t, resp, &method)
	assert.Equal(t, "KBZPay", method.Name)
	assert.Equal(t, "Send a screenshot", method.Note)

	resp = env.do(http.MethodGet, "/shop/payment-methods", "", nil)
	require.Equal(t, http.StatusOK, resp.Code)
	var list struct {
		PaymentMethods []models.PaymentMethod `json:"paymentMethods"`
	}
	decodeBody(t, resp, &list)
	require.Len(t, list.PaymentMethods, 1)
	assert.Equal(t, method.ID, list.PaymentMethods[0].ID)

	require.Equal(t, http.StatusOK, env.do(http.MethodDelete, "/admin/payment-methods/"+method.ID, admin, nil).Code)
	assert.Equal(t, http.StatusNotFound, env.do(http.MethodDelete, "/admin/payment-methods/"+method.ID, admin, nil).Code)

	resp = env.do(http.MethodGet, "/shop/payment-methods", "", nil)
	decodeBody(t, resp, &list)
	assert.Empty(t, list.PaymentMethods)
}

func TestSettingsDefaultsAndUpdate(t *testing.T) {
	env := newTestEnv(t)
	admin := env.login(adminTGID)

	resp := env.do(http.MethodGet, "/shop/settings", "", nil)
	require.Equal(t, http.StatusOK, resp.Code)
	var settings models.Settings
	decodeBody(t, resp, &settings)
	assert.Equal(t, "Game Top-Up Shop", settings.WebsiteName)

	assert.Equal(t, http.StatusBadRequest, env.do(http.MethodPatch, "/admin/settings", admin, map[string]string{"theme": "neon"}).Code)
	resp = env.do(http.MethodPatch, "/admin/settings", admin, map[string]string{"websiteName": "Diamond Hub"})
	require.Equal(t, http.StatusOK, resp.Code)
	decodeBody(t, resp, &settings)
	assert.Equal(t, "Diamond Hub", settings.WebsiteName)
	assert.Equal(t, "dark", settings.Theme)
}

func TestAdminPasswordLogin(t *testing.T) {
	env := newTestEnv(t)

	resp := env.do(http.MethodPost, "/auth/admin", "", map[string]string{"username": adminLogin, "password": "wrong"})
	assert.Equal(t, http.StatusUnauthorized, resp.Code)

	resp = env.do(http.MethodPost, "/auth/admin", "", map[string]interface{}{"username": adminLogin, "password": "hunter2", "telegramId": otherTGID})
	assert.Equal(t, http.StatusForbidden, resp.Code)

	resp = env.do(http.MethodPost, "/auth/admin", "", map[string]string{"username": adminLogin, "password": "hunter2"})
	require.Equal(t, http.StatusOK, resp.Code)
	var out struct {
		AccessToken string `json:"accessToken"`
	}
	decodeBody(t, resp, &out)
	assert.Equal(t, http.StatusOK, env.do(http.MethodGet, "/admin/dashboard", out.AccessToken, nil).Code)
}

func TestPresignRestrictsPrefixes(t *testing.T) {
	env := newTestEnv(t)
	buyer := env.login(buyerTGID)
	admin := env.login(adminTGID)

	body := map[string]interface{}{"prefix": "icons", "fileName": "a.png", "contentType": "image/png", "sizeBytes": 1024}
	assert.Equal(t, http.StatusForbidden, env.do(http.MethodPost, "/media/presign", buyer, body).Code)
	assert.Equal(t, http.StatusOK, env.do(http.MethodPost, "/media/presign", admin, body).Code)

	body["prefix"] = "proofs"
	resp := env.do(http.MethodPost, "/media/presign", buyer, body)
	require.Equal(t, http.StatusOK, resp.Code)
	var out map[string]string
	decodeBody(t, resp, &out)
	assert.Equal(t, "https://cdn.example/proofs/a.png", out["fileUrl"])

	body["contentType"] = "application/pdf"
	assert.Equal(t, http.StatusBadRequest, env.do(http.MethodPost, "/media/presign", buyer, body).Code)
	assert.Equal(t, []string{"icons", "proofs"}, env.media.prefixes)
}

func TestBroadcastWithoutTelegram(t *testing.T) {
	env := newTestEnv(t)
	admin := env.login(adminTGID)
	resp := env.do(http.MethodPost, "/admin/broadcasts", admin, map[string]string{"message": "hello"})
	assert.Equal(t, http.StatusServiceUnavailable, resp.Code)
}
