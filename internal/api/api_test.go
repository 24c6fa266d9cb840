package api

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"net/url"
	"path/filepath"
	"strings"
	"sync/atomic"
	"testing"
	"time"

	"payment-api/internal/database"
	"payment-api/internal/middleware"
	"payment-api/internal/models"
	"payment-api/internal/services"

	"github.com/gin-gonic/gin"
	"github.com/golang-jwt/jwt/v5"
	"gorm.io/gorm/logger"
)

const (
	testJWTSecret   = "jwt-secret"
	testMerchantKey = "merchant-key"
)

type testServer struct {
	router      *gin.Engine
	orders      *database.OrderStore
	gatewayBody atomic.Value
}

func newTestServer(t *testing.T) *testServer {
	t.Helper()
	gin.SetMode(gin.TestMode)

	db, err := database.OpenSQLite(filepath.Join(t.TempDir(), "api.db"), logger.Silent)
	if err != nil {
		t.Fatal(err)
	}
	if err := database.AutoMigrate(db); err != nil {
		t.Fatal(err)
	}
	t.Cleanup(func() { database.Close(db, nil) })

	ts := &testServer{orders: database.NewOrderStore(db)}
	ts.gatewayBody.Store(`{"code":1,"msg":"ok","trade_no":"T1","payurl":"https://pay/x","qrcode":"data:qr"}`)

	gw := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(ts.gatewayBody.Load().(string)))
	}))
	t.Cleanup(gw.Close)

	memberships := database.NewMembershipStore(db)
	audio := database.NewAudioStore(db)
	if err := audio.Create(context.Background(), &models.AudioTrack{AudioName: "waves", AudioDisplayName: "Waves", CyclePhase: "luteal"}); err != nil {
		t.Fatal(err)
	}

	plans := services.DefaultPlanCatalog()
	membershipService := services.NewMembershipService(memberships)
	replay := services.NewMemoryReplayGuard(time.Hour)
	t.Cleanup(replay.Stop)

	h := NewHandler(Deps{
		Orders:      services.NewOrderService(ts.orders, services.NewZPayClient(gw.URL, "1001", testMerchantKey, "https://merchant/notify_url", 2*time.Second), plans),
		Reconciler:  services.NewNotificationReconciler(ts.orders, memberships, database.NewTxManager(db), nil, replay, testMerchantKey),
		Memberships: membershipService,
		Audio:       services.NewAudioAccessService(audio, membershipService),
		Plans:       plans,
		Stats:       replay.Stats,
	})

	ts.router = gin.New()
	SetupRoutes(ts.router, h, middleware.JWTAuth(testJWTSecret, "authenticated"))
	return ts
}

func token(t *testing.T, userID string) string {
	t.Helper()
	s, err := jwt.NewWithClaims(jwt.SigningMethodHS256, jwt.MapClaims{
		"sub": userID,
		"aud": "authenticated",
		"exp": time.Now().Add(time.Hour).Unix(),
	}).SignedString([]byte(testJWTSecret))
	if err != nil {
		t.Fatal(err)
	}
	return s
}

type envelope struct {
	Success bool            `json:"success"`
	Message string          `json:"message"`
	Data    json.RawMessage `json:"data"`
}

func (ts *testServer) do(t *testing.T, method, path, user, body string) (*httptest.ResponseRecorder, envelope) {
	t.Helper()
	req := httptest.NewRequest(method, path, strings.NewReader(body))
	if body != "" {
		req.Header.Set("Content-Type", "application/json")
	}
	if user != "" {
		req.Header.Set("Authorization", "Bearer "+token(t, user))
	}
	w := httptest.NewRecorder()
	ts.router.ServeHTTP(w, req)

	var env envelope
	_ = json.Unmarshal(w.Body.Bytes(), &env)
	return w, env
}

func (ts *testServer) notifyForm(t *testing.T, params map[string]string) string {
	t.Helper()
	form := url.Values{}
	for k, v := range params {
		form.Set(k, v)
	}
	req := httptest.NewRequest(http.MethodPost, "/notify_url", strings.NewReader(form.Encode()))
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	w := httptest.NewRecorder()
	ts.router.ServeHTTP(w, req)
	if w.Code != http.StatusOK {
		t.Fatalf("notify status = %d", w.Code)
	}
	return w.Body.String()
}

func signedNotification(outTradeNo, money string) map[string]string {
	params := map[string]string{
		"pid":          "1001",
		"out_trade_no": outTradeNo,
		"trade_no":     "T1",
		"trade_status": "TRADE_SUCCESS",
		"money":        money,
		"type":         "alipay",
	}
	params["sign"] = services.Sign(params, testMerchantKey)
	params["sign_type"] = "MD5"
	return params
}

func createOrder(t *testing.T, ts *testServer) string {
	t.Helper()
	w, env := ts.do(t, http.MethodPost, "/api/create_order", "u1",
		`{"name":"Tier A","amount":29.99,"payment_type":"alipay","user_id":"u1"}`)
	if w.Code != http.StatusOK || !env.Success {
		t.Fatalf("create order: %d %s", w.Code, w.Body.String())
	}
	var data struct {
		OutTradeNo string `json:"out_trade_no"`
		PayURL     string `json:"payurl"`
		QRCode     string `json:"qrcode"`
		Status     string `json:"status"`
	}
	if err := json.Unmarshal(env.Data, &data); err != nil {
		t.Fatal(err)
	}
	if data.PayURL != "https://pay/x" || data.QRCode != "data:qr" || data.Status != "pending" {
		t.Fatalf("create order data = %+v", data)
	}
	return data.OutTradeNo
}

func TestEndToEndPayment(t *testing.T) {
	ts := newTestServer(t)
	id := createOrder(t, ts)

	order, _ := ts.orders.GetByOutTradeNo(context.Background(), id)
	if order == nil || order.Status != models.OrderStatusPending || order.PayURL == nil {
		t.Fatalf("stored order = %+v", order)
	}

	if body := ts.notifyForm(t, signedNotification(id, "29.99")); body != "success" {
		t.Fatalf("notify body = %q", body)
	}
	order, _ = ts.orders.GetByOutTradeNo(context.Background(), id)
	if order.Status != models.OrderStatusPaid || order.PaidAt == nil {
		t.Fatalf("order after notify = %s", order.Status)
	}

	// gateway retry
	if body := ts.notifyForm(t, signedNotification(id, "29.99")); body != "success" {
		t.Fatalf("redelivery body = %q", body)
	}
}

func TestTamperedAmountIsRejected(t *testing.T) {
	ts := newTestServer(t)
	id := createOrder(t, ts)

	if body := ts.notifyForm(t, signedNotification(id, "1.00")); body != "fail" {
		t.Fatalf("notify body = %q", body)
	}
	order, _ := ts.orders.GetByOutTradeNo(context.Background(), id)
	if order.Status != models.OrderStatusPending {
		t.Fatalf("status = %s, want pending", order.Status)
	}
}

func TestNotifyTransports(t *testing.T) {
	ts := newTestServer(t)

	t.Run("get", func(t *testing.T) {
		id := createOrder(t, ts)
		q := url.Values{}
		for k, v := range signedNotification(id, "29.99") {
			q.Set(k, v)
		}
		req := httptest.NewRequest(http.MethodGet, "/notify_url?"+q.Encode(), nil)
		w := httptest.NewRecorder()
		ts.router.ServeHTTP(w, req)
		if w.Body.String() != "success" {
			t.Fatalf("body = %q", w.Body.String())
		}
	})

	t.Run("json", func(t *testing.T) {
		id := createOrder(t, ts)
		raw := map[string]interface{}{}
		for k, v := range signedNotification(id, "29.99") {
			raw[k] = v
		}
		raw["pid"] = 1001 // numbers are stringified before verification
		body, _ := json.Marshal(raw)
		req := httptest.NewRequest(http.MethodPost, "/api/payment/notify", strings.NewReader(string(body)))
		req.Header.Set("Content-Type", "application/json")
		w := httptest.NewRecorder()
		ts.router.ServeHTTP(w, req)
		if w.Body.String() != "success" {
			t.Fatalf("body = %q", w.Body.String())
		}
	})

	t.Run("garbage", func(t *testing.T) {
		req := httptest.NewRequest(http.MethodPost, "/api/payment/notify", strings.NewReader("{not json"))
		req.Header.Set("Content-Type", "application/json")
		w := httptest.NewRecorder()
		ts.router.ServeHTTP(w, req)
		if w.Code != http.StatusOK || w.Body.String() != "fail" {
			t.Fatalf("got %d %q", w.Code, w.Body.String())
		}
	})
}

func TestCreateOrderErrors(t *testing.T) {
	ts := newTestServer(t)

	w, _ := ts.do(t, http.MethodPost, "/api/create_order", "", `{"name":"A","amount":1,"payment_type":"alipay","user_id":"u1"}`)
	if w.Code != http.StatusUnauthorized {
		t.Errorf("no token: %d", w.Code)
	}
	w, _ = ts.do(t, http.MethodPost, "/api/create_order", "u1", `{"name":"A","amount":1.001,"payment_type":"alipay","user_id":"u1"}`)
	if w.Code != http.StatusBadRequest {
		t.Errorf("three decimals: %d", w.Code)
	}
	w, _ = ts.do(t, http.MethodPost, "/api/create_order", "u1", `{"name":"A","amount":1,"payment_type":"alipay","user_id":"u2"}`)
	if w.Code != http.StatusForbidden {
		t.Errorf("other user: %d", w.Code)
	}

	ts.gatewayBody.Store(`{"code":0,"msg":"merchant disabled"}`)
	w, env := ts.do(t, http.MethodPost, "/api/create_order", "u1", `{"name":"A","amount":1,"payment_type":"alipay","user_id":"u1"}`)
	if w.Code != http.StatusBadGateway || env.Success {
		t.Fatalf("gateway failure: %d %s", w.Code, w.Body.String())
	}
	var data struct {
		OutTradeNo string `json:"out_trade_no"`
	}
	_ = json.Unmarshal(env.Data, &data)
	order, _ := ts.orders.GetByOutTradeNo(context.Background(), data.OutTradeNo)
	if order == nil || order.Status != models.OrderStatusPending {
		t.Fatalf("order after gateway failure = %+v", order)
	}
}

func TestOrderStatusOwnership(t *testing.T) {
	ts := newTestServer(t)
	id := createOrder(t, ts)

	if w, _ := ts.do(t, http.MethodGet, "/api/get_order_status/"+id, "u1", ""); w.Code != http.StatusOK {
		t.Errorf("owner: %d", w.Code)
	}
	if w, _ := ts.do(t, http.MethodGet, "/api/get_order_status/"+id, "u2", ""); w.Code != http.StatusForbidden {
		t.Errorf("other user: %d", w.Code)
	}
	if w, _ := ts.do(t, http.MethodGet, "/api/get_order_status/missing", "u1", ""); w.Code != http.StatusNotFound {
		t.Errorf("missing: %d", w.Code)
	}
	w, env := ts.do(t, http.MethodGet, "/api/orders", "u1", "")
	if w.Code != http.StatusOK || !strings.Contains(string(env.Data), id) {
		t.Errorf("list: %d %s", w.Code, w.Body.String())
	}
}

func TestSubscriptionUnlocksMembership(t *testing.T) {
	ts := newTestServer(t)

	w, env := ts.do(t, http.MethodGet, "/api/user/membership", "u1", "")
	if w.Code != http.StatusOK || !strings.Contains(string(env.Data), `"membership_type":"free"`) {
		t.Fatalf("initial membership: %s", w.Body.String())
	}

	w, env = ts.do(t, http.MethodPost, "/api/create_subscription_qr_order", "u1", `{"subscription_type":"3_months","payment_type":"alipay"}`)
	if w.Code != http.StatusOK {
		t.Fatalf("create subscription: %d %s", w.Code, w.Body.String())
	}
	var data struct {
		OutTradeNo   string `json:"out_trade_no"`
		Amount       string `json:"amount"`
		DurationDays int    `json:"duration_days"`
	}
	_ = json.Unmarshal(env.Data, &data)
	if data.Amount != "29.99" || data.DurationDays != 90 {
		t.Fatalf("subscription data = %+v", data)
	}

	if body := ts.notifyForm(t, signedNotification(data.OutTradeNo, "29.99")); body != "success" {
		t.Fatalf("notify body = %q", body)
	}

	w, env = ts.do(t, http.MethodGet, "/api/user/membership", "u1", "")
	var status services.MembershipStatus
	_ = json.Unmarshal(env.Data, &status)
	if !status.IsMember || status.MembershipType != "3_months" || status.DaysRemaining == nil || *status.DaysRemaining != 90 {
		t.Fatalf("membership after payment: %s", w.Body.String())
	}

	w, env = ts.do(t, http.MethodGet, "/api/audio/waves/check-access", "u1", "")
	if w.Code != http.StatusOK || !strings.Contains(string(env.Data), `"has_access":true`) {
		t.Fatalf("audio access: %s", w.Body.String())
	}
}

func TestPricingAndHealth(t *testing.T) {
	ts := newTestServer(t)

	w, env := ts.do(t, http.MethodGet, "/api/subscription/pricing", "", "")
	if w.Code != http.StatusOK || !strings.Contains(string(env.Data), `"lifetime"`) || !strings.Contains(string(env.Data), `"CNY"`) {
		t.Fatalf("pricing: %s", w.Body.String())
	}

	req := httptest.NewRequest(http.MethodGet, "/health", nil)
	rec := httptest.NewRecorder()
	ts.router.ServeHTTP(rec, req)
	if rec.Code != http.StatusOK || !strings.Contains(rec.Body.String(), `"status":"ok"`) {
		t.Fatalf("health: %s", rec.Body.String())
	}
}

func TestClientIP(t *testing.T) {
	gin.SetMode(gin.TestMode)
	cases := []struct {
		headers map[string]string
		want    string
	}{
		{map[string]string{"X-Forwarded-For": "9.9.9.9, 10.0.0.1"}, "9.9.9.9"},
		{map[string]string{"X-Real-IP": "8.8.8.8"}, "8.8.8.8"},
		{nil, "192.0.2.1"},
	}
	for _, tc := range cases {
		w := httptest.NewRecorder()
		c, _ := gin.CreateTestContext(w)
		c.Request = httptest.NewRequest(http.MethodGet, "/", nil)
		for k, v := range tc.headers {
			c.Request.Header.Set(k, v)
		}
		if got := clientIP(c); got != tc.want {
			t.Errorf("clientIP(%v) = %q, want %q", tc.headers, got, tc.want)
		}
	}
}
