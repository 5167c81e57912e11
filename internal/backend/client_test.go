package backend

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/time/rate"

	"github.com/xenking/lotto-share/internal/domain/purchase"
	"github.com/xenking/lotto-share/internal/domain/withdrawal"
)

func newTestClient(t *testing.T, h http.HandlerFunc, opts Options) *Client {
	t.Helper()
	srv := httptest.NewServer(h)
	t.Cleanup(srv.Close)

	c, err := New(srv.URL, opts)
	require.NoError(t, err)
	return c
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func TestNew_RejectsRelativeURL(t *testing.T) {
	_, err := New("/api", Options{})
	assert.Error(t, err)
}

func TestClient_Login(t *testing.T) {
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, http.MethodPost, r.Method)
		assert.Equal(t, "/api/login-phone", r.URL.Path)
		assert.Equal(t, "application/json", r.Header.Get("Content-Type"))
		assert.Empty(t, r.Header.Get("Authorization"))

		var req LoginRequest
		assert.NoError(t, json.NewDecoder(r.Body).Decode(&req))
		assert.Equal(t, LoginRequest{PhoneNumber: "+919999999999", Password: "secret"}, req)

		writeJSON(w, http.StatusOK, map[string]string{"id_token": "jwt-token"})
	}, Options{})

	token, err := c.Login(context.Background(), LoginRequest{PhoneNumber: "+919999999999", Password: "secret"})
	require.NoError(t, err)
	assert.Equal(t, "jwt-token", token)
}

func TestClient_BearerToken(t *testing.T) {
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "Bearer tok", r.Header.Get("Authorization"))
		writeJSON(w, http.StatusOK, Account{ID: 5, Email: "a@example.com"})
	}, Options{})

	acc, err := c.Account(WithToken(context.Background(), "tok"))
	require.NoError(t, err)
	assert.Equal(t, int64(5), acc.ID)
}

func TestClient_UnauthorizedHook(t *testing.T) {
	var calls atomic.Int32
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, http.StatusUnauthorized, map[string]string{"title": "Unauthorized"})
	}, Options{
		OnUnauthorized: func(context.Context) { calls.Add(1) },
	})

	_, err := c.Account(context.Background())
	require.Error(t, err)
	assert.True(t, IsKind(err, KindUnauthorized))
	assert.Equal(t, int32(1), calls.Load())

	serr, ok := AsStatus(err)
	require.True(t, ok)
	assert.Equal(t, "Unauthorized", serr.Message)
}

func TestStatusError_Kind(t *testing.T) {
	tests := []struct {
		name string
		code int
		body string
		kind Kind
	}{
		{name: "captcha", code: 403, body: `{"message":"CAPTCHA verification failed"}`, kind: KindCaptcha},
		{name: "forbidden", code: 403, body: `{"message":"nope"}`, kind: KindForbidden},
		{name: "not found", code: 404, body: `{}`, kind: KindNotFound},
		{name: "conflict", code: 409, body: ``, kind: KindConflict},
		{name: "gone", code: 410, body: `{"detail":"expired"}`, kind: KindGone},
		{name: "throttled", code: 429, body: `{"remainingSeconds":42}`, kind: KindTooManyRequests},
		{name: "server", code: 502, body: `<html>bad gateway</html>`, kind: KindServer},
		{name: "bad request", code: 400, body: `[1,2]`, kind: KindOther},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			e := newStatusError(http.MethodPost, "/api/x", tt.code, []byte(tt.body))
			assert.Equal(t, tt.kind, e.Kind())
			assert.Contains(t, e.Error(), "/api/x")
		})
	}

	e := newStatusError(http.MethodPost, "/api/x", 429, []byte(`{"remainingSeconds":42,"message":"slow down","extra":{"a":[1]}}`))
	assert.Equal(t, 42, e.RemainingSeconds)
	assert.Equal(t, "slow down", e.Message)

	e = newStatusError(http.MethodPost, "/api/x", 410, []byte(`{"title":"Gone","detail":"expired"}`))
	assert.Equal(t, "expired", e.Message)
}

func TestClient_ResendOTP(t *testing.T) {
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/api/forgot-password/resend-otp", r.URL.Path)
		writeJSON(w, http.StatusOK, map[string]any{"createdAt": "2025-03-06T10:00:00Z", "expiresInSeconds": 120})
	}, Options{})

	resp, err := c.ResendPasswordOTP(context.Background(), "+91")
	require.NoError(t, err)
	assert.Equal(t, 120, resp.ExpiresInSeconds)
	assert.Equal(t, 2025, resp.Created().Year())
	assert.True(t, OTPResponse{CreatedAt: "garbage"}.Created().IsZero())
}

func TestClient_OTPRemaining(t *testing.T) {
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "+919999999999", r.URL.Query().Get("phoneNumber"))
		writeJSON(w, http.StatusOK, OTPRemaining{RemainingSeconds: 17})
	}, Options{})

	remaining, err := c.OTPRemaining(context.Background(), "+919999999999")
	require.NoError(t, err)
	assert.Equal(t, 17, remaining)
}

func TestClient_Draws(t *testing.T) {
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		q := r.URL.Query()
		assert.Equal(t, "2", q.Get("page"))
		assert.Equal(t, "20", q.Get("size"))
		assert.Equal(t, "drawDate,desc", q.Get("sort"))

		w.Header().Set("X-Total-Count", "61")
		writeJSON(w, http.StatusOK, []Draw{
			{ID: 1, VerificationStatus: "VERIFIED"},
			{ID: 2, VerificationStatus: "PENDING"},
			{ID: 3, VerificationStatus: "VERIFIED"},
		})
	}, Options{})

	page, err := c.Draws(context.Background(), 2)
	require.NoError(t, err)
	assert.Len(t, page.Draws, 2)
	assert.Equal(t, 61, page.Total)
	assert.True(t, page.HasMore(2))
	assert.False(t, page.HasMore(3))
}

func TestClient_DrawsWithoutTotal(t *testing.T) {
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, http.StatusOK, []Draw{{ID: 1, VerificationStatus: "VERIFIED"}})
	}, Options{})

	page, err := c.Draws(context.Background(), 0)
	require.NoError(t, err)
	assert.Equal(t, 1, page.Total)
	assert.False(t, page.HasMore(0))
}

func TestClient_TicketByKeyEscapesPath(t *testing.T) {
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/api/tickets/by-key/1 2 3", r.URL.Path)
		assert.Equal(t, "/api/tickets/by-key/1%202%203", r.URL.EscapedPath())
		writeJSON(w, http.StatusOK, Ticket{ID: 9, OID: "OM 1-2-3", TicketKey: "1 2 3"})
	}, Options{})

	tk, err := c.TicketByKey(context.Background(), "1 2 3")
	require.NoError(t, err)
	assert.Equal(t, "OM 1-2-3", tk.OID)
}

func TestClient_InitiatePaymentSendsNumbers(t *testing.T) {
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		raw, err := io.ReadAll(r.Body)
		assert.NoError(t, err)

		var body map[string]any
		assert.NoError(t, json.Unmarshal(raw, &body))
		assert.Equal(t, float64(200), body["amount"])
		items := body["items"].([]any)
		assert.Len(t, items, 2)
		assert.Equal(t, float64(100), items[0].(map[string]any)["price"])

		writeJSON(w, http.StatusOK, InitiatePaymentResponse{EncData: "enc", APIKey: "key", URL: "https://pay", OrderID: "ORD-1"})
	}, Options{})

	resp, err := c.InitiatePayment(context.Background(), InitiatePaymentRequest{
		UserExtraID: 3,
		Email:       "a@example.com",
		Mobile:      "+91",
		Amount:      decimal.NewFromInt(200),
		Items: []PaymentItem{
			{TicketID: 1, Slot: 1, Price: decimal.NewFromInt(100)},
			{TicketID: 2, Slot: 1, Price: decimal.NewFromInt(100)},
		},
	})
	require.NoError(t, err)
	assert.Equal(t, "ORD-1", resp.OrderID)
}

func TestClient_CreateWithdrawal(t *testing.T) {
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		var body map[string]any
		assert.NoError(t, json.NewDecoder(r.Body).Decode(&body))
		assert.Equal(t, "ABCDE1234F", body["panCard"])
		assert.NotContains(t, body, "swiftCode")
		w.WriteHeader(http.StatusCreated)
	}, Options{})

	err := c.CreateWithdrawal(context.Background(), withdrawal.Request{
		UserExtraID: 1,
		Amount:      decimal.NewFromInt(10),
		PanCard:     "ABCDE1234F",
	})
	require.NoError(t, err)
}

func TestPurchaseBackend(t *testing.T) {
	mux := http.NewServeMux()
	mux.HandleFunc("GET /api/transactions/status/{id}", func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "Bearer tok", r.Header.Get("Authorization"))
		writeJSON(w, http.StatusOK, TransactionStatus{OrderID: r.PathValue("id"), Status: "success"})
	})
	mux.HandleFunc("POST /api/payment/status-check/{id}", func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "ORD-1", r.PathValue("id"))
		w.WriteHeader(http.StatusOK)
	})
	mux.HandleFunc("GET /api/purchases/by-user/{id}", func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "77", r.PathValue("id"))
		writeJSON(w, http.StatusOK, []Purchase{
			{ID: 1, Batch: "B1", Ticket: &PurchasedTicket{ID: 10, TicketKey: "1 2"}},
			{ID: 2},
		})
	})
	c := newTestClient(t, mux.ServeHTTP, Options{})
	b := c.ForCustomer("tok", 77)
	ctx := context.Background()

	status, err := b.OrderStatus(ctx, "ORD-1")
	require.NoError(t, err)
	assert.Equal(t, purchase.StatusSuccess, status)

	require.NoError(t, b.Reconcile(ctx, "ORD-1"))

	list, err := b.ListPurchases(ctx)
	require.NoError(t, err)
	assert.Equal(t, []purchase.Purchase{
		{ID: 1, Batch: "B1", TicketID: 10, TicketKey: "1 2"},
		{ID: 2},
	}, list)
}

func TestClient_RateLimit(t *testing.T) {
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, http.StatusOK, []Ticket{})
	}, Options{Limiter: rate.NewLimiter(rate.Limit(0), 0)})

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_, err := c.ActiveTickets(ctx)
	assert.Error(t, err)
}
