package handler

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/cookiejar"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/jonboulle/clockwork"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/xenking/lotto-share/internal/backend"
	"github.com/xenking/lotto-share/internal/domain/draw"
	"github.com/xenking/lotto-share/internal/domain/purchase"
	"github.com/xenking/lotto-share/internal/domain/session"
	"github.com/xenking/lotto-share/internal/domain/withdrawal"
	"github.com/xenking/lotto-share/internal/storage/memory"
)

const testToken = "token-1"

func init() {
	gin.SetMode(gin.TestMode)
}

// fakeBackend is an in-process lottery backend.
type fakeBackend struct {
	mu sync.Mutex

	tickets   []backend.Ticket
	account   backend.Account
	extra     *backend.UserExtra
	purchases []backend.Purchase
	winnings  []backend.Winning
	myTickets backend.MyTickets
	oids      map[string]string
	draws     []backend.Draw
	txStatus  string

	// forced statuses and messages per route pattern
	fail map[string]failure

	payment    backend.InitiatePaymentResponse
	paymentReq *backend.InitiatePaymentRequest
	withdrawal *withdrawal.Request
	verified   *backend.VerifyRegistrationRequest
	reconciles []string
	calls      map[string]int
}

type failure struct {
	status int
	body   map[string]any
}

func newFakeBackend() *fakeBackend {
	return &fakeBackend{
		tickets: []backend.Ticket{
			{ID: 3, OID: "OM 20250306-1-3", TicketKey: "7 8 9 10 11 12"},
			{ID: 1, OID: "OM 20250306-1-1", TicketKey: "1 2 3 4 5 6"},
			{ID: 2, OID: "OM 20250306-1-2", TicketKey: "13 14 15 16 17 18"},
			{ID: 4, OID: "OM 20250306-1-4", TicketKey: "19 20 21 22 23 24"},
			{ID: 5, OID: "OM 20250306-1-5", TicketKey: "25 26 27 28 29 30"},
		},
		account: backend.Account{ID: 7, Login: "919999999999"},
		extra: &backend.UserExtra{
			ID:          70,
			PhoneNumber: "+919999999999",
			User:        &backend.User{ID: 7, Email: "asha@example.com", FirstName: "Asha", LastName: "Rao"},
		},
		oids:     map[string]string{},
		txStatus: "PENDING",
		fail:     map[string]failure{},
		payment: backend.InitiatePaymentResponse{
			EncData: "enc",
			APIKey:  "key",
			URL:     "https://gateway.example.com/pay",
			OrderID: "ORD-1",
		},
		calls: map[string]int{},
	}
}

func (f *fakeBackend) failWith(pattern string, status int, body map[string]any) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.fail[pattern] = failure{status: status, body: body}
}

// with runs fn under the backend lock, for fixtures and captured requests.
func (f *fakeBackend) with(fn func(f *fakeBackend)) {
	f.mu.Lock()
	defer f.mu.Unlock()
	fn(f)
}

func (f *fakeBackend) count(pattern string) int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.calls[pattern]
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

// route wraps fn with call counting, forced failures and, when authed is set,
// bearer token checks. fn runs with f.mu held.
func (f *fakeBackend) route(mux *http.ServeMux, pattern string, authed bool, fn func(w http.ResponseWriter, r *http.Request)) {
	mux.HandleFunc(pattern, func(w http.ResponseWriter, r *http.Request) {
		f.mu.Lock()
		defer f.mu.Unlock()

		f.calls[pattern]++
		if fl, ok := f.fail[pattern]; ok {
			writeJSON(w, fl.status, fl.body)
			return
		}
		if authed && r.Header.Get("Authorization") != "Bearer "+testToken {
			writeJSON(w, http.StatusUnauthorized, map[string]string{"title": "Unauthorized"})
			return
		}
		fn(w, r)
	})
}

func (f *fakeBackend) handler(t *testing.T) http.Handler {
	mux := http.NewServeMux()

	f.route(mux, "POST /api/login-phone", false, func(w http.ResponseWriter, r *http.Request) {
		var req backend.LoginRequest
		assert.NoError(t, json.NewDecoder(r.Body).Decode(&req))
		if req.Password != "secret" {
			writeJSON(w, http.StatusUnauthorized, map[string]string{"message": "Bad credentials"})
			return
		}
		writeJSON(w, http.StatusOK, backend.LoginResponse{IDToken: testToken})
	})
	f.route(mux, "POST /api/send-otp-registration", false, func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
	})
	f.route(mux, "POST /api/resend-otp-registration", false, func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, http.StatusOK, backend.OTPResponse{ExpiresInSeconds: 120})
	})
	f.route(mux, "POST /api/verify-otp-registration", false, func(w http.ResponseWriter, r *http.Request) {
		var req backend.VerifyRegistrationRequest
		assert.NoError(t, json.NewDecoder(r.Body).Decode(&req))
		f.verified = &req
		w.WriteHeader(http.StatusCreated)
	})
	f.route(mux, "POST /api/forgot-password/send-otp", false, func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
	})
	f.route(mux, "POST /api/forgot-password/resend-otp", false, func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, http.StatusOK, backend.OTPResponse{ExpiresInSeconds: 120})
	})
	f.route(mux, "POST /api/forgot-password/verify-otp", false, func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, http.StatusOK, backend.VerifyResetResponse{ResetToken: "reset-1"})
	})
	f.route(mux, "POST /api/forgot-password/reset", false, func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
	})
	f.route(mux, "GET /api/otp-remaining", false, func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, http.StatusOK, backend.OTPRemaining{RemainingSeconds: 60})
	})
	f.route(mux, "GET /api/account", true, func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, http.StatusOK, f.account)
	})
	f.route(mux, "GET /api/user-extras/user/{id}", true, func(w http.ResponseWriter, r *http.Request) {
		if f.extra == nil {
			writeJSON(w, http.StatusNotFound, map[string]string{"title": "Not Found"})
			return
		}
		writeJSON(w, http.StatusOK, f.extra)
	})
	f.route(mux, "PUT /api/user-extras/{id}", true, func(w http.ResponseWriter, r *http.Request) {
		var ux backend.UserExtra
		assert.NoError(t, json.NewDecoder(r.Body).Decode(&ux))
		f.extra = &ux
		writeJSON(w, http.StatusOK, ux)
	})
	f.route(mux, "GET /api/tickets/active-batch", false, func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, http.StatusOK, f.tickets)
	})
	f.route(mux, "GET /api/tickets/by-key/{key}", false, func(w http.ResponseWriter, r *http.Request) {
		oid, ok := f.oids[r.PathValue("key")]
		if !ok {
			writeJSON(w, http.StatusNotFound, map[string]string{"title": "Not Found"})
			return
		}
		writeJSON(w, http.StatusOK, backend.Ticket{OID: oid, TicketKey: r.PathValue("key")})
	})
	f.route(mux, "GET /api/purchases/by-user/{id}", true, func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, http.StatusOK, f.purchases)
	})
	f.route(mux, "GET /api/transactions/by-user-extra/{id}", true, func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, http.StatusOK, []backend.Transaction{{ID: 1, Amount: decimal.NewFromInt(100), Status: "SUCCESS"}})
	})
	f.route(mux, "GET /api/winners/my-winnings/{id}", true, func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "70", r.PathValue("id"))
		writeJSON(w, http.StatusOK, f.winnings)
	})
	f.route(mux, "GET /api/slots/my-tickets/{id}", true, func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, http.StatusOK, f.myTickets)
	})
	f.route(mux, "POST /api/withdrawals", true, func(w http.ResponseWriter, r *http.Request) {
		var req withdrawal.Request
		assert.NoError(t, json.NewDecoder(r.Body).Decode(&req))
		f.withdrawal = &req
		w.WriteHeader(http.StatusCreated)
	})
	f.route(mux, "POST /api/payment/initiate", true, func(w http.ResponseWriter, r *http.Request) {
		var req backend.InitiatePaymentRequest
		assert.NoError(t, json.NewDecoder(r.Body).Decode(&req))
		f.paymentReq = &req
		writeJSON(w, http.StatusOK, f.payment)
	})
	f.route(mux, "POST /api/payment/status-check/{orderId}", true, func(w http.ResponseWriter, r *http.Request) {
		f.reconciles = append(f.reconciles, r.PathValue("orderId"))
		w.WriteHeader(http.StatusOK)
	})
	f.route(mux, "GET /api/transactions/status/{orderId}", true, func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, http.StatusOK, backend.TransactionStatus{OrderID: r.PathValue("orderId"), Status: f.txStatus})
	})
	f.route(mux, "GET /api/draws", false, func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("X-Total-Count", "3")
		writeJSON(w, http.StatusOK, f.draws)
	})
	return mux
}

// testEnv is a web server wired to a fake backend with in-memory storage.
type testEnv struct {
	be        *fakeBackend
	clock     *clockwork.FakeClock
	sessions  *memory.SessionStore
	checkouts *memory.CheckoutRepository
	tracker   *purchase.Tracker
	url       string
}

// 2025-03-06 is a Thursday; 15:30 UTC is 21:00 IST.
var testNow = time.Date(2025, time.March, 6, 15, 30, 0, 0, time.UTC)

func newTestEnv(t *testing.T) *testEnv {
	t.Helper()

	fb := newFakeBackend()
	beSrv := httptest.NewServer(fb.handler(t))
	t.Cleanup(beSrv.Close)

	client, err := backend.New(beSrv.URL, backend.Options{OnUnauthorized: ClearOnUnauthorized})
	require.NoError(t, err)

	fc := clockwork.NewFakeClockAt(testNow)
	tracker := purchase.NewTracker(context.Background(), purchase.TrackerConfig{
		Poller:    purchase.PollerConfig{Interval: 3 * time.Second, Grace: 10 * time.Second},
		Retention: time.Minute,
	}, fc, nil)
	t.Cleanup(tracker.Close)

	env := &testEnv{
		be:        fb,
		clock:     fc,
		sessions:  memory.NewSessionStore(time.Hour, fc),
		checkouts: memory.NewCheckoutRepository(),
		tracker:   tracker,
	}
	h := New(Config{}, Deps{
		Backend:   client,
		Sessions:  env.sessions,
		Checkouts: env.checkouts,
		Tracker:   tracker,
		Schedule:  draw.DefaultSchedule(),
		Clock:     fc,
	})
	srv := httptest.NewServer(h.Routes())
	t.Cleanup(srv.Close)
	env.url = srv.URL
	return env
}

// visitor is a browser with its own cookie jar.
type visitor struct {
	t      *testing.T
	env    *testEnv
	client *http.Client
}

func (e *testEnv) visitor(t *testing.T) *visitor {
	t.Helper()
	jar, err := cookiejar.New(nil)
	require.NoError(t, err)
	return &visitor{t: t, env: e, client: &http.Client{Jar: jar}}
}

type response struct {
	code   int
	header http.Header
	body   []byte
}

func (r response) decode(t *testing.T, v any) {
	t.Helper()
	require.NoError(t, json.Unmarshal(r.body, v), string(r.body))
}

func (r response) apiError(t *testing.T) apiError {
	t.Helper()
	var e apiError
	r.decode(t, &e)
	assert.Equal(t, r.code, e.Code)
	return e
}

func (v *visitor) do(method, path string, body any) response {
	v.t.Helper()
	var rd io.Reader
	if body != nil {
		raw, err := json.Marshal(body)
		require.NoError(v.t, err)
		rd = bytes.NewReader(raw)
	}
	req, err := http.NewRequest(method, v.env.url+path, rd)
	require.NoError(v.t, err)
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	resp, err := v.client.Do(req)
	require.NoError(v.t, err)
	defer func() { _ = resp.Body.Close() }()

	raw, err := io.ReadAll(resp.Body)
	require.NoError(v.t, err)
	return response{code: resp.StatusCode, header: resp.Header, body: raw}
}

func (v *visitor) login() {
	v.t.Helper()
	resp := v.do(http.MethodPost, "/web/login", map[string]string{"phoneNumber": "+919999999999", "password": "secret"})
	require.Equal(v.t, http.StatusOK, resp.code, string(resp.body))
}

func TestSessionCookie(t *testing.T) {
	env := newTestEnv(t)
	v := env.visitor(t)

	resp := v.do(http.MethodGet, "/web/cart", nil)
	require.Equal(t, http.StatusOK, resp.code)
	cookie := resp.header.Get("Set-Cookie")
	require.True(t, strings.HasPrefix(cookie, session.CookieName+"="), cookie)
	assert.Contains(t, cookie, "HttpOnly")
	assert.Contains(t, cookie, "SameSite=Lax")

	// The session is reused on later requests.
	resp = v.do(http.MethodGet, "/web/cart", nil)
	require.Equal(t, http.StatusOK, resp.code)
	assert.Empty(t, resp.header.Get("Set-Cookie"))
}

func TestNotFound(t *testing.T) {
	env := newTestEnv(t)
	resp := env.visitor(t).do(http.MethodGet, "/web/nope", nil)
	assert.Equal(t, http.StatusNotFound, resp.code)
}

func TestCountdown(t *testing.T) {
	env := newTestEnv(t)
	v := env.visitor(t)

	var got countdownResponse
	resp := v.do(http.MethodGet, "/web/countdown", nil)
	require.Equal(t, http.StatusOK, resp.code)
	resp.decode(t, &got)
	assert.Equal(t, int64(1800), got.SecondsLeft)
	assert.Equal(t, draw.Remaining{Minutes: 30}, got.Remaining)

	// Exactly at the draw the next one is a week away.
	env.clock.Advance(30 * time.Minute)
	resp = v.do(http.MethodGet, "/web/countdown", nil)
	resp.decode(t, &got)
	assert.Equal(t, int64(7*24*3600), got.SecondsLeft)
}

func TestDraws(t *testing.T) {
	env := newTestEnv(t)
	env.be.with(func(f *fakeBackend) {
		f.draws = []backend.Draw{
			{ID: 3, DrawDate: "2025-02-27", WinningTicketKey: "1 2 3", VerificationStatus: backend.DrawStatusVerified},
			{ID: 2, DrawDate: "2025-02-20", VerificationStatus: "PENDING"},
		}
	})

	var got drawsResponse
	resp := env.visitor(t).do(http.MethodGet, "/web/draws?page=0", nil)
	require.Equal(t, http.StatusOK, resp.code)
	resp.decode(t, &got)
	require.Len(t, got.Draws, 1)
	assert.Equal(t, int64(3), got.Draws[0].ID)
	assert.Equal(t, 3, got.Total)
	assert.False(t, got.HasMore)

	resp = env.visitor(t).do(http.MethodGet, "/web/draws?page=-1", nil)
	assert.Equal(t, http.StatusBadRequest, resp.code)
}

func TestLocale(t *testing.T) {
	env := newTestEnv(t)
	v := env.visitor(t)

	var got localeResponse
	v.do(http.MethodGet, "/web/locale", nil).decode(t, &got)
	assert.Equal(t, "en", got.Locale)

	resp := v.do(http.MethodPut, "/web/locale", map[string]string{"locale": "hi"})
	require.Equal(t, http.StatusOK, resp.code)
	v.do(http.MethodGet, "/web/locale", nil).decode(t, &got)
	assert.Equal(t, "hi", got.Locale)

	resp = v.do(http.MethodPut, "/web/locale", map[string]string{"locale": "fr"})
	assert.Equal(t, http.StatusBadRequest, resp.code)
	assert.Equal(t, "Unsupported language.", resp.apiError(t).Message)
}
