//go:build integration

package app

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net"
	"net/http"
	"net/http/cookiejar"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/go-faster/sdk/zctx"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/testcontainers/testcontainers-go"
	"github.com/testcontainers/testcontainers-go/wait"
	"go.opentelemetry.io/otel/metric"
	metricnoop "go.opentelemetry.io/otel/metric/noop"
	"go.opentelemetry.io/otel/trace"
	tracenoop "go.opentelemetry.io/otel/trace/noop"
	"go.uber.org/zap/zaptest"
)

type nopTelemetry struct{}

func (nopTelemetry) MeterProvider() metric.MeterProvider { return metricnoop.NewMeterProvider() }
func (nopTelemetry) TracerProvider() trace.TracerProvider {
	return tracenoop.NewTracerProvider()
}

func startPostgres(t *testing.T) string {
	t.Helper()
	ctx := context.Background()

	c, err := testcontainers.GenericContainer(ctx, testcontainers.GenericContainerRequest{
		ContainerRequest: testcontainers.ContainerRequest{
			Image:        "postgres:17-alpine",
			ExposedPorts: []string{"5432/tcp"},
			Env: map[string]string{
				"POSTGRES_USER":     "lotto",
				"POSTGRES_PASSWORD": "lotto",
				"POSTGRES_DB":       "lotto",
			},
			WaitingFor: wait.ForLog("database system is ready to accept connections").
				WithOccurrence(2).
				WithStartupTimeout(time.Minute),
		},
		Started: true,
	})
	testcontainers.CleanupContainer(t, c)
	require.NoError(t, err)

	host, err := c.Host(ctx)
	require.NoError(t, err)
	port, err := c.MappedPort(ctx, "5432/tcp")
	require.NoError(t, err)
	return fmt.Sprintf("postgres://lotto:lotto@%s:%s/lotto?sslmode=disable", host, port.Port())
}

// fakeLottery answers the handful of backend calls the smoke test makes.
func fakeLottery(t *testing.T) string {
	t.Helper()
	mux := http.NewServeMux()
	reply := func(w http.ResponseWriter, v any) {
		w.Header().Set("Content-Type", "application/json")
		_ = json.NewEncoder(w).Encode(v)
	}
	mux.HandleFunc("GET /management/health", func(w http.ResponseWriter, _ *http.Request) {
		reply(w, map[string]string{"status": "UP"})
	})
	mux.HandleFunc("POST /api/login-phone", func(w http.ResponseWriter, _ *http.Request) {
		reply(w, map[string]string{"id_token": "token-1"})
	})
	mux.HandleFunc("GET /api/account", func(w http.ResponseWriter, _ *http.Request) {
		reply(w, map[string]any{"id": 7, "firstName": "Asha", "lastName": "Rao", "email": "asha@example.com"})
	})
	mux.HandleFunc("GET /api/user-extras/user/{id}", func(w http.ResponseWriter, _ *http.Request) {
		reply(w, map[string]any{
			"id":          70,
			"phoneNumber": "+919999999999",
			"user":        map[string]any{"id": 7, "firstName": "Asha", "lastName": "Rao", "email": "asha@example.com"},
		})
	})
	mux.HandleFunc("GET /api/purchases/by-user/{id}", func(w http.ResponseWriter, _ *http.Request) {
		reply(w, []any{})
	})
	mux.HandleFunc("GET /api/tickets/active-batch", func(w http.ResponseWriter, _ *http.Request) {
		reply(w, []map[string]any{{"id": 1, "oid": "OM 20250306-1-1", "ticketKey": "1 2 3 4 5 6"}})
	})
	mux.HandleFunc("POST /api/payment/initiate", func(w http.ResponseWriter, _ *http.Request) {
		reply(w, map[string]string{"url": "https://gateway.example.com/pay", "encData": "enc", "apiKey": "key", "orderId": "ORD-1"})
	})
	srv := httptest.NewServer(mux)
	t.Cleanup(srv.Close)
	return srv.URL
}

func freeAddr(t *testing.T) string {
	t.Helper()
	l, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)
	addr := l.Addr().String()
	require.NoError(t, l.Close())
	return addr
}

func TestRunPostgres(t *testing.T) {
	cfg := &Config{
		Addr:        freeAddr(t),
		DatabaseURL: startPostgres(t),
		Backend:     BackendConfig{URL: fakeLottery(t), Timeout: 5 * time.Second},
		Session:     SessionConfig{Store: SessionPostgres, TTL: time.Hour, SweepInterval: time.Minute},
		Purchase:    PurchaseConfig{Interval: time.Second, Grace: 10 * time.Second, MaxLifetime: time.Minute, Retention: time.Minute},
		Draw:        DrawConfig{Weekday: "Thursday", Hour: 21, Minute: 30, Location: "Asia/Kolkata"},
		RateLimit:   RateLimitConfig{Max: 1000, Window: time.Minute},
		CORS:        CORSConfig{Origins: []string{"http://localhost:3000"}, AllowCredentials: true},
		Graceful:    GracefulConfig{ShutdownTimeout: 5 * time.Second},
	}
	require.NoError(t, cfg.Validate())

	lg := zaptest.NewLogger(t)
	ctx, cancel := context.WithCancel(zctx.Base(context.Background(), lg))
	done := make(chan error, 1)
	go func() { done <- Run(ctx, lg, nopTelemetry{}, cfg) }()
	t.Cleanup(func() {
		cancel()
		select {
		case err := <-done:
			assert.NoError(t, err)
		case <-time.After(10 * time.Second):
			t.Error("server did not stop")
		}
	})

	jar, err := cookiejar.New(nil)
	require.NoError(t, err)
	client := &http.Client{Jar: jar, Timeout: 10 * time.Second}
	base := "http://" + cfg.Addr

	require.Eventually(t, func() bool {
		resp, err := client.Get(base + "/readyz")
		if err != nil {
			return false
		}
		_ = resp.Body.Close()
		return resp.StatusCode == http.StatusOK
	}, 30*time.Second, 100*time.Millisecond)

	do := func(method, path string, body any) *http.Response {
		t.Helper()
		var buf bytes.Buffer
		if body != nil {
			require.NoError(t, json.NewEncoder(&buf).Encode(body))
		}
		req, err := http.NewRequest(method, base+path, &buf)
		require.NoError(t, err)
		req.Header.Set("Content-Type", "application/json")
		resp, err := client.Do(req)
		require.NoError(t, err)
		t.Cleanup(func() { _ = resp.Body.Close() })
		return resp
	}

	t.Run("Livez", func(t *testing.T) {
		resp := do(http.MethodGet, "/livez", nil)
		assert.Equal(t, http.StatusOK, resp.StatusCode)
		assert.NotEmpty(t, resp.Header.Get("X-Request-ID"))
	})

	t.Run("RequestIDEchoed", func(t *testing.T) {
		req, err := http.NewRequest(http.MethodGet, base+"/livez", nil)
		require.NoError(t, err)
		req.Header.Set("X-Request-ID", "custom-request-id-12345")
		resp, err := client.Do(req)
		require.NoError(t, err)
		defer resp.Body.Close()
		assert.Equal(t, "custom-request-id-12345", resp.Header.Get("X-Request-ID"))
	})

	t.Run("CORSPreflight", func(t *testing.T) {
		req, err := http.NewRequest(http.MethodOptions, base+"/web/cart", nil)
		require.NoError(t, err)
		req.Header.Set("Origin", "http://localhost:3000")
		req.Header.Set("Access-Control-Request-Method", http.MethodPost)
		resp, err := client.Do(req)
		require.NoError(t, err)
		defer resp.Body.Close()
		assert.Equal(t, http.StatusNoContent, resp.StatusCode)
		assert.Equal(t, "http://localhost:3000", resp.Header.Get("Access-Control-Allow-Origin"))
		assert.Equal(t, "true", resp.Header.Get("Access-Control-Allow-Credentials"))
	})

	t.Run("Checkout", func(t *testing.T) {
		resp := do(http.MethodPost, "/web/login", map[string]string{"phoneNumber": "+919999999999", "password": "secret"})
		require.Equal(t, http.StatusOK, resp.StatusCode)

		resp = do(http.MethodPost, "/web/cart/items", map[string]int64{"ticketId": 1})
		require.Equal(t, http.StatusCreated, resp.StatusCode)

		resp = do(http.MethodPost, "/web/checkout", nil)
		require.Equal(t, http.StatusOK, resp.StatusCode)

		resp = do(http.MethodGet, "/web/checkouts", nil)
		require.Equal(t, http.StatusOK, resp.StatusCode)
		var list struct {
			Checkouts []struct {
				OrderID string `json:"orderId"`
			} `json:"checkouts"`
		}
		require.NoError(t, json.NewDecoder(resp.Body).Decode(&list))
		require.Len(t, list.Checkouts, 1)
		assert.Equal(t, "ORD-1", list.Checkouts[0].OrderID)
	})
}
