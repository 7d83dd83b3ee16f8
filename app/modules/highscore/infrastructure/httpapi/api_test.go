package highscorehttp

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	highscoreservice "github.com/Black-And-White-Club/highscore-ledger/app/modules/highscore/application"
	highscoredb "github.com/Black-And-White-Club/highscore-ledger/app/modules/highscore/infrastructure/repositories"
	"github.com/Black-And-White-Club/highscore-ledger/config"
	"github.com/Black-And-White-Club/highscore-ledger/db/bundb"
	highscoreevents "github.com/Black-And-White-Club/highscore-ledger/internal/events/highscore"
	"github.com/Black-And-White-Club/highscore-ledger/internal/identity"
	"github.com/Black-And-White-Club/highscore-ledger/internal/observability/metrics"
	"github.com/nats-io/nkeys"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.opentelemetry.io/otel/trace/noop"
	"golang.org/x/time/rate"
)

const testLedger = "http-test-ledger"

type apiPlayer struct {
	id    identity.Identity
	token string
}

func newAPIPlayer(t *testing.T) apiPlayer {
	t.Helper()
	kp, err := nkeys.CreateUser()
	require.NoError(t, err)
	id, err := identity.FromKeyPair(kp)
	require.NoError(t, err)
	token, err := identity.IssueToken(kp, testLedger, time.Minute)
	require.NoError(t, err)
	return apiPlayer{id: id, token: token}
}

func newTestServer(t *testing.T, limiter *KeyedRateLimiter) *httptest.Server {
	t.Helper()
	return newTestServerBehindProxy(t, limiter, false)
}

func newTestServerBehindProxy(t *testing.T, limiter *KeyedRateLimiter, trustProxyHeaders bool) *httptest.Server {
	t.Helper()
	ctx := context.Background()
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	tracer := noop.NewTracerProvider().Tracer("test")

	name := strings.NewReplacer("/", "_", " ", "_").Replace(t.Name())
	db, err := bundb.Open(ctx, config.DatabaseConfig{
		Driver: config.DriverSQLite,
		DSN:    fmt.Sprintf("file:%s?mode=memory&cache=shared", name),
	})
	require.NoError(t, err)
	t.Cleanup(func() { _ = db.Close() })
	require.NoError(t, bundb.MigrateAll(ctx, db, logger))

	reg := prometheus.NewRegistry()
	m, err := metrics.NewHighscoreMetrics(reg, "highscore")
	require.NoError(t, err)

	svc := highscoreservice.NewHighscoreService(highscoredb.NewRepository(db), logger, m, tracer, db, testLedger)
	verifier := identity.NewVerifier(testLedger, time.Hour)
	if limiter == nil {
		limiter = NewKeyedRateLimiter(rate.Inf, 1)
	}

	root := NewBaseRouter(reg, db, trustProxyHeaders)
	RegisterRoutes(root, NewHandlers(svc, testLedger, logger, tracer), verifier, limiter)
	srv := httptest.NewServer(root)
	t.Cleanup(srv.Close)
	return srv
}

func do(t *testing.T, srv *httptest.Server, method, path, token string, body any) *http.Response {
	t.Helper()
	var rdr io.Reader
	switch b := body.(type) {
	case nil:
	case string:
		rdr = strings.NewReader(b)
	default:
		buf, err := json.Marshal(b)
		require.NoError(t, err)
		rdr = bytes.NewReader(buf)
	}
	req, err := http.NewRequest(method, srv.URL+path, rdr)
	require.NoError(t, err)
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	resp, err := srv.Client().Do(req)
	require.NoError(t, err)
	t.Cleanup(func() { _ = resp.Body.Close() })
	return resp
}

func decode[T any](t *testing.T, resp *http.Response) T {
	t.Helper()
	var out T
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&out))
	return out
}

func TestAPI_Scenario(t *testing.T) {
	srv := newTestServer(t, nil)
	a := newAPIPlayer(t)
	b := newAPIPlayer(t)
	scorePath := "/v1/records/" + a.id.String() + "/scores"

	resp := do(t, srv, http.MethodPost, "/v1/records", a.token, nil)
	require.Equal(t, http.StatusCreated, resp.StatusCode)
	created := decode[highscoreevents.RecordV1](t, resp)
	assert.Equal(t, uint32(0), created.Score)
	assert.Equal(t, a.id, created.Owner)
	assert.Equal(t, identity.DeriveAddress(testLedger, a.id), created.Address)

	for _, step := range []struct {
		score, want uint32
		raised      bool
	}{
		{50, 50, true},
		{30, 50, false},
		{75, 75, true},
	} {
		resp := do(t, srv, http.MethodPost, scorePath, a.token, map[string]any{"score": step.score})
		require.Equal(t, http.StatusOK, resp.StatusCode)
		got := decode[highscoreevents.ScoreSubmittedPayloadV1](t, resp)
		assert.Equal(t, step.want, got.Record.Score)
		assert.Equal(t, step.raised, got.Raised)
	}

	resp = do(t, srv, http.MethodPost, "/v1/records/"+b.id.String()+"/scores", b.token, map[string]any{"score": 10})
	assert.Equal(t, http.StatusNotFound, resp.StatusCode)

	resp = do(t, srv, http.MethodGet, "/v1/records/"+a.id.String(), "", nil)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, uint32(75), decode[highscoreevents.RecordV1](t, resp).Score)

	resp = do(t, srv, http.MethodGet, "/v1/records/"+a.id.String()+"/history", "", nil)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	history := decode[[]raiseResponse](t, resp)
	require.Len(t, history, 2)
	assert.Equal(t, uint32(50), history[0].New)
	assert.Equal(t, uint32(75), history[1].New)

	resp = do(t, srv, http.MethodGet, "/v1/records/"+a.id.String()+"/history.png", "", nil)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, "image/png", resp.Header.Get("Content-Type"))

	resp = do(t, srv, http.MethodGet, "/v1/leaderboard", "", nil)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	board := decode[[]highscoreevents.RecordV1](t, resp)
	require.Len(t, board, 1)
	assert.Equal(t, a.id, board[0].Owner)

	resp = do(t, srv, http.MethodGet, "/v1/leaderboard.xlsx?limit=5", "", nil)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Contains(t, resp.Header.Get("Content-Disposition"), "leaderboard.xlsx")
}

func TestAPI_CreateRecord(t *testing.T) {
	srv := newTestServer(t, nil)
	a := newAPIPlayer(t)

	resp := do(t, srv, http.MethodPost, "/v1/records", "", nil)
	assert.Equal(t, http.StatusUnauthorized, resp.StatusCode)

	resp = do(t, srv, http.MethodPost, "/v1/records", "not-a-jwt", nil)
	assert.Equal(t, http.StatusUnauthorized, resp.StatusCode)

	resp = do(t, srv, http.MethodPost, "/v1/records", a.token, nil)
	assert.Equal(t, http.StatusCreated, resp.StatusCode)
	assert.Equal(t, "/v1/records/"+a.id.String(), resp.Header.Get("Location"))

	resp = do(t, srv, http.MethodPost, "/v1/records", a.token, nil)
	assert.Equal(t, http.StatusConflict, resp.StatusCode)
}

func TestAPI_SubmitScore(t *testing.T) {
	srv := newTestServer(t, nil)
	owner := newAPIPlayer(t)
	other := newAPIPlayer(t)
	require.Equal(t, http.StatusCreated, do(t, srv, http.MethodPost, "/v1/records", owner.token, nil).StatusCode)
	path := "/v1/records/" + owner.id.String() + "/scores"

	tests := []struct {
		name       string
		path       string
		token      string
		body       any
		wantStatus int
	}{
		{name: "owner raises", path: path, token: owner.token, body: `{"score": 4294967295}`, wantStatus: http.StatusOK},
		{name: "non-owner forbidden", path: path, token: other.token, body: `{"score": 1}`, wantStatus: http.StatusForbidden},
		{name: "missing token", path: path, body: `{"score": 1}`, wantStatus: http.StatusUnauthorized},
		{name: "above uint32", path: path, token: owner.token, body: `{"score": 4294967296}`, wantStatus: http.StatusBadRequest},
		{name: "negative", path: path, token: owner.token, body: `{"score": -1}`, wantStatus: http.StatusBadRequest},
		{name: "fractional", path: path, token: owner.token, body: `{"score": 1.5}`, wantStatus: http.StatusBadRequest},
		{name: "string", path: path, token: owner.token, body: `{"score": "ten"}`, wantStatus: http.StatusBadRequest},
		{name: "missing score", path: path, token: owner.token, body: `{}`, wantStatus: http.StatusBadRequest},
		{name: "unknown field", path: path, token: owner.token, body: `{"score": 1, "bonus": 2}`, wantStatus: http.StatusBadRequest},
		{name: "bad player", path: "/v1/records/nope/scores", token: owner.token, body: `{"score": 1}`, wantStatus: http.StatusBadRequest},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			resp := do(t, srv, http.MethodPost, tt.path, tt.token, tt.body)
			assert.Equal(t, tt.wantStatus, resp.StatusCode)
		})
	}

	resp := do(t, srv, http.MethodGet, "/v1/records/"+owner.id.String(), "", nil)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, uint32(4294967295), decode[highscoreevents.RecordV1](t, resp).Score)
}

func TestAPI_Leaderboard(t *testing.T) {
	srv := newTestServer(t, nil)

	tests := []struct {
		query      string
		wantStatus int
	}{
		{query: "", wantStatus: http.StatusOK},
		{query: "?limit=3", wantStatus: http.StatusOK},
		{query: "?limit=1000", wantStatus: http.StatusOK},
		{query: "?limit=0", wantStatus: http.StatusBadRequest},
		{query: "?limit=abc", wantStatus: http.StatusBadRequest},
	}

	for _, tt := range tests {
		resp := do(t, srv, http.MethodGet, "/v1/leaderboard"+tt.query, "", nil)
		assert.Equal(t, tt.wantStatus, resp.StatusCode, tt.query)
	}
}

func TestAPI_HealthAndMetrics(t *testing.T) {
	srv := newTestServer(t, nil)
	a := newAPIPlayer(t)
	require.Equal(t, http.StatusCreated, do(t, srv, http.MethodPost, "/v1/records", a.token, nil).StatusCode)

	resp := do(t, srv, http.MethodGet, "/healthz", "", nil)
	assert.Equal(t, http.StatusOK, resp.StatusCode)

	resp = do(t, srv, http.MethodGet, "/metrics", "", nil)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	body, err := io.ReadAll(resp.Body)
	require.NoError(t, err)
	assert.Contains(t, string(body), "highscore_ledger_records_created_total 1")
}

func TestAPI_RateLimited(t *testing.T) {
	srv := newTestServer(t, NewKeyedRateLimiter(rate.Every(time.Hour), 2))

	for i := 0; i < 2; i++ {
		assert.Equal(t, http.StatusOK, do(t, srv, http.MethodGet, "/v1/leaderboard", "", nil).StatusCode)
	}
	assert.Equal(t, http.StatusTooManyRequests, do(t, srv, http.MethodGet, "/v1/leaderboard", "", nil).StatusCode)

	// an authenticated caller gets its own bucket
	a := newAPIPlayer(t)
	assert.Equal(t, http.StatusCreated, do(t, srv, http.MethodPost, "/v1/records", a.token, nil).StatusCode)
}

func TestAPI_RateLimitForwardedHeaders(t *testing.T) {
	tests := []struct {
		name              string
		trustProxyHeaders bool
		wantThird         int
	}{
		{name: "untrusted headers share the connection bucket", trustProxyHeaders: false, wantThird: http.StatusTooManyRequests},
		{name: "trusted headers key by forwarded client", trustProxyHeaders: true, wantThird: http.StatusOK},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			srv := newTestServerBehindProxy(t, NewKeyedRateLimiter(rate.Every(time.Hour), 2), tt.trustProxyHeaders)

			var last int
			for i := 0; i < 3; i++ {
				req, err := http.NewRequest(http.MethodGet, srv.URL+"/v1/leaderboard", nil)
				require.NoError(t, err)
				req.Header.Set("X-Forwarded-For", fmt.Sprintf("203.0.113.%d", i+1))
				resp, err := srv.Client().Do(req)
				require.NoError(t, err)
				_ = resp.Body.Close()
				last = resp.StatusCode
			}
			assert.Equal(t, tt.wantThird, last)
		})
	}
}
