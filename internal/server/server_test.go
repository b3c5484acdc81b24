package server

import (
	"context"
	"encoding/json"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"strings"
	"testing"

	"github.com/SandroAugusto/school-of-solana/internal/domain"
	"github.com/SandroAugusto/school-of-solana/internal/engine"
	"github.com/SandroAugusto/school-of-solana/internal/event"
	"github.com/SandroAugusto/school-of-solana/internal/infra"
	"github.com/SandroAugusto/school-of-solana/internal/infra/auth"
	"github.com/SandroAugusto/school-of-solana/internal/infra/storage"
	"github.com/SandroAugusto/school-of-solana/internal/server/handler"
	"github.com/SandroAugusto/school-of-solana/internal/server/middleware"
	"github.com/SandroAugusto/school-of-solana/internal/service"
	"github.com/SandroAugusto/school-of-solana/internal/settlement"
)

const T = 1_700_000_000

var (
	authority = domain.Identity{0xA1}
	oracle    = domain.Identity{0x0C}
	alice     = domain.Identity{0xA7}
	bob       = domain.Identity{0xB0}
)

type testEnv struct {
	handler http.Handler
	signer  *auth.Signer
	clock   *infra.ManualClock
	board   *service.MarketBoard
}

func newTestEnv(t *testing.T) *testEnv {
	t.Helper()
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	store := storage.NewMemoryStore()
	clock := infra.NewManualClock(T)
	eng := engine.NewEngine(store, clock)
	board := service.NewMarketBoard()
	policy := settlement.ProRata{}

	seq := engine.NewSequencer(16, eng, store, policy, board.Apply)
	seq.SetDumpPath(filepath.Join(t.TempDir(), "dump.json"))
	ctx, cancel := context.WithCancel(context.Background())
	t.Cleanup(cancel)
	go seq.Run(ctx)

	signer := auth.NewSigner("0123456789abcdef")
	metrics := &infra.Metrics{}
	srv := NewServer(Config{Addr: ":0"}, Handlers{
		Health:  handler.NewHealthHandler(seq.LastSeq),
		Markets: handler.NewMarketHandler(seq, eng, board, policy, logger),
		Events:  handler.NewEventHandler(store, logger),
		Metrics: handler.NewMetricsHandler(metrics),
	}, nil, signer, logger)

	return &testEnv{handler: srv.Handler(), signer: signer, clock: clock, board: board}
}

// do sends a request as caller; a zero caller sends no credentials.
func (e *testEnv) do(t *testing.T, method, path string, caller domain.Identity, body string) *httptest.ResponseRecorder {
	t.Helper()
	var r io.Reader
	if body != "" {
		r = strings.NewReader(body)
	}
	req := httptest.NewRequest(method, path, r)
	if !caller.IsZero() {
		req.Header.Set(middleware.HeaderIdentity, caller.String())
		req.Header.Set(middleware.HeaderCapability, e.signer.Token(caller))
	}
	rec := httptest.NewRecorder()
	e.handler.ServeHTTP(rec, req)
	return rec
}

func decode[V any](t *testing.T, rec *httptest.ResponseRecorder) V {
	t.Helper()
	var v V
	if err := json.Unmarshal(rec.Body.Bytes(), &v); err != nil {
		t.Fatalf("decode %q: %v", rec.Body.String(), err)
	}
	return v
}

func expectStatus(t *testing.T, rec *httptest.ResponseRecorder, want int) {
	t.Helper()
	if rec.Code != want {
		t.Fatalf("expected status %d, got %d: %s", want, rec.Code, rec.Body.String())
	}
}

type errorResponse struct {
	Error string `json:"error"`
	Kind  string `json:"kind"`
}

func createBody(question string, endTime int64) string {
	b, _ := json.Marshal(map[string]any{
		"question":   question,
		"end_time":   endTime,
		"oracle":     oracle.String(),
		"is_curated": true,
	})
	return string(b)
}

func TestServer_FullLifecycle(t *testing.T) {
	env := newTestEnv(t)

	rec := env.do(t, http.MethodPost, "/api/markets", authority, createBody("Will it rain?", T+100))
	expectStatus(t, rec, http.StatusCreated)
	m := decode[domain.Market](t, rec)
	if m.Authority != authority || m.Oracle != oracle || m.Status != domain.StatusOpen {
		t.Fatalf("unexpected market: %+v", m)
	}
	base := "/api/markets/" + m.Key.String()

	rec = env.do(t, http.MethodPost, base+"/bets", alice, `{"side":"yes","amount":50}`)
	expectStatus(t, rec, http.StatusCreated)
	if b := decode[domain.Bet](t, rec); b.Bettor != alice || b.Amount != 50 || b.Side != domain.SideYes {
		t.Fatalf("unexpected bet: %+v", b)
	}
	rec = env.do(t, http.MethodPost, base+"/bets", bob, `{"side":"no","amount":30}`)
	expectStatus(t, rec, http.StatusCreated)

	rec = env.do(t, http.MethodGet, base, domain.Identity{}, "")
	expectStatus(t, rec, http.StatusOK)
	if got := decode[domain.Market](t, rec); got.TotalYes != 50 || got.TotalNo != 30 {
		t.Errorf("unexpected pools: yes=%d no=%d", got.TotalYes, got.TotalNo)
	}

	rec = env.do(t, http.MethodGet, base+"/bets", domain.Identity{}, "")
	expectStatus(t, rec, http.StatusOK)
	if bets := decode[[]domain.Bet](t, rec); len(bets) != 2 {
		t.Errorf("expected 2 bets, got %d", len(bets))
	}

	env.clock.Set(T + 100)
	rec = env.do(t, http.MethodPost, base+"/close", authority, "")
	expectStatus(t, rec, http.StatusOK)
	if got := decode[domain.Market](t, rec); got.Status != domain.StatusResolving {
		t.Errorf("expected resolving, got %s", got.Status)
	}

	rec = env.do(t, http.MethodPost, base+"/resolve", oracle, `{"outcome":"yes"}`)
	expectStatus(t, rec, http.StatusOK)
	if got := decode[domain.Market](t, rec); got.Outcome != domain.OutcomeYes || got.Status != domain.StatusResolved {
		t.Errorf("unexpected resolution: %+v", got)
	}

	rec = env.do(t, http.MethodGet, base+"/bets/"+alice.String()+"/quote", domain.Identity{}, "")
	expectStatus(t, rec, http.StatusOK)
	quote := decode[struct {
		Policy string `json:"policy"`
		Quote  string `json:"quote"`
	}](t, rec)
	if quote.Policy != "pro_rata" || quote.Quote != "80" {
		t.Errorf("unexpected quote: %+v", quote)
	}

	rec = env.do(t, http.MethodPost, base+"/withdraw", alice, "")
	expectStatus(t, rec, http.StatusOK)
	withdrawn := decode[struct {
		Bet   domain.Bet `json:"bet"`
		Quote string     `json:"quote"`
		Seq   uint64     `json:"seq"`
	}](t, rec)
	if !withdrawn.Bet.Withdrawn || withdrawn.Quote != "80" || withdrawn.Seq != 6 {
		t.Errorf("unexpected withdraw response: %+v", withdrawn)
	}

	rec = env.do(t, http.MethodPost, base+"/withdraw", alice, "")
	expectStatus(t, rec, http.StatusConflict)
	if got := decode[errorResponse](t, rec); got.Kind != domain.KindAlreadyWithdrawn.String() {
		t.Errorf("expected AlreadyWithdrawn, got %+v", got)
	}

	rec = env.do(t, http.MethodGet, "/api/events?after=4", domain.Identity{}, "")
	expectStatus(t, rec, http.StatusOK)
	events := decode[[]event.Event](t, rec)
	if len(events) != 2 || events[0].Type != event.TypeMarketResolved || events[1].Type != event.TypeWinningsWithdrawn {
		t.Errorf("unexpected events: %+v", events)
	}

	rec = env.do(t, http.MethodGet, "/api/markets", domain.Identity{}, "")
	expectStatus(t, rec, http.StatusOK)
	if list := decode[[]service.MarketSummary](t, rec); len(list) != 1 || list[0].Withdrawals != 1 {
		t.Errorf("unexpected board listing: %+v", list)
	}
}

func TestServer_ErrorMapping(t *testing.T) {
	env := newTestEnv(t)

	rec := env.do(t, http.MethodPost, "/api/markets", authority, createBody("Will it rain?", T+100))
	expectStatus(t, rec, http.StatusCreated)
	base := "/api/markets/" + decode[domain.Market](t, rec).Key.String()

	tests := []struct {
		name   string
		method string
		path   string
		caller domain.Identity
		body   string
		status int
		kind   string
	}{
		{"no credentials", http.MethodPost, base + "/bets", domain.Identity{}, `{"side":"yes","amount":1}`, http.StatusUnauthorized, "Unauthenticated"},
		{"question too long", http.MethodPost, "/api/markets", authority, createBody(strings.Repeat("q", 101), T+100), http.StatusBadRequest, domain.KindQuestionTooLong.String()},
		{"end time in past", http.MethodPost, "/api/markets", authority, createBody("q", T), http.StatusBadRequest, domain.KindEndTimeInPast.String()},
		{"missing oracle", http.MethodPost, "/api/markets", authority, `{"question":"q","end_time":1700000100}`, http.StatusBadRequest, "BadRequest"},
		{"unknown field", http.MethodPost, base + "/bets", alice, `{"side":"yes","amount":1,"odds":2}`, http.StatusBadRequest, "BadRequest"},
		{"zero amount", http.MethodPost, base + "/bets", alice, `{"side":"yes","amount":0}`, http.StatusBadRequest, domain.KindInvalidAmount.String()},
		{"invalid side", http.MethodPost, base + "/bets", alice, `{"side":"maybe","amount":1}`, http.StatusBadRequest, domain.KindInvalidSide.String()},
		{"close before end", http.MethodPost, base + "/close", authority, "", http.StatusConflict, domain.KindMarketStillActive.String()},
		{"wrong resolver", http.MethodPost, base + "/resolve", authority, `{"outcome":"yes"}`, http.StatusForbidden, domain.KindOracleMismatch.String()},
		{"unknown market", http.MethodGet, "/api/markets/" + domain.Identity{9}.String(), domain.Identity{}, "", http.StatusNotFound, domain.KindMarketNotFound.String()},
		{"bad key", http.MethodGet, "/api/markets/0OIl", domain.Identity{}, "", http.StatusBadRequest, "BadRequest"},
		{"quote missing bet", http.MethodGet, base + "/bets/" + alice.String() + "/quote", domain.Identity{}, "", http.StatusNotFound, domain.KindBetNotFound.String()},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rec := env.do(t, tt.method, tt.path, tt.caller, tt.body)
			expectStatus(t, rec, tt.status)
			if got := decode[errorResponse](t, rec); got.Kind != tt.kind {
				t.Errorf("expected kind %s, got %+v", tt.kind, got)
			}
		})
	}

	t.Run("stranger closes", func(t *testing.T) {
		env.clock.Set(T + 100)
		rec := env.do(t, http.MethodPost, base+"/close", bob, "")
		expectStatus(t, rec, http.StatusForbidden)
		if got := decode[errorResponse](t, rec); got.Kind != domain.KindUnauthorized.String() {
			t.Errorf("expected Unauthorized, got %+v", got)
		}
	})
}

func TestServer_LateBetClosesMarket(t *testing.T) {
	env := newTestEnv(t)

	rec := env.do(t, http.MethodPost, "/api/markets", authority, createBody("Will it rain?", T+100))
	expectStatus(t, rec, http.StatusCreated)
	base := "/api/markets/" + decode[domain.Market](t, rec).Key.String()

	env.clock.Set(T + 500)
	rec = env.do(t, http.MethodPost, base+"/bets", alice, `{"side":"yes","amount":5}`)
	expectStatus(t, rec, http.StatusConflict)
	if got := decode[errorResponse](t, rec); got.Kind != domain.KindMarketClosed.String() {
		t.Fatalf("expected MarketClosed, got %+v", got)
	}

	rec = env.do(t, http.MethodGet, base, domain.Identity{}, "")
	expectStatus(t, rec, http.StatusOK)
	if got := decode[domain.Market](t, rec); got.Status != domain.StatusResolving || got.TotalYes != 0 {
		t.Errorf("expected latched market with empty pool, got %+v", got)
	}
}

func TestServer_HealthAndCORS(t *testing.T) {
	env := newTestEnv(t)

	rec := env.do(t, http.MethodGet, "/api/health", domain.Identity{}, "")
	expectStatus(t, rec, http.StatusOK)
	if got := decode[map[string]any](t, rec); got["status"] != "ok" {
		t.Errorf("unexpected health body: %v", got)
	}

	req := httptest.NewRequest(http.MethodOptions, "/api/markets", nil)
	req.Header.Set("Origin", "http://localhost:3000")
	rec = httptest.NewRecorder()
	env.handler.ServeHTTP(rec, req)
	expectStatus(t, rec, http.StatusNoContent)
	if got := rec.Header().Get("Access-Control-Allow-Origin"); got != "http://localhost:3000" {
		t.Errorf("expected origin echoed, got %q", got)
	}
	if !strings.Contains(rec.Header().Get("Access-Control-Allow-Headers"), middleware.HeaderCapability) {
		t.Error("expected capability header to be allowed")
	}
}

func TestCORSRestrictsOrigins(t *testing.T) {
	h := corsMiddleware([]string{"https://app.example"})(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
	}))

	req := httptest.NewRequest(http.MethodGet, "/", nil)
	req.Header.Set("Origin", "https://evil.example")
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)

	if rec.Header().Get("Access-Control-Allow-Origin") != "" {
		t.Error("unlisted origin must not be allowed")
	}
}
