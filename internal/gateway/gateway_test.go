package gateway

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/lvdashuaibi/pollhub/internal/ratelimit"
	"go.uber.org/zap"
)

func init() {
	gin.SetMode(gin.TestMode)
}

func testLimits() Limits {
	return Limits{Default: 100, Register: 5, Login: 10, Vote: 20, Anonymous: 10}
}

// echoBackend 记录收到的请求并原样作答
type echoBackend struct {
	*httptest.Server
	lastPath string
	lastAuth string
}

func newEchoBackend(t *testing.T, status int, body string) *echoBackend {
	t.Helper()
	backend := &echoBackend{}
	backend.Server = httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		backend.lastPath = r.URL.RequestURI()
		backend.lastAuth = r.Header.Get("Authorization")
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(status)
		w.Write([]byte(body))
	}))
	t.Cleanup(backend.Close)
	return backend
}

func newTestGateway(urls ServiceURLs, limits Limits) *Gateway {
	limiter := ratelimit.NewLimiter(time.Minute)
	return New(urls, limiter, limits, 5*time.Second, zap.NewNop())
}

func TestForwardPreservesStatusAndAuth(t *testing.T) {
	poll := newEchoBackend(t, http.StatusCreated, `{"id":1}`)
	g := newTestGateway(ServiceURLs{Poll: poll.URL}, testLimits())
	router := g.Router()

	req := httptest.NewRequest(http.MethodPost, "/api/polls", strings.NewReader(`{"title":"t"}`))
	req.Header.Set("Authorization", "Bearer token123")
	req.Header.Set("Content-Type", "application/json")
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)

	if rec.Code != http.StatusCreated {
		t.Errorf("status = %d, want 201", rec.Code)
	}
	if rec.Body.String() != `{"id":1}` {
		t.Errorf("body = %q", rec.Body.String())
	}
	if poll.lastAuth != "Bearer token123" {
		t.Errorf("forwarded auth = %q", poll.lastAuth)
	}
}

func TestResultsRouting(t *testing.T) {
	results := newEchoBackend(t, http.StatusOK, `{}`)
	g := newTestGateway(ServiceURLs{Results: results.URL}, testLimits())
	router := g.Router()

	cases := []struct {
		path string
		want string
	}{
		{"/api/results/stats", "/stats"},
		{"/api/results/trending?hours=6", "/trending?hours=6"},
		{"/api/results/42", "/results/42"},
		{"/api/results/42/detailed", "/results/42/detailed"},
		{"/api/results/42/export", "/results/42/export"},
	}
	for _, tc := range cases {
		rec := httptest.NewRecorder()
		router.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, tc.path, nil))
		if rec.Code != http.StatusOK {
			t.Errorf("%s status = %d", tc.path, rec.Code)
		}
		if results.lastPath != tc.want {
			t.Errorf("%s forwarded to %q, want %q", tc.path, results.lastPath, tc.want)
		}
	}
}

func TestRateLimitPerClass(t *testing.T) {
	auth := newEchoBackend(t, http.StatusOK, `{}`)
	limits := testLimits()
	limits.Register = 2
	g := newTestGateway(ServiceURLs{Auth: auth.URL}, limits)
	router := g.Router()

	do := func(path string) int {
		rec := httptest.NewRecorder()
		router.ServeHTTP(rec, httptest.NewRequest(http.MethodPost, path, nil))
		return rec.Code
	}

	if do("/api/auth/register") != http.StatusOK || do("/api/auth/register") != http.StatusOK {
		t.Fatal("requests within limit rejected")
	}
	if code := do("/api/auth/register"); code != http.StatusTooManyRequests {
		t.Errorf("over-limit status = %d, want 429", code)
	}
	// register类别限流不影响login类别
	if code := do("/api/auth/login"); code != http.StatusOK {
		t.Errorf("login status = %d after register limit hit", code)
	}
}

func TestForwardBackendDown(t *testing.T) {
	down := newEchoBackend(t, http.StatusOK, `{}`)
	url := down.URL
	down.Close()

	g := newTestGateway(ServiceURLs{Vote: url}, testLimits())
	rec := httptest.NewRecorder()
	g.Router().ServeHTTP(rec, httptest.NewRequest(http.MethodPost, "/api/vote", nil))

	if rec.Code != http.StatusServiceUnavailable {
		t.Errorf("status = %d, want 503", rec.Code)
	}
}

func TestAggregateHealth(t *testing.T) {
	healthy := newEchoBackend(t, http.StatusOK, `{"status":"healthy"}`)
	g := newTestGateway(ServiceURLs{
		Auth:    healthy.URL,
		Poll:    healthy.URL,
		Vote:    healthy.URL,
		Results: healthy.URL,
	}, testLimits())

	rec := httptest.NewRecorder()
	g.Router().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/health", nil))
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200", rec.Code)
	}

	var body struct {
		Status   string            `json:"status"`
		Services map[string]string `json:"services"`
	}
	if err := json.Unmarshal(rec.Body.Bytes(), &body); err != nil {
		t.Fatalf("decode body: %v", err)
	}
	if body.Status != "healthy" || len(body.Services) != 4 {
		t.Errorf("body = %+v", body)
	}
}

func TestAggregateHealthDegraded(t *testing.T) {
	healthy := newEchoBackend(t, http.StatusOK, `{}`)
	dead := newEchoBackend(t, http.StatusOK, `{}`)
	deadURL := dead.URL
	dead.Close()

	g := newTestGateway(ServiceURLs{
		Auth:    healthy.URL,
		Poll:    healthy.URL,
		Vote:    deadURL,
		Results: healthy.URL,
	}, testLimits())

	rec := httptest.NewRecorder()
	g.Router().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/health", nil))
	if rec.Code != http.StatusServiceUnavailable {
		t.Fatalf("status = %d, want 503", rec.Code)
	}

	var body struct {
		Status   string            `json:"status"`
		Services map[string]string `json:"services"`
	}
	if err := json.Unmarshal(rec.Body.Bytes(), &body); err != nil {
		t.Fatalf("decode body: %v", err)
	}
	if body.Status != "degraded" || body.Services["vote"] != "unreachable" {
		t.Errorf("body = %+v", body)
	}
}
