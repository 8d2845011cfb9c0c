package server

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gofiber/fiber/v2"
	memoryStorage "github.com/gofiber/storage/memory/v2"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"quotepdf/internal/config"
	"quotepdf/internal/domain"
	"quotepdf/internal/http/middleware"
	"quotepdf/internal/tokens"
)

type stubEngine struct {
	err   error
	panic bool
}

func (e stubEngine) Acquire(ctx context.Context) (domain.Session, error) {
	if e.err != nil {
		return nil, e.err
	}
	return stubSession{panic: e.panic}, nil
}

type stubSession struct{ panic bool }

func (s stubSession) Load(ctx context.Context, html string) error { return nil }

func (s stubSession) ExportPDF(ctx context.Context, opts domain.PrintOptions) ([]byte, error) {
	if s.panic {
		panic("export blew up")
	}
	return []byte("%PDF-1.4"), nil
}

func (s stubSession) Release() error { return nil }

func testConfig() config.Config {
	return config.Default()
}

func readBody(t *testing.T, resp *http.Response) string {
	t.Helper()
	b, err := io.ReadAll(resp.Body)
	require.NoError(t, err)
	return string(b)
}

func TestNew_Routes(t *testing.T) {
	app := New(Deps{Config: testConfig(), Engine: stubEngine{}})

	resp, err := app.Test(httptest.NewRequest(http.MethodGet, "/health", nil))
	require.NoError(t, err)
	assert.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Contains(t, readBody(t, resp), `"status":"ok"`)

	resp, err = app.Test(httptest.NewRequest(http.MethodGet, "/api/estimate-number", nil))
	require.NoError(t, err)
	assert.Equal(t, http.StatusOK, resp.StatusCode)

	req := httptest.NewRequest(http.MethodPost, "/api/generate-pdf", strings.NewReader(`{"htmlContent":"<p>hi</p>"}`))
	req.Header.Set("Content-Type", "application/json")
	resp, err = app.Test(req)
	require.NoError(t, err)
	assert.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, "application/pdf", resp.Header.Get("Content-Type"))
	assert.Equal(t, `attachment; filename="quote.pdf"`, resp.Header.Get("Content-Disposition"))
}

func TestNew_JSON404(t *testing.T) {
	app := New(Deps{Config: testConfig(), Engine: stubEngine{}})

	for _, tc := range []struct{ method, path string }{
		{http.MethodGet, "/does-not-exist"},
		{http.MethodGet, "/api/generate-pdf"},
		{http.MethodDelete, "/health"},
	} {
		resp, err := app.Test(httptest.NewRequest(tc.method, tc.path, nil))
		require.NoError(t, err)
		assert.Equal(t, http.StatusNotFound, resp.StatusCode, "%s %s", tc.method, tc.path)
		assert.JSONEq(t, `{"error":"Not found"}`, readBody(t, resp))
	}
}

func TestNew_MissingHTMLAndRenderFailure(t *testing.T) {
	app := New(Deps{Config: testConfig(), Engine: stubEngine{err: errors.New("browser unavailable")}})

	req := httptest.NewRequest(http.MethodPost, "/api/generate-pdf", strings.NewReader(`{}`))
	req.Header.Set("Content-Type", "application/json")
	resp, err := app.Test(req)
	require.NoError(t, err)
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
	assert.JSONEq(t, `{"error":"HTML content is required"}`, readBody(t, resp))

	req = httptest.NewRequest(http.MethodPost, "/api/generate-pdf", strings.NewReader(`{"htmlContent":"<p>x</p>"}`))
	req.Header.Set("Content-Type", "application/json")
	resp, err = app.Test(req)
	require.NoError(t, err)
	assert.Equal(t, http.StatusInternalServerError, resp.StatusCode)
	assert.JSONEq(t, `{"error":"Failed to generate PDF","message":"browser unavailable"}`, readBody(t, resp))
}

func TestNew_PanicInRenderIsReportedAsRenderFailure(t *testing.T) {
	app := New(Deps{Config: testConfig(), Engine: stubEngine{panic: true}})

	req := httptest.NewRequest(http.MethodPost, "/api/generate-pdf", strings.NewReader(`{"htmlContent":"<p>x</p>"}`))
	req.Header.Set("Content-Type", "application/json")
	resp, err := app.Test(req)
	require.NoError(t, err)
	assert.Equal(t, http.StatusInternalServerError, resp.StatusCode)

	var body map[string]string
	require.NoError(t, json.Unmarshal([]byte(readBody(t, resp)), &body))
	assert.Equal(t, "Failed to generate PDF", body["error"])
	assert.Contains(t, body["message"], "export blew up")
}

func TestErrorHandler_RecoveredPanicIsGeneric(t *testing.T) {
	app := fiber.New(fiber.Config{ErrorHandler: ErrorHandler})
	middleware.Register(app, testConfig())
	app.Get("/boom", func(c *fiber.Ctx) error { panic("secret internals") })

	resp, err := app.Test(httptest.NewRequest(http.MethodGet, "/boom", nil))
	require.NoError(t, err)
	body := readBody(t, resp)
	assert.Equal(t, http.StatusInternalServerError, resp.StatusCode)
	assert.JSONEq(t, `{"error":"Something went wrong!"}`, body)
	assert.NotContains(t, body, "secret internals")
}

func TestErrorHandler_Mapping(t *testing.T) {
	app := fiber.New(fiber.Config{ErrorHandler: ErrorHandler})
	app.Get("/plain", func(c *fiber.Ctx) error { return errors.New("db exploded") })
	app.Get("/fiber", func(c *fiber.Ctx) error { return fiber.NewError(fiber.StatusUnprocessableEntity, "bad thing") })
	app.Get("/fiber500", func(c *fiber.Ctx) error { return fiber.ErrServiceUnavailable })
	app.Get("/missing", func(c *fiber.Ctx) error { return fiber.ErrNotFound })
	app.Get("/toolarge", func(c *fiber.Ctx) error { return fiber.ErrRequestEntityTooLarge })

	cases := []struct {
		path   string
		status int
		body   string
	}{
		{"/plain", 500, `{"error":"Something went wrong!"}`},
		{"/fiber", 422, `{"error":"bad thing"}`},
		{"/fiber500", 500, `{"error":"Something went wrong!"}`},
		{"/missing", 404, `{"error":"Not found"}`},
		{"/toolarge", 500, `{"error":"Something went wrong!"}`},
	}
	for _, tc := range cases {
		resp, err := app.Test(httptest.NewRequest(http.MethodGet, tc.path, nil))
		require.NoError(t, err)
		assert.Equal(t, tc.status, resp.StatusCode, tc.path)
		assert.JSONEq(t, tc.body, readBody(t, resp), tc.path)
	}
}

// serve runs app on a real listener; fasthttp rejects oversized bodies
// before app.Test can hand back a response.
func serve(t *testing.T, app *fiber.App) string {
	t.Helper()
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)
	go func() { _ = app.Listener(ln) }()
	t.Cleanup(func() { _ = app.Shutdown() })
	return "http://" + ln.Addr().String()
}

func postHTML(t *testing.T, url string, htmlLen int) *http.Response {
	t.Helper()
	body := `{"htmlContent":"` + strings.Repeat("x", htmlLen) + `"}`
	resp, err := http.Post(url+"/api/generate-pdf", "application/json", strings.NewReader(body))
	require.NoError(t, err)
	t.Cleanup(func() { _ = resp.Body.Close() })
	return resp
}

func TestNew_BodyLimit(t *testing.T) {
	cfg := testConfig()
	assert.Equal(t, 10*1024*1024, cfg.Server.BodyLimitBytes)
	url := serve(t, New(Deps{Config: cfg, Engine: stubEngine{}}))

	under := postHTML(t, url, 10*1024*1024-64)
	assert.Equal(t, http.StatusOK, under.StatusCode)
	assert.Equal(t, "application/pdf", under.Header.Get("Content-Type"))
}

func TestNew_OversizedBodyIsGenericError(t *testing.T) {
	cfg := testConfig()
	cfg.Server.BodyLimitBytes = 64
	url := serve(t, New(Deps{Config: cfg, Engine: stubEngine{}}))

	over := postHTML(t, url, 256)
	assert.Equal(t, http.StatusInternalServerError, over.StatusCode)
	assert.JSONEq(t, `{"error":"Something went wrong!"}`, readBody(t, over))
}

func TestNew_MalformedJSONMatchesOversizedBody(t *testing.T) {
	app := New(Deps{Config: testConfig(), Engine: stubEngine{}})

	req := httptest.NewRequest(http.MethodPost, "/api/generate-pdf", strings.NewReader(`{"htmlContent":`))
	req.Header.Set("Content-Type", "application/json")
	resp, err := app.Test(req)
	require.NoError(t, err)
	assert.Equal(t, http.StatusInternalServerError, resp.StatusCode)
	assert.JSONEq(t, `{"error":"Something went wrong!"}`, readBody(t, resp))
}

func TestNew_SecurityHeadersAndCORS(t *testing.T) {
	app := New(Deps{Config: testConfig(), Engine: stubEngine{}})

	req := httptest.NewRequest(http.MethodGet, "/health", nil)
	req.Header.Set("Origin", "http://localhost:5173")
	resp, err := app.Test(req)
	require.NoError(t, err)
	assert.Equal(t, "nosniff", resp.Header.Get("X-Content-Type-Options"))
	assert.Equal(t, "*", resp.Header.Get("Access-Control-Allow-Origin"))
	assert.NotEmpty(t, resp.Header.Get("X-Request-Id"))

	preflight := httptest.NewRequest(http.MethodOptions, "/api/generate-pdf", nil)
	preflight.Header.Set("Origin", "http://localhost:5173")
	preflight.Header.Set("Access-Control-Request-Method", "POST")
	resp, err = app.Test(preflight)
	require.NoError(t, err)
	assert.Equal(t, http.StatusNoContent, resp.StatusCode)
}

func TestNew_TokenAuthAndLimiter(t *testing.T) {
	cfg := testConfig()
	cfg.RateLimiter.EnableTokenRateLimiter = true
	cfg.RateLimiter.Interval = time.Hour

	store := tokens.NewCache()
	store.Replace(map[string]tokens.Entry{"good": {RateLimit: 1}})
	app := New(Deps{Config: cfg, Engine: stubEngine{}, Tokens: store, LimiterStore: memoryStorage.New()})

	bad := httptest.NewRequest(http.MethodGet, "/health", nil)
	bad.Header.Set("X-API-Key", "bad")
	resp, err := app.Test(bad)
	require.NoError(t, err)
	assert.Equal(t, http.StatusUnauthorized, resp.StatusCode)

	for i, want := range []int{http.StatusOK, http.StatusTooManyRequests} {
		good := httptest.NewRequest(http.MethodGet, "/health", nil)
		good.Header.Set("X-API-Key", "good")
		resp, err = app.Test(good)
		require.NoError(t, err)
		assert.Equal(t, want, resp.StatusCode, "request %d", i)
	}

	anon, err := app.Test(httptest.NewRequest(http.MethodGet, "/health", nil))
	require.NoError(t, err)
	assert.Equal(t, http.StatusOK, anon.StatusCode)
}
