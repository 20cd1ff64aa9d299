package api

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"testing"
	"time"

	"github.com/JustJay7/ecourts-capture/internal/browser"
	"github.com/JustJay7/ecourts-capture/internal/cache"
	"github.com/JustJay7/ecourts-capture/internal/config"
	"github.com/JustJay7/ecourts-capture/internal/database"
	"github.com/JustJay7/ecourts-capture/internal/scraper"
	"github.com/JustJay7/ecourts-capture/pkg/logger"
	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// emptyListing is a session whose search always reports no records.
type emptyListing struct{}

func (emptyListing) Open(context.Context, string) error  { return nil }
func (emptyListing) WaitFor(string, time.Duration) error { return nil }
func (emptyListing) Exists(string) bool                  { return true }
func (emptyListing) Fill(string, string) error           { return nil }
func (emptyListing) Click(string) error                  { return nil }
func (emptyListing) ClickNth(string, int) error          { return browser.ErrNotFound }
func (emptyListing) Text(string) (string, error)         { return "No Records Found", nil }
func (emptyListing) HTML() (string, error)               { return "<html></html>", nil }
func (emptyListing) URL() string                         { return "https://portal.test/" }
func (emptyListing) Back() error                         { return nil }
func (emptyListing) CaptchaImage(string) ([]byte, error) { return []byte("\x89PNG captcha"), nil }
func (emptyListing) PrintPDF() ([]byte, error)           { return nil, browser.ErrNotFound }
func (emptyListing) Download(context.Context, string) ([]byte, error) {
	return nil, browser.ErrNotFound
}
func (emptyListing) Close() error { return nil }

func (emptyListing) WaitForAny(_ time.Duration, selectors ...string) (string, error) {
	return selectors[len(selectors)-1], nil
}

type testEnv struct {
	router *gin.Engine
	store  *database.Store
	cache  *cache.LRUCache
	runs   *scraper.Manager
	cfg    *config.Config
}

func setupTestRouter(t *testing.T) *testEnv {
	t.Helper()
	gin.SetMode(gin.TestMode)

	store, err := database.Open("sqlite", filepath.Join(t.TempDir(), "cases.db"), logger.NewNop())
	require.NoError(t, err)
	t.Cleanup(func() { store.Close() })

	cfg := &config.Config{
		Timezone:           "Asia/Kolkata",
		ElementTimeout:     time.Second,
		MaxCaptchaAttempts: 3,
		MaxPages:           10,
		DownloadDir:        t.TempDir(),
	}
	factory := func(context.Context) (browser.Session, error) { return emptyListing{}, nil }
	runs := scraper.NewManager(cfg, logger.NewNop(), store, factory, nil)
	testCache := cache.NewCache(100, time.Minute)

	router := gin.New()
	SetupRoutes(router, store, testCache, runs, logger.NewNop(), cfg)

	return &testEnv{router: router, store: store, cache: testCache, runs: runs, cfg: cfg}
}

func (e *testEnv) do(t *testing.T, method, path string, body interface{}) *httptest.ResponseRecorder {
	t.Helper()
	var buf bytes.Buffer
	if body != nil {
		require.NoError(t, json.NewEncoder(&buf).Encode(body))
	}
	req := httptest.NewRequest(method, path, &buf)
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	w := httptest.NewRecorder()
	e.router.ServeHTTP(w, req)
	return w
}

func decode(t *testing.T, w *httptest.ResponseRecorder) map[string]interface{} {
	t.Helper()
	var out map[string]interface{}
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &out))
	return out
}

func (e *testEnv) seed(t *testing.T, cnr, next string, merged bool) uint {
	t.Helper()
	main := "downloads/serial_1.pdf"
	rec := &database.CaseRecord{
		SerialNumber:    "1",
		CNR:             cnr,
		CaseType:        "CS DJ ADJ",
		NextHearingDate: next,
		CapturedDate:    time.Now(),
		ScrapeDate:      "2024-01-15",
		PDFPath:         &main,
	}
	files := []database.File{{Kind: database.KindMain, Filename: "serial_1.pdf", Data: []byte("%PDF-main")}}
	if merged {
		path := "downloads/merged_case_1.pdf"
		rec.MergedPDFPath = &path
		files = append(files, database.File{Kind: database.KindMerged, Filename: "merged_case_1.pdf", Data: []byte("%PDF-merged")})
	}
	id, err := e.store.SaveCapture(context.Background(), &database.Capture{Record: rec, Files: files})
	require.NoError(t, err)
	return id
}

func TestHealthCheck(t *testing.T) {
	env := setupTestRouter(t)

	w := env.do(t, http.MethodGet, "/api/health", nil)
	require.Equal(t, http.StatusOK, w.Code)

	resp := decode(t, w)
	assert.Equal(t, "healthy", resp["status"])
	assert.Equal(t, true, resp["database"])
	assert.Equal(t, false, resp["run"])
}

func TestRunLifecycle(t *testing.T) {
	env := setupTestRouter(t)

	w := env.do(t, http.MethodGet, "/api/runs/current", nil)
	assert.Equal(t, http.StatusNotFound, w.Code)

	w = env.do(t, http.MethodPost, "/api/runs", map[string]interface{}{"date": "15-01-2024", "category": "civil"})
	require.Equal(t, http.StatusAccepted, w.Code, w.Body.String())
	run := decode(t, w)["run"].(map[string]interface{})
	assert.Equal(t, "2024-01-15", run["date"])

	require.Eventually(t, func() bool {
		_, ok := env.runs.Operator().Pending()
		return ok
	}, 5*time.Second, 10*time.Millisecond)

	w = env.do(t, http.MethodPost, "/api/runs", map[string]interface{}{"date": "2024-01-15"})
	assert.Equal(t, http.StatusConflict, w.Code)

	w = env.do(t, http.MethodGet, "/api/runs/current/captcha", nil)
	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, "image/png", w.Header().Get("Content-Type"))
	assert.Equal(t, "1", w.Header().Get("X-Captcha-Attempt"))

	w = env.do(t, http.MethodPost, "/api/runs/current/captcha", map[string]string{"text": "x7k2"})
	require.Equal(t, http.StatusOK, w.Code)

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	_, err := env.runs.Wait(ctx)
	require.NoError(t, err)

	w = env.do(t, http.MethodGet, "/api/runs/current", nil)
	require.Equal(t, http.StatusOK, w.Code)
	run = decode(t, w)["run"].(map[string]interface{})
	assert.Equal(t, false, run["running"])
	report := run["report"].(map[string]interface{})
	assert.Equal(t, "idle", report["state"])
	assert.Equal(t, true, report["no_records"])

	w = env.do(t, http.MethodGet, "/api/runs/current/captcha", nil)
	assert.Equal(t, http.StatusNotFound, w.Code)
	w = env.do(t, http.MethodPost, "/api/runs/current/captcha", map[string]string{"text": "late"})
	assert.Equal(t, http.StatusConflict, w.Code)
	w = env.do(t, http.MethodDelete, "/api/runs/current", nil)
	assert.Equal(t, http.StatusNotFound, w.Code)
}

func TestCancelRun(t *testing.T) {
	env := setupTestRouter(t)

	w := env.do(t, http.MethodPost, "/api/runs", nil)
	require.Equal(t, http.StatusAccepted, w.Code, w.Body.String())

	w = env.do(t, http.MethodDelete, "/api/runs/current", nil)
	assert.Equal(t, http.StatusAccepted, w.Code)

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	status, err := env.runs.Wait(ctx)
	require.NoError(t, err)
	assert.True(t, status.Report.Cancelled)
}

func TestStartRunValidation(t *testing.T) {
	env := setupTestRouter(t)

	tests := []struct {
		name string
		body map[string]interface{}
	}{
		{name: "bad date", body: map[string]interface{}{"date": "someday"}},
		{name: "bad filter", body: map[string]interface{}{"filter": "weekly"}},
		{name: "bad category", body: map[string]interface{}{"category": "family"}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			w := env.do(t, http.MethodPost, "/api/runs", tt.body)
			assert.Equal(t, http.StatusBadRequest, w.Code)
		})
	}
	assert.Empty(t, env.runs.Status().ID)
}

func TestSolveCaptchaRequiresText(t *testing.T) {
	env := setupTestRouter(t)

	w := env.do(t, http.MethodPost, "/api/runs/current/captcha", map[string]string{})
	assert.Equal(t, http.StatusBadRequest, w.Code)
}

func TestListCases(t *testing.T) {
	env := setupTestRouter(t)
	today, tomorrow := database.UpcomingWindow(time.Now(), env.cfg.Location())
	env.seed(t, "DLCT010000012024", today, true)
	env.seed(t, "DLCT010000022024", tomorrow, false)
	env.seed(t, "DLCT010000032024", "2001-01-01", false)

	tests := []struct {
		query string
		code  int
		count int
	}{
		{query: "", code: http.StatusOK, count: 3},
		{query: "?filter=all", code: http.StatusOK, count: 3},
		{query: "?filter=upcoming", code: http.StatusOK, count: 2},
		{query: "?scrape_date=15-01-2024", code: http.StatusOK, count: 3},
		{query: "?scrape_date=2024-01-16", code: http.StatusOK, count: 0},
		{query: "?filter=weekly", code: http.StatusBadRequest},
		{query: "?scrape_date=soon", code: http.StatusBadRequest},
	}
	for _, tt := range tests {
		t.Run(tt.query, func(t *testing.T) {
			w := env.do(t, http.MethodGet, "/api/cases"+tt.query, nil)
			require.Equal(t, tt.code, w.Code)
			if tt.code == http.StatusOK {
				assert.EqualValues(t, tt.count, decode(t, w)["count"])
			}
		})
	}
}

func TestGetCaseByCNRUsesCache(t *testing.T) {
	env := setupTestRouter(t)
	env.seed(t, "DLCT010000012024", "2024-01-16", true)

	w := env.do(t, http.MethodGet, "/api/cases/cnr/DLCT010000012024", nil)
	require.Equal(t, http.StatusOK, w.Code)
	resp := decode(t, w)
	assert.Equal(t, false, resp["fromCache"])
	assert.Equal(t, "DLCT010000012024", resp["data"].(map[string]interface{})["cnr_number"])

	w = env.do(t, http.MethodGet, "/api/cases/cnr/DLCT010000012024", nil)
	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, true, decode(t, w)["fromCache"])

	env.cache.Invalidate(&database.CaseRecord{CNR: "DLCT010000012024"})
	w = env.do(t, http.MethodGet, "/api/cases/cnr/DLCT010000012024", nil)
	assert.Equal(t, false, decode(t, w)["fromCache"])

	w = env.do(t, http.MethodGet, "/api/cases/cnr/DLCT999999992024", nil)
	assert.Equal(t, http.StatusNotFound, w.Code)
}

func TestGetCaseByCNRIgnoresCase(t *testing.T) {
	env := setupTestRouter(t)
	env.seed(t, "DLCT010000012024", "2024-01-16", true)

	w := env.do(t, http.MethodGet, "/api/cases/cnr/dlct010000012024", nil)
	require.Equal(t, http.StatusOK, w.Code)
	resp := decode(t, w)
	assert.Equal(t, false, resp["fromCache"])
	assert.Equal(t, "DLCT010000012024", resp["data"].(map[string]interface{})["cnr_number"])

	w = env.do(t, http.MethodGet, "/api/cases/cnr/Dlct010000012024", nil)
	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, true, decode(t, w)["fromCache"])
}

func TestGetCasePDF(t *testing.T) {
	env := setupTestRouter(t)
	withMerge := env.seed(t, "DLCT010000012024", "2024-01-16", true)
	pageOnly := env.seed(t, "DLCT010000022024", "2024-01-16", false)

	tests := []struct {
		name string
		path string
		code int
		body string
	}{
		{name: "default prefers merged", path: fmt.Sprintf("/api/cases/%d/pdf", withMerge), code: http.StatusOK, body: "%PDF-merged"},
		{name: "main", path: fmt.Sprintf("/api/cases/%d/pdf?kind=main", withMerge), code: http.StatusOK, body: "%PDF-main"},
		{name: "default falls back to main", path: fmt.Sprintf("/api/cases/%d/pdf", pageOnly), code: http.StatusOK, body: "%PDF-main"},
		{name: "merged missing", path: fmt.Sprintf("/api/cases/%d/pdf?kind=merged", pageOnly), code: http.StatusNotFound},
		{name: "unknown case", path: "/api/cases/9999/pdf", code: http.StatusNotFound},
		{name: "bad id", path: "/api/cases/abc/pdf", code: http.StatusBadRequest},
		{name: "bad kind", path: fmt.Sprintf("/api/cases/%d/pdf?kind=raw", withMerge), code: http.StatusBadRequest},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			w := env.do(t, http.MethodGet, tt.path, nil)
			require.Equal(t, tt.code, w.Code)
			if tt.body != "" {
				assert.Equal(t, "application/pdf", w.Header().Get("Content-Type"))
				assert.Contains(t, w.Header().Get("Content-Disposition"), ".pdf")
				assert.Equal(t, tt.body, w.Body.String())
			}
		})
	}
}

func TestStatsAPI(t *testing.T) {
	env := setupTestRouter(t)
	env.seed(t, "DLCT010000012024", "2024-01-16", true)

	w := env.do(t, http.MethodGet, "/api/stats", nil)
	require.Equal(t, http.StatusOK, w.Code)

	store := decode(t, w)["store"].(map[string]interface{})
	assert.EqualValues(t, 1, store["cases"])
	assert.EqualValues(t, 1, store["raw_pdfs"])
	assert.EqualValues(t, 1, store["merged_pdfs"])
	assert.Equal(t, true, store["has_merged_pdf_path"])
}
