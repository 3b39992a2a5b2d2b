package http

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/http/cookiejar"
	"net/http/httptest"
	"path/filepath"
	"testing"
	"time"

	"outlay/internal/auth"
	"outlay/internal/cache"
	"outlay/internal/core"
	"outlay/internal/log"
	"outlay/internal/middleware/ratelimit"
	"outlay/internal/services"
	"outlay/internal/storage"
	"outlay/internal/uistate"
)

const testToken = "test-token"

type testServer struct {
	*httptest.Server
	repo *storage.SQLiteRepository
	user core.User
}

func newTestServer(t *testing.T) *testServer {
	t.Helper()

	repo, err := storage.NewSQLiteRepository(filepath.Join(t.TempDir(), "outlay-test.db"))
	if err != nil {
		t.Fatalf("open test repository: %v", err)
	}
	t.Cleanup(func() { repo.Close() })

	user, err := repo.UpsertUser(context.Background(), "tester", testToken)
	if err != nil {
		t.Fatalf("seed user: %v", err)
	}

	logger := log.New(log.DefaultConfig())
	directory := auth.NewDirectory(repo)
	cacheCfg := cache.Config{Backend: cache.BackendLRU, TTL: time.Minute}

	trends := services.NewTrendService(repo, directory,
		cache.New[[]core.CategoryTotal](cacheCfg, nil),
		cache.New[[]core.MonthTotal](cacheCfg, nil),
		cache.New[[]core.YearTotal](cacheCfg, nil),
		logger)
	expenses := services.NewExpenseService(repo, trends, nil, false, logger)
	categories := services.NewCategoryService(repo, logger)
	recurring := services.NewRecurringService(repo, logger)
	sessions := uistate.NewStore(time.Minute)
	t.Cleanup(sessions.Stop)

	srv, err := NewServer(Options{
		Addr:       ":0",
		Expenses:   expenses,
		Categories: categories,
		Trends:     trends,
		Recurring:  recurring,
		Directory:  directory,
		Sessions:   sessions,
		UIUser:     user,
		Repository: repo,
		Logger:     logger,
		RateLimit:  ratelimit.Config{RequestsPerMinute: 10000, CleanupInterval: time.Minute},
	})
	if err != nil {
		t.Fatalf("build server: %v", err)
	}

	ts := httptest.NewServer(srv.Handler)
	t.Cleanup(func() {
		ts.Close()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), time.Second)
		defer cancel()
		_ = srv.Shutdown(shutdownCtx)
	})

	return &testServer{Server: ts, repo: repo, user: user}
}

// api issues an authenticated request against the JSON API and decodes
// the response body into out when it is non-nil.
func (ts *testServer) api(t *testing.T, method, path string, body any, out any) *http.Response {
	t.Helper()

	var reader io.Reader
	if body != nil {
		payload, err := json.Marshal(body)
		if err != nil {
			t.Fatalf("marshal request body: %v", err)
		}
		reader = bytes.NewReader(payload)
	}

	req, err := http.NewRequest(method, ts.URL+path, reader)
	if err != nil {
		t.Fatalf("build request: %v", err)
	}
	req.Header.Set("Authorization", "Bearer "+testToken)
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		t.Fatalf("%s %s: %v", method, path, err)
	}
	t.Cleanup(func() { resp.Body.Close() })

	if out != nil {
		if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
			t.Fatalf("decode %s %s response: %v", method, path, err)
		}
	}
	return resp
}

func (ts *testServer) mustCategory(t *testing.T, name string) categoryJSON {
	t.Helper()
	var created categoryJSON
	resp := ts.api(t, http.MethodPost, "/api/v1/categories", categoryRequest{Name: name}, &created)
	if resp.StatusCode != http.StatusCreated {
		t.Fatalf("create category %s: status %d", name, resp.StatusCode)
	}
	return created
}

func (ts *testServer) mustExpense(t *testing.T, categoryID string, cents int64, on string) expenseJSON {
	t.Helper()
	var created expenseJSON
	resp := ts.api(t, http.MethodPost, "/api/v1/expenses", expenseRequest{
		Description: "expense",
		AmountCents: cents,
		CategoryID:  categoryID,
		OccurredOn:  on,
	}, &created)
	if resp.StatusCode != http.StatusCreated {
		t.Fatalf("create expense: status %d", resp.StatusCode)
	}
	return created
}

func TestAPIRequiresToken(t *testing.T) {
	ts := newTestServer(t)

	resp, err := http.Get(ts.URL + "/api/v1/categories")
	if err != nil {
		t.Fatalf("GET: %v", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusUnauthorized {
		t.Errorf("status = %d, want 401", resp.StatusCode)
	}
	var body map[string]string
	if err := json.NewDecoder(resp.Body).Decode(&body); err != nil {
		t.Fatalf("decode error body: %v", err)
	}
	if body["error"] == "" {
		t.Error("401 body should carry an error field")
	}
}

func TestCategoryCRUD(t *testing.T) {
	ts := newTestServer(t)

	created := ts.mustCategory(t, "Groceries")
	if created.Name != "Groceries" {
		t.Errorf("name = %q, want Groceries", created.Name)
	}

	// Duplicate name conflicts.
	resp := ts.api(t, http.MethodPost, "/api/v1/categories", categoryRequest{Name: "Groceries"}, nil)
	if resp.StatusCode != http.StatusConflict {
		t.Errorf("duplicate create status = %d, want 409", resp.StatusCode)
	}

	var renamed categoryJSON
	resp = ts.api(t, http.MethodPut, "/api/v1/categories/"+created.ID, categoryRequest{Name: "Food"}, &renamed)
	if resp.StatusCode != http.StatusOK || renamed.Name != "Food" {
		t.Errorf("rename: status %d name %q", resp.StatusCode, renamed.Name)
	}

	var listed []categoryJSON
	ts.api(t, http.MethodGet, "/api/v1/categories", nil, &listed)
	if len(listed) != 1 || listed[0].Name != "Food" {
		t.Errorf("list = %+v, want single Food", listed)
	}

	resp = ts.api(t, http.MethodDelete, "/api/v1/categories/"+created.ID, nil, nil)
	if resp.StatusCode != http.StatusNoContent {
		t.Errorf("delete status = %d, want 204", resp.StatusCode)
	}
}

func TestDeleteCategoryWithExpensesConflicts(t *testing.T) {
	ts := newTestServer(t)

	category := ts.mustCategory(t, "Rent")
	ts.mustExpense(t, category.ID, 80000, "2024-03-01")

	resp := ts.api(t, http.MethodDelete, "/api/v1/categories/"+category.ID, nil, nil)
	if resp.StatusCode != http.StatusConflict {
		t.Errorf("delete status = %d, want 409", resp.StatusCode)
	}
}

func TestExpenseCRUDAndFilters(t *testing.T) {
	ts := newTestServer(t)

	food := ts.mustCategory(t, "Food")
	travel := ts.mustCategory(t, "Travel")

	ts.mustExpense(t, food.ID, 1000, "2024-01-05")
	ts.mustExpense(t, travel.ID, 500, "2024-01-10")
	kept := ts.mustExpense(t, food.ID, 300, "2024-02-01")

	var all []expenseJSON
	ts.api(t, http.MethodGet, "/api/v1/expenses", nil, &all)
	if len(all) != 3 {
		t.Fatalf("list all = %d expenses, want 3", len(all))
	}

	var january []expenseJSON
	ts.api(t, http.MethodGet, "/api/v1/expenses?start=2024-01-01&end=2024-01-31", nil, &january)
	if len(january) != 2 {
		t.Errorf("january filter = %d expenses, want 2", len(january))
	}

	var foodOnly []expenseJSON
	ts.api(t, http.MethodGet, "/api/v1/expenses?category_id="+food.ID, nil, &foodOnly)
	if len(foodOnly) != 2 {
		t.Errorf("category filter = %d expenses, want 2", len(foodOnly))
	}

	resp := ts.api(t, http.MethodGet, "/api/v1/expenses?start=2024-02-01&end=2024-01-01", nil, nil)
	if resp.StatusCode != http.StatusBadRequest {
		t.Errorf("inverted range status = %d, want 400", resp.StatusCode)
	}

	var updated expenseJSON
	resp = ts.api(t, http.MethodPut, "/api/v1/expenses/"+kept.ID, expenseRequest{
		Description: "groceries run",
		AmountCents: 450,
		CategoryID:  food.ID,
		OccurredOn:  "2024-02-02",
	}, &updated)
	if resp.StatusCode != http.StatusOK || updated.AmountCents != 450 {
		t.Errorf("update: status %d amount %d", resp.StatusCode, updated.AmountCents)
	}

	resp = ts.api(t, http.MethodDelete, "/api/v1/expenses/"+kept.ID, nil, nil)
	if resp.StatusCode != http.StatusNoContent {
		t.Errorf("delete status = %d, want 204", resp.StatusCode)
	}
	resp = ts.api(t, http.MethodGet, "/api/v1/expenses/"+kept.ID, nil, nil)
	if resp.StatusCode != http.StatusNotFound {
		t.Errorf("get deleted status = %d, want 404", resp.StatusCode)
	}
}

func TestTrendEndpoints(t *testing.T) {
	ts := newTestServer(t)

	catA := ts.mustCategory(t, "A")
	catB := ts.mustCategory(t, "B")
	ts.mustExpense(t, catA.ID, 1000, "2024-01-05")
	ts.mustExpense(t, catB.ID, 500, "2024-01-10")
	ts.mustExpense(t, catA.ID, 300, "2024-02-01")

	var byCategory []categoryTrendPoint
	resp := ts.api(t, http.MethodGet, "/api/v1/trends/categories?start=2024-01-01&end=2024-01-31", nil, &byCategory)
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("categories status = %d", resp.StatusCode)
	}
	want := []categoryTrendPoint{{Key: catA.ID, Total: 1000}, {Key: catB.ID, Total: 500}}
	if len(byCategory) != 2 || byCategory[0] != want[0] || byCategory[1] != want[1] {
		t.Errorf("category trends = %+v, want %+v", byCategory, want)
	}

	resp = ts.api(t, http.MethodGet, "/api/v1/trends/categories?start=2024-02-01&end=2024-01-01", nil, nil)
	if resp.StatusCode != http.StatusBadRequest {
		t.Errorf("inverted range status = %d, want 400", resp.StatusCode)
	}

	var monthly []bucketTrendPoint
	ts.api(t, http.MethodGet, "/api/v1/trends/monthly?year=2024", nil, &monthly)
	if len(monthly) != 12 {
		t.Fatalf("monthly = %d points, want 12", len(monthly))
	}
	if monthly[0].Total != 1500 || monthly[1].Total != 300 || monthly[11].Total != 0 {
		t.Errorf("monthly totals = jan %d feb %d dec %d", monthly[0].Total, monthly[1].Total, monthly[11].Total)
	}

	var yearly []bucketTrendPoint
	ts.api(t, http.MethodGet, "/api/v1/trends/yearly", nil, &yearly)
	if len(yearly) != 1 || yearly[0].Key != 2024 || yearly[0].Total != 1800 {
		t.Errorf("yearly = %+v, want [{2024 1800}]", yearly)
	}
}

func TestTrendsReflectWrites(t *testing.T) {
	ts := newTestServer(t)

	cat := ts.mustCategory(t, "Coffee")
	ts.mustExpense(t, cat.ID, 400, "2024-05-01")

	var yearly []bucketTrendPoint
	ts.api(t, http.MethodGet, "/api/v1/trends/yearly", nil, &yearly)
	if yearly[0].Total != 400 {
		t.Fatalf("initial yearly total = %d, want 400", yearly[0].Total)
	}

	// A second write must invalidate the cached aggregate.
	ts.mustExpense(t, cat.ID, 600, "2024-05-02")
	yearly = nil
	ts.api(t, http.MethodGet, "/api/v1/trends/yearly", nil, &yearly)
	if yearly[0].Total != 1000 {
		t.Errorf("yearly total after write = %d, want 1000", yearly[0].Total)
	}
}

func TestRecurringTemplates(t *testing.T) {
	ts := newTestServer(t)
	cat := ts.mustCategory(t, "Subscriptions")

	var created recurringJSON
	resp := ts.api(t, http.MethodPost, "/api/v1/recurring", recurringRequest{
		Description: "streaming",
		AmountCents: 999,
		CategoryID:  cat.ID,
		Frequency:   "monthly",
		StartDate:   "2024-01-31",
	}, &created)
	if resp.StatusCode != http.StatusCreated {
		t.Fatalf("create status = %d", resp.StatusCode)
	}
	if !created.Active || created.Frequency != "monthly" {
		t.Errorf("created = %+v, want active monthly", created)
	}

	resp = ts.api(t, http.MethodPost, "/api/v1/recurring", recurringRequest{
		Description: "bad",
		AmountCents: 100,
		CategoryID:  cat.ID,
		Frequency:   "fortnightly",
		StartDate:   "2024-01-01",
	}, nil)
	if resp.StatusCode != http.StatusBadRequest {
		t.Errorf("bad frequency status = %d, want 400", resp.StatusCode)
	}

	var toggled recurringJSON
	resp = ts.api(t, http.MethodPut, "/api/v1/recurring/"+created.ID,
		map[string]bool{"active": false}, &toggled)
	if resp.StatusCode != http.StatusOK || toggled.Active {
		t.Errorf("toggle: status %d active %v, want 200 inactive", resp.StatusCode, toggled.Active)
	}

	var listed []recurringJSON
	ts.api(t, http.MethodGet, "/api/v1/recurring", nil, &listed)
	if len(listed) != 1 {
		t.Errorf("list = %d templates, want 1", len(listed))
	}
}

func TestUnknownUserTokenRejected(t *testing.T) {
	ts := newTestServer(t)

	req, _ := http.NewRequest(http.MethodGet, ts.URL+"/api/v1/trends/yearly", nil)
	req.Header.Set("Authorization", "Bearer no-such-token")
	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		t.Fatalf("GET: %v", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusUnauthorized {
		t.Errorf("status = %d, want 401", resp.StatusCode)
	}
}

func TestHealthAndMetrics(t *testing.T) {
	ts := newTestServer(t)

	for _, path := range []string{"/healthz", "/readyz"} {
		resp, err := http.Get(ts.URL + path)
		if err != nil {
			t.Fatalf("GET %s: %v", path, err)
		}
		resp.Body.Close()
		if resp.StatusCode != http.StatusOK {
			t.Errorf("%s status = %d, want 200", path, resp.StatusCode)
		}
	}

	resp, err := http.Get(ts.URL + "/metrics")
	if err != nil {
		t.Fatalf("GET /metrics: %v", err)
	}
	defer resp.Body.Close()
	var metrics map[string]any
	if err := json.NewDecoder(resp.Body).Decode(&metrics); err != nil {
		t.Fatalf("decode metrics: %v", err)
	}
	for _, key := range []string{"requests", "trend_cache", "ui_sessions"} {
		if _, ok := metrics[key]; !ok {
			t.Errorf("metrics missing %q", key)
		}
	}
}

func TestDashboardRenders(t *testing.T) {
	ts := newTestServer(t)
	cat := ts.mustCategory(t, "Food")
	ts.mustExpense(t, cat.ID, 1234, core.Date{Time: time.Now()}.String())

	resp, err := http.Get(ts.URL + "/")
	if err != nil {
		t.Fatalf("GET /: %v", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("status = %d, want 200", resp.StatusCode)
	}

	body, _ := io.ReadAll(resp.Body)
	page := string(body)
	for _, fragment := range []string{"tester", "Food", "€12,34"} {
		if !bytes.Contains(body, []byte(fragment)) {
			t.Errorf("page missing %q:\n%s", fragment, page[:min(len(page), 500)])
		}
	}
}

func TestSettingsModalSession(t *testing.T) {
	ts := newTestServer(t)

	jar := newCookieClient(t)

	// First touch creates the session; the modal starts closed.
	page := jar.get(t, ts.URL+"/settings/modal")
	if bytes.Contains(page, []byte("modal open")) {
		t.Fatal("modal should start closed")
	}

	if page = jar.post(t, ts.URL+"/settings/open"); !bytes.Contains(page, []byte("modal open")) {
		t.Error("open should render an open modal")
	}
	if page = jar.get(t, ts.URL+"/settings/modal"); !bytes.Contains(page, []byte("modal open")) {
		t.Error("state should persist across renders")
	}
	if page = jar.post(t, ts.URL+"/settings/toggle"); bytes.Contains(page, []byte("modal open")) {
		t.Error("toggle from open should close")
	}
	if page = jar.post(t, ts.URL+"/settings/close"); bytes.Contains(page, []byte("modal open")) {
		t.Error("close on a closed modal stays closed")
	}
}

func TestUIExpenseFormFlow(t *testing.T) {
	ts := newTestServer(t)
	cat := ts.mustCategory(t, "Food")
	jar := newCookieClient(t)

	form := fmt.Sprintf("description=lunch&amount=12,50&category_id=%s&occurred_on=2024-06-01", cat.ID)
	resp := jar.postForm(t, ts.URL+"/expenses", form)
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusCreated {
		t.Fatalf("status = %d, want 201", resp.StatusCode)
	}
	if trigger := resp.Header.Get("HX-Trigger"); trigger == "" {
		t.Error("expense create should fire HX-Trigger events")
	}

	var listed []expenseJSON
	ts.api(t, http.MethodGet, "/api/v1/expenses", nil, &listed)
	if len(listed) != 1 || listed[0].AmountCents != 1250 {
		t.Errorf("listed = %+v, want one 1250-cent expense", listed)
	}
}

func TestOwnershipIsolation(t *testing.T) {
	ts := newTestServer(t)

	if _, err := ts.repo.UpsertUser(context.Background(), "intruder", "other-token"); err != nil {
		t.Fatalf("seed second user: %v", err)
	}

	cat := ts.mustCategory(t, "Private")
	expense := ts.mustExpense(t, cat.ID, 100, "2024-01-01")

	req, _ := http.NewRequest(http.MethodGet, ts.URL+"/api/v1/expenses/"+expense.ID, nil)
	req.Header.Set("Authorization", "Bearer other-token")
	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		t.Fatalf("GET: %v", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusNotFound {
		t.Errorf("cross-user read status = %d, want 404", resp.StatusCode)
	}
}

// cookieClient is a tiny cookie-jar client for the UI routes.
type cookieClient struct {
	client *http.Client
}

func newCookieClient(t *testing.T) *cookieClient {
	t.Helper()
	jar, err := cookiejar.New(nil)
	if err != nil {
		t.Fatalf("cookie jar: %v", err)
	}
	return &cookieClient{client: &http.Client{Jar: jar}}
}

func (c *cookieClient) get(t *testing.T, url string) []byte {
	t.Helper()
	resp, err := c.client.Get(url)
	if err != nil {
		t.Fatalf("GET %s: %v", url, err)
	}
	defer resp.Body.Close()
	body, _ := io.ReadAll(resp.Body)
	return body
}

func (c *cookieClient) post(t *testing.T, url string) []byte {
	t.Helper()
	resp, err := c.client.Post(url, "application/x-www-form-urlencoded", nil)
	if err != nil {
		t.Fatalf("POST %s: %v", url, err)
	}
	defer resp.Body.Close()
	body, _ := io.ReadAll(resp.Body)
	return body
}

func (c *cookieClient) postForm(t *testing.T, url, form string) *http.Response {
	t.Helper()
	resp, err := c.client.Post(url, "application/x-www-form-urlencoded", bytes.NewBufferString(form))
	if err != nil {
		t.Fatalf("POST %s: %v", url, err)
	}
	return resp
}
