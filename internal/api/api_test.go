package api

import (
	"context"
	"io"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"strings"
	"testing"

	"github.com/eunmann/shopsight/pkg/llm"
	"github.com/eunmann/shopsight/pkg/model"
	"github.com/eunmann/shopsight/pkg/query"
	"github.com/eunmann/shopsight/pkg/tablestore"
	"github.com/goccy/go-json"
	"github.com/shopspring/decimal"
)

var day0 = model.NewDate(2024, 3, 1)

func daily(id string, n int, price int64) []model.SalesRow {
	rows := make([]model.SalesRow, n)
	for i := range rows {
		rows[i] = model.SalesRow{
			ArticleID:    id,
			Date:         day0.AddDays(i),
			TotalRevenue: decimal.NewFromInt(price * 2),
			AvgPrice:     decimal.NewFromInt(price),
			UnitsSold:    2,
		}
	}
	return rows
}

func newServer(t *testing.T, load bool) (*httptest.Server, *tablestore.Store) {
	t.Helper()
	store, err := tablestore.Open(filepath.Join(t.TempDir(), "data"), tablestore.Options{KeepGenerations: 2})
	if err != nil {
		t.Fatal(err)
	}
	svc := query.New(store)
	if load {
		in := tablestore.SaveInput{
			Products: []model.Product{
				{ArticleID: "0108775001", Name: model.OptStr("Strap top"), ProductType: model.OptStr("Vest top"),
					ProductGroup: model.OptStr("Garment Upper body"), Colour: model.OptStr("Black"),
					Department: model.OptStr("Jersey Basic")},
				{ArticleID: "0111586001", Name: model.OptStr("Shape Leggings Prem"), ProductType: model.OptStr("Leggings/Tights"),
					Department: model.OptStr("Ladies Sport Bottoms")},
			},
			Sales:      append(daily("0108775001", 20, 10), daily("0111586001", 3, 25)...),
			Provenance: model.ProvenanceAggregated,
		}
		if _, err := store.Save(context.Background(), in); err != nil {
			t.Fatal(err)
		}
		if _, err := svc.Reload(context.Background()); err != nil {
			t.Fatal(err)
		}
	}
	assistant := llm.New(nil)
	srv := httptest.NewServer(NewRouter(Options{
		Query:       svc,
		Searcher:    query.NewSearcher(svc, assistant),
		Assistant:   assistant,
		CORSOrigins: []string{"*"},
		RateLimit:   1000,
		Version:     "test",
	}))
	t.Cleanup(srv.Close)
	return srv, store
}

func do(t *testing.T, srv *httptest.Server, method, path, body string) (int, map[string]any) {
	t.Helper()
	req, err := http.NewRequest(method, srv.URL+path, strings.NewReader(body))
	if err != nil {
		t.Fatal(err)
	}
	if body != "" {
		req.Header.Set("Content-Type", "application/json")
	}
	resp, err := srv.Client().Do(req)
	if err != nil {
		t.Fatal(err)
	}
	defer resp.Body.Close()
	var out map[string]any
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
		t.Fatalf("%s %s: decode: %v", method, path, err)
	}
	return resp.StatusCode, out
}

func errorCode(body map[string]any) string {
	e, _ := body["error"].(map[string]any)
	code, _ := e["code"].(string)
	return code
}

func TestRootAndHealth(t *testing.T) {
	srv, store := newServer(t, true)

	status, body := do(t, srv, http.MethodGet, "/", "")
	if status != http.StatusOK || body["service"] != "ShopSight Analytics API" || body["version"] != "test" {
		t.Errorf("root = %d %v", status, body)
	}

	status, body = do(t, srv, http.MethodGet, "/health", "")
	gen, _ := store.Current()
	if status != http.StatusOK || body["data_loaded"] != true || body["llm_configured"] != false {
		t.Errorf("health = %d %v", status, body)
	}
	if body["generation"] != gen || body["provenance"] != "aggregated" {
		t.Errorf("health generation = %v provenance = %v, want %s aggregated", body["generation"], body["provenance"], gen)
	}
}

func TestProduct(t *testing.T) {
	srv, _ := newServer(t, true)

	status, body := do(t, srv, http.MethodGet, "/api/products/0108775001", "")
	if status != http.StatusOK {
		t.Fatalf("status = %d %v", status, body)
	}
	if body["prod_name"] != "Strap top" || body["colour_group_name"] != "Black" {
		t.Errorf("product = %v", body)
	}

	status, body = do(t, srv, http.MethodGet, "/api/products/0000000000", "")
	if status != http.StatusNotFound || errorCode(body) != "not_found" {
		t.Errorf("unknown product = %d %v", status, body)
	}
}

func TestSales(t *testing.T) {
	srv, _ := newServer(t, true)

	tests := []struct {
		name       string
		path       string
		wantStatus int
		wantPoints int
		wantRev    float64
	}{
		{"default window", "/api/products/0108775001/sales", http.StatusOK, 20, 400},
		{"five days", "/api/products/0108775001/sales?days=5", http.StatusOK, 6, 120},
		{"zero days", "/api/products/0108775001/sales?days=0", http.StatusBadRequest, 0, 0},
		{"not a number", "/api/products/0108775001/sales?days=abc", http.StatusBadRequest, 0, 0},
		{"too many days", "/api/products/0108775001/sales?days=4000", http.StatusBadRequest, 0, 0},
		{"unknown", "/api/products/0999999999/sales", http.StatusNotFound, 0, 0},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			status, body := do(t, srv, http.MethodGet, tt.path, "")
			if status != tt.wantStatus {
				t.Fatalf("status = %d, want %d (%v)", status, tt.wantStatus, body)
			}
			if status != http.StatusOK {
				return
			}
			data, _ := body["data"].([]any)
			if len(data) != tt.wantPoints {
				t.Errorf("points = %d, want %d", len(data), tt.wantPoints)
			}
			if body["total_revenue"] != tt.wantRev {
				t.Errorf("total_revenue = %v, want %v", body["total_revenue"], tt.wantRev)
			}
		})
	}
}

func TestForecast(t *testing.T) {
	srv, _ := newServer(t, true)

	status, body := do(t, srv, http.MethodGet, "/api/products/0108775001/forecast?days=7", "")
	if status != http.StatusOK {
		t.Fatalf("status = %d %v", status, body)
	}
	preds, _ := body["forecast"].([]any)
	if len(preds) != 7 || body["method"] != "moving_average_with_trend" {
		t.Errorf("forecast = %d predictions, method %v", len(preds), body["method"])
	}

	status, _ = do(t, srv, http.MethodGet, "/api/products/0108775001/forecast?days=366", "")
	if status != http.StatusBadRequest {
		t.Errorf("days=366 status = %d", status)
	}
}

func TestSegments(t *testing.T) {
	srv, _ := newServer(t, true)

	status, body := do(t, srv, http.MethodGet, "/api/products/0111586001/segments", "")
	if status != http.StatusOK {
		t.Fatalf("status = %d %v", status, body)
	}
	segs, _ := body["segments"].([]any)
	if body["profile"] != "active" || len(segs) == 0 {
		t.Errorf("segments = %v", body)
	}
}

func TestInsights(t *testing.T) {
	srv, _ := newServer(t, true)

	status, body := do(t, srv, http.MethodGet, "/api/products/0108775001/insights", "")
	if status != http.StatusOK {
		t.Fatalf("status = %d %v", status, body)
	}
	if body["source"] != llm.SourceFallback || body["summary"] == "" {
		t.Errorf("insights = %v", body)
	}
	m, _ := body["metrics"].(map[string]any)
	if m["total_revenue"] != 400.0 || m["days_of_data"] != 20.0 {
		t.Errorf("metrics = %v", m)
	}
}

func TestSearch(t *testing.T) {
	srv, _ := newServer(t, true)

	tests := []struct {
		name       string
		body       string
		wantStatus int
		wantCount  float64
	}{
		{"match", `{"query":"black strap"}`, http.StatusOK, 1},
		{"no match", `{"query":"umbrella"}`, http.StatusOK, 0},
		{"limit", `{"query":"top leggings","limit":1}`, http.StatusOK, 1},
		{"empty query", `{"query":""}`, http.StatusBadRequest, 0},
		{"limit too large", `{"query":"top","limit":1000}`, http.StatusBadRequest, 0},
		{"malformed", `{"query":`, http.StatusBadRequest, 0},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			status, body := do(t, srv, http.MethodPost, "/api/search", tt.body)
			if status != tt.wantStatus {
				t.Fatalf("status = %d, want %d (%v)", status, tt.wantStatus, body)
			}
			if status == http.StatusOK && body["count"] != tt.wantCount {
				t.Errorf("count = %v, want %v", body["count"], tt.wantCount)
			}
		})
	}
}

func TestDatasetAndReload(t *testing.T) {
	srv, store := newServer(t, true)
	gen, _ := store.Current()

	status, body := do(t, srv, http.MethodGet, "/api/dataset", "")
	if status != http.StatusOK || body["generation"] != gen || body["products"] != 2.0 {
		t.Errorf("dataset = %d %v", status, body)
	}

	status, body = do(t, srv, http.MethodPost, "/api/admin/reload", "")
	if status != http.StatusOK || body["generation"] != gen {
		t.Errorf("reload = %d %v", status, body)
	}
}

func TestNotLoaded(t *testing.T) {
	srv, _ := newServer(t, false)

	status, body := do(t, srv, http.MethodGet, "/health", "")
	if status != http.StatusOK || body["data_loaded"] != false {
		t.Errorf("health = %d %v", status, body)
	}
	for _, path := range []string{"/api/dataset", "/api/products/0108775001"} {
		if status, _ := do(t, srv, http.MethodGet, path, ""); status != http.StatusNotFound {
			t.Errorf("%s status = %d, want 404", path, status)
		}
	}
	if status, _ := do(t, srv, http.MethodPost, "/api/admin/reload", ""); status != http.StatusNotFound {
		t.Errorf("reload status = %d, want 404", status)
	}
}

func TestRouting(t *testing.T) {
	srv, _ := newServer(t, true)

	status, body := do(t, srv, http.MethodGet, "/nope", "")
	if status != http.StatusNotFound || errorCode(body) != "not_found" {
		t.Errorf("unknown route = %d %v", status, body)
	}
	status, body = do(t, srv, http.MethodGet, "/api/search", "")
	if status != http.StatusMethodNotAllowed || errorCode(body) != "method_not_allowed" {
		t.Errorf("GET /api/search = %d %v", status, body)
	}

	resp, err := srv.Client().Get(srv.URL + "/metrics")
	if err != nil {
		t.Fatal(err)
	}
	defer resp.Body.Close()
	raw, err := io.ReadAll(resp.Body)
	if err != nil {
		t.Fatal(err)
	}
	if resp.StatusCode != http.StatusOK || !strings.Contains(string(raw), "shopsight_") {
		t.Errorf("metrics status = %d", resp.StatusCode)
	}
}
