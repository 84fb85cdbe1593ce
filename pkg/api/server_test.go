package api

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/google/uuid"

	"github.com/opscart/site-optimizer/pkg/inventory"
	"github.com/opscart/site-optimizer/pkg/models"
	"github.com/opscart/site-optimizer/pkg/storage"
)

// writeInventory saves a small inventory: one 16GB server with a busy site
// still on tier 3, a quiet tier 3 site and an unassigned site.
func writeInventory(t *testing.T, path string) {
	t.Helper()
	inv := inventory.New(inventory.Config{Path: path})
	sites := []*models.Site{
		{Domain: "a.com", Server: "web01", AssignedTier: models.TierPtr(models.TierLow), Traffic: &models.TrafficStats{DailyVisitors: 15000}},
		{Domain: "b.com", Server: "web01", AssignedTier: models.TierPtr(models.TierLow), Traffic: &models.TrafficStats{DailyVisitors: 800}},
		{Domain: "c.com", Server: "web01"},
	}
	for _, site := range sites {
		if err := inv.UpsertSite(site); err != nil {
			t.Fatal(err)
		}
	}
	if err := inv.Save(); err != nil {
		t.Fatal(err)
	}
}

func newTestServer(t *testing.T, history storage.Store) (*Server, string) {
	t.Helper()
	path := filepath.Join(t.TempDir(), "inventory.json")
	writeInventory(t, path)

	s, err := New(Config{
		Inventory:        inventory.Config{Path: path},
		Tier1MinVisitors: 10000,
		Tier2MinVisitors: 1000,
		History:          history,
	})
	if err != nil {
		t.Fatalf("New() error: %v", err)
	}
	return s, path
}

func get(t *testing.T, h http.Handler, path string, out any) int {
	t.Helper()
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, path, nil))
	if out != nil && rec.Code == http.StatusOK {
		if err := json.Unmarshal(rec.Body.Bytes(), out); err != nil {
			t.Fatalf("GET %s: decoding %q: %v", path, rec.Body.String(), err)
		}
	}
	return rec.Code
}

func TestRoutes(t *testing.T) {
	s, _ := newTestServer(t, nil)
	h := s.Router()

	var stats models.InventoryStatistics
	if code := get(t, h, "/api/v1/statistics", &stats); code != http.StatusOK {
		t.Fatalf("statistics: status %d", code)
	}
	if stats.TotalSites != 3 || stats.Tiers.Tier3 != 2 || stats.Tiers.Unassigned != 1 {
		t.Errorf("Unexpected statistics %+v", stats)
	}

	var site models.Site
	if code := get(t, h, "/api/v1/sites/A.com", &site); code != http.StatusOK {
		t.Fatalf("site lookup: status %d", code)
	}
	if site.Domain != "a.com" {
		t.Errorf("Expected a.com, got %q", site.Domain)
	}

	var capacity models.CapacityValidation
	if code := get(t, h, "/api/v1/servers/web01/capacity", &capacity); code != http.StatusOK {
		t.Fatalf("capacity: status %d", code)
	}
	if capacity.EstimatedRAMGB != 2.5 || capacity.AvailableRAMGB != 11 || !capacity.IsValid || capacity.UtilizationPercent != 22.7 {
		t.Errorf("Unexpected capacity %+v", capacity)
	}

	var summary models.ClassificationSummary
	get(t, h, "/api/v1/classification/summary", &summary)
	if summary.TotalSites != 3 || summary.ClassifiedPercent != 66.7 {
		t.Errorf("Unexpected summary %+v", summary)
	}

	var recs []models.Recommendation
	get(t, h, "/api/v1/classification/recommendations", &recs)
	if len(recs) != 1 || recs[0].Domain != "a.com" || recs[0].RecommendedTier != models.TierHigh {
		t.Errorf("Unexpected recommendations %+v", recs)
	}
}

func TestSiteFilters(t *testing.T) {
	s, _ := newTestServer(t, nil)
	h := s.Router()

	tests := []struct {
		query string
		code  int
		count int
	}{
		{"", http.StatusOK, 3},
		{"?tier=3", http.StatusOK, 2},
		{"?tier=1", http.StatusOK, 0},
		{"?server=WEB01", http.StatusOK, 3},
		{"?server=web02", http.StatusOK, 0},
		{"?tier=4", http.StatusBadRequest, 0},
		{"?tier=high", http.StatusBadRequest, 0},
	}
	for _, tt := range tests {
		var sites []models.Site
		code := get(t, h, "/api/v1/sites"+tt.query, &sites)
		if code != tt.code {
			t.Errorf("sites%s: status %d, want %d", tt.query, code, tt.code)
			continue
		}
		if code == http.StatusOK && len(sites) != tt.count {
			t.Errorf("sites%s: got %d sites, want %d", tt.query, len(sites), tt.count)
		}
	}

	if code := get(t, h, "/api/v1/servers?status=bogus", nil); code != http.StatusBadRequest {
		t.Errorf("Expected 400 for unknown server status, got %d", code)
	}
}

func TestNotFound(t *testing.T) {
	s, _ := newTestServer(t, nil)
	h := s.Router()

	for _, path := range []string{
		"/api/v1/sites/missing.com",
		"/api/v1/servers/web09/capacity",
		"/api/v1/deployments",
	} {
		rec := httptest.NewRecorder()
		h.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, path, nil))
		if rec.Code != http.StatusNotFound {
			t.Errorf("GET %s: status %d, want 404", path, rec.Code)
		}
		if !strings.Contains(rec.Body.String(), `"code":"not_found"`) {
			t.Errorf("GET %s: unexpected body %s", path, rec.Body.String())
		}
	}
}

func TestDeploymentHistory(t *testing.T) {
	history, err := storage.NewFileStore(t.TempDir())
	if err != nil {
		t.Fatal(err)
	}
	now := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	d := &models.Deployment{ID: uuid.NewString(), Server: "web01", Tier: models.TierHigh, Status: models.DeploymentCompleted, CreatedAt: now}
	action := models.NewDeploymentAction("a.com", models.TierPtr(models.TierLow), models.TierHigh)
	action.Complete(now, models.OutcomeApplied, "")
	d.AddAction(action)
	if err := history.SaveDeployment(context.Background(), d); err != nil {
		t.Fatal(err)
	}

	s, _ := newTestServer(t, history)
	h := s.Router()

	var list []models.Deployment
	if code := get(t, h, "/api/v1/deployments?limit=5", &list); code != http.StatusOK || len(list) != 1 {
		t.Fatalf("list: status %d, %d deployments", code, len(list))
	}

	var got models.Deployment
	if code := get(t, h, "/api/v1/deployments/"+d.ID, &got); code != http.StatusOK || got.ID != d.ID {
		t.Errorf("get: status %d, id %q", code, got.ID)
	}

	var actions []models.DeploymentAction
	if code := get(t, h, "/api/v1/sites/a.com/history", &actions); code != http.StatusOK || len(actions) != 1 {
		t.Errorf("history: status %d, %d actions", code, len(actions))
	}

	if code := get(t, h, "/api/v1/deployments?limit=0", nil); code != http.StatusBadRequest {
		t.Errorf("Expected 400 for limit=0, got %d", code)
	}
	if code := get(t, h, "/api/v1/deployments/"+uuid.NewString(), nil); code != http.StatusNotFound {
		t.Errorf("Expected 404 for unknown deployment, got %d", code)
	}
}

func TestReload(t *testing.T) {
	s, path := newTestServer(t, nil)

	inv := inventory.New(inventory.Config{Path: path})
	if _, err := inv.Load(); err != nil {
		t.Fatal(err)
	}
	if err := inv.UpsertSite(&models.Site{Domain: "d.com", Server: "web02"}); err != nil {
		t.Fatal(err)
	}
	if err := inv.Save(); err != nil {
		t.Fatal(err)
	}

	if err := s.Reload(); err != nil {
		t.Fatalf("Reload() error: %v", err)
	}

	var servers []models.Server
	get(t, s.Router(), "/api/v1/servers", &servers)
	if len(servers) != 2 {
		t.Errorf("Expected 2 servers after reload, got %d", len(servers))
	}
}

func TestHealthzAndMetrics(t *testing.T) {
	s, _ := newTestServer(t, nil)
	h := s.Router()

	if code := get(t, h, "/healthz", nil); code != http.StatusOK {
		t.Errorf("healthz: status %d", code)
	}

	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/metrics", nil))
	if !strings.Contains(rec.Body.String(), `site_optimizer_sites{tier="unassigned"} 1`) {
		t.Errorf("Expected inventory gauges on /metrics:\n%s", rec.Body.String())
	}
}
