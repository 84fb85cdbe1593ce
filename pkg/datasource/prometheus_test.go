package datasource

import (
	"context"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/juju/errors"

	"github.com/opscart/site-optimizer/pkg/models"
)

// fakePrometheus answers instant queries from a map of query substring to value.
func fakePrometheus(t *testing.T, values map[string]string) *httptest.Server {
	t.Helper()
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if !strings.HasSuffix(r.URL.Path, "/api/v1/query") {
			http.NotFound(w, r)
			return
		}
		query := r.FormValue("query")

		result := "[]"
		for match, value := range values {
			if strings.Contains(query, match) {
				result = fmt.Sprintf(`[{"metric":{},"value":[1767225600,"%s"]}]`, value)
				break
			}
		}

		w.Header().Set("Content-Type", "application/json")
		fmt.Fprintf(w, `{"status":"success","data":{"resultType":"vector","result":%s}}`, result)
	}))
	t.Cleanup(srv.Close)
	return srv
}

func TestPrometheusSourceGetTraffic(t *testing.T) {
	srv := fakePrometheus(t, map[string]string{
		`site_unique_visitors_total{site="a.com"}`: "15000.4",
		`site_page_views_total{site="a.com"}`:      "45000",
		`site_unique_visitors_total{site="b.com"}`: "800",
	})

	src, err := NewPrometheusSource(Config{PrometheusURL: srv.URL, Timeout: 5 * time.Second})
	if err != nil {
		t.Fatalf("NewPrometheusSource() error: %v", err)
	}

	stats, err := src.GetTraffic(context.Background(), &models.Site{Domain: "a.com", Server: "web01"})
	if err != nil {
		t.Fatalf("GetTraffic() error: %v", err)
	}
	if stats.DailyVisitors != 15000 || stats.PageViews != 45000 {
		t.Errorf("Unexpected stats %+v", stats)
	}

	stats, err = src.GetTraffic(context.Background(), &models.Site{Domain: "b.com", Server: "web01"})
	if err != nil {
		t.Fatalf("GetTraffic() without page views: %v", err)
	}
	if stats.DailyVisitors != 800 || stats.PageViews != 0 {
		t.Errorf("Unexpected stats %+v", stats)
	}

	if _, err := src.GetTraffic(context.Background(), &models.Site{Domain: "c.com", Server: "web01"}); !errors.Is(err, errors.NotFound) {
		t.Errorf("Expected NotFound for a site without data, got %v", err)
	}
}

func TestRefresh(t *testing.T) {
	srv := fakePrometheus(t, map[string]string{
		`site_unique_visitors_total{site="a.com"}`: "12000",
	})
	src, err := NewPrometheusSource(Config{PrometheusURL: srv.URL})
	if err != nil {
		t.Fatal(err)
	}

	old := &models.TrafficStats{DailyVisitors: 3}
	sites := []*models.Site{
		{Domain: "a.com", Server: "web01"},
		{Domain: "c.com", Server: "web01", Traffic: old},
	}

	result := Refresh(context.Background(), src, sites)
	if result.Updated != 1 || result.Failed != 1 {
		t.Errorf("Unexpected result %+v", result)
	}
	if sites[0].Traffic == nil || sites[0].Traffic.DailyVisitors != 12000 {
		t.Errorf("Expected a.com traffic refreshed, got %+v", sites[0].Traffic)
	}
	if sites[1].Traffic != old {
		t.Error("Expected failed lookup to keep the previous snapshot")
	}
}

func TestSiteQuery(t *testing.T) {
	got := siteQuery(DefaultVisitorsQuery, "shop.example.com")
	want := `sum(increase(site_unique_visitors_total{site="shop.example.com"}[1d]))`
	if got != want {
		t.Errorf("siteQuery() = %s, want %s", got, want)
	}
}

func TestNewPrometheusSourceRequiresURL(t *testing.T) {
	if _, err := NewPrometheusSource(Config{}); !errors.Is(err, errors.NotValid) {
		t.Errorf("Expected NotValid, got %v", err)
	}
}
