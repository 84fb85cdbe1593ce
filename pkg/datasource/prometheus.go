package datasource

import (
	"context"
	"log/slog"
	"math"
	"strconv"
	"strings"
	"time"

	"github.com/juju/errors"
	"github.com/prometheus/client_golang/api"
	v1 "github.com/prometheus/client_golang/api/prometheus/v1"
	"github.com/prometheus/common/model"

	"github.com/opscart/site-optimizer/pkg/models"
)

// Default queries. $site is replaced with the quoted site domain.
const (
	DefaultVisitorsQuery  = `sum(increase(site_unique_visitors_total{site=$site}[1d]))`
	DefaultPageViewsQuery = `sum(increase(site_page_views_total{site=$site}[1d]))`
)

type PrometheusSource struct {
	client         v1.API
	url            string
	visitorsQuery  string
	pageViewsQuery string
	timeout        time.Duration
	now            func() time.Time
}

func NewPrometheusSource(cfg Config) (*PrometheusSource, error) {
	if cfg.PrometheusURL == "" {
		return nil, errors.NotValidf("empty Prometheus URL")
	}
	client, err := api.NewClient(api.Config{
		Address: cfg.PrometheusURL,
	})
	if err != nil {
		return nil, errors.Annotate(err, "failed to create Prometheus client")
	}

	p := &PrometheusSource{
		client:         v1.NewAPI(client),
		url:            cfg.PrometheusURL,
		visitorsQuery:  cfg.VisitorsQuery,
		pageViewsQuery: cfg.PageViewsQuery,
		timeout:        cfg.Timeout,
		now:            time.Now,
	}
	if p.visitorsQuery == "" {
		p.visitorsQuery = DefaultVisitorsQuery
	}
	if p.pageViewsQuery == "" {
		p.pageViewsQuery = DefaultPageViewsQuery
	}
	return p, nil
}

// GetTraffic queries yesterday's visitors and page views for site. Missing
// page views are reported as zero; missing visitors are an error.
func (p *PrometheusSource) GetTraffic(ctx context.Context, site *models.Site) (*models.TrafficStats, error) {
	if p.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, p.timeout)
		defer cancel()
	}

	visitors, err := p.querySingle(ctx, siteQuery(p.visitorsQuery, site.Domain))
	if err != nil {
		return nil, errors.Annotatef(err, "visitors for %s", site.Domain)
	}

	pageViews, err := p.querySingle(ctx, siteQuery(p.pageViewsQuery, site.Domain))
	if err != nil {
		if !errors.Is(err, errors.NotFound) {
			return nil, errors.Annotatef(err, "page views for %s", site.Domain)
		}
		pageViews = 0
	}

	return &models.TrafficStats{
		DailyVisitors: int(math.Round(visitors)),
		PageViews:     int(math.Round(pageViews)),
		LastUpdated:   p.now().UTC(),
	}, nil
}

func siteQuery(template, domain string) string {
	return strings.ReplaceAll(template, "$site", strconv.Quote(domain))
}

func (p *PrometheusSource) querySingle(ctx context.Context, query string) (float64, error) {
	result, warnings, err := p.client.Query(ctx, query, p.now())
	if err != nil {
		return 0, errors.Annotate(err, "query failed")
	}

	if len(warnings) > 0 {
		slog.Warn("prometheus query warnings", "query", query, "warnings", warnings)
	}

	vector, ok := result.(model.Vector)
	if !ok || len(vector) == 0 {
		return 0, errors.NotFoundf("data for query %s", query)
	}

	sum := 0.0
	for _, sample := range vector {
		sum += float64(sample.Value)
	}

	return sum, nil
}

func (p *PrometheusSource) IsAvailable(ctx context.Context) bool {
	_, _, err := p.client.Query(ctx, "up", p.now())
	return err == nil
}

func (p *PrometheusSource) Name() string {
	return "Prometheus"
}
