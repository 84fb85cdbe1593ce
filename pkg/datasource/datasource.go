package datasource

import (
	"context"
	"log/slog"
	"time"

	"github.com/opscart/site-optimizer/pkg/models"
)

// TrafficSource supplies traffic snapshots for sites
type TrafficSource interface {
	GetTraffic(ctx context.Context, site *models.Site) (*models.TrafficStats, error)
	IsAvailable(ctx context.Context) bool
	Name() string
}

type Config struct {
	PrometheusURL  string
	VisitorsQuery  string
	PageViewsQuery string
	Timeout        time.Duration
}

// RefreshResult counts the outcome of a traffic refresh
type RefreshResult struct {
	Updated int
	Failed  int
}

// Refresh replaces the traffic snapshot of each site with a fresh one from
// src. A site whose lookup fails keeps its previous snapshot.
func Refresh(ctx context.Context, src TrafficSource, sites []*models.Site) RefreshResult {
	var result RefreshResult
	for _, site := range sites {
		stats, err := src.GetTraffic(ctx, site)
		if err == nil {
			err = stats.Validate()
		}
		if err != nil {
			slog.Warn("traffic lookup failed", "source", src.Name(), "domain", site.Domain, "error", err)
			result.Failed++
			continue
		}
		site.Traffic = stats
		result.Updated++
	}
	return result
}
