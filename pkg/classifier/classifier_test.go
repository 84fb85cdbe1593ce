package classifier

import (
	"path/filepath"
	"strings"
	"testing"

	"github.com/google/go-cmp/cmp"
	"github.com/juju/errors"

	"github.com/opscart/site-optimizer/pkg/inventory"
	"github.com/opscart/site-optimizer/pkg/models"
)

func newInventory(t *testing.T, sites ...*models.Site) *inventory.Store {
	t.Helper()
	store := inventory.New(inventory.Config{Path: filepath.Join(t.TempDir(), "inventory.json")})
	for _, site := range sites {
		if err := store.UpsertSite(site); err != nil {
			t.Fatalf("UpsertSite(%s): %v", site.Domain, err)
		}
	}
	return store
}

func trafficSite(domain string, visitors int) *models.Site {
	return &models.Site{
		Domain: domain,
		Server: "web01",
		Traffic: &models.TrafficStats{
			DailyVisitors: visitors,
			PageViews:     visitors * 3,
			BounceRate:    0.5,
		},
	}
}

func newClassifier(t *testing.T, inv Inventory) *Classifier {
	t.Helper()
	c, err := New(inv, 10000, 1000)
	if err != nil {
		t.Fatalf("New() error: %v", err)
	}
	return c
}

func TestNewValidatesThresholds(t *testing.T) {
	tests := []struct {
		name    string
		tier1   int
		tier2   int
		wantErr bool
	}{
		{"ordered", 10000, 1000, false},
		{"zero tier 2", 10, 0, false},
		{"equal", 1000, 1000, true},
		{"inverted", 100, 1000, true},
		{"negative tier 2", 100, -1, true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := New(newInventory(t), tt.tier1, tt.tier2)
			if (err != nil) != tt.wantErr {
				t.Errorf("New(%d, %d) error = %v, wantErr %v", tt.tier1, tt.tier2, err, tt.wantErr)
			}
			if err != nil && !errors.Is(err, errors.NotValid) {
				t.Errorf("Expected NotValid error, got %v", err)
			}
		})
	}
}

func TestClassifySite(t *testing.T) {
	c := newClassifier(t, newInventory(t))

	tests := []struct {
		name     string
		site     *models.Site
		expected models.Tier
	}{
		{"high traffic", trafficSite("big.com", 15000), models.TierHigh},
		{"exactly tier 1", trafficSite("edge1.com", 10000), models.TierHigh},
		{"medium traffic", trafficSite("mid.com", 5000), models.TierMedium},
		{"exactly tier 2", trafficSite("edge2.com", 1000), models.TierMedium},
		{"low traffic", trafficSite("small.com", 500), models.TierLow},
		{"zero traffic", trafficSite("zero.com", 0), models.TierLow},
		{"no traffic data", &models.Site{Domain: "new.com", Server: "web01"}, models.TierLow},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := c.ClassifySite(tt.site); got != tt.expected {
				t.Errorf("ClassifySite() = %v, want %v", got, tt.expected)
			}
		})
	}
}

func TestClassifyAll(t *testing.T) {
	inv := newInventory(t,
		trafficSite("a.com", 15000),
		trafficSite("b.com", 5000),
		trafficSite("c.com", 500),
	)
	c := newClassifier(t, inv)

	counts := c.ClassifyAll(false)
	want := models.ClassificationCounts{Classified: 3, Tier1: 1, Tier2: 1, Tier3: 1}
	if diff := cmp.Diff(want, counts); diff != "" {
		t.Errorf("ClassifyAll() mismatch (-want +got):\n%s", diff)
	}

	expected := map[string]models.Tier{
		"a.com": models.TierHigh,
		"b.com": models.TierMedium,
		"c.com": models.TierLow,
	}
	for domain, tier := range expected {
		site, _ := inv.GetSite(domain)
		if site.AssignedTier == nil || *site.AssignedTier != tier {
			t.Errorf("%s assigned %v, want %v", domain, site.AssignedTier, tier)
		}
	}
}

func TestClassifyAllIsIdempotent(t *testing.T) {
	inv := newInventory(t,
		trafficSite("a.com", 15000),
		trafficSite("b.com", 5000),
		&models.Site{Domain: "c.com", Server: "web02"},
	)
	c := newClassifier(t, inv)

	c.ClassifyAll(false)
	second := c.ClassifyAll(false)

	if second.Classified != 0 || second.Skipped != 3 {
		t.Errorf("Expected second run to skip every site, got %+v", second)
	}
}

func TestClassifyAllOverwrite(t *testing.T) {
	inv := newInventory(t,
		trafficSite("a.com", 15000),
		trafficSite("b.com", 5000),
		trafficSite("c.com", 500),
		&models.Site{Domain: "d.com", Server: "web01", AssignedTier: models.TierPtr(models.TierHigh)},
	)
	c := newClassifier(t, inv)
	c.ClassifyAll(false)

	counts := c.ClassifyAll(true)
	if counts.Classified != 4 || counts.Skipped != 0 {
		t.Errorf("Expected all 4 sites reclassified, got %+v", counts)
	}
	if sum := counts.Tier1 + counts.Tier2 + counts.Tier3; sum != len(inv.Sites()) {
		t.Errorf("Tier counts sum to %d, want %d", sum, len(inv.Sites()))
	}

	d, _ := inv.GetSite("d.com")
	if *d.AssignedTier != models.TierLow {
		t.Errorf("Expected manual tier overwritten to Tier 3, got %v", *d.AssignedTier)
	}
}

func TestSetTier(t *testing.T) {
	inv := newInventory(t, &models.Site{Domain: "test.com", Server: "web01"})
	c := newClassifier(t, inv)

	if err := c.SetTier("TEST.com", models.TierHigh); err != nil {
		t.Fatalf("SetTier() error: %v", err)
	}
	site, _ := inv.GetSite("test.com")
	if site.AssignedTier == nil || *site.AssignedTier != models.TierHigh {
		t.Errorf("Expected Tier 1, got %v", site.AssignedTier)
	}

	if err := c.SetTier("missing.com", models.TierHigh); !errors.Is(err, errors.NotFound) {
		t.Errorf("Expected NotFound, got %v", err)
	}
	if err := c.SetTier("test.com", models.Tier(7)); !errors.Is(err, errors.NotValid) {
		t.Errorf("Expected NotValid, got %v", err)
	}
}

func TestValidateServerCapacity(t *testing.T) {
	tier := func(domain string, tr models.Tier) *models.Site {
		return &models.Site{Domain: domain, Server: "web01", AssignedTier: models.TierPtr(tr)}
	}

	tests := []struct {
		name  string
		ramGB int
		sites []*models.Site
		want  models.CapacityValidation
	}{
		{
			name:  "two high tier sites on 16GB",
			ramGB: 16,
			sites: []*models.Site{tier("a.com", models.TierHigh), tier("b.com", models.TierHigh)},
			want: models.CapacityValidation{
				Hostname: "web01", Tier1Sites: 2,
				EstimatedRAMGB: 9.0, AvailableRAMGB: 11, IsValid: true, UtilizationPercent: 81.8,
			},
		},
		{
			name:  "empty server",
			ramGB: 16,
			want: models.CapacityValidation{
				Hostname: "web01", AvailableRAMGB: 11, IsValid: true,
			},
		},
		{
			name:  "unassigned sites are not counted",
			ramGB: 16,
			sites: []*models.Site{{Domain: "a.com", Server: "web01"}, {Domain: "b.com", Server: "web01"}},
			want: models.CapacityValidation{
				Hostname: "web01", AvailableRAMGB: 11, IsValid: true,
			},
		},
		{
			name:  "mixed tiers over budget",
			ramGB: 8,
			sites: []*models.Site{tier("a.com", models.TierHigh), tier("b.com", models.TierMedium), tier("c.com", models.TierLow)},
			want: models.CapacityValidation{
				Hostname: "web01", Tier1Sites: 1, Tier2Sites: 1, Tier3Sites: 1,
				EstimatedRAMGB: 8.5, AvailableRAMGB: 3, IsValid: false, UtilizationPercent: 283.3,
			},
		},
		{
			name:  "reservation uses all RAM on an empty server",
			ramGB: 5,
			want: models.CapacityValidation{
				Hostname: "web01", AvailableRAMGB: 0, IsValid: true,
			},
		},
		{
			name:  "reservation uses all RAM with an assigned site",
			ramGB: 5,
			sites: []*models.Site{tier("a.com", models.TierLow)},
			want: models.CapacityValidation{
				Hostname: "web01", Tier3Sites: 1,
				EstimatedRAMGB: 1.25, AvailableRAMGB: 0, IsValid: false,
			},
		},
		{
			name:  "no RAM left after reservation",
			ramGB: 4,
			sites: []*models.Site{tier("a.com", models.TierLow)},
			want: models.CapacityValidation{
				Hostname: "web01", Tier3Sites: 1,
				EstimatedRAMGB: 1.25, AvailableRAMGB: -1, IsValid: false, UtilizationPercent: 0,
			},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			inv := newInventory(t, tt.sites...)
			server := inv.EnsureServer("web01")
			server.Specs.RAMGB = tt.ramGB

			c := newClassifier(t, inv)
			got := c.ValidateServerCapacity(server)
			if diff := cmp.Diff(tt.want, got); diff != "" {
				t.Errorf("ValidateServerCapacity() mismatch (-want +got):\n%s", diff)
			}
		})
	}
}

func TestSummary(t *testing.T) {
	inv := newInventory(t)
	c := newClassifier(t, inv)

	if got := c.Summary(); got.TotalSites != 0 || got.ClassifiedPercent != 0 {
		t.Errorf("Expected empty summary, got %+v", got)
	}

	for i, tr := range []models.Tier{models.TierHigh, models.TierHigh, models.TierHigh, models.TierMedium} {
		site := &models.Site{Domain: "s" + string(rune('a'+i)) + ".com", Server: "web01", AssignedTier: models.TierPtr(tr)}
		if err := inv.UpsertSite(site); err != nil {
			t.Fatal(err)
		}
	}
	if err := inv.UpsertSite(&models.Site{Domain: "new.com", Server: "web02"}); err != nil {
		t.Fatal(err)
	}
	if err := inv.UpsertSite(&models.Site{Domain: "other.com", Server: "web02"}); err != nil {
		t.Fatal(err)
	}

	got := c.Summary()
	want := models.ClassificationSummary{
		TotalSites:      6,
		Tier1Sites:      3,
		Tier2Sites:      1,
		UnassignedSites:   2,
		ClassifiedPercent: 66.7,
		// web01 needs 3*4.5 + 2.75 = 16.25GB against 11GB available.
		ServersWithCapacityIssues: 1,
	}
	if diff := cmp.Diff(want, got); diff != "" {
		t.Errorf("Summary() mismatch (-want +got):\n%s", diff)
	}
}

func TestRecommendations(t *testing.T) {
	a := trafficSite("a.com", 15000)
	a.AssignedTier = models.TierPtr(models.TierLow)
	b := trafficSite("b.com", 500)
	b.AssignedTier = models.TierPtr(models.TierHigh)
	c := trafficSite("c.com", 5000)
	c.AssignedTier = models.TierPtr(models.TierMedium)
	d := trafficSite("d.com", 25000)
	e := &models.Site{Domain: "e.com", Server: "web01", AssignedTier: models.TierPtr(models.TierHigh)}

	cls := newClassifier(t, newInventory(t, b, a, c, d, e))

	want := []models.Recommendation{
		{
			Domain: "a.com", CurrentTier: models.TierLow, RecommendedTier: models.TierHigh, DailyVisitors: 15000,
			Reason: "High traffic (15,000 visitors/day) warrants Tier 1 resources",
		},
		{
			Domain: "b.com", CurrentTier: models.TierHigh, RecommendedTier: models.TierLow, DailyVisitors: 500,
			Reason: "Low traffic (500 visitors/day) can use Tier 3",
		},
	}
	if diff := cmp.Diff(want, cls.Recommendations()); diff != "" {
		t.Errorf("Recommendations() mismatch (-want +got):\n%s", diff)
	}
}

func TestRecommendationReasonMedium(t *testing.T) {
	reason := recommendationReason(5000, models.TierMedium)
	if !strings.HasPrefix(reason, "Medium traffic (5,000 visitors/day)") {
		t.Errorf("Unexpected reason %q", reason)
	}
}

func TestFormatThousands(t *testing.T) {
	tests := []struct {
		in   int
		want string
	}{
		{0, "0"},
		{999, "999"},
		{1000, "1,000"},
		{15000, "15,000"},
		{123456, "123,456"},
		{1234567, "1,234,567"},
		{-4500, "-4,500"},
	}

	for _, tt := range tests {
		if got := FormatThousands(tt.in); got != tt.want {
			t.Errorf("FormatThousands(%d) = %q, want %q", tt.in, got, tt.want)
		}
	}
}
