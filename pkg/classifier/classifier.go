package classifier

import (
	"fmt"
	"math"
	"sort"
	"strconv"

	"github.com/juju/errors"

	"github.com/opscart/site-optimizer/pkg/models"
)

// Estimated RAM per site by tier, in GB.
const (
	tier1RAMGB = 4.5
	tier2RAMGB = 2.75
	tier3RAMGB = 1.25

	// reservedRAMGB is held back on every server for the OS and MySQL.
	reservedRAMGB = 5
)

// Inventory is the subset of the inventory store the classifier reads and mutates.
type Inventory interface {
	Sites() []*models.Site
	Servers() []*models.Server
	GetSite(domain string) (*models.Site, error)
}

// Classifier assigns performance tiers from traffic and checks server RAM budgets
type Classifier struct {
	inventory      Inventory
	tier1Threshold int
	tier2Threshold int
}

// New creates a classifier. tier1 must be greater than tier2, and tier2 must not be negative.
func New(inv Inventory, tier1, tier2 int) (*Classifier, error) {
	if tier2 < 0 {
		return nil, errors.NotValidf("tier 2 threshold %d", tier2)
	}
	if tier1 <= tier2 {
		return nil, errors.NotValidf("tier 1 threshold %d (must exceed tier 2 threshold %d)", tier1, tier2)
	}
	return &Classifier{
		inventory:      inv,
		tier1Threshold: tier1,
		tier2Threshold: tier2,
	}, nil
}

// Thresholds returns the tier 1 and tier 2 minimum daily visitors.
func (c *Classifier) Thresholds() (tier1, tier2 int) {
	return c.tier1Threshold, c.tier2Threshold
}

// ClassifySite returns the tier site's traffic warrants. Sites without
// traffic data are treated as low traffic.
func (c *Classifier) ClassifySite(site *models.Site) models.Tier {
	if site.Traffic == nil {
		return models.TierLow
	}

	visitors := site.Traffic.DailyVisitors
	switch {
	case visitors >= c.tier1Threshold:
		return models.TierHigh
	case visitors >= c.tier2Threshold:
		return models.TierMedium
	default:
		return models.TierLow
	}
}

// ClassifyAll assigns a tier to every site. Sites that already have one are
// skipped unless overwrite is set.
func (c *Classifier) ClassifyAll(overwrite bool) models.ClassificationCounts {
	var counts models.ClassificationCounts

	for _, site := range c.inventory.Sites() {
		if site.AssignedTier != nil && !overwrite {
			counts.Skipped++
			continue
		}

		tier := c.ClassifySite(site)
		site.AssignedTier = models.TierPtr(tier)
		counts.Add(tier)
	}

	return counts
}

// SetTier overrides the assigned tier of domain.
func (c *Classifier) SetTier(domain string, tier models.Tier) error {
	if !tier.Valid() {
		return errors.NotValidf("tier %d", int(tier))
	}
	site, err := c.inventory.GetSite(domain)
	if err != nil {
		return errors.Trace(err)
	}
	site.AssignedTier = models.TierPtr(tier)
	return nil
}

// ValidateServerCapacity estimates the RAM the assigned tiers of server's
// sites need and compares it to what the server has left after the system
// reservation. Unassigned sites are not counted.
func (c *Classifier) ValidateServerCapacity(server *models.Server) models.CapacityValidation {
	result := models.CapacityValidation{Hostname: server.Hostname}

	for _, site := range c.inventory.Sites() {
		if site.Server != server.Hostname || site.AssignedTier == nil {
			continue
		}
		switch *site.AssignedTier {
		case models.TierHigh:
			result.Tier1Sites++
		case models.TierMedium:
			result.Tier2Sites++
		case models.TierLow:
			result.Tier3Sites++
		}
	}

	estimated := float64(result.Tier1Sites)*tier1RAMGB +
		float64(result.Tier2Sites)*tier2RAMGB +
		float64(result.Tier3Sites)*tier3RAMGB
	available := float64(server.Specs.RAMGB - reservedRAMGB)

	result.EstimatedRAMGB = round(estimated, 2)
	result.AvailableRAMGB = available
	result.IsValid = estimated <= available
	if available > 0 {
		result.UtilizationPercent = round(estimated/available*100, 1)
	}
	return result
}

// Summary reports tier distribution, classification progress and how many
// servers fail the capacity check.
func (c *Classifier) Summary() models.ClassificationSummary {
	var tiers models.TierCounts
	sites := c.inventory.Sites()
	for _, site := range sites {
		tiers.Add(site.AssignedTier)
	}

	summary := models.ClassificationSummary{
		TotalSites:      len(sites),
		Tier1Sites:      tiers.Tier1,
		Tier2Sites:      tiers.Tier2,
		Tier3Sites:      tiers.Tier3,
		UnassignedSites: tiers.Unassigned,
	}
	if summary.TotalSites > 0 {
		summary.ClassifiedPercent = round(float64(tiers.Assigned())/float64(summary.TotalSites)*100, 1)
	}

	for _, server := range c.inventory.Servers() {
		if !c.ValidateServerCapacity(server).IsValid {
			summary.ServersWithCapacityIssues++
		}
	}
	return summary
}

// Recommendations lists assigned sites whose traffic now warrants a different
// tier, busiest first. Sites without traffic or without an assignment are left out.
func (c *Classifier) Recommendations() []models.Recommendation {
	var recs []models.Recommendation

	for _, site := range c.inventory.Sites() {
		if site.Traffic == nil || site.AssignedTier == nil {
			continue
		}

		recommended := c.ClassifySite(site)
		if recommended == *site.AssignedTier {
			continue
		}

		recs = append(recs, models.Recommendation{
			Domain:          site.Domain,
			CurrentTier:     *site.AssignedTier,
			RecommendedTier: recommended,
			DailyVisitors:   site.Traffic.DailyVisitors,
			Reason:          recommendationReason(site.Traffic.DailyVisitors, recommended),
		})
	}

	sort.SliceStable(recs, func(i, j int) bool {
		return recs[i].DailyVisitors > recs[j].DailyVisitors
	})
	return recs
}

func recommendationReason(visitors int, tier models.Tier) string {
	switch tier {
	case models.TierHigh:
		return fmt.Sprintf("High traffic (%s visitors/day) warrants Tier 1 resources", FormatThousands(visitors))
	case models.TierMedium:
		return fmt.Sprintf("Medium traffic (%s visitors/day) suitable for Tier 2", FormatThousands(visitors))
	default:
		return fmt.Sprintf("Low traffic (%s visitors/day) can use Tier 3", FormatThousands(visitors))
	}
}

// FormatThousands renders n with comma group separators, e.g. 15000 -> "15,000".
func FormatThousands(n int) string {
	s := strconv.Itoa(n)
	sign := ""
	if n < 0 {
		sign, s = "-", s[1:]
	}

	if len(s) <= 3 {
		return sign + s
	}

	out := make([]byte, 0, len(s)+len(s)/3)
	lead := len(s) % 3
	if lead > 0 {
		out = append(out, s[:lead]...)
	}
	for i := lead; i < len(s); i += 3 {
		if len(out) > 0 {
			out = append(out, ',')
		}
		out = append(out, s[i:i+3]...)
	}
	return sign + string(out)
}

func round(v float64, places int) float64 {
	p := math.Pow(10, float64(places))
	return math.Round(v*p) / p
}
