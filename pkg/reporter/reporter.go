package reporter

import (
	"io"
	"strings"
	"time"

	"github.com/juju/errors"

	"github.com/opscart/site-optimizer/pkg/models"
)

// ReportFormat represents the output format
type ReportFormat string

const (
	FormatHTML     ReportFormat = "html"
	FormatMarkdown ReportFormat = "markdown"
	FormatCSV      ReportFormat = "csv"
)

// ParseFormat accepts html, markdown (or md) and csv.
func ParseFormat(s string) (ReportFormat, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "html":
		return FormatHTML, nil
	case "markdown", "md":
		return FormatMarkdown, nil
	case "csv":
		return FormatCSV, nil
	}
	return "", errors.NotSupportedf("report format %q", s)
}

// Extension is the file extension for the format, with the dot.
func (f ReportFormat) Extension() string {
	switch f {
	case FormatMarkdown:
		return ".md"
	case FormatCSV:
		return ".csv"
	default:
		return ".html"
	}
}

// Input is the data a report is built from
type Input struct {
	Server          string
	Classification  models.ClassificationSummary
	Capacity        []models.CapacityValidation
	Recommendations []models.Recommendation
	Deployments     []*models.Deployment
}

// Report contains all data for generating reports
type Report struct {
	Server          string
	GeneratedAt     time.Time
	Classification  models.ClassificationSummary
	Capacity        []models.CapacityValidation
	Recommendations []models.Recommendation
	Deployments     []*models.Deployment

	TierStats         []*TierStats
	OverCapacityCount int
	DeploymentTotals  models.DeploymentSummary
	UpgradeCount      int // recommendations to a higher-resource tier
	DowngradeCount    int
}

// TierStats holds statistics per tier
type TierStats struct {
	Tier           models.Tier
	Sites          int
	Share          float64 // percentage of all sites
	MovingIn       int     // recommendations into this tier
	MovingOut      int     // recommendations out of this tier
	DeployedAction int     // deployment actions targeting this tier
}

// Reporter generates tiering reports
type Reporter struct {
	format ReportFormat
	now    func() time.Time
}

// New creates a new reporter
func New(format ReportFormat) *Reporter {
	return &Reporter{
		format: format,
		now:    time.Now,
	}
}

// Generate builds a report from in
func (r *Reporter) Generate(in Input) (*Report, error) {
	if in.Server == "" {
		return nil, errors.NotValidf("empty server name")
	}

	report := &Report{
		Server:          in.Server,
		GeneratedAt:     r.now(),
		Classification:  in.Classification,
		Capacity:        in.Capacity,
		Recommendations: in.Recommendations,
		Deployments:     in.Deployments,
	}

	r.calculateStats(report)

	return report, nil
}

// calculateStats computes all statistics for the report
func (r *Reporter) calculateStats(report *Report) {
	c := report.Classification
	sites := map[models.Tier]int{
		models.TierHigh:   c.Tier1Sites,
		models.TierMedium: c.Tier2Sites,
		models.TierLow:    c.Tier3Sites,
	}

	byTier := make(map[models.Tier]*TierStats, len(models.AllTiers))
	for _, tier := range models.AllTiers {
		stat := &TierStats{Tier: tier, Sites: sites[tier]}
		if c.TotalSites > 0 {
			stat.Share = float64(stat.Sites) / float64(c.TotalSites) * 100
		}
		byTier[tier] = stat
		report.TierStats = append(report.TierStats, stat)
	}

	for _, rec := range report.Recommendations {
		if stat, ok := byTier[rec.RecommendedTier]; ok {
			stat.MovingIn++
		}
		if stat, ok := byTier[rec.CurrentTier]; ok {
			stat.MovingOut++
		}
		// Lower ordinals get more resources.
		if rec.RecommendedTier < rec.CurrentTier {
			report.UpgradeCount++
		} else {
			report.DowngradeCount++
		}
	}

	for _, v := range report.Capacity {
		if !v.IsValid {
			report.OverCapacityCount++
		}
	}

	for _, d := range report.Deployments {
		s := d.Summary()
		report.DeploymentTotals.Total += s.Total
		report.DeploymentTotals.Success += s.Success
		report.DeploymentTotals.DryRun += s.DryRun
		report.DeploymentTotals.Skipped += s.Skipped
		report.DeploymentTotals.Failed += s.Failed

		if stat, ok := byTier[d.Tier]; ok {
			stat.DeployedAction += s.Total
		}
	}
}

// Write renders report in the reporter's format.
func (r *Reporter) Write(report *Report, w io.Writer) error {
	switch r.format {
	case FormatHTML:
		return GenerateHTML(report, w)
	case FormatMarkdown:
		return GenerateMarkdown(report, w)
	case FormatCSV:
		return GenerateCSV(report, w)
	}
	return errors.NotSupportedf("report format %q", r.format)
}

// actionLabel is the status column used in every format.
func actionLabel(a *models.DeploymentAction) string {
	switch a.Outcome {
	case models.OutcomeApplied:
		return "SUCCESS"
	case models.OutcomeDryRun:
		return "DRY RUN"
	case models.OutcomeAlreadyConfigured:
		return "SKIPPED"
	case models.OutcomeRolledBack:
		return "ROLLED BACK"
	case models.OutcomeFailed:
		return "FAILED"
	}
	return strings.ToUpper(string(a.Status))
}

// actionMessage is the message column; applied actions carry no message.
func actionMessage(a *models.DeploymentAction) string {
	if a.ErrorMessage == "" && a.Outcome == models.OutcomeApplied {
		return "Configuration applied"
	}
	return a.ErrorMessage
}
