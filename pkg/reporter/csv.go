package reporter

import (
	"encoding/csv"
	"fmt"
	"io"

	"github.com/juju/errors"
)

// GenerateCSV creates a CSV report
func GenerateCSV(report *Report, writer io.Writer) error {
	w := csv.NewWriter(writer)

	// Write header
	header := []string{
		"Domain",
		"Current Tier",
		"Recommended Tier",
		"Daily Visitors",
		"Reason",
	}
	if err := w.Write(header); err != nil {
		return errors.Annotate(err, "failed to write CSV header")
	}

	// Write recommendations
	for _, rec := range report.Recommendations {
		row := []string{
			rec.Domain,
			fmt.Sprintf("%d", int(rec.CurrentTier)),
			fmt.Sprintf("%d", int(rec.RecommendedTier)),
			fmt.Sprintf("%d", rec.DailyVisitors),
			rec.Reason,
		}
		if err := w.Write(row); err != nil {
			return errors.Annotate(err, "failed to write CSV row")
		}
	}

	// Write summary rows
	c := report.Classification
	w.Write([]string{}) // Empty row
	w.Write([]string{"SUMMARY"})
	w.Write([]string{"Server", report.Server})
	w.Write([]string{"Total Sites", fmt.Sprintf("%d", c.TotalSites)})
	w.Write([]string{"Unassigned Sites", fmt.Sprintf("%d", c.UnassignedSites)})
	w.Write([]string{"Classified", fmt.Sprintf("%.1f%%", c.ClassifiedPercent)})
	w.Write([]string{"Servers Over Capacity", fmt.Sprintf("%d", report.OverCapacityCount)})

	// Tier breakdown
	w.Write([]string{})
	w.Write([]string{"TIER BREAKDOWN"})
	w.Write([]string{"Tier", "Sites", "Share", "Moving In", "Moving Out"})
	for _, stat := range report.TierStats {
		w.Write([]string{
			stat.Tier.String(),
			fmt.Sprintf("%d", stat.Sites),
			fmt.Sprintf("%.1f%%", stat.Share),
			fmt.Sprintf("%d", stat.MovingIn),
			fmt.Sprintf("%d", stat.MovingOut),
		})
	}

	// Server capacity
	if len(report.Capacity) > 0 {
		w.Write([]string{})
		w.Write([]string{"SERVER CAPACITY"})
		w.Write([]string{"Server", "Tier 1", "Tier 2", "Tier 3", "Estimated RAM (GB)", "Available RAM (GB)", "Utilization", "Valid"})
		for _, v := range report.Capacity {
			w.Write([]string{
				v.Hostname,
				fmt.Sprintf("%d", v.Tier1Sites),
				fmt.Sprintf("%d", v.Tier2Sites),
				fmt.Sprintf("%d", v.Tier3Sites),
				fmt.Sprintf("%.2f", v.EstimatedRAMGB),
				fmt.Sprintf("%.0f", v.AvailableRAMGB),
				fmt.Sprintf("%.1f%%", v.UtilizationPercent),
				fmt.Sprintf("%t", v.IsValid),
			})
		}
	}

	// Deployment actions
	if len(report.Deployments) > 0 {
		w.Write([]string{})
		w.Write([]string{"DEPLOYMENTS"})
		w.Write([]string{"Deployment", "Site", "Tier", "Status", "Message"})
		for _, d := range report.Deployments {
			for _, a := range d.Actions {
				w.Write([]string{d.ID, a.SiteDomain, fmt.Sprintf("%d", int(d.Tier)), actionLabel(a), actionMessage(a)})
			}
		}
	}

	w.Flush()
	return errors.Trace(w.Error())
}
