package reporter

import (
	"bufio"
	"fmt"
	"io"
	"strings"

	"github.com/juju/errors"
)

// GenerateMarkdown creates a Markdown report
func GenerateMarkdown(report *Report, writer io.Writer) error {
	w := bufio.NewWriter(writer)
	c := report.Classification

	fmt.Fprintf(w, "# Site Tiering Report: %s\n\n", report.Server)
	fmt.Fprintf(w, "Generated: %s\n\n", report.GeneratedAt.Format("2006-01-02 15:04:05 MST"))

	fmt.Fprintln(w, "## Summary")
	fmt.Fprintln(w)
	fmt.Fprintf(w, "- **Total sites:** %d\n", c.TotalSites)
	fmt.Fprintf(w, "- **Classified:** %.1f%% (%d unassigned)\n", c.ClassifiedPercent, c.UnassignedSites)
	fmt.Fprintf(w, "- **Recommendations:** %d (%d upgrades, %d downgrades)\n",
		len(report.Recommendations), report.UpgradeCount, report.DowngradeCount)
	fmt.Fprintf(w, "- **Servers over capacity:** %d\n\n", report.OverCapacityCount)

	fmt.Fprintln(w, "## Tier Breakdown")
	fmt.Fprintln(w)
	fmt.Fprintln(w, "| Tier | Sites | Share | Moving In | Moving Out |")
	fmt.Fprintln(w, "|------|------:|------:|----------:|-----------:|")
	for _, stat := range report.TierStats {
		fmt.Fprintf(w, "| %s (%s) | %d | %.1f%% | %d | %d |\n",
			stat.Tier, stat.Tier.Label(), stat.Sites, stat.Share, stat.MovingIn, stat.MovingOut)
	}
	fmt.Fprintln(w)

	if len(report.Capacity) > 0 {
		fmt.Fprintln(w, "## Server Capacity")
		fmt.Fprintln(w)
		fmt.Fprintln(w, "| Server | T1 | T2 | T3 | Estimated RAM | Available RAM | Utilization | Status |")
		fmt.Fprintln(w, "|--------|---:|---:|---:|--------------:|--------------:|------------:|--------|")
		for _, v := range report.Capacity {
			status := "OK"
			if !v.IsValid {
				status = "**OVER CAPACITY**"
			}
			fmt.Fprintf(w, "| %s | %d | %d | %d | %.2f GB | %.0f GB | %.1f%% | %s |\n",
				v.Hostname, v.Tier1Sites, v.Tier2Sites, v.Tier3Sites,
				v.EstimatedRAMGB, v.AvailableRAMGB, v.UtilizationPercent, status)
		}
		fmt.Fprintln(w)
	}

	fmt.Fprintln(w, "## Recommendations")
	fmt.Fprintln(w)
	if len(report.Recommendations) == 0 {
		fmt.Fprintln(w, "All sites match their traffic tier.")
	} else {
		fmt.Fprintln(w, "| Domain | Current | Recommended | Daily Visitors | Reason |")
		fmt.Fprintln(w, "|--------|---------|-------------|---------------:|--------|")
		for _, rec := range report.Recommendations {
			fmt.Fprintf(w, "| %s | %s | %s | %d | %s |\n",
				rec.Domain, rec.CurrentTier, rec.RecommendedTier, rec.DailyVisitors, escapeCell(rec.Reason))
		}
	}
	fmt.Fprintln(w)

	if len(report.Deployments) > 0 {
		t := report.DeploymentTotals
		fmt.Fprintln(w, "## Deployments")
		fmt.Fprintln(w)
		fmt.Fprintf(w, "%d actions: %d succeeded (%d dry run), %d skipped, %d failed\n\n",
			t.Total, t.Success, t.DryRun, t.Skipped, t.Failed)

		for _, d := range report.Deployments {
			fmt.Fprintf(w, "### %s\n\n", d.ID)
			fmt.Fprintf(w, "%s to %s, status `%s`, created %s\n\n",
				d.Server, d.Tier, d.Status, d.CreatedAt.Format("2006-01-02 15:04"))
			if len(d.Actions) == 0 {
				continue
			}
			fmt.Fprintln(w, "| Site | Status | Message |")
			fmt.Fprintln(w, "|------|--------|---------|")
			for _, a := range d.Actions {
				fmt.Fprintf(w, "| %s | %s | %s |\n", a.SiteDomain, actionLabel(a), escapeCell(actionMessage(a)))
			}
			fmt.Fprintln(w)
		}
	}

	return errors.Trace(w.Flush())
}

func escapeCell(s string) string {
	return strings.ReplaceAll(s, "|", `\|`)
}
