package main

import (
	"fmt"
	"sort"
	"strconv"

	"github.com/spf13/cobra"

	"github.com/opscart/site-optimizer/pkg/classifier"
	"github.com/opscart/site-optimizer/pkg/metrics"
	"github.com/opscart/site-optimizer/pkg/models"
)

var (
	// Classify flags
	overwriteTiers bool
	tier1Threshold int
	tier2Threshold int
	reviewFormat   string
	validateServer string
)

func newClassifyCmd() *cobra.Command {
	classifyCmd := &cobra.Command{
		Use:   "classify",
		Short: "Classify sites into performance tiers",
	}

	autoCmd := &cobra.Command{
		Use:   "auto",
		Short: "Classify all sites from their traffic",
		Run:   runClassifyAuto,
	}
	autoCmd.Flags().BoolVar(&overwriteTiers, "overwrite", false, "Overwrite existing tier assignments")
	autoCmd.Flags().IntVar(&tier1Threshold, "tier1-threshold", 0, "Minimum daily visitors for Tier 1 (overrides TIER1_MIN_VISITORS)")
	autoCmd.Flags().IntVar(&tier2Threshold, "tier2-threshold", 0, "Minimum daily visitors for Tier 2 (overrides TIER2_MIN_VISITORS)")

	setCmd := &cobra.Command{
		Use:   "set <domain> <tier>",
		Short: "Set the tier of one site",
		Args:  cobra.ExactArgs(2),
		Run:   runClassifySet,
	}

	reviewCmd := &cobra.Command{
		Use:   "review",
		Short: "Review current tier classifications",
		Run:   runClassifyReview,
	}
	reviewCmd.Flags().StringVar(&reviewFormat, "format", "table", "Output format: table, json")

	validateCmd := &cobra.Command{
		Use:   "validate",
		Short: "Validate tier assignments against server RAM",
		Run:   runClassifyValidate,
	}
	validateCmd.Flags().StringVarP(&validateServer, "server", "s", "", "Check one server")

	recommendCmd := &cobra.Command{
		Use:   "recommend",
		Short: "Show tier changes warranted by current traffic",
		Run:   runClassifyRecommend,
	}

	classifyCmd.AddCommand(autoCmd, setCmd, reviewCmd, validateCmd, recommendCmd)
	return classifyCmd
}

func runClassifyAuto(cmd *cobra.Command, args []string) {
	inv, err := loadInventory()
	if err != nil {
		exitWithError(err)
	}
	if len(inv.Sites()) == 0 {
		fmt.Println(warningStyle.Render("No sites in inventory. Import sites first."))
		return
	}

	t1, t2 := cfg.Tier1MinVisitors, cfg.Tier2MinVisitors
	if tier1Threshold > 0 {
		t1 = tier1Threshold
	}
	if tier2Threshold > 0 {
		t2 = tier2Threshold
	}
	c, err := classifier.New(inv, t1, t2)
	if err != nil {
		exitWithError(err)
	}

	fmt.Println("[INFO] Classifying sites")
	fmt.Printf("  Tier 1 threshold: %s visitors/day\n", classifier.FormatThousands(t1))
	fmt.Printf("  Tier 2 threshold: %s visitors/day\n", classifier.FormatThousands(t2))
	fmt.Printf("  Overwrite existing: %t\n\n", overwriteTiers)

	counts := c.ClassifyAll(overwriteTiers)
	if err := inv.Save(); err != nil {
		exitWithError(err)
	}

	fmt.Println(okStyle.Render("Classification complete"))
	fmt.Printf("  Classified: %d\n", counts.Classified)
	fmt.Printf("  Skipped: %d\n", counts.Skipped)
	fmt.Printf("  Tier 1: %d\n", counts.Tier1)
	fmt.Printf("  Tier 2: %d\n", counts.Tier2)
	fmt.Printf("  Tier 3: %d\n", counts.Tier3)

	writeMetrics(func(m *metrics.Metrics) {
		m.ObserveClassification(counts)
		m.SetInventory(inv.Statistics(), capacityReport(c, inv.Servers()))
	})
}

func runClassifySet(cmd *cobra.Command, args []string) {
	domain := args[0]
	n, err := strconv.Atoi(args[1])
	if err != nil {
		exitWithError(fmt.Errorf("tier must be 1, 2 or 3, got %q", args[1]))
	}
	tier, err := models.ParseTier(n)
	if err != nil {
		exitWithError(err)
	}

	inv, err := loadInventory()
	if err != nil {
		exitWithError(err)
	}
	c, err := newClassifier(inv)
	if err != nil {
		exitWithError(err)
	}

	if err := c.SetTier(domain, tier); err != nil {
		exitWithError(err)
	}
	if err := inv.Save(); err != nil {
		exitWithError(err)
	}
	fmt.Println(okStyle.Render(fmt.Sprintf("Set %s to %s", domain, tier)))
}

func runClassifyReview(cmd *cobra.Command, args []string) {
	inv, err := loadInventory()
	if err != nil {
		exitWithError(err)
	}
	c, err := newClassifier(inv)
	if err != nil {
		exitWithError(err)
	}

	summary := c.Summary()
	if reviewFormat == "json" {
		printJSON(summary)
		return
	}

	fmt.Println(titleStyle.Render("Tier Classification Summary"))
	fmt.Println()
	fmt.Printf("Total Sites: %d\n", summary.TotalSites)
	fmt.Printf("  Tier 1 (High): %d\n", summary.Tier1Sites)
	fmt.Printf("  Tier 2 (Medium): %d\n", summary.Tier2Sites)
	fmt.Printf("  Tier 3 (Low): %d\n", summary.Tier3Sites)
	fmt.Printf("  Unassigned: %d\n", summary.UnassignedSites)
	fmt.Printf("\nClassification Progress: %.1f%%\n", summary.ClassifiedPercent)

	if summary.ServersWithCapacityIssues > 0 {
		fmt.Println(warningStyle.Render(fmt.Sprintf("\n%d servers have capacity issues", summary.ServersWithCapacityIssues)))
	}
}

func runClassifyValidate(cmd *cobra.Command, args []string) {
	inv, err := loadInventory()
	if err != nil {
		exitWithError(err)
	}
	c, err := newClassifier(inv)
	if err != nil {
		exitWithError(err)
	}

	servers := inv.Servers()
	if validateServer != "" {
		server, err := inv.GetServer(validateServer)
		if err != nil {
			exitWithError(err)
		}
		servers = []*models.Server{server}
	}
	sort.Slice(servers, func(i, j int) bool { return servers[i].Hostname < servers[j].Hostname })

	fmt.Println(titleStyle.Render("Server Capacity Validation"))
	fmt.Println(headerStyle.Render(fmt.Sprintf("%-20s %-4s %-4s %-4s %-10s %-11s %-7s %s",
		"SERVER", "T1", "T2", "T3", "EST. RAM", "AVAIL. RAM", "UTIL", "STATUS")))

	validations := capacityReport(c, servers)
	issues := 0
	for _, v := range validations {
		status := okStyle.Render("OK")
		if !v.IsValid {
			status = errorStyle.Render("OVER")
			issues++
		}
		fmt.Printf("%-20s %-4d %-4d %-4d %-10s %-11s %-7s %s\n",
			v.Hostname, v.Tier1Sites, v.Tier2Sites, v.Tier3Sites,
			fmt.Sprintf("%.1fGB", v.EstimatedRAMGB),
			fmt.Sprintf("%.1fGB", v.AvailableRAMGB),
			fmt.Sprintf("%.0f%%", v.UtilizationPercent),
			status,
		)
	}

	if issues > 0 {
		fmt.Println(warningStyle.Render(fmt.Sprintf("\n%d servers exceed capacity. Consider migration.", issues)))
	} else {
		fmt.Println(okStyle.Render("\nAll servers within capacity"))
	}

	writeMetrics(func(m *metrics.Metrics) {
		m.SetInventory(inv.Statistics(), validations)
	})
}

func runClassifyRecommend(cmd *cobra.Command, args []string) {
	inv, err := loadInventory()
	if err != nil {
		exitWithError(err)
	}
	c, err := newClassifier(inv)
	if err != nil {
		exitWithError(err)
	}

	recs := c.Recommendations()
	if len(recs) == 0 {
		fmt.Println(okStyle.Render("No tier changes recommended"))
		return
	}

	fmt.Println(titleStyle.Render(fmt.Sprintf("Tier Recommendations (%d sites)", len(recs))))
	fmt.Println(headerStyle.Render(fmt.Sprintf("%-32s %-8s %-12s %-13s %s",
		"DOMAIN", "CURRENT", "RECOMMENDED", "VISITORS/DAY", "REASON")))
	for _, rec := range recs {
		fmt.Printf("%-32s %-8s %s %-13s %s\n",
			rec.Domain,
			rec.CurrentTier,
			cell(okStyle, 12, rec.RecommendedTier.String()),
			classifier.FormatThousands(rec.DailyVisitors),
			rec.Reason,
		)
	}

	fmt.Println(infoStyle.Render("\nTip: Use 'classify set <domain> <tier>' to apply recommendations"))
}

func capacityReport(c *classifier.Classifier, servers []*models.Server) []models.CapacityValidation {
	out := make([]models.CapacityValidation, 0, len(servers))
	for _, server := range servers {
		out = append(out, c.ValidateServerCapacity(server))
	}
	return out
}
