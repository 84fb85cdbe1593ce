package main

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"time"

	"github.com/spf13/cobra"

	"github.com/opscart/site-optimizer/pkg/classifier"
	"github.com/opscart/site-optimizer/pkg/datasource"
	"github.com/opscart/site-optimizer/pkg/inventory"
	"github.com/opscart/site-optimizer/pkg/metrics"
	"github.com/opscart/site-optimizer/pkg/models"
)

var (
	// Inventory flags
	importFile     string
	importFormat   string
	filterServer   string
	filterTier     int
	filterStatus   string
	listFormat     string
	refreshTimeout time.Duration
)

func newInventoryCmd() *cobra.Command {
	inventoryCmd := &cobra.Command{
		Use:   "inventory",
		Short: "Manage site and server inventory",
	}

	importCmd := &cobra.Command{
		Use:   "import",
		Short: "Import sites from a CSV or JSON file",
		Run:   runImport,
	}
	importCmd.Flags().StringVarP(&importFile, "file", "f", "", "Path to CSV or JSON file")
	importCmd.Flags().StringVar(&importFormat, "format", "", "File format: csv, json (detected from extension if empty)")
	importCmd.MarkFlagRequired("file")

	listCmd := &cobra.Command{
		Use:   "list",
		Short: "List sites in the inventory",
		Run:   runListSites,
	}
	listCmd.Flags().StringVarP(&filterServer, "server", "s", "", "Filter by server hostname")
	listCmd.Flags().IntVarP(&filterTier, "tier", "t", 0, "Filter by assigned tier (1, 2 or 3)")
	listCmd.Flags().StringVar(&listFormat, "format", "table", "Output format: table, json")

	serversCmd := &cobra.Command{
		Use:   "servers",
		Short: "List servers in the inventory",
		Run:   runListServers,
	}
	serversCmd.Flags().StringVar(&filterStatus, "status", "", "Filter by capacity status: under_capacity, optimal, over_capacity, critical")
	serversCmd.Flags().StringVar(&listFormat, "format", "table", "Output format: table, json")

	statsCmd := &cobra.Command{
		Use:   "stats",
		Short: "Show inventory statistics",
		Run:   runStats,
	}

	refreshCmd := &cobra.Command{
		Use:   "refresh-traffic",
		Short: "Refresh site traffic from Prometheus",
		Run:   runRefreshTraffic,
	}
	refreshCmd.Flags().DurationVar(&refreshTimeout, "timeout", 0, "Timeout per query (defaults to TRAFFIC_TIMEOUT)")

	inventoryCmd.AddCommand(importCmd, listCmd, serversCmd, statsCmd, refreshCmd)
	return inventoryCmd
}

func runImport(cmd *cobra.Command, args []string) {
	inv, err := loadInventory()
	if err != nil {
		exitWithError(err)
	}

	format := strings.ToLower(importFormat)
	if format == "" {
		format = "json"
		if strings.EqualFold(filepath.Ext(importFile), ".csv") {
			format = "csv"
		}
	}

	fmt.Printf("[INFO] Importing sites from %s\n", importFile)

	var imported, failed int
	switch format {
	case "csv":
		imported, failed, err = inv.ImportCSV(importFile)
	case "json":
		imported, failed, err = inv.ImportJSON(importFile)
	default:
		exitWithError(fmt.Errorf("format must be csv or json, got %q", importFormat))
	}
	if err != nil {
		exitWithError(fmt.Errorf("failed to import sites: %w", err))
	}

	if err := inv.Save(); err != nil {
		exitWithError(err)
	}

	fmt.Println(okStyle.Render(fmt.Sprintf("Imported %d sites", imported)))
	if failed > 0 {
		fmt.Println(warningStyle.Render(fmt.Sprintf("Failed to import %d sites", failed)))
	}

	stats := inv.Statistics()
	fmt.Printf("\nTotal sites: %d\n", stats.TotalSites)
	fmt.Printf("Total servers: %d\n", stats.TotalServers)
}

func runListSites(cmd *cobra.Command, args []string) {
	inv, err := loadInventory()
	if err != nil {
		exitWithError(err)
	}

	filter := inventory.SiteFilter{Server: filterServer}
	if filterTier != 0 {
		tier, err := models.ParseTier(filterTier)
		if err != nil {
			exitWithError(err)
		}
		filter.Tier = &tier
	}

	sites := inv.ListSites(filter)
	if len(sites) == 0 {
		fmt.Println(warningStyle.Render("No sites found"))
		return
	}
	sort.Slice(sites, func(i, j int) bool { return sites[i].Domain < sites[j].Domain })

	if listFormat == "json" {
		printJSON(sites)
		return
	}

	fmt.Println(titleStyle.Render(fmt.Sprintf("Sites (%d total)", len(sites))))
	fmt.Println(headerStyle.Render(fmt.Sprintf("%-32s %-20s %-8s %-9s %-10s %s",
		"DOMAIN", "SERVER", "CURRENT", "ASSIGNED", "VISITORS", "CONTAINER")))
	for _, site := range sites {
		visitors := "-"
		if site.Traffic != nil {
			visitors = classifier.FormatThousands(site.Traffic.DailyVisitors)
		}
		container := site.ContainerName
		if container == "" {
			container = "-"
		}
		assigned := cell(mutedStyle, 9, tierText(site.AssignedTier))
		if site.NeedsUpdate() {
			assigned = cell(warningStyle, 9, tierText(site.AssignedTier))
		}
		fmt.Printf("%-32s %-20s %-8s %s %-10s %s\n",
			site.Domain, site.Server, tierText(site.CurrentTier), assigned, visitors, container)
	}
}

func runListServers(cmd *cobra.Command, args []string) {
	inv, err := loadInventory()
	if err != nil {
		exitWithError(err)
	}

	status := models.ServerStatus(filterStatus)
	if status != "" && !status.Valid() {
		exitWithError(fmt.Errorf("unknown status %q", filterStatus))
	}

	servers := inv.ListServers(status)
	if len(servers) == 0 {
		fmt.Println(warningStyle.Render("No servers found"))
		return
	}
	sort.Slice(servers, func(i, j int) bool { return servers[i].Hostname < servers[j].Hostname })

	if listFormat == "json" {
		printJSON(servers)
		return
	}

	fmt.Println(titleStyle.Render(fmt.Sprintf("Servers (%d total)", len(servers))))
	fmt.Println(headerStyle.Render(fmt.Sprintf("%-20s %-5s %-8s %-6s %-8s %-12s %s",
		"HOSTNAME", "CPU", "RAM(GB)", "SITES", "MAX", "UTILIZATION", "STATUS")))
	for _, server := range servers {
		fmt.Printf("%-20s %-5d %-8d %-6d %-8d %-12s %s\n",
			server.Hostname,
			server.Specs.CPUCores,
			server.Specs.RAMGB,
			server.Capacity.CurrentSites,
			server.Capacity.RecommendedMax,
			fmt.Sprintf("%.1f%%", server.Capacity.UtilizationPercent()),
			serverStatusStyle(server.Capacity.Status).Render(string(server.Capacity.Status)),
		)
	}
}

func runStats(cmd *cobra.Command, args []string) {
	inv, err := loadInventory()
	if err != nil {
		exitWithError(err)
	}
	stats := inv.Statistics()

	fmt.Println(titleStyle.Render("Inventory Statistics"))
	fmt.Println()
	fmt.Println(headerStyle.Render("Sites:"))
	fmt.Printf("  Total: %d\n", stats.TotalSites)
	fmt.Printf("  Tier 1: %d\n", stats.Tiers.Tier1)
	fmt.Printf("  Tier 2: %d\n", stats.Tiers.Tier2)
	fmt.Printf("  Tier 3: %d\n", stats.Tiers.Tier3)
	fmt.Printf("  Unassigned: %d\n", stats.Tiers.Unassigned)

	fmt.Println()
	fmt.Println(headerStyle.Render("Servers:"))
	fmt.Printf("  Total: %d\n", stats.TotalServers)
	for _, status := range models.AllServerStatuses {
		label := strings.ReplaceAll(string(status), "_", " ")
		fmt.Printf("  %s\n", serverStatusStyle(status).Render(fmt.Sprintf("%s: %d", label, stats.ServerStatus[status])))
	}

	if stats.TotalServers > 0 {
		avg := float64(stats.TotalSites) / float64(stats.TotalServers)
		fmt.Printf("\nAverage sites per server: %.1f\n", avg)
	}

	writeMetrics(func(m *metrics.Metrics) {
		m.SetInventory(stats, nil)
	})
}

func runRefreshTraffic(cmd *cobra.Command, args []string) {
	if cfg.PrometheusURL == "" {
		exitWithError(fmt.Errorf("PROMETHEUS_URL must be set to refresh traffic"))
	}

	inv, err := loadInventory()
	if err != nil {
		exitWithError(err)
	}

	timeout := refreshTimeout
	if timeout == 0 {
		timeout = cfg.TrafficTimeout
	}
	src, err := datasource.NewPrometheusSource(datasource.Config{
		PrometheusURL:  cfg.PrometheusURL,
		VisitorsQuery:  cfg.VisitorsQuery,
		PageViewsQuery: cfg.PageViewsQuery,
		Timeout:        timeout,
	})
	if err != nil {
		exitWithError(err)
	}

	ctx, cancel := signalContext()
	defer cancel()

	if !src.IsAvailable(ctx) {
		exitWithError(fmt.Errorf("Prometheus at %s is not reachable", cfg.PrometheusURL))
	}
	fmt.Printf("[INFO] Using %s at %s\n", src.Name(), cfg.PrometheusURL)

	result := datasource.Refresh(ctx, src, inv.Sites())
	if err := inv.Save(); err != nil {
		exitWithError(err)
	}

	fmt.Println(okStyle.Render(fmt.Sprintf("Updated traffic for %d sites", result.Updated)))
	if result.Failed > 0 {
		fmt.Println(warningStyle.Render(fmt.Sprintf("%d sites kept their previous traffic", result.Failed)))
	}
}

func printJSON(v any) {
	encoder := json.NewEncoder(os.Stdout)
	encoder.SetIndent("", "  ")
	if err := encoder.Encode(v); err != nil {
		exitWithError(fmt.Errorf("encoding JSON: %w", err))
	}
}
