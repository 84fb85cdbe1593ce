package main

import (
	"context"
	"fmt"
	"path/filepath"
	"strings"

	"github.com/spf13/cobra"

	"github.com/opscart/site-optimizer/pkg/deployer"
	"github.com/opscart/site-optimizer/pkg/metrics"
	"github.com/opscart/site-optimizer/pkg/models"
	"github.com/opscart/site-optimizer/pkg/storage"
)

var (
	// Deploy flags
	deployTier      int
	includeFilter   string
	excludeFilter   string
	deployDryRun    bool
	deployLive      bool
	deployOverwrite bool
	deployRestart   bool
	configDir       string
	deploymentID    string
	historySite     string
	historyLimit    int
	saveReport      bool
)

func newDeployCmd() *cobra.Command {
	deployCmd := &cobra.Command{
		Use:   "deploy",
		Short: "Deploy tier configuration to sites",
	}

	executeCmd := &cobra.Command{
		Use:   "execute",
		Short: "Deploy one tier to every matching site",
		Run:   runDeployExecute,
	}
	executeCmd.Flags().IntVarP(&deployTier, "tier", "t", 0, "Tier to deploy (1, 2 or 3)")
	executeCmd.Flags().StringVar(&includeFilter, "include", "", "Only deploy to sites matching pattern (comma-separated)")
	executeCmd.Flags().StringVar(&excludeFilter, "exclude", "", "Exclude sites matching pattern (comma-separated)")
	executeCmd.Flags().BoolVar(&deployDryRun, "dry-run", true, "Preview changes without applying (defaults to DRY_RUN)")
	executeCmd.Flags().BoolVar(&deployLive, "no-dry-run", false, "Apply changes")
	executeCmd.Flags().BoolVar(&deployOverwrite, "overwrite", false, "Overwrite existing configuration")
	executeCmd.Flags().BoolVar(&deployRestart, "restart", false, "Restart containers after deployment")
	executeCmd.Flags().StringVar(&configDir, "config-dir", "", "Directory containing tier config files (defaults to CONFIG_DIR)")
	executeCmd.Flags().BoolVar(&saveReport, "generate-report", false, "Write a deployment report to REPORTS_DIR")
	executeCmd.Flags().StringVar(&reportFormat, "report-format", "html", "Report format: html, markdown, csv")
	executeCmd.MarkFlagRequired("tier")

	previewCmd := &cobra.Command{
		Use:   "preview",
		Short: "List the sites a deployment would touch",
		Run:   runDeployPreview,
	}
	previewCmd.Flags().StringVar(&includeFilter, "include", "", "Only preview sites matching pattern (comma-separated)")
	previewCmd.Flags().StringVar(&excludeFilter, "exclude", "", "Exclude sites matching pattern (comma-separated)")
	previewCmd.Flags().StringVar(&configDir, "config-dir", "", "Directory containing tier config files (defaults to CONFIG_DIR)")

	statusCmd := &cobra.Command{
		Use:   "status",
		Short: "Show which inventory sites carry the tier mounts",
		Run:   runDeployStatus,
	}

	rollbackCmd := &cobra.Command{
		Use:   "rollback <site>",
		Short: "Restore a site's docker-compose.yml from its backup",
		Args:  cobra.ExactArgs(1),
		Run:   runDeployRollback,
	}
	rollbackCmd.Flags().BoolVar(&deployRestart, "restart", false, "Restart containers after restoring")
	rollbackCmd.Flags().StringVar(&deploymentID, "deployment", "", "Deployment to record the rollback on (defaults to the latest one touching the site)")

	historyCmd := &cobra.Command{
		Use:   "history",
		Short: "Show past deployments",
		Run:   runDeployHistory,
	}
	historyCmd.Flags().StringVar(&historySite, "site", "", "Show actions for one site")
	historyCmd.Flags().IntVar(&historyLimit, "limit", 10, "Number of entries to show")

	deployCmd.AddCommand(executeCmd, previewCmd, statusCmd, rollbackCmd, historyCmd)
	return deployCmd
}

func newDeployer() *deployer.Deployer {
	dir := configDir
	if dir == "" {
		dir = cfg.ConfigDir
	}
	return deployer.New(deployer.Config{
		ConfigDir: dir,
		SearchDir: cfg.SearchDir,
		Restarter: deployer.ComposeRestarter{Timeout: cfg.RestartTimeout},
	})
}

func runDeployExecute(cmd *cobra.Command, args []string) {
	tier, err := models.ParseTier(deployTier)
	if err != nil {
		exitWithError(err)
	}

	dryRun := deployDryRun && !deployLive
	if !cmd.Flags().Changed("dry-run") && !deployLive {
		dryRun = cfg.DryRun
	}

	include := splitPatterns(includeFilter)
	exclude := splitPatterns(excludeFilter)

	fmt.Println(titleStyle.Render(fmt.Sprintf("%s Deployment", tier)))
	if dryRun {
		fmt.Printf("  Mode: %s\n", infoStyle.Render("DRY RUN"))
	} else {
		fmt.Printf("  Mode: %s\n", errorStyle.Render("LIVE"))
	}
	fmt.Printf("  Overwrite: %t\n", deployOverwrite)
	fmt.Printf("  Restart: %t\n", deployRestart)
	if len(include) > 0 {
		fmt.Printf("  Include: %s\n", strings.Join(include, ", "))
	}
	if len(exclude) > 0 {
		fmt.Printf("  Exclude: %s\n", strings.Join(exclude, ", "))
	}
	fmt.Println()

	// The inventory only supplies each site's current tier; a missing one is fine.
	inv, err := loadInventory()
	if err != nil {
		fmt.Printf("[WARN] %v\n", err)
	}

	ctx, cancel := signalContext()
	defer cancel()

	opts := deployer.RunOptions{
		Tier:    tier,
		Include: include,
		Exclude: exclude,
		Options: deployer.Options{
			DryRun:    dryRun,
			Overwrite: deployOverwrite,
			Restart:   deployRestart,
		},
		OnAction: func(a *models.DeploymentAction) {
			label, _ := actionStatus(a)
			logVerbose("%s: %s", a.SiteDomain, label)
		},
	}
	if inv != nil {
		opts.Sites = inv
	}

	fmt.Println("[INFO] Finding WordPress sites")
	deployment, runErr := newDeployer().Run(ctx, opts)
	if deployment == nil {
		exitWithError(runErr)
	}
	if len(deployment.Actions) == 0 && runErr == nil {
		fmt.Println(warningStyle.Render("No sites found matching criteria"))
		return
	}

	printDeploymentResults(deployment)

	recordDeployment(context.Background(), deployment)
	writeMetrics(func(m *metrics.Metrics) {
		m.ObserveDeployment(deployment)
	})

	if saveReport {
		if err := generateReport([]*models.Deployment{deployment}); err != nil {
			fmt.Printf("[ERROR] Failed to generate report: %v\n", err)
		}
	}

	if runErr != nil {
		exitWithError(runErr)
	}
	if dryRun {
		fmt.Println(warningStyle.Render("\nThis was a dry run. Use --no-dry-run to apply changes."))
	}
}

func printDeploymentResults(d *models.Deployment) {
	fmt.Println(titleStyle.Render(fmt.Sprintf("Deployment Results (%d sites)", len(d.Actions))))
	fmt.Println(headerStyle.Render(fmt.Sprintf("%-32s %-12s %s", "SITE", "STATUS", "MESSAGE")))
	for _, a := range d.Actions {
		label, style := actionStatus(a)
		message := a.ErrorMessage
		if message == "" {
			message = "Configuration applied"
		}
		fmt.Printf("%-32s %s %s\n", a.SiteDomain, cell(style, 12, label), message)
	}

	s := d.Summary()
	fmt.Println()
	fmt.Println(headerStyle.Render("Summary:"))
	fmt.Printf("  Success: %d\n", s.Success)
	fmt.Printf("  Skipped: %d\n", s.Skipped)
	fmt.Printf("  Failed: %d\n", s.Failed)
	fmt.Printf("  Deployment ID: %s\n", mutedStyle.Render(d.ID))
}

func recordDeployment(ctx context.Context, d *models.Deployment) {
	store, err := openHistory()
	if err != nil {
		fmt.Printf("[WARN] Deployment not recorded: %v\n", err)
		return
	}
	defer store.Close()

	if err := store.SaveDeployment(ctx, d); err != nil {
		fmt.Printf("[WARN] Failed to save deployment: %v\n", err)
		return
	}
	logVerbose("Saved deployment %s", d.ID)
}

func runDeployPreview(cmd *cobra.Command, args []string) {
	fmt.Println("[INFO] Finding WordPress sites")
	previews, err := newDeployer().Preview(splitPatterns(includeFilter), splitPatterns(excludeFilter))
	if err != nil {
		exitWithError(err)
	}
	if len(previews) == 0 {
		fmt.Println(warningStyle.Render("No sites found matching criteria"))
		return
	}

	fmt.Println(titleStyle.Render(fmt.Sprintf("Sites (%d total)", len(previews))))
	fmt.Println(headerStyle.Render(fmt.Sprintf("%-32s %-11s %s", "SITE NAME", "CONFIGURED", "PATH")))
	for _, p := range previews {
		configured := cell(errorStyle, 11, "No")
		if p.Configured {
			configured = cell(okStyle, 11, "Yes")
		}
		fmt.Printf("%-32s %s %s\n", p.Name, configured, p.Path)
	}
}

func runDeployStatus(cmd *cobra.Command, args []string) {
	inv, err := loadInventory()
	if err != nil {
		exitWithError(err)
	}

	report := newDeployer().Status(inv.Sites())

	fmt.Println(titleStyle.Render("Deployment Status"))
	fmt.Println()
	fmt.Printf("Total Sites: %d\n", report.TotalSites)
	fmt.Printf("  Configured: %d\n", report.Configured)
	fmt.Printf("  Not Configured: %d\n", report.NotConfigured)
	fmt.Println()
	fmt.Println(headerStyle.Render("Tier Assignments:"))
	fmt.Printf("  Tier 1: %d\n", report.Tiers.Tier1)
	fmt.Printf("  Tier 2: %d\n", report.Tiers.Tier2)
	fmt.Printf("  Tier 3: %d\n", report.Tiers.Tier3)
	fmt.Printf("  Unassigned: %d\n", report.Tiers.Unassigned)

	if report.Tiers.Unassigned > 0 {
		fmt.Println(warningStyle.Render(fmt.Sprintf("\n%d sites need tier classification", report.Tiers.Unassigned)))
	}
}

func runDeployRollback(cmd *cobra.Command, args []string) {
	site := args[0]
	siteDir := filepath.Join(cfg.SearchDir, site)

	ctx, cancel := signalContext()
	defer cancel()

	action, err := newDeployer().Rollback(ctx, siteDir, deployRestart)
	label, style := actionStatus(action)
	fmt.Printf("%s %s\n", cell(style, 12, label), action.ErrorMessage)

	store, storeErr := openHistory()
	if storeErr != nil {
		fmt.Printf("[WARN] Rollback not recorded: %v\n", storeErr)
	} else {
		defer store.Close()
		if recErr := recordRollback(ctx, store, action); recErr != nil {
			fmt.Printf("[WARN] Rollback not recorded: %v\n", recErr)
		}
	}

	if err != nil {
		exitWithError(err)
	}
	if action.Status == models.DeploymentFailed {
		exitWithError(fmt.Errorf("rollback of %s failed", site))
	}
}

// recordRollback appends action to the --deployment deployment, or else to
// the latest recorded deployment that touched the site.
func recordRollback(ctx context.Context, store storage.Store, action *models.DeploymentAction) error {
	id := deploymentID
	if id == "" {
		recent, err := store.ListDeployments(ctx, historyScanLimit)
		if err != nil {
			return err
		}
		id = latestDeploymentFor(recent, action.SiteDomain)
	}
	if id == "" {
		return fmt.Errorf("no recorded deployment for %s", action.SiteDomain)
	}

	logVerbose("Recording rollback on deployment %s", id)
	return store.LogAction(ctx, id, action)
}

// historyScanLimit bounds the deployments searched for a site's last deployment.
const historyScanLimit = 50

// latestDeploymentFor returns the ID of the first deployment in recent, which
// is newest first, with an action for site.
func latestDeploymentFor(recent []*models.Deployment, site string) string {
	for _, d := range recent {
		for _, a := range d.Actions {
			if a.SiteDomain == site {
				return d.ID
			}
		}
	}
	return ""
}

func runDeployHistory(cmd *cobra.Command, args []string) {
	store, err := openHistory()
	if err != nil {
		exitWithError(err)
	}
	defer store.Close()

	ctx := context.Background()

	if historySite != "" {
		actions, err := store.GetSiteHistory(ctx, models.NormalizeName(historySite), historyLimit)
		if err != nil {
			exitWithError(err)
		}
		if len(actions) == 0 {
			fmt.Printf("No deployments found for site: %s\n", historySite)
			return
		}
		fmt.Printf("Recent deployment actions for '%s':\n\n", historySite)
		for i, a := range actions {
			label, style := actionStatus(a)
			fmt.Printf("%d. %s", i+1, style.Render(label))
			if a.ToTier.Valid() {
				fmt.Printf(" to %s", a.ToTier)
			}
			fmt.Println()
			if a.CompletedAt != nil {
				fmt.Printf("   At: %s\n", a.CompletedAt.Format("2006-01-02 15:04:05"))
			}
			if a.ErrorMessage != "" {
				fmt.Printf("   Message: %s\n", a.ErrorMessage)
			}
			fmt.Println()
		}
		return
	}

	deployments, err := store.ListDeployments(ctx, historyLimit)
	if err != nil {
		exitWithError(err)
	}
	if len(deployments) == 0 {
		fmt.Println("No deployments found")
		return
	}

	fmt.Println("Recent deployments:")
	fmt.Println()
	for i, d := range deployments {
		s := d.Summary()
		fmt.Printf("%d. %s (ID: %s)\n", i+1, d.Tier, d.ID)
		fmt.Printf("   Server: %s\n", d.Server)
		fmt.Printf("   Status: %s\n", d.Status)
		fmt.Printf("   Sites: %d (%d succeeded, %d skipped, %d failed)\n", s.Total, s.Success, s.Skipped, s.Failed)
		fmt.Printf("   Created: %s\n", d.CreatedAt.Format("2006-01-02 15:04:05"))
		fmt.Println()
	}
}
