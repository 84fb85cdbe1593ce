package main

import (
	"bytes"
	"context"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/spf13/cobra"

	"github.com/opscart/site-optimizer/pkg/fsutil"
	"github.com/opscart/site-optimizer/pkg/models"
	"github.com/opscart/site-optimizer/pkg/reporter"
)

var (
	// Report flags
	reportFormat      string
	reportOutput      string
	reportDeployments int
)

func newReportCmd() *cobra.Command {
	reportCmd := &cobra.Command{
		Use:   "report",
		Short: "Generate a tiering report",
		Long: `Generate a report with the classification summary, server capacity,
tier recommendations and recent deployments.`,
		Run: runReport,
	}
	reportCmd.Flags().StringVar(&reportFormat, "format", "html", "Report format: html, markdown, csv")
	reportCmd.Flags().StringVarP(&reportOutput, "output", "o", "", "Output file (defaults to a timestamped file in REPORTS_DIR)")
	reportCmd.Flags().IntVar(&reportDeployments, "deployments", 5, "Number of recent deployments to include")
	return reportCmd
}

func runReport(cmd *cobra.Command, args []string) {
	var deployments []*models.Deployment
	if reportDeployments > 0 {
		store, err := openHistory()
		if err != nil {
			fmt.Printf("[WARN] %v\n", err)
		} else {
			defer store.Close()
			deployments, err = store.ListDeployments(context.Background(), reportDeployments)
			if err != nil {
				fmt.Printf("[WARN] Failed to load deployment history: %v\n", err)
			}
		}
	}

	if err := generateReport(deployments); err != nil {
		exitWithError(err)
	}
}

func generateReport(deployments []*models.Deployment) error {
	format, err := reporter.ParseFormat(reportFormat)
	if err != nil {
		return err
	}

	inv, err := loadInventory()
	if err != nil {
		return err
	}
	c, err := newClassifier(inv)
	if err != nil {
		return err
	}

	server := "all servers"
	if h, err := os.Hostname(); err == nil {
		server = h
	}

	rep := reporter.New(format)
	report, err := rep.Generate(reporter.Input{
		Server:          server,
		Classification:  c.Summary(),
		Capacity:        capacityReport(c, inv.Servers()),
		Recommendations: c.Recommendations(),
		Deployments:     deployments,
	})
	if err != nil {
		return fmt.Errorf("failed to generate report: %w", err)
	}

	var buf bytes.Buffer
	if err := rep.Write(report, &buf); err != nil {
		return fmt.Errorf("failed to render report: %w", err)
	}

	outputFile := reportOutput
	if outputFile == "" {
		timestamp := time.Now().Format("20060102-150405")
		outputFile = filepath.Join(cfg.ReportsDir, fmt.Sprintf("site-report-%s%s", timestamp, format.Extension()))
	}

	if err := fsutil.WriteFileAtomic(outputFile, buf.Bytes(), 0644); err != nil {
		return fmt.Errorf("failed to write report: %w", err)
	}

	fmt.Printf("\n[INFO] %s report generated: %s\n", format, outputFile)
	return nil
}
