package main

import (
	"fmt"

	"github.com/charmbracelet/lipgloss"

	"github.com/opscart/site-optimizer/pkg/models"
)

var (
	colorOK      = lipgloss.Color("#10B981")
	colorWarning = lipgloss.Color("#F59E0B")
	colorDanger  = lipgloss.Color("#EF4444")
	colorInfo    = lipgloss.Color("#3B82F6")
	colorMuted   = lipgloss.Color("#6B7280")

	titleStyle   = lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color("#21759B"))
	headerStyle  = lipgloss.NewStyle().Bold(true)
	okStyle      = lipgloss.NewStyle().Foreground(colorOK)
	warningStyle = lipgloss.NewStyle().Foreground(colorWarning)
	errorStyle   = lipgloss.NewStyle().Foreground(colorDanger)
	infoStyle    = lipgloss.NewStyle().Foreground(colorInfo)
	mutedStyle   = lipgloss.NewStyle().Foreground(colorMuted)
)

func serverStatusStyle(s models.ServerStatus) lipgloss.Style {
	switch s {
	case models.StatusUnderCapacity:
		return okStyle
	case models.StatusOptimal:
		return warningStyle
	case models.StatusCritical:
		return errorStyle.Bold(true)
	default:
		return errorStyle
	}
}

// actionStatus returns the label and style for a deployment result row.
func actionStatus(a *models.DeploymentAction) (string, lipgloss.Style) {
	switch a.Outcome {
	case models.OutcomeApplied:
		return "SUCCESS", okStyle
	case models.OutcomeDryRun:
		return "DRY RUN", infoStyle
	case models.OutcomeAlreadyConfigured:
		return "SKIPPED", warningStyle
	case models.OutcomeRolledBack:
		return "ROLLED BACK", infoStyle
	default:
		return "FAILED", errorStyle
	}
}

// cell pads s to width before styling so ANSI codes do not break alignment.
func cell(style lipgloss.Style, width int, s string) string {
	return style.Render(fmt.Sprintf("%-*s", width, s))
}

func tierText(t *models.Tier) string {
	if t == nil {
		return "-"
	}
	return fmt.Sprintf("%d", int(*t))
}
