package reporter

import (
	"fmt"
	"html/template"
	"io"
	"strings"

	"github.com/opscart/site-optimizer/pkg/models"
)

const htmlTemplate = `
<!DOCTYPE html>
<html lang="en">
<head>
    <meta charset="UTF-8">
    <meta name="viewport" content="width=device-width, initial-scale=1.0">
    <title>Site Tiering Report - {{.Server}}</title>
    <style>
        * { margin: 0; padding: 0; box-sizing: border-box; }
        body { font-family: system-ui, sans-serif; background: #f0f0f1; color: #1d2327; padding: 24px; line-height: 1.5; }
        .container { max-width: 1200px; margin: 0 auto; background: #fff; border: 1px solid #dcdcde; }
        .header { background: #21759b; color: #fff; padding: 32px; }
        .header h1 { font-size: 2em; margin-bottom: 8px; }
        .summary { display: flex; flex-wrap: wrap; gap: 16px; padding: 24px 32px; }
        .summary-card { flex: 1 1 200px; padding: 18px; border-left: 4px solid #72aee6; background: #f6f7f7; }
        .summary-card h3 { font-size: 0.8em; color: #646970; text-transform: uppercase; margin-bottom: 6px; }
        .summary-card .value { font-size: 2.2em; font-weight: 700; }
        .summary-card.warning { border-left-color: #d63638; }
        .summary-card.warning .value { color: #d63638; }
        .section { padding: 24px 32px; }
        .section h2 { margin-bottom: 16px; font-size: 1.3em; }
        table { width: 100%; border-collapse: collapse; font-size: 0.95em; }
        th, td { padding: 8px 10px; text-align: left; border-bottom: 1px solid #dcdcde; }
        th { background: #f6f7f7; color: #50575e; }
        .tier-badge { padding: 2px 8px; border-radius: 3px; font-size: 0.85em; font-weight: 600; }
        .tier-1 { background: #facfd2; color: #8a2424; }
        .tier-2 { background: #fcf0c3; color: #6e4f00; }
        .tier-3 { background: #d1e4dd; color: #1e4620; }
        .status-failed, .status-over { color: #d63638; font-weight: 600; }
        .status-success, .status-ok { color: #00a32a; font-weight: 600; }
        .footer { padding: 16px 32px; border-top: 1px solid #dcdcde; color: #646970; font-size: 0.85em; }
    </style>
</head>
<body>
    <div class="container">
        <div class="header">
            <h1>Site Tiering Report</h1>
            <p><strong>Server:</strong> {{.Server}}</p>
            <p><strong>Generated:</strong> {{.GeneratedAt.Format "January 2, 2006 15:04:05 MST"}}</p>
        </div>

        <div class="summary">
            <div class="summary-card">
                <h3>Total Sites</h3>
                <div class="value">{{.Classification.TotalSites}}</div>
            </div>
            <div class="summary-card">
                <h3>Classified</h3>
                <div class="value">{{printf "%.1f" .Classification.ClassifiedPercent}}%</div>
            </div>
            <div class="summary-card">
                <h3>Recommendations</h3>
                <div class="value">{{len .Recommendations}}</div>
            </div>
            <div class="summary-card{{if .OverCapacityCount}} warning{{end}}">
                <h3>Servers Over Capacity</h3>
                <div class="value">{{.OverCapacityCount}}</div>
            </div>
        </div>

        <div class="section">
            <h2>By Tier</h2>
            <table>
                <thead>
                    <tr><th>Tier</th><th>Sites</th><th>Share</th><th>Moving In</th><th>Moving Out</th></tr>
                </thead>
                <tbody>
                    {{range .TierStats}}
                    <tr>
                        <td>{{tierBadge .Tier}}</td>
                        <td>{{.Sites}}</td>
                        <td>{{printf "%.1f" .Share}}%</td>
                        <td>{{.MovingIn}}</td>
                        <td>{{.MovingOut}}</td>
                    </tr>
                    {{end}}
                </tbody>
            </table>
        </div>

        {{if .Capacity}}
        <div class="section">
            <h2>Server Capacity</h2>
            <table>
                <thead>
                    <tr><th>Server</th><th>Tier 1</th><th>Tier 2</th><th>Tier 3</th><th>Estimated RAM</th><th>Available RAM</th><th>Utilization</th><th>Status</th></tr>
                </thead>
                <tbody>
                    {{range .Capacity}}
                    <tr>
                        <td><strong>{{.Hostname}}</strong></td>
                        <td>{{.Tier1Sites}}</td>
                        <td>{{.Tier2Sites}}</td>
                        <td>{{.Tier3Sites}}</td>
                        <td>{{printf "%.2f" .EstimatedRAMGB}} GB</td>
                        <td>{{printf "%.0f" .AvailableRAMGB}} GB</td>
                        <td>{{printf "%.1f" .UtilizationPercent}}%</td>
                        <td>{{if .IsValid}}<span class="status-ok">OK</span>{{else}}<span class="status-over">OVER CAPACITY</span>{{end}}</td>
                    </tr>
                    {{end}}
                </tbody>
            </table>
        </div>
        {{end}}

        <div class="section">
            <h2>Recommendations</h2>
            {{if .Recommendations}}
            <table>
                <thead>
                    <tr><th>Domain</th><th>Current</th><th>Recommended</th><th>Daily Visitors</th><th>Reason</th></tr>
                </thead>
                <tbody>
                    {{range .Recommendations}}
                    <tr>
                        <td><strong>{{.Domain}}</strong></td>
                        <td>{{tierBadge .CurrentTier}}</td>
                        <td>{{tierBadge .RecommendedTier}}</td>
                        <td>{{.DailyVisitors}}</td>
                        <td>{{.Reason}}</td>
                    </tr>
                    {{end}}
                </tbody>
            </table>
            {{else}}
            <p>All sites match their traffic tier.</p>
            {{end}}
        </div>

        {{if .Deployments}}
        <div class="section">
            <h2>Deployments</h2>
            <p>{{.DeploymentTotals.Total}} actions: {{.DeploymentTotals.Success}} succeeded ({{.DeploymentTotals.DryRun}} dry run), {{.DeploymentTotals.Skipped}} skipped, {{.DeploymentTotals.Failed}} failed</p>
            <table>
                <thead>
                    <tr><th>Deployment</th><th>Site</th><th>Tier</th><th>Status</th><th>Message</th></tr>
                </thead>
                <tbody>
                    {{range $d := .Deployments}}{{range .Actions}}
                    <tr>
                        <td><code>{{$d.ID}}</code></td>
                        <td>{{.SiteDomain}}</td>
                        <td>{{tierBadge $d.Tier}}</td>
                        <td><span class="status-{{label . | lower}}">{{label .}}</span></td>
                        <td>{{message .}}</td>
                    </tr>
                    {{end}}{{end}}
                </tbody>
            </table>
        </div>
        {{end}}

        <div class="footer">
            <p>Generated by <strong>site-optimizer</strong></p>
        </div>
    </div>
</body>
</html>
`

// GenerateHTML creates an HTML report
func GenerateHTML(report *Report, writer io.Writer) error {
	// Parse template
	tmpl, err := template.New("report").Funcs(template.FuncMap{
		"lower": func(s interface{}) string {
			return strings.ToLower(fmt.Sprintf("%v", s))
		},
		"tierBadge": func(t models.Tier) template.HTML {
			return template.HTML(fmt.Sprintf(`<span class="tier-badge tier-%d">%s</span>`, int(t), t.Label()))
		},
		"label":   actionLabel,
		"message": actionMessage,
	}).Parse(htmlTemplate)
	if err != nil {
		return fmt.Errorf("failed to parse template: %w", err)
	}

	// Execute template
	if err := tmpl.Execute(writer, report); err != nil {
		return fmt.Errorf("failed to execute template: %w", err)
	}

	return nil
}
