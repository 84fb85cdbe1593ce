package models

import "time"

// DeploymentStatus represents the lifecycle state of a deployment or action
type DeploymentStatus string

const (
	DeploymentPending    DeploymentStatus = "pending"
	DeploymentInProgress DeploymentStatus = "in_progress"
	DeploymentCompleted  DeploymentStatus = "completed"
	DeploymentFailed     DeploymentStatus = "failed"
	DeploymentRolledBack DeploymentStatus = "rolled_back"

	// DeploymentInterrupted marks a batch run stopped before it reached every site.
	DeploymentInterrupted DeploymentStatus = "interrupted"
)

// IsTerminal reports whether the deployment ran to its end. An interrupted
// run is not terminal: the sites it never reached are still pending.
func (s DeploymentStatus) IsTerminal() bool {
	return s == DeploymentCompleted || s == DeploymentFailed || s == DeploymentRolledBack
}

// ActionOutcome sub-classifies a finished action for reporting.
type ActionOutcome string

const (
	OutcomeApplied           ActionOutcome = "applied"
	OutcomeAlreadyConfigured ActionOutcome = "already_configured"
	OutcomeDryRun            ActionOutcome = "dry_run"
	OutcomeFailed            ActionOutcome = "failed"
	OutcomeRolledBack        ActionOutcome = "rolled_back"
)

// Messages attached to completed actions that did not write anything.
const (
	MessageAlreadyConfigured = "Already configured (use --overwrite to update)"
	MessageDryRun            = "Dry run - no changes made"
)

// DeploymentAction is the unit of work for applying one tier to one site
type DeploymentAction struct {
	SiteDomain   string           `json:"site_domain"`
	FromTier     *Tier            `json:"from_tier"`
	ToTier       Tier             `json:"to_tier,omitempty"` // zero for rollbacks
	Status       DeploymentStatus `json:"status"`
	Outcome      ActionOutcome    `json:"outcome,omitempty"`
	ErrorMessage string           `json:"error_message,omitempty"`
	StartedAt    *time.Time       `json:"started_at,omitempty"`
	CompletedAt  *time.Time       `json:"completed_at,omitempty"`
}

// NewDeploymentAction creates a pending action.
func NewDeploymentAction(domain string, from *Tier, to Tier) *DeploymentAction {
	return &DeploymentAction{
		SiteDomain: domain,
		FromTier:   from,
		ToTier:     to,
		Status:     DeploymentPending,
	}
}

// Start marks the action in progress.
func (a *DeploymentAction) Start(now time.Time) {
	a.Status = DeploymentInProgress
	a.StartedAt = &now
}

// Complete moves the action to COMPLETED with the given outcome.
func (a *DeploymentAction) Complete(now time.Time, outcome ActionOutcome, message string) {
	a.Status = DeploymentCompleted
	a.Outcome = outcome
	a.ErrorMessage = message
	a.CompletedAt = &now
}

// Fail moves the action to FAILED.
func (a *DeploymentAction) Fail(now time.Time, err error) {
	a.Status = DeploymentFailed
	a.Outcome = OutcomeFailed
	a.ErrorMessage = err.Error()
	a.CompletedAt = &now
}

// RolledBack marks a manual restore.
func (a *DeploymentAction) RolledBack(now time.Time, message string) {
	a.Status = DeploymentRolledBack
	a.Outcome = OutcomeRolledBack
	a.ErrorMessage = message
	a.CompletedAt = &now
}

// Duration returns elapsed time, or false if the action has not both started and finished.
func (a *DeploymentAction) Duration() (time.Duration, bool) {
	if a.StartedAt == nil || a.CompletedAt == nil {
		return 0, false
	}
	return a.CompletedAt.Sub(*a.StartedAt), true
}

// Deployment aggregates the actions of one batch run
type Deployment struct {
	ID          string              `json:"deployment_id"`
	Server      string              `json:"server"`
	Tier        Tier                `json:"tier"`
	Actions     []*DeploymentAction `json:"actions"`
	Status      DeploymentStatus    `json:"status"`
	DryRun      bool                `json:"dry_run"`
	CreatedAt   time.Time           `json:"created_at"`
	StartedAt   *time.Time          `json:"started_at,omitempty"`
	CompletedAt *time.Time          `json:"completed_at,omitempty"`
}

// DeploymentSummary counts action outcomes for reporting
type DeploymentSummary struct {
	Total   int `json:"total"`
	Success int `json:"success"`
	DryRun  int `json:"dry_run"`
	Skipped int `json:"skipped"`
	Failed  int `json:"failed"`
}

// AddAction appends an action owned by the deployment.
func (d *Deployment) AddAction(a *DeploymentAction) {
	d.Actions = append(d.Actions, a)
}

func (d *Deployment) TotalSites() int {
	return len(d.Actions)
}

func (d *Deployment) CompletedSites() int {
	return d.countStatus(DeploymentCompleted)
}

func (d *Deployment) FailedSites() int {
	return d.countStatus(DeploymentFailed)
}

func (d *Deployment) countStatus(status DeploymentStatus) int {
	n := 0
	for _, a := range d.Actions {
		if a.Status == status {
			n++
		}
	}
	return n
}

// ProgressPercent is the share of actions that reached COMPLETED or FAILED.
func (d *Deployment) ProgressPercent() float64 {
	if len(d.Actions) == 0 {
		return 0
	}
	done := d.CompletedSites() + d.FailedSites()
	return float64(done) / float64(len(d.Actions)) * 100
}

// IsComplete reports whether the aggregate status is terminal.
func (d *Deployment) IsComplete() bool {
	return d.Status.IsTerminal()
}

// Finish sets the aggregate status from the action statuses.
func (d *Deployment) Finish(now time.Time) {
	d.CompletedAt = &now
	if d.FailedSites() > 0 {
		d.Status = DeploymentFailed
		return
	}
	d.Status = DeploymentCompleted
}

// Interrupt ends a run that was stopped early, whatever its actions reached.
func (d *Deployment) Interrupt(now time.Time) {
	d.CompletedAt = &now
	d.Status = DeploymentInterrupted
}

// Summary counts outcomes: dry runs count as success, already configured as skipped.
func (d *Deployment) Summary() DeploymentSummary {
	s := DeploymentSummary{Total: len(d.Actions)}
	for _, a := range d.Actions {
		switch a.Outcome {
		case OutcomeApplied:
			s.Success++
		case OutcomeDryRun:
			s.Success++
			s.DryRun++
		case OutcomeAlreadyConfigured:
			s.Skipped++
		case OutcomeFailed:
			s.Failed++
		}
	}
	return s
}
