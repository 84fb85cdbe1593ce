package models

import (
	"errors"
	"testing"
	"time"
)

func TestDeploymentProgressAndSummary(t *testing.T) {
	now := time.Date(2026, 1, 2, 3, 4, 5, 0, time.UTC)
	d := &Deployment{ID: "d1", Tier: TierMedium, Status: DeploymentPending}

	if d.ProgressPercent() != 0 {
		t.Errorf("Expected 0%% progress for empty deployment, got %.1f", d.ProgressPercent())
	}

	applied := NewDeploymentAction("a.com", nil, TierMedium)
	applied.Start(now)
	applied.Complete(now.Add(2*time.Second), OutcomeApplied, "")

	skipped := NewDeploymentAction("b.com", nil, TierMedium)
	skipped.Complete(now, OutcomeAlreadyConfigured, MessageAlreadyConfigured)

	failed := NewDeploymentAction("c.com", TierPtr(TierLow), TierMedium)
	failed.Fail(now, errors.New("boom"))

	pending := NewDeploymentAction("d.com", nil, TierMedium)

	for _, a := range []*DeploymentAction{applied, skipped, failed, pending} {
		d.AddAction(a)
	}

	if d.TotalSites() != 4 || d.CompletedSites() != 2 || d.FailedSites() != 1 {
		t.Errorf("Unexpected counts: total=%d completed=%d failed=%d",
			d.TotalSites(), d.CompletedSites(), d.FailedSites())
	}
	if d.ProgressPercent() != 75 {
		t.Errorf("Expected 75%% progress, got %.1f", d.ProgressPercent())
	}

	s := d.Summary()
	if s.Success != 1 || s.Skipped != 1 || s.Failed != 1 || s.Total != 4 {
		t.Errorf("Unexpected summary %+v", s)
	}

	if d.IsComplete() {
		t.Error("Pending deployment reported complete")
	}
	d.Finish(now)
	if d.Status != DeploymentFailed || !d.IsComplete() {
		t.Errorf("Expected failed terminal status, got %s", d.Status)
	}

	dur, ok := applied.Duration()
	if !ok || dur != 2*time.Second {
		t.Errorf("Expected 2s duration, got %v (ok=%v)", dur, ok)
	}
	if _, ok := pending.Duration(); ok {
		t.Error("Pending action should have no duration")
	}
}
