package policy

import (
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/ChristopherHoole/gads-data-layer-sub001/internal/model"
)

func TestDefaultPolicyValidates(t *testing.T) {
	p := DefaultPolicy("cust-1")
	if err := p.Validate(); err != nil {
		t.Fatalf("default policy must validate: %v", err)
	}
	if p.AutomationMode != model.ModeSuggest {
		t.Errorf("default mode should be suggest, got %s", p.AutomationMode)
	}
}

func TestMagnitudeCapPrecedence(t *testing.T) {
	p := DefaultPolicy("cust-1")

	// Tolerance default.
	if got := p.MagnitudeCap(model.LeverBudget); got != 10 {
		t.Errorf("standard tolerance cap should be 10, got %v", got)
	}

	p.RiskTolerance = ToleranceConservative
	if got := p.MagnitudeCap(model.LeverBudget); got != 5 {
		t.Errorf("conservative tolerance cap should be 5, got %v", got)
	}

	// Policy-wide override beats tolerance.
	p.MaxChangePct = 8
	if got := p.MagnitudeCap(model.LeverBudget); got != 8 {
		t.Errorf("max_change_pct override should win, got %v", got)
	}

	// Per-lever override beats everything.
	p.LeverCaps[model.LeverBudget] = 3
	if got := p.MagnitudeCap(model.LeverBudget); got != 3 {
		t.Errorf("lever cap override should win, got %v", got)
	}
	if got := p.MagnitudeCap(model.LeverBid); got != 8 {
		t.Errorf("other levers keep the policy-wide override, got %v", got)
	}
}

func TestCooldownDefaults(t *testing.T) {
	p := DefaultPolicy("cust-1")

	if got := p.Cooldown(model.LeverBudget); got != 7*24*time.Hour {
		t.Errorf("budget cooldown should default to 7 days, got %v", got)
	}
	if got := p.Cooldown(model.LeverKeyword); got != 14*24*time.Hour {
		t.Errorf("keyword cooldown should default to 14 days, got %v", got)
	}
	if got := p.Cooldown(model.LeverExclusion); got != 14*24*time.Hour {
		t.Errorf("exclusion cooldown should default to 14 days, got %v", got)
	}

	p.CooldownDays[model.LeverBid] = 4
	if got := p.Cooldown(model.LeverBid); got != 4*24*time.Hour {
		t.Errorf("cooldown override should apply, got %v", got)
	}
}

func TestValidateCollectsAllProblems(t *testing.T) {
	p := DefaultPolicy("")
	p.AutomationMode = "yolo"
	p.PrimaryKPI = "clicks"
	p.Monitoring.DeltaWindowDays = 3
	p.Rollback.CPARisePct = 0

	err := p.Validate()
	if err == nil {
		t.Fatal("expected validation failure")
	}
	if !errors.Is(err, ErrConfiguration) {
		t.Errorf("expected ErrConfiguration, got %v", err)
	}
	msg := err.Error()
	for _, want := range []string{"customer_id", "automation_mode", "primary_kpi", "delta_window_days", "rollback thresholds"} {
		if !strings.Contains(msg, want) {
			t.Errorf("expected %q in error, got: %s", want, msg)
		}
	}
}

func TestValidateMaxAgeMustExceedMinWindow(t *testing.T) {
	p := DefaultPolicy("cust-1")
	p.Monitoring.MinWindowHours = 24 * 31
	if err := p.Validate(); err == nil {
		t.Error("expected failure when min window exceeds max age")
	}
}

func TestLoadOverlaysDefaults(t *testing.T) {
	path := filepath.Join(t.TempDir(), "policy.yaml")
	yaml := `
customer_id: cust-42
automation_mode: autopilot
risk_tolerance: aggressive
daily_caps:
  ad_pause: 2
`
	if err := os.WriteFile(path, []byte(yaml), 0600); err != nil {
		t.Fatal(err)
	}

	p, hash, err := LoadWithHash(path, "cust-42")
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if p.AutomationMode != model.ModeAutopilot {
		t.Errorf("file should override mode, got %s", p.AutomationMode)
	}
	if p.MagnitudeCap(model.LeverBudget) != 15 {
		t.Errorf("aggressive cap should be 15, got %v", p.MagnitudeCap(model.LeverBudget))
	}
	if p.DailyCap("ad_pause") != 2 {
		t.Errorf("file should override ad_pause cap, got %d", p.DailyCap("ad_pause"))
	}
	// Unspecified fields keep defaults.
	if p.Monitoring.MinWindowHours != 72 {
		t.Errorf("min window should keep default 72, got %d", p.Monitoring.MinWindowHours)
	}
	if p.Rollback.CPARisePct != 20 {
		t.Errorf("cpa threshold should keep default 20, got %v", p.Rollback.CPARisePct)
	}
	if !strings.HasPrefix(hash, "sha256:") {
		t.Errorf("expected sha256 hash, got %q", hash)
	}
}

func TestLoadMissingFileReturnsDefaults(t *testing.T) {
	p, _, err := LoadWithHash(filepath.Join(t.TempDir(), "nope.yaml"), "cust-7")
	if err != nil {
		t.Fatalf("missing file should fall back to defaults: %v", err)
	}
	if p.CustomerID != "cust-7" {
		t.Errorf("expected cust-7, got %s", p.CustomerID)
	}
}

func TestLoadInvalidPolicyFails(t *testing.T) {
	path := filepath.Join(t.TempDir(), "policy.yaml")
	if err := os.WriteFile(path, []byte("automation_mode: bogus\n"), 0600); err != nil {
		t.Fatal(err)
	}
	if _, _, err := LoadWithHash(path, "cust-1"); !errors.Is(err, ErrConfiguration) {
		t.Errorf("expected ErrConfiguration, got %v", err)
	}
}

func TestDefaultPolicyYAMLParses(t *testing.T) {
	path := filepath.Join(t.TempDir(), "policy.yaml")
	if err := os.WriteFile(path, []byte(DefaultPolicyYAML()), 0600); err != nil {
		t.Fatal(err)
	}
	if _, err := Load(path, "cust-1"); err != nil {
		t.Fatalf("generated template must load cleanly: %v", err)
	}
}
