package policy

import (
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"fmt"
	"os"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/ChristopherHoole/gads-data-layer-sub001/internal/model"
)

// ErrConfiguration marks a malformed policy. Fatal to the run: a batch or
// sweep must abort before any mutation when the policy does not validate.
var ErrConfiguration = errors.New("configuration error")

// RiskTolerance scales the default magnitude cap.
type RiskTolerance string

const (
	ToleranceConservative RiskTolerance = "conservative"
	ToleranceStandard     RiskTolerance = "standard"
	ToleranceAggressive   RiskTolerance = "aggressive"
)

// magnitudeCapByTolerance is the default abs(change_pct) ceiling per tolerance.
var magnitudeCapByTolerance = map[RiskTolerance]float64{
	ToleranceConservative: 5,
	ToleranceStandard:     10,
	ToleranceAggressive:   15,
}

// Rollback holds the KPI regression trigger thresholds, in percent.
type Rollback struct {
	// The CPA trigger is conjunctive: CPA up AND conversions down.
	CPARisePct         float64 `yaml:"cpa_rise_pct"`
	ConversionsDropPct float64 `yaml:"conversions_drop_pct"`
	// The ROAS trigger is disjunctive: ROAS down OR conversion value down.
	ROASDropPct  float64 `yaml:"roas_drop_pct"`
	ValueDropPct float64 `yaml:"value_drop_pct"`
}

// Monitoring holds window and aging knobs for the rollback monitor.
type Monitoring struct {
	// MinWindowHours is the floor before a change is evaluated (default 72).
	MinWindowHours int `yaml:"min_window_hours"`
	// DeltaWindowDays is the baseline/current window length, 7-14.
	DeltaWindowDays int `yaml:"delta_window_days"`
	// MaxAgeDays forces confirmed_good when an entry has been in monitoring
	// this long without a computable delta (default 30).
	MaxAgeDays int `yaml:"max_age_days"`
}

// MinWindow returns the minimum monitoring age as a duration.
func (m Monitoring) MinWindow() time.Duration {
	return time.Duration(m.MinWindowHours) * time.Hour
}

// MaxAge returns the monitoring age cap as a duration.
func (m Monitoring) MaxAge() time.Duration {
	return time.Duration(m.MaxAgeDays) * 24 * time.Hour
}

// ClientPolicy is the immutable per-customer configuration passed into every
// guardrail and monitor call. Loaded externally, never mutated in place.
type ClientPolicy struct {
	CustomerID     string               `yaml:"customer_id"`
	AutomationMode model.AutomationMode `yaml:"automation_mode"`
	RiskTolerance  RiskTolerance        `yaml:"risk_tolerance"`
	PrimaryKPI     model.PrimaryKPI     `yaml:"primary_kpi"`

	// MaxChangePct overrides the tolerance-derived cap when > 0.
	MaxChangePct float64 `yaml:"max_change_pct"`
	// LeverCaps overrides the cap per lever when set.
	LeverCaps map[model.Lever]float64 `yaml:"lever_caps"`

	// CooldownDays per lever; unset levers use the built-in defaults
	// (7 days, 14 for keywords and shopping exclusions).
	CooldownDays map[model.Lever]int `yaml:"cooldown_days"`

	ProtectedEntities       []string `yaml:"protected_entities"`
	BrandProtectedCampaigns []string `yaml:"brand_protected_campaigns"`

	// DailyCaps limits executed actions per (customer, category, day).
	DailyCaps map[string]int `yaml:"daily_caps"`

	Monitoring Monitoring `yaml:"monitoring"`
	Rollback   Rollback   `yaml:"rollback"`
}

// DefaultPolicy returns the built-in policy for a customer.
func DefaultPolicy(customerID string) *ClientPolicy {
	return &ClientPolicy{
		CustomerID:     customerID,
		AutomationMode: model.ModeSuggest,
		RiskTolerance:  ToleranceStandard,
		PrimaryKPI:     model.KPICPA,
		LeverCaps:      map[model.Lever]float64{},
		CooldownDays:   map[model.Lever]int{},
		DailyCaps: map[string]int{
			"keyword_add":   10,
			"keyword_pause": 10,
			"ad_pause":      5,
			"exclusion_add": 10,
		},
		Monitoring: Monitoring{
			MinWindowHours:  72,
			DeltaWindowDays: 7,
			MaxAgeDays:      30,
		},
		Rollback: Rollback{
			CPARisePct:         20,
			ConversionsDropPct: 10,
			ROASDropPct:        15,
			ValueDropPct:       15,
		},
	}
}

// MagnitudeCap returns the abs(change_pct) ceiling for a lever.
// Precedence: per-lever override, policy-wide override, tolerance default.
func (p *ClientPolicy) MagnitudeCap(lever model.Lever) float64 {
	if c, ok := p.LeverCaps[lever]; ok && c > 0 {
		return c
	}
	if p.MaxChangePct > 0 {
		return p.MaxChangePct
	}
	if c, ok := magnitudeCapByTolerance[p.RiskTolerance]; ok {
		return c
	}
	return magnitudeCapByTolerance[ToleranceStandard]
}

// Cooldown returns the minimum elapsed time before the same entity+lever may
// change again.
func (p *ClientPolicy) Cooldown(lever model.Lever) time.Duration {
	if d, ok := p.CooldownDays[lever]; ok && d > 0 {
		return time.Duration(d) * 24 * time.Hour
	}
	switch lever {
	case model.LeverKeyword, model.LeverExclusion:
		return 14 * 24 * time.Hour
	}
	return 7 * 24 * time.Hour
}

// DailyCap returns the executed-action ceiling for a category, or 0 when
// uncapped.
func (p *ClientPolicy) DailyCap(category string) int {
	return p.DailyCaps[category]
}

// IsProtected reports whether the entity may never be mutated.
func (p *ClientPolicy) IsProtected(entityID string) bool {
	for _, id := range p.ProtectedEntities {
		if id == entityID {
			return true
		}
	}
	return false
}

// IsBrandProtected reports whether the campaign is brand-protected.
func (p *ClientPolicy) IsBrandProtected(campaignID string) bool {
	for _, id := range p.BrandProtectedCampaigns {
		if id == campaignID {
			return true
		}
	}
	return false
}

// Validate checks the policy before any batch or sweep touches the ledger.
// Every problem is collected, wrapped in ErrConfiguration.
func (p *ClientPolicy) Validate() error {
	var problems []string

	if p.CustomerID == "" {
		problems = append(problems, "customer_id is required")
	}
	switch p.AutomationMode {
	case model.ModeInsights, model.ModeSuggest, model.ModeAutopilot:
	default:
		problems = append(problems, fmt.Sprintf("unknown automation_mode %q", p.AutomationMode))
	}
	switch p.RiskTolerance {
	case ToleranceConservative, ToleranceStandard, ToleranceAggressive:
	default:
		problems = append(problems, fmt.Sprintf("unknown risk_tolerance %q", p.RiskTolerance))
	}
	switch p.PrimaryKPI {
	case model.KPICPA, model.KPIROAS:
	default:
		problems = append(problems, fmt.Sprintf("unknown primary_kpi %q", p.PrimaryKPI))
	}
	if p.MaxChangePct < 0 {
		problems = append(problems, "max_change_pct must not be negative")
	}
	for lever, c := range p.LeverCaps {
		if !lever.Valid() {
			problems = append(problems, fmt.Sprintf("lever_caps: unknown lever %q", lever))
		}
		if c < 0 {
			problems = append(problems, fmt.Sprintf("lever_caps.%s must not be negative", lever))
		}
	}
	for lever, d := range p.CooldownDays {
		if !lever.Valid() {
			problems = append(problems, fmt.Sprintf("cooldown_days: unknown lever %q", lever))
		}
		if d < 0 {
			problems = append(problems, fmt.Sprintf("cooldown_days.%s must not be negative", lever))
		}
	}
	for category, c := range p.DailyCaps {
		if c < 0 {
			problems = append(problems, fmt.Sprintf("daily_caps.%s must not be negative", category))
		}
	}
	if p.Monitoring.MinWindowHours <= 0 {
		problems = append(problems, "monitoring.min_window_hours must be positive")
	}
	if p.Monitoring.DeltaWindowDays < 7 || p.Monitoring.DeltaWindowDays > 14 {
		problems = append(problems, "monitoring.delta_window_days must be between 7 and 14")
	}
	if p.Monitoring.MaxAge() <= p.Monitoring.MinWindow() {
		problems = append(problems, "monitoring.max_age_days must exceed monitoring.min_window_hours")
	}
	if p.Rollback.CPARisePct <= 0 || p.Rollback.ConversionsDropPct <= 0 ||
		p.Rollback.ROASDropPct <= 0 || p.Rollback.ValueDropPct <= 0 {
		problems = append(problems, "rollback thresholds must be positive")
	}

	if len(problems) > 0 {
		return fmt.Errorf("%w: policy for %q: %v", ErrConfiguration, p.CustomerID, problems)
	}
	return nil
}

// Load reads a client policy from a YAML file. Defaults first, the file
// overwrites only the fields it specifies. A missing file returns defaults.
func Load(path, customerID string) (*ClientPolicy, error) {
	p, _, err := LoadWithHash(path, customerID)
	return p, err
}

// LoadWithHash loads a policy and returns the SHA-256 of the raw YAML bytes
// for the audit trail. Defaults (no file) hash empty input.
func LoadWithHash(path, customerID string) (*ClientPolicy, string, error) {
	if path == "" {
		h := sha256.Sum256(nil)
		p := DefaultPolicy(customerID)
		return p, "sha256:" + hex.EncodeToString(h[:]), p.Validate()
	}

	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			h := sha256.Sum256(nil)
			p := DefaultPolicy(customerID)
			return p, "sha256:" + hex.EncodeToString(h[:]), p.Validate()
		}
		return nil, "", fmt.Errorf("%w: read policy: %v", ErrConfiguration, err)
	}

	h := sha256.Sum256(data)
	hash := "sha256:" + hex.EncodeToString(h[:])

	p := DefaultPolicy(customerID)
	if err := yaml.Unmarshal(data, p); err != nil {
		return nil, "", fmt.Errorf("%w: parse policy: %v", ErrConfiguration, err)
	}
	if p.CustomerID == "" {
		p.CustomerID = customerID
	}
	if err := p.Validate(); err != nil {
		return nil, "", err
	}
	return p, hash, nil
}

// DefaultPolicyYAML returns a commented YAML template for init-policy.
func DefaultPolicyYAML() string {
	return `# Client policy for the guarded-execution pipeline.
# Generated by: gadsctl init-policy
#
# Gate order (fixed, all gates always run):
#   automation_mode, protected_entity, data_sufficiency, magnitude,
#   cooldown, one_lever, rate_limit, domain gates

customer_id: ""

# insights  - block everything, report only
# suggest   - evaluate, require a human to apply
# autopilot - execute automatically
automation_mode: suggest

# conservative (5%), standard (10%), aggressive (15%) magnitude cap
risk_tolerance: standard

# cpa or roas - selects the rollback regression trigger
primary_kpi: cpa

# Override the tolerance-derived cap (percent). 0 = use tolerance default.
max_change_pct: 0

# Per-lever cap overrides (percent), e.g.:
# lever_caps:
#   budget: 8
lever_caps: {}

# Per-lever cooldown overrides in days.
# Defaults: 7 days, 14 for keyword/exclusion.
# cooldown_days:
#   bid: 4
cooldown_days: {}

# Entities the pipeline must never touch.
protected_entities: []
brand_protected_campaigns: []

# Executed actions per category per day.
daily_caps:
  keyword_add: 10
  keyword_pause: 10
  ad_pause: 5
  exclusion_add: 10

monitoring:
  min_window_hours: 72
  delta_window_days: 7
  max_age_days: 30

rollback:
  cpa_rise_pct: 20
  conversions_drop_pct: 10
  roas_drop_pct: 15
  value_drop_pct: 15
`
}
