package cli

import (
	"encoding/json"
	"fmt"
	"os"

	"github.com/ChristopherHoole/gads-data-layer-sub001/internal/alert"
	"github.com/ChristopherHoole/gads-data-layer-sub001/internal/audit"
	"github.com/ChristopherHoole/gads-data-layer-sub001/internal/ledger"
	"github.com/ChristopherHoole/gads-data-layer-sub001/internal/model"
	"github.com/ChristopherHoole/gads-data-layer-sub001/internal/perf"
)

// exitConfig is the exit code for configuration errors (EX_CONFIG).
const exitConfig = 78

// openStores opens the ledger and analytical store from the shared flags.
func openStores() (*ledger.Store, *perf.SQLiteReader, error) {
	store, err := ledger.Open(flagLedgerPath)
	if err != nil {
		return nil, nil, err
	}
	reader, err := perf.OpenSQLite(flagPerfPath)
	if err != nil {
		store.Close()
		return nil, nil, err
	}
	return store, reader, nil
}

// openDispatcher builds the alert fan-out, nil when no sinks are configured.
func openDispatcher() (*alert.Dispatcher, error) {
	sinks, err := alert.LoadSinks(flagSinksPath)
	if err != nil {
		return nil, err
	}
	return alert.NewDispatcher(sinks), nil
}

// openTrail opens the audit trail, nil when unconfigured.
func openTrail() (*audit.Trail, error) {
	if flagAuditPath == "" {
		return nil, nil
	}
	return audit.Open(flagAuditPath)
}

// batchItem mirrors model.CandidateAction with raw evidence, since the
// typed variant is only known after reading the kind tag.
type batchItem struct {
	RuleID        string          `json:"rule_id"`
	CustomerID    string          `json:"customer_id"`
	CampaignID    string          `json:"campaign_id"`
	EntityType    string          `json:"entity_type"`
	EntityID      string          `json:"entity_id"`
	Lever         string          `json:"lever"`
	CurrentValue  float64         `json:"current_value"`
	ProposedValue float64         `json:"proposed_value"`
	RiskTier      string          `json:"risk_tier"`
	Confidence    float64         `json:"confidence"`
	Evidence      json.RawMessage `json:"evidence"`
	Rationale     string          `json:"rationale"`
}

// loadBatch reads a JSON array of candidate actions.
func loadBatch(path string) ([]model.CandidateAction, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read batch file: %w", err)
	}
	var items []batchItem
	if err := json.Unmarshal(data, &items); err != nil {
		return nil, fmt.Errorf("parse batch file: %w", err)
	}

	actions := make([]model.CandidateAction, 0, len(items))
	for i, item := range items {
		evidence, err := model.UnmarshalEvidence(item.Evidence)
		if err != nil {
			return nil, fmt.Errorf("batch item %d: %w", i, err)
		}
		actions = append(actions, model.CandidateAction{
			RuleID:        item.RuleID,
			CustomerID:    item.CustomerID,
			CampaignID:    item.CampaignID,
			EntityType:    model.EntityType(item.EntityType),
			EntityID:      item.EntityID,
			Lever:         model.Lever(item.Lever),
			CurrentValue:  item.CurrentValue,
			ProposedValue: item.ProposedValue,
			RiskTier:      model.RiskTier(item.RiskTier),
			Confidence:    item.Confidence,
			Evidence:      evidence,
			Rationale:     item.Rationale,
		})
	}
	return actions, nil
}
