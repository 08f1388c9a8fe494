package model

import (
	"encoding/json"
	"fmt"
)

// Evidence is the typed supporting-metric bundle attached to a candidate
// action. Each lever family has its own variant so guardrail rules get
// compile-time guarantees on the fields they read, instead of digging
// through an open key-value map.
type Evidence interface {
	// Kind tags the variant for serialization and dispatch.
	Kind() string
}

// BidEvidence supports bid and budget changes.
type BidEvidence struct {
	Clicks7d      int     `json:"clicks_7d"`
	Conversions7d float64 `json:"conversions_7d"`
	Cost7d        float64 `json:"cost_7d"`
}

func (BidEvidence) Kind() string { return "bid" }

// KeywordEvidence supports keyword pause/add decisions.
type KeywordEvidence struct {
	Clicks30d      int     `json:"clicks_30d"`
	Conversions30d float64 `json:"conversions_30d"`
	Cost30d        float64 `json:"cost_30d"`
	QualityScore   int     `json:"quality_score,omitempty"`
}

func (KeywordEvidence) Kind() string { return "keyword" }

// AdEvidence supports CTR-based ad pause decisions.
type AdEvidence struct {
	Impressions30d int     `json:"impressions_30d"`
	Clicks30d      int     `json:"clicks_30d"`
	CTR30d         float64 `json:"ctr_30d"`
	// ActiveAdsInGroup counts enabled ads in the same ad group, including
	// this one. The domain gate refuses to pause below two.
	ActiveAdsInGroup int `json:"active_ads_in_group"`
}

func (AdEvidence) Kind() string { return "ad" }

// ProductEvidence supports shopping product bid and exclusion decisions.
type ProductEvidence struct {
	Clicks30d          int     `json:"clicks_30d"`
	Conversions30d     float64 `json:"conversions_30d"`
	OutOfStock         bool    `json:"out_of_stock"`
	FeedQualityFlagged bool    `json:"feed_quality_flagged"`
}

func (ProductEvidence) Kind() string { return "product" }

// BudgetEvidence supports campaign budget changes.
type BudgetEvidence struct {
	Clicks7d       int     `json:"clicks_7d"`
	Conversions7d  float64 `json:"conversions_7d"`
	BudgetLostIS7d float64 `json:"budget_lost_is_7d"`
}

func (BudgetEvidence) Kind() string { return "budget" }

// evidenceEnvelope wraps a variant with its kind tag for storage.
type evidenceEnvelope struct {
	Kind string          `json:"kind"`
	Data json.RawMessage `json:"data"`
}

// MarshalEvidence serializes any evidence variant with its kind tag.
// Nil evidence marshals to null.
func MarshalEvidence(e Evidence) ([]byte, error) {
	if e == nil {
		return []byte("null"), nil
	}
	data, err := json.Marshal(e)
	if err != nil {
		return nil, fmt.Errorf("marshal evidence: %w", err)
	}
	return json.Marshal(evidenceEnvelope{Kind: e.Kind(), Data: data})
}

// UnmarshalEvidence restores a typed variant from its tagged form.
// Returns nil for null or empty input.
func UnmarshalEvidence(raw []byte) (Evidence, error) {
	if len(raw) == 0 || string(raw) == "null" {
		return nil, nil
	}
	var env evidenceEnvelope
	if err := json.Unmarshal(raw, &env); err != nil {
		return nil, fmt.Errorf("unmarshal evidence envelope: %w", err)
	}

	var e Evidence
	switch env.Kind {
	case "bid":
		e = &BidEvidence{}
	case "keyword":
		e = &KeywordEvidence{}
	case "ad":
		e = &AdEvidence{}
	case "product":
		e = &ProductEvidence{}
	case "budget":
		e = &BudgetEvidence{}
	default:
		return nil, fmt.Errorf("unknown evidence kind %q", env.Kind)
	}
	if err := json.Unmarshal(env.Data, e); err != nil {
		return nil, fmt.Errorf("unmarshal %s evidence: %w", env.Kind, err)
	}

	switch v := e.(type) {
	case *BidEvidence:
		return *v, nil
	case *KeywordEvidence:
		return *v, nil
	case *AdEvidence:
		return *v, nil
	case *ProductEvidence:
		return *v, nil
	case *BudgetEvidence:
		return *v, nil
	}
	return nil, fmt.Errorf("unreachable evidence kind %q", env.Kind)
}
