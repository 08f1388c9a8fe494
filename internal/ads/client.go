// Package ads wraps the advertising-platform mutation API. The platform
// client is a collaborator: one blocking, possibly-failing remote call per
// entity per lever. Nothing here retries; retry policy belongs to the
// platform gateway, and the executor treats every failure as per-item data.
package ads

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/ChristopherHoole/gads-data-layer-sub001/internal/model"
)

// MutationError is a structured failure from the mutation API.
type MutationError struct {
	Code      string
	Message   string
	Retriable bool
}

func (e *MutationError) Error() string {
	return fmt.Sprintf("mutation failed (%s): %s", e.Code, e.Message)
}

// Mutator applies a single mutation to the live platform.
type Mutator interface {
	// Apply performs one mutation call. The returned token identifies the
	// platform-side operation for audit purposes.
	Apply(ctx context.Context, action model.CandidateAction) (token string, err error)
}

const requestTimeout = 30 * time.Second

// HTTPMutator posts single-entity mutations to the platform gateway.
type HTTPMutator struct {
	baseURL string
	apiKey  string
	client  *http.Client
}

// NewHTTPMutator creates a mutator against the gateway base URL.
func NewHTTPMutator(baseURL, apiKey string) *HTTPMutator {
	return &HTTPMutator{
		baseURL: baseURL,
		apiKey:  apiKey,
		client:  &http.Client{Timeout: requestTimeout},
	}
}

type mutationRequest struct {
	CustomerID string  `json:"customer_id"`
	EntityType string  `json:"entity_type"`
	EntityID   string  `json:"entity_id"`
	Lever      string  `json:"lever"`
	OldValue   float64 `json:"old_value"`
	NewValue   float64 `json:"new_value"`
}

type mutationResponse struct {
	Token string `json:"token"`
	Code  string `json:"code"`
	Error string `json:"error"`
}

// Apply posts the mutation and decodes the success token or structured error.
func (m *HTTPMutator) Apply(ctx context.Context, action model.CandidateAction) (string, error) {
	body, err := json.Marshal(mutationRequest{
		CustomerID: action.CustomerID,
		EntityType: string(action.EntityType),
		EntityID:   action.EntityID,
		Lever:      string(action.Lever),
		OldValue:   action.CurrentValue,
		NewValue:   action.ProposedValue,
	})
	if err != nil {
		return "", fmt.Errorf("ads: encode mutation: %w", err)
	}

	url := fmt.Sprintf("%s/customers/%s/mutations", m.baseURL, action.CustomerID)
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(body))
	if err != nil {
		return "", fmt.Errorf("ads: create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	if m.apiKey != "" {
		req.Header.Set("Authorization", "Bearer "+m.apiKey)
	}

	resp, err := m.client.Do(req)
	if err != nil {
		return "", &MutationError{Code: "transport", Message: err.Error(), Retriable: true}
	}
	defer resp.Body.Close()

	data, err := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
	if err != nil {
		return "", &MutationError{Code: "transport", Message: err.Error(), Retriable: true}
	}

	var decoded mutationResponse
	if err := json.Unmarshal(data, &decoded); err != nil && resp.StatusCode < 300 {
		return "", &MutationError{Code: "malformed_response", Message: err.Error()}
	}

	switch {
	case resp.StatusCode >= 200 && resp.StatusCode < 300:
		return decoded.Token, nil
	case resp.StatusCode >= 500:
		return "", &MutationError{Code: orDefault(decoded.Code, "server_error"), Message: orDefault(decoded.Error, resp.Status), Retriable: true}
	default:
		return "", &MutationError{Code: orDefault(decoded.Code, "rejected"), Message: orDefault(decoded.Error, resp.Status)}
	}
}

func orDefault(s, fallback string) string {
	if s == "" {
		return fallback
	}
	return s
}
