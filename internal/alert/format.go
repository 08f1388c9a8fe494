package alert

import (
	"encoding/json"
	"fmt"
)

// FormatPayload builds the webhook body for the given format.
func FormatPayload(format string, event Event) ([]byte, error) {
	switch format {
	case "slack":
		return formatSlack(event)
	case "pagerduty":
		return formatPagerDuty(event)
	default:
		return json.Marshal(event)
	}
}

func formatSlack(event Event) ([]byte, error) {
	fields := []any{
		map[string]any{"type": "mrkdwn", "text": fmt.Sprintf("*Customer:* %s", event.CustomerID)},
	}
	switch event.Type {
	case TypeSweepCompleted:
		fields = append(fields,
			map[string]any{"type": "mrkdwn", "text": fmt.Sprintf("*Examined:* %d", event.Examined)},
			map[string]any{"type": "mrkdwn", "text": fmt.Sprintf("*Rolled back:* %d", event.RolledBack)},
			map[string]any{"type": "mrkdwn", "text": fmt.Sprintf("*Confirmed good:* %d", event.ConfirmedGood)},
		)
	default:
		fields = append(fields,
			map[string]any{"type": "mrkdwn", "text": fmt.Sprintf("*Entity:* %s %s", event.EntityType, event.EntityID)},
			map[string]any{"type": "mrkdwn", "text": fmt.Sprintf("*Lever:* %s", event.Lever)},
			map[string]any{"type": "mrkdwn", "text": fmt.Sprintf("*Reason:* %s", event.Reason)},
		)
	}

	payload := map[string]any{
		"blocks": []any{
			map[string]any{
				"type": "header",
				"text": map[string]any{
					"type": "plain_text",
					"text": fmt.Sprintf("gadsctl: %s", event.Type),
				},
			},
			map[string]any{
				"type":   "section",
				"fields": fields,
			},
		},
	}
	return json.Marshal(payload)
}

func formatPagerDuty(event Event) ([]byte, error) {
	severity := "info"
	switch event.Type {
	case TypeRollbackTriggered:
		severity = "error"
	case TypeMutationFailed:
		severity = "warning"
	}

	payload := map[string]any{
		"event_action": "trigger",
		"payload": map[string]any{
			"summary":  event.Summary(),
			"severity": severity,
			"source":   "gadsctl",
			"custom_details": map[string]any{
				"customer_id": event.CustomerID,
				"change_id":   event.ChangeID,
				"entity_type": event.EntityType,
				"entity_id":   event.EntityID,
				"lever":       event.Lever,
				"reason":      event.Reason,
				"delta":       event.Delta,
			},
		},
	}
	return json.Marshal(payload)
}
