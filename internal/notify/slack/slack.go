// Package slack sends escalation notices to Slack via incoming webhooks.
package slack

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/linnemanlabs/clinicaflow/internal/triage"
)

const (
	maxSectionLen = 3000
	httpTimeout   = 10 * time.Second
)

// Notifier posts triage escalations to a Slack webhook. It implements
// triage.Notifier.
type Notifier struct {
	webhookURL string
	client     *http.Client
}

// New creates a new Slack notifier. If webhookURL is empty, notifications
// are a no-op.
func New(webhookURL string) *Notifier {
	return &Notifier{
		webhookURL: webhookURL,
		client:     &http.Client{Timeout: httpTimeout},
	}
}

// NotifyEscalation posts an escalated triage record to the configured
// webhook. If no webhook URL is configured, it returns nil immediately.
func (n *Notifier) NotifyEscalation(ctx context.Context, rec *triage.Record) error {
	if n.webhookURL == "" {
		return nil
	}

	body, err := json.Marshal(buildMessage(rec))
	if err != nil {
		return fmt.Errorf("slack: marshal message: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, n.webhookURL, bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("slack: create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := n.client.Do(req) //nolint:gosec // G704: webhookURL is from trusted config, not user input
	if err != nil {
		return fmt.Errorf("slack: post webhook: %w", err)
	}
	defer func() { _ = resp.Body.Close() }()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		respBody, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return fmt.Errorf("slack: webhook returned %d: %s", resp.StatusCode, string(respBody))
	}
	return nil
}

func buildMessage(rec *triage.Record) map[string]any {
	return map[string]any{
		"blocks": []map[string]any{
			headerBlock(rec.Result),
			{"type": "divider"},
			fieldsBlock(rec.Result),
			{"type": "divider"},
			handoffBlock(rec.Result),
			{"type": "divider"},
			contextBlock(rec),
		},
	}
}

func headerBlock(r *triage.Result) map[string]any {
	return map[string]any{
		"type": "header",
		"text": map[string]any{
			"type": "plain_text",
			"text": fmt.Sprintf("%s Triage Escalation: %s", tierEmoji(r.RiskTier), r.RiskTier),
		},
	}
}

func fieldsBlock(r *triage.Result) map[string]any {
	redFlags := "(none)"
	if len(r.RedFlags) > 0 {
		redFlags = strings.Join(r.RedFlags, ", ")
	}

	fields := []map[string]any{
		{
			"type": "mrkdwn",
			"text": fmt.Sprintf("*Risk tier:* %s", r.RiskTier),
		},
		{
			"type": "mrkdwn",
			"text": fmt.Sprintf("*Confidence:* %.2f", r.Confidence),
		},
		{
			"type": "mrkdwn",
			"text": fmt.Sprintf("*Red flags:* %s", truncate(redFlags, 300)),
		},
		{
			"type": "mrkdwn",
			"text": fmt.Sprintf("*Latency:* %.0fms", r.TotalLatencyMS),
		},
	}

	return map[string]any{
		"type":   "section",
		"fields": fields,
	}
}

func handoffBlock(r *triage.Result) map[string]any {
	text := truncate(r.ClinicianHandoff, maxSectionLen)
	if text == "" {
		text = "_No handoff available._"
	}

	return map[string]any{
		"type": "section",
		"text": map[string]any{
			"type": "mrkdwn",
			"text": fmt.Sprintf("*Clinician handoff*\n\n%s", text),
		},
	}
}

func contextBlock(rec *triage.Record) map[string]any {
	elements := []map[string]any{
		{
			"type": "mrkdwn",
			"text": fmt.Sprintf("clinicaflow • record %s • %s", rec.ID, rec.CreatedAt.UTC().Format("2006-01-02 15:04 UTC")),
		},
	}

	return map[string]any{
		"type":     "context",
		"elements": elements,
	}
}

func tierEmoji(tier triage.Tier) string {
	switch tier {
	case triage.TierCritical:
		return "\U0001f534" // red circle
	case triage.TierUrgent:
		return "\U0001f7e1" // yellow circle
	default:
		return "\U0001f7e2" // green circle
	}
}

func truncate(s string, limit int) string {
	if len(s) <= limit {
		return s
	}
	return s[:limit-3] + "..."
}
