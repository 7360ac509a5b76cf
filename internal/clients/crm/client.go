package crm

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	"callgist/internal/observability"
	"callgist/internal/store"

	"github.com/google/uuid"
)

// Client delivers completed call records to an external CRM system over a
// webhook. Delivery is fire-and-forget: callers log failures and move on.
type Client struct {
	provider   string
	webhookURL string
	logger     *observability.Logger
	httpClient *http.Client
}

// NewClient creates a new CRM notifier client
func NewClient(provider, webhookURL string, logger *observability.Logger) *Client {
	return &Client{
		provider:   provider,
		webhookURL: webhookURL,
		logger:     logger,
		httpClient: &http.Client{
			Timeout: 10 * time.Second,
		},
	}
}

// SyncPayload is the record summary pushed to the CRM system
type SyncPayload struct {
	ID               string   `json:"id"`
	Provider         string   `json:"provider"`
	CallID           string   `json:"call_id"`
	Summary          []string `json:"summary"`
	Sentiment        string   `json:"sentiment"`
	Category         string   `json:"category"`
	Priority         string   `json:"priority"`
	ResolutionStatus string   `json:"resolution_status"`
	FollowUpRequired bool     `json:"follow_up_required"`
	SyncedAt         string   `json:"synced_at"`
}

// Notify pushes a completed call record to the configured CRM webhook. A blank
// webhook URL disables delivery.
func (c *Client) Notify(ctx context.Context, record store.CallRecord) error {
	if c.webhookURL == "" {
		c.logger.Debug(ctx, "CRM webhook not configured, skipping sync")
		return nil
	}

	payload := SyncPayload{
		ID:       uuid.New().String(),
		Provider: c.provider,
		CallID:   record.CallID,
		Summary:  record.Summary,
		SyncedAt: time.Now().UTC().Format(time.RFC3339),
	}
	if record.Sentiment != nil {
		payload.Sentiment = *record.Sentiment
	}
	if record.Category != nil {
		payload.Category = *record.Category
	}
	if record.Priority != nil {
		payload.Priority = *record.Priority
	}
	if record.ResolutionStatus != nil {
		payload.ResolutionStatus = *record.ResolutionStatus
	}
	if record.FollowUpRequired != nil {
		payload.FollowUpRequired = *record.FollowUpRequired
	}

	body, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("failed to marshal CRM payload: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.webhookURL, bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("failed to build CRM request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("X-CRM-Provider", c.provider)

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("CRM delivery failed: %w", err)
	}
	defer resp.Body.Close()
	io.Copy(io.Discard, resp.Body)

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return fmt.Errorf("CRM delivery returned status %d", resp.StatusCode)
	}

	c.logger.Info(observability.WithFields(ctx,
		observability.Field{Key: "call_id", Value: record.CallID},
		observability.Field{Key: "crm_provider", Value: c.provider}),
		"Call record synced to CRM")
	return nil
}
