package processor

import (
	"encoding/json"
	"errors"
	"fmt"
	"strings"

	"callgist/internal/store"
)

// ErrSchemaValidation marks an analysis response that does not match the
// expected insight schema. A record is never completed with defaulted fields.
var ErrSchemaValidation = errors.New("analysis response failed schema validation")

// Insights is the validated analysis bundle extracted from a transcript
type Insights struct {
	Summary          []string `json:"summary"`
	Sentiment        string   `json:"sentiment"`
	Category         string   `json:"category"`
	ActionItems      []string `json:"action_items"`
	CustomerRequests []string `json:"customer_requests"`
	ResolutionStatus string   `json:"resolution_status"`
	Priority         string   `json:"priority"`
	Tags             []string `json:"tags"`
	AgentPerformance string   `json:"agent_performance"`
	FollowUpRequired bool     `json:"follow_up_required"`
}

var validSentiments = map[string]struct{}{
	store.SentimentPositive: {},
	store.SentimentNeutral:  {},
	store.SentimentNegative: {},
}

var validCategories = map[string]struct{}{
	store.CategoryBilling:        {},
	store.CategoryTechnical:      {},
	store.CategoryBundles:        {},
	store.CategoryComplaints:     {},
	store.CategoryGeneralInquiry: {},
	store.CategoryOther:          {},
}

var validResolutions = map[string]struct{}{
	store.ResolutionResolved:  {},
	store.ResolutionPending:   {},
	store.ResolutionEscalated: {},
}

var validPriorities = map[string]struct{}{
	store.PriorityHigh:   {},
	store.PriorityMedium: {},
	store.PriorityLow:    {},
}

// ParseInsights validates a raw model response against the insight schema.
// Every field is required; enum fields must carry a known value. Validation
// failures never fall back to defaults.
func ParseInsights(raw string) (Insights, error) {
	cleaned := stripCodeFence(raw)

	var payload struct {
		Summary          *[]string `json:"summary"`
		Sentiment        *string   `json:"sentiment"`
		Category         *string   `json:"category"`
		ActionItems      *[]string `json:"action_items"`
		CustomerRequests *[]string `json:"customer_requests"`
		ResolutionStatus *string   `json:"resolution_status"`
		Priority         *string   `json:"priority"`
		Tags             *[]string `json:"tags"`
		AgentPerformance *string   `json:"agent_performance"`
		FollowUpRequired *bool     `json:"follow_up_required"`
	}
	if err := json.Unmarshal([]byte(cleaned), &payload); err != nil {
		return Insights{}, fmt.Errorf("%w: %v", ErrSchemaValidation, err)
	}

	var missing []string
	requireField := func(name string, present bool) {
		if !present {
			missing = append(missing, name)
		}
	}
	requireField("summary", payload.Summary != nil)
	requireField("sentiment", payload.Sentiment != nil)
	requireField("category", payload.Category != nil)
	requireField("action_items", payload.ActionItems != nil)
	requireField("customer_requests", payload.CustomerRequests != nil)
	requireField("resolution_status", payload.ResolutionStatus != nil)
	requireField("priority", payload.Priority != nil)
	requireField("tags", payload.Tags != nil)
	requireField("agent_performance", payload.AgentPerformance != nil)
	requireField("follow_up_required", payload.FollowUpRequired != nil)
	if len(missing) > 0 {
		return Insights{}, fmt.Errorf("%w: missing fields %s", ErrSchemaValidation, strings.Join(missing, ", "))
	}

	sentiment, err := normalizeEnum("sentiment", *payload.Sentiment, validSentiments)
	if err != nil {
		return Insights{}, err
	}
	category, err := normalizeEnum("category", *payload.Category, validCategories)
	if err != nil {
		return Insights{}, err
	}
	resolution, err := normalizeEnum("resolution_status", *payload.ResolutionStatus, validResolutions)
	if err != nil {
		return Insights{}, err
	}
	priority, err := normalizeEnum("priority", *payload.Priority, validPriorities)
	if err != nil {
		return Insights{}, err
	}

	if len(*payload.Summary) == 0 {
		return Insights{}, fmt.Errorf("%w: summary is empty", ErrSchemaValidation)
	}

	return Insights{
		Summary:          *payload.Summary,
		Sentiment:        sentiment,
		Category:         category,
		ActionItems:      *payload.ActionItems,
		CustomerRequests: *payload.CustomerRequests,
		ResolutionStatus: resolution,
		Priority:         priority,
		Tags:             *payload.Tags,
		AgentPerformance: *payload.AgentPerformance,
		FollowUpRequired: *payload.FollowUpRequired,
	}, nil
}

// normalizeEnum lowercases and trims an enum value, then checks membership
func normalizeEnum(field, value string, valid map[string]struct{}) (string, error) {
	normalized := strings.ToLower(strings.TrimSpace(value))
	if _, ok := valid[normalized]; !ok {
		return "", fmt.Errorf("%w: invalid %s %q", ErrSchemaValidation, field, value)
	}
	return normalized, nil
}

// stripCodeFence removes a surrounding markdown code fence from a model
// response, with or without a language tag
func stripCodeFence(raw string) string {
	trimmed := strings.TrimSpace(raw)
	if !strings.HasPrefix(trimmed, "```") {
		return trimmed
	}
	trimmed = strings.TrimPrefix(trimmed, "```")
	if idx := strings.Index(trimmed, "\n"); idx >= 0 {
		trimmed = trimmed[idx+1:]
	}
	trimmed = strings.TrimSuffix(strings.TrimSpace(trimmed), "```")
	return strings.TrimSpace(trimmed)
}
