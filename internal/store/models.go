package store

import (
	"database/sql/driver"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"
)

// JSONB is a custom type for JSONB fields
type JSONB map[string]interface{}

// Value implements the driver.Valuer interface for JSONB
func (j JSONB) Value() (driver.Value, error) {
	if j == nil {
		return nil, nil
	}
	return json.Marshal(j)
}

// Scan implements the sql.Scanner interface for JSONB
func (j *JSONB) Scan(value interface{}) error {
	if value == nil {
		*j = nil
		return nil
	}

	var bytes []byte
	switch v := value.(type) {
	case []byte:
		bytes = v
	case string:
		bytes = []byte(v)
	default:
		return errors.New("incompatible type for JSONB")
	}

	// Handle empty or null JSON
	if len(bytes) == 0 || string(bytes) == "null" {
		*j = make(JSONB)
		return nil
	}

	result := make(JSONB)
	err := json.Unmarshal(bytes, &result)
	if err != nil {
		return err
	}
	*j = result
	return nil
}

// StringArray is a custom type for PostgreSQL text[] arrays
type StringArray []string

// Value implements the driver.Valuer interface for StringArray. Elements are
// always quoted so values with spaces or commas survive the round trip.
func (a StringArray) Value() (driver.Value, error) {
	if len(a) == 0 {
		return "{}", nil
	}
	quoted := make([]string, len(a))
	for i, item := range a {
		item = strings.ReplaceAll(item, `\`, `\\`)
		item = strings.ReplaceAll(item, `"`, `\"`)
		quoted[i] = `"` + item + `"`
	}
	// PostgreSQL array format: {"item1","item2","item3"}
	return "{" + strings.Join(quoted, ",") + "}", nil
}

// Scan implements the sql.Scanner interface for StringArray
func (a *StringArray) Scan(value interface{}) error {
	if value == nil {
		*a = nil
		return nil
	}

	var str string
	switch v := value.(type) {
	case []byte:
		str = string(v)
	case string:
		str = v
	default:
		return fmt.Errorf("unsupported type for StringArray: %T", value)
	}

	str = strings.Trim(str, "{}")
	if str == "" {
		*a = []string{}
		return nil
	}

	var items []string
	var current strings.Builder
	inQuotes := false
	escaped := false
	for _, r := range str {
		switch {
		case escaped:
			current.WriteRune(r)
			escaped = false
		case r == '\\':
			escaped = true
		case r == '"':
			inQuotes = !inQuotes
		case r == ',' && !inQuotes:
			items = append(items, current.String())
			current.Reset()
		default:
			current.WriteRune(r)
		}
	}
	items = append(items, current.String())

	*a = items
	return nil
}

// CallRecord represents one audio submission or completed live session and its
// derived insight. Analysis fields are only populated when Status is completed.
type CallRecord struct {
	ID               int64       `db:"id" json:"-"`
	CallID           string      `db:"call_id" json:"call_id"`
	Status           string      `db:"status" json:"status"`
	CreatedAt        time.Time   `db:"created_at" json:"created_at"`
	ProcessedAt      *time.Time  `db:"processed_at" json:"processed_at,omitempty"`
	AudioFilename    *string     `db:"audio_filename" json:"audio_filename,omitempty"`
	AudioFormat      *string     `db:"audio_format" json:"audio_format,omitempty"`
	AudioDuration    *float64    `db:"audio_duration" json:"audio_duration,omitempty"`
	Transcript       *string     `db:"transcript" json:"transcript,omitempty"`
	Summary          StringArray `db:"summary" json:"summary,omitempty"`
	Sentiment        *string     `db:"sentiment" json:"sentiment,omitempty"`
	Category         *string     `db:"category" json:"category,omitempty"`
	Priority         *string     `db:"priority" json:"priority,omitempty"`
	ResolutionStatus *string     `db:"resolution_status" json:"resolution_status,omitempty"`
	Tags             StringArray `db:"tags" json:"tags,omitempty"`
	ActionItems      StringArray `db:"action_items" json:"action_items,omitempty"`
	CustomerRequests StringArray `db:"customer_requests" json:"customer_requests,omitempty"`
	AgentPerformance *string     `db:"agent_performance" json:"agent_performance,omitempty"`
	FollowUpRequired *bool       `db:"follow_up_required" json:"follow_up_required,omitempty"`
	ErrorDetail      *string     `db:"error_detail" json:"error_detail,omitempty"`
	Metadata         JSONB       `db:"metadata" json:"metadata,omitempty"`
}

// IsTerminal reports whether the record has reached completed or failed.
func (r CallRecord) IsTerminal() bool {
	return r.Status == CallStatusCompleted || r.Status == CallStatusFailed
}
