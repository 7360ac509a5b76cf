package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"
)

// ErrRecordTerminal is returned when an update targets a record that already
// reached completed or failed. Terminal records are immutable.
var ErrRecordTerminal = errors.New("call record already terminal")

// CreateCallRecordParams represents parameters for creating a call record.
// Metadata carries free-form submission context, such as the capture source.
type CreateCallRecordParams struct {
	CallID        string
	AudioFilename *string
	AudioFormat   *string
	Metadata      JSONB
}

const sqlCreateCallRecord = `
INSERT INTO calls (call_id, status, audio_filename, audio_format, metadata)
VALUES ($1, $2, $3, $4, $5)
RETURNING id, call_id, status, created_at, processed_at, audio_filename, audio_format, audio_duration,
          transcript, summary, sentiment, category, priority, resolution_status, tags, action_items,
          customer_requests, agent_performance, follow_up_required, error_detail, metadata
`

// CreateCallRecord creates a new call record in the processing state
func (s *Store) CreateCallRecord(ctx context.Context, params CreateCallRecordParams) (CallRecord, error) {
	var record CallRecord
	err := s.db.GetContext(ctx, &record, sqlCreateCallRecord,
		params.CallID,
		CallStatusProcessing,
		params.AudioFilename,
		params.AudioFormat,
		params.Metadata)
	if err != nil {
		s.logger.Error(ctx, "failed to create call record", err)
		return CallRecord{}, fmt.Errorf("failed to create call record: %w", err)
	}
	return record, nil
}

const sqlGetCallRecord = `
SELECT id, call_id, status, created_at, processed_at, audio_filename, audio_format, audio_duration,
       transcript, summary, sentiment, category, priority, resolution_status, tags, action_items,
       customer_requests, agent_performance, follow_up_required, error_detail, metadata
FROM calls
WHERE call_id = $1
`

// GetCallRecord retrieves a call record by its call id
func (s *Store) GetCallRecord(ctx context.Context, callID string) (CallRecord, error) {
	var record CallRecord
	err := s.db.GetContext(ctx, &record, sqlGetCallRecord, callID)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return CallRecord{}, ErrNotFound
		}
		s.logger.Error(ctx, "failed to get call record", err)
		return CallRecord{}, fmt.Errorf("failed to get call record: %w", err)
	}
	return record, nil
}

const sqlSetCallTranscript = `
UPDATE calls
SET transcript = $2, audio_duration = $3
WHERE call_id = $1 AND status = $4 AND transcript IS NULL
`

// SetCallTranscript writes the transcript for an in-flight record. A transcript,
// once written, is never overwritten.
func (s *Store) SetCallTranscript(ctx context.Context, callID, transcript string, duration *float64) error {
	res, err := s.db.ExecContext(ctx, sqlSetCallTranscript, callID, transcript, duration, CallStatusProcessing)
	if err != nil {
		s.logger.Error(ctx, "failed to set call transcript", err)
		return fmt.Errorf("failed to set call transcript: %w", err)
	}
	rows, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to set call transcript: %w", err)
	}
	if rows == 0 {
		return s.classifyMissedUpdate(ctx, callID)
	}
	return nil
}

// CompleteCallRecordParams carries the full analysis bundle written at completion
type CompleteCallRecordParams struct {
	Summary          []string
	Sentiment        string
	Category         string
	Priority         string
	ResolutionStatus string
	Tags             []string
	ActionItems      []string
	CustomerRequests []string
	AgentPerformance string
	FollowUpRequired bool
}

const sqlCompleteCallRecord = `
UPDATE calls
SET status = $2, processed_at = $3, summary = $4, sentiment = $5, category = $6, priority = $7,
    resolution_status = $8, tags = $9, action_items = $10, customer_requests = $11,
    agent_performance = $12, follow_up_required = $13
WHERE call_id = $1 AND status = $14
`

// CompleteCallRecord transitions a processing record to completed with its
// analysis bundle. The status guard makes terminal states immutable.
func (s *Store) CompleteCallRecord(ctx context.Context, callID string, params CompleteCallRecordParams) error {
	res, err := s.db.ExecContext(ctx, sqlCompleteCallRecord,
		callID,
		CallStatusCompleted,
		time.Now().UTC(),
		StringArray(params.Summary),
		params.Sentiment,
		params.Category,
		params.Priority,
		params.ResolutionStatus,
		StringArray(params.Tags),
		StringArray(params.ActionItems),
		StringArray(params.CustomerRequests),
		params.AgentPerformance,
		params.FollowUpRequired,
		CallStatusProcessing)
	if err != nil {
		s.logger.Error(ctx, "failed to complete call record", err)
		return fmt.Errorf("failed to complete call record: %w", err)
	}
	rows, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to complete call record: %w", err)
	}
	if rows == 0 {
		return s.classifyMissedUpdate(ctx, callID)
	}
	return nil
}

const sqlFailCallRecord = `
UPDATE calls
SET status = $2, processed_at = $3, error_detail = $4
WHERE call_id = $1 AND status = $5
`

// FailCallRecord transitions a processing record to failed with a
// human-readable cause
func (s *Store) FailCallRecord(ctx context.Context, callID, errorDetail string) error {
	res, err := s.db.ExecContext(ctx, sqlFailCallRecord,
		callID, CallStatusFailed, time.Now().UTC(), errorDetail, CallStatusProcessing)
	if err != nil {
		s.logger.Error(ctx, "failed to fail call record", err)
		return fmt.Errorf("failed to fail call record: %w", err)
	}
	rows, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to fail call record: %w", err)
	}
	if rows == 0 {
		return s.classifyMissedUpdate(ctx, callID)
	}
	return nil
}

// classifyMissedUpdate distinguishes an unknown call id from a terminal record
// when a status-guarded update matched no rows.
func (s *Store) classifyMissedUpdate(ctx context.Context, callID string) error {
	record, err := s.GetCallRecord(ctx, callID)
	if err != nil {
		return err
	}
	if record.IsTerminal() {
		return ErrRecordTerminal
	}
	return ErrNotFound
}

// SearchCallsParams represents filters for searching call records
type SearchCallsParams struct {
	Category         *string
	Sentiment        *string
	Priority         *string
	ResolutionStatus *string
	DateFrom         *time.Time
	DateTo           *time.Time
	Tags             []string
	SearchText       *string
	Page             int
	PerPage          int
}

const sqlSearchCallsSelect = `
SELECT id, call_id, status, created_at, processed_at, audio_filename, audio_format, audio_duration,
       transcript, summary, sentiment, category, priority, resolution_status, tags, action_items,
       customer_requests, agent_performance, follow_up_required, error_detail, metadata
FROM calls`

// buildSearchFilter assembles the WHERE clause and ordered args for a search
func buildSearchFilter(params SearchCallsParams) (string, []interface{}) {
	var conditions []string
	var args []interface{}

	addCondition := func(condition string, value interface{}) {
		args = append(args, value)
		conditions = append(conditions, fmt.Sprintf(condition, len(args)))
	}

	if params.Category != nil {
		addCondition("category = $%d", *params.Category)
	}
	if params.Sentiment != nil {
		addCondition("sentiment = $%d", *params.Sentiment)
	}
	if params.Priority != nil {
		addCondition("priority = $%d", *params.Priority)
	}
	if params.ResolutionStatus != nil {
		addCondition("resolution_status = $%d", *params.ResolutionStatus)
	}
	if params.DateFrom != nil {
		addCondition("created_at >= $%d", *params.DateFrom)
	}
	if params.DateTo != nil {
		addCondition("created_at <= $%d", *params.DateTo)
	}
	if len(params.Tags) > 0 {
		addCondition("tags && $%d", StringArray(params.Tags))
	}
	if params.SearchText != nil && *params.SearchText != "" {
		args = append(args, "%"+*params.SearchText+"%")
		conditions = append(conditions, fmt.Sprintf(
			"(transcript ILIKE $%d OR agent_performance ILIKE $%d)", len(args), len(args)))
	}

	if len(conditions) == 0 {
		return "", args
	}
	return " WHERE " + strings.Join(conditions, " AND "), args
}

// SearchCallRecords returns a page of call records matching the filters and the
// total match count
func (s *Store) SearchCallRecords(ctx context.Context, params SearchCallsParams) ([]CallRecord, int, error) {
	if params.Page < 1 {
		params.Page = 1
	}
	if params.PerPage < 1 {
		params.PerPage = 20
	}

	where, args := buildSearchFilter(params)

	var total int
	err := s.db.GetContext(ctx, &total, "SELECT COUNT(*) FROM calls"+where, args...)
	if err != nil {
		s.logger.Error(ctx, "failed to count call records", err)
		return nil, 0, fmt.Errorf("failed to count call records: %w", err)
	}

	query := fmt.Sprintf("%s%s ORDER BY created_at DESC LIMIT $%d OFFSET $%d",
		sqlSearchCallsSelect, where, len(args)+1, len(args)+2)
	args = append(args, params.PerPage, (params.Page-1)*params.PerPage)

	records := []CallRecord{}
	err = s.db.SelectContext(ctx, &records, query, args...)
	if err != nil {
		s.logger.Error(ctx, "failed to search call records", err)
		return nil, 0, fmt.Errorf("failed to search call records: %w", err)
	}

	return records, total, nil
}

// DashboardAnalytics aggregates call metrics over a date range
type DashboardAnalytics struct {
	TotalCalls         int            `json:"total_calls"`
	CategoryBreakdown  map[string]int `json:"category_breakdown"`
	SentimentBreakdown map[string]int `json:"sentiment_breakdown"`
	ResolutionRate     float64        `json:"resolution_rate"`
	FollowUpRate       float64        `json:"follow_up_rate"`
}

const sqlDashboardBreakdown = `
SELECT category, sentiment, resolution_status, follow_up_required
FROM calls
WHERE status = $1 AND created_at BETWEEN $2 AND $3
`

// GetDashboardAnalytics computes category/sentiment breakdowns and resolution
// rates for completed calls in the given window
func (s *Store) GetDashboardAnalytics(ctx context.Context, from, to time.Time) (DashboardAnalytics, error) {
	rows := []struct {
		Category         *string `db:"category"`
		Sentiment        *string `db:"sentiment"`
		ResolutionStatus *string `db:"resolution_status"`
		FollowUpRequired *bool   `db:"follow_up_required"`
	}{}
	err := s.db.SelectContext(ctx, &rows, sqlDashboardBreakdown, CallStatusCompleted, from, to)
	if err != nil {
		s.logger.Error(ctx, "failed to load dashboard analytics", err)
		return DashboardAnalytics{}, fmt.Errorf("failed to load dashboard analytics: %w", err)
	}

	analytics := DashboardAnalytics{
		TotalCalls:         len(rows),
		CategoryBreakdown:  make(map[string]int),
		SentimentBreakdown: make(map[string]int),
	}

	resolved := 0
	followUps := 0
	for _, row := range rows {
		if row.Category != nil {
			analytics.CategoryBreakdown[*row.Category]++
		}
		if row.Sentiment != nil {
			analytics.SentimentBreakdown[*row.Sentiment]++
		}
		if row.ResolutionStatus != nil && *row.ResolutionStatus == ResolutionResolved {
			resolved++
		}
		if row.FollowUpRequired != nil && *row.FollowUpRequired {
			followUps++
		}
	}

	if len(rows) > 0 {
		analytics.ResolutionRate = float64(resolved) / float64(len(rows))
		analytics.FollowUpRate = float64(followUps) / float64(len(rows))
	}

	return analytics, nil
}
