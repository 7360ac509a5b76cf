package store

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestBuildSearchFilter_NoFilters(t *testing.T) {
	where, args := buildSearchFilter(SearchCallsParams{})
	assert.Empty(t, where)
	assert.Empty(t, args)
}

func TestBuildSearchFilter_SingleFilter(t *testing.T) {
	category := "billing"
	where, args := buildSearchFilter(SearchCallsParams{Category: &category})
	assert.Equal(t, " WHERE category = $1", where)
	assert.Equal(t, []interface{}{"billing"}, args)
}

func TestBuildSearchFilter_CombinedFilters(t *testing.T) {
	category := "billing"
	sentiment := "negative"
	from := time.Date(2025, 1, 1, 0, 0, 0, 0, time.UTC)
	text := "bundle"

	where, args := buildSearchFilter(SearchCallsParams{
		Category:   &category,
		Sentiment:  &sentiment,
		DateFrom:   &from,
		Tags:       []string{"payment_issue"},
		SearchText: &text,
	})

	assert.Equal(t,
		" WHERE category = $1 AND sentiment = $2 AND created_at >= $3 AND tags && $4 AND (transcript ILIKE $5 OR agent_performance ILIKE $5)",
		where)
	assert.Len(t, args, 5)
	assert.Equal(t, "%bundle%", args[4])
	assert.Equal(t, StringArray{"payment_issue"}, args[3])
}

func TestBuildSearchFilter_EmptySearchTextIgnored(t *testing.T) {
	empty := ""
	where, args := buildSearchFilter(SearchCallsParams{SearchText: &empty})
	assert.Empty(t, where)
	assert.Empty(t, args)
}

func TestStringArrayValue(t *testing.T) {
	value, err := StringArray{"a", "b"}.Value()
	assert.NoError(t, err)
	assert.Equal(t, `{"a","b"}`, value)

	value, err = StringArray(nil).Value()
	assert.NoError(t, err)
	assert.Equal(t, "{}", value)
}

func TestStringArrayScan(t *testing.T) {
	var arr StringArray
	assert.NoError(t, arr.Scan([]byte(`{"a","b c"}`)))
	assert.Equal(t, StringArray{"a", "b c"}, arr)

	var empty StringArray
	assert.NoError(t, empty.Scan([]byte(`{}`)))
	assert.Empty(t, empty)

	var fromNil StringArray
	assert.NoError(t, fromNil.Scan(nil))
	assert.Nil(t, fromNil)
}

func TestStringArrayRoundTrip(t *testing.T) {
	original := StringArray{"data_bundle", "payment issue", "network"}
	value, err := original.Value()
	assert.NoError(t, err)

	var decoded StringArray
	assert.NoError(t, decoded.Scan([]byte(value.(string))))
	assert.Equal(t, original, decoded)
}

func TestJSONBValue(t *testing.T) {
	value, err := JSONB{"source": "upload"}.Value()
	assert.NoError(t, err)
	assert.JSONEq(t, `{"source":"upload"}`, string(value.([]byte)))

	value, err = JSONB(nil).Value()
	assert.NoError(t, err)
	assert.Nil(t, value)
}

func TestJSONBScan(t *testing.T) {
	var meta JSONB
	assert.NoError(t, meta.Scan([]byte(`{"source":"live_session","turn_count":3}`)))
	assert.Equal(t, "live_session", meta["source"])
	assert.Equal(t, float64(3), meta["turn_count"])

	var fromNil JSONB
	assert.NoError(t, fromNil.Scan(nil))
	assert.Nil(t, fromNil)

	var fromNull JSONB
	assert.NoError(t, fromNull.Scan([]byte("null")))
	assert.Empty(t, fromNull)

	var bad JSONB
	assert.Error(t, bad.Scan(42))
}

func TestCallRecordIsTerminal(t *testing.T) {
	assert.False(t, CallRecord{Status: CallStatusProcessing}.IsTerminal())
	assert.True(t, CallRecord{Status: CallStatusCompleted}.IsTerminal())
	assert.True(t, CallRecord{Status: CallStatusFailed}.IsTerminal())
}
