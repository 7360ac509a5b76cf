package openai

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"strings"

	"callgist/internal/observability"

	"github.com/openai/openai-go"
	openaiOption "github.com/openai/openai-go/option"
)

const analysisModel = openai.ChatModelGPT4o

// Client wraps the OpenAI transcription and text-analysis capabilities
type Client struct {
	client *openai.Client
	logger *observability.Logger
}

// NewClient creates a new OpenAI client
func NewClient(apiKey string, logger *observability.Logger) *Client {
	client := openai.NewClient(
		openaiOption.WithAPIKey(apiKey),
	)
	return &Client{
		client: &client,
		logger: logger,
	}
}

// TranscriptionResult is the outcome of a transcription call
type TranscriptionResult struct {
	Text     string
	Duration float64
}

// Transcribe sends audio bytes to the Whisper API and returns the transcript
// with its duration in seconds.
func (c *Client) Transcribe(ctx context.Context, audio []byte, filename string) (TranscriptionResult, error) {
	file := openai.File(bytes.NewReader(audio), filename, contentTypeFor(filename))
	params := openai.AudioTranscriptionNewParams{
		Model:          openai.AudioModelWhisper1,
		File:           file,
		ResponseFormat: openai.AudioResponseFormatVerboseJSON,
	}
	resp, err := c.client.Audio.Transcriptions.New(ctx, params)
	if err != nil {
		return TranscriptionResult{}, fmt.Errorf("transcription request failed: %w", err)
	}

	result := TranscriptionResult{Text: strings.TrimSpace(resp.Text)}

	// Verbose responses carry the audio duration alongside the text.
	var verbose struct {
		Duration float64 `json:"duration"`
	}
	if err := json.Unmarshal([]byte(resp.RawJSON()), &verbose); err == nil {
		result.Duration = verbose.Duration
	}

	return result, nil
}

// Analyze asks the chat model for structured call-center insights over a
// sanitized transcript and returns the raw response text for validation.
func (c *Client) Analyze(ctx context.Context, transcript string) (string, error) {
	prompt := fmt.Sprintf(`
You are analyzing a customer service call from a Zimbabwe call center. Extract actionable insights for call center optimization.

CALL TRANSCRIPT (sanitized for privacy):
%s

Provide a JSON response with the following Zimbabwe call center insights:

1. "summary": 3-bullet summary of key discussion points
2. "sentiment": "positive", "neutral", or "negative"
3. "category": Classify the call type - "billing", "technical", "bundles", "complaints", "general_inquiry", or "other"
4. "action_items": Specific follow-up actions needed by call center agents
5. "customer_requests": What the customer specifically asked for
6. "resolution_status": "resolved", "pending", or "escalated"
7. "priority": "high", "medium", or "low" based on urgency
8. "tags": Array of searchable tags (e.g., ["data_bundle", "payment_issue", "network_problem"])
9. "agent_performance": Brief assessment of agent handling
10. "follow_up_required": true/false if customer needs callback

Focus on insights that help Zimbabwe call centers improve service delivery and customer satisfaction.
IMPORTANT: Respond ONLY with valid JSON. Do not include any explanatory text before or after the JSON.
`, transcript)

	resp, err := c.client.Chat.Completions.New(ctx, openai.ChatCompletionNewParams{
		Model: analysisModel,
		Messages: []openai.ChatCompletionMessageParamUnion{
			openai.UserMessage(prompt),
		},
		Temperature: openai.Float(0.2),
	})
	if err != nil {
		return "", fmt.Errorf("analysis request failed: %w", err)
	}
	if len(resp.Choices) == 0 {
		return "", fmt.Errorf("analysis returned no choices")
	}
	return resp.Choices[0].Message.Content, nil
}

// contentTypeFor maps an audio filename to its MIME type for the upload
func contentTypeFor(filename string) string {
	idx := strings.LastIndex(filename, ".")
	if idx < 0 {
		return "application/octet-stream"
	}
	switch strings.ToLower(filename[idx:]) {
	case ".mp3":
		return "audio/mpeg"
	case ".wav":
		return "audio/wav"
	case ".webm":
		return "audio/webm"
	case ".m4a":
		return "audio/mp4"
	case ".opus":
		return "audio/ogg"
	default:
		return "application/octet-stream"
	}
}
