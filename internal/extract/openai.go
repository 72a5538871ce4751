package extract

import (
	"context"
	"encoding/json"
	"strings"

	"github.com/openai/openai-go"
	"github.com/openai/openai-go/option"

	"concierge-automation/internal/common/errors"
)

const extractionPrompt = `You extract calendar event details from text.
Respond with a single JSON object and nothing else, using these fields:
  title (string, required)
  description (string, optional)
  location (string, optional)
  duration_minutes (integer, optional, default 60)
  attendees (array of email strings, optional)
  preferred_start (RFC 3339 timestamp, optional)
If the text does not describe anything schedulable, respond with {"title": ""}.`

// OpenAIExtractor asks a chat completion model for structured event details.
type OpenAIExtractor struct {
	client openai.Client
	model  openai.ChatModel
}

func NewOpenAIExtractor(apiKey, model string) *OpenAIExtractor {
	if model == "" {
		model = string(openai.ChatModelGPT4oMini)
	}
	return &OpenAIExtractor{
		client: openai.NewClient(option.WithAPIKey(apiKey)),
		model:  openai.ChatModel(model),
	}
}

func (e *OpenAIExtractor) Extract(ctx context.Context, text string) (*EventDetails, error) {
	completion, err := e.client.Chat.Completions.New(ctx, openai.ChatCompletionNewParams{
		Model: e.model,
		Messages: []openai.ChatCompletionMessageParamUnion{
			openai.SystemMessage(extractionPrompt),
			openai.UserMessage(text),
		},
	})
	if err != nil {
		return nil, errors.ExtractionError("completion request failed", err)
	}
	if len(completion.Choices) == 0 {
		return nil, errors.ExtractionError("completion returned no choices", nil)
	}

	details, err := parseDetailsJSON(completion.Choices[0].Message.Content)
	if err != nil {
		return nil, err
	}
	if details.Title == "" {
		return nil, errors.ExtractionError("no schedulable event found in text", nil)
	}
	return details, nil
}

// parseDetailsJSON decodes the model response, tolerating a markdown code
// fence around the JSON object.
func parseDetailsJSON(content string) (*EventDetails, error) {
	content = strings.TrimSpace(content)
	if strings.HasPrefix(content, "```") {
		content = strings.TrimPrefix(content, "```json")
		content = strings.TrimPrefix(content, "```")
		content = strings.TrimSuffix(strings.TrimSpace(content), "```")
		content = strings.TrimSpace(content)
	}

	var details EventDetails
	if err := json.Unmarshal([]byte(content), &details); err != nil {
		return nil, errors.ExtractionError("failed to decode extraction response", err)
	}
	return &details, nil
}
