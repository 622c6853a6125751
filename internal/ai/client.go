package ai

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/sashabaranov/go-openai"
)

type Client struct {
	client *openai.Client
	model  string
}

func New(apiKey, baseURL, model string) *Client {
	config := openai.DefaultConfig(apiKey)
	config.BaseURL = baseURL

	return &Client{
		client: openai.NewClientWithConfig(config),
		model:  model,
	}
}

func (c *Client) SetModel(model string) {
	c.model = model
}

// ExtractedEvent is one event the model found in a message. Date and
// times come back as strings ("2006-01-02", "15:04"); the caller resolves
// them against the reference instant.
type ExtractedEvent struct {
	Name        string `json:"name"`
	Date        string `json:"date"`
	Time        string `json:"time"`
	EndTime     string `json:"end_time"`
	Description string `json:"description"`
}

type eventList struct {
	Events []ExtractedEvent `json:"events"`
}

var eventSchema = json.RawMessage(`{
	"type": "object",
	"properties": {
		"events": {
			"type": "array",
			"items": {
				"type": "object",
				"properties": {
					"name": {
						"type": "string",
						"description": "Short label for the event"
					},
					"date": {
						"type": "string",
						"description": "Event date as YYYY-MM-DD, empty if unknown"
					},
					"time": {
						"type": "string",
						"description": "Start time as HH:MM in 24-hour format, empty if unknown"
					},
					"end_time": {
						"type": "string",
						"description": "End time as HH:MM in 24-hour format, empty if unknown"
					},
					"description": {
						"type": "string",
						"description": "Short context for the event, empty if none"
					}
				},
				"required": ["name", "date", "time", "end_time", "description"],
				"additionalProperties": false
			}
		}
	},
	"required": ["events"],
	"additionalProperties": false
}`)

const extractPromptTemplate = `Extract any scheduled events, meetings, or appointments from the user message.

Rules:
- Current date and time for the user is: %s
- If a time is mentioned without a date and that time is LATER TODAY (still in the future compared to the current time above), use TODAY's date. Do NOT assume tomorrow unless the time has already passed today.
- Resolve relative references (tomorrow, Friday, next week) to absolute dates.
- If no events are found, return an empty events array.
- Times are 24-hour HH:MM; leave unknown fields empty.`

// ExtractEvents asks the model for structured events mentioned in the
// message. The reference time must already be in the user's local
// calendar.
func (c *Client) ExtractEvents(ctx context.Context, message string, reference time.Time) ([]ExtractedEvent, error) {
	system := fmt.Sprintf(extractPromptTemplate, reference.Format("2006-01-02 15:04 (Monday)"))

	resp, err := c.client.CreateChatCompletion(ctx, openai.ChatCompletionRequest{
		Model: c.model,
		Messages: []openai.ChatCompletionMessage{
			{
				Role:    openai.ChatMessageRoleSystem,
				Content: system,
			},
			{
				Role:    openai.ChatMessageRoleUser,
				Content: message,
			},
		},
		ResponseFormat: &openai.ChatCompletionResponseFormat{
			Type: openai.ChatCompletionResponseFormatTypeJSONSchema,
			JSONSchema: &openai.ChatCompletionResponseFormatJSONSchema{
				Name:   "events",
				Schema: eventSchema,
				Strict: true,
			},
		},
		Temperature: 0.1,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to call AI API: %w", err)
	}

	if len(resp.Choices) == 0 {
		return nil, fmt.Errorf("no response from AI")
	}

	var list eventList
	if err := json.Unmarshal([]byte(resp.Choices[0].Message.Content), &list); err != nil {
		return nil, fmt.Errorf("failed to parse AI response: %w", err)
	}

	return list.Events, nil
}
