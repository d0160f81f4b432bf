package openai

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log"
	"strings"

	"github.com/invopop/jsonschema"
	"github.com/openai/openai-go"
	"github.com/openai/openai-go/option"
)

// Commands the interpreter may return
const (
	CommandGetCycleStatus = "GetCycleStatus"
	CommandListCycles     = "ListCycles"
	CommandGeneralQuery   = "GeneralQuery"
)

// AgentResponse is the structured output of the query interpreter
type AgentResponse struct {
	CommandName string `json:"command_name" jsonschema_description:"The command to execute: GetCycleStatus, ListCycles or GeneralQuery"`
	Cycle       string `json:"cycle" jsonschema_description:"The forecast cycle as YYYYMMDDHH when the user asks about a specific one, otherwise empty"`
	UserMessage string `json:"user_message" jsonschema_description:"A short message to show back to the user in their original language"`
}

// OpenAIService interprets free-text questions about forecast cycles
type OpenAIService interface {
	InterpretUserQuery(ctx context.Context, userMessage string, recentCycles []string) (*AgentResponse, error)
}

type openAIServiceImpl struct {
	client openai.Client
	schema interface{}
}

// GenerateSchema generates a JSON schema for a given type.
func GenerateSchema[T any]() interface{} {
	reflector := jsonschema.Reflector{
		AllowAdditionalProperties: false,
		DoNotReference:            true,
	}
	var v T
	schema := reflector.Reflect(v)
	return schema
}

// NewOpenAIService creates the interpreter for the given API key
func NewOpenAIService(apiKey string) (OpenAIService, error) {
	if apiKey == "" {
		return nil, errors.New("OpenAI API key not configured")
	}
	client := openai.NewClient(option.WithAPIKey(apiKey))
	return &openAIServiceImpl{
		client: client,
		schema: GenerateSchema[AgentResponse](),
	}, nil
}

// SystemPrompt describes the assistant and the known cycles
func SystemPrompt(recentCycles []string) string {
	known := "none yet"
	if len(recentCycles) > 0 {
		known = strings.Join(recentCycles, ", ")
	}
	return fmt.Sprintf(`You are the operator assistant of a storm surge forecast system for the Bay of Bengal.
Each forecast cycle is identified by its initialization time written as YYYYMMDDHH (UTC), cycles run every 6 hours.

Recent cycles: %s

Behavior:
1. If the user asks about one specific cycle (a date, a date and hour, "today's 06z run", "the last run"):
   - command_name = "GetCycleStatus"
   - cycle = the matching cycle as YYYYMMDDHH, picked from the recent cycles when the request is relative; empty if it cannot be determined.
   - user_message: a one line confirmation in the user's language.
2. If the user asks which forecasts exist or for a history of runs:
   - command_name = "ListCycles", cycle = "".
3. Anything else:
   - command_name = "GeneralQuery", cycle = ""
   - user_message: a short helpful reply in the user's language mentioning /status and /cycles.

Output strictly in JSON.`, known)
}

// InterpretUserQuery sends a message to the model and returns the structured response
func (s *openAIServiceImpl) InterpretUserQuery(ctx context.Context, userMessage string, recentCycles []string) (*AgentResponse, error) {
	schemaParam := openai.ResponseFormatJSONSchemaJSONSchemaParam{
		Name:        "agent_response",
		Description: openai.String("Structured response containing command, cycle and user message"),
		Schema:      s.schema,
		Strict:      openai.Bool(true),
	}

	respFormat := openai.ChatCompletionNewParamsResponseFormatUnion{
		OfJSONSchema: &openai.ResponseFormatJSONSchemaParam{JSONSchema: schemaParam},
	}

	chat, err := s.client.Chat.Completions.New(ctx, openai.ChatCompletionNewParams{
		Messages: []openai.ChatCompletionMessageParamUnion{
			openai.SystemMessage(SystemPrompt(recentCycles)),
			openai.UserMessage(userMessage),
		},
		ResponseFormat: respFormat,
		Model:          openai.ChatModelGPT4o,
	})
	if err != nil {
		return nil, fmt.Errorf("error calling OpenAI API: %w", err)
	}

	if len(chat.Choices) == 0 || chat.Choices[0].Message.Content == "" {
		return nil, errors.New("received empty response from OpenAI")
	}
	return ParseAgentResponse(chat.Choices[0].Message.Content)
}

// ParseAgentResponse decodes the model output
func ParseAgentResponse(content string) (*AgentResponse, error) {
	var agentResp AgentResponse
	if err := json.Unmarshal([]byte(content), &agentResp); err != nil {
		log.Printf("Failed to unmarshal OpenAI response: %s\nRaw response: %s", err, content)
		return nil, fmt.Errorf("error unmarshalling OpenAI response: %w", err)
	}
	return &agentResp, nil
}
