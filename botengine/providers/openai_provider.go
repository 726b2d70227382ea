package providers

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/openai/openai-go/v3"
	"github.com/openai/openai-go/v3/option"
	"github.com/sirupsen/logrus"
	"github.com/zapdesk/zapdesk/botengine"
)

// OpenAIProvider is the adapter for the OpenAI API
type OpenAIProvider struct {
	apiKey string
}

// NewOpenAIProvider creates a new OpenAI provider
func NewOpenAIProvider(apiKey string) *OpenAIProvider {
	return &OpenAIProvider{apiKey: apiKey}
}

// Chat implements the AIProvider interface for OpenAI
func (p *OpenAIProvider) Chat(ctx context.Context, req botengine.ChatRequest) (botengine.ChatResponse, error) {
	if p.apiKey == "" {
		return botengine.ChatResponse{}, fmt.Errorf("openai provider has no API key")
	}

	client := openai.NewClient(
		option.WithAPIKey(p.apiKey),
	)

	model := req.Model
	if model == "" {
		model = "gpt-4o-mini"
	}

	params := openai.ChatCompletionNewParams{
		Model: openai.ChatModel(model),
	}

	var messages []openai.ChatCompletionMessageParamUnion
	if req.SystemPrompt != "" {
		messages = append(messages, openai.SystemMessage(req.SystemPrompt))
	}
	for _, t := range req.History {
		if t.Role == "assistant" {
			messages = append(messages, openai.AssistantMessage(t.Text))
		} else {
			messages = append(messages, openai.UserMessage(t.Text))
		}
	}
	if req.UserText != "" {
		messages = append(messages, openai.UserMessage(req.UserText))
	}
	params.Messages = messages

	var tools []openai.ChatCompletionToolUnionParam
	for _, t := range req.Tools {
		tools = append(tools, openai.ChatCompletionToolUnionParam{
			OfFunction: &openai.ChatCompletionFunctionToolParam{
				Function: openai.FunctionDefinitionParam{
					Name:        t.Name,
					Description: openai.String(t.Description),
					Parameters:  openai.FunctionParameters(t.InputSchema),
				},
			},
		})
	}
	if len(tools) > 0 {
		params.Tools = tools
	}

	completion, err := client.Chat.Completions.New(ctx, params)
	if err != nil {
		return botengine.ChatResponse{}, err
	}
	if len(completion.Choices) == 0 {
		return botengine.ChatResponse{}, fmt.Errorf("no response from openai")
	}

	choice := completion.Choices[0]
	resp := botengine.ChatResponse{
		Text: choice.Message.Content,
	}
	for _, tc := range choice.Message.ToolCalls {
		var args map[string]any
		_ = json.Unmarshal([]byte(tc.Function.Arguments), &args)
		resp.ToolCalls = append(resp.ToolCalls, botengine.ToolCall{
			ID:   tc.ID,
			Name: tc.Function.Name,
			Args: args,
		})
	}

	logrus.WithFields(logrus.Fields{
		"chat_key":       req.ChatKey,
		"model":          model,
		"has_tool_calls": len(resp.ToolCalls) > 0,
	}).Debug("[OPENAI] Chat completed")

	return resp, nil
}
