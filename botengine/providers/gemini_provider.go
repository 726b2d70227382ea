package providers

import (
	"context"
	"fmt"

	"github.com/sirupsen/logrus"
	"github.com/zapdesk/zapdesk/botengine"
	"google.golang.org/genai"
)

// GeminiProvider is the adapter for the Google Gemini API
type GeminiProvider struct {
	apiKey string
}

// NewGeminiProvider creates a new Gemini provider
func NewGeminiProvider(apiKey string) *GeminiProvider {
	return &GeminiProvider{apiKey: apiKey}
}

// Chat implements the AIProvider interface for Gemini
func (p *GeminiProvider) Chat(ctx context.Context, req botengine.ChatRequest) (botengine.ChatResponse, error) {
	if p.apiKey == "" {
		return botengine.ChatResponse{}, fmt.Errorf("gemini provider has no API key")
	}

	client, err := genai.NewClient(ctx, &genai.ClientConfig{
		APIKey:  p.apiKey,
		Backend: genai.BackendGeminiAPI,
	})
	if err != nil {
		return botengine.ChatResponse{}, err
	}

	var genConfig *genai.GenerateContentConfig
	if req.SystemPrompt != "" {
		genConfig = &genai.GenerateContentConfig{
			SystemInstruction: genai.NewContentFromText(req.SystemPrompt, ""),
		}
	}

	var functionDecls []*genai.FunctionDeclaration
	for _, t := range req.Tools {
		functionDecls = append(functionDecls, &genai.FunctionDeclaration{
			Name:        t.Name,
			Description: t.Description,
			Parameters:  convertSchema(t.InputSchema),
		})
	}
	if len(functionDecls) > 0 {
		if genConfig == nil {
			genConfig = &genai.GenerateContentConfig{}
		}
		genConfig.Tools = []*genai.Tool{{FunctionDeclarations: functionDecls}}
	}

	var contents []*genai.Content
	for _, t := range req.History {
		role := genai.RoleUser
		if t.Role == "assistant" {
			role = genai.RoleModel
		}
		if t.Text == "" {
			continue
		}
		contents = append(contents, &genai.Content{
			Role:  role,
			Parts: []*genai.Part{{Text: t.Text}},
		})
	}
	if req.UserText != "" {
		contents = append(contents, &genai.Content{
			Role:  genai.RoleUser,
			Parts: []*genai.Part{{Text: req.UserText}},
		})
	}

	model := req.Model
	if model == "" {
		model = "gemini-2.0-flash"
	}

	result, err := client.Models.GenerateContent(ctx, model, contents, genConfig)
	if err != nil {
		return botengine.ChatResponse{}, err
	}
	if result == nil || len(result.Candidates) == 0 {
		return botengine.ChatResponse{}, fmt.Errorf("no response from gemini")
	}

	candidate := result.Candidates[0]

	var fullText string
	for _, part := range candidate.Content.Parts {
		if part.Text != "" {
			fullText += part.Text
		}
	}

	resp := botengine.ChatResponse{Text: fullText}
	for _, part := range candidate.Content.Parts {
		if part.FunctionCall != nil {
			resp.ToolCalls = append(resp.ToolCalls, botengine.ToolCall{
				ID:   part.FunctionCall.ID,
				Name: part.FunctionCall.Name,
				Args: part.FunctionCall.Args,
			})
		}
	}

	logrus.WithFields(logrus.Fields{
		"chat_key":       req.ChatKey,
		"model":          model,
		"has_tool_calls": len(resp.ToolCalls) > 0,
	}).Debug("[GEMINI] Chat completed")

	return resp, nil
}

// convertSchema maps a JSON-schema style map onto the genai Schema type.
// Only the subset the ticket tool uses is covered.
func convertSchema(schema map[string]any) *genai.Schema {
	if schema == nil {
		return nil
	}
	out := &genai.Schema{Type: genai.TypeObject}

	if props, ok := schema["properties"].(map[string]any); ok {
		out.Properties = make(map[string]*genai.Schema, len(props))
		for name, raw := range props {
			prop, ok := raw.(map[string]any)
			if !ok {
				continue
			}
			ps := &genai.Schema{Type: genai.TypeString}
			if desc, ok := prop["description"].(string); ok {
				ps.Description = desc
			}
			if enum, ok := prop["enum"].([]string); ok {
				ps.Enum = enum
			}
			out.Properties[name] = ps
		}
	}
	if required, ok := schema["required"].([]string); ok {
		out.Required = required
	}
	return out
}
