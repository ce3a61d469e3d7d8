package chat

import (
	"context"
	"fmt"

	"google.golang.org/genai"
)

// Gemini generates content through the Gemini API.
type Gemini struct {
	client *genai.Client
}

// NewGemini creates a Gemini generator from an API key.
func NewGemini(ctx context.Context, apiKey string) (*Gemini, error) {
	client, err := genai.NewClient(ctx, &genai.ClientConfig{
		APIKey:  apiKey,
		Backend: genai.BackendGeminiAPI,
	})
	if err != nil {
		return nil, fmt.Errorf("creating gemini client: %w", err)
	}
	return &Gemini{client: client}, nil
}

// Generate streams one round of model output, emitting text chunks as
// they arrive and collecting any function calls.
func (g *Gemini) Generate(ctx context.Context, model string, turns []Turn, tools []ToolDef, emit func(string)) (*Reply, error) {
	contents := toContents(turns)
	config := &genai.GenerateContentConfig{}
	if len(tools) > 0 {
		config.Tools = []*genai.Tool{{FunctionDeclarations: toDeclarations(tools)}}
	}

	reply := &Reply{}
	for resp, err := range g.client.Models.GenerateContentStream(ctx, model, contents, config) {
		if err != nil {
			return nil, fmt.Errorf("generating content: %w", err)
		}
		if len(resp.Candidates) == 0 || resp.Candidates[0].Content == nil {
			continue
		}
		for _, part := range resp.Candidates[0].Content.Parts {
			if part.Text != "" {
				reply.Text += part.Text
				if emit != nil {
					emit(part.Text)
				}
			}
			if part.FunctionCall != nil {
				reply.Calls = append(reply.Calls, ToolCall{
					Name: part.FunctionCall.Name,
					Args: part.FunctionCall.Args,
				})
			}
		}
	}
	return reply, nil
}

func toContents(turns []Turn) []*genai.Content {
	contents := make([]*genai.Content, 0, len(turns))
	for _, turn := range turns {
		role := genai.RoleUser
		if turn.Role == RoleModel {
			role = genai.RoleModel
		}
		switch {
		case turn.Call != nil:
			contents = append(contents, &genai.Content{
				Role: genai.RoleModel,
				Parts: []*genai.Part{{FunctionCall: &genai.FunctionCall{
					Name: turn.Call.Name,
					Args: turn.Call.Args,
				}}},
			})
		case turn.CallResult != nil:
			contents = append(contents, &genai.Content{
				Role: genai.RoleUser,
				Parts: []*genai.Part{{FunctionResponse: &genai.FunctionResponse{
					Name: turn.CallResult.Name,
					Response: map[string]any{
						"output":  turn.CallResult.Content,
						"isError": turn.CallResult.IsError,
					},
				}}},
			})
		default:
			parts := []*genai.Part{{Text: turn.Text}}
			for _, img := range turn.Images {
				parts = append(parts, &genai.Part{InlineData: &genai.Blob{
					MIMEType: img.MIMEType,
					Data:     img.Data,
				}})
			}
			contents = append(contents, &genai.Content{Role: role, Parts: parts})
		}
	}
	return contents
}

func toDeclarations(tools []ToolDef) []*genai.FunctionDeclaration {
	decls := make([]*genai.FunctionDeclaration, 0, len(tools))
	for _, tool := range tools {
		decls = append(decls, &genai.FunctionDeclaration{
			Name:                 tool.Name,
			Description:          tool.Description,
			ParametersJsonSchema: tool.InputSchema,
		})
	}
	return decls
}
