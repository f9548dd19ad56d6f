package enrich

import (
	"context"
	"fmt"
	"strings"

	"github.com/sashabaranov/go-openai"
	"github.com/tmc/langchaingo/llms"
	"github.com/tmc/langchaingo/llms/ollama"
	"google.golang.org/genai"
)

// Default models per provider.
const (
	DefaultOpenAIModel = "gpt-4o-mini"
	DefaultGeminiModel = "gemini-2.0-flash"
	DefaultOllamaModel = "llama3.2"
)

const systemPrompt = "You summarize source code for engineers. Answer with the summary only."

// OpenAI enriches through an OpenAI-compatible chat completion endpoint.
type OpenAI struct {
	client *openai.Client
	model  string
}

// NewOpenAI creates an OpenAI enricher. baseURL may point at any
// compatible server; empty means the public API.
func NewOpenAI(apiKey, model, baseURL string) *OpenAI {
	cfg := openai.DefaultConfig(apiKey)
	if baseURL != "" {
		cfg.BaseURL = baseURL
	}
	if model == "" {
		model = DefaultOpenAIModel
	}
	return &OpenAI{client: openai.NewClientWithConfig(cfg), model: model}
}

func (o *OpenAI) Enrich(ctx context.Context, req Request) (string, error) {
	resp, err := o.client.CreateChatCompletion(ctx, openai.ChatCompletionRequest{
		Model: o.model,
		Messages: []openai.ChatCompletionMessage{
			{Role: openai.ChatMessageRoleSystem, Content: systemPrompt},
			{Role: openai.ChatMessageRoleUser, Content: BuildPrompt(req)},
		},
	})
	if err != nil {
		return "", fmt.Errorf("openai chat completion: %w", err)
	}
	if len(resp.Choices) == 0 {
		return "", ErrEmptyResponse
	}
	return nonEmpty(resp.Choices[0].Message.Content)
}

// Gemini enriches through the Gemini API.
type Gemini struct {
	client *genai.Client
	model  string
}

// NewGemini creates a Gemini enricher. baseURL overrides the API endpoint
// when set.
func NewGemini(ctx context.Context, apiKey, model, baseURL string) (*Gemini, error) {
	cc := &genai.ClientConfig{APIKey: apiKey, Backend: genai.BackendGeminiAPI}
	if baseURL != "" {
		cc.HTTPOptions.BaseURL = baseURL
	}
	client, err := genai.NewClient(ctx, cc)
	if err != nil {
		return nil, fmt.Errorf("create gemini client: %w", err)
	}
	if model == "" {
		model = DefaultGeminiModel
	}
	return &Gemini{client: client, model: model}, nil
}

func (g *Gemini) Enrich(ctx context.Context, req Request) (string, error) {
	resp, err := g.client.Models.GenerateContent(ctx, g.model, genai.Text(BuildPrompt(req)), &genai.GenerateContentConfig{
		SystemInstruction: genai.NewContentFromText(systemPrompt, genai.RoleUser),
	})
	if err != nil {
		return "", fmt.Errorf("gemini generate content: %w", err)
	}
	return nonEmpty(resp.Text())
}

// Ollama enriches through a local Ollama server.
type Ollama struct {
	llm *ollama.LLM
}

// NewOllama creates an Ollama enricher. serverURL empty means the
// library default (localhost).
func NewOllama(model, serverURL string) (*Ollama, error) {
	if model == "" {
		model = DefaultOllamaModel
	}
	opts := []ollama.Option{ollama.WithModel(model)}
	if serverURL != "" {
		opts = append(opts, ollama.WithServerURL(serverURL))
	}
	llm, err := ollama.New(opts...)
	if err != nil {
		return nil, fmt.Errorf("create ollama client: %w", err)
	}
	return &Ollama{llm: llm}, nil
}

func (o *Ollama) Enrich(ctx context.Context, req Request) (string, error) {
	text, err := llms.GenerateFromSinglePrompt(ctx, o.llm, systemPrompt+"\n\n"+BuildPrompt(req))
	if err != nil {
		return "", fmt.Errorf("ollama generate: %w", err)
	}
	return nonEmpty(text)
}

func nonEmpty(text string) (string, error) {
	text = strings.TrimSpace(text)
	if text == "" {
		return "", ErrEmptyResponse
	}
	return text, nil
}
