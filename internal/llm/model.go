// Package llm provides the generation, summarization, extraction and
// embedding providers, backed by langchaingo.
package llm

import (
	"context"
	"fmt"

	"github.com/tmc/langchaingo/llms"
	"github.com/tmc/langchaingo/llms/anthropic"
	"github.com/tmc/langchaingo/llms/ollama"
	"github.com/tmc/langchaingo/llms/openai"

	"github.com/lorekeep/lorekeep/internal/config"
)

// Model wraps a langchaingo LLM for narrative generation and summarization.
// Timeouts and retries are owned by the orchestrator, not the provider.
type Model struct {
	llm       llms.Model
	modelName string
}

// NewModel creates an LLM model based on configuration.
func NewModel(cfg config.Config) (*Model, error) {
	var model llms.Model
	var err error

	switch cfg.LLMProvider {
	case config.ProviderOllama:
		model, err = ollama.New(
			ollama.WithModel(cfg.LLMModel),
			ollama.WithServerURL(cfg.OllamaHost),
		)
		if err != nil {
			return nil, fmt.Errorf("create ollama model: %w", err)
		}

	case config.ProviderOpenAI:
		if cfg.OpenAIAPIKey == "" {
			return nil, fmt.Errorf("OpenAI API key required")
		}
		model, err = openai.New(
			openai.WithToken(cfg.OpenAIAPIKey),
			openai.WithModel(cfg.LLMModel),
		)
		if err != nil {
			return nil, fmt.Errorf("create openai model: %w", err)
		}

	case config.ProviderAnthropic:
		if cfg.AnthropicAPIKey == "" {
			return nil, fmt.Errorf("Anthropic API key required")
		}
		model, err = anthropic.New(
			anthropic.WithToken(cfg.AnthropicAPIKey),
			anthropic.WithModel(cfg.LLMModel),
		)
		if err != nil {
			return nil, fmt.Errorf("create anthropic model: %w", err)
		}

	default:
		return nil, fmt.Errorf("unsupported LLM provider: %s", cfg.LLMProvider)
	}

	return &Model{
		llm:       model,
		modelName: cfg.LLMModel,
	}, nil
}

// Model returns the LLM model name.
func (m *Model) Model() string {
	return m.modelName
}

// GenerateWithSystem generates text with a system prompt.
func (m *Model) GenerateWithSystem(ctx context.Context, systemPrompt, userPrompt string) (string, error) {
	messages := []llms.MessageContent{
		llms.TextParts(llms.ChatMessageTypeSystem, systemPrompt),
		llms.TextParts(llms.ChatMessageTypeHuman, userPrompt),
	}

	response, err := m.llm.GenerateContent(ctx, messages)
	if err != nil {
		return "", fmt.Errorf("generate with system: %w", err)
	}

	if len(response.Choices) == 0 {
		return "", fmt.Errorf("no response choices")
	}

	return response.Choices[0].Content, nil
}

// Generate produces narrative text from an assembled context and an
// instruction. Corrective instructions from consistency retries arrive
// appended to the instruction by the orchestrator.
func (m *Model) Generate(ctx context.Context, contextStr, instruction string) (string, error) {
	systemPrompt := `You are a novelist continuing a long serialized narrative.
Write prose that follows directly from the provided context.
Respect every established fact: character states, locations, world rules, and event order.
Do not contradict anything in the context. Do not summarize; write the scene.`

	userPrompt := fmt.Sprintf(`Context:
%s

Instruction: %s

Continuation:`, contextStr, instruction)

	return m.GenerateWithSystem(ctx, systemPrompt, userPrompt)
}

// Summarize folds an evicted segment into the rolling summary, keeping the
// result under roughly targetTokens.
func (m *Model) Summarize(ctx context.Context, previousSummary, segment string, targetTokens int) (string, error) {
	systemPrompt := fmt.Sprintf(`You summarize a long narrative incrementally.
Merge the new passage into the existing summary.
Preserve character states, locations, deaths, world rules, and event order.
Keep the merged summary under %d tokens.`, targetTokens)

	userPrompt := fmt.Sprintf(`Existing summary:
%s

New passage:
%s

Merged summary:`, previousSummary, segment)

	return m.GenerateWithSystem(ctx, systemPrompt, userPrompt)
}
