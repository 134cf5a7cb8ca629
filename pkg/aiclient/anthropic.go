package aiclient

import (
	"context"
	"strings"

	"github.com/rotisserie/eris"

	"github.com/plantedfoods/discovery-pipeline/pkg/anthropic"
)

// maxResponseTokens bounds every completion; the largest expected response is
// a full dish list for a big menu, well under this.
const maxResponseTokens = 4096

// AnthropicProvider implements Provider on the Messages API. The shared
// system prompt is identical across every call in the process, so it is sent
// with a cache breakpoint and served from the prompt cache after the first
// request.
type AnthropicProvider struct {
	client anthropic.Client
	model  string
}

// NewAnthropic creates an Anthropic-backed provider.
func NewAnthropic(apiKey, model string) *AnthropicProvider {
	return &AnthropicProvider{
		client: anthropic.NewClient(apiKey),
		model:  model,
	}
}

// NewAnthropicFromClient wraps an existing client, used by tests.
func NewAnthropicFromClient(client anthropic.Client, model string) *AnthropicProvider {
	return &AnthropicProvider{client: client, model: model}
}

// Name implements Provider.
func (p *AnthropicProvider) Name() string { return "anthropic" }

// Model implements Provider.
func (p *AnthropicProvider) Model() string { return p.model }

// Complete implements Provider.
func (p *AnthropicProvider) Complete(ctx context.Context, system, prompt string) (string, Usage, error) {
	resp, err := p.client.CreateMessage(ctx, anthropic.MessageRequest{
		Model:     p.model,
		MaxTokens: maxResponseTokens,
		System:    anthropic.BuildCachedSystemBlocks(system),
		Messages: []anthropic.Message{
			{Role: "user", Content: prompt},
		},
	})
	if err != nil {
		return "", Usage{}, eris.Wrap(err, "aiclient: anthropic create message")
	}

	var sb strings.Builder
	for _, block := range resp.Content {
		if block.Text != "" {
			sb.WriteString(block.Text)
		}
	}

	usage := Usage{
		InputTokens:  int(resp.Usage.InputTokens + resp.Usage.CacheCreationInputTokens + resp.Usage.CacheReadInputTokens),
		OutputTokens: int(resp.Usage.OutputTokens),
	}

	return sb.String(), usage, nil
}

// WarmCache issues one throwaway request so subsequent calls hit the warm
// prompt cache. Failures are not fatal; the next real call simply pays the
// cache write.
func (p *AnthropicProvider) WarmCache(ctx context.Context) error {
	resp, err := anthropic.PrimerRequest(ctx, p.client, anthropic.MessageRequest{
		Model:     p.model,
		MaxTokens: 16,
		System:    anthropic.BuildCachedSystemBlocks(systemPrompt),
		Messages: []anthropic.Message{
			{Role: "user", Content: "Respond with the JSON object {\"ok\": true}."},
		},
	})
	if err != nil {
		return err
	}
	resp.Usage.LogCost(p.model, "cache_warmup")
	return nil
}
