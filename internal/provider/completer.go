package provider

import (
	"context"
	"fmt"

	"github.com/cloudwego/eino/components/model"
	"github.com/cloudwego/eino/schema"

	"github.com/docuchat/ragengine/internal/rag"
)

// Completer adapts a ChatModel to the single-prompt rag.Completer interface.
// Each call is a stateless one-shot generation — no conversation history.
type Completer struct {
	model model.ChatModel //nolint:staticcheck // SA1019: model.ChatModel deprecated upstream; migration tracked separately
}

var _ rag.Completer = (*Completer)(nil)

// NewCompleter wraps the given ChatModel.
func NewCompleter(m model.ChatModel) *Completer { //nolint:staticcheck // SA1019: model.ChatModel deprecated upstream; migration tracked separately
	return &Completer{model: m}
}

// Complete sends the prompt as a single user message and returns the model's
// text response.
func (c *Completer) Complete(ctx context.Context, prompt string) (string, error) {
	resp, err := c.model.Generate(ctx, []*schema.Message{
		schema.UserMessage(prompt),
	})
	if err != nil {
		return "", &rag.ProviderError{Provider: "completion", Err: err}
	}
	if resp == nil {
		return "", fmt.Errorf("provider: model returned no message")
	}
	return resp.Content, nil
}
