// Package assistant answers questions about extracted text. The default
// responder is a local echo; a chat model can be plugged in instead.
package assistant

import (
	"context"
	"fmt"
)

// Responder produces a reply for the extracted text and the user's query.
type Responder interface {
	Respond(ctx context.Context, extracted, query string) (string, error)
}

// ResponsePrefix is prepended to every reply before it replaces the
// extracted text in the shell.
const ResponsePrefix = "🤖 AI Response:\n"

// Echo is a placeholder that templates its inputs back without inference.
type Echo struct{}

func (Echo) Respond(_ context.Context, extracted, query string) (string, error) {
	return EchoResponse(extracted, query), nil
}

// EchoResponse is the pure template used by Echo.
func EchoResponse(extracted, query string) string {
	return fmt.Sprintf("I received this:\nExtracted: %s\nQuestion: %s", extracted, query)
}

// Asker is implemented by *llm.Client.
type Asker interface {
	Ask(ctx context.Context, extracted, question string) (string, error)
}

// LLM forwards the query to a chat model.
type LLM struct {
	Client Asker
}

func (l LLM) Respond(ctx context.Context, extracted, query string) (string, error) {
	if l.Client == nil {
		return "", fmt.Errorf("assistant: LLM client not initialized")
	}
	answer, err := l.Client.Ask(ctx, extracted, query)
	if err != nil {
		return "", fmt.Errorf("assistant: %w", err)
	}
	return answer, nil
}

// Format wraps a reply the way the shell displays it.
func Format(response string) string {
	return ResponsePrefix + response
}
