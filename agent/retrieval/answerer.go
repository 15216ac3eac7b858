package retrieval

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/openai/openai-go"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
	contractx "github.com/tanpawarit/Chative-Outbound-Call-Flow/agent/contract"
	promptx "github.com/tanpawarit/Chative-Outbound-Call-Flow/agent/prompt"
)

// Fallback is spoken when a lookup fails for any reason.
const Fallback = "Sorry mate, I'm having a bit of trouble accessing that information right now. Let me continue with our chat about WhipSmart's novated leasing program."

var _ contractx.Retriever = (*OpenAIAnswerer)(nil)

type Options struct {
	Model         string
	Temperature   float64
	MaxTokens     int64
	KnowledgeBase string
	Logger        *zerolog.Logger
}

// OpenAIAnswerer answers from a fixed knowledge document with one chat
// completion per question.
type OpenAIAnswerer struct {
	client *openai.Client
	opts   Options
	system string
	logger zerolog.Logger
}

func NewOpenAIAnswerer(client *openai.Client, opts Options) (*OpenAIAnswerer, error) {
	if client == nil {
		return nil, errors.New("openai client is required")
	}
	if strings.TrimSpace(opts.Model) == "" {
		return nil, fmt.Errorf("%w: retrieval model is required", contractx.ErrValidation)
	}
	if opts.Temperature < 0 {
		opts.Temperature = 0.1
	}
	if opts.MaxTokens <= 0 {
		opts.MaxTokens = 128
	}

	system, err := promptx.RetrievalSystem(opts.KnowledgeBase)
	if err != nil {
		return nil, err
	}

	logger := log.Logger
	if opts.Logger != nil {
		logger = *opts.Logger
	}

	return &OpenAIAnswerer{
		client: client,
		opts:   opts,
		system: system,
		logger: logger,
	}, nil
}

func (a *OpenAIAnswerer) Answer(ctx context.Context, question string, recent []contractx.Turn) (string, error) {
	history, err := json.MarshalIndent(historyOf(recent), "", "  ")
	if err != nil {
		return "", fmt.Errorf("%w: encode history: %v", contractx.ErrCollaborator, err)
	}

	user := fmt.Sprintf("Conversation History: %s\n\nUser Question: %s", history, strings.TrimSpace(question))

	started := time.Now()
	resp, err := a.client.Chat.Completions.New(ctx, openai.ChatCompletionNewParams{
		Messages: []openai.ChatCompletionMessageParamUnion{
			openai.SystemMessage(a.system),
			openai.UserMessage(user),
		},
		Model:               a.opts.Model,
		Temperature:         openai.Float(a.opts.Temperature),
		MaxCompletionTokens: openai.Int(a.opts.MaxTokens),
	})
	if err != nil {
		return "", fmt.Errorf("%w: knowledge base completion: %v", contractx.ErrCollaborator, err)
	}
	if len(resp.Choices) == 0 {
		return "", fmt.Errorf("%w: knowledge base completion returned no choices", contractx.ErrCollaborator)
	}

	answer := strings.TrimSpace(resp.Choices[0].Message.Content)
	if answer == "" {
		return "", fmt.Errorf("%w: knowledge base completion is empty", contractx.ErrCollaborator)
	}

	a.logger.Debug().
		Dur("latency", time.Since(started)).
		Str("question", question).
		Str("answer", answer).
		Msg("knowledge base answered")
	return answer, nil
}

type historyTurn struct {
	Role    contractx.TurnRole `json:"role"`
	Content string             `json:"content"`
}

func historyOf(turns []contractx.Turn) []historyTurn {
	out := make([]historyTurn, 0, len(turns))
	for _, t := range turns {
		out = append(out, historyTurn{Role: t.Role, Content: t.Content})
	}
	return out
}
