package llm

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"

	einomodel "github.com/cloudwego/eino/components/model"
	"github.com/cloudwego/eino/schema"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
	contractx "github.com/tanpawarit/Chative-Outbound-Call-Flow/agent/contract"
	"github.com/tanpawarit/Chative-Outbound-Call-Flow/agent/flow"
	"github.com/tanpawarit/Chative-Outbound-Call-Flow/agent/nodes"
	"github.com/tanpawarit/Chative-Outbound-Call-Flow/agent/retrieval"
)

var ErrNotAttached = errors.New("conversation has no dispatcher")

const (
	defaultMaxToolSteps = 4
	holdingLine         = "Sorry, bear with me one moment."
)

// Dispatcher runs an action against the flow. *flow.Engine satisfies it.
type Dispatcher interface {
	Dispatch(ctx context.Context, name string, args flow.Args) (flow.Result, error)
}

var (
	_ flow.Presenter       = (*Conversation)(nil)
	_ contractx.TurnSource = (*Conversation)(nil)
	_ Dispatcher           = (*flow.Engine)(nil)
)

// Reply is what the agent says for one turn, in speaking order.
type Reply struct {
	Messages []string
	Ended    bool
}

func (r Reply) Text() string {
	return strings.Join(r.Messages, " ")
}

type ConversationOption func(*Conversation)

func WithMaxToolSteps(n int) ConversationOption {
	return func(c *Conversation) {
		if n > 0 {
			c.maxSteps = n
		}
	}
}

func WithFiller(f *retrieval.Filler) ConversationOption {
	return func(c *Conversation) {
		c.filler = f
	}
}

func WithConversationLogger(logger zerolog.Logger) ConversationOption {
	return func(c *Conversation) {
		c.logger = logger
	}
}

// Conversation drives a tool-calling chat model through the flow. It is the
// engine's Presenter: every presented node rebinds the model's tools and
// replaces the task instructions.
type Conversation struct {
	base     einomodel.ToolCallingChatModel
	filler   *retrieval.Filler
	maxSteps int
	logger   zerolog.Logger

	turnMu sync.Mutex

	mu         sync.RWMutex
	dispatcher Dispatcher
	bound      einomodel.ToolCallingChatModel
	node       *flow.Node
	persona    []string
	history    []*schema.Message
	ended      bool
}

func NewConversation(chatModel einomodel.ToolCallingChatModel, opts ...ConversationOption) (*Conversation, error) {
	if chatModel == nil {
		return nil, errors.New("chat model is required")
	}

	c := &Conversation{
		base:     chatModel,
		maxSteps: defaultMaxToolSteps,
		logger:   log.Logger,
	}
	for _, opt := range opts {
		if opt != nil {
			opt(c)
		}
	}
	return c, nil
}

// Attach sets the dispatcher. It must be called before Begin or HandleUserMessage.
func (c *Conversation) Attach(d Dispatcher) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.dispatcher = d
}

func (c *Conversation) Present(ctx context.Context, node *flow.Node) error {
	bound, err := c.base.WithTools(ToolInfos(node))
	if err != nil {
		return fmt.Errorf("bind tools for node=%s: %w", node.Name, err)
	}

	c.mu.Lock()
	defer c.mu.Unlock()
	c.node = node
	c.bound = bound
	if len(node.RoleMessages) > 0 {
		c.persona = append([]string(nil), node.RoleMessages...)
	}
	c.logger.Debug().Str("node", node.Name).Strs("tools", node.ActionNames()).Msg("node presented")
	return nil
}

func (c *Conversation) Terminate(ctx context.Context) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.ended = true
	return nil
}

func (c *Conversation) Ended() bool {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.ended
}

// Transcript returns the spoken and tool turns so far, oldest first.
func (c *Conversation) Transcript() []contractx.Turn {
	c.mu.RLock()
	defer c.mu.RUnlock()

	turns := make([]contractx.Turn, 0, len(c.history))
	for _, m := range c.history {
		turns = append(turns, contractx.Turn{
			Role:        contractx.TurnRole(m.Role),
			Content:     m.Content,
			HasToolCall: len(m.ToolCalls) > 0,
		})
	}
	return turns
}

// Begin lets the agent speak first when the current node asks for it.
func (c *Conversation) Begin(ctx context.Context) (Reply, error) {
	c.turnMu.Lock()
	defer c.turnMu.Unlock()

	c.mu.RLock()
	node := c.node
	c.mu.RUnlock()
	if node == nil || !node.RespondImmediately {
		return Reply{}, nil
	}
	return c.run(ctx)
}

func (c *Conversation) HandleUserMessage(ctx context.Context, text string) (Reply, error) {
	text = strings.TrimSpace(text)
	if text == "" {
		return Reply{}, nil
	}

	c.turnMu.Lock()
	defer c.turnMu.Unlock()

	if c.Ended() {
		return Reply{Ended: true}, contractx.ErrSessionEnded
	}

	c.mu.Lock()
	c.history = append(c.history, schema.UserMessage(text))
	c.mu.Unlock()

	return c.run(ctx)
}

// run generates until the model answers without tool calls, the call ends,
// or the step budget is spent.
func (c *Conversation) run(ctx context.Context) (Reply, error) {
	var reply Reply

	for step := 0; step < c.maxSteps; step++ {
		c.mu.RLock()
		bound, dispatcher := c.bound, c.dispatcher
		input := c.promptLocked()
		c.mu.RUnlock()

		if bound == nil || dispatcher == nil {
			return reply, ErrNotAttached
		}

		msg, err := bound.Generate(ctx, input)
		if err != nil {
			return reply, fmt.Errorf("%w: generate: %v", contractx.ErrCollaborator, err)
		}
		if msg == nil {
			return reply, fmt.Errorf("%w: empty model response", contractx.ErrCollaborator)
		}

		msg.Role = schema.Assistant
		c.mu.Lock()
		c.history = append(c.history, msg)
		c.mu.Unlock()

		if content := strings.TrimSpace(msg.Content); content != "" {
			reply.Messages = append(reply.Messages, content)
		}
		if len(msg.ToolCalls) == 0 {
			reply.Ended = c.Ended()
			return reply, nil
		}

		for _, call := range msg.ToolCalls {
			result := c.invoke(ctx, dispatcher, call, &reply)
			c.mu.Lock()
			c.history = append(c.history, schema.ToolMessage(result, call.ID))
			c.mu.Unlock()
		}

		if c.Ended() {
			reply.Ended = true
			return reply, nil
		}
	}

	c.logger.Warn().Int("max_steps", c.maxSteps).Msg("tool step budget exhausted")
	c.closeTurn(ctx, &reply)
	reply.Ended = c.Ended()
	return reply, nil
}

// closeTurn speaks once more with no tools bound so a turn never ends silent
// or with a tool message last in the history.
func (c *Conversation) closeTurn(ctx context.Context, reply *Reply) {
	c.mu.RLock()
	input := c.promptLocked()
	c.mu.RUnlock()

	text := holdingLine
	msg, err := c.base.Generate(ctx, input)
	switch {
	case err != nil:
		c.logger.Warn().Err(err).Msg("closing generation failed")
	case msg != nil && strings.TrimSpace(msg.Content) != "":
		text = strings.TrimSpace(msg.Content)
	}

	c.mu.Lock()
	c.history = append(c.history, schema.AssistantMessage(text, nil))
	c.mu.Unlock()
	reply.Messages = append(reply.Messages, text)
}

// invoke dispatches one tool call and returns the tool message content.
// Dispatch errors go back to the model rather than up to the caller.
func (c *Conversation) invoke(ctx context.Context, d Dispatcher, call schema.ToolCall, reply *Reply) string {
	name := strings.TrimSpace(call.Function.Name)

	if name == nodes.ActionQueryKnowledgeBase && c.filler != nil {
		reply.Messages = append(reply.Messages, c.filler.Next())
	}

	args, err := flow.ParseArgs(call.Function.Arguments)
	if err != nil {
		c.logger.Warn().Err(err).Str("action", name).Msg("tool arguments ignored")
		args = flow.Args{}
	}

	res, err := d.Dispatch(ctx, name, args)
	if err != nil {
		c.logger.Warn().Err(err).Str("action", name).Msg("tool call rejected")
		return "error: " + err.Error()
	}
	return res.Ack
}

// promptLocked assembles persona, current instructions and history. Callers hold mu.
func (c *Conversation) promptLocked() []*schema.Message {
	msgs := make([]*schema.Message, 0, len(c.persona)+1+len(c.history))
	for _, p := range c.persona {
		msgs = append(msgs, schema.SystemMessage(p))
	}
	if c.node != nil && c.node.Instructions != "" {
		msgs = append(msgs, schema.SystemMessage(c.node.Instructions))
	}
	return append(msgs, c.history...)
}
