package orchestrator

import (
	"context"
	"errors"
	"sync"
	"time"

	einomodel "github.com/cloudwego/eino/components/model"
	"github.com/cloudwego/eino/compose"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
	contractx "github.com/tanpawarit/Chative-Outbound-Call-Flow/agent/contract"
	"github.com/tanpawarit/Chative-Outbound-Call-Flow/agent/flow"
	"github.com/tanpawarit/Chative-Outbound-Call-Flow/agent/lifecycle"
	"github.com/tanpawarit/Chative-Outbound-Call-Flow/agent/llm"
	"github.com/tanpawarit/Chative-Outbound-Call-Flow/agent/retrieval"
	statex "github.com/tanpawarit/Chative-Outbound-Call-Flow/agent/state"
)

var ErrInvalidRequest = errors.New("invalid dial request")

type Deps struct {
	Model     einomodel.ToolCallingChatModel
	Retriever contractx.Retriever

	CRM      contractx.CRM
	Audit    statex.AuditSink
	FollowUp contractx.FollowUpPublisher

	Hooks flow.Hooks
	// CallStarted is invoked once per dialed call; the returned func runs on hangup.
	CallStarted func() func()
	Logger      *zerolog.Logger
}

type Config struct {
	MaxToolSteps  int
	FillerPhrases []string
}

// Orchestrator dials calls. Every call gets its own conversation, session
// and engine; only the collaborators are shared.
type Orchestrator struct {
	deps   Deps
	cfg    Config
	logger zerolog.Logger
	now    func() time.Time

	graphRunner compose.Runnable[DialInput, *Call]
}

func New(deps Deps, cfg Config) (*Orchestrator, error) {
	if deps.Model == nil {
		return nil, errors.New("chat model is required")
	}
	if deps.Retriever == nil {
		return nil, errors.New("retriever is required")
	}

	logger := log.Logger
	if deps.Logger != nil {
		logger = *deps.Logger
	}

	o := &Orchestrator{
		deps:   deps,
		cfg:    cfg,
		logger: logger,
		now:    time.Now,
	}

	graphRunner, err := o.compileDialGraph(context.Background())
	if err != nil {
		return nil, err
	}
	o.graphRunner = graphRunner

	return o, nil
}

// Dial opens a call and lets the agent speak first.
func (o *Orchestrator) Dial(ctx context.Context, in DialInput) (*Call, error) {
	return o.graphRunner.Invoke(ctx, in)
}

// Call is one live conversation.
type Call struct {
	ID        string
	ContactID string
	StartedAt time.Time

	greeting llm.Reply

	conv    *llm.Conversation
	session *lifecycle.Session
	onEnd   func()

	hangupOnce sync.Once
}

// Greeting is what the agent said before the callee spoke.
func (c *Call) Greeting() llm.Reply {
	return c.greeting
}

func (c *Call) HandleUserMessage(ctx context.Context, text string) (llm.Reply, error) {
	return c.conv.HandleUserMessage(ctx, text)
}

func (c *Call) Ended() bool {
	return c.conv.Ended()
}

func (c *Call) Lead() statex.Lead {
	return c.session.Lead()
}

// Hangup runs teardown. The session guards the CRM sync itself, so Hangup
// after the agent already ended the call only releases the call slot.
func (c *Call) Hangup(ctx context.Context) {
	c.hangupOnce.Do(func() {
		c.session.End(ctx)
		if c.onEnd != nil {
			c.onEnd()
		}
	})
}

// newFiller returns a fresh round-robin so calls do not share position.
// No phrases means the retrieval defaults.
func (o *Orchestrator) newFiller() *retrieval.Filler {
	return retrieval.NewFiller(o.cfg.FillerPhrases...)
}
