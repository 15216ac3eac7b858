package nodes

import (
	"context"
	"errors"
	"fmt"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
	contractx "github.com/tanpawarit/Chative-Outbound-Call-Flow/agent/contract"
	"github.com/tanpawarit/Chative-Outbound-Call-Flow/agent/flow"
	promptx "github.com/tanpawarit/Chative-Outbound-Call-Flow/agent/prompt"
	statex "github.com/tanpawarit/Chative-Outbound-Call-Flow/agent/state"
)

const (
	NodeInitialGreeting   = "initial_greeting"
	NodeAskProvider       = "ask_provider"
	NodeAskProviderName   = "ask_provider_name"
	NodeScenarioAPitch    = "scenario_a_pitch"
	NodeScenarioBPitch    = "scenario_b_pitch"
	NodeOfferEmailSummary = "offer_email_summary"
	NodeCollectEmail      = "collect_email"
	NodeEndCall           = "end_call"
)

const (
	ActionCaptureManagerDetails      = "capture_manager_details"
	ActionHandleHasProviderResponse  = "handle_has_provider_response"
	ActionCaptureProviderName        = "capture_provider_name"
	ActionHandleMeetingResponse      = "handle_meeting_response"
	ActionHandleEmailSummaryResponse = "handle_email_summary_response"
	ActionCaptureEmailAddress        = "capture_email_address"
	ActionFinalizeAndUpdateCRM       = "finalize_and_update_crm"
	ActionQueryKnowledgeBase         = "query_knowledge_base"
)

// Finalizer runs the end-of-call CRM sync. Implementations guard it to run once.
type Finalizer interface {
	Finalize(ctx context.Context) error
}

type Deps struct {
	Retriever contractx.Retriever
	Turns     contractx.TurnSource
	Finalizer Finalizer
	Audit     statex.AuditSink
	Logger    *zerolog.Logger
}

// Graph builds the call's nodes. Every factory returns a fresh node; nothing
// is cached between transitions except the rendered prompts.
type Graph struct {
	prompts promptx.PromptSet

	collectForMeeting string
	collectForSummary string

	retriever contractx.Retriever
	turns     contractx.TurnSource
	finalizer Finalizer
	audit     statex.AuditSink
	logger    zerolog.Logger
}

func NewGraph(deps Deps) (*Graph, error) {
	if deps.Retriever == nil {
		return nil, errors.New("retriever is required")
	}
	if deps.Finalizer == nil {
		return nil, errors.New("finalizer is required")
	}

	forMeeting, err := promptx.CollectEmail(true)
	if err != nil {
		return nil, err
	}
	forSummary, err := promptx.CollectEmail(false)
	if err != nil {
		return nil, err
	}

	logger := log.Logger
	if deps.Logger != nil {
		logger = *deps.Logger
	}

	return &Graph{
		prompts:           promptx.LoadPromptSet(),
		collectForMeeting: forMeeting,
		collectForSummary: forSummary,
		retriever:         deps.Retriever,
		turns:             deps.Turns,
		finalizer:         deps.Finalizer,
		audit:             deps.Audit,
		logger:            logger,
	}, nil
}

// node assembles a standard node: the task actions plus the knowledge-base lookup.
func (g *Graph) node(name, instructions string, actions ...flow.Action) *flow.Node {
	return flow.MustNode(flow.Node{
		Name:               name,
		Instructions:       instructions,
		Actions:            append(actions, g.queryKnowledgeBase()),
		RespondImmediately: true,
	})
}

// ByName builds the node registered under name. collect_email resolves to
// the meeting-invite variant; use CollectEmail directly for the summary one.
func (g *Graph) ByName(name string) (*flow.Node, error) {
	switch name {
	case NodeInitialGreeting:
		return g.InitialGreeting(), nil
	case NodeAskProvider:
		return g.AskProvider(), nil
	case NodeAskProviderName:
		return g.AskProviderName(), nil
	case NodeScenarioAPitch:
		return g.ScenarioAPitch(), nil
	case NodeScenarioBPitch:
		return g.ScenarioBPitch(), nil
	case NodeOfferEmailSummary:
		return g.OfferEmailSummary(), nil
	case NodeCollectEmail:
		return g.CollectEmail(true), nil
	case NodeEndCall:
		return g.EndCall(), nil
	default:
		return nil, fmt.Errorf("%w: unknown node %q", contractx.ErrNodeInvalid, name)
	}
}

// NodeNames lists every registered node in flow order.
func NodeNames() []string {
	return []string{
		NodeInitialGreeting,
		NodeAskProvider,
		NodeAskProviderName,
		NodeScenarioAPitch,
		NodeScenarioBPitch,
		NodeOfferEmailSummary,
		NodeCollectEmail,
		NodeEndCall,
	}
}
