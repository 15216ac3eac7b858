package nodes

import (
	"context"
	"time"

	contractx "github.com/tanpawarit/Chative-Outbound-Call-Flow/agent/contract"
	"github.com/tanpawarit/Chative-Outbound-Call-Flow/agent/flow"
	"github.com/tanpawarit/Chative-Outbound-Call-Flow/agent/retrieval"
	statex "github.com/tanpawarit/Chative-Outbound-Call-Flow/agent/state"
)

func (g *Graph) queryKnowledgeBase() flow.Action {
	return flow.Action{
		Name:        ActionQueryKnowledgeBase,
		Description: "Use this when the user asks questions about WhipSmart, novated leasing benefits, or any FAQs. This provides detailed information without changing the conversation flow.",
		Params: []flow.Param{
			{Name: "question", Type: flow.ParamString, Description: "The user's question or topic they want to know more about", Required: true},
		},
		Handler: g.answerQuestion,
		Passive: true,
	}
}

// answerQuestion never writes the lead and never moves the flow. Any
// retrieval failure becomes the fallback line.
func (g *Graph) answerQuestion(ctx context.Context, args flow.Args, _ *statex.Store) (flow.Outcome, error) {
	question := args.StringOr("question", "")

	var transcript []contractx.Turn
	if g.turns != nil {
		transcript = g.turns.Transcript()
	}
	recent := retrieval.RecentTurns(transcript, retrieval.DefaultWindow)

	started := time.Now()
	answer, err := g.retriever.Answer(ctx, question, recent)
	if err != nil {
		g.logger.Error().Err(err).Str("question", question).Msg("knowledge base query failed")
		return flow.Stay(retrieval.Fallback), nil
	}

	g.logger.Info().Str("question", question).Dur("latency", time.Since(started)).Msg("knowledge base query")
	return flow.Stay(answer), nil
}
