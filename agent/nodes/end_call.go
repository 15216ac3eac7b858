package nodes

import (
	"context"

	"github.com/tanpawarit/Chative-Outbound-Call-Flow/agent/flow"
	statex "github.com/tanpawarit/Chative-Outbound-Call-Flow/agent/state"
)

// EndCall is terminal. It offers only the finalize action and ends the
// conversation once that action has run.
func (g *Graph) EndCall() *flow.Node {
	return flow.MustNode(flow.Node{
		Name:         NodeEndCall,
		Instructions: g.prompts.EndCall,
		Actions: []flow.Action{{
			Name:        ActionFinalizeAndUpdateCRM,
			Description: "Internal function to finalize call and update CRM",
			Handler:     g.finalizeAndUpdateCRM,
		}},
		PostActions:        []flow.PostAction{flow.PostActionEndConversation},
		RespondImmediately: true,
	})
}

func (g *Graph) finalizeAndUpdateCRM(ctx context.Context, _ flow.Args, _ *statex.Store) (flow.Outcome, error) {
	g.logger.Info().Msg("finalizing call")
	if err := g.finalizer.Finalize(ctx); err != nil {
		g.logger.Error().Err(err).Msg("finalize call failed")
	}
	return flow.Stay("Cheers for your time!"), nil
}
