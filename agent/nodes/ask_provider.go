package nodes

import (
	"context"
	"fmt"

	"github.com/tanpawarit/Chative-Outbound-Call-Flow/agent/flow"
	statex "github.com/tanpawarit/Chative-Outbound-Call-Flow/agent/state"
)

func (g *Graph) AskProvider() *flow.Node {
	return g.node(NodeAskProvider, g.prompts.AskProvider, flow.Action{
		Name:        ActionHandleHasProviderResponse,
		Description: "Record whether the company currently has a novated lease provider. Use this after they answer yes or no.",
		Params: []flow.Param{
			{Name: "has_provider", Type: flow.ParamBoolean, Description: "True if they have a provider, false if they don't", Required: true},
		},
		Handler: g.handleHasProviderResponse,
	})
}

func (g *Graph) handleHasProviderResponse(ctx context.Context, args flow.Args, st *statex.Store) (flow.Outcome, error) {
	if args.BoolOr("has_provider", false) {
		if err := st.Set(statex.KeyHasExistingProvider, statex.Yes); err != nil {
			return flow.Outcome{}, err
		}
		g.logger.Info().Msg("company has an existing provider")
		return flow.Goto("Right, I see.", g.AskProviderName()), nil
	}

	if err := st.Merge(map[string]any{
		statex.KeyHasExistingProvider: statex.No,
		statex.KeyCurrentProvider:     statex.NoProvider,
	}); err != nil {
		return flow.Outcome{}, err
	}
	g.logger.Info().Msg("company has no provider")
	return flow.Goto("No worries, I understand.", g.ScenarioBPitch()), nil
}

func (g *Graph) AskProviderName() *flow.Node {
	return g.node(NodeAskProviderName, g.prompts.AskProviderName, flow.Action{
		Name:        ActionCaptureProviderName,
		Description: "Record the name of their current novated lease provider.",
		Params: []flow.Param{
			{Name: "provider_name", Type: flow.ParamString, Description: "The name of their current provider", Required: true},
		},
		Handler: g.captureProviderName,
	})
}

func (g *Graph) captureProviderName(ctx context.Context, args flow.Args, st *statex.Store) (flow.Outcome, error) {
	provider := args.StringOr("provider_name", statex.NotProvided)
	if err := st.Set(statex.KeyCurrentProvider, provider); err != nil {
		return flow.Outcome{}, err
	}

	g.logger.Info().Str("current_provider", provider).Msg("captured provider")
	return flow.Goto(fmt.Sprintf("Thanks for that. %s is a solid choice.", provider), g.ScenarioAPitch()), nil
}
