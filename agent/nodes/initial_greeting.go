package nodes

import (
	"context"
	"fmt"

	"github.com/tanpawarit/Chative-Outbound-Call-Flow/agent/flow"
	statex "github.com/tanpawarit/Chative-Outbound-Call-Flow/agent/state"
)

// InitialGreeting is the first node of every call. It alone carries the persona.
func (g *Graph) InitialGreeting() *flow.Node {
	n := g.node(NodeInitialGreeting, g.prompts.InitialGreeting, flow.Action{
		Name:        ActionCaptureManagerDetails,
		Description: "Capture the manager's name and company name once they've introduced themselves.",
		Params: []flow.Param{
			{Name: "manager_name", Type: flow.ParamString, Description: "The name of the manager we're speaking with", Required: true},
			{Name: "company_name", Type: flow.ParamString, Description: "The name of the company", Required: true},
		},
		Handler: g.captureManagerDetails,
	})
	n.RoleMessages = []string{g.prompts.Persona}
	return n
}

func (g *Graph) captureManagerDetails(ctx context.Context, args flow.Args, st *statex.Store) (flow.Outcome, error) {
	manager := args.StringOr("manager_name", statex.NotProvided)
	company := args.StringOr("company_name", statex.NotProvided)

	if err := st.Merge(map[string]any{
		statex.KeyManagerName: manager,
		statex.KeyCompanyName: company,
	}); err != nil {
		return flow.Outcome{}, err
	}

	g.logger.Info().Str("manager_name", manager).Str("company_name", company).Msg("captured manager details")
	return flow.Goto(fmt.Sprintf("Lovely to speak with you, %s!", manager), g.AskProvider()), nil
}
