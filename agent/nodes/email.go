package nodes

import (
	"context"
	"fmt"

	"github.com/tanpawarit/Chative-Outbound-Call-Flow/agent/flow"
	statex "github.com/tanpawarit/Chative-Outbound-Call-Flow/agent/state"
)

func (g *Graph) OfferEmailSummary() *flow.Node {
	return g.node(NodeOfferEmailSummary, g.prompts.OfferEmailSummary, flow.Action{
		Name:        ActionHandleEmailSummaryResponse,
		Description: "Record if they want the email summary.",
		Params: []flow.Param{
			{Name: "wants_summary", Type: flow.ParamBoolean, Description: "True if they want the email summary, false if not interested", Required: true},
		},
		Handler: g.handleEmailSummaryResponse,
	})
}

func (g *Graph) handleEmailSummaryResponse(ctx context.Context, args flow.Args, st *statex.Store) (flow.Outcome, error) {
	if args.BoolOr("wants_summary", false) {
		if err := st.Set(statex.KeySendSummaryEmail, true); err != nil {
			return flow.Outcome{}, err
		}
		g.logger.Info().Msg("email summary requested")
		return flow.Goto("Ripper!", g.CollectEmail(false)), nil
	}

	if err := st.Merge(map[string]any{
		statex.KeySendSummaryEmail:     false,
		statex.KeyInterestedInOffering: false,
	}); err != nil {
		return flow.Outcome{}, err
	}
	g.logger.Info().Msg("email summary declined")
	return flow.Goto("Fair enough, I completely understand.", g.EndCall()), nil
}

// CollectEmail asks for an address. forMeeting only changes the wording.
func (g *Graph) CollectEmail(forMeeting bool) *flow.Node {
	instructions := g.collectForSummary
	if forMeeting {
		instructions = g.collectForMeeting
	}

	return g.node(NodeCollectEmail, instructions, flow.Action{
		Name:        ActionCaptureEmailAddress,
		Description: "Record the user's email address.",
		Params: []flow.Param{
			{Name: "email", Type: flow.ParamString, Description: "The user's email address", Required: true},
		},
		Handler: g.captureEmailAddress,
	})
}

func (g *Graph) captureEmailAddress(ctx context.Context, args flow.Args, st *statex.Store) (flow.Outcome, error) {
	email := args.StringOr("email", statex.NotProvided)
	if err := st.Set(statex.KeyEmailAddress, email); err != nil {
		return flow.Outcome{}, err
	}

	lead := st.Snapshot()
	g.logger.Info().Object("lead", lead).Msg("lead data captured")
	if g.audit != nil {
		snap := &statex.Snapshot{Reason: statex.SnapshotEmailCaptured, Lead: lead}
		if err := g.audit.Record(ctx, snap); err != nil {
			g.logger.Warn().Err(err).Str("contact_id", lead.ContactID).Msg("record lead snapshot failed")
		}
	}

	return flow.Goto(fmt.Sprintf("Perfect, I've got that down as %s.", email), g.EndCall()), nil
}
