package nodes

import (
	"context"

	"github.com/tanpawarit/Chative-Outbound-Call-Flow/agent/flow"
	statex "github.com/tanpawarit/Chative-Outbound-Call-Flow/agent/state"
)

// ScenarioAPitch pitches alongside an existing provider.
func (g *Graph) ScenarioAPitch() *flow.Node {
	return g.node(NodeScenarioAPitch, g.prompts.ScenarioAPitch, g.meetingResponseAction())
}

// ScenarioBPitch pitches to a company with no provider.
func (g *Graph) ScenarioBPitch() *flow.Node {
	return g.node(NodeScenarioBPitch, g.prompts.ScenarioBPitch, g.meetingResponseAction())
}

func (g *Graph) meetingResponseAction() flow.Action {
	return flow.Action{
		Name:        ActionHandleMeetingResponse,
		Description: "Record the user's response to the meeting invitation, including specific date and time if provided.",
		Params: []flow.Param{
			{Name: "accepts_meeting", Type: flow.ParamBoolean, Description: "True if they want to schedule a meeting, false if they decline", Required: true},
			{Name: "meeting_date", Type: flow.ParamString, Description: "The specific date for the meeting (e.g., 'next Monday', 'Tuesday the 15th', 'next week')"},
			{Name: "meeting_time", Type: flow.ParamString, Description: "The specific time for the meeting (e.g., '10am', '2:30pm', 'morning', 'afternoon')"},
		},
		Handler: g.handleMeetingResponse,
	}
}

func (g *Graph) handleMeetingResponse(ctx context.Context, args flow.Args, st *statex.Store) (flow.Outcome, error) {
	if !args.BoolOr("accepts_meeting", false) {
		if err := st.Merge(map[string]any{
			statex.KeyMeetingStatus:        statex.MeetingDeclined,
			statex.KeyInterestedInOffering: false,
		}); err != nil {
			return flow.Outcome{}, err
		}
		g.logger.Info().Msg("meeting declined")
		return flow.Goto("No worries at all, mate.", g.OfferEmailSummary()), nil
	}

	date, _ := args.String("meeting_date")
	clock, _ := args.String("meeting_time")

	if err := st.Merge(map[string]any{
		statex.KeyMeetingStatus:        statex.MeetingInterestedToSchedule,
		statex.KeyMeetingDate:          orDefault(date, statex.ToBeConfirmed),
		statex.KeyMeetingTime:          orDefault(clock, statex.ToBeConfirmed),
		statex.KeyMeetingDayTime:       statex.CombineMeetingDayTime(date, clock),
		statex.KeyInterestedInOffering: true,
	}); err != nil {
		return flow.Outcome{}, err
	}

	g.logger.Info().Str("meeting_date", date).Str("meeting_time", clock).Msg("meeting accepted")
	return flow.Goto("Brilliant! I'll get that sorted for you.", g.CollectEmail(true)), nil
}

func orDefault(v, def string) string {
	if v == "" {
		return def
	}
	return v
}
