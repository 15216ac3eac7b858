package retrieval

import contractx "github.com/tanpawarit/Chative-Outbound-Call-Flow/agent/contract"

// DefaultWindow is how many spoken turns a lookup sees.
const DefaultWindow = 3

// RecentTurns keeps user and assistant turns that carry no tool call and
// returns the last n of them, oldest first.
func RecentTurns(transcript []contractx.Turn, n int) []contractx.Turn {
	if n <= 0 {
		return nil
	}

	spoken := make([]contractx.Turn, 0, len(transcript))
	for _, turn := range transcript {
		if turn.Role != contractx.TurnRoleUser && turn.Role != contractx.TurnRoleAssistant {
			continue
		}
		if turn.HasToolCall {
			continue
		}
		spoken = append(spoken, turn)
	}

	if len(spoken) > n {
		spoken = spoken[len(spoken)-n:]
	}
	return spoken
}
