package prompt

import (
	"bytes"
	_ "embed"
	"fmt"
	"strings"
	"text/template"
)

var (
	//go:embed template/persona.txt
	personaRaw string

	//go:embed template/initial_greeting.txt
	initialGreetingRaw string

	//go:embed template/ask_provider.txt
	askProviderRaw string

	//go:embed template/ask_provider_name.txt
	askProviderNameRaw string

	//go:embed template/scenario_a_pitch.txt
	scenarioAPitchRaw string

	//go:embed template/scenario_b_pitch.txt
	scenarioBPitchRaw string

	//go:embed template/offer_email_summary.txt
	offerEmailSummaryRaw string

	//go:embed template/collect_email.tmpl
	collectEmailRaw string

	//go:embed template/end_call.txt
	endCallRaw string

	//go:embed template/rag.tmpl
	ragRaw string

	//go:embed template/knowledge_base.txt
	knowledgeBaseRaw string
)

var (
	collectEmailTmpl = template.Must(template.New("collect_email").Parse(collectEmailRaw))
	ragTmpl          = template.Must(template.New("rag").Parse(ragRaw))
)

const (
	PurposeMeetingInvite = "send you the meeting invite"
	PurposeSummary       = "shoot you that summary"
)

// PromptSet holds the static prompt content for every node.
type PromptSet struct {
	Persona           string
	InitialGreeting   string
	AskProvider       string
	AskProviderName   string
	ScenarioAPitch    string
	ScenarioBPitch    string
	OfferEmailSummary string
	EndCall           string
	KnowledgeBase     string
}

// LoadPromptSet returns the embedded prompts, trimmed.
func LoadPromptSet() PromptSet {
	return PromptSet{
		Persona:           strings.TrimSpace(personaRaw),
		InitialGreeting:   strings.TrimSpace(initialGreetingRaw),
		AskProvider:       strings.TrimSpace(askProviderRaw),
		AskProviderName:   strings.TrimSpace(askProviderNameRaw),
		ScenarioAPitch:    strings.TrimSpace(scenarioAPitchRaw),
		ScenarioBPitch:    strings.TrimSpace(scenarioBPitchRaw),
		OfferEmailSummary: strings.TrimSpace(offerEmailSummaryRaw),
		EndCall:           strings.TrimSpace(endCallRaw),
		KnowledgeBase:     strings.TrimSpace(knowledgeBaseRaw),
	}
}

// CollectEmail renders the email request for a meeting invite or a summary.
func CollectEmail(forMeeting bool) (string, error) {
	purpose := PurposeSummary
	if forMeeting {
		purpose = PurposeMeetingInvite
	}
	return render(collectEmailTmpl, struct{ Purpose string }{purpose})
}

// RetrievalSystem renders the knowledge-base answering prompt. An empty
// knowledgeBase falls back to the embedded one.
func RetrievalSystem(knowledgeBase string) (string, error) {
	if strings.TrimSpace(knowledgeBase) == "" {
		knowledgeBase = knowledgeBaseRaw
	}
	return render(ragTmpl, struct{ KnowledgeBase string }{strings.TrimSpace(knowledgeBase)})
}

func render(t *template.Template, data any) (string, error) {
	var buf bytes.Buffer
	if err := t.Execute(&buf, data); err != nil {
		return "", fmt.Errorf("render %s prompt: %w", t.Name(), err)
	}
	return strings.TrimSpace(buf.String()), nil
}
