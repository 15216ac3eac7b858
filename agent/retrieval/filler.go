package retrieval

import "sync"

var defaultFillers = []string{
	"Good question, let me check that for you.",
	"Let me have a quick look at that.",
	"Thanks for asking, one moment while I grab the details.",
	"I'll check the details so I get that right for you.",
	"Bear with me a sec while I look that up.",
}

// Filler hands out short acknowledgements to speak while a lookup runs,
// cycling through its phrases in order.
type Filler struct {
	mu      sync.Mutex
	phrases []string
	next    int
}

func NewFiller(phrases ...string) *Filler {
	if len(phrases) == 0 {
		phrases = defaultFillers
	}
	return &Filler{phrases: append([]string(nil), phrases...)}
}

func (f *Filler) Next() string {
	f.mu.Lock()
	defer f.mu.Unlock()

	phrase := f.phrases[f.next]
	f.next = (f.next + 1) % len(f.phrases)
	return phrase
}
