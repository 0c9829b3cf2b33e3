package guardrail

import (
	"regexp"
	"strings"
)

// Contact fields the assistant asks for. The patterns are a keyword heuristic:
// paraphrased requests slip through and legitimate re-confirmation can match.
var slotPatterns = map[string]*regexp.Regexp{
	"phone": regexp.MustCompile(`(?i)\b(?:phone|mobile|cell(?:phone)?|callback|contact)\s+(?:number|#)|\bbest number\b|\bnumber (?:to|where) (?:we can )?(?:reach|call)`),
	"email": regexp.MustCompile(`(?i)\be-?mail(?:\s+address)?\b`),
}

var speakerPrefix = regexp.MustCompile(`(?i)^\s*(ai|assistant|bot|agent|user|customer|caller)\s*:`)

type speaker int

const (
	speakerUnknown speaker = iota
	speakerAssistant
	speakerUser
)

func speakerOf(label string) speaker {
	switch strings.ToLower(label) {
	case "ai", "assistant", "bot", "agent":
		return speakerAssistant
	case "user", "customer", "caller":
		return speakerUser
	}
	return speakerUnknown
}

// transcript splits a raw transcript into assistant text and a user turn count.
// Unlabelled transcripts are treated as all-assistant text with zero turns.
type transcript struct {
	assistant string
	userTurns int
	labelled  bool
}

func parseTranscript(raw string) transcript {
	lines := strings.Split(raw, "\n")
	var (
		out     transcript
		b       strings.Builder
		current = speakerUnknown
	)
	for _, line := range lines {
		if m := speakerPrefix.FindStringSubmatch(line); m != nil {
			out.labelled = true
			current = speakerOf(m[1])
			line = line[len(m[0]):]
			if current == speakerUser {
				out.userTurns++
			}
		}
		// Continuation lines belong to the last speaker.
		if current == speakerAssistant {
			b.WriteString(line)
			b.WriteByte('\n')
		}
	}
	if !out.labelled {
		out.assistant = raw
		return out
	}
	out.assistant = b.String()
	return out
}

// repeatedSlot returns the first contact field requested at least threshold
// times, checking fields in a fixed order.
func repeatedSlot(assistantText string, threshold int) (string, int) {
	for _, field := range []string{"phone", "email"} {
		n := len(slotPatterns[field].FindAllStringIndex(assistantText, -1))
		if n >= threshold {
			return field, n
		}
	}
	return "", 0
}
