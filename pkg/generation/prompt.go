package generation

import (
	"fmt"
	"strings"
)

const systemPrompt = `You are a marketing copywriter. Given a brand persona and a problem statement, write funnel content for the requested channels and stage.
Respond with valid JSON only.`

// buildPrompt renders the user message for a request.
func buildPrompt(req *Request) string {
	p := req.Persona

	var b strings.Builder
	fmt.Fprintf(&b, "Generate content for the %q funnel stage.\n\n", req.Stage)

	b.WriteString("<brand_persona>\n")
	fmt.Fprintf(&b, "Name: %s\n", p.Name)
	writeField(&b, "Type", p.Type)
	writeField(&b, "Mission", p.Mission)
	writeList(&b, "Tone", p.Tone)
	writeList(&b, "Audience", p.Audience)
	writeList(&b, "Values", p.Values)
	writeList(&b, "Vocabulary", p.Vocabulary)
	writeList(&b, "Voice samples", p.VoiceSamples)
	writeList(&b, "Differentiators", p.Differentiators)
	writeList(&b, "Content patterns", p.ContentPatterns)
	b.WriteString("</brand_persona>\n\n")

	fmt.Fprintf(&b, "<problem_statement>\n%s\n</problem_statement>\n\n", req.ProblemStatement)
	fmt.Fprintf(&b, "Channels: %s\n\n", strings.Join(req.Channels, ", "))

	fmt.Fprintf(&b, `Return a JSON object keyed by channel name. Each value is {%q: [pieces]} with exactly 2 pieces, `+
		`each having headline, body, cta, format, hashtags and posting_tip.`, req.Stage)
	return b.String()
}

func writeField(b *strings.Builder, label, value string) {
	if value != "" {
		fmt.Fprintf(b, "%s: %s\n", label, value)
	}
}

func writeList(b *strings.Builder, label string, values []string) {
	if len(values) > 0 {
		fmt.Fprintf(b, "%s: %s\n", label, strings.Join(values, "; "))
	}
}
