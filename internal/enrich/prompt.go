package enrich

import "strings"

// BuildPrompt renders the text sent to language-model enrichers.
func BuildPrompt(req Request) string {
	var b strings.Builder
	b.WriteString("Summarize the following function or method `")
	b.WriteString(req.Name)
	b.WriteString("`.\n\nSource code:\n```\n")
	b.WriteString(req.Source)
	b.WriteString("\n```\n")

	if len(req.Callees) > 0 {
		b.WriteString("\nSummaries of functions it calls:\n")
		for _, c := range req.Callees {
			b.WriteString("- `")
			b.WriteString(c.Name)
			b.WriteString("`: ")
			b.WriteString(c.Result)
			b.WriteByte('\n')
		}
	}

	b.WriteString("\nWrite a concise one- or two-sentence summary describing what this function does.")
	return b.String()
}
