package security

import (
	"errors"
	"fmt"
	"regexp"
	"strings"
)

// ErrPromptInjection wraps every injection detection; the message names the
// matched text and the attack class.
var ErrPromptInjection = errors.New("prompt injection detected")

// Detection is one matched injection pattern.
type Detection struct {
	Match string
	Kind  string
}

type guardPattern struct {
	re   *regexp.Regexp
	kind string
}

// Known injection pattern classes: instruction override, system prompt
// manipulation, role confusion, jailbreaks and prompt leakage.
var guardPatterns = compileGuardPatterns([]struct{ expr, kind string }{
	{`ignore\s+(all\s+)?(previous|prior|above)\s+instructions?`, "instruction override"},
	{`disregard\s+(all\s+)?(previous|prior|above)`, "instruction override"},
	{`forget\s+(all\s+)?(previous|prior|above)`, "instruction override"},
	{`system\s*:`, "system prompt injection"},
	{`<\|im_start\|>`, "chat template injection"},
	{`<\|im_end\|>`, "chat template injection"},
	{`###\s*system`, "system delimiter injection"},
	{`you\s+are\s+now`, "role confusion"},
	{`act\s+as\s+(if\s+)?you\s+(are|were)`, "role confusion"},
	{`pretend\s+you\s+are`, "role confusion"},
	{`developer\s+mode`, "jailbreak attempt"},
	{`DAN\s+mode`, "jailbreak attempt"},
	{`sudo\s+mode`, "jailbreak attempt"},
	{`print\s+your\s+(system\s+)?(prompt|instructions)`, "prompt leakage"},
	{`show\s+me\s+your\s+(system\s+)?(prompt|instructions)`, "prompt leakage"},
	{`what\s+(are|were)\s+your\s+(original\s+)?(instructions|rules)`, "prompt leakage"},
})

func compileGuardPatterns(specs []struct{ expr, kind string }) []guardPattern {
	out := make([]guardPattern, len(specs))
	for i, s := range specs {
		out[i] = guardPattern{re: regexp.MustCompile(`(?i)` + s.expr), kind: s.kind}
	}
	return out
}

// PromptGuard detects injection attempts in user text and assembles prompts
// with explicit boundaries between instructions, documents and the query.
type PromptGuard struct{}

// NewPromptGuard returns a guard using the built-in pattern set.
func NewPromptGuard() *PromptGuard { return &PromptGuard{} }

// Scan returns every injection pattern matched by the input.
func (g *PromptGuard) Scan(input string) []Detection {
	if strings.TrimSpace(input) == "" {
		return nil
	}
	var found []Detection
	for _, p := range guardPatterns {
		if m := p.re.FindString(input); m != "" {
			found = append(found, Detection{Match: m, Kind: p.kind})
		}
	}
	return found
}

// Validate returns ErrPromptInjection when the input matches any pattern.
func (g *PromptGuard) Validate(input string) error {
	detections := g.Scan(input)
	if len(detections) == 0 {
		return nil
	}
	parts := make([]string, len(detections))
	for i, d := range detections {
		parts[i] = fmt.Sprintf("%q (%s)", d.Match, d.Kind)
	}
	return fmt.Errorf("%w: %s", ErrPromptInjection, strings.Join(parts, ", "))
}

// Sanitize escapes markup that could break out of the prompt structure:
// angle brackets used by the document tags and backticks used by markdown
// code fences.
func (g *PromptGuard) Sanitize(input string) string {
	if input == "" {
		return ""
	}
	s := strings.ReplaceAll(input, "<", "&lt;")
	s = strings.ReplaceAll(s, ">", "&gt;")
	return strings.ReplaceAll(s, "`", "\\`")
}

// PromptDocument is one sanitizable source document for BuildPrompt.
type PromptDocument struct {
	Filename string
	Content  string
}

// BuildPrompt validates the query, sanitizes all user-controlled text and
// assembles the structured prompt sent to the model.
func (g *PromptGuard) BuildPrompt(query string, documents []PromptDocument, systemInstruction string) (string, error) {
	if err := g.Validate(query); err != nil {
		return "", err
	}

	var b strings.Builder
	b.WriteString(systemInstruction)
	b.WriteString("\n\n<documents>\n")
	for _, doc := range documents {
		b.WriteString(`<document source="`)
		b.WriteString(g.Sanitize(doc.Filename))
		b.WriteString(`">`)
		b.WriteString(g.Sanitize(doc.Content))
		b.WriteString("</document>\n")
	}
	b.WriteString("</documents>\n\n<user_query>\n")
	b.WriteString(g.Sanitize(query))
	b.WriteString("\n</user_query>\n\n")
	b.WriteString("Please analyze the documents above and answer the user's query. Base your response only on the provided documents.")
	return b.String(), nil
}
