package agent

import (
	"context"
	"fmt"
	"regexp"
	"strings"

	"docqa/types"
)

const (
	generalAnalysis   = "General Analysis"
	noThemesSynthesis = "No relevant information found."
)

const themeTemplate = `Analyze these document answers for the query: "{{.query}}"

Answers:
{{.answers}}

Instructions:
1. Identify 2-4 main themes that emerge across these documents
2. For each theme, provide:
   - A clear theme name
   - A summary of what documents support this theme
   - The specific document IDs that relate to this theme
3. Provide an overall synthesis that combines insights from all themes
4. Ensure themes are distinct and meaningful

Format as:
THEME [Serial Number]: [Name]
Documents: [Doc IDs]
Summary: [Description]

OVERALL SYNTHESIS:
[Combined insights and conclusions]`

var (
	synthesisMarker = regexp.MustCompile(`(?i)overall\s+synthesis\s*:`)
	themeHeader     = regexp.MustCompile(`(?i)^theme\s*\[?\d+\]?\s*[:.)-]\s*(.*)$`)
	documentsLine   = regexp.MustCompile(`(?i)^(?:supporting\s+)?documents?\s*:\s*(.*)$`)
	summaryLine     = regexp.MustCompile(`(?i)^summary\s*:\s*(.*)$`)
	docIDPattern    = regexp.MustCompile(`(?i)\bDOC\d+\b`)
	markdownNoise   = strings.NewReplacer("**", "", "__", "", "`", "")
)

// Themes asks the model for themes shared by the answers. It never fails: an
// unusable reply or a model error is reported as a single general theme.
func (a *Agent) Themes(ctx context.Context, query string, answers []types.Answer) types.ThemeAnalysis {
	if len(answers) == 0 {
		return types.ThemeAnalysis{Themes: []types.Theme{}, Synthesis: noThemesSynthesis}
	}

	lines := make([]string, len(answers))
	for i, ans := range answers {
		lines[i] = fmt.Sprintf("Document %s: %s", ans.DocID, ans.Answer)
	}

	prompt, err := a.themePrompt.Format(map[string]any{
		"query":   query,
		"answers": strings.Join(lines, "\n"),
	})
	if err == nil {
		var text string
		if text, err = a.generate(ctx, prompt); err == nil {
			return ParseThemes(text, answers)
		}
	}

	a.logger.Error("theme identification failed", "err", err)
	return types.ThemeAnalysis{
		Themes: []types.Theme{{
			Name:                generalAnalysis,
			Summary:             "Error analyzing themes",
			SupportingDocuments: []string{},
		}},
		Synthesis: "Error analyzing themes across documents.",
	}
}

// ParseThemes reads the THEME / Documents / Summary blocks and the overall
// synthesis out of a model reply. Supporting documents are the answers whose
// id is named on a theme's Documents line.
func ParseThemes(text string, answers []types.Answer) types.ThemeAnalysis {
	clean := markdownNoise.Replace(text)

	themePart, synthesis := clean, ""
	if loc := synthesisMarker.FindStringIndex(clean); loc != nil {
		themePart = clean[:loc[0]]
		synthesis = strings.TrimSpace(clean[loc[1]:])
	}

	var (
		themes  []types.Theme
		current *types.Theme
		refs    string
		summary []string
		inSum   bool
	)
	flush := func() {
		if current == nil {
			return
		}
		current.Summary = strings.TrimSpace(strings.Join(summary, "\n"))
		current.SupportingDocuments = supportingDocuments(refs, answers)
		current.DocumentCount = len(current.SupportingDocuments)
		themes = append(themes, *current)
		current, refs, summary, inSum = nil, "", nil, false
	}

	for _, raw := range strings.Split(themePart, "\n") {
		line := strings.TrimSpace(strings.TrimLeft(strings.TrimSpace(raw), "#*-> "))

		if m := themeHeader.FindStringSubmatch(line); m != nil {
			flush()
			current = &types.Theme{Name: strings.TrimSpace(m[1])}
			continue
		}
		if current == nil {
			continue
		}
		if m := documentsLine.FindStringSubmatch(line); m != nil && !inSum {
			refs = m[1]
			continue
		}
		if m := summaryLine.FindStringSubmatch(line); m != nil {
			inSum = true
			summary = append(summary, m[1])
			continue
		}
		if inSum && line != "" {
			summary = append(summary, line)
		}
	}
	flush()

	if len(themes) == 0 {
		ids := make([]string, len(answers))
		for i, ans := range answers {
			ids[i] = ans.DocID
		}
		return types.ThemeAnalysis{
			Themes: []types.Theme{{
				Name:                generalAnalysis,
				Summary:             strings.TrimSpace(text),
				SupportingDocuments: ids,
				DocumentCount:       len(ids),
			}},
			Synthesis: strings.TrimSpace(text),
		}
	}

	return types.ThemeAnalysis{Themes: themes, Synthesis: synthesis}
}

func supportingDocuments(refs string, answers []types.Answer) []string {
	mentioned := make(map[string]bool)
	for _, id := range docIDPattern.FindAllString(refs, -1) {
		mentioned[strings.ToUpper(id)] = true
	}

	ids := []string{}
	seen := make(map[string]bool)
	for _, ans := range answers {
		if mentioned[strings.ToUpper(ans.DocID)] && !seen[ans.DocID] {
			seen[ans.DocID] = true
			ids = append(ids, ans.DocID)
		}
	}
	return ids
}
