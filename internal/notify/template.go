// Package notify renders subscriber emails and dispatches them through the
// transactional email collaborator.
package notify

import (
	"fmt"
	"html/template"
	"strings"

	"github.com/wizenheimer/wayback/internal/core"
)

// Template is the closed set of email kinds. Render switches over the
// concrete types; an unknown kind surfaces as an error.
type Template interface {
	templateKind() string
}

// DiffReport is the weekly competitor drift report email.
type DiffReport struct {
	Competitor string
	WeekNumber string
	Report     core.AggregatedReport
}

func (DiffReport) templateKind() string { return "diff-report" }

// Render turns a template into a dispatchable message.
func Render(t Template) (core.EmailMessage, error) {
	switch t := t.(type) {
	case DiffReport:
		return renderDiffReport(t)
	default:
		return core.EmailMessage{}, fmt.Errorf("no renderer for email template %q", t.templateKind())
	}
}

type reportSection struct {
	Name    string
	Title   string
	Summary string
	Changes []string
}

var diffReportHTML = template.Must(template.New("diff-report").Parse(`<!DOCTYPE html>
<html>
<body style="font-family: sans-serif; color: #1a1a1a; max-width: 640px; margin: 0 auto;">
	<h1>{{.Competitor}} — Week {{.WeekNumber}}</h1>
	<p>Here is what changed across {{.Competitor}}'s pages this week.</p>
	{{range .Sections}}
	<h2>{{.Title}}</h2>
	<p>{{.Summary}}</p>
	{{if .Changes}}
	<ul>
		{{range .Changes}}<li>{{.}}</li>
		{{end}}
	</ul>
	{{end}}
	{{end}}
	<p style="color: #777; font-size: 12px;">You are receiving this because you subscribed to {{.Competitor}} updates.</p>
</body>
</html>
`))

func renderDiffReport(t DiffReport) (core.EmailMessage, error) {
	sections := make([]reportSection, 0, len(core.CategoryNames))
	for _, name := range core.CategoryNames {
		category := t.Report.Categories[name]
		summary := category.Summary
		if summary == "" {
			summary = fallbackSummary(name, len(category.Changes) > 0)
		}
		sections = append(sections, reportSection{
			Name:    name,
			Title:   strings.ToUpper(name[:1]) + name[1:],
			Summary: summary,
			Changes: category.Changes,
		})
	}

	var html strings.Builder
	err := diffReportHTML.Execute(&html, struct {
		Competitor string
		WeekNumber string
		Sections   []reportSection
	}{
		Competitor: t.Competitor,
		WeekNumber: t.WeekNumber,
		Sections:   sections,
	})
	if err != nil {
		return core.EmailMessage{}, fmt.Errorf("render diff report: %w", err)
	}

	var text strings.Builder
	fmt.Fprintf(&text, "%s — Week %s\n\n", t.Competitor, t.WeekNumber)
	for _, section := range sections {
		fmt.Fprintf(&text, "%s: %s\n", section.Title, section.Summary)
		for _, change := range section.Changes {
			fmt.Fprintf(&text, "  - %s\n", change)
		}
	}

	return core.EmailMessage{
		Subject: fmt.Sprintf("%s competitor brief — week %s", t.Competitor, t.WeekNumber),
		HTML:    html.String(),
		Text:    text.String(),
	}, nil
}

// Canned one-liners used when a category was not enriched.
var changeSummaries = map[string]string{
	core.CategoryBranding:    "Fresh look, new vibe. Worth seeing if it sticks.",
	core.CategoryIntegration: "New tools in their toolkit. Smart to watch which ones get attention.",
	core.CategoryPricing:     "Prices are moving. Let's see who they're after.",
	core.CategoryProduct:     "Product shelf got a restock. Keep watching.",
	core.CategoryPositioning: "They're telling a new story. Wonder who's listening.",
	core.CategoryPartnership: "New friends in the mix. Let's see what they build together.",
}

var quietSummaries = map[string]string{
	core.CategoryBranding:    "Their brand's staying cozy in its comfort zone.",
	core.CategoryIntegration: "Integration scene's quiet this week.",
	core.CategoryPricing:     "Price tags staying put this round.",
	core.CategoryProduct:     "Product lineup's holding steady.",
	core.CategoryPositioning: "Same story, same audience, no surprises.",
	core.CategoryPartnership: "No new partnerships to report.",
}

func fallbackSummary(category string, hasChanges bool) string {
	if hasChanges {
		return changeSummaries[category]
	}
	return quietSummaries[category]
}
