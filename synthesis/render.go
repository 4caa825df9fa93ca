package synthesis

import (
	"sort"

	"github.com/milehighfry405/gtm-factory-sub000/core"
	"github.com/milehighfry405/gtm-factory-sub000/internal/util"
)

var documentTemplate = util.MustParseTemplate("living-document", `# Living Document: {{.ProjectID}}/{{.SessionID}} (v{{.Version}})

{{.Counts.Active}} active, {{.Counts.Invalidated}} invalidated, {{.Counts.Contested}} contested.
{{range .Topics}}
## {{title .Name}}
{{range .Claims}}{{if eq .Status "invalidated"}}- ~~{{.Text}}~~ → superseded by {{.SupersededBy}}
{{else}}- {{.Text}} **[{{.Confidence}}]** _({{.DropID}}{{if .CorroboratedBy}}, corroborated by {{join ", " .CorroboratedBy}}{{end}})_{{if .Sources}} {{join ", " .Sources}}{{end}}
{{end}}{{end}}{{end}}{{if .Contested}}
## Needs Review
{{range .Contested}}- {{.ID}}: {{.Text}} **[{{.Confidence}}]** contested with {{join ", " .ContestedWith}}
{{end}}{{end}}`)

type topicView struct {
	Name   string
	Claims []core.Claim
}

type documentView struct {
	*core.LivingDocument
	Counts    core.ClaimCounts
	Topics    []topicView
	Contested []core.Claim
}

// Render returns the living document as markdown, grouped by topic. Active
// claims come first within a topic, invalidated claims are struck through
// with their successor, and contested claims are listed for review.
func Render(doc *core.LivingDocument) (string, error) {
	view := documentView{LivingDocument: doc, Counts: doc.Counts()}

	byTopic := map[string][]core.Claim{}
	for _, c := range doc.Claims {
		if c.Status == core.ClaimContested {
			view.Contested = append(view.Contested, c)
			continue
		}
		byTopic[c.Topic] = append(byTopic[c.Topic], c)
	}
	names := make([]string, 0, len(byTopic))
	for name := range byTopic {
		names = append(names, name)
	}
	sort.Strings(names)
	for _, name := range names {
		claims := byTopic[name]
		sort.SliceStable(claims, func(i, j int) bool {
			return claims[i].Status == core.ClaimActive && claims[j].Status != core.ClaimActive
		})
		view.Topics = append(view.Topics, topicView{Name: name, Claims: claims})
	}
	return util.Execute(documentTemplate, view)
}
