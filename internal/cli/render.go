package cli

import (
	"fmt"
	"io"
	"text/template"

	"github.com/Masterminds/sprig/v3"
	"github.com/ignatij/exectrack/pkg/models"
	"github.com/ignatij/exectrack/pkg/service"
	"github.com/pkg/errors"
)

// DefaultExecutionsTemplate renders the grouped listing. Templates get the
// sprig function map.
const DefaultExecutionsTemplate = `{{- if not .Executions -}}
No executions found{{ if .Search }} matching "{{ .Search }}"{{ end }}.
{{ else -}}
Executions ({{ len .Executions }}):
{{ range .Executions -}}
- {{ .ExecutionID }} [{{ .Status }}] started {{ .Started | default "unknown" }}, {{ len .Children }} {{ ternary "step" "steps" (eq (len .Children) 1) }}
{{ range .Children -}}
{{ printf "#%d" .IterationNumber | indent 4 }} {{ .RequestURL | default "-" | trunc 80 }} {{ .ResponseStatus }} ({{ .TotalItemsProcessed }} items)
{{ end -}}
{{ end -}}
{{ end -}}`

// ExecutionView is one group as seen by the listing template.
type ExecutionView struct {
	ExecutionID string
	Status      string
	Started     string
	Parent      *models.ExecutionLogRecord
	Children    []models.ExecutionLogRecord
}

type executionsView struct {
	Search     string
	Executions []ExecutionView
}

// RenderExecutions writes groups, newest first, through tmplText or the
// default template when tmplText is empty.
func RenderExecutions(w io.Writer, groups map[string]*models.ExecutionGroup, search, tmplText string) error {
	if tmplText == "" {
		tmplText = DefaultExecutionsTemplate
	}
	tmpl, err := template.New("executions").Funcs(sprig.TxtFuncMap()).Parse(tmplText)
	if err != nil {
		return errors.Wrap(err, "parse template")
	}

	view := executionsView{Search: search}
	for _, id := range service.SortedExecutionIDs(groups) {
		g := groups[id]
		ev := ExecutionView{ExecutionID: id, Status: "Unknown", Parent: g.Parent, Children: g.Children}
		if g.Parent != nil {
			ev.Status = g.Parent.Status.Display()
			ev.Started = g.Parent.Timestamp
		}
		view.Executions = append(view.Executions, ev)
	}
	return errors.Wrap(tmpl.Execute(w, view), "render executions")
}

// RenderSnapshot writes a one-line summary of snap.
func RenderSnapshot(w io.Writer, snap service.Snapshot) {
	id := snap.LastExecutionID
	switch {
	case snap.State == service.RetryExhaustedPollState:
		fmt.Fprintf(w, "[%s] %s: %s\n", snap.State, id, snap.NotFoundMessage)
	case snap.State == service.IdlePollState:
		fmt.Fprintf(w, "[%s] %s: stopped\n", snap.State, id)
	case snap.Err != nil:
		fmt.Fprintf(w, "[%s] %s: %v\n", snap.State, id, snap.Err)
	case len(snap.Records) > 0:
		status := "Unknown"
		if parent := findRoot(snap.Records); parent != nil {
			status = parent.Status.Display()
		}
		fmt.Fprintf(w, "[%s] %s: %d records, status %s\n", snap.State, id, len(snap.Records), status)
	case snap.RetryCount > 0:
		fmt.Fprintf(w, "[%s] %s: no records yet (attempt %d)\n", snap.State, id, snap.RetryCount)
	default:
		fmt.Fprintf(w, "[%s] %s: polling for updates...\n", snap.State, id)
	}
}

func findRoot(records []models.ExecutionLogRecord) *models.ExecutionLogRecord {
	for i := len(records) - 1; i >= 0; i-- {
		if records[i].IsParent() {
			return &records[i]
		}
	}
	return nil
}
